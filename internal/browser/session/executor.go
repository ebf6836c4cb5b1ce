// internal/browser/session/executor.go
package session

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
)

// Executor defines the contract for the low-level browser interactions a
// session performs, allowing for mocking during tests. The session composes
// high-level gestures (clicks, drags, typed text) out of these primitives.
type Executor interface {
	// Navigate loads the given URL and waits for the page load event.
	Navigate(ctx context.Context, url string) error

	// CaptureScreenshot captures the visible viewport as PNG bytes.
	CaptureScreenshot(ctx context.Context) ([]byte, error)

	// DispatchMouseEvent sends a raw low-level mouse event.
	DispatchMouseEvent(ctx context.Context, p *input.DispatchMouseEventParams) error

	// SendKeys synthesizes key events for the given runes against the
	// focused element. Control characters (e.g. "\r") produce key chords.
	SendKeys(ctx context.Context, keys string) error

	// Location reports the current top-level document URL.
	Location(ctx context.Context) (string, error)

	// Title reports the current document title.
	Title(ctx context.Context) (string, error)

	// Evaluate runs a JavaScript expression and unmarshals its result into res.
	Evaluate(ctx context.Context, expression string, res any) error

	// Sleep pauses execution for a given duration (context-aware).
	Sleep(ctx context.Context, d time.Duration) error
}

// CDPExecutor is the production implementation of the Executor interface.
// It wraps the real chromedp calls; the ctx passed to each method must carry
// the chromedp target.
type CDPExecutor struct{}

// NewCDPExecutor creates a new production-ready executor.
func NewCDPExecutor() *CDPExecutor {
	return &CDPExecutor{}
}

var _ Executor = (*CDPExecutor)(nil)

func (e *CDPExecutor) Navigate(ctx context.Context, url string) error {
	return chromedp.Navigate(url).Do(ctx)
}

func (e *CDPExecutor) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := chromedp.CaptureScreenshot(&buf).Do(ctx); err != nil {
		return nil, err
	}
	return buf, nil
}

func (e *CDPExecutor) DispatchMouseEvent(ctx context.Context, p *input.DispatchMouseEventParams) error {
	return p.Do(ctx)
}

func (e *CDPExecutor) SendKeys(ctx context.Context, keys string) error {
	return chromedp.KeyEvent(keys).Do(ctx)
}

func (e *CDPExecutor) Location(ctx context.Context) (string, error) {
	var url string
	if err := chromedp.Location(&url).Do(ctx); err != nil {
		return "", err
	}
	return url, nil
}

func (e *CDPExecutor) Title(ctx context.Context) (string, error) {
	var title string
	if err := chromedp.Title(&title).Do(ctx); err != nil {
		return "", err
	}
	return title, nil
}

func (e *CDPExecutor) Evaluate(ctx context.Context, expression string, res any) error {
	return chromedp.Evaluate(expression, res).Do(ctx)
}

func (e *CDPExecutor) Sleep(ctx context.Context, d time.Duration) error {
	return chromedp.Sleep(d).Do(ctx)
}
