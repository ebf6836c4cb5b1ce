// internal/browser/session/session.go
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-cli/api/schemas"
	"github.com/xkilldash9x/specter-cli/internal/config"
)

// elementAtJS returns the outer HTML of the topmost element at a viewport
// coordinate. Sliced to keep fingerprint inputs bounded; structural identity
// survives truncation.
const elementAtJS = `(() => {
	const el = document.elementFromPoint(%f, %f);
	return el ? el.outerHTML.slice(0, 4096) : "";
})()`

// Session is a live browser page. It implements schemas.Backend on top of a
// pluggable Executor and tracks the virtual cursor position, which CDP does
// not expose for synthetic input.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc
	exec   Executor
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu     sync.Mutex
	cursor schemas.Point
}

var _ schemas.Backend = (*Session)(nil)

// Launch starts a Chrome process, opens a fresh tab sized to the configured
// viewport and returns a Session bound to it. Close releases the browser.
func Launch(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	opts := execAllocatorOptions(cfg)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	cancel := func() {
		taskCancel()
		allocCancel()
	}

	// The first Run starts the browser process.
	if err := chromedp.Run(taskCtx,
		chromedp.EmulateViewport(int64(cfg.ViewportWidth), int64(cfg.ViewportHeight)),
	); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	logger.Info("Browser session started.",
		zap.Bool("headless", cfg.Headless),
		zap.Int("viewport_width", cfg.ViewportWidth),
		zap.Int("viewport_height", cfg.ViewportHeight),
	)

	return &Session{
		ctx:    taskCtx,
		cancel: cancel,
		exec:   NewCDPExecutor(),
		cfg:    cfg,
		logger: logger.Named("session"),
	}, nil
}

// NewWithExecutor builds a Session around an existing executor. Used by tests
// and by callers that manage the chromedp context themselves.
func NewWithExecutor(ctx context.Context, exec Executor, cfg config.BrowserConfig, logger *zap.Logger) *Session {
	return &Session{
		ctx:    ctx,
		cancel: func() {},
		exec:   exec,
		cfg:    cfg,
		logger: logger.Named("session"),
	}
}

// execAllocatorOptions translates the browser config into chromedp allocator
// options.
func execAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		// Recommended for stability in containers and headless environments.
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)

	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	return opts
}

// Close shuts down the tab and the browser process.
func (s *Session) Close() {
	s.cancel()
}

// opContext merges the session context (carrying the CDP target) with the
// caller's context so either cancellation stops the operation.
func (s *Session) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return CombineContext(s.ctx, ctx)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if s.cfg.NavigationTimeout > 0 {
		var tcancel context.CancelFunc
		opCtx, tcancel = context.WithTimeout(opCtx, s.cfg.NavigationTimeout)
		defer tcancel()
	}

	s.logger.Debug("Navigating.", zap.String("url", url))
	if err := s.exec.Navigate(opCtx, url); err != nil {
		return fmt.Errorf("navigate to %q: %w", url, err)
	}
	return nil
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	buf, err := s.exec.CaptureScreenshot(opCtx)
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

func (s *Session) Click(ctx context.Context, x, y float64, clickCount int) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if clickCount < 1 {
		clickCount = 1
	}

	if err := s.moveTo(opCtx, x, y); err != nil {
		return err
	}

	// A double click is press/release twice with an incrementing click count,
	// matching how Chrome reports real user input.
	for i := 1; i <= clickCount; i++ {
		press := input.DispatchMouseEvent(input.MousePressed, x, y).
			WithButton(input.Left).
			WithClickCount(int64(i))
		if err := s.exec.DispatchMouseEvent(opCtx, press); err != nil {
			return fmt.Errorf("mouse press at (%.0f, %.0f): %w", x, y, err)
		}

		release := input.DispatchMouseEvent(input.MouseReleased, x, y).
			WithButton(input.Left).
			WithClickCount(int64(i))
		if err := s.exec.DispatchMouseEvent(opCtx, release); err != nil {
			return fmt.Errorf("mouse release at (%.0f, %.0f): %w", x, y, err)
		}
	}
	return nil
}

func (s *Session) MoveMouse(ctx context.Context, x, y float64) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	return s.moveTo(opCtx, x, y)
}

func (s *Session) Drag(ctx context.Context, fromX, fromY, toX, toY float64) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.moveTo(opCtx, fromX, fromY); err != nil {
		return err
	}

	press := input.DispatchMouseEvent(input.MousePressed, fromX, fromY).
		WithButton(input.Left).
		WithClickCount(1)
	if err := s.exec.DispatchMouseEvent(opCtx, press); err != nil {
		return fmt.Errorf("drag press at (%.0f, %.0f): %w", fromX, fromY, err)
	}

	move := input.DispatchMouseEvent(input.MouseMoved, toX, toY).
		WithButton(input.Left)
	if err := s.exec.DispatchMouseEvent(opCtx, move); err != nil {
		return fmt.Errorf("drag move to (%.0f, %.0f): %w", toX, toY, err)
	}
	s.setCursor(toX, toY)

	release := input.DispatchMouseEvent(input.MouseReleased, toX, toY).
		WithButton(input.Left).
		WithClickCount(1)
	if err := s.exec.DispatchMouseEvent(opCtx, release); err != nil {
		return fmt.Errorf("drag release at (%.0f, %.0f): %w", toX, toY, err)
	}
	return nil
}

func (s *Session) TypeText(ctx context.Context, text string) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.exec.SendKeys(opCtx, text); err != nil {
		return fmt.Errorf("type text: %w", err)
	}
	return nil
}

func (s *Session) PressKey(ctx context.Context, key string) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.exec.SendKeys(opCtx, key); err != nil {
		return fmt.Errorf("press key: %w", err)
	}
	return nil
}

func (s *Session) Scroll(ctx context.Context, x, y float64, deltaY int) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	wheel := input.DispatchMouseEvent(input.MouseWheel, x, y).
		WithDeltaX(0).
		WithDeltaY(float64(deltaY))
	if err := s.exec.DispatchMouseEvent(opCtx, wheel); err != nil {
		return fmt.Errorf("scroll at (%.0f, %.0f): %w", x, y, err)
	}
	return nil
}

func (s *Session) CursorPosition() schemas.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *Session) WindowInfo(ctx context.Context) (schemas.WindowInfo, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	url, err := s.exec.Location(opCtx)
	if err != nil {
		return schemas.WindowInfo{}, fmt.Errorf("read location: %w", err)
	}
	title, err := s.exec.Title(opCtx)
	if err != nil {
		return schemas.WindowInfo{}, fmt.Errorf("read title: %w", err)
	}
	return schemas.WindowInfo{URL: url, Title: title}, nil
}

func (s *Session) ElementHTMLAt(ctx context.Context, x, y float64) (string, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	var html string
	expr := fmt.Sprintf(elementAtJS, x, y)
	if err := s.exec.Evaluate(opCtx, expr, &html); err != nil {
		return "", fmt.Errorf("inspect element at (%.0f, %.0f): %w", x, y, err)
	}
	return strings.TrimSpace(html), nil
}

// Sleep pauses within the page's event loop so queued input settles.
func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	return s.exec.Sleep(opCtx, d)
}

func (s *Session) moveTo(ctx context.Context, x, y float64) error {
	move := input.DispatchMouseEvent(input.MouseMoved, x, y)
	if err := s.exec.DispatchMouseEvent(ctx, move); err != nil {
		return fmt.Errorf("mouse move to (%.0f, %.0f): %w", x, y, err)
	}
	s.setCursor(x, y)
	return nil
}

func (s *Session) setCursor(x, y float64) {
	s.mu.Lock()
	s.cursor = schemas.Point{X: x, Y: y}
	s.mu.Unlock()
}
