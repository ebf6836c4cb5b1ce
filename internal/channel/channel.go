// internal/channel/channel.go
// Package channel translates canonical action descriptors into browser
// operations and their outcomes back into canonical results. It owns the
// closed dispatch vocabulary; everything above it (agent loop, replayer)
// speaks descriptors, everything below it speaks the backend interface.
package channel

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-cli/api/schemas"
)

// ActionChannel executes descriptors against a live backend. One channel is
// bound to one browser session; it is not safe for concurrent Execute calls,
// which matches the strictly sequential execution model of a test run.
type ActionChannel struct {
	backend schemas.Backend
	logger  *zap.Logger

	// base resolves relative navigate targets. Nil means absolute URLs only.
	base *url.URL
}

var _ schemas.Channel = (*ActionChannel)(nil)

// New binds a channel to a backend.
func New(backend schemas.Backend, logger *zap.Logger) *ActionChannel {
	return &ActionChannel{
		backend: backend,
		logger:  logger.Named("channel"),
	}
}

// Execute dispatches one descriptor. Mutating actions change live page state;
// screenshot and cursor_position are read-only. Pointer-targeted actions
// record the UI fingerprint of their target before the action runs, so a
// later replay can verify the same element is still there.
func (c *ActionChannel) Execute(ctx context.Context, d schemas.ActionDescriptor) (*schemas.ActionResult, error) {
	missing, err := d.Validate()
	if err != nil {
		return nil, NewUnsupportedAction(string(d.Kind))
	}
	if missing != "" {
		return nil, NewMissingArgument(string(d.Kind), missing)
	}

	c.logger.Debug("Dispatching action.", zap.String("action", d.Summary()))

	result := &schemas.ActionResult{}

	// Fingerprint the target before mutating it. Replay verification compares
	// against the pre-action element, which is what the model saw when it
	// chose the coordinates.
	if d.PointerTargeted() {
		fp, fpErr := c.UIFingerprintAt(ctx, *d.X, *d.Y)
		if fpErr != nil {
			c.logger.Warn("Could not fingerprint action target, step will not be verifiable on replay.",
				zap.String("action", d.Summary()), zap.Error(fpErr))
		} else {
			result.UIFingerprint = fp
		}
	}

	if err := c.dispatch(ctx, d, result); err != nil {
		return nil, err
	}

	c.attachPageState(ctx, result)
	return result, nil
}

func (c *ActionChannel) dispatch(ctx context.Context, d schemas.ActionDescriptor, result *schemas.ActionResult) error {
	kind := string(d.Kind)

	switch d.Kind {
	case schemas.ActionClick:
		if err := c.backend.Click(ctx, *d.X, *d.Y, 1); err != nil {
			return NewBackendFailure(kind, err)
		}
		result.Message = fmt.Sprintf("clicked at (%.0f, %.0f)", *d.X, *d.Y)

	case schemas.ActionDoubleClick:
		if err := c.backend.Click(ctx, *d.X, *d.Y, 2); err != nil {
			return NewBackendFailure(kind, err)
		}
		result.Message = fmt.Sprintf("double clicked at (%.0f, %.0f)", *d.X, *d.Y)

	case schemas.ActionType:
		if err := c.backend.TypeText(ctx, d.Text); err != nil {
			return NewBackendFailure(kind, err)
		}
		if d.Masked {
			result.Message = "typed masked text into the focused element"
		} else {
			result.Message = fmt.Sprintf("typed %q into the focused element", d.Text)
		}

	case schemas.ActionKeyPress:
		chord, ok := ResolveKey(d.Key)
		if !ok {
			return &ActionError{
				Code:   ErrUnsupportedAction,
				Action: kind,
				Detail: fmt.Sprintf("unknown key name %q", d.Key),
			}
		}
		if err := c.backend.PressKey(ctx, chord); err != nil {
			return NewBackendFailure(kind, err)
		}
		result.Message = fmt.Sprintf("pressed key %q", d.Key)

	case schemas.ActionMouseMove:
		if err := c.backend.MoveMouse(ctx, *d.X, *d.Y); err != nil {
			return NewBackendFailure(kind, err)
		}
		result.Message = fmt.Sprintf("moved mouse to (%.0f, %.0f)", *d.X, *d.Y)

	case schemas.ActionDrag:
		if err := c.backend.Drag(ctx, *d.X, *d.Y, *d.ToX, *d.ToY); err != nil {
			return NewBackendFailure(kind, err)
		}
		result.Message = fmt.Sprintf("dragged from (%.0f, %.0f) to (%.0f, %.0f)", *d.X, *d.Y, *d.ToX, *d.ToY)

	case schemas.ActionScreenshot:
		png, err := c.backend.Screenshot(ctx)
		if err != nil {
			return NewBackendFailure(kind, err)
		}
		result.Screenshot = png
		result.Message = "captured a screenshot of the current viewport"

	case schemas.ActionNavigate:
		target := c.resolveURL(d.URL)
		if err := c.backend.Navigate(ctx, target); err != nil {
			return NewBackendFailure(kind, err)
		}
		result.Message = fmt.Sprintf("navigated to %s", target)

	case schemas.ActionSleep:
		if err := sleepCtx(ctx, time.Duration(d.DurationMs)*time.Millisecond); err != nil {
			return NewBackendFailure(kind, err)
		}
		result.Message = fmt.Sprintf("waited %dms", d.DurationMs)

	case schemas.ActionScroll:
		if err := c.backend.Scroll(ctx, *d.X, *d.Y, d.DeltaY); err != nil {
			return NewBackendFailure(kind, err)
		}
		result.Message = fmt.Sprintf("scrolled by %d at (%.0f, %.0f)", d.DeltaY, *d.X, *d.Y)

	case schemas.ActionCursorPosition:
		pos := c.backend.CursorPosition()
		result.Message = fmt.Sprintf("cursor is at (%.0f, %.0f)", pos.X, pos.Y)

	default:
		// Validate already rejects unknown kinds; this is unreachable unless
		// the vocabulary and the dispatch table drift apart.
		return NewUnsupportedAction(kind)
	}

	return nil
}

// attachPageState decorates a result with current window info and cursor
// position. Best effort: a page mid-navigation can fail these reads and the
// action itself already succeeded.
func (c *ActionChannel) attachPageState(ctx context.Context, result *schemas.ActionResult) {
	if info, err := c.backend.WindowInfo(ctx); err == nil {
		result.Window = &info
	} else {
		c.logger.Debug("Could not read window info after action.", zap.Error(err))
	}
	pos := c.backend.CursorPosition()
	result.Cursor = &pos
}

// SetBaseURL installs the suite's base URL so relative navigate targets
// resolve against it.
func (c *ActionChannel) SetBaseURL(raw string) error {
	base, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid base url %q: %w", raw, err)
	}
	c.base = base
	return nil
}

func (c *ActionChannel) resolveURL(raw string) string {
	if c.base == nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return c.base.ResolveReference(ref).String()
}

// UIFingerprintAt computes the structural fingerprint of the element at the
// given page coordinates. Read-only; used by replay verification and for
// annotating pointer-targeted results.
func (c *ActionChannel) UIFingerprintAt(ctx context.Context, x, y float64) (string, error) {
	fragment, err := c.backend.ElementHTMLAt(ctx, x, y)
	if err != nil {
		return "", NewBackendFailure("ui_fingerprint", err)
	}
	return UIFingerprint(fragment), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
