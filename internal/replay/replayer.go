// internal/replay/replayer.go
package replay

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/specter-cli/api/schemas"
)

// StaleTraceError reports that a recorded step's UI fingerprint no longer
// matches the live page. The trace must be deleted and the test re-run fresh.
type StaleTraceError struct {
	Step     int
	Action   string
	Recorded string
	Live     string
}

// Error implements the error interface.
func (e *StaleTraceError) Error() string {
	return fmt.Sprintf("trace step %d (%s) is stale: recorded fingerprint does not match the live page", e.Step, e.Action)
}

// Replayer re-executes a recorded trace against the live page. Before each
// step that carries a recorded fingerprint it recomputes the live one; any
// difference aborts the replay immediately.
type Replayer struct {
	channel schemas.Channel
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewReplayer builds a replayer that paces steps at one per settle interval.
// The pacing gives the page time to settle between injected inputs; it is a
// throttle, not a correctness mechanism.
func NewReplayer(channel schemas.Channel, settle rate.Limit, logger *zap.Logger) *Replayer {
	return &Replayer{
		channel: channel,
		limiter: rate.NewLimiter(settle, 1),
		logger:  logger.Named("replay"),
	}
}

// Replay runs every recorded step in order. Screenshot steps are skipped
// (regenerating them buys nothing). A fingerprint mismatch returns
// *StaleTraceError; per-step execution errors are logged and replay
// continues, tolerating transient UI noise.
func (r *Replayer) Replay(ctx context.Context, trace *schemas.Trace) error {
	for i, step := range trace.Steps {
		if step.Action.Kind == schemas.ActionScreenshot {
			continue
		}

		if step.UIFingerprint != "" && step.Action.X != nil && step.Action.Y != nil {
			live, err := r.channel.UIFingerprintAt(ctx, *step.Action.X, *step.Action.Y)
			if err != nil {
				// Cannot verify the target, so assume drift rather than blindly
				// clicking whatever is there now.
				r.logger.Warn("Could not verify step target, treating trace as stale.",
					zap.Int("step", i), zap.Error(err))
				return &StaleTraceError{Step: i, Action: string(step.Action.Kind), Recorded: step.UIFingerprint}
			}
			if live != step.UIFingerprint {
				r.logger.Info("UI drift detected, trace is stale.",
					zap.Int("step", i),
					zap.String("action", step.Action.Summary()))
				return &StaleTraceError{
					Step:     i,
					Action:   string(step.Action.Kind),
					Recorded: step.UIFingerprint,
					Live:     live,
				}
			}
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("replay interrupted: %w", err)
		}

		if _, err := r.channel.Execute(ctx, step.Action); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("replay interrupted: %w", ctx.Err())
			}
			r.logger.Warn("Replayed step failed, continuing.",
				zap.Int("step", i),
				zap.String("action", step.Action.Summary()),
				zap.Error(err))
		}
	}
	return nil
}
