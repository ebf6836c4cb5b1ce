// File: internal/orchestrator/orchestrator.go
// Description: Sequences suites, tests and hooks, and chooses the replay
// path or a fresh model run per test. It is injected with its collaborators
// via interfaces, making it decoupled and testable.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-cli/api/schemas"
	"github.com/xkilldash9x/specter-cli/internal/agentloop"
	"github.com/xkilldash9x/specter-cli/internal/replay"
)

// AgentRunner is the fresh-execution seam, satisfied by *agentloop.Loop.
type AgentRunner interface {
	Run(ctx context.Context, test *schemas.TestDefinition, turnBudget int) (*schemas.Verdict, []schemas.TraceStep, error)
}

// TraceReplayer is the cached-execution seam, satisfied by *replay.Replayer.
type TraceReplayer interface {
	Replay(ctx context.Context, trace *schemas.Trace) error
}

// TraceStore is the persistence seam, satisfied by *replay.Store. A nil store
// disables caching entirely.
type TraceStore interface {
	Get(fingerprint string) (*schemas.Trace, bool)
	Set(fingerprint string, trace *schemas.Trace) error
	Delete(fingerprint string)
}

// Orchestrator runs one suite over one shared browser session. Tests execute
// strictly in order; hook failures are fatal only to their own scope.
type Orchestrator struct {
	agent      AgentRunner
	replayer   TraceReplayer
	store      TraceStore
	channel    schemas.Channel
	turnBudget int
	logger     *zap.Logger
}

// New creates an Orchestrator. store may be nil to disable the replay cache;
// every other dependency is required.
func New(
	agent AgentRunner,
	replayer TraceReplayer,
	store TraceStore,
	channel schemas.Channel,
	turnBudget int,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if agent == nil || replayer == nil || channel == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	return &Orchestrator{
		agent:      agent,
		replayer:   replayer,
		store:      store,
		channel:    channel,
		turnBudget: turnBudget,
		logger:     logger.Named("orchestrator"),
	}, nil
}

// RunSuite executes every test in the suite sequentially and aggregates the
// verdicts. A BeforeAll failure fails every test in the file without running
// them; AfterAll always runs and its failure is reported as its own entry.
func (o *Orchestrator) RunSuite(ctx context.Context, suite *schemas.TestSuite) schemas.FileResult {
	result := schemas.FileResult{File: suite.Name}
	tc := &schemas.TestContext{Channel: o.channel, Logger: o.logger.Named("hooks")}

	if err := runHook(ctx, suite.BeforeAll, tc); err != nil {
		o.logger.Error("BeforeAll hook failed, failing the whole file.",
			zap.String("suite", suite.Name), zap.Error(err))
		for i := range suite.Tests {
			result.Results = append(result.Results, schemas.TestResult{
				Name: suite.Tests[i].Name,
				Verdict: schemas.Verdict{
					Status: schemas.VerdictFail,
					Reason: fmt.Sprintf("before all hook failed: %v", err),
				},
			})
		}
		o.runAfterAll(ctx, suite, tc, &result)
		return result
	}

	for i := range suite.Tests {
		test := &suite.Tests[i]
		result.Results = append(result.Results, o.runTest(ctx, suite, test, tc))
	}

	o.runAfterAll(ctx, suite, tc, &result)
	return result
}

func (o *Orchestrator) runAfterAll(ctx context.Context, suite *schemas.TestSuite, tc *schemas.TestContext, result *schemas.FileResult) {
	if err := runHook(ctx, suite.AfterAll, tc); err != nil {
		o.logger.Error("AfterAll hook failed.", zap.String("suite", suite.Name), zap.Error(err))
		result.Results = append(result.Results, schemas.TestResult{
			Name: suite.Name + " (after all)",
			Verdict: schemas.Verdict{
				Status: schemas.VerdictFail,
				Reason: fmt.Sprintf("after all hook failed: %v", err),
			},
		})
	}
}

// runTest executes one test through its hooks and body. The returned result
// is always terminal: errors at every layer are converted to a fail verdict
// and never propagate beyond the test.
func (o *Orchestrator) runTest(ctx context.Context, suite *schemas.TestSuite, test *schemas.TestDefinition, tc *schemas.TestContext) schemas.TestResult {
	start := time.Now()
	tc.Payload = test.Payload
	defer func() { tc.Payload = nil }()

	o.logger.Info("Running test.", zap.String("test", test.Name), zap.Bool("direct", test.Direct))

	var verdict schemas.Verdict
	var cached bool

	beforeErr := runHook(ctx, suite.BeforeEach, tc)
	if beforeErr == nil {
		beforeErr = runHook(ctx, test.Before, tc)
	}

	if beforeErr != nil {
		// The body never runs, but the after hooks still do.
		verdict = schemas.Verdict{
			Status: schemas.VerdictFail,
			Reason: beforeErr.Error(),
		}
	} else {
		verdict, cached = o.runBody(ctx, test, tc)
	}

	if afterErr := runHook(ctx, test.After, tc); afterErr != nil {
		verdict = composeAfterFailure(verdict, "After", afterErr)
	}
	if afterEachErr := runHook(ctx, suite.AfterEach, tc); afterEachErr != nil {
		verdict = composeAfterFailure(verdict, "AfterEach", afterEachErr)
	}

	o.logger.Info("Test finished.",
		zap.String("test", test.Name),
		zap.String("status", string(verdict.Status)),
		zap.Bool("cached", cached),
		zap.Duration("duration", time.Since(start)),
	)

	return schemas.TestResult{
		Name:     test.Name,
		Verdict:  verdict,
		Cached:   cached,
		Duration: time.Since(start),
	}
}

// runBody picks the execution path: direct callback, verified replay, or a
// fresh model run. The bool reports whether the cached path satisfied the
// test.
func (o *Orchestrator) runBody(ctx context.Context, test *schemas.TestDefinition, tc *schemas.TestContext) (schemas.Verdict, bool) {
	if test.Direct {
		if test.During == nil {
			return schemas.Verdict{
				Status: schemas.VerdictFail,
				Reason: "direct execution requested but the test has no during callback",
			}, false
		}
		if err := test.During(ctx, tc); err != nil {
			return schemas.Verdict{Status: schemas.VerdictFail, Reason: err.Error()}, false
		}
		return schemas.Verdict{Status: schemas.VerdictPass, Reason: "direct execution succeeded"}, false
	}

	// Session preparation before any model involvement.
	if err := runHook(ctx, test.During, tc); err != nil {
		return schemas.Verdict{Status: schemas.VerdictFail, Reason: err.Error()}, false
	}

	if o.store != nil {
		fingerprint := test.Fingerprint()
		if trace, ok := o.store.Get(fingerprint); ok {
			verdict, done := o.replayTrace(ctx, test, fingerprint, trace)
			if done {
				return verdict, true
			}
			// Stale trace: one fresh retry with caching disabled, never a
			// recursive fallback.
			return o.freshRun(ctx, test, ""), false
		}
		return o.freshRun(ctx, test, fingerprint), false
	}

	return o.freshRun(ctx, test, ""), false
}

// replayTrace verifies and replays a cached trace. done=false means the
// trace was stale and has been deleted; the caller falls back to one fresh
// run.
func (o *Orchestrator) replayTrace(ctx context.Context, test *schemas.TestDefinition, fingerprint string, trace *schemas.Trace) (schemas.Verdict, bool) {
	o.logger.Info("Cache hit, replaying trace.",
		zap.String("test", test.Name),
		zap.Int("steps", len(trace.Steps)))

	err := o.replayer.Replay(ctx, trace)
	if err == nil {
		return schemas.Verdict{Status: schemas.VerdictPass, Reason: "replayed from cache"}, true
	}

	var stale *replay.StaleTraceError
	if errors.As(err, &stale) {
		o.logger.Info("Trace is stale, deleting and falling back to a fresh run.",
			zap.String("test", test.Name), zap.Int("step", stale.Step))
		o.store.Delete(fingerprint)
		return schemas.Verdict{}, false
	}

	// Replay could not proceed at all (canceled context, dead session).
	return schemas.Verdict{
		Status: schemas.VerdictFail,
		Reason: fmt.Sprintf("replay aborted: %v", err),
	}, true
}

// freshRun executes the test through the agent loop. A non-empty fingerprint
// persists the trace of a passing run; the post-staleness retry passes ""
// so an unstable test cannot oscillate between cache writes and fallbacks.
func (o *Orchestrator) freshRun(ctx context.Context, test *schemas.TestDefinition, fingerprint string) schemas.Verdict {
	verdict, steps, err := o.agent.Run(ctx, test, o.turnBudget)
	if err != nil {
		var aiErr *agentloop.AIError
		if errors.As(err, &aiErr) {
			return schemas.Verdict{Status: schemas.VerdictFail, Reason: aiErr.Error()}
		}
		return schemas.Verdict{Status: schemas.VerdictFail, Reason: err.Error()}
	}

	if verdict.Pass() && fingerprint != "" && o.store != nil && len(steps) > 0 {
		trace := schemas.NewTrace(fingerprint, steps)
		if setErr := o.store.Set(fingerprint, trace); setErr != nil {
			o.logger.Warn("Could not persist trace.",
				zap.String("test", test.Name), zap.Error(setErr))
		}
	}
	return *verdict
}

// composeAfterFailure folds an after-hook error into the verdict. A passing
// AI verdict keeps its reason visible instead of being overwritten:
// "AI: <reason>, After: <error>".
func composeAfterFailure(verdict schemas.Verdict, label string, err error) schemas.Verdict {
	var reason string
	if verdict.Pass() {
		reason = fmt.Sprintf("AI: %s, %s: %v", verdict.Reason, label, err)
	} else {
		reason = fmt.Sprintf("%s, %s: %v", verdict.Reason, label, err)
	}
	return schemas.Verdict{
		Status: schemas.VerdictFail,
		Reason: reason,
		Usage:  verdict.Usage,
	}
}

// runHook invokes an optional callback, converting panics into errors so a
// buggy hook can only fail its own scope.
func runHook(ctx context.Context, hook schemas.HookFunc, tc *schemas.TestContext) (err error) {
	if hook == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return hook(ctx, tc)
}
