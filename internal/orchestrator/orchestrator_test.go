// File: internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/specter-cli/api/schemas"
	"github.com/xkilldash9x/specter-cli/internal/agentloop"
	"github.com/xkilldash9x/specter-cli/internal/replay"
)

func ptr(v float64) *float64 { return &v }

type stubAgent struct {
	verdict *schemas.Verdict
	steps   []schemas.TraceStep
	err     error
	calls   int
}

func (a *stubAgent) Run(ctx context.Context, test *schemas.TestDefinition, turnBudget int) (*schemas.Verdict, []schemas.TraceStep, error) {
	a.calls++
	if a.err != nil {
		return nil, nil, a.err
	}
	v := *a.verdict
	return &v, a.steps, nil
}

type stubReplayer struct {
	err   error
	calls int
}

func (r *stubReplayer) Replay(ctx context.Context, trace *schemas.Trace) error {
	r.calls++
	return r.err
}

type memStore struct {
	traces  map[string]*schemas.Trace
	sets    []string
	deletes []string
}

func newMemStore() *memStore {
	return &memStore{traces: map[string]*schemas.Trace{}}
}

func (s *memStore) Get(fingerprint string) (*schemas.Trace, bool) {
	t, ok := s.traces[fingerprint]
	return t, ok
}

func (s *memStore) Set(fingerprint string, trace *schemas.Trace) error {
	s.traces[fingerprint] = trace
	s.sets = append(s.sets, fingerprint)
	return nil
}

func (s *memStore) Delete(fingerprint string) {
	delete(s.traces, fingerprint)
	s.deletes = append(s.deletes, fingerprint)
}

// noopChannel satisfies schemas.Channel for the test context.
type noopChannel struct{}

func (noopChannel) Execute(ctx context.Context, d schemas.ActionDescriptor) (*schemas.ActionResult, error) {
	return &schemas.ActionResult{Message: d.Summary()}, nil
}

func (noopChannel) UIFingerprintAt(ctx context.Context, x, y float64) (string, error) {
	return "", nil
}

func passVerdict(reason string) *schemas.Verdict {
	return &schemas.Verdict{
		Status: schemas.VerdictPass,
		Reason: reason,
		Usage:  schemas.TokenUsage{InputTokens: 500, OutputTokens: 50},
	}
}

func newTestOrchestrator(t *testing.T, agent AgentRunner, replayer TraceReplayer, store TraceStore) *Orchestrator {
	t.Helper()
	o, err := New(agent, replayer, store, noopChannel{}, 10, zaptest.NewLogger(t))
	require.NoError(t, err)
	return o
}

func singleTestSuite(test schemas.TestDefinition) *schemas.TestSuite {
	return &schemas.TestSuite{Name: "suite", Tests: []schemas.TestDefinition{test}}
}

func TestRunSuiteFreshRunPersistsTrace(t *testing.T) {
	agent := &stubAgent{
		verdict: passVerdict("login succeeded"),
		steps: []schemas.TraceStep{
			{Action: schemas.ActionDescriptor{Kind: schemas.ActionNavigate, URL: "https://example.com"}},
			{Action: schemas.ActionDescriptor{Kind: schemas.ActionClick, X: ptr(1), Y: ptr(2)}, UIFingerprint: "fp"},
		},
	}
	store := newMemStore()
	o := newTestOrchestrator(t, agent, &stubReplayer{}, store)

	test := schemas.TestDefinition{Name: "login", Steps: []string{"log in"}}
	result := o.RunSuite(context.Background(), singleTestSuite(test))

	require.Len(t, result.Results, 1)
	assert.True(t, result.Results[0].Verdict.Pass())
	assert.False(t, result.Results[0].Cached)
	assert.Equal(t, 1, agent.calls)

	require.Len(t, store.sets, 1)
	assert.Equal(t, test.Fingerprint(), store.sets[0])
	stored := store.traces[store.sets[0]]
	assert.Equal(t, schemas.TraceFormatVersion, stored.Version)
	assert.Len(t, stored.Steps, 2)
}

func TestRunSuiteFailedRunIsNeverCached(t *testing.T) {
	agent := &stubAgent{
		verdict: &schemas.Verdict{Status: schemas.VerdictFail, Reason: "button missing"},
		steps:   []schemas.TraceStep{{Action: schemas.ActionDescriptor{Kind: schemas.ActionScreenshot}}},
	}
	store := newMemStore()
	o := newTestOrchestrator(t, agent, &stubReplayer{}, store)

	result := o.RunSuite(context.Background(), singleTestSuite(schemas.TestDefinition{Name: "t", Steps: []string{"s"}}))
	assert.False(t, result.Results[0].Verdict.Pass())
	assert.Empty(t, store.sets)
}

func TestRunSuiteCacheHitReplaysWithoutModel(t *testing.T) {
	test := schemas.TestDefinition{Name: "login", Steps: []string{"log in"}}
	fp := test.Fingerprint()

	agent := &stubAgent{verdict: passVerdict("should not be consulted")}
	replayer := &stubReplayer{}
	store := newMemStore()
	store.traces[fp] = schemas.NewTrace(fp, []schemas.TraceStep{
		{Action: schemas.ActionDescriptor{Kind: schemas.ActionNavigate, URL: "https://example.com"}},
	})

	o := newTestOrchestrator(t, agent, replayer, store)
	result := o.RunSuite(context.Background(), singleTestSuite(test))

	require.Len(t, result.Results, 1)
	verdict := result.Results[0].Verdict
	assert.True(t, verdict.Pass())
	assert.Equal(t, "replayed from cache", verdict.Reason)
	assert.Equal(t, schemas.TokenUsage{}, verdict.Usage, "replayed runs report zero token usage")
	assert.True(t, result.Results[0].Cached)
	assert.Equal(t, 1, replayer.calls)
	assert.Zero(t, agent.calls)
}

func TestRunSuiteStaleTraceFallsBackOnceWithoutRecaching(t *testing.T) {
	test := schemas.TestDefinition{Name: "login", Steps: []string{"log in"}}
	fp := test.Fingerprint()

	agent := &stubAgent{
		verdict: passVerdict("fresh run passed"),
		steps:   []schemas.TraceStep{{Action: schemas.ActionDescriptor{Kind: schemas.ActionNavigate, URL: "x"}}},
	}
	replayer := &stubReplayer{err: &replay.StaleTraceError{Step: 0, Action: "click", Recorded: "A", Live: "B"}}
	store := newMemStore()
	store.traces[fp] = schemas.NewTrace(fp, nil)

	o := newTestOrchestrator(t, agent, replayer, store)
	result := o.RunSuite(context.Background(), singleTestSuite(test))

	verdict := result.Results[0].Verdict
	assert.True(t, verdict.Pass())
	assert.False(t, result.Results[0].Cached)

	assert.Equal(t, []string{fp}, store.deletes, "the stale entry must be deleted")
	assert.Equal(t, 1, agent.calls, "exactly one fresh retry")
	assert.Empty(t, store.sets, "the retry runs with caching disabled")
}

func TestRunSuiteReplayHardFailureDoesNotFallBack(t *testing.T) {
	test := schemas.TestDefinition{Name: "login", Steps: []string{"log in"}}
	fp := test.Fingerprint()

	agent := &stubAgent{verdict: passVerdict("unused")}
	replayer := &stubReplayer{err: errors.New("browser session gone")}
	store := newMemStore()
	store.traces[fp] = schemas.NewTrace(fp, nil)

	o := newTestOrchestrator(t, agent, replayer, store)
	result := o.RunSuite(context.Background(), singleTestSuite(test))

	verdict := result.Results[0].Verdict
	assert.False(t, verdict.Pass())
	assert.Contains(t, verdict.Reason, "replay aborted")
	assert.Zero(t, agent.calls)
}

func TestRunSuiteAgentErrorBecomesFailVerdict(t *testing.T) {
	agent := &stubAgent{err: &agentloop.AIError{Code: agentloop.ErrMaxTurnsReached, Detail: "no verdict after 10 turns"}}
	o := newTestOrchestrator(t, agent, &stubReplayer{}, nil)

	result := o.RunSuite(context.Background(), singleTestSuite(schemas.TestDefinition{Name: "t", Steps: []string{"s"}}))
	verdict := result.Results[0].Verdict
	assert.False(t, verdict.Pass())
	assert.Contains(t, verdict.Reason, "max_turns_reached")
}

func TestRunSuiteDirectExecution(t *testing.T) {
	invoked := false
	test := schemas.TestDefinition{
		Name:   "seed database",
		Direct: true,
		During: func(ctx context.Context, tc *schemas.TestContext) error {
			invoked = true
			return nil
		},
	}
	agent := &stubAgent{verdict: passVerdict("unused")}
	store := newMemStore()
	o := newTestOrchestrator(t, agent, &stubReplayer{}, store)

	result := o.RunSuite(context.Background(), singleTestSuite(test))
	verdict := result.Results[0].Verdict
	assert.True(t, verdict.Pass())
	assert.True(t, invoked)
	assert.Zero(t, agent.calls, "direct tests bypass the model")
	assert.Empty(t, store.sets, "direct tests bypass the cache")
}

func TestRunSuiteDirectExecutionError(t *testing.T) {
	test := schemas.TestDefinition{
		Name:   "seed database",
		Direct: true,
		During: func(ctx context.Context, tc *schemas.TestContext) error {
			return errors.New("connection refused")
		},
	}
	o := newTestOrchestrator(t, &stubAgent{verdict: passVerdict("unused")}, &stubReplayer{}, nil)

	result := o.RunSuite(context.Background(), singleTestSuite(test))
	verdict := result.Results[0].Verdict
	assert.False(t, verdict.Pass())
	assert.Equal(t, "connection refused", verdict.Reason)
}

func TestBeforeHookFailureShortCircuitsWithOwnMessage(t *testing.T) {
	agent := &stubAgent{verdict: passVerdict("unused")}
	afterRan := false
	test := schemas.TestDefinition{
		Name:  "t",
		Steps: []string{"s"},
		Before: func(ctx context.Context, tc *schemas.TestContext) error {
			return errors.New("fixture server down")
		},
		After: func(ctx context.Context, tc *schemas.TestContext) error {
			afterRan = true
			return nil
		},
	}
	o := newTestOrchestrator(t, agent, &stubReplayer{}, nil)

	result := o.RunSuite(context.Background(), singleTestSuite(test))
	verdict := result.Results[0].Verdict
	assert.False(t, verdict.Pass())
	assert.Equal(t, "fixture server down", verdict.Reason)
	assert.Zero(t, agent.calls)
	assert.True(t, afterRan, "the after hook still runs")
}

func TestAfterHookFailureComposesWithPassingVerdict(t *testing.T) {
	agent := &stubAgent{verdict: passVerdict("login succeeded")}
	test := schemas.TestDefinition{
		Name:  "t",
		Steps: []string{"s"},
		After: func(ctx context.Context, tc *schemas.TestContext) error {
			return errors.New("cleanup failed")
		},
	}
	o := newTestOrchestrator(t, agent, &stubReplayer{}, nil)

	result := o.RunSuite(context.Background(), singleTestSuite(test))
	verdict := result.Results[0].Verdict
	assert.False(t, verdict.Pass())
	assert.Contains(t, verdict.Reason, "AI: login succeeded")
	assert.Contains(t, verdict.Reason, "After: cleanup failed")
	assert.Equal(t, 500, verdict.Usage.InputTokens, "usage survives composition")
}

func TestHookPanicIsContained(t *testing.T) {
	test := schemas.TestDefinition{
		Name:  "t",
		Steps: []string{"s"},
		Before: func(ctx context.Context, tc *schemas.TestContext) error {
			panic("boom")
		},
	}
	o := newTestOrchestrator(t, &stubAgent{verdict: passVerdict("unused")}, &stubReplayer{}, nil)

	result := o.RunSuite(context.Background(), singleTestSuite(test))
	verdict := result.Results[0].Verdict
	assert.False(t, verdict.Pass())
	assert.Contains(t, verdict.Reason, "hook panicked: boom")
}

func TestBeforeAllFailureFailsWholeFile(t *testing.T) {
	agent := &stubAgent{verdict: passVerdict("unused")}
	afterAllRan := false
	suite := &schemas.TestSuite{
		Name: "suite",
		Tests: []schemas.TestDefinition{
			{Name: "a", Steps: []string{"x"}},
			{Name: "b", Steps: []string{"y"}},
		},
		BeforeAll: func(ctx context.Context, tc *schemas.TestContext) error {
			return errors.New("no browser profile")
		},
		AfterAll: func(ctx context.Context, tc *schemas.TestContext) error {
			afterAllRan = true
			return nil
		},
	}
	o := newTestOrchestrator(t, agent, &stubReplayer{}, nil)

	result := o.RunSuite(context.Background(), suite)
	require.Len(t, result.Results, 2)
	for _, res := range result.Results {
		assert.False(t, res.Verdict.Pass())
		assert.Contains(t, res.Verdict.Reason, "before all hook failed")
	}
	assert.Zero(t, agent.calls)
	assert.True(t, afterAllRan)
}

func TestBeforeEachRunsPerTest(t *testing.T) {
	agent := &stubAgent{verdict: passVerdict("ok")}
	count := 0
	suite := &schemas.TestSuite{
		Name: "suite",
		Tests: []schemas.TestDefinition{
			{Name: "a", Steps: []string{"x"}},
			{Name: "b", Steps: []string{"y"}},
		},
		BeforeEach: func(ctx context.Context, tc *schemas.TestContext) error {
			count++
			return nil
		},
	}
	o := newTestOrchestrator(t, agent, &stubReplayer{}, nil)

	result := o.RunSuite(context.Background(), suite)
	assert.True(t, result.Passed())
	assert.Equal(t, 2, count)
}

func TestDuringHookPreparesSessionBeforeFreshRun(t *testing.T) {
	order := []string{}
	agent := &stubAgent{verdict: passVerdict("ok")}
	test := schemas.TestDefinition{
		Name:  "t",
		Steps: []string{"s"},
		During: func(ctx context.Context, tc *schemas.TestContext) error {
			order = append(order, "during")
			return nil
		},
	}
	o := newTestOrchestrator(t, agent, &stubReplayer{}, nil)

	result := o.RunSuite(context.Background(), singleTestSuite(test))
	assert.True(t, result.Results[0].Verdict.Pass())
	assert.Equal(t, []string{"during"}, order)
	assert.Equal(t, 1, agent.calls)
}
