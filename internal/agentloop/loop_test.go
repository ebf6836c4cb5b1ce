// internal/agentloop/loop_test.go
package agentloop

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/specter-cli/api/schemas"
)

// scriptedModel replays a fixed sequence of replies and records every
// conversation it was shown.
type scriptedModel struct {
	replies []*schemas.ModelReply
	err     error
	calls   int
	seen    [][]schemas.Turn
}

func (m *scriptedModel) Generate(ctx context.Context, system string, turns []schemas.Turn) (*schemas.ModelReply, error) {
	m.calls++
	m.seen = append(m.seen, append([]schemas.Turn(nil), turns...))
	if m.err != nil {
		return nil, m.err
	}
	if len(m.replies) == 0 {
		return &schemas.ModelReply{Text: "thinking"}, nil
	}
	reply := m.replies[0]
	if len(m.replies) > 1 {
		m.replies = m.replies[1:]
	}
	return reply, nil
}

// recordingChannel executes everything successfully unless a kind is scripted
// to fail, and stamps pointer actions with a fingerprint.
type recordingChannel struct {
	executed []schemas.ActionDescriptor
	failKind schemas.ActionKind
	failErr  error
}

func (c *recordingChannel) Execute(ctx context.Context, d schemas.ActionDescriptor) (*schemas.ActionResult, error) {
	if d.Kind == c.failKind && c.failErr != nil {
		return nil, c.failErr
	}
	c.executed = append(c.executed, d)

	result := &schemas.ActionResult{Message: d.Summary()}
	if d.Kind == schemas.ActionScreenshot {
		result.Screenshot = []byte{0x89, 0x50, 0x4e, 0x47}
		result.Window = &schemas.WindowInfo{URL: "https://example.com/login", Title: "Login"}
	}
	if d.PointerTargeted() {
		result.UIFingerprint = "fp-" + string(d.Kind)
	}
	return result, nil
}

func (c *recordingChannel) UIFingerprintAt(ctx context.Context, x, y float64) (string, error) {
	return "fp-query", nil
}

func toolCallReply(usage schemas.TokenUsage, calls ...schemas.ToolCall) *schemas.ModelReply {
	return &schemas.ModelReply{ToolCalls: calls, Usage: usage}
}

func loginTest() *schemas.TestDefinition {
	return &schemas.TestDefinition{
		Name:  "login",
		Steps: []string{"go to /login", "fill username", "fill password", "submit"},
	}
}

func TestRunFreshLoginEndToEnd(t *testing.T) {
	model := &scriptedModel{replies: []*schemas.ModelReply{
		toolCallReply(schemas.TokenUsage{InputTokens: 100, OutputTokens: 10},
			schemas.ToolCall{ID: "1", Name: "navigate", Args: map[string]any{"url": "https://example.com/login"}}),
		toolCallReply(schemas.TokenUsage{InputTokens: 120, OutputTokens: 12},
			schemas.ToolCall{ID: "2", Name: "type", Args: map[string]any{"text": "alice"}}),
		toolCallReply(schemas.TokenUsage{InputTokens: 130, OutputTokens: 11},
			schemas.ToolCall{ID: "3", Name: "type", Args: map[string]any{"text": "s3cret", "masked": true}}),
		toolCallReply(schemas.TokenUsage{InputTokens: 140, OutputTokens: 9},
			schemas.ToolCall{ID: "4", Name: "click", Args: map[string]any{"x": 640.0, "y": 480.0}}),
		{Text: `{"result":"pass","reason":"login succeeded"}`, Usage: schemas.TokenUsage{InputTokens: 150, OutputTokens: 20}},
	}}
	channel := &recordingChannel{}
	loop := New(model, channel, zaptest.NewLogger(t))

	verdict, steps, err := loop.Run(context.Background(), loginTest(), 10)
	require.NoError(t, err)
	require.NotNil(t, verdict)
	assert.True(t, verdict.Pass())
	assert.Equal(t, "login succeeded", verdict.Reason)
	assert.Equal(t, 640, verdict.Usage.InputTokens)
	assert.Equal(t, 62, verdict.Usage.OutputTokens)

	// The initial snapshot plus the four scripted actions.
	require.Len(t, steps, 4)
	assert.Equal(t, schemas.ActionNavigate, steps[0].Action.Kind)
	assert.Equal(t, schemas.ActionType, steps[1].Action.Kind)
	assert.True(t, steps[2].Action.Masked)
	assert.Equal(t, schemas.ActionClick, steps[3].Action.Kind)
	assert.Equal(t, "fp-click", steps[3].UIFingerprint)

	assert.Equal(t, 5, model.calls)
}

func TestRunInitialTurnCarriesSnapshotAndSteps(t *testing.T) {
	model := &scriptedModel{replies: []*schemas.ModelReply{
		{Text: `{"result":"pass","reason":"nothing to do"}`},
	}}
	channel := &recordingChannel{}
	loop := New(model, channel, zaptest.NewLogger(t))

	_, _, err := loop.Run(context.Background(), loginTest(), 5)
	require.NoError(t, err)

	require.NotEmpty(t, model.seen)
	initial := model.seen[0][0]
	assert.Equal(t, schemas.RoleUser, initial.Role)
	assert.Contains(t, initial.Text, "Test: login")
	assert.Contains(t, initial.Text, "1. go to /login")
	assert.Contains(t, initial.Text, "4. submit")
	assert.Contains(t, initial.Text, "https://example.com/login")
	assert.NotEmpty(t, initial.Image)
}

func TestRunMaxTurnsReachedAtBudgetBoundary(t *testing.T) {
	// Never emits a verdict: every reply is another tool call.
	endless := toolCallReply(schemas.TokenUsage{},
		schemas.ToolCall{Name: "cursor_position"})
	model := &scriptedModel{replies: []*schemas.ModelReply{endless}}
	loop := New(model, &recordingChannel{}, zaptest.NewLogger(t))

	const budget = 4
	verdict, steps, err := loop.Run(context.Background(), loginTest(), budget)
	assert.Nil(t, verdict)
	assert.Nil(t, steps)

	var aiErr *AIError
	require.ErrorAs(t, err, &aiErr)
	assert.Equal(t, ErrMaxTurnsReached, aiErr.Code)
	assert.Equal(t, budget, model.calls, "the model is consulted exactly once per budgeted turn")
}

func TestRunProviderFailure(t *testing.T) {
	model := &scriptedModel{err: errors.New("rpc unavailable")}
	loop := New(model, &recordingChannel{}, zaptest.NewLogger(t))

	_, _, err := loop.Run(context.Background(), loginTest(), 3)
	var aiErr *AIError
	require.ErrorAs(t, err, &aiErr)
	assert.Equal(t, ErrProviderFailure, aiErr.Code)
	assert.ErrorIs(t, err, model.err)
}

func TestRunInvalidVerdictJSON(t *testing.T) {
	model := &scriptedModel{replies: []*schemas.ModelReply{
		{Text: `The test is done: {"result": "maybe", "reason": "unsure"}`},
	}}
	loop := New(model, &recordingChannel{}, zaptest.NewLogger(t))

	_, _, err := loop.Run(context.Background(), loginTest(), 3)
	var aiErr *AIError
	require.ErrorAs(t, err, &aiErr)
	assert.Equal(t, ErrInvalidResponse, aiErr.Code)
}

func TestRunNudgesOnEmptyReplyThenAcceptsVerdict(t *testing.T) {
	model := &scriptedModel{replies: []*schemas.ModelReply{
		{Text: "Let me think about this."},
		{Text: `{"result":"fail","reason":"button missing"}`},
	}}
	loop := New(model, &recordingChannel{}, zaptest.NewLogger(t))

	verdict, _, err := loop.Run(context.Background(), loginTest(), 5)
	require.NoError(t, err)
	assert.False(t, verdict.Pass())
	assert.Equal(t, "button missing", verdict.Reason)

	// The second call must include the nudge.
	require.Equal(t, 2, model.calls)
	lastTurns := model.seen[1]
	assert.Equal(t, nudgeText, lastTurns[len(lastTurns)-1].Text)
}

func TestRunFeedsToolErrorsBackToModel(t *testing.T) {
	model := &scriptedModel{replies: []*schemas.ModelReply{
		toolCallReply(schemas.TokenUsage{},
			schemas.ToolCall{ID: "1", Name: "click", Args: map[string]any{"x": 1.0, "y": 2.0}}),
		{Text: `{"result":"fail","reason":"could not click"}`},
	}}
	channel := &recordingChannel{failKind: schemas.ActionClick, failErr: errors.New("element detached")}
	loop := New(model, channel, zaptest.NewLogger(t))

	verdict, steps, err := loop.Run(context.Background(), loginTest(), 5)
	require.NoError(t, err)
	assert.False(t, verdict.Pass())
	assert.Empty(t, steps, "failed actions never become trace steps")

	lastTurns := model.seen[1]
	toolTurn := lastTurns[len(lastTurns)-1]
	require.Equal(t, schemas.RoleTool, toolTurn.Role)
	require.Len(t, toolTurn.ToolResults, 1)
	assert.True(t, toolTurn.ToolResults[0].IsError)
	assert.Contains(t, toolTurn.ToolResults[0].Content, "element detached")
}

func TestDescriptorFromToolCall(t *testing.T) {
	d := descriptorFromToolCall(schemas.ToolCall{
		Name: "drag",
		Args: map[string]any{"x": 1.0, "y": 2.0, "to_x": 3.0, "to_y": 4.0},
	})
	assert.Equal(t, schemas.ActionDrag, d.Kind)
	require.NotNil(t, d.ToX)
	assert.Equal(t, 3.0, *d.ToX)

	d = descriptorFromToolCall(schemas.ToolCall{
		Name: "sleep",
		Args: map[string]any{"duration_ms": 250.0},
	})
	assert.Equal(t, 250, d.DurationMs)

	// Ill-typed arguments stay unset instead of panicking.
	d = descriptorFromToolCall(schemas.ToolCall{
		Name: "click",
		Args: map[string]any{"x": "onehundred", "y": 2.0},
	})
	assert.Nil(t, d.X)
	require.NotNil(t, d.Y)
}

func TestExtractVerdict(t *testing.T) {
	t.Run("plain object", func(t *testing.T) {
		v, err := extractVerdict(`{"result":"pass","reason":"ok"}`)
		require.NoError(t, err)
		require.NotNil(t, v)
		assert.True(t, v.Pass())
	})

	t.Run("embedded in prose", func(t *testing.T) {
		v, err := extractVerdict(`All steps completed. {"result":"pass","reason":"form submitted"} Have a nice day.`)
		require.NoError(t, err)
		require.NotNil(t, v)
		assert.Equal(t, "form submitted", v.Reason)
	})

	t.Run("markdown fenced", func(t *testing.T) {
		v, err := extractVerdict("Here is my verdict:\n```json\n{\"result\":\"fail\",\"reason\":\"timeout\"}\n```")
		require.NoError(t, err)
		require.NotNil(t, v)
		assert.False(t, v.Pass())
	})

	t.Run("braces inside reason string", func(t *testing.T) {
		v, err := extractVerdict(`{"result":"pass","reason":"matched {\"ok\":true} payload"}`)
		require.NoError(t, err)
		require.NotNil(t, v)
		assert.Contains(t, v.Reason, `{"ok":true}`)
	})

	t.Run("no object at all", func(t *testing.T) {
		v, err := extractVerdict("still working on it")
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("malformed object", func(t *testing.T) {
		_, err := extractVerdict(`{"result": pass}`)
		var aiErr *AIError
		require.ErrorAs(t, err, &aiErr)
		assert.Equal(t, ErrInvalidResponse, aiErr.Code)
	})

	t.Run("unknown result value", func(t *testing.T) {
		_, err := extractVerdict(`{"result":"inconclusive","reason":"shrug"}`)
		var aiErr *AIError
		require.ErrorAs(t, err, &aiErr)
		assert.Equal(t, ErrInvalidResponse, aiErr.Code)
	})
}
