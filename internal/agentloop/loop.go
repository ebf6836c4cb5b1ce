// internal/agentloop/loop.go
// Package agentloop drives a bounded tool-use conversation with a vision
// model: tool calls become browser actions, and the loop terminates on a
// structured verdict or when the turn budget runs out.
package agentloop

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/specter-cli/api/schemas"
)

// Loop runs fresh, model-driven test executions. One Loop is reusable across
// tests; the conversation is created per Run and discarded at the verdict.
type Loop struct {
	model   schemas.ModelClient
	channel schemas.Channel
	logger  *zap.Logger
}

// New builds a loop over a model client and an action channel.
func New(model schemas.ModelClient, channel schemas.Channel, logger *zap.Logger) *Loop {
	return &Loop{
		model:   model,
		channel: channel,
		logger:  logger.Named("agent"),
	}
}

// Run executes one test. It returns the verdict, the successfully executed
// steps in order (the material for a cached trace) and a terminal *AIError
// when no verdict could be produced. Token usage accumulates across every
// model turn and is attached to the verdict.
func (l *Loop) Run(ctx context.Context, test *schemas.TestDefinition, turnBudget int) (*schemas.Verdict, []schemas.TraceStep, error) {
	var (
		usage schemas.TokenUsage
		steps []schemas.TraceStep
		turns []schemas.Turn
	)

	turns = append(turns, l.initialTurn(ctx, test))

	for turn := 1; turn <= turnBudget; turn++ {
		reply, err := l.model.Generate(ctx, systemPrompt, turns)
		if err != nil {
			return nil, nil, &AIError{Code: ErrProviderFailure, Err: err}
		}
		usage.Add(reply.Usage)

		if len(reply.ToolCalls) > 0 {
			turns = append(turns, schemas.Turn{
				Role:      schemas.RoleModel,
				Text:      reply.Text,
				ToolCalls: reply.ToolCalls,
			})

			results := make([]schemas.ToolResult, 0, len(reply.ToolCalls))
			for _, call := range reply.ToolCalls {
				result, step := l.executeToolCall(ctx, call)
				results = append(results, result)
				if step != nil {
					steps = append(steps, *step)
				}
			}
			turns = append(turns, schemas.Turn{Role: schemas.RoleTool, ToolResults: results})
			continue
		}

		verdict, err := extractVerdict(reply.Text)
		if err != nil {
			return nil, nil, err
		}
		if verdict != nil {
			verdict.Usage = usage
			l.logger.Info("Verdict reached.",
				zap.String("test", test.Name),
				zap.String("status", string(verdict.Status)),
				zap.Int("turns", turn),
				zap.Int("input_tokens", usage.InputTokens),
				zap.Int("output_tokens", usage.OutputTokens),
			)
			return verdict, steps, nil
		}

		// Neither a tool call nor a verdict. Nudge once and keep going; the
		// budget still bounds the conversation.
		l.logger.Debug("Model reply had no tool call and no verdict, nudging.",
			zap.String("test", test.Name), zap.Int("turn", turn))
		turns = append(turns,
			schemas.Turn{Role: schemas.RoleModel, Text: reply.Text},
			schemas.Turn{Role: schemas.RoleUser, Text: nudgeText},
		)
	}

	return nil, nil, &AIError{
		Code:   ErrMaxTurnsReached,
		Detail: fmt.Sprintf("no verdict after %d turns", turnBudget),
	}
}

// initialTurn assembles the opening user message: the test description plus a
// live page snapshot so the model starts oriented. Snapshot failures degrade
// to a text-only opening rather than aborting the run.
func (l *Loop) initialTurn(ctx context.Context, test *schemas.TestDefinition) schemas.Turn {
	turn := schemas.Turn{Role: schemas.RoleUser, Text: initialTurnText(test)}

	snapshot, err := l.channel.Execute(ctx, schemas.ActionDescriptor{Kind: schemas.ActionScreenshot})
	if err != nil {
		l.logger.Warn("Could not capture the initial page snapshot.", zap.Error(err))
		return turn
	}

	turn.Image = snapshot.Screenshot
	if snapshot.Window != nil {
		turn.Text += fmt.Sprintf("\nCurrent page: %s (%q)", snapshot.Window.URL, snapshot.Window.Title)
	}
	return turn
}

// executeToolCall translates one tool call into a descriptor, executes it and
// packages the outcome for the model. Execution failures are fed back as
// error results so the model can adapt; only successful actions become trace
// steps.
func (l *Loop) executeToolCall(ctx context.Context, call schemas.ToolCall) (schemas.ToolResult, *schemas.TraceStep) {
	descriptor := descriptorFromToolCall(call)

	result, err := l.channel.Execute(ctx, descriptor)
	if err != nil {
		l.logger.Debug("Tool call failed.",
			zap.String("tool", call.Name), zap.Error(err))
		return schemas.ToolResult{
			ID:      call.ID,
			Name:    call.Name,
			Content: err.Error(),
			IsError: true,
		}, nil
	}

	step := &schemas.TraceStep{Action: descriptor, UIFingerprint: result.UIFingerprint}
	toolResult := schemas.ToolResult{
		ID:      call.ID,
		Name:    call.Name,
		Content: result.Message,
		Image:   result.Screenshot,
	}
	if result.Window != nil {
		toolResult.Content += fmt.Sprintf(" (page: %s %q)", result.Window.URL, result.Window.Title)
	}
	return toolResult, step
}

// descriptorFromToolCall maps the untrusted argument bag onto the canonical
// descriptor. Missing or ill-typed fields stay unset; the channel's
// validation turns them into precise ActionErrors.
func descriptorFromToolCall(call schemas.ToolCall) schemas.ActionDescriptor {
	d := schemas.ActionDescriptor{Kind: schemas.ActionKind(call.Name)}

	d.X = floatArg(call.Args, "x")
	d.Y = floatArg(call.Args, "y")
	d.ToX = floatArg(call.Args, "to_x")
	d.ToY = floatArg(call.Args, "to_y")
	d.Text = stringArg(call.Args, "text")
	d.Masked = boolArg(call.Args, "masked")
	d.Key = stringArg(call.Args, "key")
	d.URL = stringArg(call.Args, "url")
	if ms := floatArg(call.Args, "duration_ms"); ms != nil {
		d.DurationMs = int(*ms)
	}
	if delta := floatArg(call.Args, "delta_y"); delta != nil {
		d.DeltaY = int(*delta)
	}
	return d
}

func floatArg(args map[string]any, key string) *float64 {
	switch v := args[key].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case int64:
		f := float64(v)
		return &f
	}
	return nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func boolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}
