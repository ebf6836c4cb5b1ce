// internal/llmclient/gemini.go
// Package llmclient implements the model-provider seam: it translates between
// the runner's conversation turns and a provider's wire format, and owns
// transport-level retry of transient failures.
package llmclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/specter-cli/api/schemas"
	"github.com/xkilldash9x/specter-cli/internal/config"
)

const maxRetries = 3

// GeminiClient implements schemas.ModelClient against the Gemini API. The
// tool vocabulary is fixed at construction, derived from the action kinds.
type GeminiClient struct {
	client *genai.Client
	cfg    config.ModelConfig
	tools  []*genai.Tool
	logger *zap.Logger
}

var _ schemas.ModelClient = (*GeminiClient)(nil)

// NewGeminiClient builds a client for the configured model. The API key must
// be present; there is no anonymous access.
func NewGeminiClient(ctx context.Context, cfg config.ModelConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key is not configured (hint: set SPECTER_MODEL_API_KEY)")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &GeminiClient{
		client: client,
		cfg:    cfg,
		tools:  actionTools(),
		logger: logger.Named("gemini"),
	}, nil
}

// Generate sends the conversation and returns the model's reply. Transient
// provider failures (rate limits, 5xx) are retried with exponential backoff;
// anything else surfaces immediately.
func (c *GeminiClient) Generate(ctx context.Context, system string, turns []schemas.Turn) (*schemas.ModelReply, error) {
	contents := contentsFromTurns(turns)

	genCfg := &genai.GenerateContentConfig{
		Tools: c.tools,
	}
	if system != "" {
		genCfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	if c.cfg.MaxOutputTokens > 0 {
		genCfg.MaxOutputTokens = int32(c.cfg.MaxOutputTokens)
	}
	genCfg.Temperature = genai.Ptr(float32(c.cfg.Temperature))

	var resp *genai.GenerateContentResponse
	operation := func() error {
		reqCtx := ctx
		if c.cfg.APITimeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, c.cfg.APITimeout)
			defer cancel()
		}

		var err error
		resp, err = c.client.Models.GenerateContent(reqCtx, c.cfg.Name, contents, genCfg)
		if err != nil {
			if isTransient(err) {
				c.logger.Warn("Transient model failure, will retry.", zap.Error(err))
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}

	reply := replyFromResponse(resp)
	c.logger.Debug("Model reply received.",
		zap.Int("tool_calls", len(reply.ToolCalls)),
		zap.Int("input_tokens", reply.Usage.InputTokens),
		zap.Int("output_tokens", reply.Usage.OutputTokens),
	)
	return reply, nil
}

// isTransient reports whether a provider error is worth retrying.
func isTransient(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	// Non-API errors are transport-level (connection reset, timeout); retry
	// them. The backoff policy stops on its own once the caller's context is
	// canceled.
	return !errors.Is(err, context.Canceled)
}

// contentsFromTurns converts the provider-neutral conversation into Gemini
// contents. Tool results become function responses; screenshots ride along as
// inline PNG blobs.
func contentsFromTurns(turns []schemas.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		content := &genai.Content{}
		switch turn.Role {
		case schemas.RoleModel:
			content.Role = genai.RoleModel
			if turn.Text != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: turn.Text})
			}
			for _, call := range turn.ToolCalls {
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: call.ID, Name: call.Name, Args: call.Args},
				})
			}
		case schemas.RoleTool:
			content.Role = genai.RoleUser
			for _, result := range turn.ToolResults {
				response := map[string]any{"output": result.Content}
				if result.IsError {
					response = map[string]any{"error": result.Content}
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{ID: result.ID, Name: result.Name, Response: response},
				})
				if len(result.Image) > 0 {
					content.Parts = append(content.Parts, &genai.Part{
						InlineData: &genai.Blob{MIMEType: "image/png", Data: result.Image},
					})
				}
			}
		default:
			content.Role = genai.RoleUser
			if turn.Text != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: turn.Text})
			}
			if len(turn.Image) > 0 {
				content.Parts = append(content.Parts, &genai.Part{
					InlineData: &genai.Blob{MIMEType: "image/png", Data: turn.Image},
				})
			}
		}
		contents = append(contents, content)
	}
	return contents
}

// replyFromResponse flattens the first candidate into a provider-neutral
// reply and attaches the reported token usage.
func replyFromResponse(resp *genai.GenerateContentResponse) *schemas.ModelReply {
	reply := &schemas.ModelReply{}
	if resp == nil {
		return reply
	}

	if resp.UsageMetadata != nil {
		reply.Usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		reply.Usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return reply
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			reply.Text += part.Text
		}
		if part.FunctionCall != nil {
			id := part.FunctionCall.ID
			if id == "" {
				id = uuid.NewString()
			}
			reply.ToolCalls = append(reply.ToolCalls, schemas.ToolCall{
				ID:   id,
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			})
		}
	}
	return reply
}
