// api/schemas/interfaces.go
package schemas

import "context"

// Backend is the capability surface the core needs from a browser. The
// channel depends only on this interface, never on a concrete automation
// stack, so the whole decision machinery is testable without Chrome.
type Backend interface {
	// Navigate loads the given absolute URL and waits for the load event.
	Navigate(ctx context.Context, url string) error

	// Screenshot captures the visible viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// Click presses and releases the left mouse button at page coordinates.
	// clickCount of 2 produces a double click.
	Click(ctx context.Context, x, y float64, clickCount int) error

	// MoveMouse moves the pointer to page coordinates.
	MoveMouse(ctx context.Context, x, y float64) error

	// Drag presses at the start point, moves to the end point and releases.
	Drag(ctx context.Context, fromX, fromY, toX, toY float64) error

	// TypeText sends the text to the focused element as key events.
	TypeText(ctx context.Context, text string) error

	// PressKey sends a single resolved key chord (e.g. "\r" for Enter).
	PressKey(ctx context.Context, key string) error

	// Scroll dispatches a mouse wheel event at page coordinates.
	Scroll(ctx context.Context, x, y float64, deltaY int) error

	// CursorPosition reports the pointer's last known page coordinates.
	CursorPosition() Point

	// WindowInfo reports the current page URL and title.
	WindowInfo(ctx context.Context) (WindowInfo, error)

	// ElementHTMLAt returns the outer HTML of the topmost element at the
	// given page coordinates, or an empty string when nothing is there.
	// Read-only; used for UI fingerprinting.
	ElementHTMLAt(ctx context.Context, x, y float64) (string, error)
}

// Channel executes canonical action descriptors against a live backend and
// answers fingerprint queries for cache verification.
type Channel interface {
	Execute(ctx context.Context, action ActionDescriptor) (*ActionResult, error)
	UIFingerprintAt(ctx context.Context, x, y float64) (string, error)
}

// TurnRole identifies who produced a conversation turn.
type TurnRole string

const (
	RoleUser  TurnRole = "user"
	RoleModel TurnRole = "model"
	RoleTool  TurnRole = "tool"
)

// ToolCall is a model-issued request to invoke one action from the offered
// vocabulary. Args carry the raw, untrusted argument map exactly as the
// provider decoded it.
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult is the outcome of one executed tool call, fed back to the model.
type ToolResult struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`

	// Image attaches PNG bytes (screenshots) to the result.
	Image []byte `json:"image,omitempty"`
}

// Turn is one entry in an agent conversation. Exactly one shape is populated
// per role: user turns carry Text and optionally Image, model turns carry
// Text and/or ToolCalls, tool turns carry ToolResults.
type Turn struct {
	Role        TurnRole     `json:"role"`
	Text        string       `json:"text,omitempty"`
	Image       []byte       `json:"image,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// ModelReply is one raw model response: free text, tool calls, or both, plus
// the provider-reported token usage for this single request/response cycle.
type ModelReply struct {
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     TokenUsage `json:"usage"`
}

// ModelClient is the narrow surface of a vision-capable, tool-using model
// provider. Implementations own transport, retry of transient failures, and
// the translation between Turn and the provider's wire format. The offered
// tool vocabulary is fixed per client, derived from AllActionKinds.
type ModelClient interface {
	Generate(ctx context.Context, system string, turns []Turn) (*ModelReply, error)
}
