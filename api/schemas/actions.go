// api/schemas/actions.go
package schemas

import "fmt"

// ActionKind enumerates the closed vocabulary of browser actions the runner
// can dispatch. The set is intentionally small and flat: every kind maps 1:1
// onto a tool the model may call and onto a dispatch branch in the channel.
type ActionKind string

const (
	ActionClick          ActionKind = "click"
	ActionDoubleClick    ActionKind = "double_click"
	ActionType           ActionKind = "type"
	ActionKeyPress       ActionKind = "key_press"
	ActionMouseMove      ActionKind = "mouse_move"
	ActionDrag           ActionKind = "drag"
	ActionScreenshot     ActionKind = "screenshot"
	ActionNavigate       ActionKind = "navigate"
	ActionSleep          ActionKind = "sleep"
	ActionScroll         ActionKind = "scroll"
	ActionCursorPosition ActionKind = "cursor_position"
)

// AllActionKinds lists every supported kind, in a stable order. The tool
// schema offered to the model is generated from this slice.
var AllActionKinds = []ActionKind{
	ActionClick,
	ActionDoubleClick,
	ActionType,
	ActionKeyPress,
	ActionMouseMove,
	ActionDrag,
	ActionScreenshot,
	ActionNavigate,
	ActionSleep,
	ActionScroll,
	ActionCursorPosition,
}

// ActionDescriptor is the canonical, serializable form of one browser action.
// It is a tagged variant: Kind selects the branch, and only the fields that
// branch requires are meaningful. Coordinates are pointers so that "absent"
// and "0,0" stay distinguishable when a descriptor arrives from model output.
type ActionDescriptor struct {
	Kind ActionKind `json:"kind"`

	// Pointer target for click / double_click / mouse_move / scroll, and the
	// drag start point.
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`

	// Drag end point.
	ToX *float64 `json:"to_x,omitempty"`
	ToY *float64 `json:"to_y,omitempty"`

	// Text for "type". Masked marks secrets; the value is carried for replay
	// but must never be logged verbatim.
	Text   string `json:"text,omitempty"`
	Masked bool   `json:"masked,omitempty"`

	// Key name for "key_press"; resolved through the synonym table before
	// dispatch ("return" and "enter" are the same key).
	Key string `json:"key,omitempty"`

	// Target for "navigate".
	URL string `json:"url,omitempty"`

	// Duration for "sleep".
	DurationMs int `json:"duration_ms,omitempty"`

	// Scroll delta for "scroll". Positive DeltaY scrolls down.
	DeltaY int `json:"delta_y,omitempty"`
}

// Validate checks the per-kind required-field set. It returns the name of the
// first missing field, or an error for an unknown kind. A nil error means the
// descriptor is dispatchable.
func (d ActionDescriptor) Validate() (missing string, err error) {
	switch d.Kind {
	case ActionClick, ActionDoubleClick, ActionMouseMove, ActionScroll:
		if d.X == nil || d.Y == nil {
			return "x,y", nil
		}
	case ActionDrag:
		if d.X == nil || d.Y == nil {
			return "x,y", nil
		}
		if d.ToX == nil || d.ToY == nil {
			return "to_x,to_y", nil
		}
	case ActionType:
		if d.Text == "" {
			return "text", nil
		}
	case ActionKeyPress:
		if d.Key == "" {
			return "key", nil
		}
	case ActionNavigate:
		if d.URL == "" {
			return "url", nil
		}
	case ActionSleep:
		if d.DurationMs <= 0 {
			return "duration_ms", nil
		}
	case ActionScreenshot, ActionCursorPosition:
		// No arguments.
	default:
		return "", fmt.Errorf("unknown action kind %q", d.Kind)
	}
	return "", nil
}

// PointerTargeted reports whether the action is aimed at specific page
// coordinates. Only pointer-targeted steps carry a UI fingerprint in a trace
// and only they are verified against the live page during replay.
func (d ActionDescriptor) PointerTargeted() bool {
	switch d.Kind {
	case ActionClick, ActionDoubleClick, ActionDrag:
		return true
	}
	return false
}

// Summary renders a short human-readable description suitable for logs.
// Masked text is redacted.
func (d ActionDescriptor) Summary() string {
	switch d.Kind {
	case ActionClick, ActionDoubleClick, ActionMouseMove, ActionScroll:
		if d.X != nil && d.Y != nil {
			return fmt.Sprintf("%s at (%.0f, %.0f)", d.Kind, *d.X, *d.Y)
		}
	case ActionDrag:
		if d.X != nil && d.Y != nil && d.ToX != nil && d.ToY != nil {
			return fmt.Sprintf("drag (%.0f, %.0f) -> (%.0f, %.0f)", *d.X, *d.Y, *d.ToX, *d.ToY)
		}
	case ActionType:
		if d.Masked {
			return "type [redacted]"
		}
		return fmt.Sprintf("type %q", d.Text)
	case ActionKeyPress:
		return fmt.Sprintf("press %q", d.Key)
	case ActionNavigate:
		return fmt.Sprintf("navigate to %s", d.URL)
	case ActionSleep:
		return fmt.Sprintf("sleep %dms", d.DurationMs)
	}
	return string(d.Kind)
}

// Point is a page coordinate in CSS pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// WindowInfo describes the visible page at the moment an action completed.
type WindowInfo struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// ActionResult is the canonical outcome of one executed descriptor. Message
// is free text addressed to the model; the metadata fields keep the agent
// oriented without forcing a screenshot after every step.
type ActionResult struct {
	Message string `json:"message"`

	// PNG bytes, only populated for the screenshot action and for the initial
	// page snapshot.
	Screenshot []byte `json:"screenshot,omitempty"`

	Window *WindowInfo `json:"window,omitempty"`
	Cursor *Point      `json:"cursor,omitempty"`

	// UIFingerprint is the structural signature of the element under the
	// pointer target, populated for pointer-targeted actions. It exists only
	// to detect UI drift between a recorded trace and the live page.
	UIFingerprint string `json:"ui_fingerprint,omitempty"`
}
