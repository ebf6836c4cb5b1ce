// internal/llmclient/tools.go
package llmclient

import (
	"google.golang.org/genai"

	"github.com/xkilldash9x/specter-cli/api/schemas"
)

// toolParam describes one argument of an action tool.
type toolParam struct {
	name        string
	schema      *genai.Schema
	required    bool
	description string
}

func numberParam(name, description string) toolParam {
	return toolParam{
		name:     name,
		required: true,
		schema:   &genai.Schema{Type: genai.TypeNumber, Description: description},
	}
}

// actionToolSpecs maps every action kind to its declared arguments. This is
// the single source of the tool vocabulary offered to the model; the channel
// enforces the same required-field sets at dispatch time.
var actionToolSpecs = map[schemas.ActionKind]struct {
	description string
	params      []toolParam
}{
	schemas.ActionClick: {
		description: "Click the left mouse button at the given page coordinates.",
		params: []toolParam{
			numberParam("x", "Page X coordinate in CSS pixels."),
			numberParam("y", "Page Y coordinate in CSS pixels."),
		},
	},
	schemas.ActionDoubleClick: {
		description: "Double click the left mouse button at the given page coordinates.",
		params: []toolParam{
			numberParam("x", "Page X coordinate in CSS pixels."),
			numberParam("y", "Page Y coordinate in CSS pixels."),
		},
	},
	schemas.ActionType: {
		description: "Type text into the currently focused element.",
		params: []toolParam{
			{name: "text", required: true, schema: &genai.Schema{Type: genai.TypeString, Description: "The text to type."}},
			{name: "masked", schema: &genai.Schema{Type: genai.TypeBoolean, Description: "Set true for secrets so the value is never logged."}},
		},
	},
	schemas.ActionKeyPress: {
		description: "Press a single named key, e.g. enter, tab, escape, arrowdown.",
		params: []toolParam{
			{name: "key", required: true, schema: &genai.Schema{Type: genai.TypeString, Description: "Key name."}},
		},
	},
	schemas.ActionMouseMove: {
		description: "Move the mouse pointer to the given page coordinates without clicking.",
		params: []toolParam{
			numberParam("x", "Page X coordinate in CSS pixels."),
			numberParam("y", "Page Y coordinate in CSS pixels."),
		},
	},
	schemas.ActionDrag: {
		description: "Press at the start coordinates, drag to the end coordinates and release.",
		params: []toolParam{
			numberParam("x", "Drag start X coordinate."),
			numberParam("y", "Drag start Y coordinate."),
			numberParam("to_x", "Drag end X coordinate."),
			numberParam("to_y", "Drag end Y coordinate."),
		},
	},
	schemas.ActionScreenshot: {
		description: "Capture a screenshot of the current viewport. Use it to see the page before deciding coordinates.",
	},
	schemas.ActionNavigate: {
		description: "Navigate the page to an absolute URL.",
		params: []toolParam{
			{name: "url", required: true, schema: &genai.Schema{Type: genai.TypeString, Description: "Absolute URL to load."}},
		},
	},
	schemas.ActionSleep: {
		description: "Wait for the given number of milliseconds before the next action.",
		params: []toolParam{
			{name: "duration_ms", required: true, schema: &genai.Schema{Type: genai.TypeInteger, Description: "Milliseconds to wait."}},
		},
	},
	schemas.ActionScroll: {
		description: "Scroll the page with the mouse wheel at the given coordinates. Positive delta_y scrolls down.",
		params: []toolParam{
			numberParam("x", "Page X coordinate in CSS pixels."),
			numberParam("y", "Page Y coordinate in CSS pixels."),
			{name: "delta_y", required: true, schema: &genai.Schema{Type: genai.TypeInteger, Description: "Scroll delta in pixels, positive is down."}},
		},
	},
	schemas.ActionCursorPosition: {
		description: "Report the current mouse cursor position.",
	},
}

// actionTools builds the function-calling tool set from the action
// vocabulary, in the stable order of AllActionKinds.
func actionTools() []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(schemas.AllActionKinds))
	for _, kind := range schemas.AllActionKinds {
		spec := actionToolSpecs[kind]

		params := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: map[string]*genai.Schema{},
		}
		for _, p := range spec.params {
			params.Properties[p.name] = p.schema
			if p.required {
				params.Required = append(params.Required, p.name)
			}
		}

		decl := &genai.FunctionDeclaration{
			Name:        string(kind),
			Description: spec.description,
		}
		if len(spec.params) > 0 {
			decl.Parameters = params
		}
		decls = append(decls, decl)
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}
