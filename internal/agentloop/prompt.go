// internal/agentloop/prompt.go
package agentloop

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/specter-cli/api/schemas"
)

const systemPrompt = `You are an automated QA engineer driving a real web browser through the provided tools.

You receive a test with ordered natural-language steps. Work through the steps in order, using tool calls to interact with the page. Take a screenshot whenever you need to see the current page state before choosing coordinates. Coordinates are CSS pixels in the visible viewport.

Rules:
- Issue tool calls until every step is complete or a step is demonstrably impossible.
- When typing credentials or other secrets from the test payload, set "masked" to true.
- Judge the outcome against what the steps ask for, based on what you actually observe.

When you are done, reply with no tool call and exactly one JSON object of the form:
{"result": "pass", "reason": "<short explanation>"}
or
{"result": "fail", "reason": "<short explanation>"}`

// nudgeText is sent when a model turn contains neither a tool call nor a
// parsable verdict object.
const nudgeText = `Your last reply contained no tool call and no verdict. Either call a tool to continue the test, or finish with a single JSON object: {"result": "pass"|"fail", "reason": "..."}.`

// initialTurnText describes the test to the model. Callback presence is
// stated so the model knows setup/teardown it cannot see may have run.
func initialTurnText(test *schemas.TestDefinition) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Test: %s\n\nSteps:\n", test.Name)
	for i, step := range test.Steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}

	if len(test.Payload) > 0 {
		fmt.Fprintf(&b, "\nTest payload (may contain credentials or fixture data):\n%s\n", string(test.Payload))
	}

	var hooks []string
	if test.Before != nil {
		hooks = append(hooks, "before")
	}
	if test.During != nil {
		hooks = append(hooks, "during")
	}
	if test.After != nil {
		hooks = append(hooks, "after")
	}
	if len(hooks) > 0 {
		fmt.Fprintf(&b, "\nThis test has user-defined %s callbacks; page state they created is already applied.\n", strings.Join(hooks, "/"))
	}

	b.WriteString("\nA screenshot of the current page is attached. Begin with step 1.")
	return b.String()
}
