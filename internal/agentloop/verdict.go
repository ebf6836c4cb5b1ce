// internal/agentloop/verdict.go
package agentloop

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/specter-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Models often wrap their final answer in a markdown code fence.
var jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// verdictPayload is the structured result the model is instructed to emit.
type verdictPayload struct {
	Result string `json:"result"`
	Reason string `json:"reason"`
}

// extractVerdict scans free-form model text for the first well-formed
// delimited JSON object and parses it as a verdict. Returns (nil, nil) when
// the text contains no candidate object at all; the loop then nudges the
// model instead of failing. A candidate that does not parse into a pass/fail
// result is an *AIError with ErrInvalidResponse.
func extractVerdict(text string) (*schemas.Verdict, error) {
	candidate := firstJSONObject(text)
	if candidate == "" {
		if matches := jsonBlockRegex.FindStringSubmatch(text); len(matches) > 1 {
			candidate = strings.TrimSpace(matches[1])
		}
	}
	if candidate == "" {
		return nil, nil
	}

	var payload verdictPayload
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		return nil, &AIError{
			Code:   ErrInvalidResponse,
			Detail: "could not parse verdict object",
			Err:    err,
		}
	}

	switch strings.ToLower(payload.Result) {
	case string(schemas.VerdictPass):
		return &schemas.Verdict{Status: schemas.VerdictPass, Reason: payload.Reason}, nil
	case string(schemas.VerdictFail):
		return &schemas.Verdict{Status: schemas.VerdictFail, Reason: payload.Reason}, nil
	default:
		return nil, &AIError{
			Code:   ErrInvalidResponse,
			Detail: fmt.Sprintf("verdict result %q is neither pass nor fail", payload.Result),
		}
	}
}

// firstJSONObject returns the first balanced {...} span in the text,
// tracking string literals and escapes so braces inside reason text do not
// confuse the scan. Empty when no balanced object exists.
func firstJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}
