// api/schemas/test.go
package schemas

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// TestContext is the shared execution context handed to user callbacks. It
// exposes the live action channel so hooks can drive the browser directly.
type TestContext struct {
	Channel Channel
	Logger  *zap.Logger

	// Payload mirrors TestDefinition.Payload for convenient access in hooks.
	Payload json.RawMessage
}

// HookFunc is a user callback bound to a test or a suite boundary. Returning
// an error fails the scope the hook belongs to, never the whole run.
type HookFunc func(ctx context.Context, tc *TestContext) error

// TestDefinition is one natural-language test. Steps are plain instruction
// strings interpreted by the model; Payload is opaque structured data the
// model may use (credentials, fixture ids). During is the session-preparation
// callback; when Direct is set it becomes the entire test body and the model
// is never consulted.
type TestDefinition struct {
	Name    string          `json:"name"`
	Steps   []string        `json:"steps"`
	Payload json.RawMessage `json:"payload,omitempty"`

	Before HookFunc `json:"-"`
	After  HookFunc `json:"-"`
	During HookFunc `json:"-"`

	// Direct bypasses the model and the replay cache entirely: During is
	// invoked as the test body against the shared TestContext.
	Direct bool `json:"direct,omitempty"`
}

// fingerprintSeed is the hashed identity of a test. Callback bodies are
// executable logic and cannot be hashed generically, so only their presence
// participates. Changing a hook's logic without changing step text therefore
// does not invalidate a cached trace; that gap is deliberate and documented.
type fingerprintSeed struct {
	Name      string          `json:"name"`
	Steps     []string        `json:"steps"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	HasBefore bool            `json:"has_before"`
	HasAfter  bool            `json:"has_after"`
	HasDuring bool            `json:"has_during"`
}

// Fingerprint returns the deterministic content hash identifying this test's
// cacheable identity. It is pure: identical (name, steps, payload, callback
// presence) always produce the same value, across processes.
func (t *TestDefinition) Fingerprint() string {
	seed := fingerprintSeed{
		Name:      t.Name,
		Steps:     t.Steps,
		Payload:   t.Payload,
		HasBefore: t.Before != nil,
		HasAfter:  t.After != nil,
		HasDuring: t.During != nil,
	}
	// Marshal of a fixed struct with deterministic field order cannot fail
	// for these field types.
	raw, _ := json.Marshal(seed)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// TestSuite is an explicit, self-contained collection of tests for one file.
// It is constructed by the loading step and passed by value into the
// orchestrator; nothing is registered through package-level state.
type TestSuite struct {
	Name    string           `json:"name"`
	BaseURL string           `json:"base_url,omitempty"`
	Tests   []TestDefinition `json:"tests"`

	BeforeAll  HookFunc `json:"-"`
	BeforeEach HookFunc `json:"-"`
	AfterEach  HookFunc `json:"-"`
	AfterAll   HookFunc `json:"-"`
}

// VerdictStatus is the terminal outcome of one test execution.
type VerdictStatus string

const (
	VerdictPass VerdictStatus = "pass"
	VerdictFail VerdictStatus = "fail"
)

// TokenUsage accumulates provider-reported token counts across every model
// turn of one execution. Replayed runs report zero usage.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates another usage sample into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Verdict is the terminal output of one test execution.
type Verdict struct {
	Status VerdictStatus `json:"status"`
	Reason string        `json:"reason"`
	Usage  TokenUsage    `json:"usage"`
}

// Pass reports whether the verdict is a pass.
func (v Verdict) Pass() bool { return v.Status == VerdictPass }

// TestResult pairs a test name with its verdict and wall-clock duration.
type TestResult struct {
	Name     string        `json:"name"`
	Verdict  Verdict       `json:"verdict"`
	Cached   bool          `json:"cached"`
	Duration time.Duration `json:"duration"`
}

// FileResult aggregates the verdicts of one suite/file run.
type FileResult struct {
	File    string       `json:"file"`
	Results []TestResult `json:"results"`
}

// Passed reports whether every test in the file passed.
func (r FileResult) Passed() bool {
	for _, res := range r.Results {
		if !res.Verdict.Pass() {
			return false
		}
	}
	return true
}

// Counts returns the number of passed and failed tests.
func (r FileResult) Counts() (passed, failed int) {
	for _, res := range r.Results {
		if res.Verdict.Pass() {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

// String renders a one-line summary, e.g. "login.yaml: 3 passed, 1 failed".
func (r FileResult) String() string {
	passed, failed := r.Counts()
	return fmt.Sprintf("%s: %d passed, %d failed", r.File, passed, failed)
}
