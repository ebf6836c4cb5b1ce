// api/schemas/trace.go
package schemas

import "time"

// TraceFormatVersion is bumped whenever the persisted trace layout changes in
// a way old readers cannot handle. A mismatch purges the cache namespace
// wholesale; there is no partial migration.
const TraceFormatVersion = 1

// TraceStep is one recorded action plus the result metadata needed to verify
// it later. Only pointer-targeted steps carry a UIFingerprint.
type TraceStep struct {
	Action        ActionDescriptor `json:"action"`
	UIFingerprint string           `json:"ui_fingerprint,omitempty"`
}

// Trace is the ordered, replayable action sequence recorded from one
// successful model-driven run. It is stored under the owning test's
// fingerprint and replayed strictly in order.
type Trace struct {
	Version     int         `json:"version"`
	Fingerprint string      `json:"fingerprint"`
	CreatedAt   time.Time   `json:"created_at"`
	Steps       []TraceStep `json:"steps"`
}

// NewTrace builds a current-version trace for the given fingerprint.
func NewTrace(fingerprint string, steps []TraceStep) *Trace {
	return &Trace{
		Version:     TraceFormatVersion,
		Fingerprint: fingerprint,
		CreatedAt:   time.Now().UTC(),
		Steps:       steps,
	}
}
