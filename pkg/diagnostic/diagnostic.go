// Package diagnostic implements the pipeline's Diagnostic Accumulator: a
// per-request, append-only collector of structured events, generalized
// from the teacher's trace.Writer to the stage/gate/reference event types
// the execution pipeline needs. Entries are never mutated once appended —
// the accumulator is the audit trail for one request's lifetime.
package diagnostic

import (
	"encoding/json"
	"io"
	"time"
)

// Severity classifies a diagnostic entry.
type Severity string

const (
	Debug Severity = "debug"
	Info  Severity = "info"
	Warn  Severity = "warn"
	Error Severity = "error"
)

// Entry is one diagnostic record. Data carries event-specific detail
// (stage duration, gate id, reference chain, ...).
type Entry struct {
	Severity  Severity       `json:"severity"`
	Source    string         `json:"source"` // stage name, "gate", "reference", ...
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Accumulator collects diagnostics for the lifetime of one Execution
// Context. It is single-owner (the request goroutine) and needs no
// locking, per spec §5.
type Accumulator struct {
	entries []Entry
}

// New returns an empty accumulator.
func New() *Accumulator {
	return &Accumulator{}
}

// Add appends a diagnostic entry.
func (a *Accumulator) Add(sev Severity, source, message string, data map[string]any) {
	a.entries = append(a.entries, Entry{
		Severity:  sev,
		Source:    source,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}

// Debugf, Infof, Warnf, Errorf are convenience wrappers over Add that skip
// building a map literal at call sites with no structured data.
func (a *Accumulator) Debugf(source, message string) { a.Add(Debug, source, message, nil) }
func (a *Accumulator) Infof(source, message string)  { a.Add(Info, source, message, nil) }
func (a *Accumulator) Warnf(source, message string)  { a.Add(Warn, source, message, nil) }
func (a *Accumulator) Errorf(source, message string) { a.Add(Error, source, message, nil) }

// StageTiming records one pipeline stage's execution as required by spec
// §4.1: "{name, duration_ms, memory_delta}".
func (a *Accumulator) StageTiming(name string, duration time.Duration, memoryDelta int64) {
	a.Add(Debug, "stage", name+" executed", map[string]any{
		"duration_ms":  duration.Milliseconds(),
		"memory_delta": memoryDelta,
	})
}

// Entries returns the accumulated entries in append order. The slice is
// the accumulator's own backing slice, not a copy; callers must not
// mutate it.
func (a *Accumulator) Entries() []Entry {
	return a.entries
}

// HasErrors reports whether any entry was recorded at Error severity.
func (a *Accumulator) HasErrors() bool {
	for _, e := range a.entries {
		if e.Severity == Error {
			return true
		}
	}
	return false
}

// WriteJSONL writes every entry to w as newline-delimited JSON, in the
// same wire shape as the teacher's trace.Writer JSONL stream.
func (a *Accumulator) WriteJSONL(w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, e := range a.entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}
