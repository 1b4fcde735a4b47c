// Package errors classifies pipeline failures into the closed taxonomy
// from spec.md §7, so handlers, the worker loop and the CLI can decide
// retry/exit behavior from the error's Kind rather than string matching.
package errors

import (
	"errors"
	"fmt"
)

// Kind is one of the five error categories spec.md §7 defines.
type Kind string

const (
	// Transient covers network timeouts and temporary filesystem errors.
	// The reconciler will pick these up; never retried inline.
	Transient Kind = "transient"
	// PermanentPerDocument covers corrupt PDFs and OCR crashes on both
	// backends. Recorded in the failure manifest; the coordinator
	// observes the gap via counters and proceeds.
	PermanentPerDocument Kind = "permanent_per_document"
	// Configuration covers unknown extractor labels, missing plugins and
	// malformed pipeline JSON. Never auto-retried.
	Configuration Kind = "configuration"
	// Consistency covers counter invariant violations (e.g.
	// ocr_completed > ocr_total). The reconciler re-derives from disk.
	Consistency Kind = "consistency"
	// Fatal covers an unreachable central store or queue. The worker
	// exits non-zero and relies on an external supervisor to restart it.
	Fatal Kind = "fatal"
)

// Error wraps an underlying cause with a Kind and optional structured
// context, so callers can both errors.Is/As against the cause and render
// the domain context (pdf_path, page_number, backend, ...) in logs.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error of the given kind.
func New(kind Kind, message string, cause error, context map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause, Context: context}
}

// KindOf extracts the Kind of err, defaulting to Fatal for errors this
// package did not itself originate — an unclassified error is the worst
// case and should not be silently retried forever.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Fatal
}

// Retryable reports whether the reconciler should consider this error
// eligible for automatic retry. Configuration and Fatal errors are not;
// everything else is left to the reconciler's own stuck-site detection.
func Retryable(err error) bool {
	switch KindOf(err) {
	case Configuration, Fatal:
		return false
	default:
		return true
	}
}

// SanitizeMessage strips anything that looks like a credential or
// connection string before an error message is persisted to the central
// store, mirroring the teacher's SanitizeErrorMessage in
// internal/reconciler/manager.go.
func SanitizeMessage(msg string) string {
	redacted := msg
	for _, marker := range []string{"password=", "Password=", "://", "Authorization:"} {
		if idx := indexOf(redacted, marker); idx >= 0 {
			end := idx + len(marker)
			stop := end
			for stop < len(redacted) && redacted[stop] != ' ' && redacted[stop] != '&' {
				stop++
			}
			redacted = redacted[:end] + "[redacted]" + redacted[stop:]
		}
	}
	return redacted
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
