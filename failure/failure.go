package failure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Record is one observed failure. Records are append-only: created when the
// engine catches a strategy error, never mutated afterward.
type Record struct {
	ID           string
	Timestamp    time.Time
	ErrorType    string
	ErrorMessage string
	Operation    string
	Strategy     string // "default" when run without named alternatives
	Context      map[string]any
}

// Pattern classifies the shape of recent failures for an operation.
type Pattern int

const (
	// PatternNone means insufficient data or no pattern matched.
	PatternNone Pattern = iota
	// PatternRepeating means the same (error type, strategy) keeps failing.
	PatternRepeating
	// PatternCascading means error types vary across consecutive failures,
	// suggesting a shared dependency is the root cause.
	PatternCascading
	// PatternIntermittent means failures and successes interleave.
	PatternIntermittent
	// PatternPermanent means no success since the first recorded failure.
	PatternPermanent
	// PatternUnstableService means one strategy's target produces many
	// distinct error types.
	PatternUnstableService
)

// String returns the string representation of the pattern.
func (p Pattern) String() string {
	switch p {
	case PatternNone:
		return "none"
	case PatternRepeating:
		return "repeating"
	case PatternCascading:
		return "cascading"
	case PatternIntermittent:
		return "intermittent"
	case PatternPermanent:
		return "permanent"
	case PatternUnstableService:
		return "unstable_service"
	default:
		return "unknown"
	}
}

// RootCause describes the likely cause behind a detected pattern.
type RootCause struct {
	Description string
	Evidence    []string
}

// Analysis is the result of pattern detection over an operation's recent
// failures. Derived on demand, never persisted.
type Analysis struct {
	Pattern         Pattern
	RootCause       RootCause
	Recommendations []string
}

// BlacklistEntry marks a (strategy, operation) pair as excluded from future
// attempts.
type BlacklistEntry struct {
	Strategy      string
	Operation     string
	Reason        string
	FailureCount  int
	FirstFailedAt time.Time
	LastFailedAt  time.Time

	// ExpiresAt, when non-zero, makes the entry lapse after a cooldown.
	ExpiresAt time.Time
}

// Expired reports whether the entry's cooldown has elapsed.
func (e *BlacklistEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// TypedError attaches an explicit classification to an error, overriding
// the type name the analyzer would otherwise derive.
type TypedError struct {
	Type string
	Err  error
}

// Typed wraps err with an explicit error type.
func Typed(errType string, err error) error {
	return &TypedError{Type: errType, Err: err}
}

func (e *TypedError) Error() string {
	if e.Err == nil {
		return e.Type
	}
	return e.Err.Error()
}

func (e *TypedError) Unwrap() error { return e.Err }

// ErrorType returns the explicit classification.
func (e *TypedError) ErrorType() string { return e.Type }

// ErrorTypeOf derives a stable error type string from err. Explicit
// classifications (TypedError or anything with an ErrorType method) win;
// context errors map to "timeout" and "canceled"; otherwise the concrete
// type name is used, with the anonymous errors.New/fmt.Errorf types
// collapsed to "error".
func ErrorTypeOf(err error) string {
	if err == nil {
		return ""
	}

	var typed interface{ ErrorType() string }
	if errors.As(err, &typed) {
		return typed.ErrorType()
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}

	t := fmt.Sprintf("%T", err)
	switch t {
	case "*errors.errorString", "*fmt.wrapError", "*errors.joinError":
		return "error"
	}
	return strings.TrimPrefix(t, "*")
}
