package bibinject

import (
	"errors"
	"fmt"
)

// Sentinel errors for library operations.
var (
	ErrEmptyBibTeX = errors.New("bibtex content cannot be empty")

	// Parser errors.
	ErrUnterminatedValue = errors.New("unterminated value")
	ErrDuplicateKey      = errors.New("duplicate key")
	ErrMissingKey        = errors.New("missing key")

	// Formatter errors.
	ErrUnknownStyle = errors.New("unknown style")
	ErrInvalidOrder = errors.New("invalid order")
	ErrNoTemplate   = errors.New("no template for entry type")

	// Injector errors.
	ErrAnchorNotFound  = errors.New("anchor element not found")
	ErrAnchorAmbiguous = errors.New("anchor id is not unique")
	ErrNoInnerSpan     = errors.New("anchor has no replaceable inner span")
)

// ParseError reports a structural failure in BibTeX input.
// It wraps one of the parser sentinels so callers can match with errors.Is.
type ParseError struct {
	Line   int    // 1-based line of the failure
	Offset int    // byte offset into the input
	Reason string // human-readable context
	Err    error  // ErrUnterminatedValue, ErrDuplicateKey, or ErrMissingKey
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d: %v: %s", e.Line, e.Err, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FormatError reports a failure of the formatting stage as a whole.
// Field-level problems become FieldWarnings instead and never abort the run.
type FormatError struct {
	Style  string // style name in effect
	Reason string
	Err    error // ErrUnknownStyle, ErrInvalidOrder, or ErrNoTemplate
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("format error (style %q): %v: %s", e.Style, e.Err, e.Reason)
}

func (e *FormatError) Unwrap() error { return e.Err }

// InjectionError reports a failure to locate a usable anchor element.
type InjectionError struct {
	AnchorID string
	Err      error // ErrAnchorNotFound, ErrAnchorAmbiguous, or ErrNoInnerSpan
}

func (e *InjectionError) Error() string {
	return fmt.Sprintf("injection error for anchor %q: %v", e.AnchorID, e.Err)
}

func (e *InjectionError) Unwrap() error { return e.Err }

// FieldWarning records a non-fatal, field-level problem: a malformed field
// stored raw, an unresolved cross-reference, or a missing sort/group field.
// Warnings accumulate; they never block processing of other entries.
type FieldWarning struct {
	Key    string // citation key of the affected entry
	Field  string // field name, empty for entry-level conditions
	Reason string
}

func (w FieldWarning) String() string {
	if w.Field == "" {
		return fmt.Sprintf("%s: %s", w.Key, w.Reason)
	}
	return fmt.Sprintf("%s.%s: %s", w.Key, w.Field, w.Reason)
}
