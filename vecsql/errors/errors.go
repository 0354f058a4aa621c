package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an error so callers can branch on it without string
// matching. Parse and planning errors are fatal to a compile attempt;
// execution errors may be tolerated under a best-effort failure policy.
type Kind string

const (
	KindParse     Kind = "parse"
	KindPlan      Kind = "plan"
	KindExecution Kind = "execution"
	KindSchema    Kind = "schema"
)

// Error is the single error type raised by vecsql. It carries enough
// structured context (token, field, collection) to be displayed without a
// stack trace.
type Error struct {
	Kind       Kind
	Message    string
	Token      string // offending token text, parse errors only
	Pos        int    // byte offset of Token in the query text
	Field      string // offending field reference, planning errors
	Collection string // offending collection, execution errors
	Cause      error
}

func (e *Error) Error() string {
	base := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Token != "" {
		base = fmt.Sprintf("%s (token=%q pos=%d)", base, e.Token, e.Pos)
	}
	if e.Field != "" {
		base = fmt.Sprintf("%s (field=%s)", base, e.Field)
	}
	if e.Collection != "" {
		base = fmt.Sprintf("%s (collection=%s)", base, e.Collection)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", base, e.Cause)
	}
	return base
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Parse builds a parse error anchored at a token.
func Parse(msg, token string, pos int) *Error {
	return &Error{Kind: KindParse, Message: msg, Token: token, Pos: pos}
}

// Planf builds a planning error with a formatted message.
func Planf(format string, args ...any) *Error {
	return &Error{Kind: KindPlan, Message: fmt.Sprintf(format, args...)}
}

// PlanField builds a planning error naming the offending field.
func PlanField(msg, field string) *Error {
	return &Error{Kind: KindPlan, Message: msg, Field: field}
}

// Execution builds an execution error naming the offending collection.
func Execution(collection, msg string, cause error) *Error {
	return &Error{Kind: KindExecution, Message: msg, Collection: collection, Cause: cause}
}

func Schema(msg string) *Error { return &Error{Kind: KindSchema, Message: msg} }

// IsKind reports whether err is (or wraps) a vecsql error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
