// Package errs is the error taxonomy shared by the pipeline. Every failure that
// reaches an HTTP boundary carries a Kind so the caller can tell a bad request
// from an upstream outage without parsing messages.
package errs

import (
	"errors"
	"fmt"
	"log/slog"
)

// Kind classifies a failure.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindNotFound       Kind = "not_found"
	KindInvariant      Kind = "invariant_violation"
	KindUpstream       Kind = "upstream_unavailable"
	KindPersistence    Kind = "persistence"
	KindConfiguration  Kind = "configuration"
	KindRateLimited    Kind = "rate_limited"
)

// FieldError points at one invalid input field.
type FieldError struct {
	Code    string `json:"code"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  []FieldError

	// Upstream response, surfaced verbatim for gateway and analyzer failures.
	UpstreamStatus int
	UpstreamBody   string

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an unwrapped classified error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, code string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Code: code, Message: err.Error(), Err: err}
}

// Validation builds a validation failure from field errors.
func Validation(fields []FieldError) *Error {
	msg := "request validation failed"
	if len(fields) == 1 {
		msg = fields[0].Message
	}
	return &Error{Kind: KindValidation, Code: "VALIDATION_ERROR", Message: msg, Fields: fields}
}

// Upstream builds an upstream failure carrying the remote status and body.
func Upstream(code string, status int, body string, err error) *Error {
	msg := fmt.Sprintf("upstream returned status %d", status)
	if err != nil && status == 0 {
		msg = err.Error()
	}
	return &Error{Kind: KindUpstream, Code: code, Message: msg, UpstreamStatus: status, UpstreamBody: body, Err: err}
}

// KindOf reports the Kind of the first classified error in the chain.
// Unclassified errors are reported as persistence failures; they only come
// from the store layer.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindPersistence
}

// As returns the first classified error in the chain, classifying err as a
// persistence failure when nothing in the chain is.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindPersistence, Code: "INTERNAL_ERROR", Message: err.Error(), Err: err}
}

type loggable struct{ err error }

// Loggable makes slog encode the error as structured fields.
// Usage: logger.Error("msg", slog.Any("error", errs.Loggable(err)))
func Loggable(err error) slog.LogValuer { return loggable{err: err} }

func (l loggable) LogValue() slog.Value {
	if l.err == nil {
		return slog.GroupValue()
	}
	attrs := []slog.Attr{
		slog.String("message", l.err.Error()),
		slog.Any("chain", ErrorChainStrings(l.err)),
	}
	var e *Error
	if errors.As(l.err, &e) {
		attrs = append(attrs, slog.String("kind", string(e.Kind)), slog.String("code", e.Code))
		if e.UpstreamStatus != 0 {
			attrs = append(attrs, slog.Int("upstreamStatus", e.UpstreamStatus))
		}
	}
	return slog.GroupValue(attrs...)
}

// ErrorChainStrings returns the unwrap chain as strings (outer -> inner).
func ErrorChainStrings(err error) []string {
	if err == nil {
		return nil
	}
	out := make([]string, 0, 4)
	for e := err; e != nil; e = errors.Unwrap(e) {
		out = append(out, e.Error())
	}
	return out
}
