package common

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced by the messaging pipeline.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindConfiguration Kind = "configuration"
	KindTransport     Kind = "transport"
	KindTemplate      Kind = "template"
	KindSend          Kind = "send"
)

// Sentinels matched through errors.Is against any *Error of the same kind.
var (
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrTransport     = errors.New("transport error")
	ErrTemplate      = errors.New("template error")
	ErrSend          = errors.New("send error")
)

var kindSentinels = map[Kind]error{
	KindValidation:    ErrValidation,
	KindConfiguration: ErrConfiguration,
	KindTransport:     ErrTransport,
	KindTemplate:      ErrTemplate,
	KindSend:          ErrSend,
}

var kindCodes = map[Kind]string{
	KindValidation:    "VALIDATION_ERROR",
	KindConfiguration: "CONFIGURATION_ERROR",
	KindTransport:     "TRANSPORT_ERROR",
	KindTemplate:      "TEMPLATE_ERROR",
	KindSend:          "SEND_ERROR",
}

// Error is the single concrete error type of the taxonomy. Transport is only
// populated for KindTransport. Err keeps the original cause reachable through
// errors.Is/As.
type Error struct {
	Kind      Kind
	Message   string
	Transport string
	Details   map[string]any
	Err       error
}

func (e *Error) Error() string {
	if e.Transport != "" {
		return fmt.Sprintf("%s [%s]", e.Message, e.Transport)
	}
	return e.Message
}

// Unwrap exposes the cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinel so callers can write errors.Is(err, ErrTemplate).
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// Code returns the stable machine readable code of the error kind.
func (e *Error) Code() string { return kindCodes[e.Kind] }

// NewValidation reports an envelope that failed content or format rules.
func NewValidation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewConfiguration reports a missing or unsafe piece of configuration.
func NewConfiguration(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// NewTransport reports a provider failure for the named transport.
func NewTransport(transport, message string, cause error) *Error {
	e := &Error{Kind: KindTransport, Message: message, Transport: transport, Err: cause}
	if cause != nil {
		e.Details = map[string]any{"original_error": cause.Error()}
	}
	return e
}

// NewTemplate reports a template lookup, compile, fetch or content failure.
func NewTemplate(message string, details map[string]any, cause error) *Error {
	return &Error{Kind: KindTemplate, Message: message, Details: details, Err: cause}
}

// NewSend wraps a failure that does not belong to any other kind.
func NewSend(cause error) *Error {
	msg := "Error sending message"
	if cause != nil {
		msg = fmt.Sprintf("Error sending message: %v", cause)
	}
	return &Error{Kind: KindSend, Message: msg, Err: cause}
}

// AsError extracts the taxonomy error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of the first taxonomy error in err's chain, or the
// empty kind when there is none.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return ""
}

// HTTPStatusError records a non-successful HTTP response from a provider or a
// remote template source.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http status %d", e.StatusCode)
	}
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}
