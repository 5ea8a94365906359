package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies gateway errors so callers can map them without
// inspecting message text.
type ErrorKind string

const (
	KindValidation             ErrorKind = "validation"
	KindUnsupportedCombination ErrorKind = "unsupported_combination"
	KindPayloadEncoding        ErrorKind = "payload_encoding"
	KindTransport              ErrorKind = "transport"
	KindProviderRejection      ErrorKind = "provider_rejection"
	KindInvalidExtendSource    ErrorKind = "invalid_extend_source"
	KindNotFound               ErrorKind = "not_found"
	KindStorage                ErrorKind = "storage"
	KindConfiguration          ErrorKind = "configuration"
)

// Common errors
var (
	ErrTaskNotFound        = errors.New("task not found")
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// Error is the structured error returned by every gateway operation.
type Error struct {
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
	Field    string    `json:"field,omitempty"`
	Endpoint string    `json:"endpoint,omitempty"`
	Provider Provider  `json:"provider,omitempty"`

	// StatusCode and Body carry the raw upstream response for
	// provider_rejection and, when a response was partially read, transport.
	StatusCode int    `json:"status_code,omitempty"`
	Body       []byte `json:"body,omitempty"`

	Err error `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s (field %q)", msg, e.Field)
	}
	if e.Endpoint != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Endpoint)
	}
	if e.Provider != "" {
		msg = fmt.Sprintf("[%s] %s", e.Provider, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a gateway error, or "" when err is not one.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is a gateway error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// NewValidationError reports a malformed request field.
func NewValidationError(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

// NewUnsupportedCombinationError reports a parameter tuple missing from the catalog.
func NewUnsupportedCombinationError(message string) *Error {
	return &Error{Kind: KindUnsupportedCombination, Message: message}
}

// NewPayloadEncodingError reports a field that could not be encoded for an endpoint.
func NewPayloadEncodingError(field, endpoint string, err error) *Error {
	return &Error{
		Kind:     KindPayloadEncoding,
		Message:  "cannot encode payload",
		Field:    field,
		Endpoint: endpoint,
		Err:      err,
	}
}

// NewTransportError reports an outbound request that got no usable response.
func NewTransportError(provider Provider, endpoint string, err error) *Error {
	return &Error{
		Kind:     KindTransport,
		Message:  "provider unreachable",
		Provider: provider,
		Endpoint: endpoint,
		Err:      err,
	}
}

// NewConfigurationError reports a provider request that could not be
// prepared locally, such as an unusable credential. Nothing was sent.
func NewConfigurationError(provider Provider, endpoint string, err error) *Error {
	return &Error{
		Kind:     KindConfiguration,
		Message:  "provider misconfigured",
		Provider: provider,
		Endpoint: endpoint,
		Err:      err,
	}
}

// NewProviderRejectionError reports a response whose success discriminator failed.
func NewProviderRejectionError(provider Provider, endpoint string, statusCode int, body []byte, message string) *Error {
	if message == "" {
		message = "provider rejected request"
	}
	return &Error{
		Kind:       KindProviderRejection,
		Message:    message,
		Provider:   provider,
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Body:       body,
	}
}

// NewInvalidExtendSourceError reports an extend request on an ineligible task.
func NewInvalidExtendSourceError(localTaskID, reason string) *Error {
	return &Error{
		Kind:    KindInvalidExtendSource,
		Message: fmt.Sprintf("task %s cannot be extended: %s", localTaskID, reason),
	}
}

// NewNotFoundError reports an unknown local task id.
func NewNotFoundError(localTaskID string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("task %s", localTaskID),
		Err:     ErrTaskNotFound,
	}
}

// NewStorageError wraps a failure of the persistence collaborator.
func NewStorageError(op string, err error) *Error {
	return &Error{Kind: KindStorage, Message: op, Err: err}
}
