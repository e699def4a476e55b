package studo

import (
	"errors"
	"fmt"
)

// Logic errors. These never become a Failed attempt.
var (
	ErrResetNotRequested = errors.New("reset completion requested before a successful reset request")
	ErrAttemptSuperseded = errors.New("attempt superseded by a newer submission")
	ErrNotSignedIn       = errors.New("no active session")
	ErrEmptySessionID    = errors.New("session id is required")
	ErrSessionChanged    = errors.New("active session changed during the request")
)

// Resumable flow errors
var (
	ErrFlowNotFound        = errors.New("oauth flow not found")
	ErrFlowExpired         = errors.New("oauth flow expired")
	ErrInvalidContinuation = errors.New("invalid oauth continuation")
)

// ErrorKind classifies why an attempt failed.
type ErrorKind string

const (
	// KindValidation is local input that never reached the network.
	KindValidation ErrorKind = "validation"
	// KindProviderRejection is a completed remote call that reported a domain failure.
	KindProviderRejection ErrorKind = "provider_rejection"
	// KindTransport is a remote call that could not complete.
	KindTransport ErrorKind = "transport"
)

// Validation error codes
const (
	ErrCodeMissingField   = "missing_field"
	ErrCodeUnknownOAuth   = "unknown_oauth_strategy"
	ErrCodeBadReturnURL   = "invalid_return_url"
	ErrCodeTransport      = "transport_failure"
	ErrCodeProviderFailed = "provider_error"
)

// FlowError is the user-visible reason a Failed attempt carries.
type FlowError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Field   string
	Err     error
}

func (e *FlowError) Error() string {
	if e.Err != nil && e.Kind == KindTransport {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FlowError) Unwrap() error { return e.Err }

// NewValidationError reports bad local input.
func NewValidationError(code, message, field string) *FlowError {
	return &FlowError{Kind: KindValidation, Code: code, Message: message, Field: field}
}

// ProviderErrorDetail is one entry of a provider error response.
type ProviderErrorDetail struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	LongMessage string `json:"long_message,omitempty"`
	Param       string `json:"param,omitempty"`
}

// ProviderError is a domain failure reported by the identity provider.
type ProviderError struct {
	Status int                   `json:"-"`
	Errors []ProviderErrorDetail `json:"errors"`
}

// NewProviderError builds a single-entry ProviderError.
func NewProviderError(status int, code, message string) *ProviderError {
	return &ProviderError{Status: status, Errors: []ProviderErrorDetail{{Code: code, Message: message}}}
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("identity provider rejected request (HTTP %d): %s", e.Status, e.FirstMessage())
}

// FirstMessage is the message shown to the user.
func (e *ProviderError) FirstMessage() string {
	if len(e.Errors) == 0 {
		return "Request failed"
	}
	return e.Errors[0].Message
}

// FirstCode returns the code of the first reported error.
func (e *ProviderError) FirstCode() string {
	if len(e.Errors) == 0 {
		return ""
	}
	return e.Errors[0].Code
}

// classifyError maps anything returned by an IdentityProvider onto a FlowError.
// Provider rejections and transport failures are treated the same by callers;
// only the kind differs.
func classifyError(err error) *FlowError {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return &FlowError{
			Kind:    KindProviderRejection,
			Code:    pe.FirstCode(),
			Message: pe.FirstMessage(),
			Field:   firstParam(pe),
			Err:     err,
		}
	}
	return &FlowError{
		Kind:    KindTransport,
		Code:    ErrCodeTransport,
		Message: "Could not reach the identity service. Please try again.",
		Err:     err,
	}
}

func firstParam(pe *ProviderError) string {
	if len(pe.Errors) == 0 {
		return ""
	}
	return pe.Errors[0].Param
}

// IsValidationError reports whether err is a local validation failure.
func IsValidationError(err error) bool {
	var fe *FlowError
	return errors.As(err, &fe) && fe.Kind == KindValidation
}

// IsProviderRejection reports whether err is a provider-side domain failure.
func IsProviderRejection(err error) bool {
	var fe *FlowError
	return errors.As(err, &fe) && fe.Kind == KindProviderRejection
}

// IsTransportFailure reports whether err is a transport failure.
func IsTransportFailure(err error) bool {
	var fe *FlowError
	return errors.As(err, &fe) && fe.Kind == KindTransport
}
