package studo

import (
	"strings"
)

// Credentials are held only until a sign-in is submitted.
type Credentials struct {
	Identifier string
	Password   string
}

// Validate checks that both fields were filled in. Values are not trimmed;
// the provider decides what a valid identifier or password looks like.
func (c Credentials) Validate() *FlowError {
	if c.Identifier == "" {
		return NewValidationError(ErrCodeMissingField, "Email address is required", "identifier")
	}
	if c.Password == "" {
		return NewValidationError(ErrCodeMissingField, "Password is required", "password")
	}
	return nil
}

// ResetCompletion is phase two of a password reset.
type ResetCompletion struct {
	Code        string
	NewPassword string
}

// Validate checks that both the code and the new password were filled in.
func (r ResetCompletion) Validate() *FlowError {
	if r.Code == "" {
		return NewValidationError(ErrCodeMissingField, "Verification code is required", "code")
	}
	if r.NewPassword == "" {
		return NewValidationError(ErrCodeMissingField, "New password is required", "password")
	}
	return nil
}

// DetectIdentifierType guesses what kind of identifier was typed. Only used
// for log context.
func DetectIdentifierType(identifier string) string {
	if strings.Contains(identifier, "@") {
		return "email"
	}
	// Check if it looks like a phone number (starts with + or digit)
	if len(identifier) > 0 && (identifier[0] == '+' || (identifier[0] >= '0' && identifier[0] <= '9')) {
		return "phone"
	}
	return "username"
}
