package studo

import (
	"context"
	"strings"
)

// ResetStrategy names the provider verification strategy for password resets.
type ResetStrategy string

// ResetPasswordEmailCode resets a password with a code emailed to the identifier.
const ResetPasswordEmailCode ResetStrategy = "reset_password_email_code"

// OAuth strategies understood by the identity service.
const (
	OAuthGoogle = "oauth_google"
	OAuthGithub = "oauth_github"
)

// NormalizeOAuthStrategy turns "google" or "oauth_google" into "oauth_google".
func NormalizeOAuthStrategy(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return ""
	}
	if !strings.HasPrefix(provider, "oauth_") {
		provider = "oauth_" + provider
	}
	return provider
}

// IdentitySession is the provider-side handle of a sign-in or reset process.
// The provider owns it; the controller only references it.
type IdentitySession struct {
	ID string `json:"id"`
}

// SignInResult is what a completed sign-in produces.
type SignInResult struct {
	SessionID string `json:"created_session_id"`
}

// OAuthRedirectRequest asks the provider for an authorization redirect.
type OAuthRedirectRequest struct {
	Strategy string
	// CallbackURL is the fixed callback registered with the identity service.
	CallbackURL string
	// ReturnURL is the app deep link the OS reinvokes after the browser flow.
	ReturnURL     string
	CodeChallenge string
}

// RedirectHandle is where the presenter sends the external browser.
type RedirectHandle struct {
	URL      string `json:"url"`
	Strategy string `json:"strategy"`
	FlowID   string `json:"flow_id"`
}

// OAuthCompletion carries the continuation data of an OAuth round-trip.
type OAuthCompletion struct {
	Strategy     string
	Code         string
	CodeVerifier string
}

// Profile is the provider-held profile. Nil names were never set.
type Profile struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// IdentityProvider is the capability set required from the remote identity
// service. Implementations own their network timeout policy.
type IdentityProvider interface {
	// CreateSignIn signs in with an identifier and password.
	CreateSignIn(ctx context.Context, identifier, password string) (SignInResult, error)

	// CreateOAuthRedirect builds the provider authorization redirect.
	CreateOAuthRedirect(ctx context.Context, req OAuthRedirectRequest) (RedirectHandle, error)

	// CreateReset starts a password reset; the provider emails a code.
	CreateReset(ctx context.Context, identifier string, strategy ResetStrategy) (IdentitySession, error)

	// AttemptResetFirstFactor completes a reset with the emailed code and a new password.
	AttemptResetFirstFactor(ctx context.Context, session IdentitySession, code, newPassword string, strategy ResetStrategy) (SignInResult, error)

	// CompleteOAuth exchanges the continuation data of a returned OAuth flow for a session.
	CompleteOAuth(ctx context.Context, req OAuthCompletion) (SignInResult, error)

	// GetProfile fetches the profile of the session's user.
	GetProfile(ctx context.Context, sessionID string) (Profile, error)

	// UpdateProfile updates the profile of the session's user.
	UpdateProfile(ctx context.Context, sessionID string, fields ProfileFields) error
}
