package studo

import (
	"context"
	"errors"
	"sync"
)

var errNotConfigured = errors.New("fake provider: not configured")

// fakeProvider records calls and delegates to per-method funcs.
type fakeProvider struct {
	mu    sync.Mutex
	calls map[string]int

	signIn        func(ctx context.Context, identifier, password string) (SignInResult, error)
	redirect      func(ctx context.Context, req OAuthRedirectRequest) (RedirectHandle, error)
	reset         func(ctx context.Context, identifier string, strategy ResetStrategy) (IdentitySession, error)
	resetAttempt  func(ctx context.Context, session IdentitySession, code, newPassword string) (SignInResult, error)
	completeOAuth func(ctx context.Context, req OAuthCompletion) (SignInResult, error)
	getProfile    func(ctx context.Context, sessionID string) (Profile, error)
	updateProfile func(ctx context.Context, sessionID string, fields ProfileFields) error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{calls: make(map[string]int)}
}

func (f *fakeProvider) record(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeProvider) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeProvider) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeProvider) CreateSignIn(ctx context.Context, identifier, password string) (SignInResult, error) {
	f.record("CreateSignIn")
	if f.signIn == nil {
		return SignInResult{}, errNotConfigured
	}
	return f.signIn(ctx, identifier, password)
}

func (f *fakeProvider) CreateOAuthRedirect(ctx context.Context, req OAuthRedirectRequest) (RedirectHandle, error) {
	f.record("CreateOAuthRedirect")
	if f.redirect == nil {
		return RedirectHandle{}, errNotConfigured
	}
	return f.redirect(ctx, req)
}

func (f *fakeProvider) CreateReset(ctx context.Context, identifier string, strategy ResetStrategy) (IdentitySession, error) {
	f.record("CreateReset")
	if f.reset == nil {
		return IdentitySession{}, errNotConfigured
	}
	return f.reset(ctx, identifier, strategy)
}

func (f *fakeProvider) AttemptResetFirstFactor(ctx context.Context, session IdentitySession, code, newPassword string, strategy ResetStrategy) (SignInResult, error) {
	f.record("AttemptResetFirstFactor")
	if f.resetAttempt == nil {
		return SignInResult{}, errNotConfigured
	}
	return f.resetAttempt(ctx, session, code, newPassword)
}

func (f *fakeProvider) CompleteOAuth(ctx context.Context, req OAuthCompletion) (SignInResult, error) {
	f.record("CompleteOAuth")
	if f.completeOAuth == nil {
		return SignInResult{}, errNotConfigured
	}
	return f.completeOAuth(ctx, req)
}

func (f *fakeProvider) GetProfile(ctx context.Context, sessionID string) (Profile, error) {
	f.record("GetProfile")
	if f.getProfile == nil {
		return Profile{}, errNotConfigured
	}
	return f.getProfile(ctx, sessionID)
}

func (f *fakeProvider) UpdateProfile(ctx context.Context, sessionID string, fields ProfileFields) error {
	f.record("UpdateProfile")
	if f.updateProfile == nil {
		return errNotConfigured
	}
	return f.updateProfile(ctx, sessionID, fields)
}
