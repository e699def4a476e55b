package studo

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/Shmulls/Studo/internal/async"
	"github.com/Shmulls/Studo/internal/logger"
)

// FlowController drives password sign-in, OAuth redirect sign-in and the
// two-phase password reset for one screen-set. It holds exactly one current
// AuthAttempt; every submission replaces it, and only the latest submission's
// resolution may change the observable state.
type FlowController struct {
	provider    IdentityProvider
	sessions    *SessionActivator
	flows       FlowStore
	signer      *ContinuationSigner
	callbackURL string
	returnURL   string
	key         []byte
	logger      *slog.Logger
	now         func() time.Time

	// resolveMu orders "check current, commit, activate" so an older
	// resolution can never activate after a newer one.
	resolveMu sync.Mutex

	mu           sync.Mutex
	seq          uint64
	state        FlowState
	resetSession IdentitySession
	subs         map[int]func(FlowState)
	nextSub      int
}

// ControllerOption configures a FlowController
type ControllerOption func(*FlowController)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *FlowController) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithFlowStore sets where pending OAuth flows are kept. Use a persistent
// store to resume flows after the process was killed during the redirect.
func WithFlowStore(store FlowStore) ControllerOption {
	return func(c *FlowController) {
		if store != nil {
			c.flows = store
		}
	}
}

// WithCallbackURL sets the OAuth callback registered with the identity service.
func WithCallbackURL(u string) ControllerOption {
	return func(c *FlowController) {
		c.callbackURL = u
	}
}

// WithReturnURL sets the app deep link reinvoked after the browser flow.
func WithReturnURL(u string) ControllerOption {
	return func(c *FlowController) {
		if u != "" {
			c.returnURL = u
		}
	}
}

// WithContinuationKey sets the HS256 key for continuation tokens.
func WithContinuationKey(key []byte) ControllerOption {
	return func(c *FlowController) {
		c.key = key
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ControllerOption {
	return func(c *FlowController) {
		if now != nil {
			c.now = now
		}
	}
}

// NewFlowController creates a controller in the NotStarted state.
func NewFlowController(provider IdentityProvider, sessions *SessionActivator, opts ...ControllerOption) *FlowController {
	c := &FlowController{
		provider:  provider,
		sessions:  sessions,
		returnURL: DefaultReturnURL,
		logger:    slog.Default(),
		now:       time.Now,
		subs:      make(map[int]func(FlowState)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.flows == nil {
		c.flows = NewMemoryStore()
	}
	c.signer = NewContinuationSigner(c.key, c.now)
	c.logger = c.logger.With(slog.String("component", "flow"))
	return c
}

// State returns a snapshot of the observable flow state.
func (c *FlowController) State() FlowState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe calls fn with a snapshot after every state change. Snapshots can
// arrive out of order across goroutines; compare Version to drop older ones.
func (c *FlowController) Subscribe(fn func(FlowState)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// SubmitSignIn signs in with an identifier and password.
func (c *FlowController) SubmitSignIn(ctx context.Context, identifier, password string) *async.Future[AuthAttempt] {
	creds := Credentials{Identifier: identifier, Password: password}
	if ferr := creds.Validate(); ferr != nil {
		return c.rejectLocally(KindSignIn, ferr)
	}

	seq, attempt := c.begin(KindSignIn)
	log := c.logger.With(
		slog.String("attempt", attempt.ID),
		slog.String("identifier_type", DetectIdentifierType(identifier)),
	)
	log.Debug("sign-in submitted")

	return async.Go(ctx, func(ctx context.Context) (AuthAttempt, error) {
		if err := ctx.Err(); err != nil {
			return c.failRemote(seq, attempt, err, log)
		}
		res, err := c.provider.CreateSignIn(ctx, identifier, password)
		if err != nil {
			return c.failRemote(seq, attempt, err, log)
		}
		return c.succeedWithSession(ctx, seq, attempt, res.SessionID, nil, log)
	})
}

// InitiateOAuth builds the provider authorization redirect for strategy
// ("google" or "oauth_google"). On success the attempt stays InFlight and
// State().Redirect is set; the session arrives later through CompleteOAuth.
func (c *FlowController) InitiateOAuth(ctx context.Context, strategy string) *async.Future[RedirectHandle] {
	strategy = NormalizeOAuthStrategy(strategy)
	if strategy == "" {
		ferr := NewValidationError(ErrCodeUnknownOAuth, "Sign-in provider is required", "provider")
		_, err := c.rejectLocally(KindOAuth, ferr).Result()
		return async.Resolved(RedirectHandle{}, err)
	}

	seq, attempt := c.begin(KindOAuth)
	log := c.logger.With(slog.String("attempt", attempt.ID), slog.String("strategy", strategy))

	return async.Go(ctx, func(ctx context.Context) (RedirectHandle, error) {
		if err := ctx.Err(); err != nil {
			_, ferr := c.failRemote(seq, attempt, err, log)
			return RedirectHandle{}, ferr
		}
		now := c.now()
		flow := &PendingOAuthFlow{
			ID:           uuid.NewString(),
			Strategy:     strategy,
			CodeVerifier: oauth2.GenerateVerifier(),
			CreatedAt:    now,
			ExpiresAt:    now.Add(ContinuationLifetime),
		}
		if err := c.flows.SaveFlow(ctx, flow); err != nil {
			_, ferr := c.failRemote(seq, attempt, err, log)
			return RedirectHandle{}, ferr
		}

		handle, err := c.dispatchRedirect(ctx, flow)
		if err != nil {
			c.dropFlow(flow.ID, log)
			_, ferr := c.failRemote(seq, attempt, err, log)
			return RedirectHandle{}, ferr
		}

		applied := c.apply(seq, func(s *FlowState) {
			h := handle
			s.Redirect = &h
		})
		if !applied {
			c.dropFlow(flow.ID, log)
			return handle, ErrAttemptSuperseded
		}
		log.Info("oauth redirect dispatched", slog.String("flow", flow.ID))
		return handle, nil
	})
}

func (c *FlowController) dispatchRedirect(ctx context.Context, flow *PendingOAuthFlow) (RedirectHandle, error) {
	token, err := c.signer.Sign(flow)
	if err != nil {
		return RedirectHandle{}, err
	}
	returnURL, err := withContinuation(c.returnURL, token)
	if err != nil {
		return RedirectHandle{}, err
	}
	handle, err := c.provider.CreateOAuthRedirect(ctx, OAuthRedirectRequest{
		Strategy:      flow.Strategy,
		CallbackURL:   c.callbackURL,
		ReturnURL:     returnURL,
		CodeChallenge: oauth2.S256ChallengeFromVerifier(flow.CodeVerifier),
	})
	if err != nil {
		return RedirectHandle{}, err
	}
	handle.Strategy = flow.Strategy
	handle.FlowID = flow.ID
	return handle, nil
}

// CompleteOAuth resumes an OAuth sign-in from the deep link the OS reinvoked
// the app with. The controller does not need to be the one that dispatched
// the redirect; it only needs the same FlowStore and continuation key.
func (c *FlowController) CompleteOAuth(ctx context.Context, returnURL string) *async.Future[AuthAttempt] {
	ret, err := parseOAuthReturn(returnURL)
	if err != nil {
		return c.rejectLocally(KindOAuth, NewValidationError(ErrCodeBadReturnURL, "This sign-in link is invalid.", "return_url"))
	}
	flowID, strategy, err := c.signer.Verify(ret.Token)
	if err != nil {
		msg := "This sign-in link is invalid."
		if errors.Is(err, ErrFlowExpired) {
			msg = "This sign-in link has expired. Please try again."
		}
		ferr := NewValidationError(ErrCodeBadReturnURL, msg, "return_url")
		ferr.Err = err
		return c.rejectLocally(KindOAuth, ferr)
	}

	seq, attempt := c.begin(KindOAuth)
	log := c.logger.With(slog.String("attempt", attempt.ID), slog.String("flow", flowID))

	return async.Go(ctx, func(ctx context.Context) (AuthAttempt, error) {
		if err := ctx.Err(); err != nil {
			return c.failRemote(seq, attempt, err, log)
		}
		flow, err := c.takeFlow(ctx, flowID, log)
		if err != nil {
			if errors.Is(err, ErrFlowNotFound) {
				ferr := NewValidationError(ErrCodeBadReturnURL, "This sign-in link has already been used.", "return_url")
				ferr.Err = err
				return c.failRemote(seq, attempt, ferr, log)
			}
			return c.failRemote(seq, attempt, err, log)
		}
		if flow.Strategy != strategy || flow.IsExpired(c.now()) {
			ferr := NewValidationError(ErrCodeBadReturnURL, "This sign-in link has expired. Please try again.", "return_url")
			return c.failRemote(seq, attempt, ferr, log)
		}
		if ret.Error != "" {
			msg := ret.ErrorDescription
			if msg == "" {
				msg = ret.Error
			}
			return c.failRemote(seq, attempt, NewProviderError(0, ret.Error, msg), log)
		}
		if ret.Code == "" {
			ferr := NewValidationError(ErrCodeMissingField, "This sign-in link is missing its verification code.", "code")
			return c.failRemote(seq, attempt, ferr, log)
		}

		res, err := c.provider.CompleteOAuth(ctx, OAuthCompletion{
			Strategy:     flow.Strategy,
			Code:         ret.Code,
			CodeVerifier: flow.CodeVerifier,
		})
		if err != nil {
			return c.failRemote(seq, attempt, err, log)
		}
		return c.succeedWithSession(ctx, seq, attempt, res.SessionID, func(s *FlowState) {
			s.Redirect = nil
		}, log)
	})
}

// RequestReset asks the provider to email a reset code to identifier. On
// success ResetPending becomes true; no session exists yet.
func (c *FlowController) RequestReset(ctx context.Context, identifier string) *async.Future[AuthAttempt] {
	if identifier == "" {
		return c.rejectLocally(KindResetRequest, NewValidationError(ErrCodeMissingField, "Email address is required", "identifier"))
	}

	seq, attempt := c.begin(KindResetRequest)
	log := c.logger.With(slog.String("attempt", attempt.ID))
	log.Debug("password reset requested")

	return async.Go(ctx, func(ctx context.Context) (AuthAttempt, error) {
		if err := ctx.Err(); err != nil {
			return c.failRemote(seq, attempt, err, log)
		}
		handle, err := c.provider.CreateReset(ctx, identifier, ResetPasswordEmailCode)
		if err != nil {
			return c.failRemote(seq, attempt, err, log)
		}
		return c.resolve(seq, attempt, func(a AuthAttempt, s *FlowState) (AuthAttempt, error) {
			next, err := a.succeed("", c.now())
			if err != nil {
				return a, err
			}
			s.ResetPending = true
			c.resetSession = handle
			return next, nil
		}, log)
	})
}

// CompleteReset finishes a reset with the emailed code and a new password.
// Calling it before a successful RequestReset is a programming error and
// returns ErrResetNotRequested without touching state.
func (c *FlowController) CompleteReset(ctx context.Context, code, newPassword string) *async.Future[AuthAttempt] {
	c.mu.Lock()
	pending := c.state.ResetPending
	handle := c.resetSession
	c.mu.Unlock()
	if !pending {
		c.logger.Error("reset completion without pending reset")
		return async.Resolved(AuthAttempt{}, ErrResetNotRequested)
	}

	completion := ResetCompletion{Code: code, NewPassword: newPassword}
	if ferr := completion.Validate(); ferr != nil {
		return c.rejectLocally(KindResetComplete, ferr)
	}

	seq, attempt := c.begin(KindResetComplete)
	log := c.logger.With(slog.String("attempt", attempt.ID))

	return async.Go(ctx, func(ctx context.Context) (AuthAttempt, error) {
		if err := ctx.Err(); err != nil {
			return c.failRemote(seq, attempt, err, log)
		}
		res, err := c.provider.AttemptResetFirstFactor(ctx, handle, code, newPassword, ResetPasswordEmailCode)
		if err != nil {
			return c.failRemote(seq, attempt, err, log)
		}
		return c.succeedWithSession(ctx, seq, attempt, res.SessionID, func(s *FlowState) {
			s.ResetPending = false
			c.resetSession = IdentitySession{}
		}, log)
	})
}

// begin replaces the current attempt with a new InFlight one.
func (c *FlowController) begin(kind AttemptKind) (uint64, AuthAttempt) {
	attempt := AuthAttempt{ID: uuid.NewString(), Kind: kind, Status: NotStarted, StartedAt: c.now()}
	attempt, _ = attempt.advance(InFlight, attempt.StartedAt)

	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.state.Attempt = attempt
	c.state.Redirect = nil
	snap := c.bumpLocked()
	subs := c.subscribersLocked()
	c.mu.Unlock()

	notify(subs, snap)
	return seq, attempt
}

// rejectLocally records a submission that failed validation. It still
// supersedes whatever was in flight.
func (c *FlowController) rejectLocally(kind AttemptKind, ferr *FlowError) *async.Future[AuthAttempt] {
	now := c.now()
	attempt := AuthAttempt{ID: uuid.NewString(), Kind: kind, Status: NotStarted, StartedAt: now}
	attempt, _ = attempt.fail(ferr, now)

	c.mu.Lock()
	c.seq++
	c.state.Attempt = attempt
	c.state.Redirect = nil
	snap := c.bumpLocked()
	subs := c.subscribersLocked()
	c.mu.Unlock()

	notify(subs, snap)
	c.logger.Debug("submission rejected locally",
		slog.String("kind", string(kind)),
		slog.String("field", ferr.Field))
	return async.Resolved(attempt, error(ferr))
}

func (c *FlowController) failRemote(seq uint64, attempt AuthAttempt, err error, log *slog.Logger) (AuthAttempt, error) {
	ferr := classifyError(err)
	next, resolveErr := c.resolve(seq, attempt, func(a AuthAttempt, s *FlowState) (AuthAttempt, error) {
		return a.fail(ferr, c.now())
	}, log)
	if resolveErr != nil {
		return next, resolveErr
	}
	log.Warn("attempt failed",
		slog.String("kind", string(ferr.Kind)),
		slog.String("code", ferr.Code),
		logger.Error(err))
	return next, ferr
}

func (c *FlowController) succeedWithSession(ctx context.Context, seq uint64, attempt AuthAttempt, sessionID string, extra func(*FlowState), log *slog.Logger) (AuthAttempt, error) {
	if sessionID == "" {
		perr := NewProviderError(0, "sign_in_incomplete", "Sign-in could not be completed.")
		return c.failRemote(seq, attempt, perr, log)
	}

	c.resolveMu.Lock()
	defer c.resolveMu.Unlock()

	next, err := c.resolveLocked(seq, attempt, func(a AuthAttempt, s *FlowState) (AuthAttempt, error) {
		next, err := a.succeed(sessionID, c.now())
		if err != nil {
			return a, err
		}
		if extra != nil {
			extra(s)
		}
		return next, nil
	}, log)
	if err != nil {
		return next, err
	}

	if err := c.sessions.Activate(context.WithoutCancel(ctx), sessionID); err != nil {
		return next, err
	}
	log.Info("attempt succeeded", slog.String("kind", string(attempt.Kind)))
	return next, nil
}

func (c *FlowController) resolve(seq uint64, attempt AuthAttempt, fn func(AuthAttempt, *FlowState) (AuthAttempt, error), log *slog.Logger) (AuthAttempt, error) {
	c.resolveMu.Lock()
	defer c.resolveMu.Unlock()
	return c.resolveLocked(seq, attempt, fn, log)
}

// resolveLocked commits fn's result if seq is still the latest submission.
// Caller must hold c.resolveMu.
func (c *FlowController) resolveLocked(seq uint64, attempt AuthAttempt, fn func(AuthAttempt, *FlowState) (AuthAttempt, error), log *slog.Logger) (AuthAttempt, error) {
	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		log.Debug("discarding superseded response")
		return attempt, ErrAttemptSuperseded
	}
	next, err := fn(attempt, &c.state)
	if err != nil {
		c.mu.Unlock()
		return attempt, err
	}
	c.state.Attempt = next
	snap := c.bumpLocked()
	subs := c.subscribersLocked()
	c.mu.Unlock()

	notify(subs, snap)
	return next, nil
}

// apply mutates state without resolving the attempt.
func (c *FlowController) apply(seq uint64, fn func(*FlowState)) bool {
	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		return false
	}
	fn(&c.state)
	snap := c.bumpLocked()
	subs := c.subscribersLocked()
	c.mu.Unlock()

	notify(subs, snap)
	return true
}

// takeFlow loads and consumes a flow; a flow is redeemable once, whatever
// happens next.
func (c *FlowController) takeFlow(ctx context.Context, id string, log *slog.Logger) (*PendingOAuthFlow, error) {
	if taker, ok := c.flows.(FlowTaker); ok {
		return taker.TakeFlow(ctx, id)
	}
	flow, err := c.flows.GetFlow(ctx, id)
	if err != nil {
		return nil, err
	}
	c.dropFlow(id, log)
	return flow, nil
}

func (c *FlowController) dropFlow(id string, log *slog.Logger) {
	if err := c.flows.DeleteFlow(context.Background(), id); err != nil {
		log.Warn("failed to delete oauth flow", slog.String("flow", id), logger.Error(err))
	}
}

func (c *FlowController) bumpLocked() FlowState {
	c.state.Version++
	return c.snapshotLocked()
}

func (c *FlowController) snapshotLocked() FlowState {
	s := c.state
	if s.Redirect != nil {
		r := *s.Redirect
		s.Redirect = &r
	}
	return s
}

func (c *FlowController) subscribersLocked() []func(FlowState) {
	out := make([]func(FlowState), 0, len(c.subs))
	for _, fn := range c.subs {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(FlowState), s FlowState) {
	for _, fn := range subs {
		fn(s)
	}
}
