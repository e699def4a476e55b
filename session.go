package studo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Shmulls/Studo/internal/logger"
)

// SessionActivator is the single writer of the process-wide ActiveSession.
// Readers (ProfileEditor, transports, interceptors) receive it at
// construction instead of looking it up globally.
type SessionActivator struct {
	mu        sync.RWMutex
	current   *ActiveSession
	store     SessionStore
	logger    *slog.Logger
	now       func() time.Time
	listeners []func(*ActiveSession)
}

// ActivatorOption configures a SessionActivator
type ActivatorOption func(*SessionActivator)

// WithSessionStore persists the active session.
func WithSessionStore(store SessionStore) ActivatorOption {
	return func(a *SessionActivator) {
		a.store = store
	}
}

// WithActivatorLogger sets the logger.
func WithActivatorLogger(logger *slog.Logger) ActivatorOption {
	return func(a *SessionActivator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewSessionActivator starts signed out.
func NewSessionActivator(opts ...ActivatorOption) *SessionActivator {
	a := &SessionActivator{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(slog.String("component", "session"))
	return a
}

// Restore loads a previously persisted session, if any.
func (a *SessionActivator) Restore(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	s, err := a.store.LoadSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if s == nil || s.SessionID == "" {
		return nil
	}
	a.mu.Lock()
	a.current = s
	a.mu.Unlock()
	a.logger.Debug("session restored", logger.SessionID(s.SessionID))
	return nil
}

// Activate makes sessionID the current session. Calling it again with the
// same id changes nothing. No remote call is made; the identity service
// validates the session on each authenticated request.
func (a *SessionActivator) Activate(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	a.mu.Lock()
	if a.current != nil && a.current.SessionID == sessionID {
		a.mu.Unlock()
		return nil
	}
	next := &ActiveSession{SessionID: sessionID, ActivatedAt: a.now()}
	a.current = next
	listeners := append([]func(*ActiveSession){}, a.listeners...)
	a.mu.Unlock()

	a.logger.Info("session activated", logger.SessionID(sessionID))

	if a.store != nil {
		if err := a.store.SaveSession(ctx, next); err != nil {
			// The in-memory session stays active; only persistence failed.
			a.logger.Warn("failed to persist session", logger.Error(err))
		}
	}

	snapshot := *next
	for _, fn := range listeners {
		fn(&snapshot)
	}
	return nil
}

// Current returns the active session.
func (a *SessionActivator) Current() (ActiveSession, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.current == nil {
		return ActiveSession{}, false
	}
	return *a.current, true
}

// SessionID returns the active session id or "".
func (a *SessionActivator) SessionID() string {
	s, _ := a.Current()
	return s.SessionID
}

// SignOut clears the active session.
func (a *SessionActivator) SignOut(ctx context.Context) error {
	a.mu.Lock()
	had := a.current != nil
	a.current = nil
	listeners := append([]func(*ActiveSession){}, a.listeners...)
	a.mu.Unlock()

	var err error
	if a.store != nil {
		if cerr := a.store.ClearSession(ctx); cerr != nil {
			err = fmt.Errorf("failed to clear session: %w", cerr)
		}
	}
	if had {
		// Listeners see the sign out even when persistence failed.
		a.logger.Info("signed out")
		for _, fn := range listeners {
			fn(nil)
		}
	}
	return err
}

// OnChange registers fn to be called after every activation or sign out.
// fn receives nil on sign out.
func (a *SessionActivator) OnChange(fn func(*ActiveSession)) {
	a.mu.Lock()
	a.listeners = append(a.listeners, fn)
	a.mu.Unlock()
}
