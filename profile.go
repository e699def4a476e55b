package studo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Shmulls/Studo/internal/logger"
)

// User-visible profile messages
const (
	ProfileSavedMessage      = "Profile updated successfully!"
	ProfileSaveFailedMessage = "Failed to update profile. Please try again."
	ProfileNotLoadedMessage  = "User data is not loaded."
)

// ProfileFields is the local mirror of the editable profile.
type ProfileFields struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Trimmed returns f with surrounding whitespace removed.
func (f ProfileFields) Trimmed() ProfileFields {
	return ProfileFields{
		FirstName: strings.TrimSpace(f.FirstName),
		LastName:  strings.TrimSpace(f.LastName),
	}
}

// DisplayName joins the non-empty names with a space.
func (f ProfileFields) DisplayName() string {
	return strings.TrimSpace(f.FirstName + " " + f.LastName)
}

// ProfileState is the save status shown next to the form.
type ProfileState int

const (
	ProfileIdle ProfileState = iota
	ProfileSaving
	ProfileSaved
	ProfileFailed
)

func (s ProfileState) String() string {
	switch s {
	case ProfileIdle:
		return "idle"
	case ProfileSaving:
		return "saving"
	case ProfileSaved:
		return "saved"
	case ProfileFailed:
		return "failed"
	default:
		return fmt.Sprintf("profile_state(%d)", int(s))
	}
}

// ProfileStatus is the outcome of the last save.
type ProfileStatus struct {
	State   ProfileState
	Message string
	Err     error
}

// ProfileEditor edits the signed-in user's first and last name. The buffer
// holds what the user typed; committed holds what the provider last accepted.
type ProfileEditor struct {
	provider IdentityProvider
	sessions *SessionActivator
	logger   *slog.Logger

	mu        sync.RWMutex
	buffer    ProfileFields
	committed ProfileFields
	loaded    bool
	status    ProfileStatus
	// gen changes with the active session; saveSeq orders saves
	gen     uint64
	saveSeq uint64
}

// ProfileOption configures a ProfileEditor
type ProfileOption func(*ProfileEditor)

// WithProfileLogger sets the logger.
func WithProfileLogger(logger *slog.Logger) ProfileOption {
	return func(e *ProfileEditor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func NewProfileEditor(provider IdentityProvider, sessions *SessionActivator, opts ...ProfileOption) *ProfileEditor {
	e := &ProfileEditor{
		provider: provider,
		sessions: sessions,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(slog.String("component", "profile"))
	if sessions != nil {
		sessions.OnChange(e.sessionChanged)
	}
	return e
}

// sessionChanged forgets the previous identity's profile and invalidates
// loads and saves still in flight for it.
func (e *ProfileEditor) sessionChanged(*ActiveSession) {
	e.mu.Lock()
	e.buffer = ProfileFields{}
	e.committed = ProfileFields{}
	e.loaded = false
	e.status = ProfileStatus{}
	e.gen++
	e.mu.Unlock()
}

// LoadCurrent fetches the profile of the active session. Names the provider
// never set come back as "". A result for a session that is no longer active
// is dropped with ErrSessionChanged.
func (e *ProfileEditor) LoadCurrent(ctx context.Context) (ProfileFields, error) {
	sessionID := e.sessions.SessionID()
	if sessionID == "" {
		return ProfileFields{}, ErrNotSignedIn
	}
	e.mu.RLock()
	gen := e.gen
	e.mu.RUnlock()

	p, err := e.provider.GetProfile(ctx, sessionID)
	if err != nil {
		e.logger.Warn("failed to load profile", logger.Error(err))
		return ProfileFields{}, fmt.Errorf("failed to load profile: %w", err)
	}

	fields := ProfileFields{FirstName: deref(p.FirstName), LastName: deref(p.LastName)}
	e.mu.Lock()
	if e.gen != gen || e.sessions.SessionID() != sessionID {
		e.mu.Unlock()
		e.logger.Debug("dropped profile of a previous session")
		return ProfileFields{}, ErrSessionChanged
	}
	e.buffer = fields
	e.committed = fields
	e.loaded = true
	e.mu.Unlock()
	return fields, nil
}

// Save submits the trimmed names. On failure the typed values stay in the
// buffer and the committed profile is untouched. Only the latest save
// updates the editor; an older one that resolves late is ignored.
func (e *ProfileEditor) Save(ctx context.Context, firstName, lastName string) error {
	typed := ProfileFields{FirstName: firstName, LastName: lastName}

	sessionID := e.sessions.SessionID()
	if sessionID == "" {
		e.beginSave(typed, ProfileStatus{State: ProfileFailed, Message: ProfileNotLoadedMessage, Err: ErrNotSignedIn})
		return ErrNotSignedIn
	}

	seq, gen := e.beginSave(typed, ProfileStatus{State: ProfileSaving})

	trimmed := typed.Trimmed()
	if err := e.provider.UpdateProfile(ctx, sessionID, trimmed); err != nil {
		e.logger.Warn("failed to update profile", logger.Error(err))
		e.finishSave(seq, gen, func() {
			e.buffer = typed
			e.status = ProfileStatus{State: ProfileFailed, Message: ProfileSaveFailedMessage, Err: err}
		})
		return fmt.Errorf("failed to update profile: %w", err)
	}

	e.finishSave(seq, gen, func() {
		e.buffer = trimmed
		e.committed = trimmed
		e.loaded = true
		e.status = ProfileStatus{State: ProfileSaved, Message: ProfileSavedMessage}
	})
	e.logger.Info("profile updated")
	return nil
}

func (e *ProfileEditor) beginSave(buffer ProfileFields, status ProfileStatus) (seq, gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.saveSeq++
	e.buffer = buffer
	e.status = status
	return e.saveSeq, e.gen
}

// finishSave runs apply only when no newer save started and the session is unchanged.
func (e *ProfileEditor) finishSave(seq, gen uint64, apply func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if seq != e.saveSeq || gen != e.gen {
		e.logger.Debug("ignored superseded profile save")
		return
	}
	apply()
}

// Fields returns the edit buffer.
func (e *ProfileEditor) Fields() ProfileFields {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.buffer
}

// Committed returns the profile last loaded or saved.
func (e *ProfileEditor) Committed() ProfileFields {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.committed
}

// DisplayName is derived from the committed profile, so it is "" until a
// load or save succeeds.
func (e *ProfileEditor) DisplayName() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.loaded {
		return ""
	}
	return e.committed.DisplayName()
}

// Greeting is the home screen salutation.
func (e *ProfileEditor) Greeting() string {
	name := e.DisplayName()
	if name == "" {
		return "Good morning!"
	}
	return "Good morning " + name + "!"
}

func (e *ProfileEditor) Status() ProfileStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
