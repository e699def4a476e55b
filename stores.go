package studo

import (
	"context"
	"time"
)

// ActiveSession is the process's current authenticated identity.
type ActiveSession struct {
	SessionID   string    `json:"session_id"`
	ActivatedAt time.Time `json:"activated_at"`
}

// PendingOAuthFlow is the resumable part of an OAuth sign-in. It outlives the
// process that dispatched the redirect.
type PendingOAuthFlow struct {
	ID           string    `json:"id"`
	Strategy     string    `json:"strategy"`
	CodeVerifier string    `json:"code_verifier"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// IsExpired returns true once the flow can no longer be resumed
func (f *PendingOAuthFlow) IsExpired(now time.Time) bool {
	return !f.ExpiresAt.IsZero() && now.After(f.ExpiresAt)
}

// SessionStore persists the active session across restarts
type SessionStore interface {
	// LoadSession returns nil, nil when signed out
	LoadSession(ctx context.Context) (*ActiveSession, error)

	// SaveSession replaces the stored session
	SaveSession(ctx context.Context, session *ActiveSession) error

	// ClearSession removes the stored session; clearing an empty store is not an error
	ClearSession(ctx context.Context) error
}

// FlowStore keeps pending OAuth flows until the deep link comes back
type FlowStore interface {
	// SaveFlow creates or replaces a flow
	SaveFlow(ctx context.Context, flow *PendingOAuthFlow) error

	// GetFlow returns ErrFlowNotFound for unknown ids
	GetFlow(ctx context.Context, id string) (*PendingOAuthFlow, error)

	// DeleteFlow removes a flow; deleting an unknown id is not an error
	DeleteFlow(ctx context.Context, id string) error
}

// FlowTaker is implemented by FlowStores that can load and delete a flow in
// one step. The controller uses it instead of GetFlow+DeleteFlow when present.
type FlowTaker interface {
	TakeFlow(ctx context.Context, id string) (*PendingOAuthFlow, error)
}
