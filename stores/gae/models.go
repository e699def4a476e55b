//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"

	studo "github.com/Shmulls/Studo"
)

// ActiveSessionEntity is the Datastore entity for the active session
// Key name: client key
type ActiveSessionEntity struct {
	Key         *datastore.Key `datastore:"__key__"`
	SessionID   string         `datastore:"session_id,noindex"`
	ActivatedAt time.Time      `datastore:"activated_at"`
	UpdatedAt   time.Time      `datastore:"updated_at"`
}

func (e *ActiveSessionEntity) ToSession() *studo.ActiveSession {
	return &studo.ActiveSession{
		SessionID:   e.SessionID,
		ActivatedAt: e.ActivatedAt,
	}
}

// OAuthFlowEntity is the Datastore entity for pending OAuth flows
// Key name: flow id
type OAuthFlowEntity struct {
	Key          *datastore.Key `datastore:"__key__"`
	ClientKey    string         `datastore:"client_key"`
	Strategy     string         `datastore:"strategy,noindex"`
	CodeVerifier string         `datastore:"code_verifier,noindex"`
	CreatedAt    time.Time      `datastore:"created_at"`
	ExpiresAt    time.Time      `datastore:"expires_at"`
}

func (e *OAuthFlowEntity) ToFlow() *studo.PendingOAuthFlow {
	return &studo.PendingOAuthFlow{
		ID:           e.Key.Name,
		Strategy:     e.Strategy,
		CodeVerifier: e.CodeVerifier,
		CreatedAt:    e.CreatedAt,
		ExpiresAt:    e.ExpiresAt,
	}
}

func FlowToEntity(f *studo.PendingOAuthFlow, clientKey string, key *datastore.Key) *OAuthFlowEntity {
	return &OAuthFlowEntity{
		Key:          key,
		ClientKey:    clientKey,
		Strategy:     f.Strategy,
		CodeVerifier: f.CodeVerifier,
		CreatedAt:    f.CreatedAt,
		ExpiresAt:    f.ExpiresAt,
	}
}
