//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	studo "github.com/Shmulls/Studo"
)

// ActiveSessionModel is the GORM model for the active session of a client
type ActiveSessionModel struct {
	ClientKey   string    `gorm:"primaryKey;size:128"`
	SessionID   string    `gorm:"size:255;not null"`
	ActivatedAt time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (ActiveSessionModel) TableName() string {
	return "active_sessions"
}

func (m *ActiveSessionModel) ToSession() *studo.ActiveSession {
	return &studo.ActiveSession{
		SessionID:   m.SessionID,
		ActivatedAt: m.ActivatedAt,
	}
}

// OAuthFlowModel is the GORM model for pending OAuth flows
type OAuthFlowModel struct {
	ID           string    `gorm:"primaryKey;size:64"`
	ClientKey    string    `gorm:"size:128;index"`
	Strategy     string    `gorm:"size:64;not null"`
	CodeVerifier string    `gorm:"size:128;not null"`
	CreatedAt    time.Time `gorm:"not null"`
	ExpiresAt    time.Time `gorm:"index"`
}

func (OAuthFlowModel) TableName() string {
	return "oauth_flows"
}

func (m *OAuthFlowModel) ToFlow() *studo.PendingOAuthFlow {
	return &studo.PendingOAuthFlow{
		ID:           m.ID,
		Strategy:     m.Strategy,
		CodeVerifier: m.CodeVerifier,
		CreatedAt:    m.CreatedAt,
		ExpiresAt:    m.ExpiresAt,
	}
}

func FlowToModel(f *studo.PendingOAuthFlow, clientKey string) *OAuthFlowModel {
	return &OAuthFlowModel{
		ID:           f.ID,
		ClientKey:    clientKey,
		Strategy:     f.Strategy,
		CodeVerifier: f.CodeVerifier,
		CreatedAt:    f.CreatedAt,
		ExpiresAt:    f.ExpiresAt,
	}
}
