//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	studo "github.com/Shmulls/Studo"
)

// AutoMigrate runs database migrations for all studo tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&ActiveSessionModel{},
		&OAuthFlowModel{},
	)
}

// =============================================================================
// SessionStore
// =============================================================================

// SessionStore implements studo.SessionStore using GORM. Each client key
// holds at most one session.
type SessionStore struct {
	db        *gorm.DB
	clientKey string
}

var _ studo.SessionStore = (*SessionStore)(nil)

func NewSessionStore(db *gorm.DB, clientKey string) *SessionStore {
	return &SessionStore{db: db, clientKey: clientKey}
}

func (s *SessionStore) LoadSession(ctx context.Context) (*studo.ActiveSession, error) {
	var model ActiveSessionModel
	err := s.db.WithContext(ctx).First(&model, "client_key = ?", s.clientKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return model.ToSession(), nil
}

func (s *SessionStore) SaveSession(ctx context.Context, session *studo.ActiveSession) error {
	if session == nil || session.SessionID == "" {
		return studo.ErrEmptySessionID
	}
	model := &ActiveSessionModel{
		ClientKey:   s.clientKey,
		SessionID:   session.SessionID,
		ActivatedAt: session.ActivatedAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "client_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"session_id", "activated_at", "updated_at"}),
	}).Create(model).Error
}

func (s *SessionStore) ClearSession(ctx context.Context) error {
	return s.db.WithContext(ctx).Delete(&ActiveSessionModel{}, "client_key = ?", s.clientKey).Error
}

// =============================================================================
// FlowStore
// =============================================================================

// FlowStore implements studo.FlowStore using GORM
type FlowStore struct {
	db        *gorm.DB
	clientKey string
}

var (
	_ studo.FlowStore = (*FlowStore)(nil)
	_ studo.FlowTaker = (*FlowStore)(nil)
)

func NewFlowStore(db *gorm.DB, clientKey string) *FlowStore {
	return &FlowStore{db: db, clientKey: clientKey}
}

func (s *FlowStore) SaveFlow(ctx context.Context, flow *studo.PendingOAuthFlow) error {
	return s.db.WithContext(ctx).Save(FlowToModel(flow, s.clientKey)).Error
}

func (s *FlowStore) GetFlow(ctx context.Context, id string) (*studo.PendingOAuthFlow, error) {
	var model OAuthFlowModel
	err := s.db.WithContext(ctx).First(&model, "id = ? AND client_key = ?", id, s.clientKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, studo.ErrFlowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load flow: %w", err)
	}
	return model.ToFlow(), nil
}

func (s *FlowStore) DeleteFlow(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&OAuthFlowModel{}, "id = ? AND client_key = ?", id, s.clientKey).Error
}

// TakeFlow loads and deletes a flow. Of two concurrent takers only the one
// whose delete removed the row gets the flow.
func (s *FlowStore) TakeFlow(ctx context.Context, id string) (*studo.PendingOAuthFlow, error) {
	var flow *studo.PendingOAuthFlow
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model OAuthFlowModel
		err := tx.First(&model, "id = ? AND client_key = ?", id, s.clientKey).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return studo.ErrFlowNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load flow: %w", err)
		}
		result := tx.Delete(&OAuthFlowModel{}, "id = ? AND client_key = ?", id, s.clientKey)
		if result.Error != nil {
			return fmt.Errorf("failed to delete flow: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return studo.ErrFlowNotFound
		}
		flow = model.ToFlow()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return flow, nil
}

// PurgeExpiredFlows removes flows of every client that expired before now
func (s *FlowStore) PurgeExpiredFlows(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&OAuthFlowModel{})
	return result.RowsAffected, result.Error
}
