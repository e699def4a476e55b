//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	studo "github.com/Shmulls/Studo"
)

// Kind constants for Datastore entities
const (
	KindActiveSession = "ActiveSession"
	KindOAuthFlow     = "OAuthFlow"
)

func namespacedKey(namespace, kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = namespace
	return key
}

// ============================================================================
// SessionStore
// ============================================================================

// SessionStore implements studo.SessionStore using Google Cloud Datastore
type SessionStore struct {
	client    *datastore.Client
	namespace string
	clientKey string
}

var _ studo.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates a new Datastore-backed SessionStore
func NewSessionStore(client *datastore.Client, namespace, clientKey string) *SessionStore {
	return &SessionStore{
		client:    client,
		namespace: namespace,
		clientKey: clientKey,
	}
}

func (s *SessionStore) key() *datastore.Key {
	return namespacedKey(s.namespace, KindActiveSession, s.clientKey)
}

func (s *SessionStore) LoadSession(ctx context.Context) (*studo.ActiveSession, error) {
	var entity ActiveSessionEntity
	if err := s.client.Get(ctx, s.key(), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return entity.ToSession(), nil
}

func (s *SessionStore) SaveSession(ctx context.Context, session *studo.ActiveSession) error {
	if session == nil || session.SessionID == "" {
		return studo.ErrEmptySessionID
	}
	key := s.key()
	entity := &ActiveSessionEntity{
		Key:         key,
		SessionID:   session.SessionID,
		ActivatedAt: session.ActivatedAt,
		UpdatedAt:   time.Now(),
	}
	_, err := s.client.Put(ctx, key, entity)
	return err
}

func (s *SessionStore) ClearSession(ctx context.Context) error {
	err := s.client.Delete(ctx, s.key())
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return nil
	}
	return err
}

// ============================================================================
// FlowStore
// ============================================================================

// FlowStore implements studo.FlowStore using Google Cloud Datastore
type FlowStore struct {
	client    *datastore.Client
	namespace string
	clientKey string
}

var _ studo.FlowStore = (*FlowStore)(nil)

// NewFlowStore creates a new Datastore-backed FlowStore
func NewFlowStore(client *datastore.Client, namespace, clientKey string) *FlowStore {
	return &FlowStore{
		client:    client,
		namespace: namespace,
		clientKey: clientKey,
	}
}

func (s *FlowStore) SaveFlow(ctx context.Context, flow *studo.PendingOAuthFlow) error {
	key := namespacedKey(s.namespace, KindOAuthFlow, flow.ID)
	_, err := s.client.Put(ctx, key, FlowToEntity(flow, s.clientKey, key))
	return err
}

func (s *FlowStore) GetFlow(ctx context.Context, id string) (*studo.PendingOAuthFlow, error) {
	key := namespacedKey(s.namespace, KindOAuthFlow, id)
	var entity OAuthFlowEntity
	if err := s.client.Get(ctx, key, &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, studo.ErrFlowNotFound
		}
		return nil, fmt.Errorf("failed to load flow: %w", err)
	}
	if entity.ClientKey != s.clientKey {
		return nil, studo.ErrFlowNotFound
	}
	return entity.ToFlow(), nil
}

func (s *FlowStore) DeleteFlow(ctx context.Context, id string) error {
	err := s.client.Delete(ctx, namespacedKey(s.namespace, KindOAuthFlow, id))
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return nil
	}
	return err
}

// PurgeExpiredFlows deletes flows of every client key that expired before
// now and returns how many were removed.
func (s *FlowStore) PurgeExpiredFlows(ctx context.Context, now time.Time) (int, error) {
	query := datastore.NewQuery(KindOAuthFlow).
		FilterField("expires_at", "<", now).
		KeysOnly()
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}

	var keys []*datastore.Key
	it := s.client.Run(ctx, query)
	for {
		key, err := it.Next(nil)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, err
		}
		keys = append(keys, key)
	}

	if len(keys) == 0 {
		return 0, nil
	}
	if err := s.client.DeleteMulti(ctx, keys); err != nil {
		return 0, err
	}
	return len(keys), nil
}
