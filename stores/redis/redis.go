// Package redis provides Redis-backed implementations of the studo
// SessionStore and FlowStore interfaces. Flows are stored with a TTL that
// matches their expiry, so abandoned OAuth flows clean themselves up.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	studo "github.com/Shmulls/Studo"
)

// DefaultPrefix namespaces every key written by this package
const DefaultPrefix = "studo"

// Store implements studo.SessionStore and studo.FlowStore for one client key
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	clientKey string
	now       func() time.Time
}

var (
	_ studo.SessionStore = (*Store)(nil)
	_ studo.FlowStore    = (*Store)(nil)
)

// Option configures a Store
type Option func(*Store)

// WithPrefix overrides DefaultPrefix
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithClock overrides time.Now when computing flow TTLs
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(client redis.UniversalClient, clientKey string, opts ...Option) *Store {
	s := &Store{
		redis:     client,
		prefix:    DefaultPrefix,
		clientKey: clientKey,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) sessionKey() string {
	return s.prefix + ":" + s.clientKey + ":session"
}

func (s *Store) flowKey(id string) string {
	return s.prefix + ":" + s.clientKey + ":flow:" + id
}

func (s *Store) LoadSession(ctx context.Context) (*studo.ActiveSession, error) {
	data, err := s.redis.Get(ctx, s.sessionKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session studo.ActiveSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

func (s *Store) SaveSession(ctx context.Context, session *studo.ActiveSession) error {
	if session == nil || session.SessionID == "" {
		return studo.ErrEmptySessionID
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.redis.Set(ctx, s.sessionKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *Store) ClearSession(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.sessionKey()).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// SaveFlow stores flow until its ExpiresAt. A flow that is already expired
// is not stored.
func (s *Store) SaveFlow(ctx context.Context, flow *studo.PendingOAuthFlow) error {
	var ttl time.Duration
	if !flow.ExpiresAt.IsZero() {
		ttl = flow.ExpiresAt.Sub(s.now())
		if ttl <= 0 {
			return studo.ErrFlowExpired
		}
	}

	data, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("failed to encode flow: %w", err)
	}
	if err := s.redis.Set(ctx, s.flowKey(flow.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save flow: %w", err)
	}
	return nil
}

func (s *Store) GetFlow(ctx context.Context, id string) (*studo.PendingOAuthFlow, error) {
	data, err := s.redis.Get(ctx, s.flowKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, studo.ErrFlowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load flow: %w", err)
	}

	var flow studo.PendingOAuthFlow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, fmt.Errorf("failed to decode flow: %w", err)
	}
	return &flow, nil
}

func (s *Store) DeleteFlow(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.flowKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete flow: %w", err)
	}
	return nil
}

// TakeFlow loads and deletes a flow in one round trip, so two processes
// handed the same deep link cannot both complete it.
func (s *Store) TakeFlow(ctx context.Context, id string) (*studo.PendingOAuthFlow, error) {
	data, err := s.redis.GetDel(ctx, s.flowKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, studo.ErrFlowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take flow: %w", err)
	}

	var flow studo.PendingOAuthFlow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, fmt.Errorf("failed to decode flow: %w", err)
	}
	return &flow, nil
}
