package studo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Sessions(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	s, err := m.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)

	assert.ErrorIs(t, m.SaveSession(ctx, &ActiveSession{}), ErrEmptySessionID)

	require.NoError(t, m.SaveSession(ctx, &ActiveSession{SessionID: "s1", ActivatedAt: time.Now()}))
	s, err = m.LoadSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", s.SessionID)

	require.NoError(t, m.ClearSession(ctx))
	require.NoError(t, m.ClearSession(ctx))
	s, err = m.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestMemoryStore_Flows(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	_, err := m.GetFlow(ctx, "missing")
	assert.ErrorIs(t, err, ErrFlowNotFound)

	flow := &PendingOAuthFlow{ID: "f1", Strategy: OAuthGoogle, CodeVerifier: "v"}
	require.NoError(t, m.SaveFlow(ctx, flow))

	// the store keeps its own copy
	flow.CodeVerifier = "changed"
	got, err := m.GetFlow(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "v", got.CodeVerifier)

	require.NoError(t, m.DeleteFlow(ctx, "f1"))
	require.NoError(t, m.DeleteFlow(ctx, "f1"))
	_, err = m.GetFlow(ctx, "f1")
	assert.ErrorIs(t, err, ErrFlowNotFound)
}

func TestPendingOAuthFlow_IsExpired(t *testing.T) {
	now := time.Now()
	assert.False(t, (&PendingOAuthFlow{}).IsExpired(now))
	assert.False(t, (&PendingOAuthFlow{ExpiresAt: now.Add(time.Minute)}).IsExpired(now))
	assert.True(t, (&PendingOAuthFlow{ExpiresAt: now.Add(-time.Minute)}).IsExpired(now))
}

func TestMemoryStore_TakeFlow(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.SaveFlow(ctx, &PendingOAuthFlow{ID: "f1", CodeVerifier: "v"}))

	got, err := m.TakeFlow(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "v", got.CodeVerifier)

	_, err = m.TakeFlow(ctx, "f1")
	assert.ErrorIs(t, err, ErrFlowNotFound)
}
