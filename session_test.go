package studo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionActivator_Activate(t *testing.T) {
	ctx := context.Background()

	t.Run("starts signed out", func(t *testing.T) {
		a := NewSessionActivator()
		_, ok := a.Current()
		assert.False(t, ok)
		assert.Empty(t, a.SessionID())
	})

	t.Run("rejects empty id", func(t *testing.T) {
		a := NewSessionActivator()
		assert.ErrorIs(t, a.Activate(ctx, ""), ErrEmptySessionID)
	})

	t.Run("same id twice is the same as once", func(t *testing.T) {
		store := NewMemoryStore()
		a := NewSessionActivator(WithSessionStore(store))
		var calls int
		a.OnChange(func(*ActiveSession) { calls++ })

		require.NoError(t, a.Activate(ctx, "sess_1"))
		first, _ := a.Current()
		require.NoError(t, a.Activate(ctx, "sess_1"))
		second, ok := a.Current()

		require.True(t, ok)
		assert.Equal(t, first, second)
		assert.Equal(t, 1, calls)

		stored, err := store.LoadSession(ctx)
		require.NoError(t, err)
		assert.Equal(t, "sess_1", stored.SessionID)
	})

	t.Run("a new id replaces the current session", func(t *testing.T) {
		a := NewSessionActivator()
		require.NoError(t, a.Activate(ctx, "sess_1"))
		require.NoError(t, a.Activate(ctx, "sess_2"))
		assert.Equal(t, "sess_2", a.SessionID())
	})
}

type failingSessionStore struct{ MemoryStore }

func (f *failingSessionStore) SaveSession(ctx context.Context, s *ActiveSession) error {
	return errors.New("disk full")
}

func TestSessionActivator_PersistFailureKeepsSession(t *testing.T) {
	a := NewSessionActivator(WithSessionStore(&failingSessionStore{}))
	require.NoError(t, a.Activate(context.Background(), "sess_1"))
	assert.Equal(t, "sess_1", a.SessionID())
}

func TestSessionActivator_RestoreAndSignOut(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.SaveSession(ctx, &ActiveSession{SessionID: "sess_saved"}))

	a := NewSessionActivator(WithSessionStore(store))
	require.NoError(t, a.Restore(ctx))
	assert.Equal(t, "sess_saved", a.SessionID())

	var got []*ActiveSession
	a.OnChange(func(s *ActiveSession) { got = append(got, s) })

	require.NoError(t, a.SignOut(ctx))
	_, ok := a.Current()
	assert.False(t, ok)
	require.Len(t, got, 1)
	assert.Nil(t, got[0])

	stored, err := store.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)

	// signing out twice is harmless
	require.NoError(t, a.SignOut(ctx))
	assert.Len(t, got, 1)
}

type unclearableSessionStore struct{ MemoryStore }

func (u *unclearableSessionStore) ClearSession(ctx context.Context) error {
	return errors.New("read-only file system")
}

func TestSessionActivator_SignOutNotifiesWhenClearFails(t *testing.T) {
	ctx := context.Background()
	a := NewSessionActivator(WithSessionStore(&unclearableSessionStore{}))
	require.NoError(t, a.Activate(ctx, "sess_1"))

	var got []*ActiveSession
	a.OnChange(func(s *ActiveSession) { got = append(got, s) })

	err := a.SignOut(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to clear session")

	_, ok := a.Current()
	assert.False(t, ok)
	require.Len(t, got, 1)
	assert.Nil(t, got[0])
}
