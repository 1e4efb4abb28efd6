package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *UserStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveUserFirstSeenWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inserted, err := s.SaveUser(ctx, "A", json.RawMessage(`{"user":{"hid":"A"},"score":1}`))
	require.NoError(t, err)
	assert.True(t, inserted)

	// rediscovery of the same hid is a no-op
	inserted, err = s.SaveUser(ctx, "A", json.RawMessage(`{"user":{"hid":"A"},"score":2}`))
	require.NoError(t, err)
	assert.False(t, inserted)

	count, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	users, err := s.AllUsers(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.JSONEq(t, `{"user":{"hid":"A"},"score":1}`, string(users[0].Data), "original payload preserved")
}

func TestSaveUserEmptyHidIgnored(t *testing.T) {
	s := newTestStore(t)

	inserted, err := s.SaveUser(context.Background(), "", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestSaveProfile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveUser(ctx, "A", json.RawMessage(`{"user":{"hid":"A"}}`))
	require.NoError(t, err)

	updated, err := s.SaveProfile(ctx, "A", json.RawMessage(`{"bio":"x"}`))
	require.NoError(t, err)
	assert.True(t, updated)

	users, err := s.AllUsers(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.JSONEq(t, `{"bio":"x"}`, string(users[0].Profile))

	// unknown hid updates nothing
	updated, err = s.SaveProfile(ctx, "ghost", json.RawMessage(`{"bio":"y"}`))
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestUsersWithoutProfile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		hid := fmt.Sprintf("user-%d", i)
		_, err := s.SaveUser(ctx, hid, json.RawMessage(fmt.Sprintf(`{"user":{"hid":"%s"}}`, hid)))
		require.NoError(t, err)
	}

	_, err := s.SaveProfile(ctx, "user-0", json.RawMessage(`{"bio":"done"}`))
	require.NoError(t, err)

	pending, err := s.UsersWithoutProfile(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 4)
	for _, u := range pending {
		assert.NotEqual(t, "user-0", u.Hid)
		assert.Nil(t, u.Profile)
	}

	limited, err := s.UsersWithoutProfile(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	total, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	for _, hid := range []string{"A", "B", "C"} {
		_, err := s.SaveUser(ctx, hid, json.RawMessage(`{}`))
		require.NoError(t, err)
	}
	_, err = s.SaveProfile(ctx, "B", json.RawMessage(`{"bio":"x"}`))
	require.NoError(t, err)

	total, err = s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	withProfile, err := s.CountUsersWithProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, withProfile)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	s1, err := Open(path)
	require.NoError(t, err)
	_, err = s1.SaveUser(context.Background(), "A", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	// reopening an existing database keeps the data
	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	count, err := s2.CountUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
