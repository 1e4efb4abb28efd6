package crawler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchcrawl/pkg/config"
	"matchcrawl/pkg/logger"
)

func (f *fixture) backfill(cfg config.BackfillConfig) *Backfill {
	return NewBackfill(f.client, f.tokens, f.users, f.limiter, cfg, logger.NewTestLogger())
}

func backfillConfig() config.BackfillConfig {
	return config.BackfillConfig{
		BatchLimit:   50,
		PollInterval: 10 * time.Millisecond,
	}
}

func seedUser(t *testing.T, f *fixture, hid string) {
	t.Helper()
	inserted, err := f.users.SaveUser(context.Background(), hid, json.RawMessage(hitJSON(hid)))
	require.NoError(t, err)
	require.True(t, inserted)
}

func TestProcessBatchFillsProfiles(t *testing.T) {
	f := newFixture(t)
	seedUser(t, f, "A")
	f.api.profiles["A"] = `{"bio":"x"}`

	b := f.backfill(backfillConfig())

	updated, err := b.ProcessBatch(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	users, err := f.users.AllUsers(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.JSONEq(t, `{"bio":"x"}`, string(users[0].Profile))

	// nothing left to do
	updated, err = b.ProcessBatch(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 0, updated)
}

func TestProcessBatchEmptyResultKeepsRecordEligible(t *testing.T) {
	f := newFixture(t)
	seedUser(t, f, "A")
	// no profile registered: the server answers with an empty result set

	b := f.backfill(backfillConfig())

	updated, err := b.ProcessBatch(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 0, updated)

	pending, err := f.users.UsersWithoutProfile(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "record stays in the backlog")
}

func TestProcessBatchRespectsLimit(t *testing.T) {
	f := newFixture(t)
	for _, hid := range []string{"A", "B", "C"} {
		seedUser(t, f, hid)
		f.api.profiles[hid] = `{"bio":"x"}`
	}

	b := f.backfill(backfillConfig())

	updated, err := b.ProcessBatch(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	pending, err := f.users.UsersWithoutProfile(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestRunDrainsBacklogAndPolls(t *testing.T) {
	f := newFixture(t)
	seedUser(t, f, "A")
	f.api.profiles["A"] = `{"bio":"x"}`

	b := f.backfill(backfillConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool {
		n, err := f.users.CountUsersWithProfile(context.Background())
		return err == nil && n == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("backfill loop did not stop on cancellation")
	}
}
