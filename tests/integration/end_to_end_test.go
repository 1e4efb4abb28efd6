package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchcrawl/pkg/auth"
	"matchcrawl/pkg/config"
	"matchcrawl/pkg/crawler"
	"matchcrawl/pkg/logger"
	"matchcrawl/pkg/store"
)

func tokenExpiringAt(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()})
	signed, err := token.SignedString([]byte("integration-secret"))
	require.NoError(t, err)
	return signed
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.API.BaseURL = baseURL
	cfg.HTTP.RequestTimeout = 2 * time.Second
	cfg.HTTP.MaxRetries = 2
	cfg.HTTP.RetryDelay = 10 * time.Millisecond
	cfg.HTTP.RequestsPerMinute = 100000
	cfg.Discovery.MaxPages = 10
	cfg.Discovery.PageDelayMin = 0
	cfg.Discovery.PageDelayMax = 0
	cfg.Backfill.BatchLimit = 10
	cfg.Backfill.ItemDelayMin = 0
	cfg.Backfill.ItemDelayMax = 0
	cfg.Backfill.PollInterval = 10 * time.Millisecond
	cfg.Storage.DataDir = t.TempDir()
	require.NoError(t, cfg.Validate())
	return cfg
}

func seedTokens(t *testing.T, cfg *config.Config, accessToken string) {
	t.Helper()
	fileStore := auth.NewFileStore(cfg.TokenPath(), logger.NewTestLogger())
	require.NoError(t, fileStore.Save(auth.TokenBundle{
		AccessToken:  auth.AccessToken{AccessToken: accessToken},
		RefreshToken: auth.RefreshToken{RefreshToken: "seed-refresh"},
	}))
}

// TestFullCrawl walks a two-page feed, waits for the background backfill
// to drain the backlog, and verifies everything ended up in the store.
func TestFullCrawl(t *testing.T) {
	mock := NewMockUpstreamServer()
	defer mock.Close()

	mock.AddPage("", "p2", "alpha")
	mock.AddPage("p2", "", "beta")
	mock.AddProfile("alpha", json.RawMessage(`{"bio":"hello from alpha"}`))
	mock.AddProfile("beta", json.RawMessage(`{"bio":"hello from beta"}`))

	cfg := testConfig(t, mock.GetURL())
	seedTokens(t, cfg, tokenExpiringAt(t, time.Now().Add(time.Hour)))

	c, err := crawler.New(cfg, logger.NewTestLogger())
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// the discovery walk finishes on its own; the backfill loop keeps
	// polling, so watch the store until both profiles landed
	users, err := store.Open(cfg.DBPath())
	require.NoError(t, err)
	defer users.Close()

	require.Eventually(t, func() bool {
		total, terr := users.CountUsers(context.Background())
		withProfile, perr := users.CountUsersWithProfile(context.Background())
		return terr == nil && perr == nil && total == 2 && withProfile == 2
	}, 8*time.Second, 20*time.Millisecond)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(8 * time.Second):
		t.Fatal("crawl did not finish")
	}

	all, err := users.AllUsers(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	byHid := map[string]store.User{}
	for _, u := range all {
		byHid[u.Hid] = u
	}
	assert.JSONEq(t, `{"bio":"hello from alpha"}`, string(byHid["alpha"].Profile))
	assert.JSONEq(t, `{"bio":"hello from beta"}`, string(byHid["beta"].Profile))

	assert.Equal(t, 2, mock.PickUpCalls(), "the walk stops with the cursor, no third page")
	assert.Equal(t, 0, mock.RefreshCalls(), "a valid seeded token needs no exchange")
	assert.Equal(t, 0, mock.InteractionCalls(), "interactions are off by default")
}

// TestCrawlRefreshesExpiredTokenFirst seeds an already expired access
// token and verifies the crawl transparently exchanges it before the
// first feed request.
func TestCrawlRefreshesExpiredTokenFirst(t *testing.T) {
	mock := NewMockUpstreamServer()
	defer mock.Close()
	mock.NewAccessToken = tokenExpiringAt(t, time.Now().Add(time.Hour))
	mock.AddPage("", "", "alpha")

	cfg := testConfig(t, mock.GetURL())
	seedTokens(t, cfg, tokenExpiringAt(t, time.Now().Add(-time.Minute)))

	c, err := crawler.New(cfg, logger.NewTestLogger())
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go c.Run(ctx)

	users, err := store.Open(cfg.DBPath())
	require.NoError(t, err)
	defer users.Close()

	require.Eventually(t, func() bool {
		n, cerr := users.CountUsers(context.Background())
		return cerr == nil && n == 1
	}, 8*time.Second, 20*time.Millisecond)

	assert.Equal(t, 1, mock.RefreshCalls(), "one exchange serves both loops")

	// the rotated bundle was written through to disk
	fileStore := auth.NewFileStore(cfg.TokenPath(), logger.NewTestLogger())
	persisted := fileStore.Load()
	assert.Equal(t, mock.NewAccessToken, persisted.AccessToken.AccessToken)
	assert.Equal(t, "rotated-refresh", persisted.RefreshToken.RefreshToken)
}

// TestCrawlWithInteractions enables the like/pass draw and verifies each
// discovered user gets exactly one recorded interaction across runs.
func TestCrawlWithInteractions(t *testing.T) {
	mock := NewMockUpstreamServer()
	defer mock.Close()
	mock.AddPage("", "", "alpha", "beta")

	cfg := testConfig(t, mock.GetURL())
	cfg.Discovery.Interact = true
	cfg.Discovery.LikeRatio = 1.0
	seedTokens(t, cfg, tokenExpiringAt(t, time.Now().Add(time.Hour)))

	runOnce := func() {
		c, err := crawler.New(cfg, logger.NewTestLogger())
		require.NoError(t, err)
		defer c.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		done := make(chan error, 1)
		go func() { done <- c.Run(ctx) }()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(8 * time.Second):
			t.Fatal("crawl did not finish")
		}
	}

	runOnce()
	assert.Equal(t, 2, mock.InteractionCalls())

	// a second run sees both users in the ledger and stays quiet
	runOnce()
	assert.Equal(t, 2, mock.InteractionCalls(), "no repeat interactions across runs")
}
