package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"matchcrawl/pkg/auth"
	"matchcrawl/pkg/config"
	"matchcrawl/pkg/kismia"
	"matchcrawl/pkg/ledger"
	"matchcrawl/pkg/logger"
	"matchcrawl/pkg/ratelimit"
	"matchcrawl/pkg/store"
)

// Crawler wires the token lifecycle, the user store and the two crawl
// loops together. Both loops share one client, one rate limiter and one
// token manager; they touch disjoint fields of a user record, so there is
// no record-level write conflict between them.
type Crawler struct {
	cfg    *config.Config
	logger logger.Logger

	client    *kismia.Client
	tokens    *auth.Manager
	users     *store.UserStore
	discovery *Discovery
	backfill  *Backfill
}

// New creates a fully wired crawler from configuration
func New(cfg *config.Config, log logger.Logger) (*Crawler, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	runID := uuid.NewString()
	log = log.WithField("run_id", runID)

	client := kismia.NewClient(kismia.Options{
		BaseURL:       cfg.API.BaseURL,
		UserAgent:     cfg.API.UserAgent,
		ClientVersion: cfg.API.ClientVersion,
		Timeout:       cfg.HTTP.RequestTimeout,
		MaxRetries:    cfg.HTTP.MaxRetries,
		RetryDelay:    cfg.HTTP.RetryDelay,
		FunnelID:      runID,
	}, log)

	tokenStore := auth.NewFileStore(cfg.TokenPath(), log)
	tokens := auth.NewManager(client, tokenStore, log)

	users, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open user store: %w", err)
	}

	var led *ledger.Ledger
	if cfg.Discovery.Interact {
		led = ledger.Open(cfg.LedgerPath(), log)
	}

	limiter := ratelimit.NewTokenBucket(cfg.HTTP.RequestsPerMinute, time.Minute)

	return &Crawler{
		cfg:    cfg,
		logger: log,
		client: client,
		tokens: tokens,
		users:  users,
		discovery: NewDiscovery(client, tokens, users, led, limiter,
			cfg.Discovery, cfg.HTTP.RetryDelay, log),
		backfill: NewBackfill(client, tokens, users, limiter,
			cfg.Backfill, log),
	}, nil
}

// Run starts the backfill loop in the background and walks the discovery
// feed on the calling goroutine. It returns when the walk finishes or the
// context is cancelled; the backfill goroutine winds down with the same
// context.
func (c *Crawler) Run(ctx context.Context) error {
	go func() {
		if err := c.backfill.Run(ctx); err != nil && ctx.Err() == nil {
			c.logger.WithError(err).Error("backfill loop stopped")
		}
	}()

	inserted, err := c.discovery.Walk(ctx)

	total, cerr := c.users.CountUsers(context.Background())
	withProfile, perr := c.users.CountUsersWithProfile(context.Background())
	if cerr == nil && perr == nil {
		c.logger.InfoWithFields("crawl finished", map[string]interface{}{
			"new_users":    inserted,
			"total_users":  total,
			"with_profile": withProfile,
		})
	}

	return err
}

// Close releases the user store
func (c *Crawler) Close() error {
	return c.users.Close()
}
