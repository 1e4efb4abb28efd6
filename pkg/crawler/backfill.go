package crawler

import (
	"context"

	"matchcrawl/pkg/auth"
	"matchcrawl/pkg/config"
	"matchcrawl/pkg/kismia"
	"matchcrawl/pkg/logger"
	"matchcrawl/pkg/ratelimit"
	"matchcrawl/pkg/retry"
	"matchcrawl/pkg/store"
)

// Backfill drains the backlog of user records lacking profile detail.
// A record that fails to backfill stays eligible indefinitely; profile
// fetching is at-least-once with no retry ceiling per record.
type Backfill struct {
	client  *kismia.Client
	tokens  *auth.Manager
	users   *store.UserStore
	limiter ratelimit.Limiter
	cfg     config.BackfillConfig
	logger  logger.Logger
}

// NewBackfill creates a profile backfill loop
func NewBackfill(client *kismia.Client, tokens *auth.Manager, users *store.UserStore,
	limiter ratelimit.Limiter, cfg config.BackfillConfig, log logger.Logger) *Backfill {

	if log == nil {
		log = logger.GetLogger()
	}
	return &Backfill{
		client:  client,
		tokens:  tokens,
		users:   users,
		limiter: limiter,
		cfg:     cfg,
		logger:  log,
	}
}

// ProcessBatch selects up to limit unbacked records, fetches profile
// detail per hid, and writes results back. Returns the number of records
// actually updated.
func (b *Backfill) ProcessBatch(ctx context.Context, limit int) (int, error) {
	users, err := b.users.UsersWithoutProfile(ctx, limit)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return updated, err
		}

		if b.fetchOne(ctx, u.Hid) {
			updated++
		}

		if err := retry.Wait(ctx, randomDelay(b.cfg.ItemDelayMin, b.cfg.ItemDelayMax)); err != nil {
			return updated, err
		}
	}

	if updated > 0 {
		b.logger.InfoWithFields("processed new profiles", map[string]interface{}{
			"count": updated,
		})
	}

	return updated, nil
}

// fetchOne fetches and persists profile detail for a single record. Any
// failure means "no profile available this attempt"; the record remains
// eligible for a future pass.
func (b *Backfill) fetchOne(ctx context.Context, hid string) bool {
	token, err := b.tokens.AccessToken(ctx)
	if err != nil {
		b.logger.WithError(err).Error("could not get a valid access token")
		return false
	}

	b.limiter.Wait()

	result, err := b.client.Profile(ctx, token, hid)
	if err != nil {
		b.logger.WithError(err).WithField("hid", hid).Error("profile fetch failed")
		return false
	}
	if len(result) == 0 {
		b.logger.WarnWithFields("no profile data", map[string]interface{}{"hid": hid})
		return false
	}

	ok, err := b.users.SaveProfile(ctx, hid, result[0])
	if err != nil {
		b.logger.WithError(err).WithField("hid", hid).Error("error saving profile")
		return false
	}
	if ok {
		b.logger.DebugWithFields("fetched profile", map[string]interface{}{"hid": hid})
	}
	return ok
}

// Run calls ProcessBatch forever. A batch with zero progress sleeps the
// poll interval, converting a tight busy-loop into a bounded-frequency
// poll; work resumes as soon as the discovery loop inserts new records.
func (b *Backfill) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		processed, err := b.ProcessBatch(ctx, b.cfg.BatchLimit)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			b.logger.WithError(err).Error("error processing profile batch")
		}

		b.logProgress(ctx)

		if processed == 0 {
			b.logger.Debug("no new profiles to process, waiting")
			if err := retry.Wait(ctx, b.cfg.PollInterval); err != nil {
				return err
			}
		}
	}
}

func (b *Backfill) logProgress(ctx context.Context) {
	total, err := b.users.CountUsers(ctx)
	if err != nil {
		return
	}
	withProfile, err := b.users.CountUsersWithProfile(ctx)
	if err != nil {
		return
	}
	b.logger.InfoWithFields("backfill progress", map[string]interface{}{
		"with_profile": withProfile,
		"total":        total,
	})
}
