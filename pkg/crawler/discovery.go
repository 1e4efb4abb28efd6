package crawler

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"matchcrawl/pkg/auth"
	"matchcrawl/pkg/config"
	errs "matchcrawl/pkg/errors"
	"matchcrawl/pkg/kismia"
	"matchcrawl/pkg/ledger"
	"matchcrawl/pkg/logger"
	"matchcrawl/pkg/ratelimit"
	"matchcrawl/pkg/retry"
	"matchcrawl/pkg/store"
)

// Discovery walks the cursor-paginated feed of candidate users, persists
// new records, and optionally emits randomized like/pass interactions.
type Discovery struct {
	client     *kismia.Client
	tokens     *auth.Manager
	users      *store.UserStore
	ledger     *ledger.Ledger
	limiter    ratelimit.Limiter
	cfg        config.DiscoveryConfig
	retryDelay time.Duration
	logger     logger.Logger
}

// NewDiscovery creates a discovery loop. The ledger may be nil when
// interactions are disabled.
func NewDiscovery(client *kismia.Client, tokens *auth.Manager, users *store.UserStore,
	led *ledger.Ledger, limiter ratelimit.Limiter, cfg config.DiscoveryConfig,
	retryDelay time.Duration, log logger.Logger) *Discovery {

	if log == nil {
		log = logger.GetLogger()
	}
	return &Discovery{
		client:     client,
		tokens:     tokens,
		users:      users,
		ledger:     led,
		limiter:    limiter,
		cfg:        cfg,
		retryDelay: retryDelay,
		logger:     log,
	}
}

// Walk paginates the discovery feed up to the configured page limit and
// returns the number of new users persisted. A page-level failure logs,
// waits out the retry delay and moves on; a single bad page must not kill
// an otherwise healthy multi-hour crawl. The walk itself only ends on the
// page limit, a missing next-page cursor, an unobtainable credential, a
// non-200 page response, or context cancellation.
func (d *Discovery) Walk(ctx context.Context) (int, error) {
	pageToken := ""
	inserted := 0

	for page := 0; page < d.cfg.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}

		token, err := d.tokens.AccessToken(ctx)
		if err != nil {
			// terminal stop for this walk, not an error: the next run
			// tries the refresh path again
			d.logger.WithError(err).Error("could not get a valid access token, ending walk")
			break
		}

		d.limiter.Wait()

		resp, err := d.client.PickUp(ctx, token, pageToken)
		if err != nil {
			var apiErr *errs.Error
			if errors.As(err, &apiErr) && apiErr.Type == errs.ErrorTypeSemantic {
				d.logger.ErrorWithFields("discovery page request rejected, ending walk", map[string]interface{}{
					"page":   page + 1,
					"status": apiErr.Code,
				})
				break
			}

			d.logger.WithError(err).WithField("page", page+1).Error("error fetching discovery page")
			if werr := retry.Wait(ctx, d.retryDelay); werr != nil {
				return inserted, werr
			}
			continue
		}

		newCount := 0
		for _, hit := range resp.Hits {
			ok, serr := d.users.SaveUser(ctx, hit.User.Hid, hit.Raw)
			if serr != nil {
				d.logger.WithError(serr).WithField("hid", hit.User.Hid).Error("error saving user")
				continue
			}
			if ok {
				newCount++
			}
		}
		inserted += newCount

		if newCount > 0 {
			d.logger.InfoWithFields("added new users", map[string]interface{}{
				"count": newCount,
				"page":  page + 1,
			})
		}

		if d.cfg.Interact && d.ledger != nil {
			d.interact(ctx, token, resp.Hits)
		}

		d.logger.DebugWithFields("page processed", map[string]interface{}{
			"page": page + 1,
			"hits": len(resp.Hits),
		})

		pageToken = resp.NextPageToken
		if pageToken == "" {
			d.logger.Info("no next page token, ending pagination")
			break
		}

		// Server-side cursors go stale on long walks; drop the token
		// periodically to force a refreshed view of the feed.
		if d.cfg.CursorResetPages > 0 && (page+1)%d.cfg.CursorResetPages == 0 {
			d.logger.DebugWithFields("resetting page cursor", map[string]interface{}{
				"page": page + 1,
			})
			pageToken = ""
		}

		if err := retry.Wait(ctx, randomDelay(d.cfg.PageDelayMin, d.cfg.PageDelayMax)); err != nil {
			return inserted, err
		}
	}

	return inserted, nil
}

// interact draws a like-or-pass for every hit not already in the ledger.
// The upstream treats duplicate interactions as no-ops, and the ledger is
// written through after each outcome so a crash never loses idempotency
// state.
func (d *Discovery) interact(ctx context.Context, token string, hits []kismia.Hit) {
	for _, hit := range hits {
		hid := hit.User.Hid
		if hid == "" || d.ledger.Seen(hid) {
			continue
		}

		like := rand.Float64() < d.cfg.LikeRatio

		d.limiter.Wait()

		var err error
		if like {
			err = d.client.Like(ctx, token, hid, hit.TrackingData)
		} else {
			err = d.client.Pass(ctx, token, hid, hit.TrackingData)
		}
		if err != nil {
			d.logger.WithError(err).WithField("hid", hid).Warn("interaction failed")
			continue
		}

		if like {
			err = d.ledger.MarkLiked(hid)
		} else {
			err = d.ledger.MarkPassed(hid)
		}
		if err != nil {
			d.logger.WithError(err).WithField("hid", hid).Error("failed to persist ledger entry")
		}
	}
}

// randomDelay picks a uniform duration within the configured band
func randomDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
