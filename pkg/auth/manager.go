package auth

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	errs "matchcrawl/pkg/errors"
	"matchcrawl/pkg/kismia"
	"matchcrawl/pkg/logger"
)

// expiryMargin is the safety window against races between the expiry
// check and the token's actual use.
const expiryMargin = 60 * time.Second

// Manager owns the in-memory token bundle and hides the whole refresh
// lifecycle behind AccessToken: callers either get a usable credential or
// a definitive failure.
type Manager struct {
	client *kismia.Client
	store  Store
	logger logger.Logger

	mu     sync.Mutex
	bundle TokenBundle

	// group collapses concurrent refresh attempts into a single in-flight
	// exchange; the second caller waits for the first's result instead of
	// issuing a duplicate call.
	group singleflight.Group

	now func() time.Time
}

// NewManager creates a token lifecycle manager and loads the persisted
// bundle once at startup.
func NewManager(client *kismia.Client, store Store, log logger.Logger) *Manager {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Manager{
		client: client,
		store:  store,
		logger: log,
		bundle: store.Load(),
		now:    time.Now,
	}
}

// Bundle returns a copy of the current token bundle
func (m *Manager) Bundle() TokenBundle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bundle
}

// IsExpired decodes the token payload without verifying its signature and
// checks the exp claim against now plus the safety margin. The issuer is
// trusted at this layer; only expiry matters here, so skipping signature
// verification is a deliberate trust boundary, not an oversight.
// Undecodable tokens and tokens without an exp claim count as expired.
func (m *Manager) IsExpired(token string) bool {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		m.logger.WithError(err).Warn("failed to decode access token")
		return true
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		m.logger.Warn("access token has no exp claim")
		return true
	}

	if !m.now().Before(exp.Time.Add(-expiryMargin)) {
		m.logger.InfoWithFields("access token expired or near expiry", map[string]interface{}{
			"exp": exp.Time,
		})
		return true
	}
	return false
}

// Refresh exchanges the refresh token for a new bundle. Concurrent callers
// share a single in-flight exchange. On success the four bundle fields are
// replaced wholesale and written through to the store; a persistence
// failure is logged but the in-memory bundle stays usable for the run.
func (m *Manager) Refresh(ctx context.Context) error {
	_, err, _ := m.group.Do("refresh", func() (interface{}, error) {
		return nil, m.refresh(ctx)
	})
	return err
}

func (m *Manager) refresh(ctx context.Context) error {
	m.mu.Lock()
	bundle := m.bundle
	m.mu.Unlock()

	if !bundle.CanRefresh() {
		return errs.New(errs.ErrorTypeAuth, 0, "missing tokens required for refresh")
	}

	m.logger.Info("refreshing tokens")
	result, err := m.client.RefreshToken(ctx, bundle.AccessToken.AccessToken, bundle.RefreshToken.RefreshToken)
	if err != nil {
		m.logger.WithError(err).Error("token refresh failed")
		return err
	}

	fresh := TokenBundle{
		AccessToken:  AccessToken{AccessToken: result.AccessToken.AccessToken},
		RefreshToken: RefreshToken{RefreshToken: result.RefreshToken.RefreshToken},
		AuthToken:    result.AuthToken,
		AuthKey:      result.AuthKey,
	}

	m.mu.Lock()
	m.bundle = fresh
	m.mu.Unlock()

	if err := m.store.Save(fresh); err != nil {
		m.logger.WithError(err).Error("failed to persist refreshed tokens, continuing in memory")
	}

	m.logger.Info("tokens refreshed successfully")
	return nil
}

// AccessToken is the sole entry point other components use to obtain a
// usable credential. It returns an auth error when no token exists or a
// needed refresh fails; a subsequent call will try again.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	token := m.bundle.AccessToken.AccessToken
	m.mu.Unlock()

	if token == "" {
		return "", errs.New(errs.ErrorTypeAuth, 0, "no access token available")
	}

	if m.IsExpired(token) {
		if err := m.Refresh(ctx); err != nil {
			return "", err
		}
		m.mu.Lock()
		token = m.bundle.AccessToken.AccessToken
		m.mu.Unlock()
	}

	return token, nil
}
