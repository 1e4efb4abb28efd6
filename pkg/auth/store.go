package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"matchcrawl/pkg/logger"
)

// TokenBundle is the set of credential artifacts needed for authenticated
// calls. It mirrors the persisted document: either fully absent (never
// authenticated) or carrying at least the access and refresh tokens. The
// auth token and key are optional side-channel credentials returned by the
// refresh exchange.
type TokenBundle struct {
	AccessToken  AccessToken  `json:"accessToken"`
	RefreshToken RefreshToken `json:"refreshToken"`
	AuthToken    string       `json:"authToken,omitempty"`
	AuthKey      string       `json:"authKey,omitempty"`
}

// AccessToken wraps the bearer token the API expects
type AccessToken struct {
	AccessToken string `json:"access_token"`
}

// RefreshToken wraps the long-lived exchange token
type RefreshToken struct {
	RefreshToken string `json:"refresh_token"`
}

// Empty reports whether the bundle has never been populated
func (b TokenBundle) Empty() bool {
	return b.AccessToken.AccessToken == "" && b.RefreshToken.RefreshToken == ""
}

// CanRefresh reports whether both tokens needed for an exchange are present
func (b TokenBundle) CanRefresh() bool {
	return b.AccessToken.AccessToken != "" && b.RefreshToken.RefreshToken != ""
}

// Store persists the current token bundle
type Store interface {
	// Load returns the persisted bundle, or an empty bundle when nothing
	// usable is on disk. Read failures are logged, never surfaced: a
	// missing or corrupt token file means "not authenticated yet".
	Load() TokenBundle

	// Save persists the bundle. Failure is reported so the caller can log
	// it, but the refreshed bundle stays usable in memory for the run.
	Save(TokenBundle) error
}

// FileStore keeps the bundle as a plain JSON document at a fixed location.
// Plain on purpose: the bootstrap flow is a human pasting tokens captured
// from a browser session into this file.
type FileStore struct {
	path   string
	logger logger.Logger
}

// NewFileStore creates a file-backed token store
func NewFileStore(path string, log logger.Logger) *FileStore {
	if log == nil {
		log = logger.GetLogger()
	}
	return &FileStore{path: path, logger: log}
}

// Load reads the token bundle from disk
func (s *FileStore) Load() TokenBundle {
	var bundle TokenBundle

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.InfoWithFields("token file not found, seed it with initial token data", map[string]interface{}{
				"path": s.path,
			})
		} else {
			s.logger.WithError(err).WithField("path", s.path).Error("error reading token file")
		}
		return bundle
	}

	if err := json.Unmarshal(data, &bundle); err != nil {
		s.logger.WithError(err).WithField("path", s.path).Error("malformed token file")
		return TokenBundle{}
	}

	s.logger.Info("tokens loaded from file")
	return bundle
}

// Save writes the token bundle atomically (tmp file + rename)
func (s *FileStore) Save(bundle TokenBundle) error {
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token bundle: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace token file: %w", err)
	}

	s.logger.Debug("tokens saved to file")
	return nil
}
