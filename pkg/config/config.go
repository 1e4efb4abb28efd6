package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the crawler
type Config struct {
	// Upstream API settings
	API APIConfig `yaml:"api" json:"api"`

	// HTTP transport settings
	HTTP HTTPConfig `yaml:"http" json:"http"`

	// Discovery feed walk settings
	Discovery DiscoveryConfig `yaml:"discovery" json:"discovery"`

	// Profile backfill settings
	Backfill BackfillConfig `yaml:"backfill" json:"backfill"`

	// Local storage locations
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// APIConfig holds upstream endpoint configuration
type APIConfig struct {
	BaseURL       string `yaml:"base_url" json:"base_url"`
	UserAgent     string `yaml:"user_agent" json:"user_agent"`
	ClientVersion string `yaml:"client_version" json:"client_version"`
}

// HTTPConfig holds transport-level settings
type HTTPConfig struct {
	RequestTimeout    time.Duration `yaml:"request_timeout" json:"request_timeout"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay" json:"retry_delay"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// DiscoveryConfig holds settings for the paginated discovery walk
type DiscoveryConfig struct {
	MaxPages     int           `yaml:"max_pages" json:"max_pages"`
	PageDelayMin time.Duration `yaml:"page_delay_min" json:"page_delay_min"`
	PageDelayMax time.Duration `yaml:"page_delay_max" json:"page_delay_max"`
	// CursorResetPages forces a fresh feed view every N pages; server-side
	// page tokens go stale on long walks.
	CursorResetPages int `yaml:"cursor_reset_pages" json:"cursor_reset_pages"`
	// Interact enables randomized like/pass calls for newly seen users
	Interact bool `yaml:"interact" json:"interact"`
	// LikeRatio is the probability of a like over a pass (0.0 to 1.0)
	LikeRatio float64 `yaml:"like_ratio" json:"like_ratio"`
}

// BackfillConfig holds settings for the profile backfill loop
type BackfillConfig struct {
	BatchLimit   int           `yaml:"batch_limit" json:"batch_limit"`
	ItemDelayMin time.Duration `yaml:"item_delay_min" json:"item_delay_min"`
	ItemDelayMax time.Duration `yaml:"item_delay_max" json:"item_delay_max"`
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
}

// StorageConfig holds file locations for persisted state
type StorageConfig struct {
	DataDir    string `yaml:"data_dir" json:"data_dir"`
	TokenFile  string `yaml:"token_file" json:"token_file"`
	DBFile     string `yaml:"db_file" json:"db_file"`
	LedgerFile string `yaml:"ledger_file" json:"ledger_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:       "https://m.kismia.com",
			UserAgent:     "Mozilla/5.0 (Linux; Android 6.0; Nexus 5 Build/MRA58N) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Mobile Safari/537.36",
			ClientVersion: "v3mobile-spa/2b5c480eb",
		},
		HTTP: HTTPConfig{
			RequestTimeout:    30 * time.Second,
			MaxRetries:        3,
			RetryDelay:        5 * time.Second,
			RequestsPerMinute: 30,
		},
		Discovery: DiscoveryConfig{
			MaxPages:         10000,
			PageDelayMin:     2 * time.Second,
			PageDelayMax:     4 * time.Second,
			CursorResetPages: 10,
			Interact:         false,
			LikeRatio:        0.7,
		},
		Backfill: BackfillConfig{
			BatchLimit:   50,
			ItemDelayMin: 2 * time.Second,
			ItemDelayMax: 4 * time.Second,
			PollInterval: 5 * time.Second,
		},
		Storage: StorageConfig{
			DataDir:    ".",
			TokenFile:  "auth_token.json",
			DBFile:     "matchcrawl.db",
			LedgerFile: "interactions.json",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// TokenPath returns the resolved token file location
func (c *Config) TokenPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.TokenFile)
}

// DBPath returns the resolved database file location
func (c *Config) DBPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.DBFile)
}

// LedgerPath returns the resolved interaction ledger location
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.LedgerFile)
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if baseURL := os.Getenv("MATCHCRAWL_BASE_URL"); baseURL != "" {
		c.API.BaseURL = baseURL
	}
	if userAgent := os.Getenv("MATCHCRAWL_USER_AGENT"); userAgent != "" {
		c.API.UserAgent = userAgent
	}
	if dataDir := os.Getenv("MATCHCRAWL_DATA_DIR"); dataDir != "" {
		c.Storage.DataDir = dataDir
	}
	if maxPages := os.Getenv("MATCHCRAWL_MAX_PAGES"); maxPages != "" {
		if val, err := strconv.Atoi(maxPages); err == nil && val > 0 {
			c.Discovery.MaxPages = val
		}
	}
	if rpm := os.Getenv("MATCHCRAWL_REQUESTS_PER_MINUTE"); rpm != "" {
		if val, err := strconv.Atoi(rpm); err == nil && val > 0 {
			c.HTTP.RequestsPerMinute = val
		}
	}
	if interact := os.Getenv("MATCHCRAWL_INTERACT"); interact != "" {
		c.Discovery.Interact = strings.ToLower(interact) == "true"
	}
	if ratio := os.Getenv("MATCHCRAWL_LIKE_RATIO"); ratio != "" {
		if val, err := strconv.ParseFloat(ratio, 64); err == nil {
			c.Discovery.LikeRatio = val
		}
	}
	if logLevel := os.Getenv("MATCHCRAWL_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for a config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".matchcrawl.yaml",
		".matchcrawl.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "matchcrawl", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".matchcrawl.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("API base URL is required"))
	}

	if c.HTTP.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.HTTP.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}
	if c.HTTP.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}

	if c.Discovery.MaxPages <= 0 {
		errs = append(errs, errors.New("max pages must be positive"))
	}
	if c.Discovery.PageDelayMin < 0 || c.Discovery.PageDelayMax < c.Discovery.PageDelayMin {
		errs = append(errs, errors.New("page delay band is invalid"))
	}
	if c.Discovery.LikeRatio < 0 || c.Discovery.LikeRatio > 1 {
		errs = append(errs, errors.New("like ratio must be between 0 and 1"))
	}

	if c.Backfill.BatchLimit <= 0 {
		errs = append(errs, errors.New("batch limit must be positive"))
	}
	if c.Backfill.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}

	if c.Storage.DataDir == "" {
		errs = append(errs, errors.New("data directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if dataDir, ok := flags["data-dir"].(string); ok && dataDir != "" {
		c.Storage.DataDir = dataDir
	}
	if maxPages, ok := flags["max-pages"].(int); ok && maxPages > 0 {
		c.Discovery.MaxPages = maxPages
	}
	if interact, ok := flags["interact"].(bool); ok {
		c.Discovery.Interact = interact
	}
	if likeRatio, ok := flags["like-ratio"].(float64); ok && likeRatio >= 0 {
		c.Discovery.LikeRatio = likeRatio
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: flags > environment variables > .env file > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".matchcrawl.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
