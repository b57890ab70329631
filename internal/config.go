package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Mosaic  MosaicConfig      `yaml:"mosaic"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	Auth    AuthConfig        `yaml:"auth"`
	Indexer IndexerConfig     `yaml:"indexer"`
	Search  SearchConfig      `yaml:"search"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Mosaic.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Indexer.Validate(); err != nil {
		return err
	}
	return c.Search.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// MosaicConfig holds the path to the mosaic root directory.
type MosaicConfig struct {
	Path string `yaml:"path"`
	// MaxAttachmentSize is the attachment size ceiling in bytes.
	MaxAttachmentSize int64 `yaml:"max_attachment_size"`
}

// Validate validates the mosaic configuration.
func (c *MosaicConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// IndexerConfig holds indexer tuning.
type IndexerConfig struct {
	DebounceMS    int      `yaml:"debounce_ms"`
	SweepMS       int      `yaml:"sweep_ms"`
	MaxFileSize   int64    `yaml:"max_file_size"`
	ExcludeGlobs  []string `yaml:"exclude_globs"`
	IncludeHidden bool     `yaml:"include_hidden"`
}

// Debounce returns the debounce window as a duration.
func (c *IndexerConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// SweepInterval returns the sweep interval as a duration.
func (c *IndexerConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepMS) * time.Millisecond
}

// Validate validates the indexer configuration.
func (c *IndexerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DebounceMS, validation.Min(0)),
		validation.Field(&c.SweepMS, validation.Min(0)),
		validation.Field(&c.MaxFileSize, validation.Min(int64(0))),
	)
}

// SearchConfig holds search engine tuning.
type SearchConfig struct {
	MaxResults     int     `yaml:"max_results"`
	TitleBoost     float64 `yaml:"title_boost"`
	RecencyBoost   float64 `yaml:"recency_boost"`
	MaxSuggestions int     `yaml:"max_suggestions"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxResults, validation.Min(0)),
		validation.Field(&c.MaxSuggestions, validation.Min(0)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Mosaic: MosaicConfig{
			Path:              "./mosaic",
			MaxAttachmentSize: 100 << 20,
		},
		SQLite: SQLiteConfig{
			Path: "./tessera.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Indexer: IndexerConfig{
			DebounceMS:   250,
			SweepMS:      100,
			MaxFileSize:  10 << 20,
			ExcludeGlobs: []string{"**/*.tmp", "**/.tessera-tmp-*"},
		},
		Search: SearchConfig{
			MaxResults:     50,
			TitleBoost:     2.0,
			RecencyBoost:   0.1,
			MaxSuggestions: 5,
		},
	}
}
