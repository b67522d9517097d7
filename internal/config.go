package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/quire/internal/search"
	"github.com/starford/quire/internal/supervisor"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Content ContentConfig     `yaml:"content"`
	Search  SearchConfig      `yaml:"search"`
	Cache   CacheConfig       `yaml:"cache"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Content.Validate(); err != nil {
		return fmt.Errorf("content: %w", err)
	}
	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return c.Auth.Validate()
}

// Supervisor maps the content, search and cache sections onto the
// supervisor's configuration.
func (c *Config) Supervisor() supervisor.Config {
	return supervisor.Config{
		Articles:      supervisor.Root{Path: c.Content.Articles.Path, Nested: c.Content.Articles.Nested},
		Notes:         supervisor.Root{Path: c.Content.Notes.Path, Nested: c.Content.Notes.Nested},
		DataDir:       c.Content.DataDir,
		Debounce:      c.Content.Debounce,
		HeapSize:      c.Search.HeapSize,
		ContentLimit:  c.Search.ContentLimit,
		LatestCount:   c.App.LatestArticlesCount,
		CacheCapacity: c.Cache.Capacity,
		CacheTTL:      c.Cache.TTL,
	}
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel            slog.Level `yaml:"log_level"`
	HTTP                HTTPConfig `yaml:"http"`
	LatestArticlesCount int        `yaml:"latest_articles_count"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LatestArticlesCount, validation.Required, validation.Min(1)),
	); err != nil {
		return err
	}
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

// RootConfig locates one content directory. Nested roots may keep files in
// category subdirectories.
type RootConfig struct {
	Path   string `yaml:"path"`
	Nested bool   `yaml:"nested"`
}

// Validate validates the root configuration.
func (c RootConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Path, validation.Required),
	)
}

// ContentConfig holds the content roots and the version archive location.
type ContentConfig struct {
	Articles RootConfig    `yaml:"articles"`
	Notes    RootConfig    `yaml:"notes"`
	DataDir  string        `yaml:"data_dir"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the content configuration.
func (c *ContentConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Articles),
		validation.Field(&c.Notes),
		validation.Field(&c.DataDir, validation.Required),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// SearchConfig holds the full-text index configuration.
type SearchConfig struct {
	Enabled      bool   `yaml:"enabled"`
	IndexPath    string `yaml:"index_path"`
	HeapSize     int    `yaml:"heap_size"`
	ContentLimit int    `yaml:"content_limit"`
}

// Validate validates the search configuration. Paths and sizes are only
// checked when search is enabled.
func (c *SearchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.IndexPath, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.HeapSize, validation.When(c.Enabled, validation.Required, validation.Min(search.MinHeapSize))),
		validation.Field(&c.ContentLimit, validation.Min(0)),
	)
}

// CacheConfig bounds the in-memory body cache.
type CacheConfig struct {
	Capacity int           `yaml:"capacity"`
	TTL      time.Duration `yaml:"ttl"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Capacity, validation.Min(0)),
		validation.Field(&c.TTL, validation.Min(time.Duration(0))),
	)
}

// AuthConfig holds authentication configuration for write routes.
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 3000,
			},
			LatestArticlesCount: 5,
		},
		Content: ContentConfig{
			Articles: RootConfig{Path: "article", Nested: true},
			Notes:    RootConfig{Path: "notes", Nested: true},
			DataDir:  "data",
			Debounce: supervisor.DefaultDebounce,
		},
		Search: SearchConfig{
			Enabled:      true,
			IndexPath:    "search_index/quire.db",
			HeapSize:     50_000_000,
			ContentLimit: 10_000,
		},
		Cache: CacheConfig{
			Capacity: 1000,
			TTL:      60 * time.Second,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
