// Package config loads pubsync configuration from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// AppDir is the directory name under XDG_CONFIG_HOME and XDG_DATA_HOME.
	AppDir = "pubsync"
	// ConfigFile is the config file name.
	ConfigFile = "config.yml"
	// DBFile is the default SQLite database file name.
	DBFile = "pubsync.db"
	// AttachmentsDir is the default directory for uploaded documents.
	AttachmentsDir = "attachments"

	// EnvPrefix prefixes every environment override, e.g. PUBSYNC_HTTP_PORT.
	EnvPrefix = "PUBSYNC"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config is the complete pubsync configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http" json:"http"`
	Store       StoreConfig       `yaml:"store" json:"store"`
	Provider    ProviderConfig    `yaml:"provider" json:"provider"`
	Cache       CacheConfig       `yaml:"cache" json:"cache"`
	Attachments AttachmentsConfig `yaml:"attachments" json:"attachments"`
	Auth        AuthConfig        `yaml:"auth" json:"auth"`
	Log         LogConfig         `yaml:"log" json:"log"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port" json:"port" split_words:"true"`
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

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `yaml:"path" json:"path" split_words:"true"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// ProviderConfig configures the bibliographic provider client.
type ProviderConfig struct {
	BaseURL   string        `yaml:"base_url" json:"base_url" split_words:"true"`
	APIKey    string        `yaml:"api_key" json:"api_key" split_words:"true"`
	PerPage   int           `yaml:"per_page" json:"per_page" split_words:"true"`
	RateLimit float64       `yaml:"rate_limit" json:"rate_limit" split_words:"true"` // Requests per second, 0 = unlimited
	Timeout   time.Duration `yaml:"timeout" json:"timeout" split_words:"true"`
}

// Validate validates the provider configuration.
func (c *ProviderConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.PerPage, validation.Required, validation.Min(1), validation.Max(1000)),
		validation.Field(&c.RateLimit, validation.Min(0.0)),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
	)
}

// CacheConfig sizes the public site cache.
type CacheConfig struct {
	Size int           `yaml:"size" json:"size" split_words:"true"`
	TTL  time.Duration `yaml:"ttl" json:"ttl" split_words:"true"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Size, validation.Required, validation.Min(1)),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Second)),
	)
}

// AttachmentsConfig controls where uploaded documents are kept.
type AttachmentsConfig struct {
	Dir      string `yaml:"dir" json:"dir" split_words:"true"`
	MaxBytes int64  `yaml:"max_bytes" json:"max_bytes" split_words:"true"`
}

// Validate validates the attachments configuration.
func (c *AttachmentsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.MaxBytes, validation.Required, validation.Min(int64(1))),
	)
}

// Token maps a bcrypt-hashed bearer token to the owner it authenticates.
type Token struct {
	OwnerID   string `yaml:"owner_id" json:"owner_id"`
	TokenHash string `yaml:"token_hash" json:"token_hash"`
}

// Validate validates a token entry.
func (t Token) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.OwnerID, validation.Required),
		validation.Field(&t.TokenHash, validation.Required, validation.By(isBcryptHash)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): the X-Owner-ID header is trusted, for local use.
//   - "token": Bearer token authentication; at least one token is required.
type AuthConfig struct {
	Mode   string  `yaml:"mode" json:"mode" split_words:"true"`
	Tokens []Token `yaml:"tokens" json:"tokens" ignored:"true"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
		validation.Field(&c.Tokens),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && len(c.Tokens) == 0 {
		return fmt.Errorf("mode is %q but no tokens are configured", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `yaml:"level" json:"level" split_words:"true"`
}

// Validate validates the log configuration.
func (c *LogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Level, validation.Required, validation.In("debug", "info", "warn", "error")),
	)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    validation.Validatable
	}{
		{"http", &c.HTTP},
		{"store", &c.Store},
		{"provider", &c.Provider},
		{"cache", &c.Cache},
		{"attachments", &c.Attachments},
		{"auth", &c.Auth},
		{"log", &c.Log},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// NewDefaultConfig returns a Config with default values.
func NewDefaultConfig() *Config {
	dataDir := DataPath()
	return &Config{
		HTTP:  HTTPConfig{Port: 8080},
		Store: StoreConfig{Path: filepath.Join(dataDir, DBFile)},
		Provider: ProviderConfig{
			BaseURL:   "https://api.scholarly-provider.org/v1",
			PerPage:   100,
			RateLimit: 5,
			Timeout:   30 * time.Second,
		},
		Cache:       CacheConfig{Size: 1024, TTL: 10 * time.Minute},
		Attachments: AttachmentsConfig{Dir: filepath.Join(dataDir, AttachmentsDir), MaxBytes: 25 << 20},
		Auth:        AuthConfig{Mode: AuthModeDisabled},
		Log:         LogConfig{Level: "info"},
	}
}

// Load reads the config file, applies PUBSYNC_* environment overrides, and validates.
// An empty path means the default location, which may be absent.
// An explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
			// Defaults only
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	cfg.Store.Path = ExpandTilde(cfg.Store.Path)
	cfg.Attachments.Dir = ExpandTilde(cfg.Attachments.Dir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// DefaultPath returns the path to the config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/pubsync/config.yml.
func DefaultPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, AppDir, ConfigFile)
}

// DataPath returns the directory for the database and attachments.
// Respects XDG_DATA_HOME, defaults to ~/.local/share/pubsync.
func DataPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return AppDir
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, AppDir)
}

// ExpandTilde expands a leading ~ to the user's home directory.
func ExpandTilde(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

func isBcryptHash(value any) error {
	s, _ := value.(string)
	if !strings.HasPrefix(s, "$2") {
		return errors.New("must be a bcrypt hash (see 'pubsync token hash')")
	}
	return nil
}
