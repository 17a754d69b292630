package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/quietreach/reach-cli/internal/domain"
)

const (
	configName = "config"
	configType = "toml"
	configDir  = ".reach"
)

type Config struct {
	Limits   Limits
	Executor Executor
	Sessions Sessions
	Storage  Storage
	Platform Platform
	Logging  Logging
}

type Limits struct {
	Window       time.Duration
	MaxPerWindow map[domain.ActionKind]int
}

type Executor struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

type Sessions struct {
	RefreshMargin time.Duration
}

type Storage struct {
	// Backend selects the persistence adapter: "toml" or "redis".
	Backend  string
	RedisURL string
}

type Platform struct {
	BaseURL        string
	RequestTimeout time.Duration
	SessionTTL     time.Duration
}

type Logging struct {
	Level  string
	Format string
}

// Load resolves configuration from defaults, ~/.reach/config.toml and the
// REACH_* environment. A missing config file is fine; a malformed one is not.
func Load(cfg *viper.Viper) (Config, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("resolve home directory: %w", err)
	}

	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(filepath.Join(homeDir, configDir))
	cfg.SetEnvPrefix("REACH")
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()

	applyDefaults(cfg)

	if err := cfg.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	loaded := Config{
		Limits: Limits{
			Window:       cfg.GetDuration("limits.window"),
			MaxPerWindow: map[domain.ActionKind]int{},
		},
		Executor: Executor{
			MaxRetries:  cfg.GetInt("executor.max_retries"),
			BaseBackoff: cfg.GetDuration("executor.base_backoff"),
			MaxBackoff:  cfg.GetDuration("executor.max_backoff"),
		},
		Sessions: Sessions{
			RefreshMargin: cfg.GetDuration("sessions.refresh_margin"),
		},
		Storage: Storage{
			Backend:  cfg.GetString("storage.backend"),
			RedisURL: cfg.GetString("storage.redis_url"),
		},
		Platform: Platform{
			BaseURL:        cfg.GetString("platform.base_url"),
			RequestTimeout: cfg.GetDuration("platform.request_timeout"),
			SessionTTL:     cfg.GetDuration("platform.session_ttl"),
		},
		Logging: Logging{
			Level:  cfg.GetString("logging.level"),
			Format: cfg.GetString("logging.format"),
		},
	}

	for _, kind := range domain.ActionKinds() {
		loaded.Limits.MaxPerWindow[kind] = cfg.GetInt(capacityKey(kind))
	}

	if err := loaded.validate(); err != nil {
		return Config{}, err
	}

	return loaded, nil
}

func capacityKey(kind domain.ActionKind) string {
	return fmt.Sprintf("limits.%s.max_per_window", kind)
}

func applyDefaults(cfg *viper.Viper) {
	cfg.SetDefault("limits.window", 24*time.Hour)
	cfg.SetDefault(capacityKey(domain.ActionConnect), 20)
	cfg.SetDefault(capacityKey(domain.ActionMessage), 50)
	cfg.SetDefault(capacityKey(domain.ActionViewProfile), 100)
	cfg.SetDefault(capacityKey(domain.ActionScrape), 40)

	cfg.SetDefault("executor.max_retries", 3)
	cfg.SetDefault("executor.base_backoff", 2*time.Second)
	cfg.SetDefault("executor.max_backoff", time.Minute)

	cfg.SetDefault("sessions.refresh_margin", 12*time.Hour)

	cfg.SetDefault("storage.backend", "toml")
	cfg.SetDefault("storage.redis_url", "redis://localhost:6379/0")

	cfg.SetDefault("platform.base_url", "https://www.linkedin.com")
	cfg.SetDefault("platform.request_timeout", 30*time.Second)
	cfg.SetDefault("platform.session_ttl", 720*time.Hour)

	cfg.SetDefault("logging.level", "info")
	cfg.SetDefault("logging.format", "console")
}

func (c Config) validate() error {
	if c.Limits.Window <= 0 {
		return errors.New("limits.window must be positive")
	}
	for kind, capacity := range c.Limits.MaxPerWindow {
		if capacity < 1 {
			return fmt.Errorf("limits.%s.max_per_window must be at least 1", kind)
		}
	}
	if c.Executor.MaxRetries < 1 {
		return errors.New("executor.max_retries must be at least 1")
	}
	if c.Executor.BaseBackoff <= 0 || c.Executor.MaxBackoff < c.Executor.BaseBackoff {
		return errors.New("executor backoff bounds are invalid")
	}
	if c.Storage.Backend != "toml" && c.Storage.Backend != "redis" {
		return fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}

	return nil
}
