// Package config loads and watches the liftlog configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration. Values come from the config
// file, LIFTLOG_* environment variables, and defaults, in that order of
// precedence.
type Config struct {
	DBPath string `mapstructure:"db_path"`
	UserID string `mapstructure:"user_id"`

	Remote struct {
		URL    string `mapstructure:"url"`
		APIKey string `mapstructure:"api_key"`
	} `mapstructure:"remote"`

	Sync struct {
		Enabled     bool          `mapstructure:"enabled"`
		Interval    time.Duration `mapstructure:"interval"`
		MaxAttempts int           `mapstructure:"max_attempts"`
	} `mapstructure:"sync"`

	Dashboard struct {
		Enabled bool   `mapstructure:"enabled"`
		Addr    string `mapstructure:"addr"`
	} `mapstructure:"dashboard"`

	Log struct {
		File       string `mapstructure:"file"`
		MaxSizeMB  int    `mapstructure:"max_size_mb"`
		MaxBackups int    `mapstructure:"max_backups"`
	} `mapstructure:"log"`
}

// Loader owns the viper instance so reloads and reads share one source.
type Loader struct {
	v  *viper.Viper
	mu sync.Mutex
}

// DefaultDir returns the per-user liftlog directory (~/.liftlog).
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".liftlog"
	}
	return filepath.Join(home, ".liftlog")
}

// Load reads the config file at path, or the defaults if it does not
// exist. An empty path means <DefaultDir>/config.yaml.
func Load(path string) (*Loader, *Config, error) {
	v := viper.New()

	dir := DefaultDir()
	if path == "" {
		path = filepath.Join(dir, "config.yaml")
	}

	v.SetDefault("db_path", filepath.Join(dir, "liftlog.db"))
	v.SetDefault("user_id", "")
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.api_key", "")
	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.interval", 5*time.Second)
	v.SetDefault("sync.max_attempts", 5)
	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.addr", "localhost:8088")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("LIFTLOG")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Missing file is fine; a malformed one is not.
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	l := &Loader{v: v}
	cfg, err := l.snapshot()
	if err != nil {
		return nil, nil, err
	}
	return l, cfg, nil
}

func (l *Loader) snapshot() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Watch re-reads the file on change and invokes fn with the fresh
// config. Reload errors keep the previous config and are reported
// through errFn when set.
func (l *Loader) Watch(fn func(*Config), errFn func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		l.mu.Lock()
		cfg, err := l.snapshot()
		l.mu.Unlock()
		if err != nil {
			if errFn != nil {
				errFn(err)
			}
			return
		}
		fn(cfg)
	})
	l.v.WatchConfig()
}
