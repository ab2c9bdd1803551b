package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pbaille/fieldmap/internal/logger"
	"github.com/pbaille/fieldmap/internal/store"
)

const (
	// Default values
	DefaultAddr         = ":4000"
	DefaultBackend      = store.KindFile
	DefaultCORSOrigin   = "http://localhost:5173"
	DefaultMaxBodyBytes = 20 * 1024 * 1024 // 20MB
	DefaultLogLevel     = "info"
	DefaultLogFormat    = logger.FormatJSON
	DefaultServer       = "http://localhost:4000"

	// EnvPrefix prefixes every environment variable read by Load
	EnvPrefix = "FIELDMAP"
)

// Config holds all configuration for the service and CLI
type Config struct {
	// Server configuration
	Addr         string
	CORSOrigin   string
	MaxBodyBytes int64

	// Storage configuration
	DataDir    string
	UploadsDir string
	Backend    string

	// Logging
	LogLevel  string
	LogFormat string

	// Server URL used by remote commands
	Server string
}

// DefaultDataDir returns ~/.fieldmap, or .fieldmap when the home directory
// cannot be determined
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fieldmap"
	}
	return filepath.Join(home, ".fieldmap")
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Addr:         DefaultAddr,
		CORSOrigin:   DefaultCORSOrigin,
		MaxBodyBytes: DefaultMaxBodyBytes,
		DataDir:      DefaultDataDir(),
		Backend:      DefaultBackend,
		LogLevel:     DefaultLogLevel,
		LogFormat:    DefaultLogFormat,
		Server:       DefaultServer,
	}
}

// DefineFlags adds every configuration flag to fs and binds it to v
func DefineFlags(fs *pflag.FlagSet, v *viper.Viper) {
	cfg := DefaultConfig()

	fs.String("config", "", "config file (yaml, toml or json)")
	fs.String("addr", cfg.Addr, "HTTP listen address")
	fs.String("cors-origin", cfg.CORSOrigin, "allowed CORS origin")
	fs.Int64("max-body-bytes", cfg.MaxBodyBytes, "maximum request body size in bytes")
	fs.String("data-dir", cfg.DataDir, "directory holding the store")
	fs.String("uploads-dir", "", "directory for uploaded files (default <data-dir>/uploads)")
	fs.String("backend", cfg.Backend, "store backend: file, sqlite or memory")
	fs.String("log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.String("log-format", cfg.LogFormat, "log format (json, console)")
	fs.String("server", cfg.Server, "server URL for remote commands")

	for _, name := range []string{
		"addr", "cors-origin", "max-body-bytes", "data-dir", "uploads-dir",
		"backend", "log-level", "log-format", "server",
	} {
		_ = v.BindPFlag(key(name), fs.Lookup(name))
	}
}

// key maps a flag name to its viper key
func key(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

// Load resolves the configuration from flags, environment and the optional
// config file, in that order of precedence.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	cfg := DefaultConfig()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", cfg.Addr)
	v.SetDefault("cors_origin", cfg.CORSOrigin)
	v.SetDefault("max_body_bytes", cfg.MaxBodyBytes)
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("uploads_dir", "")
	v.SetDefault("backend", cfg.Backend)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("server", cfg.Server)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg.Addr = v.GetString("addr")
	cfg.CORSOrigin = v.GetString("cors_origin")
	cfg.MaxBodyBytes = v.GetInt64("max_body_bytes")
	cfg.DataDir = v.GetString("data_dir")
	cfg.UploadsDir = v.GetString("uploads_dir")
	cfg.Backend = v.GetString("backend")
	cfg.LogLevel = v.GetString("log_level")
	cfg.LogFormat = v.GetString("log_format")
	cfg.Server = v.GetString("server")

	if cfg.UploadsDir == "" {
		cfg.UploadsDir = filepath.Join(cfg.DataDir, "uploads")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	switch c.Backend {
	case store.KindFile, store.KindSQLite, store.KindMemory:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	switch c.LogFormat {
	case logger.FormatJSON, logger.FormatConsole:
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("max body bytes must be positive")
	}
	if c.Addr == "" {
		return errors.New("listen address is required")
	}
	if c.Backend != store.KindMemory && c.DataDir == "" {
		return errors.New("data directory is required")
	}
	return nil
}
