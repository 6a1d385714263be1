// Package config loads tool configuration from defaults, an optional config
// file, environment overrides and explicit flag values.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds every tunable of the recovery system and its boundaries.
type Config struct {
	// Flash image
	Image       string `mapstructure:"image"`        // image file path
	ImageSize   int64  `mapstructure:"image_size"`   // size when creating a fresh image
	PageSize    int64  `mapstructure:"page_size"`    // erase granularity G
	TableOffset int64  `mapstructure:"table_offset"` // partition table offset

	// Differential writer
	MaxWriteSize    int64 `mapstructure:"max_write_size"`
	WriteBufferSize int64 `mapstructure:"write_buffer_size"` // accumulation capacity B
	MaxSessions     int   `mapstructure:"max_sessions"`

	// Registry
	Running string `mapstructure:"running"` // label of the running region; empty = boot target

	// HTTP boundary
	Listen string `mapstructure:"listen"`

	// Logging
	LogLevel string `mapstructure:"log_level"` // debug, info, warn, error
	LogFile  string `mapstructure:"log_file"`  // empty = stderr
}

// Load reads configuration. A non-empty path pins the config file;
// otherwise recovery.yaml is searched in the usual locations and a missing
// file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("image", "recovery.img")
	v.SetDefault("image_size", int64(4<<20))
	v.SetDefault("page_size", int64(4096))
	v.SetDefault("table_offset", int64(0x8000))
	v.SetDefault("max_write_size", int64(5<<20))
	v.SetDefault("write_buffer_size", int64(256<<10))
	v.SetDefault("max_sessions", 4)
	v.SetDefault("running", "")
	v.SetDefault("listen", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("recovery")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/recovery/")
		v.AddConfigPath("$HOME/.recovery")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("RECOVERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if path != "" || !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// NewLogger builds the process logger from the log settings. The returned
// closer is non-nil when a log file was opened.
func (c *Config) NewLogger() (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "", "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("unknown log level %q", c.LogLevel)
	}

	out := io.Writer(os.Stderr)
	var closer io.Closer
	if c.LogFile != "" && c.LogFile != "-" {
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out, closer = f, f
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), closer, nil
}
