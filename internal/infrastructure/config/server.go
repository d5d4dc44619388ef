// Package config loads server settings and exclusion rules from disk,
// environment and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/RickCogley/aichaku-sub007/internal/infrastructure/feedback"
)

// ServerConfig is the full runtime configuration of the review server.
type ServerConfig struct {
	Port           int           `mapstructure:"port" yaml:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Scan    ScanConfig    `mapstructure:"scan" yaml:"scan"`

	// ExclusionsFile points at an optional user exclusion config
	// (.yaml or .json) merged over the built-in defaults.
	ExclusionsFile string `mapstructure:"exclusions_file" yaml:"exclusions_file"`

	// AllowedRoot anchors the path traversal gate: review paths that
	// climb outside it are excluded. Empty means the process working
	// directory.
	AllowedRoot string `mapstructure:"allowed_root" yaml:"allowed_root"`

	Webhook feedback.WebhookConfig `mapstructure:"webhook" yaml:"webhook"`
}

// SessionConfig bounds worker sessions.
type SessionConfig struct {
	IdleTimeout      time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	StartupTimeout   time.Duration `mapstructure:"startup_timeout" yaml:"startup_timeout"`
	CloseGrace       time.Duration `mapstructure:"close_grace" yaml:"close_grace"`
	MaxSessions      int           `mapstructure:"max_sessions" yaml:"max_sessions"`
	MaxLineBytes     int           `mapstructure:"max_line_bytes" yaml:"max_line_bytes"`
	SubscriberBuffer int           `mapstructure:"subscriber_buffer" yaml:"subscriber_buffer"`
}

// ScanConfig bounds scanner execution.
type ScanConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// Scanners restricts which external adapters are registered; empty
	// means all known adapters.
	Scanners       []string `mapstructure:"scanners" yaml:"scanners"`
	CodeQLDatabase string   `mapstructure:"codeql_database" yaml:"codeql_database"`
}

// LoadServerConfig reads reviewd.yaml (when path is empty, the standard
// lookup locations) plus REVIEWD_* environment overrides. A missing
// config file yields the defaults; a malformed one is an error.
func LoadServerConfig(path string) (ServerConfig, error) {
	v := viper.New()

	v.SetDefault("port", 7182)
	v.SetDefault("request_timeout", 120*time.Second)
	v.SetDefault("session.idle_timeout", 5*time.Minute)
	v.SetDefault("session.startup_timeout", 10*time.Second)
	v.SetDefault("session.close_grace", 5*time.Second)
	v.SetDefault("session.max_sessions", 0)
	v.SetDefault("session.max_line_bytes", 5*1024*1024)
	v.SetDefault("session.subscriber_buffer", 64)
	v.SetDefault("scan.timeout", 30*time.Second)
	v.SetDefault("allowed_root", "")

	v.SetEnvPrefix("REVIEWD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return ServerConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("reviewd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/reviewd")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return ServerConfig{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
