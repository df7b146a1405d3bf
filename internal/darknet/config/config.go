// Package config loads wg-dark settings from file, environment and flags.
package config

import (
	"time"

	"github.com/chiquitav2/wg-dark/internal/darknet/wireguard"
	"github.com/chiquitav2/wg-dark/internal/shared/logger"
)

// Config holds the wg-dark configuration.
type Config struct {
	Interface          string `mapstructure:"interface"`
	StateDir           string `mapstructure:"state_dir"`
	Scheme             string `mapstructure:"scheme"`
	StatusURL          string `mapstructure:"status_url"`
	PollInterval       int    `mapstructure:"poll_interval"`
	RequestTimeout     int    `mapstructure:"request_timeout"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
	UserAgent          string `mapstructure:"user_agent"`

	MTU                 int    `mapstructure:"mtu"`
	ListenPort          int    `mapstructure:"listen_port"`
	Subnet              string `mapstructure:"subnet"`
	PersistentKeepalive int    `mapstructure:"persistent_keepalive"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// PollDuration returns the status poll period.
func (c *Config) PollDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// RequestTimeoutDuration returns the per-request HTTP timeout.
func (c *Config) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// InterfaceOptions returns the link parameters for bring-up.
func (c *Config) InterfaceOptions() wireguard.Options {
	return wireguard.Options{
		MTU:         c.MTU,
		ListenPort:  c.ListenPort,
		RouteSubnet: c.Subnet,
	}
}

// LoggerConfig returns the logger settings.
func (c *Config) LoggerConfig() logger.LoggerConfig {
	cfg := logger.DefaultConfig()
	cfg.Level = logger.LogLevel(c.LogLevel)
	cfg.Format = logger.OutputFormat(c.LogFormat)
	return cfg
}
