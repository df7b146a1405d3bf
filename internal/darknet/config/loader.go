package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/chiquitav2/wg-dark/internal/shared/errors"
)

// maxInterfaceName is IFNAMSIZ minus the terminating NUL.
const maxInterfaceName = 15

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	l := &Loader{v: viper.New()}
	l.setDefaults()
	return l
}

// Viper exposes the underlying instance so commands can bind flags.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from files and environment variables.
func (l *Loader) Load() (*Config, error) {
	l.setupConfigPaths()
	l.setupEnvVars()

	// Config file is optional
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return l.unmarshal()
}

// LoadWithPath loads configuration from a specific file path.
func (l *Loader) LoadWithPath(path string) (*Config, error) {
	l.setupEnvVars()
	l.v.SetConfigFile(expandPath(path))

	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg.StateDir = expandPath(cfg.StateDir)
	return &cfg, nil
}

// setDefaults sets default configuration values.
func (l *Loader) setDefaults() {
	l.v.SetDefault("interface", "wgdark0")
	l.v.SetDefault("state_dir", "/etc/wg-dark")
	l.v.SetDefault("scheme", "https")
	l.v.SetDefault("status_url", "http://127.0.0.1:1337/status")
	l.v.SetDefault("poll_interval", 20)   // seconds
	l.v.SetDefault("request_timeout", 30) // seconds
	l.v.SetDefault("insecure_skip_verify", false)
	l.v.SetDefault("user_agent", "wg-dark")
	l.v.SetDefault("mtu", 1420)
	l.v.SetDefault("listen_port", 1337)
	l.v.SetDefault("subnet", "10.13.37.0/24")
	l.v.SetDefault("persistent_keepalive", 25)
	l.v.SetDefault("log_level", "info")
	l.v.SetDefault("log_format", "text")
}

// setupConfigPaths configures where to search for config files.
func (l *Loader) setupConfigPaths() {
	l.v.SetConfigName(".wg-dark")
	l.v.SetConfigType("yaml")

	l.v.AddConfigPath("/etc/wg-dark")
	if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(home)
	}
	l.v.AddConfigPath(".")
}

// setupEnvVars configures environment variable handling.
func (l *Loader) setupEnvVars() {
	l.v.SetEnvPrefix("WG_DARK")
	l.v.AutomaticEnv()
}

func validate(cfg *Config) error {
	if err := ValidateInterfaceName(cfg.Interface); err != nil {
		return err
	}

	if cfg.StateDir == "" {
		return errors.NewConfigError("state_dir", "state_dir is required")
	}

	if cfg.Scheme != "https" && cfg.Scheme != "http" {
		return errors.NewConfigError("scheme", fmt.Sprintf("invalid scheme: %s (must be https or http)", cfg.Scheme))
	}

	if u, err := url.Parse(cfg.StatusURL); err != nil || u.Scheme == "" || u.Host == "" {
		return errors.NewConfigError("status_url", fmt.Sprintf("invalid status_url: %q", cfg.StatusURL))
	}

	if cfg.PollInterval < 1 {
		return errors.NewConfigError("poll_interval", "poll_interval must be at least 1 second")
	}

	if cfg.RequestTimeout < 1 {
		return errors.NewConfigError("request_timeout", "request_timeout must be at least 1 second")
	}

	if cfg.MTU < 576 || cfg.MTU > 65535 {
		return errors.NewConfigError("mtu", fmt.Sprintf("invalid mtu: %d", cfg.MTU))
	}

	if cfg.ListenPort < 1 || cfg.ListenPort > 65535 {
		return errors.NewConfigError("listen_port", fmt.Sprintf("invalid listen_port: %d", cfg.ListenPort))
	}

	if _, _, err := net.ParseCIDR(cfg.Subnet); err != nil {
		return errors.NewConfigError("subnet", fmt.Sprintf("invalid subnet: %q", cfg.Subnet))
	}

	if cfg.PersistentKeepalive < 0 || cfg.PersistentKeepalive > 65535 {
		return errors.NewConfigError("persistent_keepalive", fmt.Sprintf("invalid persistent_keepalive: %d", cfg.PersistentKeepalive))
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return errors.NewConfigError("log_level", fmt.Sprintf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel))
	}

	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return errors.NewConfigError("log_format", fmt.Sprintf("invalid log_format: %s (must be text or json)", cfg.LogFormat))
	}

	return nil
}

// ValidateInterfaceName checks a name is usable as a Linux link name.
func ValidateInterfaceName(name string) error {
	switch {
	case name == "":
		return errors.NewConfigError("interface", "interface name is required")
	case len(name) > maxInterfaceName:
		return errors.NewConfigError("interface", fmt.Sprintf("interface name %q is longer than %d characters", name, maxInterfaceName))
	case strings.ContainsAny(name, "/ \t\n:") || name == "." || name == "..":
		return errors.NewConfigError("interface", fmt.Sprintf("invalid interface name %q", name))
	}
	return nil
}

// expandPath expands ~ to home directory in file paths.
func expandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if len(path) == 1 {
		return home
	}

	return filepath.Join(home, path[1:])
}
