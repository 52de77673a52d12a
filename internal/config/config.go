// Package config handles application configuration and paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultManifestURL  = "https://piston-meta.mojang.com/mc/game/version_manifest_v2.json"
	DefaultAssetBaseURL = "https://resources.download.minecraft.net"

	envPrefix = "MCINSTALL"
)

// Config holds the application configuration
type Config struct {
	Root           string        `mapstructure:"root"`
	ManifestURL    string        `mapstructure:"manifest_url"`
	AssetBaseURL   string        `mapstructure:"asset_base_url"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	PoolSize       int           `mapstructure:"pool_size"`
	Retries        int           `mapstructure:"retries"`
	Deadline       time.Duration `mapstructure:"deadline"` // 0 disables the overall limit
	RuleMode       string        `mapstructure:"rule_mode"`
	SortAssets     bool          `mapstructure:"sort_assets"`
	NativesExclude []string      `mapstructure:"natives_exclude"`

	Filters FilterConfig  `mapstructure:"filters"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// FilterConfig selects which version types are listed
type FilterConfig struct {
	Release    bool   `mapstructure:"release"`
	Snapshot   bool   `mapstructure:"snapshot"`
	OldBeta    bool   `mapstructure:"old_beta"`
	OldAlpha   bool   `mapstructure:"old_alpha"`
	Constraint string `mapstructure:"constraint"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug | info | warn | error
	Format string `mapstructure:"format"` // json | text
}

// NewViper creates a viper instance with defaults and MCINSTALL_* environment
// binding. The CLI binds its flags on top before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()

	// Set defaults
	v.SetDefault("root", getDefaultDataDir())
	v.SetDefault("manifest_url", DefaultManifestURL)
	v.SetDefault("asset_base_url", DefaultAssetBaseURL)
	v.SetDefault("http_timeout", 5*time.Minute)
	v.SetDefault("pool_size", 8)
	v.SetDefault("retries", 3)
	v.SetDefault("deadline", time.Duration(0))
	v.SetDefault("rule_mode", "legacy")
	v.SetDefault("sort_assets", false)
	v.SetDefault("natives_exclude", []string{})
	v.SetDefault("filters.release", true)
	v.SetDefault("filters.snapshot", false)
	v.SetDefault("filters.old_beta", false)
	v.SetDefault("filters.old_alpha", false)
	v.SetDefault("filters.constraint", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Bind environment variables with MCINSTALL_ prefix
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the optional config file into v, then unmarshals and
// validates the result.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("root must not be empty")
	}
	if c.PoolSize < 1 || c.PoolSize > 64 {
		return fmt.Errorf("pool_size must be between 1 and 64")
	}
	if c.Retries < 0 || c.Retries > 10 {
		return fmt.Errorf("retries must be between 0 and 10")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive")
	}
	if c.Deadline < 0 {
		return fmt.Errorf("deadline must not be negative")
	}
	if c.ManifestURL == "" || c.AssetBaseURL == "" {
		return fmt.Errorf("manifest_url and asset_base_url must be set")
	}

	validModes := map[string]bool{"legacy": true, "accumulate": true, "last-match": true}
	if !validModes[c.RuleMode] {
		return fmt.Errorf("rule_mode must be legacy, accumulate, or last-match")
	}

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be debug, info, warn, or error")
	}

	// Validate logging format
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be json or text")
	}

	return nil
}

func getDefaultDataDir() string {
	// Check for portable mode first
	exe, _ := os.Executable()
	portablePath := filepath.Join(filepath.Dir(exe), "data")
	if _, err := os.Stat(portablePath); err == nil {
		return portablePath
	}

	// Use XDG/platform-specific directories
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "mcinstall")
	}

	home, _ := os.UserHomeDir()
	switch {
	case os.Getenv("APPDATA") != "": // Windows
		return filepath.Join(os.Getenv("APPDATA"), "mcinstall")
	default: // Linux/macOS
		return filepath.Join(home, ".local", "share", "mcinstall")
	}
}
