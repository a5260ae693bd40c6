// Package config provides configuration management for mixpaths using Viper
// for loading from files, environment variables and command-line flags.
//
// The configuration file is YAML (.mixpaths.yml by default). Every key can
// be overridden with a MIXPATHS_ prefixed environment variable, dots
// replaced by underscores (MIXPATHS_HOT_PORT, MIXPATHS_WATCH_DEBOUNCE).
package config

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/mixpaths/internal/entry"
	"github.com/conneroisu/mixpaths/internal/errors"
	"github.com/conneroisu/mixpaths/internal/logging"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "MIXPATHS"
	// EnvConfigFile names an explicit configuration file.
	EnvConfigFile = "MIXPATHS_CONFIG_FILE"
	// FileName is the configuration file looked up in the working directory.
	FileName = ".mixpaths"
)

// hostDangerousChars may not appear in hot.host: each would change the
// meaning of the URL it is interpolated into.
const hostDangerousChars = ";&|$`()<>\"'\\/?#@ \t\r\n"

type Config struct {
	PublicDir  string               `mapstructure:"public_dir" yaml:"public_dir" json:"public_dir" toml:"public_dir"`
	Manifest   string               `mapstructure:"manifest" yaml:"manifest" json:"manifest" toml:"manifest"`
	Versioning bool                 `mapstructure:"versioning" yaml:"versioning" json:"versioning" toml:"versioning"`
	Hot        HotConfig            `mapstructure:"hot" yaml:"hot" json:"hot" toml:"hot"`
	Watch      WatchConfig          `mapstructure:"watch" yaml:"watch" json:"watch" toml:"watch"`
	LiveReload LiveReloadConfig     `mapstructure:"livereload" yaml:"livereload" json:"livereload" toml:"livereload"`
	Defaults   entry.PartialOptions `mapstructure:"defaults" yaml:"defaults" json:"defaults" toml:"defaults"`
	Entries    []EntryConfig        `mapstructure:"entries" yaml:"entries" json:"entries" toml:"entries"`
	Log        LogConfig            `mapstructure:"log" yaml:"log" json:"log" toml:"log"`
}

// HotConfig describes the hot module replacement dev server. While it is
// enabled, references resolve against it and versioning is off.
type HotConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled" toml:"enabled"`
	HTTPS   bool   `mapstructure:"https" yaml:"https" json:"https" toml:"https"`
	Host    string `mapstructure:"host" yaml:"host" json:"host" toml:"host"`
	Port    int    `mapstructure:"port" yaml:"port" json:"port" toml:"port"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce" json:"debounce" toml:"debounce"`
}

type LiveReloadConfig struct {
	// Addr is the listen address of the live reload server. Empty disables it.
	Addr           string   `mapstructure:"addr" yaml:"addr" json:"addr" toml:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins,omitempty" json:"allowed_origins,omitempty" toml:"allowed_origins,omitempty"`
}

// EntryConfig is one entries[] item of the configuration file.
type EntryConfig struct {
	From    []string              `mapstructure:"from" yaml:"from" json:"from" toml:"from"`
	To      string                `mapstructure:"to" yaml:"to" json:"to" toml:"to"`
	Options *entry.PartialOptions `mapstructure:"options" yaml:"options,omitempty" json:"options,omitempty" toml:"options,omitempty"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level" toml:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format" toml:"format"`
}

// SetDefaults registers the default value of every key on v. Keys must be
// known to v for environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("public_dir", ".")
	v.SetDefault("manifest", "mix-manifest.json")
	v.SetDefault("versioning", false)
	v.SetDefault("hot.enabled", false)
	v.SetDefault("hot.https", false)
	v.SetDefault("hot.host", "localhost")
	v.SetDefault("hot.port", 8080)
	v.SetDefault("watch.debounce", 100*time.Millisecond)
	v.SetDefault("livereload.addr", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	// Partial options have no default; bind them so the environment still
	// applies.
	_ = v.BindEnv("defaults.flatten")
	_ = v.BindEnv("defaults.delimiters.left")
	_ = v.BindEnv("defaults.delimiters.right")
}

// Setup points v at the configuration file and the environment. cfgFile
// takes precedence over MIXPATHS_CONFIG_FILE, which takes precedence over
// .mixpaths.yml in the working directory.
func Setup(v *viper.Viper, cfgFile string, lookupEnv func(string) (string, bool)) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else if envFile, ok := lookupEnv(EnvConfigFile); ok && envFile != "" {
		v.SetConfigFile(envFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(FileName)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
}

// ReadInConfig reads the configured file. A missing default file is not an
// error; a missing explicit file is.
func ReadInConfig(v *viper.Viper) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}

	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return nil
	}

	return errors.Wrap(err, errors.ErrorTypeConfig, errors.ErrCodeConfigInvalid, "read configuration")
}

// Load builds the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom builds and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.ErrCodeConfigInvalid, "decode configuration")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks values that would otherwise fail late, during a pass.
func (c *Config) Validate() error {
	if c.Manifest == "" {
		return errors.ErrManifestNotConfigured()
	}

	if c.Hot.Port < 0 || c.Hot.Port > 65535 {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("hot.port %d is not in valid range 0-65535", c.Hot.Port))
	}

	if c.Hot.Enabled && c.Hot.Host == "" {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "hot.host must be set when hot.enabled is true")
	}

	if strings.ContainsAny(c.Hot.Host, hostDangerousChars) {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("hot.host %q contains a character not allowed in a host name", c.Hot.Host))
	}

	if c.LiveReload.Addr != "" {
		if _, _, err := net.SplitHostPort(c.LiveReload.Addr); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, errors.ErrCodeConfigInvalid, "livereload.addr")
		}
	}

	if c.Watch.Debounce < 0 {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "watch.debounce must not be negative")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "log.level: "+err.Error())
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("log.format must be text or json, got %q", c.Log.Format))
	}

	for i, e := range c.Entries {
		raw := c.rawEntry(e)
		if err := raw.Validate(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, errors.ErrCodeInvalidEntry, fmt.Sprintf("entries[%d]", i))
		}
	}

	return nil
}

// ManifestPath returns the manifest location. Relative paths are resolved
// against the public directory.
func (c *Config) ManifestPath() string {
	if c.Manifest == "" {
		return ""
	}

	if filepath.IsAbs(c.Manifest) {
		return c.Manifest
	}

	return filepath.Join(c.PublicDir, c.Manifest)
}

// UseVersioning reports whether compiled entries are published with a
// content hash. Hot mode always disables it.
func (c *Config) UseVersioning() bool {
	return c.Versioning && !c.Hot.Enabled
}

// HotURL returns the base URL of the hot server, or "" when hot mode is off.
func (c *Config) HotURL() string {
	if !c.Hot.Enabled {
		return ""
	}

	scheme := "http"
	if c.Hot.HTTPS {
		scheme = "https"
	}

	u := url.URL{Scheme: scheme, Host: c.Hot.Host + ":" + strconv.Itoa(c.Hot.Port)}

	return u.String()
}

// DefaultOptions returns the built-in options overridden by defaults.*.
func (c *Config) DefaultOptions() entry.Options {
	return entry.MergeOptions(entry.DefaultOptions(), &c.Defaults)
}

// RawEntries returns the configured declarations with their options merged
// over the defaults.
func (c *Config) RawEntries() []entry.RawEntry {
	raws := make([]entry.RawEntry, 0, len(c.Entries))
	for _, e := range c.Entries {
		raws = append(raws, c.rawEntry(e))
	}

	return raws
}

func (c *Config) rawEntry(e EntryConfig) entry.RawEntry {
	return entry.RawEntry{
		From:    e.From,
		To:      e.To,
		Options: entry.MergeOptions(c.DefaultOptions(), e.Options),
	}
}

// ResolveEntries expands the configured globs into entries.
func (c *Config) ResolveEntries() ([]entry.Entry, error) {
	return entry.ResolveAll(c.RawEntries(), c.PublicDir)
}

// LoggerConfig maps log.* onto a logger configuration.
func (c *Config) LoggerConfig() *logging.LoggerConfig {
	cfg := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.Log.Level); err == nil {
		cfg.Level = level
	}
	if c.Log.Format != "" {
		cfg.Format = c.Log.Format
	}

	return cfg
}
