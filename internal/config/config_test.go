package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/mixpaths/internal/entry"
	"github.com/conneroisu/mixpaths/internal/errors"
	"github.com/conneroisu/mixpaths/internal/logging"
)

func noEnv(string) (string, bool) { return "", false }

func newViper(t *testing.T, yamlContent string) *viper.Viper {
	t.Helper()

	v := viper.New()
	cfgFile := ""
	if yamlContent != "" {
		cfgFile = filepath.Join(t.TempDir(), ".mixpaths.yml")
		require.NoError(t, os.WriteFile(cfgFile, []byte(yamlContent), 0o644))
	}

	Setup(v, cfgFile, noEnv)
	require.NoError(t, ReadInConfig(v))

	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(newViper(t, ""))
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.PublicDir)
	assert.Equal(t, "mix-manifest.json", cfg.Manifest)
	assert.False(t, cfg.Versioning)
	assert.False(t, cfg.Hot.Enabled)
	assert.Equal(t, "localhost", cfg.Hot.Host)
	assert.Equal(t, 8080, cfg.Hot.Port)
	assert.Equal(t, 100*time.Millisecond, cfg.Watch.Debounce)
	assert.Empty(t, cfg.LiveReload.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Empty(t, cfg.Entries)

	assert.Equal(t, entry.DefaultOptions(), cfg.DefaultOptions())
	assert.Equal(t, "mix-manifest.json", cfg.ManifestPath())
}

func TestLoadFile(t *testing.T) {
	v := newViper(t, `
public_dir: public
versioning: true
watch:
  debounce: 250ms
livereload:
  addr: 127.0.0.1:35729
defaults:
  flatten: false
entries:
  - from: ["resources/**/*.txt"]
    to: public/txt
  - from: resources/extra.txt
    to: public/extra
    options:
      delimiters:
        left: "<<"
        right: ">>"
      flatten: true
log:
  level: debug
  format: json
`)

	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, "public", cfg.PublicDir)
	assert.True(t, cfg.UseVersioning())
	assert.Equal(t, 250*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, "127.0.0.1:35729", cfg.LiveReload.Addr)
	assert.Equal(t, filepath.Join("public", "mix-manifest.json"), cfg.ManifestPath())

	raws := cfg.RawEntries()
	require.Len(t, raws, 2)

	assert.Equal(t, []string{"resources/**/*.txt"}, raws[0].From)
	assert.Equal(t, "public/txt", raws[0].To)
	assert.Equal(t, entry.Options{Delimiters: entry.Delimiters{Left: "{{", Right: "}}"}, Flatten: false}, raws[0].Options)

	assert.Equal(t, []string{"resources/extra.txt"}, raws[1].From)
	assert.Equal(t, entry.Options{Delimiters: entry.Delimiters{Left: "<<", Right: ">>"}, Flatten: true}, raws[1].Options)

	logCfg := cfg.LoggerConfig()
	assert.Equal(t, logging.LevelDebug, logCfg.Level)
	assert.Equal(t, "json", logCfg.Format)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("MIXPATHS_VERSIONING", "true")
	t.Setenv("MIXPATHS_HOT_PORT", "9090")
	t.Setenv("MIXPATHS_WATCH_DEBOUNCE", "1s")
	t.Setenv("MIXPATHS_DEFAULTS_DELIMITERS_LEFT", "[[")

	cfg, err := LoadFrom(newViper(t, "public_dir: public\n"))
	require.NoError(t, err)

	assert.True(t, cfg.Versioning)
	assert.Equal(t, 9090, cfg.Hot.Port)
	assert.Equal(t, time.Second, cfg.Watch.Debounce)
	assert.Equal(t, "[[", cfg.DefaultOptions().Delimiters.Left)
	assert.Equal(t, "}}", cfg.DefaultOptions().Delimiters.Right)
}

func TestSetupConfigFileFromEnv(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "custom.yml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("public_dir: web\n"), 0o644))

	v := viper.New()
	Setup(v, "", func(key string) (string, bool) {
		if key == EnvConfigFile {
			return cfgFile, true
		}
		return "", false
	})
	require.NoError(t, ReadInConfig(v))

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "web", cfg.PublicDir)
}

func TestReadInConfigMissingExplicitFile(t *testing.T) {
	v := viper.New()
	Setup(v, filepath.Join(t.TempDir(), "missing.yml"), noEnv)

	err := ReadInConfig(v)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestHotMode(t *testing.T) {
	testCases := []struct {
		name       string
		hot        HotConfig
		versioning bool
		url        string
		versioned  bool
	}{
		{
			name:       "disabled",
			hot:        HotConfig{Host: "localhost", Port: 8080},
			versioning: true,
			url:        "",
			versioned:  true,
		},
		{
			name:       "http",
			hot:        HotConfig{Enabled: true, Host: "localhost", Port: 8080},
			versioning: true,
			url:        "http://localhost:8080",
			versioned:  false,
		},
		{
			name:       "https",
			hot:        HotConfig{Enabled: true, HTTPS: true, Host: "dev.test", Port: 443},
			versioning: false,
			url:        "https://dev.test:443",
			versioned:  false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{Hot: tc.hot, Versioning: tc.versioning}
			assert.Equal(t, tc.url, cfg.HotURL())
			assert.Equal(t, tc.versioned, cfg.UseVersioning())
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			PublicDir: ".",
			Manifest:  "mix-manifest.json",
			Hot:       HotConfig{Host: "localhost", Port: 8080},
			Watch:     WatchConfig{Debounce: 100 * time.Millisecond},
			Log:       LogConfig{Level: "info", Format: "text"},
		}
	}

	empty := ""

	testCases := []struct {
		name     string
		mutate   func(c *Config)
		contains string
	}{
		{"valid", func(c *Config) {}, ""},
		{"empty manifest", func(c *Config) { c.Manifest = "" }, "expected a manifest file to be generated"},
		{"port out of range", func(c *Config) { c.Hot.Port = 70000 }, "hot.port"},
		{"hot without host", func(c *Config) { c.Hot.Enabled = true; c.Hot.Host = "" }, "hot.host"},
		{"host with path", func(c *Config) { c.Hot.Host = "evil.test/x" }, "hot.host"},
		{"host with userinfo", func(c *Config) { c.Hot.Host = "user@evil.test" }, "hot.host"},
		{"livereload addr without port", func(c *Config) { c.LiveReload.Addr = "localhost" }, "livereload.addr"},
		{"livereload addr", func(c *Config) { c.LiveReload.Addr = ":35729" }, ""},
		{"negative debounce", func(c *Config) { c.Watch.Debounce = -time.Second }, "watch.debounce"},
		{"bad level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"entry without globs", func(c *Config) {
			c.Entries = []EntryConfig{{To: "public"}}
		}, "entries[0]"},
		{"entry with empty delimiter", func(c *Config) {
			c.Entries = []EntryConfig{{
				From:    []string{"a.txt"},
				To:      "public",
				Options: &entry.PartialOptions{Delimiters: &entry.PartialDelimiters{Right: &empty}},
			}}
		}, "options.delimiters.right"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.contains == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.IsConfig(err))
			assert.Contains(t, err.Error(), tc.contains)
		})
	}
}

func TestLoadInvalidValue(t *testing.T) {
	_, err := LoadFrom(newViper(t, "hot:\n  port: not-a-port\n"))
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestResolveEntries(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"resources/a.txt", "resources/sub/b.txt"} {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, nil, 0o644))
	}

	flatten := false
	cfg := &Config{
		PublicDir: filepath.Join(root, "public"),
		Defaults:  entry.PartialOptions{Flatten: &flatten},
		Entries: []EntryConfig{{
			From: []string{filepath.Join(root, "resources", "**", "*.txt")},
			To:   filepath.Join(root, "public", "txt"),
		}},
	}

	entries, err := cfg.ResolveEntries()
	require.NoError(t, err)

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.PublicID)
	}
	assert.ElementsMatch(t, []string{"/txt/a.txt", "/txt/sub/b.txt"}, ids)
}
