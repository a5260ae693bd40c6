package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mixerrors "github.com/conneroisu/mixpaths/internal/errors"
	"github.com/conneroisu/mixpaths/internal/manifest"
)

type syncBuffer struct {
	mutex sync.Mutex
	buf   bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.buf.String()
}

type project struct {
	root    string
	cfgFile string
}

func (p project) path(rel string) string {
	return filepath.Join(p.root, filepath.FromSlash(rel))
}

func (p project) write(t *testing.T, rel, content string) {
	t.Helper()
	path := p.path(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (p project) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(p.path(rel))
	require.NoError(t, err)
	return string(data)
}

func newProject(t *testing.T) project {
	t.Helper()

	p := project{root: t.TempDir()}
	p.cfgFile = p.path(".mixpaths.yml")

	p.write(t, "resources/a.txt", `a uses {{ mix("/txt/b.txt") }}`)
	p.write(t, "resources/b.txt", `b uses {{ mix("/js/app.js") }}`)
	p.write(t, "public/mix-manifest.json", `{"/js/app.js": "/js/app.js?id=752e64981810d0203520"}`)
	p.write(t, ".mixpaths.yml", strings.Join([]string{
		"public_dir: " + p.path("public"),
		"versioning: true",
		"watch:",
		"  debounce: 20ms",
		"entries:",
		"  - from: [" + p.path("resources/*.txt") + "]",
		"    to: " + p.path("public/txt"),
		"",
	}, "\n"))

	return p
}

func run(t *testing.T, ctx context.Context, out *syncBuffer, args ...string) error {
	t.Helper()

	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)

	return rootCmd.ExecuteContext(ctx)
}

func TestBuildCommand(t *testing.T) {
	p := newProject(t)
	out := &syncBuffer{}

	require.NoError(t, run(t, context.Background(), out, "build", "--config", p.cfgFile))

	b := "b uses /js/app.js?id=752e64981810d0203520"
	a := "a uses /txt/b.txt?id=" + manifest.Hash(b)
	assert.Equal(t, b, p.read(t, "public/txt/b.txt"))
	assert.Equal(t, a, p.read(t, "public/txt/a.txt"))

	var m manifest.Manifest
	require.NoError(t, json.Unmarshal([]byte(p.read(t, "public/mix-manifest.json")), &m))
	assert.Equal(t, manifest.Versioned("/txt/a.txt", manifest.Hash(a)), m["/txt/a.txt"])
	assert.Equal(t, manifest.Versioned("/txt/b.txt", manifest.Hash(b)), m["/txt/b.txt"])
	assert.Equal(t, "/js/app.js?id=752e64981810d0203520", m["/js/app.js"])

	assert.Contains(t, out.String(), "/txt/a.txt")
	assert.Contains(t, out.String(), "Compiled 2 entries")
	assert.Contains(t, out.String(), "template cache hit rate 50%")
}

func TestBuildCommandQuiet(t *testing.T) {
	p := newProject(t)
	out := &syncBuffer{}

	require.NoError(t, run(t, context.Background(), out, "build", "-q", "--config", p.cfgFile))
	assert.Empty(t, out.String())
}

func TestBuildCommandMissingReference(t *testing.T) {
	p := newProject(t)
	p.write(t, "resources/b.txt", `{{ mix("/missing.js") }}`)

	err := run(t, context.Background(), &syncBuffer{}, "build", "--config", p.cfgFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unable to locate Mix file: '/missing.js'.")
}

func TestBuildCommandUnversionedFromEnv(t *testing.T) {
	p := newProject(t)
	t.Setenv("MIXPATHS_VERSIONING", "false")

	require.NoError(t, run(t, context.Background(), &syncBuffer{}, "build", "--config", p.cfgFile))
	assert.Equal(t, "a uses /txt/b.txt", p.read(t, "public/txt/a.txt"))
}

func TestGraphCommand(t *testing.T) {
	p := newProject(t)
	out := &syncBuffer{}

	require.NoError(t, run(t, context.Background(), out, "graph", "--config", p.cfgFile))

	assert.Contains(t, out.String(), "digraph")
	assert.Contains(t, out.String(), `"/txt/a.txt" -> "/txt/b.txt";`)
	assert.NoFileExists(t, p.path("public/txt/a.txt"), "graph does not compile")
}

func TestGraphCommandOutputFile(t *testing.T) {
	p := newProject(t)
	target := p.path("deps.dot")

	require.NoError(t, run(t, context.Background(), &syncBuffer{}, "graph", "--config", p.cfgFile, "-o", target))
	assert.Contains(t, p.read(t, "deps.dot"), `"/txt/a.txt" -> "/txt/b.txt";`)
}

func TestGraphCommandUnsupportedFormat(t *testing.T) {
	p := newProject(t)

	err := run(t, context.Background(), &syncBuffer{}, "graph", "--config", p.cfgFile, "--format", "png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestConfigShow(t *testing.T) {
	p := newProject(t)

	testCases := []struct {
		format   string
		contains string
	}{
		{"yaml", "public_dir: " + p.path("public")},
		{"toml", `public_dir = "` + p.path("public") + `"`},
		{"json", `"public_dir": "` + p.path("public") + `"`},
	}

	for _, tc := range testCases {
		t.Run(tc.format, func(t *testing.T) {
			out := &syncBuffer{}
			require.NoError(t, run(t, context.Background(), out, "config", "show", "--config", p.cfgFile, "--format", tc.format))
			assert.Contains(t, out.String(), tc.contains)
		})
	}
}

func TestLogLevelFlagIsValidated(t *testing.T) {
	p := newProject(t)

	err := run(t, context.Background(), &syncBuffer{}, "build", "--config", p.cfgFile, "--log-level", "verbose")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
}

func TestVersionCommand(t *testing.T) {
	out := &syncBuffer{}

	require.NoError(t, run(t, context.Background(), out, "version"))
	assert.True(t, strings.HasPrefix(out.String(), "mixpaths "))

	out = &syncBuffer{}
	require.NoError(t, run(t, context.Background(), out, "version", "--format", "json"))

	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out.String()), &info))
	assert.Contains(t, info, "go_version")
}

func TestWatchCommand(t *testing.T) {
	p := newProject(t)
	out := &syncBuffer{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(t, ctx, out, "watch", "--config", p.cfgFile)
	}()

	aLine := "Recompiled '" + p.path("public/txt/a.txt") + "'"
	require.Eventually(t, func() bool {
		return strings.Count(out.String(), aLine) == 1
	}, 5*time.Second, 10*time.Millisecond, "initial build")

	require.Eventually(t, func() bool {
		p.write(t, "resources/b.txt", `b changed {{ mix("/js/app.js") }}`)
		return strings.Count(out.String(), aLine) >= 2
	}, 5*time.Second, 100*time.Millisecond, "a is recompiled after b changes")

	b := "b changed /js/app.js?id=752e64981810d0203520"
	assert.Equal(t, b, p.read(t, "public/txt/b.txt"))
	assert.Equal(t, "a uses /txt/b.txt?id="+manifest.Hash(b), p.read(t, "public/txt/a.txt"))

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatchCommandRecoversFromFailedBuild(t *testing.T) {
	p := newProject(t)
	p.write(t, "resources/a.txt", `a uses {{ mix("/missing.js") }}`)
	out := &syncBuffer{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(t, ctx, out, "watch", "--config", p.cfgFile)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Unresolved reference:")
	}, 5*time.Second, 10*time.Millisecond, "initial build reports the missing reference")
	assert.Contains(t, out.String(), "Unable to locate Mix file: '/missing.js'.")

	aLine := "Recompiled '" + p.path("public/txt/a.txt") + "'"
	require.Eventually(t, func() bool {
		p.write(t, "resources/a.txt", `a fixed`)
		return strings.Contains(out.String(), aLine)
	}, 5*time.Second, 100*time.Millisecond, "a is compiled once fixed")
	assert.Equal(t, "a fixed", p.read(t, "public/txt/a.txt"))

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestErrorLine(t *testing.T) {
	testCases := []struct {
		name  string
		err   error
		label string
		hint  bool
	}{
		{"reference", mixerrors.ErrMissingManifestEntry("/missing.js"), "Unresolved reference:", true},
		{"template", mixerrors.NewTemplateError(mixerrors.ErrCodeTemplateSyntax, "unexpected token", nil), "Template error:", false},
		{"cycle", mixerrors.ErrCycleDetected([][]string{{"/a", "/b"}}), "Dependency cycle:", false},
		{"config", mixerrors.ErrManifestNotConfigured(), "Configuration error:", false},
		{"wrapped reference", fmt.Errorf("compile: %w", mixerrors.ErrMissingManifestEntry("/x")), "Unresolved reference:", true},
		{"plain", errors.New("boom"), "Error:", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			line := errorLine(tc.err)
			assert.True(t, strings.HasPrefix(line, tc.label), "got %q", line)
			assert.Contains(t, line, tc.err.Error())
			assert.Equal(t, tc.hint, strings.Contains(line, "hint:"))
		})
	}
}
