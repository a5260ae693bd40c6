// Package testutils provides project fixtures shared by package tests.
package testutils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/mixpaths/internal/entry"
	"github.com/conneroisu/mixpaths/internal/manifest"
)

// Project is a temporary directory with resources/ and public/ trees.
type Project struct {
	Root string
}

// CreateTempProject creates a temporary project structure for testing
func CreateTempProject(t *testing.T) *Project {
	t.Helper()

	root := t.TempDir()
	for _, dir := range []string{"resources", "public"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}

	return &Project{Root: root}
}

// Path joins a slash separated path below the project root.
func (p *Project) Path(rel string) string {
	return filepath.Join(p.Root, filepath.FromSlash(rel))
}

// PublicDir returns the absolute public directory.
func (p *Project) PublicDir() string {
	return p.Path("public")
}

// ManifestPath returns the manifest file path.
func (p *Project) ManifestPath() string {
	return p.Path("public/mix-manifest.json")
}

// WriteFile writes content below the project root, creating directories.
func (p *Project) WriteFile(t *testing.T, rel, content string) string {
	t.Helper()

	path := p.Path(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

// ReadFile reads a file below the project root.
func (p *Project) ReadFile(t *testing.T, rel string) string {
	t.Helper()

	content, err := os.ReadFile(p.Path(rel))
	require.NoError(t, err)

	return string(content)
}

// WriteManifest writes m as the project manifest.
func (p *Project) WriteManifest(t *testing.T, m manifest.Manifest) {
	t.Helper()

	content, err := json.Marshal(m)
	require.NoError(t, err)
	p.WriteFile(t, "public/mix-manifest.json", string(content))
}

// ReadManifest parses the project manifest.
func (p *Project) ReadManifest(t *testing.T) manifest.Manifest {
	t.Helper()

	m := manifest.Manifest{}
	require.NoError(t, json.Unmarshal([]byte(p.ReadFile(t, "public/mix-manifest.json")), &m))

	return m
}

// Entry builds an entry with default options from slash separated paths.
func (p *Project) Entry(src, dest string) entry.Entry {
	publicID, _ := entry.PublicID(p.PublicDir(), p.Path(dest))

	return entry.Entry{
		Src:      p.Path(src),
		Dest:     p.Path(dest),
		PublicID: publicID,
		Options:  entry.DefaultOptions(),
	}
}

// Source templates of the reference project. a references b and sub/b,
// which share one source referencing <c>; d references a.
const (
	SourceA = "random txt {{mix(\"/txt/b.txt\")}} qsdh" +
		"\n{{mix(\"/txt/sub/b.txt\")}}"
	SourceB = "blabla {{mix(\"/js/app.js\")}}" +
		"\nmore blabla {{mix(\"/css/app.css\")}}" +
		"\n{{! mix(\"/txt/<c>.txt\") !}}"
	SourceC = "ufhqfjh {{mix(\"/README.md\")}}" +
		"\nergtseyerqei zeot h zei"
	SourceD = "ufhqfjh {{mix(\"/README.md\")}}" +
		"\nergtseyerqei zeot h zei" +
		"\n1234567UFDF {{mix(\"/txt/a.txt\")}}"
)

// BaseManifest lists the assets produced outside of mixpaths.
func BaseManifest() manifest.Manifest {
	return manifest.Manifest{
		"/js/app.js":   "/js/app.js?id=752e64981810d0203520",
		"/css/app.css": "/css/app.css?id=68b329da9893e34099c7",
		"/README.md":   "/README.md?id=bf15a78c28f46e55abc5",
	}
}

// CreateReferenceProject writes the reference sources and base manifest and
// returns the five entries: a, b, sub/b, <c> and d.
func CreateReferenceProject(t *testing.T) (*Project, []entry.Entry) {
	t.Helper()

	p := CreateTempProject(t)
	p.WriteFile(t, "resources/a.txt", SourceA)
	p.WriteFile(t, "resources/b.txt", SourceB)
	p.WriteFile(t, "resources/sub/<c>.txt", SourceC)
	p.WriteFile(t, "resources/sub/d.txt", SourceD)
	p.WriteManifest(t, BaseManifest())

	return p, []entry.Entry{
		p.Entry("resources/a.txt", "public/txt/a.txt"),
		p.Entry("resources/b.txt", "public/txt/b.txt"),
		p.Entry("resources/b.txt", "public/txt/sub/b.txt"),
		p.Entry("resources/sub/<c>.txt", "public/txt/<c>.txt"),
		p.Entry("resources/sub/d.txt", "public/txt/d.txt"),
	}
}

// ExpectedOutputs holds the rendered outputs of the reference project.
type ExpectedOutputs struct {
	A, B, SubB, C, D string
}

// Expected computes the outputs of the reference project with versioning on.
// When withC is false, b no longer references <c>.
func Expected(withC bool) ExpectedOutputs {
	var out ExpectedOutputs

	out.C = "ufhqfjh /README.md?id=bf15a78c28f46e55abc5" +
		"\nergtseyerqei zeot h zei"
	out.B = "blabla /js/app.js?id=752e64981810d0203520" +
		"\nmore blabla /css/app.css?id=68b329da9893e34099c7"
	if withC {
		out.B += "\n/txt/&lt;c&gt;.txt?id=" + manifest.Hash(out.C)
	}
	out.SubB = out.B
	out.A = "random txt /txt/b.txt?id=" + manifest.Hash(out.B) + " qsdh" +
		"\n/txt/sub/b.txt?id=" + manifest.Hash(out.SubB)
	out.D = "ufhqfjh /README.md?id=bf15a78c28f46e55abc5" +
		"\nergtseyerqei zeot h zei" +
		"\n1234567UFDF /txt/a.txt?id=" + manifest.Hash(out.A)

	return out
}

// Manifest returns the full versioned manifest matching the outputs.
func (o ExpectedOutputs) Manifest() manifest.Manifest {
	m := BaseManifest()
	m["/txt/a.txt"] = manifest.Versioned("/txt/a.txt", manifest.Hash(o.A))
	m["/txt/b.txt"] = manifest.Versioned("/txt/b.txt", manifest.Hash(o.B))
	m["/txt/sub/b.txt"] = manifest.Versioned("/txt/sub/b.txt", manifest.Hash(o.SubB))
	m["/txt/<c>.txt"] = manifest.Versioned("/txt/<c>.txt", manifest.Hash(o.C))
	m["/txt/d.txt"] = manifest.Versioned("/txt/d.txt", manifest.Hash(o.D))

	return m
}
