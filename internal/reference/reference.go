// Package reference resolves the public ids referenced from templates.
//
// Templates are rendered twice per entry over a pass lifecycle: once with a
// Collector to discover dependencies, and once with a ManifestResolver to
// produce the final output.
package reference

import (
	"os"
	"strings"

	mixerrors "github.com/conneroisu/mixpaths/internal/errors"
	"github.com/conneroisu/mixpaths/internal/manifest"
)

// Environment variables consulted by ManifestResolver.
const (
	EnvAssetURL    = "MIX_ASSET_URL"
	EnvHotProxyURL = "MIX_HOT_PROXY_URL"
)

// Resolver maps a referenced public id to the text substituted in the
// template.
type Resolver interface {
	Resolve(publicID string) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(publicID string) (string, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(publicID string) (string, error) {
	return f(publicID)
}

// NodeSet reports whether a public id belongs to the dependency graph.
type NodeSet interface {
	HasNode(id string) bool
}

// Collector records the references that name known nodes and resolves every
// reference to the empty string. References to unknown ids are ignored.
type Collector struct {
	nodes   NodeSet
	seen    map[string]struct{}
	targets []string
}

// NewCollector creates a collector that keeps ids known to nodes.
func NewCollector(nodes NodeSet) *Collector {
	return &Collector{nodes: nodes, seen: make(map[string]struct{})}
}

// Resolve implements Resolver.
func (c *Collector) Resolve(publicID string) (string, error) {
	if !c.nodes.HasNode(publicID) {
		return "", nil
	}

	if _, ok := c.seen[publicID]; !ok {
		c.seen[publicID] = struct{}{}
		c.targets = append(c.targets, publicID)
	}

	return "", nil
}

// Targets returns the distinct recorded ids in first-seen order.
func (c *Collector) Targets() []string {
	return append([]string(nil), c.targets...)
}

// EnvLookup reads an environment variable.
type EnvLookup func(key string) (string, bool)

// ManifestResolver resolves ids through the manifest of the current pass.
type ManifestResolver struct {
	Manifest manifest.Manifest

	// HotURL is the live-reload server URL, empty when hot mode is off.
	HotURL string

	// Env defaults to os.LookupEnv.
	Env EnvLookup
}

// Resolve implements Resolver.
func (r *ManifestResolver) Resolve(publicID string) (string, error) {
	current, ok := r.Manifest.Get(publicID)
	if !ok {
		return "", mixerrors.ErrMissingManifestEntry(publicID)
	}

	if r.HotURL != "" {
		if proxy := r.env(EnvHotProxyURL); proxy != "" {
			return Join(proxy, publicID), nil
		}

		return Join(stripScheme(r.HotURL), publicID), nil
	}

	if assetURL := r.env(EnvAssetURL); assetURL != "" {
		return Join(assetURL, current), nil
	}

	return current, nil
}

func (r *ManifestResolver) env(key string) string {
	lookup := r.Env
	if lookup == nil {
		lookup = os.LookupEnv
	}

	value, _ := lookup(key)
	return value
}

// stripScheme drops everything up to and including the first ":", turning
// "https://host:8080" into "//host:8080".
func stripScheme(url string) string {
	if i := strings.Index(url, ":"); i >= 0 {
		return url[i+1:]
	}

	return url
}

// Join concatenates a base URL and a path with exactly one "/" between them.
// Everything else, including query strings and a leading "//", is kept.
func Join(base, path string) string {
	switch {
	case base == "":
		return path
	case path == "":
		return base
	}

	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
