// Package compiler builds the dependency graph of a set of entries and
// compiles them in dependency order, keeping the manifest up to date.
package compiler

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/conneroisu/mixpaths/internal/depgraph"
	"github.com/conneroisu/mixpaths/internal/entry"
	mixerrors "github.com/conneroisu/mixpaths/internal/errors"
	"github.com/conneroisu/mixpaths/internal/logging"
	"github.com/conneroisu/mixpaths/internal/manifest"
	"github.com/conneroisu/mixpaths/internal/reference"
	"github.com/conneroisu/mixpaths/internal/tmpl"
)

// OnCompiled is called after an entry's output has been written.
type OnCompiled func(e entry.Entry, output string)

// Options configures a Compiler.
type Options struct {
	// ManifestPath is the manifest file. It must not be empty.
	ManifestPath string

	// Versioning records content-hashed ids in the manifest. Callers turn it
	// off in hot mode.
	Versioning bool

	// HotURL is the live-reload server URL, empty when hot mode is off.
	HotURL string

	// Env overrides the environment lookup used for MIX_ASSET_URL and
	// MIX_HOT_PROXY_URL.
	Env reference.EnvLookup

	Logger logging.Logger
}

// Compiler owns the template and manifest caches of a build. It is not safe
// for concurrent passes.
type Compiler struct {
	templates  *tmpl.Cache
	manifests  *manifest.Cache
	versioning bool
	hotURL     string
	env        reference.EnvLookup
	logger     logging.Logger
	metrics    *Metrics
}

// New creates a compiler. A missing manifest path is a configuration error.
func New(opts Options) (*Compiler, error) {
	if opts.ManifestPath == "" {
		return nil, mixerrors.ErrManifestNotConfigured()
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Compiler{
		templates:  tmpl.NewCache(),
		manifests:  manifest.NewCache(manifest.NewStore(opts.ManifestPath)),
		versioning: opts.Versioning,
		hotURL:     opts.HotURL,
		env:        opts.Env,
		logger:     logger.WithComponent("compiler"),
		metrics:    NewMetrics(),
	}, nil
}

// InvalidateCaches drops the compiled templates and the loaded manifest.
func (c *Compiler) InvalidateCaches() {
	c.templates.InvalidateAll()
	c.manifests.InvalidateAll()
}

// ManifestStore returns the store the manifest is persisted to.
func (c *Compiler) ManifestStore() *manifest.Store {
	return c.manifests.Store()
}

// Metrics returns a snapshot of the pass counters and cache statistics.
func (c *Compiler) Metrics() MetricsSnapshot {
	snapshot := c.metrics.Snapshot()
	snapshot.TemplateCache = c.templates.Stats()
	snapshot.ManifestCache = c.manifests.Stats()

	return snapshot
}

// Build constructs the dependency graph of entries and compiles all of them.
// The graph is returned even when compilation fails so that a watcher can
// keep using it.
func (c *Compiler) Build(ctx context.Context, entries []entry.Entry, onCompiled OnCompiled) (*depgraph.Graph, error) {
	c.InvalidateCaches()
	defer c.InvalidateCaches()

	g, err := c.BuildGraph(entries)
	if err != nil {
		return nil, err
	}

	return g, c.Compile(ctx, entries, g, onCompiled)
}

// BuildGraph adds every entry as a node, then collects the dependencies of
// each one.
func (c *Compiler) BuildGraph(entries []entry.Entry) (*depgraph.Graph, error) {
	g := depgraph.New()

	for _, e := range entries {
		g.AddNode(e.PublicID, e)
	}

	for _, e := range entries {
		if err := c.CollectDependencies(g, e); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// CollectDependencies renders e without side effects and replaces its
// outgoing edges with the known ids it references.
func (c *Compiler) CollectDependencies(g *depgraph.Graph, e entry.Entry) error {
	t, err := c.templates.Get(e)
	if err != nil {
		return err
	}

	collector := reference.NewCollector(g)
	if _, err := t.Execute(collector); err != nil {
		return err
	}

	return g.ReplaceOutgoingEdges(e.PublicID, collector.Targets())
}

// Compile renders the entries that belong to g in dependency order, writes
// them, records them in the manifest and persists the manifest once at the
// end. The first error aborts the pass; files already written are kept and
// the manifest is not saved. A pass that has started is not interrupted by
// ctx.
func (c *Compiler) Compile(ctx context.Context, entries []entry.Entry, g *depgraph.Graph, onCompiled OnCompiled) error {
	op := logging.StartOperation(c.logger, "compile", "pass_id", uuid.NewString(), "entries", len(entries))

	compiled, err := c.compile(ctx, op, entries, g, onCompiled)

	c.metrics.RecordPass(PassResult{Entries: compiled, Duration: op.Elapsed(), Error: err})

	if err != nil {
		op.EndWithError(ctx, err, "compiled", compiled)
		return err
	}

	op.End(ctx, "compiled", compiled)

	return nil
}

func (c *Compiler) compile(ctx context.Context, logger logging.Logger, entries []entry.Entry, g *depgraph.Graph, onCompiled OnCompiled) (int, error) {
	m, err := c.manifests.Load()
	if err != nil {
		return 0, err
	}

	order, err := g.OverallOrder()
	if err != nil {
		return 0, err
	}

	requested := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		requested[e.PublicID] = struct{}{}
	}

	resolver := &reference.ManifestResolver{
		Manifest: m,
		HotURL:   c.hotURL,
		Env:      c.env,
	}

	compiled := 0
	for _, id := range order {
		if _, ok := requested[id]; !ok {
			continue
		}

		e, err := g.NodeData(id)
		if err != nil {
			return compiled, err
		}

		output, err := c.render(e, resolver)
		if err != nil {
			return compiled, err
		}

		if err := writeOutput(e.Dest, output); err != nil {
			return compiled, err
		}

		if c.versioning {
			m.Set(id, manifest.Versioned(id, manifest.Hash(output)))
		} else {
			m.Set(id, id)
		}

		compiled++
		logger.Debug(ctx, "Compiled entry", "public_id", id, "dest", e.Dest, "bytes", len(output))

		if onCompiled != nil {
			onCompiled(e, output)
		}
	}

	if err := c.manifests.Save(m); err != nil {
		return compiled, err
	}

	return compiled, nil
}

func (c *Compiler) render(e entry.Entry, r reference.Resolver) (string, error) {
	t, err := c.templates.Get(e)
	if err != nil {
		return "", err
	}

	return t.Execute(r)
}

func writeOutput(dest, output string) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return mixerrors.NewIOError(mixerrors.ErrCodeWriteFailed, "create output dir "+dir, err)
	}

	if err := os.WriteFile(dest, []byte(output), 0o644); err != nil {
		return mixerrors.NewIOError(mixerrors.ErrCodeWriteFailed, "write "+dest, err)
	}

	return nil
}
