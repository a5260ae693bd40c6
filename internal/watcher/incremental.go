package watcher

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/conneroisu/mixpaths/internal/compiler"
	"github.com/conneroisu/mixpaths/internal/depgraph"
	"github.com/conneroisu/mixpaths/internal/entry"
	mixerrors "github.com/conneroisu/mixpaths/internal/errors"
	"github.com/conneroisu/mixpaths/internal/logging"
)

// State is the lifecycle state of an Incremental watcher.
type State int32

const (
	StateIdle State = iota
	StateRecompiling
)

// String returns the string representation of the State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecompiling:
		return "recompiling"
	default:
		return "unknown"
	}
}

// ErrorListener is notified when a change could not be recompiled.
type ErrorListener func(path string, err error)

// Incremental recompiles the entries affected by a source change: the
// entries built from that source and everything that transitively
// references them.
type Incremental struct {
	compiler *compiler.Compiler
	graph    *depgraph.Graph
	entries  []entry.Entry
	sources  []string // normalized Src of entries, same index
	logger   logging.Logger

	mutex          sync.RWMutex
	listeners      []compiler.OnCompiled
	errorListeners []ErrorListener

	state atomic.Int32
}

// NewIncremental creates an incremental watcher over the graph produced by
// a full build of entries.
func NewIncremental(c *compiler.Compiler, entries []entry.Entry, g *depgraph.Graph, logger logging.Logger) *Incremental {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	sources := make([]string, len(entries))
	for i, e := range entries {
		if abs, err := NormalizePath(e.Src); err == nil {
			sources[i] = abs
		}
	}

	return &Incremental{
		compiler: c,
		graph:    g,
		entries:  entries,
		sources:  sources,
		logger:   logger.WithComponent("incremental"),
	}
}

// OnEntryCompiled registers fn to be called for every entry recompiled
// after a change.
func (w *Incremental) OnEntryCompiled(fn compiler.OnCompiled) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.listeners = append(w.listeners, fn)
}

// OnError registers fn to be called when a pass triggered by Run fails.
func (w *Incremental) OnError(fn ErrorListener) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.errorListeners = append(w.errorListeners, fn)
}

// State reports whether a pass is running.
func (w *Incremental) State() State {
	return State(w.state.Load())
}

// Sources returns the distinct normalized sources of the watched entries.
func (w *Incremental) Sources() []string {
	seen := make(map[string]struct{}, len(w.sources))
	var out []string
	for _, src := range w.sources {
		if _, ok := seen[src]; ok || src == "" {
			continue
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}

	return out
}

// HandleChange recompiles what a change to path affects. Paths that are not
// the source of any entry are ignored.
func (w *Incremental) HandleChange(ctx context.Context, path string) error {
	target, err := NormalizePath(path)
	if err != nil {
		return err
	}

	w.state.Store(int32(StateRecompiling))
	defer w.state.Store(int32(StateIdle))

	w.compiler.InvalidateCaches()
	defer w.compiler.InvalidateCaches()

	var toCompile []entry.Entry
	queued := make(map[string]struct{})
	enqueue := func(e entry.Entry) {
		if _, ok := queued[e.PublicID]; ok {
			return
		}
		queued[e.PublicID] = struct{}{}
		toCompile = append(toCompile, e)
	}

	for i, e := range w.entries {
		if w.sources[i] != target {
			continue
		}

		if err := w.compiler.CollectDependencies(w.graph, e); err != nil {
			return err
		}
		enqueue(e)

		dependants, err := w.graph.DependantsOf(e.PublicID)
		if err != nil {
			return mixerrors.WithOperation(err, "collect dependants of "+e.PublicID)
		}
		for _, id := range dependants {
			dependant, err := w.graph.NodeData(id)
			if err != nil {
				return err
			}
			enqueue(dependant)
		}
	}

	if len(toCompile) == 0 {
		w.logger.Debug(ctx, "Ignoring change to unknown source", "path", target)
		return nil
	}

	w.logger.Debug(ctx, "Recompiling after change", "path", target, "entries", len(toCompile))

	return w.compiler.Compile(ctx, toCompile, w.graph, w.notify)
}

func (w *Incremental) notify(e entry.Entry, output string) {
	w.mutex.RLock()
	listeners := w.listeners
	w.mutex.RUnlock()

	for _, listener := range listeners {
		listener(e, output)
	}
}

func (w *Incremental) notifyError(path string, err error) {
	w.mutex.RLock()
	listeners := w.errorListeners
	w.mutex.RUnlock()

	for _, listener := range listeners {
		listener(path, err)
	}
}

// Run handles the paths received on changes one at a time until ctx is done
// or changes is closed. A failed pass is logged and reported to the error
// listeners; the loop keeps running.
func (w *Incremental) Run(ctx context.Context, changes <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case path, ok := <-changes:
			if !ok {
				return nil
			}

			if err := w.HandleChange(ctx, path); err != nil {
				w.logger.Error(ctx, err, "Recompilation failed",
					"path", path,
					"root_cause", mixerrors.GetRootCause(err).Error(),
				)
				w.notifyError(path, err)
				continue
			}

			metrics := w.compiler.Metrics()
			w.logger.Debug(ctx, "Change handled",
				"path", path,
				"passes", metrics.TotalPasses,
				"success_rate", metrics.SuccessRate(),
				"template_cache_hit_rate", metrics.TemplateCache.HitRate(),
			)
		}
	}
}
