// Package internal contains the implementation packages of mixpaths.
//
// # Package Organization
//
//   - errors: error taxonomy shared by every package
//   - logging: structured logger with text and JSON output
//   - cache: get-or-compute memo with explicit invalidation
//   - entry: resolved entries, options and glob resolution
//   - depgraph: dependency graph between entries, DOT and SVG export
//   - manifest: asset manifest file, content hashing
//   - reference: resolution of mix() references
//   - tmpl: template parsing and evaluation
//   - compiler: graph construction and topological compilation passes
//   - watcher: file watching and incremental recompilation
//   - livereload: WebSocket notifications of compiled entries
//   - config: configuration loading and validation
//
// # Passes
//
// A pass compiles a set of entries in dependency order, writes each output,
// and saves the manifest once at the end. Template and manifest caches are
// invalidated before and after every pass, so a pass always sees the files
// as they are on disk when it starts.
package internal
