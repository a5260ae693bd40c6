package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/mixpaths/internal/entry"
	"github.com/conneroisu/mixpaths/internal/livereload"
	"github.com/conneroisu/mixpaths/internal/watcher"
)

func newWatchCommand(a *app) *cobra.Command {
	watchCmd := &cobra.Command{
		Use:     "watch",
		Aliases: []string{"w"},
		Short:   "Compile, then recompile affected entries on change",
		Long: `Run a full build, then watch every entry source. A change recompiles the
entries built from that source and every entry that references them.

When livereload.addr is set, compiled entries are also pushed to WebSocket
clients connected on /livereload.

Examples:
  mixpaths watch
  MIXPATHS_LIVERELOAD_ADDR=127.0.0.1:35729 mixpaths watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return a.runWatch(ctx, cmd)
		},
	}

	return watchCmd
}

func (a *app) runWatch(ctx context.Context, cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	printCompiled := func(e entry.Entry, _ string) {
		fmt.Fprintln(out, recompiledLine(e.Dest))
	}

	entries, err := a.cfg.ResolveEntries()
	if err != nil {
		return err
	}

	c, err := a.newCompiler()
	if err != nil {
		return err
	}

	printError := func(err error) {
		fmt.Fprintln(cmd.ErrOrStderr(), mutedStyle.Render("[mixpaths]:")+" "+errorLine(err))
	}

	// A failed compile still leaves a graph; keep watching so that fixing the
	// source recompiles it.
	g, err := c.Build(ctx, entries, printCompiled)
	if g == nil {
		return err
	}
	if err != nil {
		a.logger.Warn(ctx, err, "Initial build failed, waiting for changes")
		printError(err)
	}

	incremental := watcher.NewIncremental(c, entries, g, a.logger)
	incremental.OnEntryCompiled(printCompiled)
	incremental.OnError(func(path string, err error) { printError(err) })

	fw, err := watcher.NewFileWatcher(a.cfg.Watch.Debounce, a.logger)
	if err != nil {
		return err
	}
	defer fw.Stop()

	sources := incremental.Sources()
	fw.AddFilter(watcher.NoGitFilter)
	fw.AddFilter(watcher.NoEditorTempFilter)
	fw.AddFilter(watcher.SourceFilter(sources))
	if err := fw.WatchSources(sources); err != nil {
		return err
	}

	changes := make(chan string, 64)
	fw.AddHandler(watcher.ForwardPaths(ctx, changes))

	group, ctx := errgroup.WithContext(ctx)

	if addr := a.cfg.LiveReload.Addr; addr != "" {
		hub := livereload.NewHub(livereload.HubOptions{
			OriginPatterns: a.cfg.LiveReload.AllowedOrigins,
			Logger:         a.logger,
		})
		incremental.OnEntryCompiled(hub.NotifyCompiled)

		server := livereload.NewServer(addr, livereload.NewRouter(hub, c.ManifestStore(), c), a.logger)
		group.Go(func() error { return ignoreCanceled(hub.Run(ctx)) })
		group.Go(func() error { return server.ListenAndServe(ctx) })
	}

	if err := fw.Start(ctx); err != nil {
		return err
	}

	a.logger.Info(ctx, "Watching sources", "sources", len(sources), "entries", len(entries))

	group.Go(func() error { return ignoreCanceled(incremental.Run(ctx, changes)) })

	return group.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}
