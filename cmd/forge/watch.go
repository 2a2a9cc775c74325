package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/agentforge/forge/intake"
	"github.com/ZanzyTHEbar/agentforge/forge/pipeline"
	"github.com/ZanzyTHEbar/agentforge/forge/telemetry"
)

const defaultSettle = 750 * time.Millisecond

func newWatchCmd() *cobra.Command {
	var (
		rosters  []string
		outDir   string
		existing bool
		settle   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch <inbox-dir>",
		Short: "Process every brief dropped into a directory",
		Long: `Watch a directory for new or changed briefs (.md, .markdown, .txt) and run
the selected teams over each one. With metrics.enabled set, prometheus metrics
are served on metrics.addr at /metrics.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rs, err := a.rosters(rosters)
			if err != nil {
				return err
			}
			runner, err := a.runner(ctx)
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = a.cfg.Forge.OutputDir
			}
			if a.cfg.Metrics.Enabled {
				shutdown := serveMetrics(a)
				defer shutdown()
			}

			w := &inboxWatcher{
				settle: settle,
				logger: a.logger.With().Str("component", "watch").Logger(),
				handle: func(ctx context.Context, path string) error {
					brief, err := loadBrief([]string{path}, "")
					if err != nil {
						return err
					}
					jobs := make([]pipeline.Job, len(rs))
					for i, r := range rs {
						jobs[i] = pipeline.Job{Roster: r, Brief: brief}
					}
					outcomes, runErr := runner.RunMany(ctx, jobs)
					fmt.Fprintf(a.out, "%s\n", path)
					for _, o := range outcomes {
						if err := a.writeOutcome(outDir, o); err != nil {
							return err
						}
					}
					return runErr
				},
			}
			return w.run(ctx, args[0], existing)
		},
	}
	cmd.Flags().StringSliceVarP(&rosters, "roster", "r", nil, "roster preset, name or file (repeatable, default team.default_roster)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default forge.output_dir)")
	cmd.Flags().BoolVar(&existing, "existing", false, "also process briefs already in the directory")
	cmd.Flags().DurationVar(&settle, "settle", defaultSettle, "quiet period after the last write before a brief is processed")
	return cmd
}

// inboxWatcher calls handle once per brief after writes to it settle. A brief
// is handled again only when its modification time changes.
type inboxWatcher struct {
	settle time.Duration
	logger zerolog.Logger
	handle func(ctx context.Context, path string) error
}

func (w *inboxWatcher) run(ctx context.Context, dir string, existing bool) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	ready := make(chan string)
	timers := make(map[string]*time.Timer)
	handled := make(map[string]time.Time)
	schedule := func(path string) {
		if t, ok := timers[path]; ok {
			t.Reset(w.settle)
			return
		}
		timers[path] = time.AfterFunc(w.settle, func() {
			select {
			case ready <- path:
			case <-ctx.Done():
			}
		})
	}
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	if existing {
		paths, err := briefsIn(dir)
		if err != nil {
			return err
		}
		for _, p := range paths {
			schedule(p)
		}
	}
	w.logger.Info().Str("dir", dir).Msg("watching for briefs")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !intake.Supported(ev.Name) || !(ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) {
				continue
			}
			schedule(ev.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watcher error")
		case path := <-ready:
			delete(timers, path)
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			if prev, ok := handled[path]; ok && prev.Equal(info.ModTime()) {
				continue
			}
			handled[path] = info.ModTime()
			w.logger.Info().Str("path", path).Msg("processing brief")
			if err := w.handle(ctx, path); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Error().Err(err).Str("path", path).Msg("brief failed")
			}
		}
	}
}

func briefsIn(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && intake.Supported(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// serveMetrics exposes the app registry until the returned func is called.
func serveMetrics(a *app) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler(a.registry))
	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Str("addr", srv.Addr).Msg("metrics server stopped")
		}
	}()
	a.logger.Info().Str("addr", srv.Addr).Msg("serving metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
