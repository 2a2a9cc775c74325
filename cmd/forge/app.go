package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/agentforge/forge/artifact"
	"github.com/ZanzyTHEbar/agentforge/forge/config"
	"github.com/ZanzyTHEbar/agentforge/forge/db"
	"github.com/ZanzyTHEbar/agentforge/forge/generation/harness"
	ports "github.com/ZanzyTHEbar/agentforge/forge/generation/harness/ports"
	"github.com/ZanzyTHEbar/agentforge/forge/logging"
	"github.com/ZanzyTHEbar/agentforge/forge/pipeline"
	"github.com/ZanzyTHEbar/agentforge/forge/team"
	"github.com/ZanzyTHEbar/agentforge/forge/telemetry"
)

// app holds what every command needs once config is loaded.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	registry *prometheus.Registry
	metrics  *telemetry.Metrics
	out      io.Writer
	closers  []func() error
}

func newApp(cmd *cobra.Command) (*app, error) {
	// .env is optional
	_ = godotenv.Load(".env")

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Log.Level = "debug"
	}

	registry := prometheus.NewRegistry()
	metrics, err := telemetry.New(registry)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:      cfg,
		logger:   logging.New(cfg.Log, cmd.ErrOrStderr()),
		registry: registry,
		metrics:  metrics,
		out:      cmd.OutOrStdout(),
	}, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn().Err(err).Msg("close failed")
		}
	}
}

func (a *app) packager() (*pipeline.Packager, error) {
	return pipeline.NewPackagerFromConfig(a.cfg.Artifact, a.cfg.Archive, a.metrics, a.logger)
}

// transcriptStore opens the configured database for reading persisted runs.
func (a *app) transcriptStore(ctx context.Context) (ports.ConversationStore, error) {
	conn, err := db.Open(ctx, a.cfg.Forge.Database.DSN, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open transcript database: %w", err)
	}
	a.closers = append(a.closers, conn.Close)
	return harness.NewFactory(&a.cfg.Harness, &a.cfg.LLM, conn, a.logger).CreateStore(), nil
}

// runner wires the inference provider, the turn harness and the shared
// artifact namespace into a pipeline runner.
func (a *app) runner(ctx context.Context) (*pipeline.Runner, error) {
	packager, err := a.packager()
	if err != nil {
		return nil, err
	}

	var conn *sql.DB
	if a.cfg.Forge.PersistTranscripts {
		conn, err = db.Open(ctx, a.cfg.Forge.Database.DSN, a.logger)
		if err != nil {
			return nil, fmt.Errorf("open transcript database: %w", err)
		}
		a.closers = append(a.closers, conn.Close)
	}

	factory := harness.NewFactory(&a.cfg.Harness, &a.cfg.LLM, conn, a.logger)
	provider, err := factory.CreateProvider()
	if err != nil {
		return nil, fmt.Errorf("inference provider: %w", err)
	}
	if c, ok := provider.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
	orchestrator := factory.CreateOrchestrator(provider)

	deps := team.Deps{
		Runner:   orchestrator,
		Selector: orchestrator,
		Metrics:  a.metrics,
		Logger:   a.logger,
	}
	if conn != nil {
		deps.Store = factory.CreateStore()
	}
	settings := team.Settings{
		TurnTimeout:       a.cfg.Team.TurnTimeout,
		SelectionTimeout:  a.cfg.Team.SelectionTimeout,
		SelectionAttempts: a.cfg.Team.SelectionAttempts,
		Defaults:          factory.DefaultOptions(),
	}
	namespace := artifact.NewNamespace(a.cfg.Forge.ArtifactsDir, a.logger)
	return pipeline.NewRunner(packager, namespace, settings, deps, pipeline.WithConcurrency(a.cfg.Forge.Concurrency)), nil
}

// rosters resolves refs against the roster dir, the presets and the file
// system. No refs means the configured default roster.
func (a *app) rosters(refs []string) ([]*team.Roster, error) {
	var custom map[string]*team.Roster
	if dir := a.cfg.Team.RosterDir; dir != "" {
		var err error
		if custom, err = team.LoadRosterDir(dir); err != nil {
			return nil, err
		}
	}
	if len(refs) == 0 {
		refs = []string{a.cfg.Team.DefaultRoster}
	}
	out := make([]*team.Roster, 0, len(refs))
	for _, ref := range refs {
		r, err := team.Resolve(ref, custom)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// writeOutcome writes the bundle of a finished job and prints its summary.
func (a *app) writeOutcome(dir string, o *pipeline.Outcome) error {
	if o == nil || o.Job.Roster == nil {
		return nil
	}
	name := o.Job.Roster.Name
	if o.Bundle == nil {
		fmt.Fprintf(a.out, "%s: no bundle (%v)\n", name, o.Err)
		return nil
	}
	file := name
	if o.Result != nil && len(o.Result.ID) >= 8 {
		file = name + "-" + o.Result.ID[:8]
	}
	path, err := pipeline.WriteBundle(dir, file, o.Bundle)
	if err != nil {
		return err
	}
	printOutcome(a.out, o, path)
	return nil
}
