package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/ZanzyTHEbar/agentforge/forge/artifact"
	ports "github.com/ZanzyTHEbar/agentforge/forge/generation/harness/ports"
	"github.com/ZanzyTHEbar/agentforge/forge/generation/harness/tools"
	"github.com/ZanzyTHEbar/agentforge/forge/team"
)

// Job is one team run over one brief.
type Job struct {
	Roster *team.Roster
	Brief  string
}

func (j Job) name() string {
	if j.Roster == nil {
		return "<nil roster>"
	}
	return j.Roster.Name
}

// Outcome is what a job produced. Bundle is nil when the run was cancelled or
// packaging failed.
type Outcome struct {
	Job     Job
	Result  *team.Result
	Written []string // side-channel paths this run saved
	Bundle  *Bundle
	Err     error
}

// Runner executes jobs against a shared artifact namespace.
type Runner struct {
	packager    *Packager
	namespace   *artifact.Namespace
	settings    team.Settings
	deps        team.Deps
	concurrency int
	logger      zerolog.Logger
}

type RunnerOption func(*Runner)

// WithConcurrency caps how many teams RunMany runs at once.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewRunner builds a Runner. deps.Tools are offered to every team in addition
// to the per-run save_artifact and list_artifacts tools.
func NewRunner(packager *Packager, namespace *artifact.Namespace, settings team.Settings, deps team.Deps, opts ...RunnerOption) *Runner {
	r := &Runner{
		packager:    packager,
		namespace:   namespace,
		settings:    settings,
		deps:        deps,
		concurrency: 1,
		logger:      deps.Logger.With().Str("component", "runner").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run runs one team to completion and packages what it produced. When ctx is
// cancelled the partial outcome is returned with ctx.Err() and no bundle.
func (r *Runner) Run(ctx context.Context, job Job) (*Outcome, error) {
	out := &Outcome{Job: job}
	if job.Roster == nil {
		out.Err = errors.New("job has no roster")
		return out, out.Err
	}
	logger := r.logger.With().Str("team", job.Roster.Name).Logger()

	save := tools.NewSaveArtifactTool(r.namespace, logger)
	deps := r.deps
	deps.Tools = append(append([]ports.Tool{}, r.deps.Tools...), save, tools.NewListArtifactsTool(r.namespace))

	tm, err := job.Roster.NewTeam(r.settings, deps)
	if err != nil {
		out.Err = fmt.Errorf("build team %s: %w", job.Roster.Name, err)
		return out, out.Err
	}

	res, err := tm.Run(ctx, job.Roster.Task(job.Brief))
	out.Result = res
	out.Written = save.Written()
	if err != nil {
		out.Err = err
		return out, err
	}

	bundle, err := r.packager.Package(res.Transcript.AgentText(), r.namespace.Candidates(out.Written...))
	if err != nil {
		out.Err = fmt.Errorf("package %s: %w", job.Roster.Name, err)
		return out, out.Err
	}
	out.Bundle = bundle
	logger.Info().
		Str("run_id", res.ID).
		Str("stop_reason", string(res.StopReason)).
		Int("turns", res.Turns).
		Int("artifacts", len(bundle.Artifacts)).
		Msg("job finished")
	return out, nil
}

// RunMany runs jobs concurrently. Outcomes are returned in job order, one per
// job. A failing job does not stop the others; the returned error joins every
// job error.
func (r *Runner) RunMany(ctx context.Context, jobs []Job) ([]*Outcome, error) {
	outcomes := make([]*Outcome, len(jobs))
	p := pool.New().WithMaxGoroutines(r.concurrency).WithContext(ctx)
	for i, job := range jobs {
		p.Go(func(ctx context.Context) error {
			out, err := r.Run(ctx, job)
			outcomes[i] = out
			if err != nil {
				return fmt.Errorf("%s: %w", job.name(), err)
			}
			return nil
		})
	}
	return outcomes, p.Wait()
}
