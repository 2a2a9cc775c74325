// Package team runs bounded multi-agent conversations.
package team

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/agentforge/forge/generation/harness"
	ports "github.com/ZanzyTHEbar/agentforge/forge/generation/harness/ports"
	"github.com/ZanzyTHEbar/agentforge/forge/telemetry"
)

var (
	ErrNoParticipants = errors.New("team has no participants")
	ErrAlreadyRun     = errors.New("team has already run")
	ErrUnbounded      = errors.New("team termination sets no budget")
)

// TaskSpeaker is the speaker id of the opening task message.
const TaskSpeaker = "user"

const DefaultTurnTimeout = 3 * time.Minute

// Config describes one team.
type Config struct {
	Name         string
	Participants []*Agent
	Scheduler    Scheduler
	Termination  Termination
	TurnTimeout  time.Duration
	Defaults     ports.Options // sampling options agents fall back to
}

// Result is what a finished or cancelled conversation leaves behind.
type Result struct {
	ID         string
	Team       string
	Transcript *Transcript
	Turns      int
	Fallbacks  int
	Failures   int // turns that ended in an error placeholder
	StopReason StopReason
}

// Team owns one conversation. A Team runs once.
type Team struct {
	cfg     Config
	runner  TurnRunner
	tools   map[string]ports.Tool
	store   ports.ConversationStore
	metrics *telemetry.Metrics
	logger  zerolog.Logger
	ran     atomic.Bool
}

// Option configures a Team.
type Option func(*Team)

// WithTools registers tools agents may reference by name.
func WithTools(tools ...ports.Tool) Option {
	return func(t *Team) {
		for _, tool := range tools {
			t.tools[tool.Name()] = tool
		}
	}
}

// WithStore persists every committed message.
func WithStore(store ports.ConversationStore) Option {
	return func(t *Team) { t.store = store }
}

// WithMetrics records turn outcomes and selection fallbacks. Nil disables it.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(t *Team) { t.metrics = m }
}

// New validates cfg and returns a team ready to Run. A team needs at least
// one uniquely named participant and a bounded termination policy.
func New(cfg Config, runner TurnRunner, logger zerolog.Logger, opts ...Option) (*Team, error) {
	if len(cfg.Participants) == 0 {
		return nil, ErrNoParticipants
	}
	seen := make(map[string]bool, len(cfg.Participants))
	for _, a := range cfg.Participants {
		if a == nil || a.Name == "" {
			return nil, fmt.Errorf("team %s: participant without a name", cfg.Name)
		}
		if seen[a.Name] {
			return nil, fmt.Errorf("team %s: duplicate participant %s", cfg.Name, a.Name)
		}
		seen[a.Name] = true
	}
	if !cfg.Termination.Bounded() {
		return nil, ErrUnbounded
	}
	if runner == nil {
		return nil, fmt.Errorf("team %s: turn runner is required", cfg.Name)
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = FixedOrder{}
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = DefaultTurnTimeout
	}

	t := &Team{
		cfg:    cfg,
		runner: runner,
		tools:  make(map[string]ports.Tool),
		logger: logger.With().Str("team", cfg.Name).Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	for _, a := range cfg.Participants {
		for _, name := range a.Tools {
			if _, ok := t.tools[name]; !ok {
				t.logger.Warn().Str("agent", a.Name).Str("tool", name).Msg("agent references an unregistered tool")
			}
		}
	}
	return t, nil
}

// Name returns the configured team name.
func (t *Team) Name() string { return t.cfg.Name }

// Run drives the conversation for task until a termination condition holds.
// Turn failures become placeholder messages and never end the run. When ctx
// is cancelled the in-flight turn is discarded and the partial result is
// returned together with ctx.Err().
func (t *Team) Run(ctx context.Context, task string) (*Result, error) {
	if !t.ran.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}

	res := &Result{ID: uuid.NewString(), Team: t.cfg.Name, Transcript: NewTranscript()}
	logger := t.logger.With().Str("run_id", res.ID).Logger()
	state := &State{}
	defer func() {
		res.Turns = state.Turns
		res.Fallbacks = state.Fallbacks
	}()

	t.commit(ctx, res, logger, TaskSpeaker, RoleSystem, task)
	logger.Info().
		Str("scheduler", string(t.cfg.Scheduler.Kind())).
		Int("participants", len(t.cfg.Participants)).
		Msg("conversation started")

	for {
		if err := ctx.Err(); err != nil {
			return t.cancelled(res, logger, err)
		}
		if reason, done := t.cfg.Termination.Evaluate(res.Transcript, state); done {
			res.StopReason = reason
			break
		}

		speaker := t.cfg.Scheduler.NextSpeaker(ctx, res.Transcript, t.cfg.Participants, state)
		if err := ctx.Err(); err != nil {
			return t.cancelled(res, logger, err)
		}
		// a fallback counts against the budget, so it may have used the last slot
		if reason, done := t.cfg.Termination.Exhausted(res.Transcript, state); done {
			res.StopReason = reason
			break
		}

		if err := t.turn(ctx, res, logger, speaker, state); err != nil {
			return t.cancelled(res, logger, err)
		}
	}

	logger.Info().
		Str("reason", string(res.StopReason)).
		Int("turns", state.Turns).
		Int("messages", res.Transcript.Len()).
		Msg("conversation finished")
	return res, nil
}

// turn runs one agent turn and commits its messages. It returns an error only
// when the parent context was cancelled, in which case nothing is committed.
func (t *Team) turn(ctx context.Context, res *Result, logger zerolog.Logger, speaker *Agent, state *State) error {
	turnLog := logger.With().Str("speaker", speaker.Name).Int("turn", state.Turns+1).Logger()
	started := time.Now()

	turnCtx, cancel := context.WithTimeout(ctx, t.cfg.TurnTimeout)
	resp, err := t.runner.RunTurn(turnCtx, &harness.TurnRequest{
		Conversation: &harness.Conversation{
			ID:       res.ID,
			Messages: speaker.History(res.Transcript.Messages()),
		},
		Speaker: speaker.Name,
		System:  speaker.Instructions,
		Tools:   t.toolsFor(speaker),
		Options: speaker.Options(t.cfg.Defaults),
	})
	cancel()

	if ctxErr := ctx.Err(); ctxErr != nil {
		turnLog.Info().Msg("turn discarded after cancellation")
		return ctxErr
	}

	outcome := telemetry.OutcomeOK
	if err != nil {
		outcome = telemetry.OutcomeFailed
		res.Failures++
		turnLog.Warn().Err(err).Msg("turn failed")
		t.commit(ctx, res, turnLog, speaker.Name, RoleAgent, fmt.Sprintf("[turn failed: %v]", err))
	} else {
		t.commit(ctx, res, turnLog, speaker.Name, RoleAgent, resp.Text)
		for _, r := range resp.ToolResults {
			t.commit(ctx, res, turnLog, r.Call.Name, RoleToolResult, r.Summary())
		}
	}

	state.Turns++
	state.LastSpeaker = speaker.Name
	t.metrics.ObserveTurn(t.cfg.Name, outcome, time.Since(started))
	turnLog.Debug().Dur("took", time.Since(started)).Str("outcome", outcome).Msg("turn committed")
	return nil
}

func (t *Team) cancelled(res *Result, logger zerolog.Logger, err error) (*Result, error) {
	res.StopReason = StopCancelled
	logger.Info().Int("messages", res.Transcript.Len()).Msg("conversation cancelled")
	return res, err
}

func (t *Team) commit(ctx context.Context, res *Result, logger zerolog.Logger, speaker string, role Role, text string) {
	m := res.Transcript.Append(speaker, role, text)
	if t.store == nil {
		return
	}
	err := t.store.SaveTurn(context.WithoutCancel(ctx), res.ID, ports.Turn{
		Ordinal:   m.Ordinal,
		Speaker:   m.Speaker,
		Role:      string(m.Role),
		Content:   m.Text,
		CreatedAt: m.CreatedAt,
	})
	if err != nil {
		logger.Warn().Err(err).Int("ordinal", m.Ordinal).Msg("failed to persist message")
	}
}

func (t *Team) toolsFor(a *Agent) []ports.Tool {
	if len(a.Tools) == 0 {
		return nil
	}
	out := make([]ports.Tool, 0, len(a.Tools))
	for _, name := range a.Tools {
		if tool, ok := t.tools[name]; ok {
			out = append(out, tool)
		}
	}
	return out
}
