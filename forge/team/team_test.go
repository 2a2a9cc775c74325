package team

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/agentforge/forge/generation/harness"
	ports "github.com/ZanzyTHEbar/agentforge/forge/generation/harness/ports"
)

type scriptedRunner struct {
	mu   sync.Mutex
	reqs []*harness.TurnRequest
	fn   func(ctx context.Context, n int, req *harness.TurnRequest) (*harness.TurnResponse, error)
}

func (r *scriptedRunner) RunTurn(ctx context.Context, req *harness.TurnRequest) (*harness.TurnResponse, error) {
	r.mu.Lock()
	n := len(r.reqs)
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()
	if r.fn == nil {
		return &harness.TurnResponse{Text: req.Speaker + " reporting"}, nil
	}
	return r.fn(ctx, n, req)
}

func (r *scriptedRunner) speakers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.reqs))
	for i, req := range r.reqs {
		out[i] = req.Speaker
	}
	return out
}

type selectorFunc func(ctx context.Context, history []Message, candidates []*Agent) (string, error)

func (f selectorFunc) Select(ctx context.Context, history []Message, candidates []*Agent) (string, error) {
	return f(ctx, history, candidates)
}

type recordingStore struct {
	mu    sync.Mutex
	turns []ports.Turn
	err   error
}

func (s *recordingStore) SaveTurn(ctx context.Context, conversationID string, turn ports.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
	return s.err
}

func (s *recordingStore) LoadContext(ctx context.Context, conversationID string, k int) ([]ports.Turn, error) {
	return nil, nil
}

func (s *recordingStore) AppendToolArtifact(ctx context.Context, conversationID, name string, payload []byte) error {
	return nil
}

func agents(names ...string) []*Agent {
	out := make([]*Agent, len(names))
	for i, n := range names {
		out[i] = &Agent{Name: n, Description: n + " does things", Instructions: "You are " + n}
	}
	return out
}

func TestTranscript(t *testing.T) {
	tr := NewTranscript()
	tr.Append(TaskSpeaker, RoleSystem, "build it")
	tr.Append("dev", RoleAgent, "first reply")
	tr.Append("save_artifact", RoleToolResult, "save_artifact: saved a.py (10 B)")
	m := tr.Append("qa", RoleAgent, "second reply")

	assert.Equal(t, 3, m.Ordinal)
	assert.Equal(t, 4, tr.Len())
	for i, msg := range tr.Messages() {
		assert.Equal(t, i, msg.Ordinal)
	}

	last, ok := tr.LastByRole(RoleAgent)
	require.True(t, ok)
	assert.Equal(t, "qa", last.Speaker)

	bySpeaker, ok := tr.LastBySpeaker("dev")
	require.True(t, ok)
	assert.Equal(t, "first reply", bySpeaker.Text)

	_, ok = tr.LastBySpeaker("nobody")
	assert.False(t, ok)

	assert.Equal(t, "first reply\n\nsecond reply", tr.AgentText())
	assert.Equal(t, "user: build it\n\ndev: first reply", Render(tr.Messages()[:2]))
}

func TestAgentHistory(t *testing.T) {
	tr := NewTranscript()
	tr.Append(TaskSpeaker, RoleSystem, "task")
	tr.Append("dev", RoleAgent, "mine")
	tr.Append("save_artifact", RoleToolResult, "saved")
	tr.Append("qa", RoleAgent, "theirs")

	dev := &Agent{Name: "dev"}
	got := dev.History(tr.Messages())
	assert.Equal(t, []ports.PromptMessage{
		{Role: "user", Content: "task"},
		{Role: "assistant", Content: "mine"},
		{Role: "tool", Name: "save_artifact", Content: "saved"},
		{Role: "user", Name: "qa", Content: "theirs"},
	}, got)
}

func TestAgentOptions(t *testing.T) {
	defaults := ports.Options{Temperature: 0.8, MaxNewTokens: 4000, TopP: 0.9}
	a := &Agent{Temperature: 0.2}
	opts := a.Options(defaults)
	assert.Equal(t, float32(0.2), opts.Temperature)
	assert.Equal(t, 4000, opts.MaxNewTokens)
	assert.Equal(t, float32(0.9), opts.TopP)

	a = &Agent{MaxReplyTokens: 100}
	assert.Equal(t, 100, a.Options(defaults).MaxNewTokens)
	assert.Equal(t, float32(0.8), a.Options(defaults).Temperature)
}

func TestFixedOrderBudgetAndOrder(t *testing.T) {
	names := []string{"a", "b", "c", "d"}
	for n := 1; n <= len(names); n++ {
		for rounds := 1; rounds <= 3; rounds++ {
			runner := &scriptedRunner{}
			tm, err := New(Config{
				Name:         "fixed",
				Participants: agents(names[:n]...),
				Termination:  FixedOrderTermination(rounds, n, ""),
			}, runner, zerolog.Nop())
			require.NoError(t, err)

			res, err := tm.Run(context.Background(), "task")
			require.NoError(t, err)
			assert.Equal(t, n*rounds, res.Turns)
			assert.Equal(t, StopTurnBudget, res.StopReason)

			spoken := runner.speakers()
			require.Len(t, spoken, n*rounds)
			for i, s := range spoken {
				assert.Equal(t, names[i%n], s, "n=%d rounds=%d turn=%d", n, rounds, i)
			}
		}
	}
}

func TestSentinelStopsConversation(t *testing.T) {
	runner := &scriptedRunner{fn: func(ctx context.Context, n int, req *harness.TurnRequest) (*harness.TurnResponse, error) {
		if n == 1 {
			return &harness.TurnResponse{Text: "All good. REVIEW_COMPLETE"}, nil
		}
		return &harness.TurnResponse{Text: "working"}, nil
	}}
	tm, err := New(Config{
		Name:         "fixed",
		Participants: agents("a", "b", "c"),
		Termination:  FixedOrderTermination(3, 3, "REVIEW_COMPLETE"),
	}, runner, zerolog.Nop())
	require.NoError(t, err)

	res, err := tm.Run(context.Background(), "say REVIEW_COMPLETE when done")
	require.NoError(t, err)
	assert.Equal(t, StopSentinel, res.StopReason)
	assert.Equal(t, 2, res.Turns)
}

func TestSentinelIsCaseSensitive(t *testing.T) {
	runner := &scriptedRunner{fn: func(ctx context.Context, n int, req *harness.TurnRequest) (*harness.TurnResponse, error) {
		return &harness.TurnResponse{Text: "review_complete"}, nil
	}}
	tm, err := New(Config{
		Name:         "fixed",
		Participants: agents("a"),
		Termination:  FixedOrderTermination(2, 1, "REVIEW_COMPLETE"),
	}, runner, zerolog.Nop())
	require.NoError(t, err)

	res, err := tm.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, StopTurnBudget, res.StopReason)
	assert.Equal(t, 2, res.Turns)
}

func TestDynamicSentinelAtTurnSeven(t *testing.T) {
	participants := agents("arch", "svc", "ui", "state", "qa")
	runner := &scriptedRunner{fn: func(ctx context.Context, n int, req *harness.TurnRequest) (*harness.TurnResponse, error) {
		if n == 6 {
			return &harness.TurnResponse{Text: "Everything ships. FRONTEND_DEVELOPMENT_COMPLETE"}, nil
		}
		return &harness.TurnResponse{Text: "progress"}, nil
	}}
	var calls int
	selector := selectorFunc(func(ctx context.Context, history []Message, candidates []*Agent) (string, error) {
		calls++
		return candidates[calls%len(candidates)].Name, nil
	})

	tm, err := New(Config{
		Name:         "frontend",
		Participants: participants,
		Scheduler:    NewDynamicSelection(selector, zerolog.Nop()),
		Termination:  DynamicTermination(30, "FRONTEND_DEVELOPMENT_COMPLETE"),
	}, runner, zerolog.Nop())
	require.NoError(t, err)

	res, err := tm.Run(context.Background(), "build the frontend")
	require.NoError(t, err)
	assert.Equal(t, StopSentinel, res.StopReason)
	assert.Equal(t, 7, res.Turns)
	assert.Equal(t, 8, res.Transcript.Len())
	assert.Equal(t, 0, res.Fallbacks)
}

func TestDynamicMessageBudget(t *testing.T) {
	runner := &scriptedRunner{}
	selector := selectorFunc(func(ctx context.Context, history []Message, candidates []*Agent) (string, error) {
		return "b", nil
	})
	tm, err := New(Config{
		Name:         "dyn",
		Participants: agents("a", "b"),
		Scheduler:    NewDynamicSelection(selector, zerolog.Nop()),
		Termination:  DynamicTermination(6, ""),
	}, runner, zerolog.Nop())
	require.NoError(t, err)

	res, err := tm.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, StopMessageBudget, res.StopReason)
	assert.Equal(t, 6, res.Transcript.Len())
	assert.Equal(t, 5, res.Turns)
	assert.Equal(t, []string{"b", "b", "b", "b", "b"}, runner.speakers())
}

func TestDynamicFallbackNeverStalls(t *testing.T) {
	names := []string{"a", "b", "c", "d"}
	participants := agents(names...)
	selector := selectorFunc(func(ctx context.Context, history []Message, candidates []*Agent) (string, error) {
		return "nobody-in-particular", nil
	})
	d := NewDynamicSelection(selector, zerolog.Nop(), WithSelectionAttempts(2))
	state := &State{}
	tr := NewTranscript()

	for k := 1; k <= len(participants); k++ {
		a := d.NextSpeaker(context.Background(), tr, participants, state)
		require.NotNil(t, a)
		assert.Equal(t, names[k-1], a.Name)
		assert.Equal(t, k, state.Fallbacks)
	}
	// every participant has been tried, the cycle starts again
	a := d.NextSpeaker(context.Background(), tr, participants, state)
	assert.Equal(t, "a", a.Name)
}

func TestDynamicFallbackResetsAfterSuccess(t *testing.T) {
	participants := agents("a", "b", "c")
	replies := []string{"???", "c", "???"}
	var i int
	selector := selectorFunc(func(ctx context.Context, history []Message, candidates []*Agent) (string, error) {
		r := replies[i]
		i++
		return r, nil
	})
	d := NewDynamicSelection(selector, zerolog.Nop())
	state := &State{}

	assert.Equal(t, "a", d.NextSpeaker(context.Background(), NewTranscript(), participants, state).Name)
	assert.Equal(t, "c", d.NextSpeaker(context.Background(), NewTranscript(), participants, state).Name)
	assert.Equal(t, "a", d.NextSpeaker(context.Background(), NewTranscript(), participants, state).Name)
	assert.Equal(t, 2, state.Fallbacks)
}

func TestDynamicSelectionErrorsAndTimeouts(t *testing.T) {
	participants := agents("a", "b")
	var fallbacks int
	selector := selectorFunc(func(ctx context.Context, history []Message, candidates []*Agent) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	d := NewDynamicSelection(selector, zerolog.Nop(),
		WithSelectionTimeout(10*time.Millisecond),
		WithSelectionAttempts(3),
		WithFallbackHook(func() { fallbacks++ }),
	)
	state := &State{}

	started := time.Now()
	a := d.NextSpeaker(context.Background(), NewTranscript(), participants, state)
	assert.Equal(t, "a", a.Name)
	assert.Less(t, time.Since(started), 2*time.Second)
	assert.Equal(t, 1, fallbacks)
	assert.Equal(t, 1, state.Fallbacks)
}

func TestDynamicNoRepeatedSpeaker(t *testing.T) {
	participants := agents("a", "b", "c")
	var offered []string
	selector := selectorFunc(func(ctx context.Context, history []Message, candidates []*Agent) (string, error) {
		offered = offered[:0]
		for _, c := range candidates {
			offered = append(offered, c.Name)
		}
		return "a", nil
	})
	d := NewDynamicSelection(selector, zerolog.Nop(), WithRepeatedSpeaker(false))
	state := &State{LastSpeaker: "a"}

	got := d.NextSpeaker(context.Background(), NewTranscript(), participants, state)
	assert.Equal(t, []string{"b", "c"}, offered)
	assert.Equal(t, "b", got.Name, "a is not a candidate so the fallback picks b")
	assert.Equal(t, 1, state.Fallbacks)
}

func TestFallbacksCountAgainstBudget(t *testing.T) {
	runner := &scriptedRunner{}
	selector := selectorFunc(func(ctx context.Context, history []Message, candidates []*Agent) (string, error) {
		return "", errors.New("selection unavailable")
	})
	tm, err := New(Config{
		Name:         "dyn",
		Participants: agents("a", "b", "c"),
		Scheduler:    NewDynamicSelection(selector, zerolog.Nop()),
		Termination:  DynamicTermination(5, ""),
	}, runner, zerolog.Nop())
	require.NoError(t, err)

	res, err := tm.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, StopMessageBudget, res.StopReason)
	assert.Equal(t, 2, res.Turns)
	assert.Equal(t, 2, res.Fallbacks)
	assert.Equal(t, 5, res.Transcript.Len()+res.Fallbacks)
	assert.Equal(t, []string{"a", "b"}, runner.speakers())
}

func TestResolveSpeaker(t *testing.T) {
	c := agents("Component_Architect", "QA_Specialist", "QA")
	cases := map[string]string{
		"Component_Architect":                       "Component_Architect",
		"  'QA_Specialist'.\n":                      "QA_Specialist",
		"component_architect":                       "Component_Architect",
		"I pick Component_Architect for this phase": "Component_Architect",
		"qa":                                        "QA",
	}
	for reply, want := range cases {
		got := resolveSpeaker(reply, c)
		require.NotNil(t, got, reply)
		assert.Equal(t, want, got.Name, reply)
	}
	assert.Nil(t, resolveSpeaker("", c))
	assert.Nil(t, resolveSpeaker("nobody", c))
	assert.Nil(t, resolveSpeaker("either QA_Specialist or Component_Architect", c))
}

func TestTurnFailureBecomesPlaceholder(t *testing.T) {
	runner := &scriptedRunner{fn: func(ctx context.Context, n int, req *harness.TurnRequest) (*harness.TurnResponse, error) {
		if n == 1 {
			return nil, fmt.Errorf("provider call failed: %w", ports.ErrUnavailable)
		}
		return &harness.TurnResponse{Text: "fine"}, nil
	}}
	tm, err := New(Config{
		Name:         "fixed",
		Participants: agents("a", "b"),
		Termination:  FixedOrderTermination(2, 2, ""),
	}, runner, zerolog.Nop())
	require.NoError(t, err)

	res, err := tm.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Turns)
	assert.Equal(t, 1, res.Failures)

	msgs := res.Transcript.Messages()
	require.Len(t, msgs, 5)
	assert.Equal(t, "b", msgs[2].Speaker)
	assert.Equal(t, RoleAgent, msgs[2].Role)
	assert.True(t, strings.HasPrefix(msgs[2].Text, "[turn failed: "))
	assert.Contains(t, msgs[2].Text, "unavailable")
}

func TestTurnTimeoutBecomesPlaceholder(t *testing.T) {
	runner := &scriptedRunner{fn: func(ctx context.Context, n int, req *harness.TurnRequest) (*harness.TurnResponse, error) {
		if n == 0 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &harness.TurnResponse{Text: "fine"}, nil
	}}
	tm, err := New(Config{
		Name:         "fixed",
		Participants: agents("a", "b"),
		Termination:  FixedOrderTermination(1, 2, ""),
		TurnTimeout:  20 * time.Millisecond,
	}, runner, zerolog.Nop())
	require.NoError(t, err)

	res, err := tm.Run(context.Background(), "task")
	require.NoError(t, err)
	msgs := res.Transcript.Messages()
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[1].Text, context.DeadlineExceeded.Error())
	assert.Equal(t, "fine", msgs[2].Text)
}

func TestCancellationKeepsCommittedTurns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := &scriptedRunner{fn: func(turnCtx context.Context, n int, req *harness.TurnRequest) (*harness.TurnResponse, error) {
		if n == 2 {
			cancel()
			<-turnCtx.Done()
			return nil, turnCtx.Err()
		}
		return &harness.TurnResponse{Text: "done by " + req.Speaker}, nil
	}}
	tm, err := New(Config{
		Name:         "fixed",
		Participants: agents("a", "b", "c"),
		Termination:  FixedOrderTermination(3, 3, ""),
	}, runner, zerolog.Nop())
	require.NoError(t, err)

	res, err := tm.Run(ctx, "task")
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, StopCancelled, res.StopReason)
	assert.Equal(t, 2, res.Turns)
	msgs := res.Transcript.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "done by b", msgs[2].Text)
}

func TestToolResultsAreCommitted(t *testing.T) {
	tool := &namedTool{name: "save_artifact"}
	runner := &scriptedRunner{fn: func(ctx context.Context, n int, req *harness.TurnRequest) (*harness.TurnResponse, error) {
		if n == 0 {
			require.Len(t, req.Tools, 1)
			call := ports.ToolCall{Name: "save_artifact"}
			return &harness.TurnResponse{
				Text: "saving two files",
				ToolResults: []harness.ToolResult{
					{Call: call, Output: "saved a.py (12 B)"},
					{Call: call, Err: errors.New("path contains directory traversal")},
				},
			}, nil
		}
		hist := req.Conversation.Messages
		require.Len(t, hist, 4)
		assert.Equal(t, "tool", hist[2].Role)
		assert.Empty(t, req.Tools)
		return &harness.TurnResponse{Text: "reviewed"}, nil
	}}
	participants := agents("dev", "qa")
	participants[0].Tools = []string{"save_artifact"}
	tm, err := New(Config{
		Name:         "fixed",
		Participants: participants,
		Termination:  FixedOrderTermination(1, 2, ""),
	}, runner, zerolog.Nop(), WithTools(tool))
	require.NoError(t, err)

	res, err := tm.Run(context.Background(), "task")
	require.NoError(t, err)
	msgs := res.Transcript.Messages()
	require.Len(t, msgs, 5)
	assert.Equal(t, RoleAgent, msgs[1].Role)
	assert.Equal(t, RoleToolResult, msgs[2].Role)
	assert.Equal(t, "save_artifact", msgs[2].Speaker)
	assert.Equal(t, "save_artifact: saved a.py (12 B)", msgs[2].Text)
	assert.Contains(t, msgs[3].Text, "save_artifact failed")
	assert.Equal(t, 2, res.Turns)
}

type namedTool struct{ name string }

func (n *namedTool) Name() string   { return n.name }
func (n *namedTool) Schema() []byte { return nil }
func (n *namedTool) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	return "ok", nil
}

func TestPersistence(t *testing.T) {
	store := &recordingStore{err: errors.New("disk full")}
	tm, err := New(Config{
		Name:         "fixed",
		Participants: agents("a", "b"),
		Termination:  FixedOrderTermination(1, 2, ""),
	}, &scriptedRunner{}, zerolog.Nop(), WithStore(store))
	require.NoError(t, err)

	res, err := tm.Run(context.Background(), "task")
	require.NoError(t, err, "store failures never abort the conversation")
	require.Len(t, store.turns, 3)
	assert.Equal(t, "system", store.turns[0].Role)
	assert.Equal(t, 2, store.turns[2].Ordinal)
	assert.Equal(t, res.Transcript.Len(), len(store.turns))
}

func TestRunOnce(t *testing.T) {
	tm, err := New(Config{
		Name:         "fixed",
		Participants: agents("a"),
		Termination:  FixedOrderTermination(1, 1, ""),
	}, &scriptedRunner{}, zerolog.Nop())
	require.NoError(t, err)

	res, err := tm.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "fixed", res.Team)

	_, err = tm.Run(context.Background(), "task")
	assert.ErrorIs(t, err, ErrAlreadyRun)
}

func TestNewValidation(t *testing.T) {
	bounded := FixedOrderTermination(1, 1, "")
	_, err := New(Config{Termination: bounded}, &scriptedRunner{}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrNoParticipants)

	_, err = New(Config{Participants: agents("a"), Termination: Termination{Sentinel: "DONE"}}, &scriptedRunner{}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrUnbounded)

	_, err = New(Config{Participants: agents("a", "a"), Termination: bounded}, &scriptedRunner{}, zerolog.Nop())
	assert.Error(t, err)

	_, err = New(Config{Participants: agents("a"), Termination: bounded}, nil, zerolog.Nop())
	assert.Error(t, err)
}
