package team

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/rs/zerolog"
)

// Kind names a scheduling strategy.
type Kind string

const (
	KindFixedOrder       Kind = "fixed_order"
	KindDynamicSelection Kind = "dynamic_selection"
)

// State is the scheduler bookkeeping carried across turns of one conversation.
type State struct {
	Turns       int // agent turns committed
	Fallbacks   int // selections resolved by declaration-order fallback
	LastSpeaker string
}

// Scheduler picks who speaks next. Implementations always return one of
// participants when it is non-empty.
type Scheduler interface {
	Kind() Kind
	NextSpeaker(ctx context.Context, transcript *Transcript, participants []*Agent, state *State) *Agent
}

// FixedOrder cycles through participants in declaration order.
type FixedOrder struct{}

func (FixedOrder) Kind() Kind { return KindFixedOrder }

func (FixedOrder) NextSpeaker(_ context.Context, _ *Transcript, participants []*Agent, state *State) *Agent {
	if len(participants) == 0 {
		return nil
	}
	return participants[state.Turns%len(participants)]
}

// Selector makes one selection call and returns the raw reply.
type Selector interface {
	Select(ctx context.Context, history []Message, candidates []*Agent) (string, error)
}

// DynamicSelection asks a Selector for the next speaker and falls back to
// declaration order when no valid name comes back.
type DynamicSelection struct {
	selector    Selector
	attempts    int
	timeout     time.Duration
	allowRepeat bool
	onFallback  func()
	logger      zerolog.Logger

	tried *roaring.Bitmap // declaration indexes used by fallback since the last successful selection
}

type DynamicOption func(*DynamicSelection)

// WithSelectionAttempts sets how many selection calls are made before falling back.
func WithSelectionAttempts(n int) DynamicOption {
	return func(d *DynamicSelection) {
		if n > 0 {
			d.attempts = n
		}
	}
}

// WithSelectionTimeout bounds each selection call.
func WithSelectionTimeout(timeout time.Duration) DynamicOption {
	return func(d *DynamicSelection) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithRepeatedSpeaker allows the previous speaker to be selected again.
func WithRepeatedSpeaker(allow bool) DynamicOption {
	return func(d *DynamicSelection) { d.allowRepeat = allow }
}

// WithFallbackHook is called once per fallback.
func WithFallbackHook(fn func()) DynamicOption {
	return func(d *DynamicSelection) { d.onFallback = fn }
}

// NewDynamicSelection asks selector for each speaker, with one attempt and a
// 30s timeout per call unless overridden by opts.
func NewDynamicSelection(selector Selector, logger zerolog.Logger, opts ...DynamicOption) *DynamicSelection {
	d := &DynamicSelection{
		selector:    selector,
		attempts:    1,
		timeout:     30 * time.Second,
		allowRepeat: true,
		logger:      logger,
		tried:       roaring.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *DynamicSelection) Kind() Kind { return KindDynamicSelection }

// NextSpeaker asks the selector and falls back to the next unused participant
// in declaration order when every attempt fails.
func (d *DynamicSelection) NextSpeaker(ctx context.Context, transcript *Transcript, participants []*Agent, state *State) *Agent {
	if len(participants) == 0 {
		return nil
	}
	candidates := d.candidates(participants, state)
	history := transcript.Messages()

	for attempt := 1; attempt <= d.attempts && ctx.Err() == nil; attempt++ {
		reply, err := d.selectOnce(ctx, history, candidates)
		if err != nil {
			d.logger.Debug().Err(err).Int("attempt", attempt).Msg("selection call failed")
			continue
		}
		if a := resolveSpeaker(reply, candidates); a != nil {
			d.tried.Clear()
			return a
		}
		d.logger.Debug().Str("reply", truncate(reply, 80)).Int("attempt", attempt).Msg("selection named no participant")
	}

	a := d.fallback(participants, candidates)
	state.Fallbacks++
	if d.onFallback != nil {
		d.onFallback()
	}
	d.logger.Info().Str("speaker", a.Name).Int("fallbacks", state.Fallbacks).Msg("selection fell back to declaration order")
	return a
}

func (d *DynamicSelection) selectOnce(ctx context.Context, history []Message, candidates []*Agent) (string, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	return d.selector.Select(ctx, history, candidates)
}

func (d *DynamicSelection) candidates(participants []*Agent, state *State) []*Agent {
	if d.allowRepeat || state.LastSpeaker == "" || len(participants) < 2 {
		return participants
	}
	out := make([]*Agent, 0, len(participants)-1)
	for _, a := range participants {
		if a.Name != state.LastSpeaker {
			out = append(out, a)
		}
	}
	return out
}

// fallback returns the first candidate, in declaration order, not yet used by
// a fallback. Once every candidate has been used the set starts over.
func (d *DynamicSelection) fallback(participants, candidates []*Agent) *Agent {
	allowed := make(map[string]bool, len(candidates))
	for _, a := range candidates {
		allowed[a.Name] = true
	}
	for pass := 0; pass < 2; pass++ {
		for i, a := range participants {
			if !allowed[a.Name] || d.tried.Contains(uint32(i)) {
				continue
			}
			d.tried.Add(uint32(i))
			return a
		}
		d.tried.Clear()
	}
	return candidates[0]
}

// resolveSpeaker maps a selection reply onto a candidate: exact name first,
// then a case-insensitive match, then the only candidate mentioned in the reply.
func resolveSpeaker(reply string, candidates []*Agent) *Agent {
	name := strings.Trim(strings.TrimSpace(reply), "\"'`*.,:;[]() \t\n")
	if name == "" {
		return nil
	}
	for _, a := range candidates {
		if a.Name == name {
			return a
		}
	}
	for _, a := range candidates {
		if strings.EqualFold(a.Name, name) {
			return a
		}
	}
	var mentioned *Agent
	for _, a := range candidates {
		if strings.Contains(reply, a.Name) {
			if mentioned != nil {
				return nil
			}
			mentioned = a
		}
	}
	return mentioned
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// participantList renders names the way selection prompts expect them.
func participantList(agents []*Agent) string {
	names := make([]string, len(agents))
	for i, a := range agents {
		names[i] = a.Name
	}
	return fmt.Sprintf("[%s]", strings.Join(names, ", "))
}
