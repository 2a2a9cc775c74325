package team

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	ports "github.com/ZanzyTHEbar/agentforge/forge/generation/harness/ports"
	"github.com/ZanzyTHEbar/agentforge/forge/telemetry"
)

//go:embed rosters/*.yaml
var presetFS embed.FS

// AgentSpec is the YAML form of an Agent.
type AgentSpec struct {
	Name           string   `yaml:"name"`
	Description    string   `yaml:"description"`
	Instructions   string   `yaml:"instructions"`
	Temperature    float32  `yaml:"temperature"`
	MaxReplyTokens int      `yaml:"max_reply_tokens"`
	Tools          []string `yaml:"tools"`
}

// Roster is a reusable team definition.
type Roster struct {
	Name                 string      `yaml:"name"`
	Description          string      `yaml:"description"`
	Scheduler            Kind        `yaml:"scheduler"`
	TurnBudget           int         `yaml:"turn_budget"`  // rounds, fixed_order
	MaxMessages          int         `yaml:"max_messages"` // dynamic_selection
	Sentinel             string      `yaml:"sentinel"`
	AllowRepeatedSpeaker *bool       `yaml:"allow_repeated_speaker"`
	SelectorPrompt       string      `yaml:"selector_prompt"`
	TaskTemplate         string      `yaml:"task_template"`
	Agents               []AgentSpec `yaml:"agents"`
}

// ParseRoster decodes and validates a YAML roster.
func ParseRoster(data []byte) (*Roster, error) {
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// LoadRoster reads a roster file.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}
	r, err := ParseRoster(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// LoadRosterDir reads every *.yaml and *.yml roster in dir, keyed by roster name.
func LoadRosterDir(dir string) (map[string]*Roster, error) {
	out := make(map[string]*Roster)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read roster dir: %w", err)
	}
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		r, err := LoadRoster(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out[r.Name] = r
	}
	return out, nil
}

// Preset returns an embedded roster by name.
func Preset(name string) (*Roster, error) {
	data, err := presetFS.ReadFile("rosters/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("unknown roster preset %q", name)
	}
	return ParseRoster(data)
}

// Presets lists the embedded roster names.
func Presets() []string {
	entries, _ := presetFS.ReadDir("rosters")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Resolve finds a roster by preset name, custom set, or file path, in that order.
func Resolve(ref string, custom map[string]*Roster) (*Roster, error) {
	if r, ok := custom[ref]; ok {
		return r, nil
	}
	if r, err := Preset(ref); err == nil {
		return r, nil
	}
	if _, err := os.Stat(ref); err == nil {
		return LoadRoster(ref)
	}
	return nil, fmt.Errorf("roster %q is neither a preset nor a file", ref)
}

// Validate reports the first structural problem in the roster.
func (r *Roster) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("roster name is required")
	}
	if len(r.Agents) == 0 {
		return fmt.Errorf("roster %s: %w", r.Name, ErrNoParticipants)
	}
	seen := make(map[string]bool, len(r.Agents))
	for _, a := range r.Agents {
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("roster %s: agent without a name", r.Name)
		}
		if seen[a.Name] {
			return fmt.Errorf("roster %s: duplicate agent %s", r.Name, a.Name)
		}
		seen[a.Name] = true
	}
	switch r.Scheduler {
	case KindFixedOrder:
		if r.TurnBudget < 1 {
			return fmt.Errorf("roster %s: fixed_order needs turn_budget >= 1", r.Name)
		}
	case KindDynamicSelection:
		if r.MaxMessages < 1 {
			return fmt.Errorf("roster %s: dynamic_selection needs max_messages >= 1", r.Name)
		}
	default:
		return fmt.Errorf("roster %s: unknown scheduler %q", r.Name, r.Scheduler)
	}
	return nil
}

// Task renders the opening message for brief.
func (r *Roster) Task(brief string) string {
	if strings.TrimSpace(r.TaskTemplate) == "" {
		return brief
	}
	if !strings.Contains(r.TaskTemplate, "{brief}") {
		return strings.TrimRight(r.TaskTemplate, "\n") + "\n\n" + brief
	}
	return strings.ReplaceAll(r.TaskTemplate, "{brief}", brief)
}

// Participants builds the agents in declaration order.
func (r *Roster) Participants() []*Agent {
	out := make([]*Agent, len(r.Agents))
	for i, s := range r.Agents {
		out[i] = &Agent{
			Name:           s.Name,
			Description:    strings.TrimSpace(s.Description),
			Instructions:   strings.TrimSpace(s.Instructions),
			Temperature:    s.Temperature,
			MaxReplyTokens: s.MaxReplyTokens,
			Tools:          s.Tools,
		}
	}
	return out
}

// Settings are the runtime knobs that do not live in a roster.
type Settings struct {
	TurnTimeout       time.Duration
	SelectionTimeout  time.Duration
	SelectionAttempts int
	Defaults          ports.Options
}

// Deps are the collaborators a team built from a roster needs.
type Deps struct {
	Runner   TurnRunner
	Selector Completer // used by dynamic_selection rosters
	Tools    []ports.Tool
	Store    ports.ConversationStore // nil disables persistence
	Metrics  *telemetry.Metrics
	Logger   zerolog.Logger
}

// NewTeam builds a Team from the roster.
func (r *Roster) NewTeam(settings Settings, deps Deps) (*Team, error) {
	participants := r.Participants()
	cfg := Config{
		Name:         r.Name,
		Participants: participants,
		TurnTimeout:  settings.TurnTimeout,
		Defaults:     settings.Defaults,
	}

	switch r.Scheduler {
	case KindFixedOrder:
		cfg.Scheduler = FixedOrder{}
		cfg.Termination = FixedOrderTermination(r.TurnBudget, len(participants), r.Sentinel)
	case KindDynamicSelection:
		if deps.Selector == nil {
			return nil, fmt.Errorf("roster %s: dynamic_selection needs a selector", r.Name)
		}
		allowRepeat := true
		if r.AllowRepeatedSpeaker != nil {
			allowRepeat = *r.AllowRepeatedSpeaker
		}
		selectorOpts := settings.Defaults
		selectorOpts.MaxNewTokens = 0
		cfg.Scheduler = NewDynamicSelection(
			NewProviderSelector(deps.Selector, r.SelectorPrompt, selectorOpts),
			deps.Logger.With().Str("team", r.Name).Logger(),
			WithSelectionAttempts(settings.SelectionAttempts),
			WithSelectionTimeout(settings.SelectionTimeout),
			WithRepeatedSpeaker(allowRepeat),
			WithFallbackHook(func() { deps.Metrics.SelectionFallback(r.Name) }),
		)
		cfg.Termination = DynamicTermination(r.MaxMessages, r.Sentinel)
	default:
		return nil, fmt.Errorf("roster %s: unknown scheduler %q", r.Name, r.Scheduler)
	}

	opts := []Option{WithTools(deps.Tools...), WithMetrics(deps.Metrics)}
	if deps.Store != nil {
		opts = append(opts, WithStore(deps.Store))
	}
	return New(cfg, deps.Runner, deps.Logger, opts...)
}
