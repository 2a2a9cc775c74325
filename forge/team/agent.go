package team

import (
	"context"

	"github.com/ZanzyTHEbar/agentforge/forge/generation/harness"
	ports "github.com/ZanzyTHEbar/agentforge/forge/generation/harness/ports"
)

// TurnRunner executes one agent turn. *harness.Orchestrator implements it.
type TurnRunner interface {
	RunTurn(ctx context.Context, req *harness.TurnRequest) (*harness.TurnResponse, error)
}

// Completer performs one inference call. *harness.Orchestrator implements it.
type Completer interface {
	Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error)
}

// Agent is a named participant. It keeps no state between conversations;
// its name is its speaker id.
type Agent struct {
	Name           string
	Description    string
	Instructions   string
	Temperature    float32 // zero uses the team default
	MaxReplyTokens int     // zero uses the team default
	Tools          []string
}

// History maps the transcript into the role-tagged view this agent sees:
// its own replies are assistant turns, everything else is input.
func (a *Agent) History(messages []Message) []ports.PromptMessage {
	out := make([]ports.PromptMessage, 0, len(messages))
	for _, m := range messages {
		switch {
		case m.Role == RoleToolResult:
			out = append(out, ports.PromptMessage{Role: "tool", Name: m.Speaker, Content: m.Text})
		case m.Role == RoleAgent && m.Speaker == a.Name:
			out = append(out, ports.PromptMessage{Role: "assistant", Content: m.Text})
		case m.Role == RoleAgent:
			out = append(out, ports.PromptMessage{Role: "user", Name: m.Speaker, Content: m.Text})
		default:
			out = append(out, ports.PromptMessage{Role: "user", Content: m.Text})
		}
	}
	return out
}

// Options overlays the agent's sampling settings on defaults.
func (a *Agent) Options(defaults ports.Options) ports.Options {
	opts := defaults
	if a.Temperature > 0 {
		opts.Temperature = a.Temperature
	}
	if a.MaxReplyTokens > 0 {
		opts.MaxNewTokens = a.MaxReplyTokens
	}
	return opts
}
