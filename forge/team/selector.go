package team

import (
	"context"
	"fmt"
	"strings"

	ports "github.com/ZanzyTHEbar/agentforge/forge/generation/harness/ports"
)

// DefaultSelectorPrompt is used when a roster does not supply one.
const DefaultSelectorPrompt = `You are in a role play game. The following roles are available:
{roles}

Read the following conversation. Then select the next role from {participants} to play. Only return the role.

{history}`

// ProviderSelector asks the inference service to name the next speaker.
type ProviderSelector struct {
	completer Completer
	prompt    string
	options   ports.Options
}

// NewProviderSelector builds a selector. prompt may use the {roles},
// {history} and {participants} placeholders.
func NewProviderSelector(completer Completer, prompt string, opts ports.Options) *ProviderSelector {
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultSelectorPrompt
	}
	if opts.MaxNewTokens == 0 {
		opts.MaxNewTokens = 32
	}
	return &ProviderSelector{completer: completer, prompt: prompt, options: opts}
}

// Select renders the selection prompt and returns the raw reply.
func (s *ProviderSelector) Select(ctx context.Context, history []Message, candidates []*Agent) (string, error) {
	in := ports.PromptInput{
		System: s.render(history, candidates),
		Messages: []ports.PromptMessage{{
			Role:    "user",
			Content: fmt.Sprintf("Select the next speaker from %s. Reply with the name only.", participantList(candidates)),
		}},
		Meta: map[string]string{"purpose": "speaker_selection"},
	}
	c, err := s.completer.Complete(ctx, in, s.options)
	if err != nil {
		return "", err
	}
	return c.Text, nil
}

func (s *ProviderSelector) render(history []Message, candidates []*Agent) string {
	roles := make([]string, len(candidates))
	for i, a := range candidates {
		roles[i] = fmt.Sprintf("%s: %s", a.Name, a.Description)
	}
	return strings.NewReplacer(
		"{roles}", strings.Join(roles, "\n"),
		"{participants}", participantList(candidates),
		"{history}", Render(history),
	).Replace(s.prompt)
}
