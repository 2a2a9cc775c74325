package harness

import (
	"fmt"
	"strings"

	ports "github.com/ZanzyTHEbar/agentforge/forge/generation/harness/ports"
)

// PromptBuilder assembles model-ready inputs from system text, messages, and tools.
type PromptBuilder struct {
	// ToolHint is appended to the system text when tools are offered. It documents
	// the plain-text call syntax for providers without native tool calling.
	ToolHint string
}

const defaultToolHint = `You can call tools. If native tool calling is unavailable, write the call on its own line as
tool_name({"arg": "value"}) using strict JSON arguments.`

func NewPromptBuilder() *PromptBuilder { return &PromptBuilder{ToolHint: defaultToolHint} }

// Build normalizes text and packs it into a PromptInput. The caller's slice is not modified.
func (b *PromptBuilder) Build(system string, messages []ports.PromptMessage, toolSpecs []ports.ToolSpec, meta map[string]string) ports.PromptInput {
	out := make([]ports.PromptMessage, 0, len(messages))
	for _, m := range messages {
		m.Content = normalizeText(m.Content)
		out = append(out, m)
	}

	system = normalizeText(system)
	if len(toolSpecs) > 0 && b.ToolHint != "" {
		names := make([]string, len(toolSpecs))
		for i, spec := range toolSpecs {
			names[i] = spec.Name
		}
		system = fmt.Sprintf("%s\n\n%s\nTools: %s", system, b.ToolHint, strings.Join(names, ", "))
		system = strings.TrimSpace(system)
	}

	return ports.PromptInput{
		System:   system,
		Messages: out,
		Tools:    toolSpecs,
		Meta:     meta,
	}
}

// normalizeText unifies newlines and trims, which keeps cache keys stable.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}
