package adapters

import (
	"fmt"
	"strings"

	ports "github.com/ZanzyTHEbar/agentforge/forge/generation/harness/ports"
)

// LlamaConfig configures the local llama.cpp provider.
type LlamaConfig struct {
	ModelPath   string
	ContextSize int
	GPULayers   int
	Threads     int
}

// flattenPrompt renders a chat prompt as one ChatML string for raw completion models.
func flattenPrompt(in ports.PromptInput) string {
	var b strings.Builder
	system := in.System
	if len(in.Tools) > 0 {
		var tools strings.Builder
		tools.WriteString("\n\nAvailable tools (call as name({json args})):\n")
		for _, t := range in.Tools {
			fmt.Fprintf(&tools, "- %s: %s schema=%s\n", t.Name, t.Description, string(t.JSONSchema))
		}
		system += tools.String()
	}
	if system != "" {
		fmt.Fprintf(&b, "<|im_start|>system\n%s<|im_end|>\n", system)
	}
	for _, m := range in.Messages {
		msg := toChatMessage(m)
		fmt.Fprintf(&b, "<|im_start|>%s\n%s<|im_end|>\n", msg.Role, msg.Content)
	}
	b.WriteString("<|im_start|>assistant\n")
	return b.String()
}
