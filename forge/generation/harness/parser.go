package harness

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	ports "github.com/ZanzyTHEbar/agentforge/forge/generation/harness/ports"
)

// OutputParser recovers tool calls written as plain text by models that lack
// native tool calling.
type OutputParser struct {
	names    map[string]bool // accepted tool names, empty accepts any
	funcCall *regexp.Regexp
	objCall  *regexp.Regexp
}

// NewOutputParser creates a parser that only reports calls to the given tools.
func NewOutputParser(toolNames ...string) *OutputParser {
	names := make(map[string]bool, len(toolNames))
	for _, n := range toolNames {
		names[n] = true
	}
	return &OutputParser{
		names: names,
		// tool_name({...})
		funcCall: regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\s*\(\s*\{`),
		// {"name": "tool", "arguments": {...}} or {"tool": "tool", "args": {...}}
		objCall: regexp.MustCompile(`\{\s*"(?:name|tool)"\s*:`),
	}
}

type positionedCall struct {
	offset int
	call   ports.ToolCall
}

// ParseToolCalls extracts tool calls in the order they appear in text.
func (p *OutputParser) ParseToolCalls(text string) []ports.ToolCall {
	var found []positionedCall
	covered := func(offset int) bool {
		for _, f := range found {
			if offset >= f.offset && offset < f.offset+len(f.call.Args) {
				return true
			}
		}
		return false
	}

	for _, loc := range p.funcCall.FindAllStringSubmatchIndex(text, -1) {
		name := text[loc[2]:loc[3]]
		if !p.accepts(name) || covered(loc[0]) {
			continue
		}
		braceAt := loc[1] - 1
		obj, ok := balancedObject(text, braceAt)
		if !ok {
			continue
		}
		args, ok := p.coerceJSON(obj)
		if !ok {
			continue
		}
		found = append(found, positionedCall{offset: braceAt, call: ports.ToolCall{Name: name, Args: args}})
	}

	for _, loc := range p.objCall.FindAllStringIndex(text, -1) {
		if covered(loc[0]) {
			continue
		}
		obj, ok := balancedObject(text, loc[0])
		if !ok {
			continue
		}
		call, ok := p.decodeObjectCall(obj)
		if !ok || !p.accepts(call.Name) {
			continue
		}
		found = append(found, positionedCall{offset: loc[0], call: call})
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].offset < found[j].offset })
	calls := make([]ports.ToolCall, len(found))
	for i, f := range found {
		calls[i] = f.call
	}
	return calls
}

func (p *OutputParser) accepts(name string) bool {
	if name == "" {
		return false
	}
	return len(p.names) == 0 || p.names[name]
}

func (p *OutputParser) decodeObjectCall(obj string) (ports.ToolCall, bool) {
	var envelope struct {
		Name      string          `json:"name"`
		Tool      string          `json:"tool"`
		Arguments json.RawMessage `json:"arguments"`
		Args      json.RawMessage `json:"args"`
	}
	if err := json.Unmarshal([]byte(obj), &envelope); err != nil {
		return ports.ToolCall{}, false
	}

	name := envelope.Name
	if name == "" {
		name = envelope.Tool
	}
	args := envelope.Arguments
	if len(args) == 0 {
		args = envelope.Args
	}
	if len(args) == 0 {
		return ports.ToolCall{}, false
	}

	// OpenAI style: arguments is a JSON-encoded string
	var encoded string
	if json.Unmarshal(args, &encoded) == nil {
		if !json.Valid([]byte(encoded)) {
			return ports.ToolCall{}, false
		}
		args = json.RawMessage(encoded)
	}
	return ports.ToolCall{Name: name, Args: args}, true
}

func (p *OutputParser) coerceJSON(obj string) (json.RawMessage, bool) {
	if json.Valid([]byte(obj)) {
		return json.RawMessage(obj), true
	}
	fixed := p.fixJSON(obj)
	if json.Valid([]byte(fixed)) {
		return json.RawMessage(fixed), true
	}
	return nil, false
}

var (
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKey   = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)
)

// fixJSON attempts to fix common JSON formatting issues.
func (p *OutputParser) fixJSON(jsonStr string) string {
	jsonStr = trailingComma.ReplaceAllString(jsonStr, "$1")
	jsonStr = unquotedKey.ReplaceAllString(jsonStr, `$1"$2":`)
	if !strings.Contains(jsonStr, `"`) {
		jsonStr = strings.ReplaceAll(jsonStr, "'", `"`)
	}
	return jsonStr
}

// balancedObject returns the {...} span starting at start, honoring quoted strings.
func balancedObject(s string, start int) (string, bool) {
	if start < 0 || start >= len(s) || s[start] != '{' {
		return "", false
	}
	depth := 0
	var quote byte
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
