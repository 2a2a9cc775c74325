package harness

import (
	"encoding/json"
	"fmt"
	"strings"

	ports "github.com/ZanzyTHEbar/agentforge/forge/generation/harness/ports"
	"github.com/xeipuuv/gojsonschema"
)

// Guardrails gates tool calls before they run.
type Guardrails struct {
	allowlist     map[string]bool // empty allows every registered tool
	validateArgs  bool
	maxToolCalls  int
	jsonValidator *JSONValidator
}

// NewGuardrails creates guardrails with schema validation on and no allowlist.
func NewGuardrails() *Guardrails {
	return &Guardrails{
		allowlist:     make(map[string]bool),
		validateArgs:  true,
		maxToolCalls:  16,
		jsonValidator: NewJSONValidator(),
	}
}

// AddAllowedTool adds a tool to the allowlist.
func (g *Guardrails) AddAllowedTool(name string) {
	g.allowlist[name] = true
}

// SetSchemaValidation toggles argument validation against tool schemas.
func (g *Guardrails) SetSchemaValidation(on bool) {
	g.validateArgs = on
}

// SetMaxToolCalls bounds the number of tool calls executed per turn.
func (g *Guardrails) SetMaxToolCalls(n int) {
	if n > 0 {
		g.maxToolCalls = n
	}
}

// ValidateToolCall checks the allowlist and the arguments against schema.
func (g *Guardrails) ValidateToolCall(call ports.ToolCall, schema []byte) error {
	if call.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if len(g.allowlist) > 0 && !g.allowlist[call.Name] {
		return fmt.Errorf("%w: %s", ports.ErrToolNotAllowed, call.Name)
	}
	if !json.Valid(call.Args) {
		return fmt.Errorf("tool arguments are not valid JSON")
	}
	if g.validateArgs {
		return g.jsonValidator.Validate(call.Args, schema)
	}
	return nil
}

// ValidateToolCount reports an error once a turn asks for more calls than allowed.
// index is zero-based.
func (g *Guardrails) ValidateToolCount(index int) error {
	if index >= g.maxToolCalls {
		return fmt.Errorf("tool call limit of %d per turn reached", g.maxToolCalls)
	}
	return nil
}

// JSONValidator handles JSON schema validation.
type JSONValidator struct{}

// NewJSONValidator creates a new JSON validator.
func NewJSONValidator() *JSONValidator {
	return &JSONValidator{}
}

// Validate checks if JSON data conforms to a schema.
func (v *JSONValidator) Validate(data json.RawMessage, schema []byte) error {
	if len(schema) == 0 {
		return nil
	}
	if !json.Valid(data) {
		return fmt.Errorf("data is not valid JSON")
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
