package harnessports

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrToolNotAllowed is returned by guardrails for calls outside the allowlist.
var ErrToolNotAllowed = errors.New("tool not allowed")

// ToolSpec describes a callable tool exposed to the model.
type ToolSpec struct {
	Name        string // unique logical name
	Description string // concise doc for model selection
	JSONSchema  []byte // JSON schema for args
}

// ToolCall represents a model-invoked function with JSON arguments.
type ToolCall struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// Tool defines the runtime that executes a tool call.
type Tool interface {
	Name() string
	Schema() []byte
	Invoke(ctx context.Context, args json.RawMessage) (any, error)
}

// Describer is implemented by tools that carry a model-facing description.
type Describer interface {
	Description() string
}
