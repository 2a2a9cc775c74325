package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	ports "github.com/ZanzyTHEbar/agentforge/forge/generation/harness/ports"
)

// SaveArtifactName is the name agents use to call the tool.
const SaveArtifactName = "save_artifact"

// SaveArtifactSchema defines the JSON schema for save_artifact arguments.
const SaveArtifactSchema = `{
  "type": "object",
  "properties": {
    "relative_directory": {
      "type": "string",
      "description": "Directory for the file, relative to the project root. Empty for the root."
    },
    "filename": {
      "type": "string",
      "minLength": 1,
      "description": "File name including its extension, e.g. app.py"
    },
    "content": {
      "type": "string",
      "description": "Complete file content"
    }
  },
  "required": ["filename", "content"]
}`

// ArtifactWriter stores a file and returns its normalized path.
type ArtifactWriter interface {
	Put(dir, name, content string) (string, error)
}

// SaveArtifactTool writes files into a shared namespace during a turn and
// remembers which paths it wrote.
type SaveArtifactTool struct {
	writer ArtifactWriter
	logger zerolog.Logger

	mu      sync.Mutex
	written []string
	seen    map[string]struct{}
}

func NewSaveArtifactTool(writer ArtifactWriter, logger zerolog.Logger) *SaveArtifactTool {
	return &SaveArtifactTool{
		writer: writer,
		logger: logger.With().Str("tool", SaveArtifactName).Logger(),
		seen:   make(map[string]struct{}),
	}
}

func (t *SaveArtifactTool) Name() string { return SaveArtifactName }

func (t *SaveArtifactTool) Description() string {
	return "Save a complete project file. Call once per file; saving the same path again replaces it."
}

func (t *SaveArtifactTool) Schema() []byte { return []byte(SaveArtifactSchema) }

// Invoke writes the file and returns a short confirmation.
func (t *SaveArtifactTool) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	var params struct {
		RelativeDirectory string `json:"relative_directory"`
		Filename          string `json:"filename"`
		Content           string `json:"content"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(params.Filename) == "" {
		return nil, fmt.Errorf("filename is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := t.writer.Put(params.RelativeDirectory, params.Filename, params.Content)
	if err != nil {
		t.logger.Warn().Err(err).Str("filename", params.Filename).Msg("save rejected")
		return nil, err
	}

	t.mu.Lock()
	if _, ok := t.seen[p]; !ok {
		t.seen[p] = struct{}{}
		t.written = append(t.written, p)
	}
	t.mu.Unlock()

	t.logger.Debug().Str("path", p).Int("bytes", len(params.Content)).Msg("artifact saved")
	return fmt.Sprintf("saved %s (%s)", p, humanize.Bytes(uint64(len(params.Content)))), nil
}

// Written returns the distinct paths saved through this tool, in first-write order.
func (t *SaveArtifactTool) Written() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.written))
	copy(out, t.written)
	return out
}

var _ ports.Tool = (*SaveArtifactTool)(nil)
var _ ports.Describer = (*SaveArtifactTool)(nil)
