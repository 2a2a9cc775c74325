package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/agentforge/forge/artifact"
	ports "github.com/ZanzyTHEbar/agentforge/forge/generation/harness/ports"
)

// ListArtifactsName is the name agents use to call the tool.
const ListArtifactsName = "list_artifacts"

// ListArtifactsSchema defines the JSON schema for list_artifacts arguments.
const ListArtifactsSchema = `{
  "type": "object",
  "properties": {
    "prefix": {
      "type": "string",
      "description": "Only list files under this directory"
    },
    "include_contents": {
      "type": "boolean",
      "description": "Include file contents in the response",
      "default": false
    },
    "max_content_size": {
      "type": "integer",
      "description": "Maximum content size to include (in bytes)",
      "minimum": 1,
      "maximum": 65536,
      "default": 4096
    }
  }
}`

// ArtifactReader is the read side of the artifact namespace.
type ArtifactReader interface {
	List(prefix string) []string
	Get(path string) (string, bool)
}

// FileEntry describes one saved file.
type FileEntry struct {
	Path        string               `json:"path"`
	ContentType artifact.ContentType `json:"content_type"`
	Language    string               `json:"language"`
	Size        int                  `json:"size"`
	Contents    string               `json:"contents,omitempty"`
	Truncated   bool                 `json:"truncated,omitempty"`
}

// ListArtifactsTool lets agents see what has been saved so far.
type ListArtifactsTool struct {
	reader ArtifactReader
}

func NewListArtifactsTool(reader ArtifactReader) *ListArtifactsTool {
	return &ListArtifactsTool{reader: reader}
}

func (t *ListArtifactsTool) Name() string { return ListArtifactsName }

func (t *ListArtifactsTool) Description() string {
	return "List files saved so far, optionally with their contents."
}

func (t *ListArtifactsTool) Schema() []byte { return []byte(ListArtifactsSchema) }

func (t *ListArtifactsTool) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	var params struct {
		Prefix          string `json:"prefix"`
		IncludeContents bool   `json:"include_contents"`
		MaxContentSize  int    `json:"max_content_size"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}
	if params.MaxContentSize <= 0 {
		params.MaxContentSize = 4096
	}
	if params.MaxContentSize > 65536 {
		params.MaxContentSize = 65536
	}

	prefix := ""
	if strings.TrimSpace(params.Prefix) != "" {
		p, err := artifact.NormalizePath(params.Prefix)
		if err != nil {
			return nil, err
		}
		prefix = p + "/"
	}

	paths := t.reader.List(prefix)
	entries := make([]FileEntry, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, ok := t.reader.Get(p)
		if !ok {
			continue
		}
		ct, lang := artifact.Classify(p)
		e := FileEntry{Path: p, ContentType: ct, Language: lang, Size: len(content)}
		if params.IncludeContents {
			if len(content) > params.MaxContentSize {
				e.Contents = content[:params.MaxContentSize]
				e.Truncated = true
			} else {
				e.Contents = content
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

var _ ports.Tool = (*ListArtifactsTool)(nil)
