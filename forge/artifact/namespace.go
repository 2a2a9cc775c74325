package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/armon/go-radix"
	"github.com/rs/zerolog"
)

// Namespace is the shared store that save_artifact writes into. Keys are
// normalized relative paths; a later write to the same path replaces the
// earlier one. When a mirror root is set every write is also flushed to disk.
type Namespace struct {
	mu     sync.RWMutex
	tree   *radix.Tree
	root   string
	logger zerolog.Logger
}

// NewNamespace creates an empty namespace. mirrorRoot may be empty.
func NewNamespace(mirrorRoot string, logger zerolog.Logger) *Namespace {
	return &Namespace{
		tree:   radix.New(),
		root:   mirrorRoot,
		logger: logger.With().Str("component", "namespace").Logger(),
	}
}

// MirrorRoot returns the directory writes are mirrored to, if any.
func (n *Namespace) MirrorRoot() string { return n.root }

// Put stores content under dir/name and returns the normalized path.
func (n *Namespace) Put(dir, name, content string) (string, error) {
	p, err := JoinPath(dir, name)
	if err != nil {
		return "", err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.root != "" {
		if err := writeMirror(n.root, p, content); err != nil {
			return "", fmt.Errorf("mirror %s: %w", p, err)
		}
	}
	if _, updated := n.tree.Insert(p, content); updated {
		n.logger.Debug().Str("path", p).Msg("artifact overwritten")
	}
	return p, nil
}

// Get returns the latest content stored at p.
func (n *Namespace) Get(p string) (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.tree.Get(p)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// List returns stored paths under prefix in lexical order.
func (n *Namespace) List(prefix string) []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var out []string
	n.tree.WalkPrefix(prefix, func(s string, _ interface{}) bool {
		out = append(out, s)
		return false
	})
	return out
}

func (n *Namespace) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.tree.Len()
}

// Candidates returns side-channel candidates for the given paths, in the order
// given, with the latest stored content. Unknown paths are skipped.
func (n *Namespace) Candidates(paths ...string) []Candidate {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Candidate, 0, len(paths))
	for _, p := range paths {
		v, ok := n.tree.Get(p)
		if !ok {
			continue
		}
		out = append(out, Candidate{RawPath: p, RawContent: v.(string), Source: SourceSideChannel})
	}
	return out
}

func writeMirror(root, rel, content string) error {
	target := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".artifact-*")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), target)
}
