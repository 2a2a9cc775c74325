package artifact

import (
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// Exclusions filters artifact paths with gitignore-style patterns.
type Exclusions struct {
	patterns []string
	matcher  *ignore.GitIgnore
}

// NewExclusions compiles the given patterns. Blank lines and comments are ignored.
func NewExclusions(patterns ...string) *Exclusions {
	kept := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		kept = append(kept, p)
	}
	ex := &Exclusions{patterns: kept}
	if len(kept) > 0 {
		ex.matcher = ignore.CompileIgnoreLines(kept...)
	}
	return ex
}

// Match reports whether the normalized path is excluded.
func (e *Exclusions) Match(p string) bool {
	if e == nil || e.matcher == nil {
		return false
	}
	return e.matcher.MatchesPath(p)
}

// Patterns returns the compiled pattern list.
func (e *Exclusions) Patterns() []string {
	if e == nil {
		return nil
	}
	out := make([]string, len(e.patterns))
	copy(out, e.patterns)
	return out
}
