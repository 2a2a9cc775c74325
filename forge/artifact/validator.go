package artifact

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const DefaultMinContentLength = 10

// Lines like "Code Generated by Forge" or "Auto-generated content for x".
var DefaultBannerPatterns = []string{
	`(?i)^[ \t]*(?://|#|--|/\*|<!--)?[ \t]*code generated by\b.*$`,
	`(?i)^[ \t]*(?://|#|--|/\*|<!--)?[ \t]*auto-generated content\b.*$`,
}

var (
	excessBlankLines = regexp.MustCompile(`\n(?:[ \t]*\n){3,}`)
	wrappingFence    = regexp.MustCompile("(?s)^[ \\t]*```[\\w.+#-]*[^\\n]*\\n(.*?\\n?)[ \\t]*```[ \\t]*\\n?$")
)

// Validator cleans candidates and turns the survivors into artifacts.
type Validator struct {
	minLength  int
	maxBytes   int
	banners    []*regexp.Regexp
	exclusions *Exclusions
	reserved   map[string]struct{}
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator) error

// WithMinContentLength sets the minimum trimmed content length in characters.
func WithMinContentLength(n int) ValidatorOption {
	return func(v *Validator) error {
		if n < 1 {
			return fmt.Errorf("min content length must be at least 1, got %d", n)
		}
		v.minLength = n
		return nil
	}
}

// WithMaxContentBytes caps artifact size. Zero disables the cap.
func WithMaxContentBytes(n int) ValidatorOption {
	return func(v *Validator) error {
		if n < 0 {
			return fmt.Errorf("max content bytes must not be negative, got %d", n)
		}
		v.maxBytes = n
		return nil
	}
}

// WithBannerPatterns replaces the default banner patterns.
func WithBannerPatterns(patterns ...string) ValidatorOption {
	return func(v *Validator) error {
		compiled := make([]*regexp.Regexp, 0, len(patterns))
		for _, p := range patterns {
			re, err := regexp.Compile("(?m)" + p)
			if err != nil {
				return fmt.Errorf("banner pattern %q: %w", p, err)
			}
			compiled = append(compiled, re)
		}
		v.banners = compiled
		return nil
	}
}

// WithExclusions refuses artifacts whose path matches any gitignore-style pattern.
func WithExclusions(patterns ...string) ValidatorOption {
	return func(v *Validator) error {
		v.exclusions = NewExclusions(patterns...)
		return nil
	}
}

// WithReservedPaths refuses artifacts at the given paths, e.g. the archive manifest.
func WithReservedPaths(paths ...string) ValidatorOption {
	return func(v *Validator) error {
		for _, p := range paths {
			v.reserved[p] = struct{}{}
		}
		return nil
	}
}

// NewValidator returns a validator with the default banners and minimum
// content length, then applies opts in order.
func NewValidator(opts ...ValidatorOption) (*Validator, error) {
	v := &Validator{
		minLength: DefaultMinContentLength,
		reserved:  make(map[string]struct{}),
	}
	if err := WithBannerPatterns(DefaultBannerPatterns...)(v); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// CleanContent strips banner lines, normalizes line endings and collapses
// runs of three or more blank lines into one.
func (v *Validator) CleanContent(content string) string {
	content = normalizeLineEndings(content)

	stripped := false
	for _, re := range v.banners {
		if re.MatchString(content) {
			content = re.ReplaceAllString(content, "\x00")
			stripped = true
		}
	}
	if stripped {
		lines := strings.Split(content, "\n")
		kept := lines[:0]
		for _, l := range lines {
			if l == "\x00" || (len(kept) == 0 && strings.TrimSpace(l) == "") {
				continue
			}
			kept = append(kept, l)
		}
		content = strings.Join(kept, "\n")
	}

	return excessBlankLines.ReplaceAllString(content, "\n\n")
}

func normalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// unwrapFence removes a single fence wrapping the whole content. Side-channel
// writes often arrive still fenced.
func unwrapFence(content string) string {
	if m := wrappingFence.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	return content
}

// Check validates a single candidate. The reason is empty when it passes.
func (v *Validator) Check(c Candidate) (Artifact, RejectReason) {
	p, err := NormalizePath(c.RawPath)
	switch {
	case err == nil:
	case errors.Is(err, ErrPathTraversal):
		return Artifact{}, RejectTraversal
	default:
		return Artifact{}, RejectEmptyPath
	}
	if _, ok := v.reserved[p]; ok {
		return Artifact{}, RejectReserved
	}
	if v.exclusions.Match(p) {
		return Artifact{}, RejectExcluded
	}
	if !HasRecognizedName(p) {
		return Artifact{}, RejectNoExtension
	}

	content := c.RawContent
	if c.Source == SourceSideChannel {
		content = unwrapFence(content)
	}
	content = v.CleanContent(content)

	if utf8.RuneCountInString(strings.TrimSpace(content)) < v.minLength {
		return Artifact{}, RejectTooShort
	}
	if v.maxBytes > 0 && len(content) > v.maxBytes {
		return Artifact{}, RejectTooLarge
	}

	ct, lang := Classify(p)
	return Artifact{
		Path:        p,
		Content:     content,
		ContentType: ct,
		Language:    lang,
		SizeBytes:   len(content),
	}, ""
}

// Validate checks every candidate in order. Rejected candidates are dropped and
// counted. When two survivors share a path the later one wins and keeps the
// position of the first.
func (v *Validator) Validate(candidates []Candidate) ([]Artifact, Report) {
	report := Report{Candidates: len(candidates), Rejected: make(map[RejectReason]int)}
	out := make([]Artifact, 0, len(candidates))
	index := make(map[string]int, len(candidates))

	for _, c := range candidates {
		a, reason := v.Check(c)
		if reason != "" {
			report.Rejected[reason]++
			continue
		}
		if i, ok := index[a.Path]; ok {
			out[i] = a
			report.Superseded++
			continue
		}
		index[a.Path] = len(out)
		out = append(out, a)
	}
	report.Accepted = len(out)
	return out, report
}
