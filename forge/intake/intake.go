// Package intake turns a project brief file into the text a team starts from.
package intake

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var ErrUnsupportedFormat = errors.New("unsupported brief format")

// Formats lists the accepted brief extensions.
var Formats = []string{".md", ".markdown", ".txt"}

var headingPattern = regexp.MustCompile(`^(#{1,6})[ \t]+(.+?)[ \t#]*$`)

// Section is one markdown heading and the text under it.
type Section struct {
	Heading string
	Level   int
	Body    string
}

// Brief is a parsed project brief.
type Brief struct {
	Path     string
	Title    string // first heading, or the file name without extension
	FullText string
	Sections []Section
}

// Supported reports whether path has an accepted brief extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, f := range Formats {
		if ext == f {
			return true
		}
	}
	return false
}

// Read loads and parses a brief file.
func Read(path string) (*Brief, error) {
	if !Supported(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read brief: %w", err)
	}
	b := Parse(string(data))
	b.Path = path
	if b.Title == "" {
		base := filepath.Base(path)
		b.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return b, nil
}

// Parse normalizes text and splits it on markdown headings. Text before the
// first heading becomes a section with an empty heading. Lines inside fenced
// code blocks are never treated as headings.
func Parse(text string) *Brief {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSpace(text)

	b := &Brief{FullText: text}
	if text == "" {
		return b
	}

	var (
		cur     = Section{}
		body    []string
		inFence bool
	)
	flush := func() {
		cur.Body = strings.TrimSpace(strings.Join(body, "\n"))
		if cur.Heading != "" || cur.Body != "" {
			b.Sections = append(b.Sections, cur)
		}
		body = body[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
		}
		if !inFence {
			if m := headingPattern.FindStringSubmatch(trimmed); m != nil {
				flush()
				cur = Section{Heading: m[2], Level: len(m[1])}
				if b.Title == "" {
					b.Title = m[2]
				}
				continue
			}
		}
		body = append(body, line)
	}
	flush()
	return b
}

// Section returns the first section whose heading matches name, ignoring case.
func (b *Brief) Section(name string) (Section, bool) {
	for _, s := range b.Sections {
		if strings.EqualFold(s.Heading, name) {
			return s, true
		}
	}
	return Section{}, false
}
