package intake

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBrief = "Intro line.\r\n\r\n# Todo App\r\nA small app.\r\n\r\n## Features\r\n- add\r\n- remove\r\n\r\n```md\r\n# not a heading\r\n```\r\n\r\n## Stack ##\r\nGo and htmx.\r\n"

func TestParse(t *testing.T) {
	b := Parse(sampleBrief)

	assert.NotContains(t, b.FullText, "\r")
	assert.Equal(t, "Todo App", b.Title)
	require.Len(t, b.Sections, 4)

	assert.Equal(t, Section{Heading: "", Level: 0, Body: "Intro line."}, b.Sections[0])
	assert.Equal(t, Section{Heading: "Todo App", Level: 1, Body: "A small app."}, b.Sections[1])
	assert.Equal(t, "Features", b.Sections[2].Heading)
	assert.Equal(t, 2, b.Sections[2].Level)
	assert.Contains(t, b.Sections[2].Body, "# not a heading")
	assert.Equal(t, Section{Heading: "Stack", Level: 2, Body: "Go and htmx."}, b.Sections[3])

	s, ok := b.Section("features")
	require.True(t, ok)
	assert.Contains(t, s.Body, "- remove")
	_, ok = b.Section("missing")
	assert.False(t, ok)
}

func TestParseEmpty(t *testing.T) {
	b := Parse(" \n\t\n")
	assert.Empty(t, b.FullText)
	assert.Empty(t, b.Sections)
}

func TestRead(t *testing.T) {
	dir := t.TempDir()

	md := filepath.Join(dir, "brief.md")
	require.NoError(t, os.WriteFile(md, []byte(sampleBrief), 0o644))
	b, err := Read(md)
	require.NoError(t, err)
	assert.Equal(t, md, b.Path)
	assert.Equal(t, "Todo App", b.Title)

	txt := filepath.Join(dir, "notes.TXT")
	require.NoError(t, os.WriteFile(txt, []byte("just build a CLI\n"), 0o644))
	b, err = Read(txt)
	require.NoError(t, err)
	assert.Equal(t, "notes", b.Title)
	assert.Equal(t, "just build a CLI", b.FullText)
	require.Len(t, b.Sections, 1)

	_, err = Read(filepath.Join(dir, "brief.pdf"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Read(filepath.Join(dir, "absent.md"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedFormat)
}
