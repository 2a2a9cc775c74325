package artifact

import (
	"regexp"
	"strings"
)

// A header line such as "### File: src/app.py" or "**Component: x.tsx**"
// followed by a fenced block. The body match is non-greedy so it stops at the
// first closing fence.
var blockPattern = regexp.MustCompile("(?m)^[ \\t]*(?:#{1,6}[ \\t]*)?(?:\\*\\*)?[ \\t]*(?i:file|component|module)[ \\t]*:[ \\t]*([^\\n]*?)[ \\t]*\\n(?:[ \\t]*\\n)*[ \\t]*```[ \\t]*([\\w.+#-]*)[^\\n]*\\n((?s:.*?\\n)?)[ \\t]*```[ \\t]*$")

// Extract returns every header-plus-fence block in text, in order. Line endings
// are normalized to "\n"; otherwise the fence body is kept verbatim.
func Extract(text string) []Candidate {
	text = normalizeLineEndings(text)
	matches := blockPattern.FindAllStringSubmatch(text, -1)
	out := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		header := strings.TrimSpace(strings.Trim(strings.TrimSpace(m[1]), "*`"))
		if header == "" {
			continue
		}
		out = append(out, Candidate{
			RawPath:      header,
			RawContent:   m[3],
			DeclaredType: strings.ToLower(m[2]),
			Source:       SourceTranscript,
		})
	}
	return out
}

// ExtractAll runs Extract over several texts and concatenates the results in
// input order.
func ExtractAll(texts ...string) []Candidate {
	var out []Candidate
	for _, t := range texts {
		out = append(out, Extract(t)...)
	}
	return out
}
