package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ZanzyTHEbar/agentforge/forge/artifact"
	"github.com/ZanzyTHEbar/agentforge/forge/artifact/archive"
	ports "github.com/ZanzyTHEbar/agentforge/forge/generation/harness/ports"
	"github.com/ZanzyTHEbar/agentforge/forge/pipeline"
)

func printOutcome(w io.Writer, o *pipeline.Outcome, path string) {
	res := o.Result
	fmt.Fprintf(w, "%s: %d turns, stopped by %s", res.Team, res.Turns, res.StopReason)
	if res.Fallbacks > 0 {
		fmt.Fprintf(w, ", %d selection fallbacks", res.Fallbacks)
	}
	if res.Failures > 0 {
		fmt.Fprintf(w, ", %d failed turns", res.Failures)
	}
	fmt.Fprintln(w)
	printBundle(w, o.Bundle, path)
}

func printBundle(w io.Writer, b *pipeline.Bundle, path string) {
	fmt.Fprintf(w, "  %s files, %s -> %s (%s)\n",
		humanize.Comma(int64(b.Manifest.ArtifactCount)),
		humanize.Bytes(uint64(b.Manifest.TotalSizeBytes)),
		path,
		humanize.Bytes(uint64(len(b.Archive))),
	)
	printReport(w, b.Report)
}

func printReport(w io.Writer, r artifact.Report) {
	if r.Superseded > 0 {
		fmt.Fprintf(w, "  %d superseded by a later write\n", r.Superseded)
	}
	if r.RejectedTotal() == 0 {
		return
	}
	parts := make([]string, 0, len(r.Rejected))
	for _, reason := range r.Reasons() {
		parts = append(parts, fmt.Sprintf("%s=%d", reason, r.Rejected[reason]))
	}
	fmt.Fprintf(w, "  %d rejected: %s\n", r.RejectedTotal(), strings.Join(parts, " "))
}

func printManifest(w io.Writer, m *archive.Manifest) {
	generated, err := time.Parse(time.RFC3339, m.GeneratedAt)
	when := m.GeneratedAt
	if err == nil {
		when = fmt.Sprintf("%s (%s)", m.GeneratedAt, humanize.Time(generated))
	}
	fmt.Fprintf(w, "generated: %s\n", when)
	fmt.Fprintf(w, "files:     %d, %s\n", m.ArtifactCount, humanize.Bytes(uint64(m.TotalSizeBytes)))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\nPATH\tTYPE\tLANGUAGE\tSIZE")
	for _, f := range m.Files {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Path, f.ContentType, f.Language, humanize.Bytes(uint64(f.SizeBytes)))
	}
	tw.Flush()

	if len(m.TypeDistribution) > 0 {
		parts := make([]string, 0, len(m.TypeDistribution))
		types := make([]artifact.ContentType, 0, len(m.TypeDistribution))
		for t := range m.TypeDistribution {
			types = append(types, t)
		}
		slices.Sort(types)
		for _, t := range types {
			parts = append(parts, fmt.Sprintf("%s=%d", t, m.TypeDistribution[t]))
		}
		fmt.Fprintf(w, "\ntypes: %s\n", strings.Join(parts, " "))
	}
}

func printTranscript(w io.Writer, runID string, turns []ports.Turn) {
	fmt.Fprintf(w, "run %s: %s messages\n", runID, humanize.Comma(int64(len(turns))))
	for _, t := range turns {
		fmt.Fprintf(w, "\n#%d %s (%s)", t.Ordinal, t.Speaker, t.Role)
		if !t.CreatedAt.IsZero() {
			fmt.Fprintf(w, " %s", humanize.Time(t.CreatedAt))
		}
		fmt.Fprintln(w)
		for _, line := range strings.Split(strings.TrimRight(t.Content, "\n"), "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
}
