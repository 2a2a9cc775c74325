package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/agentforge/forge/artifact"
	"github.com/ZanzyTHEbar/agentforge/forge/artifact/archive"
	"github.com/ZanzyTHEbar/agentforge/forge/config"
	"github.com/ZanzyTHEbar/agentforge/forge/generation/harness"
	ports "github.com/ZanzyTHEbar/agentforge/forge/generation/harness/ports"
	"github.com/ZanzyTHEbar/agentforge/forge/team"
)

func testConfig() (config.ArtifactConfig, config.ArchiveConfig) {
	return config.ArtifactConfig{
			SourceMode:       "both",
			MinContentLength: 10,
			MaxContentBytes:  1 << 20,
			Exclusions:       config.DefaultExclusions,
		}, config.ArchiveConfig{
			ManifestName:     "_metadata.json",
			CompressionLevel: 6,
		}
}

func newTestPackager(t *testing.T, mode string) *Packager {
	t.Helper()
	ac, arc := testConfig()
	ac.SourceMode = mode
	p, err := NewPackagerFromConfig(ac, arc, nil, zerolog.Nop())
	require.NoError(t, err)
	return p
}

func sideChannel(path, content string) artifact.Candidate {
	return artifact.Candidate{RawPath: path, RawContent: content, Source: artifact.SourceSideChannel}
}

const transcriptText = "Here is the service.\n\n### File: app/main.py\n```python\nprint('from the transcript')\n```\n\nFile: README.md\n```markdown\n# Demo\nRun it with python.\n```\n"

func TestPackageSideChannelWins(t *testing.T) {
	p := newTestPackager(t, "both")

	b, err := p.Package(transcriptText, []artifact.Candidate{
		sideChannel("app/main.py", "print('from the side channel')\n"),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, b.Report.Candidates)
	assert.Equal(t, 2, b.Report.Accepted)
	assert.Equal(t, 1, b.Report.Superseded)

	artifacts, manifest, err := archive.Unpack(b.Archive, "_metadata.json")
	require.NoError(t, err)
	assert.Equal(t, 2, manifest.ArtifactCount)
	byPath := map[string]string{}
	for _, a := range artifacts {
		byPath[a.Path] = a.Content
	}
	assert.Contains(t, byPath["app/main.py"], "side channel")
	assert.Contains(t, byPath["README.md"], "# Demo")
}

func TestPackageSourceModes(t *testing.T) {
	side := []artifact.Candidate{sideChannel("lib/util.go", "package lib\n\nfunc Util() {}\n")}

	b, err := newTestPackager(t, "transcript").Package(transcriptText, side)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Report.Accepted)
	for _, a := range b.Artifacts {
		assert.NotEqual(t, "lib/util.go", a.Path)
	}

	b, err = newTestPackager(t, "tools").Package(transcriptText, side)
	require.NoError(t, err)
	require.Len(t, b.Artifacts, 1)
	assert.Equal(t, "lib/util.go", b.Artifacts[0].Path)
	assert.Equal(t, "go", b.Artifacts[0].Language)
}

func TestPackageEmpty(t *testing.T) {
	b, err := newTestPackager(t, "both").Package("no code here, just talk", nil)
	require.NoError(t, err)
	assert.Empty(t, b.Artifacts)
	assert.Equal(t, 0, b.Manifest.ArtifactCount)
	assert.NotEmpty(t, b.Archive)
}

func TestPackageRejections(t *testing.T) {
	b, err := newTestPackager(t, "tools").Package("", []artifact.Candidate{
		sideChannel("_metadata.json", `{"artifact_count": 99}`),
		sideChannel("../etc/passwd.txt", "root:x:0:0:root"),
		sideChannel("node_modules/x/index.js", "module.exports = 1"),
		sideChannel("tiny.py", "x=1"),
		sideChannel("ok.py", "print('accepted')"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, b.Report.Accepted)
	assert.Equal(t, 1, b.Report.Rejected[artifact.RejectReserved])
	assert.Equal(t, 1, b.Report.Rejected[artifact.RejectTraversal])
	assert.Equal(t, 1, b.Report.Rejected[artifact.RejectExcluded])
	assert.Equal(t, 1, b.Report.Rejected[artifact.RejectTooShort])
	assert.Equal(t, 1, b.Manifest.ArtifactCount)
}

func TestNewPackagerFromConfig(t *testing.T) {
	ac, arc := testConfig()
	ac.BannerPatterns = []string{`^# generated by forge$`}
	p, err := NewPackagerFromConfig(ac, arc, nil, zerolog.Nop())
	require.NoError(t, err)

	b, err := p.PackageCandidates([]artifact.Candidate{
		sideChannel("a.py", "# generated by forge\nprint('hello there')\n"),
		sideChannel("b.py", "# Code generated by Forge\nprint('hello again')\n"),
	})
	require.NoError(t, err)
	require.Len(t, b.Artifacts, 2)
	for _, a := range b.Artifacts {
		assert.NotContains(t, strings.ToLower(a.Content), "generated by")
	}

	ac.MinContentLength = 0
	_, err = NewPackagerFromConfig(ac, arc, nil, zerolog.Nop())
	assert.Error(t, err)

	ac, _ = testConfig()
	ac.BannerPatterns = []string{"("}
	_, err = NewPackagerFromConfig(ac, arc, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestWriteBundle(t *testing.T) {
	b, err := newTestPackager(t, "both").Package(transcriptText, nil)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "out")
	path, err := WriteBundle(dir, "backend", b)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "backend.zip"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, b.Archive, data)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

// agentRunner plays agents by name. Agents listed in saves call save_artifact
// through the tools the team offered them.
type agentRunner struct {
	saves   map[string][][3]string // speaker -> {dir, name, content}
	replies map[string]string
	onTurn  func(ctx context.Context, speaker string) error
}

func (r *agentRunner) RunTurn(ctx context.Context, req *harness.TurnRequest) (*harness.TurnResponse, error) {
	if r.onTurn != nil {
		if err := r.onTurn(ctx, req.Speaker); err != nil {
			return nil, err
		}
	}
	resp := &harness.TurnResponse{Text: r.replies[req.Speaker]}
	if resp.Text == "" {
		resp.Text = req.Speaker + " has nothing to add"
	}
	for _, s := range r.saves[req.Speaker] {
		args, _ := json.Marshal(map[string]string{"relative_directory": s[0], "filename": s[1], "content": s[2]})
		call := ports.ToolCall{Name: "save_artifact", Args: args}
		res := harness.ToolResult{Call: call, Err: ports.ErrToolNotAllowed}
		for _, tool := range req.Tools {
			if tool.Name() == call.Name {
				out, err := tool.Invoke(ctx, args)
				res.Err = err
				if err == nil {
					res.Output = out.(string)
				}
			}
		}
		resp.ToolResults = append(resp.ToolResults, res)
	}
	return resp, nil
}

func roster(name string, agents ...string) *team.Roster {
	r := &team.Roster{Name: name, Scheduler: team.KindFixedOrder, TurnBudget: 1, TaskTemplate: "Build: {brief}"}
	for _, a := range agents {
		r.Agents = append(r.Agents, team.AgentSpec{Name: a, Instructions: "You are " + a, Tools: []string{"save_artifact", "list_artifacts"}})
	}
	return r
}

func newTestRunner(t *testing.T, runner team.TurnRunner, ns *artifact.Namespace, opts ...RunnerOption) *Runner {
	t.Helper()
	return NewRunner(newTestPackager(t, "both"), ns, team.Settings{}, team.Deps{Runner: runner, Logger: zerolog.Nop()}, opts...)
}

func TestRunnerRun(t *testing.T) {
	ns := artifact.NewNamespace("", zerolog.Nop())
	runner := &agentRunner{
		saves: map[string][][3]string{
			"dev": {{"src", "app.py", "print('hello from dev')\n"}},
		},
		replies: map[string]string{
			"writer": "File: README.md\n```markdown\n# Project\nHow to run it.\n```",
		},
	}
	r := newTestRunner(t, runner, ns)

	out, err := r.Run(context.Background(), Job{Roster: roster("backend", "dev", "writer"), Brief: "a greeter"})
	require.NoError(t, err)
	require.NotNil(t, out.Bundle)
	assert.Equal(t, []string{"src/app.py"}, out.Written)
	assert.Equal(t, 2, out.Result.Turns)
	assert.Equal(t, "Build: a greeter", out.Result.Transcript.Messages()[0].Text)

	paths := make([]string, 0, len(out.Bundle.Artifacts))
	for _, a := range out.Bundle.Artifacts {
		paths = append(paths, a.Path)
	}
	assert.ElementsMatch(t, []string{"README.md", "src/app.py"}, paths)

	msgs := out.Result.Transcript.Messages()
	assert.Equal(t, team.RoleToolResult, msgs[2].Role)
	assert.Contains(t, msgs[2].Text, "saved src/app.py")
}

func TestRunnerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ns := artifact.NewNamespace("", zerolog.Nop())
	runner := &agentRunner{
		saves: map[string][][3]string{
			"dev": {{"", "main.go", "package main\n\nfunc main() {}\n"}},
		},
		onTurn: func(turnCtx context.Context, speaker string) error {
			if speaker == "qa" {
				cancel()
				<-turnCtx.Done()
				return turnCtx.Err()
			}
			return nil
		},
	}
	r := newTestRunner(t, runner, ns)

	out, err := r.Run(ctx, Job{Roster: roster("backend", "dev", "qa"), Brief: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, out)
	assert.Nil(t, out.Bundle)
	assert.Equal(t, team.StopCancelled, out.Result.StopReason)
	assert.Equal(t, []string{"main.go"}, out.Written)

	_, ok := ns.Get("main.go")
	assert.True(t, ok, "writes made before cancellation stay in the namespace")
}

func TestRunManyIsolatesBundles(t *testing.T) {
	ns := artifact.NewNamespace(t.TempDir(), zerolog.Nop())
	runner := &agentRunner{
		saves: map[string][][3]string{
			"api":  {{"backend", "server.go", "package backend\n\nfunc Serve() {}\n"}},
			"db":   {{"backend", "schema.sql", "CREATE TABLE users (id INTEGER);\n"}},
			"page": {{"frontend", "index.html", "<html><body>hi</body></html>\n"}},
			"css":  {{"frontend", "site.css", "body { margin: 0; }\n"}},
		},
	}
	r := newTestRunner(t, runner, ns, WithConcurrency(2))

	outcomes, err := r.RunMany(context.Background(), []Job{
		{Roster: roster("backend", "api", "db"), Brief: "x"},
		{Roster: roster("frontend", "page", "css"), Brief: "x"},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	bundlePaths := func(o *Outcome) []string {
		var out []string
		for _, a := range o.Bundle.Artifacts {
			out = append(out, a.Path)
		}
		sort.Strings(out)
		return out
	}
	assert.Equal(t, "backend", outcomes[0].Job.Roster.Name)
	assert.Equal(t, []string{"backend/schema.sql", "backend/server.go"}, bundlePaths(outcomes[0]))
	assert.Equal(t, []string{"frontend/index.html", "frontend/site.css"}, bundlePaths(outcomes[1]))
	assert.Equal(t, 4, ns.Len())

	_, err = os.Stat(filepath.Join(ns.MirrorRoot(), "frontend", "site.css"))
	assert.NoError(t, err)
}

func TestRunManyCollectsErrors(t *testing.T) {
	ns := artifact.NewNamespace("", zerolog.Nop())
	r := newTestRunner(t, &agentRunner{}, ns)

	outcomes, err := r.RunMany(context.Background(), []Job{
		{Roster: roster("ok", "a"), Brief: "x"},
		{Brief: "no roster"},
	})
	require.Error(t, err)
	require.Len(t, outcomes, 2)
	assert.NoError(t, outcomes[0].Err)
	assert.NotNil(t, outcomes[0].Bundle)
	assert.Error(t, outcomes[1].Err)
	assert.Nil(t, outcomes[1].Bundle)
}
