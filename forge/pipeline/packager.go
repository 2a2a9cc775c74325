// Package pipeline connects a team conversation to a packaged bundle:
// team run, extraction, validation, archive.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/agentforge/forge/artifact"
	"github.com/ZanzyTHEbar/agentforge/forge/artifact/archive"
	"github.com/ZanzyTHEbar/agentforge/forge/config"
	"github.com/ZanzyTHEbar/agentforge/forge/telemetry"
)

// Bundle is a packaged set of artifacts.
type Bundle struct {
	Archive   []byte
	Manifest  *archive.Manifest
	Artifacts []artifact.Artifact
	Report    artifact.Report
}

// Packager validates candidates and builds the archive.
type Packager struct {
	validator *artifact.Validator
	builder   *archive.Builder
	mode      artifact.SourceMode
	metrics   *telemetry.Metrics
	logger    zerolog.Logger
}

// NewPackager wires an existing validator and builder.
func NewPackager(validator *artifact.Validator, builder *archive.Builder, mode artifact.SourceMode, metrics *telemetry.Metrics, logger zerolog.Logger) *Packager {
	return &Packager{
		validator: validator,
		builder:   builder,
		mode:      mode,
		metrics:   metrics,
		logger:    logger.With().Str("component", "packager").Logger(),
	}
}

// NewPackagerFromConfig wires a Packager from the artifact and archive settings.
func NewPackagerFromConfig(ac config.ArtifactConfig, arc config.ArchiveConfig, metrics *telemetry.Metrics, logger zerolog.Logger) (*Packager, error) {
	banners := append(append([]string{}, artifact.DefaultBannerPatterns...), ac.BannerPatterns...)
	validator, err := artifact.NewValidator(
		artifact.WithMinContentLength(ac.MinContentLength),
		artifact.WithMaxContentBytes(ac.MaxContentBytes),
		artifact.WithBannerPatterns(banners...),
		artifact.WithExclusions(ac.Exclusions...),
		artifact.WithReservedPaths(arc.ManifestName),
	)
	if err != nil {
		return nil, fmt.Errorf("artifact validator: %w", err)
	}
	builder := archive.NewBuilder(logger,
		archive.WithManifestName(arc.ManifestName),
		archive.WithCompressionLevel(arc.CompressionLevel),
	)
	return NewPackager(validator, builder, artifact.SourceMode(ac.SourceMode), metrics, logger), nil
}

// Package extracts candidates from the transcript text, appends the
// side-channel writes and packages the result. Transcript candidates come
// first, so a side-channel write replaces a transcript block at the same path.
// Which sources are read depends on the configured source mode.
func (p *Packager) Package(transcriptText string, sideChannel []artifact.Candidate) (*Bundle, error) {
	var candidates []artifact.Candidate
	if p.mode.UsesTranscript() {
		candidates = append(candidates, artifact.Extract(transcriptText)...)
	}
	if p.mode.UsesTools() {
		candidates = append(candidates, sideChannel...)
	}
	return p.PackageCandidates(candidates)
}

// PackageCandidates validates candidates in order and builds the archive.
// Only archive failures are returned as errors; rejected candidates are
// recorded in the report.
func (p *Packager) PackageCandidates(candidates []artifact.Candidate) (*Bundle, error) {
	artifacts, report := p.validator.Validate(candidates)
	p.metrics.ObserveValidation(report)
	if n := report.RejectedTotal(); n > 0 {
		ev := p.logger.Info().Int("rejected", n)
		for _, reason := range report.Reasons() {
			ev = ev.Int(string(reason), report.Rejected[reason])
		}
		ev.Msg("candidates rejected")
	}

	data, manifest, err := p.builder.Build(artifacts)
	p.metrics.ArchiveBuilt(err)
	if err != nil {
		return nil, err
	}
	p.logger.Debug().
		Int("candidates", report.Candidates).
		Int("accepted", report.Accepted).
		Int("superseded", report.Superseded).
		Int("archive_bytes", len(data)).
		Msg("bundle packaged")
	return &Bundle{Archive: data, Manifest: manifest, Artifacts: artifacts, Report: report}, nil
}

// WriteBundle writes the archive to dir/name.zip and returns the file path.
func WriteBundle(dir, name string, b *Bundle) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	dst := filepath.Join(dir, name+".zip")
	tmp, err := os.CreateTemp(dir, "."+name+"-*.zip")
	if err != nil {
		return "", fmt.Errorf("create bundle file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b.Archive); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("write bundle: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("write bundle: %w", err)
	}
	return dst, nil
}
