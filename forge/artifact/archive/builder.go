// Package archive packages validated artifacts and their manifest into a zip.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/agentforge/forge/artifact"
)

const (
	DefaultManifestName     = "_metadata.json"
	DefaultCompressionLevel = 6
)

var (
	ErrPackaging    = errors.New("archive packaging failed")
	ErrReservedPath = errors.New("artifact path collides with the manifest")
)

// Every entry carries the same timestamp so identical input yields identical
// entries.
var entryTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Builder writes archives. It holds no per-build state and is safe for
// concurrent use.
type Builder struct {
	manifestName string
	level        int
	now          func() time.Time
	logger       zerolog.Logger
}

type Option func(*Builder)

func WithManifestName(name string) Option {
	return func(b *Builder) {
		if name != "" {
			b.manifestName = name
		}
	}
}

// WithCompressionLevel sets the deflate level, -2 (huffman only) through 9.
func WithCompressionLevel(level int) Option {
	return func(b *Builder) { b.level = level }
}

// WithClock overrides the manifest's generated_at source.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

func NewBuilder(logger zerolog.Logger, opts ...Option) *Builder {
	b := &Builder{
		manifestName: DefaultManifestName,
		level:        DefaultCompressionLevel,
		now:          time.Now,
		logger:       logger.With().Str("component", "archive").Logger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) ManifestName() string { return b.manifestName }

// Build packages artifacts in order followed by the manifest. An empty list
// yields a manifest-only archive. On failure no bytes are returned.
func (b *Builder) Build(artifacts []artifact.Artifact) ([]byte, *Manifest, error) {
	if b.level < flate.HuffmanOnly || b.level > flate.BestCompression {
		return nil, nil, fmt.Errorf("%w: invalid compression level %d", ErrPackaging, b.level)
	}

	manifest := NewManifest(artifacts, b.now())
	manifestData, err := manifest.Encode()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrPackaging, err)
	}

	var buf bytes.Buffer
	if err := b.write(&buf, artifacts, manifestData); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrPackaging, err)
	}

	b.logger.Debug().
		Int("artifacts", manifest.ArtifactCount).
		Int("bytes", buf.Len()).
		Msg("archive built")
	return buf.Bytes(), manifest, nil
}

func (b *Builder) write(w io.Writer, artifacts []artifact.Artifact, manifestData []byte) error {
	zw := zip.NewWriter(w)
	level := b.level
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	seen := make(map[string]struct{}, len(artifacts))
	for _, a := range artifacts {
		if a.Path == b.manifestName {
			zw.Close()
			return fmt.Errorf("%w: %s", ErrReservedPath, a.Path)
		}
		if _, dup := seen[a.Path]; dup {
			zw.Close()
			return fmt.Errorf("duplicate entry %s", a.Path)
		}
		seen[a.Path] = struct{}{}
		if err := writeEntry(zw, a.Path, []byte(a.Content)); err != nil {
			zw.Close()
			return err
		}
	}
	if err := writeEntry(zw, b.manifestName, manifestData); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: entryTime,
	}
	hdr.SetMode(0o644)
	fw, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("write entry %s: %w", name, err)
	}
	return nil
}
