package archive

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/agentforge/forge/artifact"
)

// FileEntry describes one packaged artifact.
type FileEntry struct {
	Path        string               `json:"path"`
	ContentType artifact.ContentType `json:"content_type"`
	Language    string               `json:"language"`
	SizeBytes   int                  `json:"size_bytes"`
}

// Manifest summarizes an archive. It is always derived from the artifact set.
type Manifest struct {
	GeneratedAt      string                       `json:"generated_at"`
	ArtifactCount    int                          `json:"artifact_count"`
	Files            []FileEntry                  `json:"files"`
	TypeDistribution map[artifact.ContentType]int `json:"type_distribution"`
	TotalSizeBytes   int                          `json:"total_size_bytes"`
}

// NewManifest computes the manifest for artifacts in the given order.
func NewManifest(artifacts []artifact.Artifact, generatedAt time.Time) *Manifest {
	m := &Manifest{
		GeneratedAt:      generatedAt.UTC().Format(time.RFC3339),
		ArtifactCount:    len(artifacts),
		Files:            make([]FileEntry, 0, len(artifacts)),
		TypeDistribution: make(map[artifact.ContentType]int),
	}
	for _, a := range artifacts {
		m.Files = append(m.Files, FileEntry{
			Path:        a.Path,
			ContentType: a.ContentType,
			Language:    a.Language,
			SizeBytes:   len(a.Content),
		})
		m.TypeDistribution[a.ContentType]++
		m.TotalSizeBytes += len(a.Content)
	}
	return m
}

// Encode renders the manifest as indented JSON. Map keys are emitted sorted.
func (m *Manifest) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeManifest parses a manifest entry.
func DecodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}
