package archive

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"

	"github.com/ZanzyTHEbar/agentforge/forge/artifact"
)

// Unpack reads an archive produced by Build. Artifacts are returned in entry
// order and reclassified from their paths.
func Unpack(data []byte, manifestName string) ([]artifact.Artifact, *Manifest, error) {
	if manifestName == "" {
		manifestName = DefaultManifestName
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, fmt.Errorf("open archive: %w", err)
	}

	var (
		out      []artifact.Artifact
		manifest *Manifest
	)
	for _, f := range zr.File {
		content, err := readEntry(f)
		if err != nil {
			return nil, nil, err
		}
		if f.Name == manifestName {
			if manifest, err = DecodeManifest(content); err != nil {
				return nil, nil, err
			}
			continue
		}
		ct, lang := artifact.Classify(f.Name)
		out = append(out, artifact.Artifact{
			Path:        f.Name,
			Content:     string(content),
			ContentType: ct,
			Language:    lang,
			SizeBytes:   len(content),
		})
	}
	if manifest == nil {
		return nil, nil, fmt.Errorf("archive has no %s entry", manifestName)
	}
	return out, manifest, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read entry %s: %w", f.Name, err)
	}
	return data, nil
}
