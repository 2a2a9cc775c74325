package artifact

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LoadDirectory walks root and returns a candidate for every regular file not
// matched by the exclusions. Excluded directories are not descended into.
func LoadDirectory(root string, exclusions *Exclusions) ([]Candidate, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var out []Candidate
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if exclusions.Match(rel + "/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || exclusions.Match(rel) {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		out = append(out, Candidate{RawPath: rel, RawContent: string(data), Source: SourceDirectory})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
