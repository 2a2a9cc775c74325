package artifact

import (
	"errors"
	"fmt"
	"strings"
)

// NormalizePath turns a model-written path into a clean relative path:
// surrounding quotes, backticks and emphasis are stripped, backslashes become
// forward slashes and leading slashes are dropped. Any ".." is refused.
func NormalizePath(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	for {
		trimmed := strings.TrimSpace(strings.Trim(p, "'\"`*"))
		if trimmed == p {
			break
		}
		p = trimmed
	}
	p = strings.ReplaceAll(p, "\\", "/")

	if strings.Contains(p, "..") {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, raw)
	}

	segments := strings.Split(p, "/")
	kept := segments[:0]
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" || seg == "." {
			continue
		}
		kept = append(kept, seg)
	}
	if len(kept) == 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, raw)
	}
	return strings.Join(kept, "/"), nil
}

// JoinPath combines a relative directory and a filename. Both parts are
// normalized on their own, so a ".." in either is refused rather than resolved.
func JoinPath(dir, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty filename", ErrInvalidPath)
	}
	n, err := NormalizePath(name)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(dir) == "" {
		return n, nil
	}
	d, err := NormalizePath(dir)
	switch {
	case errors.Is(err, ErrInvalidPath):
		// "/" or "." name the namespace root
		return n, nil
	case err != nil:
		return "", err
	}
	return d + "/" + n, nil
}
