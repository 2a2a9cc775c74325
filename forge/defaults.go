package forge

import (
	"os"
	"path/filepath"
)

const (
	DefaultAppName      = "agentforge"
	DefaultDatabaseType = "libsql"
	DefaultManifestName = "_metadata.json"
	DefaultArtifactsDir = "artifacts"

	// DefaultMinContentLength is the smallest accepted artifact body, in characters.
	DefaultMinContentLength = 10
	DefaultCompressionLevel = 6
)

var (
	DefaultConfigPath  = filepath.Join(userDir(".config"), DefaultAppName)
	DefaultCacheDir    = filepath.Join(userDir(".cache"), DefaultAppName)
	DefaultDatabaseDir = filepath.Join(DefaultCacheDir, "db")
	DefaultDatabaseDSN = filepath.Join(DefaultDatabaseDir, "forge.db")
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

func userDir(sub string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), sub)
	}
	return filepath.Join(home, sub)
}
