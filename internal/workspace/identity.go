package workspace

import (
	"path/filepath"
	"strings"
)

// Identity maps a workspace's external filesystem path to its internal
// addressing pair (project ID + workspace name).
type Identity struct {
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Path      string `json:"path"`
}

// NormalizePath canonicalizes a workspace path so that differently-spelled
// but equal paths produce the same registry key. Cleaning is purely lexical:
// separators are canonicalized, `.`/`..` segments are resolved and trailing
// separators are stripped. The path does not need to exist on disk.
func NormalizePath(path string) string {
	if path == "" {
		return ""
	}

	// Accept both separator styles regardless of host OS
	p := strings.ReplaceAll(path, "\\", "/")
	p = filepath.ToSlash(filepath.Clean(filepath.FromSlash(p)))

	// Clean leaves the root separator in place; strip any other trailing one
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}

	return p
}
