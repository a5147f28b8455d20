// Package downloads confines file destinations to the configured download
// root. Archive requests may name their own destination directory, and the
// guard ensures every resolved destination stays inside the root so an API
// caller cannot write outside it.
package downloads

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Guard validates destination directories against the download root.
type Guard struct {
	root string // absolute, symlink-resolved download root
}

// NewGuard builds a guard for the given root directory. The root is made
// absolute and symlink-resolved so later containment checks compare real
// paths. The root does not have to exist yet; downloads create it on first
// use.
func NewGuard(root string) (*Guard, error) {
	if root == "" {
		return nil, fmt.Errorf("download root cannot be empty")
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving download root: %w", err)
	}

	return &Guard{root: resolveSymlinks(filepath.Clean(absRoot))}, nil
}

// Root returns the absolute path of the download root.
func (g *Guard) Root() string {
	return g.root
}

// Resolve maps a requested destination onto a directory under the root.
// An empty request selects the root itself. Relative paths are joined
// beneath the root, absolute and tilde paths must already sit inside it.
// The resolved destination is returned as an absolute path, or an error
// when the request escapes the root.
func (g *Guard) Resolve(requested string) (string, error) {
	if requested == "" {
		return g.root, nil
	}

	expanded := requested
	if requested == "~" || strings.HasPrefix(requested, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding ~: %w", err)
		}
		expanded = filepath.Join(home, strings.TrimPrefix(requested, "~"))
	}

	cleaned := filepath.Clean(expanded)
	if !filepath.IsAbs(cleaned) {
		cleaned = filepath.Join(g.root, cleaned)
	}

	// Resolve symlinks before the containment check so a link inside the
	// root cannot point the destination outside it.
	resolved := resolveSymlinks(cleaned)
	if !g.contains(resolved) {
		return "", fmt.Errorf("destination %q is outside the download root %s", requested, g.root)
	}

	return resolved, nil
}

func (g *Guard) contains(absPath string) bool {
	return absPath == g.root || strings.HasPrefix(absPath, g.root+string(filepath.Separator))
}

// resolveSymlinks evaluates symlinks in a path that may not exist yet by
// walking up to the nearest existing ancestor and re-joining the missing
// components onto its resolved form.
func resolveSymlinks(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}

	var missing []string
	current := path
	for {
		if resolved, err := filepath.EvalSymlinks(current); err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved
		}

		parent := filepath.Dir(current)
		if parent == current {
			return filepath.Clean(path)
		}
		missing = append(missing, filepath.Base(current))
		current = parent
	}
}
