// Package pathsafe validates that a caller-supplied path resolves
// inside a configured root directory, rejecting "..", absolute escapes,
// and symlink escapes. It is the single input-validation chokepoint
// used by Store.Backup, Store.Restore, and the result
// cache's persistence file (spec.md §6, §4.G Open Question 3).
package pathsafe

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Resolve validates that path, once made absolute, lies within root
// (also made absolute). A relative path is taken relative to root; an
// absolute path is checked as given. It returns the cleaned absolute
// path on success. Symlinks are resolved with filepath.EvalSymlinks when the
// target exists; a path that does not yet exist (e.g. a backup
// destination about to be created) is validated lexically instead.
func Resolve(root, path string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("pathsafe: empty root")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("pathsafe: resolve root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(absRoot); err == nil {
		absRoot = resolved
	}

	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(absRoot, path)
	}
	absPath, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("pathsafe: resolve path: %w", err)
	}
	checked := absPath
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		checked = resolved
	} else {
		// Target doesn't exist yet (e.g. a file about to be written);
		// fall back to resolving its parent directory, if that exists.
		if resolved, err := filepath.EvalSymlinks(filepath.Dir(absPath)); err == nil {
			checked = filepath.Join(resolved, filepath.Base(absPath))
		}
	}

	rel, err := filepath.Rel(absRoot, checked)
	if err != nil {
		return "", fmt.Errorf("pathsafe: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("pathsafe: path %q escapes root %q", path, root)
	}
	return absPath, nil
}
