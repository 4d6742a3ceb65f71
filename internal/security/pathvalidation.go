// Package security validates filesystem paths produced from untrusted
// input, such as archive entry names and mesh paths taken from HTTP
// requests.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory checks that filePath resolves to a location
// inside safeDir. It guards archive extraction against zip-slip style
// entries ("../../etc/passwd") and request handlers against traversal out
// of the dataset directory.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory: %w", err)
	}

	// Symlinks inside safeDir could still point elsewhere; resolve what
	// exists so a link planted by an earlier archive entry cannot redirect
	// later writes.
	canonicalPath := resolveExisting(absPath)
	canonicalSafeDir := resolveExisting(absSafeDir)

	if canonicalPath == canonicalSafeDir {
		return nil
	}
	if !strings.HasPrefix(canonicalPath, canonicalSafeDir+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes directory %q", filePath, safeDir)
	}
	return nil
}

// resolveExisting resolves symlinks for path, walking up to the nearest
// existing ancestor when the path itself does not exist yet.
func resolveExisting(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}

	dir := path
	var tail []string
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			return path
		}
		tail = append([]string{filepath.Base(dir)}, tail...)
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			return filepath.Join(append([]string{resolved}, tail...)...)
		}
		dir = parent
	}
}
