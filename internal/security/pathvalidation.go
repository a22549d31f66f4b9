// Package security validates output locations derived from input file names.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory checks that filePath resolves inside safeDir.
// Symlinks are resolved for the path (or its nearest existing parent) and for
// safeDir, so a link cannot be used to escape the directory.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}

	canonicalPath := canonical(absPath)
	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory symlinks: %w", err)
	}

	relPath, err := filepath.Rel(canonicalSafeDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) || filepath.IsAbs(relPath) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}
	return nil
}

// canonical resolves symlinks in p. For a path that does not exist yet, the
// nearest existing parent is resolved and the rest appended.
func canonical(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	for check := p; ; {
		parent := filepath.Dir(check)
		if parent == check {
			return p
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rel, _ := filepath.Rel(parent, p)
			return filepath.Join(resolved, rel)
		}
		check = parent
	}
}

// OutputBase returns the output base path for name inside dir. name is
// sanitized and the result is checked to stay inside dir, with symlinks
// resolved on disk.
func OutputBase(dir, name string) (string, error) {
	base, err := JoinWithin(dir, name)
	if err != nil {
		return "", err
	}
	if err := ValidatePathWithinDirectory(base, dir); err != nil {
		return "", err
	}
	return base, nil
}

// JoinWithin sanitizes name and joins it to dir, checking containment on the
// cleaned paths only. It touches no filesystem, so it also serves outputs on
// virtual filesystems where symlinks cannot exist.
func JoinWithin(dir, name string) (string, error) {
	base := filepath.Join(dir, SanitizeFilename(name))
	rel, err := filepath.Rel(filepath.Clean(dir), base)
	if err != nil {
		return "", fmt.Errorf("path is outside safe directory: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("path traversal detected: %s attempts to escape %s", base, dir)
	}
	return base, nil
}

// SanitizeFilename replaces every character other than ASCII letters,
// digits, dot, underscore and dash with an underscore, collapses runs of
// underscores, trims leading and trailing dots and underscores, and limits
// the length to 128 bytes. An empty result becomes "unknown".
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
