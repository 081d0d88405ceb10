// Package security sanitises operator-supplied paths before the CLI reads
// them.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// shellMeta lists characters never accepted in an input path.
const shellMeta = ";&|$`(){}<>!\n\r"

// CleanPath rejects empty paths and shell metacharacters, then returns the
// absolute path with symlinks resolved when the file exists.
func CleanPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("file path cannot be empty")
	}
	if i := strings.IndexAny(path, shellMeta); i >= 0 {
		return "", fmt.Errorf("file path contains forbidden character %q", path[i])
	}

	clean, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("resolve file path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(clean)
	if err != nil {
		if os.IsNotExist(err) {
			return clean, nil
		}
		return "", fmt.Errorf("resolve file path: %w", err)
	}
	return resolved, nil
}

// ReadFile reads path after CleanPath accepts it.
func ReadFile(path string) ([]byte, error) {
	clean, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	// #nosec G304 - path is validated above
	return os.ReadFile(clean)
}
