// Package workspace fixes the on-disk layout shared by the generation
// pipeline (which writes artifacts) and the operation runner (which executes
// verbs against them).
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// ProjectDir is where one project's imported repository and generated
// artifacts live.
func ProjectDir(root string, projectID uint) string {
	return filepath.Join(root, fmt.Sprintf("project-%d", projectID))
}

// EnsureProjectDir creates the project directory if needed.
func EnsureProjectDir(root string, projectID uint) (string, error) {
	dir := ProjectDir(root, projectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create project workspace: %w", err)
	}
	return dir, nil
}
