package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitWorkspace imports project repositories into local working directories
// and writes generated artifacts back as commits on a dedicated branch.
type GitWorkspace struct{}

func NewGitWorkspace() *GitWorkspace {
	return &GitWorkspace{}
}

// Ensure makes the repository at url available under path. An existing
// checkout is reused as-is; a missing one is cloned.
func (g *GitWorkspace) Ensure(ctx context.Context, url, path string) error {
	if url == "" {
		return fmt.Errorf("clone url cannot be empty")
	}
	if path == "" {
		return fmt.Errorf("clone path cannot be empty")
	}

	if _, err := git.PlainOpen(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to prepare clone parent: %w", err)
	}

	_, err := git.PlainCloneContext(ctx, path, false, &git.CloneOptions{
		URL: url,
	})
	if err != nil {
		return fmt.Errorf("failed to clone %s: %w", url, err)
	}
	return nil
}

// CommitArtifacts writes files into the checkout at path, commits them on a
// freshly created branch, and returns the commit hash.
func (g *GitWorkspace) CommitArtifacts(path, branch, message string, files map[string]string) (string, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return "", fmt.Errorf("failed to open repository at %s: %w", path, err)
	}

	w, err := repo.Worktree()
	if err != nil {
		return "", err
	}

	if err := w.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: true,
	}); err != nil {
		return "", fmt.Errorf("failed to create branch %s: %w", branch, err)
	}

	for name, content := range files {
		full := filepath.Join(path, name)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return "", fmt.Errorf("failed to create directory for %s: %w", name, err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", name, err)
		}
		if _, err := w.Add(name); err != nil {
			return "", fmt.Errorf("failed to stage %s: %w", name, err)
		}
	}

	hash, err := w.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "infraforge",
			Email: "bot@infraforge.local",
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to commit artifacts: %w", err)
	}
	return hash.String(), nil
}
