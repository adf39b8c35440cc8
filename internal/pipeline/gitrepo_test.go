package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedRepo initializes a repository with one commit so clones and branch
// creation have a HEAD to work from.
func seedRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.py"), []byte("print('hi')\n"), 0o644))
	w, err := repo.Worktree()
	require.NoError(t, err)
	_, err = w.Add("app.py")
	require.NoError(t, err)
	_, err = w.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir
}

func TestGitWorkspace_EnsureClonesMissingCheckout(t *testing.T) {
	source := seedRepo(t)
	target := filepath.Join(t.TempDir(), "checkout")

	ws := NewGitWorkspace()
	require.NoError(t, ws.Ensure(context.Background(), source, target))

	_, err := os.Stat(filepath.Join(target, "app.py"))
	assert.NoError(t, err)

	// A second Ensure reuses the existing checkout.
	require.NoError(t, ws.Ensure(context.Background(), source, target))
}

func TestGitWorkspace_EnsureRejectsEmptyArguments(t *testing.T) {
	ws := NewGitWorkspace()
	assert.Error(t, ws.Ensure(context.Background(), "", t.TempDir()))
	assert.Error(t, ws.Ensure(context.Background(), "https://example.com/x.git", ""))
}

func TestGitWorkspace_CommitArtifactsCreatesBranch(t *testing.T) {
	dir := seedRepo(t)
	ws := NewGitWorkspace()

	hash, err := ws.CommitArtifacts(dir, "infra/abc123", "Add generated infrastructure", map[string]string{
		"Dockerfile":        "FROM python:3.12\nCMD [\"python\", \"app.py\"]\n",
		"terraform/main.tf": "resource \"aws_ecs_service\" \"app\" {}\n",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, "refs/heads/infra/abc123", head.Name().String())
	assert.Equal(t, hash, head.Hash().String())

	_, err = os.Stat(filepath.Join(dir, "terraform", "main.tf"))
	assert.NoError(t, err)
}

func TestGitWorkspace_CommitArtifactsFailsOutsideRepo(t *testing.T) {
	ws := NewGitWorkspace()
	_, err := ws.CommitArtifacts(t.TempDir(), "infra/x", "msg", map[string]string{"a": "b"})
	assert.Error(t, err)
}
