package builtin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/promptpack/pkg/lint"
	"github.com/jingkaihe/promptpack/pkg/workspace"
)

func TestScaffoldWritesStarterCorpus(t *testing.T) {
	root, err := os.MkdirTemp("", "promptpack-builtin-test")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	written, err := Scaffold(root, false)
	require.NoError(t, err)
	assert.NotEmpty(t, written)

	for _, rel := range []string{
		"commands/commit.md",
		filepath.Join("skills", "code-review", "SKILL.md"),
		filepath.Join("skills", "code-review", "references", "checklist.md"),
		filepath.Join("skills", "code-review", "examples", "example-review.md"),
		filepath.Join("agents", "reviewer.md"),
		"README.md",
	} {
		_, err := os.Stat(filepath.Join(root, rel))
		assert.NoError(t, err, rel)
	}
}

func TestScaffoldRefusesExistingWithoutForce(t *testing.T) {
	root, err := os.MkdirTemp("", "promptpack-builtin-test")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "commands"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "commands", "commit.md"), []byte("mine\n"), 0o644))

	_, err = Scaffold(root, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	// The existing file is untouched.
	data, err := os.ReadFile(filepath.Join(root, "commands", "commit.md"))
	require.NoError(t, err)
	assert.Equal(t, "mine\n", string(data))

	_, err = Scaffold(root, true)
	require.NoError(t, err)
	data, err = os.ReadFile(filepath.Join(root, "commands", "commit.md"))
	require.NoError(t, err)
	assert.NotEqual(t, "mine\n", string(data))
}

// The shipped corpus must itself pass lint clean.
func TestStarterCorpusLintsClean(t *testing.T) {
	base, err := os.MkdirTemp("", "promptpack-builtin-test")
	require.NoError(t, err)
	defer os.RemoveAll(base)

	roots := workspace.Roots{
		Project: filepath.Join(base, workspace.DirName),
		User:    filepath.Join(base, "home", workspace.DirName),
	}
	_, err = Scaffold(roots.Project, false)
	require.NoError(t, err)

	registry, err := workspace.NewRegistry(workspace.WithRoots(roots))
	require.NoError(t, err)
	snap, err := registry.Snapshot(context.TODO())
	require.NoError(t, err)

	require.Len(t, snap.Commands, 1)
	require.Len(t, snap.Skills, 1)
	require.Len(t, snap.Agents, 1)

	findings, err := lint.NewLinter().Run(context.TODO(), snap)
	require.NoError(t, err)
	assert.Empty(t, findings, "starter corpus has lint findings: %v", findings)
}
