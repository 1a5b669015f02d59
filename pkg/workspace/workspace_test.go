package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testRoots(t *testing.T) Roots {
	t.Helper()
	base, err := os.MkdirTemp("", "promptpack-workspace-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(base) })

	return Roots{
		Project: filepath.Join(base, "project", DirName),
		User:    filepath.Join(base, "user", DirName),
	}
}

func TestSnapshotEmptyRoots(t *testing.T) {
	roots := testRoots(t)
	registry, err := NewRegistry(WithRoots(roots))
	require.NoError(t, err)

	snap, err := registry.Snapshot(context.TODO())
	require.NoError(t, err)
	assert.Empty(t, snap.Commands)
	assert.Empty(t, snap.Skills)
	assert.Empty(t, snap.Agents)
	assert.Empty(t, snap.Plugins)
	assert.Empty(t, snap.Shadowed)
	assert.Empty(t, snap.Errors)
}

func TestSnapshotCollectsAllKinds(t *testing.T) {
	roots := testRoots(t)

	writeFile(t, filepath.Join(roots.Project, "commands", "commit.md"),
		"---\ndescription: Commit changes\n---\nCommit: $ARGUMENTS\n")
	writeFile(t, filepath.Join(roots.User, "skills", "code-review", "SKILL.md"),
		"---\nname: code-review\ndescription: Review code\n---\nReview.\n")
	writeFile(t, filepath.Join(roots.Project, "agents", "reviewer.md"),
		"---\ndescription: Reviews pull requests\n---\nYou review code.\n")
	writeFile(t, filepath.Join(roots.User, "plugins", "org@repo", "commands", "deploy.md"),
		"---\ndescription: Deploy\n---\nDeploy.\n")

	registry, err := NewRegistry(WithRoots(roots))
	require.NoError(t, err)
	snap, err := registry.Snapshot(context.TODO())
	require.NoError(t, err)

	require.Len(t, snap.Commands, 2)
	cmd, ok := snap.Command("commit")
	require.True(t, ok)
	assert.Equal(t, "project", cmd.Source)
	_, ok = snap.Command("deploy")
	assert.True(t, ok)

	sk, ok := snap.Skill("code-review")
	require.True(t, ok)
	assert.Equal(t, "user", sk.Source)

	a, ok := snap.Agent("reviewer")
	require.True(t, ok)
	assert.Equal(t, "Reviews pull requests", a.Description)

	require.Len(t, snap.Plugins, 1)
	assert.Equal(t, "org/repo", snap.Plugins[0].Name)
	assert.Equal(t, []string{"deploy"}, snap.Plugins[0].Commands)
}

func TestSnapshotPrecedenceAndShadowing(t *testing.T) {
	roots := testRoots(t)

	writeFile(t, filepath.Join(roots.Project, "commands", "commit.md"),
		"---\ndescription: project version\n---\nproject\n")
	writeFile(t, filepath.Join(roots.User, "commands", "commit.md"),
		"---\ndescription: user version\n---\nuser\n")

	registry, err := NewRegistry(WithRoots(roots))
	require.NoError(t, err)
	snap, err := registry.Snapshot(context.TODO())
	require.NoError(t, err)

	require.Len(t, snap.Commands, 1)
	assert.Equal(t, "project version", snap.Commands[0].Description)

	require.Len(t, snap.Shadowed, 1)
	sh := snap.Shadowed[0]
	assert.Equal(t, KindCommand, sh.Kind)
	assert.Equal(t, "commit", sh.Name)
	assert.Equal(t, "project", sh.WinnerSource)
	assert.Equal(t, "user", sh.LoserSource)
	assert.Contains(t, sh.LoserPath, filepath.Join("commands", "commit.md"))
}

func TestSnapshotSkillShadowing(t *testing.T) {
	roots := testRoots(t)

	writeFile(t, filepath.Join(roots.Project, "skills", "code-review", "SKILL.md"),
		"---\nname: code-review\ndescription: project\n---\nbody\n")
	writeFile(t, filepath.Join(roots.User, "skills", "code-review", "SKILL.md"),
		"---\nname: code-review\ndescription: user\n---\nbody\n")

	registry, err := NewRegistry(WithRoots(roots))
	require.NoError(t, err)
	snap, err := registry.Snapshot(context.TODO())
	require.NoError(t, err)

	require.Len(t, snap.Skills, 1)
	assert.Equal(t, "project", snap.Skills[0].Description)
	require.Len(t, snap.Shadowed, 1)
	assert.Equal(t, KindSkill, snap.Shadowed[0].Kind)
}

func TestSnapshotSurfacesLoadErrors(t *testing.T) {
	roots := testRoots(t)

	writeFile(t, filepath.Join(roots.Project, "commands", "good.md"),
		"---\ndescription: fine\n---\nbody\n")
	writeFile(t, filepath.Join(roots.Project, "commands", "broken.md"),
		"---\ndescription: [unclosed\n---\nbody\n")
	writeFile(t, filepath.Join(roots.Project, "skills", "no-name", "SKILL.md"),
		"---\ndescription: missing name\n---\nbody\n")

	registry, err := NewRegistry(WithRoots(roots))
	require.NoError(t, err)
	snap, err := registry.Snapshot(context.TODO())
	require.NoError(t, err)

	require.Len(t, snap.Commands, 1)
	assert.Equal(t, "good", snap.Commands[0].Name)

	require.Len(t, snap.Errors, 2)
	kinds := []string{snap.Errors[0].Kind, snap.Errors[1].Kind}
	assert.Contains(t, kinds, KindCommand)
	assert.Contains(t, kinds, KindSkill)
}

func TestDefaultRoots(t *testing.T) {
	roots, err := DefaultRoots()
	require.NoError(t, err)
	assert.Equal(t, DirName, roots.Project)
	assert.True(t, filepath.IsAbs(roots.User))
	assert.Equal(t, DirName, filepath.Base(roots.User))
}
