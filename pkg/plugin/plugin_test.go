package plugin

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepoNameMapping(t *testing.T) {
	assert.Equal(t, "org@repo", RepoToDirName("org/repo"))
	assert.Equal(t, "org/repo", DirNameToRepo("org@repo"))
	// Round-trip with a nested path: only the first separator maps.
	assert.Equal(t, "org@repo/sub", RepoToDirName("org/repo/sub"))
	assert.Equal(t, "org/repo", DirNameToRepo(RepoToDirName("org/repo")))
}

func TestValidateRepoName(t *testing.T) {
	assert.NoError(t, ValidateRepoName("org/repo"))
	assert.Error(t, ValidateRepoName(""))
	assert.Error(t, ValidateRepoName("norepo"))
	assert.Error(t, ValidateRepoName("/repo"))
	assert.Error(t, ValidateRepoName("org/"))
}

func TestSplitRepoRef(t *testing.T) {
	repo, ref := SplitRepoRef("org/repo")
	assert.Equal(t, "org/repo", repo)
	assert.Empty(t, ref)

	repo, ref = SplitRepoRef("org/repo@v1.0.0")
	assert.Equal(t, "org/repo", repo)
	assert.Equal(t, "v1.0.0", ref)
}

func TestDiscover(t *testing.T) {
	root, err := os.MkdirTemp("", "promptpack-plugin-test")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	pluginDir := filepath.Join(root, "plugins", "org@repo")
	require.NoError(t, os.MkdirAll(filepath.Join(pluginDir, "commands", "git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "commands", "commit.md"), []byte("body\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "commands", "git", "fixup.md"), []byte("body\n"), 0o644))

	skillDir := filepath.Join(pluginDir, "skills", "code-review")
	require.NoError(t, os.MkdirAll(skillDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte("---\nname: code-review\ndescription: d\n---\nbody\n"), 0o644))

	require.NoError(t, os.MkdirAll(filepath.Join(pluginDir, "agents"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "agents", "reviewer.md"), []byte("---\ndescription: d\n---\npersona\n"), 0o644))

	// An empty plugin directory is not reported.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "plugins", "org@empty"), 0o755))

	plugins, err := Discover(root)
	require.NoError(t, err)
	require.Len(t, plugins, 1)

	p := plugins[0]
	assert.Equal(t, "org/repo", p.Name)
	assert.ElementsMatch(t, []string{"commit", "git:fixup"}, p.Commands)
	assert.Equal(t, []string{"code-review"}, p.Skills)
	assert.Equal(t, []string{"reviewer"}, p.Agents)
}

func TestDiscoverMissingRoot(t *testing.T) {
	plugins, err := Discover("/nonexistent/promptpack/root")
	require.NoError(t, err)
	assert.Nil(t, plugins)
}

func TestLockFileRoundTrip(t *testing.T) {
	root, err := os.MkdirTemp("", "promptpack-plugin-test")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	lf, err := ReadLockFile(root)
	require.NoError(t, err)
	assert.Empty(t, lf.Plugins)

	entry := LockEntry{
		Name:        "org/repo",
		Repo:        "org/repo",
		Ref:         "main",
		Commit:      "abc123",
		InstalledAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, recordInstall(root, entry))

	lf, err = ReadLockFile(root)
	require.NoError(t, err)
	require.Len(t, lf.Plugins, 1)
	assert.Equal(t, entry, lf.Plugins[0])

	// Reinstalling replaces rather than duplicates.
	entry.Commit = "def456"
	require.NoError(t, recordInstall(root, entry))
	lf, err = ReadLockFile(root)
	require.NoError(t, err)
	require.Len(t, lf.Plugins, 1)
	assert.Equal(t, "def456", lf.Plugins[0].Commit)

	require.NoError(t, recordRemoval(root, "org/repo"))
	lf, err = ReadLockFile(root)
	require.NoError(t, err)
	assert.Empty(t, lf.Plugins)
}

func TestRemoverRemove(t *testing.T) {
	root, err := os.MkdirTemp("", "promptpack-plugin-test")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	pluginDir := filepath.Join(root, "plugins", "org@repo")
	require.NoError(t, os.MkdirAll(filepath.Join(pluginDir, "commands"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "commands", "commit.md"), []byte("body\n"), 0o644))
	require.NoError(t, recordInstall(root, LockEntry{Name: "org/repo", Repo: "org/repo", InstalledAt: time.Now()}))

	remover, err := NewRemover(WithTargetRoot(root))
	require.NoError(t, err)

	require.NoError(t, remover.Remove("org/repo"))
	_, statErr := os.Stat(pluginDir)
	assert.True(t, os.IsNotExist(statErr))

	lf, err := ReadLockFile(root)
	require.NoError(t, err)
	assert.Empty(t, lf.Plugins)

	err = remover.Remove("org/repo")
	assert.Error(t, err)
}

func TestInstallerCheckExisting(t *testing.T) {
	root, err := os.MkdirTemp("", "promptpack-plugin-test")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	existing := filepath.Join(root, "plugins", "org@repo")
	require.NoError(t, os.MkdirAll(existing, 0o755))

	installer, err := NewInstaller(WithTargetRoot(root))
	require.NoError(t, err)
	err = installer.checkExisting(existing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	forced, err := NewInstaller(WithTargetRoot(root), WithForce(true))
	require.NoError(t, err)
	require.NoError(t, forced.checkExisting(existing))
	_, statErr := os.Stat(existing)
	assert.True(t, os.IsNotExist(statErr))
}
