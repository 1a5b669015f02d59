package plugin

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"

	"github.com/jingkaihe/promptpack/pkg/logger"
)

// Installer installs plugins from GitHub repositories into a workspace
// root.
type Installer struct {
	global    bool
	force     bool
	targetDir string // workspace root the plugin tree lives under
}

// InstallerOption configures an Installer or Remover.
type InstallerOption func(*Installer)

// WithGlobal targets the user-global root instead of the repo-local one.
func WithGlobal(global bool) InstallerOption {
	return func(i *Installer) {
		i.global = global
	}
}

// WithForce replaces an already-installed plugin.
func WithForce(force bool) InstallerOption {
	return func(i *Installer) {
		i.force = force
	}
}

// WithTargetRoot overrides the workspace root. Used in tests.
func WithTargetRoot(root string) InstallerOption {
	return func(i *Installer) {
		i.targetDir = root
	}
}

// NewInstaller creates a plugin installer targeting the repo-local root by
// default.
func NewInstaller(opts ...InstallerOption) (*Installer, error) {
	i := &Installer{}
	for _, opt := range opts {
		opt(i)
	}

	if i.targetDir == "" {
		if i.global {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return nil, errors.Wrap(err, "failed to get home directory")
			}
			i.targetDir = filepath.Join(homeDir, promptpackDir)
		} else {
			i.targetDir = promptpackDir
		}
	}

	return i, nil
}

// InstallResult describes what an install contributed.
type InstallResult struct {
	PluginName string // "org/repo"
	Commit     string
	Commands   []string
	Skills     []string
	Agents     []string
}

// Install clones the repository, copies its commands/, skills/, and
// agents/ subtrees under plugins/<org@repo>/, and records the install in
// the lockfile. The repo may carry an "@ref" suffix selecting a branch,
// tag, or commit.
func (i *Installer) Install(ctx context.Context, repoRef string) (*InstallResult, error) {
	repo, ref := SplitRepoRef(repoRef)
	if err := ValidateRepoName(repo); err != nil {
		return nil, err
	}

	tempDir, commit, err := cloneRepo(ctx, repo, ref)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tempDir)

	pluginDir := filepath.Join(i.targetDir, pluginsSubdir, RepoToDirName(repo))
	if err := i.checkExisting(pluginDir); err != nil {
		return nil, err
	}

	copied := false
	for _, sub := range contentSubdirs {
		src := filepath.Join(tempDir, sub)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := copyDir(src, filepath.Join(pluginDir, sub)); err != nil {
			os.RemoveAll(pluginDir)
			return nil, errors.Wrapf(err, "failed to install %s", sub)
		}
		copied = true
	}

	if !copied {
		os.RemoveAll(pluginDir)
		return nil, errors.New("no plugin content found in repository (expected commands/, skills/, or agents/ directories)")
	}

	entry := LockEntry{
		Name:        repo,
		Repo:        repo,
		Ref:         ref,
		Commit:      commit,
		InstalledAt: time.Now().UTC(),
	}
	if err := recordInstall(i.targetDir, entry); err != nil {
		return nil, err
	}

	result := &InstallResult{
		PluginName: repo,
		Commit:     commit,
		Commands:   listCommands(filepath.Join(pluginDir, commandsSubdir)),
		Skills:     listSkills(filepath.Join(pluginDir, skillsSubdir)),
		Agents:     listAgents(filepath.Join(pluginDir, agentsSubdir)),
	}

	logger.G(ctx).WithField("plugin", repo).WithField("commit", commit).Info("Installed plugin")
	return result, nil
}

func (i *Installer) checkExisting(path string) error {
	if _, err := os.Stat(path); err == nil {
		if !i.force {
			return errors.Errorf("plugin already exists at %s (use --force to overwrite)", path)
		}
		if err := os.RemoveAll(path); err != nil {
			return errors.Wrap(err, "failed to remove existing plugin")
		}
	}
	return nil
}

// cloneRepo shallow-clones via the gh CLI with retries, checks out ref
// when given, and resolves the checked-out commit.
func cloneRepo(ctx context.Context, repo, ref string) (dir, commit string, err error) {
	if _, err := exec.LookPath("gh"); err != nil {
		return "", "", errors.New("gh CLI is not installed; see https://cli.github.com")
	}

	tempDir, err := os.MkdirTemp("", "promptpack-plugin-*")
	if err != nil {
		return "", "", errors.Wrap(err, "failed to create temp directory")
	}

	err = retry.Do(
		func() error {
			args := []string{"repo", "clone", repo, tempDir}
			if ref == "" {
				args = append(args, "--", "--depth", "1")
			}
			cmd := exec.CommandContext(ctx, "gh", args...)
			if output, err := cmd.CombinedOutput(); err != nil {
				os.RemoveAll(tempDir)
				if mkErr := os.MkdirAll(tempDir, 0o755); mkErr != nil {
					return retry.Unrecoverable(mkErr)
				}
				return errors.Wrapf(err, "failed to clone repository: %s", string(output))
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
	)
	if err != nil {
		os.RemoveAll(tempDir)
		return "", "", err
	}

	if ref != "" {
		cmd := exec.CommandContext(ctx, "git", "-C", tempDir, "checkout", ref)
		if output, err := cmd.CombinedOutput(); err != nil {
			os.RemoveAll(tempDir)
			return "", "", errors.Wrapf(err, "failed to checkout '%s': %s", ref, string(output))
		}
	}

	revCmd := exec.CommandContext(ctx, "git", "-C", tempDir, "rev-parse", "HEAD")
	output, err := revCmd.Output()
	if err != nil {
		// Commit hash is best-effort metadata for the lockfile.
		return tempDir, "", nil
	}

	return tempDir, strings.TrimSpace(string(output)), nil
}

func copyDir(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		destPath := filepath.Join(dst, relPath)
		if info.IsDir() {
			return os.MkdirAll(destPath, info.Mode())
		}
		return copyFile(path, destPath, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	return err
}

// Remover uninstalls plugins from a workspace root.
type Remover struct {
	baseDir string
}

// NewRemover creates a plugin remover honoring the same root options as
// the installer.
func NewRemover(opts ...InstallerOption) (*Remover, error) {
	i := &Installer{}
	for _, opt := range opts {
		opt(i)
	}

	r := &Remover{baseDir: i.targetDir}
	if r.baseDir == "" {
		if i.global {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return nil, errors.Wrap(err, "failed to get home directory")
			}
			r.baseDir = filepath.Join(homeDir, promptpackDir)
		} else {
			r.baseDir = promptpackDir
		}
	}

	return r, nil
}

// Remove deletes a plugin directory and its lockfile entry. Accepts both
// "org/repo" and the on-disk "org@repo" form.
func (r *Remover) Remove(name string) error {
	repo := name
	if strings.Contains(name, "@") && !strings.Contains(name, "/") {
		repo = DirNameToRepo(name)
	}

	pluginPath := filepath.Join(r.baseDir, pluginsSubdir, RepoToDirName(repo))
	if _, err := os.Stat(pluginPath); os.IsNotExist(err) {
		return errors.Errorf("plugin '%s' not found", name)
	}

	if err := os.RemoveAll(pluginPath); err != nil {
		return errors.Wrap(err, "failed to remove plugin")
	}

	return recordRemoval(r.baseDir, repo)
}
