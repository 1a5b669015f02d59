// Package plugin manages installed plugin trees. A plugin is a GitHub
// repository whose commands/, skills/, and agents/ subtrees are copied
// under `plugins/<org@repo>/` in a workspace root; the directory name maps
// 1:1 to the repository "org/repo". Installs are recorded in a
// plugins.lock.json lockfile beside the plugins directory.
package plugin

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const (
	promptpackDir  = ".promptpack"
	pluginsSubdir  = "plugins"
	commandsSubdir = "commands"
	skillsSubdir   = "skills"
	agentsSubdir   = "agents"
	skillFileName  = "SKILL.md"
)

// contentSubdirs are the plugin subtrees the workspace loaders consume.
var contentSubdirs = []string{commandsSubdir, skillsSubdir, agentsSubdir}

// InstalledPlugin describes one installed plugin directory and the entries
// it contributes.
type InstalledPlugin struct {
	Name     string   // user-facing "org/repo"
	Path     string   // full path to the plugin directory
	Commands []string // command names contributed
	Skills   []string // skill directory names contributed
	Agents   []string // agent names contributed
}

// ValidateRepoName validates a GitHub repository name of the form
// "owner/repo".
func ValidateRepoName(repo string) error {
	if repo == "" {
		return errors.New("repository name cannot be empty")
	}
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return errors.Errorf("invalid repository format %q: expected 'owner/repo'", repo)
	}
	return nil
}

// RepoToDirName converts "org/repo" to the on-disk "org@repo" directory
// name. Only the first slash is replaced.
func RepoToDirName(repo string) string {
	return strings.Replace(repo, "/", "@", 1)
}

// DirNameToRepo converts an on-disk "org@repo" directory name back to the
// user-facing "org/repo" form.
func DirNameToRepo(dirName string) string {
	return strings.Replace(dirName, "@", "/", 1)
}

// SplitRepoRef splits "org/repo@ref" into its repository and optional ref
// parts.
func SplitRepoRef(repoRef string) (repo, ref string) {
	if at := strings.LastIndex(repoRef, "@"); at > 0 {
		return repoRef[:at], repoRef[at+1:]
	}
	return repoRef, ""
}

// Discover enumerates the installed plugins under a workspace root.
func Discover(root string) ([]InstalledPlugin, error) {
	pluginsDir := filepath.Join(root, pluginsSubdir)
	entries, err := os.ReadDir(pluginsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read plugins directory")
	}

	var plugins []InstalledPlugin
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		pluginPath := filepath.Join(pluginsDir, entry.Name())
		p := InstalledPlugin{
			Name:     DirNameToRepo(entry.Name()),
			Path:     pluginPath,
			Commands: listCommands(filepath.Join(pluginPath, commandsSubdir)),
			Skills:   listSkills(filepath.Join(pluginPath, skillsSubdir)),
			Agents:   listAgents(filepath.Join(pluginPath, agentsSubdir)),
		}

		if len(p.Commands) == 0 && len(p.Skills) == 0 && len(p.Agents) == 0 {
			continue
		}
		plugins = append(plugins, p)
	}

	return plugins, nil
}

func listCommands(dir string) []string {
	var names []string
	_ = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		name := strings.TrimSuffix(filepath.ToSlash(rel), ".md")
		names = append(names, strings.ReplaceAll(name, "/", ":"))
		return nil
	})
	return names
}

func listSkills(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, entry.Name(), skillFileName)); err == nil {
			names = append(names, entry.Name())
		}
	}
	return names
}

func listAgents(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".md"))
	}
	return names
}
