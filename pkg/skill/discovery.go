package skill

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/jingkaihe/promptpack/pkg/frontmatter"
	"github.com/jingkaihe/promptpack/pkg/logger"
	"github.com/jingkaihe/promptpack/pkg/policy"
)

// SkillFileName is the entrypoint file every skill directory must contain.
const SkillFileName = "SKILL.md"

const (
	promptpackDir = ".promptpack"
	skillsSubdir  = "skills"
	pluginsSubdir = "plugins"
)

// Source labels for skills loaded from the standalone workspace roots.
const (
	SourceProject = "project"
	SourceUser    = "user"
)

var resourceSubdirs = []string{"references", "examples", "scripts", "assets"}

// knownKeys is the frontmatter key set the host runtime consumes for
// SKILL.md files.
var knownKeys = []string{"name", "description", "version", "allowed-tools"}

// LoadError records a skill directory whose SKILL.md failed to load.
type LoadError struct {
	Path string
	Err  error
}

type dirSource struct {
	dir    string
	source string
}

// Loader discovers skills from configured directories.
type Loader struct {
	dirs []dirSource
}

// Option configures a Loader.
type Option func(*Loader) error

// WithSourceDirs adds a skills directory with an explicit source label.
func WithSourceDirs(source string, dirs ...string) Option {
	return func(l *Loader) error {
		for _, dir := range dirs {
			l.dirs = append(l.dirs, dirSource{dir: dir, source: source})
		}
		return nil
	}
}

// WithDefaultDirs resets to the default discovery order: project root,
// project plugins, user root, user plugins.
func WithDefaultDirs() Option {
	return func(l *Loader) error {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "failed to get user home directory")
		}
		l.dirs = defaultDirs(promptpackDir, filepath.Join(homeDir, promptpackDir))
		return nil
	}
}

// WithRoots configures discovery over explicit project and user roots.
func WithRoots(projectRoot, userRoot string) Option {
	return func(l *Loader) error {
		l.dirs = defaultDirs(projectRoot, userRoot)
		return nil
	}
}

func defaultDirs(projectRoot, userRoot string) []dirSource {
	dirs := []dirSource{{dir: filepath.Join(projectRoot, skillsSubdir), source: SourceProject}}
	dirs = append(dirs, pluginDirs(projectRoot)...)
	dirs = append(dirs, dirSource{dir: filepath.Join(userRoot, skillsSubdir), source: SourceUser})
	dirs = append(dirs, pluginDirs(userRoot)...)
	return dirs
}

func pluginDirs(root string) []dirSource {
	pluginsDir := filepath.Join(root, pluginsSubdir)
	entries, err := os.ReadDir(pluginsDir)
	if err != nil {
		return nil
	}

	var dirs []dirSource
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		skillsDir := filepath.Join(pluginsDir, entry.Name(), skillsSubdir)
		if _, err := os.Stat(skillsDir); err == nil {
			dirs = append(dirs, dirSource{
				dir:    skillsDir,
				source: strings.Replace(entry.Name(), "@", "/", 1),
			})
		}
	}
	return dirs
}

// NewLoader creates a skill loader. Without options it discovers from the
// default workspace roots.
func NewLoader(opts ...Option) (*Loader, error) {
	l := &Loader{}

	if len(opts) == 0 {
		if err := WithDefaultDirs()(l); err != nil {
			return nil, err
		}
		return l, nil
	}

	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, errors.Wrap(err, "failed to apply skill loader option")
		}
	}

	if len(l.dirs) == 0 {
		if err := WithDefaultDirs()(l); err != nil {
			return nil, err
		}
	}

	return l, nil
}

// List returns all skills deduplicated by precedence.
func (l *Loader) List(ctx context.Context) ([]*Skill, error) {
	all, _ := l.ListAll(ctx)

	seen := make(map[string]bool)
	var skills []*Skill
	for _, s := range all {
		if seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		skills = append(skills, s)
	}
	return skills, nil
}

// ListAll returns every skill in precedence order, shadowed entries
// included, plus load errors for directories whose SKILL.md failed to
// parse.
func (l *Loader) ListAll(ctx context.Context) ([]*Skill, []LoadError) {
	var (
		skills   []*Skill
		loadErrs []LoadError
	)

	for _, ds := range l.dirs {
		entries, err := os.ReadDir(ds.dir)
		if err != nil {
			continue
		}

		var dirSkills []*Skill
		for _, entry := range entries {
			entryPath := filepath.Join(ds.dir, entry.Name())
			info, err := os.Stat(entryPath)
			if err != nil || !info.IsDir() {
				continue
			}

			s, err := Load(entryPath, ds.source)
			if err != nil {
				logger.G(ctx).WithError(err).WithField("path", entryPath).Debug("Skipping unloadable skill")
				loadErrs = append(loadErrs, LoadError{Path: filepath.Join(entryPath, SkillFileName), Err: err})
				continue
			}
			dirSkills = append(dirSkills, s)
		}

		sort.Slice(dirSkills, func(i, j int) bool { return dirSkills[i].Name < dirSkills[j].Name })
		skills = append(skills, dirSkills...)
	}

	return skills, loadErrs
}

// Get returns the highest-precedence skill with the given name.
func (l *Loader) Get(ctx context.Context, name string) (*Skill, error) {
	skills, err := l.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, s := range skills {
		if s.Name == name {
			return s, nil
		}
	}

	return nil, errors.Errorf("skill '%s' not found", name)
}

// Load loads one skill directory. The SKILL.md frontmatter must carry
// name and description.
func Load(dir, source string) (*Skill, error) {
	skillPath := filepath.Join(dir, SkillFileName)
	content, err := os.ReadFile(skillPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read skill file")
	}

	file, err := frontmatter.Parse(content)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse skill file '%s'", skillPath)
	}
	if !file.HasMeta() {
		return nil, errors.Errorf("skill file '%s' is missing frontmatter", skillPath)
	}

	var meta Metadata
	if err := file.Decode(&meta); err != nil {
		return nil, errors.Wrapf(err, "invalid frontmatter in skill file '%s'", skillPath)
	}

	if meta.Name == "" {
		return nil, errors.New("skill name is required in frontmatter")
	}
	if meta.Description == "" {
		return nil, errors.New("skill description is required in frontmatter")
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		absDir = dir
	}

	s := &Skill{
		Name:         meta.Name,
		Source:       source,
		Directory:    absDir,
		Description:  meta.Description,
		Version:      meta.Version,
		AllowedTools: allowedToolsList(meta.AllowedTools),
		Body:         file.Body,
		Resources:    collectResources(dir),
	}

	if keys := frontmatter.ExtraKeys(file.Meta, knownKeys...); len(keys) > 0 {
		s.Extra = make(map[string]string, len(keys))
		for _, k := range keys {
			if v, ok := file.Meta[k].(string); ok {
				s.Extra[k] = v
			} else {
				s.Extra[k] = strings.Join(frontmatter.StringList(file.Meta[k]), ", ")
			}
		}
	}

	return s, nil
}

// allowedToolsList accepts both the comma-separated string form and the
// YAML list form of allowed-tools.
func allowedToolsList(v interface{}) []string {
	if s, ok := v.(string); ok {
		return policy.SplitList(s)
	}
	return frontmatter.StringList(v)
}

// collectResources walks the conventional resource subdirectories and
// records files relative to the skill directory.
func collectResources(dir string) Resources {
	var res Resources
	for _, sub := range resourceSubdirs {
		paths := listFiles(dir, sub)
		switch sub {
		case "references":
			res.References = paths
		case "examples":
			res.Examples = paths
		case "scripts":
			res.Scripts = paths
		case "assets":
			res.Assets = paths
		}
	}
	return res
}

func listFiles(skillDir, sub string) []string {
	root := filepath.Join(skillDir, sub)
	var paths []string
	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(skillDir, path)
		if err != nil {
			return nil
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(paths)
	return paths
}

// ResourcePath resolves a resource path relative to the skill directory,
// rejecting traversal outside it.
func (s *Skill) ResourcePath(rel string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || filepath.IsAbs(cleaned) {
		return "", errors.Errorf("resource path '%s' escapes the skill directory", rel)
	}
	return filepath.Join(s.Directory, cleaned), nil
}
