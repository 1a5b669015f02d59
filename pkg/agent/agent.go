// Package agent discovers and loads agent definitions: Markdown files with
// YAML frontmatter declaring a tool allow-list and a persona prompt the
// host runtime uses for sub-task executors.
package agent

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/jingkaihe/promptpack/pkg/frontmatter"
	"github.com/jingkaihe/promptpack/pkg/logger"
	"github.com/jingkaihe/promptpack/pkg/policy"
)

const (
	promptpackDir = ".promptpack"
	agentsSubdir  = "agents"
	pluginsSubdir = "plugins"
)

// Source labels for agents loaded from the standalone workspace roots.
const (
	SourceProject = "project"
	SourceUser    = "user"
)

// knownKeys is the frontmatter key set the host runtime consumes for
// agent files.
var knownKeys = []string{"name", "description", "model", "allowed-tools"}

// Agent is a loaded agent definition.
type Agent struct {
	Name         string
	Source       string
	Path         string
	Description  string
	Model        string
	AllowedTools []string          // the agent's tool allow-list; empty means no tools
	Persona      string            // body: the persona prompt
	Extra        map[string]string // frontmatter keys outside the known set
}

// Policy parses the agent's allowed-tools rules.
func (a *Agent) Policy() (policy.Policy, error) {
	return policy.Parse(a.AllowedTools)
}

// Metadata is the YAML frontmatter of an agent file.
type Metadata struct {
	Name         string      `mapstructure:"name"`
	Description  string      `mapstructure:"description"`
	Model        string      `mapstructure:"model"`
	AllowedTools interface{} `mapstructure:"allowed-tools"`
}

// LoadError records an agent file that failed to load.
type LoadError struct {
	Path string
	Err  error
}

type dirSource struct {
	dir    string
	source string
}

// Loader discovers agent definitions from configured directories.
type Loader struct {
	dirs []dirSource
}

// Option configures a Loader.
type Option func(*Loader) error

// WithSourceDirs adds an agents directory with an explicit source label.
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
	dirs := []dirSource{{dir: filepath.Join(projectRoot, agentsSubdir), source: SourceProject}}
	dirs = append(dirs, pluginDirs(projectRoot)...)
	dirs = append(dirs, dirSource{dir: filepath.Join(userRoot, agentsSubdir), source: SourceUser})
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
		agentsDir := filepath.Join(pluginsDir, entry.Name(), agentsSubdir)
		if _, err := os.Stat(agentsDir); err == nil {
			dirs = append(dirs, dirSource{
				dir:    agentsDir,
				source: strings.Replace(entry.Name(), "@", "/", 1),
			})
		}
	}
	return dirs
}

// NewLoader creates an agent loader. Without options it discovers from the
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
			return nil, errors.Wrap(err, "failed to apply agent loader option")
		}
	}

	if len(l.dirs) == 0 {
		if err := WithDefaultDirs()(l); err != nil {
			return nil, err
		}
	}

	return l, nil
}

// List returns all agents deduplicated by precedence.
func (l *Loader) List(ctx context.Context) ([]*Agent, error) {
	all, _ := l.ListAll(ctx)

	seen := make(map[string]bool)
	var agents []*Agent
	for _, a := range all {
		if seen[a.Name] {
			continue
		}
		seen[a.Name] = true
		agents = append(agents, a)
	}
	return agents, nil
}

// ListAll returns every agent in precedence order, shadowed entries
// included, plus load errors.
func (l *Loader) ListAll(ctx context.Context) ([]*Agent, []LoadError) {
	var (
		agents   []*Agent
		loadErrs []LoadError
	)

	for _, ds := range l.dirs {
		entries, err := os.ReadDir(ds.dir)
		if err != nil {
			continue
		}

		var dirAgents []*Agent
		for _, entry := range entries {
			if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") || !strings.HasSuffix(entry.Name(), ".md") {
				continue
			}

			path := filepath.Join(ds.dir, entry.Name())
			a, err := loadFile(path, ds.source)
			if err != nil {
				logger.G(ctx).WithError(err).WithField("path", path).Debug("Skipping unloadable agent")
				loadErrs = append(loadErrs, LoadError{Path: path, Err: err})
				continue
			}
			dirAgents = append(dirAgents, a)
		}

		sort.Slice(dirAgents, func(i, j int) bool { return dirAgents[i].Name < dirAgents[j].Name })
		agents = append(agents, dirAgents...)
	}

	return agents, loadErrs
}

// Get returns the highest-precedence agent with the given name.
func (l *Loader) Get(ctx context.Context, name string) (*Agent, error) {
	agents, err := l.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, a := range agents {
		if a.Name == name {
			return a, nil
		}
	}

	return nil, errors.Errorf("agent '%s' not found", name)
}

// loadFile parses one agent file. Name defaults to the file stem when the
// frontmatter omits it; description is required.
func loadFile(path, source string) (*Agent, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read agent file '%s'", path)
	}

	file, err := frontmatter.Parse(content)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse agent file '%s'", path)
	}
	if !file.HasMeta() {
		return nil, errors.Errorf("agent file '%s' is missing frontmatter", path)
	}

	var meta Metadata
	if err := file.Decode(&meta); err != nil {
		return nil, errors.Wrapf(err, "invalid frontmatter in agent file '%s'", path)
	}

	stem := strings.TrimSuffix(filepath.Base(path), ".md")
	if meta.Name == "" {
		meta.Name = stem
	}
	if meta.Description == "" {
		return nil, errors.New("agent description is required in frontmatter")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	a := &Agent{
		Name:         meta.Name,
		Source:       source,
		Path:         absPath,
		Description:  meta.Description,
		Model:        meta.Model,
		AllowedTools: allowedToolsList(meta.AllowedTools),
		Persona:      file.Body,
	}

	if keys := frontmatter.ExtraKeys(file.Meta, knownKeys...); len(keys) > 0 {
		a.Extra = make(map[string]string, len(keys))
		for _, k := range keys {
			if v, ok := file.Meta[k].(string); ok {
				a.Extra[k] = v
			} else {
				a.Extra[k] = strings.Join(frontmatter.StringList(file.Meta[k]), ", ")
			}
		}
	}

	return a, nil
}

func allowedToolsList(v interface{}) []string {
	if s, ok := v.(string); ok {
		return policy.SplitList(s)
	}
	return frontmatter.StringList(v)
}

// Validate checks an agent definition for the properties the host runtime
// requires: a well-formed name matching the file stem, a non-empty
// persona, and parseable allowed-tools rules.
func Validate(a *Agent) error {
	if a.Name == "" {
		return errors.New("agent name is required")
	}
	if a.Description == "" {
		return errors.New("agent description is required")
	}
	if strings.TrimSpace(a.Persona) == "" {
		return errors.New("agent persona prompt cannot be empty")
	}

	stem := strings.TrimSuffix(filepath.Base(a.Path), ".md")
	if a.Path != "" && a.Name != stem {
		return errors.Errorf("agent name '%s' does not match file name '%s'", a.Name, stem)
	}

	if _, err := a.Policy(); err != nil {
		return errors.Wrap(err, "invalid allowed-tools")
	}

	return nil
}
