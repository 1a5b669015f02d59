// Package command discovers and loads prompt-template command files from
// promptpack workspace roots. A command is a Markdown file under a
// `commands/` directory with optional YAML frontmatter (description,
// argument-hint, allowed-tools, model) and a prose body carrying placeholder
// tokens that are substituted at render time.
package command

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

const (
	promptpackDir  = ".promptpack"
	commandsSubdir = "commands"
	pluginsSubdir  = "plugins"
)

// Source labels for entries loaded from the standalone workspace roots.
// Plugin entries carry their "org/repo" name as source instead.
const (
	SourceProject = "project"
	SourceUser    = "user"
)

// Command is a loaded prompt-template command file.
type Command struct {
	Name         string            // path-derived, ':' separated (git/fixup.md -> "git:fixup")
	Source       string            // "project", "user", or plugin "org/repo"
	Path         string            // absolute file path
	Description  string
	ArgumentHint string            // e.g. "[issue-number] [branch]"
	AllowedTools []string          // raw rule strings, parsed by pkg/policy
	Model        string
	Body         string            // template body with the frontmatter stripped
	Extra        map[string]string // frontmatter keys outside the known set
}

// Policy parses the command's allowed-tools rules.
func (c *Command) Policy() (policy.Policy, error) {
	return policy.Parse(c.AllowedTools)
}

// HintArguments splits the argument-hint into its bracketed tokens,
// e.g. "[issue-number] [branch]" -> ["issue-number", "branch"].
func (c *Command) HintArguments() []string {
	var args []string
	for _, field := range strings.Fields(c.ArgumentHint) {
		field = strings.TrimPrefix(field, "[")
		field = strings.TrimSuffix(field, "]")
		field = strings.TrimSuffix(field, "...")
		if field != "" {
			args = append(args, field)
		}
	}
	return args
}

// LoadError records a corpus file that failed to parse. Listing skips the
// file; the linter reports it.
type LoadError struct {
	Path string
	Err  error
}

// dirSource pairs a commands directory with the source label of its entries.
type dirSource struct {
	dir    string
	source string
}

// Loader discovers command files from configured directories.
type Loader struct {
	dirs []dirSource
}

// Option configures a Loader.
type Option func(*Loader) error

// WithSourceDirs sets a command directory with an explicit source label,
// appending to any directories configured so far.
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
	dirs := []dirSource{{dir: filepath.Join(projectRoot, commandsSubdir), source: SourceProject}}
	dirs = append(dirs, pluginDirs(projectRoot)...)
	dirs = append(dirs, dirSource{dir: filepath.Join(userRoot, commandsSubdir), source: SourceUser})
	dirs = append(dirs, pluginDirs(userRoot)...)
	return dirs
}

// pluginDirs returns command directories contributed by installed plugins
// under a root. Plugin directories use "org@repo" naming; entries keep the
// user-facing "org/repo" form as their source.
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
		commandsDir := filepath.Join(pluginsDir, entry.Name(), commandsSubdir)
		if _, err := os.Stat(commandsDir); err == nil {
			dirs = append(dirs, dirSource{
				dir:    commandsDir,
				source: strings.Replace(entry.Name(), "@", "/", 1),
			})
		}
	}
	return dirs
}

// NewLoader creates a command loader. Without options it discovers from the
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
			return nil, errors.Wrap(err, "failed to apply command loader option")
		}
	}

	if len(l.dirs) == 0 {
		if err := WithDefaultDirs()(l); err != nil {
			return nil, err
		}
	}

	return l, nil
}

// List returns all commands deduplicated by precedence: the first directory
// that provides a name wins.
func (l *Loader) List(ctx context.Context) ([]*Command, error) {
	all, _ := l.ListAll(ctx)

	seen := make(map[string]bool)
	var commands []*Command
	for _, cmd := range all {
		if seen[cmd.Name] {
			continue
		}
		seen[cmd.Name] = true
		commands = append(commands, cmd)
	}
	return commands, nil
}

// ListAll returns every command in precedence order, including entries
// shadowed by a higher-precedence directory, plus load errors for files
// that failed to parse.
func (l *Loader) ListAll(ctx context.Context) ([]*Command, []LoadError) {
	var (
		commands []*Command
		loadErrs []LoadError
	)

	for _, ds := range l.dirs {
		cmds, errs := l.loadDir(ctx, ds)
		commands = append(commands, cmds...)
		loadErrs = append(loadErrs, errs...)
	}

	return commands, loadErrs
}

// Get returns the highest-precedence command with the given name.
func (l *Loader) Get(ctx context.Context, name string) (*Command, error) {
	commands, err := l.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, cmd := range commands {
		if cmd.Name == name {
			return cmd, nil
		}
	}

	return nil, errors.Errorf("command '%s' not found", name)
}

// loadDir walks one commands directory recursively. Nested directories
// namespace the command name with ':'.
func (l *Loader) loadDir(ctx context.Context, ds dirSource) ([]*Command, []LoadError) {
	var (
		commands []*Command
		loadErrs []LoadError
	)

	err := filepath.WalkDir(ds.dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() {
			if strings.HasPrefix(entry.Name(), ".") && path != ds.dir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(entry.Name(), ".") || !strings.HasSuffix(entry.Name(), ".md") {
			return nil
		}

		relPath, err := filepath.Rel(ds.dir, path)
		if err != nil {
			return nil
		}

		cmd, err := loadFile(path, ds.source, commandName(relPath))
		if err != nil {
			logger.G(ctx).WithError(err).WithField("path", path).Debug("Skipping unparseable command file")
			loadErrs = append(loadErrs, LoadError{Path: path, Err: err})
			return nil
		}

		commands = append(commands, cmd)
		return nil
	})
	if err != nil {
		return nil, nil
	}

	sort.Slice(commands, func(i, j int) bool { return commands[i].Name < commands[j].Name })
	return commands, loadErrs
}

// commandName derives the command name from its path relative to the
// commands directory.
func commandName(relPath string) string {
	name := strings.TrimSuffix(filepath.ToSlash(relPath), ".md")
	return strings.ReplaceAll(name, "/", ":")
}

// knownKeys is the frontmatter key set the host runtime consumes for
// command files.
var knownKeys = []string{"description", "argument-hint", "allowed-tools", "model"}

type commandMeta struct {
	Description  string      `mapstructure:"description"`
	ArgumentHint string      `mapstructure:"argument-hint"`
	AllowedTools interface{} `mapstructure:"allowed-tools"`
	Model        string      `mapstructure:"model"`
}

// loadFile parses one command file. Files without frontmatter are valid
// commands with empty metadata.
func loadFile(path, source, name string) (*Command, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read command file '%s'", path)
	}

	file, err := frontmatter.Parse(content)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse command file '%s'", path)
	}

	var meta commandMeta
	if err := file.Decode(&meta); err != nil {
		return nil, errors.Wrapf(err, "invalid frontmatter in command file '%s'", path)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	cmd := &Command{
		Name:         name,
		Source:       source,
		Path:         absPath,
		Description:  meta.Description,
		ArgumentHint: meta.ArgumentHint,
		AllowedTools: allowedToolsList(meta.AllowedTools),
		Model:        meta.Model,
		Body:         file.Body,
		Extra:        extraValues(file.Meta),
	}

	return cmd, nil
}

// allowedToolsList accepts both the comma-separated string form and the
// YAML list form of allowed-tools. Specifiers may contain commas, so the
// string form splits with parenthesis awareness.
func allowedToolsList(v interface{}) []string {
	if s, ok := v.(string); ok {
		return policy.SplitList(s)
	}
	return frontmatter.StringList(v)
}

func extraValues(metaData map[string]interface{}) map[string]string {
	keys := frontmatter.ExtraKeys(metaData, knownKeys...)
	if len(keys) == 0 {
		return nil
	}
	extra := make(map[string]string, len(keys))
	for _, k := range keys {
		extra[k] = stringValue(metaData[k])
	}
	return extra
}

func stringValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return strings.TrimSpace(strings.Join(frontmatter.StringList(v), ", "))
}
