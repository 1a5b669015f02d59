// Package workspace resolves promptpack roots and builds corpus snapshots.
// A snapshot runs every loader over the repo-local and user-global roots,
// applies precedence, and records which lower-precedence entries were
// shadowed. Registries are cheap to build; every CLI invocation makes one.
package workspace

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/jingkaihe/promptpack/pkg/agent"
	"github.com/jingkaihe/promptpack/pkg/command"
	"github.com/jingkaihe/promptpack/pkg/plugin"
	"github.com/jingkaihe/promptpack/pkg/skill"
)

// DirName is the workspace directory name under both the repository and
// the user home.
const DirName = ".promptpack"

// Entry kinds as they appear in shadow reports, lint findings, and the
// index.
const (
	KindCommand = "command"
	KindSkill   = "skill"
	KindAgent   = "agent"
)

// Roots holds the two workspace roots in precedence order.
type Roots struct {
	Project string // repo-local ./.promptpack (highest precedence)
	User    string // user-global ~/.promptpack
}

// DefaultRoots resolves the conventional roots relative to the working
// directory and home directory.
func DefaultRoots() (Roots, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Roots{}, errors.Wrap(err, "failed to get user home directory")
	}
	return Roots{
		Project: DirName,
		User:    filepath.Join(homeDir, DirName),
	}, nil
}

// Shadowed reports a lower-precedence entry hidden by a higher-precedence
// one with the same name.
type Shadowed struct {
	Kind         string
	Name         string
	WinnerSource string
	LoserSource  string
	LoserPath    string
}

// LoadError records a corpus file that failed to parse, keyed by entry
// kind.
type LoadError struct {
	Kind string
	Path string
	Err  error
}

// Snapshot is one consistent view of the corpus.
type Snapshot struct {
	Roots    Roots
	Commands []*command.Command
	Skills   []*skill.Skill
	Agents   []*agent.Agent
	Plugins  []plugin.InstalledPlugin
	Shadowed []Shadowed
	Errors   []LoadError
}

// Command returns the named command from the snapshot.
func (s *Snapshot) Command(name string) (*command.Command, bool) {
	for _, c := range s.Commands {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Skill returns the named skill from the snapshot.
func (s *Snapshot) Skill(name string) (*skill.Skill, bool) {
	for _, sk := range s.Skills {
		if sk.Name == name {
			return sk, true
		}
	}
	return nil, false
}

// Agent returns the named agent from the snapshot.
func (s *Snapshot) Agent(name string) (*agent.Agent, bool) {
	for _, a := range s.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// Registry discovers the corpus from a pair of workspace roots.
type Registry struct {
	roots Roots
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRoots overrides the default root resolution.
func WithRoots(roots Roots) RegistryOption {
	return func(r *Registry) {
		r.roots = roots
	}
}

// NewRegistry creates a registry over the default roots unless overridden.
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	r := &Registry{}
	for _, opt := range opts {
		opt(r)
	}

	if r.roots == (Roots{}) {
		roots, err := DefaultRoots()
		if err != nil {
			return nil, err
		}
		r.roots = roots
	}

	return r, nil
}

// Roots returns the resolved workspace roots.
func (r *Registry) Roots() Roots {
	return r.roots
}

// Snapshot runs all loaders and applies precedence. Single corrupt files
// never abort the build; they surface in Snapshot.Errors.
func (r *Registry) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{Roots: r.roots}

	commandLoader, err := command.NewLoader(command.WithRoots(r.roots.Project, r.roots.User))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create command loader")
	}
	skillLoader, err := skill.NewLoader(skill.WithRoots(r.roots.Project, r.roots.User))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create skill loader")
	}
	agentLoader, err := agent.NewLoader(agent.WithRoots(r.roots.Project, r.roots.User))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create agent loader")
	}

	allCommands, cmdErrs := commandLoader.ListAll(ctx)
	seen := make(map[string]*command.Command)
	for _, c := range allCommands {
		if winner, ok := seen[c.Name]; ok {
			snap.Shadowed = append(snap.Shadowed, Shadowed{
				Kind:         KindCommand,
				Name:         c.Name,
				WinnerSource: winner.Source,
				LoserSource:  c.Source,
				LoserPath:    c.Path,
			})
			continue
		}
		seen[c.Name] = c
		snap.Commands = append(snap.Commands, c)
	}
	for _, e := range cmdErrs {
		snap.Errors = append(snap.Errors, LoadError{Kind: KindCommand, Path: e.Path, Err: e.Err})
	}

	allSkills, skillErrs := skillLoader.ListAll(ctx)
	seenSkills := make(map[string]*skill.Skill)
	for _, sk := range allSkills {
		if winner, ok := seenSkills[sk.Name]; ok {
			snap.Shadowed = append(snap.Shadowed, Shadowed{
				Kind:         KindSkill,
				Name:         sk.Name,
				WinnerSource: winner.Source,
				LoserSource:  sk.Source,
				LoserPath:    filepath.Join(sk.Directory, skill.SkillFileName),
			})
			continue
		}
		seenSkills[sk.Name] = sk
		snap.Skills = append(snap.Skills, sk)
	}
	for _, e := range skillErrs {
		snap.Errors = append(snap.Errors, LoadError{Kind: KindSkill, Path: e.Path, Err: e.Err})
	}

	allAgents, agentErrs := agentLoader.ListAll(ctx)
	seenAgents := make(map[string]*agent.Agent)
	for _, a := range allAgents {
		if winner, ok := seenAgents[a.Name]; ok {
			snap.Shadowed = append(snap.Shadowed, Shadowed{
				Kind:         KindAgent,
				Name:         a.Name,
				WinnerSource: winner.Source,
				LoserSource:  a.Source,
				LoserPath:    a.Path,
			})
			continue
		}
		seenAgents[a.Name] = a
		snap.Agents = append(snap.Agents, a)
	}
	for _, e := range agentErrs {
		snap.Errors = append(snap.Errors, LoadError{Kind: KindAgent, Path: e.Path, Err: e.Err})
	}

	for _, root := range []string{r.roots.Project, r.roots.User} {
		plugins, err := plugin.Discover(root)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to discover plugins under '%s'", root)
		}
		snap.Plugins = append(snap.Plugins, plugins...)
	}

	return snap, nil
}
