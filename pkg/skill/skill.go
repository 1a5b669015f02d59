// Package skill discovers and loads skills from promptpack workspace roots.
// A skill is a directory containing a SKILL.md entrypoint with required
// name and description frontmatter, plus optional resource files under the
// references/, examples/, scripts/, and assets/ subdirectories.
package skill

// Skill is a loaded skill directory.
type Skill struct {
	Name         string
	Source       string            // "project", "user", or plugin "org/repo"
	Directory    string            // full path to the skill directory
	Description  string
	Version      string
	AllowedTools []string
	Body         string            // SKILL.md body, frontmatter stripped
	Resources    Resources
	Extra        map[string]string // frontmatter keys outside the known set
}

// Resources lists the files under the conventional skill subdirectories,
// as paths relative to the skill directory. Examples and assets may be any
// file type.
type Resources struct {
	References []string
	Examples   []string
	Scripts    []string
	Assets     []string
}

// All returns every resource path in one slice.
func (r Resources) All() []string {
	var all []string
	all = append(all, r.References...)
	all = append(all, r.Examples...)
	all = append(all, r.Scripts...)
	all = append(all, r.Assets...)
	return all
}

// Count returns the total number of resource files.
func (r Resources) Count() int {
	return len(r.References) + len(r.Examples) + len(r.Scripts) + len(r.Assets)
}

// Metadata is the YAML frontmatter of a SKILL.md file.
type Metadata struct {
	Name         string      `mapstructure:"name" yaml:"name"`
	Description  string      `mapstructure:"description" yaml:"description"`
	Version      string      `mapstructure:"version,omitempty" yaml:"version,omitempty"`
	AllowedTools interface{} `mapstructure:"allowed-tools,omitempty" yaml:"allowed-tools,omitempty"`
}
