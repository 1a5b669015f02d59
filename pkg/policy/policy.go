// Package policy parses and evaluates allowed-tools rules. A rule is either
// a bare tool name ("Read") or a tool name with a specifier
// ("Bash(git status:*)"). Specifiers use doublestar globs, with the
// `command:*` suffix convention meaning "this command with any arguments".
package policy

import (
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
)

var toolNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// Rule is a single parsed allowed-tools entry.
type Rule struct {
	Tool      string
	Specifier string // empty means every invocation of Tool
	Raw       string
}

// Policy is an ordered set of rules. The zero value allows nothing.
type Policy struct {
	rules []Rule
}

// Parse builds a Policy from raw rule strings as they appear in
// frontmatter.
func Parse(raw []string) (Policy, error) {
	var p Policy
	for _, item := range raw {
		rule, err := ParseRule(item)
		if err != nil {
			return Policy{}, err
		}
		p.rules = append(p.rules, rule)
	}
	return p, nil
}

// ParseRule parses one rule string.
func ParseRule(raw string) (Rule, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Rule{}, errors.New("empty allowed-tools rule")
	}

	open := strings.Index(trimmed, "(")
	if open == -1 {
		if !toolNameRe.MatchString(trimmed) {
			return Rule{}, errors.Errorf("invalid tool name %q", trimmed)
		}
		return Rule{Tool: trimmed, Raw: raw}, nil
	}

	if !strings.HasSuffix(trimmed, ")") {
		return Rule{}, errors.Errorf("unterminated specifier in rule %q", raw)
	}

	tool := trimmed[:open]
	spec := trimmed[open+1 : len(trimmed)-1]
	if !toolNameRe.MatchString(tool) {
		return Rule{}, errors.Errorf("invalid tool name %q", tool)
	}
	if strings.TrimSpace(spec) == "" {
		return Rule{}, errors.Errorf("empty specifier in rule %q", raw)
	}

	return Rule{Tool: tool, Specifier: spec, Raw: raw}, nil
}

// SplitList splits a comma-separated allowed-tools string, respecting
// parentheses so specifiers may contain commas.
func SplitList(s string) []string {
	var (
		items []string
		depth int
		start int
	)

	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				if item := strings.TrimSpace(s[start:i]); item != "" {
					items = append(items, item)
				}
				start = i + 1
			}
		}
	}
	if item := strings.TrimSpace(s[start:]); item != "" {
		items = append(items, item)
	}
	return items
}

// Rules returns the parsed rules in declaration order.
func (p Policy) Rules() []Rule {
	return p.rules
}

// IsEmpty reports whether the policy carries no rules.
func (p Policy) IsEmpty() bool {
	return len(p.rules) == 0
}

// AllowsTool reports whether any rule names the tool, regardless of
// specifier.
func (p Policy) AllowsTool(tool string) bool {
	for _, rule := range p.rules {
		if rule.Tool == tool {
			return true
		}
	}
	return false
}

// Allows reports whether the policy permits invoking tool with the given
// argument (the shell command string for Bash, a path for file tools).
func (p Policy) Allows(tool, argument string) bool {
	for _, rule := range p.rules {
		if rule.Tool != tool {
			continue
		}
		if rule.Specifier == "" {
			return true
		}
		if matchSpecifier(rule.Specifier, argument) {
			return true
		}
	}
	return false
}

// matchSpecifier matches an argument against a rule specifier. The
// `prefix:*` form matches the exact command or the command followed by
// arguments; anything else is a doublestar glob over the whole value.
func matchSpecifier(spec, value string) bool {
	if prefix, ok := strings.CutSuffix(spec, ":*"); ok {
		return value == prefix || strings.HasPrefix(value, prefix+" ")
	}

	matched, err := doublestar.Match(spec, value)
	return err == nil && matched
}
