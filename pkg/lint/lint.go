// Package lint runs integrity checks over a workspace snapshot. Findings
// carry a stable rule id and a severity; the CLI maps error-severity
// findings to a non-zero exit code.
package lint

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hashicorp/go-multierror"

	"github.com/jingkaihe/promptpack/pkg/agent"
	"github.com/jingkaihe/promptpack/pkg/command"
	"github.com/jingkaihe/promptpack/pkg/policy"
	"github.com/jingkaihe/promptpack/pkg/skill"
	"github.com/jingkaihe/promptpack/pkg/workspace"
)

// Severity levels, from most to least severe.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Rule ids. Stable: scripts and editors key off them.
const (
	RuleFrontmatterValid   = "frontmatter-valid"
	RuleNameFormat         = "name-format"
	RuleSkillDirName       = "skill-dir-name"
	RuleDescriptionLength  = "description-length"
	RuleAllowedToolsSyntax = "allowed-tools-syntax"
	RuleResourceExists     = "resource-exists"
	RuleCrossrefResolves   = "crossref-resolves"
	RulePlaceholderSanity  = "placeholder-sanity"
	RuleShellNotAllowed    = "shell-not-allowed"
	RuleDuplicateShadowed  = "duplicate-shadowed"
	RuleUnknownKey         = "unknown-key"
)

const maxDescriptionRunes = 200

// Finding is one lint result.
type Finding struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Line     int    `json:"line,omitempty"`
	Message  string `json:"message"`
}

// nameRe is the segment shape every entry name must follow. Command names
// may join several segments with ':'.
var nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// widePlaceholderRe catches $10 and beyond, which the renderer will read
// as $1 followed by a literal digit.
var widePlaceholderRe = regexp.MustCompile(`\$\d{2,}`)

var argumentsTokenRe = regexp.MustCompile(`\$ARGUMENTS\b`)

// Linter checks a snapshot.
type Linter struct{}

// NewLinter creates a Linter.
func NewLinter() *Linter {
	return &Linter{}
}

// Run lints every entry in the snapshot. The returned error aggregates
// infrastructure failures (unreadable files during cross-reference
// checks), not lint findings.
func (l *Linter) Run(ctx context.Context, snap *workspace.Snapshot) ([]Finding, error) {
	var (
		findings []Finding
		errs     *multierror.Error
	)

	for _, e := range snap.Errors {
		findings = append(findings, Finding{
			Rule:     RuleFrontmatterValid,
			Severity: SeverityError,
			Kind:     e.Kind,
			Path:     e.Path,
			Message:  e.Err.Error(),
		})
	}

	for _, c := range snap.Commands {
		findings = append(findings, l.lintCommand(c)...)
	}
	for _, s := range snap.Skills {
		fs, err := l.lintSkill(s)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		findings = append(findings, fs...)
	}
	for _, a := range snap.Agents {
		findings = append(findings, l.lintAgent(a)...)
	}

	for _, sh := range snap.Shadowed {
		findings = append(findings, Finding{
			Rule:     RuleDuplicateShadowed,
			Severity: SeverityWarning,
			Kind:     sh.Kind,
			Name:     sh.Name,
			Path:     sh.LoserPath,
			Message:  fmt.Sprintf("'%s' from source '%s' is shadowed by source '%s'", sh.Name, sh.LoserSource, sh.WinnerSource),
		})
	}

	sortFindings(findings)
	return findings, errs.ErrorOrNil()
}

// HasErrors reports whether any finding is error severity.
func HasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

func (l *Linter) lintCommand(c *command.Command) []Finding {
	var findings []Finding
	mk := func(rule, severity, message string) Finding {
		return Finding{Rule: rule, Severity: severity, Kind: workspace.KindCommand, Name: c.Name, Path: c.Path, Message: message}
	}

	for _, segment := range strings.Split(c.Name, ":") {
		if !nameRe.MatchString(segment) {
			findings = append(findings, mk(RuleNameFormat, SeverityError,
				fmt.Sprintf("name segment %q must match %s", segment, nameRe.String())))
		}
	}

	if utf8.RuneCountInString(c.Description) > maxDescriptionRunes {
		findings = append(findings, mk(RuleDescriptionLength, SeverityWarning,
			fmt.Sprintf("description is %d runes, keep it within %d", utf8.RuneCountInString(c.Description), maxDescriptionRunes)))
	}

	pol, err := c.Policy()
	if err != nil {
		findings = append(findings, mk(RuleAllowedToolsSyntax, SeverityError, err.Error()))
	} else {
		for _, shellCmd := range command.ShellCommands(c.Body) {
			if !pol.Allows("Bash", shellCmd) {
				findings = append(findings, mk(RuleShellNotAllowed, SeverityError,
					fmt.Sprintf("body executes '%s' but allowed-tools does not permit it", shellCmd)))
			}
		}
	}

	findings = append(findings, l.lintPlaceholders(c, mk)...)
	findings = append(findings, lintLinks(c.Body, filepath.Dir(c.Path), workspace.KindCommand, c.Name, c.Path)...)
	findings = append(findings, lintExtraKeys(c.Extra, workspace.KindCommand, c.Name, c.Path)...)

	return findings
}

func (l *Linter) lintPlaceholders(c *command.Command, mk func(rule, severity, message string) Finding) []Finding {
	var findings []Finding

	for _, wide := range widePlaceholderRe.FindAllString(c.Body, -1) {
		findings = append(findings, mk(RulePlaceholderSanity, SeverityWarning,
			fmt.Sprintf("placeholder %s exceeds $9; it renders as %s followed by literal digits", wide, wide[:2])))
	}

	positions, _ := command.Placeholders(c.Body)
	arity := len(c.HintArguments())
	if arity == 0 {
		return findings
	}
	for _, pos := range positions {
		if pos > arity {
			findings = append(findings, mk(RulePlaceholderSanity, SeverityWarning,
				fmt.Sprintf("placeholder $%d exceeds the argument-hint arity of %d", pos, arity)))
		}
	}
	return findings
}

func (l *Linter) lintSkill(s *skill.Skill) ([]Finding, error) {
	var findings []Finding
	skillPath := filepath.Join(s.Directory, skill.SkillFileName)
	mk := func(rule, severity, message string) Finding {
		return Finding{Rule: rule, Severity: severity, Kind: workspace.KindSkill, Name: s.Name, Path: skillPath, Message: message}
	}

	if !nameRe.MatchString(s.Name) {
		findings = append(findings, mk(RuleNameFormat, SeverityError,
			fmt.Sprintf("name %q must match %s", s.Name, nameRe.String())))
	}
	if dirName := filepath.Base(s.Directory); dirName != s.Name {
		findings = append(findings, mk(RuleSkillDirName, SeverityError,
			fmt.Sprintf("frontmatter name %q does not match directory name %q", s.Name, dirName)))
	}

	findings = append(findings, lintDescription(s.Description, true, mk)...)

	if _, err := policy.Parse(s.AllowedTools); err != nil {
		findings = append(findings, mk(RuleAllowedToolsSyntax, SeverityError, err.Error()))
	}

	if argumentsTokenRe.MatchString(s.Body) {
		findings = append(findings, mk(RulePlaceholderSanity, SeverityWarning,
			"$ARGUMENTS has no meaning in a skill body"))
	}

	// Declared resources can vanish between discovery and lint.
	var errs *multierror.Error
	for _, res := range s.Resources.All() {
		if _, err := os.Stat(filepath.Join(s.Directory, res)); err != nil {
			if os.IsNotExist(err) {
				findings = append(findings, mk(RuleResourceExists, SeverityError,
					fmt.Sprintf("resource '%s' does not exist", res)))
				continue
			}
			errs = multierror.Append(errs, err)
		}
	}

	// Links into the resource subdirectories get the resource-exists rule;
	// everything else relative falls under crossref-resolves.
	for _, link := range extractLinks(s.Body) {
		if !isRelativeLink(link.Destination) {
			continue
		}
		clean := filepath.Clean(filepath.FromSlash(strippedDestination(link.Destination)))
		target := filepath.Join(s.Directory, clean)
		if _, err := os.Stat(target); err == nil {
			continue
		}
		rule := RuleCrossrefResolves
		if isResourcePath(clean) {
			rule = RuleResourceExists
		}
		findings = append(findings, Finding{
			Rule:     rule,
			Severity: SeverityError,
			Kind:     workspace.KindSkill,
			Name:     s.Name,
			Path:     skillPath,
			Line:     lineOf(s.Body, link.Destination),
			Message:  fmt.Sprintf("link target '%s' does not exist", link.Destination),
		})
	}

	findings = append(findings, lintExtraKeys(s.Extra, workspace.KindSkill, s.Name, skillPath)...)
	return findings, errs.ErrorOrNil()
}

func isResourcePath(clean string) bool {
	for _, sub := range []string{"references", "examples", "scripts", "assets"} {
		if clean == sub || strings.HasPrefix(clean, sub+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func lintDescription(description string, required bool, mk func(rule, severity, message string) Finding) []Finding {
	var findings []Finding
	if required && strings.TrimSpace(description) == "" {
		findings = append(findings, mk(RuleDescriptionLength, SeverityWarning, "description is empty"))
	}
	if n := utf8.RuneCountInString(description); n > maxDescriptionRunes {
		findings = append(findings, mk(RuleDescriptionLength, SeverityWarning,
			fmt.Sprintf("description is %d runes, keep it within %d", n, maxDescriptionRunes)))
	}
	return findings
}

func (l *Linter) lintAgent(a *agent.Agent) []Finding {
	var findings []Finding
	mk := func(rule, severity, message string) Finding {
		return Finding{Rule: rule, Severity: severity, Kind: workspace.KindAgent, Name: a.Name, Path: a.Path, Message: message}
	}

	if !nameRe.MatchString(a.Name) {
		findings = append(findings, mk(RuleNameFormat, SeverityError,
			fmt.Sprintf("name %q must match %s", a.Name, nameRe.String())))
	}

	findings = append(findings, lintDescription(a.Description, true, mk)...)

	if _, err := a.Policy(); err != nil {
		findings = append(findings, mk(RuleAllowedToolsSyntax, SeverityError, err.Error()))
	}

	if argumentsTokenRe.MatchString(a.Persona) {
		findings = append(findings, mk(RulePlaceholderSanity, SeverityWarning,
			"$ARGUMENTS has no meaning in an agent persona"))
	}

	findings = append(findings, lintLinks(a.Persona, filepath.Dir(a.Path), workspace.KindAgent, a.Name, a.Path)...)
	findings = append(findings, lintExtraKeys(a.Extra, workspace.KindAgent, a.Name, a.Path)...)
	return findings
}

func lintExtraKeys(extra map[string]string, kind, name, path string) []Finding {
	if len(extra) == 0 {
		return nil
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	findings := make([]Finding, 0, len(keys))
	for _, k := range keys {
		findings = append(findings, Finding{
			Rule:     RuleUnknownKey,
			Severity: SeverityInfo,
			Kind:     kind,
			Name:     name,
			Path:     path,
			Message:  fmt.Sprintf("unknown frontmatter key %q", k),
		})
	}
	return findings
}

// lintLinks checks that relative Markdown links in a body resolve on disk,
// relative to baseDir.
func lintLinks(body, baseDir, kind, name, path string) []Finding {
	var findings []Finding
	for _, link := range extractLinks(body) {
		if !isRelativeLink(link.Destination) {
			continue
		}
		target := filepath.Join(baseDir, filepath.FromSlash(strippedDestination(link.Destination)))
		if _, err := os.Stat(target); err != nil {
			findings = append(findings, Finding{
				Rule:     RuleCrossrefResolves,
				Severity: SeverityError,
				Kind:     kind,
				Name:     name,
				Path:     path,
				Line:     lineOf(body, link.Destination),
				Message:  fmt.Sprintf("link target '%s' does not exist", link.Destination),
			})
		}
	}
	return findings
}

// isRelativeLink filters out URLs with a scheme, anchors, mailto, and
// absolute paths.
func isRelativeLink(dest string) bool {
	if dest == "" || strings.HasPrefix(dest, "#") || strings.HasPrefix(dest, "/") {
		return false
	}
	if u, err := url.Parse(dest); err == nil && u.Scheme != "" {
		return false
	}
	return true
}

// strippedDestination drops a trailing #fragment or ?query from a link
// destination.
func strippedDestination(dest string) string {
	if i := strings.IndexAny(dest, "#?"); i >= 0 {
		return dest[:i]
	}
	return dest
}

// lineOf locates a substring's 1-based line. Zero when not found.
func lineOf(body, needle string) int {
	idx := strings.Index(body, needle)
	if idx < 0 {
		return 0
	}
	return strings.Count(body[:idx], "\n") + 1
}

func sortFindings(findings []Finding) {
	severityRank := map[string]int{SeverityError: 0, SeverityWarning: 1, SeverityInfo: 2}
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Severity != findings[j].Severity {
			return severityRank[findings[i].Severity] < severityRank[findings[j].Severity]
		}
		if findings[i].Path != findings[j].Path {
			return findings[i].Path < findings[j].Path
		}
		return findings[i].Rule < findings[j].Rule
	})
}
