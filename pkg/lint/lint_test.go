package lint

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/promptpack/pkg/workspace"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func snapshotOf(t *testing.T, build func(roots workspace.Roots)) *workspace.Snapshot {
	t.Helper()
	base, err := os.MkdirTemp("", "promptpack-lint-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(base) })

	roots := workspace.Roots{
		Project: filepath.Join(base, "project", workspace.DirName),
		User:    filepath.Join(base, "user", workspace.DirName),
	}
	build(roots)

	registry, err := workspace.NewRegistry(workspace.WithRoots(roots))
	require.NoError(t, err)
	snap, err := registry.Snapshot(context.TODO())
	require.NoError(t, err)
	return snap
}

func rulesOf(findings []Finding) []string {
	rules := make([]string, len(findings))
	for i, f := range findings {
		rules[i] = f.Rule
	}
	return rules
}

func findByRule(findings []Finding, rule string) (Finding, bool) {
	for _, f := range findings {
		if f.Rule == rule {
			return f, true
		}
	}
	return Finding{}, false
}

func TestLintCleanCorpus(t *testing.T) {
	snap := snapshotOf(t, func(roots workspace.Roots) {
		writeFile(t, filepath.Join(roots.Project, "commands", "commit.md"),
			"---\ndescription: Commit staged changes\nargument-hint: \"[message]\"\nallowed-tools: Bash(git commit:*)\n---\nCommit with message $1.\n\n!`git commit -m hello`\n")
		writeFile(t, filepath.Join(roots.Project, "skills", "code-review", "SKILL.md"),
			"---\nname: code-review\ndescription: Review code thoroughly\n---\nSee [the checklist](references/checklist.md).\n")
		writeFile(t, filepath.Join(roots.Project, "skills", "code-review", "references", "checklist.md"), "- item\n")
		writeFile(t, filepath.Join(roots.Project, "agents", "reviewer.md"),
			"---\ndescription: Reviews pull requests\nallowed-tools: file_read\n---\nYou review code.\n")
	})

	findings, err := NewLinter().Run(context.TODO(), snap)
	require.NoError(t, err)
	assert.Empty(t, findings, "unexpected findings: %v", findings)
}

func TestLintFrontmatterErrors(t *testing.T) {
	snap := snapshotOf(t, func(roots workspace.Roots) {
		writeFile(t, filepath.Join(roots.Project, "commands", "broken.md"),
			"---\ndescription: [unclosed\n---\nbody\n")
	})

	findings, err := NewLinter().Run(context.TODO(), snap)
	require.NoError(t, err)
	f, ok := findByRule(findings, RuleFrontmatterValid)
	require.True(t, ok, "rules: %v", rulesOf(findings))
	assert.Equal(t, SeverityError, f.Severity)
	assert.Equal(t, workspace.KindCommand, f.Kind)
}

func TestLintNameFormat(t *testing.T) {
	snap := snapshotOf(t, func(roots workspace.Roots) {
		writeFile(t, filepath.Join(roots.Project, "commands", "Bad_Name.md"),
			"---\ndescription: d\n---\nbody\n")
	})

	findings, err := NewLinter().Run(context.TODO(), snap)
	require.NoError(t, err)
	f, ok := findByRule(findings, RuleNameFormat)
	require.True(t, ok)
	assert.Equal(t, "Bad_Name", f.Name)
}

func TestLintSkillDirNameMismatch(t *testing.T) {
	snap := snapshotOf(t, func(roots workspace.Roots) {
		writeFile(t, filepath.Join(roots.Project, "skills", "review", "SKILL.md"),
			"---\nname: code-review\ndescription: d\n---\nbody\n")
	})

	findings, err := NewLinter().Run(context.TODO(), snap)
	require.NoError(t, err)
	f, ok := findByRule(findings, RuleSkillDirName)
	require.True(t, ok)
	assert.Contains(t, f.Message, "review")
}

func TestLintDescriptionLength(t *testing.T) {
	long := strings.Repeat("x", 201)
	snap := snapshotOf(t, func(roots workspace.Roots) {
		writeFile(t, filepath.Join(roots.Project, "commands", "wordy.md"),
			"---\ndescription: "+long+"\n---\nbody\n")
		writeFile(t, filepath.Join(roots.Project, "agents", "quiet.md"),
			"---\ndescription: \" \"\n---\npersona\n")
	})

	findings, err := NewLinter().Run(context.TODO(), snap)
	require.NoError(t, err)

	var hits []Finding
	for _, f := range findings {
		if f.Rule == RuleDescriptionLength {
			hits = append(hits, f)
		}
	}
	require.Len(t, hits, 2)
	for _, f := range hits {
		assert.Equal(t, SeverityWarning, f.Severity)
	}
}

func TestLintAllowedToolsSyntax(t *testing.T) {
	snap := snapshotOf(t, func(roots workspace.Roots) {
		writeFile(t, filepath.Join(roots.Project, "commands", "bad-tools.md"),
			"---\ndescription: d\nallowed-tools: \"Bash(git\"\n---\nbody\n")
	})

	findings, err := NewLinter().Run(context.TODO(), snap)
	require.NoError(t, err)
	f, ok := findByRule(findings, RuleAllowedToolsSyntax)
	require.True(t, ok)
	assert.Equal(t, SeverityError, f.Severity)
}

func TestLintShellNotAllowed(t *testing.T) {
	snap := snapshotOf(t, func(roots workspace.Roots) {
		writeFile(t, filepath.Join(roots.Project, "commands", "status.md"),
			"---\ndescription: d\nallowed-tools: Bash(git status)\n---\n!`git push`\n")
	})

	findings, err := NewLinter().Run(context.TODO(), snap)
	require.NoError(t, err)
	f, ok := findByRule(findings, RuleShellNotAllowed)
	require.True(t, ok)
	assert.Contains(t, f.Message, "git push")
}

func TestLintPlaceholderSanity(t *testing.T) {
	snap := snapshotOf(t, func(roots workspace.Roots) {
		writeFile(t, filepath.Join(roots.Project, "commands", "args.md"),
			"---\ndescription: d\nargument-hint: \"[one]\"\n---\nUses $1 and $2 and $12.\n")
		writeFile(t, filepath.Join(roots.Project, "skills", "noargs", "SKILL.md"),
			"---\nname: noargs\ndescription: d\n---\nDo not use $ARGUMENTS here.\n")
	})

	findings, err := NewLinter().Run(context.TODO(), snap)
	require.NoError(t, err)

	var hits []Finding
	for _, f := range findings {
		if f.Rule == RulePlaceholderSanity {
			hits = append(hits, f)
		}
	}
	// $12 (wide), $2 beyond arity, $ARGUMENTS in a skill.
	require.Len(t, hits, 3)
}

func TestLintCrossrefAndResources(t *testing.T) {
	snap := snapshotOf(t, func(roots workspace.Roots) {
		writeFile(t, filepath.Join(roots.Project, "commands", "doc.md"),
			"---\ndescription: d\n---\nSee [missing](../missing.md) and [site](https://example.com).\n")
		writeFile(t, filepath.Join(roots.Project, "skills", "guide", "SKILL.md"),
			"---\nname: guide\ndescription: d\n---\nSee [ref](references/gone.md) and [other](notes.md).\n")
	})

	findings, err := NewLinter().Run(context.TODO(), snap)
	require.NoError(t, err)

	resource, ok := findByRule(findings, RuleResourceExists)
	require.True(t, ok)
	assert.Contains(t, resource.Message, "references/gone.md")

	var crossrefs []Finding
	for _, f := range findings {
		if f.Rule == RuleCrossrefResolves {
			crossrefs = append(crossrefs, f)
		}
	}
	// The https link is ignored; ../missing.md and notes.md are reported.
	require.Len(t, crossrefs, 2)
	assert.NotZero(t, crossrefs[0].Line)
}

func TestLintShadowedAndUnknownKeys(t *testing.T) {
	snap := snapshotOf(t, func(roots workspace.Roots) {
		writeFile(t, filepath.Join(roots.Project, "commands", "commit.md"),
			"---\ndescription: d\ncolor: blue\n---\nbody\n")
		writeFile(t, filepath.Join(roots.User, "commands", "commit.md"),
			"---\ndescription: d\n---\nbody\n")
	})

	findings, err := NewLinter().Run(context.TODO(), snap)
	require.NoError(t, err)

	shadowed, ok := findByRule(findings, RuleDuplicateShadowed)
	require.True(t, ok)
	assert.Equal(t, SeverityWarning, shadowed.Severity)
	assert.Equal(t, "commit", shadowed.Name)

	unknown, ok := findByRule(findings, RuleUnknownKey)
	require.True(t, ok)
	assert.Equal(t, SeverityInfo, unknown.Severity)
	assert.Contains(t, unknown.Message, "color")
}

func TestHasErrors(t *testing.T) {
	assert.False(t, HasErrors(nil))
	assert.False(t, HasErrors([]Finding{{Severity: SeverityWarning}}))
	assert.True(t, HasErrors([]Finding{{Severity: SeverityWarning}, {Severity: SeverityError}}))
}
