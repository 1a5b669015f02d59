package skill

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSkill(t *testing.T, dir, name, frontmatterName, description string) {
	t.Helper()
	skillDir := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(skillDir, 0o755))
	content := "---\nname: " + frontmatterName + "\ndescription: " + description + "\n---\n\nInstructions for " + frontmatterName + ".\n"
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, SkillFileName), []byte(content), 0o644))
}

func TestLoaderList(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "promptpack-skill-test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	writeSkill(t, tmpDir, "code-review", "code-review", "Review code changes")
	writeSkill(t, tmpDir, "shape-spec", "shape-spec", "Shape a feature spec")

	loader, err := NewLoader(WithSourceDirs(SourceProject, tmpDir))
	require.NoError(t, err)

	skills, err := loader.List(context.Background())
	require.NoError(t, err)
	require.Len(t, skills, 2)

	s, err := loader.Get(context.Background(), "code-review")
	require.NoError(t, err)
	assert.Equal(t, "Review code changes", s.Description)
	assert.Equal(t, SourceProject, s.Source)
	assert.Contains(t, s.Body, "Instructions for code-review.")
}

func TestLoaderRequiredFrontmatter(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "promptpack-skill-test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	noName := filepath.Join(tmpDir, "no-name")
	require.NoError(t, os.MkdirAll(noName, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(noName, SkillFileName),
		[]byte("---\ndescription: missing name\n---\nbody\n"), 0o644))

	noMeta := filepath.Join(tmpDir, "no-meta")
	require.NoError(t, os.MkdirAll(noMeta, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(noMeta, SkillFileName),
		[]byte("just a body\n"), 0o644))

	loader, err := NewLoader(WithSourceDirs(SourceProject, tmpDir))
	require.NoError(t, err)

	skills, loadErrs := loader.ListAll(context.Background())
	assert.Empty(t, skills)
	assert.Len(t, loadErrs, 2)
}

func TestLoaderPrecedence(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "promptpack-skill-test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	projectDir := filepath.Join(tmpDir, "project")
	userDir := filepath.Join(tmpDir, "user")
	writeSkill(t, projectDir, "code-review", "code-review", "project description")
	writeSkill(t, userDir, "code-review", "code-review", "user description")

	loader, err := NewLoader(
		WithSourceDirs(SourceProject, projectDir),
		WithSourceDirs(SourceUser, userDir),
	)
	require.NoError(t, err)

	s, err := loader.Get(context.Background(), "code-review")
	require.NoError(t, err)
	assert.Equal(t, "project description", s.Description)
	assert.Equal(t, SourceProject, s.Source)

	all, _ := loader.ListAll(context.Background())
	assert.Len(t, all, 2)
}

func TestLoadCollectsResources(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "promptpack-skill-test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	writeSkill(t, tmpDir, "task-breakdown", "task-breakdown", "Break work into tasks")
	skillDir := filepath.Join(tmpDir, "task-breakdown")
	require.NoError(t, os.MkdirAll(filepath.Join(skillDir, "references"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, "references", "task-sizing.md"), []byte("# Sizing\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(skillDir, "examples"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, "examples", "sample.py"), []byte("print()\n"), 0o644))

	s, err := Load(skillDir, SourceProject)
	require.NoError(t, err)
	assert.Equal(t, []string{"references/task-sizing.md"}, s.Resources.References)
	assert.Equal(t, []string{"examples/sample.py"}, s.Resources.Examples)
	assert.Equal(t, 2, s.Resources.Count())
}

func TestLoadAllowedToolsAndVersion(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "promptpack-skill-test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	skillDir := filepath.Join(tmpDir, "deploy")
	require.NoError(t, os.MkdirAll(skillDir, 0o755))
	content := `---
name: deploy
description: Deployment guidance
version: 1.2.0
allowed-tools: Read, Bash(kubectl get:*)
---
body
`
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, SkillFileName), []byte(content), 0o644))

	s, err := Load(skillDir, SourceUser)
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", s.Version)
	assert.Equal(t, []string{"Read", "Bash(kubectl get:*)"}, s.AllowedTools)
}

func TestResourcePathJailed(t *testing.T) {
	s := &Skill{Directory: "/corpus/skills/code-review"}

	path, err := s.ResourcePath("references/checklist.md")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/corpus/skills/code-review", "references", "checklist.md"), path)

	_, err = s.ResourcePath("../../../etc/passwd")
	assert.Error(t, err)

	_, err = s.ResourcePath("/etc/passwd")
	assert.Error(t, err)
}
