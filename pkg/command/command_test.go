package command

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoaderList(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "promptpack-command-test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	commandsDir := filepath.Join(tmpDir, "commands")
	writeFile(t, filepath.Join(commandsDir, "commit.md"), `---
description: Write a commit message
argument-hint: "[scope]"
allowed-tools: Bash(git diff:*), Bash(git log:*)
model: sonnet
---

Write a commit message for the staged changes.
`)
	writeFile(t, filepath.Join(commandsDir, "git", "fixup.md"), `Fix up the last commit.
`)

	loader, err := NewLoader(WithSourceDirs(SourceProject, commandsDir))
	require.NoError(t, err)

	commands, err := loader.List(context.Background())
	require.NoError(t, err)
	require.Len(t, commands, 2)

	commit, err := loader.Get(context.Background(), "commit")
	require.NoError(t, err)
	assert.Equal(t, "Write a commit message", commit.Description)
	assert.Equal(t, "[scope]", commit.ArgumentHint)
	assert.Equal(t, []string{"Bash(git diff:*)", "Bash(git log:*)"}, commit.AllowedTools)
	assert.Equal(t, "sonnet", commit.Model)
	assert.Equal(t, SourceProject, commit.Source)
	assert.Equal(t, "Write a commit message for the staged changes.\n", commit.Body)

	// Nested directories namespace the name with ':'.
	fixup, err := loader.Get(context.Background(), "git:fixup")
	require.NoError(t, err)
	assert.Empty(t, fixup.Description)
	assert.Equal(t, "Fix up the last commit.\n", fixup.Body)
}

func TestLoaderPrecedence(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "promptpack-command-test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	projectDir := filepath.Join(tmpDir, "project")
	userDir := filepath.Join(tmpDir, "user")
	writeFile(t, filepath.Join(projectDir, "commit.md"), "project version\n")
	writeFile(t, filepath.Join(userDir, "commit.md"), "user version\n")
	writeFile(t, filepath.Join(userDir, "review.md"), "user only\n")

	loader, err := NewLoader(
		WithSourceDirs(SourceProject, projectDir),
		WithSourceDirs(SourceUser, userDir),
	)
	require.NoError(t, err)

	commands, err := loader.List(context.Background())
	require.NoError(t, err)
	require.Len(t, commands, 2)

	commit, err := loader.Get(context.Background(), "commit")
	require.NoError(t, err)
	assert.Equal(t, SourceProject, commit.Source)
	assert.Equal(t, "project version\n", commit.Body)

	all, loadErrs := loader.ListAll(context.Background())
	assert.Empty(t, loadErrs)
	assert.Len(t, all, 3)
}

func TestLoaderMalformedFrontmatter(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "promptpack-command-test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	writeFile(t, filepath.Join(tmpDir, "broken.md"), "---\n: not yaml [\n---\nbody\n")
	writeFile(t, filepath.Join(tmpDir, "good.md"), "fine\n")

	loader, err := NewLoader(WithSourceDirs(SourceProject, tmpDir))
	require.NoError(t, err)

	all, loadErrs := loader.ListAll(context.Background())
	assert.Len(t, all, 1)
	require.Len(t, loadErrs, 1)
	assert.Contains(t, loadErrs[0].Path, "broken.md")

	_, err = loader.Get(context.Background(), "broken")
	assert.Error(t, err)
}

func TestLoaderAllowedToolsListForm(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "promptpack-command-test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	writeFile(t, filepath.Join(tmpDir, "deploy.md"), `---
allowed-tools:
  - Read
  - Bash(kubectl get:*)
unknown-key: surprise
---
body
`)

	loader, err := NewLoader(WithSourceDirs(SourceProject, tmpDir))
	require.NoError(t, err)

	cmd, err := loader.Get(context.Background(), "deploy")
	require.NoError(t, err)
	assert.Equal(t, []string{"Read", "Bash(kubectl get:*)"}, cmd.AllowedTools)
	assert.Equal(t, map[string]string{"unknown-key": "surprise"}, cmd.Extra)
}

func TestLoaderSkipsNonMarkdown(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "promptpack-command-test")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	writeFile(t, filepath.Join(tmpDir, "notes.txt"), "not a command\n")
	writeFile(t, filepath.Join(tmpDir, ".hidden.md"), "hidden\n")
	writeFile(t, filepath.Join(tmpDir, "real.md"), "real\n")

	loader, err := NewLoader(WithSourceDirs(SourceProject, tmpDir))
	require.NoError(t, err)

	commands, err := loader.List(context.Background())
	require.NoError(t, err)
	require.Len(t, commands, 1)
	assert.Equal(t, "real", commands[0].Name)
}

func TestHintArguments(t *testing.T) {
	tests := []struct {
		hint     string
		expected []string
	}{
		{"", nil},
		{"[issue-number]", []string{"issue-number"}},
		{"[issue-number] [branch]", []string{"issue-number", "branch"}},
		{"[files...]", []string{"files"}},
	}

	for _, tt := range tests {
		cmd := &Command{ArgumentHint: tt.hint}
		assert.Equal(t, tt.expected, cmd.HintArguments(), "hint %q", tt.hint)
	}
}
