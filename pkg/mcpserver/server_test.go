package mcpserver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/promptpack/pkg/workspace"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testMCPServer(t *testing.T) *Server {
	t.Helper()
	base, err := os.MkdirTemp("", "promptpack-mcp-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(base) })

	roots := workspace.Roots{
		Project: filepath.Join(base, "project", workspace.DirName),
		User:    filepath.Join(base, "user", workspace.DirName),
	}

	writeFile(t, filepath.Join(roots.Project, "commands", "commit.md"),
		"---\ndescription: Commit changes\nargument-hint: \"[message]\"\n---\nCommit: $1\n\n!`git status`\n")
	writeFile(t, filepath.Join(roots.Project, "commands", "fixup.md"),
		"---\ndescription: Fix an issue\nargument-hint: \"[issue-number] [branch]\"\n---\nFix issue $1 on branch $2.\n")
	writeFile(t, filepath.Join(roots.Project, "skills", "code-review", "SKILL.md"),
		"---\nname: code-review\ndescription: Review code\n---\nReview carefully.\n")
	writeFile(t, filepath.Join(roots.Project, "agents", "reviewer.md"),
		"---\ndescription: Reviews pull requests\n---\nYou review code.\n")

	registry, err := workspace.NewRegistry(workspace.WithRoots(roots))
	require.NoError(t, err)

	server, err := NewServer(context.TODO(), registry, nil)
	require.NoError(t, err)
	return server
}

func callTool(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestHandleListCommands(t *testing.T) {
	s := testMCPServer(t)

	result, err := s.handleListCommands(context.TODO(), callTool(nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, textOf(t, result), `"commit"`)
}

func TestHandleGetCommand(t *testing.T) {
	s := testMCPServer(t)

	result, err := s.handleGetCommand(context.TODO(), callTool(map[string]any{"name": "commit"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, textOf(t, result), "Commit: $1")

	result, err = s.handleGetCommand(context.TODO(), callTool(map[string]any{"name": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleRenderCommandNeverExecutes(t *testing.T) {
	s := testMCPServer(t)

	result, err := s.handleRenderCommand(context.TODO(), callTool(map[string]any{
		"name": "commit",
		"args": []any{"hello"},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	rendered := textOf(t, result)
	assert.Contains(t, rendered, "Commit: hello")
	assert.Contains(t, rendered, "[SKIPPED command 'git status']")
}

func TestHandleReadSkill(t *testing.T) {
	s := testMCPServer(t)

	result, err := s.handleReadSkill(context.TODO(), callTool(map[string]any{"name": "code-review"}))
	require.NoError(t, err)
	assert.Contains(t, textOf(t, result), "Review carefully.")
}

func TestHandleSearchFallback(t *testing.T) {
	s := testMCPServer(t)

	result, err := s.handleSearch(context.TODO(), callTool(map[string]any{"query": "review"}))
	require.NoError(t, err)
	text := textOf(t, result)
	assert.Contains(t, text, "code-review")
	assert.Contains(t, text, "reviewer")

	result, err = s.handleSearch(context.TODO(), callTool(map[string]any{"query": "review", "kind": "skill"}))
	require.NoError(t, err)
	text = textOf(t, result)
	assert.Contains(t, text, "code-review")
	assert.NotContains(t, text, `"agent"`)

	result, err = s.handleSearch(context.TODO(), callTool(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestPromptHandlerRendersArguments(t *testing.T) {
	s := testMCPServer(t)

	snap, err := s.registry.Snapshot(context.TODO())
	require.NoError(t, err)
	c, ok := snap.Command("commit")
	require.True(t, ok)

	handler := s.promptHandler(c)
	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"message": "fix the bug"}

	result, err := handler(context.TODO(), req)
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)

	text, ok := result.Messages[0].Content.(mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "Commit: fix the bug")
	assert.Contains(t, text.Text, "[SKIPPED command 'git status']")
}

func TestPromptHandlerKeepsArgumentPositions(t *testing.T) {
	s := testMCPServer(t)

	snap, err := s.registry.Snapshot(context.TODO())
	require.NoError(t, err)
	c, ok := snap.Command("fixup")
	require.True(t, ok)

	handler := s.promptHandler(c)

	// Only the second hint is supplied; the first placeholder must stay
	// empty rather than receive the branch value.
	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"branch": "dev"}

	result, err := handler(context.TODO(), req)
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)

	text, ok := result.Messages[0].Content.(mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "Fix issue  on branch dev.")

	// Both supplied lands both placeholders.
	req = mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"issue-number": "42", "branch": "main"}
	result, err = handler(context.TODO(), req)
	require.NoError(t, err)
	text, ok = result.Messages[0].Content.(mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "Fix issue 42 on branch main.")
}

func TestPromptName(t *testing.T) {
	assert.Equal(t, "commit", promptName("commit"))
	assert.Equal(t, "git-fixup", promptName("git:fixup"))
}

func TestInputSchemaMarksRequiredFields(t *testing.T) {
	schema := inputSchema[renderCommandArgs]()
	assert.Equal(t, "object", schema.Type)
	assert.Contains(t, schema.Required, "name")
	assert.NotContains(t, schema.Required, "args")
	assert.Contains(t, schema.Properties, "name")
	assert.Contains(t, schema.Properties, "args")
}
