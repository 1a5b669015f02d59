package webapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
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

func testServer(t *testing.T) *Server {
	t.Helper()
	base, err := os.MkdirTemp("", "promptpack-webapi-test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(base) })

	roots := workspace.Roots{
		Project: filepath.Join(base, "project", workspace.DirName),
		User:    filepath.Join(base, "user", workspace.DirName),
	}

	writeFile(t, filepath.Join(roots.Project, "commands", "commit.md"),
		"---\ndescription: Commit changes\nargument-hint: \"[message]\"\nallowed-tools: Bash(git status)\n---\nCommit: $1\n\n!`git status`\n")
	writeFile(t, filepath.Join(roots.Project, "commands", "git", "fixup.md"),
		"---\ndescription: Fixup\n---\nFixup.\n")
	writeFile(t, filepath.Join(roots.Project, "skills", "code-review", "SKILL.md"),
		"---\nname: code-review\ndescription: Review code\n---\nSee [checklist](references/checklist.md).\n")
	writeFile(t, filepath.Join(roots.Project, "skills", "code-review", "references", "checklist.md"),
		"- check tests\n")
	writeFile(t, filepath.Join(roots.Project, "agents", "reviewer.md"),
		"---\ndescription: Reviews pull requests\n---\nYou review code.\n")

	registry, err := workspace.NewRegistry(workspace.WithRoots(roots))
	require.NoError(t, err)

	server, err := NewServer(&ServerConfig{Host: "127.0.0.1", Port: 8723}, registry, nil)
	require.NoError(t, err)
	return server
}

func doRequest(t *testing.T, server *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var data map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	return data
}

func TestServerConfigValidate(t *testing.T) {
	assert.NoError(t, (&ServerConfig{Host: "localhost", Port: 8723}).Validate())
	assert.Error(t, (&ServerConfig{Host: "", Port: 8723}).Validate())
	assert.Error(t, (&ServerConfig{Host: "localhost", Port: 0}).Validate())
	assert.Error(t, (&ServerConfig{Host: "localhost", Port: 70000}).Validate())
}

func TestHandleStatus(t *testing.T) {
	server := testServer(t)
	rec := doRequest(t, server, "GET", "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeJSON(t, rec)
	counts := data["counts"].(map[string]any)
	assert.Equal(t, float64(2), counts["commands"])
	assert.Equal(t, float64(1), counts["skills"])
	assert.Equal(t, float64(1), counts["agents"])
}

func TestHandleListCommands(t *testing.T) {
	server := testServer(t)
	rec := doRequest(t, server, "GET", "/api/commands", "")
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeJSON(t, rec)
	commands := data["commands"].([]any)
	assert.Len(t, commands, 2)
}

func TestHandleListCommandsFilter(t *testing.T) {
	server := testServer(t)

	rec := doRequest(t, server, "GET", "/api/commands?filter=git:*", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeJSON(t, rec)
	commands := data["commands"].([]any)
	require.Len(t, commands, 1)
	assert.Equal(t, "git:fixup", commands[0].(map[string]any)["name"])

	rec = doRequest(t, server, "GET", "/api/commands?filter=[", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetCommand(t *testing.T) {
	server := testServer(t)

	rec := doRequest(t, server, "GET", "/api/commands/commit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeJSON(t, rec)
	assert.Equal(t, "commit", data["name"])
	assert.Contains(t, data["body"], "$1")

	rec = doRequest(t, server, "GET", "/api/commands/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleRenderCommandNeverExecutes(t *testing.T) {
	server := testServer(t)

	rec := doRequest(t, server, "POST", "/api/commands/commit/render", `{"args":["hello"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeJSON(t, rec)
	rendered := data["rendered"].(string)
	assert.Contains(t, rendered, "Commit: hello")
	assert.Contains(t, rendered, "[SKIPPED command 'git status']")
}

func TestHandleGetSkillAndResource(t *testing.T) {
	server := testServer(t)

	rec := doRequest(t, server, "GET", "/api/skills/code-review", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeJSON(t, rec)
	assert.Equal(t, "code-review", data["name"])

	rec = doRequest(t, server, "GET", "/api/skills/code-review/resources/references/checklist.md", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "check tests")

	rec = doRequest(t, server, "GET", "/api/skills/code-review/resources/..%2F..%2Fsecret", "")
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestHandleAgents(t *testing.T) {
	server := testServer(t)

	rec := doRequest(t, server, "GET", "/api/agents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeJSON(t, rec)
	assert.Len(t, data["agents"].([]any), 1)

	rec = doRequest(t, server, "GET", "/api/agents/reviewer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data = decodeJSON(t, rec)
	assert.Equal(t, "You review code.\n", data["persona"])
}

func TestHandleSearchFallback(t *testing.T) {
	server := testServer(t)

	rec := doRequest(t, server, "GET", "/api/search?q=review", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeJSON(t, rec)
	results := data["results"].([]any)
	require.NotEmpty(t, results)
	// Name hits rank first.
	assert.Contains(t, results[0].(map[string]any)["name"], "review")

	rec = doRequest(t, server, "GET", "/api/search", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleLint(t *testing.T) {
	server := testServer(t)

	rec := doRequest(t, server, "GET", "/api/lint", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeJSON(t, rec)
	assert.Equal(t, false, data["hasErrors"])
}
