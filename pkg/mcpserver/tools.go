package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jingkaihe/promptpack/pkg/command"
	"github.com/jingkaihe/promptpack/pkg/workspace"
)

type listCommandsArgs struct {
	Source string `json:"source,omitempty" jsonschema_description:"Filter by source: project, user, or a plugin org/repo"`
}

type getCommandArgs struct {
	Name string `json:"name" jsonschema_description:"Command name, e.g. 'commit' or 'git:fixup'"`
}

type renderCommandArgs struct {
	Name string   `json:"name" jsonschema_description:"Command name"`
	Args []string `json:"args,omitempty" jsonschema_description:"Positional arguments for $1..$9 and $ARGUMENTS"`
}

type readSkillArgs struct {
	Name string `json:"name" jsonschema_description:"Skill name"`
}

type searchArgs struct {
	Query string `json:"query" jsonschema_description:"Search term"`
	Kind  string `json:"kind,omitempty" jsonschema_description:"Restrict to a kind: command, skill, or agent"`
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.Tool{
		Name:        "list_commands",
		Description: "List the available prompt commands with their descriptions and argument hints.",
		InputSchema: inputSchema[listCommandsArgs](),
	}, s.handleListCommands)

	s.mcp.AddTool(mcp.Tool{
		Name:        "get_command",
		Description: "Get a command's full definition including its template body.",
		InputSchema: inputSchema[getCommandArgs](),
	}, s.handleGetCommand)

	s.mcp.AddTool(mcp.Tool{
		Name:        "render_command",
		Description: "Render a command template with arguments. Shell markers are never executed.",
		InputSchema: inputSchema[renderCommandArgs](),
	}, s.handleRenderCommand)

	s.mcp.AddTool(mcp.Tool{
		Name:        "list_skills",
		Description: "List the available skills with their descriptions.",
		InputSchema: mcp.ToolInputSchema{Type: "object"},
	}, s.handleListSkills)

	s.mcp.AddTool(mcp.Tool{
		Name:        "read_skill",
		Description: "Read a skill's body and its resource file listing.",
		InputSchema: inputSchema[readSkillArgs](),
	}, s.handleReadSkill)

	s.mcp.AddTool(mcp.Tool{
		Name:        "search",
		Description: "Search commands, skills, and agents by name, description, and content.",
		InputSchema: inputSchema[searchArgs](),
	}, s.handleSearch)
}

func stringArg(req mcp.CallToolRequest, key string) string {
	if v, ok := req.GetArguments()[key].(string); ok {
		return v
	}
	return ""
}

func stringSliceArg(req mcp.CallToolRequest, key string) []string {
	raw, ok := req.GetArguments()[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range raw {
		if v, ok := item.(string); ok {
			out = append(out, v)
		}
	}
	return out
}

func resultJSON(data any) (*mcp.CallToolResult, error) {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(encoded)), nil
}

func (s *Server) handleListCommands(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := s.registry.Snapshot(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	source := stringArg(req, "source")

	type commandSummary struct {
		Name         string `json:"name"`
		Source       string `json:"source"`
		Description  string `json:"description,omitempty"`
		ArgumentHint string `json:"argumentHint,omitempty"`
	}

	commands := []commandSummary{}
	for _, c := range snap.Commands {
		if source != "" && c.Source != source {
			continue
		}
		commands = append(commands, commandSummary{
			Name:         c.Name,
			Source:       c.Source,
			Description:  c.Description,
			ArgumentHint: c.ArgumentHint,
		})
	}

	return resultJSON(map[string]any{"commands": commands})
}

func (s *Server) handleGetCommand(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := s.registry.Snapshot(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	name := stringArg(req, "name")
	c, ok := snap.Command(name)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("command %q not found", name)), nil
	}

	return resultJSON(map[string]any{
		"name":         c.Name,
		"source":       c.Source,
		"description":  c.Description,
		"argumentHint": c.ArgumentHint,
		"allowedTools": c.AllowedTools,
		"model":        c.Model,
		"body":         c.Body,
	})
}

func (s *Server) handleRenderCommand(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := s.registry.Snapshot(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	name := stringArg(req, "name")
	c, ok := snap.Command(name)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("command %q not found", name)), nil
	}

	renderer := command.NewRenderer(command.WithNoExec(true))
	rendered, err := renderer.Render(ctx, c, stringSliceArg(req, "args"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(rendered), nil
}

func (s *Server) handleListSkills(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := s.registry.Snapshot(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	type skillSummary struct {
		Name        string `json:"name"`
		Source      string `json:"source"`
		Description string `json:"description"`
		Resources   int    `json:"resources"`
	}

	skills := []skillSummary{}
	for _, sk := range snap.Skills {
		skills = append(skills, skillSummary{
			Name:        sk.Name,
			Source:      sk.Source,
			Description: sk.Description,
			Resources:   sk.Resources.Count(),
		})
	}

	return resultJSON(map[string]any{"skills": skills})
}

func (s *Server) handleReadSkill(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := s.registry.Snapshot(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	name := stringArg(req, "name")
	sk, ok := snap.Skill(name)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("skill %q not found", name)), nil
	}

	return resultJSON(map[string]any{
		"name":        sk.Name,
		"source":      sk.Source,
		"description": sk.Description,
		"body":        sk.Body,
		"resources":   sk.Resources.All(),
	})
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := stringArg(req, "query")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	var kinds []string
	if kind := stringArg(req, "kind"); kind != "" {
		kinds = append(kinds, kind)
	}

	type searchHit struct {
		Kind        string `json:"kind"`
		Name        string `json:"name"`
		Source      string `json:"source"`
		Description string `json:"description,omitempty"`
	}

	hits := []searchHit{}

	if s.store != nil {
		entries, err := s.store.Search(ctx, query, kinds)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		for _, e := range entries {
			hits = append(hits, searchHit{Kind: e.Kind, Name: e.Name, Source: e.Source, Description: e.Description})
		}
		return resultJSON(map[string]any{"results": hits})
	}

	snap, err := s.registry.Snapshot(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	for _, hit := range scanSnapshot(snap, query, kinds) {
		hits = append(hits, searchHit(hit))
	}
	return resultJSON(map[string]any{"results": hits})
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// scanHit mirrors the index row shape for the fallback path.
type scanHit struct {
	Kind        string
	Name        string
	Source      string
	Description string
}

// scanSnapshot is the index-less search fallback.
func scanSnapshot(snap *workspace.Snapshot, query string, kinds []string) []scanHit {
	wantKind := func(kind string) bool {
		if len(kinds) == 0 {
			return true
		}
		for _, k := range kinds {
			if k == kind {
				return true
			}
		}
		return false
	}

	var hits []scanHit
	add := func(kind, name, source, description string, haystacks ...string) {
		if !wantKind(kind) {
			return
		}
		for _, h := range haystacks {
			if containsFold(h, query) {
				hits = append(hits, scanHit{Kind: kind, Name: name, Source: source, Description: description})
				return
			}
		}
	}

	for _, c := range snap.Commands {
		add(workspace.KindCommand, c.Name, c.Source, c.Description, c.Name, c.Description, c.Body)
	}
	for _, sk := range snap.Skills {
		add(workspace.KindSkill, sk.Name, sk.Source, sk.Description, sk.Name, sk.Description, sk.Body)
	}
	for _, a := range snap.Agents {
		add(workspace.KindAgent, a.Name, a.Source, a.Description, a.Name, a.Description, a.Persona)
	}
	return hits
}
