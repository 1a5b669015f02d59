package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jingkaihe/promptpack/pkg/command"
	"github.com/jingkaihe/promptpack/pkg/workspace"
)

// registerPrompts exposes every command as an MCP prompt. Prompt argument
// names come from the command's argument-hint tokens.
func (s *Server) registerPrompts(snap *workspace.Snapshot) {
	for _, c := range snap.Commands {
		prompt := mcp.Prompt{
			// Prompt names cannot carry ':' in every client, use '-'.
			Name:        promptName(c.Name),
			Description: c.Description,
		}
		for _, arg := range c.HintArguments() {
			prompt.Arguments = append(prompt.Arguments, mcp.PromptArgument{
				Name:        arg,
				Description: fmt.Sprintf("value for the %s placeholder", arg),
			})
		}

		s.mcp.AddPrompt(prompt, s.promptHandler(c))
	}
}

func promptName(commandName string) string {
	return strings.ReplaceAll(commandName, ":", "-")
}

func (s *Server) promptHandler(c *command.Command) func(context.Context, mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		// Map hint values positionally so a missing earlier argument leaves
		// its placeholder empty instead of shifting later values into it.
		hints := c.HintArguments()
		args := make([]string, len(hints))
		for i, hint := range hints {
			args[i] = req.Params.Arguments[hint]
		}
		for len(args) > 0 && args[len(args)-1] == "" {
			args = args[:len(args)-1]
		}

		renderer := command.NewRenderer(command.WithNoExec(true))
		rendered, err := renderer.Render(ctx, c, args)
		if err != nil {
			return nil, err
		}

		return &mcp.GetPromptResult{
			Description: c.Description,
			Messages: []mcp.PromptMessage{
				{
					Role:    mcp.RoleUser,
					Content: mcp.NewTextContent(rendered),
				},
			},
		}, nil
	}
}
