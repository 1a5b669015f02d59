package mcpserver

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
)

// GenerateSchema reflects a JSON schema from an argument struct.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T

	return reflector.Reflect(v)
}

// inputSchema converts a reflected schema into the wire-level tool input
// schema via a JSON round-trip.
func inputSchema[T any]() mcp.ToolInputSchema {
	schema := GenerateSchema[T]()

	data, err := json.Marshal(schema)
	if err != nil {
		return mcp.ToolInputSchema{Type: "object"}
	}

	var out mcp.ToolInputSchema
	if err := json.Unmarshal(data, &out); err != nil {
		return mcp.ToolInputSchema{Type: "object"}
	}
	if out.Type == "" {
		out.Type = "object"
	}
	return out
}
