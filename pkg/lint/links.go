package lint

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

type mdLink struct {
	Destination string
}

// extractLinks walks the Markdown AST and collects link and image
// destinations.
func extractLinks(body string) []mdLink {
	doc := goldmark.New().Parser().Parse(text.NewReader([]byte(body)))

	var links []mdLink
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Link:
			links = append(links, mdLink{Destination: string(node.Destination)})
		case *ast.Image:
			links = append(links, mdLink{Destination: string(node.Destination)})
		}
		return ast.WalkContinue, nil
	})
	return links
}
