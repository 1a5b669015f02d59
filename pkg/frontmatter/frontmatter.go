// Package frontmatter parses the YAML frontmatter envelope shared by every
// corpus Markdown file (commands, skills, agents). Parsing goes through
// goldmark with the goldmark-meta extension so the body is also validated as
// well-formed Markdown; typed decoding of the metadata map uses mapstructure.
package frontmatter

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
	"gopkg.in/yaml.v3"
)

// File is a parsed corpus document: the frontmatter map (nil when the file
// carries none) and the Markdown body with the envelope stripped.
type File struct {
	Meta map[string]interface{}
	Body string
}

// Parse splits content into frontmatter and body. A file without a leading
// `---` fence is valid and yields a nil Meta; a fence with malformed YAML is
// an error.
func Parse(content []byte) (*File, error) {
	md := goldmark.New(
		goldmark.WithExtensions(meta.Meta),
	)

	var buf bytes.Buffer
	pctx := parser.NewContext()

	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, errors.Wrap(err, "failed to parse markdown")
	}

	metaData, err := meta.TryGet(pctx)
	if err != nil {
		return nil, errors.Wrap(err, "malformed frontmatter")
	}

	return &File{
		Meta: metaData,
		Body: extractBody(string(content)),
	}, nil
}

// HasMeta reports whether the file carried a frontmatter block.
func (f *File) HasMeta() bool {
	return f.Meta != nil
}

// Decode fills out from the frontmatter map. Fields are matched by their
// mapstructure tags; weakly typed input is allowed so a bare scalar decodes
// into a one-element list.
func (f *File) Decode(out interface{}) error {
	if f.Meta == nil {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to build frontmatter decoder")
	}
	if err := decoder.Decode(f.Meta); err != nil {
		return errors.Wrap(err, "failed to decode frontmatter")
	}
	return nil
}

// StringList coerces a frontmatter value into a list of strings. YAML lists
// pass through; a comma-separated scalar is split and trimmed.
func StringList(v interface{}) []string {
	switch val := v.(type) {
	case []interface{}:
		var result []string
		for _, item := range val {
			if s, ok := item.(string); ok {
				if trimmed := strings.TrimSpace(s); trimmed != "" {
					result = append(result, trimmed)
				}
			}
		}
		return result
	case string:
		if val == "" {
			return nil
		}
		var result []string
		for _, item := range strings.Split(val, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	default:
		return nil
	}
}

// ExtraKeys returns frontmatter keys outside the known set, sorted. The
// linter reports them at info level.
func ExtraKeys(metaData map[string]interface{}, known ...string) []string {
	if len(metaData) == 0 {
		return nil
	}

	knownSet := make(map[string]bool, len(known))
	for _, k := range known {
		knownSet[k] = true
	}

	var extra []string
	for k := range metaData {
		if !knownSet[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return extra
}

// Compose renders a frontmatter struct plus body back into file content.
// Used when scaffolding new corpus files.
func Compose(metaData interface{}, body string) ([]byte, error) {
	encoded, err := yaml.Marshal(metaData)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal frontmatter")
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "---\n%s---\n\n", encoded)
	buf.WriteString(strings.TrimLeft(body, "\n"))
	if !strings.HasSuffix(body, "\n") {
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}

// extractBody removes the YAML frontmatter fence and returns the body
func extractBody(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}

	lines := strings.Split(content, "\n")
	frontmatterEnd := -1

	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			frontmatterEnd = i
			break
		}
	}

	if frontmatterEnd == -1 {
		return content
	}

	return strings.TrimLeft(strings.Join(lines[frontmatterEnd+1:], "\n"), "\n")
}
