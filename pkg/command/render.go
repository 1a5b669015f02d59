package command

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jingkaihe/promptpack/pkg/logger"
	"github.com/jingkaihe/promptpack/pkg/policy"
)

const defaultShellTimeout = 30 * time.Second

var (
	// placeholderRe matches $ARGUMENTS and the positional tokens $1..$9.
	placeholderRe = regexp.MustCompile(`\$(ARGUMENTS|[1-9])`)
	// inlineShellRe matches inline backtick-quoted shell markers prefixed
	// with '!'.
	inlineShellRe = regexp.MustCompile("!`([^`\n]+)`")
	// lineShellRe matches line-leading shell markers: "❯ cmd".
	lineShellRe = regexp.MustCompile(`(?m)^❯[ \t]+(.+)$`)
)

// Renderer turns a command body into final prompt text: positional and
// $ARGUMENTS substitution first, then shell-command markers, gated on the
// command's allowed-tools policy.
type Renderer struct {
	noExec  bool
	timeout time.Duration
}

// RenderOption configures a Renderer.
type RenderOption func(*Renderer)

// WithNoExec replaces every shell marker with a [SKIPPED ...] placeholder
// instead of executing it. Used by the servers and for previews.
func WithNoExec(noExec bool) RenderOption {
	return func(r *Renderer) {
		r.noExec = noExec
	}
}

// WithShellTimeout overrides the per-command execution timeout.
func WithShellTimeout(d time.Duration) RenderOption {
	return func(r *Renderer) {
		r.timeout = d
	}
}

// NewRenderer creates a renderer with a 30s per-command shell timeout.
func NewRenderer(opts ...RenderOption) *Renderer {
	r := &Renderer{timeout: defaultShellTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render substitutes placeholders and shell markers in cmd's body. Shell
// failures and policy blocks degrade into the output text; only a broken
// allowed-tools declaration aborts the render.
func (r *Renderer) Render(ctx context.Context, cmd *Command, args []string) (string, error) {
	pol, err := cmd.Policy()
	if err != nil {
		return "", errors.Wrapf(err, "invalid allowed-tools on command '%s'", cmd.Name)
	}

	body := substituteArguments(cmd.Body, args)
	return r.substituteShell(ctx, body, pol), nil
}

// substituteArguments replaces $1..$9 with the matching positional argument
// (empty when absent) and $ARGUMENTS with the full argument string. When
// arguments were given but the body carries no placeholder at all, the
// argument string is appended as a trailing ARGUMENTS line, matching the
// host runtime the corpus was authored against.
func substituteArguments(body string, args []string) string {
	joined := strings.Join(args, " ")

	substituted := false
	result := placeholderRe.ReplaceAllStringFunc(body, func(match string) string {
		substituted = true
		token := match[1:]
		if token == "ARGUMENTS" {
			return joined
		}
		n, _ := strconv.Atoi(token)
		if n <= len(args) {
			return args[n-1]
		}
		return ""
	})

	if !substituted && len(args) > 0 {
		result = strings.TrimRight(result, "\n") + "\n\nARGUMENTS: " + joined + "\n"
	}

	return result
}

// substituteShell replaces inline !`cmd` spans and line-leading "❯ cmd"
// markers with the command output.
func (r *Renderer) substituteShell(ctx context.Context, body string, pol policy.Policy) string {
	replace := func(shellCmd string) string {
		return r.runShell(ctx, shellCmd, pol)
	}

	body = inlineShellRe.ReplaceAllStringFunc(body, func(match string) string {
		sub := inlineShellRe.FindStringSubmatch(match)
		return replace(strings.TrimSpace(sub[1]))
	})

	body = lineShellRe.ReplaceAllStringFunc(body, func(match string) string {
		sub := lineShellRe.FindStringSubmatch(match)
		return replace(strings.TrimSpace(sub[1]))
	})

	return body
}

func (r *Renderer) runShell(ctx context.Context, shellCmd string, pol policy.Policy) string {
	if r.noExec {
		return fmt.Sprintf("[SKIPPED command '%s']", shellCmd)
	}

	if !pol.Allows("Bash", shellCmd) {
		return fmt.Sprintf("[BLOCKED command '%s': not permitted by allowed-tools]", shellCmd)
	}

	logger.G(ctx).WithField("command", shellCmd).Debug("Executing shell marker")

	cmdCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", shellCmd)
	output, err := cmd.CombinedOutput()
	if err != nil {
		logger.G(ctx).WithField("command", shellCmd).WithError(err).Warn("Shell marker failed")
		return fmt.Sprintf("[ERROR executing command '%s': %v]", shellCmd, err)
	}

	return strings.TrimRight(string(output), "\n\r")
}

// ShellCommands extracts every shell marker command from a body without
// executing anything. The linter uses this to check markers against the
// command's policy.
func ShellCommands(body string) []string {
	var cmds []string
	for _, sub := range inlineShellRe.FindAllStringSubmatch(body, -1) {
		cmds = append(cmds, strings.TrimSpace(sub[1]))
	}
	for _, sub := range lineShellRe.FindAllStringSubmatch(body, -1) {
		cmds = append(cmds, strings.TrimSpace(sub[1]))
	}
	return cmds
}

// Placeholders returns the positional placeholder indexes referenced by a
// body, plus whether $ARGUMENTS appears.
func Placeholders(body string) (positions []int, hasArguments bool) {
	for _, sub := range placeholderRe.FindAllStringSubmatch(body, -1) {
		if sub[1] == "ARGUMENTS" {
			hasArguments = true
			continue
		}
		n, _ := strconv.Atoi(sub[1])
		positions = append(positions, n)
	}
	return positions, hasArguments
}
