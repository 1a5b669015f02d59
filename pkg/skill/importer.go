package skill

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"

	"github.com/jingkaihe/promptpack/pkg/frontmatter"
	"github.com/jingkaihe/promptpack/pkg/logger"
)

const importedSkillVersion = "0.1.0"

var (
	titleRe   = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	headingRe = regexp.MustCompile(`(?m)^#\s+(.+)$`)
)

// Importer writes new skills into a workspace root, either converted from
// a web page or copied out of a GitHub repository.
type Importer struct {
	targetDir  string // the skills/ directory skills are written into
	force      bool
	httpClient *http.Client
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithTargetDir overrides the skills directory skills are written into.
func WithTargetDir(dir string) ImporterOption {
	return func(i *Importer) {
		i.targetDir = dir
	}
}

// WithGlobal writes into the user-global root instead of the repo-local
// one.
func WithGlobal(global bool) ImporterOption {
	return func(i *Importer) {
		if global {
			if homeDir, err := os.UserHomeDir(); err == nil {
				i.targetDir = filepath.Join(homeDir, promptpackDir, skillsSubdir)
			}
		}
	}
}

// WithForce overwrites an existing skill directory.
func WithForce(force bool) ImporterOption {
	return func(i *Importer) {
		i.force = force
	}
}

// WithHTTPClient overrides the HTTP client used for URL imports.
func WithHTTPClient(client *http.Client) ImporterOption {
	return func(i *Importer) {
		i.httpClient = client
	}
}

// NewImporter creates an importer targeting the repo-local root by
// default.
func NewImporter(opts ...ImporterOption) *Importer {
	i := &Importer{
		targetDir:  filepath.Join(promptpackDir, skillsSubdir),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ImportURL fetches a web page, converts it to Markdown, and writes it as
// skills/<name>/SKILL.md with generated frontmatter. The description is
// taken from the document title.
func (i *Importer) ImportURL(ctx context.Context, url, name string) (*Skill, error) {
	if name == "" {
		return nil, errors.New("skill name is required")
	}

	skillDir := filepath.Join(i.targetDir, name)
	if err := i.checkExisting(skillDir); err != nil {
		return nil, err
	}

	body, err := i.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to convert page to markdown")
	}

	description := documentTitle(body, markdown)
	if description == "" {
		description = "Imported from " + url
	}

	meta := Metadata{
		Name:        name,
		Description: description,
		Version:     importedSkillVersion,
	}

	var buf strings.Builder
	buf.WriteString("# " + description + "\n\n")
	buf.WriteString("## Source\n\n")
	buf.WriteString(url + "\n\n")
	buf.WriteString(markdown)

	content, err := frontmatter.Compose(meta, buf.String())
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create skill directory")
	}
	if err := os.WriteFile(filepath.Join(skillDir, SkillFileName), content, 0o644); err != nil {
		return nil, errors.Wrap(err, "failed to write skill file")
	}

	logger.G(ctx).WithField("skill", name).WithField("url", url).Info("Imported skill from URL")

	return Load(skillDir, SourceProject)
}

func (i *Importer) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to build request")
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "failed to fetch '%s'", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("failed to fetch '%s': status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read response body")
	}

	return string(body), nil
}

// AddFromRepo clones a GitHub repository with the gh CLI and copies its
// skills/ content into the workspace. With onlySkill set, just that skill
// directory is copied. The repo may carry an "@ref" suffix.
func (i *Importer) AddFromRepo(ctx context.Context, repoRef string, onlySkill string) ([]string, error) {
	repo, ref := splitRepoRef(repoRef)
	if err := validateRepo(repo); err != nil {
		return nil, err
	}

	tempDir, err := cloneRepo(ctx, repo, ref)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tempDir)

	srcSkillsDir := filepath.Join(tempDir, skillsSubdir)
	entries, err := os.ReadDir(srcSkillsDir)
	if err != nil {
		return nil, errors.Errorf("repository '%s' has no skills/ directory", repo)
	}

	var installed []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if onlySkill != "" && entry.Name() != onlySkill {
			continue
		}

		src := filepath.Join(srcSkillsDir, entry.Name())
		if _, err := os.Stat(filepath.Join(src, SkillFileName)); err != nil {
			continue
		}

		dst := filepath.Join(i.targetDir, entry.Name())
		if err := i.checkExisting(dst); err != nil {
			return nil, err
		}
		if err := copyDir(src, dst); err != nil {
			return nil, errors.Wrapf(err, "failed to install skill '%s'", entry.Name())
		}
		installed = append(installed, entry.Name())
	}

	if len(installed) == 0 {
		if onlySkill != "" {
			return nil, errors.Errorf("skill '%s' not found in repository '%s'", onlySkill, repo)
		}
		return nil, errors.Errorf("no skills found in repository '%s'", repo)
	}

	return installed, nil
}

func (i *Importer) checkExisting(path string) error {
	if _, err := os.Stat(path); err == nil {
		if !i.force {
			return errors.Errorf("skill already exists at %s (use --force to overwrite)", path)
		}
		if err := os.RemoveAll(path); err != nil {
			return errors.Wrap(err, "failed to remove existing skill")
		}
	}
	return nil
}

// documentTitle prefers the HTML <title>, falling back to the first
// Markdown heading.
func documentTitle(html, markdown string) string {
	if m := titleRe.FindStringSubmatch(html); m != nil {
		if title := strings.TrimSpace(m[1]); title != "" {
			return title
		}
	}
	if m := headingRe.FindStringSubmatch(markdown); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func splitRepoRef(repoRef string) (repo, ref string) {
	if at := strings.LastIndex(repoRef, "@"); at > 0 {
		return repoRef[:at], repoRef[at+1:]
	}
	return repoRef, ""
}

func validateRepo(repo string) error {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return errors.Errorf("invalid repository format %q: expected 'owner/repo'", repo)
	}
	return nil
}

// cloneRepo shallow-clones via the gh CLI, retrying transient failures,
// and checks out ref when given.
func cloneRepo(ctx context.Context, repo, ref string) (string, error) {
	if _, err := exec.LookPath("gh"); err != nil {
		return "", errors.New("gh CLI is not installed; see https://cli.github.com")
	}

	tempDir, err := os.MkdirTemp("", "promptpack-skill-*")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temp directory")
	}

	err = retry.Do(
		func() error {
			cmd := exec.CommandContext(ctx, "gh", "repo", "clone", repo, tempDir)
			if output, err := cmd.CombinedOutput(); err != nil {
				os.RemoveAll(tempDir)
				if mkErr := os.MkdirAll(tempDir, 0o755); mkErr != nil {
					return retry.Unrecoverable(mkErr)
				}
				return errors.Wrapf(err, "failed to clone repository: %s", string(output))
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
	)
	if err != nil {
		os.RemoveAll(tempDir)
		return "", err
	}

	if ref != "" {
		cmd := exec.CommandContext(ctx, "git", "-C", tempDir, "checkout", ref)
		if output, err := cmd.CombinedOutput(); err != nil {
			os.RemoveAll(tempDir)
			return "", errors.Wrapf(err, "failed to checkout '%s': %s", ref, string(output))
		}
	}

	return tempDir, nil
}

func copyDir(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		destPath := filepath.Join(dst, relPath)
		if info.IsDir() {
			return os.MkdirAll(destPath, info.Mode())
		}
		return copyFile(path, destPath, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	return err
}
