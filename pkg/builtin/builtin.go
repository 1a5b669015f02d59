// Package builtin carries the embedded starter corpus that
// `promptpack init` scaffolds into a fresh workspace root.
package builtin

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

//go:embed corpus
var corpusFS embed.FS

const corpusRoot = "corpus"

// Scaffold writes the starter corpus under root and returns the created
// file paths. Existing files are left alone unless force is set; hitting
// one without force aborts before anything is written.
func Scaffold(root string, force bool) ([]string, error) {
	if !force {
		if err := checkConflicts(root); err != nil {
			return nil, err
		}
	}

	var written []string
	err := fs.WalkDir(corpusFS, corpusRoot, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(corpusRoot, path)
		if err != nil {
			return err
		}

		data, err := corpusFS.ReadFile(path)
		if err != nil {
			return err
		}

		target := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return err
		}

		written = append(written, target)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to scaffold workspace")
	}

	return written, nil
}

func checkConflicts(root string) error {
	return fs.WalkDir(corpusFS, corpusRoot, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}

		rel, err := filepath.Rel(corpusRoot, path)
		if err != nil {
			return err
		}

		target := filepath.Join(root, rel)
		if _, err := os.Stat(target); err == nil {
			return errors.Errorf("'%s' already exists (use --force to overwrite)", target)
		}
		return nil
	})
}
