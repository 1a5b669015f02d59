package plugin

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"
)

// LockFileName is written beside the plugins directory in each workspace
// root.
const LockFileName = "plugins.lock.json"

// LockEntry records one installed plugin.
type LockEntry struct {
	Name        string    `json:"name"` // "org/repo"
	Repo        string    `json:"repo"` // GitHub repository, same as Name
	Ref         string    `json:"ref,omitempty"`
	Commit      string    `json:"commit,omitempty"`
	InstalledAt time.Time `json:"installed_at"`
}

// LockFile is the serialized plugins.lock.json.
type LockFile struct {
	Plugins []LockEntry `json:"plugins"`
}

// lockFilePath resolves the lockfile location for a workspace root.
func lockFilePath(root string) string {
	return filepath.Join(root, LockFileName)
}

// ReadLockFile reads the lockfile under root. A missing file yields an
// empty lockfile.
func ReadLockFile(root string) (*LockFile, error) {
	data, err := lockedfile.Read(lockFilePath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return &LockFile{}, nil
		}
		return nil, errors.Wrap(err, "failed to read plugin lockfile")
	}

	var lf LockFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, errors.Wrap(err, "failed to parse plugin lockfile")
	}
	return &lf, nil
}

// writeLockFile writes the lockfile atomically under an advisory lock so
// concurrent installs cannot interleave.
func writeLockFile(root string, lf *LockFile) error {
	sort.Slice(lf.Plugins, func(i, j int) bool { return lf.Plugins[i].Name < lf.Plugins[j].Name })

	data, err := json.MarshalIndent(lf, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal plugin lockfile")
	}
	data = append(data, '\n')

	if err := os.MkdirAll(root, 0o755); err != nil {
		return errors.Wrap(err, "failed to create workspace root")
	}
	if err := lockedfile.Write(lockFilePath(root), bytes.NewReader(data), 0o644); err != nil {
		return errors.Wrap(err, "failed to write plugin lockfile")
	}
	return nil
}

// recordInstall upserts a lock entry for the plugin.
func recordInstall(root string, entry LockEntry) error {
	lf, err := ReadLockFile(root)
	if err != nil {
		return err
	}

	replaced := false
	for i := range lf.Plugins {
		if lf.Plugins[i].Name == entry.Name {
			lf.Plugins[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		lf.Plugins = append(lf.Plugins, entry)
	}

	return writeLockFile(root, lf)
}

// recordRemoval drops the lock entry for the plugin, if present.
func recordRemoval(root, name string) error {
	lf, err := ReadLockFile(root)
	if err != nil {
		return err
	}

	kept := lf.Plugins[:0]
	for _, e := range lf.Plugins {
		if e.Name != name {
			kept = append(kept, e)
		}
	}
	lf.Plugins = kept

	return writeLockFile(root, lf)
}
