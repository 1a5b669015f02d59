// Package version exposes build-time version metadata for the promptpack
// binary. The variables are overridden with -ldflags at release time.
package version

import (
	"encoding/json"
	"fmt"
)

var (
	// Version is the semantic version of this build, "dev" when built
	// from a working tree.
	Version = "dev"

	// GitCommit is the git commit SHA the binary was built from.
	GitCommit = "unknown"
)

// Info represents version information
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
}

// Get returns the version information
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
	}
}

// String returns the string representation of version info
func (i Info) String() string {
	return fmt.Sprintf("Version: %s, GitCommit: %s", i.Version, i.GitCommit)
}

// Short returns just the version number
func (i Info) Short() string {
	return i.Version
}

// JSON returns the JSON representation of version info
func (i Info) JSON() (string, error) {
	bytes, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
