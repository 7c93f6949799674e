package ecosystem

import (
	"fmt"
	"os"
	"path/filepath"
)

// Kind identifies a project ecosystem. Detected once per orchestration and
// immutable afterwards.
type Kind string

const (
	Go      Kind = "go"
	Node    Kind = "node"
	Python  Kind = "python"
	Rust    Kind = "rust"
	Unknown Kind = "unknown"
)

// markerFiles maps ecosystems to the files whose presence identifies them.
// Order matters: a repo with both go.mod and package.json (docs site in a Go
// repo) is treated as Go.
var markerFiles = []struct {
	kind    Kind
	markers []string
}{
	{Go, []string{"go.mod"}},
	{Rust, []string{"Cargo.toml"}},
	{Node, []string{"package.json"}},
	{Python, []string{"pyproject.toml", "setup.py", "requirements.txt"}},
}

// Detect determines the ecosystem of the project rooted at dir.
func Detect(dir string) (Kind, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return Unknown, fmt.Errorf("stat project dir: %w", err)
	}
	if !info.IsDir() {
		return Unknown, fmt.Errorf("%s is not a directory", dir)
	}

	for _, entry := range markerFiles {
		for _, marker := range entry.markers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return entry.kind, nil
			}
		}
	}
	return Unknown, nil
}
