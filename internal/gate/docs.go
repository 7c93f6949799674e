package gate

import (
	"os"
	"path/filepath"

	"github.com/lucasnoah/greenlight/internal/classify"
)

// readmeNames are accepted in place of an explicit doc-file list.
var readmeNames = []string{"README.md", "README.rst", "README"}

// minDocBytes is the threshold below which a doc file counts as empty.
const minDocBytes = 64

// CheckDocs verifies documentation completeness: every required doc file
// exists and is non-trivial. With no explicit list, any README variant
// satisfies the check.
func CheckDocs(dir string, required []string) []Issue {
	if len(required) == 0 {
		for _, name := range readmeNames {
			if docPresent(filepath.Join(dir, name)) {
				return nil
			}
		}
		return []Issue{{
			Category: classify.DocMissing,
			Check:    "docs",
			File:     "README.md",
			Message:  "no README found (or README is effectively empty)",
			Severity: "error",
		}}
	}

	var issues []Issue
	for _, name := range required {
		if docPresent(filepath.Join(dir, name)) {
			continue
		}
		issues = append(issues, Issue{
			Category: classify.DocMissing,
			Check:    "docs",
			File:     name,
			Message:  "required documentation file missing or empty",
			Severity: "error",
		})
	}
	return issues
}

func docPresent(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() >= minDocBytes
}
