// Package diffparse turns a unified PR diff into the structured change set
// the analyzers consume.
package diffparse

import (
	"fmt"
	"path"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// manifestNames are dependency manifests the dependency analyzer cares about
var manifestNames = map[string]bool{
	"package.json":      true,
	"package-lock.json": true,
	"yarn.lock":         true,
	"pnpm-lock.yaml":    true,
	"go.mod":            true,
	"go.sum":            true,
	"requirements.txt":  true,
	"Pipfile":           true,
	"pyproject.toml":    true,
	"Gemfile":           true,
	"Gemfile.lock":      true,
	"pom.xml":           true,
	"build.gradle":      true,
	"Cargo.toml":        true,
	"Cargo.lock":        true,
}

// ChangedFile is one file touched by the diff
type ChangedFile struct {
	Path       string
	OldPath    string
	Added      bool
	Deleted    bool
	AddedLines []int // line numbers in the new file
	HunkCount  int
	IsManifest bool
}

// DiffSet is the parsed change set for one PR
type DiffSet struct {
	Files []ChangedFile
}

// Parse reads a unified (multi-file) diff
func Parse(diffText string) (*DiffSet, error) {
	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(diffText)).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to parse diff: %w", err)
	}

	set := &DiffSet{Files: make([]ChangedFile, 0, len(fileDiffs))}
	for _, fd := range fileDiffs {
		oldPath := stripPrefix(fd.OrigName)
		newPath := stripPrefix(fd.NewName)

		cf := ChangedFile{
			Path:      newPath,
			OldPath:   oldPath,
			Added:     oldPath == "/dev/null",
			Deleted:   newPath == "/dev/null",
			HunkCount: len(fd.Hunks),
		}
		if cf.Deleted {
			cf.Path = oldPath
		}
		cf.IsManifest = manifestNames[path.Base(cf.Path)]
		cf.AddedLines = addedLines(fd)

		set.Files = append(set.Files, cf)
	}
	return set, nil
}

// ChangedPaths lists the paths of all non-deleted files in the diff
func (s *DiffSet) ChangedPaths() []string {
	paths := make([]string, 0, len(s.Files))
	for _, f := range s.Files {
		if f.Deleted {
			continue
		}
		paths = append(paths, f.Path)
	}
	return paths
}

// ManifestFiles returns the dependency manifests touched by the diff
func (s *DiffSet) ManifestFiles() []ChangedFile {
	var out []ChangedFile
	for _, f := range s.Files {
		if f.IsManifest {
			out = append(out, f)
		}
	}
	return out
}

// FileFor returns the change entry for a path, or nil
func (s *DiffSet) FileFor(path string) *ChangedFile {
	for i := range s.Files {
		if s.Files[i].Path == path {
			return &s.Files[i]
		}
	}
	return nil
}

// addedLines walks hunk bodies and records new-file line numbers of additions
func addedLines(fd *diff.FileDiff) []int {
	var lines []int
	for _, hunk := range fd.Hunks {
		newLine := int(hunk.NewStartLine)
		for _, raw := range strings.Split(string(hunk.Body), "\n") {
			if raw == "" {
				continue
			}
			switch raw[0] {
			case '+':
				lines = append(lines, newLine)
				newLine++
			case '-':
				// old-side only
			default:
				newLine++
			}
		}
	}
	return lines
}

// stripPrefix drops the conventional a/ and b/ diff prefixes
func stripPrefix(name string) string {
	if name == "/dev/null" {
		return name
	}
	if strings.HasPrefix(name, "a/") || strings.HasPrefix(name, "b/") {
		return name[2:]
	}
	return name
}
