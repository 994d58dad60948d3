package executor

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// applyUnified applies a single-file unified diff to content. Context and
// deletion lines must match the current file exactly; any drift fails the
// patch rather than guessing.
func applyUnified(content, patch string) (string, error) {
	fd, err := diff.ParseFileDiff([]byte(patch))
	if err != nil {
		return "", fmt.Errorf("parse unified diff: %w", err)
	}
	if len(fd.Hunks) == 0 {
		return "", fmt.Errorf("diff contains no hunks")
	}

	lines := strings.Split(content, "\n")
	var out []string
	cursor := 0

	for _, hunk := range fd.Hunks {
		start := int(hunk.OrigStartLine) - 1
		if hunk.OrigLines == 0 {
			// pure insertion; the start line is the anchor before the insert
			start = int(hunk.OrigStartLine)
		}
		if start < cursor || start > len(lines) {
			return "", fmt.Errorf("hunk at line %d is out of range", hunk.OrigStartLine)
		}
		out = append(out, lines[cursor:start]...)
		cursor = start

		for _, hl := range hunkLines(hunk.Body) {
			op, text := byte(' '), ""
			if len(hl) > 0 {
				op, text = hl[0], hl[1:]
			}
			switch op {
			case ' ':
				if cursor >= len(lines) || lines[cursor] != text {
					return "", contextMismatch(cursor, text, lines)
				}
				out = append(out, lines[cursor])
				cursor++
			case '-':
				if cursor >= len(lines) || lines[cursor] != text {
					return "", contextMismatch(cursor, text, lines)
				}
				cursor++
			case '+':
				out = append(out, text)
			case '\\':
				// "\ No newline at end of file"
			default:
				return "", fmt.Errorf("unexpected hunk line %q", hl)
			}
		}
	}

	out = append(out, lines[cursor:]...)
	return strings.Join(out, "\n"), nil
}

func hunkLines(body []byte) []string {
	return strings.Split(strings.TrimSuffix(string(body), "\n"), "\n")
}

func contextMismatch(cursor int, want string, lines []string) error {
	got := "<eof>"
	if cursor < len(lines) {
		got = lines[cursor]
	}
	return fmt.Errorf("context mismatch at line %d: want %q, have %q", cursor+1, want, got)
}
