package models

// CoverageFormat identifies a recognized coverage report format
type CoverageFormat string

const (
	FormatLCOV           CoverageFormat = "lcov"
	FormatCobertura      CoverageFormat = "cobertura"
	FormatIstanbul       CoverageFormat = "istanbul"
	FormatGoCoverProfile CoverageFormat = "gocover"
)

// FileCoverage holds per-file coverage percentages. Percentages are always in
// [0,100]; files missing from the report are absent, never zero-filled.
type FileCoverage struct {
	Path           string  `json:"path"`
	LinePercent    float64 `json:"line_percent"`
	BranchPercent  float64 `json:"branch_percent,omitempty"`
	UncoveredLines []int   `json:"uncovered_lines,omitempty"`
}

// CoverageReport is the parsed representation of a coverage artifact
type CoverageReport struct {
	Format CoverageFormat          `json:"format"`
	Files  map[string]FileCoverage `json:"files"`
}

// CoverageSuggestion points at an under-tested area, ranked by risk
type CoverageSuggestion struct {
	FilePath    string  `json:"file_path"`
	Line        int     `json:"line,omitempty"`
	LinePercent float64 `json:"line_percent"`
	Touched     bool    `json:"touched"` // file was changed by the PR
	Reason      string  `json:"reason"`
}

// CoverageAnalysis is the coverage analyzer's output for a run
type CoverageAnalysis struct {
	Report      *CoverageReport      `json:"report,omitempty"`
	Suggestions []CoverageSuggestion `json:"suggestions"`
}
