package models

// RiskLevel grades how dangerous a change is
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskArea is one concern the analyzer flagged in the diff
type RiskArea struct {
	FilePath    string    `json:"file_path"`
	Description string    `json:"description"`
	Level       RiskLevel `json:"level"`
}

// CodeAnalysis is the analyzer's structured assessment of a PR diff
type CodeAnalysis struct {
	Summary       string     `json:"summary"`
	OverallRisk   RiskLevel  `json:"overall_risk"`
	RiskAreas     []RiskArea `json:"risk_areas"`
	TestingFocus  []string   `json:"testing_focus"`
	ChangedFiles  []string   `json:"changed_files"`
	QualityIssues []string   `json:"quality_issues,omitempty"`
}

// Scenario is one testable behavior derived from requirements
type Scenario struct {
	Name           string   `json:"name"`
	Given          string   `json:"given,omitempty"`
	When           string   `json:"when"`
	Then           string   `json:"then"`
	AcceptanceRefs []string `json:"acceptance_refs,omitempty"`
}

// RequirementsAnalysis maps natural-language requirements to scenarios,
// coverage gaps, and risks
type RequirementsAnalysis struct {
	Scenarios []Scenario `json:"scenarios"`
	Gaps      []string   `json:"gaps,omitempty"`
	Risks     []string   `json:"risks,omitempty"`
}

// DependencyChange describes one manifest-level dependency delta in the diff
type DependencyChange struct {
	Name       string `json:"name"`
	Manifest   string `json:"manifest"`
	OldVersion string `json:"old_version,omitempty"`
	NewVersion string `json:"new_version,omitempty"`
	Added      bool   `json:"added,omitempty"`
	Removed    bool   `json:"removed,omitempty"`
}

// DependencyAnalysis is the dependency analyzer's risk assessment
type DependencyAnalysis struct {
	Changes     []DependencyChange `json:"changes"`
	OverallRisk RiskLevel          `json:"overall_risk"`
	Concerns    []string           `json:"concerns,omitempty"`
}
