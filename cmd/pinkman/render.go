package pinkman

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/pinkman-dev/pinkman/pkg/models"
)

func renderReport(w io.Writer, r *models.RunReport) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)

	_, _ = bold.Fprintf(w, "RUN %s (%s)\n", r.RunID, r.State)
	_, _ = dim.Fprintln(w, "  "+strings.Repeat("━", 50))

	for _, stage := range r.Stages {
		icon := stageIcon(stage.Status)
		fmt.Fprintf(w, "  %s %-14s %s", icon, stage.Stage, stage.Status)
		if stage.Detail != "" {
			_, _ = dim.Fprintf(w, "  %s", stage.Detail)
		}
		fmt.Fprintln(w)
		if stage.Error != "" {
			_, _ = color.New(color.FgRed).Fprintf(w, "      %s\n", stage.Error)
		}
	}
	fmt.Fprintln(w)

	if r.Analysis != nil {
		_, _ = bold.Fprintln(w, "ANALYSIS")
		fmt.Fprintln(w, r.Analysis.Summary)
		fmt.Fprintf(w, "  Overall risk: ")
		_, _ = riskColor(r.Analysis.OverallRisk).Fprintln(w, string(r.Analysis.OverallRisk))
		for _, area := range r.Analysis.RiskAreas {
			_, _ = riskColor(area.Level).Fprintf(w, "  [%s] ", area.Level)
			fmt.Fprintf(w, "%s: %s\n", area.FilePath, area.Description)
		}
		fmt.Fprintln(w)
	}

	if r.Requirements != nil && len(r.Requirements.Scenarios) > 0 {
		_, _ = bold.Fprintln(w, "SCENARIOS")
		for _, s := range r.Requirements.Scenarios {
			fmt.Fprintf(w, "  - %s\n", s.Name)
		}
		for _, gap := range r.Requirements.Gaps {
			_, _ = color.New(color.FgYellow).Fprintf(w, "  Gap: %s\n", gap)
		}
		fmt.Fprintln(w)
	}

	if r.Generation != nil {
		_, _ = bold.Fprintln(w, "GENERATED TESTS")
		for _, t := range r.Generation.Tests {
			fmt.Fprintf(w, "  %s (%s)\n", t.TargetPath, t.Role)
		}
		for _, t := range r.Generation.Dropped {
			_, _ = dim.Fprintf(w, "  %s dropped after %d rounds\n", t.TargetPath, r.Generation.Rounds)
		}
		fmt.Fprintln(w)
	}

	if r.Execution != nil {
		_, _ = bold.Fprintln(w, "EXECUTION")
		for _, ar := range r.Execution.Results {
			label := ar.Action.Path
			if ar.Action.Kind == models.ActionCommit {
				label = fmt.Sprintf("commit %q", ar.Action.Message)
			}
			switch {
			case ar.Error != "":
				_, _ = color.New(color.FgRed).Fprintf(w, "  ✗ %s: %s\n", label, ar.Error)
			case ar.DryRun:
				_, _ = dim.Fprintf(w, "  ~ %s (dry run)\n", label)
			default:
				fmt.Fprintf(w, "  ✓ %s\n", label)
			}
		}
		fmt.Fprintln(w)
	}

	if r.Coverage != nil && len(r.Coverage.Suggestions) > 0 {
		_, _ = bold.Fprintln(w, "COVERAGE")
		for _, s := range r.Coverage.Suggestions {
			loc := s.FilePath
			if s.Line > 0 {
				loc = fmt.Sprintf("%s:%d", s.FilePath, s.Line)
			}
			fmt.Fprintf(w, "  %s", loc)
			_, _ = dim.Fprintf(w, "  %s\n", s.Reason)
		}
		fmt.Fprintln(w)
	}

	if r.Insights != nil && len(r.Insights.Patterns) > 0 {
		renderInsights(w, r.Insights)
	}

	_, _ = dim.Fprintf(w, "  %d model calls, %d in / %d out tokens, %d retries\n",
		r.Usage.Calls, r.Usage.InputTokens, r.Usage.OutputTokens, r.Usage.Retries)
}

func renderFixSession(w io.Writer, session *models.AutoFixResult, dryRun bool) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)

	if session.Diagnosis == nil {
		fmt.Fprintln(w, "No diagnosis produced.")
		return
	}
	d := session.Diagnosis

	header := strings.ToUpper(string(d.Category))
	if d.FilePath != "" {
		loc := d.FilePath
		if d.LineNumber > 0 {
			loc = fmt.Sprintf("%s:%d", d.FilePath, d.LineNumber)
		}
		header = fmt.Sprintf("%s in %s", header, loc)
	}
	_, _ = bold.Fprintln(w, header)
	_, _ = dim.Fprintln(w, "  "+strings.Repeat("━", 50))
	printConfidenceBar(w, d.Confidence)
	fmt.Fprintln(w)

	_, _ = bold.Fprintln(w, "ROOT CAUSE")
	fmt.Fprintln(w, d.RootCause)
	fmt.Fprintln(w)

	_, _ = bold.Fprintln(w, "FIX")
	fmt.Fprintln(w, d.Remediation)
	fmt.Fprintln(w)

	switch session.Verdict {
	case models.VerdictNotApplicable:
		_, _ = color.New(color.FgYellow).Fprintln(w, "Not auto-fixable; no changes made.")
	case models.VerdictExhausted:
		_, _ = color.New(color.FgRed).Fprintln(w, "Attempt budget exhausted without a confirmed fix.")
	default:
		if dryRun {
			_, _ = dim.Fprintln(w, "Dry run: no files were written.")
		}
		fmt.Fprintf(w, "Applied attempt %d of the budget. Re-run CI to confirm.\n", len(session.Attempts))
	}
}

func renderInsights(w io.Writer, insights *models.LearningInsights) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)

	_, _ = bold.Fprintln(w, "LEARNED")
	for _, stats := range insights.Stats {
		fmt.Fprintf(w, "  %-22s %d total, %.0f%% accepted\n",
			stats.Category, stats.Total, stats.AcceptanceRate()*100)
	}
	for _, p := range insights.Patterns {
		fmt.Fprintf(w, "  - %s\n", p)
	}
	_, _ = dim.Fprintf(w, "  from %d feedback entries\n", insights.SampleCount)
	fmt.Fprintln(w)
}

func printConfidenceBar(w io.Writer, confidence int) {
	const barWidth = 24
	filled := confidence * barWidth / 100
	if filled > barWidth {
		filled = barWidth
	}

	var barColor *color.Color
	switch {
	case confidence >= 80:
		barColor = color.New(color.FgGreen)
	case confidence >= 40:
		barColor = color.New(color.FgYellow)
	default:
		barColor = color.New(color.FgRed)
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	fmt.Fprintf(w, "  Confidence: %d%% ", confidence)
	_, _ = barColor.Fprint(w, bar)
	fmt.Fprintln(w)
}

func stageIcon(status models.StageStatus) string {
	switch status {
	case models.StageSucceeded:
		return color.GreenString("✓")
	case models.StageDegraded:
		return color.YellowString("~")
	case models.StageFailed:
		return color.RedString("✗")
	default:
		return "-"
	}
}

func riskColor(level models.RiskLevel) *color.Color {
	switch level {
	case models.RiskCritical, models.RiskHigh:
		return color.New(color.FgRed)
	case models.RiskMedium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgGreen)
	}
}
