package output

import (
	"fmt"
	"strings"

	"github.com/rybkagreen/pagetune/internal/analyzer"
)

// ScoreBar renders a visual bar for a 0-100 score.
// Example: "████████░░░░░░░░░░░░ 40/100"
func ScoreBar(score, width int) string {
	if width <= 0 {
		width = 20
	}
	filled := score * width / 100
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	var style func(string) string
	switch {
	case score >= 70:
		style = func(s string) string { return StyleSuccess.Render(s) }
	case score >= 40:
		style = func(s string) string { return StyleWarning.Render(s) }
	default:
		style = func(s string) string { return StyleError.Render(s) }
	}

	return fmt.Sprintf("%s %s", style(bar), StyleMuted.Render(fmt.Sprintf("%d/100", score)))
}

// SeverityBadge renders an issue severity with its color.
func SeverityBadge(sev analyzer.Severity) string {
	label := strings.ToUpper(sev.String())
	switch sev {
	case analyzer.SeverityCritical:
		return StyleError.Render(label)
	case analyzer.SeverityWarning:
		return StyleWarning.Render(label)
	default:
		return StyleMuted.Render(label)
	}
}

// Section prints a styled section header with a horizontal rule.
func Section(title string) string {
	header := StyleHeader.Render(title)
	rule := StyleMuted.Render(strings.Repeat("─", 66))
	return fmt.Sprintf("\n %s\n %s", header, rule)
}

// RenderReport formats an analysis report: composite score, per-analyzer
// sub-scores and the issue table, worst first.
func RenderReport(report *analyzer.Report) string {
	var sb strings.Builder

	sb.WriteString(Section("Score"))
	sb.WriteString("\n ")
	sb.WriteString(ScoreBar(report.Score, 20))
	sb.WriteString("\n")

	for _, name := range []string{"structural", "social", "performance"} {
		sub, ok := report.SubReports[name]
		if !ok {
			continue
		}
		sb.WriteString(fmt.Sprintf(" %-12s %s\n", name, ScoreBar(sub.Score, 20)))
	}

	if len(report.Issues) == 0 {
		sb.WriteString("\n ")
		sb.WriteString(StyleSuccess.Render("No issues found"))
		sb.WriteString("\n")
		return sb.String()
	}

	sb.WriteString(Section(fmt.Sprintf("Issues (%d)", len(report.Issues))))
	sb.WriteString("\n")

	tbl := NewTable("SEVERITY", "KIND", "LOCATION", "MESSAGE")
	for _, is := range report.Issues {
		tbl.AddRow(SeverityBadge(is.Severity), string(is.Kind), is.Location, is.Message)
	}
	sb.WriteString(tbl.Render())
	return sb.String()
}

// RenderImprovement summarizes a finished run in one line.
func RenderImprovement(initial, final, cycles int) string {
	delta := final - initial
	arrow := StyleMuted.Render("─")
	if delta > 0 {
		arrow = StyleSuccess.Render(fmt.Sprintf("▲ +%d", delta))
	} else if delta < 0 {
		arrow = StyleError.Render(fmt.Sprintf("▼ %d", delta))
	}
	return fmt.Sprintf(" %d → %d  %s  (%d cycles)", initial, final, arrow, cycles)
}
