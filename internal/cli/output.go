package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/raysh454/scanhub/internal/model"
)

// Theme holds the colors used for states and severities.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Warn    lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Warn:    lipgloss.Color("#FFAF00"), // amber
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) state(s model.JobState) string {
	style := lipgloss.NewStyle()
	switch s {
	case model.JobCompleted:
		style = style.Foreground(t.Success).Bold(true)
	case model.JobFailed:
		style = style.Foreground(t.Error).Bold(true)
	case model.JobActive:
		style = style.Foreground(t.Status)
	default:
		style = style.Foreground(t.Hint)
	}
	return style.Render(fmt.Sprintf("%-10s", s))
}

func (t Theme) severity(s model.Severity) string {
	style := lipgloss.NewStyle()
	switch s {
	case model.SeverityHigh:
		style = style.Foreground(t.Error).Bold(true)
	case model.SeverityMedium:
		style = style.Foreground(t.Warn)
	default:
		style = style.Foreground(t.Hint)
	}
	return style.Render(fmt.Sprintf("%-7s", s))
}

func (t Theme) hint(s string) string {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true).Render(s)
}

func (t Theme) errorText(s string) string {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true).Render(s)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printJobs(w io.Writer, jobs []model.JobSummary) {
	fmt.Fprintf(w, "%-10s %-6s %-10s %-20s %s\n", "ID", "TYPE", "STATE", "CREATED", "TARGET")
	fmt.Fprintln(w, "------------------------------------------------------------------------")
	for _, j := range jobs {
		created := j.CreatedAt
		fmt.Fprintf(w, "%-10s %-6s %s %-20s %s\n", shortID(j.ID), j.Type, defaultTheme.state(j.State), formatTime(&created), j.Target)
	}
}

func printJob(w io.Writer, j *model.JobSummary) {
	fmt.Fprintf(w, "Job: %s\n", j.ID)
	fmt.Fprintf(w, "  Type: %s\n", j.Type)
	if j.ScanType != "" {
		fmt.Fprintf(w, "  Scan type: %s\n", j.ScanType)
	}
	if j.Target != "" {
		fmt.Fprintf(w, "  Target: %s\n", j.Target)
	}
	fmt.Fprintf(w, "  State: %s\n", defaultTheme.state(j.State))
	created := j.CreatedAt
	fmt.Fprintf(w, "  Created: %s\n", formatTime(&created))
	fmt.Fprintf(w, "  Started: %s\n", formatTime(j.StartedAt))
	fmt.Fprintf(w, "  Finished: %s\n", formatTime(j.FinishedAt))
	if j.FailedReason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", defaultTheme.errorText(j.FailedReason))
	}
}

func printCounts(w io.Writer, c model.StateCounts) {
	fmt.Fprintf(w, "waiting %d  delayed %d  active %d  completed %d  failed %d\n",
		c.Waiting, c.Delayed, c.Active, c.Completed, c.Failed)
}

func printReports(w io.Writer, arts []model.ReportArtifact) {
	fmt.Fprintf(w, "%-6s %-22s %-8s %-20s %s\n", "TYPE", "FILE", "EXISTS", "MODIFIED", "SIZE")
	fmt.Fprintln(w, "------------------------------------------------------------------------")
	for _, a := range arts {
		size := "-"
		if a.Size != nil {
			size = fmt.Sprintf("%d", *a.Size)
		}
		fmt.Fprintf(w, "%-6s %-22s %-8t %-20s %s\n", a.Type, a.File, a.Exists, formatTime(a.LastModified), size)
	}
}

func printAlerts(w io.Writer, alerts []model.Alert) {
	if len(alerts) == 0 {
		fmt.Fprintln(w, "No alerts found")
		return
	}
	fmt.Fprintf(w, "%-10s %-7s %-9s %-8s %s\n", "ID", "SEV", "STATUS", "TOOL", "TITLE")
	fmt.Fprintln(w, "------------------------------------------------------------------------")
	for _, a := range alerts {
		fmt.Fprintf(w, "%-10s %s %-9s %-8s %s\n", shortID(a.ID), defaultTheme.severity(a.Severity), a.Status, a.SourceTool, a.Title)
		if a.Location != "" {
			fmt.Fprintf(w, "%-10s %s\n", "", defaultTheme.hint(a.Location))
		}
	}
}
