package alerts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/raysh454/scanhub/internal/model"
)

// SemgrepParser reads `semgrep --json` output.
type SemgrepParser struct{}

var _ ReportParser = (*SemgrepParser)(nil)

type semgrepReport struct {
	Results []semgrepResult `json:"results"`
}

type semgrepResult struct {
	CheckID string `json:"check_id"`
	Path    string `json:"path"`
	Start   struct {
		Line int `json:"line"`
		Col  int `json:"col"`
	} `json:"start"`
	Extra struct {
		Message  string `json:"message"`
		Severity string `json:"severity"`
		Fix      string `json:"fix"`
		Metadata struct {
			References []string `json:"references"`
		} `json:"metadata"`
	} `json:"extra"`
}

func (p *SemgrepParser) Tool() string        { return "semgrep" }
func (p *SemgrepParser) ContentType() string { return "application/json" }

// Parse maps each result to one alert.
func (p *SemgrepParser) Parse(data []byte, pctx Context) ([]model.Alert, error) {
	var report semgrepReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("invalid semgrep json: %w", err)
	}

	out := make([]model.Alert, 0, len(report.Results))
	for _, r := range report.Results {
		location := r.Path
		if r.Start.Line > 0 {
			location = fmt.Sprintf("%s:%d", r.Path, r.Start.Line)
		}
		remediation := strings.TrimSpace(r.Extra.Fix)
		if remediation == "" && len(r.Extra.Metadata.References) > 0 {
			remediation = r.Extra.Metadata.References[0]
		}
		title := r.CheckID
		if title == "" {
			title = "semgrep finding"
		}
		out = append(out, model.Alert{
			JobID:       pctx.JobID,
			OwnerID:     pctx.OwnerID,
			Title:       title,
			Severity:    semgrepSeverity(r.Extra.Severity),
			SourceTool:  p.Tool(),
			Location:    location,
			Description: strings.TrimSpace(r.Extra.Message),
			Remediation: remediation,
		})
	}
	return out, nil
}

func semgrepSeverity(s string) model.Severity {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return model.SeverityHigh
	case "WARNING":
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}
