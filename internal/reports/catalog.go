package reports

import (
	"github.com/raysh454/scanhub/internal/model"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypeHTML = "text/html; charset=utf-8"
)

// ReportType describes one artifact a scanner writes into the reports dir.
type ReportType struct {
	Type        string `yaml:"type"`
	Name        string `yaml:"name"`
	File        string `yaml:"file"`
	ContentType string `yaml:"content_type"`
	Tool        string `yaml:"tool"`
}

// IsJSON reports whether the artifact is JSON and eligible for recovery.
func (rt ReportType) IsJSON() bool {
	return rt.ContentType == ContentTypeJSON
}

// DefaultCatalog is the set of known report types.
func DefaultCatalog() []ReportType {
	return []ReportType{
		{
			Type:        string(model.JobTypeSAST),
			Name:        "Static analysis (Semgrep)",
			File:        "sast-report.json",
			ContentType: ContentTypeJSON,
			Tool:        "semgrep",
		},
		{
			Type:        string(model.JobTypeDAST),
			Name:        "Dynamic analysis (ZAP)",
			File:        "dast-report.html",
			ContentType: ContentTypeHTML,
			Tool:        "zap",
		},
	}
}
