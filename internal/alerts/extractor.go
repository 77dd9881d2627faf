package alerts

import (
	"context"
	"fmt"

	"github.com/raysh454/scanhub/internal/database"
	"github.com/raysh454/scanhub/internal/logging"
	"github.com/raysh454/scanhub/internal/model"
)

// Config controls extraction and alert storage.
type Config struct {
	Database database.Config `yaml:"database"`

	// Dedupe skips an alert when the owner already has one with the same
	// tool, title and location. Repeated scans duplicate findings when off.
	Dedupe bool `yaml:"dedupe"`
}

// ReportReader is the slice of the report store the extractor needs.
type ReportReader interface {
	Read(ctx context.Context, reportType string) ([]byte, string, error)
}

// AlertSink is where extracted alerts go.
type AlertSink interface {
	Create(ctx context.Context, a *model.Alert) error
	Exists(ctx context.Context, ownerID, tool, title, location string) (bool, error)
}

// ExtractResult counts what happened to the parsed alerts.
type ExtractResult struct {
	Parsed  int `json:"parsed"`
	Stored  int `json:"stored"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Extractor reads a report, parses it with the matching parser and stores
// each alert on its own.
type Extractor struct {
	reports ReportReader
	parsers *Registry
	sink    AlertSink
	dedupe  bool
	logger  logging.Logger
}

func NewExtractor(reports ReportReader, parsers *Registry, sink AlertSink, cfg Config, logger logging.Logger) *Extractor {
	if parsers == nil {
		parsers = DefaultRegistry()
	}
	return &Extractor{
		reports: reports,
		parsers: parsers,
		sink:    sink,
		dedupe:  cfg.Dedupe,
		logger:  logger.With(logging.Field{Key: "component", Value: "alerts"}),
	}
}

// Extract turns the current artifact of reportType into stored alerts.
// A failed insert is logged and counted; the remaining alerts still go in.
func (e *Extractor) Extract(ctx context.Context, reportType string, pctx Context) (*ExtractResult, error) {
	data, contentType, err := e.reports.Read(ctx, reportType)
	if err != nil {
		return nil, fmt.Errorf("read %s report: %w", reportType, err)
	}
	parser, err := e.parsers.For(contentType)
	if err != nil {
		return nil, err
	}
	found, err := parser.Parse(data, pctx)
	if err != nil {
		return nil, fmt.Errorf("parse %s report: %w", reportType, err)
	}

	res := &ExtractResult{Parsed: len(found)}
	for i := range found {
		a := &found[i]
		if a.OwnerID == "" {
			a.OwnerID = pctx.OwnerID
		}
		if a.JobID == "" {
			a.JobID = pctx.JobID
		}

		if e.dedupe {
			exists, err := e.sink.Exists(ctx, a.OwnerID, a.SourceTool, a.Title, a.Location)
			if err != nil {
				e.logger.Warn("dedupe lookup failed, storing alert anyway",
					logging.Field{Key: "title", Value: a.Title}, logging.Err(err))
			} else if exists {
				res.Skipped++
				continue
			}
		}

		if err := e.sink.Create(ctx, a); err != nil {
			res.Failed++
			e.logger.Error("failed to store alert",
				logging.Field{Key: "job_id", Value: pctx.JobID},
				logging.Field{Key: "title", Value: a.Title},
				logging.Err(err))
			continue
		}
		res.Stored++
	}

	e.logger.Info("alerts extracted",
		logging.Field{Key: "report_type", Value: reportType},
		logging.Field{Key: "job_id", Value: pctx.JobID},
		logging.Field{Key: "parsed", Value: res.Parsed},
		logging.Field{Key: "stored", Value: res.Stored},
		logging.Field{Key: "skipped", Value: res.Skipped},
		logging.Field{Key: "failed", Value: res.Failed})
	return res, nil
}
