// Package status combines queue introspection and report freshness into the
// single snapshot that clients poll. Nothing is cached between calls.
package status

import (
	"context"
	"fmt"
	"time"

	"github.com/raysh454/scanhub/internal/logging"
	"github.com/raysh454/scanhub/internal/model"
	"github.com/raysh454/scanhub/internal/queue"
)

// QueueInspector is the slice of the queue gateway the aggregator reads.
type QueueInspector interface {
	Status(ctx context.Context) (*queue.QueueStatus, error)
}

// ReportLister lists report artifacts as they currently are on disk.
type ReportLister interface {
	List(ctx context.Context) ([]model.ReportArtifact, error)
}

// Snapshot is everything a polling client needs in one response. Each
// report's LastModified is the client's freshness watermark.
type Snapshot struct {
	GeneratedAt   time.Time              `json:"generatedAt"`
	Available     bool                   `json:"available"`
	Connection    queue.ConnState        `json:"connection"`
	Counts        model.StateCounts      `json:"counts"`
	Queue         []model.JobSummary     `json:"queue"`
	History       []model.JobSummary     `json:"history"`
	MetricsByType []model.TypeMetrics    `json:"metricsByType"`
	Reports       []model.ReportArtifact `json:"reports"`
}

// Aggregator builds snapshots.
type Aggregator struct {
	queue   QueueInspector
	reports ReportLister
	logger  logging.Logger
	now     func() time.Time
}

func NewAggregator(q QueueInspector, reports ReportLister, logger logging.Logger) *Aggregator {
	return &Aggregator{
		queue:   q,
		reports: reports,
		logger:  logger.With(logging.Field{Key: "component", Value: "status"}),
		now:     time.Now,
	}
}

// Snapshot reads the queue and the report directory. An unavailable queue is
// part of the answer; only a cancelled ctx or a failed directory listing is
// an error.
func (a *Aggregator) Snapshot(ctx context.Context) (*Snapshot, error) {
	qs, err := a.queue.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue status: %w", err)
	}
	artifacts, err := a.reports.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	if !qs.Available {
		a.logger.Debug("snapshot served while queue unavailable",
			logging.Field{Key: "since", Value: qs.Connection.Since})
	}
	return &Snapshot{
		GeneratedAt:   a.now().UTC(),
		Available:     qs.Available,
		Connection:    qs.Connection,
		Counts:        qs.Counts,
		Queue:         qs.Queue,
		History:       qs.History,
		MetricsByType: qs.MetricsByType,
		Reports:       artifacts,
	}, nil
}
