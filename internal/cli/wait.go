package cli

import (
	"context"
	"time"

	"github.com/raysh454/scanhub/internal/model"
)

// jobGetter is the part of the API client waitForJob needs.
type jobGetter interface {
	Job(ctx context.Context, id string) (*model.JobSummary, error)
}

// waitForJob polls id until it reaches a terminal state or ctx ends.
func waitForJob(ctx context.Context, c jobGetter, id string, interval time.Duration) (*model.JobSummary, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.Job(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.State.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}
