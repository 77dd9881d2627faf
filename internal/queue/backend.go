package queue

import (
	"context"
	"time"

	"github.com/raysh454/scanhub/internal/model"
)

// Backend is durable job storage. Implementations must make Claim atomic:
// a waiting job is handed to at most one caller.
type Backend interface {
	Ping(ctx context.Context) error
	Add(ctx context.Context, job *model.Job) error

	// Claim promotes delayed jobs whose RunAt has passed, then moves the
	// oldest waiting job to active under lease. It returns nil, nil when
	// nothing is due.
	Claim(ctx context.Context, now time.Time, lease Lease) (*model.Job, error)

	// Renew extends the lease on an active job still held by lease.Holder.
	Renew(ctx context.Context, id string, lease Lease) error

	// Finish moves an active job to a terminal state.
	Finish(ctx context.Context, id string, outcome model.Outcome, now time.Time) (*model.Job, error)

	// FailInterrupted fails active jobs whose lease lapsed before now. A
	// non-empty holder also fails every active job that holder claimed.
	FailInterrupted(ctx context.Context, holder string, now time.Time, reason string) (int64, error)

	Get(ctx context.Context, id string) (*model.Job, error)
	Counts(ctx context.Context) (model.StateCounts, error)
	List(ctx context.Context, opts ListOptions) ([]model.Job, error)
	Metrics(ctx context.Context) ([]model.TypeMetrics, error)

	// Prune deletes terminal jobs beyond the newest retain and reports how many went.
	Prune(ctx context.Context, retain int) (int64, error)

	Close() error
}

// Lease names the instance running an active job and when its hold lapses
// unless renewed.
type Lease struct {
	Holder string
	Until  time.Time
}

// ListOptions filters and orders a job listing.
type ListOptions struct {
	States []model.JobState

	// NewestFinishedFirst orders by finish time descending; otherwise jobs
	// come oldest created first.
	NewestFinishedFirst bool

	Limit int
}
