// Package queue accepts scan requests into durable storage and exposes the
// introspection the status endpoints poll. Backend connectivity is lazy and
// degrading: after a failure the gateway answers "unavailable" from memory
// until an operator (or the optional health probe) resets it.
package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/scanhub/internal/database"
	"github.com/raysh454/scanhub/internal/logging"
	"github.com/raysh454/scanhub/internal/model"
)

// Config controls the gateway and its backend.
type Config struct {
	Database database.Config `yaml:"database"`

	// RetainTerminal bounds how many completed/failed jobs are kept.
	RetainTerminal int `yaml:"retain_terminal"`

	// HistoryLimit bounds the history list returned by Status.
	HistoryLimit int `yaml:"history_limit"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// HealthProbeInterval enables a background reset while unavailable. 0 disables it.
	HealthProbeInterval time.Duration `yaml:"health_probe_interval"`

	// InstanceID tags the jobs this process claims. It must be stable
	// across restarts of the same instance; it defaults to the hostname.
	InstanceID string `yaml:"instance_id"`

	// LeaseTTL is how long a claimed job stays ours without a renewal.
	LeaseTTL time.Duration `yaml:"lease_ttl"`
}

const (
	reasonInterrupted  = "interrupted: worker stopped before the job finished"
	reasonLeaseExpired = "interrupted: worker lease expired"
)

func DefaultConfig() Config {
	return Config{
		Database:       database.DefaultConfig(),
		RetainTerminal: 200,
		HistoryLimit:   50,
		ConnectTimeout: 5 * time.Second,
		LeaseTTL:       2 * time.Minute,
	}
}

func defaultInstanceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return uuid.NewString()
}

// Connector opens a backend. It is called lazily and again on Reset.
type Connector func(ctx context.Context) (Backend, error)

// SQLConnector returns a Connector for the configured database.
func SQLConnector(cfg database.Config, logger logging.Logger) Connector {
	return func(ctx context.Context) (Backend, error) {
		return OpenSQLBackend(ctx, cfg, logger)
	}
}

// QueueStatus is the introspection view of the queue.
type QueueStatus struct {
	Available     bool                `json:"available"`
	Connection    ConnState           `json:"connection"`
	Counts        model.StateCounts   `json:"counts"`
	Queue         []model.JobSummary  `json:"queue"`
	History       []model.JobSummary  `json:"history"`
	MetricsByType []model.TypeMetrics `json:"metricsByType"`
}

// Gateway fronts a Backend with cached connection state.
type Gateway struct {
	cfg       Config
	connect   Connector
	validator *RequestValidator
	logger    logging.Logger
	now       func() time.Time

	// connectMu serialises connection attempts so a burst of callers
	// produces one dial, not one each.
	connectMu sync.Mutex

	mu      sync.RWMutex
	state   ConnState
	backend Backend
}

func NewGateway(cfg Config, connect Connector, logger logging.Logger) (*Gateway, error) {
	if connect == nil {
		return nil, errors.New("queue: connector is nil")
	}
	if cfg.RetainTerminal <= 0 {
		cfg.RetainTerminal = 200
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 2 * time.Minute
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = defaultInstanceID()
	}
	g := &Gateway{
		cfg:       cfg,
		connect:   connect,
		validator: NewRequestValidator(),
		logger:    logger.With(logging.Field{Key: "component", Value: "queue"}),
		now:       time.Now,
	}
	g.state = newConnState(g.now())
	return g, nil
}

// InstanceID is the holder name written on every job this gateway claims.
func (g *Gateway) InstanceID() string { return g.cfg.InstanceID }

// LeaseTTL is how long a claim survives without renewal.
func (g *Gateway) LeaseTTL() time.Duration { return g.cfg.LeaseTTL }

func (g *Gateway) lease() Lease {
	return Lease{Holder: g.cfg.InstanceID, Until: g.now().UTC().Add(g.cfg.LeaseTTL)}
}

// State returns the current connection state without touching the backend.
func (g *Gateway) State() ConnState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// acquire returns the live backend, connecting once if never tried.
func (g *Gateway) acquire(ctx context.Context) (Backend, error) {
	g.mu.RLock()
	st, b := g.state, g.backend
	g.mu.RUnlock()

	switch st.Phase {
	case PhaseConnected:
		return b, nil
	case PhaseUnavailable:
		return nil, model.ErrQueueUnavailable
	}

	g.connectMu.Lock()
	defer g.connectMu.Unlock()

	// Another caller may have finished connecting while we waited.
	g.mu.RLock()
	st, b = g.state, g.backend
	g.mu.RUnlock()
	switch st.Phase {
	case PhaseConnected:
		return b, nil
	case PhaseUnavailable:
		return nil, model.ErrQueueUnavailable
	}
	return g.dial(ctx)
}

// dial opens a backend and records the resulting state. connectMu must be held.
func (g *Gateway) dial(ctx context.Context) (Backend, error) {
	dialCtx, cancel := context.WithTimeout(ctx, g.cfg.ConnectTimeout)
	defer cancel()

	b, err := g.connect(dialCtx)
	if err == nil {
		if err = b.Ping(dialCtx); err != nil {
			b.Close()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.state = g.state.unavailable(g.now(), err)
		g.backend = nil
		g.logger.Error("queue backend unavailable", logging.Err(err))
		return nil, fmt.Errorf("%w: %v", model.ErrQueueUnavailable, err)
	}
	g.backend = b
	g.state = g.state.connected(g.now())
	g.logger.Info("queue backend connected")
	return b, nil
}

// fail classifies a backend error. Domain errors and caller cancellation
// pass through; anything else marks the gateway unavailable.
func (g *Gateway) fail(ctx context.Context, b Backend, err error) error {
	if errors.Is(err, model.ErrJobNotFound) || errors.Is(err, model.ErrJobNotActive) || ctx.Err() != nil {
		return err
	}

	g.mu.Lock()
	if g.backend == b && g.state.Phase == PhaseConnected {
		g.state = g.state.unavailable(g.now(), err)
		g.backend = nil
		g.mu.Unlock()
		g.logger.Error("queue backend failed, marking unavailable", logging.Err(err))
		if cerr := b.Close(); cerr != nil {
			g.logger.Warn("closing failed backend", logging.Err(cerr))
		}
	} else {
		g.mu.Unlock()
	}
	return fmt.Errorf("%w: %v", model.ErrQueueUnavailable, err)
}

// Enqueue validates req and stores a new job. When the backend is known to
// be down it fails immediately without creating anything.
func (g *Gateway) Enqueue(ctx context.Context, req EnqueueRequest) (*model.Job, error) {
	req, err := g.validator.Validate(req)
	if err != nil {
		return nil, err
	}
	b, err := g.acquire(ctx)
	if err != nil {
		return nil, err
	}

	now := g.now().UTC()
	job := &model.Job{
		ID:        uuid.NewString(),
		Type:      req.Type,
		Target:    req.Target,
		ScanMode:  req.ScanType,
		OwnerID:   req.OwnerID,
		State:     model.JobWaiting,
		CreatedAt: now,
	}
	if req.Delay > 0 {
		runAt := now.Add(req.Delay)
		job.State = model.JobDelayed
		job.RunAt = &runAt
	}
	if err := b.Add(ctx, job); err != nil {
		return nil, g.fail(ctx, b, err)
	}

	g.logger.Info("job enqueued",
		logging.Field{Key: "job_id", Value: job.ID},
		logging.Field{Key: "type", Value: job.Type},
		logging.Field{Key: "state", Value: job.State},
		logging.Field{Key: "owner_id", Value: job.OwnerID})
	return job, nil
}

// Status reports counts, in-flight jobs, recent history and per-type
// metrics. An unreachable backend is reported in the result, not as an error.
func (g *Gateway) Status(ctx context.Context) (*QueueStatus, error) {
	b, err := g.acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return g.unavailableStatus(), nil
	}

	st := &QueueStatus{Available: true}
	if st.Counts, err = b.Counts(ctx); err != nil {
		return g.statusAfter(ctx, b, err)
	}
	inFlight, err := b.List(ctx, ListOptions{
		States: []model.JobState{model.JobActive, model.JobWaiting, model.JobDelayed},
	})
	if err != nil {
		return g.statusAfter(ctx, b, err)
	}
	history, err := b.List(ctx, ListOptions{
		States:              []model.JobState{model.JobCompleted, model.JobFailed},
		NewestFinishedFirst: true,
		Limit:               g.cfg.HistoryLimit,
	})
	if err != nil {
		return g.statusAfter(ctx, b, err)
	}
	if st.MetricsByType, err = b.Metrics(ctx); err != nil {
		return g.statusAfter(ctx, b, err)
	}

	st.Queue = summaries(inFlight)
	st.History = summaries(history)
	st.Connection = g.State()
	return st, nil
}

func (g *Gateway) statusAfter(ctx context.Context, b Backend, err error) (*QueueStatus, error) {
	if ferr := g.fail(ctx, b, err); !errors.Is(ferr, model.ErrQueueUnavailable) {
		return nil, ferr
	}
	return g.unavailableStatus(), nil
}

func (g *Gateway) unavailableStatus() *QueueStatus {
	metrics := make([]model.TypeMetrics, len(model.JobTypes))
	for i, t := range model.JobTypes {
		metrics[i] = model.TypeMetrics{Type: t}
	}
	return &QueueStatus{
		Available:     false,
		Connection:    g.State(),
		Queue:         []model.JobSummary{},
		History:       []model.JobSummary{},
		MetricsByType: metrics,
	}
}

func summaries(jobs []model.Job) []model.JobSummary {
	out := make([]model.JobSummary, len(jobs))
	for i := range jobs {
		out[i] = jobs[i].Summary()
	}
	return out
}

// Job looks up a single job.
func (g *Gateway) Job(ctx context.Context, id string) (*model.Job, error) {
	b, err := g.acquire(ctx)
	if err != nil {
		return nil, err
	}
	job, err := b.Get(ctx, id)
	if err != nil {
		return nil, g.fail(ctx, b, err)
	}
	return job, nil
}

// Claim hands the oldest due job to a worker, or nil when none is due.
func (g *Gateway) Claim(ctx context.Context) (*model.Job, error) {
	b, err := g.acquire(ctx)
	if err != nil {
		return nil, err
	}
	job, err := b.Claim(ctx, g.now().UTC(), g.lease())
	if err != nil {
		return nil, g.fail(ctx, b, err)
	}
	if job != nil {
		g.logger.Debug("job claimed", logging.Field{Key: "job_id", Value: job.ID})
	}
	return job, nil
}

// Finish records the terminal outcome, then trims history past RetainTerminal.
func (g *Gateway) Finish(ctx context.Context, id string, outcome model.Outcome) (*model.Job, error) {
	b, err := g.acquire(ctx)
	if err != nil {
		return nil, err
	}
	job, err := b.Finish(ctx, id, outcome, g.now().UTC())
	if err != nil {
		return nil, g.fail(ctx, b, err)
	}

	if n, err := b.Prune(ctx, g.cfg.RetainTerminal); err != nil {
		g.logger.Warn("pruning job history failed", logging.Err(err))
	} else if n > 0 {
		g.logger.Debug("pruned job history", logging.Field{Key: "removed", Value: n})
	}
	return job, nil
}

// Renew pushes the lease on an active job we hold one LeaseTTL forward.
// It returns ErrJobNotActive once the job is finished or taken from us.
func (g *Gateway) Renew(ctx context.Context, id string) error {
	b, err := g.acquire(ctx)
	if err != nil {
		return err
	}
	if err := b.Renew(ctx, id, g.lease()); err != nil {
		return g.fail(ctx, b, err)
	}
	return nil
}

// RecoverInterrupted fails active jobs this instance claimed in a previous
// run, plus any whose lease has lapsed. Jobs leased by other live
// instances are left alone. It is meant for startup, before any worker
// claims.
func (g *Gateway) RecoverInterrupted(ctx context.Context) (int, error) {
	return g.failInterrupted(ctx, g.cfg.InstanceID, reasonInterrupted)
}

// ReapExpired fails active jobs whose holder stopped renewing its lease.
func (g *Gateway) ReapExpired(ctx context.Context) (int, error) {
	return g.failInterrupted(ctx, "", reasonLeaseExpired)
}

func (g *Gateway) failInterrupted(ctx context.Context, holder, reason string) (int, error) {
	b, err := g.acquire(ctx)
	if err != nil {
		return 0, err
	}
	n, err := b.FailInterrupted(ctx, holder, g.now().UTC(), reason)
	if err != nil {
		return 0, g.fail(ctx, b, err)
	}
	if n > 0 {
		g.logger.Info("failed interrupted jobs",
			logging.Field{Key: "count", Value: n},
			logging.Field{Key: "reason", Value: reason})
	}
	return int(n), nil
}

// StartLeaseReaper runs ReapExpired every interval while connected. It
// returns when ctx is done. A non-positive interval disables it.
func (g *Gateway) StartLeaseReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if g.State().Phase != PhaseConnected {
					continue
				}
				if _, err := g.ReapExpired(ctx); err != nil && ctx.Err() == nil {
					g.logger.Warn("lease reaper pass failed", logging.Err(err))
				}
			}
		}
	}()
}

// Reset drops the cached state and connects again. It is the only way out
// of the unavailable phase.
func (g *Gateway) Reset(ctx context.Context) (ConnState, error) {
	g.connectMu.Lock()
	defer g.connectMu.Unlock()

	g.mu.Lock()
	old := g.backend
	g.backend = nil
	g.mu.Unlock()
	if old != nil {
		if err := old.Close(); err != nil {
			g.logger.Warn("closing previous backend", logging.Err(err))
		}
	}

	g.logger.Info("queue connection reset requested")
	_, err := g.dial(ctx)
	return g.State(), err
}

// StartHealthProbe resets the connection every interval while unavailable.
// It returns when ctx is done. A non-positive interval disables it.
func (g *Gateway) StartHealthProbe(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if g.State().Phase != PhaseUnavailable {
					continue
				}
				if _, err := g.Reset(ctx); err == nil {
					g.logger.Info("health probe restored queue connection")
				}
			}
		}
	}()
}

// Close releases the backend.
func (g *Gateway) Close() error {
	g.connectMu.Lock()
	defer g.connectMu.Unlock()
	g.mu.Lock()
	b := g.backend
	g.backend = nil
	g.state = newConnState(g.now())
	g.mu.Unlock()
	if b == nil {
		return nil
	}
	return b.Close()
}
