// Package worker claims queued jobs, runs the matching scanner and, on
// success, refreshes report freshness and extracts alerts.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/raysh454/scanhub/internal/alerts"
	"github.com/raysh454/scanhub/internal/logging"
	"github.com/raysh454/scanhub/internal/model"
	"github.com/raysh454/scanhub/internal/scanner"
)

// Config controls the claim loop.
type Config struct {
	// Concurrency is the number of scanner processes allowed at once.
	Concurrency int `yaml:"concurrency"`

	// PollInterval is the wait between claims when the queue is idle or down.
	PollInterval time.Duration `yaml:"poll_interval"`

	// Timeout is the wall-clock limit for one scanner run.
	Timeout time.Duration `yaml:"timeout"`

	// StderrTail is how many trailing bytes of stderr go into a failure reason.
	StderrTail int `yaml:"stderr_tail"`

	// Heartbeat is how often a running job's lease is renewed. It must be
	// well under the queue's lease TTL.
	Heartbeat time.Duration `yaml:"heartbeat"`

	// FinishRetry bounds how long an outcome is retried while the queue
	// is unreachable.
	FinishRetry time.Duration `yaml:"finish_retry"`
}

func DefaultConfig() Config {
	return Config{
		Concurrency:  1,
		PollInterval: time.Second,
		Timeout:      600 * time.Second,
		StderrTail:   512,
		Heartbeat:    30 * time.Second,
		FinishRetry:  30 * time.Minute,
	}
}

const (
	finishBackoffMin = 100 * time.Millisecond
	finishBackoffMax = 5 * time.Second
)

// JobSource hands out jobs, keeps their leases alive and records their
// outcome.
type JobSource interface {
	Claim(ctx context.Context) (*model.Job, error)
	Renew(ctx context.Context, id string) error
	Finish(ctx context.Context, id string, outcome model.Outcome) (*model.Job, error)
}

// ReportRefresher keeps report artifacts fresh around a run.
type ReportRefresher interface {
	Snapshot(reportType string) error
	Touch(reportType string) error
}

// AlertExtractor turns a fresh artifact into alerts.
type AlertExtractor interface {
	Extract(ctx context.Context, reportType string, pctx alerts.Context) (*alerts.ExtractResult, error)
}

// Worker runs jobs from a JobSource with bounded concurrency.
type Worker struct {
	cfg       Config
	source    JobSource
	scanners  *scanner.Set
	reports   ReportRefresher
	extractor AlertExtractor
	logger    logging.Logger

	// abort cancels in-flight scanner runs; Run's own ctx only stops claiming.
	abortCtx context.Context
	abort    context.CancelFunc
}

// New builds a Worker. reports and extractor may be nil, in which case the
// matching downstream step is skipped.
func New(cfg Config, source JobSource, scanners *scanner.Set, reports ReportRefresher, extractor AlertExtractor, logger logging.Logger) *Worker {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.StderrTail <= 0 {
		cfg.StderrTail = def.StderrTail
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = def.Heartbeat
	}
	if cfg.FinishRetry <= 0 {
		cfg.FinishRetry = def.FinishRetry
	}
	abortCtx, abort := context.WithCancel(context.Background())
	return &Worker{
		cfg:       cfg,
		source:    source,
		scanners:  scanners,
		reports:   reports,
		extractor: extractor,
		logger:    logger.With(logging.Field{Key: "component", Value: "worker"}),
		abortCtx:  abortCtx,
		abort:     abort,
	}
}

// Abort cancels scanner runs still in flight. Their jobs fail as aborted.
func (w *Worker) Abort() {
	w.abort()
}

// Run claims and processes jobs until ctx is done, then waits for in-flight
// jobs to finish. An unavailable queue is retried every PollInterval.
func (w *Worker) Run(ctx context.Context) error {
	sem := make(chan struct{}, w.cfg.Concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	w.logger.Info("worker started",
		logging.Field{Key: "concurrency", Value: w.cfg.Concurrency},
		logging.Field{Key: "timeout", Value: w.cfg.Timeout.String()})

	claimFailing := false
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping, waiting for in-flight jobs")
			return nil
		case sem <- struct{}{}:
		}

		job, err := w.source.Claim(ctx)
		if err != nil || job == nil {
			<-sem
			if err != nil && ctx.Err() == nil {
				if !claimFailing {
					w.logger.Warn("claim failed, backing off", logging.Err(err))
				}
				claimFailing = true
			} else if err == nil && claimFailing {
				w.logger.Info("claiming recovered")
				claimFailing = false
			}
			select {
			case <-ctx.Done():
				w.logger.Info("worker stopping, waiting for in-flight jobs")
				return nil
			case <-time.After(w.cfg.PollInterval):
			}
			continue
		}
		claimFailing = false

		wg.Add(1)
		go func(job *model.Job) {
			defer wg.Done()
			defer func() { <-sem }()
			w.process(job)
		}(job)
	}
}

// Execute runs the scanner for job under the hard timeout. A run cut short
// by that timeout returns model.ErrExecutionTimeout.
func (w *Worker) Execute(ctx context.Context, job *model.Job) (*scanner.ExecutionResult, error) {
	sc, err := w.scanners.For(job.Type)
	if err != nil {
		return &scanner.ExecutionResult{ExitCode: -1}, err
	}
	return w.execute(ctx, sc, job)
}

func (w *Worker) execute(ctx context.Context, sc scanner.Scanner, job *model.Job) (*scanner.ExecutionResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	res, err := sc.Execute(runCtx, scanner.Request{JobID: job.ID, Target: job.Target, Mode: job.ScanMode})
	if res == nil {
		res = &scanner.ExecutionResult{ExitCode: -1}
	}
	// Only our own deadline is a timeout; a cancelled parent is a shutdown.
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("%w after %s", model.ErrExecutionTimeout, w.cfg.Timeout)
	}
	return res, err
}

// process takes one claimed job to a terminal state. The terminal update
// always lands before report refresh and extraction, whose failures are
// only logged.
func (w *Worker) process(job *model.Job) {
	logger := w.logger.With(
		logging.Field{Key: "job_id", Value: job.ID},
		logging.Field{Key: "type", Value: job.Type})
	finished := false
	stopHeartbeat := w.heartbeat(logger, job.ID)
	defer stopHeartbeat()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing job",
				logging.Field{Key: "panic", Value: fmt.Sprint(r)},
				logging.Field{Key: "stack", Value: string(debug.Stack())})
			if !finished {
				w.finish(logger, job.ID, model.Outcome{State: model.JobFailed, Reason: fmt.Sprintf("panic: %v", r)})
			}
		}
	}()

	sc, err := w.scanners.For(job.Type)
	if err != nil {
		finished = true
		w.finish(logger, job.ID, model.Outcome{State: model.JobFailed, Reason: err.Error()})
		return
	}

	if w.reports != nil {
		for _, rt := range sc.ReportTypes() {
			if err := w.reports.Snapshot(rt); err != nil {
				logger.Warn("could not snapshot previous report", logging.Field{Key: "report_type", Value: rt}, logging.Err(err))
			}
		}
	}

	logger.Info("job started", logging.Field{Key: "scanner", Value: sc.Name()}, logging.Field{Key: "target", Value: job.Target})
	res, runErr := w.execute(w.abortCtx, sc, job)
	outcome := w.outcome(res, runErr)
	finished = true
	w.finish(logger, job.ID, outcome)
	stopHeartbeat()
	if outcome.State != model.JobCompleted {
		return
	}

	downstream, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	for _, rt := range sc.ReportTypes() {
		if w.reports != nil {
			if err := w.reports.Touch(rt); err != nil {
				logger.Warn("report refresh failed", logging.Field{Key: "report_type", Value: rt}, logging.Err(err))
				continue
			}
		}
		if w.extractor == nil {
			continue
		}
		if _, err := w.extractor.Extract(downstream, rt, alerts.Context{
			OwnerID: job.OwnerID,
			JobID:   job.ID,
			Target:  job.Target,
		}); err != nil {
			logger.Error("alert extraction failed", logging.Field{Key: "report_type", Value: rt}, logging.Err(err))
		}
	}
}

// outcome maps a scanner result to the job's terminal state.
func (w *Worker) outcome(res *scanner.ExecutionResult, err error) model.Outcome {
	code := res.ExitCode
	switch {
	case errors.Is(err, model.ErrExecutionTimeout):
		return model.Outcome{State: model.JobFailed, Reason: err.Error(), ExitCode: &code}
	case errors.Is(err, context.Canceled):
		return model.Outcome{State: model.JobFailed, Reason: "aborted: worker shutting down", ExitCode: &code}
	case err != nil:
		return model.Outcome{State: model.JobFailed, Reason: err.Error(), ExitCode: &code}
	case !res.Success || res.ExitCode != 0:
		reason := fmt.Sprintf("exit status %d", res.ExitCode)
		if tail := tail(res.Stderr, w.cfg.StderrTail); tail != "" {
			reason += ": " + tail
		}
		return model.Outcome{State: model.JobFailed, Reason: reason, ExitCode: &code}
	default:
		return model.Outcome{State: model.JobCompleted, ExitCode: &code}
	}
}

// heartbeat renews the job's lease every Heartbeat until the returned func
// is called. A lease the queue no longer recognises ends the loop.
func (w *Worker) heartbeat(logger logging.Logger, id string) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(w.cfg.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			renewCtx, renewCancel := context.WithTimeout(ctx, 10*time.Second)
			err := w.source.Renew(renewCtx, id)
			renewCancel()
			switch {
			case err == nil:
			case errors.Is(err, model.ErrJobNotActive), errors.Is(err, model.ErrJobNotFound):
				logger.Warn("job lease lost", logging.Err(err))
				return
			case ctx.Err() == nil:
				logger.Debug("lease renewal failed", logging.Err(err))
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

// finish records the outcome, backing off while the queue is unreachable.
// Each attempt gets its own deadline so a shutdown in progress does not
// cut it short. It gives up after FinishRetry, or on Abort once at least
// one attempt has been made; lease recovery fails whatever is left active.
func (w *Worker) finish(logger logging.Logger, id string, outcome model.Outcome) {
	giveUp := time.Now().Add(w.cfg.FinishRetry)
	delay := finishBackoffMin
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := w.source.Finish(ctx, id, outcome)
		cancel()

		switch {
		case err == nil:
			if attempt > 1 {
				logger.Info("job outcome recorded after retry", logging.Field{Key: "attempts", Value: attempt})
			}
			if outcome.State == model.JobCompleted {
				logger.Info("job completed")
			} else {
				logger.Warn("job failed", logging.Field{Key: "reason", Value: outcome.Reason})
			}
			return
		case errors.Is(err, model.ErrJobNotActive), errors.Is(err, model.ErrJobNotFound):
			logger.Warn("job outcome dropped, job is no longer ours",
				logging.Field{Key: "state", Value: outcome.State},
				logging.Err(err))
			return
		}

		if attempt == 1 {
			logger.Warn("could not record job outcome, retrying",
				logging.Field{Key: "state", Value: outcome.State},
				logging.Err(err))
		}
		if time.Now().Add(delay).After(giveUp) {
			logger.Error("giving up on recording job outcome",
				logging.Field{Key: "state", Value: outcome.State},
				logging.Field{Key: "attempts", Value: attempt},
				logging.Err(err))
			return
		}
		select {
		case <-w.abortCtx.Done():
			logger.Error("worker aborted before job outcome was recorded",
				logging.Field{Key: "state", Value: outcome.State},
				logging.Field{Key: "attempts", Value: attempt},
				logging.Err(err))
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, finishBackoffMax)
	}
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + strings.TrimSpace(s[len(s)-n:])
}
