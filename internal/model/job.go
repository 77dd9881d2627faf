package model

import (
	"fmt"
	"time"
)

// JobType selects which family of scanner runs a job.
type JobType string

const (
	JobTypeSAST JobType = "sast"
	JobTypeDAST JobType = "dast"
)

// JobTypes lists every supported job type in a stable order.
var JobTypes = []JobType{JobTypeSAST, JobTypeDAST}

func (t JobType) Valid() bool {
	return t == JobTypeSAST || t == JobTypeDAST
}

// ScanMode is the depth of a dynamic scan. Static scans ignore it.
type ScanMode string

const (
	ScanModeSimple ScanMode = "simple"
	ScanModeFull   ScanMode = "full"
)

func (m ScanMode) Valid() bool {
	return m == ScanModeSimple || m == ScanModeFull
}

// JobState is a position in the job lifecycle:
//
//	waiting|delayed -> active -> completed|failed
type JobState string

const (
	JobWaiting   JobState = "waiting"
	JobDelayed   JobState = "delayed"
	JobActive    JobState = "active"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// JobStates lists every state in lifecycle order.
var JobStates = []JobState{JobWaiting, JobDelayed, JobActive, JobCompleted, JobFailed}

// Terminal reports whether no further transition is possible.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Started reports whether a worker has picked the job up.
func (s JobState) Started() bool {
	return s == JobActive || s.Terminal()
}

// Job is one unit of scan work.
type Job struct {
	ID           string     `json:"id" db:"id"`
	Type         JobType    `json:"type" db:"type"`
	Target       string     `json:"target,omitempty" db:"target"`
	ScanMode     ScanMode   `json:"scanType,omitempty" db:"scan_mode"`
	OwnerID      string     `json:"ownerId" db:"owner_id"`
	State        JobState   `json:"state" db:"state"`
	CreatedAt    time.Time  `json:"createdAt" db:"-"`
	RunAt        *time.Time `json:"runAt,omitempty" db:"-"`
	StartedAt    *time.Time `json:"startedAt,omitempty" db:"-"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty" db:"-"`
	FailedReason string     `json:"failedReason,omitempty" db:"failed_reason"`
	ExitCode     *int       `json:"exitCode,omitempty" db:"-"`
}

// Validate checks the timestamp invariants tied to State.
func (j *Job) Validate() error {
	if j.State.Started() != (j.StartedAt != nil) {
		return fmt.Errorf("job %s: startedAt presence does not match state %q", j.ID, j.State)
	}
	if j.State.Terminal() != (j.FinishedAt != nil) {
		return fmt.Errorf("job %s: finishedAt presence does not match state %q", j.ID, j.State)
	}
	return nil
}

// Duration is the wall time between start and finish, zero until terminal.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(*j.StartedAt)
}

// Summary projects a Job into its client-facing shape.
func (j *Job) Summary() JobSummary {
	return JobSummary{
		ID:           j.ID,
		Type:         j.Type,
		ScanType:     j.ScanMode,
		Target:       j.Target,
		State:        j.State,
		CreatedAt:    j.CreatedAt,
		StartedAt:    j.StartedAt,
		FinishedAt:   j.FinishedAt,
		FailedReason: j.FailedReason,
	}
}

// JobSummary is the polled view of a job.
type JobSummary struct {
	ID           string     `json:"id"`
	Type         JobType    `json:"type"`
	ScanType     ScanMode   `json:"scanType"`
	Target       string     `json:"target"`
	State        JobState   `json:"state"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt"`
	FailedReason string     `json:"failedReason"`
}

// StateCounts holds the number of jobs per state.
type StateCounts struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Delayed   int `json:"delayed"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Add increments the counter for state by n.
func (c *StateCounts) Add(state JobState, n int) {
	switch state {
	case JobWaiting:
		c.Waiting += n
	case JobActive:
		c.Active += n
	case JobDelayed:
		c.Delayed += n
	case JobCompleted:
		c.Completed += n
	case JobFailed:
		c.Failed += n
	}
}

// Total is the sum over all states.
func (c StateCounts) Total() int {
	return c.Waiting + c.Active + c.Delayed + c.Completed + c.Failed
}

// TypeMetrics aggregates retained jobs of a single type.
type TypeMetrics struct {
	Type           JobType     `json:"type"`
	Total          int         `json:"total"`
	Counts         StateCounts `json:"counts"`
	AvgDurationMs  int64       `json:"avgDurationMs"`
	LastFinishedAt *time.Time  `json:"lastFinishedAt,omitempty"`
}

// Outcome is what a worker reports when a job reaches a terminal state.
type Outcome struct {
	State    JobState
	Reason   string
	ExitCode *int
}
