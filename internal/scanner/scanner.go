// Package scanner abstracts the external security tools a job runs.
// The orchestration core only sees the Scanner interface, so tests can
// plug in fakes and production can choose between a local process and a
// sandboxed container.
package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/raysh454/scanhub/internal/model"
)

// Request is one invocation of a scanner.
type Request struct {
	JobID  string
	Target string
	Mode   model.ScanMode
}

// ExecutionResult is what a finished (or timed out) process left behind.
type ExecutionResult struct {
	Success   bool          `json:"success"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	ExitCode  int           `json:"exitCode"`
	Truncated bool          `json:"truncated"`
	Duration  time.Duration `json:"duration"`
}

// Scanner runs one external tool.
//
// Execute returns a non-nil result whenever the process was started, even
// alongside an error. When ctx ends first the error wraps ctx.Err().
// A non-zero exit is not an error: it is a result with Success=false.
type Scanner interface {
	Name() string
	ReportTypes() []string
	Execute(ctx context.Context, req Request) (*ExecutionResult, error)
}

// Set maps job types to the scanner that handles them.
type Set struct {
	byType map[model.JobType]Scanner
}

func NewSet() *Set {
	return &Set{byType: make(map[model.JobType]Scanner)}
}

// Register binds s to jobType, replacing any previous binding.
func (s *Set) Register(jobType model.JobType, sc Scanner) {
	s.byType[jobType] = sc
}

// For returns the scanner for jobType.
func (s *Set) For(jobType model.JobType) (Scanner, error) {
	sc, ok := s.byType[jobType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrNoScanner, jobType)
	}
	return sc, nil
}
