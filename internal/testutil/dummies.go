// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/raysh454/scanhub/internal/logging"
	"github.com/raysh454/scanhub/internal/scanner"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// ErrorCount returns how many Error lines were recorded.
func (l *DummyLogger) ErrorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Errors)
}

// WarnCount returns how many Warn lines were recorded.
func (l *DummyLogger) WarnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Warns)
}

// ─── Scanner ───────────────────────────────────────────────────────────

// FakeScanner implements scanner.Scanner without running anything.
// When ReportPath is set, a successful run writes ReportBody there, the way
// a real tool would leave its artifact behind.
type FakeScanner struct {
	ScannerName string
	Reports     []string

	ReportPath string
	ReportBody []byte

	ExitCode int
	Stdout   string
	Stderr   string
	Err      error

	// Delay simulates a long-running tool; ctx cancellation cuts it short.
	Delay time.Duration

	// Started, if set, receives the request as soon as Execute begins.
	Started chan scanner.Request

	mu    sync.Mutex
	Calls []scanner.Request
}

var _ scanner.Scanner = (*FakeScanner)(nil)

func (f *FakeScanner) Name() string {
	if f.ScannerName == "" {
		return "fake"
	}
	return f.ScannerName
}

func (f *FakeScanner) ReportTypes() []string { return f.Reports }

func (f *FakeScanner) Execute(ctx context.Context, req scanner.Request) (*scanner.ExecutionResult, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, req)
	f.mu.Unlock()
	if f.Started != nil {
		f.Started <- req
	}

	start := time.Now()
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return &scanner.ExecutionResult{ExitCode: -1, Duration: time.Since(start)}, ctx.Err()
		}
	}
	if f.Err != nil {
		return &scanner.ExecutionResult{ExitCode: -1, Stderr: f.Stderr, Duration: time.Since(start)}, f.Err
	}
	if f.ExitCode == 0 && f.ReportPath != "" {
		if err := os.MkdirAll(filepath.Dir(f.ReportPath), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(f.ReportPath, f.ReportBody, 0o644); err != nil {
			return nil, err
		}
	}
	return &scanner.ExecutionResult{
		Success:  f.ExitCode == 0,
		Stdout:   f.Stdout,
		Stderr:   f.Stderr,
		ExitCode: f.ExitCode,
		Duration: time.Since(start),
	}, nil
}

// CallCount returns how many times Execute ran.
func (f *FakeScanner) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

// ─── Runner ────────────────────────────────────────────────────────────

// StubRunner implements scanner.Runner by writing canned output.
type StubRunner struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error

	// Block makes Run wait for ctx to end, like a hung tool.
	Block bool

	mu    sync.Mutex
	Argvs [][]string
}

var _ scanner.Runner = (*StubRunner)(nil)

func (r *StubRunner) Run(ctx context.Context, argv []string, stdout, stderr io.Writer) (int, error) {
	r.mu.Lock()
	r.Argvs = append(r.Argvs, append([]string(nil), argv...))
	r.mu.Unlock()

	if r.Block {
		<-ctx.Done()
		return -1, ctx.Err()
	}
	if r.Err != nil {
		return -1, r.Err
	}
	_, _ = io.WriteString(stdout, r.Stdout)
	_, _ = io.WriteString(stderr, r.Stderr)
	return r.ExitCode, nil
}

// LastArgv returns the most recent argv passed to Run.
func (r *StubRunner) LastArgv() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Argvs) == 0 {
		return nil
	}
	return r.Argvs[len(r.Argvs)-1]
}
