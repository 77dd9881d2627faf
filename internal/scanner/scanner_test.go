package scanner_test

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/raysh454/scanhub/internal/model"
	"github.com/raysh454/scanhub/internal/scanner"
	"github.com/raysh454/scanhub/internal/testutil"
)

// ─── CappedBuffer ──────────────────────────────────────────────────────

func TestCappedBuffer_TruncatesSilently(t *testing.T) {
	b := scanner.NewCappedBuffer(5)
	n, err := b.Write([]byte("abc"))
	if n != 3 || err != nil {
		t.Fatalf("write 1: n=%d err=%v", n, err)
	}
	n, err = b.Write([]byte("defgh"))
	if n != 5 || err != nil {
		t.Fatalf("write 2 must report full length: n=%d err=%v", n, err)
	}
	if b.String() != "abcde" {
		t.Errorf("expected abcde, got %q", b.String())
	}
	if !b.Truncated() {
		t.Error("expected truncated flag")
	}
}

func TestCappedBuffer_ExactFitIsNotTruncated(t *testing.T) {
	b := scanner.NewCappedBuffer(3)
	_, _ = b.Write([]byte("abc"))
	if b.Truncated() {
		t.Error("exact fit should not be truncated")
	}
	_, _ = b.Write(nil)
	if b.Truncated() {
		t.Error("empty write should not mark truncation")
	}
}

// ─── Analyzer ──────────────────────────────────────────────────────────

func TestStaticAnalyzer_ArgvUsesDefaultTarget(t *testing.T) {
	runner := &testutil.StubRunner{}
	a, err := scanner.NewStaticAnalyzer(scanner.StaticConfig{
		Command:       []string{"semgrep", "--json", "--output={output}", "{target}"},
		DefaultTarget: "/src",
	}, []string{"sast"}, scanner.Options{Runner: runner, Vars: map[string]string{"output": "/reports/sast-report.json"}})
	if err != nil {
		t.Fatalf("NewStaticAnalyzer: %v", err)
	}

	if _, err := a.Execute(context.Background(), scanner.Request{JobID: "j1", Mode: model.ScanModeFull}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got := strings.Join(runner.LastArgv(), " ")
	want := "semgrep --json --output=/reports/sast-report.json /src"
	if got != want {
		t.Errorf("argv = %q, want %q", got, want)
	}
}

func TestDynamicAnalyzer_ModeSelectsCommand(t *testing.T) {
	runner := &testutil.StubRunner{}
	a, err := scanner.NewDynamicAnalyzer(scanner.DynamicConfig{
		Simple: []string{"dast.sh", "{mode}", "{target}"},
		Full:   []string{"dast-full.sh", "{target}"},
	}, []string{"dast"}, scanner.Options{Runner: runner})
	if err != nil {
		t.Fatalf("NewDynamicAnalyzer: %v", err)
	}

	tests := []struct {
		mode model.ScanMode
		want string
	}{
		{"", "dast.sh simple https://example.com"},
		{model.ScanModeSimple, "dast.sh simple https://example.com"},
		{model.ScanModeFull, "dast-full.sh https://example.com"},
	}
	for _, tt := range tests {
		if _, err := a.Execute(context.Background(), scanner.Request{Target: "https://example.com", Mode: tt.mode}); err != nil {
			t.Fatalf("Execute(%q): %v", tt.mode, err)
		}
		if got := strings.Join(runner.LastArgv(), " "); got != tt.want {
			t.Errorf("mode %q: argv = %q, want %q", tt.mode, got, tt.want)
		}
	}
}

func TestAnalyzer_NonZeroExitIsResultNotError(t *testing.T) {
	runner := &testutil.StubRunner{ExitCode: 2, Stderr: "semgrep: bad config"}
	a, _ := scanner.NewStaticAnalyzer(scanner.StaticConfig{Command: []string{"x"}}, nil, scanner.Options{Runner: runner})

	res, err := a.Execute(context.Background(), scanner.Request{})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.Success || res.ExitCode != 2 || res.Stderr != "semgrep: bad config" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestAnalyzer_StopsAtCallerDeadline(t *testing.T) {
	runner := &testutil.StubRunner{Block: true}
	a, _ := scanner.NewStaticAnalyzer(scanner.StaticConfig{Command: []string{"x"}}, nil, scanner.Options{Runner: runner})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res, err := a.Execute(ctx, scanner.Request{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the caller's deadline to end the run, got %v", err)
	}
	if res == nil || res.Success {
		t.Errorf("expected failed result, got %+v", res)
	}
}

func TestAnalyzer_ParentCancelEndsRun(t *testing.T) {
	runner := &testutil.StubRunner{Block: true}
	a, _ := scanner.NewStaticAnalyzer(scanner.StaticConfig{Command: []string{"x"}}, nil, scanner.Options{Runner: runner})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Execute(ctx, scanner.Request{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestAnalyzer_OutputCapped(t *testing.T) {
	runner := &testutil.StubRunner{Stdout: strings.Repeat("x", 100)}
	a, _ := scanner.NewStaticAnalyzer(scanner.StaticConfig{Command: []string{"x"}}, nil, scanner.Options{
		Runner:         runner,
		MaxOutputBytes: 10,
	})
	res, err := a.Execute(context.Background(), scanner.Request{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Stdout) != 10 || !res.Truncated {
		t.Errorf("expected 10 bytes truncated, got %d truncated=%v", len(res.Stdout), res.Truncated)
	}
}

func TestNewAnalyzer_RequiresCommandAndRunner(t *testing.T) {
	if _, err := scanner.NewStaticAnalyzer(scanner.StaticConfig{}, nil, scanner.Options{Runner: &testutil.StubRunner{}}); err == nil {
		t.Error("expected error for empty static command")
	}
	if _, err := scanner.NewDynamicAnalyzer(scanner.DynamicConfig{Simple: []string{"x"}}, nil, scanner.Options{}); err == nil {
		t.Error("expected error for missing runner")
	}
}

// ─── Set ───────────────────────────────────────────────────────────────

func TestSet_For(t *testing.T) {
	s := scanner.NewSet()
	s.Register(model.JobTypeSAST, &testutil.FakeScanner{})

	if _, err := s.For(model.JobTypeSAST); err != nil {
		t.Fatalf("For(sast): %v", err)
	}
	if _, err := s.For(model.JobTypeDAST); !errors.Is(err, model.ErrNoScanner) {
		t.Fatalf("expected ErrNoScanner, got %v", err)
	}
}

// ─── CommandRunner ─────────────────────────────────────────────────────

func TestCommandRunner_ExitCodeAndOutput(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	r := &scanner.CommandRunner{}
	out := scanner.NewCappedBuffer(1024)
	errOut := scanner.NewCappedBuffer(1024)

	code, err := r.Run(context.Background(), []string{"sh", "-c", "echo hello; echo oops >&2; exit 3"}, out, errOut)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if code != 3 {
		t.Errorf("expected exit 3, got %d", code)
	}
	if strings.TrimSpace(out.String()) != "hello" || strings.TrimSpace(errOut.String()) != "oops" {
		t.Errorf("unexpected output %q / %q", out.String(), errOut.String())
	}
}

func TestCommandRunner_KilledOnDeadline(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	r := &scanner.CommandRunner{WaitDelay: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.Run(ctx, []string{"sh", "-c", "sleep 30"}, scanner.NewCappedBuffer(10), scanner.NewCappedBuffer(10))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Error("process was not killed promptly")
	}
}

func TestCommandRunner_MissingBinary(t *testing.T) {
	r := &scanner.CommandRunner{}
	_, err := r.Run(context.Background(), []string{"definitely-not-a-real-scanner-binary"}, scanner.NewCappedBuffer(10), scanner.NewCappedBuffer(10))
	if err == nil {
		t.Fatal("expected start error")
	}
}
