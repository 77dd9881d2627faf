package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/raysh454/scanhub/internal/alerts"
	"github.com/raysh454/scanhub/internal/database"
	"github.com/raysh454/scanhub/internal/model"
	"github.com/raysh454/scanhub/internal/queue"
	"github.com/raysh454/scanhub/internal/reports"
	"github.com/raysh454/scanhub/internal/server"
	"github.com/raysh454/scanhub/internal/status"
	"github.com/raysh454/scanhub/internal/testutil"
)

type fixture struct {
	url        string
	reportsDir string
	alerts     *alerts.Store
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, server.DefaultConfig())
}

func newFixtureWith(t *testing.T, cfg server.Config) *fixture {
	t.Helper()
	dir := t.TempDir()
	logger := &testutil.DummyLogger{}

	gw, err := queue.NewGateway(queue.DefaultConfig(), queue.SQLConnector(database.Config{
		Driver: database.DriverSQLite,
		DSN:    "file:" + filepath.Join(dir, "q.db") + "?_pragma=busy_timeout(5000)",
	}, logger), logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { gw.Close() })
	reportsDir := filepath.Join(dir, "reports")
	rs, err := reports.NewStore(reports.Config{Dir: reportsDir, Backoff: time.Millisecond}, logger)
	if err != nil {
		t.Fatal(err)
	}
	as, err := alerts.OpenStore(context.Background(), database.Config{Driver: database.DriverSQLite, DSN: ":memory:"}, logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { as.Close() })

	srv, err := server.NewServer(cfg, server.Deps{
		Queue: gw, Status: status.NewAggregator(gw, rs, logger), Reports: rs, Alerts: as,
	}, logger)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return &fixture{url: ts.URL, reportsDir: reportsDir, alerts: as}
}

// run executes the CLI against the fixture as owner alice.
func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--server", f.url, "--owner", "alice"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// ─── Scans ─────────────────────────────────────────────────────────────

func TestSubmitAndJob(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "--json", "submit", "dast", "--target", "https://app.example.com", "--scan-type", "full")
	if err != nil {
		t.Fatalf("submit: %v\n%s", err, out)
	}
	var accepted server.ScanAcceptedResponse
	if err := json.Unmarshal([]byte(out), &accepted); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if accepted.JobID == "" || accepted.State != model.JobWaiting {
		t.Fatalf("unexpected response %+v", accepted)
	}

	out, err = f.run(t, "job", accepted.JobID)
	if err != nil {
		t.Fatalf("job: %v", err)
	}
	for _, want := range []string{accepted.JobID, "dast", "full", "https://app.example.com", "waiting"} {
		if !strings.Contains(out, want) {
			t.Errorf("job output missing %q:\n%s", want, out)
		}
	}
}

func TestSubmit_RejectedByServer(t *testing.T) {
	f := newFixture(t)
	if _, err := f.run(t, "submit", "dast"); err == nil {
		t.Fatal("expected an error for a dast scan without a target")
	}
	if _, err := f.run(t, "submit", "sast", "--delay", "-5s"); err == nil {
		t.Fatal("expected an error for a negative delay")
	}
	if _, err := f.run(t, "submit"); err == nil {
		t.Fatal("expected an error without a scan type")
	}
	if _, err := f.run(t, "submit", "sast", "--type", "dast"); err == nil {
		t.Fatal("expected an error for conflicting scan types")
	}
}

func TestSubmit_DelayedShowsInStatus(t *testing.T) {
	f := newFixture(t)
	if _, err := f.run(t, "submit", "--type", "sast", "--delay", "1h"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	out, err := f.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "delayed 1") || !strings.Contains(out, "connected") {
		t.Errorf("unexpected status output:\n%s", out)
	}

	out, err = f.run(t, "queue", "status")
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	if !strings.Contains(out, "delayed 1") {
		t.Errorf("unexpected queue status output:\n%s", out)
	}
}

type scriptedJobs struct {
	states []model.JobState
	calls  int
}

func (s *scriptedJobs) Job(_ context.Context, id string) (*model.JobSummary, error) {
	st := s.states[min(s.calls, len(s.states)-1)]
	s.calls++
	return &model.JobSummary{ID: id, State: st}, nil
}

func TestWaitForJob(t *testing.T) {
	jobs := &scriptedJobs{states: []model.JobState{model.JobWaiting, model.JobActive, model.JobCompleted}}
	job, err := waitForJob(context.Background(), jobs, "j1", time.Millisecond)
	if err != nil {
		t.Fatalf("waitForJob: %v", err)
	}
	if job.State != model.JobCompleted || jobs.calls != 3 {
		t.Errorf("got %s after %d calls", job.State, jobs.calls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stuck := &scriptedJobs{states: []model.JobState{model.JobActive}}
	if _, err := waitForJob(ctx, stuck, "j2", time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// ─── Queue ─────────────────────────────────────────────────────────────

func TestQueueReset_RequiresAdmin(t *testing.T) {
	f := newFixture(t)
	if _, err := f.run(t, "queue", "reset"); err == nil || !strings.Contains(err.Error(), "admin") {
		t.Fatalf("expected admin error, got %v", err)
	}
	out, err := f.run(t, "--role", "admin", "queue", "reset")
	if err != nil {
		t.Fatalf("admin reset: %v", err)
	}
	if !strings.Contains(out, "connected") {
		t.Errorf("unexpected reset output:\n%s", out)
	}
}

// ─── Reports ───────────────────────────────────────────────────────────

func TestReports(t *testing.T) {
	f := newFixture(t)
	body := `{"results": []}`
	if err := os.WriteFile(filepath.Join(f.reportsDir, "sast-report.json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := f.run(t, "reports")
	if err != nil {
		t.Fatalf("reports: %v", err)
	}
	if !strings.Contains(out, "sast-report.json") || !strings.Contains(out, "dast") {
		t.Errorf("unexpected listing:\n%s", out)
	}

	out, err = f.run(t, "reports", "get", "sast")
	if err != nil || out != body {
		t.Fatalf("get = %q, %v", out, err)
	}

	dest := filepath.Join(t.TempDir(), "copy.json")
	if _, err := f.run(t, "reports", "get", "sast", "-O", dest); err != nil {
		t.Fatalf("get -O: %v", err)
	}
	if got, _ := os.ReadFile(dest); string(got) != body {
		t.Errorf("written file = %q", got)
	}

	if _, err := f.run(t, "reports", "get", "dast"); err == nil {
		t.Error("expected an error for a missing report")
	}
}

// ─── Alerts ────────────────────────────────────────────────────────────

func TestAlerts_ListAndTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := &model.Alert{
		OwnerID: "alice", JobID: "job-1", Title: "Missing security header: X-Frame-Options",
		Severity: model.SeverityHigh, SourceTool: "zap", Location: "https://app.example.com",
	}
	if err := f.alerts.Create(ctx, a); err != nil {
		t.Fatal(err)
	}
	other := &model.Alert{OwnerID: "bob", Title: "bob's", Severity: model.SeverityLow, SourceTool: "semgrep"}
	if err := f.alerts.Create(ctx, other); err != nil {
		t.Fatal(err)
	}

	out, err := f.run(t, "alerts", "--severity", "high")
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if !strings.Contains(out, "X-Frame-Options") || strings.Contains(out, "bob's") {
		t.Errorf("unexpected listing:\n%s", out)
	}

	out, err = f.run(t, "alerts", "--status", "resolved")
	if err != nil || !strings.Contains(out, "No alerts found") {
		t.Errorf("resolved listing = %q, %v", out, err)
	}

	if out, err = f.run(t, "alerts", "resolve", a.ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.Contains(out, "resolved") {
		t.Errorf("unexpected output %q", out)
	}
	if _, err := f.run(t, "alerts", "accept", a.ID); err == nil {
		t.Error("expected resolved -> accepted to be rejected")
	}
	if _, err := f.run(t, "alerts", "accept", other.ID); err == nil {
		t.Error("expected another owner's alert to be hidden")
	}
}

// ─── Token ─────────────────────────────────────────────────────────────

func TestToken(t *testing.T) {
	t.Setenv("SCANHUB_JWT_SECRET", "s3cret")
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"token", "--subject", "alice", "--admin"})
	if err := root.Execute(); err != nil {
		t.Fatalf("token: %v", err)
	}
	tok := strings.TrimSpace(out.String())
	if strings.Count(tok, ".") != 2 {
		t.Fatalf("not a jwt: %q", tok)
	}

	cfg := server.DefaultConfig()
	cfg.JWTSecret = "s3cret"
	f := newFixtureWith(t, cfg)

	root = NewRootCmd()
	out.Reset()
	root.SetOut(&out)
	root.SetArgs([]string{"--server", f.url, "--token", tok, "queue", "reset"})
	if err := root.Execute(); err != nil {
		t.Fatalf("admin token rejected: %v", err)
	}
	if _, err := f.run(t, "status"); err == nil {
		t.Error("owner header must not authenticate when a secret is set")
	}
}

func TestToken_NoSecret(t *testing.T) {
	t.Setenv("SCANHUB_JWT_SECRET", "")
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"token", "--subject", "alice"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected an error without a secret")
	}
}

// ─── Output ────────────────────────────────────────────────────────────

func TestTheme_KeepsText(t *testing.T) {
	if got := defaultTheme.state(model.JobFailed); !strings.Contains(got, "failed") {
		t.Errorf("state render lost text: %q", got)
	}
	if got := defaultTheme.severity(model.SeverityHigh); !strings.Contains(got, "high") {
		t.Errorf("severity render lost text: %q", got)
	}
}
