package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
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
	url     string
	reports *reports.Store
	alerts  *alerts.Store
}

func newFixture(t *testing.T, cfg server.Config) *fixture {
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
	rs, err := reports.NewStore(reports.Config{Dir: filepath.Join(dir, "reports"), Backoff: time.Millisecond}, logger)
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
	return &fixture{url: ts.URL, reports: rs, alerts: as}
}

// ─── Scans ─────────────────────────────────────────────────────────────

func TestClient_SubmitAndPoll(t *testing.T) {
	f := newFixture(t, server.DefaultConfig())
	c := New(f.url, WithOwner("alice"))
	ctx := context.Background()

	accepted, err := c.SubmitScan(ctx, server.ScanRequest{Type: model.JobTypeDAST, Target: "https://app.example.com"})
	if err != nil {
		t.Fatalf("SubmitScan: %v", err)
	}
	job, err := c.Job(ctx, accepted.JobID)
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if job.State != model.JobWaiting || job.ScanType != model.ScanModeSimple {
		t.Errorf("unexpected job %+v", job)
	}

	qs, err := c.QueueStatus(ctx)
	if err != nil || qs.Counts.Waiting != 1 {
		t.Errorf("QueueStatus = %+v, %v", qs, err)
	}
	snap, err := c.Status(ctx)
	if err != nil || !snap.Available {
		t.Errorf("Status = %+v, %v", snap, err)
	}
}

func TestClient_APIErrors(t *testing.T) {
	f := newFixture(t, server.DefaultConfig())
	ctx := context.Background()

	_, err := New(f.url, WithOwner("alice")).SubmitScan(ctx, server.ScanRequest{Type: model.JobTypeDAST})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest || apiErr.Message == "" {
		t.Fatalf("expected 400 APIError, got %v", err)
	}

	_, err = New(f.url).Status(ctx)
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}

	_, err = New(f.url, WithOwner("alice")).ResetQueue(ctx)
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 APIError, got %v", err)
	}
}

func TestClient_BearerToken(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.JWTSecret = "k"
	f := newFixture(t, cfg)

	token, err := server.IssueToken("k", "root", server.RoleAdmin, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	res, err := New(f.url, WithToken(token)).ResetQueue(context.Background())
	if err != nil {
		t.Fatalf("ResetQueue: %v", err)
	}
	if !res.Available || res.Connection.Phase != queue.PhaseConnected {
		t.Errorf("unexpected reset %+v", res)
	}
}

func TestIsUnavailable(t *testing.T) {
	if !IsUnavailable(&APIError{StatusCode: http.StatusServiceUnavailable}) {
		t.Error("503 should be unavailable")
	}
	if IsUnavailable(&APIError{StatusCode: http.StatusBadRequest}) || IsUnavailable(errors.New("x")) {
		t.Error("only 503 APIErrors are unavailable")
	}
}

// ─── Reports & alerts ──────────────────────────────────────────────────

func TestClient_ReportsAndAlerts(t *testing.T) {
	f := newFixture(t, server.DefaultConfig())
	c := New(f.url, WithOwner("alice"))
	ctx := context.Background()

	if _, _, err := c.Report(ctx, "sast"); err == nil {
		t.Fatal("expected 404 for a report never generated")
	}
	if err := os.WriteFile(filepath.Join(f.reports.Dir(), "sast-report.json"), []byte(`{"results":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	data, ct, err := c.Report(ctx, "sast")
	if err != nil || string(data) != `{"results":[]}` || ct != "application/json" {
		t.Errorf("Report = %q %q %v", data, ct, err)
	}
	list, err := c.Reports(ctx)
	if err != nil || len(list) != 2 {
		t.Errorf("Reports = %d, %v", len(list), err)
	}

	a := &model.Alert{OwnerID: "alice", Title: "t", Severity: model.SeverityHigh, SourceTool: "zap", Location: "https://x"}
	if err := f.alerts.Create(ctx, a); err != nil {
		t.Fatal(err)
	}
	got, err := c.Alerts(ctx, AlertQuery{Severity: model.SeverityHigh, Limit: 10})
	if err != nil || len(got) != 1 {
		t.Fatalf("Alerts = %d, %v", len(got), err)
	}
	updated, err := c.UpdateAlert(ctx, a.ID, model.AlertResolved)
	if err != nil || updated.Status != model.AlertResolved {
		t.Fatalf("UpdateAlert = %+v, %v", updated, err)
	}
	_, err = c.UpdateAlert(ctx, a.ID, model.AlertOpen)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %v", err)
	}
}
