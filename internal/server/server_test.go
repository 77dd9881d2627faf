package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
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

type testEnv struct {
	srv     *server.Server
	gw      *queue.Gateway
	reports *reports.Store
	alerts  *alerts.Store
}

func newTestEnv(t *testing.T, cfg server.Config, connect queue.Connector) *testEnv {
	t.Helper()

	dir := t.TempDir()
	logger := &testutil.DummyLogger{}
	if connect == nil {
		connect = queue.SQLConnector(database.Config{
			Driver: database.DriverSQLite,
			DSN:    "file:" + filepath.Join(dir, "queue.db") + "?_pragma=busy_timeout(5000)",
		}, logger)
	}
	gw, err := queue.NewGateway(queue.DefaultConfig(), connect, logger)
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	t.Cleanup(func() { gw.Close() })

	rs, err := reports.NewStore(reports.Config{Dir: filepath.Join(dir, "reports"), Backoff: time.Millisecond}, logger)
	if err != nil {
		t.Fatalf("reports.NewStore: %v", err)
	}
	as, err := alerts.OpenStore(context.Background(), database.Config{Driver: database.DriverSQLite, DSN: ":memory:"}, logger)
	if err != nil {
		t.Fatalf("alerts.OpenStore: %v", err)
	}
	t.Cleanup(func() { as.Close() })

	srv, err := server.NewServer(cfg, server.Deps{
		Queue:   gw,
		Status:  status.NewAggregator(gw, rs, logger),
		Reports: rs,
		Alerts:  as,
	}, logger)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return &testEnv{srv: srv, gw: gw, reports: rs, alerts: as}
}

func newTestServer(t *testing.T) *testEnv {
	return newTestEnv(t, server.DefaultConfig(), nil)
}

func doJSON(t *testing.T, s http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func asOwner(owner string) []string { return []string{"X-Owner-ID", owner} }

func asAdmin() []string { return []string{"X-Owner-ID", "root", "X-Role", "admin"} }

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON response: %v (body: %s)", err, rec.Body.String())
	}
}

// ─── CORS / health ─────────────────────────────────────────────────────

func TestServer_CORS_HeaderPresent(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)

	rec := doJSON(t, env.srv, "GET", "/healthz", "")
	if origin := rec.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("expected CORS origin *, got %q", origin)
	}
}

func TestServer_Healthz_NoAuth(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)

	rec := doJSON(t, env.srv, "GET", "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body server.HealthResponse
	decodeJSON(t, rec, &body)
	if body.Status != "ok" || body.Queue != queue.PhaseUninitialized {
		t.Errorf("unexpected health %+v", body)
	}
}

// ─── Auth ──────────────────────────────────────────────────────────────

func TestServer_MissingIdentity(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)

	rec := doJSON(t, env.srv, "GET", "/status", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestServer_JWT(t *testing.T) {
	t.Parallel()
	cfg := server.DefaultConfig()
	cfg.JWTSecret = "test-secret"
	env := newTestEnv(t, cfg, nil)

	token, err := server.IssueToken(cfg.JWTSecret, "alice", server.RoleUser, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	rec := doJSON(t, env.srv, "POST", "/scans", `{"type":"sast"}`, "Authorization", "Bearer "+token)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	forged, _ := server.IssueToken("other-secret", "alice", server.RoleAdmin, time.Hour)
	rec = doJSON(t, env.srv, "GET", "/status", "", "Authorization", "Bearer "+forged)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("forged token: expected 401, got %d", rec.Code)
	}

	expired, _ := server.IssueToken(cfg.JWTSecret, "alice", server.RoleUser, -time.Minute)
	rec = doJSON(t, env.srv, "GET", "/status", "", "Authorization", "Bearer "+expired)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expired token: expected 401, got %d", rec.Code)
	}

	rec = doJSON(t, env.srv, "GET", "/status", "", asOwner("alice")...)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("headers must be ignored when a secret is set, got %d", rec.Code)
	}
}

func TestServer_AdminOnlyReset(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)

	rec := doJSON(t, env.srv, "POST", "/admin/queue/reset", "", asOwner("alice")...)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	rec = doJSON(t, env.srv, "POST", "/admin/queue/reset", "", asAdmin()...)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body server.ResetResponse
	decodeJSON(t, rec, &body)
	if !body.Available || body.Connection.Phase != queue.PhaseConnected {
		t.Errorf("unexpected reset response %+v", body)
	}
}

// ─── Scans ─────────────────────────────────────────────────────────────

func TestServer_SubmitAndGetScan(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)

	rec := doJSON(t, env.srv, "POST", "/scans", `{"type":"dast","target":"https://app.example.com","scanType":"full"}`, asOwner("alice")...)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var accepted server.ScanAcceptedResponse
	decodeJSON(t, rec, &accepted)
	if accepted.JobID == "" || accepted.Status != "queued" || accepted.State != model.JobWaiting {
		t.Fatalf("unexpected response %+v", accepted)
	}

	rec = doJSON(t, env.srv, "GET", "/scans/"+accepted.JobID, "", asOwner("alice")...)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var job model.JobSummary
	decodeJSON(t, rec, &job)
	if job.Type != model.JobTypeDAST || job.ScanType != model.ScanModeFull || job.State != model.JobWaiting {
		t.Errorf("unexpected job %+v", job)
	}

	rec = doJSON(t, env.srv, "GET", "/scans/"+accepted.JobID, "", asOwner("mallory")...)
	if rec.Code != http.StatusNotFound {
		t.Errorf("other owner: expected 404, got %d", rec.Code)
	}
	rec = doJSON(t, env.srv, "GET", "/scans/"+accepted.JobID, "", asAdmin()...)
	if rec.Code != http.StatusOK {
		t.Errorf("admin: expected 200, got %d", rec.Code)
	}
}

func TestServer_SubmitDelayed(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)

	rec := doJSON(t, env.srv, "POST", "/scans", `{"type":"sast","delaySeconds":60}`, asOwner("alice")...)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var accepted server.ScanAcceptedResponse
	decodeJSON(t, rec, &accepted)
	if accepted.State != model.JobDelayed {
		t.Errorf("expected delayed, got %s", accepted.State)
	}
}

func TestServer_SubmitInvalid(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{invalid}`},
		{"unknown type", `{"type":"iast"}`},
		{"dast without target", `{"type":"dast"}`},
		{"dast bad scheme", `{"type":"dast","target":"ftp://x.example"}`},
		{"negative delay", `{"type":"sast","delaySeconds":-1}`},
	}
	for _, tt := range tests {
		rec := doJSON(t, env.srv, "POST", "/scans", tt.body, asOwner("alice")...)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d: %s", tt.name, rec.Code, rec.Body.String())
		}
	}
}

func TestServer_SubmitWhileQueueDown(t *testing.T) {
	t.Parallel()
	down := func(context.Context) (queue.Backend, error) {
		return nil, errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
	}
	env := newTestEnv(t, server.DefaultConfig(), down)

	rec := doJSON(t, env.srv, "POST", "/scans", `{"type":"sast"}`, asOwner("alice")...)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	decodeJSON(t, rec, &body)
	if body["available"] != false || body["error"] == "" {
		t.Errorf("unexpected body %v", body)
	}

	rec = doJSON(t, env.srv, "GET", "/status", "", asOwner("alice")...)
	if rec.Code != http.StatusOK {
		t.Fatalf("status while down: expected 200, got %d", rec.Code)
	}
	var snap status.Snapshot
	decodeJSON(t, rec, &snap)
	if snap.Available || snap.Connection.Phase != queue.PhaseUnavailable {
		t.Errorf("expected unavailable snapshot, got %+v", snap.Connection)
	}

	rec = doJSON(t, env.srv, "POST", "/admin/queue/reset", "", asAdmin()...)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("failed reset: expected 503, got %d", rec.Code)
	}
}

func TestServer_QueueStatus(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)
	_ = doJSON(t, env.srv, "POST", "/scans", `{"type":"sast"}`, asOwner("alice")...)

	rec := doJSON(t, env.srv, "GET", "/scans/status", "", asOwner("alice")...)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var st queue.QueueStatus
	decodeJSON(t, rec, &st)
	if !st.Available || st.Counts.Waiting != 1 || len(st.MetricsByType) != 2 {
		t.Errorf("unexpected status %+v", st)
	}
}

// ─── Reports ───────────────────────────────────────────────────────────

func writeReport(t *testing.T, env *testEnv, file, body string) {
	t.Helper()
	if err := os.MkdirAll(env.reports.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(env.reports.Dir(), file), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestServer_GetReport(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)

	rec := doJSON(t, env.srv, "GET", "/reports/sast", "", asOwner("alice")...)
	if rec.Code != http.StatusNotFound {
		t.Errorf("never generated: expected 404, got %d", rec.Code)
	}

	rec = doJSON(t, env.srv, "GET", "/reports/iast", "", asOwner("alice")...)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown type: expected 404, got %d", rec.Code)
	}

	writeReport(t, env, "dast-report.html", "<html><body>ok</body></html>")
	rec = doJSON(t, env.srv, "GET", "/reports/dast", "", asOwner("alice")...)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("unexpected content type %q", ct)
	}
	if rec.Body.String() != "<html><body>ok</body></html>" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestServer_GetReport_Corrupt(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)
	writeReport(t, env, "sast-report.json", "not json and no braces")

	rec := doJSON(t, env.srv, "GET", "/reports/sast", "", asOwner("alice")...)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_ListReportsAndDiff(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)

	rec := doJSON(t, env.srv, "GET", "/reports", "", asOwner("alice")...)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list []model.ReportArtifact
	decodeJSON(t, rec, &list)
	if len(list) != 2 {
		t.Errorf("expected 2 artifacts, got %d", len(list))
	}

	rec = doJSON(t, env.srv, "GET", "/reports/sast/diff", "", asOwner("alice")...)
	if rec.Code != http.StatusNotFound {
		t.Errorf("diff without runs: expected 404, got %d", rec.Code)
	}

	writeReport(t, env, "sast-report.json", "{\"results\":[]}\n")
	if err := env.reports.Snapshot("sast"); err != nil {
		t.Fatal(err)
	}
	writeReport(t, env, "sast-report.json", "{\"results\":[\n{\"check_id\":\"x\"}\n]}\n")
	rec = doJSON(t, env.srv, "GET", "/reports/sast/diff", "", asOwner("alice")...)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var diff model.ReportDiff
	decodeJSON(t, rec, &diff)
	if diff.Insertions == 0 {
		t.Errorf("expected insertions, got %+v", diff)
	}
}

// ─── Alerts ────────────────────────────────────────────────────────────

func seedAlert(t *testing.T, env *testEnv, owner string, sev model.Severity) *model.Alert {
	t.Helper()
	a := &model.Alert{OwnerID: owner, Title: "rule", Severity: sev, SourceTool: "semgrep", Location: "a.go:1"}
	if err := env.alerts.Create(context.Background(), a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return a
}

func TestServer_ListAlerts(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)
	seedAlert(t, env, "alice", model.SeverityHigh)
	seedAlert(t, env, "alice", model.SeverityLow)
	seedAlert(t, env, "bob", model.SeverityHigh)

	var got []model.Alert
	rec := doJSON(t, env.srv, "GET", "/alerts", "", asOwner("alice")...)
	decodeJSON(t, rec, &got)
	if len(got) != 2 {
		t.Errorf("owner scope: expected 2, got %d", len(got))
	}

	rec = doJSON(t, env.srv, "GET", "/alerts?severity=high", "", asOwner("alice")...)
	decodeJSON(t, rec, &got)
	if len(got) != 1 {
		t.Errorf("severity filter: expected 1, got %d", len(got))
	}

	rec = doJSON(t, env.srv, "GET", "/alerts", "", asAdmin()...)
	decodeJSON(t, rec, &got)
	if len(got) != 3 {
		t.Errorf("admin: expected 3, got %d", len(got))
	}

	rec = doJSON(t, env.srv, "GET", "/alerts", "", asOwner("nobody")...)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty array, got %d %q", rec.Code, rec.Body.String())
	}

	for _, q := range []string{"?severity=critical", "?status=closed", "?limit=0", "?limit=abc"} {
		rec = doJSON(t, env.srv, "GET", "/alerts"+q, "", asOwner("alice")...)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestServer_UpdateAlert(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)
	a := seedAlert(t, env, "alice", model.SeverityMedium)
	path := "/alerts/" + a.ID

	rec := doJSON(t, env.srv, "PATCH", path, `{"status":"accepted"}`, asOwner("alice")...)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var updated model.Alert
	decodeJSON(t, rec, &updated)
	if updated.Status != model.AlertAccepted {
		t.Errorf("expected accepted, got %s", updated.Status)
	}

	rec = doJSON(t, env.srv, "PATCH", path, `{"status":"open"}`, asOwner("alice")...)
	if rec.Code != http.StatusConflict {
		t.Errorf("reverse transition: expected 409, got %d", rec.Code)
	}
	rec = doJSON(t, env.srv, "PATCH", path, `{"status":"done"}`, asOwner("alice")...)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid status: expected 400, got %d", rec.Code)
	}
	rec = doJSON(t, env.srv, "PATCH", path, `{"status":"resolved"}`, asOwner("bob")...)
	if rec.Code != http.StatusNotFound {
		t.Errorf("other owner: expected 404, got %d", rec.Code)
	}
	rec = doJSON(t, env.srv, "PATCH", path, `{"status":"resolved"}`, asAdmin()...)
	if rec.Code != http.StatusOK {
		t.Errorf("admin: expected 200, got %d", rec.Code)
	}
}

// ─── Status ────────────────────────────────────────────────────────────

func TestServer_Status(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)
	writeReport(t, env, "sast-report.json", `{"results":[]}`)

	rec := doJSON(t, env.srv, "GET", "/status", "", asOwner("alice")...)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snap status.Snapshot
	decodeJSON(t, rec, &snap)
	if !snap.Available || len(snap.Reports) != 2 || len(snap.MetricsByType) != 2 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestServer_NewServerRequiresDeps(t *testing.T) {
	t.Parallel()
	if _, err := server.NewServer(server.DefaultConfig(), server.Deps{}, &testutil.DummyLogger{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}
