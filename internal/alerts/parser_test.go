package alerts

import (
	"errors"
	"strings"
	"testing"

	"github.com/raysh454/scanhub/internal/model"
)

var pctx = Context{OwnerID: "owner-1", JobID: "job-1", Target: "https://app.example.com"}

// ─── Semgrep ───────────────────────────────────────────────────────────

const semgrepFixture = `{
  "results": [
    {
      "check_id": "python.lang.security.audit.eval-detected",
      "path": "app/views.py",
      "start": {"line": 42, "col": 5},
      "extra": {
        "message": "Detected use of eval().",
        "severity": "ERROR",
        "metadata": {"references": ["https://owasp.org/Top10/A03_2021-Injection/"]}
      }
    },
    {
      "check_id": "python.flask.debug-enabled",
      "path": "app/main.py",
      "start": {"line": 7},
      "extra": {"message": "Debug mode on.", "severity": "WARNING", "fix": "app.run(debug=False)"}
    },
    {
      "check_id": "generic.secrets.info",
      "path": "README.md",
      "extra": {"message": "Informational.", "severity": "INFO"}
    }
  ],
  "errors": []
}`

func TestSemgrepParser(t *testing.T) {
	alerts, err := (&SemgrepParser{}).Parse([]byte(semgrepFixture), pctx)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(alerts) != 3 {
		t.Fatalf("expected 3 alerts, got %d", len(alerts))
	}

	tests := []struct {
		title       string
		severity    model.Severity
		location    string
		remediation string
	}{
		{"python.lang.security.audit.eval-detected", model.SeverityHigh, "app/views.py:42", "https://owasp.org/Top10/A03_2021-Injection/"},
		{"python.flask.debug-enabled", model.SeverityMedium, "app/main.py:7", "app.run(debug=False)"},
		{"generic.secrets.info", model.SeverityLow, "README.md", ""},
	}
	for i, tt := range tests {
		a := alerts[i]
		if a.Title != tt.title || a.Severity != tt.severity || a.Location != tt.location || a.Remediation != tt.remediation {
			t.Errorf("alert %d = %+v, want %+v", i, a, tt)
		}
		if a.SourceTool != "semgrep" || a.OwnerID != "owner-1" || a.JobID != "job-1" {
			t.Errorf("alert %d missing attribution: %+v", i, a)
		}
	}
}

func TestSemgrepParser_RejectsGarbage(t *testing.T) {
	if _, err := (&SemgrepParser{}).Parse([]byte("{{{{"), pctx); err == nil {
		t.Fatal("parser accepted invalid json")
	}
}

func TestSemgrepParser_EmptyResults(t *testing.T) {
	alerts, err := (&SemgrepParser{}).Parse([]byte(`{"results": []}`), pctx)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("expected no alerts, got %d", len(alerts))
	}
}

// ─── DAST HTML ─────────────────────────────────────────────────────────

func dastReport(headerRows, endpointRows string) string {
	return `<!doctype html>
<html><body>
<h1>Dynamic scan report</h1>
<section>
  <h2>Security Headers</h2>
  <table>
    <thead><tr><th>Header</th><th>Status</th><th>Value</th></tr></thead>
    <tbody>` + headerRows + `</tbody>
  </table>
</section>
<section>
  <h2>Endpoint Results</h2>
  <table>
    <tr><th>Method</th><th>Endpoint</th><th>Result</th></tr>
    ` + endpointRows + `
  </table>
</section>
</body></html>`
}

const passingEndpoints = `<tr><td>GET</td><td>https://app.example.com/</td><td>OK</td></tr>`

func TestDastHTMLParser_MissingCSPIsOneHighAlert(t *testing.T) {
	html := dastReport(`
      <tr><td>content-security-policy</td><td>Missing</td><td></td></tr>
      <tr><td>x-frame-options</td><td>Present</td><td>DENY</td></tr>
      <tr><td>strict-transport-security</td><td>Present</td><td>max-age=31536000</td></tr>`,
		passingEndpoints)

	alerts, err := (&DastHTMLParser{}).Parse([]byte(html), pctx)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected exactly 1 alert, got %d: %+v", len(alerts), alerts)
	}
	a := alerts[0]
	if a.Severity != model.SeverityHigh {
		t.Errorf("expected high severity, got %s", a.Severity)
	}
	if !strings.Contains(a.Title, "Content-Security-Policy") {
		t.Errorf("title %q does not reference Content-Security-Policy", a.Title)
	}
	if a.Location != pctx.Target || a.SourceTool != "zap" {
		t.Errorf("unexpected location/tool: %+v", a)
	}
}

func TestDastHTMLParser_AbsentCSPRowIsOneHighAlert(t *testing.T) {
	html := dastReport(`
      <tr><td>X-Frame-Options</td><td>Present</td><td>SAMEORIGIN</td></tr>
      <tr><td>X-Content-Type-Options</td><td>Present</td><td>nosniff</td></tr>`,
		passingEndpoints)

	alerts, err := (&DastHTMLParser{}).Parse([]byte(html), pctx)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Severity != model.SeverityHigh ||
		alerts[0].Title != "Missing security header: Content-Security-Policy" {
		t.Fatalf("expected one high CSP alert, got %+v", alerts)
	}
}

func TestDastHTMLParser_SeverityTable(t *testing.T) {
	html := dastReport(`
      <tr><td>Content-Security-Policy</td><td>Present</td><td></td></tr>
      <tr><td>X-Frame-Options</td><td>Missing</td><td></td></tr>
      <tr><td>Referrer-Policy</td><td>Missing</td><td></td></tr>`,
		`<tr><td>GET</td><td>https://app.example.com/admin</td><td>Exposed without auth</td></tr>
		 <tr><td>POST</td><td>https://app.example.com/login</td><td>OK</td></tr>`)

	alerts, err := (&DastHTMLParser{}).Parse([]byte(html), pctx)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(alerts) != 3 {
		t.Fatalf("expected 3 alerts, got %d: %+v", len(alerts), alerts)
	}

	want := []struct {
		title    string
		severity model.Severity
		location string
	}{
		{"Missing security header: X-Frame-Options", model.SeverityHigh, pctx.Target},
		{"Missing security header: Referrer-Policy", model.SeverityMedium, pctx.Target},
		{"Endpoint anomaly: Exposed without auth", model.SeverityMedium, "https://app.example.com/admin"},
	}
	for i, w := range want {
		a := alerts[i]
		if a.Title != w.title || a.Severity != w.severity || a.Location != w.location {
			t.Errorf("alert %d = {%q %s %q}, want %+v", i, a.Title, a.Severity, a.Location, w)
		}
	}
	if !strings.HasPrefix(alerts[2].Description, "GET ") {
		t.Errorf("expected method in description, got %q", alerts[2].Description)
	}
}

func TestDastHTMLParser_CaptionAndColumnOrder(t *testing.T) {
	html := `<html><body><table>
	  <caption>HTTP security headers</caption>
	  <tr><th>Result</th><th>Notes</th><th>Header name</th></tr>
	  <tr><td>FAIL</td><td>not sent</td><td>permissions-policy</td></tr>
	  <tr><td>pass</td><td></td><td>content-security-policy</td></tr>
	  <tr><td>pass</td><td></td><td>x-frame-options</td></tr>
	</table></body></html>`

	alerts, err := (&DastHTMLParser{}).Parse([]byte(html), pctx)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Title != "Missing security header: Permissions-Policy" {
		t.Fatalf("unexpected alerts %+v", alerts)
	}
	if !strings.Contains(alerts[0].Description, "not sent") {
		t.Errorf("expected notes in description, got %q", alerts[0].Description)
	}
}

func TestDastHTMLParser_NoKnownTables(t *testing.T) {
	_, err := (&DastHTMLParser{}).Parse([]byte(`<html><body><p>scan failed</p></body></html>`), pctx)
	if err == nil {
		t.Fatal("expected error for a report without known tables")
	}
}

// ─── Registry ──────────────────────────────────────────────────────────

func TestRegistry_SelectsByMediaType(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		contentType string
		tool        string
	}{
		{"application/json", "semgrep"},
		{"text/html; charset=utf-8", "zap"},
		{"TEXT/HTML", "zap"},
	}
	for _, tt := range tests {
		p, err := r.For(tt.contentType)
		if err != nil {
			t.Fatalf("For(%q): %v", tt.contentType, err)
		}
		if p.Tool() != tt.tool {
			t.Errorf("For(%q) = %s, want %s", tt.contentType, p.Tool(), tt.tool)
		}
	}

	if _, err := r.For("application/xml"); !errors.Is(err, ErrNoParser) {
		t.Errorf("expected ErrNoParser, got %v", err)
	}
}
