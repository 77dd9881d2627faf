package alerts

import (
	"bytes"
	"fmt"
	"net/textproto"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/raysh454/scanhub/internal/model"
)

// DastHTMLParser reads the HTML report written by the dynamic scan script.
// It looks for two tables, identified by the heading above them: a
// security-headers table and an endpoint-results table. Columns are found
// by header text, so column order and extra columns do not matter.
type DastHTMLParser struct{}

var _ ReportParser = (*DastHTMLParser)(nil)

func (p *DastHTMLParser) Tool() string        { return "zap" }
func (p *DastHTMLParser) ContentType() string { return "text/html" }

// highRiskHeaders are headers whose absence rates high. A header table
// with no row at all for one of them counts as that header missing.
var highRiskHeaders = map[string]bool{
	"content-security-policy": true,
	"x-frame-options":         true,
}

var requiredHeaders = []string{"content-security-policy", "x-frame-options"}

var headerRemediation = map[string]string{
	"content-security-policy":   "Send a Content-Security-Policy that restricts script, style and frame sources.",
	"x-frame-options":           "Send X-Frame-Options: DENY (or a CSP frame-ancestors directive) to prevent clickjacking.",
	"strict-transport-security": "Send Strict-Transport-Security with a max-age of at least one year over HTTPS.",
	"x-content-type-options":    "Send X-Content-Type-Options: nosniff.",
	"referrer-policy":           "Send a Referrer-Policy such as strict-origin-when-cross-origin.",
	"permissions-policy":        "Send a Permissions-Policy that disables unused browser features.",
}

// passing are cell values that mean a row needs no alert.
var passing = map[string]bool{
	"pass": true, "passed": true, "ok": true, "present": true, "set": true,
	"yes": true, "good": true, "secure": true, "200": true, "✓": true, "✔": true,
}

var headingSelector = "h1, h2, h3, h4, h5, h6"

func (p *DastHTMLParser) Parse(data []byte, pctx Context) ([]model.Alert, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse dast html: %w", err)
	}

	var (
		out      []model.Alert
		matched  bool
		location = pctx.Target
	)
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		heading := strings.ToLower(tableHeading(table))
		switch {
		case strings.Contains(heading, "header"):
			matched = true
			out = append(out, p.headerAlerts(table, location, pctx)...)
		case strings.Contains(heading, "endpoint"):
			matched = true
			out = append(out, p.endpointAlerts(table, pctx)...)
		}
	})
	if !matched {
		return nil, fmt.Errorf("dast html: no security-header or endpoint table found")
	}
	return out, nil
}

func (p *DastHTMLParser) headerAlerts(table *goquery.Selection, location string, pctx Context) []model.Alert {
	cols := columnIndex(table)
	nameCol := cols.find("header", "name")
	statusCol := cols.find("status", "result", "present")
	if nameCol < 0 || statusCol < 0 {
		return nil
	}
	detailCol := cols.find("value", "detail", "recommendation", "note")

	var out []model.Alert
	seen := make(map[string]bool)
	eachDataRow(table, func(cells []string) {
		name := cell(cells, nameCol)
		if name == "" {
			return
		}
		key := strings.ToLower(name)
		seen[key] = true
		status := cell(cells, statusCol)
		if isPassing(status) {
			return
		}
		desc := fmt.Sprintf("Response header %s check reported %q.", textproto.CanonicalMIMEHeaderKey(key), status)
		if d := cell(cells, detailCol); d != "" {
			desc += " " + d
		}
		out = append(out, p.headerAlert(key, desc, location, pctx))
	})
	for _, key := range requiredHeaders {
		if !seen[key] {
			desc := fmt.Sprintf("Response header %s was not reported by the scan.", textproto.CanonicalMIMEHeaderKey(key))
			out = append(out, p.headerAlert(key, desc, location, pctx))
		}
	}
	return out
}

func (p *DastHTMLParser) headerAlert(key, desc, location string, pctx Context) model.Alert {
	severity := model.SeverityMedium
	if highRiskHeaders[key] {
		severity = model.SeverityHigh
	}
	return model.Alert{
		JobID:       pctx.JobID,
		OwnerID:     pctx.OwnerID,
		Title:       "Missing security header: " + textproto.CanonicalMIMEHeaderKey(key),
		Severity:    severity,
		SourceTool:  p.Tool(),
		Location:    location,
		Description: desc,
		Remediation: headerRemediation[key],
	}
}

func (p *DastHTMLParser) endpointAlerts(table *goquery.Selection, pctx Context) []model.Alert {
	cols := columnIndex(table)
	urlCol := cols.find("endpoint", "url", "path")
	resultCol := cols.find("result", "status", "finding")
	if urlCol < 0 || resultCol < 0 {
		return nil
	}
	methodCol := cols.find("method")
	detailCol := cols.find("detail", "description", "evidence", "note")

	var out []model.Alert
	eachDataRow(table, func(cells []string) {
		endpoint := cell(cells, urlCol)
		result := cell(cells, resultCol)
		if endpoint == "" || isPassing(result) {
			return
		}
		if result == "" {
			result = "unexpected response"
		}
		desc := fmt.Sprintf("Endpoint %s returned %q.", endpoint, result)
		if m := cell(cells, methodCol); m != "" {
			desc = fmt.Sprintf("%s %s returned %q.", strings.ToUpper(m), endpoint, result)
		}
		if d := cell(cells, detailCol); d != "" {
			desc += " " + d
		}
		out = append(out, model.Alert{
			JobID:       pctx.JobID,
			OwnerID:     pctx.OwnerID,
			Title:       "Endpoint anomaly: " + result,
			Severity:    model.SeverityMedium,
			SourceTool:  p.Tool(),
			Location:    endpoint,
			Description: desc,
		})
	})
	return out
}

// tableHeading finds the text that labels a table: its caption, the closest
// heading before it, or the closest heading before one of its ancestors.
func tableHeading(table *goquery.Selection) string {
	if c := strings.TrimSpace(table.Find("caption").First().Text()); c != "" {
		return c
	}
	if h := table.PrevAllFiltered(headingSelector).First(); h.Length() > 0 {
		return strings.TrimSpace(h.Text())
	}
	heading := ""
	table.Parents().EachWithBreak(func(_ int, parent *goquery.Selection) bool {
		if goquery.NodeName(parent) == "body" {
			return false
		}
		if h := parent.PrevAllFiltered(headingSelector).First(); h.Length() > 0 {
			heading = strings.TrimSpace(h.Text())
			return false
		}
		return true
	})
	return heading
}

type columns []string

// columnIndex reads the header cells of table, lower-cased.
func columnIndex(table *goquery.Selection) columns {
	var cols columns
	row := table.Find("thead tr").First()
	if row.Length() == 0 {
		row = table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
			return tr.Find("th").Length() > 0
		}).First()
	}
	row.Find("th, td").Each(func(_ int, c *goquery.Selection) {
		cols = append(cols, strings.ToLower(strings.TrimSpace(c.Text())))
	})
	return cols
}

// find returns the first column whose header contains any of names, or -1.
func (c columns) find(names ...string) int {
	for _, name := range names {
		for i, col := range c {
			if strings.Contains(col, name) {
				return i
			}
		}
	}
	return -1
}

// eachDataRow calls fn with the trimmed cell text of every body row.
func eachDataRow(table *goquery.Selection, fn func(cells []string)) {
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.Find("th").Length() > 0 || tr.ParentsFiltered("thead").Length() > 0 {
			return
		}
		var cells []string
		tr.Find("td").Each(func(_ int, td *goquery.Selection) {
			cells = append(cells, strings.Join(strings.Fields(td.Text()), " "))
		})
		if len(cells) > 0 {
			fn(cells)
		}
	})
}

func cell(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return cells[i]
}

func isPassing(v string) bool {
	return passing[strings.ToLower(strings.TrimSpace(v))]
}
