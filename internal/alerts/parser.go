// Package alerts turns raw scanner reports into normalised Alert records
// and keeps them in SQL storage.
package alerts

import (
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/raysh454/scanhub/internal/model"
)

// ErrNoParser is returned when no parser handles a report's content type.
var ErrNoParser = errors.New("no report parser for content type")

// Context attributes parsed alerts to a job and its owner.
type Context struct {
	OwnerID string
	JobID   string
	Target  string
}

// ReportParser converts one tool's report format into alerts. Parsers fill
// the finding fields only; identity, status and timestamps are assigned on
// persistence.
type ReportParser interface {
	Tool() string
	ContentType() string
	Parse(data []byte, pctx Context) ([]model.Alert, error)
}

// Registry selects a parser by the media type a report declares.
type Registry struct {
	parsers map[string]ReportParser
}

func NewRegistry(parsers ...ReportParser) *Registry {
	r := &Registry{parsers: make(map[string]ReportParser, len(parsers))}
	for _, p := range parsers {
		r.Register(p)
	}
	return r
}

// DefaultRegistry knows the semgrep JSON and DAST HTML formats.
func DefaultRegistry() *Registry {
	return NewRegistry(&SemgrepParser{}, &DastHTMLParser{})
}

// Register adds p, replacing any parser for the same media type.
func (r *Registry) Register(p ReportParser) {
	r.parsers[mediaType(p.ContentType())] = p
}

// For returns the parser for contentType; parameters such as charset are ignored.
func (r *Registry) For(contentType string) (ReportParser, error) {
	p, ok := r.parsers[mediaType(contentType)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoParser, contentType)
	}
	return p, nil
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	return strings.ToLower(mt)
}
