package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/raysh454/scanhub/internal/logging"
	"github.com/raysh454/scanhub/internal/model"
)

const (
	previousDir   = ".previous"
	maxPatchBytes = 64 << 10
)

// Config configures the filesystem-backed report store.
type Config struct {
	// Dir is where scanners write their artifacts.
	Dir string `yaml:"dir"`

	// Attempts bounds reads and stats that race with a writer.
	Attempts int `yaml:"attempts"`

	// Backoff is the fixed pause between attempts.
	Backoff time.Duration `yaml:"backoff"`

	// Catalog overrides the known report types.
	Catalog []ReportType `yaml:"catalog"`
}

// Store is the single source of truth for artifact presence and freshness.
// Nothing is cached: every call goes to the filesystem, so several server
// processes (and restarts) see the same state.
type Store struct {
	dir      string
	attempts int
	backoff  time.Duration
	types    []ReportType
	byType   map[string]ReportType
	logger   logging.Logger
}

// NewStore creates the reports directory if needed.
func NewStore(cfg Config, logger logging.Logger) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("reports dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create reports dir: %w", err)
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 100 * time.Millisecond
	}
	catalog := cfg.Catalog
	if len(catalog) == 0 {
		catalog = DefaultCatalog()
	}

	s := &Store{
		dir:      cfg.Dir,
		attempts: cfg.Attempts,
		backoff:  cfg.Backoff,
		types:    catalog,
		byType:   make(map[string]ReportType, len(catalog)),
		logger:   logger.With(logging.Field{Key: "component", Value: "reports"}),
	}
	for _, rt := range catalog {
		s.byType[rt.Type] = rt
	}
	return s, nil
}

// Dir returns the directory scanners write into.
func (s *Store) Dir() string {
	return s.dir
}

// Types returns the known report types in catalog order.
func (s *Store) Types() []ReportType {
	out := make([]ReportType, len(s.types))
	copy(out, s.types)
	return out
}

// Lookup returns the catalog entry for reportType.
func (s *Store) Lookup(reportType string) (ReportType, error) {
	rt, ok := s.byType[reportType]
	if !ok {
		return ReportType{}, fmt.Errorf("%w: %q", model.ErrUnknownReportType, reportType)
	}
	return rt, nil
}

// Path is the absolute location of the artifact for reportType.
func (s *Store) Path(reportType string) (string, error) {
	rt, err := s.Lookup(reportType)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, rt.File), nil
}

// Stat reads artifact metadata. A failing stat is retried with a fixed
// backoff; if every attempt fails the artifact is reported as absent.
func (s *Store) Stat(ctx context.Context, reportType string) (model.ReportArtifact, error) {
	rt, err := s.Lookup(reportType)
	if err != nil {
		return model.ReportArtifact{}, err
	}
	art := model.ReportArtifact{Type: rt.Type, Name: rt.Name, File: rt.File}
	path := filepath.Join(s.dir, rt.File)

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		fi, err := os.Stat(path)
		if err == nil && fi.Mode().IsRegular() {
			mod := fi.ModTime().UTC()
			size := fi.Size()
			art.Exists = true
			art.LastModified = &mod
			art.Size = &size
			return art, nil
		}
		lastErr = err
		if attempt < s.attempts {
			if err := s.sleep(ctx); err != nil {
				return art, err
			}
		}
	}

	if lastErr != nil && !errors.Is(lastErr, fs.ErrNotExist) {
		s.logger.Warn("report stat failed after retries",
			logging.Field{Key: "type", Value: reportType},
			logging.Field{Key: "attempts", Value: s.attempts},
			logging.Err(lastErr))
	}
	return art, nil
}

// List stats every known report type.
func (s *Store) List(ctx context.Context) ([]model.ReportArtifact, error) {
	out := make([]model.ReportArtifact, 0, len(s.types))
	for _, rt := range s.types {
		art, err := s.Stat(ctx, rt.Type)
		if err != nil {
			return nil, err
		}
		out = append(out, art)
	}
	return out, nil
}

// Touch moves the artifact's modification time forward even when the bytes
// did not change, so pollers can tell a new run happened. The new time is
// always strictly after the old one.
func (s *Store) Touch(reportType string) error {
	path, err := s.Path(reportType)
	if err != nil {
		return err
	}
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("touch %s: %w", reportType, model.ErrNotFound)
		}
		return fmt.Errorf("touch %s: %w", reportType, err)
	}

	next := time.Now()
	if prev := fi.ModTime(); !next.After(prev) {
		next = prev.Add(time.Second)
	}
	if err := os.Chtimes(path, next, next); err != nil {
		return fmt.Errorf("touch %s: %w", reportType, err)
	}
	return nil
}

// Read returns the artifact bytes and their content type. An absent or
// empty file is retried (the writer may be mid-write) and then reported as
// ErrNotFound. JSON artifacts that do not parse get one recovery pass;
// if that fails too the result is ErrCorrupt.
func (s *Store) Read(ctx context.Context, reportType string) ([]byte, string, error) {
	rt, err := s.Lookup(reportType)
	if err != nil {
		return nil, "", err
	}
	path := filepath.Join(s.dir, rt.File)

	var (
		data    []byte
		lastErr error
	)
	for attempt := 1; attempt <= s.attempts; attempt++ {
		data, lastErr = os.ReadFile(path)
		if lastErr == nil && len(data) > 0 {
			break
		}
		data = nil
		if attempt < s.attempts {
			if err := s.sleep(ctx); err != nil {
				return nil, "", err
			}
		}
	}
	if data == nil {
		if lastErr != nil && !errors.Is(lastErr, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("read %s: %w", reportType, lastErr)
		}
		return nil, "", fmt.Errorf("read %s: %w", reportType, model.ErrNotFound)
	}

	if !rt.IsJSON() || json.Valid(data) {
		return data, rt.ContentType, nil
	}

	recovered, ok := recoverJSON(data)
	if !ok {
		return nil, "", fmt.Errorf("read %s: %w", reportType, model.ErrCorrupt)
	}
	s.logger.Info("recovered JSON payload from noisy report",
		logging.Field{Key: "type", Value: reportType},
		logging.Field{Key: "original_bytes", Value: len(data)},
		logging.Field{Key: "recovered_bytes", Value: len(recovered)})
	return recovered, rt.ContentType, nil
}

// Snapshot keeps a copy of the current artifact so the next run can be
// diffed against it. A missing artifact is not an error.
func (s *Store) Snapshot(reportType string) error {
	rt, err := s.Lookup(reportType)
	if err != nil {
		return err
	}
	src := filepath.Join(s.dir, rt.File)
	fi, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("snapshot %s: %w", reportType, err)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", reportType, err)
	}

	dst := filepath.Join(s.dir, previousDir, rt.File)
	if err := atomicWriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("snapshot %s: %w", reportType, err)
	}
	mod := fi.ModTime()
	return os.Chtimes(dst, mod, mod)
}

// Diff compares the previous run's artifact with the current one.
// Either side missing yields ErrNotFound.
func (s *Store) Diff(reportType string) (*model.ReportDiff, error) {
	rt, err := s.Lookup(reportType)
	if err != nil {
		return nil, err
	}
	prevPath := filepath.Join(s.dir, previousDir, rt.File)
	curPath := filepath.Join(s.dir, rt.File)

	prevInfo, prev, err := readWithInfo(prevPath)
	if err != nil {
		return nil, fmt.Errorf("diff %s previous: %w", reportType, err)
	}
	curInfo, cur, err := readWithInfo(curPath)
	if err != nil {
		return nil, fmt.Errorf("diff %s current: %w", reportType, err)
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(string(prev), string(cur))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	out := &model.ReportDiff{
		Type:             rt.Type,
		PreviousModified: prevInfo.ModTime().UTC(),
		CurrentModified:  curInfo.ModTime().UTC(),
	}
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			out.Insertions += lineCount(d.Text)
		case diffmatchpatch.DiffDelete:
			out.Deletions += lineCount(d.Text)
		}
	}
	if out.Insertions+out.Deletions > 0 {
		patch := dmp.PatchToText(dmp.PatchMake(string(prev), diffs))
		if len(patch) > maxPatchBytes {
			patch = patch[:maxPatchBytes]
		}
		out.Patch = patch
	}
	return out, nil
}

func (s *Store) sleep(ctx context.Context) error {
	t := time.NewTimer(s.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func readWithInfo(path string) (fs.FileInfo, []byte, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, model.ErrNotFound
		}
		return nil, nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return fi, data, nil
}

func lineCount(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

// atomicWriteFile writes via a temp file in the same directory and renames
// it into place, so readers never observe a partial file.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
