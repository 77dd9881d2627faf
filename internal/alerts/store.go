package alerts

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/raysh454/scanhub/internal/database"
	"github.com/raysh454/scanhub/internal/logging"
	"github.com/raysh454/scanhub/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Store persists alerts through sqlx.
type Store struct {
	db     *sqlx.DB
	logger logging.Logger
	now    func() time.Time
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	OwnerID  string
	JobID    string
	Status   model.AlertStatus
	Severity model.Severity
	Limit    int
}

// OpenStore connects with cfg and applies the schema.
func OpenStore(ctx context.Context, cfg database.Config, logger logging.Logger) (*Store, error) {
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s, err := NewStore(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func NewStore(ctx context.Context, db *sqlx.DB, logger logging.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if err := database.ApplySchema(ctx, db, schemaSQL); err != nil {
		return nil, err
	}
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

type alertRow struct {
	ID          string `db:"id"`
	JobID       string `db:"job_id"`
	OwnerID     string `db:"owner_id"`
	Title       string `db:"title"`
	Severity    string `db:"severity"`
	SourceTool  string `db:"source_tool"`
	Location    string `db:"location"`
	Description string `db:"description"`
	Remediation string `db:"remediation"`
	Status      string `db:"status"`
	CreatedAt   int64  `db:"created_at"`
	UpdatedAt   int64  `db:"updated_at"`
}

const alertColumns = `id, job_id, owner_id, title, severity, source_tool, location, description, remediation, status, created_at, updated_at`

func (r alertRow) toAlert() model.Alert {
	return model.Alert{
		ID:          r.ID,
		JobID:       r.JobID,
		OwnerID:     r.OwnerID,
		Title:       r.Title,
		Severity:    model.Severity(r.Severity),
		SourceTool:  r.SourceTool,
		Location:    r.Location,
		Description: r.Description,
		Remediation: r.Remediation,
		Status:      model.AlertStatus(r.Status),
		CreatedAt:   time.Unix(0, r.CreatedAt).UTC(),
		UpdatedAt:   time.Unix(0, r.UpdatedAt).UTC(),
	}
}

// Create assigns an id, open status and timestamps where missing, then inserts a.
func (s *Store) Create(ctx context.Context, a *model.Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = model.AlertOpen
	}
	if !a.Severity.Valid() {
		return fmt.Errorf("alert %s: invalid severity %q", a.ID, a.Severity)
	}
	now := s.now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = a.CreatedAt

	q := s.db.Rebind(`INSERT INTO alerts (` + alertColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q,
		a.ID, a.JobID, a.OwnerID, a.Title, string(a.Severity), a.SourceTool, a.Location,
		a.Description, a.Remediation, string(a.Status), a.CreatedAt.UnixNano(), a.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// Get returns the alert with id. A non-empty ownerID hides other owners' alerts.
func (s *Store) Get(ctx context.Context, id, ownerID string) (*model.Alert, error) {
	return s.get(ctx, s.db, id, ownerID)
}

func (s *Store) get(ctx context.Context, q sqlx.QueryerContext, id, ownerID string) (*model.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = ?`
	args := []any{id}
	if ownerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, ownerID)
	}
	var row alertRow
	if err := sqlx.GetContext(ctx, q, &row, s.db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrAlertNotFound
		}
		return nil, fmt.Errorf("get alert %s: %w", id, err)
	}
	a := row.toAlert()
	return &a, nil
}

// List returns matching alerts, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]model.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE 1 = 1`
	var args []any
	if f.OwnerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, f.OwnerID)
	}
	if f.JobID != "" {
		query += ` AND job_id = ?`
		args = append(args, f.JobID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, string(f.Severity))
	}
	query += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	var rows []alertRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	out := make([]model.Alert, len(rows))
	for i, r := range rows {
		out[i] = r.toAlert()
	}
	return out, nil
}

// UpdateStatus moves an alert forward. Setting the current status again is
// a no-op; moving backwards returns ErrInvalidTransition.
func (s *Store) UpdateStatus(ctx context.Context, id, ownerID string, next model.AlertStatus) (*model.Alert, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", model.ErrInvalidTransition, next)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin status update: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("alert status rollback failed", logging.Err(rbErr))
		}
	}()

	current, err := s.get(ctx, tx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if current.Status == next {
		return current, nil
	}
	if !current.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, current.Status, next)
	}

	now := s.now().UTC()
	q := tx.Rebind(`UPDATE alerts SET status = ?, updated_at = ? WHERE id = ? AND status = ?`)
	res, err := tx.ExecContext(ctx, q, string(next), now.UnixNano(), id, string(current.Status))
	if err != nil {
		return nil, fmt.Errorf("update alert %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("update alert %s: %w", id, err)
	} else if n != 1 {
		return nil, fmt.Errorf("%w: alert %s changed concurrently", model.ErrInvalidTransition, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit alert %s: %w", id, err)
	}

	current.Status = next
	current.UpdatedAt = now
	return current, nil
}

// Exists reports whether the owner already has an alert with the same
// tool, title and location.
func (s *Store) Exists(ctx context.Context, ownerID, tool, title, location string) (bool, error) {
	var n int
	q := s.db.Rebind(`SELECT COUNT(*) FROM alerts WHERE owner_id = ? AND source_tool = ? AND title = ? AND location = ?`)
	if err := s.db.GetContext(ctx, &n, q, ownerID, tool, title, location); err != nil {
		return false, fmt.Errorf("check alert exists: %w", err)
	}
	return n > 0, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
