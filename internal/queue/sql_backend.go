package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/raysh454/scanhub/internal/database"
	"github.com/raysh454/scanhub/internal/logging"
	"github.com/raysh454/scanhub/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// SQLBackend stores jobs in a single table through sqlx.
type SQLBackend struct {
	db     *sqlx.DB
	logger logging.Logger
}

var _ Backend = (*SQLBackend)(nil)

// OpenSQLBackend connects with cfg and applies the schema.
func OpenSQLBackend(ctx context.Context, cfg database.Config, logger logging.Logger) (*SQLBackend, error) {
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	b, err := NewSQLBackend(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// NewSQLBackend wraps an open connection and applies the schema.
func NewSQLBackend(ctx context.Context, db *sqlx.DB, logger logging.Logger) (*SQLBackend, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if err := database.ApplySchema(ctx, db, schemaSQL); err != nil {
		return nil, err
	}
	return &SQLBackend{db: db, logger: logger}, nil
}

// jobRow mirrors the jobs table.
type jobRow struct {
	ID           string        `db:"id"`
	Type         string        `db:"type"`
	Target       string        `db:"target"`
	ScanMode     string        `db:"scan_mode"`
	OwnerID      string        `db:"owner_id"`
	State        string        `db:"state"`
	CreatedAt    int64         `db:"created_at"`
	RunAt        sql.NullInt64 `db:"run_at"`
	StartedAt    sql.NullInt64 `db:"started_at"`
	FinishedAt   sql.NullInt64 `db:"finished_at"`
	FailedReason string        `db:"failed_reason"`
	ExitCode     sql.NullInt64 `db:"exit_code"`
}

const jobColumns = `id, type, target, scan_mode, owner_id, state, created_at, run_at, started_at, finished_at, failed_reason, exit_code`

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}

func (r jobRow) toJob() model.Job {
	j := model.Job{
		ID:           r.ID,
		Type:         model.JobType(r.Type),
		Target:       r.Target,
		ScanMode:     model.ScanMode(r.ScanMode),
		OwnerID:      r.OwnerID,
		State:        model.JobState(r.State),
		CreatedAt:    time.Unix(0, r.CreatedAt).UTC(),
		RunAt:        timePtr(r.RunAt),
		StartedAt:    timePtr(r.StartedAt),
		FinishedAt:   timePtr(r.FinishedAt),
		FailedReason: r.FailedReason,
	}
	if r.ExitCode.Valid {
		code := int(r.ExitCode.Int64)
		j.ExitCode = &code
	}
	return j
}

func (b *SQLBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *SQLBackend) Add(ctx context.Context, job *model.Job) error {
	q := b.db.Rebind(`INSERT INTO jobs (` + jobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	var exit sql.NullInt64
	if job.ExitCode != nil {
		exit = sql.NullInt64{Int64: int64(*job.ExitCode), Valid: true}
	}
	_, err := b.db.ExecContext(ctx, q,
		job.ID, string(job.Type), job.Target, string(job.ScanMode), job.OwnerID, string(job.State),
		job.CreatedAt.UnixNano(), nullTime(job.RunAt), nullTime(job.StartedAt), nullTime(job.FinishedAt),
		job.FailedReason, exit)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

func (b *SQLBackend) Claim(ctx context.Context, now time.Time, lease Lease) (*model.Job, error) {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			b.logger.Warn("claim rollback failed", logging.Err(rbErr))
		}
	}()

	promote := tx.Rebind(`UPDATE jobs SET state = ? WHERE state = ? AND run_at <= ?`)
	if _, err := tx.ExecContext(ctx, promote, string(model.JobWaiting), string(model.JobDelayed), now.UnixNano()); err != nil {
		return nil, fmt.Errorf("promote delayed jobs: %w", err)
	}

	var id string
	pick := tx.Rebind(`SELECT id FROM jobs WHERE state = ? ORDER BY created_at, id LIMIT 1`)
	if err := tx.GetContext(ctx, &id, pick, string(model.JobWaiting)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if err := tx.Commit(); err != nil {
				return nil, fmt.Errorf("commit promotion: %w", err)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("select waiting job: %w", err)
	}

	// The state guard makes the update a no-op if another worker won.
	update := tx.Rebind(`UPDATE jobs SET state = ?, started_at = ?, claimed_by = ?, lease_until = ? WHERE id = ? AND state = ?`)
	res, err := tx.ExecContext(ctx, update, string(model.JobActive), now.UnixNano(), lease.Holder, lease.Until.UnixNano(), id, string(model.JobWaiting))
	if err != nil {
		return nil, fmt.Errorf("activate job %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("activate job %s: %w", id, err)
	} else if n != 1 {
		return nil, nil
	}

	var row jobRow
	if err := tx.GetContext(ctx, &row, tx.Rebind(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`), id); err != nil {
		return nil, fmt.Errorf("reload job %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	job := row.toJob()
	return &job, nil
}

func (b *SQLBackend) Finish(ctx context.Context, id string, outcome model.Outcome, now time.Time) (*model.Job, error) {
	if !outcome.State.Terminal() {
		return nil, fmt.Errorf("finish job %s: state %q is not terminal: %w", id, outcome.State, model.ErrJobNotActive)
	}
	var exit sql.NullInt64
	if outcome.ExitCode != nil {
		exit = sql.NullInt64{Int64: int64(*outcome.ExitCode), Valid: true}
	}

	q := b.db.Rebind(`UPDATE jobs SET state = ?, finished_at = ?, failed_reason = ?, exit_code = ?, lease_until = NULL WHERE id = ? AND state = ?`)
	res, err := b.db.ExecContext(ctx, q, string(outcome.State), now.UnixNano(), outcome.Reason, exit, id, string(model.JobActive))
	if err != nil {
		return nil, fmt.Errorf("finish job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("finish job %s: %w", id, err)
	}
	if n == 0 {
		if _, getErr := b.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("finish job %s: %w", id, model.ErrJobNotActive)
	}
	return b.Get(ctx, id)
}

func (b *SQLBackend) Renew(ctx context.Context, id string, lease Lease) error {
	q := b.db.Rebind(`UPDATE jobs SET lease_until = ? WHERE id = ? AND state = ? AND claimed_by = ?`)
	res, err := b.db.ExecContext(ctx, q, lease.Until.UnixNano(), id, string(model.JobActive), lease.Holder)
	if err != nil {
		return fmt.Errorf("renew lease on job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("renew lease on job %s: %w", id, err)
	}
	if n == 0 {
		if _, getErr := b.Get(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("renew lease on job %s: %w", id, model.ErrJobNotActive)
	}
	return nil
}

func (b *SQLBackend) FailInterrupted(ctx context.Context, holder string, now time.Time, reason string) (int64, error) {
	query := `UPDATE jobs SET state = ?, finished_at = ?, failed_reason = ?, lease_until = NULL
		WHERE state = ? AND (lease_until IS NULL OR lease_until < ?`
	args := []any{string(model.JobFailed), now.UnixNano(), reason, string(model.JobActive), now.UnixNano()}
	if holder != "" {
		query += ` OR claimed_by = ?`
		args = append(args, holder)
	}
	query += `)`
	res, err := b.db.ExecContext(ctx, b.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted jobs: %w", err)
	}
	return res.RowsAffected()
}

func (b *SQLBackend) Get(ctx context.Context, id string) (*model.Job, error) {
	var row jobRow
	err := b.db.GetContext(ctx, &row, b.db.Rebind(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrJobNotFound
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	job := row.toJob()
	return &job, nil
}

func (b *SQLBackend) Counts(ctx context.Context) (model.StateCounts, error) {
	var counts model.StateCounts
	rows, err := b.db.QueryxContext(ctx, `SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return counts, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return counts, fmt.Errorf("scan counts: %w", err)
		}
		counts.Add(model.JobState(state), n)
	}
	return counts, rows.Err()
}

func (b *SQLBackend) List(ctx context.Context, opts ListOptions) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if len(opts.States) > 0 {
		states := make([]string, len(opts.States))
		for i, s := range opts.States {
			states[i] = string(s)
		}
		q, a, err := sqlx.In(query+` WHERE state IN (?)`, states)
		if err != nil {
			return nil, fmt.Errorf("build job listing: %w", err)
		}
		query, args = q, a
	}
	if opts.NewestFinishedFirst {
		query += ` ORDER BY finished_at DESC, id DESC`
	} else {
		query += ` ORDER BY created_at, id`
	}
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	var rows []jobRow
	if err := b.db.SelectContext(ctx, &rows, b.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	jobs := make([]model.Job, len(rows))
	for i, r := range rows {
		jobs[i] = r.toJob()
	}
	return jobs, nil
}

func (b *SQLBackend) Metrics(ctx context.Context) ([]model.TypeMetrics, error) {
	byType := make(map[model.JobType]*model.TypeMetrics, len(model.JobTypes))
	for _, t := range model.JobTypes {
		byType[t] = &model.TypeMetrics{Type: t}
	}
	get := func(t string) *model.TypeMetrics {
		jt := model.JobType(t)
		m, ok := byType[jt]
		if !ok {
			m = &model.TypeMetrics{Type: jt}
			byType[jt] = m
		}
		return m
	}

	rows, err := b.db.QueryxContext(ctx, `SELECT type, state, COUNT(*) FROM jobs GROUP BY type, state`)
	if err != nil {
		return nil, fmt.Errorf("metrics counts: %w", err)
	}
	for rows.Next() {
		var (
			typ, state string
			n          int
		)
		if err := rows.Scan(&typ, &state, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan metrics counts: %w", err)
		}
		get(typ).Counts.Add(model.JobState(state), n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var durations []struct {
		Type         string          `db:"type"`
		AvgNanos     sql.NullFloat64 `db:"avg_nanos"`
		LastFinished sql.NullInt64   `db:"last_finished"`
	}
	err = b.db.SelectContext(ctx, &durations, `
		SELECT type,
		       CAST(AVG(finished_at - started_at) AS DOUBLE PRECISION) AS avg_nanos,
		       MAX(finished_at) AS last_finished
		FROM jobs
		WHERE finished_at IS NOT NULL AND started_at IS NOT NULL
		GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("metrics durations: %w", err)
	}
	for _, d := range durations {
		m := get(d.Type)
		if d.AvgNanos.Valid {
			m.AvgDurationMs = time.Duration(d.AvgNanos.Float64).Milliseconds()
		}
		m.LastFinishedAt = timePtr(d.LastFinished)
	}

	out := make([]model.TypeMetrics, 0, len(byType))
	for _, t := range model.JobTypes {
		out = append(out, *byType[t])
		delete(byType, t)
	}
	for _, m := range byType {
		out = append(out, *m)
	}
	for i := range out {
		out[i].Total = out[i].Counts.Total()
	}
	return out, nil
}

func (b *SQLBackend) Prune(ctx context.Context, retain int) (int64, error) {
	if retain < 0 {
		retain = 0
	}
	q := b.db.Rebind(`
		DELETE FROM jobs
		WHERE state IN (?, ?)
		  AND id NOT IN (
		    SELECT id FROM (
		      SELECT id FROM jobs WHERE state IN (?, ?)
		      ORDER BY finished_at DESC, id DESC LIMIT ?
		    ) AS keep
		  )`)
	done, failed := string(model.JobCompleted), string(model.JobFailed)
	res, err := b.db.ExecContext(ctx, q, done, failed, done, failed, retain)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}

func (b *SQLBackend) Close() error {
	return b.db.Close()
}
