// Package store persists verdict records and run summaries in SQLite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/ppiankov/veritas/internal/model"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrDuplicateID is returned by Insert when a record with the same id is
// already stored.
var ErrDuplicateID = errors.New("duplicate verdict id")

//go:embed schema.sql
var schemaSQL string

var verdictColumns = []string{
	"id", "owner_id", "run_id", "source_kind", "source_text", "source_url", "source_title",
	"label", "confidence", "explanation", "model_version", "processing_time_ms", "created_at",
}

var runColumns = []string{
	"run_id", "owner_id", "state", "total", "processed", "completed", "failed",
	"persist_failed", "started_at", "finished_at",
}

// Filter narrows a history query. Zero values match everything.
type Filter struct {
	Label       model.Label
	Since       time.Time
	Limit       int
	NewestFirst bool
}

// Store is a SQLite-backed result store. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	now func() time.Time
}

// Open connects to the database at path, creating the file, its directory
// and the schema when missing.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Question),
		now: time.Now,
	}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert stores rec, assigning its ID (when empty) and CreatedAt
func (s *Store) Insert(ctx context.Context, rec *model.VerdictRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = s.now().UTC()

	query, args, err := s.sb.Insert("verdicts").
		Columns(verdictColumns...).
		Values(
			rec.ID,
			nullable(rec.OwnerID),
			nullable(rec.RunID),
			string(rec.SourceKind),
			nullable(rec.SourceText),
			nullable(rec.SourceURL),
			nullable(rec.SourceTitle),
			string(rec.Label),
			rec.Confidence,
			nullable(rec.Explanation),
			rec.ModelVersion,
			rec.ProcessingTimeMs,
			rec.CreatedAt.UnixNano(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert verdict %s: %w", rec.ID, ErrDuplicateID)
		}
		return fmt.Errorf("insert verdict: %w", err)
	}
	return nil
}

// id is the only unique column a caller can set
func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) && serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed: verdicts.id")
}

// QueryByOwner returns the records of ownerID in insertion order (or the
// reverse with NewestFirst). An empty ownerID selects anonymous records.
func (s *Store) QueryByOwner(ctx context.Context, ownerID string, filter Filter) ([]model.VerdictRecord, error) {
	q := s.sb.Select(verdictColumns...).From("verdicts").Where(ownerEq(ownerID))

	if filter.Label != "" {
		q = q.Where(sq.Eq{"label": string(filter.Label)})
	}
	if !filter.Since.IsZero() {
		q = q.Where(sq.GtOrEq{"created_at": filter.Since.UnixNano()})
	}
	if filter.NewestFirst {
		q = q.OrderBy("seq DESC")
	} else {
		q = q.OrderBy("seq ASC")
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query verdicts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.VerdictRecord
	for rows.Next() {
		rec, err := scanVerdict(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read verdicts: %w", err)
	}
	return records, nil
}

// SaveRun records summary, replacing an earlier record of the same run
func (s *Store) SaveRun(ctx context.Context, summary model.RunSummary) error {
	query, args, err := s.sb.Insert("runs").
		Options("OR REPLACE").
		Columns(runColumns...).
		Values(
			summary.RunID,
			nullable(summary.OwnerID),
			string(summary.State),
			summary.Total,
			summary.Processed,
			summary.Completed,
			summary.Failed,
			summary.PersistFailed,
			summary.StartedAt.UnixNano(),
			summary.FinishedAt.UnixNano(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// ListRuns returns the newest run summaries of ownerID first
func (s *Store) ListRuns(ctx context.Context, ownerID string, limit int) ([]model.RunSummary, error) {
	q := s.sb.Select(runColumns...).From("runs").
		Where(ownerEq(ownerID)).
		OrderBy("started_at DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []model.RunSummary
	for rows.Next() {
		var sum model.RunSummary
		var owner sql.NullString
		var state string
		var startedAt, finished int64
		if err := rows.Scan(&sum.RunID, &owner, &state, &sum.Total, &sum.Processed, &sum.Completed,
			&sum.Failed, &sum.PersistFailed, &startedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		sum.OwnerID = owner.String
		sum.State = model.RunState(state)
		sum.StartedAt = time.Unix(0, startedAt).UTC()
		sum.FinishedAt = time.Unix(0, finished).UTC()
		runs = append(runs, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read runs: %w", err)
	}
	return runs, nil
}

func scanVerdict(rows *sql.Rows) (model.VerdictRecord, error) {
	var rec model.VerdictRecord
	var owner, runID, text, url, title, expl sql.NullString
	var kind, label string
	var createdAt int64

	err := rows.Scan(&rec.ID, &owner, &runID, &kind, &text, &url, &title,
		&label, &rec.Confidence, &expl, &rec.ModelVersion, &rec.ProcessingTimeMs, &createdAt)
	if err != nil {
		return rec, fmt.Errorf("scan verdict: %w", err)
	}

	rec.OwnerID = owner.String
	rec.RunID = runID.String
	rec.SourceKind = model.ItemKind(kind)
	rec.SourceText = text.String
	rec.SourceURL = url.String
	rec.SourceTitle = title.String
	rec.Label = model.Label(label)
	rec.Explanation = expl.String
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	return rec, nil
}

// ownerEq matches ownerID, or NULL for anonymous callers
func ownerEq(ownerID string) sq.Eq {
	if ownerID == "" {
		return sq.Eq{"owner_id": nil}
	}
	return sq.Eq{"owner_id": ownerID}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
