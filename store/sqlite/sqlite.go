/*
Package sqlite provides the SQLite-backed implementation of the engine's
storage interfaces.

INTERFACES IMPLEMENTED:
  outpass.PassStore:   pass persistence + scan audit log
  mess.PauseStore:     per-student food pause records
  directory.Directory: student lookup by roll number or id

CONDITIONAL UPDATES:
  Pass mutations go through UpdatePassIf, a compare-and-swap:

    UPDATE passes SET ... WHERE id=? AND status=? AND token=?

  A write matching zero rows means another caller transitioned the pass
  first and returns outpass.ErrConflictingTransition. There is no other
  UPDATE path for passes, and passes are never deleted.

KEY TABLES:
  passes:       one row per leave request; unique index on token
  food_pauses:  at most one row per student (PRIMARY KEY student_ref)
  students:     directory records, unique roll numbers
  scan_events:  append-only checkpoint audit log

WAL MODE:
  Opened with WAL for better concurrency: multiple readers don't block,
  single writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/outpass.db")
  if err != nil { ... }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a versioned
  migration tool instead.

SEE ALSO:
  - outpass/store.go:        interface definitions
  - outpass/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hostelhub/outpass-engine/directory"
	"github.com/hostelhub/outpass-engine/mess"
	"github.com/hostelhub/outpass-engine/outpass"
)

const (
	timeLayout = time.RFC3339Nano
	dateLayout = "2006-01-02"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Compile-time interface checks.
var (
	_ outpass.PassStore   = (*Store)(nil)
	_ mess.PauseStore     = (*Store)(nil)
	_ directory.Directory = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS passes (
		id TEXT PRIMARY KEY,
		student_ref TEXT NOT NULL,
		student_name TEXT NOT NULL,
		scheduled_out TEXT NOT NULL,
		scheduled_in TEXT NOT NULL,
		status TEXT NOT NULL,
		kind TEXT NOT NULL,
		reason TEXT NOT NULL,
		token TEXT NOT NULL DEFAULT '',
		is_late INTEGER NOT NULL DEFAULT 0,
		actual_out TEXT,
		actual_in TEXT,
		approved_at TEXT,
		approved_by TEXT NOT NULL DEFAULT '',
		regenerated_at TEXT,
		quota_month INTEGER NOT NULL,
		quota_year INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Tokens are the sole checkpoint verification key and are never
	-- reused across passes or regenerations.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_passes_token
		ON passes(token) WHERE token != '';

	-- Mutual-exclusion and listing queries (hot path at submission)
	CREATE INDEX IF NOT EXISTS idx_passes_student_status
		ON passes(student_ref, status);

	-- Monthly quota counting
	CREATE INDEX IF NOT EXISTS idx_passes_quota
		ON passes(student_ref, quota_year, quota_month, status);

	CREATE TABLE IF NOT EXISTS food_pauses (
		student_ref TEXT PRIMARY KEY,
		pause_from TEXT NOT NULL,
		resume_from TEXT NOT NULL,
		paused_meals TEXT NOT NULL,
		resumed_meals TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		roll TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		mobile TEXT NOT NULL DEFAULT '',
		parent_mobile TEXT NOT NULL DEFAULT ''
	);

	-- Append-only checkpoint audit log
	CREATE TABLE IF NOT EXISTS scan_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		pass_id TEXT NOT NULL,
		student_ref TEXT NOT NULL,
		student_name TEXT NOT NULL,
		direction TEXT NOT NULL,
		at TEXT NOT NULL,
		late INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_scan_events_at ON scan_events(at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PASS STORE
// =============================================================================

func (s *Store) CreatePass(ctx context.Context, p *outpass.Pass) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO passes
		(id, student_ref, student_name, scheduled_out, scheduled_in, status, kind,
		 reason, token, is_late, actual_out, actual_in, approved_at, approved_by,
		 regenerated_at, quota_month, quota_year, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ID,
		p.StudentRef,
		p.StudentName,
		p.ScheduledOut.UTC().Format(timeLayout),
		p.ScheduledIn.UTC().Format(timeLayout),
		p.Status,
		p.Kind,
		p.Reason,
		p.Token,
		boolToInt(p.IsLate),
		nullTime(p.ActualOut),
		nullTime(p.ActualIn),
		nullTime(p.ApprovedAt),
		p.ApprovedBy,
		nullTime(p.RegeneratedAt),
		int(p.Quota.Month),
		p.Quota.Year,
		p.CreatedAt.UTC().Format(timeLayout),
		p.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("pass id or token already exists: %w", outpass.ErrConflictingTransition)
		}
		return fmt.Errorf("failed to insert pass: %w", err)
	}
	return nil
}

func (s *Store) GetPass(ctx context.Context, id string) (*outpass.Pass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryOnePass(ctx, `SELECT `+passColumns+` FROM passes WHERE id = ?`, id)
}

func (s *Store) GetPassByToken(ctx context.Context, token string) (*outpass.Pass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if token == "" {
		return nil, outpass.ErrPassNotFound
	}
	return s.queryOnePass(ctx, `SELECT `+passColumns+` FROM passes WHERE token = ?`, token)
}

func (s *Store) ListByStudent(ctx context.Context, studentRef string, statuses ...outpass.Status) ([]*outpass.Pass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + passColumns + ` FROM passes WHERE student_ref = ?`
	args := []any{studentRef}
	query, args = appendStatusFilter(query, args, statuses)
	query += ` ORDER BY updated_at DESC`

	return s.queryPasses(ctx, query, args...)
}

func (s *Store) ListByStatus(ctx context.Context, statuses ...outpass.Status) ([]*outpass.Pass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + passColumns + ` FROM passes WHERE 1=1`
	var args []any
	query, args = appendStatusFilter(query, args, statuses)
	query += ` ORDER BY approved_at DESC, created_at DESC`

	return s.queryPasses(ctx, query, args...)
}

func (s *Store) CountInQuota(ctx context.Context, studentRef string, period outpass.QuotaPeriod, statuses ...outpass.Status) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT COUNT(*) FROM passes WHERE student_ref = ? AND quota_month = ? AND quota_year = ?`
	args := []any{studentRef, int(period.Month), period.Year}
	query, args = appendStatusFilter(query, args, statuses)

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count quota usage: %w", err)
	}
	return count, nil
}

// UpdatePassIf is the engine's compare-and-swap. The write is conditioned
// on the stored status and token; zero rows affected means a concurrent
// transition won.
func (s *Store) UpdatePassIf(ctx context.Context, p *outpass.Pass, expectStatus outpass.Status, expectToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE passes SET
			status = ?, token = ?, is_late = ?,
			actual_out = ?, actual_in = ?,
			approved_at = ?, approved_by = ?, regenerated_at = ?,
			updated_at = ?
		WHERE id = ? AND status = ? AND token = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		p.Status,
		p.Token,
		boolToInt(p.IsLate),
		nullTime(p.ActualOut),
		nullTime(p.ActualIn),
		nullTime(p.ApprovedAt),
		p.ApprovedBy,
		nullTime(p.RegeneratedAt),
		p.UpdatedAt.UTC().Format(timeLayout),
		p.ID,
		expectStatus,
		expectToken,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("token collision: %w", outpass.ErrConflictingTransition)
		}
		return fmt.Errorf("failed to update pass: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return outpass.ErrConflictingTransition
	}
	return nil
}

func (s *Store) AppendScanEvent(ctx context.Context, ev outpass.ScanEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_events (pass_id, student_ref, student_name, direction, at, late)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.PassID, ev.StudentRef, ev.StudentName, ev.Direction,
		ev.At.UTC().Format(timeLayout), boolToInt(ev.Late),
	)
	if err != nil {
		return fmt.Errorf("failed to append scan event: %w", err)
	}
	return nil
}

func (s *Store) RecentScanEvents(ctx context.Context, since time.Time, limit int) ([]outpass.ScanEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT pass_id, student_ref, student_name, direction, at, late
		FROM scan_events WHERE at >= ? ORDER BY at DESC LIMIT ?`,
		since.UTC().Format(timeLayout), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan events: %w", err)
	}
	defer rows.Close()

	var events []outpass.ScanEvent
	for rows.Next() {
		var ev outpass.ScanEvent
		var at string
		var late int
		if err := rows.Scan(&ev.PassID, &ev.StudentRef, &ev.StudentName, &ev.Direction, &at, &late); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		ev.At, _ = time.Parse(timeLayout, at)
		ev.Late = late != 0
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *Store) CountByStatus(ctx context.Context, status outpass.Status) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passes WHERE status = ?`, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count passes: %w", err)
	}
	return count, nil
}

func (s *Store) CountReturnedSince(ctx context.Context, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM passes WHERE status = ? AND actual_in >= ?`,
		outpass.StatusReturned, since.UTC().Format(timeLayout),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count returned passes: %w", err)
	}
	return count, nil
}

// =============================================================================
// PASS ROW MAPPING
// =============================================================================

const passColumns = `id, student_ref, student_name, scheduled_out, scheduled_in,
	status, kind, reason, token, is_late, actual_out, actual_in,
	approved_at, approved_by, regenerated_at, quota_month, quota_year,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPass(row rowScanner) (*outpass.Pass, error) {
	var p outpass.Pass
	var scheduledOut, scheduledIn, createdAt, updatedAt string
	var actualOut, actualIn, approvedAt, regeneratedAt sql.NullString
	var isLate, quotaMonth int

	err := row.Scan(
		&p.ID, &p.StudentRef, &p.StudentName, &scheduledOut, &scheduledIn,
		&p.Status, &p.Kind, &p.Reason, &p.Token, &isLate,
		&actualOut, &actualIn, &approvedAt, &p.ApprovedBy, &regeneratedAt,
		&quotaMonth, &p.Quota.Year, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.IsLate = isLate != 0
	p.Quota.Month = time.Month(quotaMonth)
	p.ScheduledOut, _ = time.Parse(timeLayout, scheduledOut)
	p.ScheduledIn, _ = time.Parse(timeLayout, scheduledIn)
	p.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	p.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	p.ActualOut = parseNullTime(actualOut)
	p.ActualIn = parseNullTime(actualIn)
	p.ApprovedAt = parseNullTime(approvedAt)
	p.RegeneratedAt = parseNullTime(regeneratedAt)

	return &p, nil
}

func (s *Store) queryOnePass(ctx context.Context, query string, args ...any) (*outpass.Pass, error) {
	p, err := scanPass(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, outpass.ErrPassNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pass: %w", err)
	}
	return p, nil
}

func (s *Store) queryPasses(ctx context.Context, query string, args ...any) ([]*outpass.Pass, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query passes: %w", err)
	}
	defer rows.Close()

	var passes []*outpass.Pass
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pass row: %w", err)
		}
		passes = append(passes, p)
	}
	return passes, rows.Err()
}

func appendStatusFilter(query string, args []any, statuses []outpass.Status) (string, []any) {
	if len(statuses) == 0 {
		return query, args
	}
	placeholders := make([]string, len(statuses))
	for i, st := range statuses {
		placeholders[i] = "?"
		args = append(args, st)
	}
	return query + ` AND status IN (` + strings.Join(placeholders, ", ") + `)`, args
}

// =============================================================================
// PAUSE STORE
// =============================================================================

func (s *Store) UpsertPause(ctx context.Context, rec mess.PauseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Full-document replacement of the pause/resume fields; partial
	// increments would make concurrent writes order-dependent.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO food_pauses (student_ref, pause_from, resume_from, paused_meals, resumed_meals, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(student_ref) DO UPDATE SET
			pause_from = excluded.pause_from,
			resume_from = excluded.resume_from,
			paused_meals = excluded.paused_meals,
			resumed_meals = excluded.resumed_meals,
			updated_at = excluded.updated_at`,
		rec.StudentRef,
		rec.PauseFrom.Format(dateLayout),
		rec.ResumeFrom.Format(dateLayout),
		joinMeals(rec.PausedMeals),
		joinMeals(rec.ResumedMeals),
		rec.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert food pause: %w", err)
	}
	return nil
}

func (s *Store) GetPause(ctx context.Context, studentRef string) (*mess.PauseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec mess.PauseRecord
	var pauseFrom, resumeFrom, pausedMeals, resumedMeals, updatedAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT student_ref, pause_from, resume_from, paused_meals, resumed_meals, updated_at
		FROM food_pauses WHERE student_ref = ?`, studentRef,
	).Scan(&rec.StudentRef, &pauseFrom, &resumeFrom, &pausedMeals, &resumedMeals, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, mess.ErrNoPause
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query food pause: %w", err)
	}

	rec.PauseFrom, _ = time.Parse(dateLayout, pauseFrom)
	rec.ResumeFrom, _ = time.Parse(dateLayout, resumeFrom)
	rec.PausedMeals = splitMeals(pausedMeals)
	rec.ResumedMeals = splitMeals(resumedMeals)
	rec.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)

	return &rec, nil
}

func (s *Store) DeletePause(ctx context.Context, studentRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM food_pauses WHERE student_ref = ?`, studentRef)
	if err != nil {
		return fmt.Errorf("failed to delete food pause: %w", err)
	}
	return nil
}

func joinMeals(meals []mess.Meal) string {
	parts := make([]string, len(meals))
	for i, m := range meals {
		parts[i] = string(m)
	}
	return strings.Join(parts, ",")
}

func splitMeals(s string) []mess.Meal {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	meals := make([]mess.Meal, len(parts))
	for i, p := range parts {
		meals[i] = mess.Meal(p)
	}
	return meals
}

// =============================================================================
// STUDENT DIRECTORY
// =============================================================================

// SaveStudent inserts or replaces a directory record.
func (s *Store) SaveStudent(ctx context.Context, st directory.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO students (id, roll, name, mobile, parent_mobile)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			roll = excluded.roll,
			name = excluded.name,
			mobile = excluded.mobile,
			parent_mobile = excluded.parent_mobile`,
		st.ID, st.Roll, st.Name, st.MobileNumber, st.ParentMobile,
	)
	if err != nil {
		return fmt.Errorf("failed to save student: %w", err)
	}
	return nil
}

// FindByKey resolves a student by roll number or id.
func (s *Store) FindByKey(ctx context.Context, key string) (*directory.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st directory.Student
	err := s.db.QueryRowContext(ctx, `
		SELECT id, roll, name, mobile, parent_mobile
		FROM students WHERE roll = ? OR id = ?`, key, key,
	).Scan(&st.ID, &st.Roll, &st.Name, &st.MobileNumber, &st.ParentMobile)
	if err == sql.ErrNoRows {
		return nil, directory.ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query student: %w", err)
	}
	return &st, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
