// Copyright 2026 The AgentView Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sessions

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a SQLite-based implementation of Store.
//
// By default, uses a shared in-memory database that is lost when the
// process ends. For persistent storage, provide a file path.
type SQLiteStore struct {
	dbDSN         string
	sessionsTable string
	runsTable     string
	itemsTable    string
	db            *sql.DB
	mu            sync.Mutex
}

type SQLiteStoreParams struct {
	// Optional database data source name.
	// Defaults to "file::memory:?cache=shared" (in-memory database).
	DBDataSourceName string

	// Optional name of the table to store sessions.
	// Defaults to "agentview_sessions".
	SessionsTable string

	// Optional name of the table to store runs.
	// Defaults to "agentview_runs".
	RunsTable string

	// Optional name of the table to store run items.
	// Defaults to "agentview_items".
	ItemsTable string
}

// NewSQLiteStore initializes the SQLite store.
func NewSQLiteStore(ctx context.Context, params SQLiteStoreParams) (_ *SQLiteStore, err error) {
	s := &SQLiteStore{
		dbDSN:         cmp.Or(params.DBDataSourceName, "file::memory:?cache=shared"),
		sessionsTable: cmp.Or(params.SessionsTable, "agentview_sessions"),
		runsTable:     cmp.Or(params.RunsTable, "agentview_runs"),
		itemsTable:    cmp.Or(params.ItemsTable, "agentview_items"),
	}

	defer func() {
		if err != nil && s.db != nil {
			if e := s.Close(); e != nil {
				err = errors.Join(err, e)
			}
		}
	}()

	s.db, err = sql.Open("sqlite3", s.dbDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite3 database: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `PRAGMA journal_mode=WAL`)
	if err != nil {
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}

	err = s.initDB(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, params CreateSessionParams) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := &Session{
		ID:        cmp.Or(params.ID, uuid.NewString()),
		Agent:     params.Agent,
		Metadata:  params.Metadata,
		CreatedAt: time.Now().UTC(),
	}

	metadata, err := marshalJSONColumn(session.Metadata)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO "%s" (id, agent, metadata, created_at) VALUES (?, ?, ?, ?)
	`, s.sessionsTable), session.ID, session.Agent, metadata, formatTime(session.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("error inserting session: %w", err)
	}
	return session, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (_ *Session, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := &Session{ID: id}
	var metadata sql.NullString
	var createdAt string
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT agent, metadata, created_at FROM "%s" WHERE id = ?
	`, s.sessionsTable), id).Scan(&session.Agent, &metadata, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying session: %w", err)
	}
	if session.Metadata, err = unmarshalJSONColumn(metadata); err != nil {
		return nil, err
	}
	if session.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, status, version, metadata, fail_reason, created_at, finished_at, expires_at
		FROM "%s" WHERE session_id = ? ORDER BY rowid ASC
	`, s.runsTable), id)
	if err != nil {
		return nil, fmt.Errorf("error querying runs: %w", err)
	}
	defer func() {
		if e := rows.Close(); e != nil {
			err = errors.Join(err, fmt.Errorf("error closing sql.Rows: %w", e))
		}
	}()

	for rows.Next() {
		run, err := scanRun(rows, id)
		if err != nil {
			return nil, err
		}
		session.Runs = append(session.Runs, *run)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("sql rows scan error: %w", err)
	}

	for i := range session.Runs {
		if err = s.loadItems(ctx, &session.Runs[i]); err != nil {
			return nil, err
		}
	}
	return session, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getRun(ctx, runID)
}

func (s *SQLiteStore) getRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, status, version, metadata, fail_reason, created_at, finished_at, expires_at, session_id
		FROM "%s" WHERE id = ?
	`, s.runsTable), runID)

	var sessionID string
	run, err := scanRunRow(row, &sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	run.SessionID = sessionID

	if err = s.loadItems(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if e := tx.Rollback(); e != nil && !errors.Is(e, sql.ErrTxDone) {
				err = errors.Join(err, e)
			}
		}
	}()

	var sessionCount int
	err = tx.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*) FROM "%s" WHERE id = ?
	`, s.sessionsTable), run.SessionID).Scan(&sessionCount)
	if err != nil {
		return fmt.Errorf("error checking session: %w", err)
	}
	if sessionCount == 0 {
		return ErrSessionNotFound
	}

	// The lock check and the insert share one transaction: this is the
	// compare-and-swap behind the single-active-run invariant.
	var inProgress int
	err = tx.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*) FROM "%s" WHERE session_id = ? AND status = ?
	`, s.runsTable), run.SessionID, RunStatusInProgress).Scan(&inProgress)
	if err != nil {
		return fmt.Errorf("error checking session lock: %w", err)
	}
	if inProgress > 0 {
		return ErrSessionLocked
	}

	metadata, err := marshalJSONColumn(run.Metadata)
	if err != nil {
		return err
	}
	failReason, err := marshalJSONColumn(run.FailReason)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO "%s" (id, session_id, status, version, metadata, fail_reason, created_at, finished_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.runsTable),
		run.ID, run.SessionID, string(run.Status), run.Version, metadata, failReason,
		formatTime(run.CreatedAt), formatTimePtr(run.FinishedAt), formatTimePtr(run.ExpiresAt))
	if err != nil {
		return fmt.Errorf("error inserting run: %w", err)
	}

	for _, item := range run.Items {
		content, err := json.Marshal(item.Content)
		if err != nil {
			return fmt.Errorf("error JSON marshaling item content: %w", err)
		}
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO "%s" (id, run_id, content) VALUES (?, ?, ?)
		`, s.itemsTable), item.ID, run.ID, string(content))
		if err != nil {
			return fmt.Errorf("error inserting item: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) AppendItems(ctx context.Context, runID string, items []Item) error {
	if len(items) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireRunInProgress(ctx, runID); err != nil {
		return err
	}

	for _, item := range items {
		content, err := json.Marshal(item.Content)
		if err != nil {
			return fmt.Errorf("error JSON marshaling item content: %w", err)
		}
		_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO "%s" (id, run_id, content) VALUES (?, ?, ?)
		`, s.itemsTable), item.ID, runID, string(content))
		if err != nil {
			return fmt.Errorf("error inserting item: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status RunStatus, metadata, failReason map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, err := s.getRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Finished() {
		return ErrRunFinished
	}

	if metadata == nil {
		metadata = run.Metadata
	}
	if failReason == nil {
		failReason = run.FailReason
	}
	finishedAt := run.FinishedAt
	expiresAt := run.ExpiresAt
	if status.Terminal() {
		if finishedAt == nil {
			now := time.Now().UTC()
			finishedAt = &now
		}
		expiresAt = nil
	}

	metadataCol, err := marshalJSONColumn(metadata)
	if err != nil {
		return err
	}
	failReasonCol, err := marshalJSONColumn(failReason)
	if err != nil {
		return err
	}

	// The status predicate makes the write conditional: a run expired
	// between the read and this update stays failed.
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE "%s" SET status = ?, metadata = ?, fail_reason = ?, finished_at = ?, expires_at = ?
		WHERE id = ? AND status = ?
	`, s.runsTable), string(status), metadataCol, failReasonCol,
		formatTimePtr(finishedAt), formatTimePtr(expiresAt), runID, string(RunStatusInProgress))
	if err != nil {
		return fmt.Errorf("error updating run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRunFinished
	}
	return nil
}

func (s *SQLiteStore) ExtendRunDeadline(ctx context.Context, runID string, deadline time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE "%s" SET expires_at = ? WHERE id = ? AND status = ?
	`, s.runsTable), formatTime(deadline), runID, string(RunStatusInProgress))
	if err != nil {
		return fmt.Errorf("error extending run deadline: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return s.requireRunInProgress(ctx, runID)
	}
	return nil
}

func (s *SQLiteStore) ExpireRuns(ctx context.Context, now time.Time) (_ []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	failReason, err := marshalJSONColumn(TimeoutFailReason)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		UPDATE "%s" SET status = ?, fail_reason = ?, finished_at = ?, expires_at = NULL
		WHERE status = ? AND expires_at IS NOT NULL AND expires_at < ?
		RETURNING id
	`, s.runsTable), string(RunStatusFailed), failReason, formatTime(now), string(RunStatusInProgress), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("error expiring runs: %w", err)
	}
	defer func() {
		if e := rows.Close(); e != nil {
			err = errors.Join(err, fmt.Errorf("error closing sql.Rows: %w", e))
		}
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sql rows scan error: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("sql rows scan error: %w", err)
	}
	return ids, nil
}

// Close the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// requireRunInProgress distinguishes a missing run from a finished one.
func (s *SQLiteStore) requireRunInProgress(ctx context.Context, runID string) error {
	var status string
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT status FROM "%s" WHERE id = ?
	`, s.runsTable), runID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRunNotFound
	}
	if err != nil {
		return fmt.Errorf("error checking run: %w", err)
	}
	if RunStatus(status) != RunStatusInProgress {
		return ErrRunFinished
	}
	return nil
}

func (s *SQLiteStore) loadItems(ctx context.Context, run *Run) (err error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, content FROM "%s" WHERE run_id = ? ORDER BY rowid ASC
	`, s.itemsTable), run.ID)
	if err != nil {
		return fmt.Errorf("error querying items: %w", err)
	}
	defer func() {
		if e := rows.Close(); e != nil {
			err = errors.Join(err, fmt.Errorf("error closing sql.Rows: %w", e))
		}
	}()

	for rows.Next() {
		var item Item
		var content string
		if err = rows.Scan(&item.ID, &content); err != nil {
			return fmt.Errorf("sql rows scan error: %w", err)
		}
		if err = json.Unmarshal([]byte(content), &item.Content); err != nil {
			return fmt.Errorf("error JSON unmarshaling item content: %w", err)
		}
		run.Items = append(run.Items, item)
	}
	return rows.Err()
}

// Initialize the database schema.
func (s *SQLiteStore) initDB(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s" (
			id TEXT PRIMARY KEY,
			agent TEXT NOT NULL,
			metadata TEXT,
			created_at TEXT NOT NULL
		)
	`, s.sessionsTable))
	if err != nil {
		return fmt.Errorf("error creating sessions table: %w", err)
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s" (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			status TEXT NOT NULL,
			version TEXT,
			metadata TEXT,
			fail_reason TEXT,
			created_at TEXT NOT NULL,
			finished_at TEXT,
			expires_at TEXT,
			FOREIGN KEY (session_id) REFERENCES "%s" (id) ON DELETE CASCADE
		)
	`, s.runsTable, s.sessionsTable))
	if err != nil {
		return fmt.Errorf("error creating runs table: %w", err)
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s" (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			content TEXT NOT NULL,
			FOREIGN KEY (run_id) REFERENCES "%s" (id) ON DELETE CASCADE
		)
	`, s.itemsTable, s.runsTable))
	if err != nil {
		return fmt.Errorf("error creating items table: %w", err)
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS "idx_%s_session_id" ON "%s" (session_id, status)`,
		s.runsTable, s.runsTable))
	if err != nil {
		return fmt.Errorf("error creating index: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(rows *sql.Rows, sessionID string) (*Run, error) {
	run := &Run{SessionID: sessionID}
	var status, createdAt string
	var version, metadata, failReason, finishedAt, expiresAt sql.NullString
	err := rows.Scan(&run.ID, &status, &version, &metadata, &failReason, &createdAt, &finishedAt, &expiresAt)
	if err != nil {
		return nil, fmt.Errorf("sql rows scan error: %w", err)
	}
	return fillRun(run, status, version, metadata, failReason, createdAt, finishedAt, expiresAt)
}

func scanRunRow(row rowScanner, sessionID *string) (*Run, error) {
	run := &Run{}
	var status, createdAt string
	var version, metadata, failReason, finishedAt, expiresAt sql.NullString
	err := row.Scan(&run.ID, &status, &version, &metadata, &failReason, &createdAt, &finishedAt, &expiresAt, sessionID)
	if err != nil {
		return nil, err
	}
	return fillRun(run, status, version, metadata, failReason, createdAt, finishedAt, expiresAt)
}

func fillRun(run *Run, status string, version, metadata, failReason sql.NullString, createdAt string, finishedAt, expiresAt sql.NullString) (_ *Run, err error) {
	run.Status = RunStatus(status)
	run.Version = version.String
	if run.Metadata, err = unmarshalJSONColumn(metadata); err != nil {
		return nil, err
	}
	if run.FailReason, err = unmarshalJSONColumn(failReason); err != nil {
		return nil, err
	}
	if run.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if run.FinishedAt, err = parseTimePtr(finishedAt); err != nil {
		return nil, err
	}
	if run.ExpiresAt, err = parseTimePtr(expiresAt); err != nil {
		return nil, err
	}
	return run, nil
}

func marshalJSONColumn(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("error JSON marshaling column: %w", err)
	}
	return string(b), nil
}

func unmarshalJSONColumn(col sql.NullString) (map[string]any, error) {
	if !col.Valid || col.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(col.String), &m); err != nil {
		return nil, fmt.Errorf("error JSON unmarshaling column: %w", err)
	}
	return m, nil
}

// timeLayout keeps a fixed width so that lexicographic comparison of the
// TEXT columns (the expires_at sweep in ExpireRuns) matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("error parsing timestamp column: %w", err)
	}
	return t, nil
}

func parseTimePtr(col sql.NullString) (*time.Time, error) {
	if !col.Valid || col.String == "" {
		return nil, nil
	}
	t, err := parseTime(col.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
