// Package history records scan sessions and apply runs in SQLite so past
// activity can be listed after the process exits.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sydlexius/plexrenamer/internal/event"
)

// Session is one recorded scan.
type Session struct {
	ID              string     `json:"id"`
	MediaType       string     `json:"media_type"`
	ScanPath        string     `json:"scan_path"`
	AllFolders      bool       `json:"all_folders"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	FilesCount      int        `json:"files_count"`
	OperationsCount int        `json:"operations_count"`
	Message         string     `json:"message,omitempty"`
	Runs            []ApplyRun `json:"runs,omitempty"`
}

// ApplyRun is one recorded apply request.
type ApplyRun struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id,omitempty"`
	DryRun     bool      `json:"dry_run"`
	Total      int       `json:"total"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Service reads and writes history rows.
type Service struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a history service on a migrated database.
func NewService(db *sql.DB, logger *slog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With(slog.String("component", "history")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RecordStart inserts a session row.
func (s *Service) RecordStart(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session id is required")
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, media_type, scan_path, all_folders, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, sess.ID, sess.MediaType, sess.ScanPath, sess.AllFolders, sess.StartedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// RecordCompletion marks a session finished with its final counters.
func (s *Service) RecordCompletion(ctx context.Context, id string, files, ops int, message string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET completed_at = ?, files_count = ?, operations_count = ?, message = ?
		WHERE id = ?
	`, s.now().Format(time.RFC3339), files, ops, message, id)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// RecordApply inserts an apply run. An empty SessionID records a run that
// was not tied to a scan started by this client.
func (s *Service) RecordApply(ctx context.Context, run *ApplyRun) error {
	run.ID = uuid.New().String()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now()
	}
	var sessionID any
	if run.SessionID != "" {
		sessionID = run.SessionID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO apply_runs (id, session_id, dry_run, total, successful, failed, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, sessionID, run.DryRun, run.Total, run.Successful, run.Failed, run.Message,
		run.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting apply run: %w", err)
	}
	return nil
}

// Recent returns the newest sessions, each with its apply runs.
func (s *Service) Recent(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, media_type, scan_path, all_folders, started_at, completed_at,
		       files_count, operations_count, message
		FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var sessions []Session
	for rows.Next() {
		var sess Session
		var started string
		var completed sql.NullString
		if err := rows.Scan(&sess.ID, &sess.MediaType, &sess.ScanPath, &sess.AllFolders,
			&started, &completed, &sess.FilesCount, &sess.OperationsCount, &sess.Message); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sess.StartedAt = parseTime(started)
		if completed.Valid {
			t := parseTime(completed.String)
			sess.CompletedAt = &t
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sessions {
		runs, err := s.runs(ctx, `WHERE session_id = ? ORDER BY created_at, rowid`, sessions[i].ID)
		if err != nil {
			return nil, err
		}
		sessions[i].Runs = runs
	}
	return sessions, nil
}

// RecentRuns returns the newest apply runs regardless of session.
func (s *Service) RecentRuns(ctx context.Context, limit int) ([]ApplyRun, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.runs(ctx, `ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
}

func (s *Service) runs(ctx context.Context, clause string, args ...any) ([]ApplyRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(session_id, ''), dry_run, total, successful, failed, message, created_at
		FROM apply_runs `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("listing apply runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var runs []ApplyRun
	for rows.Next() {
		var r ApplyRun
		var created string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.DryRun, &r.Total, &r.Successful,
			&r.Failed, &r.Message, &created); err != nil {
			return nil, fmt.Errorf("scanning apply run: %w", err)
		}
		r.CreatedAt = parseTime(created)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Prune deletes sessions started before cutoff (their runs cascade) and
// unattached runs older than cutoff.
func (s *Service) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	ts := cutoff.UTC().Format(time.RFC3339)

	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE started_at < ?`, ts)
	if err != nil {
		return 0, fmt.Errorf("pruning sessions: %w", err)
	}
	n, _ := res.RowsAffected()

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM apply_runs WHERE session_id IS NULL AND created_at < ?`, ts); err != nil {
		return n, fmt.Errorf("pruning apply runs: %w", err)
	}

	s.logger.Info("history pruned", slog.Int64("sessions", n), slog.String("cutoff", ts))
	return n, nil
}

// HandleEvent records session and apply events from the bus.
func (s *Service) HandleEvent(e event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	switch e.Type {
	case event.ScanStarted:
		err = s.RecordStart(ctx, &Session{
			ID:         e.String("session_id"),
			MediaType:  e.String("media_type"),
			ScanPath:   e.String("scan_path"),
			AllFolders: e.Bool("all"),
			StartedAt:  e.Timestamp,
		})
	case event.ScanCompleted:
		err = s.RecordCompletion(ctx, e.String("session_id"),
			e.Int("files_count"), e.Int("operations_count"), e.String("message"))
	case event.ApplyCompleted:
		err = s.RecordApply(ctx, &ApplyRun{
			SessionID:  e.String("session_id"),
			DryRun:     e.Bool("dry_run"),
			Total:      e.Int("total"),
			Successful: e.Int("successful"),
			Failed:     e.Int("failed"),
			Message:    e.String("message"),
			CreatedAt:  e.Timestamp,
		})
	default:
		return
	}
	if err != nil {
		s.logger.Warn("recording history", "type", string(e.Type), "error", err)
	}
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
