package backup

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "CREATE TABLE sessions (id TEXT PRIMARY KEY, scan_path TEXT)"); err != nil {
		t.Fatalf("creating table: %v", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO sessions VALUES ('s1', '/media/movies')"); err != nil {
		t.Fatalf("inserting row: %v", err)
	}
	return db
}

// clock returns a now func that advances one minute per call.
func clock() func() time.Time {
	t := time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func TestBackup(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, filepath.Join(t.TempDir(), "backups"), 7, testLogger())

	info, err := svc.Backup(context.Background())
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if info.Size == 0 {
		t.Error("expected non-zero file size")
	}
	if !backupPattern.MatchString(info.Filename) {
		t.Errorf("unexpected filename %q", info.Filename)
	}

	copyDB, err := sql.Open("sqlite", filepath.Join(svc.Dir(), info.Filename))
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer copyDB.Close()

	var path string
	if err := copyDB.QueryRowContext(context.Background(), "SELECT scan_path FROM sessions WHERE id = 's1'").Scan(&path); err != nil {
		t.Fatalf("querying backup: %v", err)
	}
	if path != "/media/movies" {
		t.Errorf("scan_path = %q", path)
	}
}

func TestBackup_SameSecondFails(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, filepath.Join(t.TempDir(), "backups"), 7, testLogger())
	fixed := time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	if _, err := svc.Backup(context.Background()); err != nil {
		t.Fatalf("first Backup: %v", err)
	}
	if _, err := svc.Backup(context.Background()); err == nil {
		t.Error("expected an error for an existing snapshot")
	}
}

func TestListAndPrune(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, filepath.Join(t.TempDir(), "backups"), 2, testLogger())
	svc.now = clock()

	for i := 0; i < 4; i++ {
		if _, err := svc.Backup(context.Background()); err != nil {
			t.Fatalf("Backup %d: %v", i, err)
		}
	}
	// Unrelated files are ignored.
	if err := os.WriteFile(filepath.Join(svc.Dir(), "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	infos, err := svc.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 4 {
		t.Fatalf("expected 4 snapshots, got %d", len(infos))
	}
	if !infos[0].CreatedAt.After(infos[1].CreatedAt) {
		t.Error("expected newest first")
	}

	removed, err := svc.Prune()
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	infos, err = svc.List()
	if err != nil {
		t.Fatalf("List after prune: %v", err)
	}
	if len(infos) != 2 || infos[0].Filename != "history-20260501-030400.db" {
		t.Errorf("kept = %+v", infos)
	}
}

func TestListMissingDir(t *testing.T) {
	svc := NewService(setupTestDB(t), filepath.Join(t.TempDir(), "nonexistent"), 7, testLogger())
	infos, err := svc.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("expected no snapshots, got %d", len(infos))
	}
}
