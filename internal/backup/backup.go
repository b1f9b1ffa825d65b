package backup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// backupPattern matches snapshot filenames: history-YYYYMMDD-HHMMSS.db
var backupPattern = regexp.MustCompile(`^history-\d{8}-\d{6}\.db$`)

const stampLayout = "20060102-150405"

// Info describes a snapshot file.
type Info struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Service takes snapshots of the history database.
type Service struct {
	db        *sql.DB
	dir       string
	retention int
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a snapshot service keeping at most retention files in
// dir. A retention below one keeps a single snapshot.
func NewService(db *sql.DB, dir string, retention int, logger *slog.Logger) *Service {
	if retention < 1 {
		retention = 1
	}
	return &Service{
		db:        db,
		dir:       dir,
		retention: retention,
		logger:    logger.With(slog.String("component", "backup")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Backup writes a consistent copy of the database using VACUUM INTO.
func (s *Service) Backup(ctx context.Context) (*Info, error) {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	now := s.now()
	filename := "history-" + now.Format(stampLayout) + ".db"
	dest := filepath.Join(s.dir, filename)
	// VACUUM INTO will not overwrite.
	if _, err := os.Stat(dest); err == nil {
		return nil, fmt.Errorf("backup %s already exists", filename)
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return nil, fmt.Errorf("VACUUM INTO: %w", err)
	}
	st, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("stat backup file: %w", err)
	}

	s.logger.Info("history backed up", slog.String("filename", filename), slog.Int64("size", st.Size()))
	return &Info{Filename: filename, Size: st.Size(), CreatedAt: now}, nil
}

// List returns the snapshots in dir, newest first.
func (s *Service) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var out []Info
	for _, entry := range entries {
		if entry.IsDir() || !backupPattern.MatchString(entry.Name()) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(entry.Name(), "history-"), ".db")
		ts, err := time.Parse(stampLayout, stamp)
		if err != nil {
			ts = fi.ModTime()
		}
		out = append(out, Info{Filename: entry.Name(), Size: fi.Size(), CreatedAt: ts})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Prune removes snapshots beyond the retention count and returns how many
// were removed.
func (s *Service) Prune() (int, error) {
	infos, err := s.List()
	if err != nil {
		return 0, err
	}
	if len(infos) <= s.retention {
		return 0, nil
	}

	removed := 0
	for _, b := range infos[s.retention:] {
		if err := os.Remove(filepath.Join(s.dir, b.Filename)); err != nil {
			s.logger.Warn("failed to remove old backup",
				slog.String("filename", b.Filename),
				slog.Any("error", err))
			continue
		}
		removed++
		s.logger.Debug("pruned old backup", slog.String("filename", b.Filename))
	}
	return removed, nil
}

// Dir returns the snapshot directory.
func (s *Service) Dir() string {
	return s.dir
}
