package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes the desired logging configuration.
type Config struct {
	Level          string
	Format         string
	FilePath       string
	FileMaxSizeMB  int
	FileMaxFiles   int
	FileMaxAgeDays int
	// Quiet drops console output, leaving only the log file (if any).
	// The TUI sets it so log lines do not tear the screen.
	Quiet bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:          "info",
		Format:         "text",
		FileMaxSizeMB:  100,
		FileMaxFiles:   5,
		FileMaxAgeDays: 30,
	}
}

// String returns a human-readable summary of the config.
func (c Config) String() string {
	s := fmt.Sprintf("level=%s format=%s", c.Level, c.Format)
	if c.FilePath != "" {
		s += fmt.Sprintf(" file=%s max_size=%dMB max_files=%d max_age=%dd",
			c.FilePath, c.FileMaxSizeMB, c.FileMaxFiles, c.FileMaxAgeDays)
	}
	if c.Quiet {
		s += " quiet"
	}
	return s
}

// switchHandler routes records to whichever base handler the Manager
// currently holds. Attributes and groups added through With are replayed
// onto the current base, so derived loggers follow a Reconfigure.
type switchHandler struct {
	base *atomic.Pointer[slog.Handler]
	ops  []func(slog.Handler) slog.Handler
}

func (h *switchHandler) current() slog.Handler {
	hd := *h.base.Load()
	for _, op := range h.ops {
		hd = op(hd)
	}
	return hd
}

func (h *switchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return (*h.base.Load()).Enabled(ctx, level)
}

func (h *switchHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.current().Handle(ctx, r)
}

func (h *switchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(hd slog.Handler) slog.Handler { return hd.WithAttrs(attrs) })
}

func (h *switchHandler) WithGroup(name string) slog.Handler {
	return h.with(func(hd slog.Handler) slog.Handler { return hd.WithGroup(name) })
}

func (h *switchHandler) with(op func(slog.Handler) slog.Handler) slog.Handler {
	ops := slices.Clone(h.ops)
	return &switchHandler{base: h.base, ops: append(ops, op)}
}

// Manager owns the logger lifecycle and supports runtime reconfiguration.
type Manager struct {
	levelVar *slog.LevelVar
	base     atomic.Pointer[slog.Handler]
	console  io.Writer

	mu     sync.Mutex
	config Config
	file   *lumberjack.Logger
}

// NewManager creates a Manager writing to console (os.Stderr when nil) and
// returns it along with a ready-to-use logger.
func NewManager(cfg Config, console io.Writer) (*Manager, *slog.Logger) {
	if console == nil {
		console = os.Stderr
	}
	m := &Manager{
		levelVar: &slog.LevelVar{},
		console:  console,
	}
	m.levelVar.Set(parseLevel(cfg.Level))
	m.install(cfg)
	m.config = cfg

	return m, slog.New(&switchHandler{base: &m.base})
}

// Reconfigure applies a new configuration at runtime. Level-only changes
// go through the LevelVar; any output change rebuilds the base handler.
func (m *Manager) Reconfigure(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.levelVar.Set(parseLevel(cfg.Level))

	old := m.config
	if cfg.Format != old.Format ||
		cfg.FilePath != old.FilePath ||
		cfg.FileMaxSizeMB != old.FileMaxSizeMB ||
		cfg.FileMaxFiles != old.FileMaxFiles ||
		cfg.FileMaxAgeDays != old.FileMaxAgeDays ||
		cfg.Quiet != old.Quiet {
		if m.file != nil {
			m.file.Close() //nolint:errcheck
			m.file = nil
		}
		m.install(cfg)
	}
	m.config = cfg
}

func (m *Manager) install(cfg Config) {
	var writers []io.Writer
	if !cfg.Quiet {
		writers = append(writers, m.console)
	}
	if cfg.FilePath != "" {
		m.file = newFileWriter(cfg)
		writers = append(writers, m.file)
	}

	var w io.Writer
	switch len(writers) {
	case 0:
		w = io.Discard
	case 1:
		w = writers[0]
	default:
		w = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{Level: m.levelVar}
	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	m.base.Store(&h)
}

func newFileWriter(cfg Config) *lumberjack.Logger {
	size := cfg.FileMaxSizeMB
	if size <= 0 {
		size = 100
	}
	files := cfg.FileMaxFiles
	if files <= 0 {
		files = 5
	}
	age := cfg.FileMaxAgeDays
	if age <= 0 {
		age = 30
	}
	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    size,
		MaxBackups: files,
		MaxAge:     age,
	}
}

// Config returns the current configuration snapshot.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Rotate starts a new log file. It is a no-op without a file.
func (m *Manager) Rotate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	if err := m.file.Rotate(); err != nil {
		return fmt.Errorf("rotating log file: %w", err)
	}
	return nil
}

// Close releases the log file, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidLevel returns true if s is a recognized log level.
func ValidLevel(s string) bool {
	switch s {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

// ValidFormat returns true if s is a recognized log format.
func ValidFormat(s string) bool {
	return s == "text" || s == "json"
}
