// Package schedule runs unattended scans on a cron schedule and optionally
// applies their results.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sydlexius/plexrenamer/internal/event"
	"github.com/sydlexius/plexrenamer/internal/renamer"
	"github.com/sydlexius/plexrenamer/internal/session"
)

// Controller is the part of the session controller the scheduler drives.
type Controller interface {
	StartScan(ctx context.Context, req renamer.ScanRequest) error
	Snapshot() session.Snapshot
	SelectAll()
	Apply(ctx context.Context, dryRun bool) (*renamer.ApplyResponse, error)
}

// ErrScanRunning is returned by RunScan when a scan is already in progress.
var ErrScanRunning = errors.New("scan already running")

// Options configures a Scheduler.
type Options struct {
	// Spec is a standard five-field cron expression.
	Spec      string
	Request   renamer.ScanRequest
	AutoApply bool
	DryRun    bool
	// Maintain, when set, runs once a day (e.g. history pruning).
	Maintain func(ctx context.Context) error
}

// Scheduler starts scans on a cron schedule. Scans it started are applied
// in full when their results load, if AutoApply is set. Scans started by
// someone else are never applied.
type Scheduler struct {
	ctl    Controller
	opts   Options
	logger *slog.Logger
	cron   *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	owned map[string]bool
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New validates opts and creates a stopped scheduler.
func New(ctl Controller, opts Options, logger *slog.Logger) (*Scheduler, error) {
	log := logger.With(slog.String("component", "scheduler"))
	cl := cronLogger{log}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		ctl:    ctl,
		opts:   opts,
		logger: log,
		cron:   c,
		ctx:    ctx,
		cancel: cancel,
		owned:  make(map[string]bool),
	}

	if _, err := c.AddFunc(opts.Spec, s.tick); err != nil {
		cancel()
		return nil, fmt.Errorf("parsing schedule %q: %w", opts.Spec, err)
	}
	if opts.Maintain != nil {
		if _, err := c.AddFunc("@daily", s.maintain); err != nil {
			cancel()
			return nil, fmt.Errorf("adding maintenance job: %w", err)
		}
	}
	return s, nil
}

// Start begins running the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "schedule", s.opts.Spec, "auto_apply", s.opts.AutoApply)
}

// Stop halts the schedule and waits for running jobs and auto-applies.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Next returns the next scheduled scan time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	sched, err := parser.Parse(s.opts.Spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(t)
}

func (s *Scheduler) tick() {
	if err := s.RunScan(s.ctx); err != nil {
		if errors.Is(err, ErrScanRunning) {
			s.logger.Info("skipping scheduled scan, one is already running")
			return
		}
		s.logger.Error("scheduled scan failed to start", "error", err)
	}
}

// RunScan starts a scan now unless one is already running.
func (s *Scheduler) RunScan(ctx context.Context) error {
	if s.ctl.Snapshot().State == session.Scanning {
		return ErrScanRunning
	}
	if err := s.ctl.StartScan(ctx, s.opts.Request); err != nil {
		return err
	}
	id := s.ctl.Snapshot().SessionID
	s.mu.Lock()
	s.owned[id] = true
	s.mu.Unlock()
	s.logger.Info("scheduled scan started", "session_id", id)
	return nil
}

// HandleEvent is an event.Handler for results.loaded. Results reloaded
// after an apply are ignored, so an auto-apply never triggers another.
func (s *Scheduler) HandleEvent(e event.Event) {
	if e.Type != event.ResultsLoaded || e.String("source") != "scan" {
		return
	}
	id := e.String("session_id")
	s.mu.Lock()
	owned := s.owned[id]
	delete(s.owned, id)
	s.mu.Unlock()

	if !owned || !s.opts.AutoApply {
		return
	}
	if e.Int("count") == 0 {
		s.logger.Info("scheduled scan found nothing to rename", "session_id", id)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.autoApply(id)
	}()
}

func (s *Scheduler) autoApply(id string) {
	if s.ctl.Snapshot().SessionID != id {
		s.logger.Info("session superseded before auto-apply", "session_id", id)
		return
	}
	s.ctl.SelectAll()
	resp, err := s.ctl.Apply(s.ctx, s.opts.DryRun)
	if err != nil {
		s.logger.Error("auto-apply failed", "session_id", id, "error", err)
		return
	}
	s.logger.Info("auto-apply finished",
		"session_id", id,
		"dry_run", s.opts.DryRun,
		"successful", resp.Summary.Successful,
		"failed", resp.Summary.Failed)
}

func (s *Scheduler) maintain() {
	if err := s.opts.Maintain(s.ctx); err != nil {
		s.logger.Error("maintenance failed", "error", err)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
