package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/sydlexius/plexrenamer/internal/config"
	"github.com/sydlexius/plexrenamer/internal/database"
	"github.com/sydlexius/plexrenamer/internal/event"
	"github.com/sydlexius/plexrenamer/internal/history"
	"github.com/sydlexius/plexrenamer/internal/logging"
	"github.com/sydlexius/plexrenamer/internal/renamer"
	"github.com/sydlexius/plexrenamer/internal/session"
	"github.com/sydlexius/plexrenamer/internal/view"
)

// runMode selects how console logging behaves.
type runMode int

const (
	// modeCLI keeps the console to warnings so command output stays readable.
	modeCLI runMode = iota
	// modeTUI sends logs only to the log file, if one is configured.
	modeTUI
	// modeDaemon logs as configured.
	modeDaemon
)

// app holds the components shared by the commands.
type app struct {
	env     *env
	cfg     *config.Config
	logs    *logging.Manager
	logger  *slog.Logger
	client  *renamer.Client
	bus     *event.Bus
	busDone chan struct{}
	ctrl    *session.Controller
	out     *view.Line
	db      *sql.DB
}

func newApp(e *env, mode runMode) (*app, error) {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logs, logger := logging.NewManager(loggingConfig(cfg, e, mode), e.stderr)

	client, err := renamer.New(cfg.Server.URL, cfg.Server.Timeout, logger)
	if err != nil {
		logs.Close() //nolint:errcheck
		return nil, fmt.Errorf("creating backend client: %w", err)
	}
	client.SetRateLimit(cfg.Server.RequestsPerSecond, 1)

	bus := event.NewBus(logger, 256)
	busDone := make(chan struct{})
	go func() {
		bus.Start()
		close(busDone)
	}()

	ctrl := session.New(client, bus, logger)
	ctrl.SetPollInterval(cfg.Scan.PollInterval)

	return &app{
		env:     e,
		cfg:     cfg,
		logs:    logs,
		logger:  logger,
		client:  client,
		bus:     bus,
		busDone: busDone,
		ctrl:    ctrl,
		out:     view.NewLine(e.stdout),
	}, nil
}

func loggingConfig(cfg *config.Config, e *env, mode runMode) logging.Config {
	lc := cfg.LoggingManagerConfig()
	switch {
	case e.verbose:
		lc.Level = "debug"
	case mode == modeCLI && (lc.Level == "debug" || lc.Level == "info"):
		lc.Level = "warn"
	}
	lc.Quiet = mode == modeTUI
	return lc
}

// follow prints session progress and notices on the line view.
func (a *app) follow() {
	for _, t := range []event.Type{event.ScanStarted, event.ScanProgress, event.ScanCompleted, event.Notice} {
		a.bus.Subscribe(t, a.out.HandleEvent)
	}
}

// openHistory opens and migrates the history database and subscribes the
// recorder to the bus.
func (a *app) openHistory(ctx context.Context) (*history.Service, error) {
	if a.db == nil {
		db, err := database.Open(a.cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		if _, err := database.Migrate(ctx, db, a.logger); err != nil {
			db.Close() //nolint:errcheck
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		a.db = db
	}
	return history.NewService(a.db, a.logger), nil
}

// recordHistory subscribes a history recorder when the database can be
// opened. History is best effort outside the daemon.
func (a *app) recordHistory(ctx context.Context) {
	svc, err := a.openHistory(ctx)
	if err != nil {
		a.logger.Warn("session history disabled", "error", err)
		return
	}
	for _, t := range []event.Type{event.ScanStarted, event.ScanCompleted, event.ApplyCompleted} {
		a.bus.Subscribe(t, svc.HandleEvent)
	}
}

// scanRequest builds a scan request from flags, falling back to the local
// config and then to the library path configured on the backend.
func (a *app) scanRequest(ctx context.Context, mediaType, path string, all bool) (renamer.ScanRequest, error) {
	req := renamer.ScanRequest{
		MediaType:      renamer.MediaType(a.cfg.Scan.MediaType),
		ScanPath:       a.cfg.Scan.Path,
		ScanAllFolders: all,
	}
	if mediaType != "" {
		req.MediaType = renamer.MediaType(mediaType)
	}
	if path != "" {
		req.ScanPath = path
	}
	if !req.MediaType.Valid() {
		return req, usagef("invalid media type %q (want movies or tv_shows)", req.MediaType)
	}
	if req.ScanPath == "" && !req.ScanAllFolders {
		settings, err := a.client.GetConfig(ctx)
		if err != nil {
			a.logger.Warn("reading scan path from backend", "error", err)
			return req, nil
		}
		req.ScanPath = settings.PathFor(req.MediaType)
	}
	return req, nil
}

// drain stops the controller and the bus and returns once every queued
// event has been handled. It may be called more than once.
func (a *app) drain() {
	a.ctrl.Close()
	a.bus.Stop()
	<-a.busDone
}

// close drains the bus so queued output is printed, and releases the
// database and log file.
func (a *app) close() {
	a.drain()
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("closing database", "error", err)
		}
	}
	a.logs.Close() //nolint:errcheck
}
