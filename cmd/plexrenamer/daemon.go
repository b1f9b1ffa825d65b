package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sydlexius/plexrenamer/internal/backup"
	"github.com/sydlexius/plexrenamer/internal/config"
	"github.com/sydlexius/plexrenamer/internal/event"
	"github.com/sydlexius/plexrenamer/internal/maintenance"
	"github.com/sydlexius/plexrenamer/internal/notify"
	"github.com/sydlexius/plexrenamer/internal/schedule"
	"github.com/sydlexius/plexrenamer/internal/watcher"
)

func cmdDaemon(ctx context.Context, e *env, args []string) error {
	if len(args) > 0 {
		return usagef("unexpected arguments")
	}

	a, err := newApp(e, modeDaemon)
	if err != nil {
		return err
	}
	defer a.close()
	cfg := a.cfg
	logger := a.logger

	if !cfg.Schedule.Enabled {
		return errors.New("schedule is disabled; set schedule.enabled in the config or PR_SCHEDULE")
	}

	hist, err := a.openHistory(ctx)
	if err != nil {
		return err
	}
	for _, t := range []event.Type{event.ScanStarted, event.ScanCompleted, event.ApplyCompleted} {
		a.bus.Subscribe(t, hist.HandleEvent)
	}

	// The sinks shut down after sched.Stop, once the bus has delivered
	// whatever the last scan or apply queued for them.
	var out sinks
	defer out.shutdown(a)

	// Webhooks
	if len(cfg.Notify.Webhooks) > 0 {
		targets := make([]notify.Target, 0, len(cfg.Notify.Webhooks))
		for _, w := range cfg.Notify.Webhooks {
			targets = append(targets, notify.Target{Name: w.Name, URL: w.URL, Type: w.Type, Events: w.Events})
		}
		out.webhooks = notify.NewDispatcher(targets, logger)
		a.bus.SubscribeAll(out.webhooks.HandleEvent)
		logger.Info("webhooks enabled", "targets", len(targets))
	}

	// NATS
	if cfg.Notify.NATSURL != "" {
		pub, err := notify.ConnectNATS(cfg.Notify.NATSURL, cfg.Notify.NATSSubject, logger)
		if err != nil {
			return err
		}
		out.nats = pub
		a.bus.SubscribeAll(pub.HandleEvent)
		logger.Info("nats notifications enabled", "subject", pub.Subject("*"))
	}

	req, err := a.scanRequest(ctx, "", "", cfg.Scan.Path == "")
	if err != nil {
		return err
	}

	maint := maintenance.NewService(a.db, cfg.Database.Path, logger)
	var snapshots *backup.Service
	if cfg.Database.BackupRetention > 0 {
		snapshots = backup.NewService(a.db, cfg.Database.BackupPath(), cfg.Database.BackupRetention, logger)
	}
	maintain := func(ctx context.Context) error {
		if days := cfg.Database.HistoryDays; days > 0 {
			if _, err := hist.Prune(ctx, time.Now().AddDate(0, 0, -days)); err != nil {
				return err
			}
		}
		if err := maint.Optimize(ctx); err != nil {
			return err
		}
		if snapshots == nil {
			return nil
		}
		if _, err := snapshots.Backup(ctx); err != nil {
			return err
		}
		_, err := snapshots.Prune()
		return err
	}

	sched, err := schedule.New(a.ctrl, schedule.Options{
		Spec:      cfg.Schedule.Cron,
		Request:   req,
		AutoApply: cfg.Schedule.AutoApply,
		DryRun:    cfg.Schedule.DryRun,
		Maintain:  maintain,
	}, logger)
	if err != nil {
		return err
	}
	a.bus.Subscribe(event.ResultsLoaded, sched.HandleEvent)
	sched.Start()
	defer sched.Stop()
	logger.Info("next scheduled scan", "at", sched.Next(time.Now()).Format(time.RFC3339))

	// Config hot reload
	reload := func(context.Context) error {
		next, err := config.Load(e.configPath)
		if err != nil {
			return err
		}
		a.logs.Reconfigure(loggingConfig(next, e, modeDaemon))
		a.ctrl.SetPollInterval(next.Scan.PollInterval)
		a.client.SetRateLimit(next.Server.RequestsPerSecond, 1)
		logger.Info("config reloaded",
			"logging", a.logs.Config().String(),
			"poll_interval", next.Scan.PollInterval.String())
		return nil
	}
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go watcher.New(e.configPath, reload, logger).Start(watchCtx)

	// SIGHUP rotates the log file.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	if h, err := a.client.Health(ctx); err != nil {
		logger.Warn("backend not reachable yet", "url", a.client.BaseURL(), "error", err)
	} else {
		logger.Info("backend reachable", "url", a.client.BaseURL(), "version", h.Version)
	}

	logger.Info("daemon started", "media_type", string(req.MediaType), "path", req.ScanPath, "all", req.ScanAllFolders)
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-hup:
			if err := a.logs.Rotate(); err != nil {
				logger.Error("rotating log file", "error", err)
				continue
			}
			logger.Info("log file rotated")
		}
	}
}

// sinks are the daemon's outbound notifiers.
type sinks struct {
	webhooks *notify.Dispatcher
	nats     *notify.NATSPublisher
}

// shutdown drains the bus into the sinks, then waits for webhook
// deliveries and closes the NATS connection.
func (s *sinks) shutdown(a *app) {
	a.drain()
	if s.webhooks != nil {
		s.webhooks.Wait()
	}
	if s.nats != nil {
		if err := s.nats.Close(); err != nil {
			a.logger.Error("closing nats connection", "error", err)
		}
	}
}
