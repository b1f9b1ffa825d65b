package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sydlexius/plexrenamer/internal/backup"
	"github.com/sydlexius/plexrenamer/internal/config"
	"github.com/sydlexius/plexrenamer/internal/event"
	"github.com/sydlexius/plexrenamer/internal/filesystem"
	"github.com/sydlexius/plexrenamer/internal/maintenance"
	"github.com/sydlexius/plexrenamer/internal/renamer"
	"github.com/sydlexius/plexrenamer/internal/view/report"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// scanWaiter ends when the results of a finished scan have loaded, or when
// loading them failed. Bus handlers run on one goroutine in publish order.
type scanWaiter struct {
	done      chan error
	once      sync.Once
	completed bool
}

func newScanWaiter() *scanWaiter {
	return &scanWaiter{done: make(chan error, 1)}
}

func (w *scanWaiter) finish(err error) {
	w.once.Do(func() { w.done <- err })
}

func (w *scanWaiter) HandleEvent(e event.Event) {
	switch e.Type {
	case event.ScanCompleted:
		w.completed = true
	case event.ResultsLoaded:
		if e.String("source") == "scan" {
			w.finish(nil)
		}
	case event.Notice:
		if w.completed && event.Severity(e.String("severity")) == event.SeverityError {
			w.finish(errors.New(e.String("message")))
		}
	}
}

func (w *scanWaiter) wait(ctx context.Context) error {
	select {
	case err := <-w.done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("waiting for scan: %w", ctx.Err())
	}
}

func cmdScan(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	mediaType := fs.String("type", "", "media `type`: movies or tv_shows")
	path := fs.String("path", "", "directory to scan")
	all := fs.Bool("all", false, "scan every discovered media folder")
	sel := fs.String("select", "", "apply these results after the scan, e.g. 0,2,5-7")
	apply := fs.Bool("apply", false, "apply the results after the scan (all unless --select is given)")
	dryRun := fs.Bool("dry-run", false, "simulate the renames")
	if err := parseFlags(fs, e, args); err != nil {
		return err
	}

	a, err := newApp(e, modeCLI)
	if err != nil {
		return err
	}
	defer a.close()

	req, err := a.scanRequest(ctx, *mediaType, *path, *all)
	if err != nil {
		return err
	}

	a.follow()
	a.recordHistory(ctx)
	w := newScanWaiter()
	for _, t := range []event.Type{event.ScanCompleted, event.ResultsLoaded, event.Notice} {
		a.bus.Subscribe(t, w.HandleEvent)
	}

	if err := a.ctrl.StartScan(ctx, req); err != nil {
		return err
	}
	if err := w.wait(ctx); err != nil {
		return err
	}
	a.out.Results(a.ctrl.Snapshot())

	if !*apply && !*dryRun && *sel == "" {
		return nil
	}
	return a.applySelection(ctx, *sel, *dryRun)
}

// applySelection selects the results named by spec (all when spec is
// empty) and applies them.
func (a *app) applySelection(ctx context.Context, spec string, dryRun bool) error {
	if spec == "" {
		a.ctrl.SelectAll()
	} else {
		idx, err := parseSelection(spec, len(a.ctrl.Snapshot().Results))
		if err != nil {
			return usagef("%v", err)
		}
		a.ctrl.SelectNone()
		for _, i := range idx {
			if err := a.ctrl.Select(i, true); err != nil {
				return err
			}
		}
	}

	resp, err := a.ctrl.Apply(ctx, dryRun)
	if err != nil {
		return err
	}
	a.out.Apply(resp)
	if resp.Summary.Failed > 0 {
		return fmt.Errorf("%d of %d renames failed", resp.Summary.Failed, resp.Summary.Total)
	}
	return nil
}

func cmdApply(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("apply", flag.ContinueOnError)
	sel := fs.String("select", "", "results to apply, e.g. 0,2,5-7")
	all := fs.Bool("all", false, "apply every result")
	dryRun := fs.Bool("dry-run", false, "simulate the renames")
	if err := parseFlags(fs, e, args); err != nil {
		return err
	}
	if (*sel != "") == *all {
		return usagef("exactly one of --select or --all is required")
	}

	a, err := newApp(e, modeCLI)
	if err != nil {
		return err
	}
	defer a.close()

	a.follow()
	a.recordHistory(ctx)
	if err := a.ctrl.LoadResults(ctx); err != nil {
		return err
	}
	return a.applySelection(ctx, *sel, *dryRun)
}

func cmdStatus(ctx context.Context, e *env, args []string) error {
	if len(args) > 0 {
		return usagef("unexpected arguments")
	}
	a, err := newApp(e, modeCLI)
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.client.ScanStatus(ctx)
	if err != nil {
		return err
	}
	a.out.Status(st)
	return nil
}

func cmdResults(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("results", flag.ContinueOnError)
	format := fs.String("format", "table", "output `format`: table, json or html")
	out := fs.String("out", "", "write to this file instead of stdout")
	if err := parseFlags(fs, e, args); err != nil {
		return err
	}
	switch *format {
	case "table", "json", "html":
	default:
		return usagef("unknown format %q", *format)
	}
	if *out != "" && *format == "table" {
		return usagef("--out requires --format json or html")
	}

	a, err := newApp(e, modeCLI)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.ctrl.LoadResults(ctx); err != nil {
		return err
	}
	snap := a.ctrl.Snapshot()

	switch *format {
	case "json":
		data, err := json.MarshalIndent(snap.Results, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding results: %w", err)
		}
		data = append(data, '\n')
		if *out != "" {
			if err := filesystem.WriteFileAtomic(*out, data, 0o644); err != nil {
				return fmt.Errorf("writing results: %w", err)
			}
			return nil
		}
		_, err = e.stdout.Write(data)
		return err
	case "html":
		r := report.FromSnapshot(snap, time.Now())
		if *out != "" {
			return report.WriteFile(ctx, *out, r)
		}
		return report.Page(r).Render(ctx, e.stdout)
	default:
		a.out.Results(snap)
		return nil
	}
}

func cmdIssues(ctx context.Context, e *env, args []string) error {
	if len(args) > 0 {
		return usagef("unexpected arguments")
	}
	a, err := newApp(e, modeCLI)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.ctrl.LoadResults(ctx); err != nil {
		return err
	}
	a.out.Issues(a.ctrl.MetadataIssues())
	return nil
}

func cmdBrowse(ctx context.Context, e *env, args []string) error {
	if len(args) > 1 {
		return usagef("too many arguments")
	}
	a, err := newApp(e, modeCLI)
	if err != nil {
		return err
	}
	defer a.close()

	dir := "/"
	if len(args) == 1 {
		dir = args[0]
	} else if s, err := a.client.GetConfig(ctx); err == nil && s.BaseMediaPath != "" {
		dir = s.BaseMediaPath
	}

	ls, err := a.client.Browse(ctx, dir)
	if err != nil {
		return err
	}
	a.out.Listing(ls)
	return nil
}

func cmdDiscover(ctx context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return usagef("expected exactly one PATH")
	}
	a, err := newApp(e, modeCLI)
	if err != nil {
		return err
	}
	defer a.close()

	a.follow()
	return a.ctrl.DiscoverFolders(ctx, args[0])
}

func cmdFolders(ctx context.Context, e *env, args []string) error {
	if len(args) > 0 {
		return usagef("unexpected arguments")
	}
	a, err := newApp(e, modeCLI)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.ctrl.LoadFolders(ctx); err != nil {
		return err
	}
	snap := a.ctrl.Snapshot()
	a.out.Folders(snap.Folders, snap.SelectedFolders)
	return nil
}

func cmdHealth(ctx context.Context, e *env, args []string) error {
	if len(args) > 0 {
		return usagef("unexpected arguments")
	}
	a, err := newApp(e, modeCLI)
	if err != nil {
		return err
	}
	defer a.close()

	h, err := a.client.Health(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s: %s (version %s, %s)\n", a.client.BaseURL(), h.Status, h.Version, h.Timestamp)
	return nil
}

func cmdHistory(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "number of sessions to show")
	stats := fs.Bool("stats", false, "show database size and snapshots instead")
	snapshot := fs.Bool("backup", false, "write a database snapshot now")
	vacuum := fs.Bool("vacuum", false, "compact the database")
	if err := parseFlags(fs, e, args); err != nil {
		return err
	}
	if *limit < 1 {
		return usagef("--limit must be positive")
	}

	a, err := newApp(e, modeCLI)
	if err != nil {
		return err
	}
	defer a.close()

	svc, err := a.openHistory(ctx)
	if err != nil {
		return err
	}
	snapshots := backup.NewService(a.db, a.cfg.Database.BackupPath(), max(1, a.cfg.Database.BackupRetention), a.logger)

	if *snapshot {
		info, err := snapshots.Backup(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "wrote %s (%d bytes)\n", filepath.Join(snapshots.Dir(), info.Filename), info.Size)
		return nil
	}

	maint := maintenance.NewService(a.db, a.cfg.Database.Path, a.logger)
	if *vacuum {
		if err := maint.Vacuum(ctx); err != nil {
			return err
		}
		fmt.Fprintln(e.stdout, "database compacted")
		return nil
	}

	if *stats {
		st, err := maint.Status(ctx)
		if err != nil {
			return err
		}
		infos, err := snapshots.List()
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "%s: %d bytes (wal %d), %d pages of %d bytes\n",
			a.cfg.Database.Path, st.DBFileSize, st.WALFileSize, st.PageCount, st.PageSize)
		fmt.Fprintf(e.stdout, "%d snapshot(s) in %s\n", len(infos), snapshots.Dir())
		for _, in := range infos {
			fmt.Fprintf(e.stdout, "  %s  %d bytes\n", in.Filename, in.Size)
		}
		return nil
	}

	sessions, err := svc.Recent(ctx, *limit)
	if err != nil {
		return err
	}
	a.out.History(sessions)
	return nil
}

func cmdConfig(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return usagef("missing subcommand")
	}
	switch args[0] {
	case "init":
		return configInit(e, args[1:])
	case "show":
		return configShow(e)
	case "get":
		return configGet(ctx, e, args[1:])
	case "set":
		return configSet(ctx, e, args[1:])
	default:
		return usagef("unknown config subcommand %q", args[0])
	}
}

func configInit(e *env, args []string) error {
	fs := flag.NewFlagSet("config init", flag.ContinueOnError)
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := parseFlags(fs, e, args); err != nil {
		return err
	}
	if _, err := os.Stat(e.configPath); err == nil && !*force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", e.configPath)
	}
	if err := config.Default().Save(e.configPath); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "wrote %s\n", e.configPath)
	return nil
}

func configShow(e *env) error {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	fmt.Fprintf(e.stdout, "# %s\n%s", e.configPath, data)
	return nil
}

func configGet(ctx context.Context, e *env, args []string) error {
	if len(args) > 1 {
		return usagef("expected at most one KEY")
	}
	a, err := newApp(e, modeCLI)
	if err != nil {
		return err
	}
	defer a.close()

	s, err := a.client.GetConfig(ctx)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		a.out.Settings(s)
		return nil
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("decoding settings: %w", err)
	}
	v, ok := m[args[0]]
	if !ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return usagef("unknown key %q (known: %s)", args[0], strings.Join(keys, ", "))
	}
	fmt.Fprintln(e.stdout, v)
	return nil
}

func configSet(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return usagef("expected KEY=VALUE")
	}

	values := make(map[string]any, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return usagef("invalid assignment %q", arg)
		}
		isBool, known := renamer.SettingKinds[k]
		if !known {
			return usagef("unknown setting %q", k)
		}
		if v == "-" {
			secret, err := readSecret(e, k)
			if err != nil {
				return err
			}
			v = secret
		}
		if isBool {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return usagef("%s must be true or false", k)
			}
			values[k] = b
		} else {
			values[k] = v
		}
	}

	a, err := newApp(e, modeCLI)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.client.SaveConfig(ctx, values); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "saved %d setting(s)\n", len(values))
	return nil
}

// readSecret reads a value without echo when stdin is a terminal, and a
// single line otherwise.
func readSecret(e *env, key string) (string, error) {
	if f, ok := e.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(e.stderr, "%s: ", key)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(e.stderr)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", key, err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(e.stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading %s from stdin: %w", key, err)
	}
	return strings.TrimSpace(line), nil
}
