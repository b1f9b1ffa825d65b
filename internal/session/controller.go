package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sydlexius/plexrenamer/internal/event"
	"github.com/sydlexius/plexrenamer/internal/renamer"
)

// DefaultPollInterval is the status poll period while a scan runs.
const DefaultPollInterval = time.Second

// Validation and lifecycle errors. None of them is sent to the backend.
var (
	ErrNoScanPath     = errors.New("no scan path configured")
	ErrNoBasePath     = errors.New("no base path given")
	ErrEmptySelection = errors.New("no results selected")
	ErrPollInFlight   = errors.New("status poll already in flight")
	ErrClosed         = errors.New("controller closed")
)

// Backend is the subset of the renamer API the controller drives.
type Backend interface {
	StartScan(ctx context.Context, req renamer.ScanRequest) error
	ScanStatus(ctx context.Context) (*renamer.StatusResponse, error)
	ScanResults(ctx context.Context) ([]renamer.Result, error)
	Apply(ctx context.Context, req renamer.ApplyRequest) (*renamer.ApplyResponse, error)
	DiscoverFolders(ctx context.Context, basePath string) error
	MediaFolders(ctx context.Context) ([]renamer.MediaFolder, error)
}

// Publisher receives the controller's state change events.
type Publisher interface {
	Publish(e event.Event)
}

// Controller owns one client's scan session: it starts scans, polls their
// status until the backend reports completion, loads the result list once
// per completed scan, and tracks which results the user selected.
//
// Status fields change only inside a poll. The result list and selection
// change only when results are (re)loaded. A poll that was started for an
// older session never applies its response.
type Controller struct {
	backend  Backend
	bus      Publisher
	logger   *slog.Logger
	interval atomic.Int64

	root     context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inFlight atomic.Bool

	mu            sync.Mutex
	closed        bool
	state         State
	sessionID     string
	generation    uint64
	stopPoll      context.CancelFunc
	polling       bool
	pollFailing   bool
	status        renamer.ScanStatus
	stats         Stats
	results       []renamer.Result
	selection     Selection
	folders       []renamer.MediaFolder
	folderSel     Selection
	foldersWanted bool
	lastApply     *renamer.Summary
}

// New creates a controller in the Idle state. bus may be nil.
func New(backend Backend, bus Publisher, logger *slog.Logger) *Controller {
	root, cancel := context.WithCancel(context.Background())
	c := &Controller{
		backend:   backend,
		bus:       bus,
		logger:    logger.With(slog.String("component", "scan-session")),
		root:      root,
		cancel:    cancel,
		results:   []renamer.Result{},
		selection: NewSelection(0),
		folderSel: NewSelection(0),
	}
	c.interval.Store(int64(DefaultPollInterval))
	return c
}

// SetPollInterval changes the status poll period. A running poller picks
// up the new period after its next tick.
func (c *Controller) SetPollInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultPollInterval
	}
	c.interval.Store(int64(d))
}

// PollInterval returns the status poll period.
func (c *Controller) PollInterval() time.Duration {
	return time.Duration(c.interval.Load())
}

// StartScan asks the backend to scan and, once acknowledged, enters the
// Scanning state and starts polling. It may be called from any state; a
// poller left over from an earlier scan is stopped first.
func (c *Controller) StartScan(ctx context.Context, req renamer.ScanRequest) error {
	if strings.TrimSpace(req.ScanPath) == "" && !req.ScanAllFolders {
		c.notice(event.SeverityError, "Please configure a scan path before scanning")
		return ErrNoScanPath
	}

	if err := c.backend.StartScan(ctx, req); err != nil {
		c.fail("Error starting scan", err)
		return fmt.Errorf("starting scan: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.stopPollerLocked()
	c.generation++
	gen := c.generation
	c.sessionID = uuid.New().String()
	id := c.sessionID
	c.state = Scanning
	c.pollFailing = false

	pollCtx, stop := context.WithCancel(c.root)
	c.stopPoll = stop
	c.polling = true
	c.wg.Add(1)
	c.mu.Unlock()

	go c.pollLoop(pollCtx, stop, gen)

	c.logger.Info("scan started",
		slog.String("session_id", id),
		slog.String("media_type", string(req.MediaType)),
		slog.String("path", req.ScanPath))
	c.publish(event.ScanStarted, map[string]any{
		"session_id": id,
		"media_type": string(req.MediaType),
		"scan_path":  req.ScanPath,
		"all":        req.ScanAllFolders,
	})
	c.notice(event.SeverityInfo, "Scan started successfully")
	return nil
}

// Poll performs a single status poll. It returns ErrPollInFlight without
// contacting the backend when another poll has not finished yet.
func (c *Controller) Poll(ctx context.Context) error {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()
	_, err := c.poll(ctx, gen)
	return err
}

func (c *Controller) pollLoop(ctx context.Context, stop context.CancelFunc, gen uint64) {
	defer c.wg.Done()
	defer stop()
	defer func() {
		c.mu.Lock()
		if c.generation == gen {
			c.polling = false
		}
		c.mu.Unlock()
	}()

	interval := c.PollInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !c.stillScanning(gen) {
			return
		}
		done, err := c.poll(ctx, gen)
		if err != nil && !errors.Is(err, ErrPollInFlight) && ctx.Err() == nil {
			c.logger.Debug("status poll failed", "error", err)
		}
		if done {
			return
		}

		if d := c.PollInterval(); d != interval {
			interval = d
			ticker.Reset(d)
		}
	}
}

func (c *Controller) stillScanning(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen && c.state == Scanning
}

// poll fetches the status once and applies it if gen is still current.
// done reports that the session gen no longer needs polling.
func (c *Controller) poll(ctx context.Context, gen uint64) (done bool, err error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return false, ErrPollInFlight
	}
	defer c.inFlight.Store(false)

	resp, err := c.backend.ScanStatus(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		c.mu.Lock()
		if gen != c.generation {
			c.mu.Unlock()
			c.logger.Debug("discarding stale status error", "generation", gen, "error", err)
			return true, nil
		}
		first := !c.pollFailing
		c.pollFailing = true
		c.mu.Unlock()
		// One notice per run of failures; the poller keeps trying on the next tick.
		if first {
			c.fail("Error polling scan status", err)
		}
		return false, fmt.Errorf("polling scan status: %w", err)
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.logger.Debug("discarding stale status response", "generation", gen)
		return true, nil
	}
	c.pollFailing = false
	c.status = resp.Status
	c.stats = Stats{FilesCount: resp.FilesCount, OperationsCount: resp.OperationsCount}
	next, finished := Transition(c.state, resp.Status)
	c.state = next
	if finished {
		c.polling = false
	}
	id := c.sessionID
	wantFolders := c.foldersWanted
	done = c.state != Scanning
	c.mu.Unlock()

	c.publish(event.ScanProgress, map[string]any{
		"session_id":       id,
		"is_scanning":      resp.Status.IsScanning,
		"progress":         resp.Status.Progress,
		"message":          resp.Status.Message,
		"files_count":      resp.FilesCount,
		"operations_count": resp.OperationsCount,
	})

	if finished {
		c.logger.Info("scan finished",
			slog.String("session_id", id),
			slog.Int("files", resp.FilesCount),
			slog.Int("operations", resp.OperationsCount))
		c.publish(event.ScanCompleted, map[string]any{
			"session_id":       id,
			"message":          resp.Status.Message,
			"files_count":      resp.FilesCount,
			"operations_count": resp.OperationsCount,
		})
		_ = c.loadResults(ctx, gen, "scan")
		if wantFolders {
			_ = c.LoadFolders(ctx)
		}
	}
	return done, nil
}

// LoadResults fetches the result list and replaces the current one,
// clearing the selection. On failure the current list is kept.
func (c *Controller) LoadResults(ctx context.Context) error {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()
	return c.loadResults(ctx, gen, "manual")
}

func (c *Controller) loadResults(ctx context.Context, gen uint64, source string) error {
	results, err := c.backend.ScanResults(ctx)
	if err != nil {
		c.fail("Error loading scan results", err)
		return fmt.Errorf("loading scan results: %w", err)
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.logger.Debug("discarding stale result list", "generation", gen)
		return nil
	}
	c.results = results
	c.selection = NewSelection(len(results))
	if c.state == Idle {
		c.state = ResultsLoaded
	}
	id := c.sessionID
	c.mu.Unlock()

	issues := MetadataIssues(results)
	c.logger.Debug("results loaded", "count", len(results), "issues", len(issues), "source", source)
	c.publish(event.ResultsLoaded, map[string]any{
		"session_id": id,
		"count":      len(results),
		"issues":     len(issues),
		"source":     source,
	})
	c.publishSelection()
	return nil
}

// Toggle flips the selection of result i.
func (c *Controller) Toggle(i int) error {
	c.mu.Lock()
	err := c.selection.Toggle(i)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.publishSelection()
	return nil
}

// Select sets the selection of result i.
func (c *Controller) Select(i int, on bool) error {
	c.mu.Lock()
	err := c.selection.Set(i, on)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.publishSelection()
	return nil
}

// SelectAll selects every result.
func (c *Controller) SelectAll() {
	c.SetAll(true)
}

// SelectNone clears the selection.
func (c *Controller) SelectNone() {
	c.SetAll(false)
}

// SetAll applies a change of the aggregate checkbox.
func (c *Controller) SetAll(checked bool) {
	c.mu.Lock()
	if checked {
		c.selection.All()
	} else {
		c.selection.None()
	}
	c.mu.Unlock()
	c.publishSelection()
}

// Apply sends the selected result indices to the backend. With dryRun the
// backend only reports what it would do. A real apply that renamed at
// least one file reloads the result list, since the old indices no longer
// describe the backend's list.
func (c *Controller) Apply(ctx context.Context, dryRun bool) (*renamer.ApplyResponse, error) {
	c.mu.Lock()
	ops := c.selection.Indices()
	gen := c.generation
	id := c.sessionID
	c.mu.Unlock()

	if len(ops) == 0 {
		c.notice(event.SeverityWarning, "Please select files to rename")
		return nil, ErrEmptySelection
	}

	resp, err := c.backend.Apply(ctx, renamer.ApplyRequest{DryRun: dryRun, Operations: ops})
	if err != nil {
		c.fail("Error applying changes", err)
		return nil, fmt.Errorf("applying changes: %w", err)
	}

	summary := resp.Summary
	summary.DryRun = dryRun
	c.mu.Lock()
	c.lastApply = &summary
	c.mu.Unlock()

	msg, sev := ApplyMessage(summary, dryRun)
	c.logger.Info("apply finished",
		slog.String("session_id", id),
		slog.Bool("dry_run", dryRun),
		slog.Int("total", summary.Total),
		slog.Int("successful", summary.Successful),
		slog.Int("failed", summary.Failed))
	c.publish(event.ApplyCompleted, map[string]any{
		"session_id": id,
		"dry_run":    dryRun,
		"total":      summary.Total,
		"successful": summary.Successful,
		"failed":     summary.Failed,
		"message":    msg,
	})
	c.notice(sev, msg)

	if ShouldReload(summary, dryRun) {
		_ = c.loadResults(ctx, gen, "apply")
	}
	return resp, nil
}

// DiscoverFolders starts media folder discovery under basePath. Once used,
// the folder list is also reloaded whenever a scan finishes.
func (c *Controller) DiscoverFolders(ctx context.Context, basePath string) error {
	if strings.TrimSpace(basePath) == "" {
		c.notice(event.SeverityError, "Please enter a valid Plex directory path")
		return ErrNoBasePath
	}
	if err := c.backend.DiscoverFolders(ctx, basePath); err != nil {
		c.fail("Error discovering media folders", err)
		return fmt.Errorf("discovering folders: %w", err)
	}
	c.mu.Lock()
	c.foldersWanted = true
	c.mu.Unlock()
	c.notice(event.SeverityInfo, "Media folder discovery started")
	return nil
}

// LoadFolders fetches the discovered folders and clears the folder selection.
func (c *Controller) LoadFolders(ctx context.Context) error {
	folders, err := c.backend.MediaFolders(ctx)
	if err != nil {
		c.fail("Error loading media folders", err)
		return fmt.Errorf("loading folders: %w", err)
	}
	if folders == nil {
		folders = []renamer.MediaFolder{}
	}

	c.mu.Lock()
	c.folders = folders
	c.folderSel = NewSelection(len(folders))
	c.foldersWanted = true
	c.mu.Unlock()

	c.publish(event.FoldersLoaded, map[string]any{"count": len(folders)})
	return nil
}

// ToggleFolder flips the selection of discovered folder i.
func (c *Controller) ToggleFolder(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.folderSel.Toggle(i)
}

// SelectedFolders returns the paths of the selected folders in list order.
func (c *Controller) SelectedFolders() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.folderSel.Indices()
	paths := make([]string, 0, len(idx))
	for _, i := range idx {
		paths = append(paths, c.folders[i].Path)
	}
	return paths
}

// MetadataIssues lists the issues in the current result list.
func (c *Controller) MetadataIssues() []Issue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return MetadataIssues(c.results)
}

// Snapshot returns a copy of the controller's state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	results := make([]renamer.Result, len(c.results))
	copy(results, c.results)
	folders := make([]renamer.MediaFolder, len(c.folders))
	copy(folders, c.folders)

	s := Snapshot{
		SessionID:       c.sessionID,
		State:           c.state,
		Status:          c.status,
		Stats:           c.stats,
		Polling:         c.polling,
		Results:         results,
		Selected:        c.selection.Indices(),
		Aggregate:       c.selection.Aggregate(),
		Folders:         folders,
		SelectedFolders: c.folderSel.Indices(),
	}
	if c.lastApply != nil {
		la := *c.lastApply
		s.LastApply = &la
	}
	return s
}

// Close stops any running poller and waits for it to exit.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.stopPollerLocked()
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

func (c *Controller) stopPollerLocked() {
	if c.stopPoll != nil {
		c.stopPoll()
		c.stopPoll = nil
	}
	c.polling = false
}

func (c *Controller) publishSelection() {
	c.mu.Lock()
	selected := c.selection.Len()
	total := c.selection.Total()
	agg := c.selection.Aggregate()
	c.mu.Unlock()
	c.publish(event.SelectionChanged, map[string]any{
		"selected":  selected,
		"total":     total,
		"aggregate": agg.String(),
	})
}

// fail reports a failed backend call. Backend errors are shown verbatim,
// validation errors as-is, and transport failures with the generic text.
func (c *Controller) fail(generic string, err error) {
	msg := generic
	if m, ok := renamer.BackendMessage(err); ok {
		msg = m
	} else if renamer.IsValidation(err) {
		msg = err.Error()
	}
	c.logger.Warn(strings.ToLower(generic), "error", err)
	c.notice(event.SeverityError, msg)
}

func (c *Controller) notice(sev event.Severity, msg string) {
	c.publish(event.Notice, map[string]any{
		"severity": string(sev),
		"message":  msg,
	})
}

func (c *Controller) publish(t event.Type, data map[string]any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(event.Event{Type: t, Data: data})
}
