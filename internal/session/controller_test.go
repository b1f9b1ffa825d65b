package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/sydlexius/plexrenamer/internal/event"
	"github.com/sydlexius/plexrenamer/internal/renamer"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeBackend struct {
	mu         sync.Mutex
	startErr   error
	statuses   []renamer.StatusResponse
	statusErrs []error
	results    []renamer.Result
	resultsErr error
	applyResp  *renamer.ApplyResponse
	applyErr   error
	applyReqs  []renamer.ApplyRequest
	folders    []renamer.MediaFolder

	startCalls   int
	statusCalls  int
	resultsCalls int
	folderCalls  int

	// When gate is set, ScanStatus signals entered and blocks until gate
	// receives or the context ends.
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeBackend) StartScan(_ context.Context, _ renamer.ScanRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	return f.startErr
}

func (f *fakeBackend) ScanStatus(ctx context.Context) (*renamer.StatusResponse, error) {
	f.mu.Lock()
	f.statusCalls++
	var err error
	var resp renamer.StatusResponse
	switch {
	case len(f.statusErrs) > 0:
		err = f.statusErrs[0]
		f.statusErrs = f.statusErrs[1:]
	case len(f.statuses) > 1:
		resp = f.statuses[0]
		f.statuses = f.statuses[1:]
	case len(f.statuses) == 1:
		resp = f.statuses[0]
	}
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	if gate != nil {
		entered <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (f *fakeBackend) ScanResults(_ context.Context) ([]renamer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resultsCalls++
	if f.resultsErr != nil {
		return nil, f.resultsErr
	}
	out := make([]renamer.Result, len(f.results))
	copy(out, f.results)
	return out, nil
}

func (f *fakeBackend) Apply(_ context.Context, req renamer.ApplyRequest) (*renamer.ApplyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyReqs = append(f.applyReqs, req)
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	return f.applyResp, nil
}

func (f *fakeBackend) DiscoverFolders(_ context.Context, _ string) error {
	return nil
}

func (f *fakeBackend) MediaFolders(_ context.Context) ([]renamer.MediaFolder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.folderCalls++
	return f.folders, nil
}

func (f *fakeBackend) counts() (status, results int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls, f.resultsCalls
}

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Publish(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofType(t event.Type) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) lastNotice(t *testing.T) event.Event {
	t.Helper()
	n := r.ofType(event.Notice)
	if len(n) == 0 {
		t.Fatal("no notice published")
	}
	return n[len(n)-1]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func scanning(p int) renamer.StatusResponse {
	return renamer.StatusResponse{Status: renamer.ScanStatus{IsScanning: true, Progress: p, Message: "Scanning"}}
}

func finished(files, ops int) renamer.StatusResponse {
	return renamer.StatusResponse{
		Status:          renamer.ScanStatus{Progress: 100, Message: "Scan completed"},
		FilesCount:      files,
		OperationsCount: ops,
	}
}

func threeResults() []renamer.Result {
	return []renamer.Result{
		{SourcePath: "/m/a.mkv", Filename: "a.mkv", TargetPath: "/m/A (2001).mkv", MetadataStatus: renamer.MetadataFound},
		{SourcePath: "/m/b.mkv", Filename: "b.mkv", MetadataStatus: renamer.MetadataNotFound},
		{SourcePath: "/m/c.mkv", Filename: "c.mkv", TargetPath: "/m/C (2003).mkv", MetadataStatus: renamer.MetadataFound},
	}
}

// newManual returns a controller whose poller never ticks during a test,
// so polls happen only through Poll.
func newManual(b Backend, bus Publisher) *Controller {
	c := New(b, bus, testLogger())
	c.SetPollInterval(time.Hour)
	return c
}

var movieScan = renamer.ScanRequest{MediaType: renamer.MediaMovies, ScanPath: "/media/movies"}

func TestStartScanWithoutPath(t *testing.T) {
	fb := &fakeBackend{}
	rec := &recorder{}
	c := newManual(fb, rec)
	defer c.Close()

	err := c.StartScan(context.Background(), renamer.ScanRequest{MediaType: renamer.MediaMovies})
	if !errors.Is(err, ErrNoScanPath) {
		t.Fatalf("error = %v, want ErrNoScanPath", err)
	}
	if fb.startCalls != 0 {
		t.Errorf("start calls = %d, want 0", fb.startCalls)
	}
	if s := c.Snapshot(); s.State != Idle || s.Polling {
		t.Errorf("state = %s polling = %v, want idle and not polling", s.State, s.Polling)
	}
	if n := rec.lastNotice(t); n.String("severity") != string(event.SeverityError) {
		t.Errorf("severity = %q, want error", n.String("severity"))
	}
}

func TestStartScanBackendError(t *testing.T) {
	fb := &fakeBackend{startErr: &renamer.APIError{Op: "starting scan", StatusCode: 400, Message: "Invalid scan path: /nope"}}
	rec := &recorder{}
	c := newManual(fb, rec)
	defer c.Close()

	if err := c.StartScan(context.Background(), movieScan); err == nil {
		t.Fatal("expected error")
	}
	if s := c.Snapshot(); s.State != Idle || s.Polling {
		t.Errorf("state = %s polling = %v, want idle and not polling", s.State, s.Polling)
	}
	if got := rec.lastNotice(t).String("message"); got != "Invalid scan path: /nope" {
		t.Errorf("notice = %q, want backend message", got)
	}
}

func TestStartScanTransportError(t *testing.T) {
	fb := &fakeBackend{startErr: &renamer.TransportError{Op: "starting scan", Err: errors.New("connection refused")}}
	rec := &recorder{}
	c := newManual(fb, rec)
	defer c.Close()

	_ = c.StartScan(context.Background(), movieScan)
	if got := rec.lastNotice(t).String("message"); got != "Error starting scan" {
		t.Errorf("notice = %q, want generic message", got)
	}
}

func TestStartScanEntersScanning(t *testing.T) {
	fb := &fakeBackend{statuses: []renamer.StatusResponse{scanning(0)}}
	rec := &recorder{}
	c := newManual(fb, rec)
	defer c.Close()

	if err := c.StartScan(context.Background(), movieScan); err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	s := c.Snapshot()
	if s.State != Scanning || !s.Polling {
		t.Errorf("state = %s polling = %v, want scanning and polling", s.State, s.Polling)
	}
	if s.SessionID == "" {
		t.Error("expected a session id")
	}
	if len(rec.ofType(event.ScanStarted)) != 1 {
		t.Error("expected one scan.started event")
	}
	if got := rec.lastNotice(t).String("message"); got != "Scan started successfully" {
		t.Errorf("notice = %q", got)
	}
}

func TestPollCompletesScanAndLoadsResultsOnce(t *testing.T) {
	fb := &fakeBackend{
		statuses: []renamer.StatusResponse{scanning(40), finished(3, 2)},
		results:  threeResults(),
	}
	rec := &recorder{}
	c := newManual(fb, rec)
	defer c.Close()
	ctx := context.Background()

	if err := c.StartScan(ctx, movieScan); err != nil {
		t.Fatalf("StartScan: %v", err)
	}

	if err := c.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	s := c.Snapshot()
	if s.State != Scanning || s.Status.Progress != 40 {
		t.Fatalf("after first poll: state=%s progress=%d", s.State, s.Status.Progress)
	}
	if _, results := fb.counts(); results != 0 {
		t.Errorf("results calls = %d while scanning, want 0", results)
	}

	if err := c.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	s = c.Snapshot()
	if s.State != ResultsLoaded {
		t.Fatalf("state = %s, want results_loaded", s.State)
	}
	if s.Polling {
		t.Error("expected polling to stop")
	}
	if s.Stats.FilesCount != 3 || s.Stats.OperationsCount != 2 {
		t.Errorf("stats = %+v", s.Stats)
	}
	if len(s.Results) != 3 || len(s.Selected) != 0 {
		t.Errorf("results = %d selected = %d", len(s.Results), len(s.Selected))
	}

	// Further polls update status but never refetch results.
	if err := c.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if _, results := fb.counts(); results != 1 {
		t.Errorf("results calls = %d, want 1", results)
	}
	if len(rec.ofType(event.ScanCompleted)) != 1 {
		t.Errorf("scan.completed events = %d, want 1", len(rec.ofType(event.ScanCompleted)))
	}
}

func TestPollInFlightGuard(t *testing.T) {
	fb := &fakeBackend{
		statuses: []renamer.StatusResponse{scanning(10)},
		gate:     make(chan struct{}),
		entered:  make(chan struct{}, 4),
	}
	c := newManual(fb, nil)
	defer c.Close()
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.Poll(ctx) }()
	<-fb.entered

	if err := c.Poll(ctx); !errors.Is(err, ErrPollInFlight) {
		t.Fatalf("second Poll error = %v, want ErrPollInFlight", err)
	}
	if status, _ := fb.counts(); status != 1 {
		t.Errorf("status calls = %d, want 1", status)
	}

	close(fb.gate)
	if err := <-done; err != nil {
		t.Fatalf("first Poll: %v", err)
	}
	if err := c.Poll(ctx); err != nil {
		t.Errorf("Poll after release: %v", err)
	}
}

func TestStaleStatusDiscarded(t *testing.T) {
	fb := &fakeBackend{
		statuses: []renamer.StatusResponse{finished(7, 7)},
		results:  threeResults(),
		gate:     make(chan struct{}),
		entered:  make(chan struct{}, 4),
	}
	c := newManual(fb, nil)
	defer c.Close()
	ctx := context.Background()

	if err := c.StartScan(ctx, movieScan); err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	first := c.Snapshot().SessionID

	done := make(chan error, 1)
	go func() { done <- c.Poll(ctx) }()
	<-fb.entered

	// A new scan starts while the old session's poll is outstanding.
	if err := c.StartScan(ctx, movieScan); err != nil {
		t.Fatalf("second StartScan: %v", err)
	}
	close(fb.gate)
	if err := <-done; err != nil {
		t.Fatalf("Poll: %v", err)
	}

	s := c.Snapshot()
	if s.SessionID == first {
		t.Error("expected a new session id")
	}
	if s.State != Scanning {
		t.Errorf("state = %s, want scanning", s.State)
	}
	if s.Stats.FilesCount != 0 {
		t.Errorf("stale stats applied: %+v", s.Stats)
	}
	if _, results := fb.counts(); results != 0 {
		t.Errorf("results calls = %d, want 0", results)
	}
}

func TestPollerStopsAfterScanFinishes(t *testing.T) {
	fb := &fakeBackend{
		statuses: []renamer.StatusResponse{scanning(10), scanning(60), finished(3, 3)},
		results:  threeResults(),
	}
	c := New(fb, nil, testLogger())
	c.SetPollInterval(5 * time.Millisecond)
	defer c.Close()

	if err := c.StartScan(context.Background(), movieScan); err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	waitFor(t, func() bool {
		s := c.Snapshot()
		return s.State == ResultsLoaded && !s.Polling && len(s.Results) == 3
	})

	status, results := fb.counts()
	time.Sleep(50 * time.Millisecond)
	status2, results2 := fb.counts()
	if status2 != status {
		t.Errorf("status calls grew from %d to %d after the scan finished", status, status2)
	}
	if status != 3 {
		t.Errorf("status calls = %d, want 3", status)
	}
	if results != 1 || results2 != 1 {
		t.Errorf("results calls = %d, want 1", results2)
	}
}

func TestCloseStopsPoller(t *testing.T) {
	fb := &fakeBackend{statuses: []renamer.StatusResponse{scanning(5)}}
	c := New(fb, nil, testLogger())
	c.SetPollInterval(5 * time.Millisecond)

	if err := c.StartScan(context.Background(), movieScan); err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	waitFor(t, func() bool {
		status, _ := fb.counts()
		return status >= 2
	})
	c.Close()

	status, _ := fb.counts()
	time.Sleep(30 * time.Millisecond)
	if after, _ := fb.counts(); after != status {
		t.Errorf("status calls grew from %d to %d after Close", status, after)
	}
	if c.Snapshot().Polling {
		t.Error("expected polling to be false after Close")
	}
}

func TestPollErrorsNoticeOncePerStreak(t *testing.T) {
	boom := &renamer.TransportError{Op: "polling scan status", Err: errors.New("timeout")}
	fb := &fakeBackend{
		statusErrs: []error{boom, boom},
		statuses:   []renamer.StatusResponse{scanning(20)},
	}
	rec := &recorder{}
	c := newManual(fb, rec)
	defer c.Close()
	ctx := context.Background()

	if err := c.StartScan(ctx, movieScan); err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	before := len(rec.ofType(event.Notice))

	for range 2 {
		if err := c.Poll(ctx); err == nil {
			t.Fatal("expected poll error")
		}
	}
	if got := len(rec.ofType(event.Notice)) - before; got != 1 {
		t.Errorf("error notices = %d, want 1", got)
	}
	if s := c.Snapshot(); s.State != Scanning {
		t.Errorf("state = %s, want scanning", s.State)
	}

	if err := c.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if c.Snapshot().Status.Progress != 20 {
		t.Errorf("progress = %d, want 20", c.Snapshot().Status.Progress)
	}
}

func TestStaleStatusErrorDiscarded(t *testing.T) {
	boom := &renamer.TransportError{Op: "polling scan status", Err: errors.New("timeout")}
	fb := &fakeBackend{
		statusErrs: []error{boom, boom},
		statuses:   []renamer.StatusResponse{scanning(30)},
		gate:       make(chan struct{}),
		entered:    make(chan struct{}, 4),
	}
	rec := &recorder{}
	c := newManual(fb, rec)
	defer c.Close()
	ctx := context.Background()

	if err := c.StartScan(ctx, movieScan); err != nil {
		t.Fatalf("StartScan: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- c.Poll(ctx) }()
	<-fb.entered

	if err := c.StartScan(ctx, movieScan); err != nil {
		t.Fatalf("second StartScan: %v", err)
	}
	close(fb.gate)
	if err := <-done; err != nil {
		t.Fatalf("stale Poll error = %v, want nil", err)
	}

	pollErrors := func() int {
		n := 0
		for _, e := range rec.ofType(event.Notice) {
			if e.String("message") == "Error polling scan status" {
				n++
			}
		}
		return n
	}
	if got := pollErrors(); got != 0 {
		t.Fatalf("error notices after stale poll = %d, want 0", got)
	}

	// The current session's own failure is still reported.
	if err := c.Poll(ctx); err == nil {
		t.Fatal("expected poll error")
	}
	if got := pollErrors(); got != 1 {
		t.Errorf("error notices = %d, want 1", got)
	}
}

func TestLoadResultsFromIdle(t *testing.T) {
	fb := &fakeBackend{results: threeResults()}
	rec := &recorder{}
	c := newManual(fb, rec)
	defer c.Close()

	if err := c.LoadResults(context.Background()); err != nil {
		t.Fatalf("LoadResults: %v", err)
	}
	s := c.Snapshot()
	if s.State != ResultsLoaded || len(s.Results) != 3 {
		t.Errorf("state = %s results = %d", s.State, len(s.Results))
	}
	loaded := rec.ofType(event.ResultsLoaded)
	if len(loaded) != 1 || loaded[0].String("source") != "manual" || loaded[0].Int("issues") != 1 {
		t.Errorf("results.loaded events = %+v", loaded)
	}
}

func TestLoadResultsFailureKeepsList(t *testing.T) {
	fb := &fakeBackend{results: threeResults()}
	rec := &recorder{}
	c := newManual(fb, rec)
	defer c.Close()
	ctx := context.Background()

	if err := c.LoadResults(ctx); err != nil {
		t.Fatalf("LoadResults: %v", err)
	}
	if err := c.Toggle(1); err != nil {
		t.Fatalf("Toggle: %v", err)
	}

	fb.mu.Lock()
	fb.resultsErr = &renamer.APIError{Op: "loading scan results", StatusCode: 500, Message: "database locked"}
	fb.mu.Unlock()

	if err := c.LoadResults(ctx); err == nil {
		t.Fatal("expected error")
	}
	s := c.Snapshot()
	if len(s.Results) != 3 || !reflect.DeepEqual(s.Selected, []int{1}) {
		t.Errorf("results = %d selected = %v, want 3 and [1]", len(s.Results), s.Selected)
	}
	if got := rec.lastNotice(t).String("message"); got != "database locked" {
		t.Errorf("notice = %q", got)
	}
}

func TestAggregateCheckbox(t *testing.T) {
	fb := &fakeBackend{results: threeResults()}
	c := newManual(fb, nil)
	defer c.Close()

	if err := c.LoadResults(context.Background()); err != nil {
		t.Fatalf("LoadResults: %v", err)
	}
	if got := c.Snapshot().Aggregate; got != Unchecked {
		t.Errorf("initial aggregate = %s", got)
	}
	if err := c.Toggle(1); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if got := c.Snapshot().Aggregate; got != Indeterminate {
		t.Errorf("aggregate after one = %s", got)
	}
	c.SetAll(true)
	if s := c.Snapshot(); s.Aggregate != Checked || len(s.Selected) != 3 {
		t.Errorf("after SetAll(true): %s %v", s.Aggregate, s.Selected)
	}
	c.SelectNone()
	if got := c.Snapshot().Aggregate; got != Unchecked {
		t.Errorf("after SelectNone = %s", got)
	}
	if err := c.Toggle(3); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Toggle(3) error = %v", err)
	}
}

func TestApplyEmptySelection(t *testing.T) {
	fb := &fakeBackend{results: threeResults()}
	rec := &recorder{}
	c := newManual(fb, rec)
	defer c.Close()

	if err := c.LoadResults(context.Background()); err != nil {
		t.Fatalf("LoadResults: %v", err)
	}
	_, err := c.Apply(context.Background(), false)
	if !errors.Is(err, ErrEmptySelection) {
		t.Fatalf("error = %v, want ErrEmptySelection", err)
	}
	if len(fb.applyReqs) != 0 {
		t.Errorf("apply calls = %d, want 0", len(fb.applyReqs))
	}
	n := rec.lastNotice(t)
	if n.String("message") != "Please select files to rename" || n.String("severity") != string(event.SeverityWarning) {
		t.Errorf("notice = %v", n.Data)
	}
}

func TestApplyRenamesAndReloads(t *testing.T) {
	fb := &fakeBackend{
		results: threeResults(),
		applyResp: &renamer.ApplyResponse{
			Summary: renamer.Summary{Total: 2, Successful: 2},
		},
	}
	rec := &recorder{}
	c := newManual(fb, rec)
	defer c.Close()
	ctx := context.Background()

	if err := c.LoadResults(ctx); err != nil {
		t.Fatalf("LoadResults: %v", err)
	}
	for _, i := range []int{2, 0} {
		if err := c.Toggle(i); err != nil {
			t.Fatalf("Toggle(%d): %v", i, err)
		}
	}

	if _, err := c.Apply(ctx, false); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(fb.applyReqs) != 1 {
		t.Fatalf("apply calls = %d", len(fb.applyReqs))
	}
	req := fb.applyReqs[0]
	if req.DryRun || !reflect.DeepEqual(req.Operations, []int{0, 2}) {
		t.Errorf("request = %+v, want operations [0 2]", req)
	}
	if _, results := fb.counts(); results != 2 {
		t.Errorf("results calls = %d, want 2", results)
	}
	s := c.Snapshot()
	if len(s.Selected) != 0 {
		t.Errorf("selection = %v, want cleared after reload", s.Selected)
	}
	if s.LastApply == nil || s.LastApply.Successful != 2 {
		t.Errorf("last apply = %+v", s.LastApply)
	}
	n := rec.lastNotice(t)
	if n.String("message") != "Rename completed: 2/2 files renamed successfully" || n.String("severity") != string(event.SeveritySuccess) {
		t.Errorf("notice = %v", n.Data)
	}
	loaded := rec.ofType(event.ResultsLoaded)
	if loaded[len(loaded)-1].String("source") != "apply" {
		t.Errorf("reload source = %q", loaded[len(loaded)-1].String("source"))
	}
}

func TestApplyWithNoSuccessesKeepsResults(t *testing.T) {
	fb := &fakeBackend{
		results: threeResults(),
		applyResp: &renamer.ApplyResponse{
			Summary: renamer.Summary{Total: 2, Failed: 2},
		},
	}
	rec := &recorder{}
	c := newManual(fb, rec)
	defer c.Close()
	ctx := context.Background()

	if err := c.LoadResults(ctx); err != nil {
		t.Fatalf("LoadResults: %v", err)
	}
	_ = c.Toggle(0)
	_ = c.Toggle(2)

	if _, err := c.Apply(ctx, false); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, results := fb.counts(); results != 1 {
		t.Errorf("results calls = %d, want 1", results)
	}
	if got := c.Snapshot().Selected; !reflect.DeepEqual(got, []int{0, 2}) {
		t.Errorf("selection = %v, want kept", got)
	}
	if len(rec.ofType(event.ResultsLoaded)) != 1 {
		t.Error("expected no reload after an apply that renamed nothing")
	}
}

func TestApplyDryRunKeepsSelection(t *testing.T) {
	fb := &fakeBackend{
		results: threeResults(),
		applyResp: &renamer.ApplyResponse{
			Summary: renamer.Summary{Total: 3, Successful: 2, Failed: 1},
		},
	}
	rec := &recorder{}
	c := newManual(fb, rec)
	defer c.Close()
	ctx := context.Background()

	if err := c.LoadResults(ctx); err != nil {
		t.Fatalf("LoadResults: %v", err)
	}
	c.SelectAll()

	if _, err := c.Apply(ctx, true); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, results := fb.counts(); results != 1 {
		t.Errorf("results calls = %d, want 1", results)
	}
	if got := c.Snapshot().Selected; !reflect.DeepEqual(got, []int{0, 1, 2}) {
		t.Errorf("selection = %v, want kept", got)
	}
	n := rec.lastNotice(t)
	if n.String("message") != "Dry run completed: 2/3 operations would succeed" || n.String("severity") != string(event.SeverityWarning) {
		t.Errorf("notice = %v", n.Data)
	}
	applied := rec.ofType(event.ApplyCompleted)
	if len(applied) != 1 || !applied[0].Bool("dry_run") || applied[0].Int("failed") != 1 {
		t.Errorf("apply.completed = %+v", applied)
	}
}

func TestApplyBackendError(t *testing.T) {
	fb := &fakeBackend{
		results:  threeResults(),
		applyErr: &renamer.APIError{Op: "applying changes", StatusCode: 400, Message: "No scan results available"},
	}
	rec := &recorder{}
	c := newManual(fb, rec)
	defer c.Close()
	ctx := context.Background()

	if err := c.LoadResults(ctx); err != nil {
		t.Fatalf("LoadResults: %v", err)
	}
	_ = c.Toggle(0)
	if _, err := c.Apply(ctx, false); err == nil {
		t.Fatal("expected error")
	}
	if got := rec.lastNotice(t).String("message"); got != "No scan results available" {
		t.Errorf("notice = %q", got)
	}
	if got := c.Snapshot().Selected; !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("selection = %v, want [0]", got)
	}
}

func TestFoldersReloadAfterScanWhenDiscovered(t *testing.T) {
	fb := &fakeBackend{
		statuses: []renamer.StatusResponse{finished(1, 1)},
		results:  threeResults()[:1],
		folders: []renamer.MediaFolder{
			{Name: "Movies", Path: "/media/Movies", DetectedType: "movies", ConfidenceScore: 0.9},
			{Name: "TV", Path: "/media/TV", DetectedType: "tv_shows", ConfidenceScore: 0.8},
		},
	}
	rec := &recorder{}
	c := newManual(fb, rec)
	defer c.Close()
	ctx := context.Background()

	if err := c.DiscoverFolders(ctx, ""); !errors.Is(err, ErrNoBasePath) {
		t.Fatalf("empty base path error = %v", err)
	}
	if err := c.DiscoverFolders(ctx, "/media"); err != nil {
		t.Fatalf("DiscoverFolders: %v", err)
	}
	if err := c.StartScan(ctx, renamer.ScanRequest{MediaType: renamer.MediaMovies, ScanAllFolders: true}); err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	if err := c.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	if fb.folderCalls != 1 {
		t.Errorf("folder calls = %d, want 1", fb.folderCalls)
	}
	if err := c.ToggleFolder(1); err != nil {
		t.Fatalf("ToggleFolder: %v", err)
	}
	if got := c.SelectedFolders(); !reflect.DeepEqual(got, []string{"/media/TV"}) {
		t.Errorf("selected folders = %v", got)
	}
	if len(rec.ofType(event.FoldersLoaded)) != 1 {
		t.Error("expected one folders.loaded event")
	}
}

func TestMetadataIssuesFromController(t *testing.T) {
	fb := &fakeBackend{results: threeResults()}
	c := newManual(fb, nil)
	defer c.Close()

	if err := c.LoadResults(context.Background()); err != nil {
		t.Fatalf("LoadResults: %v", err)
	}
	issues := c.MetadataIssues()
	if len(issues) != 1 || issues[0].Index != 1 {
		t.Errorf("issues = %+v", issues)
	}
}
