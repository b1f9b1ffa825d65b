package session

import (
	"fmt"

	"github.com/sydlexius/plexrenamer/internal/event"
	"github.com/sydlexius/plexrenamer/internal/renamer"
)

// State is the scan lifecycle state of a Controller.
type State int

// Scan lifecycle states.
const (
	Idle State = iota
	Scanning
	ResultsLoaded
)

func (s State) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case ResultsLoaded:
		return "results_loaded"
	default:
		return "idle"
	}
}

// Stats are the counters reported with every status poll.
type Stats struct {
	FilesCount      int `json:"files_count"`
	OperationsCount int `json:"operations_count"`
}

// Issue is a result whose metadata lookup did not fully succeed.
type Issue struct {
	Index   int                    `json:"index"`
	File    string                 `json:"file"`
	Message string                 `json:"message"`
	Status  renamer.MetadataStatus `json:"status"`
}

// Snapshot is an immutable copy of a Controller's state.
type Snapshot struct {
	SessionID       string
	State           State
	Status          renamer.ScanStatus
	Stats           Stats
	Polling         bool
	Results         []renamer.Result
	Selected        []int
	Aggregate       CheckState
	Folders         []renamer.MediaFolder
	SelectedFolders []int
	LastApply       *renamer.Summary
}

// IsSelected reports whether result i is in the snapshot's selection.
func (s Snapshot) IsSelected(i int) bool {
	for _, j := range s.Selected {
		if j == i {
			return true
		}
	}
	return false
}

// Transition computes the state after a poll observed st while in cur.
// finished is true only on the poll that ends a scan, which is the one
// poll allowed to trigger a result fetch.
func Transition(cur State, st renamer.ScanStatus) (next State, finished bool) {
	if cur == Scanning && !st.IsScanning {
		return ResultsLoaded, true
	}
	return cur, false
}

// MetadataIssues lists the results whose metadata status is an issue.
func MetadataIssues(results []renamer.Result) []Issue {
	var issues []Issue
	for i, r := range results {
		if !r.MetadataStatus.IsIssue() {
			continue
		}
		file := r.SourcePath
		if file == "" {
			file = r.Filename
		}
		msg := r.ErrorMessage
		if msg == "" {
			msg = "Unknown metadata issue"
		}
		issues = append(issues, Issue{Index: i, File: file, Message: msg, Status: r.MetadataStatus})
	}
	return issues
}

// ApplyMessage formats the notice shown after an apply request.
func ApplyMessage(s renamer.Summary, dryRun bool) (string, event.Severity) {
	sev := event.SeveritySuccess
	if s.Failed > 0 {
		sev = event.SeverityWarning
	}
	if dryRun {
		return fmt.Sprintf("Dry run completed: %d/%d operations would succeed", s.Successful, s.Total), sev
	}
	return fmt.Sprintf("Rename completed: %d/%d files renamed successfully", s.Successful, s.Total), sev
}

// ShouldReload reports whether an apply outcome invalidates the result list.
func ShouldReload(s renamer.Summary, dryRun bool) bool {
	return !dryRun && s.Successful > 0
}
