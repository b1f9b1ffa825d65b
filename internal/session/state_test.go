package session

import (
	"testing"

	"github.com/sydlexius/plexrenamer/internal/event"
	"github.com/sydlexius/plexrenamer/internal/renamer"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name     string
		cur      State
		scanning bool
		want     State
		finished bool
	}{
		{"scanning continues", Scanning, true, Scanning, false},
		{"scanning ends", Scanning, false, ResultsLoaded, true},
		{"idle stays idle", Idle, false, Idle, false},
		{"idle ignores running scan", Idle, true, Idle, false},
		{"loaded stays loaded", ResultsLoaded, false, ResultsLoaded, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, finished := Transition(tt.cur, renamer.ScanStatus{IsScanning: tt.scanning})
			if next != tt.want || finished != tt.finished {
				t.Errorf("Transition = (%s, %v), want (%s, %v)", next, finished, tt.want, tt.finished)
			}
		})
	}
}

func TestMetadataIssues(t *testing.T) {
	results := []renamer.Result{
		{SourcePath: "/m/a.mkv", MetadataStatus: renamer.MetadataFound},
		{SourcePath: "/m/b.mkv", MetadataStatus: renamer.MetadataNotFound, ErrorMessage: "no match"},
		{Filename: "c.mkv", MetadataStatus: renamer.MetadataAPIUnavailable},
		{SourcePath: "/m/d.mkv", MetadataStatus: renamer.MetadataUnknown},
	}
	issues := MetadataIssues(results)
	if len(issues) != 2 {
		t.Fatalf("got %d issues, want 2", len(issues))
	}
	if issues[0].Index != 1 || issues[0].File != "/m/b.mkv" || issues[0].Message != "no match" {
		t.Errorf("issues[0] = %+v", issues[0])
	}
	if issues[1].File != "c.mkv" || issues[1].Message != "Unknown metadata issue" {
		t.Errorf("issues[1] = %+v", issues[1])
	}
}

func TestApplyMessage(t *testing.T) {
	msg, sev := ApplyMessage(renamer.Summary{Total: 3, Successful: 3}, true)
	if msg != "Dry run completed: 3/3 operations would succeed" || sev != event.SeveritySuccess {
		t.Errorf("dry run = (%q, %s)", msg, sev)
	}
	msg, sev = ApplyMessage(renamer.Summary{Total: 3, Successful: 2, Failed: 1}, false)
	if msg != "Rename completed: 2/3 files renamed successfully" || sev != event.SeverityWarning {
		t.Errorf("rename = (%q, %s)", msg, sev)
	}
}

func TestShouldReload(t *testing.T) {
	if ShouldReload(renamer.Summary{Successful: 2}, true) {
		t.Error("dry run should not reload")
	}
	if ShouldReload(renamer.Summary{Failed: 2}, false) {
		t.Error("apply with no successes should not reload")
	}
	if !ShouldReload(renamer.Summary{Successful: 1, Failed: 1}, false) {
		t.Error("apply with successes should reload")
	}
}

func TestSnapshotIsSelected(t *testing.T) {
	s := Snapshot{Selected: []int{1, 4}}
	if !s.IsSelected(4) || s.IsSelected(2) {
		t.Errorf("IsSelected mismatch for %v", s.Selected)
	}
}
