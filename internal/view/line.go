// Package view renders session state for terminals and files.
package view

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/sydlexius/plexrenamer/internal/event"
	"github.com/sydlexius/plexrenamer/internal/history"
	"github.com/sydlexius/plexrenamer/internal/renamer"
	"github.com/sydlexius/plexrenamer/internal/session"
	"golang.org/x/term"
)

const defaultWidth = 100

// Line writes plain, line-oriented output. It is safe for concurrent use,
// so it can subscribe to the event bus while commands print tables.
type Line struct {
	mu     sync.Mutex
	w      io.Writer
	width  int
	tty    bool
	styles Styles

	lastProgress int
	lastMessage  string
}

// NewLine creates a line renderer on w. When w is a terminal its width is
// used to fit tables; otherwise a fixed width applies.
func NewLine(w io.Writer) *Line {
	l := &Line{w: w, width: defaultWidth, lastProgress: -1}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		l.tty = true
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 40 {
			l.width = width
		}
	}
	l.styles = NewStyles(lipgloss.NewRenderer(w))
	return l
}

// IsTerminal reports whether output goes to a terminal.
func (l *Line) IsTerminal() bool {
	return l.tty
}

// Width returns the column budget for tables.
func (l *Line) Width() int {
	return l.width
}

func (l *Line) printf(format string, args ...any) {
	fmt.Fprintf(l.w, format, args...) //nolint:errcheck
}

// HandleEvent is an event.Handler that prints progress and notices.
func (l *Line) HandleEvent(e event.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch e.Type {
	case event.ScanStarted:
		l.lastProgress, l.lastMessage = -1, ""
		target := e.String("scan_path")
		if e.Bool("all") {
			target = "all media folders"
		}
		l.printf("%s %s (%s)\n", l.styles.Header.Render("Scanning"), target, e.String("media_type"))
	case event.ScanProgress:
		if !e.Bool("is_scanning") {
			return
		}
		p, msg := e.Int("progress"), e.String("message")
		if p == l.lastProgress && msg == l.lastMessage {
			return
		}
		l.lastProgress, l.lastMessage = p, msg
		l.printf("%s %3d%% %s\n", Bar(p, 20), p, Truncate(msg, l.width-28))
	case event.ScanCompleted:
		l.printf("%s %s\n", l.styles.Success.Render("Scan finished:"), Counts(session.Stats{
			FilesCount:      e.Int("files_count"),
			OperationsCount: e.Int("operations_count"),
		}))
	case event.Notice:
		sev := event.Severity(e.String("severity"))
		style := l.styles.Severity(sev)
		l.printf("%s %s\n", style.Render(NoticePrefix(sev)), e.String("message"))
	}
}

// Results prints the result table with selection markers.
func (l *Line) Results(snap session.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(snap.Results) == 0 {
		l.printf("%s\n", l.styles.Muted.Render("No scan results"))
		return
	}

	// idx(5) box(4) type(8) status(16) plus separators; names split the rest.
	nameW := max(12, (l.width-5-4-8-16-5)/2)
	l.printf("%s %s %s %s %s %s\n",
		Pad("#", 5), AggregateBox(snap.Aggregate),
		l.styles.Header.Render(Pad("Current name", nameW)),
		l.styles.Header.Render(Pad("New name", nameW)),
		l.styles.Header.Render(Pad("Type", 8)),
		l.styles.Header.Render("Metadata"))

	for i, r := range snap.Results {
		status := l.styles.Metadata(r.MetadataStatus).Render(r.MetadataStatus.Label())
		l.printf("%s %s %s %s %s %s\n",
			Pad(fmt.Sprintf("%d", i), 5), Checkbox(snap.IsSelected(i)),
			Pad(r.DisplayName(), nameW), Pad(r.TargetName(), nameW),
			Pad(r.MediaLabel(), 8), status)
	}
	l.printf("%s\n", l.styles.Muted.Render(fmt.Sprintf("%d results, %d selected", len(snap.Results), len(snap.Selected))))
}

// Issues prints metadata issues, one per line.
func (l *Line) Issues(issues []session.Issue) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(issues) == 0 {
		l.printf("%s\n", l.styles.Success.Render("No metadata issues"))
		return
	}
	for _, is := range issues {
		l.printf("%s %s: %s\n",
			l.styles.Metadata(is.Status).Render(Pad(fmt.Sprintf("#%d", is.Index), 6)),
			is.File, is.Message)
	}
}

// Apply prints the per-operation outcome of an apply request.
func (l *Line) Apply(resp *renamer.ApplyResponse) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, op := range resp.Results {
		mark := l.styles.Success.Render("✓")
		if !op.Success {
			mark = l.styles.Error.Render("✗")
		}
		line := fmt.Sprintf("%s → %s", op.SourcePath, op.TargetPath)
		if op.Message != "" {
			line += "  " + l.styles.Muted.Render(op.Message)
		}
		l.printf("%s %s\n", mark, line)
	}
}

// Status prints the current scan status.
func (l *Line) Status(st *renamer.StatusResponse) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state := "idle"
	if st.Status.IsScanning {
		state = "scanning"
	}
	l.printf("%s %s %3d%% %s\n", l.styles.Header.Render(Pad(state, 9)), Bar(st.Status.Progress, 20),
		st.Status.Progress, st.Status.Message)
	l.printf("%s\n", Counts(session.Stats{FilesCount: st.FilesCount, OperationsCount: st.OperationsCount}))
}

// Folders prints discovered media folders.
func (l *Line) Folders(folders []renamer.MediaFolder, selected []int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(folders) == 0 {
		l.printf("%s\n", l.styles.Muted.Render("No media folders discovered"))
		return
	}
	sel := make(map[int]bool, len(selected))
	for _, i := range selected {
		sel[i] = true
	}
	for i, f := range folders {
		l.printf("%s %s %s %s %s\n",
			Pad(fmt.Sprintf("%d", i), 4), Checkbox(sel[i]),
			Pad(f.Name, 24), Pad(f.TypeLabel(), 10),
			l.styles.Muted.Render(fmt.Sprintf("%d%% confidence, %d media files, %s",
				f.ConfidencePercent(), f.MediaFileCount, f.Path)))
	}
}

// Listing prints a directory listing.
func (l *Line) Listing(ls *renamer.Listing) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.printf("%s\n", l.styles.Header.Render(ls.Path))
	if ls.Parent != nil {
		l.printf("  ../  %s\n", l.styles.Muted.Render(*ls.Parent))
	}
	for _, d := range ls.Directories {
		l.printf("  %s/\n", d.Name)
	}
	for _, f := range ls.Files {
		l.printf("  %s  %s\n", Pad(f.Name, 48), l.styles.Muted.Render(humanSize(f.Size)))
	}
}

// Settings prints the backend configuration.
func (l *Line) Settings(s *renamer.Settings) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows := [][2]string{
		{"tmdb_api_key", setOrNot(s.TMDBAPIKeySet)},
		{"tvdb_api_key", setOrNot(s.TVDBAPIKeySet)},
		{"base_media_path", s.BaseMediaPath},
		{"movies_path", s.MoviesPath},
		{"tv_shows_path", s.TVShowsPath},
		{"dry_run_mode", fmt.Sprint(s.DryRunMode)},
		{"create_movie_folders", fmt.Sprint(s.CreateMovieFolders)},
		{"include_episode_title", fmt.Sprint(s.IncludeEpisodeTitle)},
		{"include_series_id", fmt.Sprint(s.IncludeSeriesID)},
		{"preferred_id_source", s.PreferredIDSource},
		{"preferred_language", s.PreferredLanguage},
	}
	for _, r := range rows {
		l.printf("%s %s\n", l.styles.Header.Render(Pad(r[0], 22)), r[1])
	}
}

// History prints recorded sessions and their apply runs.
func (l *Line) History(sessions []history.Session) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(sessions) == 0 {
		l.printf("%s\n", l.styles.Muted.Render("No recorded sessions"))
		return
	}
	for _, s := range sessions {
		state := l.styles.Warning.Render("unfinished")
		if s.CompletedAt != nil {
			state = Counts(session.Stats{FilesCount: s.FilesCount, OperationsCount: s.OperationsCount})
		}
		target := s.ScanPath
		if s.AllFolders {
			target = "all folders"
		}
		l.printf("%s %s %s %s\n",
			l.styles.Header.Render(s.StartedAt.Local().Format("2006-01-02 15:04")),
			Pad(s.MediaType, 8), target, l.styles.Muted.Render("("+state+")"))
		for _, r := range s.Runs {
			kind := "rename"
			if r.DryRun {
				kind = "dry run"
			}
			l.printf("    %s %s %d/%d ok, %d failed\n",
				r.CreatedAt.Local().Format("15:04:05"), Pad(kind, 7), r.Successful, r.Total, r.Failed)
		}
	}
}

func setOrNot(b bool) string {
	if b {
		return "(set)"
	}
	return "(not set)"
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Rule returns a horizontal separator sized to the renderer.
func (l *Line) Rule() string {
	return strings.Repeat("─", min(l.width, 80))
}
