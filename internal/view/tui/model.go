// Package tui is the interactive terminal front end for a scan session.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sydlexius/plexrenamer/internal/event"
	"github.com/sydlexius/plexrenamer/internal/renamer"
	"github.com/sydlexius/plexrenamer/internal/session"
	"github.com/sydlexius/plexrenamer/internal/view"
)

// Controller is the part of the session controller the TUI drives.
type Controller interface {
	StartScan(ctx context.Context, req renamer.ScanRequest) error
	LoadResults(ctx context.Context) error
	Toggle(i int) error
	SelectAll()
	SelectNone()
	Apply(ctx context.Context, dryRun bool) (*renamer.ApplyResponse, error)
	MetadataIssues() []session.Issue
	Snapshot() session.Snapshot
}

type mode int

const (
	modeResults mode = iota
	modeIssues
)

// chrome is the number of lines taken by header, progress, notices and footer.
const chrome = 6

const maxNotices = 3

type notice struct {
	severity event.Severity
	message  string
}

// eventMsg carries a bus event into the program.
type eventMsg event.Event

// opDoneMsg is sent when a backend call started from a key press returns.
type opDoneMsg struct {
	op  string
	err error
}

// Model is the bubbletea model for the session screen.
type Model struct {
	ctx    context.Context
	ctrl   Controller
	req    renamer.ScanRequest
	events chan event.Event

	viewport viewport.Model
	progress progress.Model
	ready    bool
	width    int
	height   int

	mode    mode
	cursor  int
	busy    string
	snap    session.Snapshot
	issues  []session.Issue
	notices []notice
}

// New creates the model. req is used when the user starts a scan.
func New(ctx context.Context, ctrl Controller, req renamer.ScanRequest) Model {
	return Model{
		ctx:      ctx,
		ctrl:     ctrl,
		req:      req,
		events:   make(chan event.Event, 64),
		progress: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		snap:     ctrl.Snapshot(),
	}
}

// HandleEvent is an event.Handler feeding the program. Events are dropped
// while the channel is full; each delivered event refreshes the whole
// snapshot.
func (m Model) HandleEvent(e event.Event) {
	select {
	case m.events <- e:
	default:
	}
}

func waitForEvent(ch chan event.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

// Init starts listening for bus events.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		e := event.Event(msg)
		if e.Type == event.Notice {
			m.addNotice(event.Severity(e.String("severity")), e.String("message"))
		}
		m.refresh()
		return m, waitForEvent(m.events)

	case opDoneMsg:
		m.busy = ""
		m.refresh()
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = max(10, msg.Width-12)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, max(1, msg.Height-chrome))
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = max(1, msg.Height-chrome)
		}
		m.render()
		return m, nil

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "q", "ctrl+c":
		return tea.Quit, true

	case "s":
		if m.busy != "" || m.snap.State == session.Scanning {
			return nil, true
		}
		m.busy = "Starting scan"
		ctrl, ctx, req := m.ctrl, m.ctx, m.req
		return func() tea.Msg {
			return opDoneMsg{op: "scan", err: ctrl.StartScan(ctx, req)}
		}, true

	case "l":
		if m.busy != "" || m.snap.State == session.Scanning {
			return nil, true
		}
		m.busy = "Loading results"
		ctrl, ctx := m.ctrl, m.ctx
		return func() tea.Msg {
			return opDoneMsg{op: "load", err: ctrl.LoadResults(ctx)}
		}, true

	case "r", "d":
		if m.busy != "" {
			return nil, true
		}
		dryRun := msg.String() == "d"
		m.busy = "Renaming"
		if dryRun {
			m.busy = "Previewing renames"
		}
		ctrl, ctx := m.ctrl, m.ctx
		return func() tea.Msg {
			_, err := ctrl.Apply(ctx, dryRun)
			return opDoneMsg{op: "apply", err: err}
		}, true

	case " ", "x":
		if m.mode == modeResults && len(m.snap.Results) > 0 {
			m.ctrl.Toggle(m.cursor) //nolint:errcheck
			m.refresh()
		}
		return nil, true

	case "a":
		m.ctrl.SelectAll()
		m.refresh()
		return nil, true

	case "n":
		m.ctrl.SelectNone()
		m.refresh()
		return nil, true

	case "i", "tab":
		if m.mode == modeResults {
			m.mode = modeIssues
		} else {
			m.mode = modeResults
		}
		m.viewport.GotoTop()
		m.render()
		return nil, true

	case "up", "k":
		if m.mode == modeResults && m.cursor > 0 {
			m.cursor--
			m.render()
			m.follow()
			return nil, true
		}

	case "down", "j":
		if m.mode == modeResults && m.cursor < len(m.snap.Results)-1 {
			m.cursor++
			m.render()
			m.follow()
			return nil, true
		}
	}
	return nil, false
}

// follow scrolls the viewport so the cursor row (offset by the table
// header) stays visible.
func (m *Model) follow() {
	row := m.cursor + 1
	switch {
	case row < m.viewport.YOffset:
		m.viewport.SetYOffset(row)
	case row >= m.viewport.YOffset+m.viewport.Height:
		m.viewport.SetYOffset(row - m.viewport.Height + 1)
	}
}

func (m *Model) refresh() {
	m.snap = m.ctrl.Snapshot()
	m.issues = m.ctrl.MetadataIssues()
	if m.cursor >= len(m.snap.Results) {
		m.cursor = max(0, len(m.snap.Results)-1)
	}
	m.render()
}

func (m *Model) addNotice(sev event.Severity, msg string) {
	m.notices = append(m.notices, notice{severity: sev, message: msg})
	if len(m.notices) > maxNotices {
		m.notices = m.notices[len(m.notices)-maxNotices:]
	}
}

func (m *Model) render() {
	if !m.ready {
		return
	}
	if m.mode == modeIssues {
		m.viewport.SetContent(m.renderIssues())
	} else {
		m.viewport.SetContent(m.renderResults())
	}
}

func (m Model) renderResults() string {
	if len(m.snap.Results) == 0 {
		if m.snap.State == session.Scanning {
			return mutedStyle.Render("Waiting for scan to finish…")
		}
		return mutedStyle.Render("No results. Press s to scan or l to load the last results.")
	}

	nameW := max(10, (m.width-4-4-18)/2)
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("  %s %s %s %s",
		view.AggregateBox(m.snap.Aggregate), view.Pad("Current", nameW), view.Pad("New", nameW), "Metadata")))
	for i, r := range m.snap.Results {
		b.WriteByte('\n')
		line := fmt.Sprintf("%s %s %s %s",
			view.Checkbox(m.snap.IsSelected(i)),
			view.Pad(r.DisplayName(), nameW), view.Pad(r.TargetName(), nameW),
			metadataStyle(r.MetadataStatus).Render(r.MetadataStatus.Label()))
		if i == m.cursor {
			b.WriteString(cursorStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
	}
	return b.String()
}

func (m Model) renderIssues() string {
	if len(m.issues) == 0 {
		return successStyle.Render("No metadata issues")
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%d metadata issues", len(m.issues))))
	for _, is := range m.issues {
		b.WriteByte('\n')
		b.WriteString(fmt.Sprintf("%s %s: %s",
			metadataStyle(is.Status).Render(view.Pad(fmt.Sprintf("#%d", is.Index), 6)),
			is.File, mutedStyle.Render(is.Message)))
	}
	return b.String()
}

// View renders the TUI.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.headerView(),
		m.progressView(),
		m.viewport.View(),
		m.noticesView(),
		m.footerView(),
	)
}

func (m Model) headerView() string {
	title := titleStyle.Render("plexrenamer")
	state := stateStyle(m.snap.State).Render(m.snap.State.String())
	info := view.Counts(m.snap.Stats)
	if n := len(m.snap.Results); n > 0 {
		info += fmt.Sprintf(", %d/%d selected", len(m.snap.Selected), n)
	}
	if m.busy != "" {
		info += "  " + warningStyle.Render(m.busy+"…")
	}
	return fmt.Sprintf("%s %s  %s", title, state, mutedStyle.Render(info))
}

func (m Model) progressView() string {
	if m.snap.State != session.Scanning {
		return ""
	}
	p := m.snap.Status.Progress
	return fmt.Sprintf("%s %3d%% %s", m.progress.ViewAs(float64(p)/100), p,
		view.Truncate(m.snap.Status.Message, max(10, m.width/3)))
}

func (m Model) noticesView() string {
	lines := make([]string, 0, len(m.notices))
	for _, n := range m.notices {
		style := noticeStyle(n.severity)
		lines = append(lines, style.Render(view.NoticePrefix(n.severity)+" "+n.message))
	}
	return strings.Join(lines, "\n")
}

func (m Model) footerView() string {
	keys := []string{
		keybinding("s", "scan"),
		keybinding("l", "load"),
		keybinding("space", "toggle"),
		keybinding("a/n", "all/none"),
		keybinding("d", "dry run"),
		keybinding("r", "rename"),
		keybinding("i", "issues"),
		keybinding("q", "quit"),
	}
	return footerStyle.Render(strings.Join(keys, "  "))
}
