package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/sydlexius/plexrenamer/internal/event"
	"github.com/sydlexius/plexrenamer/internal/renamer"
	"github.com/sydlexius/plexrenamer/internal/session"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E5A00D"))
	headerStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	cursorStyle  = lipgloss.NewStyle().Reverse(true)
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	keyStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E5A00D"))
)

func keybinding(key, desc string) string {
	return keyStyle.Render(key) + " " + desc
}

func stateStyle(s session.State) lipgloss.Style {
	switch s {
	case session.Scanning:
		return warningStyle
	case session.ResultsLoaded:
		return successStyle
	default:
		return mutedStyle
	}
}

func noticeStyle(sev event.Severity) lipgloss.Style {
	switch sev {
	case event.SeveritySuccess:
		return successStyle
	case event.SeverityWarning:
		return warningStyle
	case event.SeverityError:
		return errorStyle
	default:
		return infoStyle
	}
}

func metadataStyle(st renamer.MetadataStatus) lipgloss.Style {
	switch st {
	case renamer.MetadataFound:
		return successStyle
	case renamer.MetadataPartial:
		return warningStyle
	case renamer.MetadataNotFound, renamer.MetadataError, renamer.MetadataAPIUnavailable:
		return errorStyle
	default:
		return mutedStyle
	}
}
