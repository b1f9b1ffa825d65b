package view

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/sydlexius/plexrenamer/internal/event"
	"github.com/sydlexius/plexrenamer/internal/renamer"
)

// Styles holds the lipgloss styles used by the line renderer. They are
// bound to a renderer so color output follows the destination writer.
type Styles struct {
	Header  lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style
}

// NewStyles returns the default palette for r.
func NewStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		Header:  r.NewStyle().Bold(true),
		Muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
		Success: r.NewStyle().Foreground(lipgloss.Color("2")),
		Warning: r.NewStyle().Foreground(lipgloss.Color("3")),
		Error:   r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		Info:    r.NewStyle().Foreground(lipgloss.Color("6")),
	}
}

// Severity returns the style for a notice severity.
func (s Styles) Severity(sev event.Severity) lipgloss.Style {
	switch sev {
	case event.SeveritySuccess:
		return s.Success
	case event.SeverityWarning:
		return s.Warning
	case event.SeverityError:
		return s.Error
	default:
		return s.Info
	}
}

// Metadata returns the style for a metadata status badge.
func (s Styles) Metadata(st renamer.MetadataStatus) lipgloss.Style {
	switch st {
	case renamer.MetadataFound:
		return s.Success
	case renamer.MetadataPartial:
		return s.Warning
	case renamer.MetadataNotFound, renamer.MetadataError, renamer.MetadataAPIUnavailable:
		return s.Error
	default:
		return s.Muted
	}
}

// NoticePrefix returns the marker printed before a notice.
func NoticePrefix(sev event.Severity) string {
	switch sev {
	case event.SeveritySuccess:
		return "✓"
	case event.SeverityWarning:
		return "!"
	case event.SeverityError:
		return "✗"
	default:
		return "•"
	}
}
