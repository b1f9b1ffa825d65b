// Package report renders a scan session as a standalone HTML page.
package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/a-h/templ"
	"github.com/sydlexius/plexrenamer/internal/filesystem"
	"github.com/sydlexius/plexrenamer/internal/renamer"
	"github.com/sydlexius/plexrenamer/internal/session"
)

// Report is the data shown on the page.
type Report struct {
	GeneratedAt time.Time
	SessionID   string
	Stats       session.Stats
	Results     []renamer.Result
	Selected    []int
	Issues      []session.Issue
	LastApply   *renamer.Summary
}

// FromSnapshot builds a report from a controller snapshot.
func FromSnapshot(snap session.Snapshot, now time.Time) Report {
	return Report{
		GeneratedAt: now,
		SessionID:   snap.SessionID,
		Stats:       snap.Stats,
		Results:     snap.Results,
		Selected:    snap.Selected,
		Issues:      session.MetadataIssues(snap.Results),
		LastApply:   snap.LastApply,
	}
}

const stylesheet = `body{font-family:system-ui,sans-serif;margin:2rem;color:#222}
h1{font-size:1.4rem}table{border-collapse:collapse;width:100%;margin-bottom:2rem}
th,td{border-bottom:1px solid #ddd;padding:.35rem .5rem;text-align:left;font-size:.9rem}
th{background:#f4f4f4}.muted{color:#777}.found{color:#207a20}.partial{color:#a36b00}
.issue{color:#b00020}tr.selected{background:#fff8e1}`

// Page returns the report as a templ component.
func Page(r Report) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.raw("<!DOCTYPE html>\n<html lang=\"en\"><head><meta charset=\"utf-8\"><title>plexrenamer report</title>")
		p.raw("<style>" + stylesheet + "</style></head><body>")
		p.raw("<h1>Scan report</h1><p class=\"muted\">")
		p.text(fmt.Sprintf("Generated %s", r.GeneratedAt.Format(time.RFC1123)))
		if r.SessionID != "" {
			p.text(" for session " + r.SessionID)
		}
		p.raw("<br>")
		p.text(fmt.Sprintf("%d files scanned, %d renames planned, %d selected",
			r.Stats.FilesCount, r.Stats.OperationsCount, len(r.Selected)))
		p.raw("</p>")

		if r.LastApply != nil {
			kind := "Rename"
			if r.LastApply.DryRun {
				kind = "Dry run"
			}
			p.raw("<p>")
			p.text(fmt.Sprintf("Last %s: %d of %d succeeded, %d failed",
				kind, r.LastApply.Successful, r.LastApply.Total, r.LastApply.Failed))
			p.raw("</p>")
		}

		if err := resultsTable(r).Render(ctx, p); err != nil {
			return err
		}
		if err := issuesTable(r.Issues).Render(ctx, p); err != nil {
			return err
		}
		p.raw("</body></html>\n")
		return p.err
	})
}

func resultsTable(r Report) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.raw("<h2>Planned renames</h2>")
		if len(r.Results) == 0 {
			p.raw("<p class=\"muted\">No results</p>")
			return p.err
		}
		selected := make(map[int]bool, len(r.Selected))
		for _, i := range r.Selected {
			selected[i] = true
		}
		p.raw("<table><thead><tr><th>#</th><th>Current name</th><th>New name</th><th>Type</th><th>Metadata</th></tr></thead><tbody>")
		for i, res := range r.Results {
			if selected[i] {
				p.raw("<tr class=\"selected\">")
			} else {
				p.raw("<tr>")
			}
			p.cell(fmt.Sprint(i), "")
			p.cell(res.DisplayName(), "")
			p.cell(res.TargetName(), "")
			p.cell(res.MediaLabel(), "")
			p.cell(res.MetadataStatus.Label(), statusClass(res.MetadataStatus))
			p.raw("</tr>")
		}
		p.raw("</tbody></table>")
		return p.err
	})
}

func issuesTable(issues []session.Issue) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.raw("<h2>Metadata issues</h2>")
		if len(issues) == 0 {
			p.raw("<p class=\"found\">No metadata issues</p>")
			return p.err
		}
		p.raw("<table><thead><tr><th>#</th><th>File</th><th>Status</th><th>Message</th></tr></thead><tbody>")
		for _, is := range issues {
			p.raw("<tr>")
			p.cell(fmt.Sprint(is.Index), "")
			p.cell(is.File, "")
			p.cell(is.Status.Label(), statusClass(is.Status))
			p.cell(is.Message, "")
			p.raw("</tr>")
		}
		p.raw("</tbody></table>")
		return p.err
	})
}

func statusClass(s renamer.MetadataStatus) string {
	switch {
	case s == renamer.MetadataFound:
		return "found"
	case s == renamer.MetadataPartial:
		return "partial"
	case s.IsIssue():
		return "issue"
	default:
		return "muted"
	}
}

// printer writes HTML fragments and keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) Write(b []byte) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	n, err := p.w.Write(b)
	p.err = err
	return n, err
}

func (p *printer) raw(s string) {
	io.WriteString(p, s) //nolint:errcheck
}

func (p *printer) text(s string) {
	p.raw(templ.EscapeString(s))
}

func (p *printer) cell(s, class string) {
	if class != "" {
		p.raw("<td class=\"" + class + "\">")
	} else {
		p.raw("<td>")
	}
	p.text(s)
	p.raw("</td>")
}

// WriteFile renders r and replaces path atomically.
func WriteFile(ctx context.Context, path string, r Report) error {
	var buf bytes.Buffer
	if err := Page(r).Render(ctx, &buf); err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	if err := filesystem.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
