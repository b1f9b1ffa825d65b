package main

import (
	"context"
	"flag"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sydlexius/plexrenamer/internal/view/tui"
)

func cmdTUI(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("tui", flag.ContinueOnError)
	mediaType := fs.String("type", "", "media `type`: movies or tv_shows")
	path := fs.String("path", "", "directory to scan")
	all := fs.Bool("all", false, "scan every discovered media folder")
	if err := parseFlags(fs, e, args); err != nil {
		return err
	}

	a, err := newApp(e, modeTUI)
	if err != nil {
		return err
	}
	defer a.close()

	req, err := a.scanRequest(ctx, *mediaType, *path, *all)
	if err != nil {
		return err
	}
	a.recordHistory(ctx)

	model := tui.New(ctx, a.ctrl, req)
	a.bus.SubscribeAll(model.HandleEvent)

	// Show whatever the backend still holds from its last scan.
	go func() {
		_ = a.ctrl.LoadResults(ctx)
	}()

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx), tea.WithOutput(e.stdout))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running tui: %w", err)
	}
	return nil
}
