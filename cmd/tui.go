package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/noncmra/internal/classifier"
	"github.com/desertthunder/noncmra/internal/models"
	"github.com/desertthunder/noncmra/internal/tasks"
	"github.com/desertthunder/noncmra/internal/ui"
)

// runTUI confirms and monitors the run in the terminal UI. A declined run returns a nil result.
func (r *Runner) runTUI(ctx context.Context, engine tasks.Engine, mailboxes []models.Mailbox, opts tasks.DispatchOpts, info ui.RunInfo) (*tasks.RunResult, *classifier.Report, error) {
	model := ui.NewModel(ctx, engine, mailboxes, opts, info)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return nil, nil, fmt.Errorf("error running TUI: %w", err)
	}

	if model.Aborted() {
		r.logger.Info("run declined from the TUI")
		return nil, nil, nil
	}
	return model.Result()
}
