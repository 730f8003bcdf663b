package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/stemx/internal/models"
	"github.com/desertthunder/stemx/internal/shared"
	"github.com/desertthunder/stemx/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI for playback and segment editing.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	kind, err := models.ParseKind(cmd.String("kind"))
	if err != nil {
		return err
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/stemx-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	controller := r.controller(kind)
	controller.StartSweep(ctx, time.Hour)
	if controller.Job().Phase == models.PhaseIdle && cmd.StringArg("file") == "" {
		if _, err := controller.Resume(ctx); err != nil {
			return err
		}
	}

	model := ui.NewModel(ui.ModelOpts{
		Ctx:        ctx,
		Controller: controller,
		Gate:       r.gate,
		Path:       cmd.StringArg("file"),
		Duration:   cmd.Float64("duration"),
		TickHz:     r.config.Playback.TickHz,
		Epsilon:    r.config.Playback.DriftEpsilonSeconds,
		Progress:   r.progress,
	})
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
