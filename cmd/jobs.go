package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/stemx/internal/formatter"
	"github.com/desertthunder/stemx/internal/models"
	"github.com/desertthunder/stemx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Submit uploads a file and starts the separation job for the given kind.
func (r *Runner) Submit(ctx context.Context, cmd *cli.Command) error {
	kind, err := models.ParseKind(cmd.String("kind"))
	if err != nil {
		return err
	}
	path := cmd.StringArg("file")
	if path == "" {
		return fmt.Errorf("usage: stemx submit <file>")
	}

	controller := r.controller(kind)
	controller.SetForceChunked(cmd.Bool("chunked"))
	if err := controller.Submit(ctx, path); err != nil {
		r.drainProgress()
		return err
	}
	r.drainProgress()

	job := controller.Job()
	r.writePlain("Task %s accepted (position %d)\n", job.TaskID, job.Position)

	if cmd.Bool("watch") {
		return r.watch(ctx, controller)
	}
	r.writePlain("Run `stemx status --kind %s` to check progress.\n", cmd.String("kind"))
	return nil
}

// watch blocks on the progress channel until the job reaches a terminal
// phase, printing each update.
func (r *Runner) watch(ctx context.Context, controller *tasks.Controller) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-r.progress:
			r.writePlain("%s\n", update.Message)
			switch update.Stage {
			case tasks.JobDone:
				r.output.Write(formatter.JobToText(controller.Job()))
				return nil
			case tasks.JobFailed:
				return fmt.Errorf("job failed: %s", update.Message)
			}
		}
	}
}

// Status prints the current job for a kind.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	kind, err := models.ParseKind(cmd.String("kind"))
	if err != nil {
		return err
	}

	controller := r.controller(kind)
	if controller.Job().Phase == models.PhaseIdle {
		// Surface the persisted snapshot when nothing is live in-process.
		if _, err := controller.Resume(ctx); err != nil {
			return err
		}
	}

	job := controller.Job()
	if cmd.Bool("json") {
		if !cmd.Bool("pretty") {
			return r.writeJSON(job, false)
		}
		data, err := formatter.JobToJSON(job)
		if err != nil {
			return err
		}
		r.output.Write(append(data, '\n'))
		return nil
	}
	r.output.Write(formatter.JobToText(job))

	if job.Phase == models.PhaseDone && !job.Kind.Segmented() {
		tracks, err := controller.Tracks()
		if err != nil {
			return err
		}
		r.output.Write(formatter.TracksToText(tracks))
	}
	return nil
}

// Resume restores the persisted session for a kind and optionally watches
// it to completion.
func (r *Runner) Resume(ctx context.Context, cmd *cli.Command) error {
	kind, err := models.ParseKind(cmd.String("kind"))
	if err != nil {
		return err
	}

	controller := r.controller(kind)
	restored, err := controller.Resume(ctx)
	if err != nil {
		return err
	}
	if !restored {
		r.writePlain("No resumable session for kind %s.\n", kind)
		return nil
	}

	job := controller.Job()
	r.writePlain("Restored task %s (%s)\n", job.TaskID, job.Phase)

	if cmd.Bool("watch") && job.Phase == models.PhaseProcessing {
		return r.watch(ctx, controller)
	}
	return nil
}

// Reset clears the current job and its persisted session.
func (r *Runner) Reset(ctx context.Context, cmd *cli.Command) error {
	kind, err := models.ParseKind(cmd.String("kind"))
	if err != nil {
		return err
	}

	if err := r.controller(kind).Reset(); err != nil {
		return err
	}
	r.writePlain("Cleared job state for kind %s.\n", kind)
	return nil
}
