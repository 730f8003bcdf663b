package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/desertthunder/stemx/internal/export"
	"github.com/desertthunder/stemx/internal/formatter"
	"github.com/desertthunder/stemx/internal/models"
	"github.com/desertthunder/stemx/internal/shared"
	"github.com/urfave/cli/v3"
)

// Segments prints the segment list of the completed segment job.
func (r *Runner) Segments(ctx context.Context, cmd *cli.Command) error {
	controller := r.controller(models.KindSegments)
	if controller.Job().Phase == models.PhaseIdle {
		if _, err := controller.Resume(ctx); err != nil {
			return err
		}
	}

	segments, err := controller.Segments()
	if err != nil {
		return err
	}

	if spec := cmd.String("set"); spec != "" {
		segments, err = applyEdit(segments, spec, cmd.Float64("duration"))
		if err != nil {
			return err
		}
		if err := controller.ReplaceSegments(segments); err != nil {
			return err
		}
	}
	if n := int(cmd.Int("delete")); n > 0 {
		if n > len(segments) {
			return fmt.Errorf("%w: no segment %d", shared.ErrInvalidArgument, n)
		}
		segments = append(segments[:n-1], segments[n:]...)
		if err := controller.ReplaceSegments(segments); err != nil {
			return err
		}
	}

	switch {
	case cmd.Bool("json"):
		return r.writeJSON(segments, true)
	case cmd.Bool("csv"):
		data, err := formatter.SegmentsToCSV(segments)
		if err != nil {
			return err
		}
		r.output.Write(data)
	case cmd.Bool("markdown"):
		r.output.Write(formatter.SegmentsToMarkdown(segments, cmd.Float64("duration")))
	default:
		for i, segment := range segments {
			r.writePlain("%2d  %7.2fs → %7.2fs  (%.2fs)\n", i+1, segment.Start, segment.End, segment.Duration())
		}
	}
	return nil
}

// applyEdit replaces one segment from a "<n>:<start>:<end>" spec string,
// validating the new bounds before mutating the list.
func applyEdit(segments []models.Segment, raw string, total float64) ([]models.Segment, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: want <n>:<start>:<end>, got %q", shared.ErrInvalidArgument, raw)
	}
	n, err := strconv.Atoi(parts[0])
	if err != nil || n < 1 || n > len(segments) {
		return nil, fmt.Errorf("%w: no segment %q", shared.ErrInvalidArgument, parts[0])
	}
	start, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad start %q", shared.ErrInvalidArgument, parts[1])
	}
	end, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad end %q", shared.ErrInvalidArgument, parts[2])
	}

	edited := models.Segment{Start: start, End: end}
	if total <= 0 {
		// Without a known source duration only the lower bound and
		// ordering can be checked.
		total = end
	}
	if err := edited.Validate(total); err != nil {
		return nil, err
	}

	out := append([]models.Segment(nil), segments...)
	out[n-1] = edited
	return out, nil
}

// Export renders the detected segments server-side with an encoding profile.
// With --stem it instead renders one stem of a completed separation job.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	if stem := cmd.String("stem"); stem != "" {
		return r.exportStem(ctx, cmd, stem)
	}

	controller := r.controller(models.KindSegments)
	if controller.Job().Phase == models.PhaseIdle {
		if _, err := controller.Resume(ctx); err != nil {
			return err
		}
	}

	segments, err := controller.Segments()
	if err != nil {
		return err
	}
	job := controller.Job()

	profile := export.Profile{
		Format:     cmd.String("format"),
		SampleRate: int(cmd.Int("sample-rate")),
		BitDepth:   int(cmd.Int("bit-depth")),
		Channels:   int(cmd.Int("channels")),
		Prefix:     cmd.String("prefix"),
		Suffix:     cmd.String("suffix"),
	}
	if profile.Format == "" {
		profile.Format = r.config.Export.DefaultFormat
	}
	if profile.SampleRate == 0 {
		profile.SampleRate = r.config.Export.SampleRate
	}
	if profile.BitDepth == 0 {
		profile.BitDepth = r.config.Export.BitDepth
	}
	if profile.Channels == 0 {
		profile.Channels = r.config.Export.Channels
	}

	entry, err := r.gate.ExportSegments(ctx, job.TaskID, segments, profile)
	if err != nil {
		return err
	}
	r.writePlain("Export ready: %s\n", entry.URL)
	return nil
}

// exportStem downloads one stem through the entitlement gate in the
// requested format.
func (r *Runner) exportStem(ctx context.Context, cmd *cli.Command, stem string) error {
	kind, err := models.ParseKind(cmd.String("kind"))
	if err != nil {
		return err
	}

	controller := r.controller(kind)
	if controller.Job().Phase == models.PhaseIdle {
		if _, err := controller.Resume(ctx); err != nil {
			return err
		}
	}
	job := controller.Job()
	if job.Phase != models.PhaseDone {
		return fmt.Errorf("job is %s, nothing to export", job.Phase)
	}

	format := cmd.String("format")
	if format == "" {
		format = r.config.Export.DefaultFormat
	}

	entry, err := r.gate.DownloadStem(ctx, job.TaskID, stem, format)
	if err != nil {
		return err
	}
	r.writePlain("Saved %s\n", entry.Path)
	return nil
}

// Download fetches one rendered stem in the requested format.
func (r *Runner) Download(ctx context.Context, cmd *cli.Command) error {
	kind, err := models.ParseKind(cmd.String("kind"))
	if err != nil {
		return err
	}
	stem := cmd.StringArg("stem")
	if stem == "" {
		return fmt.Errorf("usage: stemx download <stem>")
	}

	controller := r.controller(kind)
	if controller.Job().Phase == models.PhaseIdle {
		if _, err := controller.Resume(ctx); err != nil {
			return err
		}
	}
	job := controller.Job()
	if job.Phase != models.PhaseDone {
		return fmt.Errorf("job is %s, nothing to download", job.Phase)
	}

	entry, err := r.gate.DownloadStem(ctx, job.TaskID, stem, cmd.String("format"))
	if err != nil {
		return err
	}
	r.writePlain("Saved %s\n", entry.Path)
	r.output.Write(formatter.ManifestToText(r.gate.Manifest()))
	return nil
}
