// package formatter renders jobs, tracks, segments, and export manifests
// to text, CSV, Markdown, and JSON for the CLI output surface.
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/desertthunder/stemx/internal/export"
	"github.com/desertthunder/stemx/internal/models"
	"github.com/desertthunder/stemx/internal/shared"
)

// FormatClock renders a playhead readout like "1:05 / 3:20".
func FormatClock(position, duration float64) string {
	return fmt.Sprintf("%s / %s", shared.FormatDuration(position), shared.FormatDuration(duration))
}

// JobToText renders a one-job status summary.
func JobToText(job models.Job) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Kind:  %s\n", job.Kind))
	buf.WriteString(fmt.Sprintf("Phase: %s\n", job.Phase))
	if job.TaskID != "" {
		buf.WriteString(fmt.Sprintf("Task:  %s\n", job.TaskID))
	}

	switch job.Phase {
	case models.PhaseProcessing:
		if job.Position > 0 {
			buf.WriteString(fmt.Sprintf("Queue: position %d, ~%ds remaining\n", job.Position, job.ETASeconds))
		} else {
			buf.WriteString("Queue: processing\n")
		}
	case models.PhaseDone:
		if len(job.ResultRefs) > 0 {
			buf.WriteString(fmt.Sprintf("Stems: %d ready\n", len(job.ResultRefs)))
		}
		if len(job.Segments) > 0 {
			buf.WriteString(fmt.Sprintf("Segments: %d detected\n", len(job.Segments)))
		}
	case models.PhaseError:
		buf.WriteString(fmt.Sprintf("Error: %s\n", job.ErrorMessage))
	}

	return buf.Bytes()
}

// JobToJSON renders the job as indented JSON.
func JobToJSON(job models.Job) ([]byte, error) {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return data, nil
}

// TracksToText renders the playable track list, master first.
func TracksToText(tracks []models.Track) []byte {
	var buf bytes.Buffer
	for i, track := range tracks {
		marker := "  "
		if i == 0 {
			marker = "* " // master
		}
		buf.WriteString(fmt.Sprintf("%s%-12s vol %3d  %s\n", marker, track.Name, track.Volume, track.SourceURL))
	}
	return buf.Bytes()
}

// SegmentsToCSV converts a segment list to CSV with columns: Index, Start, End, Duration
func SegmentsToCSV(segments []models.Segment) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Index", "Start", "End", "Duration"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for i, segment := range segments {
		record := []string{
			strconv.Itoa(i),
			strconv.FormatFloat(segment.Start, 'f', 2, 64),
			strconv.FormatFloat(segment.End, 'f', 2, 64),
			strconv.FormatFloat(segment.Duration(), 'f', 2, 64),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// SegmentsToMarkdown converts a segment list to a Markdown table.
func SegmentsToMarkdown(segments []models.Segment, totalDuration float64) []byte {
	var buf bytes.Buffer

	buf.WriteString("# Detected Segments\n\n")
	buf.WriteString(fmt.Sprintf("**Count**: %d\n", len(segments)))
	if totalDuration > 0 {
		buf.WriteString(fmt.Sprintf("**Source duration**: %s\n", shared.FormatDuration(totalDuration)))
	}
	buf.WriteString("\n| # | Start | End | Duration |\n|---|-------|-----|----------|\n")
	for i, segment := range segments {
		buf.WriteString(fmt.Sprintf("| %d | %s | %s | %.2fs |\n",
			i+1,
			shared.FormatDuration(segment.Start),
			shared.FormatDuration(segment.End),
			segment.Duration(),
		))
	}

	return buf.Bytes()
}

// ManifestToJSON renders the export manifest as indented JSON.
func ManifestToJSON(entries []export.ManifestEntry) ([]byte, error) {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return data, nil
}

// ManifestToText renders the export manifest one line per file.
func ManifestToText(entries []export.ManifestEntry) []byte {
	var buf bytes.Buffer
	for _, entry := range entries {
		target := entry.Path
		if target == "" {
			target = entry.URL
		}
		buf.WriteString(fmt.Sprintf("%-16s %-5s %s\n", entry.Label, entry.Format, target))
	}
	return buf.Bytes()
}
