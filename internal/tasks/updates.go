package tasks

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Stage   Stage  // Operation stage
	Step    int    // Current step number within stage
	Total   int    // Total steps in this stage
	Percent float64
	Message string // Human-readable message for display
	Data    any    // Optional stage-specific data for advanced UIs
}

// Operation stage enumeration
type Stage int

const (
	CheckQuota Stage = iota
	UploadFile
	UploadChunks
	PollStatus
	JobDone
	JobFailed
)

func (s Stage) String() string {
	switch s {
	case CheckQuota:
		return "check_quota"
	case UploadFile:
		return "upload_file"
	case UploadChunks:
		return "upload_chunks"
	case PollStatus:
		return "poll_status"
	case JobDone:
		return "job_done"
	case JobFailed:
		return "job_failed"
	default:
		return ""
	}
}

func quotaUpdate(remaining, limit int) ProgressUpdate {
	return ProgressUpdate{
		Stage:   CheckQuota,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Daily quota: %d/%d submissions remaining", remaining, limit),
	}
}

func uploadStartUpdate(filename string, size int64) ProgressUpdate {
	return ProgressUpdate{
		Stage:   UploadFile,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Uploading %s (%s)...", filename, humanize.Bytes(uint64(size))),
	}
}

func chunkProgressUpdate(pct float64, size int64) ProgressUpdate {
	sent := int64(pct / 100 * float64(size))
	return ProgressUpdate{
		Stage:   UploadChunks,
		Percent: pct,
		Message: fmt.Sprintf("Uploaded %s of %s (%.0f%%)", humanize.Bytes(uint64(sent)), humanize.Bytes(uint64(size)), pct),
	}
}

func pollUpdate(position, etaSeconds int) ProgressUpdate {
	msg := "Processing..."
	if position > 0 {
		msg = fmt.Sprintf("Queued at position %d (ETA %ds)", position, etaSeconds)
	}
	return ProgressUpdate{
		Stage:   PollStatus,
		Message: msg,
	}
}

func doneUpdate(taskID string, trackCount, segmentCount int) ProgressUpdate {
	msg := fmt.Sprintf("Separation complete: %d stems ready", trackCount)
	if segmentCount > 0 {
		msg = fmt.Sprintf("Detection complete: %d segments found", segmentCount)
	}
	return ProgressUpdate{
		Stage:   JobDone,
		Message: msg,
		Data:    taskID,
	}
}

func failedUpdate(message string) ProgressUpdate {
	return ProgressUpdate{
		Stage:   JobFailed,
		Message: message,
	}
}
