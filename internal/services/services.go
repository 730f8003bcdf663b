// package services defines interface Separator for the audio separation backend
//
// Stem separation, voice-activity detection, segment export, stem download
package services

import (
	"context"

	"github.com/desertthunder/stemx/internal/models"
)

// Separator defines the interface for the remote audio separation service.
type Separator interface {
	// Quota reports the remaining daily submissions for this client.
	Quota(ctx context.Context) (*QuotaResponse, error)

	// Upload submits an audio file in a single multipart request.
	Upload(ctx context.Context, kind models.JobKind, path string) (*SubmitResponse, error)

	// UploadChunked submits an audio file via the three-phase chunked
	// protocol. The progress callback, when non-nil, receives percent
	// complete after every acknowledged chunk.
	UploadChunked(ctx context.Context, kind models.JobKind, path string, progress func(pct float64)) (*SubmitResponse, error)

	// Status queries the current state of a task. A backend 404 is
	// surfaced as [shared.ErrTaskNotFound].
	Status(ctx context.Context, taskID string) (*StatusResponse, error)

	// Export requests a server-side segment export and returns the
	// download URL for the rendered file.
	Export(ctx context.Context, taskID string, req *ExportRequest) (*ExportResponse, error)

	// Download fetches one rendered stem in the requested format.
	Download(ctx context.Context, taskID, track, format string) ([]byte, error)
}

// QuotaResponse reports daily submission allowance.
type QuotaResponse struct {
	Remaining int `json:"remaining"`
	Limit     int `json:"limit"`
}

// SubmitResponse is returned once an upload is accepted for processing.
type SubmitResponse struct {
	TaskID     string `json:"task_id"`
	Position   int    `json:"position"`
	ETASeconds int    `json:"eta_seconds"`
	Priority   int    `json:"priority"`
}

// StatusResponse is one poll result for a task.
type StatusResponse struct {
	Status     string            `json:"status"` // queued | processing | completed | failed
	Position   int               `json:"position"`
	ETASeconds int               `json:"eta_seconds"`
	Error      string            `json:"error,omitempty"`
	Tracks     map[string]string `json:"tracks,omitempty"`
	Segments   []models.Segment  `json:"segments,omitempty"`
}

// Completed reports whether the task finished successfully.
func (s *StatusResponse) Completed() bool { return s.Status == "completed" }

// Failed reports whether the backend marked the task failed.
func (s *StatusResponse) Failed() bool { return s.Status == "failed" }

// ExportRequest describes a segment export with its encoding profile.
type ExportRequest struct {
	Segments   []models.Segment `json:"segments"`
	Format     string           `json:"format"`
	Prefix     string           `json:"prefix,omitempty"`
	Suffix     string           `json:"suffix,omitempty"`
	SampleRate int              `json:"sample_rate"`
	Channels   int              `json:"channels"`
	BitDepth   int              `json:"bit_depth"`
}

// ExportResponse carries the URL of the rendered export.
type ExportResponse struct {
	DownloadURL string `json:"download_url"`
}

// initResponse is the server's answer to an upload/init call. The server
// may override the requested chunk size.
type initResponse struct {
	UploadID       string `json:"upload_id"`
	ChunkSizeBytes int64  `json:"chunk_size_bytes"`
}

// completeResponse is the server's answer to an upload/complete call.
type completeResponse struct {
	TaskID string `json:"task_id"`
}

// apiError is the backend's structured error body.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
