package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/desertthunder/stemx/internal/models"
	"github.com/desertthunder/stemx/internal/shared"
)

// UploadChunked submits an audio file via the three-phase chunked protocol:
// init, one sequential chunk call per byte range in ascending index order,
// then complete. The server may override the requested chunk size in its
// init response.
//
// There is no partial resume: a process restart discards in-flight upload
// progress and starts over from chunk 0.
func (c *Client) UploadChunked(ctx context.Context, kind models.JobKind, path string, progress func(pct float64)) (*SubmitResponse, error) {
	info, err := c.validateFile(path)
	if err != nil {
		return nil, err
	}

	filename := filepath.Base(path)
	size := info.Size()

	var init initResponse
	err = c.postJSON(ctx, "/upload/init", map[string]any{
		"filename":         filename,
		"size_bytes":       size,
		"chunk_size_bytes": c.chunkSize,
		"kind":             kind.String(),
	}, &init)
	if err != nil {
		return nil, fmt.Errorf("%w: init: %v", shared.ErrUploadFailed, err)
	}

	chunkSize := init.ChunkSizeBytes
	if chunkSize <= 0 {
		chunkSize = c.chunkSize
	}
	totalParts := int((size + chunkSize - 1) / chunkSize)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUploadFailed, err)
	}
	defer f.Close()

	var sent int64
	buf := make([]byte, chunkSize)
	for index := 0; index < totalParts; index++ {
		n, err := io.ReadFull(f, buf)
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			// final, short chunk
		} else if err != nil {
			return nil, fmt.Errorf("%w: chunk %d/%d read: %v", shared.ErrUploadFailed, index, totalParts, err)
		}
		if n == 0 {
			break
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: chunk %d/%d: %v", shared.ErrUploadFailed, index, totalParts, err)
		}

		if err := c.sendChunk(ctx, init.UploadID, index, totalParts, filename, buf[:n]); err != nil {
			return nil, fmt.Errorf("%w: chunk %d/%d: %v", shared.ErrUploadFailed, index, totalParts, err)
		}

		sent += int64(n)
		if progress != nil {
			progress(float64(sent) / float64(size) * 100)
		}
	}

	var complete completeResponse
	err = c.postJSON(ctx, "/upload/complete", map[string]any{"upload_id": init.UploadID}, &complete)
	if err != nil {
		return nil, fmt.Errorf("%w: complete: %v", shared.ErrUploadFailed, err)
	}

	return &SubmitResponse{TaskID: complete.TaskID}, nil
}

// sendChunk posts one byte range as a multipart request.
func (c *Client) sendChunk(ctx context.Context, uploadID string, index, totalParts int, filename string, chunk []byte) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := map[string]string{
		"upload_id":   uploadID,
		"index":       strconv.Itoa(index),
		"total_parts": strconv.Itoa(totalParts),
		"filename":    filename,
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}

	part, err := mw.CreateFormFile("chunk", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(chunk); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/chunk", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	status, body, err := c.do(req)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return decodeAPIError(status, body)
	}

	var ack struct {
		Received bool `json:"received"`
	}
	// Ack bodies are informational; tolerate empty responses.
	_ = json.Unmarshal(body, &ack)
	return nil
}
