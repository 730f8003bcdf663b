package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/desertthunder/stemx/internal/models"
	"github.com/desertthunder/stemx/internal/shared"
)

func writeAudioFile(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	return path
}

func TestUpload(t *testing.T) {
	t.Run("single shot success", func(t *testing.T) {
		var gotKind string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/upload" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Fatalf("bad multipart: %v", err)
			}
			gotKind = r.FormValue("kind")
			json.NewEncoder(w).Encode(SubmitResponse{TaskID: "T1", Position: 2, ETASeconds: 30, Priority: 1})
		}))
		defer srv.Close()

		client := NewClient(ClientOpts{BaseURL: srv.URL})
		resp, err := client.Upload(context.Background(), models.KindFourStem, writeAudioFile(t, "song.mp3", 128))
		if err != nil {
			t.Fatalf("Upload() error = %v", err)
		}
		if resp.TaskID != "T1" || resp.Position != 2 || resp.ETASeconds != 30 {
			t.Errorf("unexpected submit response: %+v", resp)
		}
		if gotKind != "four_stem" {
			t.Errorf("expected kind four_stem, got %s", gotKind)
		}
	})

	t.Run("unsupported type rejected locally", func(t *testing.T) {
		client := NewClient(ClientOpts{BaseURL: "http://localhost:1"})
		_, err := client.Upload(context.Background(), models.KindFourStem, writeAudioFile(t, "notes.txt", 16))
		if !errors.Is(err, shared.ErrUnsupportedType) {
			t.Errorf("expected ErrUnsupportedType, got %v", err)
		}
	})

	t.Run("oversized file rejected locally", func(t *testing.T) {
		client := NewClient(ClientOpts{BaseURL: "http://localhost:1", MaxFileBytes: 64})
		_, err := client.Upload(context.Background(), models.KindFourStem, writeAudioFile(t, "big.mp3", 128))
		if !errors.Is(err, shared.ErrFileTooLarge) {
			t.Errorf("expected ErrFileTooLarge, got %v", err)
		}
	})

	t.Run("daily limit error mapped", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"code": "DAILY_LIMIT_REACHED", "message": "come back tomorrow"})
		}))
		defer srv.Close()

		client := NewClient(ClientOpts{BaseURL: srv.URL})
		_, err := client.Upload(context.Background(), models.KindFourStem, writeAudioFile(t, "song.mp3", 16))
		if !errors.Is(err, shared.ErrDailyLimit) {
			t.Errorf("expected ErrDailyLimit, got %v", err)
		}
	})
}

func TestUploadChunked(t *testing.T) {
	// 45-byte file against a server-assigned 20-byte chunk size: exactly
	// three chunk calls (indices 0,1,2 with total_parts=3) and one complete.
	type chunkCall struct {
		index      int
		totalParts int
		size       int
	}

	var chunks []chunkCall
	completeCalls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/upload/init":
			var req map[string]any
			json.NewDecoder(r.Body).Decode(&req)
			if req["filename"] != "song.mp3" {
				t.Errorf("unexpected filename %v", req["filename"])
			}
			json.NewEncoder(w).Encode(initResponse{UploadID: "U1", ChunkSizeBytes: 20})
		case "/upload/chunk":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Fatalf("bad multipart: %v", err)
			}
			index, _ := strconv.Atoi(r.FormValue("index"))
			total, _ := strconv.Atoi(r.FormValue("total_parts"))
			if r.FormValue("upload_id") != "U1" {
				t.Errorf("unexpected upload_id %s", r.FormValue("upload_id"))
			}
			f, _, err := r.FormFile("chunk")
			if err != nil {
				t.Fatalf("missing chunk part: %v", err)
			}
			defer f.Close()
			var n int
			buf := make([]byte, 64)
			for {
				m, err := f.Read(buf)
				n += m
				if err != nil {
					break
				}
			}
			chunks = append(chunks, chunkCall{index: index, totalParts: total, size: n})
			w.WriteHeader(http.StatusOK)
		case "/upload/complete":
			completeCalls++
			json.NewEncoder(w).Encode(completeResponse{TaskID: "T9"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	var pcts []float64
	client := NewClient(ClientOpts{BaseURL: srv.URL, ChunkSize: 1 << 20, RateLimit: 1000})
	resp, err := client.UploadChunked(context.Background(), models.KindVocalsInstrumental,
		writeAudioFile(t, "song.mp3", 45), func(pct float64) { pcts = append(pcts, pct) })
	if err != nil {
		t.Fatalf("UploadChunked() error = %v", err)
	}

	if resp.TaskID != "T9" {
		t.Errorf("expected task T9, got %s", resp.TaskID)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected exactly 3 chunk calls, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.index != i {
			t.Errorf("chunk %d sent out of order (index %d)", i, ch.index)
		}
		if ch.totalParts != 3 {
			t.Errorf("chunk %d total_parts = %d, want 3", i, ch.totalParts)
		}
	}
	if chunks[0].size != 20 || chunks[1].size != 20 || chunks[2].size != 5 {
		t.Errorf("unexpected chunk sizes: %+v", chunks)
	}
	if completeCalls != 1 {
		t.Errorf("expected exactly one complete call, got %d", completeCalls)
	}

	if len(pcts) != 3 {
		t.Fatalf("expected 3 progress callbacks, got %d", len(pcts))
	}
	if pcts[2] != 100 {
		t.Errorf("final progress should be 100, got %f", pcts[2])
	}
	if !(pcts[0] < pcts[1] && pcts[1] < pcts[2]) {
		t.Errorf("progress should be monotonic: %v", pcts)
	}
}

func TestStatus(t *testing.T) {
	t.Run("processing", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/tasks/T1" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			json.NewEncoder(w).Encode(StatusResponse{Status: "processing", Position: 1, ETASeconds: 15})
		}))
		defer srv.Close()

		client := NewClient(ClientOpts{BaseURL: srv.URL})
		sr, err := client.Status(context.Background(), "T1")
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if sr.Completed() || sr.Failed() {
			t.Error("processing status misclassified")
		}
		if sr.Position != 1 {
			t.Errorf("expected position 1, got %d", sr.Position)
		}
	})

	t.Run("not found", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		client := NewClient(ClientOpts{BaseURL: srv.URL})
		_, err := client.Status(context.Background(), "gone")
		if !errors.Is(err, shared.ErrTaskNotFound) {
			t.Errorf("expected ErrTaskNotFound, got %v", err)
		}
	})

	t.Run("completed with tracks", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(StatusResponse{
				Status: "completed",
				Tracks: map[string]string{"vocals": "https://cdn/v.mp3", "instrumental": "https://cdn/i.mp3"},
			})
		}))
		defer srv.Close()

		client := NewClient(ClientOpts{BaseURL: srv.URL})
		sr, err := client.Status(context.Background(), "T1")
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if !sr.Completed() || len(sr.Tracks) != 2 {
			t.Errorf("unexpected completed response: %+v", sr)
		}
	})
}

func TestExportAndDownload(t *testing.T) {
	t.Run("export subscription required", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"code": "EXPORT_REQUIRES_SUBSCRIPTION"})
		}))
		defer srv.Close()

		client := NewClient(ClientOpts{BaseURL: srv.URL})
		_, err := client.Export(context.Background(), "T1", &ExportRequest{Format: "wav"})
		if !errors.Is(err, shared.ErrSubscriptionRequired) {
			t.Errorf("expected ErrSubscriptionRequired, got %v", err)
		}
	})

	t.Run("download binary", func(t *testing.T) {
		payload := []byte("RIFFdata")
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/download/T1/vocals" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if r.URL.Query().Get("format") != "wav" {
				t.Errorf("expected format=wav, got %s", r.URL.Query().Get("format"))
			}
			w.Write(payload)
		}))
		defer srv.Close()

		client := NewClient(ClientOpts{BaseURL: srv.URL})
		data, err := client.Download(context.Background(), "T1", "vocals", "wav")
		if err != nil {
			t.Fatalf("Download() error = %v", err)
		}
		if string(data) != string(payload) {
			t.Errorf("payload mismatch: %q", data)
		}
	})

	t.Run("download wav requires subscription", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPaymentRequired)
			json.NewEncoder(w).Encode(map[string]string{"code": "WAV_REQUIRES_SUBSCRIPTION"})
		}))
		defer srv.Close()

		client := NewClient(ClientOpts{BaseURL: srv.URL})
		_, err := client.Download(context.Background(), "T1", "vocals", "wav")
		if !errors.Is(err, shared.ErrSubscriptionRequired) {
			t.Errorf("expected ErrSubscriptionRequired, got %v", err)
		}
	})
}

func TestQuota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quota" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(QuotaResponse{Remaining: 0, Limit: 3})
	}))
	defer srv.Close()

	client := NewClient(ClientOpts{BaseURL: srv.URL})
	quota, err := client.Quota(context.Background())
	if err != nil {
		t.Fatalf("Quota() error = %v", err)
	}
	if quota.Remaining != 0 || quota.Limit != 3 {
		t.Errorf("unexpected quota: %+v", quota)
	}
}
