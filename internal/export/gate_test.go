package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/stemx/internal/models"
	"github.com/desertthunder/stemx/internal/services"
	"github.com/desertthunder/stemx/internal/shared"
)

// mockExporter implements the export-facing subset of services.Separator.
type mockExporter struct {
	mu            sync.Mutex
	exportCalls   int
	downloadCalls int
	exportReq     *services.ExportRequest
	downloadBody  []byte
	release       chan struct{} // when set, Download blocks until closed
}

func (m *mockExporter) Quota(ctx context.Context) (*services.QuotaResponse, error) {
	return nil, nil
}

func (m *mockExporter) Upload(ctx context.Context, kind models.JobKind, path string) (*services.SubmitResponse, error) {
	return nil, nil
}

func (m *mockExporter) UploadChunked(ctx context.Context, kind models.JobKind, path string, progress func(float64)) (*services.SubmitResponse, error) {
	return nil, nil
}

func (m *mockExporter) Status(ctx context.Context, taskID string) (*services.StatusResponse, error) {
	return nil, nil
}

func (m *mockExporter) Export(ctx context.Context, taskID string, req *services.ExportRequest) (*services.ExportResponse, error) {
	m.mu.Lock()
	m.exportCalls++
	m.exportReq = req
	m.mu.Unlock()
	return &services.ExportResponse{DownloadURL: "https://cdn.stemx.app/exports/e1.zip"}, nil
}

func (m *mockExporter) Download(ctx context.Context, taskID, track, format string) ([]byte, error) {
	m.mu.Lock()
	m.downloadCalls++
	release := m.release
	m.mu.Unlock()
	if release != nil {
		<-release
	}
	body := m.downloadBody
	if body == nil {
		body = []byte("RIFFdata")
	}
	return body, nil
}

type urlRecorder struct {
	mu   sync.Mutex
	urls []string
}

func (r *urlRecorder) open(url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, url)
	return nil
}

func newTestGate(t *testing.T, client services.Separator, entitled bool) (*Gate, *urlRecorder) {
	t.Helper()
	opened := &urlRecorder{}
	gate := NewGate(GateOpts{
		Client:   client,
		Entitled: func() bool { return entitled },
		OutDir:   t.TempDir(),
		OpenURL:  opened.open,
	})
	return gate, opened
}

func TestEntitlementGate(t *testing.T) {
	t.Run("wav download without entitlement issues no request", func(t *testing.T) {
		client := &mockExporter{}
		gate, opened := newTestGate(t, client, false)

		_, err := gate.DownloadStem(context.Background(), "T1", "vocals", "wav")
		if !errors.Is(err, shared.ErrSubscriptionRequired) {
			t.Fatalf("expected ErrSubscriptionRequired, got %v", err)
		}
		if client.downloadCalls != 0 {
			t.Errorf("no binary request should be made, got %d", client.downloadCalls)
		}
		if len(opened.urls) != 1 || opened.urls[0] != DefaultUpgradeURL {
			t.Errorf("caller should be sent to the upgrade surface, got %v", opened.urls)
		}
	})

	t.Run("lossy download passes without entitlement", func(t *testing.T) {
		client := &mockExporter{}
		gate, opened := newTestGate(t, client, false)

		entry, err := gate.DownloadStem(context.Background(), "T1", "vocals", "mp3")
		if err != nil {
			t.Fatalf("DownloadStem() error = %v", err)
		}
		if client.downloadCalls != 1 {
			t.Errorf("expected one download call, got %d", client.downloadCalls)
		}
		if len(opened.urls) != 0 {
			t.Errorf("no upgrade redirect expected, got %v", opened.urls)
		}
		if entry.Label != "vocals" || entry.Format != "mp3" {
			t.Errorf("unexpected manifest entry: %+v", entry)
		}
	})

	t.Run("wav download passes with entitlement", func(t *testing.T) {
		client := &mockExporter{}
		gate, _ := newTestGate(t, client, true)

		if _, err := gate.DownloadStem(context.Background(), "T1", "drums", "wav"); err != nil {
			t.Fatalf("DownloadStem() error = %v", err)
		}
		if client.downloadCalls != 1 {
			t.Errorf("expected one download call, got %d", client.downloadCalls)
		}
	})
}

func TestDownloadStem(t *testing.T) {
	t.Run("payload written atomically to disk", func(t *testing.T) {
		client := &mockExporter{downloadBody: []byte("audio bytes")}
		gate, _ := newTestGate(t, client, true)

		entry, err := gate.DownloadStem(context.Background(), "T1", "bass", "mp3")
		if err != nil {
			t.Fatalf("DownloadStem() error = %v", err)
		}

		data, err := os.ReadFile(entry.Path)
		if err != nil {
			t.Fatalf("written file unreadable: %v", err)
		}
		if string(data) != "audio bytes" {
			t.Errorf("file content = %q", data)
		}
		if filepath.Base(entry.Path) != "bass.mp3" {
			t.Errorf("unexpected filename %s", entry.Path)
		}
		if entry.Bytes != int64(len(data)) {
			t.Errorf("manifest bytes = %d", entry.Bytes)
		}
	})

	t.Run("concurrent downloads of different stems do not serialize", func(t *testing.T) {
		release := make(chan struct{})
		client := &mockExporter{release: release}
		gate, _ := newTestGate(t, client, true)

		done := make(chan error, 1)
		go func() {
			_, err := gate.DownloadStem(context.Background(), "T1", "vocals", "mp3")
			done <- err
		}()

		// Wait until the first download is mid-flight.
		for !gate.InFlight("stem/vocals/mp3") {
			time.Sleep(time.Millisecond)
		}

		// Same stem is rejected while in flight.
		if _, err := gate.DownloadStem(context.Background(), "T1", "vocals", "mp3"); !errors.Is(err, shared.ErrExportInFlight) {
			t.Errorf("duplicate in-flight download should be rejected, got %v", err)
		}

		// A different stem proceeds independently.
		client.mu.Lock()
		client.release = nil
		client.mu.Unlock()
		if _, err := gate.DownloadStem(context.Background(), "T1", "drums", "mp3"); err != nil {
			t.Errorf("different stem should not block: %v", err)
		}

		close(release)
		if err := <-done; err != nil {
			t.Errorf("first download failed: %v", err)
		}
	})
}

func TestExportSegments(t *testing.T) {
	segments := []models.Segment{{Start: 1, End: 2}, {Start: 4, End: 6}}

	t.Run("profile is sent and the url opened", func(t *testing.T) {
		client := &mockExporter{}
		gate, opened := newTestGate(t, client, true)

		profile := Profile{Format: "wav", SampleRate: 48000, BitDepth: 24, Channels: 2, Prefix: "take1_"}
		entry, err := gate.ExportSegments(context.Background(), "T1", segments, profile)
		if err != nil {
			t.Fatalf("ExportSegments() error = %v", err)
		}

		req := client.exportReq
		if req.Format != "wav" || req.SampleRate != 48000 || req.BitDepth != 24 || req.Channels != 2 {
			t.Errorf("profile not forwarded: %+v", req)
		}
		if len(req.Segments) != 2 {
			t.Errorf("segments not forwarded: %+v", req.Segments)
		}
		if len(opened.urls) != 1 || opened.urls[0] != entry.URL {
			t.Errorf("download url should open, got %v", opened.urls)
		}
	})

	t.Run("lossless export without entitlement is refused", func(t *testing.T) {
		client := &mockExporter{}
		gate, _ := newTestGate(t, client, false)

		_, err := gate.ExportSegments(context.Background(), "T1", segments, Profile{Format: "flac"})
		if !errors.Is(err, shared.ErrSubscriptionRequired) {
			t.Fatalf("expected ErrSubscriptionRequired, got %v", err)
		}
		if client.exportCalls != 0 {
			t.Errorf("no export request expected, got %d", client.exportCalls)
		}
	})

	t.Run("empty segment list is refused", func(t *testing.T) {
		gate, _ := newTestGate(t, &mockExporter{}, true)
		if _, err := gate.ExportSegments(context.Background(), "T1", nil, Profile{Format: "mp3"}); !errors.Is(err, shared.ErrExportFailed) {
			t.Errorf("expected ErrExportFailed, got %v", err)
		}
	})

	t.Run("manifest accumulates entries", func(t *testing.T) {
		gate, _ := newTestGate(t, &mockExporter{}, true)

		gate.ExportSegments(context.Background(), "T1", segments, Profile{Format: "mp3"})
		gate.DownloadStem(context.Background(), "T1", "vocals", "mp3")

		manifest := gate.Manifest()
		if len(manifest) != 2 {
			t.Fatalf("manifest entries = %d", len(manifest))
		}
		if manifest[0].URL == "" || manifest[1].Path == "" {
			t.Errorf("unexpected manifest: %+v", manifest)
		}
	})
}
