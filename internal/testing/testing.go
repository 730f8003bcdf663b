// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/stemx/internal/models"
	"github.com/desertthunder/stemx/internal/services"
)

// MockSeparator is a no-op test double for [services.Separator].
type MockSeparator struct{}

func (m *MockSeparator) Quota(ctx context.Context) (*services.QuotaResponse, error) {
	return &services.QuotaResponse{Remaining: 3, Limit: 3}, nil
}

func (m *MockSeparator) Upload(ctx context.Context, kind models.JobKind, path string) (*services.SubmitResponse, error) {
	return &services.SubmitResponse{TaskID: "mock-task"}, nil
}

func (m *MockSeparator) UploadChunked(ctx context.Context, kind models.JobKind, path string, progress func(float64)) (*services.SubmitResponse, error) {
	return &services.SubmitResponse{TaskID: "mock-task"}, nil
}

func (m *MockSeparator) Status(ctx context.Context, taskID string) (*services.StatusResponse, error) {
	return &services.StatusResponse{Status: "processing"}, nil
}

func (m *MockSeparator) Export(ctx context.Context, taskID string, req *services.ExportRequest) (*services.ExportResponse, error) {
	return &services.ExportResponse{DownloadURL: "https://mock/export.zip"}, nil
}

func (m *MockSeparator) Download(ctx context.Context, taskID, track, format string) ([]byte, error) {
	return []byte("mock audio"), nil
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// Clock is a settable test clock satisfying [repositories.Clock].
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Decoder is a scripted playback decoder with a directly settable position.
type Decoder struct {
	Pos     float64
	Dur     float64
	GainVal float64
	IsPlay  bool
	PlayErr error
}

func (d *Decoder) Play() error {
	if d.PlayErr != nil {
		return d.PlayErr
	}
	d.IsPlay = true
	return nil
}

func (d *Decoder) Pause()               { d.IsPlay = false }
func (d *Decoder) Seek(seconds float64) { d.Pos = seconds }
func (d *Decoder) Position() float64    { return d.Pos }
func (d *Decoder) Duration() float64    { return d.Dur }
func (d *Decoder) SetGain(gain float64) { d.GainVal = gain }
func (d *Decoder) Ended() bool          { return d.Pos >= d.Dur }

// Ticker hands the frame callback to the test for manual cranking.
type Ticker struct {
	fn      func(time.Time)
	Stopped bool
}

func (t *Ticker) Start(fn func(time.Time)) func() {
	t.fn = fn
	return func() { t.Stopped = true }
}

// Tick fires the registered callback once.
func (t *Ticker) Tick() {
	if t.fn != nil {
		t.fn(time.Now())
	}
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}
