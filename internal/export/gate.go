// package export gates lossless export and download behind an entitlement
// flag and writes rendered audio to disk.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stemx/internal/models"
	"github.com/desertthunder/stemx/internal/services"
	"github.com/desertthunder/stemx/internal/shared"
)

// DefaultLossyFormat is forced when the entitlement check denies a
// lossless request.
const DefaultLossyFormat = "mp3"

// DefaultUpgradeURL is the surface non-entitled users are sent to when
// they request a lossless format.
const DefaultUpgradeURL = "https://stemx.app/upgrade"

// Profile is the encoding profile for a lossless export.
type Profile struct {
	Format     string
	SampleRate int
	BitDepth   int
	Channels   int
	Prefix     string
	Suffix     string
}

// Lossless reports whether the profile's format requires the entitlement.
func (p Profile) Lossless() bool {
	switch p.Format {
	case "wav", "flac", "aiff":
		return true
	default:
		return false
	}
}

// ManifestEntry records one file written by an export or download.
type ManifestEntry struct {
	Label   string    `json:"label"` // stem name or segment range
	Format  string    `json:"format"`
	Path    string    `json:"path,omitempty"`
	URL     string    `json:"url,omitempty"`
	Bytes   int64     `json:"bytes,omitempty"`
	SavedAt time.Time `json:"saved_at"`
}

// Gate mediates export and download requests. Lossless formats require the
// externally supplied entitlement; denied requests never reach the backend
// and the caller is redirected to the upgrade surface instead.
//
// In-flight tracking is keyed per stem or per segment export, so
// concurrent exports of different targets do not serialize.
type Gate struct {
	client     services.Separator
	entitled   func() bool
	logger     *log.Logger
	clock      func() time.Time
	openURL    func(string) error
	upgradeURL string
	outDir     string

	mu       sync.Mutex
	inFlight map[string]bool
	manifest []ManifestEntry
}

// GateOpts contains configuration options for creating a Gate.
type GateOpts struct {
	Client     services.Separator
	Entitled   func() bool // nil means never entitled
	Logger     *log.Logger
	OutDir     string // defaults to the working directory
	UpgradeURL string
	OpenURL    func(string) error // defaults to shared.OpenBrowser
	Clock      func() time.Time
}

// NewGate creates an export gate with an empty manifest.
func NewGate(opts GateOpts) *Gate {
	if opts.Entitled == nil {
		opts.Entitled = func() bool { return false }
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.OutDir == "" {
		opts.OutDir = "."
	}
	if opts.UpgradeURL == "" {
		opts.UpgradeURL = DefaultUpgradeURL
	}
	if opts.OpenURL == nil {
		opts.OpenURL = shared.OpenBrowser
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Gate{
		client:     opts.Client,
		entitled:   opts.Entitled,
		logger:     opts.Logger,
		clock:      opts.Clock,
		openURL:    opts.OpenURL,
		upgradeURL: opts.UpgradeURL,
		outDir:     opts.OutDir,
		inFlight:   make(map[string]bool),
	}
}

// InFlight reports whether an export or download for key is running.
func (g *Gate) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight[key]
}

// begin marks key in flight; a second request for the same key is
// rejected while the first is running.
func (g *Gate) begin(key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight[key] {
		return fmt.Errorf("%w: %s", shared.ErrExportInFlight, key)
	}
	g.inFlight[key] = true
	return nil
}

func (g *Gate) end(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, key)
}

// check enforces the entitlement. A lossless request without the
// entitlement opens the upgrade surface and fails before any backend
// request; the returned error carries the lossy fallback hint.
func (g *Gate) check(p Profile) error {
	if !p.Lossless() || g.entitled() {
		return nil
	}
	if err := g.openURL(g.upgradeURL); err != nil {
		g.logger.Warn("failed to open upgrade page", "err", err)
	}
	return fmt.Errorf("%w: %s export requires a subscription, falling back to %s", shared.ErrSubscriptionRequired, p.Format, DefaultLossyFormat)
}

// ExportSegments renders the given segments server-side with the profile's
// encoding and opens the returned download URL.
func (g *Gate) ExportSegments(ctx context.Context, taskID string, segments []models.Segment, p Profile) (*ManifestEntry, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: no segments to export", shared.ErrExportFailed)
	}
	if err := g.check(p); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("segments/%s/%s", p.Format, p.Prefix)
	if err := g.begin(key); err != nil {
		return nil, err
	}
	defer g.end(key)

	resp, err := g.client.Export(ctx, taskID, &services.ExportRequest{
		Segments:   segments,
		Format:     p.Format,
		Prefix:     p.Prefix,
		Suffix:     p.Suffix,
		SampleRate: p.SampleRate,
		Channels:   p.Channels,
		BitDepth:   p.BitDepth,
	})
	if err != nil {
		return nil, err
	}

	if err := g.openURL(resp.DownloadURL); err != nil {
		g.logger.Warn("failed to open download url", "url", resp.DownloadURL, "err", err)
	}

	entry := ManifestEntry{
		Label:   fmt.Sprintf("%d segments", len(segments)),
		Format:  p.Format,
		URL:     resp.DownloadURL,
		SavedAt: g.clock(),
	}
	g.record(entry)
	g.logger.Info("segments exported", "task", taskID, "count", len(segments), "format", p.Format)
	return &entry, nil
}

// DownloadStem fetches one rendered stem and writes it under the output
// directory. The payload lands in a temporary file first and is renamed
// into place, so a failed download never leaves a partial file behind.
func (g *Gate) DownloadStem(ctx context.Context, taskID, stem, format string) (*ManifestEntry, error) {
	if err := g.check(Profile{Format: format}); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("stem/%s/%s", stem, format)
	if err := g.begin(key); err != nil {
		return nil, err
	}
	defer g.end(key)

	payload, err := g.client.Download(ctx, taskID, stem, format)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(g.outDir, fmt.Sprintf("%s.%s", stem, format))
	if err := writeAtomic(path, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrExportFailed, err)
	}

	entry := ManifestEntry{
		Label:   stem,
		Format:  format,
		Path:    path,
		Bytes:   int64(len(payload)),
		SavedAt: g.clock(),
	}
	g.record(entry)
	g.logger.Info("stem downloaded", "task", taskID, "stem", stem, "path", path)
	return &entry, nil
}

func (g *Gate) record(entry ManifestEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.manifest = append(g.manifest, entry)
}

// Manifest returns every file written or linked so far, in order.
func (g *Gate) Manifest() []ManifestEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ManifestEntry(nil), g.manifest...)
}

// writeAtomic writes data to a temp file in the target directory and
// renames it over path.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".stemx-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
