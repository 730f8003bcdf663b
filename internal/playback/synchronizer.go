package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stemx/internal/formatter"
	"github.com/desertthunder/stemx/internal/models"
	"github.com/desertthunder/stemx/internal/shared"
)

// DriftEpsilon is the maximum divergence, in seconds, tolerated between a
// track's position and the master's before the track is forced back.
const DriftEpsilon = 0.1

// Frame is the per-tick readout the sync loop projects onto the UI.
type Frame struct {
	Position float64
	Duration float64
	Fraction float64 // playhead fraction in [0, 1]
	Readout  string  // "m:ss / m:ss"
	Playing  bool
}

// Synchronizer keeps N track decoders aligned to one master clock. The
// decoder at index 0 is the master; its position drives everyone else.
type Synchronizer struct {
	mu       sync.Mutex
	kind     models.JobKind
	tracks   []models.Track
	decoders []Decoder
	ticker   Ticker
	logger   *log.Logger
	epsilon  float64
	onFrame  func(Frame)

	playing bool
	stop    func()
	stopAt  float64 // segment end pin; 0 means unbounded
}

// SynchronizerOpts contains configuration options for creating a Synchronizer.
type SynchronizerOpts struct {
	Kind     models.JobKind
	Tracks   []models.Track
	Decoders []Decoder // same order as Tracks; index 0 is the master
	Ticker   Ticker
	Logger   *log.Logger
	Epsilon  float64     // default DriftEpsilon
	OnFrame  func(Frame) // optional; called from the tick goroutine
}

// NewSynchronizer wires decoders to tracks. Initial gain follows each
// track's volume.
func NewSynchronizer(opts SynchronizerOpts) (*Synchronizer, error) {
	if len(opts.Decoders) == 0 {
		return nil, fmt.Errorf("%w: no decoders", shared.ErrNoActiveJob)
	}
	if len(opts.Decoders) != len(opts.Tracks) {
		return nil, fmt.Errorf("%w: %d tracks for %d decoders", shared.ErrNoActiveJob, len(opts.Tracks), len(opts.Decoders))
	}
	if opts.Ticker == nil {
		opts.Ticker = NewTicker(60)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Epsilon <= 0 {
		opts.Epsilon = DriftEpsilon
	}

	s := &Synchronizer{
		kind:     opts.Kind,
		tracks:   append([]models.Track(nil), opts.Tracks...),
		decoders: opts.Decoders,
		ticker:   opts.Ticker,
		logger:   opts.Logger,
		epsilon:  opts.Epsilon,
		onFrame:  opts.OnFrame,
	}
	for i, track := range s.tracks {
		s.decoders[i].SetGain(float64(track.Volume) / 100)
	}
	return s, nil
}

func (s *Synchronizer) master() Decoder { return s.decoders[0] }

// Duration reports the master's duration.
func (s *Synchronizer) Duration() float64 { return s.master().Duration() }

// Position reports the master's current position.
func (s *Synchronizer) Position() float64 { return s.master().Position() }

// Playing reports whether the sync loop is running.
func (s *Synchronizer) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Tracks returns the track list in decoder order.
func (s *Synchronizer) Tracks() []models.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Track(nil), s.tracks...)
}

// SeekAll clamps t to [0, duration] and positions every track there.
// Any track left more than epsilon away is forced again before playback
// resumes.
func (s *Synchronizer) SeekAll(t float64) {
	duration := s.Duration()
	if t < 0 {
		t = 0
	}
	if t > duration {
		t = duration
	}
	for _, d := range s.decoders {
		d.Seek(t)
	}
	for _, d := range s.decoders {
		if diff := d.Position() - t; diff > s.epsilon || diff < -s.epsilon {
			d.Seek(t)
		}
	}
}

// PlayAll drift-corrects every track to the master's position, then starts
// each decoder concurrently. Starting is best-effort per track: one
// decoder's failure is logged and does not block or roll back the others.
func (s *Synchronizer) PlayAll() {
	s.playFrom(s.master().Position(), 0)
}

// PlaySegment plays from the segment's start and pins playback at its end:
// the frame check stops all tracks and sets the position to end exactly
// once the master reaches or passes it. Selecting a segment during live
// playback restarts from the new start.
func (s *Synchronizer) PlaySegment(segment models.Segment) {
	s.playFrom(segment.Start, segment.End)
}

// playFrom (re)starts playback at start. A running sync loop is halted
// first so the new start position and pin take effect immediately.
func (s *Synchronizer) playFrom(start, stopAt float64) {
	s.haltLoop()

	s.mu.Lock()
	s.playing = true
	s.stopAt = stopAt
	s.mu.Unlock()

	s.driftCorrect(start)

	var wg sync.WaitGroup
	for i, d := range s.decoders {
		wg.Add(1)
		go func(i int, d Decoder) {
			defer wg.Done()
			if err := d.Play(); err != nil {
				s.logger.Warn("track failed to start", "track", s.tracks[i].Name, "err", err)
			}
		}(i, d)
	}
	wg.Wait()

	stop := s.ticker.Start(s.frame)
	s.mu.Lock()
	s.stop = stop
	// The loop may have asked to stop before the ticker handle landed.
	if !s.playing {
		s.stop = nil
		s.mu.Unlock()
		stop()
		return
	}
	s.mu.Unlock()
}

// PauseAll stops every decoder and the sync loop.
func (s *Synchronizer) PauseAll() {
	s.haltLoop()
	for _, d := range s.decoders {
		d.Pause()
	}
	s.emitFrame()
}

func (s *Synchronizer) haltLoop() {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.playing = false
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// driftCorrect re-aligns tracks that diverged from t beyond epsilon. The
// master is always aligned exactly.
func (s *Synchronizer) driftCorrect(t float64) {
	s.master().Seek(t)
	for _, d := range s.decoders[1:] {
		if diff := d.Position() - t; diff > s.epsilon || diff < -s.epsilon {
			d.Seek(t)
		}
	}
}

// frame is the per-tick callback: reads the master clock, projects the
// playhead, and stops itself when the master pauses or ends.
func (s *Synchronizer) frame(time.Time) {
	s.mu.Lock()
	if !s.playing {
		s.mu.Unlock()
		return
	}
	stopAt := s.stopAt
	s.mu.Unlock()

	position := s.master().Position()

	if stopAt > 0 && position >= stopAt {
		s.haltLoop()
		for _, d := range s.decoders {
			d.Pause()
			d.Seek(stopAt)
		}
		s.emitFrame()
		return
	}

	if s.master().Ended() {
		s.handleEnded()
		return
	}

	s.emitFrame()
}

// handleEnded stops all tracks when the master runs out. Multi-stem jobs
// rewind the playhead to 0; dry/residual jobs stay parked at the end.
func (s *Synchronizer) handleEnded() {
	s.haltLoop()
	for _, d := range s.decoders {
		d.Pause()
	}
	if s.kind != models.KindDryResidual {
		s.SeekAll(0)
	}
	s.emitFrame()
}

func (s *Synchronizer) emitFrame() {
	if s.onFrame == nil {
		return
	}
	duration := s.Duration()
	position := s.Position()
	fraction := 0.0
	if duration > 0 {
		fraction = position / duration
	}
	if fraction > 1 {
		fraction = 1
	}
	s.onFrame(Frame{
		Position: position,
		Duration: duration,
		Fraction: fraction,
		Readout:  formatter.FormatClock(position, duration),
		Playing:  s.Playing(),
	})
}

// SetVolume applies gain for track i immediately. Commit additionally
// records the value on the track, so transient drag updates can be applied
// live without being persisted until release.
func (s *Synchronizer) SetVolume(i int, volume int, commit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.decoders) {
		return fmt.Errorf("%w: track %d", shared.ErrNoActiveJob, i)
	}
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	s.decoders[i].SetGain(float64(volume) / 100)
	if commit {
		s.tracks[i].Volume = volume
	}
	return nil
}
