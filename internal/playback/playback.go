// package playback drives N independent track decoders from one master
// clock: seek-all, play/pause-all, per-track gain, and frame-driven drift
// correction.
package playback

import (
	"sync"
	"time"
)

// Decoder is one independently playable track. Implementations report
// position and duration in seconds.
type Decoder interface {
	Play() error
	Pause()
	Seek(seconds float64)
	Position() float64
	Duration() float64
	SetGain(gain float64) // 0.0 to 1.0
	Ended() bool
}

// Ticker schedules a repeating frame callback. Start returns a stop
// function; callers must invoke it exactly once.
//
// The default is backed by [time.Ticker]; tests substitute a hand-cranked
// fake to drive frames deterministically.
type Ticker interface {
	Start(fn func(now time.Time)) (stop func())
}

type intervalTicker struct {
	interval time.Duration
}

// NewTicker returns a Ticker firing hz times per second.
func NewTicker(hz int) Ticker {
	if hz <= 0 {
		hz = 60
	}
	return &intervalTicker{interval: time.Second / time.Duration(hz)}
}

func (t *intervalTicker) Start(fn func(time.Time)) func() {
	ticker := time.NewTicker(t.interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				fn(now)
			}
		}
	}()

	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

// TimerDecoder is a wall-clock Decoder: position advances in real time
// while playing. It stands in for a real audio decoder in the terminal,
// where the stems are remote URLs and only transport state matters.
type TimerDecoder struct {
	mu        sync.Mutex
	duration  float64
	offset    float64
	startedAt time.Time
	playing   bool
	gain      float64
	now       func() time.Time
}

// NewTimerDecoder creates a paused decoder at position 0.
func NewTimerDecoder(duration float64) *TimerDecoder {
	return &TimerDecoder{duration: duration, gain: 1.0, now: time.Now}
}

func (d *TimerDecoder) Play() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.playing {
		return nil
	}
	if d.offset >= d.duration {
		d.offset = d.duration
	}
	d.startedAt = d.now()
	d.playing = true
	return nil
}

func (d *TimerDecoder) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.playing {
		return
	}
	d.offset = d.positionLocked()
	d.playing = false
}

func (d *TimerDecoder) Seek(seconds float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	if seconds > d.duration {
		seconds = d.duration
	}
	d.offset = seconds
	if d.playing {
		d.startedAt = d.now()
	}
}

func (d *TimerDecoder) Position() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.positionLocked()
}

func (d *TimerDecoder) positionLocked() float64 {
	pos := d.offset
	if d.playing {
		pos += d.now().Sub(d.startedAt).Seconds()
	}
	if pos > d.duration {
		pos = d.duration
	}
	return pos
}

func (d *TimerDecoder) Duration() float64 { return d.duration }

func (d *TimerDecoder) SetGain(gain float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gain < 0 {
		gain = 0
	}
	if gain > 1 {
		gain = 1
	}
	d.gain = gain
}

// Gain returns the current gain, for display.
func (d *TimerDecoder) Gain() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gain
}

func (d *TimerDecoder) Ended() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.positionLocked() >= d.duration
}
