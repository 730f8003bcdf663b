// package models defines the data model for the stem separation client
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/stemx/internal/shared"
)

// JobKind identifies the result shape a separation job produces.
//
// Result-producing kinds yield a set of stem URLs; the segments kind yields
// a list of voice-activity time ranges instead.
type JobKind int

const (
	KindVocalsInstrumental JobKind = iota
	KindFourStem
	KindDryResidual
	KindSegments
)

func (k JobKind) String() string {
	switch k {
	case KindVocalsInstrumental:
		return "vocals_instrumental"
	case KindFourStem:
		return "four_stem"
	case KindDryResidual:
		return "dry_residual"
	case KindSegments:
		return "segments"
	default:
		return ""
	}
}

// ParseKind converts a kind name to a [JobKind].
func ParseKind(s string) (JobKind, error) {
	switch s {
	case "vocals_instrumental", "vocals":
		return KindVocalsInstrumental, nil
	case "four_stem", "stems":
		return KindFourStem, nil
	case "dry_residual", "dereverb":
		return KindDryResidual, nil
	case "segments", "vad":
		return KindSegments, nil
	default:
		return 0, fmt.Errorf("%w: unknown job kind %q", shared.ErrInvalidArgument, s)
	}
}

// Segmented reports whether the kind produces segments rather than stem URLs.
func (k JobKind) Segmented() bool {
	return k == KindSegments
}

// MaxSessionAge returns how long a persisted session for this kind stays
// restorable: 24h for segment jobs, 12h for stem jobs.
func (k JobKind) MaxSessionAge() time.Duration {
	if k.Segmented() {
		return 24 * time.Hour
	}
	return 12 * time.Hour
}

// Stems returns the canonical ordered stem names for a result-producing
// kind. The first name is the master track.
func (k JobKind) Stems() []string {
	switch k {
	case KindVocalsInstrumental:
		return []string{"vocals", "instrumental"}
	case KindFourStem:
		return []string{"vocals", "drums", "bass", "other"}
	case KindDryResidual:
		return []string{"dry", "residual"}
	default:
		return nil
	}
}

// MarshalJSON encodes the kind as its string name.
func (k JobKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes the kind from its string name.
func (k *JobKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	kind, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// Phase is a job lifecycle state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseUploading
	PhaseProcessing
	PhaseDone
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseUploading:
		return "uploading"
	case PhaseProcessing:
		return "processing"
	case PhaseDone:
		return "done"
	case PhaseError:
		return "error"
	default:
		return ""
	}
}

// ParsePhase converts a phase name to a [Phase].
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "idle":
		return PhaseIdle, nil
	case "uploading":
		return PhaseUploading, nil
	case "processing":
		return PhaseProcessing, nil
	case "done":
		return PhaseDone, nil
	case "error":
		return PhaseError, nil
	default:
		return 0, fmt.Errorf("%w: unknown phase %q", shared.ErrInvalidArgument, s)
	}
}

// Terminal reports whether the phase ends the job lifecycle.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseError
}

// MarshalJSON encodes the phase as its string name.
func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes the phase from its string name.
func (p *Phase) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	phase, err := ParsePhase(s)
	if err != nil {
		return err
	}
	*p = phase
	return nil
}

// ValidTransition enforces the forward-only job state machine.
// Reset to idle is allowed from any phase.
func ValidTransition(from, to Phase) bool {
	if to == PhaseIdle {
		return true
	}
	switch from {
	case PhaseIdle:
		return to == PhaseUploading
	case PhaseUploading:
		return to == PhaseProcessing || to == PhaseError
	case PhaseProcessing:
		return to == PhaseDone || to == PhaseError
	default:
		return false
	}
}

// Job is the client-side view of one separation task. Exactly one Job is
// active per kind at a time.
type Job struct {
	TaskID       string            // backend task identifier
	Token        string            // client token, regenerated per submit; stale responses are matched against it
	Kind         JobKind           // result shape
	Phase        Phase             // lifecycle state
	SubmittedAt  time.Time         // upload completion time; timeout is measured from here
	Position     int               // queue position reported by the backend
	ETASeconds   int               // estimated seconds remaining
	ResultRefs   map[string]string // stem name -> URL, populated when done
	Segments     []Segment         // populated for segment kinds when done
	ErrorMessage string            // terminal error detail
}

// Track is one separated stem available for playback. Tracks exist only
// while the owning job is done.
type Track struct {
	Name           string
	SourceURL      string
	Volume         int // 0..100
	WaveformLoaded bool
}

// TracksFromRefs builds the ordered track list for a completed job. Order
// follows [JobKind.Stems] so the master track is always index 0; stems
// missing from refs are skipped.
func TracksFromRefs(kind JobKind, refs map[string]string) []Track {
	stems := kind.Stems()
	tracks := make([]Track, 0, len(stems))
	for _, name := range stems {
		url, ok := refs[name]
		if !ok {
			continue
		}
		tracks = append(tracks, Track{Name: name, SourceURL: url, Volume: 100})
	}
	return tracks
}

// Segment is a half-open time range [Start, End) produced by voice-activity
// detection. Identity is positional within the owning list.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns End - Start in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Validate checks segment bounds against the total source duration.
func (s Segment) Validate(total float64) error {
	if s.Start < 0 {
		return fmt.Errorf("%w: start %.3f is negative", shared.ErrInvalidSegment, s.Start)
	}
	if s.End <= s.Start {
		return fmt.Errorf("%w: end %.3f must exceed start %.3f", shared.ErrInvalidSegment, s.End, s.Start)
	}
	if total > 0 && s.End > total {
		return fmt.Errorf("%w: end %.3f exceeds duration %.3f", shared.ErrInvalidSegment, s.End, total)
	}
	return nil
}

// PersistedSession is the serialized snapshot of an in-flight or completed
// job, stored one per kind so a restart can resume without re-submitting.
type PersistedSession struct {
	TaskID     string            `json:"task_id"`
	Kind       JobKind           `json:"kind"`
	Phase      Phase             `json:"phase"`
	ResultRefs map[string]string `json:"result_refs,omitempty"`
	Segments   []Segment         `json:"segments,omitempty"`
	Position   int               `json:"position"`
	ETASeconds int               `json:"eta_seconds"`
	StartedAt  time.Time         `json:"started_at"`
	SavedAt    time.Time         `json:"saved_at"`
}

// Expired reports whether the snapshot is older than its kind's maximum age.
func (s *PersistedSession) Expired(now time.Time) bool {
	return now.Sub(s.SavedAt) > s.Kind.MaxSessionAge()
}
