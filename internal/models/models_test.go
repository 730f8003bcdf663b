package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestValidTransition(t *testing.T) {
	tc := []struct {
		name string
		from Phase
		to   Phase
		want bool
	}{
		{name: "idle to uploading", from: PhaseIdle, to: PhaseUploading, want: true},
		{name: "uploading to processing", from: PhaseUploading, to: PhaseProcessing, want: true},
		{name: "processing to done", from: PhaseProcessing, to: PhaseDone, want: true},
		{name: "processing to error", from: PhaseProcessing, to: PhaseError, want: true},
		{name: "uploading to error", from: PhaseUploading, to: PhaseError, want: true},
		{name: "reset from done", from: PhaseDone, to: PhaseIdle, want: true},
		{name: "reset from error", from: PhaseError, to: PhaseIdle, want: true},
		{name: "no skip to done", from: PhaseIdle, to: PhaseDone, want: false},
		{name: "no backward", from: PhaseDone, to: PhaseProcessing, want: false},
		{name: "no resubmit while processing", from: PhaseProcessing, to: PhaseUploading, want: false},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("ValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestSegmentValidate(t *testing.T) {
	tc := []struct {
		name    string
		seg     Segment
		total   float64
		wantErr bool
	}{
		{name: "valid", seg: Segment{Start: 1.5, End: 3.0}, total: 10, wantErr: false},
		{name: "valid at boundary", seg: Segment{Start: 0, End: 10}, total: 10, wantErr: false},
		{name: "negative start", seg: Segment{Start: -0.1, End: 3}, total: 10, wantErr: true},
		{name: "end equals start", seg: Segment{Start: 2, End: 2}, total: 10, wantErr: true},
		{name: "end before start", seg: Segment{Start: 5, End: 2}, total: 10, wantErr: true},
		{name: "end past duration", seg: Segment{Start: 1, End: 11}, total: 10, wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.seg.Validate(tt.total)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTracksFromRefs(t *testing.T) {
	refs := map[string]string{
		"other":  "https://cdn.example.com/other.mp3",
		"vocals": "https://cdn.example.com/vocals.mp3",
		"drums":  "https://cdn.example.com/drums.mp3",
		"bass":   "https://cdn.example.com/bass.mp3",
	}

	tracks := TracksFromRefs(KindFourStem, refs)
	if len(tracks) != 4 {
		t.Fatalf("expected 4 tracks, got %d", len(tracks))
	}
	if tracks[0].Name != "vocals" {
		t.Errorf("master track should be vocals, got %s", tracks[0].Name)
	}
	for _, tr := range tracks {
		if tr.Volume != 100 {
			t.Errorf("track %s should default to volume 100, got %d", tr.Name, tr.Volume)
		}
	}

	partial := TracksFromRefs(KindDryResidual, map[string]string{"dry": "u"})
	if len(partial) != 1 || partial[0].Name != "dry" {
		t.Errorf("missing stems should be skipped, got %v", partial)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	session := &PersistedSession{
		TaskID:     "T1",
		Kind:       KindSegments,
		Phase:      PhaseDone,
		Segments:   []Segment{{Start: 0.5, End: 2.25}},
		StartedAt:  started,
		SavedAt:    started.Add(time.Minute),
		Position:   0,
		ETASeconds: 0,
	}

	data, err := json.Marshal(session)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got PersistedSession
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Kind != KindSegments || got.Phase != PhaseDone {
		t.Errorf("kind/phase lost in round trip: %v %v", got.Kind, got.Phase)
	}
	if len(got.Segments) != 1 || got.Segments[0].End != 2.25 {
		t.Errorf("segments lost in round trip: %v", got.Segments)
	}
}

func TestSessionExpired(t *testing.T) {
	saved := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	stem := &PersistedSession{Kind: KindFourStem, SavedAt: saved}
	if stem.Expired(saved.Add(11 * time.Hour)) {
		t.Error("stem session should survive 11h")
	}
	if !stem.Expired(saved.Add(13 * time.Hour)) {
		t.Error("stem session should expire after 12h")
	}

	seg := &PersistedSession{Kind: KindSegments, SavedAt: saved}
	if seg.Expired(saved.Add(23 * time.Hour)) {
		t.Error("segment session should survive 23h")
	}
	if !seg.Expired(saved.Add(25 * time.Hour)) {
		t.Error("segment session should expire after 24h")
	}
}
