// package timeline implements a zoomable, scroll-synchronized editor over
// the segment list of a completed detection job: selection, inline numeric
// edits, deletes with index remapping, and segment-scoped playback hooks.
package timeline

import (
	"fmt"
	"time"

	"github.com/bep/debounce"
	"github.com/desertthunder/stemx/internal/models"
	"github.com/desertthunder/stemx/internal/shared"
)

// Zoom bounds in pixels per second.
const (
	MinZoom = 10.0
	MaxZoom = 800.0

	// ZoomStep is applied per wheel tick.
	ZoomStep = 20.0
)

// Field identifies which bound of a segment an inline editor targets.
type Field int

const (
	FieldStart Field = iota
	FieldEnd
)

func (f Field) String() string {
	if f == FieldEnd {
		return "end"
	}
	return "start"
}

// EditingCell locates an open inline editor.
type EditingCell struct {
	Index int
	Field Field
}

// Transport is what the editor needs from the playback layer: seek the
// master track and run segment-scoped playback.
type Transport interface {
	SeekAll(t float64)
	PlaySegment(segment models.Segment)
}

// Editor holds the timeline view state for one segment list. Scroll offset
// changes are mirrored to every overlay layer through a debounced apply so
// a burst of wheel events costs one layout pass.
type Editor struct {
	segments []models.Segment
	duration float64
	viewport float64 // visible width in pixels

	zoom     float64 // pixels per second
	scrollPx float64

	selected int // -1 when nothing is selected
	hovered  int
	editing  *EditingCell

	transport Transport
	onScroll  func(offsetPx float64) // applied to overlay layers
	debounced func(func())
}

// EditorOpts contains configuration options for creating an Editor.
type EditorOpts struct {
	Segments  []models.Segment
	Duration  float64
	Viewport  float64 // defaults to 800px
	Zoom      float64 // defaults to 100 px/s
	Transport Transport
	OnScroll  func(offsetPx float64)
	// DebounceInterval batches overlay mirroring; defaults to one 60Hz frame.
	DebounceInterval time.Duration
}

// NewEditor creates an editor with nothing selected.
func NewEditor(opts EditorOpts) *Editor {
	if opts.Viewport <= 0 {
		opts.Viewport = 800
	}
	if opts.Zoom <= 0 {
		opts.Zoom = 100
	}
	if opts.DebounceInterval <= 0 {
		opts.DebounceInterval = time.Second / 60
	}
	return &Editor{
		segments:  append([]models.Segment(nil), opts.Segments...),
		duration:  opts.Duration,
		viewport:  opts.Viewport,
		zoom:      clampZoom(opts.Zoom),
		selected:  -1,
		hovered:   -1,
		transport: opts.Transport,
		onScroll:  opts.OnScroll,
		debounced: debounce.New(opts.DebounceInterval),
	}
}

func clampZoom(z float64) float64 {
	if z < MinZoom {
		return MinZoom
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return z
}

// Segments returns a copy of the current segment list.
func (e *Editor) Segments() []models.Segment {
	return append([]models.Segment(nil), e.segments...)
}

// Zoom reports the current pixel-per-second mapping.
func (e *Editor) Zoom() float64 { return e.zoom }

// ScrollOffset reports the current horizontal offset in pixels.
func (e *Editor) ScrollOffset() float64 { return e.scrollPx }

// Selected returns the selected segment index, -1 for none.
func (e *Editor) Selected() int { return e.selected }

// Hovered returns the hovered segment index, -1 for none.
func (e *Editor) Hovered() int { return e.hovered }

// Editing returns the open inline editor cell, nil for none.
func (e *Editor) Editing() *EditingCell { return e.editing }

// TimeToPixel maps a time in seconds to a viewport-relative x coordinate.
func (e *Editor) TimeToPixel(t float64) float64 {
	return t*e.zoom - e.scrollPx
}

// PixelToTime maps a viewport-relative x coordinate to seconds.
func (e *Editor) PixelToTime(x float64) float64 {
	return (x + e.scrollPx) / e.zoom
}

// setScroll clamps the offset to the content width and mirrors it to the
// overlay layers through the debouncer.
func (e *Editor) setScroll(px float64) {
	max := e.duration*e.zoom - e.viewport
	if max < 0 {
		max = 0
	}
	if px < 0 {
		px = 0
	}
	if px > max {
		px = max
	}
	e.scrollPx = px
	if e.onScroll != nil {
		offset := px
		e.debounced(func() { e.onScroll(offset) })
	}
}

// Scroll moves the view by a pixel delta.
func (e *Editor) Scroll(deltaPx float64) {
	e.setScroll(e.scrollPx + deltaPx)
}

// ZoomAt adjusts the zoom level by ticks*ZoomStep and recomputes the scroll
// offset so the time under pointerX stays put (zoom-to-pointer).
func (e *Editor) ZoomAt(pointerX float64, ticks int) {
	anchor := e.PixelToTime(pointerX)
	e.zoom = clampZoom(e.zoom + float64(ticks)*ZoomStep)
	e.setScroll(anchor*e.zoom - pointerX)
}

// centerOn scrolls so that time t sits in the middle of the viewport.
func (e *Editor) centerOn(t float64) {
	e.setScroll(t*e.zoom - e.viewport/2)
}

// Hover records the hovered segment, -1 to clear.
func (e *Editor) Hover(i int) {
	if i < -1 || i >= len(e.segments) {
		i = -1
	}
	e.hovered = i
}

// Select picks segment i, seeks the master track to its start, and centers
// the view on it.
func (e *Editor) Select(i int) error {
	if i < 0 || i >= len(e.segments) {
		return fmt.Errorf("%w: index %d", shared.ErrInvalidSegment, i)
	}
	e.selected = i
	start := e.segments[i].Start
	if e.transport != nil {
		e.transport.SeekAll(start)
	}
	e.centerOn(start)
	return nil
}

// PlaySelected runs segment-scoped playback from the selected segment's
// exact start; playback pins at the segment end.
func (e *Editor) PlaySelected() error {
	if e.selected < 0 || e.selected >= len(e.segments) {
		return fmt.Errorf("%w: nothing selected", shared.ErrInvalidSegment)
	}
	if e.transport != nil {
		e.transport.PlaySegment(e.segments[e.selected])
	}
	return nil
}

// Next moves the selection to the following segment, clamped at the last,
// and re-centers on its start.
func (e *Editor) Next() error {
	return e.step(1)
}

// Prev moves the selection to the preceding segment, clamped at the first,
// and re-centers on its start.
func (e *Editor) Prev() error {
	return e.step(-1)
}

func (e *Editor) step(delta int) error {
	if len(e.segments) == 0 {
		return fmt.Errorf("%w: no segments", shared.ErrInvalidSegment)
	}
	i := e.selected + delta
	if e.selected < 0 {
		i = 0
	}
	if i < 0 {
		i = 0
	}
	if i > len(e.segments)-1 {
		i = len(e.segments) - 1
	}
	return e.Select(i)
}

// BeginEdit opens the inline numeric editor on one bound of segment i and
// returns the seed value.
func (e *Editor) BeginEdit(i int, field Field) (float64, error) {
	if i < 0 || i >= len(e.segments) {
		return 0, fmt.Errorf("%w: index %d", shared.ErrInvalidSegment, i)
	}
	e.editing = &EditingCell{Index: i, Field: field}
	if field == FieldEnd {
		return e.segments[i].End, nil
	}
	return e.segments[i].Start, nil
}

// CancelEdit closes the inline editor without changes.
func (e *Editor) CancelEdit() {
	e.editing = nil
}

// CommitEdit validates value against the open cell and applies it. The
// value must be within [0, duration] and the segment must keep end > start
// after substitution; a violation returns an error and leaves the list
// untouched, with the editor still open for correction.
func (e *Editor) CommitEdit(value float64) error {
	cell := e.editing
	if cell == nil {
		return fmt.Errorf("%w: no cell being edited", shared.ErrInvalidSegment)
	}

	if value < 0 {
		return fmt.Errorf("%w: %s must be >= 0", shared.ErrInvalidSegment, cell.Field)
	}
	if value > e.duration {
		return fmt.Errorf("%w: %s exceeds track duration %.2fs", shared.ErrInvalidSegment, cell.Field, e.duration)
	}

	candidate := e.segments[cell.Index]
	if cell.Field == FieldEnd {
		candidate.End = value
	} else {
		candidate.Start = value
	}
	if candidate.End <= candidate.Start {
		return fmt.Errorf("%w: end must be after start", shared.ErrInvalidSegment)
	}

	e.segments[cell.Index] = candidate
	e.editing = nil
	return nil
}

// Delete removes segment i. Indices above i shift down by one, so the
// selection, hover, and editing references are remapped: greater than i
// decrements, equal to i clears.
func (e *Editor) Delete(i int) error {
	if i < 0 || i >= len(e.segments) {
		return fmt.Errorf("%w: index %d", shared.ErrInvalidSegment, i)
	}
	e.segments = append(e.segments[:i], e.segments[i+1:]...)

	e.selected = remap(e.selected, i)
	e.hovered = remap(e.hovered, i)
	if e.editing != nil {
		switch {
		case e.editing.Index == i:
			e.editing = nil
		case e.editing.Index > i:
			e.editing.Index--
		}
	}
	return nil
}

func remap(index, deleted int) int {
	switch {
	case index == deleted:
		return -1
	case index > deleted:
		return index - 1
	default:
		return index
	}
}
