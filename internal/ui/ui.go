// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI provides a multi-view workflow for stem separation:
//  1. [StatusView] : Submission and polling progress
//  2. [StemsView] : Synchronized multi-track playback with per-stem volume
//  3. [TimelineView] : Segment list with zoom, edit, delete, and scoped playback
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern.
// Progress updates flow through a channel from the job Controller, and playback
// frames flow from the Synchronizer's sync loop, providing non-blocking status
// reporting during long operations.
//
// Keyboard navigation uses vim-style bindings (j/k, space, enter, esc, q) with
// contextual help displayed via charmbracelet/bubbles/help.
package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/stemx/internal/export"
	"github.com/desertthunder/stemx/internal/models"
	"github.com/desertthunder/stemx/internal/playback"
	"github.com/desertthunder/stemx/internal/tasks"
	"github.com/desertthunder/stemx/internal/timeline"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	StatusView ViewState = iota
	StemsView
	TimelineView
)

// defaultSourceDuration stands in when the source duration is unknown;
// the wall-clock decoders only need an upper bound for the transport.
const defaultSourceDuration = 180.0

// Model represents the TUI application state.
type Model struct {
	ctx        context.Context
	view       ViewState
	controller *tasks.Controller
	gate       *export.Gate
	path       string
	duration   float64
	tickHz     int
	epsilon    float64
	width      int
	height     int

	progressChan chan tasks.ProgressUpdate
	progress     tasks.ProgressUpdate

	sync      *playback.Synchronizer
	frameChan chan playback.Frame
	frame     playback.Frame
	tracks    []models.Track
	trackSel  int

	editor  *timeline.Editor
	input   textinput.Model
	editErr error
	notice  string

	err  error
	help help.Model
	keys keyMap
}

// ModelOpts contains configuration options for creating a Model.
type ModelOpts struct {
	Ctx        context.Context
	Controller *tasks.Controller
	Gate       *export.Gate
	Path       string  // file to submit; empty resumes the current job
	Duration   float64 // source duration in seconds, if known
	TickHz     int     // sync loop frame rate; 0 uses the playback default
	Epsilon    float64 // drift tolerance in seconds; 0 uses the playback default
	Progress   chan tasks.ProgressUpdate
}

type progressUpdateMsg tasks.ProgressUpdate

type frameMsg playback.Frame

type submitDoneMsg struct{ err error }

type downloadDoneMsg struct {
	entry *export.ManifestEntry
	err   error
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(opts ModelOpts) *Model {
	if opts.Duration <= 0 {
		opts.Duration = defaultSourceDuration
	}
	return &Model{
		ctx:          opts.Ctx,
		view:         StatusView,
		controller:   opts.Controller,
		gate:         opts.Gate,
		path:         opts.Path,
		duration:     opts.Duration,
		tickHz:       opts.TickHz,
		epsilon:      opts.Epsilon,
		progressChan: opts.Progress,
		frameChan:    make(chan playback.Frame, 8),
		help:         help.New(),
		keys:         newKeyMap(),
	}
}

// Init submits the file (or picks up the restored job) and starts listening
// for progress updates.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.waitForProgress()}
	if m.controller.Job().Phase == models.PhaseDone {
		m.enterResultView()
	} else if m.path != "" {
		cmds = append(cmds, m.submit())
	}
	return tea.Batch(cmds...)
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case StatusView:
			return m.handleStatusKeys(msg)
		case StemsView:
			return m.handleStemsKeys(msg)
		case TimelineView:
			return m.handleTimelineKeys(msg)
		}

	case progressUpdateMsg:
		m.progress = tasks.ProgressUpdate(msg)
		if m.progress.Stage == tasks.JobDone {
			m.enterResultView()
		}
		return m, m.waitForProgress()

	case submitDoneMsg:
		if msg.err != nil {
			m.err = msg.err
		}
		return m, nil

	case downloadDoneMsg:
		if msg.err != nil {
			m.notice = styles.err.Render(msg.err.Error())
		} else {
			m.notice = styles.ok.Render(fmt.Sprintf("Saved %s", msg.entry.Path))
		}
		return m, nil

	case frameMsg:
		m.frame = playback.Frame(msg)
		return m, m.waitForFrame()
	}

	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case StatusView:
		return m.renderStatus()
	case StemsView:
		return m.renderStems()
	case TimelineView:
		return m.renderTimeline()
	default:
		return ""
	}
}

// enterResultView builds the playback or timeline surface for a done job.
func (m *Model) enterResultView() {
	job := m.controller.Job()
	if job.Kind.Segmented() {
		segments, err := m.controller.Segments()
		if err != nil {
			m.err = err
			return
		}
		m.buildPlayback([]models.Track{{Name: "source", Volume: 100}}, job.Kind)
		m.editor = timeline.NewEditor(timeline.EditorOpts{
			Segments:  segments,
			Duration:  m.duration,
			Transport: m.sync,
		})
		m.input = textinput.New()
		m.input.CharLimit = 10
		m.view = TimelineView
		return
	}

	tracks, err := m.controller.Tracks()
	if err != nil {
		m.err = err
		return
	}
	m.buildPlayback(tracks, job.Kind)
	m.view = StemsView
}

func (m *Model) buildPlayback(tracks []models.Track, kind models.JobKind) {
	decoders := make([]playback.Decoder, len(tracks))
	for i := range tracks {
		decoders[i] = playback.NewTimerDecoder(m.duration)
	}
	var ticker playback.Ticker
	if m.tickHz > 0 {
		ticker = playback.NewTicker(m.tickHz)
	}
	sync, err := playback.NewSynchronizer(playback.SynchronizerOpts{
		Kind:     kind,
		Tracks:   tracks,
		Decoders: decoders,
		Ticker:   ticker,
		Epsilon:  m.epsilon,
		OnFrame: func(f playback.Frame) {
			select {
			case m.frameChan <- f:
			default:
			}
		},
	})
	if err != nil {
		m.err = err
		return
	}
	m.sync = sync
	m.tracks = tracks
}

func (m *Model) handleStatusKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) handleStemsKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.sync.PauseAll()
		return m, tea.Quit
	case "up", "k":
		if m.trackSel > 0 {
			m.trackSel--
		}
	case "down", "j":
		if m.trackSel < len(m.tracks)-1 {
			m.trackSel++
		}
	case " ":
		if m.sync.Playing() {
			m.sync.PauseAll()
		} else {
			m.sync.PlayAll()
			return m, m.waitForFrame()
		}
	case "left", "h":
		m.sync.SeekAll(m.sync.Position() - 5)
	case "right", "l":
		m.sync.SeekAll(m.sync.Position() + 5)
	case "+", "=":
		m.adjustVolume(10)
	case "-":
		m.adjustVolume(-10)
	case "o":
		return m, m.downloadSelected()
	}
	return m, nil
}

// downloadSelected fetches the highlighted stem in the lossy default
// format through the export gate.
func (m *Model) downloadSelected() tea.Cmd {
	if m.gate == nil || m.trackSel >= len(m.tracks) {
		return nil
	}
	stem := m.tracks[m.trackSel].Name
	taskID := m.controller.Job().TaskID
	m.notice = fmt.Sprintf("Downloading %s...", stem)
	return func() tea.Msg {
		entry, err := m.gate.DownloadStem(m.ctx, taskID, stem, export.DefaultLossyFormat)
		return downloadDoneMsg{entry: entry, err: err}
	}
}

func (m *Model) adjustVolume(delta int) {
	tracks := m.sync.Tracks()
	if m.trackSel >= len(tracks) {
		return
	}
	if err := m.sync.SetVolume(m.trackSel, tracks[m.trackSel].Volume+delta, true); err == nil {
		m.tracks = m.sync.Tracks()
	}
}

func (m *Model) handleTimelineKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.editor.Editing() != nil {
		return m.handleEditKeys(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.sync.PauseAll()
		return m, tea.Quit
	case "up", "k":
		m.editor.Prev()
	case "down", "j":
		m.editor.Next()
	case "enter":
		if err := m.editor.PlaySelected(); err == nil {
			return m, m.waitForFrame()
		}
	case " ":
		if m.sync.Playing() {
			m.sync.PauseAll()
		}
	case "e":
		m.beginEdit(timeline.FieldStart)
	case "E":
		m.beginEdit(timeline.FieldEnd)
	case "d":
		if i := m.editor.Selected(); i >= 0 {
			if err := m.editor.Delete(i); err == nil {
				m.persistSegments()
			}
		}
	case "z":
		m.editor.ZoomAt(float64(m.width)/2, 1)
	case "x":
		m.editor.ZoomAt(float64(m.width)/2, -1)
	}
	return m, nil
}

// persistSegments re-persists the edited segment list. The edit already
// applied locally; a failed write is surfaced instead of swallowed.
func (m *Model) persistSegments() {
	if err := m.controller.ReplaceSegments(m.editor.Segments()); err != nil {
		m.notice = styles.err.Render(fmt.Sprintf("not saved: %v", err))
		return
	}
	m.notice = ""
}

func (m *Model) beginEdit(field timeline.Field) {
	i := m.editor.Selected()
	if i < 0 {
		return
	}
	seed, err := m.editor.BeginEdit(i, field)
	if err != nil {
		return
	}
	m.editErr = nil
	m.input.SetValue(strconv.FormatFloat(seed, 'f', 2, 64))
	m.input.Focus()
}

func (m *Model) handleEditKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.editor.CancelEdit()
		m.input.Blur()
		m.editErr = nil
		return m, nil
	case "enter":
		value, err := strconv.ParseFloat(strings.TrimSpace(m.input.Value()), 64)
		if err != nil {
			m.editErr = fmt.Errorf("not a number: %s", m.input.Value())
			return m, nil
		}
		if err := m.editor.CommitEdit(value); err != nil {
			// Rejected edits leave the list untouched; keep the editor open.
			m.editErr = err
			return m, nil
		}
		m.editErr = nil
		m.input.Blur()
		m.persistSegments()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) submit() tea.Cmd {
	return func() tea.Msg {
		return submitDoneMsg{err: m.controller.Submit(m.ctx, m.path)}
	}
}

func (m *Model) waitForProgress() tea.Cmd {
	if m.progressChan == nil {
		return nil
	}
	return func() tea.Msg {
		update, ok := <-m.progressChan
		if !ok {
			return nil
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) waitForFrame() tea.Cmd {
	return func() tea.Msg {
		return frameMsg(<-m.frameChan)
	}
}

func (m *Model) renderStatus() string {
	job := m.controller.Job()
	title := styles.title.Render(fmt.Sprintf("Separation: %s", job.Kind))

	var body string
	switch job.Phase {
	case models.PhaseIdle:
		body = "No active job."
	case models.PhaseUploading:
		body = m.progress.Message
		if m.progress.Percent > 0 {
			body = fmt.Sprintf("%s\n%s", body, renderBar(m.progress.Percent/100, 40))
		}
	case models.PhaseProcessing:
		body = m.progress.Message
		if body == "" {
			body = "Processing..."
		}
	case models.PhaseError:
		body = styles.err.Render(job.ErrorMessage)
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.quit})
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, body, helpView)
}

func (m *Model) renderStems() string {
	title := styles.title.Render("Stems")

	var rows []string
	for i, track := range m.tracks {
		cursor := "  "
		if i == m.trackSel {
			cursor = styles.ok.Render("> ")
		}
		marker := " "
		if i == 0 {
			marker = "*"
		}
		rows = append(rows, fmt.Sprintf("%s%s %-12s %s %3d", cursor, marker, track.Name, renderBar(float64(track.Volume)/100, 20), track.Volume))
	}

	transport := fmt.Sprintf("%s\n%s", renderBar(m.frame.Fraction, 50), m.frame.Readout)
	if m.frame.Readout == "" {
		transport = renderBar(0, 50)
	}

	notice := ""
	if m.notice != "" {
		notice = "\n" + m.notice
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.space, m.keys.seekB, m.keys.volUp, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n\n%s%s\n\n%s", title, strings.Join(rows, "\n"), transport, notice, helpView)
}

func (m *Model) renderTimeline() string {
	title := styles.title.Render(fmt.Sprintf("Segments (%.0f px/s)", m.editor.Zoom()))

	var rows []string
	for i, segment := range m.editor.Segments() {
		cursor := "  "
		if i == m.editor.Selected() {
			cursor = styles.ok.Render("> ")
		}
		rows = append(rows, fmt.Sprintf("%s%2d  %7.2fs → %7.2fs  (%.2fs)", cursor, i+1, segment.Start, segment.End, segment.Duration()))
	}
	if len(rows) == 0 {
		rows = append(rows, styles.warn.Render("no segments"))
	}

	var editLine string
	if cell := m.editor.Editing(); cell != nil {
		editLine = fmt.Sprintf("\nEdit %s of segment %d: %s", cell.Field, cell.Index+1, m.input.View())
		if m.editErr != nil {
			editLine += "\n" + styles.err.Render(m.editErr.Error())
		}
	}

	transport := ""
	if m.frame.Readout != "" {
		transport = fmt.Sprintf("\n%s  %s", renderBar(m.frame.Fraction, 40), m.frame.Readout)
	}

	notice := ""
	if m.notice != "" {
		notice = "\n" + m.notice
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.edit, m.keys.delete, m.keys.zoomIn, m.keys.quit})
	return fmt.Sprintf("%s\n%s%s%s%s\n\n%s", title, strings.Join(rows, "\n"), editLine, transport, notice, helpView)
}

// renderBar draws a simple unicode progress bar for fraction in [0, 1].
func renderBar(fraction float64, width int) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(fraction * float64(width))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}
