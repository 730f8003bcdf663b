package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stemx/internal/export"
	"github.com/desertthunder/stemx/internal/models"
	"github.com/desertthunder/stemx/internal/repositories"
	"github.com/desertthunder/stemx/internal/services"
	"github.com/desertthunder/stemx/internal/shared"
	"github.com/desertthunder/stemx/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	client      services.Separator
	sessions    repositories.SessionRepository
	gate        *export.Gate
	logger      *log.Logger
	output      io.Writer
	entitled    func() bool
	progress    chan tasks.ProgressUpdate
	controllers map[models.JobKind]*tasks.Controller
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config   *shared.Config
	Client   services.Separator
	Sessions repositories.SessionRepository
	Gate     *export.Gate
	Logger   *log.Logger
	Output   io.Writer
	Entitled func() bool
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Entitled == nil {
		opts.Entitled = func() bool { return os.Getenv("STEMX_PREMIUM") != "" }
	}
	if opts.Gate == nil {
		opts.Gate = export.NewGate(export.GateOpts{
			Client:   opts.Client,
			Entitled: opts.Entitled,
			Logger:   opts.Logger,
		})
	}

	return &Runner{
		config:      opts.Config,
		client:      opts.Client,
		sessions:    opts.Sessions,
		gate:        opts.Gate,
		logger:      opts.Logger,
		output:      opts.Output,
		entitled:    opts.Entitled,
		progress:    make(chan tasks.ProgressUpdate, 50),
		controllers: make(map[models.JobKind]*tasks.Controller),
	}
}

// SetLogger swaps the runner's logger, used when the TUI takes over stdout.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// controller returns the job controller for kind, creating it on first use.
func (r *Runner) controller(kind models.JobKind) *tasks.Controller {
	if c, ok := r.controllers[kind]; ok {
		return c
	}
	c := tasks.NewController(tasks.ControllerOpts{
		Kind:          kind,
		Client:        r.client,
		Sessions:      r.sessions,
		Logger:        r.logger,
		Progress:      r.progress,
		PollInterval:  time.Duration(r.config.Polling.IntervalSeconds) * time.Second,
		Timeout:       time.Duration(r.config.Polling.TimeoutMinutes) * time.Minute,
		MissTolerance: r.config.Polling.MissTolerance,
		ChunkOver:     r.config.Upload.ChunkThresholdBytes,
	})
	r.controllers[kind] = c
	return c
}

// drainProgress prints queued progress updates to the output writer.
func (r *Runner) drainProgress() {
	for {
		select {
		case update := <-r.progress:
			r.writePlain("%s\n", update.Message)
		default:
			return
		}
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
