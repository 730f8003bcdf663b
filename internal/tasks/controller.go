// package tasks implements the separation job lifecycle.
//
// The core abstraction is Controller, a per-kind state machine that owns
// upload transport and status polling, persists session snapshots for
// resume-after-restart, and enforces the processing timeout. Operations
// emit progress updates via channels for non-blocking status reporting to
// CLI/UI layers.
package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stemx/internal/models"
	"github.com/desertthunder/stemx/internal/repositories"
	"github.com/desertthunder/stemx/internal/services"
	"github.com/desertthunder/stemx/internal/shared"
)

// Controller owns the single active job for one job kind.
//
// State machine: idle -> uploading -> processing -> done|error, forward-only
// except Reset, which returns to idle from any phase.
type Controller struct {
	mu       sync.Mutex
	kind     models.JobKind
	client   services.Separator
	sessions repositories.SessionRepository
	clock    repositories.Clock
	logger   *log.Logger
	progress chan<- ProgressUpdate
	onReset  func()

	job     models.Job
	cancel  context.CancelFunc
	misses  int
	lastSeq uint64

	pollInterval  time.Duration
	timeout       time.Duration
	missTolerance int
	chunkOver     int64
	forceChunk    bool
}

// ControllerOpts contains configuration options for creating a Controller.
type ControllerOpts struct {
	Kind          models.JobKind
	Client        services.Separator
	Sessions      repositories.SessionRepository
	Clock         repositories.Clock
	Logger        *log.Logger
	Progress      chan<- ProgressUpdate // optional; sends never block
	OnReset       func()                // optional; invoked after Reset clears state
	PollInterval  time.Duration         // default 2s
	Timeout       time.Duration         // default 20m, measured from submission
	MissTolerance int                   // consecutive 404s tolerated, default 3
	ChunkOver     int64                 // file size above which uploads are chunked
}

// NewController creates a Controller in the idle phase.
func NewController(opts ControllerOpts) *Controller {
	if opts.Clock == nil {
		opts.Clock = repositories.SystemClock
	}
	if opts.Sessions == nil {
		opts.Sessions = repositories.NullSessions
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Minute
	}
	if opts.MissTolerance <= 0 {
		opts.MissTolerance = 3
	}

	return &Controller{
		kind:          opts.Kind,
		client:        opts.Client,
		sessions:      opts.Sessions,
		clock:         opts.Clock,
		logger:        shared.WithLogger(opts.Logger, "kind", opts.Kind.String()),
		progress:      opts.Progress,
		onReset:       opts.OnReset,
		pollInterval:  opts.PollInterval,
		timeout:       opts.Timeout,
		missTolerance: opts.MissTolerance,
		chunkOver:     opts.ChunkOver,
		job:           models.Job{Kind: opts.Kind, Phase: models.PhaseIdle},
	}
}

// sendProgress sends a progress update through the channel without blocking.
func (c *Controller) sendProgress(update ProgressUpdate) {
	if c.progress == nil {
		return
	}
	select {
	case c.progress <- update:
	default:
	}
}

// SetForceChunked makes subsequent submits use the chunked transport
// regardless of file size.
func (c *Controller) SetForceChunked(force bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forceChunk = force
}

// Job returns a snapshot of the current job.
func (c *Controller) Job() models.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() models.Job {
	job := c.job
	if c.job.ResultRefs != nil {
		job.ResultRefs = make(map[string]string, len(c.job.ResultRefs))
		for k, v := range c.job.ResultRefs {
			job.ResultRefs[k] = v
		}
	}
	if c.job.Segments != nil {
		job.Segments = append([]models.Segment(nil), c.job.Segments...)
	}
	return job
}

// Submit uploads a file and starts polling. It rejects when the daily quota
// is exhausted or another job for this kind is still in flight. Files above
// the chunk threshold use the chunked transport.
//
// The uploading slot is claimed in the same critical section as the
// in-flight check, so a second concurrent Submit fails fast instead of
// orphaning the first upload. Refusals before any bytes reach the backend
// (quota, unreadable file) release the claim back to idle.
func (c *Controller) Submit(ctx context.Context, path string) error {
	jobCtx, cancel := context.WithCancel(ctx)
	token := shared.GenerateID()

	c.mu.Lock()
	if c.job.Phase == models.PhaseUploading || c.job.Phase == models.PhaseProcessing {
		taskID, phase := c.job.TaskID, c.job.Phase
		c.mu.Unlock()
		cancel()
		return fmt.Errorf("%w: task %s is %s", shared.ErrJobRunning, taskID, phase)
	}
	c.cancel = cancel
	c.misses = 0
	c.lastSeq = 0
	c.job = models.Job{
		Kind:  c.kind,
		Token: token,
		Phase: models.PhaseUploading,
	}
	c.mu.Unlock()

	quota, err := c.client.Quota(jobCtx)
	if err != nil {
		c.releaseClaim(token)
		return err
	}
	if quota.Remaining <= 0 {
		c.releaseClaim(token)
		return fmt.Errorf("%w: %d submissions used", shared.ErrDailyLimit, quota.Limit)
	}
	c.sendProgress(quotaUpdate(quota.Remaining, quota.Limit))

	info, err := os.Stat(path)
	if err != nil {
		c.releaseClaim(token)
		return fmt.Errorf("%w: %v", shared.ErrUploadFailed, err)
	}

	c.sendProgress(uploadStartUpdate(filepath.Base(path), info.Size()))
	c.logger.Info("submitting file", "path", path, "bytes", info.Size())

	c.mu.Lock()
	chunked := c.forceChunk || (c.chunkOver > 0 && info.Size() > c.chunkOver)
	c.mu.Unlock()

	var submit *services.SubmitResponse
	if chunked {
		submit, err = c.client.UploadChunked(jobCtx, c.kind, path, func(pct float64) {
			c.sendProgress(chunkProgressUpdate(pct, info.Size()))
		})
	} else {
		submit, err = c.client.Upload(jobCtx, c.kind, path)
	}
	if err != nil {
		c.fail(token, err.Error())
		return err
	}

	c.mu.Lock()
	if c.job.Token != token {
		// Reset raced the upload; the accepted task is abandoned.
		c.mu.Unlock()
		return shared.ErrNoActiveJob
	}
	c.job.TaskID = submit.TaskID
	c.job.Position = submit.Position
	c.job.ETASeconds = submit.ETASeconds
	c.setPhaseLocked(models.PhaseProcessing)
	c.job.SubmittedAt = c.clock.Now()
	c.persistLocked()
	c.mu.Unlock()

	c.logger.Info("task accepted", "task", submit.TaskID, "position", submit.Position)
	go c.pollLoop(jobCtx, token)
	return nil
}

// Resume restores the persisted session for this kind, if present and not
// older than its maximum age, without re-submitting. A restored processing
// job re-enters the poll loop; the first poll is never skipped because the
// snapshot may be stale relative to the backend. Returns true when a
// session was restored.
func (c *Controller) Resume(ctx context.Context) (bool, error) {
	session, err := c.sessions.Get(c.kind)
	if err != nil {
		return false, err
	}
	if session == nil {
		return false, nil
	}

	jobCtx, cancel := context.WithCancel(ctx)
	token := shared.GenerateID()

	c.mu.Lock()
	c.cancel = cancel
	c.misses = 0
	c.lastSeq = 0
	c.job = models.Job{
		TaskID:      session.TaskID,
		Token:       token,
		Kind:        c.kind,
		Phase:       session.Phase,
		SubmittedAt: session.StartedAt,
		Position:    session.Position,
		ETASeconds:  session.ETASeconds,
		ResultRefs:  session.ResultRefs,
		Segments:    session.Segments,
	}
	phase := c.job.Phase
	c.mu.Unlock()

	c.logger.Info("session restored", "task", session.TaskID, "phase", phase.String())

	if phase == models.PhaseProcessing {
		go c.pollLoop(jobCtx, token)
	} else {
		cancel()
	}
	return true, nil
}

// Reset clears the job and derived state, cancels in-flight requests,
// stops the poll loop, and removes the persisted snapshot.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.job = models.Job{Kind: c.kind, Phase: models.PhaseIdle}
	c.misses = 0
	c.lastSeq = 0
	c.mu.Unlock()

	if err := c.sessions.Clear(c.kind); err != nil {
		return err
	}
	if c.onReset != nil {
		c.onReset()
	}
	c.logger.Info("job reset")
	return nil
}

// releaseClaim returns a claimed submit slot to idle when the submission
// was refused before any bytes reached the backend.
func (c *Controller) releaseClaim(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job.Token != token {
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.job = models.Job{Kind: c.kind, Phase: models.PhaseIdle}
}

// setPhaseLocked advances the job phase after consulting the transition
// table. A refused transition is a logic error upstream; the phase is left
// untouched. Callers hold c.mu.
func (c *Controller) setPhaseLocked(to models.Phase) bool {
	if !models.ValidTransition(c.job.Phase, to) {
		c.logger.Error("refusing phase transition", "from", c.job.Phase.String(), "to", to.String())
		return false
	}
	c.job.Phase = to
	return true
}

// fail moves the job to the error phase with the given message, provided
// the token still identifies the active job. The snapshot is cleared:
// sessions persist only while processing or done.
func (c *Controller) fail(token, message string) {
	c.mu.Lock()
	if c.job.Token != token || c.job.Phase.Terminal() {
		c.mu.Unlock()
		return
	}
	c.setPhaseLocked(models.PhaseError)
	c.job.ErrorMessage = message
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	if err := c.sessions.Clear(c.kind); err != nil {
		c.logger.Error("failed to clear session", "err", err)
	}
	c.sendProgress(failedUpdate(message))
	c.logger.Error("job failed", "message", message)
}

// persistLocked writes the session snapshot. Callers hold c.mu and have
// already set a phase in {processing, done}.
func (c *Controller) persistLocked() {
	session := &models.PersistedSession{
		TaskID:     c.job.TaskID,
		Kind:       c.kind,
		Phase:      c.job.Phase,
		ResultRefs: c.job.ResultRefs,
		Segments:   c.job.Segments,
		Position:   c.job.Position,
		ETASeconds: c.job.ETASeconds,
		StartedAt:  c.job.SubmittedAt,
	}
	if err := c.sessions.Set(c.kind, session); err != nil {
		c.logger.Error("failed to persist session", "err", err)
	}
}

// SweepExpired clears segment-kind sessions older than their maximum
// wall-clock age, independent of the poll loop. An active restored job
// whose session just expired is failed with a timeout message.
func (c *Controller) SweepExpired() {
	if !c.kind.Segmented() {
		return
	}

	c.mu.Lock()
	active := c.job.Phase == models.PhaseProcessing || c.job.Phase == models.PhaseDone
	age := c.clock.Now().Sub(c.job.SubmittedAt)
	token := c.job.Token
	c.mu.Unlock()

	if active && age > c.kind.MaxSessionAge() {
		c.fail(token, shared.ErrTimeout.Error())
	}
}

// StartSweep runs SweepExpired on a slow interval until ctx is done.
func (c *Controller) StartSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.SweepExpired()
			}
		}
	}()
}

// Tracks builds the ordered playable track list for a completed job.
// Tracks exist only while the job is done.
func (c *Controller) Tracks() ([]models.Track, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job.Phase != models.PhaseDone {
		return nil, fmt.Errorf("%w: job is %s", shared.ErrNoActiveJob, c.job.Phase)
	}
	return models.TracksFromRefs(c.kind, c.job.ResultRefs), nil
}

// Segments returns the segment list for a completed segment job.
func (c *Controller) Segments() ([]models.Segment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job.Phase != models.PhaseDone {
		return nil, fmt.Errorf("%w: job is %s", shared.ErrNoActiveJob, c.job.Phase)
	}
	return append([]models.Segment(nil), c.job.Segments...), nil
}

// ReplaceSegments overwrites the completed job's segment list (after a
// timeline edit or delete) and re-persists the snapshot.
func (c *Controller) ReplaceSegments(segments []models.Segment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job.Phase != models.PhaseDone {
		return fmt.Errorf("%w: job is %s", shared.ErrNoActiveJob, c.job.Phase)
	}
	c.job.Segments = append([]models.Segment(nil), segments...)
	c.persistLocked()
	return nil
}
