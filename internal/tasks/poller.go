package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/desertthunder/stemx/internal/models"
	"github.com/desertthunder/stemx/internal/services"
	"github.com/desertthunder/stemx/internal/shared"
)

// pollLoop queries task status on a fixed interval while the job identified
// by token is processing. The loop exits when the job reaches a terminal
// phase, the token is superseded by a reset or new submit, or ctx is done.
func (c *Controller) pollLoop(ctx context.Context, token string) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.pollOnce(ctx, token) {
				return
			}
		}
	}
}

// pollOnce runs one poll tick and reports whether polling should continue.
//
// Order matters: the timeout is measured from submission and is checked
// before the status request, so an expired job fails regardless of what the
// response to come would have said.
func (c *Controller) pollOnce(ctx context.Context, token string) bool {
	c.mu.Lock()
	if c.job.Token != token || c.job.Phase != models.PhaseProcessing {
		c.mu.Unlock()
		return false
	}
	submittedAt := c.job.SubmittedAt
	taskID := c.job.TaskID
	c.lastSeq++
	seq := c.lastSeq
	c.mu.Unlock()

	if c.clock.Now().Sub(submittedAt) > c.timeout {
		c.fail(token, shared.ErrTimeout.Error())
		return false
	}

	status, err := c.client.Status(ctx, taskID)
	return c.applyStatus(token, seq, status, err)
}

// applyStatus folds one poll outcome into the job. Responses whose sequence
// is not the latest issued are dropped: a late, superseded response must
// not regress position or eta.
func (c *Controller) applyStatus(token string, seq uint64, status *services.StatusResponse, err error) bool {
	c.mu.Lock()
	if c.job.Token != token || c.job.Phase != models.PhaseProcessing || seq != c.lastSeq {
		c.mu.Unlock()
		return false
	}

	if err != nil {
		if errors.Is(err, shared.ErrTaskNotFound) {
			// Tolerate transient backend propagation delay: only a run of
			// consecutive misses is treated as expiry.
			c.misses++
			misses := c.misses
			c.mu.Unlock()
			if misses >= c.missTolerance {
				c.fail(token, shared.ErrTaskExpired.Error())
				return false
			}
			c.logger.Warn("task not found", "misses", misses)
			return true
		}
		if errors.Is(err, context.Canceled) {
			c.mu.Unlock()
			return false
		}
		c.mu.Unlock()
		c.fail(token, err.Error())
		return false
	}

	c.misses = 0

	switch {
	case status.Completed():
		if c.kind.Segmented() {
			c.job.Segments = append([]models.Segment(nil), status.Segments...)
		} else {
			c.job.ResultRefs = status.Tracks
		}
		c.setPhaseLocked(models.PhaseDone)
		c.job.Position = 0
		c.job.ETASeconds = 0
		c.persistLocked()
		trackCount := len(c.job.ResultRefs)
		segmentCount := len(c.job.Segments)
		taskID := c.job.TaskID
		c.mu.Unlock()
		c.sendProgress(doneUpdate(taskID, trackCount, segmentCount))
		c.logger.Info("task completed", "task", taskID, "tracks", trackCount, "segments", segmentCount)
		return false

	case status.Failed():
		c.mu.Unlock()
		// Surface the backend's message verbatim.
		message := status.Error
		if message == "" {
			message = shared.ErrTaskFailed.Error()
		}
		c.fail(token, message)
		return false

	default:
		c.job.Position = status.Position
		c.job.ETASeconds = status.ETASeconds
		c.persistLocked()
		position := c.job.Position
		eta := c.job.ETASeconds
		c.mu.Unlock()
		c.sendProgress(pollUpdate(position, eta))
		return true
	}
}
