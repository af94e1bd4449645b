// Package jobs drives asynchronous chat jobs to completion by polling
// the backend at a fixed interval.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentdeck/agentdeck/internal/backend"
)

// Defaults: 120 attempts at 1 second is a two minute wall-clock budget.
const (
	DefaultInterval    = 1 * time.Second
	DefaultMaxAttempts = 120
)

// ErrJobTimeout reports that the attempt budget was exhausted before
// the job reached a terminal status.
var ErrJobTimeout = errors.New("job polling timed out")

// StatusFetcher fetches the current state of a job.
type StatusFetcher interface {
	JobStatus(ctx context.Context, jobID string) (*backend.Job, error)
}

// ProgressFunc receives the progress percentage and message observed on
// each successful poll, terminal or not.
type ProgressFunc func(progress int, message string)

// Poller polls one job resource until it completes, fails, or the
// attempt budget runs out.
type Poller struct {
	fetcher     StatusFetcher
	Interval    time.Duration
	MaxAttempts int
}

// NewPoller creates a poller with default interval and budget.
func NewPoller(fetcher StatusFetcher) *Poller {
	return &Poller{
		fetcher:     fetcher,
		Interval:    DefaultInterval,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Poll loops until the job reaches a terminal status or the budget is
// exhausted. Transient fetch failures count against the budget but are
// otherwise swallowed: only a failed status, a cancelled context, or
// budget exhaustion ends the loop unsuccessfully. onProgress may be nil.
func (p *Poller) Poll(ctx context.Context, jobID string, onProgress ProgressFunc) (*backend.ChatResponse, error) {
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.Interval):
			}
		}

		job, err := p.fetcher.JobStatus(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Debug("job poll failed, retrying", "job_id", jobID, "attempt", attempt, "error", err)
			continue
		}

		if onProgress != nil {
			onProgress(job.Progress, job.ProgressMessage)
		}

		if !job.Terminal() {
			continue
		}
		switch job.Status {
		case backend.JobCompleted:
			if job.Result == nil {
				return nil, fmt.Errorf("job %s completed without a result", jobID)
			}
			return job.Result, nil
		case backend.JobFailed:
			if job.Error != "" {
				return nil, fmt.Errorf("job failed: %s", job.Error)
			}
			return nil, fmt.Errorf("job %s failed", jobID)
		default:
			return nil, fmt.Errorf("job %s was cancelled", jobID)
		}
	}

	return nil, fmt.Errorf("%w after %d attempts", ErrJobTimeout, p.MaxAttempts)
}
