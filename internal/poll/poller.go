package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/MimeLyc/docbrief/internal/pipeline"
)

// DefaultInterval is the cadence clients observe job progress at.
const DefaultInterval = 2 * time.Second

// StatusReader is the read-side slice of the job store the poller needs.
type StatusReader interface {
	GetJob(ctx context.Context, id string) (*pipeline.Job, error)
	GetSummaryByJobID(ctx context.Context, jobID string) (*pipeline.Summary, error)
}

// Result is the terminal observation of one job. Summary is set only when
// the job completed.
type Result struct {
	Job     *pipeline.Job
	Summary *pipeline.Summary
}

// Poller repeatedly reads a job's persisted state until it turns terminal.
type Poller struct {
	Reader   StatusReader
	Interval time.Duration
}

func New(reader StatusReader) *Poller {
	return &Poller{Reader: reader, Interval: DefaultInterval}
}

// Wait blocks until the job reaches a terminal state or ctx is cancelled.
// The first read happens immediately; afterwards one read per interval.
func (p *Poller) Wait(ctx context.Context, jobID string) (*Result, error) {
	return p.Watch(ctx, jobID, nil)
}

// Watch is Wait with a progress callback invoked after every observation,
// including the terminal one. onPoll may be nil.
func (p *Poller) Watch(ctx context.Context, jobID string, onPoll func(*pipeline.Job)) (*Result, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := p.Reader.GetJob(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("poll job %s: %w", jobID, err)
		}
		if onPoll != nil {
			onPoll(job)
		}

		if job.Status.IsTerminal() {
			result := &Result{Job: job}
			if job.Status == pipeline.StatusCompleted {
				summary, err := p.Reader.GetSummaryByJobID(ctx, jobID)
				if err != nil {
					return nil, fmt.Errorf("load summary for job %s: %w", jobID, err)
				}
				result.Summary = summary
			}
			return result, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
