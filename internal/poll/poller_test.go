package poll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/docbrief/internal/pipeline"
)

// scriptedReader serves a fixed sequence of job snapshots, sticking on the
// last one once exhausted.
type scriptedReader struct {
	mu       sync.Mutex
	snaps    []*pipeline.Job
	summary  *pipeline.Summary
	position int
}

func (r *scriptedReader) GetJob(_ context.Context, _ string) (*pipeline.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return nil, errors.New("record not found")
	}
	job := r.snaps[r.position]
	if r.position < len(r.snaps)-1 {
		r.position++
	}
	return job, nil
}

func (r *scriptedReader) GetSummaryByJobID(_ context.Context, _ string) (*pipeline.Summary, error) {
	if r.summary == nil {
		return nil, errors.New("record not found")
	}
	return r.summary, nil
}

func snap(status pipeline.Status, progress int) *pipeline.Job {
	return &pipeline.Job{ID: "job-1", Status: status, Progress: progress}
}

func TestPoller_WaitUntilCompleted(t *testing.T) {
	t.Parallel()

	reader := &scriptedReader{
		snaps: []*pipeline.Job{
			snap(pipeline.StatusPending, 0),
			snap(pipeline.StatusProcessing, 20),
			snap(pipeline.StatusSummarizing, 40),
			snap(pipeline.StatusConverting, 70),
			snap(pipeline.StatusCompleted, 100),
		},
		summary: &pipeline.Summary{ID: "sum-1", JobID: "job-1", Title: "Brief"},
	}

	poller := &Poller{Reader: reader, Interval: 5 * time.Millisecond}

	var observed []pipeline.Status
	result, err := poller.Watch(context.Background(), "job-1", func(job *pipeline.Job) {
		observed = append(observed, job.Status)
	})
	require.NoError(t, err)

	assert.Equal(t, pipeline.StatusCompleted, result.Job.Status)
	require.NotNil(t, result.Summary)
	assert.Equal(t, "Brief", result.Summary.Title)

	// Every snapshot was surfaced, terminal included, and polling stopped there.
	assert.Equal(t, []pipeline.Status{
		pipeline.StatusPending,
		pipeline.StatusProcessing,
		pipeline.StatusSummarizing,
		pipeline.StatusConverting,
		pipeline.StatusCompleted,
	}, observed)
}

func TestPoller_WaitOnErrorState(t *testing.T) {
	t.Parallel()

	reader := &scriptedReader{
		snaps: []*pipeline.Job{
			snap(pipeline.StatusProcessing, 20),
			{ID: "job-1", Status: pipeline.StatusError, Progress: 20, Error: "boom"},
		},
	}
	poller := &Poller{Reader: reader, Interval: 5 * time.Millisecond}

	result, err := poller.Wait(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusError, result.Job.Status)
	assert.Equal(t, "boom", result.Job.Error)
	assert.Nil(t, result.Summary)
}

func TestPoller_ContextCancellation(t *testing.T) {
	t.Parallel()

	reader := &scriptedReader{snaps: []*pipeline.Job{snap(pipeline.StatusProcessing, 20)}}
	poller := &Poller{Reader: reader, Interval: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := poller.Wait(ctx, "job-1")
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPoller_ReadError(t *testing.T) {
	t.Parallel()

	poller := &Poller{Reader: &scriptedReader{}, Interval: 5 * time.Millisecond}
	_, err := poller.Wait(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll job")
}
