package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/docbrief/internal/speech"
	"github.com/MimeLyc/docbrief/pkg/log"
)

// Collaborator contracts. The runner depends on behavior, not on the
// concrete clients, so tests can substitute each stage independently.
type (
	// Extractor converts one stored document file into plain text.
	Extractor interface {
		Extract(ctx context.Context, path string) (string, error)
	}

	// Summarizer turns the concatenated document text into the narrative.
	Summarizer interface {
		Summarize(ctx context.Context, text string, listener Context) (string, error)
	}

	// Synthesizer renders the narrative as MP3 bytes.
	Synthesizer interface {
		Synthesize(ctx context.Context, text string) ([]byte, error)
	}

	// AudioStore persists rendered audio and locates transcript targets.
	AudioStore interface {
		SaveAudio(summaryID string, audio []byte) (string, error)
		TranscriptPath(summaryID string) string
	}

	// TranscriptWriter exports the narrative as a styled document.
	// Export failures never fail the job.
	TranscriptWriter func(title, narrative, outputPath string) error
)

var (
	// ErrNoDocuments is returned by CreateJob when no submitted document
	// ID resolves to a stored record.
	ErrNoDocuments = errors.New("no resolvable documents")

	// ErrSummarizerUnavailable is returned by CreateJob when no summarizer
	// credential is configured. Jobs are rejected up front rather than
	// started on a backend that cannot work.
	ErrSummarizerUnavailable = errors.New("summarizer is not configured")

	// ErrInvalidContext is returned by CreateJob when a listener context
	// field exceeds its length cap.
	ErrInvalidContext = errors.New("invalid listener context")
)

// maxContextFieldLen caps each free-text listener context field.
const maxContextFieldLen = 2000

const (
	defaultExtractTimeout    = 2 * time.Minute
	defaultSummarizeTimeout  = 5 * time.Minute
	defaultSynthesizeTimeout = 5 * time.Minute
)

// RunnerConfig wires the runner's collaborators and stage budgets.
type RunnerConfig struct {
	Store       Store
	Extractor   Extractor
	Summarizer  Summarizer
	Synthesizer Synthesizer // nil means synthesis is unavailable
	Audio       AudioStore
	Transcript  TranscriptWriter // optional

	ExtractTimeout    time.Duration
	SummarizeTimeout  time.Duration
	SynthesizeTimeout time.Duration
}

// Runner owns the job lifecycle: it creates jobs, advances them through
// the processing stages in a background goroutine, and persists every
// status transition so pollers observe progress.
type Runner struct {
	cfg RunnerConfig
	wg  sync.WaitGroup

	// The summarizer and synthesizer can be swapped at runtime when the
	// operator updates credentials through settings.
	mu          sync.RWMutex
	summarizer  Summarizer
	synthesizer Synthesizer
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if cfg.Audio == nil {
		return nil, fmt.Errorf("audio store is required")
	}
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = defaultExtractTimeout
	}
	if cfg.SummarizeTimeout <= 0 {
		cfg.SummarizeTimeout = defaultSummarizeTimeout
	}
	if cfg.SynthesizeTimeout <= 0 {
		cfg.SynthesizeTimeout = defaultSynthesizeTimeout
	}
	return &Runner{
		cfg:         cfg,
		summarizer:  cfg.Summarizer,
		synthesizer: cfg.Synthesizer,
	}, nil
}

// SetSummarizer swaps the summarizer backend. A nil summarizer makes new
// brief creation fail until a credential arrives.
func (r *Runner) SetSummarizer(s Summarizer) {
	r.mu.Lock()
	r.summarizer = s
	r.mu.Unlock()
}

// SetSynthesizer swaps the speech backend. Nil falls back to placeholder
// audio for subsequent jobs.
func (r *Runner) SetSynthesizer(s Synthesizer) {
	r.mu.Lock()
	r.synthesizer = s
	r.mu.Unlock()
}

func (r *Runner) currentSummarizer() Summarizer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.summarizer
}

func (r *Runner) currentSynthesizer() Synthesizer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.synthesizer
}

// CreateJob validates the request, persists the pending job, and starts
// processing in the background. It returns as soon as the job is durable;
// callers observe the outcome by polling.
func (r *Runner) CreateJob(ctx context.Context, documentIDs []string, listener Context) (*Job, error) {
	if r.currentSummarizer() == nil {
		return nil, ErrSummarizerUnavailable
	}
	if len(documentIDs) == 0 {
		return nil, ErrNoDocuments
	}
	if err := validateContext(listener); err != nil {
		return nil, err
	}

	documents, err := r.cfg.Store.GetDocuments(ctx, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve documents: %w", err)
	}
	if len(documents) == 0 {
		return nil, ErrNoDocuments
	}

	now := time.Now().UTC()
	job := &Job{
		ID:          uuid.NewString(),
		Status:      StatusPending,
		Progress:    ProgressPending,
		DocumentIDs: documentIDs,
		Context:     listener,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.cfg.Store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("job %s: runtime error: %v", job.ID, rec)
				r.fail(job, fmt.Sprintf("internal error: %v", rec))
			}
		}()
		r.process(job, documents)
	}()

	// The run keeps mutating job as it transitions; the caller gets a
	// snapshot so encoding the response never races the background run.
	return job.Clone(), nil
}

// Wait blocks until all in-flight jobs have reached a terminal state.
// Used on shutdown so background runs are not cut mid-transition.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func validateContext(listener Context) error {
	for name, value := range map[string]string{
		"guiding_question":      listener.GuidingQuestion,
		"want_others_to_know":   listener.WantOthersToKnow,
		"what_interested_me":    listener.WhatInterestedMe,
		"conversation_to_start": listener.ConversationToStart,
	} {
		if len(value) > maxContextFieldLen {
			return fmt.Errorf("%w: field %s exceeds %d characters", ErrInvalidContext, name, maxContextFieldLen)
		}
	}
	return nil
}

// process drives one job through extraction, summarization, and synthesis.
// It runs detached from the request context: once created, a job runs to a
// terminal state.
func (r *Runner) process(job *Job, documents []*Document) {
	ctx := context.Background()

	if !r.transition(job, StatusProcessing, ProgressProcessing) {
		return
	}

	text, readable := r.extractAll(ctx, job, documents)
	if readable == 0 {
		log.Warn("job %s: no documents could be read", job.ID)
		r.fail(job, "none of the submitted documents could be read")
		return
	}

	if !r.transition(job, StatusSummarizing, ProgressSummarizing) {
		return
	}

	summarizer := r.currentSummarizer()
	if summarizer == nil {
		r.fail(job, "summarizer is not configured")
		return
	}

	sumCtx, cancel := context.WithTimeout(ctx, r.cfg.SummarizeTimeout)
	narrative, err := summarizer.Summarize(sumCtx, text, job.Context)
	cancel()
	if err != nil {
		log.Error("job %s: summarization failed: %v", job.ID, err)
		r.fail(job, fmt.Sprintf("summarization failed: %v", err))
		return
	}
	if strings.TrimSpace(narrative) == "" {
		r.fail(job, "summarization returned an empty narrative")
		return
	}

	if !r.transition(job, StatusConverting, ProgressConverting) {
		return
	}

	audio := r.synthesize(ctx, job, narrative)

	summary := &Summary{
		ID:          uuid.NewString(),
		JobID:       job.ID,
		Title:       DeriveTitle(narrative),
		Description: DeriveDescription(narrative),
		Text:        narrative,
		CreatedAt:   time.Now().UTC(),
	}

	audioURL, err := r.cfg.Audio.SaveAudio(summary.ID, audio)
	if err != nil {
		log.Error("job %s: failed to store audio: %v", job.ID, err)
		r.fail(job, fmt.Sprintf("failed to store audio: %v", err))
		return
	}
	summary.AudioURL = audioURL

	if r.cfg.Transcript != nil {
		path := r.cfg.Audio.TranscriptPath(summary.ID)
		if err := r.cfg.Transcript(summary.Title, narrative, path); err != nil {
			log.Warn("job %s: transcript export failed: %v", job.ID, err)
		} else {
			summary.TranscriptPath = path
		}
	}

	// The summary row lands before the job turns completed, so a completed
	// job always has its summary. Between the two writes the store briefly
	// holds a summary for a job still marked converting; readers that gate
	// on the completed status never see it.
	if err := r.cfg.Store.CreateSummary(ctx, summary); err != nil {
		log.Error("job %s: failed to persist summary: %v", job.ID, err)
		r.fail(job, fmt.Sprintf("failed to persist summary: %v", err))
		return
	}

	completedAt := time.Now().UTC()
	status := StatusCompleted
	progress := ProgressCompleted
	if _, err := r.cfg.Store.UpdateJob(ctx, job.ID, JobUpdate{
		Status:      &status,
		Progress:    &progress,
		CompletedAt: &completedAt,
	}); err != nil {
		// The summary is durable but the job row is stuck in converting.
		// Nothing sensible can be retried here without a second writer.
		log.Error("job %s: failed to persist completion: %v", job.ID, err)
		return
	}
	job.Status = StatusCompleted
	log.Info("job %s: completed", job.ID)
}

// extractAll runs every document's extraction concurrently and reassembles
// the results in submission order. Failed documents contribute a placeholder
// marker so the narrative can acknowledge the gap.
func (r *Runner) extractAll(ctx context.Context, job *Job, documents []*Document) (string, int) {
	segments := make([]string, len(documents))
	readable := make([]bool, len(documents))

	g, gctx := errgroup.WithContext(ctx)
	for i, doc := range documents {
		g.Go(func() error {
			extCtx, cancel := context.WithTimeout(gctx, r.cfg.ExtractTimeout)
			defer cancel()

			text, err := r.cfg.Extractor.Extract(extCtx, doc.Path)
			if err != nil {
				log.Warn("job %s: extraction failed for %q: %v", job.ID, doc.Name, err)
				segments[i] = fmt.Sprintf("[document %q could not be read]", doc.Name)
				return nil
			}
			segments[i] = fmt.Sprintf("## %s\n\n%s", doc.Name, strings.TrimSpace(text))
			readable[i] = true
			return nil
		})
	}
	// Workers only report nil; failures are folded into placeholders.
	_ = g.Wait()

	count := 0
	for _, ok := range readable {
		if ok {
			count++
		}
	}
	return strings.Join(segments, "\n\n"), count
}

// synthesize renders the narrative to audio, falling back to a silent
// placeholder when synthesis is unavailable or fails. Synthesis problems
// never fail the job.
func (r *Runner) synthesize(ctx context.Context, job *Job, narrative string) []byte {
	synthesizer := r.currentSynthesizer()
	if synthesizer == nil {
		log.Info("job %s: synthesis unavailable, storing placeholder audio", job.ID)
		return speech.PlaceholderAudio()
	}

	synCtx, cancel := context.WithTimeout(ctx, r.cfg.SynthesizeTimeout)
	defer cancel()

	audio, err := synthesizer.Synthesize(synCtx, narrative)
	if err != nil {
		if errors.Is(err, speech.ErrUnavailable) {
			log.Info("job %s: synthesis unavailable, storing placeholder audio", job.ID)
		} else {
			log.Warn("job %s: synthesis failed, storing placeholder audio: %v", job.ID, err)
		}
		return speech.PlaceholderAudio()
	}
	return audio
}

// transition persists the next stage. The runner is the only writer of a
// running job, so a rejected edge means a programming error, not a race.
func (r *Runner) transition(job *Job, to Status, progress int) bool {
	if !ValidTransition(job.Status, to) {
		log.Error("job %s: invalid transition %s -> %s", job.ID, job.Status, to)
		return false
	}
	updated, err := r.cfg.Store.UpdateJob(context.Background(), job.ID, JobUpdate{
		Status:   &to,
		Progress: &progress,
	})
	if err != nil {
		log.Error("job %s: failed to persist transition to %s: %v", job.ID, to, err)
		r.fail(job, fmt.Sprintf("failed to persist job state: %v", err))
		return false
	}
	*job = *updated
	return true
}

// fail moves the job to the error state with a human-readable message.
// Best effort: if even this write fails, the error is logged and the job
// row stays on its last persisted stage.
func (r *Runner) fail(job *Job, message string) {
	if job.Status.IsTerminal() {
		return
	}
	status := StatusError
	progress := job.Progress
	if _, err := r.cfg.Store.UpdateJob(context.Background(), job.ID, JobUpdate{
		Status:   &status,
		Progress: &progress,
		Error:    &message,
	}); err != nil {
		log.Error("job %s: failed to persist error state: %v", job.ID, err)
		return
	}
	job.Status = StatusError
	job.Error = message
}
