package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/docbrief/internal/speech"
)

// memStore is an in-memory Store for runner tests. It records every status
// written so tests can assert on the transition sequence.
type memStore struct {
	mu          sync.Mutex
	jobs        map[string]*Job
	summaries   map[string]*Summary
	documents   map[string]*Document
	transitions []Status
}

func newMemStore() *memStore {
	return &memStore{
		jobs:      make(map[string]*Job),
		summaries: make(map[string]*Summary),
		documents: make(map[string]*Document),
	}
}

func (m *memStore) addDocument(doc *Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[doc.ID] = doc
}

func (m *memStore) CreateJob(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *memStore) GetJob(_ context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	copied := *job
	return &copied, nil
}

func (m *memStore) UpdateJob(_ context.Context, id string, update JobUpdate) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	if update.Status != nil {
		job.Status = *update.Status
		m.transitions = append(m.transitions, *update.Status)
	}
	if update.Progress != nil {
		job.Progress = *update.Progress
	}
	if update.Error != nil {
		job.Error = *update.Error
	}
	if update.CompletedAt != nil {
		job.CompletedAt = update.CompletedAt
	}
	job.UpdatedAt = time.Now().UTC()
	copied := *job
	return &copied, nil
}

func (m *memStore) ListJobs(_ context.Context) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		copied := *job
		jobs = append(jobs, &copied)
	}
	return jobs, nil
}

func (m *memStore) CreateSummary(_ context.Context, summary *Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *summary
	m.summaries[summary.JobID] = &copied
	return nil
}

func (m *memStore) GetSummaryByJobID(_ context.Context, jobID string) (*Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	summary, ok := m.summaries[jobID]
	if !ok {
		return nil, errors.New("record not found")
	}
	copied := *summary
	return &copied, nil
}

func (m *memStore) ListSummaries(_ context.Context) ([]*Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	summaries := make([]*Summary, 0, len(m.summaries))
	for _, summary := range m.summaries {
		copied := *summary
		summaries = append(summaries, &copied)
	}
	return summaries, nil
}

func (m *memStore) GetDocuments(_ context.Context, ids []string) ([]*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var documents []*Document
	for _, id := range ids {
		if doc, ok := m.documents[id]; ok {
			copied := *doc
			documents = append(documents, &copied)
		}
	}
	return documents, nil
}

func (m *memStore) recordedTransitions() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Status(nil), m.transitions...)
}

// mapExtractor returns canned text per path.
type mapExtractor struct {
	texts map[string]string
}

func (e *mapExtractor) Extract(_ context.Context, path string) (string, error) {
	text, ok := e.texts[path]
	if !ok {
		return "", fmt.Errorf("cannot read %s", path)
	}
	return text, nil
}

type stubSummarizer struct {
	mu        sync.Mutex
	narrative string
	err       error
	gotText   string
	gotCtx    Context
}

func (s *stubSummarizer) Summarize(_ context.Context, text string, listener Context) (string, error) {
	s.mu.Lock()
	s.gotText = text
	s.gotCtx = listener
	s.mu.Unlock()
	return s.narrative, s.err
}

type stubSynthesizer struct {
	audio []byte
	err   error
}

func (s *stubSynthesizer) Synthesize(_ context.Context, _ string) ([]byte, error) {
	return s.audio, s.err
}

// memAudio captures stored audio in memory.
type memAudio struct {
	mu    sync.Mutex
	saved map[string][]byte
	dir   string
}

func (a *memAudio) SaveAudio(summaryID string, audio []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.saved == nil {
		a.saved = make(map[string][]byte)
	}
	a.saved[summaryID] = audio
	return "/api/audio/" + summaryID + ".mp3", nil
}

func (a *memAudio) TranscriptPath(summaryID string) string {
	return filepath.Join(a.dir, summaryID+".docx")
}

func (a *memAudio) lastSaved() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, audio := range a.saved {
		return audio
	}
	return nil
}

func seedDocuments(store *memStore, names ...string) []string {
	ids := make([]string, 0, len(names))
	for i, name := range names {
		id := fmt.Sprintf("doc-%d", i+1)
		store.addDocument(&Document{ID: id, Name: name, Path: "/docs/" + name})
		ids = append(ids, id)
	}
	return ids
}

func TestRunner_HappyPath(t *testing.T) {
	store := newMemStore()
	ids := seedDocuments(store, "report.pdf", "notes.txt")

	summarizer := &stubSummarizer{
		narrative: "Quarterly Outlook\n\nA calm look at the numbers.\n\nThe long body follows here.",
	}
	audio := &memAudio{dir: t.TempDir()}
	runner, err := NewRunner(RunnerConfig{
		Store: store,
		Extractor: &mapExtractor{texts: map[string]string{
			"/docs/report.pdf": "Revenue was flat.",
			"/docs/notes.txt":  "Margins improved.",
		}},
		Summarizer:  summarizer,
		Synthesizer: &stubSynthesizer{audio: []byte{0xFF, 0xFB, 0x01}},
		Audio:       audio,
	})
	require.NoError(t, err)

	job, err := runner.CreateJob(context.Background(), ids, Context{GuidingQuestion: "what changed?"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, job.Status)

	runner.Wait()

	final, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, ProgressCompleted, final.Progress)
	assert.Empty(t, final.Error)
	require.NotNil(t, final.CompletedAt)

	assert.Equal(t, []Status{
		StatusProcessing, StatusSummarizing, StatusConverting, StatusCompleted,
	}, store.recordedTransitions())

	// The summarizer sees labeled segments in submission order.
	assert.Contains(t, summarizer.gotText, "## report.pdf")
	assert.Contains(t, summarizer.gotText, "Revenue was flat.")
	assert.Less(t,
		strings.Index(summarizer.gotText, "## report.pdf"),
		strings.Index(summarizer.gotText, "## notes.txt"))
	assert.Equal(t, "what changed?", summarizer.gotCtx.GuidingQuestion)

	summary, err := store.GetSummaryByJobID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "Quarterly Outlook", summary.Title)
	assert.Equal(t, "A calm look at the numbers.", summary.Description)
	assert.Equal(t, "/api/audio/"+summary.ID+".mp3", summary.AudioURL)
	assert.Equal(t, []byte{0xFF, 0xFB, 0x01}, audio.lastSaved())
}

func TestRunner_CreateJobReturnsSnapshot(t *testing.T) {
	store := newMemStore()
	ids := seedDocuments(store, "doc.txt")

	runner, err := NewRunner(RunnerConfig{
		Store:      store,
		Extractor:  &mapExtractor{texts: map[string]string{"/docs/doc.txt": "content"}},
		Summarizer: &stubSummarizer{narrative: "Title\n\nBody."},
		Audio:      &memAudio{dir: t.TempDir()},
	})
	require.NoError(t, err)

	job, err := runner.CreateJob(context.Background(), ids, Context{})
	require.NoError(t, err)

	// Encoding the returned job must stay safe while the background run
	// keeps transitioning its own copy.
	encoded := make(chan struct{})
	go func() {
		defer close(encoded)
		for i := 0; i < 200; i++ {
			_, err := json.Marshal(job)
			assert.NoError(t, err)
		}
	}()
	runner.Wait()
	<-encoded

	// The caller holds a snapshot of the pending job; transitions are
	// observable only through the store.
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, ids, job.DocumentIDs)

	final, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
}

func TestRunner_PartialExtractionFailure(t *testing.T) {
	store := newMemStore()
	ids := seedDocuments(store, "good.txt", "broken.pdf")

	summarizer := &stubSummarizer{narrative: "Title\n\nDescription here."}
	runner, err := NewRunner(RunnerConfig{
		Store: store,
		Extractor: &mapExtractor{texts: map[string]string{
			"/docs/good.txt": "Readable content.",
		}},
		Summarizer: summarizer,
		Audio:      &memAudio{dir: t.TempDir()},
	})
	require.NoError(t, err)

	job, err := runner.CreateJob(context.Background(), ids, Context{})
	require.NoError(t, err)
	runner.Wait()

	final, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)

	assert.Contains(t, summarizer.gotText, "Readable content.")
	assert.Contains(t, summarizer.gotText, `[document "broken.pdf" could not be read]`)
}

func TestRunner_AllExtractionsFail(t *testing.T) {
	store := newMemStore()
	ids := seedDocuments(store, "a.pdf", "b.pdf")

	runner, err := NewRunner(RunnerConfig{
		Store:      store,
		Extractor:  &mapExtractor{},
		Summarizer: &stubSummarizer{narrative: "unused"},
		Audio:      &memAudio{dir: t.TempDir()},
	})
	require.NoError(t, err)

	job, err := runner.CreateJob(context.Background(), ids, Context{})
	require.NoError(t, err)
	runner.Wait()

	final, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, final.Status)
	assert.Equal(t, ProgressProcessing, final.Progress)
	assert.Contains(t, final.Error, "could be read")

	_, err = store.GetSummaryByJobID(context.Background(), job.ID)
	assert.Error(t, err)
}

func TestRunner_SummarizationFailure(t *testing.T) {
	store := newMemStore()
	ids := seedDocuments(store, "doc.txt")

	runner, err := NewRunner(RunnerConfig{
		Store:      store,
		Extractor:  &mapExtractor{texts: map[string]string{"/docs/doc.txt": "content"}},
		Summarizer: &stubSummarizer{err: errors.New("model overloaded")},
		Audio:      &memAudio{dir: t.TempDir()},
	})
	require.NoError(t, err)

	job, err := runner.CreateJob(context.Background(), ids, Context{})
	require.NoError(t, err)
	runner.Wait()

	final, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, final.Status)
	assert.Contains(t, final.Error, "summarization failed")

	_, err = store.GetSummaryByJobID(context.Background(), job.ID)
	assert.Error(t, err)
}

func TestRunner_SynthesisFailureFallsBackToPlaceholder(t *testing.T) {
	store := newMemStore()
	ids := seedDocuments(store, "doc.txt")
	audio := &memAudio{dir: t.TempDir()}

	runner, err := NewRunner(RunnerConfig{
		Store:       store,
		Extractor:   &mapExtractor{texts: map[string]string{"/docs/doc.txt": "content"}},
		Summarizer:  &stubSummarizer{narrative: "Title\n\nBody."},
		Synthesizer: &stubSynthesizer{err: errors.New("voice service down")},
		Audio:       audio,
	})
	require.NoError(t, err)

	job, err := runner.CreateJob(context.Background(), ids, Context{})
	require.NoError(t, err)
	runner.Wait()

	final, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, speech.PlaceholderAudio(), audio.lastSaved())
}

func TestRunner_NoSynthesizerConfigured(t *testing.T) {
	store := newMemStore()
	ids := seedDocuments(store, "doc.txt")
	audio := &memAudio{dir: t.TempDir()}

	runner, err := NewRunner(RunnerConfig{
		Store:      store,
		Extractor:  &mapExtractor{texts: map[string]string{"/docs/doc.txt": "content"}},
		Summarizer: &stubSummarizer{narrative: "Title\n\nBody."},
		Audio:      audio,
	})
	require.NoError(t, err)

	job, err := runner.CreateJob(context.Background(), ids, Context{})
	require.NoError(t, err)
	runner.Wait()

	final, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, speech.PlaceholderAudio(), audio.lastSaved())
}

func TestRunner_CreateJobValidation(t *testing.T) {
	store := newMemStore()
	ids := seedDocuments(store, "doc.txt")

	base := RunnerConfig{
		Store:      store,
		Extractor:  &mapExtractor{},
		Summarizer: &stubSummarizer{},
		Audio:      &memAudio{},
	}

	t.Run("no summarizer", func(t *testing.T) {
		cfg := base
		cfg.Summarizer = nil
		runner, err := NewRunner(cfg)
		require.NoError(t, err)

		_, err = runner.CreateJob(context.Background(), ids, Context{})
		assert.ErrorIs(t, err, ErrSummarizerUnavailable)
	})

	t.Run("no document ids", func(t *testing.T) {
		runner, err := NewRunner(base)
		require.NoError(t, err)

		_, err = runner.CreateJob(context.Background(), nil, Context{})
		assert.ErrorIs(t, err, ErrNoDocuments)
	})

	t.Run("unresolvable document ids", func(t *testing.T) {
		runner, err := NewRunner(base)
		require.NoError(t, err)

		_, err = runner.CreateJob(context.Background(), []string{"missing"}, Context{})
		assert.ErrorIs(t, err, ErrNoDocuments)
	})

	t.Run("oversized context field", func(t *testing.T) {
		runner, err := NewRunner(base)
		require.NoError(t, err)

		_, err = runner.CreateJob(context.Background(), ids, Context{
			GuidingQuestion: strings.Repeat("x", maxContextFieldLen+1),
		})
		assert.ErrorIs(t, err, ErrInvalidContext)
		assert.Contains(t, err.Error(), "guiding_question")
	})
}
