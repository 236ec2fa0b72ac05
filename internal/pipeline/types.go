package pipeline

import (
	"context"
	"time"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusProcessing  Status = "processing"
	StatusSummarizing Status = "summarizing"
	StatusConverting  Status = "converting"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

// Progress checkpoints persisted together with each status transition.
const (
	ProgressPending     = 0
	ProgressProcessing  = 20
	ProgressSummarizing = 40
	ProgressConverting  = 70
	ProgressCompleted   = 100
)

// IsTerminal reports whether no further transitions can occur.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// ValidTransition enforces the allowed job state machine edges. Every edge
// is linear except the error state, which absorbs from any non-terminal.
func ValidTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusError {
		return true
	}
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusSummarizing
	case StatusSummarizing:
		return to == StatusConverting
	case StatusConverting:
		return to == StatusCompleted
	default:
		return false
	}
}

// Context carries the optional free-text listener input forwarded verbatim
// to the summarizer. All fields may be empty.
type Context struct {
	GuidingQuestion     string `json:"guiding_question,omitempty"`
	WantOthersToKnow    string `json:"want_others_to_know,omitempty"`
	WhatInterestedMe    string `json:"what_interested_me,omitempty"`
	ConversationToStart string `json:"conversation_to_start,omitempty"`
}

// IsZero reports whether no context field was provided.
func (c Context) IsZero() bool {
	return c.GuidingQuestion == "" && c.WantOthersToKnow == "" &&
		c.WhatInterestedMe == "" && c.ConversationToStart == ""
}

// Job is one end-to-end request to turn stored documents into an audio brief.
type Job struct {
	ID          string     `json:"id"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"`
	DocumentIDs []string   `json:"document_ids"`
	Context     Context    `json:"context"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy. Callers get clones so the run can keep
// mutating its own Job without racing readers.
func (j *Job) Clone() *Job {
	copied := *j
	copied.DocumentIDs = append([]string(nil), j.DocumentIDs...)
	if j.CompletedAt != nil {
		at := *j.CompletedAt
		copied.CompletedAt = &at
	}
	return &copied
}

// Summary is the durable artifact of a completed job. Created exactly once,
// never mutated afterward.
type Summary struct {
	ID             string    `json:"id"`
	JobID          string    `json:"job_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Text           string    `json:"text"`
	AudioURL       string    `json:"audio_url"`
	TranscriptPath string    `json:"transcript_path,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Document is a stored source document owned by the upload side. The
// pipeline reads these records and never mutates them.
type Document struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// JobUpdate is a partial job mutation. Nil fields are left untouched.
type JobUpdate struct {
	Status      *Status
	Progress    *int
	Error       *string
	CompletedAt *time.Time
}

// Store persists jobs, summaries, and document records. Implementations
// must keep per-record updates atomic; only the owning run writes a job.
type Store interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	UpdateJob(ctx context.Context, id string, update JobUpdate) (*Job, error)
	ListJobs(ctx context.Context) ([]*Job, error)

	CreateSummary(ctx context.Context, summary *Summary) error
	GetSummaryByJobID(ctx context.Context, jobID string) (*Summary, error)
	ListSummaries(ctx context.Context) ([]*Summary, error)

	// GetDocuments resolves IDs to stored documents, preserving input
	// order. Missing IDs are omitted, not errors.
	GetDocuments(ctx context.Context, ids []string) ([]*Document, error)
}
