package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/MimeLyc/docbrief/internal/config"
	"github.com/MimeLyc/docbrief/internal/pipeline"
	"github.com/MimeLyc/docbrief/internal/poll"
)

// briefCreator starts a new brief job for stored documents.
type briefCreator interface {
	CreateJob(ctx context.Context, documentIDs []string, listener pipeline.Context) (*pipeline.Job, error)
}

// jobStore is the read side of the job store the handlers need.
type jobStore interface {
	GetJob(ctx context.Context, id string) (*pipeline.Job, error)
	ListJobs(ctx context.Context) ([]*pipeline.Job, error)
	GetSummaryByJobID(ctx context.Context, jobID string) (*pipeline.Summary, error)
	ListSummaries(ctx context.Context) ([]*pipeline.Summary, error)
	SaveDocument(ctx context.Context, doc *pipeline.Document) error
	ListDocuments(ctx context.Context) ([]*pipeline.Document, error)
}

// blobStore owns uploaded document bytes and rendered audio files.
type blobStore interface {
	SaveDocument(id, name string, r io.Reader) (string, int64, error)
	AudioPath(name string) (string, error)
}

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type runtimeSettingsApplier func(next config.RuntimeSettings) error

type Server struct {
	creator  briefCreator
	store    jobStore
	blobs    blobStore
	settings runtimeSettingsStore
	apply    runtimeSettingsApplier

	streamInterval time.Duration

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithRuntimeSettingsApplier(apply runtimeSettingsApplier) Option {
	return func(s *Server) {
		s.apply = apply
	}
}

func WithStreamInterval(interval time.Duration) Option {
	return func(s *Server) {
		s.streamInterval = interval
	}
}

func NewServer(creator briefCreator, store jobStore, blobs blobStore, opts ...Option) *Server {
	s := &Server{
		creator:        creator,
		store:          store,
		blobs:          blobs,
		streamInterval: poll.DefaultInterval,
		mux:            http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/documents", s.handleDocuments)
	s.mux.HandleFunc("/api/briefs", s.handleBriefs)
	s.mux.HandleFunc("/api/briefs/stream", s.handleBriefStream)
	s.mux.HandleFunc("/api/briefs/", s.handleBriefByID)
	s.mux.HandleFunc("/api/audio/", s.handleAudio)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
}
