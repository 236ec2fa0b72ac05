package watcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/MimeLyc/docbrief/internal/pipeline"
)

type documentRecorder interface {
	SaveDocument(ctx context.Context, doc *pipeline.Document) error
}

type blobSaver interface {
	SaveDocument(id, name string, r io.Reader) (string, int64, error)
}

type briefCreator interface {
	CreateJob(ctx context.Context, documentIDs []string, listener pipeline.Context) (*pipeline.Job, error)
}

// NewIngestHandler returns the drop-folder handler: copy the file into the
// blob store, record it as a document, and start a brief for it.
func NewIngestHandler(records documentRecorder, blobs blobSaver, creator briefCreator) EventHandler {
	return func(ctx context.Context, path string) error {
		src, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open dropped file: %w", err)
		}
		defer src.Close()

		id := uuid.NewString()
		name := filepath.Base(path)
		stored, size, err := blobs.SaveDocument(id, name, src)
		if err != nil {
			return fmt.Errorf("store dropped file: %w", err)
		}

		doc := &pipeline.Document{
			ID:        id,
			Name:      name,
			Path:      stored,
			Size:      size,
			CreatedAt: time.Now().UTC(),
		}
		if err := records.SaveDocument(ctx, doc); err != nil {
			return fmt.Errorf("record dropped file: %w", err)
		}

		if _, err := creator.CreateJob(ctx, []string{id}, pipeline.Context{}); err != nil {
			return fmt.Errorf("create brief: %w", err)
		}
		return nil
	}
}
