package extract

import (
	"context"
	"fmt"

	"github.com/MimeLyc/docbrief/pkg/file"
)

// Extractor converts one stored document into plain text. Implementations
// may be slow network/IO operations and must honor ctx cancellation.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Registry picks an extractor by file extension.
type Registry struct {
	byExt map[string]Extractor
}

func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Extractor)}
}

// Register binds extensions (".pdf", ".txt", ...) to an extractor.
func (r *Registry) Register(extractor Extractor, exts ...string) {
	for _, ext := range exts {
		r.byExt[ext] = extractor
	}
}

// DefaultRegistry wires the extractors used in production: pdftotext for
// PDFs and a direct reader for plain-text formats.
func DefaultRegistry(pdftotextBin string) *Registry {
	r := NewRegistry()
	r.Register(&PDFToText{Bin: pdftotextBin}, ".pdf")
	r.Register(&PlainText{}, ".txt", ".md", ".markdown")
	return r
}

// Supports reports whether the path's extension has a registered extractor.
func (r *Registry) Supports(path string) bool {
	_, ok := r.byExt[file.Ext(path)]
	return ok
}

// Extract dispatches on the document's extension. An unsupported extension
// is an extraction failure for that document, tolerated by the pipeline's
// partial-success policy.
func (r *Registry) Extract(ctx context.Context, path string) (string, error) {
	ext := file.Ext(path)
	extractor, ok := r.byExt[ext]
	if !ok {
		return "", fmt.Errorf("unsupported document type %q", ext)
	}
	return extractor.Extract(ctx, path)
}
