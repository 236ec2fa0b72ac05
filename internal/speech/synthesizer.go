package speech

import (
	"context"
	"errors"
)

// ErrUnavailable signals that no synthesis credential is configured. This
// is an anticipated condition, not a failure: callers fall back to a
// placeholder audio artifact and still complete the job.
var ErrUnavailable = errors.New("speech synthesis is not configured")

// Synthesizer converts narrative text into an audio byte stream.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
