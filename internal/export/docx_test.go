package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTranscript(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "transcript.docx")
	narrative := "# Quarterly Review\n\nRevenue grew in **all** regions.\n\n- North America\n- Europe\n\nThat concludes the brief."

	require.NoError(t, WriteTranscript("Quarterly Review", narrative, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestWriteTranscript_EmptyNarrative(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.docx")
	require.NoError(t, WriteTranscript("Untitled", "", path))

	_, err := os.Stat(path)
	require.NoError(t, err)
}
