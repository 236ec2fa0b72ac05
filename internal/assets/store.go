package assets

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/MimeLyc/docbrief/pkg/file"
)

const (
	documentsDir   = "documents"
	audioDir       = "audio"
	transcriptsDir = "transcripts"

	// AudioURLPrefix is the read path the HTTP layer serves audio under.
	AudioURLPrefix = "/api/audio/"
)

// Store keeps uploaded document bytes and rendered audio on the local
// filesystem under a single data root. Record metadata lives in sqlite;
// this store only owns the blobs.
type Store struct {
	root string
}

func NewStore(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("data root is required")
	}
	for _, dir := range []string{documentsDir, audioDir, transcriptsDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	return &Store{root: root}, nil
}

// SaveDocument streams an upload into its per-document directory and
// returns the stored path and byte count. The file appears atomically;
// a failed upload never leaves a partial blob at the final path.
func (s *Store) SaveDocument(id, name string, r io.Reader) (string, int64, error) {
	dir := filepath.Join(s.root, documentsDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create document directory: %w", err)
	}

	path := filepath.Join(dir, file.SanitizeName(name))
	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return "", 0, fmt.Errorf("create document file: %w", err)
	}
	size, err := io.Copy(out, r)
	if err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return "", 0, fmt.Errorf("save document: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", 0, fmt.Errorf("finalise document: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", 0, fmt.Errorf("persist document file: %w", err)
	}
	return path, size, nil
}

// SaveAudio persists rendered audio atomically and returns the URL the
// HTTP layer serves it under.
func (s *Store) SaveAudio(summaryID string, audio []byte) (string, error) {
	name := summaryID + ".mp3"
	path := filepath.Join(s.root, audioDir, name)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, audio, 0o644); err != nil {
		return "", fmt.Errorf("write audio temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("persist audio file: %w", err)
	}
	return AudioURLPrefix + name, nil
}

// AudioPath resolves a stored audio file name to its on-disk path,
// rejecting traversal outside the audio directory.
func (s *Store) AudioPath(name string) (string, error) {
	clean := filepath.Clean(name)
	if clean != filepath.Base(clean) || strings.Contains(clean, "..") {
		return "", fmt.Errorf("invalid audio name %q", name)
	}
	return filepath.Join(s.root, audioDir, clean), nil
}

// DeleteAudioByURL removes the blob behind an audio URL. Unknown URLs are
// ignored so retention sweeps stay idempotent.
func (s *Store) DeleteAudioByURL(url string) error {
	name := strings.TrimPrefix(url, AudioURLPrefix)
	if name == url || name == "" {
		return nil
	}
	path, err := s.AudioPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// TranscriptPath returns the destination for a summary's docx transcript.
func (s *Store) TranscriptPath(summaryID string) string {
	return filepath.Join(s.root, transcriptsDir, summaryID+".docx")
}

// DeleteDocument removes a document's blob directory.
func (s *Store) DeleteDocument(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("document id is required")
	}
	return os.RemoveAll(filepath.Join(s.root, documentsDir, id))
}
