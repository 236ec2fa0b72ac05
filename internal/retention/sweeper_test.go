package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeperStore struct {
	mu      sync.Mutex
	urls    []string
	err     error
	cutoffs []time.Time
}

func (f *fakeSweeperStore) DeleteJobsBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.urls, f.err
}

type fakeAudioRemover struct {
	mu      sync.Mutex
	removed []string
	err     error
}

func (f *fakeAudioRemover) DeleteAudioByURL(url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, url)
	return f.err
}

func TestSweeper_Sweep(t *testing.T) {
	t.Parallel()

	store := &fakeSweeperStore{urls: []string{"/api/audio/a.mp3", "/api/audio/b.mp3"}}
	audio := &fakeAudioRemover{}
	sweeper := NewSweeper(store, audio, 30)

	require.NoError(t, sweeper.Sweep(context.Background()))

	assert.Equal(t, []string{"/api/audio/a.mp3", "/api/audio/b.mp3"}, audio.removed)

	require.Len(t, store.cutoffs, 1)
	wantCutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)
	assert.WithinDuration(t, wantCutoff, store.cutoffs[0], time.Minute)
}

func TestSweeper_StoreErrorPropagates(t *testing.T) {
	t.Parallel()

	store := &fakeSweeperStore{err: errors.New("db locked")}
	sweeper := NewSweeper(store, &fakeAudioRemover{}, 7)

	require.Error(t, sweeper.Sweep(context.Background()))
}

func TestSweeper_AudioRemovalFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	store := &fakeSweeperStore{urls: []string{"/api/audio/a.mp3"}}
	audio := &fakeAudioRemover{err: errors.New("read-only fs")}
	sweeper := NewSweeper(store, audio, 7)

	require.NoError(t, sweeper.Sweep(context.Background()))
	assert.Len(t, audio.removed, 1)
}
