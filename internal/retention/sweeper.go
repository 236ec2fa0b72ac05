package retention

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/docbrief/pkg/log"
)

// jobSweeper is the store side of retention: delete terminal jobs older
// than the cutoff and report the audio URLs of the swept summaries.
type jobSweeper interface {
	DeleteJobsBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

// audioRemover deletes the blob behind an audio URL.
type audioRemover interface {
	DeleteAudioByURL(url string) error
}

// Sweeper deletes terminal jobs past the retention window, together with
// their stored audio.
type Sweeper struct {
	store  jobSweeper
	audio  audioRemover
	window time.Duration
	group  singleflight.Group
}

func NewSweeper(store jobSweeper, audio audioRemover, retentionDays int) *Sweeper {
	return &Sweeper{
		store:  store,
		audio:  audio,
		window: time.Duration(retentionDays) * 24 * time.Hour,
	}
}

// Schedule registers the sweep on the cron instance. Overlapping triggers
// collapse into a single run.
func (s *Sweeper) Schedule(ctx context.Context, c *cron.Cron, cronExpr string) error {
	_, err := c.AddFunc(cronExpr, func() {
		_, _, _ = s.group.Do("sweep", func() (any, error) {
			if err := s.Sweep(ctx); err != nil {
				log.Error("retention sweep failed: %v", err)
			}
			return nil, nil
		})
	})
	return err
}

// Sweep runs one retention pass.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.window)

	audioURLs, err := s.store.DeleteJobsBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, url := range audioURLs {
		if err := s.audio.DeleteAudioByURL(url); err != nil {
			log.Warn("failed to remove audio %s: %v", url, err)
		}
	}
	if len(audioURLs) > 0 {
		log.Info("retention sweep removed %d briefs older than %s", len(audioURLs), cutoff.Format(time.RFC3339))
	}
	return nil
}
