package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/verigate/code-server-go/internal/store"
)

const cleanupTimeout = 30 * time.Second

// CleanupJob drives the store's purge on a fixed interval. The store itself
// never expires records in the background; this job is the scheduler.
type CleanupJob struct {
	store    store.CodeStore
	interval time.Duration
	done     chan struct{}
}

func NewCleanupJob(s store.CodeStore, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		store:    s,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	count, err := j.store.Purge(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to purge codes")
	} else if count > 0 {
		log.Info().Int64("count", count).Msg("purged dead codes")
	}
}
