package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"dataload-service/internal/models"
	"dataload-service/internal/queue"
)

const sweepBatchSize = 100

// StaleSessionStore finds sessions stuck in pending and fails those stuck in processing.
type StaleSessionStore interface {
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.UploadSession, error)
	FailAbandoned(ctx context.Context, cutoff time.Time) (int64, error)
}

// JobSink accepts descriptors.
type JobSink interface {
	Enqueue(ctx context.Context, d queue.Descriptor) error
}

// PendingSweeper re-queues sessions that stayed pending too long, e.g. when
// the enqueue after submission failed. Double delivery is harmless because
// only one worker can move a session out of pending. It also fails sessions
// whose worker crashed mid-job, once they report no progress for abandonAfter.
type PendingSweeper struct {
	sessions     StaleSessionStore
	queue        JobSink
	logger       *logrus.Logger
	interval     time.Duration
	after        time.Duration
	abandonAfter time.Duration
	now          func() time.Time
	stopCh       chan struct{}
}

// NewPendingSweeper creates a sweeper running every interval for sessions older
// than after. abandonAfter <= 0 leaves processing sessions alone.
func NewPendingSweeper(sessions StaleSessionStore, q JobSink, logger *logrus.Logger, interval, after, abandonAfter time.Duration) *PendingSweeper {
	return &PendingSweeper{
		sessions:     sessions,
		queue:        q,
		logger:       logger,
		interval:     interval,
		after:        after,
		abandonAfter: abandonAfter,
		now:          time.Now,
		stopCh:       make(chan struct{}),
	}
}

// Start begins the sweep loop
func (j *PendingSweeper) Start(ctx context.Context) {
	j.logger.Info("Pending session sweeper started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.Sweep(ctx)
			j.FailAbandoned(ctx)
		case <-j.stopCh:
			j.logger.Info("Pending session sweeper stopped")
			return
		case <-ctx.Done():
			j.logger.Info("Pending session sweeper context cancelled")
			return
		}
	}
}

// Stop signals the sweeper to stop
func (j *PendingSweeper) Stop() {
	close(j.stopCh)
}

// Sweep re-queues one batch of stale pending sessions and returns how many were queued
func (j *PendingSweeper) Sweep(ctx context.Context) int {
	cutoff := j.now().Add(-j.after)
	sessions, err := j.sessions.ListStalePending(ctx, cutoff, sweepBatchSize)
	if err != nil {
		j.logger.Errorf("Failed to list stale pending sessions: %v", err)
		return 0
	}
	if len(sessions) == 0 {
		j.logger.Debug("No stale pending sessions")
		return 0
	}

	queued := 0
	for i := range sessions {
		if err := j.queue.Enqueue(ctx, queue.DescriptorFor(&sessions[i])); err != nil {
			j.logger.Errorf("Failed to re-queue session %s: %v", sessions[i].ID, err)
			continue
		}
		queued++
	}
	j.logger.Infof("Re-queued %d of %d stale pending sessions", queued, len(sessions))
	return queued
}

// FailAbandoned moves processing sessions without recent progress to failed and returns how many
func (j *PendingSweeper) FailAbandoned(ctx context.Context) int64 {
	if j.abandonAfter <= 0 {
		return 0
	}
	failed, err := j.sessions.FailAbandoned(ctx, j.now().Add(-j.abandonAfter))
	if err != nil {
		j.logger.Errorf("Failed to fail abandoned sessions: %v", err)
		return 0
	}
	if failed > 0 {
		j.logger.Warnf("Failed %d abandoned processing sessions", failed)
	}
	return failed
}
