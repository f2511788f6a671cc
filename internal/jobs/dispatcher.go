package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dataload-service/internal/queue"
	"dataload-service/internal/services"
)

// JobSource hands out queued job descriptors.
type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Descriptor, error)
	Forget(ctx context.Context, sessionID uuid.UUID) error
}

// JobProcessor runs one job to a terminal state.
type JobProcessor interface {
	Process(ctx context.Context, d queue.Descriptor) error
}

// Dispatcher pulls upload jobs off the queue with a fixed pool of workers.
// A job, once picked up, runs to completion even if the dispatcher is stopped.
type Dispatcher struct {
	source      JobSource
	processor   JobProcessor
	logger      *logrus.Logger
	workers     int
	pollTimeout time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given worker count (at least one)
func NewDispatcher(source JobSource, processor JobProcessor, logger *logrus.Logger, workers int, pollTimeout time.Duration) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &Dispatcher{
		source:      source,
		processor:   processor,
		logger:      logger,
		workers:     workers,
		pollTimeout: pollTimeout,
		stopCh:      make(chan struct{}),
	}
}

// Start launches the workers and returns immediately
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Infof("Dispatcher started with %d workers", d.workers)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work(ctx, i)
	}
}

// Stop signals the workers and waits for in-flight jobs to finish
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	d.wg.Wait()
	d.logger.Info("Dispatcher stopped")
}

func (d *Dispatcher) stopping(ctx context.Context) bool {
	select {
	case <-d.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (d *Dispatcher) work(ctx context.Context, id int) {
	defer d.wg.Done()
	log := d.logger.WithField("worker", id)

	for !d.stopping(ctx) {
		desc, err := d.source.Dequeue(ctx, d.pollTimeout)
		if err != nil {
			switch {
			case errors.Is(err, queue.ErrEmpty):
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return
			case errors.Is(err, queue.ErrDescriptorMissing):
				log.WithError(err).Warn("Dropping queued job without descriptor")
			default:
				log.WithError(err).Error("Failed to dequeue job")
				d.pause(ctx, time.Second)
			}
			continue
		}
		d.dispatch(ctx, log, *desc)
	}
}

// dispatch detaches the job from the dispatcher's context: jobs are never cancelled midway.
func (d *Dispatcher) dispatch(ctx context.Context, log *logrus.Entry, desc queue.Descriptor) {
	jobCtx := context.WithoutCancel(ctx)
	err := d.processor.Process(jobCtx, desc)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrAlreadyClaimed):
		log.WithField("session_id", desc.SessionID).Debug("Session already claimed, skipping")
	default:
		log.WithError(err).WithField("session_id", desc.SessionID).Error("Job failed")
	}
	// The sweeper stores a fresh descriptor if the session is ever re-queued.
	if err := d.source.Forget(jobCtx, desc.SessionID); err != nil {
		log.WithError(err).WithField("session_id", desc.SessionID).Warn("Failed to drop job descriptor")
	}
}

func (d *Dispatcher) pause(ctx context.Context, wait time.Duration) {
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
	case <-d.stopCh:
	case <-ctx.Done():
	}
}
