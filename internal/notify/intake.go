package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"b2bpayment/internal/models"

	"go.uber.org/zap"
)

// Runner is the processing side the intake and sweeper hand records to.
type Runner interface {
	Process(ctx context.Context, n *models.Notification) error
}

// Intake accepts raw callbacks, persists them and dispatches processing on a
// bounded worker pool so the HTTP response never waits on processing.
type Intake struct {
	Notifications NotificationStore
	Processor     Runner
	Logger        *zap.Logger

	queue chan *models.Notification
	wg    sync.WaitGroup
	once  sync.Once
}

func NewIntake(store NotificationStore, processor Runner, queueSize int, logger *zap.Logger) *Intake {
	return &Intake{
		Notifications: store,
		Processor:     processor,
		Logger:        logger,
		queue:         make(chan *models.Notification, queueSize),
	}
}

// Start launches the dispatch workers. They drain the queue until Stop is
// called, then exit.
func (i *Intake) Start(ctx context.Context, workers int) {
	for w := 0; w < workers; w++ {
		i.wg.Add(1)
		go func() {
			defer i.wg.Done()
			for n := range i.queue {
				// Processing outlives the request; only shutdown cancels it.
				if err := i.Processor.Process(ctx, n); err != nil {
					i.Logger.Warn("async notify processing failed, sweeper will retry",
						zap.Int64("notify_id", n.ID), zap.Error(err))
				}
			}
		}()
	}
}

// Stop closes the queue and waits for in-flight processing to finish.
func (i *Intake) Stop() {
	i.once.Do(func() { close(i.queue) })
	i.wg.Wait()
}

// Submit persists the raw payload and queues it for processing. The record
// is acknowledged once the insert commits; processing outcome is never part
// of the acknowledgement. On a saturated queue the record is flipped to
// failed so the next sweep picks it up instead of blocking the caller.
func (i *Intake) Submit(ctx context.Context, rawPayload string) (*models.Notification, error) {
	n, err := i.Notifications.InsertNotification(ctx, rawPayload, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: insert notification: %v", ErrStorageUnavailable, err)
	}

	select {
	case i.queue <- n:
	default:
		i.Logger.Warn("intake queue full, deferring to sweeper", zap.Int64("notify_id", n.ID))
		if _, err := i.Notifications.AbandonNotification(ctx, n.ID); err != nil {
			i.Logger.Error("abandon notification failed",
				zap.Int64("notify_id", n.ID), zap.Error(err))
		}
	}
	return n, nil
}
