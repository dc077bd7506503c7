package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/config"
	"github.com/spec-kit/helpdesk-sla/internal/observability"
	"github.com/spec-kit/helpdesk-sla/internal/service"
	"github.com/spec-kit/helpdesk-sla/internal/sla"
)

var (
	// ErrQueueFull is returned when an alert cannot be queued without blocking.
	ErrQueueFull = errors.New("notification queue full")
	// ErrWorkerStopped is returned for alerts sent after Stop.
	ErrWorkerStopped = errors.New("notification worker stopped")
)

// NotificationWorker delivers alerts asynchronously through a bounded queue.
// It implements sla.Sink so the monitor never waits on delivery.
type NotificationWorker struct {
	sink    sla.Sink
	queue   chan sla.Alert
	workers int
	timeout time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger

	mu        sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
	startOnce sync.Once
}

// NewNotificationWorker wraps sink with a queue sized from cfg.
func NewNotificationWorker(sink sla.Sink, cfg config.NotificationConfig, metrics *observability.Metrics, logger *zap.Logger) *NotificationWorker {
	size := cfg.QueueSize
	if size <= 0 {
		size = 1
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &NotificationWorker{
		sink:    sink,
		queue:   make(chan sla.Alert, size),
		workers: workers,
		timeout: cfg.SendTimeout,
		metrics: metrics,
		logger:  logger,
	}
}

// StartNotificationWorker registers notification handlers and starts a
// worker delivering through the notification service.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService, cfg config.NotificationConfig, metrics *observability.Metrics, logger *zap.Logger) *NotificationWorker {
	notificationService.RegisterHandlers()
	w := NewNotificationWorker(notificationService, cfg, metrics, logger)
	w.Start(ctx)
	return w
}

// Start launches the delivery goroutines. Sends keep running after ctx is
// cancelled so Stop can drain the queue.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		base := context.WithoutCancel(ctx)
		for i := 0; i < w.workers; i++ {
			w.wg.Add(1)
			go w.run(base)
		}
	})
}

// Send queues an alert without blocking.
func (w *NotificationWorker) Send(ctx context.Context, alert sla.Alert) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWorkerStopped
	}
	select {
	case w.queue <- alert:
		return nil
	default:
		w.metrics.RecordNotificationDropped()
		w.logger.Warn("notification queue full; alert dropped",
			zap.String("ticket_id", alert.TicketID),
			zap.String("phase", string(alert.Phase)),
			zap.String("kind", string(alert.Kind)))
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for queued alerts to be delivered or for
// ctx to expire.
func (w *NotificationWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *NotificationWorker) run(ctx context.Context) {
	defer w.wg.Done()
	for alert := range w.queue {
		w.deliver(ctx, alert)
	}
}

func (w *NotificationWorker) deliver(ctx context.Context, alert sla.Alert) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	if err := w.sink.Send(ctx, alert); err != nil {
		w.metrics.RecordNotificationFailure()
		w.logger.Error("notification delivery failed",
			zap.String("alert_id", alert.ID),
			zap.String("ticket_id", alert.TicketID),
			zap.String("kind", string(alert.Kind)),
			zap.Error(err))
		return
	}
	w.logger.Debug("notification delivered",
		zap.String("alert_id", alert.ID),
		zap.String("ticket_id", alert.TicketID))
}
