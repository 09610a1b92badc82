package notifications

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"proxima/internal/endpoint"
	"proxima/internal/logging"
	"proxima/internal/protocol"
)

const queueSize = 16

// Observer forwards every call to next and queues an alert for the
// transitions worth a push: Running reached, Running lost, discovery failed.
type Observer struct {
	next   endpoint.Observer
	svc    Service
	iface  string
	logger *slog.Logger

	detail atomic.Pointer[func() string]

	mu   sync.Mutex
	last endpoint.State

	queue  chan func(context.Context) error
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewObserver starts the delivery worker. Close stops it.
func NewObserver(svc Service, next endpoint.Observer, iface string, logger *slog.Logger) *Observer {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Observer{
		next:   next,
		svc:    svc,
		iface:  iface,
		logger: logging.NewComponentLogger(logger, "notifications"),
		queue:  make(chan func(context.Context) error, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	o.wg.Add(1)
	go o.run()
	return o
}

// SetDetail supplies the cause text used when discovery stops.
func (o *Observer) SetDetail(fn func() string) {
	o.detail.Store(&fn)
}

func (o *Observer) EnvelopeHandled(kind protocol.Kind) {
	if o.next != nil {
		o.next.EnvelopeHandled(kind)
	}
}

func (o *Observer) ClientsChanged(n int) {
	if o.next != nil {
		o.next.ClientsChanged(n)
	}
}

func (o *Observer) DiscoverFinished(outcome string) {
	if o.next != nil {
		o.next.DiscoverFinished(outcome)
	}
	switch outcome {
	case endpoint.OutcomeInterface, endpoint.OutcomeDaemon:
		o.enqueue(func(ctx context.Context) error {
			return o.svc.NotifyDiscoveryFailed(ctx, o.iface, outcome)
		})
	}
}

func (o *Observer) StateChanged(state endpoint.State) {
	if o.next != nil {
		o.next.StateChanged(state)
	}
	o.mu.Lock()
	prev := o.last
	o.last = state
	o.mu.Unlock()

	switch {
	case state == endpoint.Running && prev != endpoint.Running:
		o.enqueue(func(ctx context.Context) error {
			return o.svc.NotifyDiscoveryRunning(ctx, o.iface)
		})
	case state == endpoint.Idle && prev == endpoint.Running:
		cause := ""
		if fn := o.detail.Load(); fn != nil {
			cause = (*fn)()
		}
		o.enqueue(func(ctx context.Context) error {
			return o.svc.NotifyDiscoveryStopped(ctx, o.iface, cause)
		})
	}
}

// Close drops queued alerts and waits for the worker.
func (o *Observer) Close() {
	o.cancel()
	o.wg.Wait()
}

func (o *Observer) enqueue(send func(context.Context) error) {
	select {
	case <-o.ctx.Done():
	case o.queue <- send:
	default:
		o.logger.Debug("notification dropped, queue full")
	}
}

func (o *Observer) run() {
	defer o.wg.Done()
	for {
		select {
		case <-o.ctx.Done():
			return
		case send := <-o.queue:
			if err := send(o.ctx); err != nil && o.ctx.Err() == nil {
				logging.WarnWithContext(o.logger, "notification failed", "notification_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
					logging.String(logging.FieldImpact, "mesh alerts are not delivered"),
				)
			}
		}
	}
}
