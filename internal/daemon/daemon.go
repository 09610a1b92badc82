package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"proxima/internal/config"
	"proxima/internal/endpoint"
	"proxima/internal/history"
	"proxima/internal/iface"
	"proxima/internal/logging"
	"proxima/internal/metrics"
	"proxima/internal/neighbors"
	"proxima/internal/notifications"
	"proxima/internal/routingd"
	"proxima/internal/transport"
)

const (
	pruneInterval   = 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

// ErrAlreadyRunning is returned when the lock is held or Start is repeated.
var ErrAlreadyRunning = errors.New("daemon already running")

// Option overrides a collaborator. Tests use these to avoid touching the host.
type Option func(*Daemon)

// WithInterface replaces the interface configurator.
func WithInterface(c endpoint.InterfaceConfigurator) Option {
	return func(d *Daemon) { d.iface = c }
}

// WithRouting replaces the routing daemon controller.
func WithRouting(c endpoint.DaemonController) Option {
	return func(d *Daemon) { d.routing = c }
}

// WithNeighborSource replaces the kernel neighbor table reader.
func WithNeighborSource(s endpoint.NeighborSource) Option {
	return func(d *Daemon) { d.neighbors = s }
}

// WithNotifier replaces the ntfy service built from configuration.
func WithNotifier(svc notifications.Service) Option {
	return func(d *Daemon) { d.notifySvc = svc }
}

// Daemon owns every service-side component.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	sessionID string

	lockPath string
	lock     *flock.Flock

	iface     endpoint.InterfaceConfigurator
	routing   endpoint.DaemonController
	neighbors endpoint.NeighborSource
	history   *history.Store
	metrics   *metrics.Metrics
	notifySvc notifications.Service

	mu         sync.Mutex
	running    atomic.Bool
	startedAt  time.Time
	cancel     context.CancelFunc
	endpoint   *endpoint.Endpoint
	server     *transport.Server
	monitor    *linkMonitor
	metricsSrv *metrics.Server
	notifier   *notifications.Observer
	loops      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	SessionID     string
	StartedAt     time.Time
	Endpoint      endpoint.Status
	RoutingUp     bool
	LinkMonitor   bool
	SocketPath    string
	LockPath      string
	HistoryPath   string
	MetricsAddr   string
	InterfaceName string
}

// New builds a daemon from configuration. The history database is opened
// here when enabled and closed by Close.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	logger = logging.NewComponentLogger(logger, "daemon")
	d := &Daemon{
		cfg:       cfg,
		logger:    logger,
		sessionID: uuid.NewString(),
		lockPath:  cfg.LockPath(),
		lock:      flock.New(cfg.LockPath()),
		metrics:   metrics.New(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.iface == nil {
		d.iface = iface.New(cfg.Interface, logger)
	}
	if d.routing == nil {
		d.routing = routingd.New(cfg.Routing, cfg.Interface.Name, logger,
			routingd.WithStartObserver(d.metrics.StartObserved))
	}
	if d.neighbors == nil {
		d.neighbors = neighbors.New(cfg.Interface.Name, logger)
	}
	if d.notifySvc == nil && notifications.Enabled(cfg) {
		d.notifySvc = notifications.NewService(cfg)
	}
	if cfg.History.Enabled {
		store, err := history.Open(ctx, cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		d.history = store
	}
	return d, nil
}

// Start acquires the lock and brings up the endpoint, the client socket, the
// link monitor, the liveness probe and the metrics server.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return ErrAlreadyRunning
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: lock %s is held by another instance", ErrAlreadyRunning, d.lockPath)
	}

	runCtx, cancel := context.WithCancel(ctx)
	var observer endpoint.Observer = d.metrics
	var notifier *notifications.Observer
	if d.notifySvc != nil {
		notifier = notifications.NewObserver(d.notifySvc, d.metrics, d.cfg.Interface.Name, d.logger)
		observer = notifier
	}
	opts := endpoint.Options{
		Interface: d.iface,
		Daemon:    d.routing,
		Neighbors: d.neighbors,
		Observer:  observer,
		Logger:    d.logger,
	}
	if d.history != nil {
		opts.Recorder = d.history
	}
	ep, err := endpoint.New(runCtx, opts)
	if err != nil {
		if notifier != nil {
			notifier.Close()
		}
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("create endpoint: %w", err)
	}
	if notifier != nil {
		notifier.SetDetail(func() string { return ep.Status().LastError })
	}
	srv, err := transport.NewServer(runCtx, d.cfg.Paths.SocketPath, ep, d.logger)
	if err != nil {
		ep.Close()
		if notifier != nil {
			notifier.Close()
		}
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start client socket: %w", err)
	}
	srv.Serve()

	d.cancel = cancel
	d.endpoint = ep
	d.server = srv
	d.notifier = notifier
	d.startedAt = time.Now()

	if d.cfg.Interface.Monitor {
		d.monitor = newLinkMonitor(d.cfg.Interface.Name, d.logger,
			func(cause string) { _ = ep.LinkLost(cause) },
			func() { _ = ep.Probe() },
		)
		_ = d.monitor.Start(runCtx)
	}
	if d.cfg.Metrics.Enabled {
		ms, err := d.metrics.Serve(runCtx, d.cfg.Metrics.Bind, d.logger)
		if err != nil {
			logging.WarnWithContext(d.logger, "metrics endpoint unavailable", "metrics_start_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check metrics.bind for conflicts"),
				logging.String(logging.FieldImpact, "metrics will not be scraped"),
			)
		} else {
			d.metricsSrv = ms
		}
	}
	if interval := d.cfg.LivenessInterval(); interval > 0 {
		d.loops.Add(1)
		go d.liveness(runCtx, ep, interval)
	}
	if d.history != nil && d.cfg.History.RetentionDays > 0 {
		d.loops.Add(1)
		go d.pruneLoop(runCtx)
	}

	d.running.Store(true)
	d.logger.Info("proxima daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String(logging.FieldSessionID, d.sessionID),
		logging.String("socket", d.cfg.Paths.SocketPath),
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Stop tears down everything Start created, stops the routing daemon and
// releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.cancel()
	d.monitor.Stop()
	d.server.Close()
	d.endpoint.Close()
	d.loops.Wait()
	if d.notifier != nil {
		d.notifier.Close()
		d.notifier = nil
	}
	if d.metricsSrv != nil {
		_ = d.metricsSrv.Close()
		d.metricsSrv = nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	if err := d.routing.Stop(ctx); err != nil {
		logging.WarnWithContext(d.logger, "failed to stop routing daemon", "routing_stop_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "stop the routing daemon manually"),
			logging.String(logging.FieldImpact, "routing daemon may outlive proxima"),
		)
	}
	cancel()

	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if the next start fails"),
			logging.String(logging.FieldImpact, "next start may report a running instance"),
		)
	}
	d.monitor = nil
	d.endpoint = nil
	d.server = nil
	d.running.Store(false)
	d.logger.Info("proxima daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and releases the history database.
func (d *Daemon) Close() error {
	d.Stop()
	if d.history != nil {
		return d.history.Close()
	}
	return nil
}

// Running reports whether Start has succeeded and Stop has not been called.
func (d *Daemon) Running() bool { return d.running.Load() }

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := Status{
		Running:       d.running.Load(),
		SessionID:     d.sessionID,
		StartedAt:     d.startedAt,
		RoutingUp:     d.routing.IsRunning(),
		LinkMonitor:   d.monitor.Running(),
		SocketPath:    d.cfg.Paths.SocketPath,
		LockPath:      d.lockPath,
		InterfaceName: d.cfg.Interface.Name,
	}
	if d.endpoint != nil {
		st.Endpoint = d.endpoint.Status()
	}
	if d.history != nil {
		st.HistoryPath = d.history.Path()
	}
	if d.metricsSrv != nil {
		st.MetricsAddr = d.metricsSrv.Addr().String()
	}
	return st
}

// History lists recorded neighbor sightings.
func (d *Daemon) History(ctx context.Context, limit int) ([]history.Sighting, error) {
	if d.history == nil {
		return nil, errors.New("history disabled")
	}
	return d.history.List(ctx, limit)
}

// Endpoint exposes the running endpoint, or nil when stopped.
func (d *Daemon) Endpoint() *endpoint.Endpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.endpoint
}

func (d *Daemon) liveness(ctx context.Context, ep *endpoint.Endpoint, interval time.Duration) {
	defer d.loops.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.metrics.RoutingUp(d.routing.IsRunning())
			if err := ep.Probe(); err != nil {
				d.logger.Debug("liveness probe skipped", logging.Error(err))
			}
		}
	}
}

func (d *Daemon) pruneLoop(ctx context.Context) {
	defer d.loops.Done()
	retention := time.Duration(d.cfg.History.RetentionDays) * 24 * time.Hour
	prune := func() {
		n, err := d.history.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			if ctx.Err() == nil {
				logging.WarnWithContext(d.logger, "history prune failed", "history_prune_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check "+d.history.Path()+" permissions"),
					logging.String(logging.FieldImpact, "old sightings are kept"),
				)
			}
			return
		}
		if n > 0 {
			d.logger.Info("history pruned", logging.Int64("rows", n))
		}
	}

	prune()
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
