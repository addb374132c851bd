// Package app wires the push client to its config, logging, archive and
// service-manager integration.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"pushconn/internal/config"
	"pushconn/internal/eventbus"
	"pushconn/internal/runtime/tasks"
	"pushconn/internal/storage"
	"pushconn/internal/transport/tlsdial"
	"pushconn/pkg/frame"
	logx "pushconn/pkg/logx"
	"pushconn/pkg/push"
	"pushconn/pkg/systemd"
)

const archiveTimeout = 10 * time.Second

type App struct {
	cfgm *config.Manager
	res  config.Resolved

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	sd    *systemd.Notifier

	client *push.Client
	group  *tasks.Group

	cronMu     sync.Mutex
	cron       *cron.Cron
	statsEntry cron.EntryID
	statsSpec  string

	stopOnce sync.Once
}

type Option func(*options)

type options struct {
	dialer push.Dialer
	sd     *systemd.Notifier
}

// WithDialer replaces the TLS dialer built from the gateway section.
func WithDialer(d push.Dialer) Option { return func(o *options) { o.dialer = d } }

func WithNotifier(n *systemd.Notifier) Option { return func(o *options) { o.sd = n } }

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load(context.Background())
	if err != nil {
		return nil, err
	}
	res, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(res.Logging)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	store, err := storage.Open(res.Storage, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	if store != nil {
		log.Info("unsent archive enabled", logx.String("driver", res.Storage.Driver))
	}

	dialer := o.dialer
	if dialer == nil {
		d, err := tlsdial.New(res.Gateway)
		if err != nil {
			closeStore(store)
			_ = logSvc.Close()
			return nil, err
		}
		dialer = d
	}

	client, err := push.New(res.Client, dialer,
		push.WithLogger(log.With(logx.String("comp", "push"))),
		push.WithEventBus(bus),
	)
	if err != nil {
		closeStore(store)
		_ = logSvc.Close()
		return nil, err
	}

	sd := o.sd
	if sd == nil {
		sd = systemd.New()
	}

	a := &App{
		cfgm:   cfgm,
		res:    res,
		log:    log.With(logx.String("comp", "app")),
		logs:   logSvc,
		bus:    bus,
		store:  store,
		sd:     sd,
		client: client,
		cron:   cron.New(cron.WithParser(config.StatsParser)),
	}
	client.OnUnsentNotifications(a.archiveUnsent)
	client.OnRejected(func(n push.Notification, st frame.Status) {
		a.log.Warn("notification rejected by gateway",
			logx.Hex("token", n.Token),
			logx.Int("status", int(st)),
			logx.String("reason", st.String()),
		)
	})
	return a, nil
}

func (a *App) Client() *push.Client { return a.client }

// Done is closed when the app context is canceled (Stop or parent ctx).
func (a *App) Done() <-chan struct{} {
	if a.group == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.group.Context().Done()
}

func (a *App) Start(ctx context.Context) error {
	if a.group != nil {
		return errors.New("app already started")
	}
	a.group = tasks.New(ctx,
		tasks.WithLogger(a.log),
		tasks.WithErrorHook(func(name string, err error) {
			a.log.Error("task failed", logx.String("task", name), logx.Err(err))
		}),
	)
	if err := a.client.Start(a.group.Context()); err != nil {
		return err
	}

	a.rescheduleStats(a.res.StatsSchedule)
	a.cron.Start()

	a.group.Go("events.log", a.logEvents)
	a.group.Go("config.watch", a.cfgm.Watch)
	a.group.Go("config.reload", a.reloadLoop)
	a.group.Go("systemd.watchdog", func(c context.Context) error {
		return a.sd.Watchdog(c, func() bool { return a.client.State() != push.StateShutdown })
	})

	if err := a.sd.Ready(); err != nil {
		a.log.Debug("sd_notify ready failed", logx.Err(err))
	}
	a.log.Info("pushconn started",
		logx.String("gateway", a.res.Gateway.Address),
		logx.Int("buffer_capacity", a.res.Client.BufferCapacity),
	)
	return nil
}

// archiveUnsent runs on the client's supervisor before Shutdown returns.
func (a *App) archiveUnsent(ns []push.Notification) {
	if len(ns) == 0 {
		return
	}
	if a.store == nil {
		a.log.Warn("unsent notifications discarded; storage disabled", logx.Int("count", len(ns)))
		return
	}
	now := time.Now()
	recs := make([]storage.UnsentRecord, 0, len(ns))
	for _, n := range ns {
		recs = append(recs, storage.UnsentRecord{
			At:       now,
			Reason:   "shutdown",
			Token:    n.Token,
			Payload:  n.Payload,
			Expiry:   n.Expiry,
			Priority: n.Priority,
		})
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := a.store.ArchiveUnsent(ctx, recs); err != nil {
		a.log.Error("archive unsent failed", logx.Int("count", len(recs)), logx.Err(err))
		return
	}
	a.log.Info("unsent notifications archived", logx.Int("count", len(recs)))
}

func (a *App) logEvents(ctx context.Context) error {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
		}
	}
}

// rescheduleStats replaces the periodic stats job. An empty spec disables it.
func (a *App) rescheduleStats(spec string) {
	a.cronMu.Lock()
	defer a.cronMu.Unlock()
	if spec == a.statsSpec && a.statsEntry != 0 {
		return
	}
	if a.statsEntry != 0 {
		a.cron.Remove(a.statsEntry)
		a.statsEntry = 0
	}
	a.statsSpec = spec
	if spec == "" {
		return
	}
	id, err := a.cron.AddFunc(spec, a.reportStats)
	if err != nil {
		a.log.Warn("invalid stats schedule", logx.String("spec", spec), logx.Err(err))
		return
	}
	a.statsEntry = id
}

func (a *App) reportStats() {
	s := a.client.Stats()
	a.log.Info("push stats",
		logx.String("state", s.State),
		logx.Uint64("generation", s.Generation),
		logx.Int("queued", s.Queued),
		logx.Uint64("submitted", s.Submitted),
		logx.Uint64("sent", s.Sent),
		logx.Uint64("replayed", s.Replayed),
		logx.Uint64("rejected", s.Rejected),
		logx.Uint64("evicted", s.Evicted),
		logx.Uint64("expired", s.Expired),
		logx.Uint64("connect_failures", s.ConnectFailures),
	)
	_ = a.sd.Status("%s; sent %d, queued %d, rejected %d", s.State, s.Sent, s.Queued, s.Rejected)

	if a.group == nil {
		return
	}
	tc := a.group.Counters()
	a.log.Debug("task stats", logx.Int64("active", tc.Active), logx.Uint64("started", tc.Started))
	for _, ts := range a.failedTasks() {
		a.log.Warn("task unhealthy",
			logx.String("task", ts.Name),
			logx.Int64("active", ts.Active),
			logx.Uint64("panics", ts.Panics),
			logx.String("last_err", ts.LastErr),
			logx.Duration("last_runtime", ts.LastRuntime),
		)
	}
}

// failedTasks lists background tasks that panicked or returned an error.
func (a *App) failedTasks() []tasks.TaskStats {
	if a.group == nil {
		return nil
	}
	var out []tasks.TaskStats
	for _, ts := range a.group.Snapshot() {
		if ts.Panics > 0 || ts.LastErr != "" {
			out = append(out, ts)
		}
	}
	return out
}

func closeStore(st storage.Store) {
	if st != nil {
		_ = st.Close()
	}
}
