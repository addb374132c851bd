package push

import (
	"context"
	"errors"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"pushconn/internal/eventbus"
	"pushconn/internal/runtime/tasks"
	"pushconn/pkg/frame"
	logx "pushconn/pkg/logx"
)

var (
	ErrShutdown       = errors.New("push client shut down")
	ErrNilDialer      = errors.New("push client requires a dialer")
	ErrAlreadyStarted = errors.New("push client already started")
)

// drainTimeout bounds a frame write still in progress when a generation ends.
const drainTimeout = 5 * time.Second

// Config tunes the client. Zero values select the defaults.
type Config struct {
	// BufferCapacity bounds the in-flight buffer of each generation.
	BufferCapacity int
	// QueueSize bounds pending submissions; 0 means unbounded.
	QueueSize  int
	TokenSize  int
	MaxPayload int
	// RatePerSec limits frames written per second; 0 means unlimited.
	RatePerSec int
	BackoffMin time.Duration
	BackoffMax time.Duration
	// ShutdownGrace is how long Shutdown keeps listening for a gateway error
	// after the writer stopped.
	ShutdownGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.BufferCapacity <= 0 {
		c.BufferCapacity = DefaultBufferCapacity
	}
	if c.QueueSize < 0 {
		c.QueueSize = 0
	}
	if c.TokenSize <= 0 {
		c.TokenSize = frame.DefaultTokenSize
	}
	if c.MaxPayload <= 0 {
		c.MaxPayload = frame.DefaultMaxPayload
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = tasks.DefaultBackoffMin
	}
	if c.BackoffMax < c.BackoffMin {
		c.BackoffMax = tasks.DefaultBackoffMax
		if c.BackoffMax < c.BackoffMin {
			c.BackoffMax = c.BackoffMin
		}
	}
	if c.ShutdownGrace < 0 {
		c.ShutdownGrace = 0
	}
	return c
}

type Option func(*Client)

func WithLogger(log logx.Logger) Option { return func(c *Client) { c.log = log } }

func WithEventBus(bus eventbus.Bus) Option { return func(c *Client) { c.bus = bus } }

// Client keeps notifications flowing to the gateway across connection
// failures. It owns one generation at a time and, when a generation ends,
// requeues whatever the gateway may not have accepted ahead of newer
// submissions before dialing again.
//
// Submit never reports delivery failures; those surface as replays and, at
// shutdown, through OnUnsentNotifications.
type Client struct {
	cfg     Config
	codec   frame.Codec
	dialer  Dialer
	log     logx.Logger
	bus     eventbus.Bus
	queue   *Queue
	limiter *rate.Limiter
	stats   counters
	state   atomic.Int32

	hmu              sync.Mutex
	unsentHandlers   []func([]Notification)
	rejectedHandlers []func(Notification, frame.Status)
	unsent           []Notification

	startOnce    sync.Once
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	done         chan struct{}
	tasks        *tasks.Group
}

func New(cfg Config, dialer Dialer, opts ...Option) (*Client, error) {
	if dialer == nil {
		return nil, ErrNilDialer
	}
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:        cfg,
		codec:      frame.Codec{TokenSize: cfg.TokenSize, MaxPayload: cfg.MaxPayload},
		dialer:     dialer,
		queue:      NewQueue(cfg.QueueSize),
		limiter:    rate.NewLimiter(rate.Inf, 1),
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	if c.bus == nil {
		c.bus = eventbus.Nop{}
	}
	c.SetRate(cfg.RatePerSec)
	return c, nil
}

// Start launches the connection supervisor. Cancelling ctx has the same
// effect as Shutdown. Start after Shutdown returns ErrShutdown.
func (c *Client) Start(ctx context.Context) error {
	started := false
	c.startOnce.Do(func() {
		started = true
		c.tasks = tasks.New(context.Background(), tasks.WithLogger(c.log))
		c.tasks.Go("supervisor", func(context.Context) error {
			c.run()
			return nil
		})
		context.AfterFunc(ctx, c.requestShutdown)
	})
	if !started {
		if c.shuttingDown() {
			return ErrShutdown
		}
		return ErrAlreadyStarted
	}
	return nil
}

// Submit validates n and queues it for sending. Only encoding problems and
// queue admission are reported; delivery is asynchronous.
func (c *Client) Submit(n Notification) error {
	if c.shuttingDown() {
		return ErrShutdown
	}
	if err := c.codec.Validate(n.Token, n.Payload); err != nil {
		return err
	}
	if err := frame.ValidateExpiry(n.Expiry); err != nil {
		return err
	}
	if err := c.queue.Push(n.clone()); err != nil {
		if errors.Is(err, ErrQueueClosed) {
			return ErrShutdown
		}
		return err
	}
	c.stats.submitted.Add(1)
	return nil
}

// OnUnsentNotifications registers h to receive, once, the notifications that
// were still unresolved when the client shut down. Handlers run on the
// supervisor goroutine before Shutdown returns.
func (c *Client) OnUnsentNotifications(h func([]Notification)) {
	if h == nil {
		return
	}
	c.hmu.Lock()
	c.unsentHandlers = append(c.unsentHandlers, h)
	c.hmu.Unlock()
}

// OnRejected registers h to learn about notifications the gateway rejected.
func (c *Client) OnRejected(h func(Notification, frame.Status)) {
	if h == nil {
		return
	}
	c.hmu.Lock()
	c.rejectedHandlers = append(c.rejectedHandlers, h)
	c.hmu.Unlock()
}

// Shutdown stops the client and waits until it reached its terminal state or
// ctx is done. Unresolved notifications are handed to OnUnsentNotifications.
func (c *Client) Shutdown(ctx context.Context) error {
	c.requestShutdown()
	c.startOnce.Do(func() {
		// Never started: nothing was sent, report what was queued.
		c.finish(nil)
	})
	select {
	case <-c.done:
		if c.tasks != nil {
			return c.tasks.Wait(ctx)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the client reached its terminal state.
func (c *Client) Done() <-chan struct{} { return c.done }

// Unsent returns the final unresolved set. It is empty until Done is closed.
func (c *Client) Unsent() []Notification {
	select {
	case <-c.done:
	default:
		return nil
	}
	c.hmu.Lock()
	defer c.hmu.Unlock()
	return append([]Notification(nil), c.unsent...)
}

// SetRate changes the send rate limit; perSec <= 0 removes it.
func (c *Client) SetRate(perSec int) {
	if perSec <= 0 {
		c.limiter.SetLimit(rate.Inf)
		return
	}
	c.limiter.SetBurst(perSec)
	c.limiter.SetLimit(rate.Limit(perSec))
}

func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) Stats() Stats {
	return Stats{
		State:           c.State().String(),
		Generation:      c.stats.generation.Load(),
		Queued:          c.queue.Len(),
		Submitted:       c.stats.submitted.Load(),
		Sent:            c.stats.sent.Load(),
		Expired:         c.stats.expired.Load(),
		Replayed:        c.stats.replayed.Load(),
		Rejected:        c.stats.rejected.Load(),
		Evicted:         c.stats.evicted.Load(),
		ConnectFailures: c.stats.connectFailures.Load(),
	}
}

func (c *Client) requestShutdown() {
	c.shutdownOnce.Do(func() {
		close(c.shutdownCh)
		c.queue.Close()
	})
}

func (c *Client) shuttingDown() bool {
	select {
	case <-c.shutdownCh:
		return true
	default:
		return false
	}
}

func (c *Client) setState(to State) {
	from := State(c.state.Swap(int32(to)))
	if !CanTransition(from, to) {
		c.log.Error("illegal state transition", logx.String("from", from.String()), logx.String("to", to.String()))
		return
	}
	c.log.Trace("state transition", logx.String("from", from.String()), logx.String("to", to.String()))
}

// run is the connection supervisor loop:
// Connecting -> Active -> Draining -> Closed -> Connecting ... -> Shutdown.
//
// Every new generation waits for the backoff, whether the dial failed or the
// previous generation ended. The backoff resets only after a generation stayed
// up for at least BackoffMax.
func (c *Client) run() {
	bo := tasks.NewBackoff(c.cfg.BackoffMin, c.cfg.BackoffMax)
	for {
		if c.shuttingDown() {
			c.finish(nil)
			return
		}
		c.setState(StateConnecting)

		conn, err := c.connect(bo.Attempts() + 1)
		if err != nil {
			if c.shuttingDown() {
				c.finish(nil)
				return
			}
			wait := bo.Next()
			c.stats.connectFailures.Add(1)
			c.log.Warn("connect failed; backing off", logx.Err(err), logx.Duration("backoff", wait))
			c.bus.Publish(eventbus.Event{Type: EventConnectFailed, Data: ConnectFailedEvent{
				Attempt: bo.Attempts(),
				Err:     err.Error(),
				Backoff: wait.String(),
			}})
			if !c.sleep(wait) {
				c.finish(nil)
				return
			}
			continue
		}

		opened := time.Now()
		unresolved, final := c.runGeneration(conn)
		if final {
			c.finish(unresolved)
			return
		}
		if time.Since(opened) >= c.cfg.BackoffMax {
			bo.Reset()
		}
		wait := bo.Next()
		c.log.Debug("generation ended; reconnecting", logx.Duration("backoff", wait))
		if !c.sleep(wait) {
			// the replay set is already queued; finish reports it
			c.finish(nil)
			return
		}
	}
}

// sleep waits d and reports false if shutdown was requested first.
func (c *Client) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.shutdownCh:
		return false
	case <-t.C:
		return true
	}
}

func (c *Client) connect(attempt int) (net.Conn, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.shutdownCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		return nil, &ConnectError{Attempt: attempt, Err: err}
	}
	if conn == nil {
		return nil, &ConnectError{Attempt: attempt, Err: errors.New("dialer returned no connection")}
	}
	return conn, nil
}

// runGeneration drives one generation from Active to Closed. It returns the
// unresolved set and true when the client is shutting down; otherwise the
// replay set has already been requeued.
func (c *Client) runGeneration(conn net.Conn) ([]Notification, bool) {
	seq := c.stats.generation.Add(1)
	connID := uuid.NewString()
	log := c.log.With(logx.Uint64("gen", seq), logx.String("conn", connID))
	g := newGeneration(seq, connID, conn, c.cfg.BufferCapacity, log)

	c.setState(StateActive)
	log.Info("generation opened", logx.String("remote", remoteAddr(conn)))
	c.bus.Publish(eventbus.Event{Type: EventGenerationOpened, Data: GenerationEvent{Generation: seq, ConnID: connID}})

	group := tasks.New(context.Background(),
		tasks.WithLogger(log),
		tasks.WithErrorHook(func(name string, err error) {
			// A failing task ends the generation like any other I/O error.
			g.close(ConnectionClosed(err))
		}),
	)
	writerDone := group.Go("writer", func(context.Context) error { return c.writeLoop(g) })
	group.Go("reader", func(context.Context) error {
		c.readLoop(g)
		return nil
	})

	select {
	case <-g.done:
	case <-c.shutdownCh:
		g.stopWrite()
		_ = conn.SetWriteDeadline(time.Now().Add(drainTimeout))
		<-writerDone
		if grace := c.cfg.ShutdownGrace; grace > 0 && g.buf.Len() > 0 {
			t := time.NewTimer(grace)
			select {
			case <-g.done:
			case <-t.C:
			}
			t.Stop()
		}
		g.close(ShutdownRequested())
	}

	c.setState(StateDraining)
	_ = conn.SetWriteDeadline(time.Now().Add(drainTimeout))
	<-writerDone
	snapshot := g.buf.Snapshot()
	sig := g.closeSignal()

	_ = conn.Close()
	_ = group.Wait(context.Background())

	replay := Replay(sig, snapshot)
	c.reportRejected(g, sig, snapshot)

	final := c.shuttingDown()
	var unresolved []Notification
	if final {
		if sig.Cause == CauseShutdownRequested {
			unresolved = Unconfirmed(snapshot)
		} else {
			unresolved = replay
		}
		unresolved = append(unresolved, g.leftover...)
	} else {
		requeue := append(replay, g.leftover...)
		c.queue.PushFront(requeue)
		c.stats.replayed.Add(uint64(len(replay)))
	}

	c.setState(StateClosed)
	log.Info("generation closed",
		logx.String("cause", sig.Cause.String()),
		logx.String("signal", sig.String()),
		logx.Uint32("last_id", g.lastID),
		logx.Int("buffered", len(snapshot)),
		logx.Int("replay", len(replay)),
		logx.Bool("final", final),
	)
	ev := GenerationEvent{
		Generation: seq,
		ConnID:     connID,
		Cause:      sig.Cause,
		Signal:     sig.String(),
		LastID:     g.lastID,
		Buffered:   len(snapshot),
		Replayed:   len(replay),
	}
	if !final && len(replay) > 0 {
		c.bus.Publish(eventbus.Event{Type: EventReplay, Data: ev})
	}
	c.bus.Publish(eventbus.Event{Type: EventGenerationClosed, Data: ev})
	return unresolved, final
}

func (c *Client) reportRejected(g *generation, sig CloseSignal, snapshot []Record) {
	r, ok := Rejected(sig, snapshot)
	if !ok {
		if sig.Cause == CauseProtocolError && sig.FailingID != UnknownID {
			g.log.Warn("rejected notification no longer buffered", logx.Uint32("failing_id", sig.FailingID))
		}
		return
	}
	c.stats.rejected.Add(1)
	c.bus.Publish(eventbus.Event{Type: EventRejected, Data: RejectedEvent{
		Generation: g.seq,
		ID:         r.ID,
		Status:     uint8(sig.Status),
		Reason:     sig.Status.String(),
		Token:      r.Token,
	}})

	c.hmu.Lock()
	hs := slices.Clone(c.rejectedHandlers)
	c.hmu.Unlock()
	for _, h := range hs {
		h(r.Notification, sig.Status)
	}
}

// finish moves the client to its terminal state and reports everything not
// known to be delivered: unresolved first, then whatever was still queued.
func (c *Client) finish(unresolved []Notification) {
	c.setState(StateShutdown)
	unsent := append(unresolved, c.queue.Drain()...)

	c.hmu.Lock()
	c.unsent = unsent
	hs := slices.Clone(c.unsentHandlers)
	c.hmu.Unlock()

	if len(unsent) > 0 {
		if len(hs) == 0 {
			c.log.Warn("unsent notifications discarded; no handler registered", logx.Int("count", len(unsent)))
		}
		for _, h := range hs {
			h(append([]Notification(nil), unsent...))
		}
	}
	c.log.Info("push client shut down", logx.Int("unsent", len(unsent)))
	c.bus.Publish(eventbus.Event{Type: EventShutdown, Data: ShutdownEvent{Unsent: len(unsent)}})
	close(c.done)
}

func remoteAddr(conn net.Conn) string {
	if a := conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}
