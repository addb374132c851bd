package tasks

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	logx "pushconn/pkg/logx"
)

// Group runs named goroutines tied to a shared context.
//   - Panic recovery (a panic becomes the task's error)
//   - Optional error hook, called once per failed task
//   - A done channel per task so callers can wait on one task only
//   - Graceful stop with ctx-aware waiting
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc

	started uint64
	active  int64

	log      logx.Logger
	onErr    func(name string, err error)
	errOnce  sync.Once
	firstErr atomic.Value // stores error
	doneOnce sync.Once
	doneCh   chan struct{}
	wg       sync.WaitGroup

	mu    sync.Mutex
	stats map[string]*taskStats
}

type Option func(*Group)

// Counters is a best-effort view of the group, not a synchronization primitive.
type Counters struct {
	Active  int64  `json:"active"`
	Started uint64 `json:"started"`
}

// TaskStats aggregates runs of tasks sharing a name.
type TaskStats struct {
	Name        string        `json:"name"`
	Active      int64         `json:"active"`
	Started     uint64        `json:"started"`
	Panics      uint64        `json:"panics"`
	LastErr     string        `json:"last_err,omitempty"`
	LastRuntime time.Duration `json:"last_runtime"`
}

type taskStats struct {
	started     uint64
	active      int64
	panics      uint64
	lastErr     string
	lastRuntime time.Duration
}

func WithLogger(log logx.Logger) Option {
	return func(g *Group) { g.log = log }
}

// WithErrorHook installs fn, called from the failing goroutine with the
// task's error (panics included). Context cancellation is not an error.
func WithErrorHook(fn func(name string, err error)) Option {
	return func(g *Group) { g.onErr = fn }
}

func New(parent context.Context, opts ...Option) *Group {
	ctx, cancel := context.WithCancel(parent)
	g := &Group{
		ctx:    ctx,
		cancel: cancel,
		doneCh: make(chan struct{}),
		stats:  map[string]*taskStats{},
	}
	for _, o := range opts {
		o(g)
	}
	if g.log.IsZero() {
		g.log = logx.Nop()
	}
	return g
}

func (g *Group) Context() context.Context { return g.ctx }

// Err returns the first task error, if any.
func (g *Group) Err() error {
	if err, ok := g.firstErr.Load().(error); ok {
		return err
	}
	return nil
}

func (g *Group) Counters() Counters {
	return Counters{
		Active:  atomic.LoadInt64(&g.active),
		Started: atomic.LoadUint64(&g.started),
	}
}

// Snapshot returns per-name task stats sorted by name.
func (g *Group) Snapshot() []TaskStats {
	g.mu.Lock()
	out := make([]TaskStats, 0, len(g.stats))
	for name, st := range g.stats {
		out = append(out, TaskStats{
			Name:        name,
			Active:      st.active,
			Started:     st.started,
			Panics:      st.panics,
			LastErr:     st.lastErr,
			LastRuntime: st.lastRuntime,
		})
	}
	g.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (g *Group) statsFor(name string) *taskStats {
	st := g.stats[name]
	if st == nil {
		st = &taskStats{}
		g.stats[name] = st
	}
	return st
}

// Go starts fn in its own goroutine. The returned channel is closed once fn
// has returned (or panicked) and its error, if any, has been reported.
func (g *Group) Go(name string, fn func(ctx context.Context) error) <-chan struct{} {
	done := make(chan struct{})
	if fn == nil {
		close(done)
		return done
	}
	atomic.AddUint64(&g.started, 1)
	atomic.AddInt64(&g.active, 1)
	g.wg.Add(1)

	g.mu.Lock()
	st := g.statsFor(name)
	st.started++
	st.active++
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		defer close(done)
		defer atomic.AddInt64(&g.active, -1)

		startedAt := time.Now()
		err := g.run(name, fn)

		g.mu.Lock()
		st.active--
		st.lastRuntime = time.Since(startedAt)
		if err != nil {
			st.lastErr = err.Error()
		}
		g.mu.Unlock()

		if err == nil {
			g.log.Debug("task stopped", logx.String("task", name))
			return
		}
		err = fmt.Errorf("%s: %w", name, err)
		g.errOnce.Do(func() { g.firstErr.Store(err) })
		if g.onErr != nil {
			g.onErr(name, err)
		}
	}()
	return done
}

func (g *Group) run(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			g.mu.Lock()
			g.statsFor(name).panics++
			g.mu.Unlock()
			g.log.Error("task panicked", logx.String("task", name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	g.log.Debug("task started", logx.String("task", name))
	err = fn(g.ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (g *Group) Stop(ctx context.Context) error {
	g.cancel()
	return g.Wait(ctx)
}

// Wait blocks until every task has returned or ctx is done.
func (g *Group) Wait(ctx context.Context) error {
	g.doneOnce.Do(func() {
		go func() {
			g.wg.Wait()
			close(g.doneCh)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-g.doneCh:
		return g.Err()
	}
}
