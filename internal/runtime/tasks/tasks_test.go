package tasks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestGoReportsErrorAndClosesDone(t *testing.T) {
	t.Parallel()
	var (
		mu    sync.Mutex
		names []string
	)
	g := New(context.Background(), WithErrorHook(func(name string, err error) {
		mu.Lock()
		names = append(names, name)
		mu.Unlock()
	}))

	boom := errors.New("boom")
	done := g.Go("writer", func(ctx context.Context) error { return boom })
	<-done

	mu.Lock()
	if len(names) != 1 || names[0] != "writer" {
		t.Fatalf("hook calls = %v", names)
	}
	mu.Unlock()
	if !errors.Is(g.Err(), boom) {
		t.Fatalf("Err() = %v, want boom", g.Err())
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := g.Wait(ctx); !errors.Is(err, boom) {
		t.Fatalf("Wait() = %v", err)
	}
}

func TestGoRecoversPanic(t *testing.T) {
	t.Parallel()
	var got error
	g := New(context.Background(), WithErrorHook(func(_ string, err error) { got = err }))
	<-g.Go("reader", func(ctx context.Context) error { panic("bad frame") })

	if got == nil || !strings.Contains(got.Error(), "panic: bad frame") {
		t.Fatalf("hook error = %v", got)
	}
	snap := g.Snapshot()
	if len(snap) != 1 || snap[0].Panics != 1 || snap[0].Active != 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestStopCancelsContext(t *testing.T) {
	t.Parallel()
	hookCalled := false
	g := New(context.Background(), WithErrorHook(func(string, error) { hookCalled = true }))
	g.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := g.Stop(ctx); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	if hookCalled {
		t.Fatalf("context cancellation must not be reported as an error")
	}
	if c := g.Counters(); c.Active != 0 || c.Started != 1 {
		t.Fatalf("counters = %+v", c)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	t.Parallel()
	b := NewBackoff(100*time.Millisecond, 400*time.Millisecond)
	bases := []time.Duration{100, 200, 400, 400}
	for i, base := range bases {
		base *= time.Millisecond
		got := b.Next()
		if got < base || got > base+base/5 {
			t.Fatalf("attempt %d: wait %v outside [%v, %v]", i, got, base, base+base/5)
		}
	}
	if b.Attempts() != len(bases) {
		t.Fatalf("Attempts() = %d", b.Attempts())
	}
	b.Reset()
	if got := b.Next(); got > 120*time.Millisecond {
		t.Fatalf("after Reset wait = %v", got)
	}
}
