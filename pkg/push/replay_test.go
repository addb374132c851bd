package push

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"pushconn/pkg/frame"
)

func note(i int) Notification {
	return Notification{Token: bytes.Repeat([]byte{byte(i)}, frame.DefaultTokenSize), Payload: []byte(fmt.Sprintf("p%d", i))}
}

// records builds a snapshot with ids from..to whose payloads are "p<id>".
func records(from, to int) []Record {
	var out []Record
	for i := from; i <= to; i++ {
		out = append(out, Record{Sequenced: Sequenced{Notification: note(i), ID: uint32(i)}, Position: uint64(i - from)})
	}
	return out
}

func payloads(ns []Notification) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = string(n.Payload)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestReplay(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		sig  CloseSignal
		snap []Record
		want []string
	}{
		{name: "protocol error mid", sig: ProtocolError(frame.StatusInvalidToken, 3), snap: records(1, 5), want: []string{"p4", "p5"}},
		{name: "protocol error newest", sig: ProtocolError(frame.StatusInvalidToken, 5), snap: records(1, 5), want: []string{}},
		{name: "protocol error oldest", sig: ProtocolError(frame.StatusProcessingError, 1), snap: records(1, 5), want: []string{"p2", "p3", "p4", "p5"}},
		{name: "protocol error id zero", sig: ProtocolError(frame.StatusShutdown, 0), snap: records(1, 3), want: []string{"p1", "p2", "p3"}},
		{name: "failing id evicted", sig: ProtocolError(frame.StatusInvalidToken, 2), snap: records(4, 6), want: []string{"p4", "p5", "p6"}},
		{name: "failing id never sent", sig: ProtocolError(frame.StatusInvalidToken, 9), snap: records(1, 3), want: []string{"p1", "p2", "p3"}},
		{name: "protocol error empty", sig: ProtocolError(frame.StatusInvalidToken, 1), snap: nil, want: []string{}},
		{name: "connection closed", sig: ConnectionClosed(errors.New("EOF")), snap: records(1, 5), want: []string{"p1", "p2", "p3", "p4", "p5"}},
		{name: "shutdown", sig: ShutdownRequested(), snap: records(1, 5), want: []string{}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := payloads(Replay(tt.sig, tt.snap))
			if !equalStrings(got, tt.want) {
				t.Fatalf("Replay = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRejected(t *testing.T) {
	t.Parallel()
	snap := records(1, 5)
	r, ok := Rejected(ProtocolError(frame.StatusInvalidToken, 3), snap)
	if !ok || r.ID != 3 || string(r.Payload) != "p3" {
		t.Fatalf("Rejected = %+v, %v", r, ok)
	}
	if _, ok := Rejected(ProtocolError(frame.StatusInvalidToken, 9), snap); ok {
		t.Fatalf("expected no record for unknown id")
	}
	if _, ok := Rejected(ConnectionClosed(nil), snap); ok {
		t.Fatalf("expected no record for connection close")
	}
}

func TestCloseSignalString(t *testing.T) {
	t.Parallel()
	got := ProtocolError(frame.StatusInvalidToken, 3).String()
	if got != "protocol_error(status=8 invalid token, id=3)" {
		t.Fatalf("String() = %q", got)
	}
	if got := ShutdownRequested().String(); got != "shutdown_requested" {
		t.Fatalf("String() = %q", got)
	}
}

func TestInflightBufferEvictsOldest(t *testing.T) {
	t.Parallel()
	b := NewInflightBuffer(3)
	for i := 1; i <= 4; i++ {
		evicted := b.Append(Sequenced{Notification: note(i), ID: uint32(i)})
		if want := i == 4; evicted != want {
			t.Fatalf("append %d: evicted = %v, want %v", i, evicted, want)
		}
	}
	if b.Len() != 3 || b.Cap() != 3 || b.Evicted() != 1 {
		t.Fatalf("Len=%d Cap=%d Evicted=%d", b.Len(), b.Cap(), b.Evicted())
	}
	snap := b.Snapshot()
	for i, r := range snap {
		if r.ID != uint32(i+2) {
			t.Fatalf("snapshot[%d].ID = %d, want %d", i, r.ID, i+2)
		}
		if i > 0 && r.Position <= snap[i-1].Position {
			t.Fatalf("positions not increasing: %d then %d", snap[i-1].Position, r.Position)
		}
	}
	// The evicted id is gone from any replay.
	for _, n := range Replay(ConnectionClosed(nil), snap) {
		if string(n.Payload) == "p1" {
			t.Fatalf("evicted notification replayed")
		}
	}

	b.Clear()
	if b.Len() != 0 || len(b.Snapshot()) != 0 {
		t.Fatalf("Clear did not empty buffer")
	}
}

func TestInflightBufferNeverExceedsCapacity(t *testing.T) {
	t.Parallel()
	const c = 16
	b := NewInflightBuffer(c)
	for i := 1; i <= 5*c+3; i++ {
		b.Append(Sequenced{Notification: note(i), ID: uint32(i)})
		if b.Len() > c {
			t.Fatalf("Len() = %d exceeds capacity %d", b.Len(), c)
		}
	}
	snap := b.Snapshot()
	if snap[0].ID != uint32(4*c+4) || snap[len(snap)-1].ID != uint32(5*c+3) {
		t.Fatalf("unexpected window [%d, %d]", snap[0].ID, snap[len(snap)-1].ID)
	}
}

func TestQueuePushFrontKeepsReplayAhead(t *testing.T) {
	t.Parallel()
	q := NewQueue(0)
	_ = q.Push(note(6))
	_ = q.Push(note(7))
	q.PushFront([]Notification{note(4), note(5)})

	var got []string
	for q.Len() > 0 {
		n, err := q.Pop(context.Background())
		if err != nil {
			t.Fatalf("Pop error: %v", err)
		}
		got = append(got, string(n.Payload))
	}
	if want := []string{"p4", "p5", "p6", "p7"}; !equalStrings(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestQueueLimitAndClose(t *testing.T) {
	t.Parallel()
	q := NewQueue(1)
	if err := q.Push(note(1)); err != nil {
		t.Fatalf("Push error: %v", err)
	}
	if err := q.Push(note(2)); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Push over limit = %v, want ErrQueueFull", err)
	}
	// Requeue bypasses the limit.
	q.PushFront([]Notification{note(0)})
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}

	q.Close()
	if err := q.Push(note(3)); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Push after Close = %v", err)
	}
	if n, err := q.Pop(context.Background()); err != nil || string(n.Payload) != "p0" {
		t.Fatalf("Pop after Close = %q, %v", n.Payload, err)
	}
	if rest := q.Drain(); len(rest) != 1 || string(rest[0].Payload) != "p1" {
		t.Fatalf("Drain = %v", payloads(rest))
	}
	if _, err := q.Pop(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Pop on closed empty queue = %v", err)
	}
}

func TestQueuePopBlocksUntilPushOrCancel(t *testing.T) {
	t.Parallel()
	q := NewQueue(0)

	got := make(chan string, 1)
	go func() {
		n, err := q.Pop(context.Background())
		if err == nil {
			got <- string(n.Payload)
		}
	}()
	time.Sleep(10 * time.Millisecond)
	_ = q.Push(note(1))
	select {
	case p := <-got:
		if p != "p1" {
			t.Fatalf("Pop = %q", p)
		}
	case <-time.After(time.Second):
		t.Fatalf("Pop did not wake up")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Pop(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Pop with cancelled ctx = %v", err)
	}
}

func TestStateTransitions(t *testing.T) {
	t.Parallel()
	legal := [][2]State{
		{StateIdle, StateConnecting},
		{StateConnecting, StateConnecting},
		{StateConnecting, StateActive},
		{StateConnecting, StateShutdown},
		{StateActive, StateDraining},
		{StateDraining, StateClosed},
		{StateClosed, StateConnecting},
		{StateClosed, StateShutdown},
	}
	for _, tr := range legal {
		if !CanTransition(tr[0], tr[1]) {
			t.Fatalf("%s -> %s should be legal", tr[0], tr[1])
		}
	}
	illegal := [][2]State{
		{StateActive, StateConnecting},
		{StateActive, StateShutdown},
		{StateDraining, StateConnecting},
		{StateShutdown, StateConnecting},
	}
	for _, tr := range illegal {
		if CanTransition(tr[0], tr[1]) {
			t.Fatalf("%s -> %s should be illegal", tr[0], tr[1])
		}
	}
}
