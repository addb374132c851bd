package push

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"pushconn/pkg/frame"
	logx "pushconn/pkg/logx"
)

var errIDSpaceExhausted = errors.New("identifier space exhausted")

// generation is one connection lifetime: a socket, its writer and reader, a
// fresh id counter and a fresh in-flight buffer.
type generation struct {
	seq    uint64
	connID string
	conn   net.Conn
	buf    *InflightBuffer
	log    logx.Logger

	once   sync.Once
	done   chan struct{}
	signal CloseSignal // written once before done is closed

	// writeCtx is cancelled when the writer must stop taking submissions,
	// either because the generation closed or because shutdown began.
	writeCtx  context.Context
	stopWrite context.CancelFunc

	// Owned by the writer; read by the supervisor only after the writer exits.
	lastID   uint32
	leftover []Notification
}

func newGeneration(seq uint64, connID string, conn net.Conn, capacity int, log logx.Logger) *generation {
	ctx, cancel := context.WithCancel(context.Background())
	return &generation{
		seq:       seq,
		connID:    connID,
		conn:      conn,
		buf:       NewInflightBuffer(capacity),
		log:       log,
		done:      make(chan struct{}),
		writeCtx:  ctx,
		stopWrite: cancel,
	}
}

// close records sig as the generation's close signal. Only the first call
// has any effect; it reports whether this call won.
func (g *generation) close(sig CloseSignal) bool {
	won := false
	g.once.Do(func() {
		g.signal = sig
		close(g.done)
		g.stopWrite()
		won = true
	})
	return won
}

// closeSignal must only be called after done is closed.
func (g *generation) closeSignal() CloseSignal { return g.signal }

func (g *generation) closed() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

// writeLoop is the generation's writer. It takes submissions one at a time,
// assigns the next id, writes the frame with a single Write call and records
// it in the in-flight buffer. A stop request is only observed between frames.
func (c *Client) writeLoop(g *generation) error {
	ctx := g.writeCtx
	var buf []byte
	for {
		n, err := c.queue.Pop(ctx)
		if err != nil {
			// Generation ending or queue closed for shutdown.
			return nil
		}
		if ctx.Err() != nil {
			g.leftover = append(g.leftover, n)
			return nil
		}
		if err := c.limiter.Wait(ctx); err != nil {
			g.leftover = append(g.leftover, n)
			return nil
		}
		if n.expired(time.Now()) {
			c.stats.expired.Add(1)
			g.log.Debug("dropping expired notification", logx.Time("expiry", n.Expiry))
			continue
		}
		if g.lastID == math.MaxUint32 {
			g.leftover = append(g.leftover, n)
			g.close(ConnectionClosed(errIDSpaceExhausted))
			return nil
		}

		s := Sequenced{Notification: n, ID: g.lastID + 1}
		buf, err = c.codec.Append(buf[:0], s.wire())
		if err != nil {
			// Submit validates with the same codec, so this is a bug, not input.
			g.log.Error("encode failed; notification dropped", logx.Err(err))
			continue
		}
		g.lastID = s.ID

		_, werr := g.conn.Write(buf)
		// Recorded even when the write failed: part of the frame may have
		// reached the gateway, so it stays unresolved.
		if g.buf.Append(s) {
			c.stats.evicted.Add(1)
		}
		if werr != nil {
			werr = fmt.Errorf("write id %d: %w", s.ID, werr)
			g.close(ConnectionClosed(werr))
			return werr
		}
		c.stats.sent.Add(1)
	}
}

// readLoop is the generation's reader. The gateway only ever speaks to
// report a failure, so a single frame or the end of the stream ends the
// generation.
func (c *Client) readLoop(g *generation) {
	f, err := frame.ReadErrorFrame(g.conn)
	if err != nil {
		if g.close(ConnectionClosed(err)) {
			g.log.Debug("gateway stream ended", logx.Err(err))
		}
		return
	}
	if g.close(ProtocolError(f.Status, f.FailingID)) {
		g.log.Warn("gateway reported error",
			logx.Int("status", int(f.Status)),
			logx.String("reason", f.Status.String()),
			logx.Uint32("failing_id", f.FailingID),
		)
	}
}
