package app

import (
	"context"
	"errors"
	"io"
	"time"

	"pushconn/internal/ingest"
	logx "pushconn/pkg/logx"
	"pushconn/pkg/push"
)

// queueFullRetry is the pause before resubmitting when the queue is full.
const queueFullRetry = 50 * time.Millisecond

// Feed submits every notification read from r until EOF, ctx is done, or the
// client shuts down. Malformed lines and notifications the client refuses
// are logged and skipped. It returns the number submitted.
func (a *App) Feed(ctx context.Context, r io.Reader) (int, error) {
	in := ingest.NewReader(r, 0)
	submitted := 0
	for {
		n, err := in.Next()
		if errors.Is(err, io.EOF) {
			a.log.Info("input finished", logx.Int("submitted", submitted), logx.Int("lines", in.Line()))
			return submitted, nil
		}
		var le *ingest.LineError
		if errors.As(err, &le) {
			a.log.Warn("skipping malformed input line", logx.Int("line", le.Line), logx.Err(le.Err))
			continue
		}
		if err != nil {
			return submitted, err
		}

		err = a.submit(ctx, n)
		switch {
		case err == nil:
			submitted++
		case errors.Is(err, push.ErrShutdown), ctx.Err() != nil:
			return submitted, err
		default:
			a.log.Warn("notification refused", logx.Int("line", in.Line()), logx.Err(err))
		}
	}
}

func (a *App) submit(ctx context.Context, n push.Notification) error {
	for {
		err := a.client.Submit(n)
		if !errors.Is(err, push.ErrQueueFull) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(queueFullRetry):
		}
	}
}
