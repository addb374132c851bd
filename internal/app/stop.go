package app

import (
	"context"
	"fmt"
	"time"

	logx "pushconn/pkg/logx"
)

// Stop shuts the client down (archiving what it could not deliver) and then
// releases the remaining resources. Each step is bounded so one component
// cannot stall the rest. Only the first call does anything.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	var err error
	a.stopOnce.Do(func() { err = a.stop(ctx, reason) })
	return err
}

func (a *App) stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if err := a.sd.Stopping(); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}

	var firstErr error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: %w", name, err)
				}
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", name, stepCtx.Err())
			}
		}
	}

	grace := a.res.Client.ShutdownGrace
	step("push", 10*time.Second+grace, a.client.Shutdown)
	step("cron", 2*time.Second, func(context.Context) error {
		<-a.cron.Stop().Done()
		return nil
	})
	if a.group != nil {
		step("tasks", 2*time.Second, a.group.Stop)
	}
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	s := a.client.Stats()
	a.log.Info("stopped",
		logx.Uint64("sent", s.Sent),
		logx.Int("unsent", len(a.client.Unsent())),
	)
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return firstErr
}
