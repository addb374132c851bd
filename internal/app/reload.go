package app

import (
	"context"
	"strings"

	"pushconn/internal/config"
	logx "pushconn/pkg/logx"
)

// reloadLoop applies hot-reloadable sections. Sections that need a restart
// are only reported.
func (a *App) reloadLoop(ctx context.Context) error {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)

	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return nil
		case next, ok := <-sub:
			if !ok {
				return nil
			}
			// keep only the newest of a burst
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(last, next)
			last = next
		}
	}
}

func (a *App) applyConfig(prev, next *config.Config) {
	changes, attrs := config.SummarizeConfigChange(prev, next)
	if len(changes) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	res, err := config.Resolve(next)
	if err != nil {
		a.log.Warn("reloaded config invalid; keeping previous", logx.Err(err))
		return
	}

	var live, restart []string
	for _, c := range changes {
		if c.Scope == config.ScopeRestart {
			restart = append(restart, c.Section)
			continue
		}
		live = append(live, c.Section)
		switch c.Section {
		case "logging":
			a.logs.Apply(res.Logging)
		case "client.rate_per_sec":
			a.client.SetRate(res.Client.RatePerSec)
		case "stats_schedule":
			a.rescheduleStats(res.StatsSchedule)
		}
	}
	if len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("applied", strings.Join(live, ","))}, attrs...)
	a.log.Info("config applied", fields...)
}
