package config

import (
	"sort"
	"strings"

	logx "pushconn/pkg/logx"
)

// Reload scope of each section.
const (
	ScopeLive    = "live"    // applied to the running process
	ScopeRestart = "restart" // takes effect on the next start
)

// Change describes one changed top-level section.
type Change struct {
	Section string
	Scope   string
}

// SummarizeConfigChange returns the changed sections (sorted by name) and
// safe structured attrs for logging. Certificate paths are reported as
// set/unset only.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]Change, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var changes []Change
	attrs := make([]logx.Field, 0, 12)

	og, ng := oldCfg.Gateway, newCfg.Gateway
	if og != ng {
		changes = append(changes, Change{"gateway", ScopeRestart})
		attrs = append(attrs,
			logx.String("gateway.address", strings.TrimSpace(ng.Address)),
			logx.Bool("gateway.cert_set", ng.CertFile != ""),
			logx.Bool("gateway.ca_set", ng.CAFile != ""),
		)
	}

	oc, nc := oldCfg.Client, newCfg.Client
	if oc.RatePerSec != nc.RatePerSec {
		changes = append(changes, Change{"client.rate_per_sec", ScopeLive})
		attrs = append(attrs, logx.Int("client.rate_per_sec", nc.RatePerSec))
	}
	oc.RatePerSec, nc.RatePerSec = 0, 0
	if oc != nc {
		changes = append(changes, Change{"client", ScopeRestart})
		attrs = append(attrs,
			logx.Int("client.buffer_capacity", nc.BufferCapacity),
			logx.Int("client.queue_size", nc.QueueSize),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changes = append(changes, Change{"logging", ScopeLive})
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	var oldS, newS StorageConfig
	if oldCfg.Storage != nil {
		oldS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		newS = *newCfg.Storage
	}
	if oldS != newS {
		changes = append(changes, Change{"storage", ScopeRestart})
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newS.Path) != ""),
		)
	}

	if strings.TrimSpace(oldCfg.StatsSchedule) != strings.TrimSpace(newCfg.StatsSchedule) {
		changes = append(changes, Change{"stats_schedule", ScopeLive})
		attrs = append(attrs, logx.String("stats_schedule", strings.TrimSpace(newCfg.StatsSchedule)))
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Section < changes[j].Section })
	return changes, attrs
}
