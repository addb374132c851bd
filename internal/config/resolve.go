package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"pushconn/internal/storage"
	"pushconn/internal/transport/tlsdial"
	"pushconn/pkg/frame"
	logx "pushconn/pkg/logx"
	"pushconn/pkg/push"
)

const (
	DefaultStatsSchedule = "@every 1m"
	StatsOff             = "off"
)

// StatsParser parses stats_schedule; seconds are optional.
var StatsParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Resolved holds typed settings derived from a Config.
type Resolved struct {
	Gateway       tlsdial.Config
	Client        push.Config
	Logging       logx.Config
	Storage       storage.Config
	StatsSchedule string // empty when disabled
}

// Resolve validates cfg and converts it into component settings.
func Resolve(cfg *Config) (Resolved, error) {
	var r Resolved
	if cfg == nil {
		return r, errors.New("config is nil")
	}
	var errs []error
	dur := func(path, raw string, def time.Duration) time.Duration {
		d, err := ParseDurationOrDefault(path, raw, def)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	g := cfg.Gateway
	if strings.TrimSpace(g.Address) == "" {
		errs = append(errs, errors.New("gateway.address is required"))
	}
	if (g.CertFile == "") != (g.KeyFile == "") {
		errs = append(errs, errors.New("gateway.cert_file and gateway.key_file must be set together"))
	}
	r.Gateway = tlsdial.Config{
		Address:            strings.TrimSpace(g.Address),
		CertFile:           g.CertFile,
		KeyFile:            g.KeyFile,
		CAFile:             g.CAFile,
		ServerName:         g.ServerName,
		InsecureSkipVerify: g.InsecureSkipVerify,
		DialTimeout:        dur("gateway.dial_timeout", g.DialTimeout, 10*time.Second),
		KeepAlive:          dur("gateway.keep_alive", g.KeepAlive, 30*time.Second),
	}

	c := cfg.Client
	for path, v := range map[string]int{
		"client.buffer_capacity": c.BufferCapacity,
		"client.queue_size":      c.QueueSize,
		"client.token_size":      c.TokenSize,
		"client.max_payload":     c.MaxPayload,
		"client.rate_per_sec":    c.RatePerSec,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must be >= 0", path))
		}
	}
	if c.MaxPayload > 1<<16-1 {
		errs = append(errs, fmt.Errorf("client.max_payload must be <= %d", 1<<16-1))
	}
	if c.TokenSize > 1<<16-1 {
		errs = append(errs, fmt.Errorf("client.token_size must be <= %d", 1<<16-1))
	}
	r.Client = push.Config{
		BufferCapacity: orDefault(c.BufferCapacity, push.DefaultBufferCapacity),
		QueueSize:      c.QueueSize,
		TokenSize:      orDefault(c.TokenSize, frame.DefaultTokenSize),
		MaxPayload:     orDefault(c.MaxPayload, frame.DefaultMaxPayload),
		RatePerSec:     c.RatePerSec,
		BackoffMin:     dur("client.backoff_min", c.BackoffMin, 250*time.Millisecond),
		BackoffMax:     dur("client.backoff_max", c.BackoffMax, 30*time.Second),
		ShutdownGrace:  dur("client.shutdown_grace", c.ShutdownGrace, 0),
	}
	if r.Client.BackoffMax < r.Client.BackoffMin {
		errs = append(errs, errors.New("client.backoff_max must be >= client.backoff_min"))
	}

	r.Logging = LoggingToLogx(cfg.Logging)

	if st := cfg.Storage; st != nil {
		r.Storage = storage.Config{
			Driver:      st.Driver,
			Path:        st.Path,
			BusyTimeout: dur("storage.busy_timeout", st.BusyTimeout, 0),
		}
	}

	switch s := strings.TrimSpace(cfg.StatsSchedule); {
	case strings.EqualFold(s, StatsOff):
	case s == "":
		r.StatsSchedule = DefaultStatsSchedule
	default:
		if _, err := StatsParser.Parse(s); err != nil {
			errs = append(errs, fmt.Errorf("stats_schedule: %w", err))
		}
		r.StatsSchedule = s
	}

	return r, errors.Join(errs...)
}

// Validate is a Manager validator that rejects configs Resolve cannot use.
func Validate(_ context.Context, cfg *Config) error {
	_, err := Resolve(cfg)
	return err
}

func LoggingToLogx(l LoggingConfig) logx.Config {
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
