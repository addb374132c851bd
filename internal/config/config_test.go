package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pushconn/internal/storage"
	"pushconn/pkg/push"
)

const sampleYAML = `
gateway:
  address: gateway.push.example.com:2195
  dial_timeout: 3s
client:
  buffer_capacity: 50
  rate_per_sec: 20
  backoff_min: 100ms
  backoff_max: 2s
  shutdown_grace: 500ms
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./data/unsent.db
stats_schedule: "@every 30s"
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadYAMLResolves(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "pushconn.yaml", sampleYAML))
	cfg, err := m.Load(context.Background())
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get should return the committed config")
	}

	r, err := Resolve(cfg)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if r.Gateway.Address != "gateway.push.example.com:2195" || r.Gateway.DialTimeout != 3*time.Second {
		t.Fatalf("unexpected gateway: %+v", r.Gateway)
	}
	want := push.Config{
		BufferCapacity: 50,
		TokenSize:      32,
		MaxPayload:     2048,
		RatePerSec:     20,
		BackoffMin:     100 * time.Millisecond,
		BackoffMax:     2 * time.Second,
		ShutdownGrace:  500 * time.Millisecond,
	}
	if r.Client != want {
		t.Fatalf("client = %+v, want %+v", r.Client, want)
	}
	if r.Logging.Level != "debug" || !r.Logging.Console {
		t.Fatalf("unexpected logging: %+v", r.Logging)
	}
	if r.Storage != (storage.Config{Driver: "sqlite", Path: "./data/unsent.db"}) {
		t.Fatalf("unexpected storage: %+v", r.Storage)
	}
	if r.StatsSchedule != "@every 30s" {
		t.Fatalf("StatsSchedule = %q", r.StatsSchedule)
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name, file, body string
	}{
		{"unknown field", "c.json", `{"gateway":{"address":"a:1"},"bogus":1}`},
		{"trailing data", "c.json", `{"gateway":{"address":"a:1"}} {}`},
		{"bad yaml", "c.yaml", "gateway: [unclosed"},
		{"bad extension", "c.toml", `gateway = 1`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewManager(writeFile(t, tc.file, tc.body)).Parse(); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

func TestResolveValidation(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"missing address", Config{}, "gateway.address"},
		{"half key pair", Config{Gateway: GatewayConfig{Address: "a:1", CertFile: "c.pem"}}, "cert_file"},
		{"negative queue", Config{Gateway: GatewayConfig{Address: "a:1"}, Client: ClientConfig{QueueSize: -1}}, "client.queue_size"},
		{"bad duration", Config{Gateway: GatewayConfig{Address: "a:1"}, Client: ClientConfig{BackoffMin: "soon"}}, "client.backoff_min"},
		{"backoff order", Config{Gateway: GatewayConfig{Address: "a:1"}, Client: ClientConfig{BackoffMin: "5s", BackoffMax: "1s"}}, "backoff_max"},
		{"payload limit", Config{Gateway: GatewayConfig{Address: "a:1"}, Client: ClientConfig{MaxPayload: 70000}}, "max_payload"},
		{"token size limit", Config{Gateway: GatewayConfig{Address: "a:1"}, Client: ClientConfig{TokenSize: 70000}}, "token_size"},
		{"bad schedule", Config{Gateway: GatewayConfig{Address: "a:1"}, StatsSchedule: "every minute"}, "stats_schedule"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := tc.cfg
			_, err := Resolve(&cfg)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Resolve error = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestResolveDefaults(t *testing.T) {
	t.Parallel()
	r, err := Resolve(&Config{Gateway: GatewayConfig{Address: "a:1"}})
	if err != nil {
		t.Fatal(err)
	}
	if r.Client.BufferCapacity != push.DefaultBufferCapacity || r.Client.BackoffMax != 30*time.Second {
		t.Fatalf("unexpected defaults: %+v", r.Client)
	}
	if r.StatsSchedule != DefaultStatsSchedule {
		t.Fatalf("StatsSchedule = %q", r.StatsSchedule)
	}
	if r.Storage.Driver != "" {
		t.Fatalf("storage should be disabled, got %+v", r.Storage)
	}

	r, err = Resolve(&Config{Gateway: GatewayConfig{Address: "a:1"}, StatsSchedule: "OFF"})
	if err != nil || r.StatsSchedule != "" {
		t.Fatalf("stats off: schedule=%q err=%v", r.StatsSchedule, err)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Gateway: GatewayConfig{Address: "a:1"}, Client: ClientConfig{RatePerSec: 10}}
	newCfg := &Config{
		Gateway: GatewayConfig{Address: "a:1"},
		Client:  ClientConfig{RatePerSec: 5},
		Logging: LoggingConfig{Level: "warn"},
	}
	changes, attrs := SummarizeConfigChange(oldCfg, newCfg)
	want := []Change{{"client.rate_per_sec", ScopeLive}, {"logging", ScopeLive}}
	if len(changes) != len(want) {
		t.Fatalf("changes = %+v, want %+v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Fatalf("changes[%d] = %+v, want %+v", i, changes[i], want[i])
		}
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}

	changes, _ = SummarizeConfigChange(oldCfg, oldCfg)
	if len(changes) != 0 {
		t.Fatalf("identical configs reported changes: %+v", changes)
	}
}

func TestWatchPublishesReload(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "pushconn.json", `{"gateway":{"address":"a:1"},"client":{"rate_per_sec":1}}`)
	m := NewManager(path)
	if _, err := m.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.After(5 * time.Second)
	// writes must land further apart than reloadDebounce or each one
	// restarts the wait
	tick := time.NewTicker(4 * reloadDebounce)
	defer tick.Stop()
	for {
		// rewrite until the watcher is up and sees it
		if err := os.WriteFile(path, []byte(`{"gateway":{"address":"a:1"},"client":{"rate_per_sec":7}}`), 0o600); err != nil {
			t.Fatal(err)
		}
		select {
		case cfg := <-ch:
			if cfg.Client.RatePerSec != 7 {
				t.Fatalf("reloaded rate = %d", cfg.Client.RatePerSec)
			}
			return
		case <-tick.C:
		case <-deadline:
			t.Fatal("no reload published")
		}
	}
}

func TestWatchSkipsInvalidReload(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "pushconn.json", `{"gateway":{"address":"a:1"}}`)
	m := NewManager(path)
	if _, err := m.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(`{"gateway":{"address":""}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	m.reload(context.Background())
	if m.Get().Gateway.Address != "a:1" {
		t.Fatalf("invalid config was committed: %+v", m.Get().Gateway)
	}
}
