package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "250ms", "10s", "1m").
type Config struct {
	Gateway GatewayConfig  `json:"gateway"`
	Client  ClientConfig   `json:"client"`
	Logging LoggingConfig  `json:"logging"`
	Storage *StorageConfig `json:"storage,omitempty"`

	// StatsSchedule is a cron spec (descriptors like "@every 1m" allowed).
	// Empty means "@every 1m"; "off" disables periodic stats.
	StatsSchedule string `json:"stats_schedule,omitempty"`
}

// GatewayConfig locates the push gateway and the client identity.
//
// Example:
//
//	"gateway": {
//	  "address": "gateway.push.example.com:2195",
//	  "cert_file": "./certs/client.pem",
//	  "key_file": "./certs/client.key"
//	}
type GatewayConfig struct {
	Address            string `json:"address"`
	CertFile           string `json:"cert_file,omitempty"`
	KeyFile            string `json:"key_file,omitempty"`
	CAFile             string `json:"ca_file,omitempty"`
	ServerName         string `json:"server_name,omitempty"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify,omitempty"`
	DialTimeout        string `json:"dial_timeout,omitempty"`
	KeepAlive          string `json:"keep_alive,omitempty"`
}

// ClientConfig tunes the connection supervisor.
//
// Defaults (when fields are omitted/zero):
//   - buffer_capacity: 1000
//   - queue_size: 0 (unbounded)
//   - token_size: 32
//   - max_payload: 2048
//   - rate_per_sec: 0 (unlimited)
//   - backoff_min: "250ms"
//   - backoff_max: "30s"
//   - shutdown_grace: "0s"
type ClientConfig struct {
	BufferCapacity int    `json:"buffer_capacity,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	TokenSize      int    `json:"token_size,omitempty"`
	MaxPayload     int    `json:"max_payload,omitempty"`
	RatePerSec     int    `json:"rate_per_sec,omitempty"`
	BackoffMin     string `json:"backoff_min,omitempty"`
	BackoffMax     string `json:"backoff_max,omitempty"`
	ShutdownGrace  string `json:"shutdown_grace,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls where unsent notifications are archived at shutdown.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/unsent.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}
