package push

import "sync/atomic"

// Stats is a point-in-time view of client counters.
type Stats struct {
	State           string `json:"state"`
	Generation      uint64 `json:"generation"`
	Queued          int    `json:"queued"`
	Submitted       uint64 `json:"submitted"`
	Sent            uint64 `json:"sent"`
	Expired         uint64 `json:"expired"`
	Replayed        uint64 `json:"replayed"`
	Rejected        uint64 `json:"rejected"`
	Evicted         uint64 `json:"evicted"`
	ConnectFailures uint64 `json:"connect_failures"`
}

type counters struct {
	generation      atomic.Uint64
	submitted       atomic.Uint64
	sent            atomic.Uint64
	expired         atomic.Uint64
	replayed        atomic.Uint64
	rejected        atomic.Uint64
	evicted         atomic.Uint64
	connectFailures atomic.Uint64
}
