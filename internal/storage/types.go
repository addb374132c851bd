package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// UnsentRecord is one archived notification.
type UnsentRecord struct {
	At       time.Time // when it was archived
	Reason   string    // e.g. "shutdown"
	Token    []byte
	Payload  []byte
	Expiry   time.Time // zero when the notification never expires
	Priority uint8
}
