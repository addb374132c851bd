package push

import (
	"time"

	"pushconn/pkg/frame"
)

// Notification is a caller payload addressed to one device.
// The client copies Token and Payload on Submit; later changes by the caller
// are not observed.
type Notification struct {
	Token   []byte
	Payload []byte

	// Expiry, when set, is sent to the gateway and also makes the client drop
	// the notification instead of sending it once the moment has passed.
	Expiry time.Time

	// Priority is sent only when non-zero.
	Priority uint8
}

func (n Notification) clone() Notification {
	n.Token = append([]byte(nil), n.Token...)
	n.Payload = append([]byte(nil), n.Payload...)
	return n
}

func (n Notification) expired(now time.Time) bool {
	return !n.Expiry.IsZero() && !now.Before(n.Expiry)
}

// Sequenced is a Notification with the id it was written under.
// Ids are assigned when written, never at submission.
type Sequenced struct {
	Notification
	ID uint32
}

func (s Sequenced) wire() frame.Notification {
	return frame.Notification{
		Token:    s.Token,
		Payload:  s.Payload,
		ID:       s.ID,
		Expiry:   s.Expiry,
		Priority: s.Priority,
	}
}

// Record is a Sequenced notification retained by the in-flight buffer.
// Position counts appends since the buffer was created or cleared.
type Record struct {
	Sequenced
	Position uint64
}
