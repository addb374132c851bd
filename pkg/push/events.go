package push

// Event types published on the client's event bus.
const (
	EventGenerationOpened = "generation.opened"
	EventGenerationClosed = "generation.closed"
	EventReplay           = "replay"
	EventRejected         = "rejected"
	EventConnectFailed    = "connect.failed"
	EventShutdown         = "client.shutdown"
)

// GenerationEvent is the Data of generation.* and replay events.
type GenerationEvent struct {
	Generation uint64
	ConnID     string
	Cause      Cause
	Signal     string
	LastID     uint32
	Buffered   int
	Replayed   int
}

// RejectedEvent is the Data of rejected events.
type RejectedEvent struct {
	Generation uint64
	ID         uint32
	Status     uint8
	Reason     string
	Token      []byte
}

// ConnectFailedEvent is the Data of connect.failed events.
type ConnectFailedEvent struct {
	Attempt int
	Err     string
	Backoff string
}

// ShutdownEvent is the Data of client.shutdown events.
type ShutdownEvent struct {
	Unsent int
}
