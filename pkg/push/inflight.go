package push

// DefaultBufferCapacity is the number of sent notifications retained for replay.
const DefaultBufferCapacity = 1000

// InflightBuffer is a bounded ring of recently sent notifications, oldest
// first. Appending to a full buffer evicts the oldest record; the evicted
// notification can no longer be replayed.
//
// InflightBuffer is not safe for concurrent use. A generation's writer is the
// only appender, and snapshots are taken after the writer has stopped.
type InflightBuffer struct {
	ring    []Record
	head    int // index of the oldest record
	size    int
	next    uint64
	evicted uint64
}

func NewInflightBuffer(capacity int) *InflightBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &InflightBuffer{ring: make([]Record, capacity)}
}

// Append records s as the newest entry. It reports whether a record had to
// be evicted to make room.
func (b *InflightBuffer) Append(s Sequenced) bool {
	r := Record{Sequenced: s, Position: b.next}
	b.next++

	if b.size < len(b.ring) {
		b.ring[(b.head+b.size)%len(b.ring)] = r
		b.size++
		return false
	}
	b.ring[b.head] = r
	b.head = (b.head + 1) % len(b.ring)
	b.evicted++
	return true
}

// Snapshot returns the retained records in send order.
func (b *InflightBuffer) Snapshot() []Record {
	out := make([]Record, b.size)
	for i := range out {
		out[i] = b.ring[(b.head+i)%len(b.ring)]
	}
	return out
}

func (b *InflightBuffer) Clear() {
	clear(b.ring)
	b.head = 0
	b.size = 0
	b.next = 0
}

func (b *InflightBuffer) Len() int { return b.size }

func (b *InflightBuffer) Cap() int { return len(b.ring) }

// Evicted returns the number of records dropped for capacity.
func (b *InflightBuffer) Evicted() uint64 { return b.evicted }
