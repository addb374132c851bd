package push

// Replay returns, in send order, the notifications from snapshot that must be
// resubmitted after a generation ended with sig. The snapshot must be taken
// after the generation's writer stopped appending.
//
//   - ShutdownRequested: nothing is replayed.
//   - ProtocolError(k): every record with id > k. Record k was rejected and
//     is dropped; older records are presumed delivered. If k was already
//     evicted the whole snapshot qualifies and k itself is lost.
//   - ConnectionClosed: the whole snapshot, since nothing was confirmed.
//
// A ProtocolError naming an id newer than anything sent carries no usable
// position and is handled like ConnectionClosed.
func Replay(sig CloseSignal, snapshot []Record) []Notification {
	switch sig.Cause {
	case CauseShutdownRequested:
		return nil
	case CauseProtocolError:
		if len(snapshot) == 0 {
			return nil
		}
		if sig.FailingID > snapshot[len(snapshot)-1].ID {
			return Unconfirmed(snapshot)
		}
		var out []Notification
		for _, r := range snapshot {
			if r.ID > sig.FailingID {
				out = append(out, r.Notification)
			}
		}
		return out
	case CauseConnectionClosed:
		return Unconfirmed(snapshot)
	default:
		return Unconfirmed(snapshot)
	}
}

// Unconfirmed returns every notification of snapshot in send order.
func Unconfirmed(snapshot []Record) []Notification {
	if len(snapshot) == 0 {
		return nil
	}
	out := make([]Notification, len(snapshot))
	for i, r := range snapshot {
		out[i] = r.Notification
	}
	return out
}

// Rejected returns the record the gateway rejected, if sig is a
// ProtocolError and the record is still in snapshot.
func Rejected(sig CloseSignal, snapshot []Record) (Record, bool) {
	if sig.Cause != CauseProtocolError {
		return Record{}, false
	}
	for _, r := range snapshot {
		if r.ID == sig.FailingID {
			return r, true
		}
	}
	return Record{}, false
}
