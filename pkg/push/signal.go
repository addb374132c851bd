package push

import (
	"fmt"

	"pushconn/pkg/frame"
)

// Cause says why a generation ended.
type Cause uint8

const (
	// CauseConnectionClosed: EOF, I/O error, malformed data or a failed
	// write. Which notifications arrived is unknown.
	CauseConnectionClosed Cause = iota + 1
	// CauseProtocolError: the gateway rejected FailingID with Status.
	CauseProtocolError
	// CauseShutdownRequested: the caller asked the client to stop.
	CauseShutdownRequested
)

func (c Cause) String() string {
	switch c {
	case CauseConnectionClosed:
		return "connection_closed"
	case CauseProtocolError:
		return "protocol_error"
	case CauseShutdownRequested:
		return "shutdown_requested"
	default:
		return fmt.Sprintf("cause(%d)", uint8(c))
	}
}

// UnknownID is the FailingID of signals that carry no id information.
const UnknownID uint32 = 0

// CloseSignal marks the end of a generation. Exactly one is produced per
// generation. Status and FailingID are only meaningful for
// CauseProtocolError; Err is set for CauseConnectionClosed when known.
type CloseSignal struct {
	Cause     Cause
	Status    frame.Status
	FailingID uint32
	Err       error
}

func ProtocolError(status frame.Status, failingID uint32) CloseSignal {
	return CloseSignal{Cause: CauseProtocolError, Status: status, FailingID: failingID}
}

func ConnectionClosed(err error) CloseSignal {
	return CloseSignal{Cause: CauseConnectionClosed, FailingID: UnknownID, Err: err}
}

func ShutdownRequested() CloseSignal {
	return CloseSignal{Cause: CauseShutdownRequested, FailingID: UnknownID}
}

func (s CloseSignal) String() string {
	switch s.Cause {
	case CauseProtocolError:
		return fmt.Sprintf("%s(status=%d %s, id=%d)", s.Cause, uint8(s.Status), s.Status, s.FailingID)
	case CauseConnectionClosed:
		if s.Err != nil {
			return fmt.Sprintf("%s(%v)", s.Cause, s.Err)
		}
	}
	return s.Cause.String()
}
