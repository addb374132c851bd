// Package frame implements the binary wire format spoken with the push gateway.
//
// Notification frame (client -> gateway):
//
//	u8 command=2 | u32 BE item section length | items...
//	item: u8 type | u16 BE length | bytes
//
// Error frame (gateway -> client):
//
//	u8 command=8 | u8 status | u32 BE failing identifier
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

const (
	CommandNotification uint8 = 2
	CommandError        uint8 = 8
)

const (
	ItemToken      uint8 = 1
	ItemPayload    uint8 = 2
	ItemIdentifier uint8 = 3
	ItemExpiry     uint8 = 4
	ItemPriority   uint8 = 5
)

const (
	headerSize     = 5 // command + section length
	itemHeaderSize = 3 // type + length

	// ErrorFrameSize is the fixed size of a gateway error frame.
	ErrorFrameSize = 6

	DefaultTokenSize  = 32
	DefaultMaxPayload = 2048

	// maxItemLen is bounded by the u16 item length field.
	maxItemLen = 1<<16 - 1
)

var (
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrInvalidToken    = errors.New("invalid device token")
	ErrInvalidExpiry   = errors.New("expiry outside the u32 unix range")
	ErrMalformed       = errors.New("malformed frame")
)

// EncodingError reports a notification that can never be put on the wire.
type EncodingError struct {
	Field string
	Size  int
	Limit int
	Err   error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode %s: %v (size=%d limit=%d)", e.Field, e.Err, e.Size, e.Limit)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// Notification is the wire view of a sequenced notification.
// Expiry and Priority are optional; zero values are not encoded.
type Notification struct {
	Token    []byte
	Payload  []byte
	ID       uint32
	Expiry   time.Time
	Priority uint8
}

// Codec encodes notification frames for a fixed token size and payload limit.
// The zero value uses DefaultTokenSize and DefaultMaxPayload.
type Codec struct {
	TokenSize  int
	MaxPayload int
}

func (c Codec) tokenSize() int {
	if c.TokenSize <= 0 {
		return DefaultTokenSize
	}
	return c.TokenSize
}

func (c Codec) maxPayload() int {
	n := c.MaxPayload
	if n <= 0 {
		n = DefaultMaxPayload
	}
	if n > maxItemLen {
		n = maxItemLen
	}
	return n
}

// Validate checks token and payload against the codec limits. The payload
// is only checked for size.
func (c Codec) Validate(token, payload []byte) error {
	ts := c.tokenSize()
	if ts > maxItemLen {
		return &EncodingError{Field: "token", Size: ts, Limit: maxItemLen, Err: ErrInvalidToken}
	}
	if len(token) != ts {
		return &EncodingError{Field: "token", Size: len(token), Limit: ts, Err: ErrInvalidToken}
	}
	if mp := c.maxPayload(); len(payload) > mp {
		return &EncodingError{Field: "payload", Size: len(payload), Limit: mp, Err: ErrPayloadTooLarge}
	}
	return nil
}

// ValidateExpiry reports whether t fits the u32 unix-seconds expiry item.
// The zero time means no expiry and is always valid.
func ValidateExpiry(t time.Time) error {
	if t.IsZero() {
		return nil
	}
	if sec := t.Unix(); sec < 0 || sec > math.MaxUint32 {
		return &EncodingError{Field: "expiry", Err: ErrInvalidExpiry}
	}
	return nil
}

// Size returns the encoded frame size of n. It does not validate n.
func (c Codec) Size(n Notification) int {
	size := headerSize +
		itemHeaderSize + len(n.Token) +
		itemHeaderSize + len(n.Payload) +
		itemHeaderSize + 4
	if !n.Expiry.IsZero() {
		size += itemHeaderSize + 4
	}
	if n.Priority != 0 {
		size += itemHeaderSize + 1
	}
	return size
}

// Append appends the encoded frame for n to dst.
func (c Codec) Append(dst []byte, n Notification) ([]byte, error) {
	if err := c.Validate(n.Token, n.Payload); err != nil {
		return dst, err
	}
	if err := ValidateExpiry(n.Expiry); err != nil {
		return dst, err
	}
	size := c.Size(n)

	dst = append(dst, CommandNotification)
	dst = binary.BigEndian.AppendUint32(dst, uint32(size-headerSize))

	dst = appendItem(dst, ItemToken, n.Token)
	dst = appendItem(dst, ItemPayload, n.Payload)

	dst = append(dst, ItemIdentifier)
	dst = binary.BigEndian.AppendUint16(dst, 4)
	dst = binary.BigEndian.AppendUint32(dst, n.ID)

	if !n.Expiry.IsZero() {
		dst = append(dst, ItemExpiry)
		dst = binary.BigEndian.AppendUint16(dst, 4)
		dst = binary.BigEndian.AppendUint32(dst, uint32(n.Expiry.Unix()))
	}
	if n.Priority != 0 {
		dst = append(dst, ItemPriority)
		dst = binary.BigEndian.AppendUint16(dst, 1)
		dst = append(dst, n.Priority)
	}
	return dst, nil
}

// Encode returns a freshly allocated frame for n.
func (c Codec) Encode(n Notification) ([]byte, error) {
	return c.Append(make([]byte, 0, c.Size(n)), n)
}

func appendItem(dst []byte, typ uint8, b []byte) []byte {
	dst = append(dst, typ)
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(b)))
	return append(dst, b...)
}

// Decode parses a single notification frame. It is the inverse of Encode and
// rejects trailing bytes, unknown items and missing mandatory items.
func (c Codec) Decode(b []byte) (Notification, error) {
	var n Notification
	if len(b) < headerSize || b[0] != CommandNotification {
		return n, fmt.Errorf("%w: bad header", ErrMalformed)
	}
	section := int(binary.BigEndian.Uint32(b[1:headerSize]))
	if section != len(b)-headerSize {
		return n, fmt.Errorf("%w: section length %d, have %d", ErrMalformed, section, len(b)-headerSize)
	}

	var seen [ItemPriority + 1]bool
	rest := b[headerSize:]
	for len(rest) > 0 {
		if len(rest) < itemHeaderSize {
			return n, fmt.Errorf("%w: truncated item header", ErrMalformed)
		}
		typ := rest[0]
		l := int(binary.BigEndian.Uint16(rest[1:itemHeaderSize]))
		rest = rest[itemHeaderSize:]
		if len(rest) < l {
			return n, fmt.Errorf("%w: truncated item %d", ErrMalformed, typ)
		}
		val := rest[:l]
		rest = rest[l:]

		if typ == 0 || typ > ItemPriority {
			return n, fmt.Errorf("%w: unknown item %d", ErrMalformed, typ)
		}
		if seen[typ] {
			return n, fmt.Errorf("%w: duplicate item %d", ErrMalformed, typ)
		}
		seen[typ] = true

		switch typ {
		case ItemToken:
			n.Token = append([]byte(nil), val...)
		case ItemPayload:
			n.Payload = append([]byte(nil), val...)
		case ItemIdentifier:
			if l != 4 {
				return n, fmt.Errorf("%w: identifier length %d", ErrMalformed, l)
			}
			n.ID = binary.BigEndian.Uint32(val)
		case ItemExpiry:
			if l != 4 {
				return n, fmt.Errorf("%w: expiry length %d", ErrMalformed, l)
			}
			n.Expiry = time.Unix(int64(binary.BigEndian.Uint32(val)), 0)
		case ItemPriority:
			if l != 1 {
				return n, fmt.Errorf("%w: priority length %d", ErrMalformed, l)
			}
			n.Priority = val[0]
		}
	}
	if !seen[ItemToken] || !seen[ItemPayload] || !seen[ItemIdentifier] {
		return n, fmt.Errorf("%w: missing mandatory item", ErrMalformed)
	}
	return n, nil
}

// ErrorFrame is the gateway's report of a rejected notification.
type ErrorFrame struct {
	Status    Status
	FailingID uint32
}

// DecodeErrorFrame parses the fixed 6-byte error frame.
func DecodeErrorFrame(b []byte) (ErrorFrame, error) {
	if len(b) != ErrorFrameSize {
		return ErrorFrame{}, fmt.Errorf("%w: error frame is %d bytes", ErrMalformed, len(b))
	}
	if b[0] != CommandError {
		return ErrorFrame{}, fmt.Errorf("%w: unexpected command %d", ErrMalformed, b[0])
	}
	return ErrorFrame{
		Status:    Status(b[1]),
		FailingID: binary.BigEndian.Uint32(b[2:]),
	}, nil
}

// ReadErrorFrame blocks until a full error frame has been read from r.
// A short read is returned as io.ErrUnexpectedEOF, a clean close as io.EOF.
func ReadErrorFrame(r io.Reader) (ErrorFrame, error) {
	var buf [ErrorFrameSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return ErrorFrame{}, err
	}
	return DecodeErrorFrame(buf[:])
}

// AppendErrorFrame encodes an error frame. Used by gateway fakes.
func AppendErrorFrame(dst []byte, f ErrorFrame) []byte {
	dst = append(dst, CommandError, byte(f.Status))
	return binary.BigEndian.AppendUint32(dst, f.FailingID)
}
