// Package ingest decodes notifications from JSON Lines input.
//
// Each non-blank line is an object:
//
//	{"token":"<hex>","payload":{"aps":{"alert":"hi"}},"expiry":1700000000,"priority":10}
//
// payload may be any JSON value. A JSON string is sent as its text; anything
// else is sent as the raw JSON bytes. expiry is unix seconds.
package ingest

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"pushconn/pkg/push"
)

// DefaultMaxLine bounds one input line.
const DefaultMaxLine = 256 * 1024

// LineError reports a line that could not be decoded. Reading may continue.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }
func (e *LineError) Unwrap() error { return e.Err }

type line struct {
	Token    string          `json:"token"`
	Payload  json.RawMessage `json:"payload"`
	Expiry   int64           `json:"expiry,omitempty"`
	Priority uint8           `json:"priority,omitempty"`
}

// Reader yields one notification per input line.
type Reader struct {
	sc   *bufio.Scanner
	line int
}

func NewReader(r io.Reader, maxLine int) *Reader {
	if maxLine <= 0 {
		maxLine = DefaultMaxLine
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLine)
	return &Reader{sc: sc}
}

// Line returns the number of the line last read.
func (r *Reader) Line() int { return r.line }

// Next returns the next notification, io.EOF at the end of input, or a
// *LineError for a malformed line.
func (r *Reader) Next() (push.Notification, error) {
	for r.sc.Scan() {
		r.line++
		b := bytes.TrimSpace(r.sc.Bytes())
		if len(b) == 0 || b[0] == '#' {
			continue
		}
		n, err := ParseLine(b)
		if err != nil {
			return push.Notification{}, &LineError{Line: r.line, Err: err}
		}
		return n, nil
	}
	if err := r.sc.Err(); err != nil {
		return push.Notification{}, err
	}
	return push.Notification{}, io.EOF
}

// ParseLine decodes one JSON object into a Notification.
func ParseLine(b []byte) (push.Notification, error) {
	var l line
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&l); err != nil {
		return push.Notification{}, err
	}
	if l.Token == "" {
		return push.Notification{}, errors.New("token is required")
	}
	tok, err := hex.DecodeString(l.Token)
	if err != nil {
		return push.Notification{}, fmt.Errorf("token: %w", err)
	}
	if len(l.Payload) == 0 || bytes.Equal(l.Payload, []byte("null")) {
		return push.Notification{}, errors.New("payload is required")
	}

	payload := []byte(l.Payload)
	if l.Payload[0] == '"' {
		var s string
		if err := json.Unmarshal(l.Payload, &s); err != nil {
			return push.Notification{}, fmt.Errorf("payload: %w", err)
		}
		payload = []byte(s)
	}

	n := push.Notification{Token: tok, Payload: payload, Priority: l.Priority}
	if l.Expiry > 0 {
		n.Expiry = time.Unix(l.Expiry, 0)
	}
	return n, nil
}
