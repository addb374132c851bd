package ingest

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

const tok = "abababababababababababababababababababababababababababababababab"

func TestReaderDecodesLines(t *testing.T) {
	t.Parallel()
	in := strings.Join([]string{
		`{"token":"` + tok + `","payload":{"aps":{"alert":"hi"}},"expiry":1700000000,"priority":10}`,
		``,
		`# comment`,
		`{"token":"` + tok + `","payload":"plain text"}`,
	}, "\n")
	r := NewReader(strings.NewReader(in), 0)

	n, err := r.Next()
	if err != nil {
		t.Fatalf("first line: %v", err)
	}
	if len(n.Token) != 32 || n.Token[0] != 0xab {
		t.Fatalf("token = %x", n.Token)
	}
	if string(n.Payload) != `{"aps":{"alert":"hi"}}` {
		t.Fatalf("payload = %q", n.Payload)
	}
	if !n.Expiry.Equal(time.Unix(1700000000, 0)) || n.Priority != 10 {
		t.Fatalf("expiry/priority = %v/%d", n.Expiry, n.Priority)
	}

	n, err = r.Next()
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if string(n.Payload) != "plain text" || !n.Expiry.IsZero() {
		t.Fatalf("unexpected second record: %+v", n)
	}
	if r.Line() != 4 {
		t.Fatalf("Line = %d, want 4", r.Line())
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReaderReportsBadLines(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name, line string
	}{
		{"not json", `nope`},
		{"missing token", `{"payload":"x"}`},
		{"bad hex", `{"token":"zz","payload":"x"}`},
		{"missing payload", `{"token":"` + tok + `"}`},
		{"null payload", `{"token":"` + tok + `","payload":null}`},
		{"unknown field", `{"token":"` + tok + `","payload":"x","extra":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := NewReader(strings.NewReader(tc.line+"\n"+`{"token":"`+tok+`","payload":"ok"}`), 0)
			_, err := r.Next()
			var le *LineError
			if !errors.As(err, &le) || le.Line != 1 {
				t.Fatalf("expected LineError on line 1, got %v", err)
			}
			n, err := r.Next()
			if err != nil || string(n.Payload) != "ok" {
				t.Fatalf("reader did not continue: %+v %v", n, err)
			}
		})
	}
}
