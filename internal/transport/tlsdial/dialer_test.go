package tlsdial

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty address")
	}
	if _, err := New(Config{Address: "no-port"}); err == nil {
		t.Fatal("expected error for address without port")
	}
	if _, err := New(Config{Address: "gateway.example:2195", CertFile: "missing.pem", KeyFile: "missing.key"}); err == nil {
		t.Fatal("expected error for missing certificate files")
	}

	bad := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(bad, []byte("not a cert"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(Config{Address: "gateway.example:2195", CAFile: bad}); err == nil {
		t.Fatal("expected error for CA file without certificates")
	}
}

func TestNewDerivesServerName(t *testing.T) {
	t.Parallel()
	d, err := New(Config{Address: "gateway.example:2195"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if d.tls.ServerName != "gateway.example" || d.timeout != defaultDialTimeout {
		t.Fatalf("unexpected dialer: server_name=%q timeout=%v", d.tls.ServerName, d.timeout)
	}
	d, err = New(Config{Address: "10.0.0.1:2195", ServerName: "gateway.example"})
	if err != nil {
		t.Fatal(err)
	}
	if d.tls.ServerName != "gateway.example" {
		t.Fatalf("ServerName = %q", d.tls.ServerName)
	}
}

func TestDialCompletesHandshake(t *testing.T) {
	t.Parallel()
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.TLS = &tls.Config{}
	srv.StartTLS()
	defer srv.Close()

	d, err := New(Config{Address: srv.Listener.Addr().String(), InsecureSkipVerify: true, DialTimeout: 2 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	conn, err := d.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer conn.Close()
	if _, ok := conn.(*tls.Conn); !ok {
		t.Fatalf("expected *tls.Conn, got %T", conn)
	}
}
