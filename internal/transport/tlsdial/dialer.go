// Package tlsdial opens the client-certificate TLS stream the push gateway
// expects.
package tlsdial

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

const defaultDialTimeout = 10 * time.Second

// Config describes the gateway endpoint and the client identity.
type Config struct {
	Address            string
	CertFile           string
	KeyFile            string
	CAFile             string
	ServerName         string
	InsecureSkipVerify bool
	DialTimeout        time.Duration
	KeepAlive          time.Duration
}

// Dialer dials the gateway over TLS. It satisfies push.Dialer.
type Dialer struct {
	address string
	timeout time.Duration
	netd    net.Dialer
	tls     *tls.Config
}

// New loads the certificate material and returns a ready Dialer.
func New(cfg Config) (*Dialer, error) {
	addr := strings.TrimSpace(cfg.Address)
	if addr == "" {
		return nil, errors.New("gateway address is required")
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("gateway address %q: %w", addr, err)
	}

	tc := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         host,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if sn := strings.TrimSpace(cfg.ServerName); sn != "" {
		tc.ServerName = sn
	}

	if cfg.CertFile != "" || cfg.KeyFile != "" {
		pair, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tc.Certificates = []tls.Certificate{pair}
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca file %q has no certificates", cfg.CAFile)
		}
		tc.RootCAs = pool
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	return &Dialer{
		address: addr,
		timeout: timeout,
		netd:    net.Dialer{KeepAlive: cfg.KeepAlive},
		tls:     tc,
	}, nil
}

// Address returns the gateway host:port.
func (d *Dialer) Address() string { return d.address }

// Dial connects and completes the TLS handshake before returning.
func (d *Dialer) Dial(ctx context.Context) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	td := tls.Dialer{NetDialer: &d.netd, Config: d.tls}
	conn, err := td.DialContext(ctx, "tcp", d.address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.address, err)
	}
	return conn, nil
}
