package storage

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	logx "pushconn/pkg/logx"
)

// fileStore appends one JSON object per unsent notification to cfg.Path.
type fileStore struct {
	log  logx.Logger
	path string

	mu sync.Mutex
	f  *os.File
}

// fileRecord is the on-disk line. The token is hex so operators can grep it.
type fileRecord struct {
	At       time.Time `json:"at"`
	Reason   string    `json:"reason,omitempty"`
	Token    string    `json:"token"`
	Payload  []byte    `json:"payload"`
	Expiry   int64     `json:"expiry,omitempty"`
	Priority uint8     `json:"priority,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	log.Debug("unsent archive opened", logx.String("driver", "file"), logx.String("path", cfg.Path))
	return &fileStore{log: log, path: cfg.Path, f: f}, nil
}

func (s *fileStore) ArchiveUnsent(ctx context.Context, recs []UnsentRecord) error {
	if len(recs) == 0 {
		return nil
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrDisabled
	}
	w := bufio.NewWriter(s.f)
	enc := json.NewEncoder(w)
	for _, r := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.At.IsZero() {
			r.At = now
		}
		line := fileRecord{
			At:       r.At,
			Reason:   r.Reason,
			Token:    hex.EncodeToString(r.Token),
			Payload:  r.Payload,
			Priority: r.Priority,
		}
		if !r.Expiry.IsZero() {
			line.Expiry = r.Expiry.Unix()
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return s.f.Sync()
}

func (s *fileStore) ListUnsent(ctx context.Context, limit int) ([]UnsentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []UnsentRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for n := 1; sc.Scan(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(sc.Bytes()) == 0 {
			continue
		}
		var line fileRecord
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", s.path, n, err)
		}
		tok, err := hex.DecodeString(line.Token)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: token: %w", s.path, n, err)
		}
		r := UnsentRecord{At: line.At, Reason: line.Reason, Token: tok, Payload: line.Payload, Priority: line.Priority}
		if line.Expiry != 0 {
			r.Expiry = time.Unix(line.Expiry, 0)
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, sc.Err()
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
