package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "pushconn/pkg/logx"
)

//go:embed schema.sql
var schemaSQL string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// One writer; the archive is written once per shutdown.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{"PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL"}
	if cfg.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			log.Warn("sqlite pragma failed", logx.String("pragma", p), logx.Err(err))
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	log.Debug("unsent archive opened", logx.String("driver", "sqlite"), logx.String("path", cfg.Path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) ArchiveUnsent(ctx context.Context, recs []UnsentRecord) error {
	if s.db == nil {
		return ErrDisabled
	}
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO unsent(at, reason, token, payload, expiry, priority) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, r := range recs {
		at := r.At
		if at.IsZero() {
			at = now
		}
		var expiry int64
		if !r.Expiry.IsZero() {
			expiry = r.Expiry.Unix()
		}
		if _, err := stmt.ExecContext(ctx,
			at.UTC().Format(time.RFC3339Nano), nullStr(r.Reason), r.Token, r.Payload, expiry, int(r.Priority),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) ListUnsent(ctx context.Context, limit int) ([]UnsentRecord, error) {
	if s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, reason, token, payload, expiry, priority FROM unsent ORDER BY seq LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UnsentRecord
	for rows.Next() {
		var (
			at       string
			reason   sql.NullString
			r        UnsentRecord
			expiry   int64
			priority int
		)
		if err := rows.Scan(&at, &reason, &r.Token, &r.Payload, &expiry, &priority); err != nil {
			return nil, err
		}
		if r.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("unsent.at %q: %w", at, err)
		}
		r.Reason = reason.String
		if expiry != 0 {
			r.Expiry = time.Unix(expiry, 0)
		}
		r.Priority = uint8(priority)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
