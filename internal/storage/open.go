package storage

import (
	"context"
	"fmt"
	"strings"

	logx "pushconn/pkg/logx"
)

// Store persists unsent notifications.
type Store interface {
	// ArchiveUnsent appends records in order. Zero At values are set to now.
	ArchiveUnsent(ctx context.Context, recs []UnsentRecord) error
	// ListUnsent returns up to limit records, oldest first. limit <= 0 means all.
	ListUnsent(ctx context.Context, limit int) ([]UnsentRecord, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("storage.path is required for %s driver", driver)
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
