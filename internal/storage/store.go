package storage

import (
	"errors"
	"strings"
	"time"

	"github.com/funnyzak/reqdeck/internal/config"
	"github.com/funnyzak/reqdeck/internal/logger"
)

// ErrUnsupportedDriver indicates the configured driver is not available.
var ErrUnsupportedDriver = errors.New("unsupported storage driver")

// ListOptions controls pagination when fetching snapshot revisions.
type ListOptions struct {
	Limit  int
	Offset int
}

// Snapshot is one saved revision of the whole workspace document.
type Snapshot struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
	Size      int64     `json:"size"`
	Data      []byte    `json:"-"`
}

// Store persists named workspace slots and a bounded log of workspace
// snapshots.
type Store interface {
	// Get returns the value of a slot, or nil when it was never written.
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Keys() ([]string, error)

	// RecordSnapshot appends a revision and prunes the log.
	RecordSnapshot(*Snapshot) (*Snapshot, error)
	// ListSnapshots returns revisions newest first, without their data.
	ListSnapshots(ListOptions) ([]*Snapshot, int, error)
	GetSnapshot(id string) (*Snapshot, error)

	Close() error
}

// New instantiates a Store based on configuration.
func New(cfg *config.StorageConfig, log logger.Logger) (Store, error) {
	if cfg == nil {
		return nil, errors.New("storage config is nil")
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "sqlite", "sqlite3":
		return newSQLiteStore(cfg, log)
	case "memory":
		return newMemoryStore(cfg), nil
	default:
		return nil, ErrUnsupportedDriver
	}
}
