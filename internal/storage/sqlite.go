package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/funnyzak/reqdeck/internal/config"
	"github.com/funnyzak/reqdeck/internal/logger"

	_ "modernc.org/sqlite"
)

const (
	sqliteDriverName = "sqlite"
)

type sqliteStore struct {
	db  *sql.DB
	cfg *config.StorageConfig
	log logger.Logger
}

func newSQLiteStore(cfg *config.StorageConfig, log logger.Logger) (Store, error) {
	path := cfg.Path
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve sqlite path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("prepare sqlite directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", filepath.ToSlash(absPath))
	db, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %s: %w", stmt, err)
		}
	}

	store := &sqliteStore{db: db, cfg: cfg, log: log}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	log.Debug("sqlite storage ready", "path", absPath)
	return store, nil
}

func (s *sqliteStore) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS slots (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    updated_ns INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
    id TEXT PRIMARY KEY,
    timestamp_ns INTEGER NOT NULL,
    reason TEXT,
    size INTEGER NOT NULL,
    data BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON snapshots(timestamp_ns DESC);
`
	_, err := s.db.Exec(schema)
	return err
}

func (s *sqliteStore) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(context.Background(), "SELECT value FROM slots WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read slot %s: %w", key, err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

func (s *sqliteStore) Put(key string, value []byte) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("slot key cannot be empty")
	}
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO slots (key, value, updated_ns) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_ns = excluded.updated_ns`,
		key, value, time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("write slot %s: %w", key, err)
	}
	return nil
}

func (s *sqliteStore) Delete(key string) error {
	if _, err := s.db.ExecContext(context.Background(), "DELETE FROM slots WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete slot %s: %w", key, err)
	}
	return nil
}

func (s *sqliteStore) Keys() ([]string, error) {
	rows, err := s.db.QueryContext(context.Background(), "SELECT key FROM slots ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *sqliteStore) RecordSnapshot(snap *Snapshot) (*Snapshot, error) {
	if snap == nil {
		return nil, fmt.Errorf("snapshot is nil")
	}
	if strings.TrimSpace(snap.ID) == "" {
		snap.ID = fmt.Sprintf("SNAP-%d", time.Now().UnixNano())
	}
	ts := snap.Timestamp.UTC()
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	snap.Timestamp = ts
	if snap.Data == nil {
		snap.Data = []byte{}
	}
	snap.Size = int64(len(snap.Data))

	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO snapshots (id, timestamp_ns, reason, size, data) VALUES (?, ?, ?, ?, ?)",
		snap.ID, ts.UnixNano(), snap.Reason, snap.Size, snap.Data)
	if err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}

	if err = s.prune(ctx, tx); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *sqliteStore) prune(ctx context.Context, tx *sql.Tx) error {
	if s.cfg.Retention > 0 {
		cutoff := time.Now().Add(-s.cfg.Retention).UTC().UnixNano()
		if _, err := tx.ExecContext(ctx, "DELETE FROM snapshots WHERE timestamp_ns < ?", cutoff); err != nil {
			return fmt.Errorf("prune by retention: %w", err)
		}
	}
	if s.cfg.MaxSnapshots > 0 {
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM snapshots").Scan(&count); err != nil {
			return fmt.Errorf("count snapshots: %w", err)
		}
		if excess := count - s.cfg.MaxSnapshots; excess > 0 {
			if _, err := tx.ExecContext(ctx, "DELETE FROM snapshots WHERE id IN (SELECT id FROM snapshots ORDER BY timestamp_ns ASC LIMIT ?)", excess); err != nil {
				return fmt.Errorf("prune max snapshots: %w", err)
			}
		}
	}
	return nil
}

func (s *sqliteStore) ListSnapshots(opts ListOptions) ([]*Snapshot, int, error) {
	ctx := context.Background()

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM snapshots").Scan(&total); err != nil {
		return nil, 0, err
	}

	query := strings.Builder{}
	query.WriteString("SELECT id, timestamp_ns, reason, size FROM snapshots ORDER BY timestamp_ns DESC")
	var args []interface{}
	if opts.Limit > 0 {
		offset := opts.Offset
		if offset < 0 {
			offset = 0
		}
		query.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, opts.Limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []*Snapshot
	for rows.Next() {
		var (
			id     string
			ts     int64
			reason sql.NullString
			size   int64
		)
		if err := rows.Scan(&id, &ts, &reason, &size); err != nil {
			return nil, 0, err
		}
		result = append(result, &Snapshot{
			ID:        id,
			Timestamp: time.Unix(0, ts).UTC(),
			Reason:    reason.String,
			Size:      size,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (s *sqliteStore) GetSnapshot(id string) (*Snapshot, error) {
	var (
		ts     int64
		reason sql.NullString
		size   int64
		data   []byte
	)
	row := s.db.QueryRowContext(context.Background(), "SELECT timestamp_ns, reason, size, data FROM snapshots WHERE id = ?", id)
	err := row.Scan(&ts, &reason, &size, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		ID:        id,
		Timestamp: time.Unix(0, ts).UTC(),
		Reason:    reason.String,
		Size:      size,
		Data:      append([]byte(nil), data...),
	}, nil
}

func (s *sqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
