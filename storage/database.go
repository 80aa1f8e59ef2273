package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	// DefaultDBFileName is the SQLite filename under the data dir.
	DefaultDBFileName = "peerlink.db"
	// DefaultWALCheckpointInterval controls periodic WAL truncation.
	DefaultWALCheckpointInterval = 24 * time.Hour
)

var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS users (
  id            INTEGER PRIMARY KEY AUTOINCREMENT,
  username      TEXT NOT NULL UNIQUE,
  realname      TEXT NOT NULL DEFAULT '',
  password_hash TEXT NOT NULL,
  created_at    INTEGER NOT NULL
);
`,
	`
CREATE TABLE IF NOT EXISTS offline_peers (
  id         INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  app        TEXT NOT NULL,
  is_public  INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL
);
`,
	`
CREATE UNIQUE INDEX IF NOT EXISTS idx_offline_peers_user_app
ON offline_peers (user_id, app);
`,
	`
CREATE TABLE IF NOT EXISTS peer_links (
  id         INTEGER PRIMARY KEY AUTOINCREMENT,
  left_peer  INTEGER NOT NULL REFERENCES offline_peers(id) ON DELETE CASCADE,
  right_peer INTEGER NOT NULL REFERENCES offline_peers(id) ON DELETE CASCADE,
  confirmed  INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  CHECK (left_peer <> right_peer)
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_peer_links_left
ON peer_links (left_peer, right_peer);
`,
	`
CREATE INDEX IF NOT EXISTS idx_peer_links_right
ON peer_links (right_peer, left_peer);
`,
}

// Store is a thin wrapper around a SQLite connection.
type Store struct {
	db *sql.DB

	walCheckpointInterval time.Duration
	walCheckpointStop     chan struct{}
	walCheckpointWG       sync.WaitGroup
	closeOnce             sync.Once
}

// Open opens (or creates) the database under the given data directory and runs migrations.
func Open(dataDir string) (*Store, string, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, "", fmt.Errorf("create storage directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DefaultDBFileName)
	store, err := OpenPath(dbPath)
	if err != nil {
		return nil, "", err
	}

	return store, dbPath, nil
}

// OpenPath opens SQLite at an explicit path and runs schema migrations.
func OpenPath(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", filepath.ToSlash(dbPath))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	store := &Store{
		db:                    db,
		walCheckpointInterval: DefaultWALCheckpointInterval,
		walCheckpointStop:     make(chan struct{}),
	}
	if err := store.enableWALMode(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.checkpointWAL(); err != nil {
		_ = db.Close()
		return nil, err
	}
	store.startWALCheckpointLoop()

	return store, nil
}

// Close closes the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	var closeErr error
	s.closeOnce.Do(func() {
		if s.walCheckpointStop != nil {
			close(s.walCheckpointStop)
			s.walCheckpointWG.Wait()
		}
		closeErr = s.db.Close()
	})
	return closeErr
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite database: %w", err)
	}
	return nil
}

func (s *Store) applyMigrations() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version >= len(migrations) {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i := version; i < len(migrations); i++ {
		if _, err := tx.Exec(migrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d;", i+1)); err != nil {
			return fmt.Errorf("set schema version %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration transaction: %w", err)
	}

	return nil
}

func (s *Store) enableWALMode() error {
	var journalMode string
	if err := s.db.QueryRow("PRAGMA journal_mode=WAL;").Scan(&journalMode); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	if !strings.EqualFold(journalMode, "wal") {
		return fmt.Errorf("enable WAL mode: unexpected journal mode %q", journalMode)
	}
	return nil
}

func (s *Store) checkpointWAL() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE);"); err != nil {
		return fmt.Errorf("wal checkpoint truncate: %w", err)
	}
	return nil
}

func (s *Store) startWALCheckpointLoop() {
	interval := s.walCheckpointInterval
	if interval <= 0 || s.walCheckpointStop == nil {
		return
	}

	s.walCheckpointWG.Add(1)
	go func() {
		defer s.walCheckpointWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_ = s.checkpointWAL()
			case <-s.walCheckpointStop:
				return
			}
		}
	}()
}
