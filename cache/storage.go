package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GoCodeAlone/tickler/task"

	_ "modernc.org/sqlite" // SQLite driver
)

// Snapshot is the serialized form of one owner's collection.
type Snapshot struct {
	Owner       string          `json:"owner"`
	Tasks       []task.Task     `json:"tasks"`
	Lists       []task.List     `json:"lists"`
	Templates   []task.Template `json:"templates"`
	Tombstones  []Tombstone     `json:"tombstones,omitempty"`
	Unsent      []Unsent        `json:"unsent,omitempty"`
	Completions []Completion    `json:"completions,omitempty"`
	SavedAt     time.Time       `json:"saved_at"`
}

// Storage persists snapshots. The cache is its only writer.
type Storage interface {
	// Load returns the stored snapshot for owner, or nil if there is none.
	Load(ctx context.Context, owner string) (*Snapshot, error)

	// Save overwrites the stored snapshot for snap.Owner.
	Save(ctx context.Context, snap *Snapshot) error
}

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	owner    TEXT PRIMARY KEY,
	data     TEXT NOT NULL,
	saved_at DATETIME NOT NULL
);
`

// SQLiteStorage keeps one JSON snapshot row per owner in a SQLite file.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) the database at dbPath. The caller is
// responsible for calling Close.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(snapshotSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// Close releases the underlying database connection.
func (s *SQLiteStorage) Close() error { return s.db.Close() }

// Load reads owner's snapshot.
func (s *SQLiteStorage) Load(ctx context.Context, owner string) (*Snapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE owner = ?`, owner).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", owner, err)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", owner, err)
	}
	return &snap, nil
}

// Save upserts owner's snapshot.
func (s *SQLiteStorage) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.Owner, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (owner, data, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(owner) DO UPDATE SET data = excluded.data, saved_at = excluded.saved_at`,
		snap.Owner, string(data), snap.SavedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.Owner, err)
	}
	return nil
}

// MemoryStorage keeps encoded snapshots in memory. Useful in tests and for
// sessions that should not touch disk.
type MemoryStorage struct {
	mu    sync.Mutex
	data  map[string][]byte
	saves int
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string][]byte)}
}

// Load decodes owner's snapshot.
func (m *MemoryStorage) Load(_ context.Context, owner string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[owner]
	if !ok {
		return nil, nil
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", owner, err)
	}
	return &snap, nil
}

// Save encodes and stores snap.
func (m *MemoryStorage) Save(_ context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.Owner, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[snap.Owner] = data
	m.saves++
	return nil
}

// Saves returns how many snapshots have been written.
func (m *MemoryStorage) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
