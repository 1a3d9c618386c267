// Package sqlite provides a SQLite-backed document store that mirrors the
// in-memory semantics while snapshotting state to disk after every write.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"homeworkcore/internal/infra/persistence/memory"
	"homeworkcore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.DocumentStore = (*Store)(nil)

// Store persists the in-memory state to a single SQLite table as JSON blobs.
// It snapshots the full state after every successful write.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore constructs a snapshotting SQLite-backed document store.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "homeworkcore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

var sqliteBuckets = []string{string(domain.CollectionTemplates), string(domain.CollectionDaily)}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	type raw struct {
		bucket  string
		payload []byte
	}
	var raws []raw
	for rows.Next() {
		var r raw
		if err := rows.Scan(&r.bucket, &r.payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		raws = append(raws, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if len(raws) == 0 {
		return nil
	}
	snapshot := memory.Snapshot{}
	for _, r := range raws {
		switch r.bucket {
		case string(domain.CollectionTemplates):
			if err := json.Unmarshal(r.payload, &snapshot.Templates); err != nil {
				return fmt.Errorf("decode templates: %w", err)
			}
		case string(domain.CollectionDaily):
			if err := json.Unmarshal(r.payload, &snapshot.Daily); err != nil {
				return fmt.Errorf("decode daily: %w", err)
			}
		}
	}
	s.ImportState(snapshot)
	return nil
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range sqliteBuckets {
		var data []byte
		switch bucket {
		case string(domain.CollectionTemplates):
			data, err = json.Marshal(snapshot.Templates)
		case string(domain.CollectionDaily):
			data, err = json.Marshal(snapshot.Daily)
		}
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err = tx.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	return nil
}

// PutTemplate stores the template in memory, then snapshots state to SQLite.
func (s *Store) PutTemplate(ctx context.Context, tpl domain.Template) error {
	if err := s.Store.PutTemplate(ctx, tpl); err != nil {
		return err
	}
	return s.persist()
}

// PutDaily stores the document in memory, then snapshots state to SQLite.
func (s *Store) PutDaily(ctx context.Context, doc domain.DailyDocument) error {
	if err := s.Store.PutDaily(ctx, doc); err != nil {
		return err
	}
	return s.persist()
}

// UpdateDaily patches the document in memory, then snapshots state to SQLite.
func (s *Store) UpdateDaily(ctx context.Context, key domain.DailyKey, patch domain.DailyPatch) error {
	if err := s.Store.UpdateDaily(ctx, key, patch); err != nil {
		return err
	}
	return s.persist()
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }
