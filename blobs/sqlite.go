// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blobs

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/peerdocs/lib/sqlitepool"
)

var _ Store = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS blobs (
	hash BLOB PRIMARY KEY,
	data BLOB NOT NULL,
	size INTEGER NOT NULL
) WITHOUT ROWID;
`

// SQLiteStore persists blobs in a SQLite database.
type SQLiteStore struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Schema: sqliteSchema,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}
	return &SQLiteStore{pool: pool, logger: logger}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, data []byte) (Hash, error) {
	hash := Sum(data)
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "INSERT OR IGNORE INTO blobs (hash, data, size) VALUES (?, ?, ?)",
			&sqlitex.ExecOptions{Args: []any{hash[:], nonNil(data), len(data)}})
	})
	if err != nil {
		return Hash{}, fmt.Errorf("blob store: put %s: %w", hash.ShortString(), err)
	}
	return hash, nil
}

func (s *SQLiteStore) Get(ctx context.Context, hash Hash) ([]byte, error) {
	var data []byte
	found := false
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT data FROM blobs WHERE hash = ?", &sqlitex.ExecOptions{
			Args: []any{hash[:]},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				data = make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, data)
				found = true
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("blob store: get %s: %w", hash.ShortString(), err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return data, nil
}

func (s *SQLiteStore) Has(ctx context.Context, hash Hash) (bool, error) {
	found := false
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT 1 FROM blobs WHERE hash = ?", &sqlitex.ExecOptions{
			Args: []any{hash[:]},
			ResultFunc: func(*sqlite.Stmt) error {
				found = true
				return nil
			},
		})
	})
	if err != nil {
		return false, fmt.Errorf("blob store: has %s: %w", hash.ShortString(), err)
	}
	return found, nil
}

// Len counts stored blobs.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	count := 0
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT count(*) FROM blobs", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt(0)
				return nil
			},
		})
	})
	return count, err
}

func (s *SQLiteStore) Close() error {
	return s.pool.Close()
}

// nonNil keeps empty blobs from binding as SQL NULL.
func nonNil(data []byte) []byte {
	if data == nil {
		return []byte{}
	}
	return data
}
