// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package asset

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/renderfleet/missioncontrol/lib/codec"
	"github.com/renderfleet/missioncontrol/lib/sqlitepool"
)

// The index keeps one row per asset. name and storage_size are
// duplicated out of the CBOR body for ad-hoc inspection with the
// sqlite3 shell.
const indexSchema = `
	CREATE TABLE IF NOT EXISTS assets (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		storage_size INTEGER NOT NULL,
		added        INTEGER NOT NULL,
		body         BLOB NOT NULL
	);
`

type index struct {
	pool *sqlitepool.Pool
}

func openIndex(config Config) (*index, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   config.DatabasePath,
		Schema: indexSchema,
		Logger: config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("asset: %w", err)
	}
	return &index{pool: pool}, nil
}

func (x *index) insert(ctx context.Context, asset *Asset) error {
	body, err := codec.Marshal(asset)
	if err != nil {
		return fmt.Errorf("asset: encoding %s: %w", asset.ID, err)
	}
	err = x.pool.Write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"INSERT INTO assets (id, name, storage_size, added, body) VALUES (?, ?, ?, ?, ?)",
			&sqlitex.ExecOptions{Args: []any{
				asset.ID.String(), asset.Name, asset.StorageSize, asset.Added.UnixNano(), body,
			}})
	})
	if err != nil {
		return fmt.Errorf("asset: storing %s: %w", asset.ID, err)
	}
	return nil
}

func (x *index) delete(ctx context.Context, id uuid.UUID) error {
	err := x.pool.Write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "DELETE FROM assets WHERE id = ?", &sqlitex.ExecOptions{
			Args: []any{id.String()},
		})
	})
	if err != nil {
		return fmt.Errorf("asset: deleting %s: %w", id, err)
	}
	return nil
}

// load calls fn for every stored asset. Rows that do not decode are
// passed to bad instead.
func (x *index) load(ctx context.Context, fn func(Asset), bad func(id string, err error)) error {
	return x.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT id, body FROM assets ORDER BY added", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				id := stmt.ColumnText(0)
				body := make([]byte, stmt.ColumnLen(1))
				stmt.ColumnBytes(1, body)

				var loaded Asset
				if err := codec.Unmarshal(body, &loaded); err != nil {
					bad(id, err)
					return nil
				}
				fn(loaded)
				return nil
			},
		})
	})
}

func (x *index) close() error {
	return x.pool.Close()
}
