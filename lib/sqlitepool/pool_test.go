// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/renderfleet/missioncontrol/lib/sqlitepool"
	"github.com/renderfleet/missioncontrol/lib/testutil"
)

const schema = `CREATE TABLE IF NOT EXISTS entries (id TEXT PRIMARY KEY, size INTEGER NOT NULL);`

func openTestPool(t *testing.T) *sqlitepool.Pool {
	t.Helper()
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   filepath.Join(t.TempDir(), "index.db"),
		Schema: schema,
		Logger: testutil.Logger(t),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return pool
}

func insert(conn *sqlite.Conn, id string, size int64) error {
	return sqlitex.Execute(conn, "INSERT INTO entries (id, size) VALUES (?, ?)", &sqlitex.ExecOptions{
		Args: []any{id, size},
	})
}

func total(t *testing.T, pool *sqlitepool.Pool) int64 {
	t.Helper()
	var sum int64
	err := pool.Read(context.Background(), func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT COALESCE(SUM(size), 0) FROM entries", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				sum = stmt.ColumnInt64(0)
				return nil
			},
		})
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	return sum
}

func TestPragmas(t *testing.T) {
	pool := openTestPool(t)
	err := pool.Read(context.Background(), func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "PRAGMA journal_mode", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				if mode := stmt.ColumnText(0); mode != "wal" {
					t.Errorf("journal_mode = %q, want wal", mode)
				}
				return nil
			},
		})
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
}

func TestWriteCommitsOrRollsBack(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()

	if err := pool.Write(ctx, func(conn *sqlite.Conn) error { return insert(conn, "a", 10) }); err != nil {
		t.Fatalf("Write: %v", err)
	}

	failure := errors.New("abandon")
	err := pool.Write(ctx, func(conn *sqlite.Conn) error {
		if err := insert(conn, "b", 20); err != nil {
			return err
		}
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("Write = %v, want the callback's error", err)
	}

	if sum := total(t, pool); sum != 10 {
		t.Errorf("sum = %d, want 10 (second write rolled back)", sum)
	}
}

func TestConcurrentWriters(t *testing.T) {
	pool := openTestPool(t)
	var group sync.WaitGroup
	for i := range 16 {
		group.Go(func() {
			err := pool.Write(context.Background(), func(conn *sqlite.Conn) error {
				return insert(conn, string(rune('a'+i)), 1)
			})
			if err != nil {
				t.Errorf("Write: %v", err)
			}
		})
	}
	group.Wait()
	if sum := total(t, pool); sum != 16 {
		t.Errorf("sum = %d, want 16", sum)
	}
}

func TestEmptyPathRejected(t *testing.T) {
	if _, err := sqlitepool.Open(sqlitepool.Config{}); err == nil {
		t.Fatal("Open without Path succeeded")
	}
}

func TestTakeHonorsContext(t *testing.T) {
	pool, err := sqlitepool.Open(sqlitepool.Config{Path: filepath.Join(t.TempDir(), "one.db"), PoolSize: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pool.Take(ctx); err == nil {
		t.Fatal("Take with a cancelled context and no free connection succeeded")
	}
}
