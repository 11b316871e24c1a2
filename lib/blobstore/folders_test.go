// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/renderfleet/missioncontrol/lib/checksum"
	"github.com/renderfleet/missioncontrol/lib/compress"
	"github.com/renderfleet/missioncontrol/lib/testutil"
)

func newUncompressedStore(t *testing.T, folders ...FolderConfig) *Store {
	t.Helper()
	store, err := Open(Config{
		Folders:     folders,
		Compression: compress.None,
		Logger:      testutil.Logger(t),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store.PurgeUnreferenced()
	return store
}

func distinctContent(index, size int) []byte {
	content := bytes.Repeat([]byte{byte(index)}, size)
	copy(content, fmt.Sprintf("blob-%d", index))
	return content
}

func TestRemoveFolderRelocatesBlobs(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	store := newUncompressedStore(t,
		FolderConfig{Path: first, MaximumSize: 10_000},
		FolderConfig{Path: second, MaximumSize: 5_000},
	)

	contents := map[uuid.UUID][]byte{}
	for i := range 4 {
		content := distinctContent(i, 1000)
		contents[addContent(t, store, content)] = content
	}

	if err := store.RemoveFolder(context.Background(), first); err != nil {
		t.Fatalf("RemoveFolder: %v", err)
	}

	statuses := store.FolderStatus()
	if len(statuses) != 1 || statuses[0].Path != second {
		t.Fatalf("folders after removal = %+v, want only %s", statuses, second)
	}
	if statuses[0].CurrentSize != 4000 {
		t.Errorf("remaining folder usage = %d, want 4000", statuses[0].CurrentSize)
	}
	for id, content := range contents {
		lock, err := store.Lock(id)
		if err != nil {
			t.Fatalf("Lock(%s) after relocation: %v", id, err)
		}
		if filepath.Dir(lock.Path) != second {
			t.Errorf("blob %s still in %s", id, filepath.Dir(lock.Path))
		}
		if !bytes.Equal(readLocked(t, lock), content) {
			t.Errorf("blob %s content changed by relocation", id)
		}
		lock.Release()
	}
}

func TestRemoveFolderWithoutRoomKeepsData(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	store := newUncompressedStore(t,
		FolderConfig{Path: first, MaximumSize: 10_000},
		FolderConfig{Path: second, MaximumSize: 1_500},
	)
	var ids []uuid.UUID
	for i := range 3 {
		ids = append(ids, addContent(t, store, distinctContent(i, 1000)))
	}
	before := store.FolderStatus()

	err := store.RemoveFolder(context.Background(), first)
	var capacity *CapacityError
	if !errors.As(err, &capacity) {
		t.Fatalf("RemoveFolder = %v, want *CapacityError", err)
	}

	after := store.FolderStatus()
	if len(after) != 2 {
		t.Fatalf("folder count = %d after failed removal, want 2", len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("folder %d changed: %+v -> %+v", i, before[i], after[i])
		}
	}
	for _, id := range ids {
		lock, err := store.Lock(id)
		if err != nil {
			t.Fatalf("blob %s lost: %v", id, err)
		}
		lock.Release()
	}

	// The folder still receives new content.
	addContent(t, store, distinctContent(9, 100))
}

func TestRemoveFolderWaitsForLocks(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	store := newUncompressedStore(t,
		FolderConfig{Path: first, MaximumSize: 10_000},
		FolderConfig{Path: second, MaximumSize: 5_000},
	)
	content := distinctContent(1, 1000)
	id := addContent(t, store, content)
	lock, err := store.Lock(id)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- store.RemoveFolder(context.Background(), first) }()

	testutil.RequireBlocked(t, done, 100*time.Millisecond, "removal finished while a blob was locked")
	if _, err := os.Stat(lock.Path); err != nil {
		t.Fatalf("locked file moved: %v", err)
	}

	lock.Release()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "waiting for removal"); err != nil {
		t.Fatalf("RemoveFolder: %v", err)
	}

	relocated, err := store.Lock(id)
	if err != nil {
		t.Fatalf("Lock after removal: %v", err)
	}
	defer relocated.Release()
	if filepath.Dir(relocated.Path) != second {
		t.Errorf("blob in %s, want %s", filepath.Dir(relocated.Path), second)
	}
}

func TestRemoveFolderCancelledWhileWaiting(t *testing.T) {
	first := t.TempDir()
	store := newUncompressedStore(t,
		FolderConfig{Path: first, MaximumSize: 10_000},
		FolderConfig{Path: t.TempDir(), MaximumSize: 5_000},
	)
	id := addContent(t, store, distinctContent(1, 1000))
	lock, err := store.Lock(id)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer lock.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := store.RemoveFolder(ctx, first); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("RemoveFolder = %v, want context.DeadlineExceeded", err)
	}
	if len(store.FolderStatus()) != 2 {
		t.Error("folder removed despite cancellation")
	}
	// The folder is no longer draining: it takes new blobs again.
	addContent(t, store, distinctContent(2, 6000))
}

func TestUpdateFolderShrinkRelocates(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	store := newUncompressedStore(t,
		FolderConfig{Path: first, MaximumSize: 10_000},
		FolderConfig{Path: second, MaximumSize: 3_000},
	)
	for i := range 4 {
		addContent(t, store, distinctContent(i, 1000))
	}

	if err := store.UpdateFolder(context.Background(), FolderConfig{Path: first, MaximumSize: 2_500}); err != nil {
		t.Fatalf("UpdateFolder: %v", err)
	}
	for _, status := range store.FolderStatus() {
		if status.CurrentSize > status.MaximumSize {
			t.Errorf("folder %s over budget: %+v", status.Path, status)
		}
	}
	if total := totalUsage(store); total != 4000 {
		t.Errorf("total usage = %d, want 4000", total)
	}
}

func TestUpdateFolderShrinkWithoutRoom(t *testing.T) {
	first := t.TempDir()
	store := newUncompressedStore(t, FolderConfig{Path: first, MaximumSize: 10_000})
	addContent(t, store, distinctContent(1, 3000))

	err := store.UpdateFolder(context.Background(), FolderConfig{Path: first, MaximumSize: 1000})
	var capacity *CapacityError
	if !errors.As(err, &capacity) {
		t.Fatalf("UpdateFolder = %v, want *CapacityError", err)
	}
	if maximum := store.FolderStatus()[0].MaximumSize; maximum != 10_000 {
		t.Errorf("MaximumSize = %d after failed shrink, want 10000", maximum)
	}
}

func TestAddFolderRejectsDuplicates(t *testing.T) {
	directory := t.TempDir()
	store := newTestStore(t, FolderConfig{Path: directory, MaximumSize: 1000})

	if err := store.AddFolder(FolderConfig{Path: directory + "/", MaximumSize: 1000}); !errors.Is(err, ErrFolderExists) {
		t.Errorf("AddFolder(same path) = %v, want ErrFolderExists", err)
	}

	alias := filepath.Join(t.TempDir(), "alias")
	if err := os.Symlink(directory, alias); err != nil {
		t.Fatalf("Symlink: %v", err)
	}
	if err := store.AddFolder(FolderConfig{Path: alias, MaximumSize: 1000}); !errors.Is(err, ErrFolderExists) {
		t.Errorf("AddFolder(symlink alias) = %v, want ErrFolderExists", err)
	}
}

func TestUnknownFolder(t *testing.T) {
	store := newTestStore(t)
	if err := store.RemoveFolder(context.Background(), "/nonexistent"); !errors.Is(err, ErrFolderNotFound) {
		t.Errorf("RemoveFolder = %v, want ErrFolderNotFound", err)
	}
	if err := store.UpdateFolder(context.Background(), FolderConfig{Path: "/nonexistent", MaximumSize: 1}); !errors.Is(err, ErrFolderNotFound) {
		t.Errorf("UpdateFolder = %v, want ErrFolderNotFound", err)
	}
}

func TestReconfigureReplacesFolder(t *testing.T) {
	old := t.TempDir()
	replacement := t.TempDir()
	store := newUncompressedStore(t, FolderConfig{Path: old, MaximumSize: 10_000})
	content := distinctContent(1, 2000)
	id := addContent(t, store, content)

	err := store.Reconfigure(context.Background(), []FolderConfig{{Path: replacement, MaximumSize: 20_000}})
	if err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}

	statuses := store.FolderStatus()
	if len(statuses) != 1 || statuses[0].Path != replacement || statuses[0].CurrentSize != 2000 {
		t.Fatalf("folders = %+v, want only %s holding 2000 bytes", statuses, replacement)
	}
	lock, err := store.Lock(id)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer lock.Release()
	if !bytes.Equal(readLocked(t, lock), content) {
		t.Error("content changed across reconfiguration")
	}
}

func TestReconfigureFailureRestoresFolders(t *testing.T) {
	original := t.TempDir()
	resized := t.TempDir()
	added := t.TempDir()
	store := newUncompressedStore(t, FolderConfig{Path: original, MaximumSize: 10_000})
	var ids []uuid.UUID
	for i := range 3 {
		ids = append(ids, addContent(t, store, distinctContent(i, 1000)))
	}
	if err := store.AddFolder(FolderConfig{Path: resized, MaximumSize: 1_000}); err != nil {
		t.Fatalf("AddFolder: %v", err)
	}

	// Dropping the original folder needs 3000 bytes elsewhere; the
	// others offer 2000.
	err := store.Reconfigure(context.Background(), []FolderConfig{
		{Path: resized, MaximumSize: 1_500},
		{Path: added, MaximumSize: 500},
	})
	var capacity *CapacityError
	if !errors.As(err, &capacity) {
		t.Fatalf("Reconfigure = %v, want *CapacityError", err)
	}

	statuses := store.FolderStatus()
	maximums := make(map[string]int64)
	var used int64
	for _, status := range statuses {
		maximums[status.Path] = status.MaximumSize
		used += status.CurrentSize
	}
	if len(maximums) != 2 || maximums[original] != 10_000 || maximums[resized] != 1_000 {
		t.Errorf("folders after failed Reconfigure = %+v, want %s (10000) and %s (1000)", statuses, original, resized)
	}
	if used != 3000 {
		t.Errorf("total usage = %d, want 3000", used)
	}
	for _, id := range ids {
		lock, err := store.Lock(id)
		if err != nil {
			t.Fatalf("blob %s lost: %v", id, err)
		}
		lock.Release()
	}
}

func TestAddFolderLogsRegisteredBlobs(t *testing.T) {
	shared := distinctContent(1, 100)
	populate := func(directory string, contents ...[]byte) {
		t.Helper()
		store := newUncompressedStore(t, FolderConfig{Path: directory, MaximumSize: 10_000})
		for _, content := range contents {
			addContent(t, store, content)
		}
		if err := store.Persist(); err != nil {
			t.Fatalf("Persist: %v", err)
		}
	}
	first := t.TempDir()
	second := t.TempDir()
	populate(first, shared)
	populate(second, shared, distinctContent(2, 100))

	var logs bytes.Buffer
	_, err := Open(Config{
		Folders: []FolderConfig{
			{Path: first, MaximumSize: 10_000},
			{Path: second, MaximumSize: 10_000},
		},
		Compression: compress.None,
		Logger:      slog.New(slog.NewJSONHandler(&logs, nil)),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	type added struct {
		Msg       string `json:"msg"`
		Path      string `json:"path"`
		Blobs     int    `json:"blobs"`
		Discarded int    `json:"discarded"`
	}
	var record added
	for line := range bytes.Lines(logs.Bytes()) {
		var candidate added
		if json.Unmarshal(line, &candidate) == nil && candidate.Msg == "storage folder added" && candidate.Path == second {
			record = candidate
		}
	}
	if record.Msg == "" {
		t.Fatalf("no storage folder added record for %s in %s", second, logs.String())
	}
	if record.Blobs != 1 || record.Discarded != 1 {
		t.Errorf("logged blobs = %d, discarded = %d; want 1 and 1", record.Blobs, record.Discarded)
	}
}

func TestCapacityNeverExceeded(t *testing.T) {
	store := newUncompressedStore(t,
		FolderConfig{Path: t.TempDir(), MaximumSize: 4_000},
		FolderConfig{Path: t.TempDir(), MaximumSize: 4_000},
	)
	var stored int
	for i := range 20 {
		content := distinctContent(i, 700)
		_, err := store.AddBlob(context.Background(), bytes.NewReader(content), int64(len(content)), checksum.Of(content))
		var capacity *CapacityError
		switch {
		case err == nil:
			stored++
		case errors.As(err, &capacity):
		default:
			t.Fatalf("AddBlob: %v", err)
		}
	}
	if stored != 10 {
		t.Errorf("stored %d blobs of 700 bytes in 2x4000 bytes, want 10", stored)
	}
	for _, status := range store.FolderStatus() {
		if status.CurrentSize > status.MaximumSize {
			t.Errorf("folder %s over budget: %+v", status.Path, status)
		}
	}
}
