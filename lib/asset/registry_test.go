// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package asset

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/renderfleet/missioncontrol/lib/blobstore"
	"github.com/renderfleet/missioncontrol/lib/checksum"
	"github.com/renderfleet/missioncontrol/lib/clock"
	"github.com/renderfleet/missioncontrol/lib/compress"
	"github.com/renderfleet/missioncontrol/lib/launchcatalog"
	"github.com/renderfleet/missioncontrol/lib/payload"
	"github.com/renderfleet/missioncontrol/lib/testutil"
)

type fixture struct {
	t        *testing.T
	state    string
	blobDir  string
	capacity int64
	clock    *clock.FakeClock

	blobs    *blobstore.Store
	payloads *payload.Registry
	registry *Registry
	fs       afero.Fs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		state:    t.TempDir(),
		blobDir:  t.TempDir(),
		capacity: 1 << 20,
		clock:    clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		fs:       afero.NewMemMapFs(),
	}
	f.open()
	t.Cleanup(func() { f.registry.Close() })
	return f
}

// open starts (or restarts) the three layers the way the daemon does:
// blobs, then payloads claiming their blobs, then assets, then the
// purge of whatever nothing claimed.
func (f *fixture) open() {
	f.t.Helper()
	logger := testutil.Logger(f.t)
	var err error
	f.blobs, err = blobstore.Open(blobstore.Config{
		Folders:     []blobstore.FolderConfig{{Path: f.blobDir, MaximumSize: f.capacity}},
		Compression: compress.None,
		Logger:      logger,
	})
	if err != nil {
		f.t.Fatalf("blobstore.Open: %v", err)
	}
	f.payloads, err = payload.Open(payload.Config{
		Directory: filepath.Join(f.state, "payloads"),
		Blobs:     f.blobs,
		Logger:    logger,
	})
	if err != nil {
		f.t.Fatalf("payload.Open: %v", err)
	}
	f.registry, err = Open(context.Background(), Config{
		Blobs:        f.blobs,
		Payloads:     f.payloads,
		DatabasePath: filepath.Join(f.state, "assets.db"),
		Concurrency:  2,
		Clock:        f.clock,
		Logger:       logger,
	})
	if err != nil {
		f.t.Fatalf("Open: %v", err)
	}
	f.blobs.PurgeUnreferenced()
}

// crash reopens every layer without persisting or closing anything,
// as after the process is killed.
func (f *fixture) crash() {
	f.t.Helper()
	abandoned := f.registry
	f.t.Cleanup(func() { abandoned.Close() })
	f.open()
}

func (f *fixture) restart() {
	f.t.Helper()
	if err := f.blobs.Persist(); err != nil {
		f.t.Fatalf("Persist: %v", err)
	}
	if err := f.registry.Close(); err != nil {
		f.t.Fatalf("Close: %v", err)
	}
	f.open()
}

// build writes an asset directory holding files and a catalog with one
// payload per entry of payloads (payload name to file paths) and one
// launchable using every payload.
func (f *fixture) build(root string, files map[string]string, payloads map[string][]string) Source {
	f.t.Helper()
	catalog := launchcatalog.Catalog{}
	var names []string
	for name, paths := range payloads {
		catalogPayload := launchcatalog.Payload{Name: name}
		for _, path := range paths {
			catalogPayload.Files = append(catalogPayload.Files, launchcatalog.PayloadFile{
				Path:     path,
				Checksum: checksum.Of([]byte(files[path])),
			})
		}
		catalog.Payloads = append(catalog.Payloads, catalogPayload)
		names = append(names, name)
	}
	catalog.Launchables = []launchcatalog.Launchable{{
		Name:       "node",
		Type:       "clusterNode",
		Payloads:   names,
		LaunchPath: "player",
		GlobalParameters: []launchcatalog.Parameter{{
			ID: "port", Type: launchcatalog.Integer, DefaultValue: 25690,
		}},
	}}
	return f.buildCatalog(root, files, catalog)
}

func (f *fixture) buildCatalog(root string, files map[string]string, catalog launchcatalog.Catalog) Source {
	f.t.Helper()
	encoded, err := json.Marshal(catalog)
	if err != nil {
		f.t.Fatalf("encoding catalog: %v", err)
	}
	tree := map[string][]byte{launchcatalog.FileName: encoded}
	for path, content := range files {
		tree[path] = []byte(content)
	}
	testutil.WriteTree(f.t, f.fs, root, tree)
	return NewFolderSource(f.fs, root)
}

func (f *fixture) references(content string) int64 {
	f.t.Helper()
	info, ok := f.blobs.Lookup(checksum.Of([]byte(content)))
	if !ok {
		return -1
	}
	return info.References
}

func TestAddAsset(t *testing.T) {
	f := newFixture(t)
	files := map[string]string{
		"player":      "player executable",
		"data/a.pak":  "level a",
		"data/b.pak":  "level b",
		"data/shared": "shared data",
	}
	source := f.build("/build", files, map[string][]string{
		"binaries": {"player", "data/shared"},
		"levels":   {"data/a.pak", "data/b.pak", "data/shared"},
	})

	id, err := f.registry.AddAsset(context.Background(), Info{Name: "Demo", Description: "nightly"}, source)
	if err != nil {
		t.Fatalf("AddAsset: %v", err)
	}

	added, err := f.registry.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if added.Name != "Demo" || added.Description != "nightly" || !added.Added.Equal(f.clock.Now()) {
		t.Errorf("asset = %+v", added)
	}
	var want int64
	for _, content := range files {
		want += int64(len(content))
	}
	if added.StorageSize != want {
		t.Errorf("StorageSize = %d, want %d (distinct blobs only)", added.StorageSize, want)
	}
	if len(added.Launchables) != 1 || len(added.Launchables[0].Payloads) != 2 {
		t.Fatalf("launchables = %+v", added.Launchables)
	}
	if port := added.Launchables[0].GlobalParameters[0].DefaultValue; port != int64(25690) {
		t.Errorf("port default = %#v, want int64(25690)", port)
	}

	// Ingestion references are gone: each blob is referenced once per
	// payload listing it.
	for path, payloads := range map[string]int64{"player": 1, "data/a.pak": 1, "data/shared": 2} {
		if got := f.references(files[path]); got != payloads {
			t.Errorf("%s references = %d, want %d", path, got, payloads)
		}
	}
	if f.payloads.Len() != 2 {
		t.Errorf("payloads = %d, want 2", f.payloads.Len())
	}
}

func TestAddAssetDeduplicatesAcrossAssets(t *testing.T) {
	f := newFixture(t)
	first := f.build("/v1", map[string]string{"player": "same binary", "level": "level v1"},
		map[string][]string{"all": {"player", "level"}})
	second := f.build("/v2", map[string]string{"player": "same binary", "level": "level v2"},
		map[string][]string{"all": {"player", "level"}})

	for _, source := range []Source{first, second} {
		if _, err := f.registry.AddAsset(context.Background(), Info{Name: "Demo"}, source); err != nil {
			t.Fatalf("AddAsset: %v", err)
		}
	}
	if got := f.references("same binary"); got != 2 {
		t.Errorf("shared blob references = %d, want 2", got)
	}
	if f.blobs.Len() != 3 {
		t.Errorf("blobs = %d, want 3", f.blobs.Len())
	}
}

func TestAddAssetIntegrityFailureLeavesNothing(t *testing.T) {
	f := newFixture(t)
	existing := f.build("/existing", map[string]string{"shared": "shared content"},
		map[string][]string{"p": {"shared"}})
	if _, err := f.registry.AddAsset(context.Background(), Info{Name: "Existing"}, existing); err != nil {
		t.Fatalf("AddAsset: %v", err)
	}
	blobsBefore, payloadsBefore := f.blobs.Len(), f.payloads.Len()

	files := map[string]string{
		"1": "one", "2": "two", "shared": "shared content", "4": "four", "5": "five",
	}
	source := f.build("/broken", files, map[string][]string{"p": {"1", "2", "shared", "4", "5"}, "q": {"3"}})
	// File 3 is listed with the checksum of different content.
	testutil.WriteTree(t, f.fs, "/broken", map[string][]byte{"3": []byte("tampered")})

	_, err := f.registry.AddAsset(context.Background(), Info{Name: "Broken"}, source)
	var manifest *launchcatalog.ManifestError
	var integrity *blobstore.IntegrityError
	if !errors.As(err, &manifest) || !errors.As(err, &integrity) {
		t.Fatalf("AddAsset = %v, want a ManifestError wrapping an IntegrityError", err)
	}

	if got := len(f.registry.List()); got != 1 {
		t.Errorf("assets = %d, want only the existing one", got)
	}
	if f.payloads.Len() != payloadsBefore {
		t.Errorf("payloads = %d, want %d", f.payloads.Len(), payloadsBefore)
	}
	if f.blobs.Len() != blobsBefore {
		t.Errorf("blobs = %d, want %d", f.blobs.Len(), blobsBefore)
	}
	if got := f.references("shared content"); got != 1 {
		t.Errorf("shared references = %d, want 1 as before the call", got)
	}
}

func TestAddAssetUnknownPayloadRollsBack(t *testing.T) {
	f := newFixture(t)
	files := map[string]string{"player": "player"}
	catalog := launchcatalog.Catalog{
		Payloads: []launchcatalog.Payload{{Name: "p", Files: []launchcatalog.PayloadFile{
			{Path: "player", Checksum: checksum.Of([]byte("player"))},
		}}},
		Launchables: []launchcatalog.Launchable{{Name: "node", Payloads: []string{"p", "missing"}}},
	}
	source := f.buildCatalog("/build", files, catalog)

	_, err := f.registry.AddAsset(context.Background(), Info{Name: "Demo"}, source)
	var manifest *launchcatalog.ManifestError
	if !errors.As(err, &manifest) {
		t.Fatalf("AddAsset = %v, want *ManifestError", err)
	}
	if f.payloads.Len() != 0 {
		t.Errorf("payloads = %d after rollback, want 0", f.payloads.Len())
	}
	if f.blobs.Len() != 0 {
		t.Errorf("blobs = %d after rollback, want 0", f.blobs.Len())
	}
}

func TestAddAssetInvalidCatalogTouchesNothing(t *testing.T) {
	f := newFixture(t)
	catalog := launchcatalog.Catalog{
		Payloads: []launchcatalog.Payload{{Name: "p", Files: []launchcatalog.PayloadFile{
			{Path: "player", Checksum: checksum.Of([]byte("player"))},
		}}},
		Launchables: []launchcatalog.Launchable{{Name: "dup"}, {Name: "dup"}},
	}
	source := f.buildCatalog("/build", map[string]string{"player": "player"}, catalog)

	var manifest *launchcatalog.ManifestError
	if _, err := f.registry.AddAsset(context.Background(), Info{Name: "Demo"}, source); !errors.As(err, &manifest) {
		t.Fatalf("AddAsset = %v, want *ManifestError", err)
	}
	if f.blobs.Len() != 0 {
		t.Errorf("blobs = %d, want nothing stored", f.blobs.Len())
	}
}

func TestAddAssetCapacity(t *testing.T) {
	f := newFixture(t)
	big := string(make([]byte, 2<<20))
	source := f.build("/build", map[string]string{"small": "small", "big": big},
		map[string][]string{"p": {"small", "big"}})

	_, err := f.registry.AddAsset(context.Background(), Info{Name: "Huge"}, source)
	var capacity *blobstore.CapacityError
	if !errors.As(err, &capacity) {
		t.Fatalf("AddAsset = %v, want *CapacityError", err)
	}
	if usage := f.blobs.FolderStatus()[0].CurrentSize; usage != 0 {
		t.Errorf("folder usage = %d after failure, want 0", usage)
	}
}

func TestAddAssetCancelled(t *testing.T) {
	f := newFixture(t)
	source := f.build("/build", map[string]string{"a": "a"}, map[string][]string{"p": {"a"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.registry.AddAsset(ctx, Info{Name: "Demo"}, source); !errors.Is(err, context.Canceled) {
		t.Fatalf("AddAsset = %v, want context.Canceled", err)
	}
	if f.blobs.Len() != 0 || f.payloads.Len() != 0 {
		t.Errorf("cancelled ingestion left %d blobs and %d payloads", f.blobs.Len(), f.payloads.Len())
	}
}

type inUse map[uuid.UUID]bool

func (u inUse) InUse(id uuid.UUID) bool { return u[id] }

func TestRemoveAsset(t *testing.T) {
	f := newFixture(t)
	files := map[string]string{"player": "player", "level": "level"}
	source := f.build("/build", files, map[string][]string{"a": {"player"}, "b": {"player", "level"}})
	id, err := f.registry.AddAsset(context.Background(), Info{Name: "Demo"}, source)
	if err != nil {
		t.Fatalf("AddAsset: %v", err)
	}

	selected := inUse{id: true}
	f.registry.AddInUseChecker(selected)
	if err := f.registry.RemoveAsset(context.Background(), id); !errors.Is(err, ErrAssetInUse) {
		t.Fatalf("RemoveAsset = %v, want ErrAssetInUse", err)
	}
	if _, err := f.registry.Get(id); err != nil {
		t.Fatalf("asset removed despite being in use: %v", err)
	}

	delete(selected, id)
	if err := f.registry.RemoveAsset(context.Background(), id); err != nil {
		t.Fatalf("RemoveAsset: %v", err)
	}
	if _, err := f.registry.Get(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after removal = %v, want ErrNotFound", err)
	}
	if f.payloads.Len() != 0 || f.blobs.Len() != 0 {
		t.Errorf("removal left %d payloads and %d blobs", f.payloads.Len(), f.blobs.Len())
	}
	if err := f.registry.RemoveAsset(context.Background(), id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second RemoveAsset = %v, want ErrNotFound", err)
	}
}

func TestRestartRestoresAssetsAndReferences(t *testing.T) {
	f := newFixture(t)
	files := map[string]string{"player": "player", "level": "level"}
	id, err := f.registry.AddAsset(context.Background(), Info{Name: "Demo"},
		f.build("/build", files, map[string][]string{"a": {"player"}, "b": {"player", "level"}}))
	if err != nil {
		t.Fatalf("AddAsset: %v", err)
	}
	before, _ := f.registry.Get(id)

	f.restart()

	after, err := f.registry.Get(id)
	if err != nil {
		t.Fatalf("asset lost across restart: %v", err)
	}
	if after.StorageSize != before.StorageSize || len(after.PayloadIDs()) != 2 || !after.Added.Equal(before.Added) {
		t.Errorf("asset after restart = %+v, want %+v", after, before)
	}
	if got := f.references("player"); got != 2 {
		t.Errorf("player references after restart = %d, want 2", got)
	}
	if got := f.references("level"); got != 1 {
		t.Errorf("level references after restart = %d, want 1", got)
	}
}

func TestCrashAfterAddKeepsAsset(t *testing.T) {
	f := newFixture(t)
	files := map[string]string{"player": "player binary", "level": "level data"}
	id, err := f.registry.AddAsset(context.Background(), Info{Name: "Demo"},
		f.build("/build", files, map[string][]string{"all": {"player", "level"}}))
	if err != nil {
		t.Fatalf("AddAsset: %v", err)
	}

	f.crash()

	added, err := f.registry.Get(id)
	if err != nil {
		t.Fatalf("asset lost in crash: %v", err)
	}
	if f.payloads.Len() != 1 {
		t.Fatalf("payloads after crash = %d, want 1", f.payloads.Len())
	}
	for _, payloadID := range added.PayloadIDs() {
		if _, err := f.payloads.Get(payloadID); err != nil {
			t.Errorf("payload %s after crash: %v", payloadID, err)
		}
	}
	for path, content := range files {
		if got := f.references(content); got != 1 {
			t.Errorf("%s references after crash = %d, want 1", path, got)
		}
	}
}

func TestAddAssetReusesKnownContentWithoutReading(t *testing.T) {
	f := newFixture(t)
	if _, err := f.registry.AddAsset(context.Background(), Info{Name: "v1"},
		f.build("/v1", map[string]string{"player": "same binary"}, map[string][]string{"all": {"player"}})); err != nil {
		t.Fatalf("AddAsset: %v", err)
	}

	// The second build's catalog lists the known binary, but the file
	// itself is absent from the folder.
	source := f.build("/v2", map[string]string{"player": "same binary", "level": "new level"},
		map[string][]string{"all": {"player", "level"}})
	if err := f.fs.Remove("/v2/player"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := f.registry.AddAsset(context.Background(), Info{Name: "v2"}, source); err != nil {
		t.Fatalf("AddAsset with known content missing from the source: %v", err)
	}
	if got := f.references("same binary"); got != 2 {
		t.Errorf("shared references = %d, want 2", got)
	}
	if got := f.references("new level"); got != 1 {
		t.Errorf("new level references = %d, want 1", got)
	}
}

func TestRestartRemovesOrphanPayloads(t *testing.T) {
	f := newFixture(t)
	content := "left behind by a crash"
	blobID, err := f.blobs.AddBlob(context.Background(), strings.NewReader(content), int64(len(content)), checksum.Of([]byte(content)))
	if err != nil {
		t.Fatalf("AddBlob: %v", err)
	}
	orphan := payload.Payload{ID: uuid.New(), Files: []payload.File{{Path: "x", BlobID: blobID}}}
	if err := f.payloads.Add(orphan); err != nil {
		t.Fatalf("payloads.Add: %v", err)
	}

	f.restart()

	if f.payloads.Len() != 0 {
		t.Errorf("orphan payload survived restart")
	}
	if f.blobs.Len() != 0 {
		t.Errorf("orphan payload's blob survived restart")
	}
}

func TestListSortedByName(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"charlie", "alpha", "bravo"} {
		source := f.build("/"+name, map[string]string{"f": name}, map[string][]string{"p": {"f"}})
		if _, err := f.registry.AddAsset(context.Background(), Info{Name: name}, source); err != nil {
			t.Fatalf("AddAsset: %v", err)
		}
	}
	var names []string
	for _, listed := range f.registry.List() {
		names = append(names, listed.Name)
	}
	if len(names) != 3 || names[0] != "alpha" || names[1] != "bravo" || names[2] != "charlie" {
		t.Errorf("List = %v, want alphabetical", names)
	}
}
