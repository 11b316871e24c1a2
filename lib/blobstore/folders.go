// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/dustin/go-humanize"

	"github.com/renderfleet/missioncontrol/lib/rollback"
)

// AddFolder starts using a new storage folder. Blobs already recorded
// in the folder's metadata are loaded. The folder is created if
// missing.
func (s *Store) AddFolder(config FolderConfig) error {
	s.reconfiguring.Lock()
	defer s.reconfiguring.Unlock()

	if err := s.addFolder(config); err != nil {
		return err
	}
	s.notify()
	return nil
}

// UpdateFolder changes a folder's maximum size. Shrinking it below its
// usage moves blobs to other folders first; when they cannot take the
// excess the maximum is left unchanged and *CapacityError is returned.
func (s *Store) UpdateFolder(ctx context.Context, config FolderConfig) error {
	s.reconfiguring.Lock()
	defer s.reconfiguring.Unlock()

	if err := s.updateFolder(ctx, config); err != nil {
		return err
	}
	s.notify()
	return nil
}

// RemoveFolder stops using a folder after moving every blob it holds
// to the remaining folders. Locked blobs are waited for. If the other
// folders cannot take the content, or ctx ends first, the folder stays
// configured and every blob stays readable.
func (s *Store) RemoveFolder(ctx context.Context, path string) error {
	s.reconfiguring.Lock()
	defer s.reconfiguring.Unlock()

	if err := s.removeFolder(ctx, path); err != nil {
		return err
	}
	s.notify()
	return nil
}

// Reconfigure brings the folder set in line with folders. New folders
// are added first so that shrinking or removing existing ones has
// somewhere to move blobs to. On failure, the folders added and the
// sizes changed by this call are put back before returning.
func (s *Store) Reconfigure(ctx context.Context, folders []FolderConfig) error {
	s.reconfiguring.Lock()
	defer s.reconfiguring.Unlock()
	defer s.notify()

	wanted := make(map[string]FolderConfig, len(folders))
	for _, config := range folders {
		wanted[filepath.Clean(config.Path)] = config
	}

	s.mu.RLock()
	current := make([]FolderConfig, 0, len(s.folders))
	for _, f := range s.folders {
		current = append(current, FolderConfig{Path: f.path, MaximumSize: f.maximum})
	}
	s.mu.RUnlock()

	scope := rollback.New(s.logger)
	defer scope.Unwind(context.WithoutCancel(ctx))

	for _, config := range folders {
		path := filepath.Clean(config.Path)
		if slices.ContainsFunc(current, func(existing FolderConfig) bool { return existing.Path == path }) {
			continue
		}
		if err := s.addFolder(config); err != nil {
			return err
		}
		scope.Push("remove storage folder "+path, func(ctx context.Context) error {
			return s.removeFolder(ctx, path)
		})
	}
	for _, existing := range current {
		config, ok := wanted[existing.Path]
		if !ok || config.MaximumSize == existing.MaximumSize {
			continue
		}
		if err := s.updateFolder(ctx, config); err != nil {
			return err
		}
		scope.Push("restore size of storage folder "+existing.Path, func(ctx context.Context) error {
			return s.updateFolder(ctx, existing)
		})
	}
	for _, existing := range current {
		if _, ok := wanted[existing.Path]; !ok {
			if err := s.removeFolder(ctx, existing.Path); err != nil {
				return err
			}
		}
	}
	scope.Commit()
	return nil
}

func (s *Store) addFolder(config FolderConfig) error {
	path := filepath.Clean(config.Path)
	if !filepath.IsAbs(path) {
		return fmt.Errorf("blobstore: storage folder %q is not an absolute path", config.Path)
	}
	if config.MaximumSize <= 0 {
		return fmt.Errorf("blobstore: storage folder %s: maximum size must be positive", path)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("blobstore: creating storage folder: %w", err)
	}
	identity, err := identify(path)
	if err != nil {
		return fmt.Errorf("blobstore: storage folder %s: %w", path, err)
	}

	s.mu.RLock()
	err = s.checkDuplicate(path, identity)
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	records, err := loadMetadata(path, s.logger)
	if err != nil {
		return err
	}

	added := &folder{path: path, maximum: config.MaximumSize, identity: identity}

	var discard []string
	s.mu.Lock()
	if err := s.checkDuplicate(path, identity); err != nil {
		s.mu.Unlock()
		return err
	}
	registered := 0
	for _, record := range records {
		restored := record.blob(added)
		if _, exists := s.byChecksum[record.Checksum]; exists {
			discard = append(discard, restored.path())
			added.dirty = true
			continue
		}
		s.blobs[restored.id] = restored
		s.byChecksum[restored.sum] = restored
		added.used += restored.compressedSize
		registered++
	}
	s.folders = append(s.folders, added)
	if s.purged {
		purged := s.purgeLocked(added)
		registered -= len(purged)
		discard = append(discard, purged...)
	}
	used := added.used
	s.mu.Unlock()

	for _, path := range discard {
		s.removeFile(path)
	}

	s.logger.Info("storage folder added",
		"path", path,
		"maximum_size", humanize.IBytes(uint64(config.MaximumSize)),
		"used", humanize.IBytes(uint64(used)),
		"blobs", registered,
		"discarded", len(discard),
	)
	if available, err := availableSpace(path); err == nil && available+used < config.MaximumSize {
		s.logger.Warn("storage folder maximum exceeds free disk space",
			"path", path,
			"maximum_size", humanize.IBytes(uint64(config.MaximumSize)),
			"disk_available", humanize.IBytes(uint64(available)),
		)
	}
	return nil
}

// checkDuplicate must be called with s.mu held.
func (s *Store) checkDuplicate(path string, identity fileIdentity) error {
	for _, f := range s.folders {
		if f.path == path {
			return fmt.Errorf("%w: %s", ErrFolderExists, path)
		}
		if f.identity == identity {
			return fmt.Errorf("%w: %s is the same directory as %s", ErrFolderExists, path, f.path)
		}
	}
	return nil
}

func (s *Store) updateFolder(ctx context.Context, config FolderConfig) error {
	if config.MaximumSize <= 0 {
		return fmt.Errorf("blobstore: storage folder %s: maximum size must be positive", config.Path)
	}

	s.mu.Lock()
	target := s.findFolder(config.Path)
	if target == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrFolderNotFound, config.Path)
	}
	previous := target.maximum
	excess := target.used + target.reserved - config.MaximumSize
	if excess > 0 {
		if room := s.roomOutside(target); room < excess {
			s.mu.Unlock()
			return &CapacityError{Needed: excess, Largest: room}
		}
	}
	target.maximum = config.MaximumSize
	s.mu.Unlock()

	if excess > 0 {
		err := s.evacuate(ctx, target, func() bool {
			return target.used+target.reserved <= target.maximum
		})
		if err != nil {
			s.mu.Lock()
			target.maximum = previous
			s.mu.Unlock()
			return err
		}
		if err := s.Persist(); err != nil {
			s.logger.Error("persisting metadata after folder shrink", "error", err)
		}
	}

	s.logger.Info("storage folder updated",
		"path", target.path,
		"maximum_size", humanize.IBytes(uint64(config.MaximumSize)),
		"previous_maximum_size", humanize.IBytes(uint64(previous)),
	)
	return nil
}

func (s *Store) removeFolder(ctx context.Context, path string) error {
	s.mu.Lock()
	target := s.findFolder(path)
	if target == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrFolderNotFound, path)
	}
	if room := s.roomOutside(target); room < target.used {
		s.mu.Unlock()
		return &CapacityError{Needed: target.used, Largest: room}
	}
	target.draining = true
	s.mu.Unlock()

	err := s.evacuate(ctx, target, func() bool {
		return target.used == 0 && target.reserved == 0
	})
	if err != nil {
		s.mu.Lock()
		target.draining = false
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.folders = slices.DeleteFunc(s.folders, func(f *folder) bool { return f == target })
	s.mu.Unlock()

	if err := s.Persist(); err != nil {
		s.logger.Error("persisting metadata after folder removal", "error", err)
	}

	if err := os.Remove(filepath.Join(target.path, metadataName)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("removing metadata of removed storage folder", "path", target.path, "error", err)
	}
	s.logger.Info("storage folder removed", "path", target.path)
	return nil
}

// roomOutside returns the free space of every folder except exclude
// that can receive blobs. Must be called with s.mu held.
func (s *Store) roomOutside(exclude *folder) int64 {
	var room int64
	for _, f := range s.folders {
		if f != exclude && !f.draining {
			room += max(f.free(), 0)
		}
	}
	return room
}

// evacuate moves unlocked blobs out of source until done reports true.
// When only locked blobs remain it waits for locks to be released.
func (s *Store) evacuate(ctx context.Context, source *folder, done func() bool) error {
	for {
		s.mu.Lock()
		if done() {
			s.mu.Unlock()
			return nil
		}
		var movable []*blob
		for _, b := range s.blobs {
			if b.folder == source && b.locks.Load() == 0 && !b.zombie {
				movable = append(movable, b)
			}
		}
		if len(movable) == 0 {
			wake := s.changed
			s.mu.Unlock()
			select {
			case <-wake:
				continue
			case <-ctx.Done():
				return fmt.Errorf("blobstore: waiting for locked blobs in %s: %w", source.path, ctx.Err())
			}
		}
		s.mu.Unlock()

		slices.SortFunc(movable, func(a, b *blob) int { return cmp.Compare(b.compressedSize, a.compressedSize) })
		for _, candidate := range movable {
			s.mu.Lock()
			finished := done()
			s.mu.Unlock()
			if finished {
				return nil
			}
			if err := s.move(ctx, candidate, source); err != nil {
				return err
			}
		}
	}
}

// move copies one blob out of source into the best other folder. A
// blob that was locked or deleted while being copied is left alone;
// evacuate comes back to it.
func (s *Store) move(ctx context.Context, b *blob, source *folder) error {
	s.mu.Lock()
	if b.deleted || b.folder != source || b.locks.Load() > 0 {
		s.mu.Unlock()
		return nil
	}
	destination, err := s.chooseFolder(b.compressedSize, source)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	destination.reserved += b.compressedSize
	sourcePath := b.path()
	s.mu.Unlock()

	temporaryPath, copyErr := copyIncoming(ctx, sourcePath, destination.path)

	s.mu.Lock()
	destination.reserved -= b.compressedSize
	s.signal()
	if copyErr != nil {
		deleted := b.deleted
		s.mu.Unlock()
		if deleted {
			return nil
		}
		return fmt.Errorf("blobstore: moving blob %s: %w", b.id, copyErr)
	}
	if b.deleted || b.folder != source || b.locks.Load() > 0 {
		s.mu.Unlock()
		os.Remove(temporaryPath)
		return nil
	}
	finalPath := filepath.Join(destination.path, b.id.String())
	if err := os.Rename(temporaryPath, finalPath); err != nil {
		s.mu.Unlock()
		os.Remove(temporaryPath)
		return fmt.Errorf("blobstore: moving blob %s: %w", b.id, err)
	}
	source.used -= b.compressedSize
	source.dirty = true
	destination.used += b.compressedSize
	destination.dirty = true
	b.folder = destination
	s.mu.Unlock()

	s.removeFile(sourcePath)
	s.logger.Debug("blob moved", "blob_id", b.id, "from", source.path, "to", destination.path)
	return nil
}

// copyIncoming copies the file at source into a new temporary file in
// directory and returns its path.
func copyIncoming(ctx context.Context, source, directory string) (string, error) {
	input, err := os.Open(source)
	if err != nil {
		return "", err
	}
	defer input.Close()

	output, err := os.CreateTemp(directory, incomingPrefix+"*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(output, &contextReader{ctx: ctx, reader: input}); err != nil {
		output.Close()
		os.Remove(output.Name())
		return "", err
	}
	if err := output.Sync(); err != nil {
		output.Close()
		os.Remove(output.Name())
		return "", err
	}
	if err := output.Close(); err != nil {
		os.Remove(output.Name())
		return "", err
	}
	return output.Name(), nil
}
