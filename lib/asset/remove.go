// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package asset

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// RemoveAsset removes an asset and releases its payloads. It returns
// ErrAssetInUse, without removing anything, while an InUseChecker
// reports the asset in use, and ErrNotFound for an unknown id.
//
// The asset disappears from readers before its payloads are released.
// Failures releasing payloads or deleting the index row are logged:
// the asset is gone either way.
func (r *Registry) RemoveAsset(ctx context.Context, id uuid.UUID) error {
	r.guard.Lock()
	defer r.guard.Unlock()

	r.checkersMu.Lock()
	checkers := r.checkers
	r.checkersMu.Unlock()
	for _, checker := range checkers {
		if checker.InUse(id) {
			return fmt.Errorf("%w: %s", ErrAssetInUse, id)
		}
	}

	removed, ok := r.assets.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if _, ok := r.assets.Remove(id); !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := r.index.delete(context.WithoutCancel(ctx), id); err != nil {
		r.logger.Error("deleting asset row", "asset_id", id, "error", err)
	}
	for _, payloadID := range removed.PayloadIDs() {
		if err := r.payloads.Remove(payloadID); err != nil {
			r.logger.Error("releasing asset payload", "asset_id", id, "payload_id", payloadID, "error", err)
		}
	}

	r.logger.Info("asset removed", "asset_id", id, "name", removed.Name)
	return nil
}
