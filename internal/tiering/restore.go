package tiering

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/egibi/tierd/internal/errors"
	"github.com/egibi/tierd/internal/logging"
)

// Restore copies an archived partition back into the engine's storage area
// and reattaches it. The archived copy on the cold disk is left in place;
// removing it is an explicit operator decision, never a side effect.
func (s *Service) Restore(ctx context.Context, name string) OperationResult {
	if !IsMonthKey(name) {
		return Failure("%v: %q", errors.ErrInvalidPartition, name)
	}

	unlock := s.locks.lock(name)
	defer unlock()

	ctx = logging.ContextWithPartition(logging.ContextWithOperation(ctx, ActionRestore), name)
	plog := logging.WithContext(ctx, log)

	start := s.now()
	cfg := s.store.TieringConfig(ctx)
	src := s.archiveDir(cfg.ExternalDiskPath, name)

	// Precondition: the archive must exist. Nothing has been attempted
	// yet, so no audit entry is written for this.
	if info, err := os.Stat(src); err != nil || !info.IsDir() {
		return Failure("%v: %s under %s", errors.ErrArchiveNotFound, name, filepath.Dir(src))
	}

	dst := s.detachedDir(name)

	// Step 1: copy the archive back in. Nothing has been attached on
	// failure, so there is nothing to roll back.
	if err := s.engineRuntime.CopyTo(ctx, src, dst); err != nil {
		plog.Error("copy into engine storage failed", "error", err)
		s.audit.Append(cfg.ExternalDiskPath, ActionRestore, name, false, fmt.Sprintf("copy failed: %v", err))
		return Failure("copy of %s into engine storage failed: %v", name, err)
	}

	// Step 2: attach. On failure the copied-in files are deleted so a
	// half-restored partition never sits in the engine's storage area
	// consuming space without being queryable.
	if err := s.engine.Attach(ctx, name); err != nil {
		plog.Error("attach failed", "error", err)
		if rmErr := s.engineRuntime.Remove(ctx, dst); rmErr != nil {
			plog.Error("cleanup of copied-in files failed", "error", rmErr)
		}
		s.audit.Append(cfg.ExternalDiskPath, ActionRestore, name, false, fmt.Sprintf("attach failed: %v", err))
		return Failure("attach of %s failed: %v", name, err)
	}

	result := OperationResult{
		Success: true,
		Message: fmt.Sprintf("partition %s restored", name),
	}

	// Confirm the reattached partition is visible and report its row
	// count. The partition is attached and queryable either way, so a
	// verification hiccup is a detail, not a failure.
	if rows, found, err := s.engine.PartitionRowCount(ctx, name); err == nil && found {
		result.AddDetail("%s: attached with %d rows", name, rows)
	} else {
		result.AddDetail("%s: attached (row count unverified)", name)
	}

	s.audit.Append(cfg.ExternalDiskPath, ActionRestore, name, true, "restored from "+src)
	s.stats.Record(ActionRestore, s.now().Sub(start))
	plog.Info("partition restored", "src", src)
	return result
}
