package tiering

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/egibi/tierd/internal/logging"
)

// ArchiveRequest optionally names the partitions to archive. When empty, the
// eligible set is computed from the catalog.
type ArchiveRequest struct {
	Partitions []string `json:"partitions,omitempty"`
}

// Archive moves eligible partitions from the hot tier to the cold disk, one
// at a time. Sequential processing is deliberate: it bounds the number of
// concurrent partition-structure changes against the engine to one.
func (s *Service) Archive(ctx context.Context, req ArchiveRequest) OperationResult {
	ctx = logging.ContextWithOperation(ctx, ActionArchive)
	cfg := s.store.TieringConfig(ctx)

	candidates := req.Partitions
	if len(candidates) == 0 {
		for _, p := range s.catalog.ListHot(ctx, cfg.KeepMonths) {
			if p.IsArchiveEligible {
				candidates = append(candidates, p.Name)
			}
		}
	}

	if len(candidates) == 0 {
		return OperationResult{
			Success: true,
			Message: fmt.Sprintf("no partitions beyond the %d-month retention horizon", cfg.KeepMonths),
		}
	}

	// The copy destination's parent must exist before docker cp runs; on a
	// freshly provisioned cold disk it does not.
	if err := os.MkdirAll(filepath.Join(cfg.ExternalDiskPath, archiveSubdir), 0755); err != nil {
		return Failure("create archive directory: %v", err)
	}

	var result OperationResult
	archived := 0
	for _, name := range candidates {
		if s.archivePartition(ctx, cfg, name, &result) {
			archived++
		}
	}

	result.Success = archived > 0
	result.Message = fmt.Sprintf("archived %d of %d partitions", archived, len(candidates))
	return result
}

// archivePartition runs the per-partition state machine: detach, copy,
// cleanup, audit. Each step's compensation sits next to the step itself.
func (s *Service) archivePartition(ctx context.Context, cfg TieringConfig, name string, result *OperationResult) bool {
	unlock := s.locks.lock(name)
	defer unlock()

	ctx = logging.ContextWithPartition(ctx, name)
	plog := logging.WithContext(ctx, log)

	start := s.now()
	detached := s.detachedDir(name)
	dest := s.archiveDir(cfg.ExternalDiskPath, name)

	// Step 1: detach. Nothing external has changed yet on failure, so
	// there is nothing to roll back.
	if err := s.engine.Detach(ctx, name); err != nil {
		plog.Warn("detach failed", "error", err)
		result.AddDetail("%s: detach failed: %v", name, err)
		s.audit.Append(cfg.ExternalDiskPath, ActionArchive, name, false, fmt.Sprintf("detach failed: %v", err))
		return false
	}

	// Step 2: copy to cold storage. A detached, uncopied partition is
	// queryable nowhere, so reattach before reporting the failure.
	if err := s.engineRuntime.CopyFrom(ctx, detached, dest); err != nil {
		plog.Error("copy to cold storage failed", "error", err)
		if attachErr := s.engine.Attach(ctx, name); attachErr != nil {
			plog.Error("reattach after failed copy also failed; partition left detached",
				"error", attachErr)
			result.AddDetail("%s: copy failed (%v); reattach also failed (%v), partition left detached",
				name, err, attachErr)
		} else {
			result.AddDetail("%s: copy failed, partition reattached: %v", name, err)
		}
		s.audit.Append(cfg.ExternalDiskPath, ActionArchive, name, false, fmt.Sprintf("copy failed: %v", err))
		return false
	}

	// Step 3: delete the detached remnant. The cold copy is the source of
	// truth now; a failed delete leaves an inert remnant behind and is a
	// hygiene issue, not a correctness issue.
	var cleanupNote string
	if err := s.engineRuntime.Remove(ctx, detached); err != nil {
		plog.Warn("cleanup of detached files failed", "error", err)
		cleanupNote = fmt.Sprintf(" (detached file cleanup failed: %v)", err)
	}

	result.AddDetail("%s: archived to %s%s", name, dest, cleanupNote)
	s.audit.Append(cfg.ExternalDiskPath, ActionArchive, name, true, dest)
	s.stats.Record(ActionArchive, s.now().Sub(start))
	plog.Info("partition archived", "dest", dest)
	return true
}
