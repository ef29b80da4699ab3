package tiering

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/egibi/tierd/internal/errors"
	"github.com/egibi/tierd/internal/logging"
)

// backupTimeLayout produces names that sort chronologically.
const backupTimeLayout = "2006-01-02_15-04-05"

// Backup produces one compressed full dump of the relational metadata store
// under the external disk, then prunes old dumps down to the retention
// count. Retention is only enforced after a successful dump; a failed dump
// makes no room and deletes nothing.
func (s *Service) Backup(ctx context.Context) OperationResult {
	ctx = logging.ContextWithOperation(ctx, ActionBackup)
	plog := logging.WithContext(ctx, log)

	start := s.now()
	cfg := s.store.TieringConfig(ctx)

	// Precondition: the external disk must be mounted. No process has
	// been invoked yet, so no audit entry is written for this.
	if info, err := os.Stat(cfg.ExternalDiskPath); err != nil || !info.IsDir() {
		return Failure("%v: %s", errors.ErrExternalDiskMissing, cfg.ExternalDiskPath)
	}

	dir := filepath.Join(cfg.ExternalDiskPath, backupSubdir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Failure("create backup directory: %v", err)
	}

	name := "postgres_" + start.UTC().Format(backupTimeLayout) + ".dump"
	path := filepath.Join(dir, name)

	if err := s.dbRuntime.ExecToFile(ctx, s.dumpCommand, path); err != nil {
		plog.Error("database dump failed", "error", err)
		os.Remove(path)
		s.audit.Append(cfg.ExternalDiskPath, ActionBackup, "postgresql", false, fmt.Sprintf("dump failed: %v", err))
		return Failure("database dump failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		os.Remove(path)
		s.audit.Append(cfg.ExternalDiskPath, ActionBackup, "postgresql", false, "dump produced no output")
		return Failure("database dump produced no output")
	}

	result := OperationResult{
		Success: true,
		Message: fmt.Sprintf("backup %s created (%.1f MB)", name, float64(info.Size())/(1024*1024)),
	}

	s.pruneBackups(dir, cfg.MaxPostgresBackups, &result)

	s.audit.Append(cfg.ExternalDiskPath, ActionBackup, "postgresql", true, name)
	s.stats.Record(ActionBackup, s.now().Sub(start))
	plog.Info("backup created", "name", name, "size", info.Size())
	return result
}

// pruneBackups keeps the newest keep dumps by name-embedded timestamp and
// deletes the rest. A failed delete is noted as a detail; the backup itself
// already succeeded.
func (s *Service) pruneBackups(dir string, keep int, result *OperationResult) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		result.AddDetail("retention scan failed: %v", err)
		return
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".dump") {
			names = append(names, entry.Name())
		}
	}

	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	for _, name := range names[min(keep, len(names)):] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			result.AddDetail("failed to delete old backup %s: %v", name, err)
			continue
		}
		result.AddDetail("deleted old backup %s", name)
	}
}
