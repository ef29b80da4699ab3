package tiering

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/egibi/tierd/internal/logging"
	"github.com/egibi/tierd/internal/runtime"
)

var log = logging.Component("tiering")

// backupSubdir is the directory under the external disk path that holds
// database dumps.
const backupSubdir = "pg_backups"

// ConfigStore loads and persists the tiering policy record.
type ConfigStore interface {
	TieringConfig(ctx context.Context) TieringConfig
	SaveTieringConfig(ctx context.Context, cfg TieringConfig) (TieringConfig, error)
}

// TokenCleaner prunes stale credentials from the relational store.
type TokenCleaner interface {
	CleanupTokens(ctx context.Context) CleanupResult
}

// CleanupResult reports what a credential pruning pass achieved. Partial
// progress is reported, never masked as total failure.
type CleanupResult struct {
	ExpiredTokensPruned       int64  `json:"expiredTokensPruned"`
	StaleAuthorizationsPruned int64  `json:"staleAuthorizationsPruned"`
	VacuumCompleted           bool   `json:"vacuumCompleted"`
	Message                   string `json:"message"`
}

// Options wires a Service together.
type Options struct {
	Store   ConfigStore
	Cleaner TokenCleaner
	Engine  EngineClient

	// EngineRuntime moves partition files across the engine's container
	// boundary; DBRuntime executes the database dump.
	EngineRuntime runtime.Runtime
	DBRuntime     runtime.Runtime

	// EngineDataDir is the engine's storage area as seen by EngineRuntime.
	EngineDataDir string

	// HotDiskPath is the host mount probed for the threshold signal.
	HotDiskPath string

	// DumpCommand produces a compressed full dump of the relational store
	// on stdout, e.g. pg_dump -U egibi -Fc egibi.
	DumpCommand []string

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Service owns the lifecycle operations. All of them run synchronously
// within the calling request; the only shared state is the per-partition
// lock table and the duration statistics.
type Service struct {
	store         ConfigStore
	cleaner       TokenCleaner
	engine        EngineClient
	engineRuntime runtime.Runtime
	dbRuntime     runtime.Runtime
	engineDataDir string
	hotDiskPath   string
	dumpCommand   []string

	catalog *Catalog
	audit   *AuditLog
	stats   *OperationStats
	locks   *partitionLocks
	now     func() time.Time

	statusGroup singleflight.Group
}

// NewService creates the lifecycle controller.
func NewService(opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	catalog := NewCatalog(opts.Engine)
	catalog.now = now

	audit := NewAuditLog()
	audit.now = now

	return &Service{
		store:         opts.Store,
		cleaner:       opts.Cleaner,
		engine:        opts.Engine,
		engineRuntime: opts.EngineRuntime,
		dbRuntime:     opts.DBRuntime,
		engineDataDir: opts.EngineDataDir,
		hotDiskPath:   opts.HotDiskPath,
		dumpCommand:   opts.DumpCommand,
		catalog:       catalog,
		audit:         audit,
		stats:         NewOperationStats(),
		locks:         newPartitionLocks(),
		now:           now,
	}
}

// detachedDir is the partition's on-disk location in the engine's storage
// area after a detach.
func (s *Service) detachedDir(name string) string {
	return filepath.Join(s.engineDataDir, s.engine.Table(), name+".detached")
}

// archiveDir is the partition's cold-storage location.
func (s *Service) archiveDir(externalDiskPath, name string) string {
	return filepath.Join(externalDiskPath, archiveSubdir, s.engine.Table()+"_"+name)
}

// =============================================================================
// Config
// =============================================================================

// Config returns the current tiering policy, defaults included.
func (s *Service) Config(ctx context.Context) TieringConfig {
	return s.store.TieringConfig(ctx)
}

// SaveConfig validates the policy ranges and persists the record.
func (s *Service) SaveConfig(ctx context.Context, cfg TieringConfig) (TieringConfig, error) {
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return s.store.SaveTieringConfig(ctx, cfg)
}

// =============================================================================
// Listing
// =============================================================================

// PartitionList pairs the hot and cold partition views.
type PartitionList struct {
	Hot  []HotPartition      `json:"hot"`
	Cold []ArchivedPartition `json:"cold"`
}

// Partitions lists hot partitions from the engine and cold partitions from
// the external disk. Both sides degrade to empty on unreachable resources.
func (s *Service) Partitions(ctx context.Context) PartitionList {
	cfg := s.store.TieringConfig(ctx)
	return PartitionList{
		Hot:  s.catalog.ListHot(ctx, cfg.KeepMonths),
		Cold: s.catalog.ListCold(ctx, cfg.ExternalDiskPath),
	}
}

// =============================================================================
// Backup listing
// =============================================================================

// BackupInfo describes one retained database dump.
type BackupInfo struct {
	Name      string    `json:"name"`
	SizeBytes int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListBackups lists retained dumps, newest first. An unreachable disk
// degrades to an empty list.
func (s *Service) ListBackups(ctx context.Context) []BackupInfo {
	cfg := s.store.TieringConfig(ctx)
	dir := filepath.Join(cfg.ExternalDiskPath, backupSubdir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("backup listing failed", "dir", dir, "error", err)
		}
		return nil
	}

	var backups []BackupInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".dump") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, BackupInfo{
			Name:      entry.Name(),
			SizeBytes: info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Name > backups[j].Name
	})
	return backups
}

// =============================================================================
// Credential cleanup
// =============================================================================

// CleanupTokens prunes stale credentials and records the outcome. The audit
// entry is appended only when the full pass, compaction included, succeeded.
func (s *Service) CleanupTokens(ctx context.Context) CleanupResult {
	start := s.now()
	cfg := s.store.TieringConfig(ctx)

	result := s.cleaner.CleanupTokens(ctx)
	if result.VacuumCompleted {
		s.audit.Append(cfg.ExternalDiskPath, ActionCleanup, "oidc-tokens", true, result.Message)
		s.stats.Record(ActionCleanup, s.now().Sub(start))
	}
	return result
}

// =============================================================================
// Audit
// =============================================================================

// Audit returns the newest audit entries, at most limit.
func (s *Service) Audit(ctx context.Context, limit int) []LogEntry {
	cfg := s.store.TieringConfig(ctx)
	return s.audit.Read(cfg.ExternalDiskPath, limit)
}
