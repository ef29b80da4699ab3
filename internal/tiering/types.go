// Package tiering implements the storage lifecycle controller: it moves old
// time-series partitions between the hot engine tier and the cold external
// disk, produces retained database dumps, and records every operation in a
// bounded audit log on the cold disk.
//
// Correctness across the two independently-failing collaborators (engine and
// filesystem) is guaranteed by step ordering and per-step compensation inside
// each operation, not by shared transactions or in-process locking: an
// irreversible step (detach remnant delete, archive delete) only runs after
// the reversible copy it depends on has been verified.
package tiering

import (
	"fmt"
	"regexp"
	"time"

	"github.com/egibi/tierd/internal/errors"
)

// Partition names are zero-padded year-month keys, so lexical order is
// chronological order.
var monthKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// IsMonthKey reports whether name is a valid year-month partition key.
func IsMonthKey(name string) bool {
	return monthKeyPattern.MatchString(name)
}

// HorizonMonth returns the hot-tier retention horizon as a month key.
// Partitions whose name sorts strictly before it are archive candidates.
// The subtraction starts from the first of the current month so month-end
// dates cannot overflow into the wrong month.
func HorizonMonth(now time.Time, keepMonths int) string {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, -keepMonths, 0).Format("2006-01")
}

// TieringConfig is the single source of policy truth. It is persisted as one
// JSON record in the relational key/value store and fetched at the start of
// every operation rather than cached.
type TieringConfig struct {
	// ThresholdPercent is the hot disk usage percent that flags the
	// threshold-exceeded signal. Range 10-95.
	ThresholdPercent int `json:"thresholdPercent"`

	// KeepMonths is the hot-tier retention horizon in months. Range 1-60.
	KeepMonths int `json:"keepMonths"`

	// AutoArchiveIntervalHours is the cadence at which the external
	// scheduler is expected to trigger archiving. Range 1-168. It is
	// stored here but never read by this process.
	AutoArchiveIntervalHours int `json:"autoArchiveIntervalHours"`

	// ExternalDiskPath is the mount point rooting all cold-storage
	// artifacts: partition archives, database dumps, and the audit log.
	ExternalDiskPath string `json:"externalDiskPath"`

	// MaxPostgresBackups is the retention count for database dumps.
	MaxPostgresBackups int `json:"maxPostgresBackups"`
}

// DefaultTieringConfig returns the policy used when nothing has been
// persisted yet.
func DefaultTieringConfig() TieringConfig {
	return TieringConfig{
		ThresholdPercent:         80,
		KeepMonths:               12,
		AutoArchiveIntervalHours: 24,
		ExternalDiskPath:         "/mnt/egibi-cold",
		MaxPostgresBackups:       5,
	}
}

// Validate checks the policy ranges at the save boundary.
func (c TieringConfig) Validate() error {
	v := errors.NewValidationErrors()

	if c.ThresholdPercent < 10 || c.ThresholdPercent > 95 {
		v.AddField("thresholdPercent", "must be between 10 and 95")
	}
	if c.KeepMonths < 1 || c.KeepMonths > 60 {
		v.AddField("keepMonths", "must be between 1 and 60")
	}
	if c.AutoArchiveIntervalHours < 1 || c.AutoArchiveIntervalHours > 168 {
		v.AddField("autoArchiveIntervalHours", "must be between 1 and 168")
	}
	if c.ExternalDiskPath == "" {
		v.AddMissing("externalDiskPath")
	}
	if c.MaxPostgresBackups < 1 {
		v.AddField("maxPostgresBackups", "must be at least 1")
	}

	return v.Err()
}

// HotPartition is a materialized view over the engine's partition metadata.
// It is recomputed on every catalog query and never stored.
type HotPartition struct {
	Name              string    `json:"name"`
	RowCount          int64     `json:"rowCount"`
	DiskSizeBytes     int64     `json:"diskSizeBytes"`
	MinTimestamp      time.Time `json:"minTimestamp"`
	MaxTimestamp      time.Time `json:"maxTimestamp"`
	IsActive          bool      `json:"isActive"`
	IsArchiveEligible bool      `json:"isArchiveEligible"`
}

// ArchivedPartition is a materialized view over one archive directory under
// the external disk. The directory's own timestamp is the archive timestamp
// of record; no separate metadata file is maintained.
type ArchivedPartition struct {
	Name       string    `json:"name"`
	SizeBytes  int64     `json:"sizeBytes"`
	ArchivedAt time.Time `json:"archivedAt"`
}

// OperationResult is returned by every mutating operation. Details carries
// one line per sub-step, append-only within a single call.
type OperationResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// AddDetail appends a formatted sub-step line.
func (r *OperationResult) AddDetail(format string, args ...any) {
	r.Details = append(r.Details, fmt.Sprintf(format, args...))
}

// Failure returns a failed result with a formatted message.
func Failure(format string, args ...any) OperationResult {
	return OperationResult{Success: false, Message: fmt.Sprintf(format, args...)}
}
