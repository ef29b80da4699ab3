package tiering

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/egibi/tierd/internal/logging"
)

var auditLogger = logging.Component("audit")

// Audit actions.
const (
	ActionArchive = "archive"
	ActionRestore = "restore"
	ActionBackup  = "backup"
	ActionCleanup = "cleanup"
)

const (
	auditLogFile    = "lifecycle_audit.json"
	maxAuditEntries = 500
)

// LogEntry is one append-only audit record. The audit trail is the only
// durable record that the engine and the cold disk agree on a given outcome;
// an operator consults it when the two listings disagree.
type LogEntry struct {
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Details   string    `json:"details"`
}

// AuditLog maintains a size-bounded JSON array of LogEntry on the external
// disk. It is best-effort: I/O errors are logged and swallowed so the audit
// trail never blocks the operation it is recording.
type AuditLog struct {
	mu  sync.Mutex
	now func() time.Time
}

// NewAuditLog creates an audit log writer.
func NewAuditLog() *AuditLog {
	return &AuditLog{now: time.Now}
}

// Append records one operation outcome under externalDiskPath, truncating
// the log to the most recent entries by timestamp when it grows past the
// bound.
func (a *AuditLog) Append(externalDiskPath, action, target string, success bool, details string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(externalDiskPath, 0755); err != nil {
		auditLogger.Warn("audit append skipped", "error", err)
		return
	}

	path := filepath.Join(externalDiskPath, auditLogFile)
	entries := a.load(path)

	entries = append(entries, LogEntry{
		Action:    action,
		Target:    target,
		Timestamp: a.now().UTC(),
		Success:   success,
		Details:   details,
	})

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	if len(entries) > maxAuditEntries {
		entries = entries[len(entries)-maxAuditEntries:]
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		auditLogger.Warn("audit encode failed", "error", err)
		return
	}

	// Rewrite atomically so a crash mid-write cannot corrupt the trail.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		auditLogger.Warn("audit write failed", "error", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		auditLogger.Warn("audit rename failed", "error", err)
	}
}

// Read returns at most limit entries, newest first. Errors degrade to an
// empty result.
func (a *AuditLog) Read(externalDiskPath string, limit int) []LogEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries := a.load(filepath.Join(externalDiskPath, auditLogFile))

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// load reads the current JSON array; a missing or unreadable file is an
// empty log.
func (a *AuditLog) load(path string) []LogEntry {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			auditLogger.Warn("audit read failed", "error", err)
		}
		return nil
	}

	var entries []LogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		auditLogger.Warn("audit log corrupt, starting fresh", "error", err)
		return nil
	}
	return entries
}
