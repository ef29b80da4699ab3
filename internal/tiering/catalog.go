package tiering

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/egibi/tierd/internal/engine"
	"github.com/egibi/tierd/internal/errors"
	"github.com/egibi/tierd/internal/logging"
)

var catalogLog = logging.Component("catalog")

// archiveSubdir is the directory under the external disk path that holds
// partition archives.
const archiveSubdir = "partitions"

// EngineClient is the command surface the controller needs from the
// time-series engine.
type EngineClient interface {
	Table() string
	Partitions(ctx context.Context) ([]engine.Partition, error)
	Detach(ctx context.Context, name string) error
	Attach(ctx context.Context, name string) error
	PartitionRowCount(ctx context.Context, name string) (int64, bool, error)
}

// Catalog enumerates hot partitions via the engine and cold partitions via a
// filesystem scan. It performs no writes.
type Catalog struct {
	engine EngineClient
	now    func() time.Time
}

// NewCatalog creates a catalog over the given engine client.
func NewCatalog(e EngineClient) *Catalog {
	return &Catalog{engine: e, now: time.Now}
}

// ListHot queries the engine's partition metadata and derives archive
// eligibility from the retention horizon. Engine failures degrade to an
// empty list with a logged warning so listing and status endpoints keep
// working while the engine is briefly unavailable.
func (c *Catalog) ListHot(ctx context.Context, keepMonths int) []HotPartition {
	rows, err := c.engine.Partitions(ctx)
	if err != nil {
		// A briefly unreachable engine is routine; anything else deserves
		// a louder signal even though the degradation is the same.
		if errors.IsUnreachable(err) {
			catalogLog.Warn("engine unreachable, hot listing degraded", "error", err)
		} else {
			catalogLog.Error("hot partition query failed", "error", err)
		}
		return nil
	}

	horizon := HorizonMonth(c.now().UTC(), keepMonths)

	partitions := make([]HotPartition, 0, len(rows))
	for _, row := range rows {
		partitions = append(partitions, HotPartition{
			Name:              row.Name,
			RowCount:          row.NumRows,
			DiskSizeBytes:     row.DiskSize,
			MinTimestamp:      row.MinTimestamp,
			MaxTimestamp:      row.MaxTimestamp,
			IsActive:          row.Active,
			IsArchiveEligible: !row.Active && row.Name < horizon,
		})
	}

	return partitions
}

// ListCold scans the archive directory under externalDiskPath. Directory
// sizes are summed concurrently; the directory timestamp is the archive
// timestamp of record. An unreachable disk degrades to an empty list.
func (c *Catalog) ListCold(ctx context.Context, externalDiskPath string) []ArchivedPartition {
	dir := filepath.Join(externalDiskPath, archiveSubdir)
	prefix := c.engine.Table() + "_"

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			catalogLog.Warn("cold partition scan failed", "dir", dir, "error", err)
		}
		return nil
	}

	var mu sync.Mutex
	var partitions []ArchivedPartition

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		name := strings.TrimPrefix(entry.Name(), prefix)
		if !IsMonthKey(name) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			size := dirSize(path)

			mu.Lock()
			partitions = append(partitions, ArchivedPartition{
				Name:       name,
				SizeBytes:  size,
				ArchivedAt: info.ModTime(),
			})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		catalogLog.Warn("cold partition sizing interrupted", "error", err)
	}

	sort.Slice(partitions, func(i, j int) bool {
		return partitions[i].Name > partitions[j].Name
	})

	return partitions
}

// dirSize sums file sizes recursively. Unreadable entries count as zero.
func dirSize(path string) int64 {
	var size int64
	filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size
}
