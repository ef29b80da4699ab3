package tiering

import "context"

// Status is the operator-facing snapshot of the controller. Disk sections
// are omitted entirely when the corresponding mount cannot be probed.
type Status struct {
	Config                 TieringConfig              `json:"config"`
	HotDisk                *Usage                     `json:"hotDisk,omitempty"`
	ColdDisk               *Usage                     `json:"coldDisk,omitempty"`
	ThresholdExceeded      bool                       `json:"thresholdExceeded"`
	ArchivedPartitionCount int                        `json:"archivedPartitionCount"`
	OperationStats         map[string]DurationSummary `json:"operationStats,omitempty"`
}

// Status reports config, disk usage on both tiers, the threshold-exceeded
// flag and the archived partition count. Concurrent callers share one probe
// via singleflight; the status page is polled and the probes are not free.
func (s *Service) Status(ctx context.Context) Status {
	v, _, _ := s.statusGroup.Do("status", func() (any, error) {
		return s.buildStatus(ctx), nil
	})
	return v.(Status)
}

func (s *Service) buildStatus(ctx context.Context) Status {
	cfg := s.store.TieringConfig(ctx)

	status := Status{
		Config:         cfg,
		OperationStats: s.stats.Summary(),
	}

	if usage, ok := DiskUsage(s.hotDiskPath); ok {
		status.HotDisk = &usage
		status.ThresholdExceeded = usage.UsagePercent >= float64(cfg.ThresholdPercent)
	}
	if usage, ok := DiskUsage(cfg.ExternalDiskPath); ok {
		status.ColdDisk = &usage
	}

	status.ArchivedPartitionCount = len(s.catalog.ListCold(ctx, cfg.ExternalDiskPath))

	return status
}
