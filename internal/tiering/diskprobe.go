package tiering

// Usage holds capacity counters for the filesystem owning a probed path.
type Usage struct {
	TotalBytes     uint64  `json:"totalBytes"`
	UsedBytes      uint64  `json:"usedBytes"`
	AvailableBytes uint64  `json:"availableBytes"`
	UsagePercent   float64 `json:"usagePercent"`
}

// DiskUsage is implemented per platform in diskprobe_unix.go and
// diskprobe_windows.go. It fails soft: when the path does not exist or the
// capacity counters cannot be read, ok is false and the caller proceeds
// treating that disk as unknown.
