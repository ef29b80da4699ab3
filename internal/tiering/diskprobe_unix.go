//go:build !windows

package tiering

import "syscall"

// DiskUsage resolves the filesystem that owns path and reads its capacity
// counters.
func DiskUsage(path string) (Usage, bool) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return Usage{}, false
	}

	bsize := uint64(st.Bsize)
	total := st.Blocks * bsize
	if total == 0 {
		return Usage{}, false
	}

	// Bavail is what unprivileged writers can actually use; Bfree includes
	// the reserved blocks.
	avail := st.Bavail * bsize
	used := total - st.Bfree*bsize

	return Usage{
		TotalBytes:     total,
		UsedBytes:      used,
		AvailableBytes: avail,
		UsagePercent:   float64(used) / float64(total) * 100,
	}, true
}
