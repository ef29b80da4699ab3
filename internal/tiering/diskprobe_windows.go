//go:build windows

package tiering

// DiskUsage is not supported on Windows; status reporting simply omits the
// disk sections there.
func DiskUsage(path string) (Usage, bool) {
	return Usage{}, false
}
