package utils

import "os"

// DiskUsageBytes returns the total size in bytes of the given files.
// Missing or inaccessible paths are skipped (contribute 0).
func DiskUsageBytes(paths ...string) int64 {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		total += info.Size()
	}
	return total
}
