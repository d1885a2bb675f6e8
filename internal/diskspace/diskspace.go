// Package diskspace queries free space on the volume backing the storage root.
package diskspace

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const bytesPerGB = 1 << 30

// FreeBytes returns the free space available to unprivileged writers on the
// filesystem containing path.
func FreeBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("diskspace: statfs %s: %w", path, err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// HasFreeSpace reports whether the volume containing path has at least
// minFreeGB gigabytes available. Callers must re-check before every fetch;
// the answer is never cached.
func HasFreeSpace(path string, minFreeGB int) (bool, error) {
	if minFreeGB <= 0 {
		return true, nil
	}
	free, err := FreeBytes(path)
	if err != nil {
		return false, err
	}
	return free >= uint64(minFreeGB)*bytesPerGB, nil
}
