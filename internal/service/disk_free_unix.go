//go:build !windows

package service

import (
	"os"

	"golang.org/x/sys/unix"
)

// getFreeDiskSpace returns the bytes available to this process under path,
// or 0 when unknown.
func getFreeDiskSpace(path string) int64 {
	stat, err := os.Stat(path)
	if err != nil || !stat.IsDir() {
		return 0
	}

	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return 0
	}

	return int64(fs.Bavail) * int64(fs.Bsize)
}
