//go:build windows

package service

import (
	"golang.org/x/sys/windows"
)

// getFreeDiskSpace returns the bytes available to this process under path,
// or 0 when unknown.
func getFreeDiskSpace(path string) int64 {
	ptr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0
	}

	var avail, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(ptr, &avail, &total, &totalFree); err != nil {
		return 0
	}
	return int64(avail)
}
