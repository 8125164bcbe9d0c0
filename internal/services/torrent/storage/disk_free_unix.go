//go:build linux || darwin

package storage

import "syscall"

// diskFreeBytes returns the bytes available to unprivileged users on the
// filesystem containing path.
func diskFreeBytes(path string) (int64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}
