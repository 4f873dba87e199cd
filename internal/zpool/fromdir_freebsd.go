//go:build freebsd

package zpool

import (
	"golang.org/x/sys/unix"
)

// FromDir reports the pool and filesystem mounted at dir when it is a ZFS
// mount.
func FromDir(dir string) (pool, fs string, ok bool) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return "", "", false
	}
	if unix.ByteSliceToString(st.Fstypename[:]) != "zfs" {
		return "", "", false
	}
	pool, fs = SplitSource(unix.ByteSliceToString(st.Mntfromname[:]))
	return pool, fs, true
}
