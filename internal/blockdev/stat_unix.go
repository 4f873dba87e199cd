//go:build linux || freebsd || darwin || netbsd

package blockdev

import (
	"io/fs"

	"golang.org/x/sys/unix"
)

// OS is the kernel-backed Stater.
type OS struct{}

// Stat follows symlinks.
func (OS) Stat(path string) (NodeInfo, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return NodeInfo{}, &fs.PathError{Op: "stat", Path: path, Err: err}
	}
	return fromStat(&st), nil
}

// Lstat does not follow symlinks.
func (OS) Lstat(path string) (NodeInfo, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return NodeInfo{}, &fs.PathError{Op: "lstat", Path: path, Err: err}
	}
	return fromStat(&st), nil
}

func fromStat(st *unix.Stat_t) NodeInfo {
	rdev := uint64(st.Rdev)
	dev := uint64(st.Dev)
	return NodeInfo{
		Mode: fileMode(uint32(st.Mode)),
		Rdev: DeviceID{Major: unix.Major(rdev), Minor: unix.Minor(rdev)},
		Dev:  DeviceID{Major: unix.Major(dev), Minor: unix.Minor(dev)},
	}
}

func fileMode(mode uint32) fs.FileMode {
	m := fs.FileMode(mode & 0o777)
	switch mode & unix.S_IFMT {
	case unix.S_IFBLK:
		m |= fs.ModeDevice
	case unix.S_IFCHR:
		m |= fs.ModeDevice | fs.ModeCharDevice
	case unix.S_IFDIR:
		m |= fs.ModeDir
	case unix.S_IFIFO:
		m |= fs.ModeNamedPipe
	case unix.S_IFLNK:
		m |= fs.ModeSymlink
	case unix.S_IFSOCK:
		m |= fs.ModeSocket
	}
	return m
}
