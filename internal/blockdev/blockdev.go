// Package blockdev holds device identities and the stat capability the
// resolution pipeline uses to learn them.
package blockdev

import (
	"fmt"
	"io/fs"
	"strconv"
	"strings"
)

// DefaultSectorSize is the logical sector size assumed for images and on
// systems that cannot report one.
const DefaultSectorSize = 512

// DeviceID is a (major, minor) pair identifying a device node. It is only
// meaningful for the current boot; callers re-query it per invocation.
type DeviceID struct {
	Major uint32
	Minor uint32
}

// String formats the identity the way the kernel does ("8:1").
func (d DeviceID) String() string {
	return fmt.Sprintf("%d:%d", d.Major, d.Minor)
}

// IsZero reports whether d is the zero identity.
func (d DeviceID) IsZero() bool {
	return d.Major == 0 && d.Minor == 0
}

// ParseDeviceID parses "major:minor", as found in sysfs dev files, mountinfo
// and device-mapper tables.
func ParseDeviceID(s string) (DeviceID, error) {
	majStr, minStr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return DeviceID{}, fmt.Errorf("invalid device number %q: expected <major>:<minor>", s)
	}
	maj, err := strconv.ParseUint(majStr, 10, 32)
	if err != nil {
		return DeviceID{}, fmt.Errorf("invalid major in %q: %w", s, err)
	}
	min, err := strconv.ParseUint(minStr, 10, 32)
	if err != nil {
		return DeviceID{}, fmt.Errorf("invalid minor in %q: %w", s, err)
	}
	return DeviceID{Major: uint32(maj), Minor: uint32(min)}, nil
}

// NodeInfo is the subset of stat(2) results the pipeline cares about.
type NodeInfo struct {
	Mode fs.FileMode
	// Rdev is the identity of the device a node represents.
	Rdev DeviceID
	// Dev is the identity of the filesystem containing the path.
	Dev DeviceID
}

// IsBlock reports whether the node is a block device.
func (n NodeInfo) IsBlock() bool {
	return n.Mode&fs.ModeDevice != 0 && n.Mode&fs.ModeCharDevice == 0
}

// IsChar reports whether the node is a character device.
func (n NodeInfo) IsChar() bool {
	return n.Mode&fs.ModeDevice != 0 && n.Mode&fs.ModeCharDevice != 0
}

// IsDir reports whether the node is a directory.
func (n NodeInfo) IsDir() bool {
	return n.Mode.IsDir()
}

// IsSymlink reports whether the node is a symbolic link.
func (n NodeInfo) IsSymlink() bool {
	return n.Mode&fs.ModeSymlink != 0
}

// Stater is the stat capability. The default implementation talks to the
// kernel; tests substitute a fake.
type Stater interface {
	Stat(path string) (NodeInfo, error)
	Lstat(path string) (NodeInfo, error)
}
