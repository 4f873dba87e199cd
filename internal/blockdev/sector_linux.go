//go:build linux

package blockdev

import (
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

// LogicalSectorSize returns the logical sector size of the disk at path.
// Regular files are treated as images with DefaultSectorSize sectors.
func LogicalSectorSize(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if fi.Mode()&fs.ModeDevice == 0 {
		return DefaultSectorSize, nil
	}
	n, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKSSZGET)
	if err != nil {
		return 0, &fs.PathError{Op: "ioctl BLKSSZGET", Path: path, Err: err}
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s reports sector size %d", path, n)
	}
	return int64(n), nil
}
