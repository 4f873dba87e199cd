//go:build !(linux || freebsd || darwin || netbsd)

package blockdev

import "os"

// OS is the filesystem-backed Stater for systems without device numbers in
// stat. Every node reports a zero identity.
type OS struct{}

// Stat follows symlinks.
func (OS) Stat(path string) (NodeInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return NodeInfo{}, err
	}
	return NodeInfo{Mode: fi.Mode()}, nil
}

// Lstat does not follow symlinks.
func (OS) Lstat(path string) (NodeInfo, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return NodeInfo{}, err
	}
	return NodeInfo{Mode: fi.Mode()}, nil
}
