// Package blockdevtest provides an in-memory blockdev.Stater for tests.
package blockdevtest

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sigreer/rootdev/internal/blockdev"
)

// Fake is an in-memory blockdev.Stater. Paths not listed in
// Nodes fall through to the real filesystem with zero device identities, so a
// temporary directory tree can stand in for /dev.
type Fake struct {
	Nodes map[string]blockdev.NodeInfo
	// Links maps a symlink path to its target; Stat follows it, Lstat reports
	// a symlink.
	Links map[string]string
}

// Stat follows links declared in Links.
func (f *Fake) Stat(path string) (blockdev.NodeInfo, error) {
	path = filepath.Clean(path)
	for i := 0; i < 40; i++ {
		target, ok := f.Links[path]
		if !ok {
			break
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(path), target)
		}
		path = filepath.Clean(target)
	}
	if _, ok := f.Nodes[path]; !ok {
		// Real symlinks in a fixture tree resolve to their target's entry.
		if real, err := filepath.EvalSymlinks(path); err == nil {
			path = real
		}
	}
	return f.lookup(path, os.Stat)
}

// Lstat reports declared links as symlinks.
func (f *Fake) Lstat(path string) (blockdev.NodeInfo, error) {
	path = filepath.Clean(path)
	if _, ok := f.Links[path]; ok {
		return blockdev.NodeInfo{Mode: fs.ModeSymlink | 0o777}, nil
	}
	return f.lookup(path, os.Lstat)
}

func (f *Fake) lookup(path string, statFn func(string) (fs.FileInfo, error)) (blockdev.NodeInfo, error) {
	if n, ok := f.Nodes[path]; ok {
		return n, nil
	}
	fi, err := statFn(path)
	if err != nil {
		return blockdev.NodeInfo{}, err
	}
	return blockdev.NodeInfo{Mode: fi.Mode()}, nil
}

// BlockNode is a convenience constructor for a block device entry.
func BlockNode(major, minor uint32) blockdev.NodeInfo {
	return blockdev.NodeInfo{Mode: fs.ModeDevice | 0o660, Rdev: blockdev.DeviceID{Major: major, Minor: minor}}
}
