// Package getroot turns host paths and devices into bootloader device
// names. A Resolver carries every collaborator the pipeline needs; the
// caller owns it for the duration of one run.
package getroot

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/sigreer/rootdev/internal/blockdev"
	"github.com/sigreer/rootdev/internal/devenum"
	"github.com/sigreer/rootdev/internal/devmapper"
	"github.com/sigreer/rootdev/internal/geom"
	"github.com/sigreer/rootdev/internal/mdraid"
	"github.com/sigreer/rootdev/internal/mountinfo"
	"github.com/sigreer/rootdev/internal/platform"
	"github.com/sigreer/rootdev/internal/registry"
)

// DefaultMaxDepth bounds abstraction nesting. Real stacks are a handful of
// layers deep.
const DefaultMaxDepth = 32

// DiskReader is an opened disk.
type DiskReader interface {
	io.ReaderAt
	io.Closer
}

// PoolLister lists the devices of a storage pool.
type PoolLister interface {
	PoolDevices(pool string) ([]string, error)
}

// Resolver is the context every entry point runs in.
type Resolver struct {
	Stat     blockdev.Stater
	Realpath func(string) (string, error)
	// DevDir is searched for device nodes, "/dev" when empty.
	DevDir string

	Mounts *mountinfo.Resolver
	Pools  PoolLister
	// PoolFromDir reports the pool filesystem mounted at a directory on
	// systems that expose it directly.
	PoolFromDir func(dir string) (pool, fs string, ok bool)

	Enum     *devenum.Enumerator
	Platform platform.Ops
	DM       *devmapper.Client
	MD       *mdraid.Client
	Geom     *geom.Client
	Registry *registry.Registry

	// OpenDisk opens a disk for partition table reading, os.Open when nil.
	OpenDisk func(path string) (DiskReader, error)
	// SectorSize reports a disk's logical sector size,
	// blockdev.LogicalSectorSize when nil.
	SectorSize func(path string) (int64, error)
	// MaxDepth bounds abstraction recursion, DefaultMaxDepth when zero.
	MaxDepth int
	Logger   *logrus.Logger
}

func (r *Resolver) log() *logrus.Logger {
	if r.Logger == nil {
		return logrus.StandardLogger()
	}
	return r.Logger
}

func (r *Resolver) realpath(path string) (string, error) {
	if r.Realpath == nil {
		return filepath.EvalSymlinks(path)
	}
	return r.Realpath(path)
}

func (r *Resolver) devDir() string {
	if r.DevDir == "" {
		return "/dev"
	}
	return r.DevDir
}

func (r *Resolver) maxDepth() int {
	if r.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return r.MaxDepth
}

func (r *Resolver) openDisk(path string) (DiskReader, error) {
	if r.OpenDisk == nil {
		return os.Open(path)
	}
	return r.OpenDisk(path)
}

func (r *Resolver) sectorSize(path string) int64 {
	size := blockdev.LogicalSectorSize
	if r.SectorSize != nil {
		size = r.SectorSize
	}
	n, err := size(path)
	if err != nil {
		r.log().Debugf("sector size of %s: %v", path, err)
		return 0
	}
	return n
}

func (r *Resolver) findDevice(dir string, id blockdev.DeviceID) string {
	if r.Enum == nil {
		return ""
	}
	return r.Enum.FindDevice(dir, id)
}
