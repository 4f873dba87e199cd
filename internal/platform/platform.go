// Package platform holds the per-OS device naming knowledge: how to tell
// which abstraction a device belongs to, how to get from a partition to
// its disk, and how to find where a partition starts.
//
// One Ops implementation is chosen at startup; shared resolution code never
// branches on the operating system itself.
package platform

import (
	"errors"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sigreer/rootdev/internal/blockdev"
	"github.com/sigreer/rootdev/internal/devenum"
	"github.com/sigreer/rootdev/internal/devmapper"
	"github.com/sigreer/rootdev/internal/geom"
)

// Abstraction is a storage layer sitting between a device path and the
// disks under it.
type Abstraction int

const (
	None Abstraction = iota
	LVM
	LUKS
	RAID
	GELI
)

func (a Abstraction) String() string {
	switch a {
	case LVM:
		return "lvm"
	case LUKS:
		return "luks"
	case RAID:
		return "raid"
	case GELI:
		return "geli"
	default:
		return "none"
	}
}

// ErrUnsupported is returned by operations a platform cannot perform.
var ErrUnsupported = errors.New("not supported on this platform")

// Ops is the per-platform capability set.
type Ops interface {
	// Name is the GOOS value the implementation serves.
	Name() string
	// Classify reports the abstraction path belongs to. Callers check
	// firmware visibility first.
	Classify(path string) Abstraction
	// PartitionToDisk returns the disk containing path. ok is false when
	// no disk can be derived (LVM volumes, unknown mapper nodes).
	PartitionToDisk(path string) (disk string, ok bool, err error)
	// IsWholeDisk reports whether path names a disk rather than one of
	// its partitions, judged by name alone.
	IsWholeDisk(path string) bool
	// IsDeviceNode reports whether a node is the kind this platform uses
	// for disks.
	IsDeviceNode(n blockdev.NodeInfo) bool
	// IsFloppy reports whether a device is a floppy drive.
	IsFloppy(path string, n blockdev.NodeInfo) bool
	// PartitionStart returns the first sector of the partition at path.
	PartitionStart(path string) (uint64, error)
	// LVMPrefix is the directory logical volumes appear under.
	LVMPrefix() string
}

// Deps are the collaborators platform implementations draw on. Fields a
// platform does not use may be nil.
type Deps struct {
	Stat blockdev.Stater
	// DevDir is the device directory, "/dev" when empty.
	DevDir string
	SysDir string
	DM     *devmapper.Client
	Geom   *geom.Client
	Enum   *devenum.Enumerator
	// Realpath canonicalises a path, filepath.EvalSymlinks when nil.
	Realpath func(string) (string, error)
	Logger   *logrus.Logger
}

func (d Deps) realpath(path string) (string, error) {
	if d.Realpath == nil {
		return filepath.EvalSymlinks(path)
	}
	return d.Realpath(path)
}

func (d Deps) devDir() string {
	if d.DevDir == "" {
		return "/dev"
	}
	return strings.TrimSuffix(d.DevDir, "/")
}

// devPath joins name onto the device directory.
func (d Deps) devPath(name string) string {
	return d.devDir() + "/" + name
}

// devName strips the device directory from path.
func (d Deps) devName(path string) (string, bool) {
	return strings.CutPrefix(path, d.devDir()+"/")
}

func (d Deps) log() *logrus.Logger {
	if d.Logger == nil {
		return logrus.StandardLogger()
	}
	return d.Logger
}

// New returns the Ops for goos. Unknown systems get a best-effort identity
// implementation that warns once.
func New(goos string, deps Deps) Ops {
	switch goos {
	case "linux":
		return &Linux{Deps: deps}
	case "freebsd":
		return &FreeBSD{Deps: deps}
	case "darwin":
		return &Darwin{Deps: deps}
	default:
		return &Generic{Deps: deps, goos: goos}
	}
}

// Current returns the Ops for the running system.
func Current(deps Deps) Ops {
	return New(runtime.GOOS, deps)
}

// Generic treats every device as a whole disk with no abstraction.
type Generic struct {
	Deps
	goos string
	warn sync.Once
}

func (g *Generic) warnOnce() {
	g.warn.Do(func() {
		g.log().Warnf("device naming on %s is not supported; device paths are used as given", g.goos)
	})
}

func (g *Generic) Name() string { return g.goos }

func (g *Generic) Classify(string) Abstraction { return None }

func (g *Generic) PartitionToDisk(path string) (string, bool, error) {
	g.warnOnce()
	return path, true, nil
}

func (g *Generic) IsWholeDisk(string) bool { return true }

func (g *Generic) IsDeviceNode(n blockdev.NodeInfo) bool { return n.IsBlock() }

func (g *Generic) IsFloppy(string, blockdev.NodeInfo) bool { return false }

func (g *Generic) PartitionStart(string) (uint64, error) {
	g.warnOnce()
	return 0, ErrUnsupported
}

func (g *Generic) LVMPrefix() string { return g.devPath("mapper/") }
