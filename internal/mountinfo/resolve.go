package mountinfo

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultPath is the mount table of the calling process.
const DefaultPath = "/proc/self/mountinfo"

// ErrNoMountTable is returned when the mount table cannot be read. Callers
// treat it as a reason to try another strategy, not as a failure.
var ErrNoMountTable = errors.New("mount table unavailable")

// PoolResolver lists the member devices of a storage pool.
type PoolResolver interface {
	PoolDevices(pool string) ([]string, error)
}

// Result is the outcome of resolving a directory.
type Result struct {
	// Devices backing the mount. Several for a pool filesystem.
	Devices []string
	// RelRoot is the mount's root within its filesystem. For pool
	// filesystems it is the dataset-qualified form (/dataset@root).
	RelRoot string
	// Mount is the active mount entry.
	Mount Entry
}

// Resolver finds the mount that backs a directory.
type Resolver struct {
	// Path of the mount table, DefaultPath when empty.
	Path string
	// Open overrides how the table is opened. Used by tests.
	Open func() (io.ReadCloser, error)
	// Pools resolves pool filesystems to devices. When nil pool mounts
	// yield no devices.
	Pools  PoolResolver
	Logger *logrus.Logger
}

func (r *Resolver) open() (io.ReadCloser, error) {
	if r.Open != nil {
		return r.Open()
	}
	p := r.Path
	if p == "" {
		p = DefaultPath
	}
	return os.Open(p)
}

func (r *Resolver) log() *logrus.Logger {
	if r.Logger == nil {
		return logrus.StandardLogger()
	}
	return r.Logger
}

// Entries reads and parses the whole table.
func (r *Resolver) Entries() ([]Entry, error) {
	f, err := r.open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoMountTable, err)
	}
	defer f.Close()

	entries, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoMountTable, err)
	}
	return entries, nil
}

// Resolve returns the devices backing dir. A nil Result with a nil error
// means no mount in the table covers dir.
func (r *Resolver) Resolve(dir string) (*Result, error) {
	entries, err := r.Entries()
	if err != nil {
		return nil, err
	}
	return r.resolveEntries(entries, dir)
}

func (r *Resolver) resolveEntries(entries []Entry, dir string) (*Result, error) {
	topo := BuildTopology(entries, dir)
	active, ok := topo.Active()
	if !ok {
		return nil, nil
	}

	if !IsPoolFS(active.FSType) {
		r.log().Debugf("mountinfo: %s is on %s (%s)", dir, active.Device, active.MountPoint)
		return &Result{
			Devices: []string{active.Device},
			RelRoot: active.Root,
			Mount:   active,
		}, nil
	}

	pool, dataset, _ := strings.Cut(active.Device, "/")
	res := &Result{
		RelRoot: PoolRelRoot(active.Device, active.Root),
		Mount:   active,
	}
	if r.Pools == nil {
		r.log().Warnf("mountinfo: %s is on pool %s but no pool resolver is configured", dir, pool)
		return res, nil
	}
	devices, err := r.Pools.PoolDevices(pool)
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", pool, err)
	}
	r.log().Debugf("mountinfo: %s is on pool %s dataset %q: %v", dir, pool, dataset, devices)
	res.Devices = devices
	return res, nil
}

// IsPoolFS reports whether fstype names a pool filesystem, either the
// native kernel module or the FUSE port.
func IsPoolFS(fstype string) bool {
	return fstype == "zfs" || fstype == "fuse.zfs"
}

// PoolRelRoot qualifies a pool mount's root with its dataset:
//
//	tank          -> /@root
//	tank/ds@snap  -> /ds@snaproot
//	tank/ds       -> /ds@root
func PoolRelRoot(source, root string) string {
	_, dataset, ok := strings.Cut(source, "/")
	switch {
	case !ok:
		return "/@" + root
	case strings.Contains(dataset, "@"):
		return "/" + dataset + root
	default:
		return "/" + dataset + "@" + root
	}
}
