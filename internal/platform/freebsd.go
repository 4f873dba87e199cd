package platform

import (
	"strings"

	"github.com/sigreer/rootdev/internal/blockdev"
)

const freebsdLVMDir = "linux_lvm/"

// FreeBSD resolves partitions and encryption through the GEOM graph.
type FreeBSD struct {
	Deps
}

func (f *FreeBSD) Name() string { return "freebsd" }

func (f *FreeBSD) LVMPrefix() string { return f.devPath(freebsdLVMDir) }

func (f *FreeBSD) IsDeviceNode(n blockdev.NodeInfo) bool { return n.IsChar() }

// IsFloppy matches fd[0-9] names; floppies have no fixed major here.
func (f *FreeBSD) IsFloppy(path string, _ blockdev.NodeInfo) bool {
	name, ok := strings.CutPrefix(path, f.devPath("fd"))
	return ok && name != "" && isDigit(name[0])
}

// Classify maps the GEOM eli class to GELI and linux_lvm nodes to LVM.
func (f *FreeBSD) Classify(path string) Abstraction {
	if f.Geom != nil {
		class, err := f.Geom.ClassOf(path)
		if err != nil {
			f.log().Debugf("geom lookup for %s failed: %v", path, err)
		}
		if strings.EqualFold(class, "eli") {
			return GELI
		}
	}
	if strings.HasPrefix(path, f.LVMPrefix()) {
		return LVM
	}
	return None
}

// PartitionToDisk follows PART geoms up to the disk.
func (f *FreeBSD) PartitionToDisk(path string) (string, bool, error) {
	if _, ok := f.devName(path); !ok || f.Geom == nil {
		return path, true, nil
	}
	disk, _, err := f.Geom.DiskOf(path)
	if err != nil {
		return "", false, err
	}
	return disk, true, nil
}

// IsWholeDisk reports false once an 's' slice marker follows the unit
// number (ada0s1, da0s1a).
func (f *FreeBSD) IsWholeDisk(path string) bool {
	name, ok := f.devName(path)
	if !ok {
		return false
	}
	for i := 0; i < len(name); i++ {
		if isDigit(name[i]) {
			return !strings.ContainsRune(name[i:], 's')
		}
	}
	return true
}

// PartitionStart sums the PART start offsets on the way to the disk.
func (f *FreeBSD) PartitionStart(path string) (uint64, error) {
	if f.Geom == nil {
		return 0, ErrUnsupported
	}
	_, start, err := f.Geom.DiskOf(path)
	return start, err
}
