package platform

import (
	"strings"

	"github.com/sigreer/rootdev/internal/blockdev"
)

// Darwin handles diskNsM names. Partition starts are not available, so
// partitions resolve to their disk's drive name.
type Darwin struct {
	Deps
}

func (d *Darwin) Name() string { return "darwin" }

func (d *Darwin) LVMPrefix() string { return d.devPath("mapper/") }

func (d *Darwin) IsDeviceNode(n blockdev.NodeInfo) bool { return n.IsChar() }

func (d *Darwin) IsFloppy(string, blockdev.NodeInfo) bool { return false }

func (d *Darwin) Classify(string) Abstraction { return None }

// PartitionToDisk cuts the name at the first 's' or 'p' after the unit
// number: disk0s2 -> disk0.
func (d *Darwin) PartitionToDisk(path string) (string, bool, error) {
	if i := d.partIndex(path); i >= 0 {
		return path[:i], true, nil
	}
	return path, true, nil
}

func (d *Darwin) IsWholeDisk(path string) bool {
	return d.partIndex(path) < 0
}

func (d *Darwin) partIndex(path string) int {
	name, ok := d.devName(path)
	if !ok {
		return -1
	}
	for i := len(path) - len(name); i < len(path); i++ {
		if isDigit(path[i]) {
			j := strings.IndexAny(path[i:], "sp")
			if j < 0 {
				return -1
			}
			return i + j
		}
	}
	return -1
}

func (d *Darwin) PartitionStart(string) (uint64, error) {
	return 0, ErrUnsupported
}
