package devmapper

import (
	"strings"

	"github.com/sigreer/rootdev/internal/blockdev"
)

// Finder locates the device node for a device number, "" if none.
type Finder func(id blockdev.DeviceID) string

// DiskFor maps a mapper partition node to the disk that holds it.
// It returns "" when the node is not a partition of anything GRUB can
// address (no uuid, LVM volumes, unknown mappings).
//
// Multipath disks are returned as themselves. Other non-DMRAID nodes are
// followed through a linear table to the underlying device. For DMRAID the
// disk is, counter-intuitively, the partition node's child.
func (c *Client) DiskFor(path string, find Finder) string {
	node, err := c.NodeForPath(path)
	if err != nil {
		c.log().Debugf("devmapper: %s: %v", path, err)
		return ""
	}
	switch {
	case node.UUID == "":
		c.log().Debugf("devmapper: %s has no DM uuid", path)
		return ""
	case strings.HasPrefix(node.UUID, UUIDPrefixLVM):
		c.log().Debugf("devmapper: %s is an LVM", path)
		return ""
	case strings.HasPrefix(node.UUID, UUIDPrefixMpath):
		// Multipath partitions carry partN-mpath- uuids and are linear
		// mappings; only the disk itself lands here.
		c.log().Debugf("devmapper: %s is a multipath disk", path)
		return c.MapperDir() + node.Name
	case !strings.HasPrefix(node.UUID, UUIDPrefixDMRAID):
		c.log().Debugf("devmapper: %s is not DM-RAID", path)
		if id, ok := c.LinearTarget(node.Name); ok && find != nil {
			return find(id)
		}
		return ""
	}

	if len(node.Children) == 0 {
		c.log().Debugf("devmapper: %s has no DM children", path)
		return c.MapperDir() + node.Name
	}
	child, err := c.Lookup(node.Children[0])
	if err != nil || !strings.HasPrefix(child.UUID, UUIDPrefixDMRAID) || child.Name == "" {
		c.log().Debugf("devmapper: %s child is not DM-RAID", path)
		// A DMRAID disk rather than a partition.
		return c.MapperDir() + node.Name
	}
	return c.MapperDir() + child.Name
}
