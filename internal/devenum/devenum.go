// Package devenum searches a device directory tree for the node with a
// given device number.
package devenum

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sigreer/rootdev/internal/blockdev"
)

// Enumerator walks device directories. All paths are built by joining onto
// the directory being scanned; the process working directory is never
// changed.
type Enumerator struct {
	Stat blockdev.Stater
	// IsDeviceNode selects the node type that represents disks on this
	// platform (block nodes on Linux, character nodes on the BSDs).
	IsDeviceNode func(blockdev.NodeInfo) bool
	// RawPrefix is prepended to a match's base name (NetBSD uses "r" to
	// name the raw device).
	RawPrefix string
	// RootAlias is a node name that shadows the real device and is never
	// returned, "/dev/root" when empty.
	RootAlias string
	Logger    *logrus.Logger
}

func (e *Enumerator) log() *logrus.Logger {
	if e.Logger == nil {
		return logrus.StandardLogger()
	}
	return e.Logger
}

func (e *Enumerator) rootAlias() string {
	if e.RootAlias == "" {
		return "/dev/root"
	}
	return e.RootAlias
}

func (e *Enumerator) isDeviceNode(n blockdev.NodeInfo) bool {
	if e.IsDeviceNode == nil {
		return n.IsBlock()
	}
	return e.IsDeviceNode(n)
}

// FindDevice returns the path of the node under dir whose device number is
// id, or "" when there is none. Symlinks are only followed inside a
// directory named "mapper", so that the readable device-mapper names are
// preferred over dm-N.
func (e *Enumerator) FindDevice(dir string, id blockdev.DeviceID) string {
	if dir == "" {
		dir = "/dev"
	}
	e.log().Debugf("scanning %s for %s", dir, id)
	return e.find(filepath.Clean(dir), id)
}

func (e *Enumerator) find(dir string, id blockdev.DeviceID) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	followLinks := filepath.Base(dir) == "mapper"

	for _, ent := range ents {
		name := ent.Name()
		// Dotfiles such as /dev/.tmp.md0 and dot directories such as
		// /dev/.static may hold duplicates.
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)

		st, err := e.Stat.Lstat(path)
		if err != nil {
			continue
		}
		if st.IsSymlink() {
			if !followLinks {
				continue
			}
			if st, err = e.Stat.Stat(path); err != nil {
				continue
			}
		}

		if st.IsDir() {
			if res := e.find(path, id); res != "" {
				return res
			}
			continue
		}

		if !e.isDeviceNode(st) || st.Rdev != id {
			continue
		}
		// dm-N are kernel short names for nodes that also appear under
		// /dev/mapper with a readable name.
		if isDMShortName(name) {
			continue
		}
		res := filepath.Join(dir, e.RawPrefix+name)
		if res == e.rootAlias() {
			continue
		}
		return res
	}
	return ""
}

func isDMShortName(name string) bool {
	return len(name) > 3 && strings.HasPrefix(name, "dm-") && name[3] >= '0' && name[3] <= '9'
}
