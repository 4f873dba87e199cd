package getroot

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"github.com/sigreer/rootdev/internal/mountinfo"
)

// GuessRootDevices returns the devices holding the filesystem at dir. The
// mount table is consulted first, then pool filesystems, and finally the
// device number of dir itself is looked up under the device directory.
// An empty result means nothing was found.
func (r *Resolver) GuessRootDevices(dir string) ([]string, error) {
	devs := r.devicesFromMounts(dir)
	if len(devs) == 0 {
		devs = r.devicesFromPool(dir)
	}

	if len(devs) > 0 {
		out, ok, err := r.canonicalRootDevices(devs)
		if err != nil {
			return nil, err
		}
		if ok {
			return out, nil
		}
	}

	st, err := r.Stat.Stat(dir)
	if err != nil {
		return nil, newError(KindConfig, "cannot stat", dir, err)
	}
	// This might be slow, but the device number is all there is to go on.
	dev := r.findDevice(r.devDir(), st.Dev)
	if dev == "" {
		r.log().Debugf("no device node under %s for %s (%s)", r.devDir(), dir, st.Dev)
		return nil, nil
	}
	return []string{dev}, nil
}

func (r *Resolver) devicesFromMounts(dir string) []string {
	if r.Mounts == nil {
		return nil
	}
	res, err := r.Mounts.Resolve(dir)
	if err != nil {
		if errors.Is(err, mountinfo.ErrNoMountTable) {
			r.log().Debugf("mount table unavailable, falling back: %v", err)
		} else {
			r.log().Warnf("mount table lookup for %s failed: %v", dir, err)
		}
		return nil
	}
	if res == nil {
		return nil
	}
	return res.Devices
}

func (r *Resolver) devicesFromPool(dir string) []string {
	if r.PoolFromDir == nil || r.Pools == nil {
		return nil
	}
	pool, _, ok := r.PoolFromDir(dir)
	if !ok {
		return nil
	}
	devs, err := r.Pools.PoolDevices(pool)
	if err != nil {
		r.log().Debugf("pool %s: %v", pool, err)
		return nil
	}
	return devs
}

// canonicalRootDevices resolves symlinks in each device. /dev/root and
// /dev/dm-N are replaced by a readable node with the same device number.
// ok is false when a device vanished and the caller should fall back.
func (r *Resolver) canonicalRootDevices(devs []string) ([]string, bool, error) {
	dev := r.devDir()
	out := make([]string, 0, len(devs))
	for _, d := range devs {
		c, err := r.realpath(d)
		if err != nil {
			return nil, false, newError(KindConfig, "failed to get canonical path of", d, err)
		}
		isRoot := c == filepath.Join(dev, "root")
		isDM := strings.HasPrefix(c, filepath.Join(dev, "dm-"))
		if !isRoot && !isDM {
			out = append(out, c)
			continue
		}

		st, err := r.Stat.Stat(c)
		if err != nil {
			r.log().Warnf("%v", newError(KindInconsistent, "cannot stat", c, err))
			return nil, false, nil
		}
		search := dev
		if isDM {
			search = filepath.Join(dev, "mapper")
		}
		named := r.findDevice(search, st.Rdev)
		if named == "" {
			r.log().Debugf("no readable name for %s (%s) under %s", c, st.Rdev, search)
			continue
		}
		out = append(out, named)
	}
	return lo.Uniq(out), true, nil
}

// RootDevice returns the first device GuessRootDevices finds, as most
// callers want a single answer.
func (r *Resolver) RootDevice(dir string) (string, error) {
	devs, err := r.GuessRootDevices(dir)
	if err != nil {
		return "", err
	}
	if len(devs) == 0 {
		return "", newError(KindNoMapping, "cannot find a device for", dir, ErrNoMapping)
	}
	return devs[0], nil
}
