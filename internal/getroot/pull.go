package getroot

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sigreer/rootdev/internal/devmapper"
	"github.com/sigreer/rootdev/internal/platform"
)

// Abstraction classifies osDev. Devices whose disk is already known to
// the drive registry are taken at face value.
func (r *Resolver) Abstraction(osDev string) platform.Abstraction {
	if r.BiosdiskIsPresent(osDev) {
		return platform.None
	}
	return r.Platform.Classify(osDev)
}

// PullDevice registers every disk beneath osDev so that boot-time code can
// find them without the abstraction in place.
func (r *Resolver) PullDevice(osDev string) error {
	return r.pull(osDev, 0)
}

func (r *Resolver) pull(osDev string, depth int) error {
	if depth > r.maxDepth() {
		return newError(KindConfig, "pulling", osDev, fmt.Errorf("%w (more than %d levels)", ErrDepthExceeded, r.maxDepth()))
	}

	switch ab := r.Abstraction(osDev); ab {
	case platform.GELI:
		return r.pullGeli(osDev, depth)
	case platform.LVM, platform.LUKS:
		return r.pullMapper(osDev, ab, depth)
	case platform.RAID:
		if r.MD == nil {
			return nil
		}
		members, err := r.MD.Members(osDev)
		if err != nil {
			return newError(KindConfig, "cannot get members of", osDev, err)
		}
		for _, m := range members {
			if err := r.pull(m, depth+1); err != nil {
				return err
			}
		}
		return nil
	default:
		if _, err := r.BiosdiskGrubDev(osDev); err != nil {
			r.log().Debugf("registering %s: %v", osDev, err)
		}
		return nil
	}
}

func (r *Resolver) pullMapper(osDev string, ab platform.Abstraction, depth int) error {
	if r.DM == nil {
		return nil
	}
	node, err := r.DM.NodeForPath(osDev)
	if err != nil {
		r.log().Debugf("device-mapper lookup of %s: %v", osDev, err)
		return nil
	}

	var last string
	for _, child := range node.Children {
		sub := r.findDevice(r.devDir(), child)
		if sub == "" {
			r.log().Debugf("no device node for %s, child of %s", child, osDev)
			continue
		}
		last = sub
		if err := r.pull(sub, depth+1); err != nil {
			return err
		}
	}
	if ab == platform.LUKS && last != "" {
		return r.mountCrypto(last, osDev)
	}
	return nil
}

func (r *Resolver) pullGeli(osDev string, depth int) error {
	if r.Geom == nil {
		return nil
	}
	under, err := r.Geom.Underlying(osDev)
	if err != nil {
		return newError(KindConfig, "following geom", osDev, err)
	}
	if err := r.pull(under, depth+1); err != nil {
		return err
	}
	return r.mountCrypto(under, osDev)
}

// mountCrypto records that the container osDev lives on sub.
func (r *Resolver) mountCrypto(sub, osDev string) error {
	grdev, err := r.name(sub)
	if err != nil || grdev == "" {
		r.log().Debugf("no device name for %s under %s: %v", sub, osDev, err)
		return nil
	}
	if err := r.Registry.MountCrypto(grdev, osDev); err != nil {
		return newError(KindConfig, "can't mount crypto", osDev, err)
	}
	return nil
}

// GetGrubDev pulls osDev and returns its bootloader device name.
func (r *Resolver) GetGrubDev(osDev string) (string, error) {
	if err := r.pull(osDev, 0); err != nil {
		return "", err
	}
	return r.name(osDev)
}

func (r *Resolver) name(osDev string) (string, error) {
	switch r.Abstraction(osDev) {
	case platform.LVM:
		return "lvm/" + strings.TrimPrefix(osDev, r.Platform.LVMPrefix()), nil

	case platform.LUKS:
		if r.DM == nil {
			return "", nil
		}
		id := LUKSUUID(r.DM.UUID(osDev))
		if id == "" {
			return "", nil
		}
		if _, err := uuid.Parse(id); err != nil {
			r.log().Warnf("LUKS uuid %q of %s is not a UUID: %v", id, osDev, err)
		}
		return "cryptouuid/" + strings.ToLower(id), nil

	case platform.GELI:
		if r.Geom == nil {
			return "", newError(KindPlatform, "naming", osDev, platform.ErrUnsupported)
		}
		under, err := r.Geom.Underlying(osDev)
		if err != nil {
			return "", newError(KindConfig, "following geom", osDev, err)
		}
		id, err := r.Geom.GeliUUID(under)
		if err != nil {
			return "", newError(KindConfig, "couldn't retrieve geli UUID of", under, err)
		}
		return "cryptouuid/" + id, nil

	case platform.RAID:
		return r.raidName(osDev)

	default:
		return r.BiosdiskGrubDev(osDev)
	}
}

// LUKSUUID extracts the container UUID from a CRYPT-LUKSn-<uuid>-<name>
// device-mapper uuid. It returns "" for anything else.
func LUKSUUID(dmUUID string) string {
	rest, ok := strings.CutPrefix(dmUUID, devmapper.UUIDPrefixLUKS)
	if !ok {
		return ""
	}
	// Skip the version digit and its dash.
	_, rest, ok = strings.Cut(rest, "-")
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(rest, "-")
	return id
}
