package getroot

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/sigreer/rootdev/internal/partmap"
	"github.com/sigreer/rootdev/internal/platform"
)

// findSystemDevice returns the drive for osDev. With convert set the
// partition is first reduced to its disk; with add set unknown disks are
// registered.
func (r *Resolver) findSystemDevice(osDev string, convert, add bool) string {
	disk := osDev
	if convert {
		d, ok, err := r.Platform.PartitionToDisk(osDev)
		if err != nil {
			r.log().Debugf("disk of %s: %v", osDev, err)
			return ""
		}
		if !ok {
			return ""
		}
		disk = d
	}
	if r.Registry == nil {
		return ""
	}
	drive, _ := r.Registry.Lookup(disk, add)
	return drive
}

// BiosdiskIsPresent reports whether the disk holding osDev already has a
// drive. Such devices are addressed directly, whatever sits on them.
func (r *Resolver) BiosdiskIsPresent(osDev string) bool {
	if _, err := r.Stat.Stat(osDev); err != nil {
		return false
	}
	return r.findSystemDevice(osDev, true, false) != ""
}

// BiosdiskGrubDev names a plain disk or partition as drive[,partition].
// The disk is registered when it is not known yet.
func (r *Resolver) BiosdiskGrubDev(osDev string) (string, error) {
	st, err := r.Stat.Stat(osDev)
	if err != nil {
		return "", newError(KindBadDevice, "cannot stat", osDev, err)
	}

	drive := r.findSystemDevice(osDev, true, true)
	if drive == "" {
		return "", newError(KindNoMapping, "no mapping exists for", osDev, ErrNoMapping)
	}

	disk, _, err := r.Platform.PartitionToDisk(osDev)
	if err != nil {
		return "", newError(KindBadDevice, "cannot find the disk of", osDev, err)
	}
	if disk == osDev {
		return MakeDeviceName(drive, -1, -1), nil
	}
	// Only whole-disk devices are visible to the firmware.
	if !r.Platform.IsDeviceNode(st) || r.Platform.IsFloppy(osDev, st) {
		return MakeDeviceName(drive, -1, -1), nil
	}

	start, err := r.Platform.PartitionStart(osDev)
	switch {
	case errors.Is(err, platform.ErrUnsupported):
		r.log().Warnf("cannot get the partition start of %s on %s, using the whole disk", osDev, r.Platform.Name())
		return MakeDeviceName(drive, -1, -1), nil
	case err != nil:
		return "", newError(KindBadDevice, "cannot find the partition start of", osDev, err)
	}
	r.log().Debugf("%s starts from %d", osDev, start)
	if start == 0 && r.Platform.IsWholeDisk(osDev) {
		return MakeDeviceName(drive, -1, -1), nil
	}

	parts, err := r.readPartitions(drive)
	if errors.Is(err, fs.ErrNotExist) {
		r.log().Warnf("disk does not exist, so falling back to partition device %s", osDev)
		fallback := r.findSystemDevice(osDev, false, true)
		if fallback == "" {
			return "", newError(KindNoMapping, "no mapping exists for", osDev, ErrNoMapping)
		}
		return MakeDeviceName(fallback, -1, -1), nil
	}
	if err != nil {
		return "", newError(KindBadDevice, "reading partitions of", osDev, err)
	}

	p, ok := partmap.FindByStart(parts, start)
	if !ok {
		return "", newError(KindBadDevice, "cannot find the partition of", osDev,
			fmt.Errorf("%w: no partition starts at sector %d", ErrBadDevice, start))
	}
	return MakeDeviceName(drive, -1, -1) + "," + p.Name(), nil
}

func (r *Resolver) readPartitions(drive string) ([]partmap.Partition, error) {
	disk, ok := r.Registry.OSDisk(drive)
	if !ok {
		return nil, fmt.Errorf("drive %s: %w", drive, fs.ErrNotExist)
	}
	f, err := r.openDisk(disk)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return partmap.ReadSectors(f, r.sectorSize(disk))
}
