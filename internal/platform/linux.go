package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/sigreer/rootdev/internal/blockdev"
	"github.com/sigreer/rootdev/internal/devmapper"
)

// floppyMajor is the Linux block major of floppy drives.
const floppyMajor = 2

var reNVMe = regexp.MustCompile(`^nvme[0-9]+n[0-9]+`)

// Linux names disks after the kernel's block device families and uses
// device-mapper and md for abstractions.
type Linux struct {
	Deps
}

func (l *Linux) Name() string { return "linux" }

func (l *Linux) LVMPrefix() string { return l.mapperDir() }

func (l *Linux) mapperDir() string {
	if l.DM != nil {
		return l.DM.MapperDir()
	}
	return l.devPath("mapper/")
}

func (l *Linux) IsDeviceNode(n blockdev.NodeInfo) bool { return n.IsBlock() }

func (l *Linux) IsFloppy(_ string, n blockdev.NodeInfo) bool {
	return n.Rdev.Major == floppyMajor
}

// Classify looks at device-mapper uuids for LVM and LUKS and at the md
// naming convention for RAID.
func (l *Linux) Classify(path string) Abstraction {
	if strings.HasPrefix(path, l.mapperDir()) {
		if l.DM == nil || !l.DM.Available() {
			// Without device-mapper metadata every mapper node is assumed
			// to be a logical volume.
			return LVM
		}
		uuid := l.DM.UUID(path)
		switch {
		case strings.HasPrefix(uuid, devmapper.UUIDPrefixLVM):
			return LVM
		case strings.HasPrefix(uuid, devmapper.UUIDPrefixLUKS):
			return LUKS
		}
		return None
	}
	if strings.HasPrefix(path, l.devPath("md")) && (l.DM == nil || !l.DM.IsMappedPath(path)) {
		return RAID
	}
	return None
}

// PartitionToDisk strips the partition part of a kernel device name.
func (l *Linux) PartitionToDisk(osDev string) (string, bool, error) {
	path, err := l.realpath(osDev)
	if err != nil {
		return "", false, fmt.Errorf("canonical path of %s: %w", osDev, err)
	}
	p, ok := l.devName(path)
	if !ok {
		return path, true, nil
	}
	if disk, ok := linuxDiskName(p); ok {
		return l.devPath(disk), true, nil
	}

	// Mapper nodes are usually symlinks to dm-N, so test the name as given.
	if strings.HasPrefix(osDev, l.mapperDir()) && l.DM != nil {
		disk := l.DM.DiskFor(osDev, func(id blockdev.DeviceID) string {
			if l.Enum == nil {
				return ""
			}
			return l.Enum.FindDevice(l.devDir(), id)
		})
		return disk, disk != "", nil
	}
	return path, true, nil
}

// linuxDiskName applies the per-family rules to a name relative to /dev.
// It reports false when no family matched.
func linuxDiskName(p string) (string, bool) {
	cutAt := func(s string, c byte) string {
		if i := strings.IndexByte(s, c); i >= 0 {
			return s[:i]
		}
		return s
	}

	switch {
	// devfs IDE and SCSI: .../part3 -> .../disc
	case strings.HasPrefix(p, "ide/"), strings.HasPrefix(p, "scsi/"):
		if i := strings.Index(p, "part"); i >= 0 {
			return p[:i] + "disc", true
		}
		return p, true

	// DAC960, Mylex AcceleRAID, CCISS, Compaq IDA: c0d0p1 -> c0d0
	case strings.HasPrefix(p, "rd/c"), strings.HasPrefix(p, "rs/c"),
		strings.HasPrefix(p, "cciss/c"), strings.HasPrefix(p, "ida/c"):
		return cutAt(p, 'p'), true

	// I2O: i2o/hda3 -> i2o/hda
	case strings.HasPrefix(p, "i2o/hd"):
		if len(p) > len("i2o/hda") {
			return p[:len("i2o/hda")], true
		}
		return p, true

	// MMC: mmcblk0p2 -> mmcblk0
	case strings.HasPrefix(p, "mmcblk"):
		return cutAt(p, 'p'), true

	// NVMe namespaces: nvme0n1p2 -> nvme0n1
	case reNVMe.MatchString(p):
		return reNVMe.FindString(p), true

	// md0p1 -> md0
	case len(p) > 2 && strings.HasPrefix(p, "md") && isDigit(p[2]):
		i := 2
		for i < len(p) && isDigit(p[i]) {
			i++
		}
		return p[:i], true

	// vdiska1 -> vdiska
	case len(p) > 5 && strings.HasPrefix(p, "vdisk") && isLower(p[5]):
		return p[:6], true

	// IDE, SCSI, virtio: sdab3 -> sdab
	case len(p) > 2 && (strings.HasPrefix(p, "hd") || strings.HasPrefix(p, "vd") || strings.HasPrefix(p, "sd")) && isLower(p[2]):
		return p[:2+lowerRun(p[2:])], true

	// Xen: xvda1 -> xvda
	case len(p) > 3 && strings.HasPrefix(p, "xvd") && isLower(p[3]):
		return p[:3+lowerRun(p[3:])], true
	}
	return "", false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isLower(c byte) bool { return c >= 'a' && c <= 'z' }

func lowerRun(s string) int {
	n := 0
	for n < len(s) && isLower(s[n]) {
		n++
	}
	return n
}

// IsWholeDisk treats names that do not end in a digit as disks.
func (l *Linux) IsWholeDisk(path string) bool {
	return path == "" || !isDigit(path[len(path)-1])
}

// PartitionStart reads the partition's start sector from sysfs. Whole
// disks have no start attribute and start at 0.
func (l *Linux) PartitionStart(path string) (uint64, error) {
	st, err := l.Stat.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("cannot stat %s: %w", path, err)
	}
	sys := l.SysDir
	if sys == "" {
		sys = "/sys"
	}
	raw, err := os.ReadFile(filepath.Join(sys, "dev", "block", st.Rdev.String(), "start"))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading start of %s: %w", path, err)
	}
	start, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing start of %s: %w", path, err)
	}
	return start, nil
}
