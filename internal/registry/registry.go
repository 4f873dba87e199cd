// Package registry maps OS disk paths to bootloader drive names. Entries
// come from a device.map file or are added on first use; once added an
// entry never changes.
package registry

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// HostDiskPrefix names drives registered on demand rather than from a map.
const HostDiskPrefix = "hostdisk/"

// Entry is one drive mapping.
type Entry struct {
	Drive  string
	OSDisk string
}

// CryptoMount ties an encrypted container's OS path to the bootloader
// device of the disk holding it.
type CryptoMount struct {
	GrubDev string
	OSDev   string
}

// Registry is safe for concurrent use.
type Registry struct {
	// Realpath canonicalises lookups, filepath.EvalSymlinks when nil.
	Realpath func(string) (string, error)
	Logger   *logrus.Logger

	mu      sync.Mutex
	entries []Entry
	byDisk  map[string]int
	byDrive map[string]int
	crypto  []CryptoMount
}

// New returns an empty registry.
func New(logger *logrus.Logger) *Registry {
	return &Registry{Logger: logger}
}

func (r *Registry) log() *logrus.Logger {
	if r.Logger == nil {
		return logrus.StandardLogger()
	}
	return r.Logger
}

func (r *Registry) canonical(path string) string {
	realpath := r.Realpath
	if realpath == nil {
		realpath = filepath.EvalSymlinks
	}
	if p, err := realpath(path); err == nil {
		return p
	}
	return path
}

func (r *Registry) init() {
	if r.byDisk == nil {
		r.byDisk = make(map[string]int)
		r.byDrive = make(map[string]int)
	}
}

// Add registers drive for osDisk. It fails if either side is already
// mapped to something else.
func (r *Registry) Add(drive, osDisk string) error {
	disk := r.canonical(osDisk)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.init()
	if i, ok := r.byDisk[disk]; ok {
		if r.entries[i].Drive == drive {
			return nil
		}
		return fmt.Errorf("%s is already mapped to %s", osDisk, r.entries[i].Drive)
	}
	if i, ok := r.byDrive[drive]; ok {
		return fmt.Errorf("drive %s is already mapped to %s", drive, r.entries[i].OSDisk)
	}
	r.insert(drive, disk)
	return nil
}

func (r *Registry) insert(drive, disk string) {
	r.entries = append(r.entries, Entry{Drive: drive, OSDisk: disk})
	r.byDisk[disk] = len(r.entries) - 1
	r.byDrive[drive] = len(r.entries) - 1
}

// Lookup returns the drive for osDisk. On a miss with add set the disk is
// registered as hostdisk/<path>.
func (r *Registry) Lookup(osDisk string, add bool) (string, bool) {
	disk := r.canonical(osDisk)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.init()
	if i, ok := r.byDisk[disk]; ok {
		return r.entries[i].Drive, true
	}
	if !add {
		return "", false
	}
	drive := HostDiskPrefix + disk
	r.insert(drive, disk)
	r.log().Debugf("registry: %s is now %s", disk, drive)
	return drive, true
}

// OSDisk returns the disk path behind a drive name.
func (r *Registry) OSDisk(drive string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.init()
	if i, ok := r.byDrive[drive]; ok {
		return r.entries[i].OSDisk, true
	}
	return "", false
}

// Entries returns the mappings in registration order.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// MountCrypto records that osDev is the encrypted container found on
// grubDev.
func (r *Registry) MountCrypto(grubDev, osDev string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.crypto {
		if m.OSDev != osDev {
			continue
		}
		if m.GrubDev == grubDev {
			return nil
		}
		return fmt.Errorf("can't mount crypto: %s is already on %s", osDev, m.GrubDev)
	}
	r.crypto = append(r.crypto, CryptoMount{GrubDev: grubDev, OSDev: osDev})
	r.log().Debugf("registry: crypto %s on %s", osDev, grubDev)
	return nil
}

// CryptoMounts returns the recorded encrypted containers.
func (r *Registry) CryptoMounts() []CryptoMount {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CryptoMount, len(r.crypto))
	copy(out, r.crypto)
	return out
}
