package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sigreer/rootdev/internal/runner"
)

// Disk is a whole disk found by discovery.
type Disk struct {
	// Drive is the firmware name assigned in discovery order (hd0, hd1...).
	Drive  string
	Name   string
	Device string
	Size   uint64
}

// DiscoverDisks lists whole disks with lsblk, skipping virtual devices the
// firmware cannot boot from, and numbers them in lsblk's order.
func DiscoverDisks(run runner.Runner, lsblk, devDir string) ([]Disk, error) {
	if lsblk == "" {
		lsblk = "lsblk"
	}
	if devDir == "" {
		devDir = "/dev"
	}
	// lsblk -d -b -n -o NAME,TYPE,SIZE outputs: "sda disk 500107862016"
	out, err := run.Output(lsblk, "-d", "-b", "-n", "-o", "NAME,TYPE,SIZE")
	if err != nil {
		return nil, fmt.Errorf("listing disks: %w", err)
	}
	return parseLsblk(string(out), devDir), nil
}

func parseLsblk(out, devDir string) []Disk {
	var disks []Disk
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		name := fields[0]
		devType := fields[1]

		// Only include disk type devices
		if devType != "disk" {
			continue
		}
		if isExcludedDevice(name) {
			continue
		}

		var size uint64
		if len(fields) > 2 {
			size, _ = strconv.ParseUint(fields[2], 10, 64)
		}
		disks = append(disks, Disk{
			Drive:  "hd" + strconv.Itoa(len(disks)),
			Name:   name,
			Device: filepath.Join(devDir, name),
			Size:   size,
		})
	}
	return disks
}

// isExcludedDevice returns true for device names we should skip
func isExcludedDevice(name string) bool {
	excludePrefixes := []string{
		"loop", // Loop devices
		"dm-",  // Device mapper
		"sr",   // CD/DVD
		"zram", // ZRAM swap
		"ram",  // RAM disks
		"md",   // MD RAID (members are the disks)
		"nbd",  // Network block devices
		"fd",   // Floppy
	}

	for _, prefix := range excludePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}

	return false
}
