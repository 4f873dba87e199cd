// Package partmap reads MBR and GPT partition tables far enough to map a
// partition's start sector to the bootloader's name for it ("msdos1",
// "gpt2").
package partmap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// SectorSize is the unit partition starts are reported in.
const SectorSize = 512

// ErrNoTable is returned for disks with no recognisable partition table.
var ErrNoTable = errors.New("no partition table")

// Partition is one entry of a partition table.
type Partition struct {
	// Scheme is "msdos" or "gpt".
	Scheme string
	// Number is zero-based. MBR logical partitions are numbered from 4.
	Number int
	// Start and Length are in 512-byte sectors.
	Start  uint64
	Length uint64
	// Type is the MBR system id. Zero for GPT.
	Type byte
	// TypeGUID and GUID are set for GPT entries.
	TypeGUID uuid.UUID
	GUID     uuid.UUID
}

// Name is the bootloader's name for the partition.
func (p Partition) Name() string {
	return fmt.Sprintf("%s%d", p.Scheme, p.Number+1)
}

// Read returns every used partition on the disk. A protective MBR is
// followed to the GPT.
func Read(r io.ReaderAt) ([]Partition, error) {
	return ReadSectors(r, 0)
}

// ReadSectors is Read for a disk whose logical sector size is known. Table
// offsets count logical sectors; the returned starts are still in 512-byte
// units. Zero means unknown: MBR offsets are taken as 512-byte sectors and
// the GPT header is looked for at both common block sizes.
func ReadSectors(r io.ReaderAt, sectorSize int64) ([]Partition, error) {
	if sectorSize != 0 && (sectorSize < SectorSize || sectorSize%SectorSize != 0) {
		return nil, fmt.Errorf("unsupported sector size %d", sectorSize)
	}
	var mbr [SectorSize]byte
	if _, err := r.ReadAt(mbr[:], 0); err != nil {
		return nil, fmt.Errorf("reading MBR: %w", err)
	}
	if mbr[0x1FE] != 0x55 || mbr[0x1FF] != 0xAA {
		return nil, ErrNoTable
	}
	for i := 0; i < 4; i++ {
		if mbrEntry(mbr[:], i).typ == 0xEE {
			return readGPT(r, sectorSize)
		}
	}
	if sectorSize == 0 {
		sectorSize = SectorSize
	}
	return readMBR(r, mbr[:], sectorSize)
}

// FindByStart returns the partition starting at start.
func FindByStart(parts []Partition, start uint64) (Partition, bool) {
	for _, p := range parts {
		if p.Start == start {
			return p, true
		}
	}
	return Partition{}, false
}

type entry struct {
	typ    byte
	start  uint64
	length uint64
}

func mbrEntry(sector []byte, i int) entry {
	off := 0x1BE + 0x10*i
	return entry{
		typ:    sector[off+4],
		start:  uint64(binary.LittleEndian.Uint32(sector[off+8:])),
		length: uint64(binary.LittleEndian.Uint32(sector[off+12:])),
	}
}

func isExtended(typ byte) bool {
	return typ == 0x05 || typ == 0x0F || typ == 0x85
}

// maxLogical bounds the EBR chain so a looping chain cannot hang us.
const maxLogical = 128

func readMBR(r io.ReaderAt, mbr []byte, sectorSize int64) ([]Partition, error) {
	scale := uint64(sectorSize / SectorSize)
	var parts []Partition
	var extStart uint64
	for i := 0; i < 4; i++ {
		e := mbrEntry(mbr, i)
		switch {
		case e.typ == 0:
		case isExtended(e.typ):
			if extStart == 0 {
				extStart = e.start
			}
		default:
			parts = append(parts, Partition{Scheme: "msdos", Number: i, Start: e.start * scale, Length: e.length * scale, Type: e.typ})
		}
	}
	if extStart == 0 {
		return parts, nil
	}

	var ebr [SectorSize]byte
	offset := extStart
	for n := 0; n < maxLogical; n++ {
		if _, err := r.ReadAt(ebr[:], int64(offset)*sectorSize); err != nil {
			return parts, fmt.Errorf("reading EBR at sector %d: %w", offset, err)
		}
		if ebr[0x1FE] != 0x55 || ebr[0x1FF] != 0xAA {
			break
		}
		if e := mbrEntry(ebr[:], 0); e.typ != 0 && !isExtended(e.typ) {
			parts = append(parts, Partition{Scheme: "msdos", Number: 4 + n, Start: (offset + e.start) * scale, Length: e.length * scale, Type: e.typ})
		}
		next := mbrEntry(ebr[:], 1)
		if !isExtended(next.typ) || next.start == 0 {
			break
		}
		offset = extStart + next.start
	}
	return parts, nil
}

const gptSignature = "EFI PART"

func readGPT(r io.ReaderAt, sectorSize int64) ([]Partition, error) {
	// Without a known size try 512-byte logical blocks first, then 4K-native
	// disks.
	sizes := []int64{512, 4096}
	if sectorSize != 0 {
		sizes = []int64{sectorSize}
	}
	for _, lbaSize := range sizes {
		hdr := make([]byte, 92)
		if _, err := r.ReadAt(hdr, lbaSize); err != nil {
			continue
		}
		if string(hdr[:8]) != gptSignature {
			continue
		}
		return readGPTEntries(r, hdr, lbaSize)
	}
	return nil, fmt.Errorf("protective MBR without GPT header: %w", ErrNoTable)
}

func readGPTEntries(r io.ReaderAt, hdr []byte, lbaSize int64) ([]Partition, error) {
	entriesLBA := binary.LittleEndian.Uint64(hdr[72:])
	count := binary.LittleEndian.Uint32(hdr[80:])
	size := binary.LittleEndian.Uint32(hdr[84:])
	if size < 128 || count > 1024 {
		return nil, fmt.Errorf("implausible GPT header: %d entries of %d bytes", count, size)
	}

	buf := make([]byte, int(count)*int(size))
	if _, err := r.ReadAt(buf, int64(entriesLBA)*lbaSize); err != nil {
		return nil, fmt.Errorf("reading GPT entries: %w", err)
	}
	scale := uint64(lbaSize / SectorSize)

	var parts []Partition
	for i := 0; i < int(count); i++ {
		e := buf[i*int(size) : (i+1)*int(size)]
		typ := guidFromDisk(e[0:16])
		if typ == uuid.Nil {
			continue
		}
		first := binary.LittleEndian.Uint64(e[32:])
		last := binary.LittleEndian.Uint64(e[40:])
		parts = append(parts, Partition{
			Scheme:   "gpt",
			Number:   i,
			Start:    first * scale,
			Length:   (last - first + 1) * scale,
			TypeGUID: typ,
			GUID:     guidFromDisk(e[16:32]),
		})
	}
	return parts, nil
}

// guidFromDisk converts the mixed-endian on-disk GUID layout to RFC 4122
// byte order.
func guidFromDisk(b []byte) uuid.UUID {
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = b[3], b[2], b[1], b[0]
	u[4], u[5] = b[5], b[4]
	u[6], u[7] = b[7], b[6]
	copy(u[8:], b[8:16])
	return u
}
