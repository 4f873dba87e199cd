package geom

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	geliMagic      = "GEOM::ELI"
	geliSaltOffset = 47
	geliSaltLen    = 64
	geliUUIDLen    = 16

	// diskSectorSize is the unit partition offsets are reported in.
	diskSectorSize = 512
)

// ErrNoGeliMetadata is returned when the last sector holds no geli header.
var ErrNoGeliMetadata = errors.New("no geli metadata")

// GeliUUIDFromMetadata derives the UUID of a geli device from its metadata
// sector: the first 16 bytes of HMAC-SHA256 keyed by the salt over "uuid".
func GeliUUIDFromMetadata(sector []byte) (string, error) {
	if len(sector) < geliSaltOffset+geliSaltLen || !bytes.HasPrefix(sector, []byte(geliMagic)) {
		return "", ErrNoGeliMetadata
	}
	mac := hmac.New(sha256.New, sector[geliSaltOffset:geliSaltOffset+geliSaltLen])
	mac.Write([]byte("uuid"))
	return hex.EncodeToString(mac.Sum(nil)[:geliUUIDLen]), nil
}

// ReadGeliUUID reads the metadata stored in the last sector of the device
// at path. size and sectorSize come from GEOM; when zero the size is found
// by seeking and 512-byte sectors are assumed.
func ReadGeliUUID(path string, size, sectorSize int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("couldn't open geli device %s: %w", path, err)
	}
	defer f.Close()

	if sectorSize <= 0 {
		sectorSize = diskSectorSize
	}
	if size <= 0 {
		if size, err = f.Seek(0, io.SeekEnd); err != nil {
			return "", fmt.Errorf("couldn't get size of %s: %w", path, err)
		}
	}
	if size < sectorSize {
		return "", fmt.Errorf("%s: %w", path, ErrNoGeliMetadata)
	}

	sector := make([]byte, sectorSize)
	if _, err := f.ReadAt(sector, size-sectorSize); err != nil {
		return "", fmt.Errorf("couldn't read geli metadata of %s: %w", path, err)
	}
	uuid, err := GeliUUIDFromMetadata(sector)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return uuid, nil
}
