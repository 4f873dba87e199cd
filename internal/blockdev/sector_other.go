//go:build !linux

package blockdev

// LogicalSectorSize returns DefaultSectorSize; other systems report sector
// sizes through their own topology (GEOM on FreeBSD).
func LogicalSectorSize(string) (int64, error) {
	return DefaultSectorSize, nil
}
