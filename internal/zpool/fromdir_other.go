//go:build !freebsd

package zpool

// FromDir reports the pool and filesystem mounted at dir. Only FreeBSD
// exposes this through statfs; elsewhere the mount table is used instead.
func FromDir(dir string) (pool, fs string, ok bool) {
	return "", "", false
}
