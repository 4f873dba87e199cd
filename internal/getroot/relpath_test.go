package getroot

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigreer/rootdev/internal/blockdev"
)

func (f *fixture) dirs(dev blockdev.DeviceID, paths ...string) {
	for _, p := range paths {
		f.stat.Nodes[p] = blockdev.NodeInfo{Mode: os.ModeDir | 0o755, Dev: dev}
	}
}

var (
	rootFS = blockdev.DeviceID{Major: 8, Minor: 1}
	bootFS = blockdev.DeviceID{Major: 8, Minor: 2}
	dataFS = blockdev.DeviceID{Major: 8, Minor: 17}
)

func TestRelativePath(t *testing.T) {
	f := newFixture(t)
	f.mounts(
		"1 0 8:1 / / rw - ext4 /dev/sda1 rw",
		"2 1 8:2 / /boot rw - ext4 /dev/sda2 rw",
	)
	f.dirs(rootFS, "/", "/usr", "/usr/share")
	f.dirs(bootFS, "/boot", "/boot/grub", "/boot/grub/fonts")

	tests := []struct {
		path, want string
	}{
		{"/", ""},
		{"/boot", ""},
		{"/boot/grub", "/grub"},
		{"/boot/grub/fonts", "/grub/fonts"},
		{"/usr", "/usr"},
		{"/usr/share", "/usr/share"},
	}
	for _, tt := range tests {
		got, err := f.res.MakeSystemPathRelativeToItsRoot(tt.path)
		require.NoError(t, err, tt.path)
		require.Equal(t, tt.want, got, tt.path)
	}
}

func TestRelativePathBindMount(t *testing.T) {
	f := newFixture(t)
	f.mounts(
		"1 0 8:1 / / rw - ext4 /dev/sda1 rw",
		"3 1 8:17 /exports/boot/ /mnt/boot rw - ext4 /dev/sdb1 rw",
	)
	f.dirs(rootFS, "/", "/mnt")
	f.dirs(dataFS, "/mnt/boot", "/mnt/boot/grub")

	got, err := f.res.MakeSystemPathRelativeToItsRoot("/mnt/boot/grub")
	require.NoError(t, err)
	require.Equal(t, "/exports/boot/grub", got)

	got, err = f.res.MakeSystemPathRelativeToItsRoot("/mnt/boot")
	require.NoError(t, err)
	require.Equal(t, "/exports/boot", got)
}

func TestRelativePathPool(t *testing.T) {
	f := newFixture(t)
	f.res.PoolFromDir = func(string) (string, string, bool) {
		return "rpool", "rpool/ROOT/default", true
	}
	f.dirs(rootFS, "/", "/boot")
	f.dirs(bootFS, "/boot/grub", "/boot/grub/i386")

	got, err := f.res.MakeSystemPathRelativeToItsRoot("/boot/grub/i386")
	require.NoError(t, err)
	require.Equal(t, "/rpool/ROOT/default/@/i386", got)

	got, err = f.res.MakeSystemPathRelativeToItsRoot("/boot/grub")
	require.NoError(t, err)
	require.Equal(t, "/rpool/ROOT/default/@", got)
}

func TestRelativePathStatFailure(t *testing.T) {
	f := newFixture(t)
	_, err := f.res.MakeSystemPathRelativeToItsRoot("/definitely/not/here")
	require.True(t, IsKind(err, KindConfig))
}
