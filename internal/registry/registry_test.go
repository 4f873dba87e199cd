package registry

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	reg := New(l)
	reg.Realpath = func(p string) (string, error) {
		if p == "/dev/disk/by-id/ata-disk" {
			return "/dev/sda", nil
		}
		return p, nil
	}
	return reg
}

func TestLookupAdds(t *testing.T) {
	r := require.New(t)
	reg := newTestRegistry()

	_, ok := reg.Lookup("/dev/sdb", false)
	r.False(ok)

	drive, ok := reg.Lookup("/dev/sdb", true)
	r.True(ok)
	r.Equal("hostdisk//dev/sdb", drive)

	drive, ok = reg.Lookup("/dev/sdb", false)
	r.True(ok)
	r.Equal("hostdisk//dev/sdb", drive)

	disk, ok := reg.OSDisk("hostdisk//dev/sdb")
	r.True(ok)
	r.Equal("/dev/sdb", disk)
}

func TestAddIsImmutable(t *testing.T) {
	r := require.New(t)
	reg := newTestRegistry()
	r.NoError(reg.Add("hd0", "/dev/disk/by-id/ata-disk"))
	r.NoError(reg.Add("hd0", "/dev/sda"))
	r.Error(reg.Add("hd1", "/dev/sda"))
	r.Error(reg.Add("hd0", "/dev/sdb"))

	drive, ok := reg.Lookup("/dev/disk/by-id/ata-disk", true)
	r.True(ok)
	r.Equal("hd0", drive)
	r.Equal([]Entry{{Drive: "hd0", OSDisk: "/dev/sda"}}, reg.Entries())
}

func TestConcurrentLookup(t *testing.T) {
	reg := newTestRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reg.Lookup(fmt.Sprintf("/dev/sd%c", 'a'+i%4), true)
		}(i)
	}
	wg.Wait()
	require.Len(t, reg.Entries(), 4)
}

func TestDeviceMapRoundTrip(t *testing.T) {
	r := require.New(t)
	input := "# generated\n(hd0)\t/dev/sda\n\n(hd1)   /dev/nvme0n1\nbroken line\n(fd0 /dev/fd0\n(hd2)\n"
	var warnings []string
	entries, err := ParseDeviceMap(strings.NewReader(input), func(f string, a ...any) {
		warnings = append(warnings, fmt.Sprintf(f, a...))
	})
	r.NoError(err)
	r.Equal([]Entry{{"hd0", "/dev/sda"}, {"hd1", "/dev/nvme0n1"}}, entries)
	r.Len(warnings, 3)

	var buf bytes.Buffer
	r.NoError(WriteDeviceMap(&buf, entries))
	r.Equal("(hd0)\t/dev/sda\n(hd1)\t/dev/nvme0n1\n", buf.String())
}

func TestLoad(t *testing.T) {
	r := require.New(t)
	reg := newTestRegistry()
	r.NoError(reg.Load(strings.NewReader("(hd0)\t/dev/sda\n(hd1)\t/dev/sda\n")))
	drive, ok := reg.Lookup("/dev/sda", false)
	r.True(ok)
	r.Equal("hd0", drive)
	r.Len(reg.Entries(), 1)
}

func TestMountCrypto(t *testing.T) {
	r := require.New(t)
	reg := newTestRegistry()
	r.NoError(reg.MountCrypto("hd0,gpt2", "/dev/mapper/cryptroot"))
	r.NoError(reg.MountCrypto("hd0,gpt2", "/dev/mapper/cryptroot"))
	r.Error(reg.MountCrypto("hd1,gpt2", "/dev/mapper/cryptroot"))
	r.Equal([]CryptoMount{{GrubDev: "hd0,gpt2", OSDev: "/dev/mapper/cryptroot"}}, reg.CryptoMounts())
}
