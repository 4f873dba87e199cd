package db

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/rootdev/internal/registry"
)

func openTest(t *testing.T) *DB {
	d, err := New(filepath.Join(t.TempDir(), "sub", "devicemap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func newRegistry() *registry.Registry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	reg := registry.New(logger)
	reg.Realpath = func(p string) (string, error) { return p, nil }
	return reg
}

func TestMigrationsAreIdempotent(t *testing.T) {
	r := require.New(t)
	path := filepath.Join(t.TempDir(), "devicemap.db")
	d, err := New(path)
	r.NoError(err)
	r.NoError(d.Close())

	d, err = New(path)
	r.NoError(err)
	defer d.Close()
	r.Equal(path, d.Path())

	var version int
	r.NoError(d.conn.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version))
	r.Equal(2, version)
}

func TestUpsertMappingTracksMoves(t *testing.T) {
	r := require.New(t)
	d := openTest(t)

	m := &Mapping{Drive: "hd0", OSDisk: "/dev/sda", SizeBytes: 1 << 30}
	r.NoError(d.UpsertMapping(m))
	r.NotZero(m.ID)

	r.NoError(d.UpsertMapping(&Mapping{Drive: "hd0", OSDisk: "/dev/sdb"}))
	got, err := d.GetMapping("hd0")
	r.NoError(err)
	r.Equal("/dev/sdb", got.OSDisk)
	r.Equal(int64(1<<30), got.SizeBytes)
	r.Equal(SourceRegistry, got.Source)

	events, err := d.GetEvents("hd0", 0)
	r.NoError(err)
	r.Len(events, 2)
	r.Equal(EventMoved, events[0].EventType)
	r.Equal("/dev/sda", events[0].OldDisk)
	r.Equal(EventDiscovered, events[1].EventType)

	none, err := d.GetMapping("hd9")
	r.NoError(err)
	r.Nil(none)
}

func TestUpsertMappingReleasesDisk(t *testing.T) {
	r := require.New(t)
	d := openTest(t)
	r.NoError(d.UpsertMapping(&Mapping{Drive: "hd0", OSDisk: "/dev/sda"}))
	r.NoError(d.UpsertMapping(&Mapping{Drive: "hd1", OSDisk: "/dev/sda"}))

	all, err := d.GetAllMappings()
	r.NoError(err)
	r.Len(all, 1)
	r.Equal("hd1", all[0].Drive)
}

func TestDeleteMapping(t *testing.T) {
	r := require.New(t)
	d := openTest(t)
	r.NoError(d.UpsertMapping(&Mapping{Drive: "hd0", OSDisk: "/dev/sda"}))
	r.NoError(d.DeleteMapping("hd0"))
	r.NoError(d.DeleteMapping("hd0"))

	all, err := d.GetAllMappings()
	r.NoError(err)
	r.Empty(all)

	events, err := d.GetEvents("", 10)
	r.NoError(err)
	r.Equal(EventRemoved, events[0].EventType)
}

func TestRegistryRoundTrip(t *testing.T) {
	r := require.New(t)
	d := openTest(t)

	src := newRegistry()
	r.NoError(src.Add("hd0", "/dev/sda"))
	_, ok := src.Lookup("/dev/nvme0n1", true)
	r.True(ok)
	r.NoError(src.MountCrypto("hd0,msdos2", "/dev/mapper/cryptroot"))
	r.NoError(d.SaveRegistry(src, SourceRegistry, map[string]int64{"/dev/sda": 512}))

	dst := newRegistry()
	skipped, err := d.LoadRegistry(dst)
	r.NoError(err)
	r.Empty(skipped)
	r.ElementsMatch(src.Entries(), dst.Entries())
	r.Equal(src.CryptoMounts(), dst.CryptoMounts())

	conflicting := newRegistry()
	r.NoError(conflicting.Add("hd0", "/dev/sdz"))
	skipped, err = d.LoadRegistry(conflicting)
	r.NoError(err)
	r.Len(skipped, 1)
}
