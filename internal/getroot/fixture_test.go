package getroot

import (
	"bytes"
	"encoding/binary"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/sigreer/rootdev/internal/blockdev"
	"github.com/sigreer/rootdev/internal/blockdev/blockdevtest"
	"github.com/sigreer/rootdev/internal/devenum"
	"github.com/sigreer/rootdev/internal/devmapper"
	"github.com/sigreer/rootdev/internal/geom"
	"github.com/sigreer/rootdev/internal/mdraid"
	"github.com/sigreer/rootdev/internal/mountinfo"
	"github.com/sigreer/rootdev/internal/platform"
	"github.com/sigreer/rootdev/internal/registry"
	"github.com/sigreer/rootdev/internal/runner"
)

// stubOps is a table-driven platform.
type stubOps struct {
	classes  map[string]platform.Abstraction
	disks    map[string]string
	starts    map[string]uint64
	startErr  error
	lvmPrefix string
}

func (s *stubOps) Name() string { return "stub" }

func (s *stubOps) Classify(path string) platform.Abstraction { return s.classes[path] }

func (s *stubOps) PartitionToDisk(path string) (string, bool, error) {
	if d, ok := s.disks[path]; ok {
		return d, true, nil
	}
	return path, true, nil
}

func (s *stubOps) IsWholeDisk(path string) bool {
	c := path[len(path)-1]
	return c < '0' || c > '9'
}

func (s *stubOps) IsDeviceNode(n blockdev.NodeInfo) bool { return n.IsBlock() }

func (s *stubOps) IsFloppy(string, blockdev.NodeInfo) bool { return false }

func (s *stubOps) PartitionStart(path string) (uint64, error) {
	if s.startErr != nil {
		return 0, s.startErr
	}
	return s.starts[path], nil
}

func (s *stubOps) LVMPrefix() string { return s.lvmPrefix }

type memDisk struct{ *bytes.Reader }

func (memDisk) Close() error { return nil }

// mbr returns a one-sector disk image with a primary partition at each
// start.
func mbr(starts ...uint32) []byte {
	img := make([]byte, 512)
	for i, s := range starts {
		off := 0x1BE + 0x10*i
		img[off+4] = 0x83
		binary.LittleEndian.PutUint32(img[off+8:], s)
		binary.LittleEndian.PutUint32(img[off+12:], 2048)
	}
	img[0x1FE], img[0x1FF] = 0x55, 0xAA
	return img
}

type fixture struct {
	t      *testing.T
	dev    string
	sys    string
	stat   *blockdevtest.Fake
	ops    *stubOps
	run     *runner.Static
	images  map[string][]byte
	sectors map[string]int64
	res     *Resolver
}

func newFixture(t *testing.T) *fixture {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	identity := func(p string) (string, error) { return p, nil }

	f := &fixture{
		t:    t,
		dev:  t.TempDir(),
		sys:  t.TempDir(),
		stat: &blockdevtest.Fake{Nodes: map[string]blockdev.NodeInfo{}, Links: map[string]string{}},
		ops: &stubOps{
			classes: map[string]platform.Abstraction{},
			disks:   map[string]string{},
			starts:  map[string]uint64{},
		},
		run:     &runner.Static{Outputs: map[string]string{}},
		images:  map[string][]byte{},
		sectors: map[string]int64{},
	}

	reg := registry.New(logger)
	reg.Realpath = identity
	enum := &devenum.Enumerator{Stat: f.stat, IsDeviceNode: blockdev.NodeInfo.IsBlock, Logger: logger}
	dm := devmapper.NewClient(f.sys, f.stat, f.run, logger)
	dm.DevDir = f.dev
	f.ops.lvmPrefix = dm.MapperDir()
	gm := geom.NewClient(f.run, logger)
	gm.DevDir = f.dev
	f.res = &Resolver{
		Stat:     f.stat,
		Realpath: identity,
		DevDir:   f.dev,
		Enum:     enum,
		Platform: f.ops,
		DM:       dm,
		MD: &mdraid.Client{
			SysDir: f.sys,
			DevDir: f.dev,
			Stat:   f.stat,
			Runner: f.run,
			Find:   func(id blockdev.DeviceID) string { return enum.FindDevice(f.dev, id) },
			Logger: logger,
		},
		Geom:     gm,
		Registry: reg,
		OpenDisk: func(path string) (DiskReader, error) {
			img, ok := f.images[path]
			if !ok {
				return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
			}
			return memDisk{bytes.NewReader(img)}, nil
		},
		SectorSize: func(path string) (int64, error) {
			if n, ok := f.sectors[path]; ok {
				return n, nil
			}
			return blockdev.DefaultSectorSize, nil
		},
		Logger: logger,
	}
	return f
}

// node creates a device node in the fixture's device directory.
func (f *fixture) node(name string, major, minor uint32) string {
	p := filepath.Join(f.dev, name)
	require.NoError(f.t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(f.t, os.WriteFile(p, nil, 0o600))
	f.stat.Nodes[p] = blockdevtest.BlockNode(major, minor)
	return p
}

// partition declares part as the partition of disk starting at start.
func (f *fixture) partition(part, disk string, start uint64) {
	f.ops.disks[part] = disk
	f.ops.starts[part] = start
}

// sysfs writes a file under the fake sysfs.
func (f *fixture) sysfs(rel, content string) {
	p := filepath.Join(f.sys, rel)
	require.NoError(f.t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(f.t, os.WriteFile(p, []byte(content+"\n"), 0o644))
}

// dm registers a device-mapper node in the fake sysfs.
func (f *fixture) dm(id, name, uuid string, slaves map[string]string) {
	f.sysfs(filepath.Join("dev/block", id, "dm/name"), name)
	if uuid != "" {
		f.sysfs(filepath.Join("dev/block", id, "dm/uuid"), uuid)
	}
	for slave, dev := range slaves {
		f.sysfs(filepath.Join("dev/block", id, "slaves", slave, "dev"), dev)
	}
}

// mounts installs a mount table.
func (f *fixture) mounts(lines ...string) {
	f.res.Mounts = &mountinfo.Resolver{
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(strings.Join(lines, "\n"))), nil
		},
		Logger: f.res.Logger,
	}
}
