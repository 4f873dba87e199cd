package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigreer/rootdev/internal/runner"
)

func writeConfig(t *testing.T, content string) string {
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadFillsDefaults(t *testing.T) {
	r := require.New(t)
	cfg, err := Load(writeConfig(t, `
device_map: /etc/device.map
max_depth: 8
commands:
  mdadm: /sbin/mdadm
`))
	r.NoError(err)
	r.Equal("/etc/device.map", cfg.DeviceMap)
	r.Equal(8, cfg.MaxDepth)
	r.Equal("/dev", cfg.DevDir)
	r.Equal(DiscoveryAuto, cfg.Discovery)
	r.Equal(map[string]string{"mdadm": "/sbin/mdadm"}, cfg.Commands.Map())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadDiscoveryModes(t *testing.T) {
	for _, mode := range []string{DiscoveryDeviceMap, DiscoveryDatabase, DiscoveryAuto, DiscoveryNone} {
		cfg, err := Load(writeConfig(t, "discovery: "+mode+"\n"))
		require.NoError(t, err, mode)
		require.Equal(t, mode, cfg.Discovery)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	_, err := Load(writeConfig(t, "discovery: lsscsi\n"))
	require.ErrorContains(t, err, "unknown discovery mode")

	_, err = Load(writeConfig(t, "max_depth: [1\n"))
	require.Error(t, err)
}

func TestDiscoverDisks(t *testing.T) {
	r := require.New(t)
	run := &runner.Static{Outputs: map[string]string{
		"lsblk -d -b -n -o NAME,TYPE,SIZE": `loop0   loop       4096
sda     disk 500107862016
sr0     rom  1073741312
nvme0n1 disk 1000204886016
zram0   disk  8589934592
md127   raid1 499973210112
`,
	}}

	disks, err := DiscoverDisks(run, "", "/dev")
	r.NoError(err)
	r.Equal([]Disk{
		{Drive: "hd0", Name: "sda", Device: "/dev/sda", Size: 500107862016},
		{Drive: "hd1", Name: "nvme0n1", Device: "/dev/nvme0n1", Size: 1000204886016},
	}, disks)

	_, err = DiscoverDisks(&runner.Static{}, "", "")
	r.ErrorIs(err, runner.ErrNotInstalled)
}
