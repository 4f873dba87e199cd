package blockdevtest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigreer/rootdev/internal/blockdev"
)

func TestFake(t *testing.T) {
	r := require.New(t)
	dir := t.TempDir()
	r.NoError(os.WriteFile(filepath.Join(dir, "sda"), nil, 0o600))

	f := &Fake{
		Nodes: map[string]blockdev.NodeInfo{filepath.Join(dir, "sda"): BlockNode(8, 0)},
		Links: map[string]string{filepath.Join(dir, "root"): "sda"},
	}

	n, err := f.Stat(filepath.Join(dir, "root"))
	r.NoError(err)
	r.True(n.IsBlock())
	r.Equal(blockdev.DeviceID{Major: 8}, n.Rdev)

	n, err = f.Lstat(filepath.Join(dir, "root"))
	r.NoError(err)
	r.True(n.IsSymlink())

	_, err = f.Stat(filepath.Join(dir, "missing"))
	r.Error(err)
}
