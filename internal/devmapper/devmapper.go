// Package devmapper answers device-mapper questions about a node: its
// uuid and name, the devices it is built from, and where a linear table
// points.
//
// Node metadata comes from sysfs (/sys/dev/block/M:m/dm and slaves);
// tables come from `dmsetup table`.
package devmapper

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sigreer/rootdev/internal/blockdev"
	"github.com/sigreer/rootdev/internal/cache"
	"github.com/sigreer/rootdev/internal/runner"
)

// mapperSubdir is where device-mapper exposes readable node names below
// the device directory.
const mapperSubdir = "mapper"

// uuid prefixes written by the tools that create mappings
const (
	UUIDPrefixLVM    = "LVM-"
	UUIDPrefixLUKS   = "CRYPT-LUKS"
	UUIDPrefixMpath  = "mpath-"
	UUIDPrefixDMRAID = "DMRAID-"
)

// ErrNotMapped is returned for devices that are not device-mapper nodes.
var ErrNotMapped = errors.New("not a device-mapper node")

// Node is one device-mapper device.
type Node struct {
	ID   blockdev.DeviceID
	Name string
	// UUID is empty when the creator did not set one.
	UUID string
	// Children are the devices this node maps onto, in sysfs order.
	Children []blockdev.DeviceID
}

// Client reads device-mapper state.
type Client struct {
	// SysDir is the sysfs mount point, "/sys" when empty.
	SysDir string
	// DevDir holds the mapper directory, "/dev" when empty.
	DevDir string
	Stat   blockdev.Stater
	Runner runner.Runner
	// Command is the dmsetup binary, "dmsetup" when empty.
	Command string
	Logger  *logrus.Logger

	nodes *cache.Cache[blockdev.DeviceID, *Node]
}

// NewClient returns a Client that remembers nodes for one invocation.
func NewClient(sysDir string, stat blockdev.Stater, run runner.Runner, logger *logrus.Logger) *Client {
	return &Client{
		SysDir: sysDir,
		Stat:   stat,
		Runner: run,
		Logger: logger,
		nodes:  cache.New[blockdev.DeviceID, *Node](cache.TTLInvocation),
	}
}

func (c *Client) sys(elem ...string) string {
	dir := c.SysDir
	if dir == "" {
		dir = "/sys"
	}
	return filepath.Join(append([]string{dir}, elem...)...)
}

// MapperDir is the directory of named mapper nodes, with a trailing
// slash.
func (c *Client) MapperDir() string {
	dir := c.DevDir
	if dir == "" {
		dir = "/dev"
	}
	return filepath.Join(dir, mapperSubdir) + "/"
}

func (c *Client) log() *logrus.Logger {
	if c.Logger == nil {
		return logrus.StandardLogger()
	}
	return c.Logger
}

func (c *Client) command() string {
	if c.Command == "" {
		return "dmsetup"
	}
	return c.Command
}

// Available reports whether the kernel has device-mapper support loaded.
func (c *Client) Available() bool {
	_, err := os.Stat(c.sys("class", "misc", "device-mapper"))
	return err == nil
}

// IsMapped reports whether id is a device-mapper node.
func (c *Client) IsMapped(id blockdev.DeviceID) bool {
	_, err := os.Stat(c.sys("dev", "block", id.String(), "dm"))
	return err == nil
}

// IsMappedPath is IsMapped for a device path.
func (c *Client) IsMappedPath(path string) bool {
	st, err := c.Stat.Stat(path)
	if err != nil {
		return false
	}
	return c.IsMapped(st.Rdev)
}

// Lookup returns the node with identity id.
func (c *Client) Lookup(id blockdev.DeviceID) (*Node, error) {
	if c.nodes == nil {
		return c.load(id)
	}
	return c.nodes.GetOrLoad(id, func() (*Node, error) {
		return c.load(id)
	})
}

func (c *Client) load(id blockdev.DeviceID) (*Node, error) {
	base := c.sys("dev", "block", id.String())
	name, err := os.ReadFile(filepath.Join(base, "dm", "name"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", id, ErrNotMapped)
		}
		return nil, fmt.Errorf("reading dm name of %s: %w", id, err)
	}
	n := &Node{ID: id, Name: strings.TrimSpace(string(name))}

	if uuid, err := os.ReadFile(filepath.Join(base, "dm", "uuid")); err == nil {
		n.UUID = strings.TrimSpace(string(uuid))
	}

	slaves, _ := os.ReadDir(filepath.Join(base, "slaves"))
	names := make([]string, 0, len(slaves))
	for _, s := range slaves {
		names = append(names, s.Name())
	}
	sort.Strings(names)
	for _, s := range names {
		raw, err := os.ReadFile(filepath.Join(base, "slaves", s, "dev"))
		if err != nil {
			c.log().Debugf("devmapper: %s: no dev for slave %s: %v", n.Name, s, err)
			continue
		}
		child, err := blockdev.ParseDeviceID(string(raw))
		if err != nil {
			continue
		}
		n.Children = append(n.Children, child)
	}
	c.log().Debugf("devmapper: %s is %s uuid=%q children=%v", id, n.Name, n.UUID, n.Children)
	return n, nil
}

// NodeForPath stats a mapper path and looks up its node. Paths outside
// MapperDir are ErrNotMapped.
func (c *Client) NodeForPath(path string) (*Node, error) {
	if !strings.HasPrefix(path, c.MapperDir()) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotMapped)
	}
	st, err := c.Stat.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return c.Lookup(st.Rdev)
}

// UUID returns the device-mapper uuid of path, or "" when path is not a
// mapper node or has none.
func (c *Client) UUID(path string) string {
	n, err := c.NodeForPath(path)
	if err != nil {
		c.log().Debugf("devmapper: no uuid for %s: %v", path, err)
		return ""
	}
	return n.UUID
}

// LinearTarget returns the device the first target of the named mapping
// points at, when that target is linear.
func (c *Client) LinearTarget(name string) (blockdev.DeviceID, bool) {
	if c.Runner == nil {
		return blockdev.DeviceID{}, false
	}
	out, err := c.Runner.Output(c.command(), "table", name)
	if err != nil {
		c.log().Debugf("devmapper: table %s: %v", name, err)
		return blockdev.DeviceID{}, false
	}
	return ParseLinearTable(string(out))
}

// ParseLinearTable reads a `dmsetup table` listing and returns the device
// of its first target when that target is linear:
//
//	0 409600 linear 8:3 2048
func ParseLinearTable(table string) (blockdev.DeviceID, bool) {
	line, _, _ := strings.Cut(strings.TrimSpace(table), "\n")
	f := strings.Fields(line)
	if len(f) < 4 || f[2] != "linear" {
		return blockdev.DeviceID{}, false
	}
	id, err := blockdev.ParseDeviceID(f[3])
	if err != nil {
		return blockdev.DeviceID{}, false
	}
	return id, true
}
