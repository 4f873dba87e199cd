// Package zpool lists the leaf devices of a ZFS pool by parsing the output
// of `zpool status`.
//
// The table layout is that of current OpenZFS releases. It is not a stable
// interface: if a future zpool prints a different header the parser finds
// no devices and callers fall back to other strategies.
package zpool

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/sigreer/rootdev/internal/runner"
)

// Client queries pools through the zpool tool.
type Client struct {
	Runner runner.Runner
	// Command is the zpool binary, "zpool" when empty.
	Command string
	// DevDir prefixes member names, "/dev" when empty.
	DevDir string
	Logger *logrus.Logger

	once      sync.Once
	available bool
}

func (c *Client) command() string {
	if c.Command == "" {
		return "zpool"
	}
	return c.Command
}

func (c *Client) log() *logrus.Logger {
	if c.Logger == nil {
		return logrus.StandardLogger()
	}
	return c.Logger
}

// Available reports whether the zpool tool can be run. The lookup happens
// once per Client.
func (c *Client) Available() bool {
	c.once.Do(func() {
		c.available = c.Runner.Available(c.command())
		if !c.available {
			c.log().Debugf("zpool: %s not found, pool lookups disabled", c.command())
		}
	})
	return c.available
}

// Members returns the online leaf vdev names of pool as zpool prints them.
func (c *Client) Members(pool string) ([]string, error) {
	if !c.Available() {
		return nil, runner.ErrNotInstalled
	}
	out, err := c.Runner.Output(c.command(), "status", pool)
	if err != nil {
		return nil, fmt.Errorf("zpool status %s: %w", pool, err)
	}
	return ParseStatus(string(out), pool), nil
}

// PoolDevices returns the device paths of the online leaves of pool.
func (c *Client) PoolDevices(pool string) ([]string, error) {
	names, err := c.Members(pool)
	if err != nil {
		return nil, err
	}
	dir := c.DevDir
	if dir == "" {
		dir = "/dev"
	}
	return lo.Map(names, func(name string, _ int) string {
		return dir + "/" + name
	}), nil
}

const (
	stateHeader = iota
	statePool
	stateMembers
)

// ParseStatus extracts the online leaf vdevs of pool from `zpool status`
// output. It looks for the NAME/STATE/READ/WRITE/CKSUM header, then the
// row naming the pool, and collects every following ONLINE row that is not
// a mirror or raidz group.
func ParseStatus(out, pool string) []string {
	var members []string
	st := stateHeader
	for _, line := range strings.Split(out, "\n") {
		f := strings.Fields(line)
		if len(f) < 5 {
			continue
		}
		switch st {
		case stateHeader:
			if f[0] == "NAME" && f[1] == "STATE" && f[2] == "READ" && f[3] == "WRITE" && f[4] == "CKSUM" {
				st = statePool
			}
		case statePool:
			if f[0] == pool {
				st = stateMembers
			}
		case stateMembers:
			if f[1] == "ONLINE" && !IsGroupLabel(f[0]) {
				members = append(members, f[0])
			}
		}
	}
	return members
}

// IsGroupLabel reports whether name is a redundancy group row (mirror,
// mirror-N, raidzN, raidzN-M) rather than a device.
func IsGroupLabel(name string) bool {
	if name == "mirror" {
		return true
	}
	if rest, ok := strings.CutPrefix(name, "mirror-"); ok {
		return rest == "" || startsWithDigit(rest)
	}
	if rest, ok := strings.CutPrefix(name, "raidz"); ok {
		return rest == "" || startsWithDigit(rest)
	}
	if rest, ok := strings.CutPrefix(name, "draid"); ok {
		_, err := strconv.Atoi(strings.SplitN(rest, ":", 2)[0])
		return rest == "" || err == nil
	}
	return false
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

// SplitSource splits a pool filesystem source ("pool/fs") into the pool
// name and the filesystem path within it.
func SplitSource(source string) (pool, fs string) {
	pool, fs, _ = strings.Cut(source, "/")
	return pool, fs
}
