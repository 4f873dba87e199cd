// Package mdraid reads Linux software RAID arrays: their member devices and
// the array UUID mdadm reports.
package mdraid

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/sigreer/rootdev/internal/blockdev"
	"github.com/sigreer/rootdev/internal/runner"
)

// Client queries md arrays through sysfs, falling back to mdadm.
type Client struct {
	// SysDir is the sysfs mount point, "/sys" when empty.
	SysDir string
	// DevDir prefixes member names, "/dev" when empty.
	DevDir string
	Stat   blockdev.Stater
	Runner runner.Runner
	// Command is the mdadm binary, "mdadm" when empty.
	Command string
	// Find maps a device number to its node path. Members that are
	// device-mapper nodes are renamed through it so they carry their
	// mapper names.
	Find   func(blockdev.DeviceID) string
	Logger *logrus.Logger
}

func (c *Client) sys(elem ...string) string {
	dir := c.SysDir
	if dir == "" {
		dir = "/sys"
	}
	return filepath.Join(append([]string{dir}, elem...)...)
}

func (c *Client) dev(name string) string {
	dir := c.DevDir
	if dir == "" {
		dir = "/dev"
	}
	return dir + "/" + name
}

func (c *Client) command() string {
	if c.Command == "" {
		return "mdadm"
	}
	return c.Command
}

func (c *Client) log() *logrus.Logger {
	if c.Logger == nil {
		return logrus.StandardLogger()
	}
	return c.Logger
}

// Members returns the device paths making up the array at path.
func (c *Client) Members(path string) ([]string, error) {
	if members := c.sysfsMembers(path); len(members) > 0 {
		return members, nil
	}
	if c.Runner == nil {
		return nil, fmt.Errorf("%s: no members in sysfs and mdadm is unavailable", path)
	}
	out, err := c.Runner.Output(c.command(), "--detail", path)
	if err != nil {
		return nil, fmt.Errorf("listing members of %s: %w", path, err)
	}
	members := ParseDetailMembers(string(out))
	if len(members) == 0 {
		return nil, fmt.Errorf("%s: mdadm reported no member devices", path)
	}
	return lo.Map(members, func(m string, _ int) string {
		if !isDMShortName(filepath.Base(m)) || c.Stat == nil {
			return m
		}
		st, err := c.Stat.Stat(m)
		if err != nil {
			return m
		}
		return c.named(m, st.Rdev)
	}), nil
}

// named returns the node Find reports for id, or fallback.
func (c *Client) named(fallback string, id blockdev.DeviceID) string {
	if c.Find == nil {
		return fallback
	}
	if p := c.Find(id); p != "" {
		return p
	}
	return fallback
}

func (c *Client) sysfsMembers(path string) []string {
	if c.Stat == nil {
		return nil
	}
	st, err := c.Stat.Stat(path)
	if err != nil {
		return nil
	}
	ents, err := os.ReadDir(c.sys("dev", "block", st.Rdev.String(), "slaves"))
	if err != nil {
		return nil
	}
	names := lo.Map(ents, func(e os.DirEntry, _ int) string { return e.Name() })
	sort.Strings(names)
	c.log().Debugf("mdraid: %s members from sysfs: %v", path, names)

	slaves := c.sys("dev", "block", st.Rdev.String(), "slaves")
	return lo.Map(names, func(n string, _ int) string {
		if !isDMShortName(n) {
			return c.dev(n)
		}
		raw, err := os.ReadFile(filepath.Join(slaves, n, "dev"))
		if err != nil {
			c.log().Debugf("mdraid: no dev for member %s of %s: %v", n, path, err)
			return c.dev(n)
		}
		id, err := blockdev.ParseDeviceID(string(raw))
		if err != nil {
			return c.dev(n)
		}
		return c.named(c.dev(n), id)
	})
}

// isDMShortName matches the kernel's dm-N names.
func isDMShortName(name string) bool {
	return len(name) > 3 && strings.HasPrefix(name, "dm-") && name[3] >= '0' && name[3] <= '9'
}

// Member rows in `mdadm --detail` output:
//
//	Number   Major   Minor   RaidDevice State
//	   0       8        1        0      active sync   /dev/sda1
var reMemberRow = regexp.MustCompile(`^\s*(\d+|-)\s+\d+\s+\d+\s+(\d+|-)\s+.*\s(/dev/\S+)\s*$`)

// ParseDetailMembers extracts member device paths from `mdadm --detail`.
func ParseDetailMembers(out string) []string {
	var members []string
	for _, line := range strings.Split(out, "\n") {
		if m := reMemberRow.FindStringSubmatch(line); m != nil {
			members = append(members, m[3])
		}
	}
	return lo.Uniq(members)
}

// UUID returns the array UUID from `mdadm --detail --export`, with
// separators removed, or "" when mdadm does not report one.
func (c *Client) UUID(path string) string {
	if c.Runner == nil {
		return ""
	}
	out, err := c.Runner.Output(c.command(), "--detail", "--export", path)
	if err != nil {
		c.log().Warnf("mdraid: unable to query %s with mdadm: %v", path, err)
		return ""
	}
	return ParseExportUUID(string(out))
}

// ParseExportUUID returns the last MD_UUID value in `mdadm --detail
// --export` output, keeping only its hex digits.
func ParseExportUUID(out string) string {
	var uuid string
	for _, line := range strings.Split(out, "\n") {
		v, ok := strings.CutPrefix(line, "MD_UUID=")
		if !ok {
			continue
		}
		v = strings.TrimRight(v, "\r")
		uuid = strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F') {
				return r
			}
			return -1
		}, v)
	}
	return uuid
}
