package geom

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sigreer/rootdev/internal/cache"
	"github.com/sigreer/rootdev/internal/runner"
)

// Client fetches the GEOM mesh through sysctl.
type Client struct {
	Runner runner.Runner
	// DevDir is where providers appear, "/dev" when empty.
	DevDir string
	// Command is the sysctl binary, "sysctl" when empty.
	Command string
	Logger  *logrus.Logger

	meshes *cache.Cache[string, *Mesh]
}

// NewClient returns a Client that reuses the mesh until storage changes
// are plausible.
func NewClient(run runner.Runner, logger *logrus.Logger) *Client {
	return &Client{
		Runner: run,
		Logger: logger,
		meshes: cache.New[string, *Mesh](cache.TTLTopology),
	}
}

func (c *Client) log() *logrus.Logger {
	if c.Logger == nil {
		return logrus.StandardLogger()
	}
	return c.Logger
}

func (c *Client) command() string {
	if c.Command == "" {
		return "sysctl"
	}
	return c.Command
}

// Mesh returns the current GEOM graph.
func (c *Client) Mesh() (*Mesh, error) {
	load := func() (*Mesh, error) {
		out, err := c.Runner.Output(c.command(), "-n", "kern.geom.confxml")
		if err != nil {
			return nil, fmt.Errorf("couldn't open geom: %w", err)
		}
		return ParseConfXML(out)
	}
	if c.meshes == nil {
		return load()
	}
	return c.meshes.GetOrLoad("confxml", load)
}

func (c *Client) devPrefix() string {
	if c.DevDir == "" {
		return "/dev/"
	}
	return strings.TrimSuffix(c.DevDir, "/") + "/"
}

// ProviderName strips the device directory from a device path. It
// reports false for paths outside it.
func (c *Client) ProviderName(devPath string) (string, bool) {
	return strings.CutPrefix(devPath, c.devPrefix())
}

// ClassOf returns the GEOM class backing a /dev path.
func (c *Client) ClassOf(devPath string) (string, error) {
	name, ok := c.ProviderName(devPath)
	if !ok {
		return "", nil
	}
	m, err := c.Mesh()
	if err != nil {
		return "", err
	}
	class := m.ClassOf(name)
	c.log().Debugf("geom: abstraction of %s is %q", devPath, class)
	return class, nil
}

// Underlying returns the /dev path of the device consumed by the geom
// exporting devPath.
func (c *Client) Underlying(devPath string) (string, error) {
	name, ok := c.ProviderName(devPath)
	if !ok {
		return "", fmt.Errorf("%s is not under %s", devPath, c.devPrefix())
	}
	m, err := c.Mesh()
	if err != nil {
		return "", err
	}
	under, ok := m.Consumed(name)
	if !ok {
		return "", fmt.Errorf("couldn't find geli consumer of %s", name)
	}
	c.log().Debugf("geom: consumer of %s is %s", name, under.Name)
	return c.devPrefix() + under.Name, nil
}

// DiskOf follows a partition path up to its disk, returning the disk path
// and the partition's start in 512-byte sectors.
func (c *Client) DiskOf(devPath string) (string, uint64, error) {
	name, ok := c.ProviderName(devPath)
	if !ok {
		return devPath, 0, nil
	}
	m, err := c.Mesh()
	if err != nil {
		return "", 0, err
	}
	disk, start := m.FollowPartUp(name)
	if disk != name {
		c.log().Debugf("geom: %s has parent %s at %d", name, disk, start)
	}
	return c.devPrefix() + disk, start, nil
}

// GeliUUID reads the geli metadata of the encrypted device at devPath and
// returns its UUID.
func (c *Client) GeliUUID(devPath string) (string, error) {
	var size, sector int64
	if name, ok := c.ProviderName(devPath); ok {
		if m, err := c.Mesh(); err == nil {
			if p := m.FindProvider(name); p != nil {
				size, sector = p.MediaSize, p.SectorSize
			}
		}
	}
	return ReadGeliUUID(devPath, size, sector)
}
