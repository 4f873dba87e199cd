package getroot

import (
	"github.com/sirupsen/logrus"

	"github.com/sigreer/rootdev/internal/blockdev"
	"github.com/sigreer/rootdev/internal/devenum"
	"github.com/sigreer/rootdev/internal/devmapper"
	"github.com/sigreer/rootdev/internal/geom"
	"github.com/sigreer/rootdev/internal/mdraid"
	"github.com/sigreer/rootdev/internal/mountinfo"
	"github.com/sigreer/rootdev/internal/platform"
	"github.com/sigreer/rootdev/internal/registry"
	"github.com/sigreer/rootdev/internal/runner"
	"github.com/sigreer/rootdev/internal/zpool"
)

// Options configure NewSystem. Zero values select the live system.
type Options struct {
	DevDir    string
	SysDir    string
	MountInfo string
	MaxDepth  int
	// Runner spawns status tools, runner.Exec when nil.
	Runner runner.Runner
	// Commands overrides tool names ("zpool", "mdadm", "dmsetup",
	// "sysctl") with alternative binaries.
	Commands map[string]string
	// Registry is shared with the caller so a device map can be loaded
	// before resolution and saved after it.
	Registry *registry.Registry
	Logger   *logrus.Logger
}

// NewSystem wires a Resolver against the running system.
func NewSystem(opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	run := opts.Runner
	if run == nil {
		run = &runner.Exec{Logger: logger}
	}
	reg := opts.Registry
	if reg == nil {
		reg = registry.New(logger)
	}
	stat := blockdev.OS{}

	pools := &zpool.Client{Runner: run, Command: opts.Commands["zpool"], DevDir: opts.DevDir, Logger: logger}
	dm := devmapper.NewClient(opts.SysDir, stat, run, logger)
	dm.DevDir = opts.DevDir
	dm.Command = opts.Commands["dmsetup"]
	gm := geom.NewClient(run, logger)
	gm.DevDir = opts.DevDir
	gm.Command = opts.Commands["sysctl"]
	enum := &devenum.Enumerator{Stat: stat, Logger: logger}
	md := &mdraid.Client{
		SysDir:  opts.SysDir,
		DevDir:  opts.DevDir,
		Stat:    stat,
		Runner:  run,
		Command: opts.Commands["mdadm"],
		Find:    func(id blockdev.DeviceID) string { return enum.FindDevice(opts.DevDir, id) },
		Logger:  logger,
	}

	ops := platform.Current(platform.Deps{
		Stat:   stat,
		DevDir: opts.DevDir,
		SysDir: opts.SysDir,
		DM:     dm,
		Geom:   gm,
		Enum:   enum,
		Logger: logger,
	})
	enum.IsDeviceNode = ops.IsDeviceNode

	return &Resolver{
		Stat:        stat,
		DevDir:      opts.DevDir,
		Mounts:      &mountinfo.Resolver{Path: opts.MountInfo, Pools: pools, Logger: logger},
		Pools:       pools,
		PoolFromDir: zpool.FromDir,
		Enum:        enum,
		Platform:    ops,
		DM:          dm,
		MD:          md,
		Geom:        gm,
		Registry:    reg,
		MaxDepth:    opts.MaxDepth,
		Logger:      logger,
	}
}
