package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/sigreer/rootdev/internal/config"
	"github.com/sigreer/rootdev/internal/db"
	"github.com/sigreer/rootdev/internal/getroot"
	"github.com/sigreer/rootdev/internal/registry"
	"github.com/sigreer/rootdev/internal/runner"
)

// env is what every command runs with: configuration, a seeded drive
// registry and a resolver wired to the live system.
type env struct {
	cfg    *config.Config
	log    *logrus.Logger
	run    runner.Runner
	reg    *registry.Registry
	res    *getroot.Resolver
	source string
	// sizes of discovered disks in bytes, keyed by device path
	sizes map[string]int64
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		DisableColors:    !isatty.IsTerminal(os.Stderr.Fd()),
	})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("unknown log level %q, using warning", level)
		lvl = logrus.WarnLevel
	}
	switch {
	case verbose >= 2:
		lvl = logrus.DebugLevel
	case verbose == 1 && lvl < logrus.InfoLevel:
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

func newEnv() (*env, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if deviceMapFile != "" {
		cfg.DeviceMap = deviceMapFile
	}

	logger := newLogger(cfg.LogLevel)
	return setupEnv(cfg, logger, &runner.Exec{Logger: logger})
}

// setupEnv seeds the registry for cfg and wires a resolver around it.
func setupEnv(cfg *config.Config, logger *logrus.Logger, run runner.Runner) (*env, error) {
	e := &env{
		cfg:    cfg,
		log:    logger,
		run:    run,
		reg:    registry.New(logger),
		source: db.SourceRegistry,
		sizes:  map[string]int64{},
	}
	if err := e.seedRegistry(); err != nil {
		return nil, err
	}

	e.res = getroot.NewSystem(getroot.Options{
		DevDir:    cfg.DevDir,
		SysDir:    cfg.SysDir,
		MountInfo: cfg.MountInfo,
		MaxDepth:  cfg.MaxDepth,
		Runner:    e.run,
		Commands:  cfg.Commands.Map(),
		Registry:  e.reg,
		Logger:    e.log,
	})
	return e, nil
}

// seedRegistry fills the registry according to the discovery mode.
func (e *env) seedRegistry() error {
	switch e.cfg.Discovery {
	case config.DiscoveryNone:
		return nil
	case config.DiscoveryDeviceMap:
		_, err := e.loadDeviceMap()
		return err
	case config.DiscoveryDatabase:
		_, err := e.loadDatabase()
		return err
	}

	loaded, err := e.loadDeviceMap()
	if err != nil || loaded {
		return err
	}
	loaded, err = e.loadDatabase()
	if err != nil {
		e.log.Warnf("saved device map unusable, discovering disks: %v", err)
	} else if loaded {
		return nil
	}
	disks, err := config.DiscoverDisks(e.run, e.cfg.Commands.Lsblk, e.cfg.DevDir)
	if err != nil {
		e.log.Warnf("disk discovery failed, disks will be named on first use: %v", err)
		return nil
	}
	for _, d := range disks {
		if err := e.reg.Add(d.Drive, d.Device); err != nil {
			e.log.Warnf("discovery: %v", err)
			continue
		}
		e.sizes[d.Device] = int64(d.Size)
	}
	e.source = db.SourceDiscovery
	return nil
}

// loadDeviceMap reads the configured device.map. A missing file is not an
// error; loaded reports whether one was read.
func (e *env) loadDeviceMap() (loaded bool, err error) {
	f, err := os.Open(e.cfg.DeviceMap)
	if errors.Is(err, fs.ErrNotExist) {
		e.log.Debugf("no device map at %s", e.cfg.DeviceMap)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("opening device map: %w", err)
	}
	defer f.Close()
	if err := e.reg.Load(f); err != nil {
		return false, fmt.Errorf("loading %s: %w", e.cfg.DeviceMap, err)
	}
	e.source = db.SourceDeviceMap
	return true, nil
}

// loadDatabase reads the map saved by `devmap save`. A missing database is
// not an error; loaded reports whether any drive was read.
func (e *env) loadDatabase() (loaded bool, err error) {
	if _, err := os.Stat(e.cfg.Database); errors.Is(err, fs.ErrNotExist) {
		e.log.Debugf("no database at %s", e.cfg.Database)
		return false, nil
	}
	database, err := db.New(e.cfg.Database)
	if err != nil {
		return false, fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	skipped, err := database.LoadRegistry(e.reg)
	if err != nil {
		return false, fmt.Errorf("loading %s: %w", e.cfg.Database, err)
	}
	for _, s := range skipped {
		e.log.Warnf("saved map: skipped %s", s)
	}
	e.source = db.SourceRegistry
	return len(e.reg.Entries()) > 0, nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func mustEnv() *env {
	e, err := newEnv()
	if err != nil {
		fatal("%v", err)
	}
	return e
}

func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}
