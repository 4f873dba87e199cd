package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Discovery modes decide where drive names come from before resolution.
const (
	// DiscoveryDeviceMap loads the device.map file only.
	DiscoveryDeviceMap = "devicemap"
	// DiscoveryDatabase loads the map saved in the database only.
	DiscoveryDatabase = "database"
	// DiscoveryAuto loads the device.map file when present, then the map
	// saved in the database, otherwise numbers the whole disks lsblk
	// reports as hd0..hdN.
	DiscoveryAuto = "auto"
	// DiscoveryNone starts with an empty registry; every disk becomes a
	// hostdisk drive on first use.
	DiscoveryNone = "none"
)

type Config struct {
	DeviceMap string `yaml:"device_map,omitempty"`
	Database  string `yaml:"database,omitempty"`
	DevDir    string `yaml:"dev_dir,omitempty"`
	SysDir    string `yaml:"sys_dir,omitempty"`
	MountInfo string `yaml:"mountinfo,omitempty"`
	LogLevel  string `yaml:"log_level,omitempty"`
	MaxDepth  int    `yaml:"max_depth,omitempty"`
	// Discovery mode: "devicemap", "database", "auto" or "none"
	Discovery string   `yaml:"discovery,omitempty"`
	Commands  Commands `yaml:"commands"`
}

// Commands names the external tools. Empty fields use the tool's usual
// name from PATH.
type Commands struct {
	Zpool   string `yaml:"zpool,omitempty"`
	Mdadm   string `yaml:"mdadm,omitempty"`
	Dmsetup string `yaml:"dmsetup,omitempty"`
	Sysctl  string `yaml:"sysctl,omitempty"`
	Lsblk   string `yaml:"lsblk,omitempty"`
}

// Map returns the overrides keyed by tool name, omitting unset ones.
func (c Commands) Map() map[string]string {
	m := map[string]string{}
	for name, v := range map[string]string{
		"zpool":   c.Zpool,
		"mdadm":   c.Mdadm,
		"dmsetup": c.Dmsetup,
		"sysctl":  c.Sysctl,
		"lsblk":   c.Lsblk,
	} {
		if v != "" {
			m[name] = v
		}
	}
	return m
}

// defaultConfig matches the live system layout
var defaultConfig = Config{
	DeviceMap: "/boot/grub/device.map",
	Database:  "/var/lib/rootdev/devicemap.db",
	DevDir:    "/dev",
	SysDir:    "/sys",
	MountInfo: "/proc/self/mountinfo",
	LogLevel:  "warning",
	MaxDepth:  32,
	Discovery: DiscoveryAuto,
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := defaultConfig
	return &cfg
}

func Load(path string) (*Config, error) {
	if path == "" {
		// Try default locations
		candidates := []string{
			"/etc/rootdev/config.yaml",
			filepath.Join(os.Getenv("HOME"), ".config/rootdev/config.yaml"),
			"config.yaml",
		}
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}

	var cfg Config
	if path == "" {
		cfg = defaultConfig
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			cfg = defaultConfig
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}

	// Apply defaults for missing fields
	if cfg.DeviceMap == "" {
		cfg.DeviceMap = defaultConfig.DeviceMap
	}
	if cfg.Database == "" {
		cfg.Database = defaultConfig.Database
	}
	if cfg.DevDir == "" {
		cfg.DevDir = defaultConfig.DevDir
	}
	if cfg.SysDir == "" {
		cfg.SysDir = defaultConfig.SysDir
	}
	if cfg.MountInfo == "" {
		cfg.MountInfo = defaultConfig.MountInfo
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultConfig.LogLevel
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaultConfig.MaxDepth
	}
	if cfg.Discovery == "" {
		cfg.Discovery = defaultConfig.Discovery
	}

	switch cfg.Discovery {
	case DiscoveryDeviceMap, DiscoveryDatabase, DiscoveryAuto, DiscoveryNone:
	default:
		return nil, fmt.Errorf("unknown discovery mode %q", cfg.Discovery)
	}
	return &cfg, nil
}
