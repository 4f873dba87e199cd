package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile       string
	deviceMapFile string
	verbose       int
)

var rootCmd = &cobra.Command{
	Use:   "rootdev",
	Short: "Map host paths and devices to bootloader device names",
	Long: `rootdev finds the devices holding a filesystem and names them the way a
GRUB-style bootloader addresses them: plain disks and partitions as
(hd0,msdos1), and LVM, LUKS, GELI and software RAID volumes by their
abstraction (lvm/vg-root, cryptouuid/..., mduuid/...).

Disks the bootloader already knows come from device.map or from disk
discovery; any other disk is registered as hostdisk/<path> on first use.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/rootdev/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&deviceMapFile, "device-map", "m", "", "device.map file (overrides config)")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "increase log verbosity (-vv for debug)")

	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(relpathCmd)
	rootCmd.AddCommand(devmapCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
