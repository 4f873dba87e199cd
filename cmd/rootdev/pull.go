package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sigreer/rootdev/internal/registry"
)

var pullCmd = &cobra.Command{
	Use:   "pull <device>...",
	Short: "Register every disk beneath the given devices",
	Long: `Walk the abstraction stack (LVM, LUKS, GELI, RAID) under each device and
register the disks at the bottom. The resulting device map is printed, and
with --save stored in the database for later runs.`,
	Args: cobra.MinimumNArgs(1),
	Run:  runPull,
}

func init() {
	pullCmd.Flags().Bool("save", false, "Save the resulting mappings to the database")
}

func runPull(cmd *cobra.Command, args []string) {
	save, _ := cmd.Flags().GetBool("save")

	e := mustEnv()
	for _, dev := range args {
		if err := e.res.PullDevice(dev); err != nil {
			fatal("%v", err)
		}
	}

	if err := registry.WriteDeviceMap(os.Stdout, e.reg.Entries()); err != nil {
		fatal("writing device map: %v", err)
	}
	for _, c := range e.reg.CryptoMounts() {
		e.log.Infof("crypto container %s on (%s)", c.OSDev, c.GrubDev)
	}
	if save {
		saveRegistry(e)
	}
}
