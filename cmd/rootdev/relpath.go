package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var relpathCmd = &cobra.Command{
	Use:   "relpath <path>",
	Short: "Print a path relative to the root of its filesystem",
	Long: `Print path as seen from the root of the filesystem holding it. Bind mounts
report the path inside their source filesystem and ZFS datasets are
prefixed with /<dataset>/@.

Examples:
  rootdev relpath /boot/grub     # /grub when /boot is its own filesystem`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e := mustEnv()
		rel, err := e.res.MakeSystemPathRelativeToItsRoot(args[0])
		if err != nil {
			fatal("%v", err)
		}
		fmt.Println(rel)
	},
}
