package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/sigreer/rootdev/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rootdev %s (%s/%s)\n", version.Version, runtime.GOOS, runtime.GOARCH)
	},
}
