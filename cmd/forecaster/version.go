package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wvencel/forecaster/internal/version"
)

// versionCmd prints detailed build information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Info()
		fmt.Printf("forecaster version: %s\n", info["version"])
		fmt.Printf("  git commit: %s\n", info["gitCommit"])
		fmt.Printf("  build date: %s\n", info["buildDate"])
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
