package main

import (
	"github.com/spf13/cobra"

	"github.com/wvencel/forecaster/internal/version"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "forecaster",
	Short: "Address-to-forecast web service",
	Long: `Forecaster serves weather forecasts for street addresses.

An address is geocoded to coordinates and a ZIP code, the forecast is
fetched from the weather upstream, and results are cached per ZIP so
repeat lookups in the same area skip the upstream entirely.`,
	Version: version.FullString(),
	// Bare invocation starts the server, matching how the container image
	// runs the binary.
	RunE: runServe,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}
