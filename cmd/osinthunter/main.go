package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var root = &cobra.Command{
		Use:           "osinthunter",
		Short:         "Iterative OSINT investigation agent",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(runCMD(), serveCMD(), migrateCMD(), collectorsCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
