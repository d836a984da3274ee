// Command enginectl drives the task-graph execution substrate and streamed
// cache from the command line: running demonstration graphs and inspecting
// cache files.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:     "enginectl",
		Short:   "Inspect and exercise the engine's task graph and streamed cache",
		Version: "dev",
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./enginecore.yaml)")

	rootCmd.AddCommand(runDemoCmd())
	rootCmd.AddCommand(cacheCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
