package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/tilepad/bridge/internal/config"
	"github.com/tilepad/bridge/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tilepad-bridge",
		Short:         "Host and surface ends of the tilepad surface protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.Version = version.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")
	rootCmd.PersistentFlags().String("config", config.GetPaths().Config, "Path to the JSONC configuration file")
	rootCmd.PersistentFlags().Bool("verbose", false, "Log file and line of every message")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		}
	}

	rootCmd.AddCommand(newHostCmd(), newSurfaceCmd(), newTilesCmd())
	return rootCmd
}

// loadConfig loads the file named by --config.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}
