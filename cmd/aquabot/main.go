// Command aquabot runs the water-quality assistant server and its tools.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "aquabot",
		Short:         "AquaBot water-quality assistant",
		Long:          "AquaBot answers questions about aquarium and tank water quality from stored sensor telemetry.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")

	root.AddCommand(
		newServeCmd(&configPath),
		newAskCmd(&configPath),
		newSeedCmd(&configPath),
		newBackupCmd(&configPath),
		newRestoreCmd(),
		newVersionCmd(),
	)
	return root
}
