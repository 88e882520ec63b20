package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inferloop/tsforecast/cmd/cli/commands"
	"github.com/inferloop/tsforecast/pkg/constants"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   constants.AppName,
		Short: "Train and evaluate exponential-smoothing forecasters",
		Long: `tsforecast trains an ETSformer-style forecaster on a windowed time series,
keeps the checkpoint with the best validation loss and evaluates it on the
validation and test splits.`,
		Version:       commands.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config file (YAML); TSFORECAST_* environment variables override it")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")

	rootCmd.AddCommand(commands.NewTrainCmd())
	rootCmd.AddCommand(commands.NewTestCmd())
	rootCmd.AddCommand(commands.NewResultsCmd())
	rootCmd.AddCommand(commands.NewVersionCmd())

	return rootCmd
}
