// Package cmd implements the command-line interface of the hotel price tracker
package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	// cfgFile is an optional YAML/JSON config file layered under the environment
	cfgFile string

	// debug forces debug logging regardless of LOG_LEVEL
	debug bool

	rootCmd = &cobra.Command{
		Use:   "hotel-tracker",
		Short: "Track room prices on Booking.com, Agoda and Airbnb",
		Long: `Tracks room prices of hotel listings across Booking.com, Agoda and Airbnb,
refreshes them on a schedule and alerts when a price moves.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(
		serveCommand(),
		refreshCommand(),
		trackCommand(),
		untrackCommand(),
		listCommand(),
		changesCommand(),
		insightsCommand(),
		exportCommand(),
		datesCommand(),
		intervalCommand(),
	)
}
