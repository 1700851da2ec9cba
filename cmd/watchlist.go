package cmd

import (
	"fmt"
	"os"
	"time"

	"hotel-price-tracker/models"
	"hotel-price-tracker/services"
	"hotel-price-tracker/storage"

	"github.com/spf13/cobra"
)

func untrackCommand() *cobra.Command {
	var site string
	cmd := &cobra.Command{
		Use:   "untrack <url>",
		Short: "Remove a listing from the watch list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			target := models.DetectSite(args[0])
			if site != "" {
				parsed, err := models.ParseSite(site)
				if err != nil {
					return err
				}
				target = parsed
			}
			return withApp(ctx, false, func(a *app) error {
				if err := a.coord.Remove(ctx, target, args[0]); err != nil {
					return err
				}
				fmt.Printf(" Removed %s listing %s\n", target.Title(), args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&site, "site", "", "site of the listing (booking, agoda, airbnb); detected from the url by default")
	return cmd
}

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show tracked listings and their latest rooms",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, false, func(a *app) error {
				listings, err := a.coord.Listings(ctx)
				if err != nil {
					return err
				}
				services.PrintListings(os.Stdout, listings)
				return nil
			})
		},
	}
}

func changesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "changes",
		Short: "Show the most recent price changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, false, func(a *app) error {
				changes, err := a.coord.Changes(ctx)
				if err != nil {
					return err
				}
				services.PrintChanges(os.Stdout, changes)
				return nil
			})
		},
	}
}

func insightsCommand() *cobra.Command {
	var staleAfter time.Duration
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Summarize prices across the watch list",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, false, func(a *app) error {
				listings, err := a.coord.Listings(ctx)
				if err != nil {
					return err
				}
				changes, err := a.coord.Changes(ctx)
				if err != nil {
					return err
				}
				report := services.NewInsightService(a.logger).Generate(listings, changes, time.Now(), staleAfter)
				services.PrintInsightReport(os.Stdout, report)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&staleAfter, "stale-after", 2*time.Hour, "report listings not checked within this window")
	return cmd
}

func exportCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the price change log to a CSV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, false, func(a *app) error {
				if out == "" {
					out = a.cfg.CSVFilePath
				}
				changes, err := a.coord.Changes(ctx)
				if err != nil {
					return err
				}
				writer := storage.NewCSVWriter(out, a.logger)
				if err := writer.WritePriceChanges(changes); err != nil {
					return err
				}
				fmt.Printf(" Exported %d changes to %s\n", len(changes), writer.Path())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default CSV_FILE_PATH)")
	return cmd
}
