package cmd

import (
	"fmt"
	"os"

	"hotel-price-tracker/models"
	"hotel-price-tracker/services"

	"github.com/spf13/cobra"
)

func trackCommand() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "track <url>",
		Short: "Scrape a listing and add it to the watch list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rawURL := args[0]
			return withApp(ctx, true, func(a *app) error {
				snap, err := a.coord.Scrape(ctx, rawURL)
				if err != nil {
					return err
				}
				listing := models.TrackedListing{
					Site:         snap.Site,
					Name:         snap.ListingName,
					URL:          rawURL,
					CanonicalURL: snap.CanonicalURL,
					Rooms:        snap.Rooms,
					LastChecked:  snap.CapturedAt,
				}
				services.PrintListings(os.Stdout, []models.TrackedListing{listing})
				if dryRun {
					return nil
				}

				if err := a.coord.TrackSnapshot(ctx, *snap, rawURL); err != nil {
					return err
				}
				title, body := services.FormatTracked(snap.ListingName)
				fmt.Printf(" %s %s\n", title, body)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the rooms without tracking the listing")
	return cmd
}
