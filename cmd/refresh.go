package cmd

import (
	"fmt"
	"os"
	"time"

	"hotel-price-tracker/models"
	"hotel-price-tracker/services"

	"github.com/spf13/cobra"
)

func refreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh every tracked listing once and print the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, true, func(a *app) error {
				if err := a.coord.Start(ctx); err != nil {
					return err
				}
				start := time.Now()
				n, err := a.coord.RefreshAll(ctx)
				if err != nil {
					return err
				}
				a.logger.Info("Waiting for %d listings", n)
				a.coord.Wait()

				listings, err := a.coord.Listings(ctx)
				if err != nil {
					return err
				}
				services.PrintListings(os.Stdout, listings)

				changes, err := a.coord.Changes(ctx)
				if err != nil {
					return err
				}
				var fresh []models.PriceChangeEvent
				for _, ev := range changes {
					if !ev.Timestamp.Before(start) {
						fresh = append(fresh, ev)
					}
				}
				fmt.Printf(" %d price changes in this run\n", len(fresh))
				services.PrintChanges(os.Stdout, fresh)
				return nil
			})
		},
	}
}
