package cmd

import (
	"fmt"
	"strconv"
	"time"

	"hotel-price-tracker/scraper"

	"github.com/spf13/cobra"
)

func datesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dates [checkin checkout]",
		Short: "Show or set the stay dates (YYYY-MM-DD) used for every fetch",
		Args:  cobra.MatchAll(cobra.RangeArgs(0, 2), func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return fmt.Errorf("both checkin and checkout are required")
			}
			return nil
		}),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, false, func(a *app) error {
				if len(args) == 2 {
					if err := a.coord.SetDates(ctx, scraper.StayDates{Checkin: args[0], Checkout: args[1]}); err != nil {
						return err
					}
				}
				dates, err := a.coord.Dates(ctx)
				if err != nil {
					return err
				}
				if !dates.IsSet() {
					fmt.Println(" Stay dates are not set")
					return nil
				}
				fmt.Printf(" Check-in %s, check-out %s\n", dates.Checkin, dates.Checkout)
				return nil
			})
		},
	}
}

func intervalCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "interval [minutes]",
		Short: "Show or set the auto refresh interval",
		Long: `Show or set the auto refresh interval. A running "serve" process sharing
the redis or postgres store picks up the change and reschedules itself.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, false, func(a *app) error {
				if len(args) == 1 {
					minutes, err := strconv.Atoi(args[0])
					if err != nil {
						return fmt.Errorf("invalid interval %q: %w", args[0], err)
					}
					if err := a.coord.SetInterval(ctx, minutes); err != nil {
						return err
					}
				}
				minutes, err := a.coord.Interval(ctx)
				if err != nil {
					return err
				}
				fmt.Printf(" Auto refresh every %d minutes\n", minutes)
				if next, found, err := a.coord.NextFetch(ctx); err == nil && found {
					fmt.Printf(" Next refresh at %s\n", next.Format(time.RFC1123))
				}
				return nil
			})
		},
	}
}
