package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"hotel-price-tracker/api"
	"hotel-price-tracker/services"

	"github.com/spf13/cobra"
)

func serveCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withApp(ctx, true, func(a *app) error {
				return serve(ctx, a, addr)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default API_ADDR)")
	return cmd
}

func serve(ctx context.Context, a *app, addr string) error {
	if addr == "" {
		addr = a.cfg.APIAddr
	}
	if err := a.coord.Start(ctx); err != nil {
		return err
	}

	sched := services.NewScheduler(a.coord, a.store, a.logger)
	a.coord.OnResetSchedule(sched.Reset)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	if userID, err := a.subs.UserID(ctx); err == nil {
		status := a.subs.Check(ctx)
		a.logger.Info("Tracker user %s on the %s tier", userID, status.Tier)
	}

	server := api.NewServer(addr, api.NewHandler(a.coord, a.channel, a.metrics, a.logger), a.logger)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		a.logger.Info("Shutting down")
		return server.Shutdown(context.WithoutCancel(ctx))
	}
}
