package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/rickandmorty-sync/internal/config"
	"github.com/custodia-labs/rickandmorty-sync/internal/runtime"
)

func newServeCmd() *cobra.Command {
	var noWarm bool

	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve the REST and websocket API and run the background warmer",
		GroupID: "server",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, cfg *config.Config, svc *runtime.Services) error {
				warmer := svc.Warmer()
				if !noWarm && cfg.Warm.Interval > 0 {
					if err := warmer.Start(ctx); err != nil {
						return err
					}
					defer func() {
						stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
						defer cancel()
						_ = warmer.Stop(stopCtx)
					}()
				}

				return svc.HTTPServer(version).ListenAndServe(ctx)
			})
		},
	}

	cmd.Flags().BoolVar(&noWarm, "no-warm", false, "do not start the background warmer even if WARM_INTERVAL is set")
	return cmd
}
