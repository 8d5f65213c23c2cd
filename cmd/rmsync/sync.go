package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/rickandmorty-sync/internal/config"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
	"github.com/custodia-labs/rickandmorty-sync/internal/runtime"
)

// refreshResult is one line of refresh output.
type refreshResult struct {
	Domain domain.Domain      `json:"domain"`
	Result *domain.LoadResult `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "refresh [domain...]",
		Aliases: []string{"sync"},
		Short:   "Drop the cache of each domain and reload page 1",
		Long: `Drop the cache of each named domain (all domains when none are named)
and reload its first page. Later pages load on demand.`,
		GroupID: "sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			domains := domain.AllDomains()
			if len(args) > 0 {
				domains = domains[:0:0]
				for _, a := range args {
					d, err := domainArg(a)
					if err != nil {
						return err
					}
					domains = append(domains, d)
				}
			}

			return withServices(cmd, func(ctx context.Context, _ *config.Config, svc *runtime.Services) error {
				results := make([]refreshResult, 0, len(domains))
				var firstErr error
				for _, d := range domains {
					res, err := svc.Catalog().Refresh(ctx, d)
					r := refreshResult{Domain: d, Result: res}
					if err != nil {
						r.Error = err.Error()
						if firstErr == nil {
							firstErr = err
						}
					}
					results = append(results, r)
				}
				if err := printJSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
				return firstErr
			})
		},
	}
}

func newWarmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "warm",
		Short:   "Refresh every domain whose cache is empty or older than CACHE_TIMEOUT",
		GroupID: "sync",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, _ *config.Config, svc *runtime.Services) error {
				results, err := svc.Warmer().WarmAll(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), results)
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the last warm state of every domain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, _ *config.Config, svc *runtime.Services) error {
				states, err := svc.Warmer().States(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), states)
			})
		},
	})
	return cmd
}
