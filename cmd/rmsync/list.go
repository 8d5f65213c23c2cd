package main

import (
	"context"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/rickandmorty-sync/internal/config"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/ports/driving"
	"github.com/custodia-labs/rickandmorty-sync/internal/runtime"
)

type listOptions struct {
	filter domain.Filter
	offset int
	limit  int
	watch  bool
}

func newListCmd() *cobra.Command {
	var opts listOptions
	var fields map[string]string

	cmd := &cobra.Command{
		Use:     "list <domain> [name query]",
		Aliases: []string{"ls"},
		Short:   "List cached entities, fetching pages as the window needs them",
		Example: `  rmsync list characters rick --field status=alive
  rmsync list locations --field dimension="Dimension C-137" --limit 5
  rmsync list episodes --watch`,
		GroupID: "read",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := domainArg(args[0])
			if err != nil {
				return err
			}
			opts.filter = domain.Filter{Query: strings.Join(args[1:], " "), Fields: fields}

			return withServices(cmd, func(ctx context.Context, _ *config.Config, svc *runtime.Services) error {
				out := cmd.OutOrStdout()
				catalog := svc.Catalog()
				switch d {
				case domain.DomainCharacter:
					return list(ctx, out, catalog.Characters(), opts)
				case domain.DomainEpisode:
					return list(ctx, out, catalog.Episodes(), opts)
				default:
					return list(ctx, out, catalog.Locations(), opts)
				}
			})
		},
	}

	cmd.Flags().StringToStringVar(&fields, "field", nil, "exact match on a categorical field (key=value, repeatable)")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "position of the first row")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "number of rows")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "print the window again after every change until interrupted")
	return cmd
}

func list[T domain.Entity](ctx context.Context, out io.Writer, svc driving.EntityService[T], opts listOptions) error {
	if !opts.watch {
		w, err := svc.Window(ctx, opts.filter, opts.offset, opts.limit)
		if err != nil {
			return err
		}
		return printJSON(out, w)
	}

	view, err := svc.Watch(ctx, opts.filter, opts.offset, opts.limit)
	if err != nil {
		return err
	}
	defer view.Close()

	w, err := view.Load(ctx)
	if err != nil {
		return err
	}
	if err := printJSON(out, w); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-view.Changes():
			if !ok {
				return nil
			}
			w, err := view.Snapshot(ctx)
			if err != nil {
				return err
			}
			if err := printJSON(out, w); err != nil {
				return err
			}
		}
	}
}
