package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/rickandmorty-sync/internal/config"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/ports/driving"
	"github.com/custodia-labs/rickandmorty-sync/internal/runtime"
)

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "get <domain> <id[,id...]>",
		Short:   "Fetch entities by id straight from the remote API",
		Example: "  rmsync get character 1,2,3",
		GroupID: "read",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := domainArg(args[0])
			if err != nil {
				return err
			}
			ids, err := domain.ParseIDList(args[1])
			if err != nil {
				return err
			}

			return withServices(cmd, func(ctx context.Context, _ *config.Config, svc *runtime.Services) error {
				out := cmd.OutOrStdout()
				catalog := svc.Catalog()
				switch d {
				case domain.DomainCharacter:
					return lookup(ctx, out, catalog.Characters(), ids)
				case domain.DomainEpisode:
					return lookup(ctx, out, catalog.Episodes(), ids)
				default:
					return lookup(ctx, out, catalog.Locations(), ids)
				}
			})
		},
	}
}

func lookup[T domain.Entity](ctx context.Context, out io.Writer, svc driving.EntityService[T], ids []int) error {
	if len(ids) == 1 {
		item, err := svc.Get(ctx, ids[0])
		return printLookup(out, item, err)
	}
	items, err := svc.GetMany(ctx, ids)
	return printLookup(out, items, err)
}

// printLookup writes the loaded or error envelope and passes err through so
// the exit status reflects it.
func printLookup[T any](out io.Writer, v T, err error) error {
	if perr := printJSON(out, domain.LookupOf(v, err)); perr != nil {
		return perr
	}
	return err
}

func newRelatedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "related <domain> <id> <relation>",
		Short: "Follow a relation of one entity",
		Long: `Follow a relation of one entity. Relations are resolved against the
remote API and are never cached.

  character <id> episodes | origin | location
  episode   <id> characters
  location  <id> residents`,
		GroupID: "read",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := domainArg(args[0])
			if err != nil {
				return err
			}
			id, err := strconv.Atoi(args[1])
			if err != nil || id <= 0 {
				return fmt.Errorf("%w: bad id %q", domain.ErrInvalidInput, args[1])
			}
			relation := args[2]

			return withServices(cmd, func(ctx context.Context, _ *config.Config, svc *runtime.Services) error {
				v, err := related(ctx, svc.Catalog(), d, id, relation)
				return printLookup(cmd.OutOrStdout(), v, err)
			})
		},
	}
}

func related(ctx context.Context, catalog driving.CatalogService, d domain.Domain, id int, relation string) (any, error) {
	switch {
	case d == domain.DomainCharacter && relation == "episodes":
		return catalog.CharacterEpisodes(ctx, id)
	case d == domain.DomainCharacter && relation == "origin":
		return catalog.CharacterOrigin(ctx, id)
	case d == domain.DomainCharacter && relation == "location":
		return catalog.CharacterLocation(ctx, id)
	case d == domain.DomainEpisode && relation == "characters":
		return catalog.EpisodeCharacters(ctx, id)
	case d == domain.DomainLocation && relation == "residents":
		return catalog.LocationResidents(ctx, id)
	}
	return nil, fmt.Errorf("%w: %s has no relation %q", domain.ErrInvalidInput, d, relation)
}
