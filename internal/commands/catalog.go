package commands

import (
	"context"
	"fmt"

	"stairsync/internal/api"
	"stairsync/internal/auth"
	"stairsync/internal/bootstrap"
	"stairsync/internal/config"
)

type catalogCmd struct{}

func (catalogCmd) Name() string { return "catalog" }
func (catalogCmd) Description() string {
	return "Refresh the station catalog from the server (falls back to cache offline)"
}
func (catalogCmd) Usage() string { return "catalog" }

func (catalogCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 0 {
		return ErrUsage
	}
	log := cliLogger()
	st, done, err := bootstrap.OpenStore(cfg, log)
	if err != nil {
		return err
	}
	defer done()

	client := api.New(cfg.ServerURL, auth.FileTokenStore{Path: cfg.TokenFile}, log)
	cat, err := client.FetchCatalog(ctx)
	if err != nil {
		// offline or server down: show what we have cached
		fmt.Fprintf(Out, "Catalog fetch failed (%v), using cached catalog.\n", err)
	} else {
		stations, stairs := cat.Flatten()
		if err := st.ReplaceCatalog(stations, stairs); err != nil {
			return err
		}
		fmt.Fprintf(Out, "Catalog updated: %d stations, %d stairways.\n", len(stations), len(stairs))
	}

	stations, err := st.Catalog()
	if err != nil {
		return err
	}
	if len(stations) == 0 {
		fmt.Fprintln(Out, "No stations cached. Connect once to download the catalog.")
		return nil
	}
	for _, s := range stations {
		fmt.Fprintf(Out, "  %6d  %-30s line %-4s %d stairways\n",
			s.StationID, s.Name, s.Line, s.TotalStairs)
	}
	return nil
}

func init() { RegisterCmd(catalogCmd{}) }
