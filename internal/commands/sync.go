package commands

import (
	"context"
	"errors"
	"fmt"

	"stairsync/internal/bootstrap"
	"stairsync/internal/config"
	"stairsync/internal/errs"
)

type syncCmd struct{}

func (syncCmd) Name() string        { return "sync" }
func (syncCmd) Description() string { return "Upload all pending survey data now" }
func (syncCmd) Usage() string       { return "sync" }

func (syncCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 0 {
		return ErrUsage
	}
	app, done, err := bootstrap.BuildApp(ctx, cfg, cliLogger())
	if err != nil {
		return err
	}
	defer done()

	res, err := app.Coord.ForceSync(ctx)
	switch {
	case errors.Is(err, errs.ErrSyncInProgress):
		fmt.Fprintln(Out, "A sync is already running.")
		return nil
	case errs.IsNetwork(err):
		fmt.Fprintf(Out, "Server unreachable: %v\nPending data stays queued.\n", err)
		return nil
	case errors.Is(err, errs.ErrAuth):
		fmt.Fprintln(Out, "Authentication rejected. Run `stairsync login` and retry.")
		return nil
	case err != nil:
		return err
	}

	if res.Synced == 0 && res.Failed == 0 {
		fmt.Fprintln(Out, "Nothing to sync.")
		return nil
	}
	fmt.Fprintf(Out, "Sync finished: %d uploaded, %d still pending.\n", res.Synced, res.Failed)
	return nil
}

func init() { RegisterCmd(syncCmd{}) }
