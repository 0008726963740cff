package commands

import (
	"context"
	"flag"
	"fmt"
	"time"

	"stairsync/internal/bootstrap"
	"stairsync/internal/config"
)

type purgeCmd struct{}

func (purgeCmd) Name() string        { return "purge" }
func (purgeCmd) Description() string { return "Delete old synced surveys from the local database" }
func (purgeCmd) Usage() string       { return "purge [--days N]" }

func (purgeCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	fs.SetOutput(Out)
	days := fs.Int("days", cfg.PurgeAfterDays, "delete synced surveys older than this many days")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}
	if *days <= 0 {
		return ErrUsage
	}

	log := cliLogger()
	st, done, err := bootstrap.OpenStore(cfg, log)
	if err != nil {
		return err
	}
	defer done()

	n, err := st.PurgeOlderThan(time.Duration(*days) * 24 * time.Hour)
	if err != nil {
		return err
	}
	fmt.Fprintf(Out, "Purged %d synced survey(s) older than %d days.\n", n, *days)
	return nil
}

func init() { RegisterCmd(purgeCmd{}) }
