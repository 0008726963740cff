package commands

import (
	"context"
	"fmt"

	"stairsync/internal/bootstrap"
	"stairsync/internal/config"
)

type statusCmd struct{}

func (statusCmd) Name() string        { return "status" }
func (statusCmd) Description() string { return "Show connectivity, queue and sync history" }
func (statusCmd) Usage() string       { return "status" }

func (statusCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 0 {
		return ErrUsage
	}
	app, done, err := bootstrap.BuildApp(ctx, cfg, cliLogger())
	if err != nil {
		return err
	}
	defer done()

	if app.Net.Online() {
		fmt.Fprintf(Out, "Server:  reachable (%s)\n", cfg.ServerURL)
	} else {
		fmt.Fprintf(Out, "Server:  unreachable (%s), working offline\n", cfg.ServerURL)
	}

	stats := app.Coord.Stats()
	fmt.Fprintf(Out, "Surveys: %d stairways completed, %d synced, %d pending\n",
		stats.Total, stats.Synced, stats.Pending)

	qlen, err := app.Store.QueueLength()
	if err != nil {
		return err
	}
	fmt.Fprintf(Out, "Queue:   %d record(s) awaiting upload\n", qlen)

	for _, rec := range app.Store.UnsyncedRecords() {
		fmt.Fprintf(Out, "  %-14s %-30s %d/%d stairways\n",
			rec.ID, rec.StationName, rec.CompletedCount, len(rec.Stairs))
	}

	if hist := app.Coord.History(); len(hist) > 0 {
		fmt.Fprintln(Out, "Recent syncs:")
		for _, h := range hist {
			outcome := "ok"
			if !h.Success {
				outcome = "partial"
			}
			fmt.Fprintf(Out, "  %s  %d uploaded, %d failed (%s)\n",
				h.At.Format("2006-01-02 15:04:05"), h.Synced, h.Failed, outcome)
		}
	}
	return nil
}

func init() { RegisterCmd(statusCmd{}) }
