package commands

import (
	"bufio"
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"stairsync/internal/bootstrap"
	"stairsync/internal/config"
	"stairsync/internal/model"
	"stairsync/internal/session"
)

type surveyCmd struct{}

func (surveyCmd) Name() string        { return "survey" }
func (surveyCmd) Description() string { return "Run an interactive stairway survey for a station" }
func (surveyCmd) Usage() string       { return "survey <station-id>" }

func (surveyCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return ErrUsage
	}
	stationID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return ErrUsage
	}

	app, done, err := bootstrap.BuildApp(ctx, cfg, cliLogger())
	if err != nil {
		return err
	}
	defer done()

	station, err := app.Store.StationByID(stationID)
	if err != nil {
		return fmt.Errorf("station %d not in the cached catalog, run `stairsync catalog` first: %w", stationID, err)
	}
	stairs, err := app.Store.StairsForStation(stationID)
	if err != nil {
		return err
	}
	if err := app.Session.Start(*station, stairs); err != nil {
		return err
	}

	fmt.Fprintf(Out, "Surveying %s (line %s), %d stairways. Empty answer keeps the default.\n",
		station.Name, station.Line, len(stairs))

	r := bufio.NewReader(In)
	for {
		cur := app.Session.Current()
		fmt.Fprintf(Out, "\n-- Stairway %d (%d of %d) --\n",
			cur.Number, app.Session.Cursor()+1, len(stairs))

		in, files, err := promptStair(r)
		if err != nil {
			app.Session.Cancel()
			return err
		}
		if in == nil { // surveyor chose to abort
			app.Session.Cancel()
			fmt.Fprintln(Out, "Survey cancelled, nothing saved.")
			return nil
		}

		if len(files) > 0 {
			if err := app.Session.AttachImages(files); err != nil {
				fmt.Fprintf(Out, "Photos rejected: %v\n", err)
				continue // same stairway again
			}
		}
		if err := app.Session.CommitCurrent(*in); err != nil {
			fmt.Fprintf(Out, "Cannot complete stairway: %v\n", err)
			continue
		}

		if !app.Session.Advance() {
			break
		}
	}

	rec, err := app.Session.Complete(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(Out, "\nSurvey saved: %s, %d stairways (%d working, %d not working).\n",
		rec.ID, rec.CompletedCount, rec.WorkingCount, rec.NotWorkingCount)
	if rec.Synced {
		fmt.Fprintln(Out, "Uploaded to the server.")
	} else {
		fmt.Fprintln(Out, "Queued for upload, will sync when the server is reachable.")
	}
	return nil
}

// promptStair collects one stairway's answers. Returns (nil, nil, nil)
// when the surveyor aborts the whole survey.
func promptStair(r *bufio.Reader) (*session.StairInput, []model.ImageFile, error) {
	codes, err := ask(r, "Code identifiers (comma separated, empty if none)")
	if err != nil {
		return nil, nil, err
	}
	if strings.EqualFold(codes, "abort") {
		return nil, nil, nil
	}

	in := &session.StairInput{}
	if codes == "" {
		in.NoCodes = true
	} else {
		for _, c := range strings.Split(codes, ",") {
			if c = strings.TrimSpace(c); c != "" {
				in.CodeIdentifiers = append(in.CodeIdentifiers, c)
			}
		}
	}

	if in.RouteStart, err = ask(r, "Route start"); err != nil {
		return nil, nil, err
	}
	if in.PathEnd, err = ask(r, "Path end"); err != nil {
		return nil, nil, err
	}

	maint, err := ask(r, "Maintenance status (minor/major/critical/other)")
	if err != nil {
		return nil, nil, err
	}
	in.Maintenance = model.MaintenanceStatus(strings.ToLower(maint))
	if in.Maintenance == model.MaintenanceOther {
		if in.MaintenanceNote, err = ask(r, "Maintenance note"); err != nil {
			return nil, nil, err
		}
	}

	working, err := askBool(r, "Is the stairway working? (y/n)")
	if err != nil {
		return nil, nil, err
	}
	in.IsWorking = working

	aligned, err := askBool(r, "Is it aligned with the platform? (y/n)")
	if err != nil {
		return nil, nil, err
	}
	in.IsAligned = aligned

	if in.Notes, err = ask(r, "Notes (optional)"); err != nil {
		return nil, nil, err
	}

	paths, err := ask(r, "Photo files (comma separated paths, optional)")
	if err != nil {
		return nil, nil, err
	}
	files, err := readImageFiles(paths)
	if err != nil {
		return nil, nil, err
	}
	return in, files, nil
}

func ask(r *bufio.Reader, prompt string) (string, error) {
	fmt.Fprintf(Out, "%s: ", prompt)
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func askBool(r *bufio.Reader, prompt string) (*bool, error) {
	ans, err := ask(r, prompt)
	if err != nil {
		return nil, err
	}
	var v bool
	switch strings.ToLower(ans) {
	case "y", "yes", "true":
		v = true
	case "n", "no", "false":
		v = false
	default:
		return nil, nil // unanswered, validation will flag it
	}
	return &v, nil
}

func readImageFiles(paths string) ([]model.ImageFile, error) {
	if paths == "" {
		return nil, nil
	}
	var files []model.ImageFile
	for _, p := range strings.Split(paths, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read photo %s: %w", p, err)
		}
		ct := mime.TypeByExtension(filepath.Ext(p))
		if ct == "" {
			ct = "image/jpeg"
		}
		files = append(files, model.ImageFile{
			Name:        filepath.Base(p),
			ContentType: ct,
			Data:        data,
		})
	}
	return files, nil
}

func init() { RegisterCmd(surveyCmd{}) }
