package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stairsync/internal/errs"
	"stairsync/internal/model"
	"stairsync/internal/netwatch"
	"stairsync/internal/store"
	"stairsync/internal/syncer"
)

// Controller manages the in-memory state of one active multi-stairway
// survey. Nothing is persisted until Complete; Cancel discards everything.
type Controller struct {
	store  *store.Store
	engine *syncer.Engine
	net    *netwatch.Detector
	log    *zap.SugaredLogger

	record *model.StationRecord
	cursor int
}

// New builds a controller. engine and net may be shared with the
// coordinator; the controller only reads connectivity and delegates the
// eager first sync to the engine.
func New(st *store.Store, engine *syncer.Engine, net *netwatch.Detector, log *zap.SugaredLogger) *Controller {
	return &Controller{store: st, engine: engine, net: net, log: log}
}

// StairInput carries the fields a surveyor fills in for one stairway.
type StairInput struct {
	CodeIdentifiers []string
	NoCodes         bool
	RouteStart      string
	PathEnd         string
	Maintenance     model.MaintenanceStatus
	MaintenanceNote string
	IsWorking       *bool
	IsAligned       *bool
	Notes           string
}

// Active reports whether a survey is in progress.
func (c *Controller) Active() bool { return c.record != nil }

// Start begins a survey for station, building one pending stair template
// per catalog stairway. The record id is assigned here so attachments can
// be stored under it before the record itself is persisted. Fails when a
// session is already in progress: no implicit overwrite.
func (c *Controller) Start(station model.Station, stairs []model.CatalogStair) error {
	if c.record != nil {
		return fmt.Errorf("%w: survey already in progress", errs.ErrInvalidState)
	}
	if len(stairs) == 0 {
		return errs.Validation("station has no stairways in the catalog")
	}

	templates := make([]model.StairItem, 0, len(stairs))
	for _, cs := range stairs {
		templates = append(templates, model.StairItem{
			StairID: cs.ID,
			Number:  cs.Number,
			Status:  model.StairPending,
		})
	}

	c.record = &model.StationRecord{
		ID:          model.NewRecordID(),
		StationID:   station.StationID,
		StationName: station.Name,
		Line:        station.Line,
		Stairs:      templates,
		Status:      model.RecordInProgress,
		CreatedAt:   time.Now(),
	}
	c.cursor = 0
	c.log.Infow("survey started",
		"station", station.Name, "stairs", len(stairs), "record", c.record.ID)
	return nil
}

// Current returns the stair item under the cursor, or nil without an
// active session.
func (c *Controller) Current() *model.StairItem {
	if c.record == nil {
		return nil
	}
	return &c.record.Stairs[c.cursor]
}

// Cursor returns the active stair index.
func (c *Controller) Cursor() int { return c.cursor }

// Record exposes the in-memory record, mainly for status display.
func (c *Controller) Record() *model.StationRecord { return c.record }

// ValidateCurrent checks the current stair against the completion rules
// without mutating anything.
func (c *Controller) ValidateCurrent() model.ValidationResult {
	cur := c.Current()
	if cur == nil {
		return model.ValidationResult{Valid: false, Errors: []string{"no active stairway"}}
	}
	return cur.Validate()
}

// CommitCurrent merges input into the current stair and marks it
// completed. Validation is enforced here, not just in the UI: an invalid
// item cannot be committed. Once completed, content fields become
// immutable to callers; only the sync subsystem mutates the item further.
func (c *Controller) CommitCurrent(in StairInput) error {
	cur := c.Current()
	if cur == nil {
		return fmt.Errorf("%w: no active survey", errs.ErrInvalidState)
	}

	candidate := *cur
	candidate.CodeIdentifiers = in.CodeIdentifiers
	candidate.NoCodes = in.NoCodes
	candidate.RouteStart = in.RouteStart
	candidate.PathEnd = in.PathEnd
	candidate.Maintenance = in.Maintenance
	candidate.MaintenanceNote = in.MaintenanceNote
	candidate.IsWorking = in.IsWorking
	candidate.IsAligned = in.IsAligned
	candidate.Notes = in.Notes

	if v := candidate.Validate(); !v.Valid {
		return &errs.ValidationError{Reasons: v.Errors}
	}

	candidate.Status = model.StairCompleted
	*cur = candidate
	c.log.Infow("stairway committed", "record", c.record.ID, "number", cur.Number)
	return nil
}

// AttachImages persists photos for the current stair under the session's
// record id and links their ids to the item.
func (c *Controller) AttachImages(files []model.ImageFile) error {
	cur := c.Current()
	if cur == nil {
		return fmt.Errorf("%w: no active survey", errs.ErrInvalidState)
	}
	if len(files) == 0 {
		return nil
	}
	ids, err := c.store.SaveImages(c.record.ID, cur.Number, files)
	if err != nil {
		return err
	}
	cur.PhotoIDs = append(cur.PhotoIDs, ids...)
	return nil
}

// Advance moves the cursor to the next stairway. Returns false at the end.
func (c *Controller) Advance() bool {
	if c.record == nil || c.cursor >= len(c.record.Stairs)-1 {
		return false
	}
	c.cursor++
	return true
}

// Back moves the cursor to the previous stairway. Returns false at the start.
func (c *Controller) Back() bool {
	if c.record == nil || c.cursor == 0 {
		return false
	}
	c.cursor--
	return true
}

// GoTo jumps to a specific stairway index.
func (c *Controller) GoTo(index int) bool {
	if c.record == nil || index < 0 || index >= len(c.record.Stairs) {
		return false
	}
	c.cursor = index
	return true
}

// Complete freezes the survey: final counts, completion stamp, durable
// save (which also enqueues it), then a best-effort eager sync through the
// engine when currently online. The record is always persisted locally
// regardless of upload outcome; the controller resets for the next survey.
func (c *Controller) Complete(ctx context.Context) (*model.StationRecord, error) {
	if c.record == nil {
		return nil, fmt.Errorf("%w: no active survey", errs.ErrInvalidState)
	}

	rec := c.record
	rec.RecomputeCounts()
	now := time.Now()
	rec.CompletedAt = &now
	rec.Status = model.RecordCompleted

	saved, err := c.store.SaveRecord(rec)
	if err != nil {
		return nil, err
	}
	c.record = nil
	c.cursor = 0
	c.log.Infow("survey completed", "record", saved.ID, "completed", saved.CompletedCount)

	if c.net.Online() {
		// eager first sync: same per-item routine the drain uses
		if res, err := c.engine.SyncRecord(ctx, saved); err != nil {
			if !errors.Is(err, errs.ErrSyncInProgress) {
				c.log.Warnw("eager sync failed, record stays queued", "record", saved.ID, "error", err)
			}
		} else {
			c.log.Infow("eager sync done", "record", saved.ID, "synced", res.Synced, "failed", res.Failed)
		}
	}

	return saved, nil
}

// Cancel discards the in-memory survey state.
func (c *Controller) Cancel() {
	if c.record != nil {
		c.log.Infow("survey cancelled", "record", c.record.ID)
	}
	c.record = nil
	c.cursor = 0
}
