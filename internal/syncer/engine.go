package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"stairsync/internal/api"
	"stairsync/internal/errs"
	"stairsync/internal/model"
	"stairsync/internal/netwatch"
	"stairsync/internal/store"
)

// Options tune the engine's retry and probe behavior. Zero values fall
// back to the defaults below.
type Options struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	ProbeURL     string
	ProbeTimeout time.Duration
}

const (
	defaultMaxAttempts  = 3
	defaultBaseDelay    = time.Second
	defaultProbeTimeout = 5 * time.Second
)

// Engine drains the durable sync queue one entity at a time, uploading
// each stair item with bounded retries and exponential backoff. At most
// one drain runs at a time; items within a drain are processed strictly
// sequentially, so no per-item locking exists or is needed.
type Engine struct {
	store *store.Store
	net   *netwatch.Detector
	api   *api.Client
	log   *zap.SugaredLogger

	maxAttempts  int
	baseDelay    time.Duration
	probeURL     string
	probeTimeout time.Duration

	mu       sync.Mutex
	draining bool
}

// Result aggregates one drain's outcome.
type Result struct {
	Synced int
	Failed int
}

func (r *Result) add(other Result) {
	r.Synced += other.Synced
	r.Failed += other.Failed
}

// New builds an engine over the store, detector and submission client.
func New(st *store.Store, net *netwatch.Detector, client *api.Client, opts Options, log *zap.SugaredLogger) *Engine {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	return &Engine{
		store:        st,
		net:          net,
		api:          client,
		log:          log,
		maxAttempts:  opts.MaxAttempts,
		baseDelay:    opts.BaseDelay,
		probeURL:     opts.ProbeURL,
		probeTimeout: opts.ProbeTimeout,
	}
}

// Draining reports whether a drain is currently running.
func (e *Engine) Draining() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draining
}

func (e *Engine) begin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.draining {
		return false
	}
	e.draining = true
	return true
}

func (e *Engine) end() {
	e.mu.Lock()
	e.draining = false
	e.mu.Unlock()
}

// SyncPending drains the queue in FIFO order. A call while a drain is
// already running is a no-op returning errs.ErrSyncInProgress. An empty
// queue returns {0,0} immediately without probing the network. Individual
// item failures never abort the drain; an unreadable store or an auth
// failure does.
func (e *Engine) SyncPending(ctx context.Context) (Result, error) {
	if !e.begin() {
		return Result{}, errs.ErrSyncInProgress
	}
	defer e.end()

	queue, err := e.store.SyncQueue()
	if err != nil {
		return Result{}, err
	}
	if len(queue) == 0 {
		return Result{}, nil
	}
	e.log.Infow("drain started", "pending", len(queue))

	var total Result
	for _, entry := range queue {
		if entry.Type != model.EntityStation {
			e.log.Warnw("skipping unknown queue entity", "type", entry.Type, "entity", entry.EntityID)
			continue
		}
		rec, err := e.store.GetRecord(entry.EntityID)
		if errors.Is(err, errs.ErrNotFound) {
			// record deleted from under its queue entry
			if err := e.store.RemoveFromQueue(entry.ID); err != nil {
				return total, err
			}
			continue
		}
		if err != nil {
			return total, err
		}

		res, err := e.syncRecord(ctx, rec)
		total.add(res)
		if err != nil {
			return total, err
		}
	}

	e.log.Infow("drain finished", "synced", total.Synced, "failed", total.Failed)
	return total, nil
}

// SyncRecord runs the per-item upload algorithm for a single record. The
// session controller calls this for its eager first sync after completing
// a survey; the drain uses the same routine, so retry/backoff exists in
// exactly one place.
func (e *Engine) SyncRecord(ctx context.Context, rec *model.StationRecord) (Result, error) {
	if !e.begin() {
		return Result{}, errs.ErrSyncInProgress
	}
	defer e.end()
	return e.syncRecord(ctx, rec)
}

// syncRecord uploads each unsynced completed stair of rec sequentially.
// Caller must hold the drain guard.
func (e *Engine) syncRecord(ctx context.Context, rec *model.StationRecord) (Result, error) {
	var res Result
	for _, st := range rec.UnsyncedStairs() {
		err := e.syncStair(ctx, rec.ID, st)
		if err == nil {
			res.Synced++
			continue
		}
		if ctx.Err() != nil || errs.IsStorage(err) || errors.Is(err, errs.ErrAuth) {
			res.Failed++
			return res, err
		}
		// transient per-item failure: leave synced=false, continue the drain
		e.log.Warnw("stair upload failed", "record", rec.ID, "number", st.Number, "error", err)
		res.Failed++
	}

	if allSynced(rec) {
		if err := e.store.MarkRecordSynced(rec.ID); err != nil {
			return res, err
		}
		// keep the caller's copy in step with the store: Complete returns it
		now := time.Now()
		rec.Synced = true
		rec.SyncedAt = &now
	}
	return res, nil
}

// syncStair submits one stair's metadata (with retries), persists the new
// sync sub-state, then uploads the item's attachments. Attachment failures
// are logged but never revert the metadata-sync success: images carry
// their own sync state and retry on the next drain.
func (e *Engine) syncStair(ctx context.Context, recordID string, st *model.StairItem) error {
	remoteID, err := e.submitWithRetry(ctx, st)
	if err != nil {
		return err
	}

	now := time.Now()
	st.Synced = true
	st.SyncedAt = &now
	st.RemoteID = &remoteID
	if err := e.store.MarkStairSynced(recordID, st.Number, remoteID); err != nil {
		return err
	}

	e.uploadImages(ctx, recordID, st.Number, remoteID)
	return nil
}

// submitWithRetry probes connectivity and posts the stair metadata, up to
// maxAttempts with exponential backoff. A failed probe takes the same
// retry path as an HTTP failure.
func (e *Engine) submitWithRetry(ctx context.Context, st *model.StairItem) (int64, error) {
	for attempt := 1; ; attempt++ {
		remoteID, err := e.attempt(ctx, st)
		if err == nil {
			return remoteID, nil
		}
		if errors.Is(err, errs.ErrAuth) || ctx.Err() != nil {
			return 0, err
		}
		if attempt >= e.maxAttempts {
			return 0, fmt.Errorf("after %d attempts: %w", attempt, err)
		}

		delay := backoffDelay(e.baseDelay, attempt)
		e.log.Infow("retrying stair upload",
			"stair", st.StairID, "next_attempt", attempt+1, "delay", delay)
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (e *Engine) attempt(ctx context.Context, st *model.StairItem) (int64, error) {
	if !e.net.TestRealConnectivity(ctx, e.probeURL, e.probeTimeout) {
		return 0, errs.Network(errors.New("no real connectivity"))
	}
	return e.api.SubmitStairReport(ctx, api.ReportFromStair(st))
}

// uploadImages pushes the stair's unsynced attachments. Uploads within one
// item run concurrently with each other and are awaited together; there is
// no ordering guarantee among them.
func (e *Engine) uploadImages(ctx context.Context, recordID string, number int, remoteID int64) {
	images, err := e.store.Images(recordID, number)
	if err != nil {
		e.log.Errorw("loading stair images failed", "record", recordID, "number", number, "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, img := range images {
		if img.Synced {
			continue
		}
		wg.Add(1)
		go func(img model.Image) {
			defer wg.Done()
			key, url, err := e.api.UploadEvidenceImage(ctx, remoteID, img)
			if err != nil {
				e.log.Warnw("image upload failed, will retry next drain",
					"image", img.ID, "record", recordID, "error", err)
				return
			}
			if err := e.store.MarkImageSynced(img.ID, key, url); err != nil {
				e.log.Errorw("marking image synced failed", "image", img.ID, "error", err)
			}
		}(img)
	}
	wg.Wait()
}

// backoffDelay is base * 2^(attempt-1): with the default base the waits
// before attempts 2, 3, 4 are 1s, 2s, 4s.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	return base << (attempt - 1)
}

func allSynced(rec *model.StationRecord) bool {
	for i := range rec.Stairs {
		if !rec.Stairs[i].Synced {
			return false
		}
	}
	return len(rec.Stairs) > 0
}
