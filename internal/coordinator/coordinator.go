package coordinator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"stairsync/internal/model"
	"stairsync/internal/netwatch"
	"stairsync/internal/store"
	"stairsync/internal/syncer"
)

const historyLimit = 10

// Stats is the aggregate sync state shown to the user.
type Stats struct {
	Total   int // completed stair items across all records
	Synced  int
	Pending int
	Syncing bool
}

// HistoryEntry is one finished drain.
type HistoryEntry struct {
	At      time.Time
	Synced  int
	Failed  int
	Success bool
}

// Coordinator is the single facade the application uses for sync status
// and triggers. It owns the connectivity listener and schedules the
// delayed auto-sync after reconnection, so a flapping link does not fire
// a drain per flap.
type Coordinator struct {
	net    *netwatch.Detector
	engine *syncer.Engine
	store  *store.Store
	log    *zap.SugaredLogger

	settle time.Duration

	mu         sync.Mutex
	listenerID int
	timer      *time.Timer
	closed     bool
	lastSyncAt time.Time
	history    []HistoryEntry
}

// New wires the coordinator and registers its connectivity listener.
// Call Close on teardown.
func New(net *netwatch.Detector, engine *syncer.Engine, st *store.Store, settle time.Duration, log *zap.SugaredLogger) *Coordinator {
	if settle <= 0 {
		settle = 2 * time.Second
	}
	c := &Coordinator{
		net:    net,
		engine: engine,
		store:  st,
		log:    log,
		settle: settle,
	}
	c.listenerID = net.AddListener(c.onConnectivity)
	return c
}

func (c *Coordinator) onConnectivity(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if !online {
		// disarm: reconnect flapped away before the settle delay elapsed
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
		c.log.Infow("connection lost")
		return
	}

	c.log.Infow("connection restored, auto-sync scheduled", "settle", c.settle)
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.settle, func() {
		if _, err := c.ForceSync(context.Background()); err != nil {
			c.log.Warnw("auto-sync failed", "error", err)
		}
	})
}

// ForceSync triggers a drain immediately, with no debounce. While a drain
// is already running this is a no-op surfacing errs.ErrSyncInProgress.
func (c *Coordinator) ForceSync(ctx context.Context) (syncer.Result, error) {
	res, err := c.engine.SyncPending(ctx)
	if err != nil {
		return res, err
	}
	if res.Synced > 0 || res.Failed > 0 {
		c.record(res)
	}
	return res, nil
}

func (c *Coordinator) record(res syncer.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSyncAt = time.Now()
	c.history = append([]HistoryEntry{{
		At:      c.lastSyncAt,
		Synced:  res.Synced,
		Failed:  res.Failed,
		Success: res.Failed == 0,
	}}, c.history...)
	if len(c.history) > historyLimit {
		c.history = c.history[:historyLimit]
	}
}

// Stats derives total/synced/pending by scanning all records' items.
// O(records x items), fine at field-survey scale.
func (c *Coordinator) Stats() Stats {
	s := Stats{Syncing: c.engine.Draining()}
	for _, rec := range c.store.AllRecords() {
		for i := range rec.Stairs {
			st := &rec.Stairs[i]
			if st.Status != model.StairCompleted {
				continue
			}
			s.Total++
			if st.Synced {
				s.Synced++
			} else {
				s.Pending++
			}
		}
	}
	return s
}

// History returns the most recent drain outcomes, newest first.
func (c *Coordinator) History() []HistoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]HistoryEntry, len(c.history))
	copy(out, c.history)
	return out
}

// LastSyncAt returns the time of the last drain that processed anything.
func (c *Coordinator) LastSyncAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSyncAt
}

// Close unregisters the connectivity listener and disarms any scheduled
// auto-sync.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.net.RemoveListener(c.listenerID)
}
