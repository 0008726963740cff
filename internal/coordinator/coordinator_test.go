package coordinator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stairsync/internal/api"
	"stairsync/internal/errs"
	"stairsync/internal/model"
	"stairsync/internal/netwatch"
	"stairsync/internal/store"
	"stairsync/internal/syncer"
)

type staticTokens string

func (s staticTokens) Token() (string, error) { return string(s), nil }

type fixture struct {
	coord   *Coordinator
	store   *store.Store
	net     *netwatch.Detector
	submits *int32
	release chan struct{} // closed handlers block until released when set
	gate    *int32
}

func newFixture(t *testing.T, settle time.Duration) *fixture {
	t.Helper()
	log := zap.NewNop().Sugar()

	st, err := store.Open(filepath.Join(t.TempDir(), "client.db"), log)
	require.NoError(t, err)
	require.NoError(t, st.Migrate())
	t.Cleanup(func() { _ = st.Close() })

	f := &fixture{store: st, release: make(chan struct{}), gate: new(int32)}
	var submits int32
	var nextID int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/ping" {
			return
		}
		if atomic.LoadInt32(f.gate) == 1 {
			<-f.release
		}
		id := atomic.AddInt64(&nextID, 1)
		atomic.AddInt32(&submits, 1)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id": %d}`, id)
	}))
	t.Cleanup(srv.Close)

	f.submits = &submits
	f.net = netwatch.New(false, log)
	client := api.New(srv.URL, staticTokens("tok"), log)
	engine := syncer.New(st, f.net, client, syncer.Options{
		MaxAttempts:  1,
		BaseDelay:    time.Millisecond,
		ProbeURL:     srv.URL + "/api/ping",
		ProbeTimeout: time.Second,
	}, log)

	f.coord = New(f.net, engine, st, settle, log)
	t.Cleanup(f.coord.Close)
	return f
}

func boolPtr(v bool) *bool { return &v }

func saveCompleted(t *testing.T, st *store.Store) *model.StationRecord {
	t.Helper()
	rec, err := st.SaveRecord(&model.StationRecord{
		StationID:   101,
		StationName: "Union Square",
		Line:        "4",
		Status:      model.RecordCompleted,
		Stairs: []model.StairItem{{
			StairID:         5001,
			Number:          1,
			CodeIdentifiers: []string{"US-1"},
			RouteStart:      "mezzanine",
			PathEnd:         "platform",
			Maintenance:     model.MaintenanceMinor,
			IsWorking:       boolPtr(true),
			IsAligned:       boolPtr(true),
			Status:          model.StairCompleted,
		}},
	})
	require.NoError(t, err)
	return rec
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestReconnect_AutoSyncAfterSettle(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)
	saveCompleted(t, f.store)

	f.net.SetOnline(true)

	// nothing fires before the settle delay
	assert.Zero(t, atomic.LoadInt32(f.submits))

	waitFor(t, func() bool { return atomic.LoadInt32(f.submits) == 1 },
		"auto-sync never ran after the settle delay")
	waitFor(t, func() bool {
		n, err := f.store.QueueLength()
		return err == nil && n == 0
	}, "queue never drained")
}

func TestReconnect_FlapDisarmsTimer(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond)
	saveCompleted(t, f.store)

	f.net.SetOnline(true)
	f.net.SetOnline(false) // flap before the delay elapses

	time.Sleep(120 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(f.submits), "flapped reconnect must not trigger a drain")
}

func TestForceSync_DrainsAndRecordsHistory(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.net.SetOnline(true)
	saveCompleted(t, f.store)

	res, err := f.coord.ForceSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, syncer.Result{Synced: 1}, res)

	hist := f.coord.History()
	require.Len(t, hist, 1)
	assert.Equal(t, 1, hist[0].Synced)
	assert.True(t, hist[0].Success)
	assert.False(t, f.coord.LastSyncAt().IsZero())
}

func TestForceSync_EmptyQueueLeavesNoHistory(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.net.SetOnline(true)

	res, err := f.coord.ForceSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, syncer.Result{}, res)
	assert.Empty(t, f.coord.History())
	assert.True(t, f.coord.LastSyncAt().IsZero())
}

func TestForceSync_WhileDraining(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.net.SetOnline(true)
	saveCompleted(t, f.store)

	atomic.StoreInt32(f.gate, 1) // first drain blocks in the server
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.coord.ForceSync(context.Background())
	}()

	waitFor(t, func() bool { return f.coord.Stats().Syncing }, "drain never started")

	_, err := f.coord.ForceSync(context.Background())
	assert.ErrorIs(t, err, errs.ErrSyncInProgress)

	atomic.StoreInt32(f.gate, 0)
	close(f.release)
	<-done
}

func TestStats(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.net.SetOnline(true)

	saveCompleted(t, f.store)
	saveCompleted(t, f.store)

	_, err := f.coord.ForceSync(context.Background())
	require.NoError(t, err)
	saveCompleted(t, f.store) // saved after the drain, stays pending

	stats := f.coord.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Synced)
	assert.Equal(t, 1, stats.Pending)
	assert.False(t, stats.Syncing)
}

func TestClose_StopsListening(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	saveCompleted(t, f.store)

	f.coord.Close()
	f.net.SetOnline(true)

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(f.submits), "closed coordinator must ignore reconnects")
}
