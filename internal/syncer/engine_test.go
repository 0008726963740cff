package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"stairsync/internal/api"
	"stairsync/internal/errs"
	"stairsync/internal/model"
	"stairsync/internal/netwatch"
	"stairsync/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type staticTokens string

func (s staticTokens) Token() (string, error) { return string(s), nil }

// fakeServer is a minimal reporting server with per-stair failure
// injection and submission counting.
type fakeServer struct {
	mu          sync.Mutex
	nextID      int64
	submissions map[int64]int // stair id -> submit count
	failStairs  map[int64]int // stair id -> HTTP status to return
	imageStatus int
	imageHits   int32
	probeHits   int32

	srv *httptest.Server
}

func newFakeServer() *fakeServer {
	f := &fakeServer{
		submissions: make(map[int64]int),
		failStairs:  make(map[int64]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.probeHits, 1)
	})
	mux.HandleFunc("/api/stair_report/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/stair_report/" {
			f.handleImage(w, r)
			return
		}
		var rep api.StairReport
		_ = json.NewDecoder(r.Body).Decode(&rep)

		f.mu.Lock()
		f.submissions[rep.Stair]++
		status := f.failStairs[rep.Stair]
		f.nextID++
		id := f.nextID
		f.mu.Unlock()

		if status != 0 {
			w.WriteHeader(status)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id": %d}`, id)
	})
	f.srv = httptest.NewServer(mux)
	return f
}

func (f *fakeServer) handleImage(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&f.imageHits, 1)
	if f.imageStatus != 0 {
		w.WriteHeader(f.imageStatus)
		return
	}
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte(`{"key":"k","url":"/media/k"}`))
}

func (f *fakeServer) submitCount(stairID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submissions[stairID]
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "client.db"), zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, st.Migrate())
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestEngine(t *testing.T, st *store.Store, f *fakeServer, online bool) (*Engine, *netwatch.Detector) {
	t.Helper()
	log := zap.NewNop().Sugar()
	net := netwatch.New(online, log)
	client := api.New(f.srv.URL, staticTokens("tok"), log)
	e := New(st, net, client, Options{
		MaxAttempts:  3,
		BaseDelay:    time.Millisecond,
		ProbeURL:     f.srv.URL + "/api/ping",
		ProbeTimeout: time.Second,
	}, log)
	return e, net
}

func boolPtr(v bool) *bool { return &v }

func completedRecord(stairIDs ...int64) *model.StationRecord {
	rec := &model.StationRecord{
		StationID:   101,
		StationName: "Union Square",
		Line:        "4",
		Status:      model.RecordCompleted,
	}
	for i, id := range stairIDs {
		rec.Stairs = append(rec.Stairs, model.StairItem{
			StairID:         id,
			Number:          i + 1,
			CodeIdentifiers: []string{fmt.Sprintf("US-%d", i+1)},
			RouteStart:      "mezzanine",
			PathEnd:         "platform",
			Maintenance:     model.MaintenanceMinor,
			IsWorking:       boolPtr(true),
			IsAligned:       boolPtr(true),
			Status:          model.StairCompleted,
		})
	}
	return rec
}

func TestSyncPending_EmptyQueueNoProbe(t *testing.T) {
	f := newFakeServer()
	defer f.srv.Close()
	st := newTestStore(t)
	e, _ := newTestEngine(t, st, f, true)

	res, err := e.SyncPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Zero(t, atomic.LoadInt32(&f.probeHits), "empty queue must not touch the network")
}

func TestSyncPending_DrainsQueue(t *testing.T) {
	f := newFakeServer()
	defer f.srv.Close()
	st := newTestStore(t)
	e, _ := newTestEngine(t, st, f, true)

	saved, err := st.SaveRecord(completedRecord(5001, 5002))
	require.NoError(t, err)

	res, err := e.SyncPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Synced: 2, Failed: 0}, res)

	got, err := st.GetRecord(saved.ID)
	require.NoError(t, err)
	assert.True(t, got.Synced)
	assert.True(t, got.Stairs[0].Synced)
	assert.NotNil(t, got.Stairs[0].RemoteID)

	n, err := st.QueueLength()
	require.NoError(t, err)
	assert.Zero(t, n, "fully synced record leaves the queue")
}

func TestSyncPending_PartialFailureKeepsQueue(t *testing.T) {
	f := newFakeServer()
	defer f.srv.Close()
	f.failStairs[5002] = http.StatusInternalServerError

	st := newTestStore(t)
	e, _ := newTestEngine(t, st, f, true)
	saved, err := st.SaveRecord(completedRecord(5001, 5002))
	require.NoError(t, err)

	res, err := e.SyncPending(context.Background())
	require.NoError(t, err, "a transient per-item failure must not abort the drain")
	assert.Equal(t, Result{Synced: 1, Failed: 1}, res)

	assert.Equal(t, 1, f.submitCount(5001))
	assert.Equal(t, 3, f.submitCount(5002), "failed item exhausts its retry budget")

	got, err := st.GetRecord(saved.ID)
	require.NoError(t, err)
	assert.True(t, got.Stairs[0].Synced)
	assert.False(t, got.Stairs[1].Synced)
	assert.False(t, got.Synced)

	n, err := st.QueueLength()
	require.NoError(t, err)
	assert.Equal(t, 1, n, "partially synced record stays queued")
}

func TestSyncPending_SecondDrainSkipsSyncedItems(t *testing.T) {
	f := newFakeServer()
	defer f.srv.Close()
	f.failStairs[5002] = http.StatusInternalServerError

	st := newTestStore(t)
	e, _ := newTestEngine(t, st, f, true)
	_, err := st.SaveRecord(completedRecord(5001, 5002))
	require.NoError(t, err)

	_, err = e.SyncPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, f.submitCount(5001))

	// server recovers, next drain resumes where it left off
	f.mu.Lock()
	delete(f.failStairs, 5002)
	f.mu.Unlock()

	res, err := e.SyncPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Synced: 1, Failed: 0}, res)
	assert.Equal(t, 1, f.submitCount(5001), "already-synced item is never resubmitted")

	n, err := st.QueueLength()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSyncPending_AuthFailureAborts(t *testing.T) {
	f := newFakeServer()
	defer f.srv.Close()
	f.failStairs[5001] = http.StatusUnauthorized

	st := newTestStore(t)
	e, _ := newTestEngine(t, st, f, true)
	_, err := st.SaveRecord(completedRecord(5001, 5002))
	require.NoError(t, err)

	_, err = e.SyncPending(context.Background())
	assert.ErrorIs(t, err, errs.ErrAuth)
	assert.Equal(t, 1, f.submitCount(5001), "auth failures are not retried")
	assert.Zero(t, f.submitCount(5002), "drain stops after an auth failure")
}

func TestSyncPending_OfflineFailsWithoutNetwork(t *testing.T) {
	f := newFakeServer()
	defer f.srv.Close()
	st := newTestStore(t)
	e, _ := newTestEngine(t, st, f, false)

	_, err := st.SaveRecord(completedRecord(5001))
	require.NoError(t, err)

	res, err := e.SyncPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Synced: 0, Failed: 1}, res)
	assert.Zero(t, atomic.LoadInt32(&f.probeHits), "offline probe short-circuits")
	assert.Zero(t, f.submitCount(5001))
}

func TestSyncPending_Reentrancy(t *testing.T) {
	f := newFakeServer()
	defer f.srv.Close()
	st := newTestStore(t)
	e, _ := newTestEngine(t, st, f, true)

	// no need for an actual drain: hold the guard directly
	require.True(t, e.begin())
	defer e.end()

	_, err := e.SyncPending(context.Background())
	assert.ErrorIs(t, err, errs.ErrSyncInProgress)
	assert.True(t, e.Draining())
}

func TestSyncRecord_UploadsImages(t *testing.T) {
	f := newFakeServer()
	defer f.srv.Close()
	st := newTestStore(t)
	e, _ := newTestEngine(t, st, f, true)

	saved, err := st.SaveRecord(completedRecord(5001))
	require.NoError(t, err)
	ids, err := st.SaveImages(saved.ID, 1, []model.ImageFile{
		{Name: "a.jpg", ContentType: "image/jpeg", Data: []byte("x")},
		{Name: "b.jpg", ContentType: "image/jpeg", Data: []byte("y")},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	rec, err := st.GetRecord(saved.ID)
	require.NoError(t, err)
	res, err := e.SyncRecord(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, Result{Synced: 1}, res)
	assert.True(t, rec.Synced, "the caller's record reflects the full sync")
	assert.NotNil(t, rec.SyncedAt)
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.imageHits))

	imgs, err := st.Images(saved.ID, 1)
	require.NoError(t, err)
	assert.True(t, imgs[0].Synced)
	assert.True(t, imgs[1].Synced)
}

func TestSyncRecord_ImageFailureDoesNotRevertMetadata(t *testing.T) {
	f := newFakeServer()
	defer f.srv.Close()
	f.imageStatus = http.StatusInternalServerError

	st := newTestStore(t)
	e, _ := newTestEngine(t, st, f, true)

	saved, err := st.SaveRecord(completedRecord(5001))
	require.NoError(t, err)
	_, err = st.SaveImages(saved.ID, 1, []model.ImageFile{
		{Name: "a.jpg", ContentType: "image/jpeg", Data: []byte("x")},
	})
	require.NoError(t, err)

	rec, err := st.GetRecord(saved.ID)
	require.NoError(t, err)
	res, err := e.SyncRecord(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, Result{Synced: 1}, res, "metadata sync succeeds despite the attachment failure")

	got, err := st.GetRecord(saved.ID)
	require.NoError(t, err)
	assert.True(t, got.Stairs[0].Synced)

	imgs, err := st.Images(saved.ID, 1)
	require.NoError(t, err)
	assert.False(t, imgs[0].Synced, "failed image stays pending for the next drain")
}

func TestSubmitWithRetry_CancelledContext(t *testing.T) {
	f := newFakeServer()
	defer f.srv.Close()
	f.failStairs[5001] = http.StatusInternalServerError

	st := newTestStore(t)
	e, _ := newTestEngine(t, st, f, true)
	e.baseDelay = time.Hour // cancellation must win over the backoff wait

	_, err := st.SaveRecord(completedRecord(5001))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = e.SyncPending(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestBackoffDelay(t *testing.T) {
	base := time.Second
	assert.Equal(t, 1*time.Second, backoffDelay(base, 1))
	assert.Equal(t, 2*time.Second, backoffDelay(base, 2))
	assert.Equal(t, 4*time.Second, backoffDelay(base, 3))
}
