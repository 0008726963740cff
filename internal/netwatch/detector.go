package netwatch

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Listener receives the new connectivity state on every transition.
type Listener func(online bool)

type registration struct {
	id int
	fn Listener
}

// Detector tracks connectivity transitions and offers an active probe that
// distinguishes "link up" from "server reachable". Construct one per
// process and inject it; there is no package-level instance.
type Detector struct {
	mu        sync.Mutex
	online    bool
	nextID    int
	listeners []registration

	client *http.Client
	log    *zap.SugaredLogger
}

// New builds a detector with the given initial state.
func New(online bool, log *zap.SugaredLogger) *Detector {
	return &Detector{
		online: online,
		client: &http.Client{},
		log:    log,
	}
}

// Online reports the current connectivity state.
func (d *Detector) Online() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.online
}

// SetOnline feeds a platform connectivity signal. A transition invokes
// every registered listener with the new value, synchronously, in
// registration order. A panicking listener is logged and must not block
// delivery to the rest.
func (d *Detector) SetOnline(online bool) {
	d.mu.Lock()
	if d.online == online {
		d.mu.Unlock()
		return
	}
	d.online = online
	snapshot := make([]registration, len(d.listeners))
	copy(snapshot, d.listeners)
	d.mu.Unlock()

	for _, reg := range snapshot {
		d.notify(reg, online)
	}
}

func (d *Detector) notify(reg registration, online bool) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorw("connectivity listener panicked", "listener", reg.id, "panic", r)
		}
	}()
	reg.fn(online)
}

// AddListener registers a callback and returns its id for removal.
func (d *Detector) AddListener(fn Listener) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.listeners = append(d.listeners, registration{id: d.nextID, fn: fn})
	return d.nextID
}

// RemoveListener unregisters a callback. Listeners already snapshotted by
// an in-flight notification pass are not skipped.
func (d *Detector) RemoveListener(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, reg := range d.listeners {
		if reg.id == id {
			d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)
			return
		}
	}
}

// TestRealConnectivity performs a bounded HEAD probe against url. It
// returns false immediately, without any network call, when the detector
// is already offline. Any HTTP response, error statuses included, counts
// as reachability: the probe proves some server answers, not that the
// target is healthy. Callers needing real health must use the actual
// upload endpoint.
func (d *Detector) TestRealConnectivity(ctx context.Context, url string, timeout time.Duration) bool {
	if !d.Online() {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		d.log.Warnw("probe request build failed", "url", url, "error", err)
		return false
	}
	resp, err := d.client.Do(req)
	if err != nil {
		d.log.Warnw("reachability probe failed", "url", url, "error", err)
		return false
	}
	_ = resp.Body.Close()
	return true
}

// Watch probes url every interval and feeds the result into SetOnline.
// It is the headless stand-in for platform link up/down events and blocks
// until ctx is done.
func (d *Detector) Watch(ctx context.Context, url string, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.SetOnline(d.probe(ctx, url, timeout))
		}
	}
}

// probe is Watch's raw reachability check: unlike TestRealConnectivity it
// must not short-circuit on the current state, otherwise the detector
// could never flip back online.
func (d *Detector) probe(ctx context.Context, url string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}
