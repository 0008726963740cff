package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stairsync/internal/errs"
	"stairsync/internal/model"
)

type staticTokens string

func (s staticTokens) Token() (string, error) { return string(s), nil }

func newTestClient(srvURL string) *Client {
	return New(srvURL, staticTokens("tok-abc"), zap.NewNop().Sugar())
}

func boolPtr(v bool) *bool { return &v }

func TestSubmitStairReport_Success(t *testing.T) {
	var gotAuth string
	var gotBody StairReport
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/stair_report/", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 42}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	st := &model.StairItem{
		StairID:         5001,
		CodeIdentifiers: []string{"US-1"},
		RouteStart:      "mezzanine",
		PathEnd:         "platform",
		Maintenance:     model.MaintenanceMinor,
		IsWorking:       boolPtr(true),
		IsAligned:       boolPtr(false),
	}
	id, err := c.SubmitStairReport(context.Background(), ReportFromStair(st))
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, "Token tok-abc", gotAuth)
	assert.Equal(t, int64(5001), gotBody.Stair)
	assert.True(t, gotBody.IsWorking)
	assert.False(t, gotBody.IsAligned)
}

func TestSubmitStairReport_AuthRejected(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		c := newTestClient(srv.URL)
		_, err := c.SubmitStairReport(context.Background(), StairReport{Stair: 1})
		assert.ErrorIs(t, err, errs.ErrAuth, "status %d", status)
		srv.Close()
	}
}

func TestSubmitStairReport_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.SubmitStairReport(context.Background(), StairReport{Stair: 1})
	assert.True(t, errs.IsNetwork(err))
}

func TestSubmitStairReport_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.SubmitStairReport(context.Background(), StairReport{Stair: 1})
	assert.True(t, errs.IsNetwork(err))
}

func TestUploadEvidenceImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/stair_report/42/evidence_image/", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(10<<20))
		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "ev.jpg", header.Filename)
		assert.Equal(t, []byte("jpeg-bytes"), data)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"key":"k-1","url":"/media/k-1"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	key, url, err := c.UploadEvidenceImage(context.Background(), 42, model.Image{
		FileName: "ev.jpg",
		Data:     []byte("jpeg-bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, "k-1", key)
	assert.Equal(t, "/media/k-1", url)
}

func TestFetchCatalog_AndFlatten(t *testing.T) {
	payload := `{
		"routes": [{"id": 1, "route_short_name": "4", "route_color": "00933C"}],
		"stops": [{"id": 9, "station": 101}],
		"stations": [
			{"id": 101, "name": "Union Square", "routes": [1]},
			{"id": 102, "name": "Orphan Stop", "routes": []}
		],
		"stairs": [
			{"id": 5001, "number": 1, "station": 101},
			{"id": 5002, "number": 2, "station": 101}
		]
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/catalogs/all", r.URL.Path)
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	cat, err := c.FetchCatalog(context.Background())
	require.NoError(t, err)

	stations, stairs := cat.Flatten()
	require.Len(t, stations, 2)
	require.Len(t, stairs, 2)

	assert.Equal(t, "Union Square", stations[0].Name)
	assert.Equal(t, "4", stations[0].Line)
	assert.Equal(t, "#00933C", stations[0].LineColor)
	assert.Equal(t, 2, stations[0].TotalStairs)

	// station without routes falls back to the default color
	assert.Equal(t, "#000000", stations[1].LineColor)
	assert.Zero(t, stations[1].TotalStairs)

	assert.Equal(t, int64(101), stairs[0].StationID)
}
