package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stairsync/internal/errs"
	"stairsync/internal/model"
)

func testCatalog() ([]model.Station, []model.CatalogStair) {
	stations := []model.Station{
		{StationID: 101, Name: "Union Square", Line: "4", LineColor: "#00933C", TotalStairs: 2},
		{StationID: 102, Name: "Grand Central", Line: "7", LineColor: "#B933AD", TotalStairs: 1},
	}
	stairs := []model.CatalogStair{
		{ID: 5001, StationID: 101, Number: 1},
		{ID: 5002, StationID: 101, Number: 2},
		{ID: 5003, StationID: 102, Number: 1},
	}
	return stations, stairs
}

func TestReplaceCatalog_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	stations, stairs := testCatalog()
	require.NoError(t, st.ReplaceCatalog(stations, stairs))

	got, err := st.Catalog()
	require.NoError(t, err)
	require.Len(t, got, 2)

	s, err := st.StationByID(101)
	require.NoError(t, err)
	assert.Equal(t, "Union Square", s.Name)
	assert.Equal(t, "#00933C", s.LineColor)

	ss, err := st.StairsForStation(101)
	require.NoError(t, err)
	require.Len(t, ss, 2)
	assert.Equal(t, 1, ss[0].Number)
	assert.Equal(t, 2, ss[1].Number)
}

func TestReplaceCatalog_ReplacesNotAppends(t *testing.T) {
	st := newTestStore(t)
	stations, stairs := testCatalog()
	require.NoError(t, st.ReplaceCatalog(stations, stairs))

	require.NoError(t, st.ReplaceCatalog(
		[]model.Station{{StationID: 201, Name: "Astor Place", Line: "6", TotalStairs: 1}},
		[]model.CatalogStair{{ID: 6001, StationID: 201, Number: 1}},
	))

	got, err := st.Catalog()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Astor Place", got[0].Name)

	_, err = st.StationByID(101)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestStationByID_NotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.StationByID(999)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
