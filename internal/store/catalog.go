package store

import (
	"database/sql"
	"errors"
	"fmt"

	"stairsync/internal/errs"
	"stairsync/internal/model"
)

// ReplaceCatalog atomically swaps the cached station catalog for a fresh
// server snapshot.
func (s *Store) ReplaceCatalog(stations []model.Station, stairs []model.CatalogStair) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errs.Storage("begin replace catalog", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM stations`); err != nil {
		return errs.Storage("clear stations", err)
	}
	if _, err := tx.Exec(`DELETE FROM catalog_stairs`); err != nil {
		return errs.Storage("clear catalog stairs", err)
	}
	for _, st := range stations {
		if _, err := tx.Exec(`INSERT INTO stations(station_id, name, line, line_color, total_stairs)
            VALUES(?, ?, ?, ?, ?)`,
			st.StationID, st.Name, st.Line, st.LineColor, st.TotalStairs); err != nil {
			return errs.Storage("insert station", err)
		}
	}
	for _, cs := range stairs {
		if _, err := tx.Exec(`INSERT INTO catalog_stairs(id, station_id, number)
            VALUES(?, ?, ?)`, cs.ID, cs.StationID, cs.Number); err != nil {
			return errs.Storage("insert catalog stair", err)
		}
	}
	return errs.Storage("commit replace catalog", tx.Commit())
}

// Catalog returns all cached stations ordered by name.
func (s *Store) Catalog() ([]model.Station, error) {
	rows, err := s.db.Query(`SELECT station_id, name, line, line_color, total_stairs
        FROM stations ORDER BY name ASC`)
	if err != nil {
		return nil, errs.Storage("query catalog", err)
	}
	defer rows.Close()

	var out []model.Station
	for rows.Next() {
		var st model.Station
		if err := rows.Scan(&st.StationID, &st.Name, &st.Line, &st.LineColor, &st.TotalStairs); err != nil {
			return nil, errs.Storage("scan station", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// StationByID looks up one cached station.
func (s *Store) StationByID(stationID int64) (*model.Station, error) {
	var st model.Station
	err := s.db.QueryRow(`SELECT station_id, name, line, line_color, total_stairs
        FROM stations WHERE station_id = ?`, stationID).
		Scan(&st.StationID, &st.Name, &st.Line, &st.LineColor, &st.TotalStairs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("station %d: %w", stationID, errs.ErrNotFound)
		}
		return nil, errs.Storage("get station", err)
	}
	return &st, nil
}

// StairsForStation returns the catalog stairways of one station in ordinal
// order.
func (s *Store) StairsForStation(stationID int64) ([]model.CatalogStair, error) {
	rows, err := s.db.Query(`SELECT id, station_id, number FROM catalog_stairs
        WHERE station_id = ? ORDER BY number ASC`, stationID)
	if err != nil {
		return nil, errs.Storage("query station stairs", err)
	}
	defer rows.Close()

	var out []model.CatalogStair
	for rows.Next() {
		var cs model.CatalogStair
		if err := rows.Scan(&cs.ID, &cs.StationID, &cs.Number); err != nil {
			return nil, errs.Storage("scan catalog stair", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}
