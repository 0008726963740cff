package model

// Station is one entry of the cached station catalog, already flattened
// from the relational API payload (routes/stops/stations/stairs).
type Station struct {
	StationID   int64
	Name        string
	Line        string
	LineColor   string
	TotalStairs int
}

// CatalogStair is the static catalog entry for one physical stairway.
type CatalogStair struct {
	ID        int64
	StationID int64
	Number    int
}
