package devserver

import "time"

// User is a surveyor account. Passwords are stored as bcrypt hashes.
type User struct {
	ID           int64  `gorm:"primaryKey"`
	Login        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
}

// StairReport is one accepted stairway submission.
type StairReport struct {
	ID                int64  `gorm:"primaryKey"`
	StairID           int64  `gorm:"index;not null"`
	UserID            int64  `gorm:"index;not null"`
	CodeIdentifiers   string // JSON array as submitted
	RouteStart        string
	PathEnd           string
	MaintenanceStatus string
	MaintenanceNote   string
	IsWorking         bool
	IsAligned         bool
	Notes             string
	CreatedAt         time.Time
}

// EvidenceImage is an uploaded attachment for a report. The blob itself
// is kept in the row; the dev server is not a production object store.
type EvidenceImage struct {
	ID        int64  `gorm:"primaryKey"`
	ReportID  int64  `gorm:"index;not null"`
	Key       string `gorm:"uniqueIndex;not null"`
	FileName  string
	Size      int
	Data      []byte
	CreatedAt time.Time
}

// Catalog rows, shaped after the relational catalog payload.

type Route struct {
	ID         int64 `gorm:"primaryKey"`
	ShortName  string
	RouteColor string
}

type Station struct {
	ID     int64 `gorm:"primaryKey"`
	Name   string
	Routes string // JSON array of route ids
}

type Stop struct {
	ID        int64 `gorm:"primaryKey"`
	StationID int64 `gorm:"index"`
}

type Stair struct {
	ID        int64 `gorm:"primaryKey"`
	StationID int64 `gorm:"index"`
	Number    int
}
