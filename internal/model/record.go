package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RecordStatus is the lifecycle state of a StationRecord.
type RecordStatus string

const (
	RecordInProgress RecordStatus = "in_progress"
	RecordCompleted  RecordStatus = "completed"
)

// StairStatus is the per-item state within a record.
type StairStatus string

const (
	StairPending   StairStatus = "pending"
	StairCompleted StairStatus = "completed"
)

// MaintenanceStatus classifies the observed condition of a stairway.
type MaintenanceStatus string

const (
	MaintenanceMinor    MaintenanceStatus = "minor"
	MaintenanceMajor    MaintenanceStatus = "major"
	MaintenanceCritical MaintenanceStatus = "critical"
	MaintenanceOther    MaintenanceStatus = "other"
)

// StationRecord is one full survey of a station. It exclusively owns its
// StairItems; once completed only the sync subsystem mutates it (per-item
// sync flags).
type StationRecord struct {
	ID          string
	StationID   int64
	StationName string
	Line        string

	Stairs []StairItem

	CompletedCount  int
	WorkingCount    int
	NotWorkingCount int

	Status      RecordStatus
	CreatedAt   time.Time
	CompletedAt *time.Time

	Synced   bool
	SyncedAt *time.Time
}

// StairItem is one stairway's inspection data. It has no identity outside
// its parent record; (RecordID, Number) addresses it everywhere.
type StairItem struct {
	StairID int64 // catalog stair reference
	Number  int   // ordinal within the station

	CodeIdentifiers []string
	NoCodes         bool // explicit "no codes present" flag

	RouteStart string
	PathEnd    string

	Maintenance     MaintenanceStatus
	MaintenanceNote string // required iff Maintenance == MaintenanceOther

	IsWorking *bool
	IsAligned *bool
	Notes     string

	PhotoIDs []int64
	Status   StairStatus

	Synced   bool
	SyncedAt *time.Time
	RemoteID *int64 // server-assigned id, set on successful upload
}

// Image is a binary attachment owned by exactly one stair item, keyed by
// (record id, stair number, position). Its sync sub-state is independent
// from the owning item's.
type Image struct {
	ID       int64
	RecordID string
	Number   int
	Position int

	FileName    string
	ContentType string
	Data        []byte

	CreatedAt time.Time

	Synced    bool
	SyncedAt  *time.Time
	RemoteKey string
	RemoteURL string
}

// ImageFile is a not-yet-persisted attachment handed to the store.
type ImageFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// QueueEntry points at an entity awaiting upload.
type QueueEntry struct {
	ID         int64
	Type       string // "station" for now
	EntityID   string
	Priority   int
	EnqueuedAt time.Time
}

// EntityStation is the only queue entity type today.
const EntityStation = "station"

// NewRecordID generates a locally-unique record id: base36 millisecond
// timestamp plus a random suffix. Collision probability is negligible at
// field-survey scale.
func NewRecordID() string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	return ts + suffix
}

// ValidationResult is the outcome of validating a stair item.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Validate checks the required fields for completing a stair item:
// at least one identifier code (unless explicitly flagged no-codes), route
// start and path end, the operational flag, a maintenance status (with a
// note when "other"), the alignment flag, and at least one photo when the
// stairway is not working.
func (s *StairItem) Validate() ValidationResult {
	var errs []string

	if len(s.CodeIdentifiers) == 0 && !s.NoCodes {
		errs = append(errs, "at least one identifier code is required")
	}
	if s.RouteStart == "" {
		errs = append(errs, "route start is required")
	}
	if s.PathEnd == "" {
		errs = append(errs, "path end is required")
	}
	if s.IsWorking == nil {
		errs = append(errs, "operational state must be set")
	}
	switch s.Maintenance {
	case MaintenanceMinor, MaintenanceMajor, MaintenanceCritical:
	case MaintenanceOther:
		if strings.TrimSpace(s.MaintenanceNote) == "" {
			errs = append(errs, "maintenance note is required for status other")
		}
	default:
		errs = append(errs, "maintenance status must be selected")
	}
	if s.IsAligned == nil {
		errs = append(errs, "alignment state must be set")
	}
	// Hard invariant: a non-working stairway needs photographic evidence.
	if s.IsWorking != nil && !*s.IsWorking && len(s.PhotoIDs) == 0 {
		errs = append(errs, "at least one photo is required when the stairway is not working")
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// UnsyncedStairs returns pointers to the record's stairs that still await
// upload. Only completed items are eligible.
func (r *StationRecord) UnsyncedStairs() []*StairItem {
	var out []*StairItem
	for i := range r.Stairs {
		s := &r.Stairs[i]
		if !s.Synced && s.Status == StairCompleted {
			out = append(out, s)
		}
	}
	return out
}

// RecomputeCounts refreshes the aggregate counters from the stair list.
func (r *StationRecord) RecomputeCounts() {
	r.CompletedCount, r.WorkingCount, r.NotWorkingCount = 0, 0, 0
	for i := range r.Stairs {
		s := &r.Stairs[i]
		if s.Status != StairCompleted {
			continue
		}
		r.CompletedCount++
		if s.IsWorking != nil && *s.IsWorking {
			r.WorkingCount++
		} else if s.IsWorking != nil {
			r.NotWorkingCount++
		}
	}
}
