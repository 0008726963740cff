package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"stairsync/internal/errs"
	"stairsync/internal/model"
)

// Store is the durable record store: the single component that touches
// on-device storage. Every mutating operation keeps the sync queue
// consistent (enqueue on create, remove on full-sync confirmation).
type Store struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

// Open opens (creating if necessary) the client database at path.
func Open(path string, log *zap.SugaredLogger) (*Store, error) {
	if path == "" {
		return nil, errors.New("empty client db path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, log: log}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate applies pending schema migrations, tracked via user_version.
func (s *Store) Migrate() error {
	var version int
	if err := s.db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return errs.Storage("read schema version", err)
	}
	for i := version; i < len(migrations); i++ {
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return errs.Storage(fmt.Sprintf("apply migration %d", i+1), err)
		}
		if _, err := s.db.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, i+1)); err != nil {
			return errs.Storage("bump schema version", err)
		}
	}
	return nil
}

// SaveRecord persists a record with its stair items and enqueues it for
// sync, all in one transaction. Id and creation timestamp are assigned
// when absent. Returns the persisted record.
func (s *Store) SaveRecord(rec *model.StationRecord) (*model.StationRecord, error) {
	if rec == nil {
		return nil, errs.Validation("nil record")
	}
	saved := *rec
	saved.Stairs = append([]model.StairItem(nil), rec.Stairs...)
	if saved.ID == "" {
		saved.ID = model.NewRecordID()
	}
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = time.Now()
	}
	if saved.Status == "" {
		saved.Status = model.RecordCompleted
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, errs.Storage("begin save record", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`INSERT INTO records(
        id, station_id, station_name, line, status,
        completed_count, working_count, not_working_count,
        created_at, completed_at, synced, synced_at
    ) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL)`,
		saved.ID, saved.StationID, saved.StationName, saved.Line, string(saved.Status),
		saved.CompletedCount, saved.WorkingCount, saved.NotWorkingCount,
		saved.CreatedAt.Unix(), nullUnix(saved.CompletedAt),
	)
	if err != nil {
		return nil, errs.Storage("insert record", err)
	}

	for i := range saved.Stairs {
		st := &saved.Stairs[i]
		codes, err := json.Marshal(st.CodeIdentifiers)
		if err != nil {
			return nil, errs.Storage("marshal codes", err)
		}
		_, err = tx.Exec(`INSERT INTO stairs(
            record_id, number, stair_id, code_identifiers, no_codes,
            route_start, path_end, maintenance, maintenance_note,
            is_working, is_aligned, notes, status, synced, synced_at, remote_id
        ) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			saved.ID, st.Number, st.StairID, string(codes), boolInt(st.NoCodes),
			st.RouteStart, st.PathEnd, string(st.Maintenance), st.MaintenanceNote,
			nullBool(st.IsWorking), nullBool(st.IsAligned), st.Notes, string(st.Status),
			boolInt(st.Synced), nullUnix(st.SyncedAt), nullInt(st.RemoteID),
		)
		if err != nil {
			return nil, errs.Storage("insert stair", err)
		}
	}

	// queue entry exists iff the record has at least one unsynced item
	if hasUnsynced(saved.Stairs) {
		_, err = tx.Exec(`INSERT INTO sync_queue(entity_type, entity_id, priority, enqueued_at)
	        VALUES(?, ?, 1, ?)`,
			model.EntityStation, saved.ID, time.Now().Unix())
		if err != nil {
			return nil, errs.Storage("enqueue record", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errs.Storage("commit save record", err)
	}
	return &saved, nil
}

// GetRecord loads one record with its stair items.
func (s *Store) GetRecord(id string) (*model.StationRecord, error) {
	row := s.db.QueryRow(`SELECT id, station_id, station_name, line, status,
        completed_count, working_count, not_working_count,
        created_at, completed_at, synced, synced_at
      FROM records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("record %q: %w", id, errs.ErrNotFound)
		}
		return nil, errs.Storage("get record", err)
	}
	if err := s.loadStairs(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// AllRecords returns every stored record, newest first. Read errors are
// logged and yield an empty set rather than failing the caller.
func (s *Store) AllRecords() []model.StationRecord {
	return s.queryRecords(`SELECT id, station_id, station_name, line, status,
        completed_count, working_count, not_working_count,
        created_at, completed_at, synced, synced_at
      FROM records ORDER BY created_at DESC`)
}

// UnsyncedRecords returns records that still contain at least one
// unsynced stair item.
func (s *Store) UnsyncedRecords() []model.StationRecord {
	return s.queryRecords(`SELECT id, station_id, station_name, line, status,
        completed_count, working_count, not_working_count,
        created_at, completed_at, synced, synced_at
      FROM records
      WHERE id IN (SELECT DISTINCT record_id FROM stairs WHERE synced = 0)
      ORDER BY created_at ASC`)
}

func (s *Store) queryRecords(query string, args ...any) []model.StationRecord {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		s.log.Errorw("query records failed", "error", err)
		return nil
	}
	defer rows.Close()

	var out []model.StationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			s.log.Errorw("scan record failed", "error", err)
			return nil
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		s.log.Errorw("iterate records failed", "error", err)
		return nil
	}
	for i := range out {
		if err := s.loadStairs(&out[i]); err != nil {
			s.log.Errorw("load stairs failed", "record", out[i].ID, "error", err)
			return nil
		}
	}
	return out
}

// UpdateRecord mutates individual columns of an already-stored record
// without rewriting unrelated fields.
func (s *Store) UpdateRecord(id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	cols := make([]string, 0, len(fields))
	for col := range fields {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	setParts := ""
	args := make([]any, 0, len(fields)+1)
	for i, col := range cols {
		if i > 0 {
			setParts += ", "
		}
		setParts += col + " = ?"
		args = append(args, fields[col])
	}
	args = append(args, id)

	res, err := s.db.Exec(fmt.Sprintf(`UPDATE records SET %s WHERE id = ?`, setParts), args...)
	if err != nil {
		return errs.Storage("update record", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record %q: %w", id, errs.ErrNotFound)
	}
	return nil
}

// MarkStairSynced records a successful metadata upload for one stair item.
func (s *Store) MarkStairSynced(recordID string, number int, remoteID int64) error {
	res, err := s.db.Exec(`UPDATE stairs SET synced = 1, synced_at = ?, remote_id = ?
        WHERE record_id = ? AND number = ?`,
		time.Now().Unix(), remoteID, recordID, number)
	if err != nil {
		return errs.Storage("mark stair synced", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("stair %q/%d: %w", recordID, number, errs.ErrNotFound)
	}
	return nil
}

// MarkRecordSynced flags the record fully synced and removes its queue
// entries, atomically.
func (s *Store) MarkRecordSynced(recordID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errs.Storage("begin mark synced", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`UPDATE records SET synced = 1, synced_at = ? WHERE id = ?`,
		time.Now().Unix(), recordID); err != nil {
		return errs.Storage("mark record synced", err)
	}
	if _, err := tx.Exec(`DELETE FROM sync_queue WHERE entity_id = ?`, recordID); err != nil {
		return errs.Storage("dequeue record", err)
	}
	if err := tx.Commit(); err != nil {
		return errs.Storage("commit mark synced", err)
	}
	return nil
}

// DeleteRecord removes a record with its stairs, images and any matching
// queue entries.
func (s *Store) DeleteRecord(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errs.Storage("begin delete record", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return errs.Storage("delete record", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record %q: %w", id, errs.ErrNotFound)
	}
	for _, q := range []string{
		`DELETE FROM stairs WHERE record_id = ?`,
		`DELETE FROM images WHERE record_id = ?`,
		`DELETE FROM sync_queue WHERE entity_id = ?`,
	} {
		if _, err := tx.Exec(q, id); err != nil {
			return errs.Storage("delete record children", err)
		}
	}
	return errs.Storage("commit delete record", tx.Commit())
}

// PurgeOlderThan deletes records that are fully synced AND older than the
// cutoff. Unsynced data is never deleted regardless of age. Returns the
// number of purged records.
func (s *Store) PurgeOlderThan(age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age).Unix()
	rows, err := s.db.Query(`SELECT id FROM records WHERE synced = 1 AND created_at < ?`, cutoff)
	if err != nil {
		return 0, errs.Storage("select purge candidates", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, errs.Storage("scan purge candidate", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, errs.Storage("iterate purge candidates", err)
	}

	for _, id := range ids {
		if err := s.DeleteRecord(id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

func (s *Store) loadStairs(rec *model.StationRecord) error {
	rows, err := s.db.Query(`SELECT number, stair_id, code_identifiers, no_codes,
        route_start, path_end, maintenance, maintenance_note,
        is_working, is_aligned, notes, status, synced, synced_at, remote_id
      FROM stairs WHERE record_id = ? ORDER BY number ASC`, rec.ID)
	if err != nil {
		return errs.Storage("load stairs", err)
	}
	defer rows.Close()

	rec.Stairs = nil
	for rows.Next() {
		var (
			st       model.StairItem
			codes    string
			noCodes  int
			working  sql.NullInt64
			aligned  sql.NullInt64
			syncedI  int
			syncedAt sql.NullInt64
			remoteID sql.NullInt64
			maint    string
			status   string
		)
		if err := rows.Scan(&st.Number, &st.StairID, &codes, &noCodes,
			&st.RouteStart, &st.PathEnd, &maint, &st.MaintenanceNote,
			&working, &aligned, &st.Notes, &status, &syncedI, &syncedAt, &remoteID); err != nil {
			return errs.Storage("scan stair", err)
		}
		if err := json.Unmarshal([]byte(codes), &st.CodeIdentifiers); err != nil {
			return errs.Storage("unmarshal codes", err)
		}
		st.NoCodes = noCodes != 0
		st.Maintenance = model.MaintenanceStatus(maint)
		st.Status = model.StairStatus(status)
		st.IsWorking = boolFromNull(working)
		st.IsAligned = boolFromNull(aligned)
		st.Synced = syncedI != 0
		st.SyncedAt = timeFromNull(syncedAt)
		if remoteID.Valid {
			v := remoteID.Int64
			st.RemoteID = &v
		}
		ids, err := s.imageIDs(rec.ID, st.Number)
		if err != nil {
			return err
		}
		st.PhotoIDs = ids
		rec.Stairs = append(rec.Stairs, st)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.StationRecord, error) {
	var (
		rec         model.StationRecord
		status      string
		createdAt   int64
		completedAt sql.NullInt64
		syncedI     int
		syncedAt    sql.NullInt64
	)
	err := row.Scan(&rec.ID, &rec.StationID, &rec.StationName, &rec.Line, &status,
		&rec.CompletedCount, &rec.WorkingCount, &rec.NotWorkingCount,
		&createdAt, &completedAt, &syncedI, &syncedAt)
	if err != nil {
		return nil, err
	}
	rec.Status = model.RecordStatus(status)
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.CompletedAt = timeFromNull(completedAt)
	rec.Synced = syncedI != 0
	rec.SyncedAt = timeFromNull(syncedAt)
	return &rec, nil
}

func hasUnsynced(stairs []model.StairItem) bool {
	for i := range stairs {
		if !stairs[i].Synced {
			return true
		}
	}
	return false
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullBool(b *bool) any {
	if b == nil {
		return nil
	}
	return boolInt(*b)
}

func boolFromNull(n sql.NullInt64) *bool {
	if !n.Valid {
		return nil
	}
	v := n.Int64 != 0
	return &v
}

func nullUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timeFromNull(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0)
	return &t
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
