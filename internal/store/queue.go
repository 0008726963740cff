package store

import (
	"time"

	"stairsync/internal/errs"
	"stairsync/internal/model"
)

// SyncQueue returns pending queue entries in FIFO order by enqueue time.
func (s *Store) SyncQueue() ([]model.QueueEntry, error) {
	rows, err := s.db.Query(`SELECT id, entity_type, entity_id, priority, enqueued_at
        FROM sync_queue ORDER BY enqueued_at ASC, id ASC`)
	if err != nil {
		return nil, errs.Storage("query sync queue", err)
	}
	defer rows.Close()

	var out []model.QueueEntry
	for rows.Next() {
		var (
			e          model.QueueEntry
			enqueuedAt int64
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.EntityID, &e.Priority, &enqueuedAt); err != nil {
			return nil, errs.Storage("scan queue entry", err)
		}
		e.EnqueuedAt = time.Unix(enqueuedAt, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// QueueLength returns the number of pending queue entries.
func (s *Store) QueueLength() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sync_queue`).Scan(&n)
	return n, errs.Storage("count sync queue", err)
}

// RemoveFromQueue deletes one queue entry by id.
func (s *Store) RemoveFromQueue(entryID int64) error {
	_, err := s.db.Exec(`DELETE FROM sync_queue WHERE id = ?`, entryID)
	return errs.Storage("remove queue entry", err)
}
