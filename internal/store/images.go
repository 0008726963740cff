package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"stairsync/internal/errs"
	"stairsync/internal/model"
)

const (
	// MaxImagesPerStair bounds how many photos one stair item may carry.
	MaxImagesPerStair = 3
	// MaxImageBytes is the per-image size cap.
	MaxImageBytes = 5 << 20
)

// SaveImages persists the attachments of one stair item all-or-nothing and
// returns the assigned ids in selection order. Rejects oversized lists,
// non-image content and files above the size cap.
func (s *Store) SaveImages(recordID string, number int, files []model.ImageFile) ([]int64, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if len(files) > MaxImagesPerStair {
		return nil, errs.Validation(fmt.Sprintf("at most %d images per stairway", MaxImagesPerStair))
	}
	for _, f := range files {
		if !strings.HasPrefix(f.ContentType, "image/") {
			return nil, errs.Validation(fmt.Sprintf("%s: not an image (%s)", f.Name, f.ContentType))
		}
		if len(f.Data) > MaxImageBytes {
			return nil, errs.Validation(fmt.Sprintf("%s: exceeds %d MB", f.Name, MaxImageBytes>>20))
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, errs.Storage("begin save images", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()
	ids := make([]int64, 0, len(files))
	for i, f := range files {
		res, err := tx.Exec(`INSERT INTO images(
            record_id, number, position, file_name, content_type, data,
            created_at, synced, synced_at, remote_key, remote_url
        ) VALUES(?, ?, ?, ?, ?, ?, ?, 0, NULL, '', '')`,
			recordID, number, i, f.Name, f.ContentType, f.Data, now)
		if err != nil {
			return nil, errs.Storage("insert image", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, errs.Storage("image id", err)
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, errs.Storage("commit save images", err)
	}
	return ids, nil
}

// Images returns a stair item's attachments in original selection order.
func (s *Store) Images(recordID string, number int) ([]model.Image, error) {
	rows, err := s.db.Query(`SELECT id, record_id, number, position, file_name,
        content_type, data, created_at, synced, synced_at, remote_key, remote_url
      FROM images WHERE record_id = ? AND number = ? ORDER BY position ASC`,
		recordID, number)
	if err != nil {
		return nil, errs.Storage("query images", err)
	}
	defer rows.Close()

	var out []model.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, errs.Storage("scan image", err)
		}
		out = append(out, *img)
	}
	return out, rows.Err()
}

// MarkImageSynced records a successful image upload. Re-marking an
// already-synced image is a no-op success.
func (s *Store) MarkImageSynced(imageID int64, remoteKey, remoteURL string) error {
	_, err := s.db.Exec(`UPDATE images
        SET synced = 1, synced_at = ?, remote_key = ?, remote_url = ?
        WHERE id = ? AND synced = 0`,
		time.Now().Unix(), remoteKey, remoteURL, imageID)
	return errs.Storage("mark image synced", err)
}

func (s *Store) imageIDs(recordID string, number int) ([]int64, error) {
	rows, err := s.db.Query(`SELECT id FROM images
        WHERE record_id = ? AND number = ? ORDER BY position ASC`, recordID, number)
	if err != nil {
		return nil, errs.Storage("query image ids", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Storage("scan image id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanImage(row rowScanner) (*model.Image, error) {
	var (
		img       model.Image
		createdAt int64
		syncedI   int
		syncedAt  sql.NullInt64
	)
	err := row.Scan(&img.ID, &img.RecordID, &img.Number, &img.Position, &img.FileName,
		&img.ContentType, &img.Data, &createdAt, &syncedI, &syncedAt,
		&img.RemoteKey, &img.RemoteURL)
	if err != nil {
		return nil, err
	}
	img.CreatedAt = time.Unix(createdAt, 0)
	img.Synced = syncedI != 0
	img.SyncedAt = timeFromNull(syncedAt)
	return &img, nil
}
