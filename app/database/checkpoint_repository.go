package database

import (
	"fmt"
	"time"
)

// CheckpointRepositoryImpl persists the correction sync high-water mark.
// The mark only advances after a correction batch is fully applied, so a
// crash mid-sync re-applies the same batch on the next run.
type CheckpointRepositoryImpl struct {
	db *DB
}

var _ CheckpointRepository = (*CheckpointRepositoryImpl)(nil)

func NewCheckpointRepository(db *DB) *CheckpointRepositoryImpl {
	return &CheckpointRepositoryImpl{db: db}
}

func (r *CheckpointRepositoryImpl) GetHighWaterMark() (int64, error) {
	var mark int64
	err := r.db.QueryRow(`SELECT high_water_mark FROM sync_checkpoint WHERE id = 1`).Scan(&mark)
	if err != nil {
		return 0, fmt.Errorf("failed to get high-water mark: %w", err)
	}
	return mark, nil
}

func (r *CheckpointRepositoryImpl) SetHighWaterMark(mark int64) error {
	_, err := r.db.Exec(`
		UPDATE sync_checkpoint SET high_water_mark = ?, updated_at = ? WHERE id = 1
	`, mark, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set high-water mark: %w", err)
	}
	return nil
}
