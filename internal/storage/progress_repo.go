package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ProgressRepo persists CollectionProgress rows. Counter updates are
// additive at the SQL level so independent invocations of the same
// session never read-modify-write each other's counts.
type ProgressRepo struct {
	db *gorm.DB
}

func NewProgressRepo(db *gorm.DB) *ProgressRepo {
	return &ProgressRepo{db: db}
}

func (r *ProgressRepo) Create(ctx context.Context, p *CollectionProgress) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create progress %s: %w", p.SessionID, err)
	}
	return nil
}

// Get returns the progress row, or (nil, nil) when the session does
// not exist.
func (r *ProgressRepo) Get(ctx context.Context, sessionID string) (*CollectionProgress, error) {
	var row CollectionProgress
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get progress %s: %w", sessionID, err)
	}
	return &row, nil
}

// AddCounts adds the given deltas to the session counters. current is
// an absolute position (re-running a chunk must not advance it twice);
// pass a negative current to leave it untouched. Returns the number of
// rows updated so callers can detect a missing session.
func (r *ProgressRepo) AddCounts(ctx context.Context, sessionID string, success, errCount, skip, current int, message string) (int64, error) {
	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if success != 0 {
		updates["success_count"] = gorm.Expr("success_count + ?", success)
	}
	if errCount != 0 {
		updates["error_count"] = gorm.Expr("error_count + ?", errCount)
	}
	if skip != 0 {
		updates["skip_count"] = gorm.Expr("skip_count + ?", skip)
	}
	if current >= 0 {
		updates["current_count"] = current
	}
	if message != "" {
		updates["message"] = message
	}

	res := r.db.WithContext(ctx).
		Model(&CollectionProgress{}).
		Where("session_id = ?", sessionID).
		Updates(updates)
	if res.Error != nil {
		return 0, fmt.Errorf("update progress %s: %w", sessionID, res.Error)
	}
	return res.RowsAffected, nil
}

// SetStatus transitions the session status and optionally stamps the
// finish time.
func (r *ProgressRepo) SetStatus(ctx context.Context, sessionID string, status ProgressStatus, finishedAt *time.Time, message string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if finishedAt != nil {
		updates["finished_at"] = finishedAt
	}
	if message != "" {
		updates["message"] = message
	}
	err := r.db.WithContext(ctx).
		Model(&CollectionProgress{}).
		Where("session_id = ?", sessionID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("set progress %s status %s: %w", sessionID, status, err)
	}
	return nil
}

// SaveBlob stores the serialized work list for the session.
func (r *ProgressRepo) SaveBlob(ctx context.Context, sessionID, blob string) error {
	err := r.db.WithContext(ctx).
		Model(&CollectionProgress{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{"current_item_blob": blob, "updated_at": time.Now()}).Error
	if err != nil {
		return fmt.Errorf("save work list for %s: %w", sessionID, err)
	}
	return nil
}
