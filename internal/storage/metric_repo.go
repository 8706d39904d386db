package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MetricRepo persists derived ConsensusMetric rows keyed by
// (snapshot_date, ticker, target_y1, target_y2). A recompute replaces
// the full row.
type MetricRepo struct {
	db *gorm.DB
}

func NewMetricRepo(db *gorm.DB) *MetricRepo {
	return &MetricRepo{db: db}
}

func (r *MetricRepo) Upsert(ctx context.Context, m *ConsensusMetric) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "snapshot_date"},
			{Name: "ticker"},
			{Name: "target_y1"},
			{Name: "target_y2"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"eps_y1", "eps_y2", "per_y1", "per_y2",
			"eps_growth_pct", "per_growth_pct",
			"fvb_score", "hgs_score", "rrs_score",
			"quad_position", "quad_x", "quad_y",
			"calc_status", "data_source", "updated_at",
		}),
	}).Create(m).Error
	if err != nil {
		return fmt.Errorf("upsert metric %s/%s: %w", m.SnapshotDate, m.Ticker, err)
	}
	return nil
}

// ListForDate returns all metric rows for one snapshot date and target
// year pair.
func (r *MetricRepo) ListForDate(ctx context.Context, snapshotDate string, y1 int) ([]ConsensusMetric, error) {
	var rows []ConsensusMetric
	err := r.db.WithContext(ctx).
		Where("snapshot_date = ? AND target_y1 = ?", snapshotDate, y1).
		Order("ticker").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list metrics for %s: %w", snapshotDate, err)
	}
	return rows, nil
}

// ClosestAtOrBefore finds the most recent metric row for the same
// ticker and year pair with upper >= snapshot_date >= floor. Snapshot
// dates are ISO strings, so lexicographic comparison is date order.
// Returns (nil, nil) when no row falls in the window.
func (r *MetricRepo) ClosestAtOrBefore(ctx context.Context, ticker string, y1, y2 int, upper, floor string) (*ConsensusMetric, error) {
	var row ConsensusMetric
	err := r.db.WithContext(ctx).
		Where("ticker = ? AND target_y1 = ? AND target_y2 = ? AND snapshot_date <= ? AND snapshot_date >= ?",
			ticker, y1, y2, upper, floor).
		Order("snapshot_date DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("closest metric for %s before %s: %w", ticker, upper, err)
	}
	return &row, nil
}

// DiffLogRepo persists ConsensusDiffLog rows, one per metric row and
// snapshot.
type DiffLogRepo struct {
	db *gorm.DB
}

func NewDiffLogRepo(db *gorm.DB) *DiffLogRepo {
	return &DiffLogRepo{db: db}
}

func (r *DiffLogRepo) Upsert(ctx context.Context, d *ConsensusDiffLog) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "snapshot_date"},
			{Name: "ticker"},
			{Name: "target_y1"},
			{Name: "target_y2"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"compare_date_1d", "compare_date_7d", "compare_date_30d",
			"fvb_delta_1d", "hgs_delta_1d", "rrs_delta_1d",
			"fvb_delta_7d", "hgs_delta_7d", "rrs_delta_7d",
			"fvb_delta_30d", "hgs_delta_30d", "rrs_delta_30d",
			"quadrant_changed", "is_target_zone", "is_turnaround",
			"signal_tags", "updated_at",
		}),
	}).Create(d).Error
	if err != nil {
		return fmt.Errorf("upsert diff log %s/%s: %w", d.SnapshotDate, d.Ticker, err)
	}
	return nil
}

// ListForDate returns all diff rows for one snapshot date and target
// year pair.
func (r *DiffLogRepo) ListForDate(ctx context.Context, snapshotDate string, y1 int) ([]ConsensusDiffLog, error) {
	var rows []ConsensusDiffLog
	err := r.db.WithContext(ctx).
		Where("snapshot_date = ? AND target_y1 = ?", snapshotDate, y1).
		Order("ticker").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list diff logs for %s: %w", snapshotDate, err)
	}
	return rows, nil
}
