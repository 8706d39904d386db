package storage

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SnapshotRepo persists FinancialSnapshotRecord rows with
// upsert-by-key semantics on (company, fiscal year, snapshot date,
// source). Sources are never merged; each keeps its own row.
type SnapshotRepo struct {
	db *gorm.DB
}

func NewSnapshotRepo(db *gorm.DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// Upsert inserts the record or, when the composite key already exists,
// overwrites the value columns. Re-running a collection for the same
// date therefore replaces rows instead of appending.
func (r *SnapshotRepo) Upsert(ctx context.Context, rec *FinancialSnapshotRecord) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "company_code"},
			{Name: "fiscal_year"},
			{Name: "snapshot_date"},
			{Name: "data_source"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"is_estimate", "revenue", "operating_profit", "net_income",
			"eps", "per", "roe", "updated_at",
		}),
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("upsert snapshot %s/%d/%s/%s: %w",
			rec.CompanyCode, rec.FiscalYear, rec.SnapshotDate, rec.DataSource, err)
	}
	return nil
}

// ListForDate returns all records taken on the given snapshot date for
// the given fiscal years, across all sources.
func (r *SnapshotRepo) ListForDate(ctx context.Context, snapshotDate string, years []int) ([]FinancialSnapshotRecord, error) {
	var rows []FinancialSnapshotRecord
	err := r.db.WithContext(ctx).
		Where("snapshot_date = ? AND fiscal_year IN ?", snapshotDate, years).
		Order("company_code, data_source, fiscal_year").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list snapshots for %s: %w", snapshotDate, err)
	}
	return rows, nil
}

// ListForCompany returns every stored record for one company, newest
// snapshot first. Used by the read-back API.
func (r *SnapshotRepo) ListForCompany(ctx context.Context, code string) ([]FinancialSnapshotRecord, error) {
	var rows []FinancialSnapshotRecord
	err := r.db.WithContext(ctx).
		Where("company_code = ?", code).
		Order("snapshot_date DESC, fiscal_year, data_source").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list snapshots for company %s: %w", code, err)
	}
	return rows, nil
}
