package storage

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CompanyRepo manages the collection universe.
type CompanyRepo struct {
	db *gorm.DB
}

func NewCompanyRepo(db *gorm.DB) *CompanyRepo {
	return &CompanyRepo{db: db}
}

// UpsertAll inserts or refreshes companies by code. Market
// reclassification (KOSPI <-> KOSDAQ) happens through this path.
func (r *CompanyRepo) UpsertAll(ctx context.Context, refs []CompanyRef) error {
	if len(refs) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "exchange", "market", "updated_at"}),
	}).Create(&refs).Error
	if err != nil {
		return fmt.Errorf("upsert %d companies: %w", len(refs), err)
	}
	return nil
}

// ListCodes returns every company code in stable order. The
// orchestrator snapshots this list once per session.
func (r *CompanyRepo) ListCodes(ctx context.Context) ([]string, error) {
	var codes []string
	err := r.db.WithContext(ctx).
		Model(&CompanyRef{}).
		Order("code").
		Pluck("code", &codes).Error
	if err != nil {
		return nil, fmt.Errorf("list company codes: %w", err)
	}
	return codes, nil
}
