package collect

import (
	"context"
	"errors"
	"fmt"

	"consensus-radar/internal/logger"
	"consensus-radar/internal/storage"
)

// ErrEmptyRecord marks a fetched row carrying neither revenue nor
// operating profit. Such rows are logged and skipped, never stored.
var ErrEmptyRecord = errors.New("collect: record has no revenue or operating profit")

// Writer reconciles fetched records into the append-only snapshot
// table. Each source's record stands on its own row; the writer never
// merges values across sources.
type Writer struct {
	snapshots *storage.SnapshotRepo
}

func NewWriter(snapshots *storage.SnapshotRepo) *Writer {
	return &Writer{snapshots: snapshots}
}

// Write upserts one normalized record by its
// (company, fiscal year, snapshot date, source) key.
func (w *Writer) Write(ctx context.Context, rec *storage.FinancialSnapshotRecord) error {
	if rec.Revenue == nil && rec.OperatingProfit == nil {
		logger.Warn(ctx, "Dropping snapshot record without revenue or operating profit",
			"company", rec.CompanyCode, "year", rec.FiscalYear, "source", rec.DataSource)
		return ErrEmptyRecord
	}
	if err := w.snapshots.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
