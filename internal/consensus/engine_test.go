package consensus

import (
	"context"
	"path/filepath"
	"testing"

	"consensus-radar/internal/storage"
)

type engineFixture struct {
	snaps   *storage.SnapshotRepo
	metrics *storage.MetricRepo
	diffs   *storage.DiffLogRepo
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	db, err := storage.Open("sqlite", filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return &engineFixture{
		snaps:   storage.NewSnapshotRepo(db),
		metrics: storage.NewMetricRepo(db),
		diffs:   storage.NewDiffLogRepo(db),
	}
}

func (f *engineFixture) engine(cfg Config) *Engine {
	return NewEngine(f.snaps, f.metrics, f.diffs, cfg)
}

func (f *engineFixture) seedSnapshot(t *testing.T, code string, year int, date, src string, eps, per *float64) {
	t.Helper()
	rev := 1000.0
	err := f.snaps.Upsert(context.Background(), &storage.FinancialSnapshotRecord{
		CompanyCode:  code,
		FiscalYear:   year,
		SnapshotDate: date,
		DataSource:   src,
		IsEstimate:   true,
		Revenue:      &rev,
		EPS:          eps,
		PER:          per,
	})
	if err != nil {
		t.Fatalf("Failed to seed snapshot: %v", err)
	}
}

func TestComputeWritesMetricRow(t *testing.T) {
	f := newEngineFixture(t)
	eng := f.engine(Config{SourcePriority: []string{"NAVER"}})
	ctx := context.Background()

	f.seedSnapshot(t, "005930", 2026, "2026-08-20", "NAVER", fp(100), fp(10))
	f.seedSnapshot(t, "005930", 2027, "2026-08-20", "NAVER", fp(150), fp(8))

	res, err := eng.Compute(ctx, "2026-08-20", 2026)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if res.Written != 1 {
		t.Fatalf("Expected 1 row written, got %d", res.Written)
	}

	rows, err := f.metrics.ListForDate(ctx, "2026-08-20", 2026)
	if err != nil {
		t.Fatalf("ListForDate failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 metric row, got %d", len(rows))
	}

	m := rows[0]
	if m.EPSGrowthPct == nil || *m.EPSGrowthPct != 50 {
		t.Errorf("Expected EPS growth 50, got %v", m.EPSGrowthPct)
	}
	if m.PERGrowthPct == nil || *m.PERGrowthPct != -20 {
		t.Errorf("Expected PER growth -20, got %v", m.PERGrowthPct)
	}
	if m.FVBScore == nil || *m.FVBScore != 2 {
		t.Errorf("Expected FVB 2, got %v", m.FVBScore)
	}
	if m.QuadPosition != storage.QuadGrowthDerating {
		t.Errorf("Expected Q2_GROWTH_DERATING, got %s", m.QuadPosition)
	}
	if m.QuadX == nil || *m.QuadX != -20 || m.QuadY == nil || *m.QuadY != 50 {
		t.Errorf("Expected quadrant coords (-20, 50), got (%v, %v)", m.QuadX, m.QuadY)
	}
	if m.CalcStatus != storage.CalcNormal {
		t.Errorf("Expected NORMAL calc status, got %s", m.CalcStatus)
	}
	if m.DataSource != "NAVER" {
		t.Errorf("Expected data source NAVER, got %s", m.DataSource)
	}
}

func TestComputeSkipsCompanyMissingYear(t *testing.T) {
	f := newEngineFixture(t)
	eng := f.engine(Config{})
	ctx := context.Background()

	// Only the first target year is present.
	f.seedSnapshot(t, "000660", 2026, "2026-08-20", "NAVER", fp(100), fp(10))

	res, err := eng.Compute(ctx, "2026-08-20", 2026)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if res.Written != 0 {
		t.Errorf("Expected 0 rows written, got %d", res.Written)
	}
	if res.SkippedMissingYear != 1 {
		t.Errorf("Expected 1 company skipped for missing year, got %d", res.SkippedMissingYear)
	}

	rows, _ := f.metrics.ListForDate(ctx, "2026-08-20", 2026)
	if len(rows) != 0 {
		t.Errorf("Expected no metric rows, got %d", len(rows))
	}
}

func TestComputeMissingGrowthPolicies(t *testing.T) {
	ctx := context.Background()

	// PER missing in year two: PER growth is nil, quadrant undecidable.
	seed := func(f *engineFixture) {
		f.seedSnapshot(t, "035420", 2026, "2026-08-20", "NAVER", fp(100), fp(10))
		f.seedSnapshot(t, "035420", 2027, "2026-08-20", "NAVER", fp(150), nil)
	}

	f := newEngineFixture(t)
	seed(f)
	res, err := f.engine(Config{MissingPolicy: PolicyExclude}).Compute(ctx, "2026-08-20", 2026)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if res.Written != 0 || res.SkippedMissingGrow != 1 {
		t.Errorf("Expected exclusion, got written=%d skipped=%d", res.Written, res.SkippedMissingGrow)
	}

	f = newEngineFixture(t)
	seed(f)
	res, err = f.engine(Config{MissingPolicy: PolicyDefaultQ2}).Compute(ctx, "2026-08-20", 2026)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if res.Written != 1 {
		t.Fatalf("Expected 1 row under default_q2 policy, got %d", res.Written)
	}
	rows, _ := f.metrics.ListForDate(ctx, "2026-08-20", 2026)
	if rows[0].QuadPosition != storage.QuadGrowthDerating {
		t.Errorf("Expected default Q2 quadrant, got %s", rows[0].QuadPosition)
	}
	if rows[0].PERGrowthPct != nil {
		t.Errorf("Expected nil PER growth to stay nil, got %v", *rows[0].PERGrowthPct)
	}
	// The defaulted quadrant must stay distinguishable from derived rows.
	if rows[0].CalcStatus != storage.CalcMissingData {
		t.Errorf("Expected MISSING_DATA calc status, got %s", rows[0].CalcStatus)
	}
}

func TestComputeSourcePreference(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	// Preferred source lacks EPS in year two; fallback source has both.
	f.seedSnapshot(t, "005380", 2026, "2026-08-20", "NAVER", fp(100), fp(10))
	f.seedSnapshot(t, "005380", 2027, "2026-08-20", "NAVER", nil, fp(8))
	f.seedSnapshot(t, "005380", 2026, "2026-08-20", "FNGUIDE", fp(90), fp(11))
	f.seedSnapshot(t, "005380", 2027, "2026-08-20", "FNGUIDE", fp(120), fp(9))

	eng := f.engine(Config{SourcePriority: []string{"NAVER", "FNGUIDE"}})
	res, err := eng.Compute(ctx, "2026-08-20", 2026)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if res.Written != 1 {
		t.Fatalf("Expected 1 row, got %d", res.Written)
	}

	rows, _ := f.metrics.ListForDate(ctx, "2026-08-20", 2026)
	if rows[0].DataSource != "FNGUIDE" {
		t.Errorf("Expected FNGUIDE to win with complete EPS, got %s", rows[0].DataSource)
	}
	if rows[0].EPSY1 == nil || *rows[0].EPSY1 != 90 {
		t.Errorf("Expected EPS Y1 90 from FNGUIDE, got %v", rows[0].EPSY1)
	}
}

func TestDeriveDiffsNilVersusZero(t *testing.T) {
	f := newEngineFixture(t)
	eng := f.engine(Config{TargetZoneFVBMin: 1.0})
	ctx := context.Background()

	// Two snapshots one day apart with identical figures; no older
	// snapshots exist for the weekly or monthly windows.
	for _, date := range []string{"2026-08-19", "2026-08-20"} {
		f.seedSnapshot(t, "005930", 2026, date, "NAVER", fp(100), fp(10))
		f.seedSnapshot(t, "005930", 2027, date, "NAVER", fp(150), fp(8))
		if _, err := eng.Compute(ctx, date, 2026); err != nil {
			t.Fatalf("Compute failed for %s: %v", date, err)
		}
	}

	res, err := eng.DeriveDiffs(ctx, "2026-08-20", 2026)
	if err != nil {
		t.Fatalf("DeriveDiffs failed: %v", err)
	}
	if res.Written != 1 {
		t.Fatalf("Expected 1 diff row, got %d", res.Written)
	}

	rows, err := f.diffs.ListForDate(ctx, "2026-08-20", 2026)
	if err != nil {
		t.Fatalf("ListForDate failed: %v", err)
	}
	d := rows[0]

	if d.CompareDate1D == nil || *d.CompareDate1D != "2026-08-19" {
		t.Errorf("Expected 1d compare date 2026-08-19, got %v", d.CompareDate1D)
	}
	if d.FVBDelta1D == nil || *d.FVBDelta1D != 0 {
		t.Errorf("Expected zero 1d FVB delta for identical scores, got %v", d.FVBDelta1D)
	}
	if d.FVBDelta7D != nil {
		t.Errorf("Expected nil 7d delta with no prior snapshot, got %v", *d.FVBDelta7D)
	}
	if d.CompareDate30D != nil {
		t.Errorf("Expected nil 30d compare date, got %v", *d.CompareDate30D)
	}
	if d.QuadrantChanged {
		t.Error("Expected no quadrant change")
	}
	if !d.IsTargetZone {
		t.Error("Expected target zone: Q2 with FVB 2 >= 1.0")
	}
}

func TestDeriveDiffsTurnaroundAndTags(t *testing.T) {
	f := newEngineFixture(t)
	eng := f.engine(Config{TargetZoneFVBMin: 1.0})
	ctx := context.Background()

	// Yesterday: decline quadrant. Today: Q2 growth with strong FVB.
	f.seedSnapshot(t, "000660", 2026, "2026-08-19", "NAVER", fp(100), fp(10))
	f.seedSnapshot(t, "000660", 2027, "2026-08-19", "NAVER", fp(80), fp(12))
	f.seedSnapshot(t, "000660", 2026, "2026-08-20", "NAVER", fp(100), fp(10))
	f.seedSnapshot(t, "000660", 2027, "2026-08-20", "NAVER", fp(150), fp(8))

	for _, date := range []string{"2026-08-19", "2026-08-20"} {
		if _, err := eng.Compute(ctx, date, 2026); err != nil {
			t.Fatalf("Compute failed for %s: %v", date, err)
		}
	}
	if _, err := eng.DeriveDiffs(ctx, "2026-08-20", 2026); err != nil {
		t.Fatalf("DeriveDiffs failed: %v", err)
	}

	rows, _ := f.diffs.ListForDate(ctx, "2026-08-20", 2026)
	d := rows[0]

	if !d.QuadrantChanged {
		t.Error("Expected quadrant change")
	}
	if !d.IsTurnaround {
		t.Error("Expected turnaround: decline quadrant to growth quadrant")
	}
	if !d.IsTargetZone {
		t.Error("Expected target zone")
	}
	want := "QUAD_CHANGE,TURNAROUND,TARGET_ZONE_ENTRY,TARGET_ZONE"
	if d.SignalTags != want {
		t.Errorf("Expected tags %q, got %q", want, d.SignalTags)
	}
}

func TestDeriveDiffsWeekendLookback(t *testing.T) {
	f := newEngineFixture(t)
	eng := f.engine(Config{})
	ctx := context.Background()

	// Friday snapshot, then Monday: the daily window must reach back
	// past the weekend.
	f.seedSnapshot(t, "005930", 2026, "2026-08-14", "NAVER", fp(100), fp(10))
	f.seedSnapshot(t, "005930", 2027, "2026-08-14", "NAVER", fp(150), fp(8))
	f.seedSnapshot(t, "005930", 2026, "2026-08-17", "NAVER", fp(100), fp(10))
	f.seedSnapshot(t, "005930", 2027, "2026-08-17", "NAVER", fp(160), fp(8))

	for _, date := range []string{"2026-08-14", "2026-08-17"} {
		if _, err := eng.Compute(ctx, date, 2026); err != nil {
			t.Fatalf("Compute failed for %s: %v", date, err)
		}
	}
	if _, err := eng.DeriveDiffs(ctx, "2026-08-17", 2026); err != nil {
		t.Fatalf("DeriveDiffs failed: %v", err)
	}

	rows, _ := f.diffs.ListForDate(ctx, "2026-08-17", 2026)
	if rows[0].CompareDate1D == nil || *rows[0].CompareDate1D != "2026-08-14" {
		t.Errorf("Expected daily comparison against 2026-08-14, got %v", rows[0].CompareDate1D)
	}
}
