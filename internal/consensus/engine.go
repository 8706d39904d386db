package consensus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"consensus-radar/internal/logger"
	"consensus-radar/internal/storage"
)

// MissingPolicy decides what happens to a company whose growth inputs
// are incomplete (EPS or PER missing for a target year).
type MissingPolicy string

const (
	// PolicyExclude drops the company from quadrant assignment
	// entirely: no metric row is written.
	PolicyExclude MissingPolicy = "exclude"
	// PolicyDefaultQ2 writes the row with the Q2 quadrant, matching
	// the historical behavior of the original dashboards.
	PolicyDefaultQ2 MissingPolicy = "default_q2"
)

// Config tunes the metric engine.
type Config struct {
	MissingPolicy    MissingPolicy
	TargetZoneFVBMin float64
	SourcePriority   []string
}

// Engine derives consensus metrics and diff logs from the snapshot
// table for one snapshot date and target-year pair.
type Engine struct {
	snaps   *storage.SnapshotRepo
	metrics *storage.MetricRepo
	diffs   *storage.DiffLogRepo
	cfg     Config
}

func NewEngine(snaps *storage.SnapshotRepo, metrics *storage.MetricRepo, diffs *storage.DiffLogRepo, cfg Config) *Engine {
	if cfg.MissingPolicy == "" {
		cfg.MissingPolicy = PolicyExclude
	}
	return &Engine{snaps: snaps, metrics: metrics, diffs: diffs, cfg: cfg}
}

// ComputeResult summarizes one metric computation run.
type ComputeResult struct {
	SnapshotDate       string `json:"snapshot_date"`
	TargetY1           int    `json:"target_y1"`
	TargetY2           int    `json:"target_y2"`
	Written            int    `json:"written"`
	SkippedMissingYear int    `json:"skipped_missing_year"`
	SkippedMissingGrow int    `json:"skipped_missing_growth"`
}

// Compute upserts one ConsensusMetric row per company holding snapshot
// rows for both target years at the given date. Companies missing a
// year are skipped entirely; no placeholder row is written.
func (e *Engine) Compute(ctx context.Context, snapshotDate string, y1 int) (*ComputeResult, error) {
	y2 := y1 + 1
	timer := logger.StartOperation(ctx, "consensus.compute",
		"snapshot_date", snapshotDate, "target_y1", y1, "target_y2", y2)
	ctx = timer.GetContext()

	rows, err := e.snaps.ListForDate(ctx, snapshotDate, []int{y1, y2})
	if err != nil {
		timer.EndWithError(err)
		return nil, err
	}

	byCompany := groupSnapshots(rows)
	res := &ComputeResult{SnapshotDate: snapshotDate, TargetY1: y1, TargetY2: y2}

	codes := make([]string, 0, len(byCompany))
	for code := range byCompany {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, code := range codes {
		recY1, recY2, src := e.pickSource(byCompany[code], y1, y2)
		if recY1 == nil || recY2 == nil {
			res.SkippedMissingYear++
			continue
		}

		epsGrowth := growthPct(recY1.EPS, recY2.EPS)
		perGrowth := growthPct(recY1.PER, recY2.PER)

		calcStatus := storage.CalcNormal
		quad, ok := classify(epsGrowth, perGrowth)
		if !ok {
			if e.cfg.MissingPolicy != PolicyDefaultQ2 {
				res.SkippedMissingGrow++
				continue
			}
			quad = storage.QuadGrowthDerating
			calcStatus = storage.CalcMissingData
		}

		m := &storage.ConsensusMetric{
			SnapshotDate: snapshotDate,
			Ticker:       code,
			TargetY1:     y1,
			TargetY2:     y2,
			EPSY1:        recY1.EPS,
			EPSY2:        recY2.EPS,
			PERY1:        recY1.PER,
			PERY2:        recY2.PER,
			EPSGrowthPct: epsGrowth,
			PERGrowthPct: perGrowth,
			FVBScore:     fvbScore(epsGrowth, perGrowth),
			HGSScore:     hgsScore(epsGrowth),
			RRSScore:     rrsScore(perGrowth),
			QuadPosition: quad,
			QuadX:        perGrowth,
			QuadY:        epsGrowth,
			CalcStatus:   calcStatus,
			DataSource:   src,
		}
		if err := e.metrics.Upsert(ctx, m); err != nil {
			timer.EndWithError(err)
			return nil, err
		}
		res.Written++
	}

	logger.MetricRun(ctx, snapshotDate, "compute_done",
		"written", res.Written,
		"skipped_missing_year", res.SkippedMissingYear,
		"skipped_missing_growth", res.SkippedMissingGrow)
	timer.End("written", res.Written)
	return res, nil
}

// groupSnapshots indexes rows by company, then source, then year.
func groupSnapshots(rows []storage.FinancialSnapshotRecord) map[string]map[string]map[int]*storage.FinancialSnapshotRecord {
	out := make(map[string]map[string]map[int]*storage.FinancialSnapshotRecord)
	for i := range rows {
		rec := &rows[i]
		bySource, ok := out[rec.CompanyCode]
		if !ok {
			bySource = make(map[string]map[int]*storage.FinancialSnapshotRecord)
			out[rec.CompanyCode] = bySource
		}
		byYear, ok := bySource[rec.DataSource]
		if !ok {
			byYear = make(map[int]*storage.FinancialSnapshotRecord)
			bySource[rec.DataSource] = byYear
		}
		byYear[rec.FiscalYear] = rec
	}
	return out
}

// pickSource selects which source's rows feed the metric. Sources are
// independent rows in the store; the read-side preference is: first
// source, in configured priority order, holding both years with
// non-nil EPS, else the first source holding both years at all.
func (e *Engine) pickSource(bySource map[string]map[int]*storage.FinancialSnapshotRecord, y1, y2 int) (*storage.FinancialSnapshotRecord, *storage.FinancialSnapshotRecord, string) {
	names := make([]string, 0, len(bySource))
	for name := range bySource {
		names = append(names, name)
	}
	sort.Strings(names)

	ordered := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, p := range e.cfg.SourcePriority {
		if _, ok := bySource[p]; ok && !seen[p] {
			ordered = append(ordered, p)
			seen[p] = true
		}
	}
	for _, n := range names {
		if !seen[n] {
			ordered = append(ordered, n)
		}
	}

	var fbY1, fbY2 *storage.FinancialSnapshotRecord
	var fbSrc string
	for _, name := range ordered {
		byYear := bySource[name]
		r1, r2 := byYear[y1], byYear[y2]
		if r1 == nil || r2 == nil {
			continue
		}
		if r1.EPS != nil && r2.EPS != nil {
			return r1, r2, name
		}
		if fbY1 == nil {
			fbY1, fbY2, fbSrc = r1, r2, name
		}
	}
	return fbY1, fbY2, fbSrc
}

// DiffResult summarizes one diff-log derivation run.
type DiffResult struct {
	SnapshotDate string `json:"snapshot_date"`
	TargetY1     int    `json:"target_y1"`
	Written      int    `json:"written"`
}

// lookback pairs a delta window with its search bounds: the comparison
// row is the closest one at or before (date - upperDays), no older
// than (date - floorDays). The daily window tolerates a few calendar
// days so weekends and holidays still find the prior trading snapshot.
type lookback struct {
	name      string
	upperDays int
	floorDays int
}

var lookbacks = []lookback{
	{name: "1d", upperDays: 1, floorDays: 5},
	{name: "7d", upperDays: 7, floorDays: 14},
	{name: "30d", upperDays: 30, floorDays: 45},
}

// DeriveDiffs writes one ConsensusDiffLog per metric row at the given
// date, with score deltas against closest-preceding snapshots. Windows
// with no prior row keep nil deltas so "no data" never reads as "no
// change".
func (e *Engine) DeriveDiffs(ctx context.Context, snapshotDate string, y1 int) (*DiffResult, error) {
	y2 := y1 + 1
	timer := logger.StartOperation(ctx, "consensus.derive_diffs",
		"snapshot_date", snapshotDate, "target_y1", y1)
	ctx = timer.GetContext()

	rows, err := e.metrics.ListForDate(ctx, snapshotDate, y1)
	if err != nil {
		timer.EndWithError(err)
		return nil, err
	}

	res := &DiffResult{SnapshotDate: snapshotDate, TargetY1: y1}
	for i := range rows {
		cur := &rows[i]
		d := &storage.ConsensusDiffLog{
			SnapshotDate: snapshotDate,
			Ticker:       cur.Ticker,
			TargetY1:     y1,
			TargetY2:     y2,
		}

		var daily *storage.ConsensusMetric
		for _, lb := range lookbacks {
			upper, uerr := addDays(snapshotDate, -lb.upperDays)
			floor, ferr := addDays(snapshotDate, -lb.floorDays)
			if uerr != nil || ferr != nil {
				timer.EndWithError(fmt.Errorf("consensus: bad snapshot date %q", snapshotDate))
				return nil, fmt.Errorf("consensus: bad snapshot date %q", snapshotDate)
			}
			prev, err := e.metrics.ClosestAtOrBefore(ctx, cur.Ticker, y1, y2, upper, floor)
			if err != nil {
				timer.EndWithError(err)
				return nil, err
			}
			if prev == nil {
				continue
			}
			switch lb.name {
			case "1d":
				d.CompareDate1D = &prev.SnapshotDate
				d.FVBDelta1D = deltaOf(cur.FVBScore, prev.FVBScore)
				d.HGSDelta1D = deltaOf(cur.HGSScore, prev.HGSScore)
				d.RRSDelta1D = deltaOf(cur.RRSScore, prev.RRSScore)
				daily = prev
			case "7d":
				d.CompareDate7D = &prev.SnapshotDate
				d.FVBDelta7D = deltaOf(cur.FVBScore, prev.FVBScore)
				d.HGSDelta7D = deltaOf(cur.HGSScore, prev.HGSScore)
				d.RRSDelta7D = deltaOf(cur.RRSScore, prev.RRSScore)
			case "30d":
				d.CompareDate30D = &prev.SnapshotDate
				d.FVBDelta30D = deltaOf(cur.FVBScore, prev.FVBScore)
				d.HGSDelta30D = deltaOf(cur.HGSScore, prev.HGSScore)
				d.RRSDelta30D = deltaOf(cur.RRSScore, prev.RRSScore)
			}
		}

		d.IsTargetZone = e.inTargetZone(cur)

		var tags []string
		if daily != nil {
			d.QuadrantChanged = daily.QuadPosition != cur.QuadPosition
			d.IsTurnaround = isDeclineQuad(daily.QuadPosition) && isGrowthQuad(cur.QuadPosition)
			if d.QuadrantChanged {
				tags = append(tags, "QUAD_CHANGE")
			}
			if d.IsTurnaround {
				tags = append(tags, "TURNAROUND")
			}
			if d.IsTargetZone && !e.inTargetZone(daily) {
				tags = append(tags, "TARGET_ZONE_ENTRY")
			}
		}
		if d.IsTargetZone {
			tags = append(tags, "TARGET_ZONE")
		}
		d.SignalTags = strings.Join(tags, ",")

		if err := e.diffs.Upsert(ctx, d); err != nil {
			timer.EndWithError(err)
			return nil, err
		}
		res.Written++
	}

	logger.MetricRun(ctx, snapshotDate, "diffs_done", "written", res.Written)
	timer.End("written", res.Written)
	return res, nil
}

// inTargetZone marks the buy-watch zone: growth without multiple
// expansion and a strong fair-value bias.
func (e *Engine) inTargetZone(m *storage.ConsensusMetric) bool {
	return m.QuadPosition == storage.QuadGrowthDerating &&
		m.FVBScore != nil && *m.FVBScore >= e.cfg.TargetZoneFVBMin
}

func isGrowthQuad(q storage.Quadrant) bool {
	return q == storage.QuadGrowthRerating || q == storage.QuadGrowthDerating
}

func isDeclineQuad(q storage.Quadrant) bool {
	return q == storage.QuadDeclineRerating || q == storage.QuadDeclineDerating
}

func addDays(date string, n int) (string, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format("2006-01-02"), nil
}
