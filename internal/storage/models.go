package storage

import "time"

// Market identifies which board a company trades on.
type Market string

const (
	MarketKOSPI  Market = "KOSPI"
	MarketKOSDAQ Market = "KOSDAQ"
)

// ProgressStatus is the lifecycle state of a collection session.
type ProgressStatus string

const (
	StatusRunning  ProgressStatus = "RUNNING"
	StatusComplete ProgressStatus = "COMPLETE"
	StatusFailed   ProgressStatus = "FAILED"
)

// Quadrant classifies a company by the signs of EPS growth and PER growth
// between the two target fiscal years.
type Quadrant string

const (
	QuadGrowthRerating  Quadrant = "Q1_GROWTH_RERATING"
	QuadGrowthDerating  Quadrant = "Q2_GROWTH_DERATING"
	QuadDeclineRerating Quadrant = "Q3_DECLINE_RERATING"
	QuadDeclineDerating Quadrant = "Q4_DECLINE_DERATING"
)

// CalcStatus marks how a consensus metric row was derived.
type CalcStatus string

const (
	CalcNormal      CalcStatus = "NORMAL"
	CalcMissingData CalcStatus = "MISSING_DATA"
)

// CompanyRef is one listed company in the collection universe.
type CompanyRef struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Code      string    `json:"code" gorm:"uniqueIndex;size:16;not null"`
	Name      string    `json:"name" gorm:"size:128"`
	Exchange  string    `json:"exchange" gorm:"size:16"`
	Market    Market    `json:"market" gorm:"size:16"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CompanyRef) TableName() string { return "company_refs" }

// FinancialSnapshotRecord is the atomic unit of collected data: one
// provider's figures for one company and fiscal year, as seen on one
// snapshot date. Monetary amounts are stored in million KRW; providers
// reporting in other scales are normalized before the record reaches
// the store.
type FinancialSnapshotRecord struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	CompanyCode     string    `json:"company_code" gorm:"uniqueIndex:uidx_snapshot,priority:1;size:16;not null"`
	FiscalYear      int       `json:"fiscal_year" gorm:"uniqueIndex:uidx_snapshot,priority:2;not null"`
	SnapshotDate    string    `json:"snapshot_date" gorm:"uniqueIndex:uidx_snapshot,priority:3;size:10;not null"`
	DataSource      string    `json:"data_source" gorm:"uniqueIndex:uidx_snapshot,priority:4;size:16;not null"`
	IsEstimate      bool      `json:"is_estimate"`
	Revenue         *float64  `json:"revenue"`
	OperatingProfit *float64  `json:"operating_profit"`
	NetIncome       *float64  `json:"net_income"`
	EPS             *float64  `json:"eps"`
	PER             *float64  `json:"per"`
	ROE             *float64  `json:"roe"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (FinancialSnapshotRecord) TableName() string { return "financial_snapshots" }

// CollectionProgress is one row per collection session. The work-list
// blob written at session start is the resumability mechanism: every
// later chunk reads the universe back from it instead of recomputing.
type CollectionProgress struct {
	ID              uint           `json:"id" gorm:"primaryKey"`
	SessionID       string         `json:"session_id" gorm:"uniqueIndex;size:64;not null"`
	Kind            string         `json:"kind" gorm:"size:32"`
	TotalCount      int            `json:"total_count"`
	CurrentCount    int            `json:"current_count"`
	SuccessCount    int            `json:"success_count"`
	ErrorCount      int            `json:"error_count"`
	SkipCount       int            `json:"skip_count"`
	Status          ProgressStatus `json:"status" gorm:"size:16"`
	Message         string         `json:"message" gorm:"size:256"`
	CurrentItemBlob string         `json:"-" gorm:"type:text"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      *time.Time     `json:"finished_at,omitempty"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (CollectionProgress) TableName() string { return "collection_progress" }

// ConsensusMetric is the derived growth/re-rating row for one company
// at one snapshot date and target-year pair. Recomputes replace the
// whole row.
type ConsensusMetric struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	SnapshotDate string     `json:"snapshot_date" gorm:"uniqueIndex:uidx_metric,priority:1;size:10;not null"`
	Ticker       string     `json:"ticker" gorm:"uniqueIndex:uidx_metric,priority:2;size:16;not null"`
	TargetY1     int        `json:"target_y1" gorm:"uniqueIndex:uidx_metric,priority:3;not null"`
	TargetY2     int        `json:"target_y2" gorm:"uniqueIndex:uidx_metric,priority:4;not null"`
	EPSY1        *float64   `json:"eps_y1" gorm:"column:eps_y1"`
	EPSY2        *float64   `json:"eps_y2" gorm:"column:eps_y2"`
	PERY1        *float64   `json:"per_y1" gorm:"column:per_y1"`
	PERY2        *float64   `json:"per_y2" gorm:"column:per_y2"`
	EPSGrowthPct *float64   `json:"eps_growth_pct"`
	PERGrowthPct *float64   `json:"per_growth_pct"`
	FVBScore     *float64   `json:"fvb_score"`
	HGSScore     *float64   `json:"hgs_score"`
	RRSScore     *float64   `json:"rrs_score"`
	QuadPosition Quadrant   `json:"quad_position" gorm:"size:32"`
	QuadX        *float64   `json:"quad_x"`
	QuadY        *float64   `json:"quad_y"`
	CalcStatus   CalcStatus `json:"calc_status" gorm:"size:16"`
	DataSource   string     `json:"data_source" gorm:"size:16"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (ConsensusMetric) TableName() string { return "consensus_metrics" }

// ConsensusDiffLog holds score deltas against the closest preceding
// snapshot at daily/weekly/monthly lookbacks. Nil deltas mean "no
// prior snapshot in that window", never "no change".
type ConsensusDiffLog struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	SnapshotDate    string    `json:"snapshot_date" gorm:"uniqueIndex:uidx_diff,priority:1;size:10;not null"`
	Ticker          string    `json:"ticker" gorm:"uniqueIndex:uidx_diff,priority:2;size:16;not null"`
	TargetY1        int       `json:"target_y1" gorm:"uniqueIndex:uidx_diff,priority:3;not null"`
	TargetY2        int       `json:"target_y2" gorm:"uniqueIndex:uidx_diff,priority:4;not null"`
	CompareDate1D   *string   `json:"compare_date_1d" gorm:"column:compare_date_1d;size:10"`
	CompareDate7D   *string   `json:"compare_date_7d" gorm:"column:compare_date_7d;size:10"`
	CompareDate30D  *string   `json:"compare_date_30d" gorm:"column:compare_date_30d;size:10"`
	FVBDelta1D      *float64  `json:"fvb_delta_1d" gorm:"column:fvb_delta_1d"`
	HGSDelta1D      *float64  `json:"hgs_delta_1d" gorm:"column:hgs_delta_1d"`
	RRSDelta1D      *float64  `json:"rrs_delta_1d" gorm:"column:rrs_delta_1d"`
	FVBDelta7D      *float64  `json:"fvb_delta_7d" gorm:"column:fvb_delta_7d"`
	HGSDelta7D      *float64  `json:"hgs_delta_7d" gorm:"column:hgs_delta_7d"`
	RRSDelta7D      *float64  `json:"rrs_delta_7d" gorm:"column:rrs_delta_7d"`
	FVBDelta30D     *float64  `json:"fvb_delta_30d" gorm:"column:fvb_delta_30d"`
	HGSDelta30D     *float64  `json:"hgs_delta_30d" gorm:"column:hgs_delta_30d"`
	RRSDelta30D     *float64  `json:"rrs_delta_30d" gorm:"column:rrs_delta_30d"`
	QuadrantChanged bool      `json:"quadrant_changed"`
	IsTargetZone    bool      `json:"is_target_zone"`
	IsTurnaround    bool      `json:"is_turnaround"`
	SignalTags      string    `json:"signal_tags" gorm:"size:256"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (ConsensusDiffLog) TableName() string { return "consensus_diff_logs" }
