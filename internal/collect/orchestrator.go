package collect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"consensus-radar/internal/fetchpool"
	"consensus-radar/internal/logger"
	"consensus-radar/internal/progress"
	"consensus-radar/internal/source"
	"consensus-radar/internal/storage"
)

// sessionKind tags progress rows created by this orchestrator.
const sessionKind = "consensus"

// errSkipNoData classifies a company for which no source had a usable
// table this run. Counted as a skip, not an error.
var errSkipNoData = errors.New("collect: no data from any source")

// ChunkRequest is one invocation of the batched collection job. The
// external scheduler supplies total_batches and increments batch_index
// per call.
type ChunkRequest struct {
	SessionID    string `json:"session_id" binding:"required"`
	BatchIndex   int    `json:"batch_index"`
	TotalBatches int    `json:"total_batches" binding:"required"`
}

// ChunkResult reports what one invocation processed.
type ChunkResult struct {
	SessionID    string `json:"session_id"`
	BatchIndex   int    `json:"batch_index"`
	Processed    int    `json:"processed"`
	Success      int    `json:"success"`
	Errors       int    `json:"errors"`
	Skips        int    `json:"skips"`
	SnapshotDate string `json:"snapshot_date"`
	Completed    bool   `json:"completed"`
}

// UniverseProvider supplies the full company universe at session
// start. Backed by the company table in production.
type UniverseProvider interface {
	ListCodes(ctx context.Context) ([]string, error)
}

// RefreshFunc is the downstream collaborator notified when the final
// chunk completes. Invoked fire-and-forget; failures are logged, not
// retried, and never fail the session.
type RefreshFunc func(ctx context.Context, snapshotDate string) error

// Orchestrator drives one chunk of a collection session per
// invocation. Cross-invocation state lives entirely in the progress
// store, so any invocation can run in a fresh process.
type Orchestrator struct {
	chunkSize int
	sources   []source.Client
	pool      *fetchpool.Pool
	tracker   *progress.Tracker
	writer    *Writer
	universe  UniverseProvider
	refresh   RefreshFunc
	now       func() time.Time
}

func NewOrchestrator(
	chunkSize int,
	sources []source.Client,
	pool *fetchpool.Pool,
	tracker *progress.Tracker,
	writer *Writer,
	universe UniverseProvider,
	refresh RefreshFunc,
) *Orchestrator {
	return &Orchestrator{
		chunkSize: chunkSize,
		sources:   sources,
		pool:      pool,
		tracker:   tracker,
		writer:    writer,
		universe:  universe,
		refresh:   refresh,
		now:       time.Now,
	}
}

// RunChunk executes one batch of the session. Per-company failures are
// swallowed into counters; only session-level structural errors
// propagate to the caller, which is expected to retry the same batch
// index. Chunks are idempotent: a re-run re-upserts the same keys and
// re-sets the same absolute position.
func (o *Orchestrator) RunChunk(ctx context.Context, req ChunkRequest) (*ChunkResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	timer := logger.StartOperation(ctx, "collect.chunk",
		"session_id", req.SessionID, "batch_index", req.BatchIndex, "total_batches", req.TotalBatches)
	ctx = timer.GetContext()

	snapshotDate := o.now().Format("2006-01-02")

	if req.BatchIndex == 0 {
		if err := o.startSession(ctx, req); err != nil {
			timer.EndWithError(err)
			return nil, err
		}
	}

	codes, err := o.tracker.LoadWorkList(ctx, req.SessionID)
	if err != nil {
		timer.EndWithError(err)
		return nil, err
	}

	start := req.BatchIndex * o.chunkSize
	end := start + o.chunkSize
	if start > len(codes) {
		start = len(codes)
	}
	if end > len(codes) {
		end = len(codes)
	}
	slice := codes[start:end]

	results := o.pool.Run(ctx, slice, func(ctx context.Context, code string) error {
		return o.collectOne(ctx, code, snapshotDate)
	})

	res := &ChunkResult{
		SessionID:    req.SessionID,
		BatchIndex:   req.BatchIndex,
		Processed:    len(slice),
		SnapshotDate: snapshotDate,
	}
	for _, r := range results {
		switch {
		case r.Err == nil:
			res.Success++
		case errors.Is(r.Err, errSkipNoData):
			res.Skips++
		default:
			res.Errors++
			logger.Warn(ctx, "Company collection failed", "code", r.Item, "error", r.Err)
		}
	}

	// A retried chunk whose counters already landed (the prior run died
	// after Update, e.g. on Complete) must not re-add its deltas. The
	// absolute position tells us whether this slice was counted.
	row, err := o.tracker.Get(ctx, req.SessionID)
	if err != nil {
		timer.EndWithError(err)
		return nil, err
	}
	if row.CurrentCount < end || len(slice) == 0 {
		delta := progress.Delta{
			Success: res.Success,
			Error:   res.Errors,
			Skip:    res.Skips,
			Current: end,
			Message: fmt.Sprintf("batch %d/%d done", req.BatchIndex+1, req.TotalBatches),
		}
		if err := o.tracker.Update(ctx, req.SessionID, delta); err != nil {
			timer.EndWithError(err)
			return nil, err
		}
	} else {
		logger.Warn(ctx, "Chunk counters already recorded, skipping counter update",
			"session_id", req.SessionID, "batch_index", req.BatchIndex)
	}

	if req.BatchIndex == req.TotalBatches-1 {
		if err := o.tracker.Complete(ctx, req.SessionID); err != nil {
			timer.EndWithError(err)
			return nil, err
		}
		res.Completed = true
		o.fireRefresh(snapshotDate)
	}

	logger.Collection(ctx, req.SessionID, "chunk_done",
		"batch_index", req.BatchIndex,
		"processed", res.Processed,
		"success", res.Success,
		"errors", res.Errors,
		"skips", res.Skips,
		"completed", res.Completed)
	timer.End("processed", res.Processed)
	return res, nil
}

func validateRequest(req ChunkRequest) error {
	if req.SessionID == "" {
		return errors.New("collect: session_id is required")
	}
	if req.TotalBatches <= 0 {
		return fmt.Errorf("collect: total_batches must be positive, got %d", req.TotalBatches)
	}
	if req.BatchIndex < 0 || req.BatchIndex >= req.TotalBatches {
		return fmt.Errorf("collect: batch_index %d out of range [0,%d)", req.BatchIndex, req.TotalBatches)
	}
	return nil
}

// startSession resolves the universe, persists it as the session's
// immutable work list, and creates the progress row. A retried batch 0
// finds the session already initialized and resumes against the stored
// work list.
func (o *Orchestrator) startSession(ctx context.Context, req ChunkRequest) error {
	codes, err := o.universe.ListCodes(ctx)
	if err != nil {
		return fmt.Errorf("collect: resolve universe: %w", err)
	}
	if len(codes) == 0 {
		return errors.New("collect: universe is empty")
	}

	err = o.tracker.Initialize(ctx, req.SessionID, sessionKind, len(codes))
	if errors.Is(err, progress.ErrSessionExists) {
		logger.Warn(ctx, "Session already initialized, resuming batch 0", "session_id", req.SessionID)
		// The previous invocation may have died between creating the
		// session row and persisting the work list. Re-save it in that
		// case so the retry can actually proceed.
		row, gerr := o.tracker.Get(ctx, req.SessionID)
		if gerr != nil {
			return gerr
		}
		if row.CurrentItemBlob == "" {
			return o.tracker.SaveWorkList(ctx, req.SessionID, codes)
		}
		return nil
	}
	if err != nil {
		return err
	}
	return o.tracker.SaveWorkList(ctx, req.SessionID, codes)
}

// collectOne fetches one company from every configured source and
// hands the rows to the writer. The company counts as a success when
// at least one row was stored, as a skip when every source had no
// data, and as an error otherwise.
func (o *Orchestrator) collectOne(ctx context.Context, code, snapshotDate string) error {
	written := 0
	var lastErr error

	for _, src := range o.sources {
		figures, err := src.FetchAnnual(ctx, code)
		if err != nil {
			lastErr = err
			logger.Warn(ctx, "Source fetch failed", "source", src.Name(), "code", code, "error", err)
			continue
		}
		for _, f := range figures {
			rec := &storage.FinancialSnapshotRecord{
				CompanyCode:     code,
				FiscalYear:      f.FiscalYear,
				SnapshotDate:    snapshotDate,
				DataSource:      src.Name(),
				IsEstimate:      f.IsEstimate,
				Revenue:         f.Revenue,
				OperatingProfit: f.OperatingProfit,
				NetIncome:       f.NetIncome,
				EPS:             f.EPS,
				PER:             f.PER,
				ROE:             f.ROE,
			}
			if err := o.writer.Write(ctx, rec); err != nil {
				if errors.Is(err, ErrEmptyRecord) {
					continue
				}
				lastErr = err
				continue
			}
			written++
		}
	}

	if written > 0 {
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return errSkipNoData
}

func (o *Orchestrator) fireRefresh(snapshotDate string) {
	if o.refresh == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := o.refresh(ctx, snapshotDate); err != nil {
			logger.ErrorWithErr(ctx, "Downstream refresh failed", err, "snapshot_date", snapshotDate)
		}
	}()
}
