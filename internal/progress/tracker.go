package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"consensus-radar/internal/storage"
)

var (
	// ErrSessionExists is returned when initializing a session id that
	// already has a progress row.
	ErrSessionExists = errors.New("progress: session already exists")
	// ErrSessionNotFound is returned when reading or updating a session
	// that was never initialized.
	ErrSessionNotFound = errors.New("progress: session not found")
)

// Delta is one batch of counter updates. Counter fields are additive;
// Current is an absolute position (negative leaves it untouched).
type Delta struct {
	Success int
	Error   int
	Skip    int
	Current int
	Message string
}

// Tracker is the durable, session-keyed progress state shared by the
// orchestrator and status-polling callers.
type Tracker struct {
	repo *storage.ProgressRepo
	now  func() time.Time
}

func NewTracker(repo *storage.ProgressRepo) *Tracker {
	return &Tracker{repo: repo, now: time.Now}
}

// Initialize creates a RUNNING progress row for a new session.
func (t *Tracker) Initialize(ctx context.Context, sessionID, kind string, total int) error {
	existing, err := t.repo.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrSessionExists, sessionID)
	}

	return t.repo.Create(ctx, &storage.CollectionProgress{
		SessionID:  sessionID,
		Kind:       kind,
		TotalCount: total,
		Status:     storage.StatusRunning,
		StartedAt:  t.now(),
	})
}

// Update merges counter deltas into the session row. Safe to call from
// independent invocations of the same logical session.
func (t *Tracker) Update(ctx context.Context, sessionID string, d Delta) error {
	affected, err := t.repo.AddCounts(ctx, sessionID, d.Success, d.Error, d.Skip, d.Current, d.Message)
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}

// Complete transitions the session to COMPLETE. Idempotent.
func (t *Tracker) Complete(ctx context.Context, sessionID string) error {
	row, err := t.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if row.Status == storage.StatusComplete {
		return nil
	}
	finished := t.now()
	return t.repo.SetStatus(ctx, sessionID, storage.StatusComplete, &finished, "")
}

// Fail marks the session FAILED with a reason.
func (t *Tracker) Fail(ctx context.Context, sessionID, reason string) error {
	finished := t.now()
	return t.repo.SetStatus(ctx, sessionID, storage.StatusFailed, &finished, reason)
}

// Get returns the progress row for external polling.
func (t *Tracker) Get(ctx context.Context, sessionID string) (*storage.CollectionProgress, error) {
	row, err := t.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return row, nil
}

// SaveWorkList serializes the session's work list into the progress
// row. Written once at session start and treated as immutable for the
// session's lifetime.
func (t *Tracker) SaveWorkList(ctx context.Context, sessionID string, codes []string) error {
	blob, err := json.Marshal(codes)
	if err != nil {
		return fmt.Errorf("serialize work list: %w", err)
	}
	return t.repo.SaveBlob(ctx, sessionID, string(blob))
}

// LoadWorkList reads the work list back. A missing or malformed blob
// is a session-level error: without it later chunks cannot know their
// slice of the universe.
func (t *Tracker) LoadWorkList(ctx context.Context, sessionID string) ([]string, error) {
	row, err := t.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if row.CurrentItemBlob == "" {
		return nil, fmt.Errorf("progress: session %s has no work list", sessionID)
	}
	var codes []string
	if err := json.Unmarshal([]byte(row.CurrentItemBlob), &codes); err != nil {
		return nil, fmt.Errorf("progress: malformed work list for session %s: %w", sessionID, err)
	}
	return codes, nil
}
