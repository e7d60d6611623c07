package sync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cloudmodeler/ardsync/pkg/types"
)

// RunStore is the persistence surface for run and item records. Increment
// implementations are read-current/add/write-back; a run has exactly one
// writer, so that is sufficient.
type RunStore interface {
	CreateRun(ctx context.Context, run *types.SyncRun) error
	SetRunStatus(ctx context.Context, runID string, status types.RunStatus) error
	FinishRun(ctx context.Context, runID string, status types.RunStatus, errorMessage string, finishedAt time.Time, durationMillis int64) error
	IncrementCounter(ctx context.Context, runID string, counter types.RunCounter, delta int) error
	CreateRunItem(ctx context.Context, item *types.SyncRunItem) error
	CreateAuditEntry(ctx context.Context, runID, operation, detail string) error
}

// Recorder is the best-effort history writer. Every store failure is logged
// with full context and discarded: history can never abort a sync.
type Recorder struct {
	store  RunStore
	logger *zap.Logger
}

// NewRecorder creates a new history recorder.
func NewRecorder(store RunStore, logger *zap.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// CreateRun persists the aggregate run record.
func (r *Recorder) CreateRun(ctx context.Context, run *types.SyncRun) {
	r.guard("create run", run.ID, "", r.store.CreateRun(ctx, run))
}

// SetStatus persists a run status transition.
func (r *Recorder) SetStatus(ctx context.Context, runID string, status types.RunStatus) {
	r.guard("update run status", runID, "", r.store.SetRunStatus(ctx, runID, status))
}

// Finish persists the terminal state of a run.
func (r *Recorder) Finish(ctx context.Context, runID string, status types.RunStatus, errorMessage string, finishedAt time.Time, durationMillis int64) {
	r.guard("finish run", runID, "",
		r.store.FinishRun(ctx, runID, status, errorMessage, finishedAt, durationMillis))
}

// Increment adds delta to one run counter.
func (r *Recorder) Increment(ctx context.Context, runID string, counter types.RunCounter, delta int) {
	r.guard("increment "+string(counter), runID, "",
		r.store.IncrementCounter(ctx, runID, counter, delta))
}

// RecordItem persists one per-item outcome row.
func (r *Recorder) RecordItem(ctx context.Context, item *types.SyncRunItem) {
	r.guard("create run item", item.RunID, item.SourceID, r.store.CreateRunItem(ctx, item))
}

// Audit persists one audit log entry.
func (r *Recorder) Audit(ctx context.Context, runID, operation, detail string) {
	r.guard("create audit entry", runID, "", r.store.CreateAuditEntry(ctx, runID, operation, detail))
}

func (r *Recorder) guard(operation, runID, itemID string, err error) {
	if err == nil {
		return
	}
	r.logger.Error("history write failed, continuing",
		zap.String("operation", operation),
		zap.String("run_id", runID),
		zap.String("item_id", itemID),
		zap.Error(err))
}
