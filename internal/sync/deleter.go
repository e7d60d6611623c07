package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cloudmodeler/ardsync/pkg/types"
)

// DeleteBatchSize stays under the Azure DevOps per-call deletion ceiling.
const DeleteBatchSize = 20

// WorkItemDeleter is the slice of the target client the deleter needs.
type WorkItemDeleter interface {
	DeleteWorkItems(ctx context.Context, project string, ids []int, permanent bool) error
}

// ChunkedDeleter removes existing work items in fixed-size batches, strictly
// sequentially, emitting progress after each batch. The first batch failure
// aborts the whole run: a partially deleted project must not receive new
// items.
type ChunkedDeleter struct {
	client    WorkItemDeleter
	batchSize int
	logger    *zap.Logger
}

// NewChunkedDeleter creates a deleter with the default batch size.
func NewChunkedDeleter(client WorkItemDeleter, logger *zap.Logger) *ChunkedDeleter {
	return &ChunkedDeleter{client: client, batchSize: DeleteBatchSize, logger: logger}
}

// Delete removes the given work items and returns the number deleted. All
// progress is reported through sink; counter updates go through history
// best-effort.
func (d *ChunkedDeleter) Delete(ctx context.Context, project, runID string, ids []int, sink EventSink, history *Recorder) (int, error) {
	if len(ids) == 0 {
		sink.Emit(EventOverwriteNoItems, messagePayload{
			Message:   "No existing work items to delete",
			Timestamp: nowISO(),
		})
		return 0, nil
	}

	total := len(ids)
	totalChunks := (total + d.batchSize - 1) / d.batchSize
	sink.Emit(EventOverwriteDeleting, countPayload{
		Message:   fmt.Sprintf("Deleting %d existing work items", total),
		Count:     total,
		Timestamp: nowISO(),
	})

	deleted := 0
	for chunk := 0; chunk < totalChunks; chunk++ {
		start := chunk * d.batchSize
		end := start + d.batchSize
		if end > total {
			end = total
		}
		batch := ids[start:end]

		if err := d.client.DeleteWorkItems(ctx, project, batch, true); err != nil {
			wrapped := fmt.Errorf("failed to delete batch %d of %d: %w", chunk+1, totalChunks, err)
			d.logger.Error("work item deletion batch failed",
				zap.String("project", project),
				zap.Int("chunk", chunk+1),
				zap.Int("total_chunks", totalChunks),
				zap.Error(err))
			sink.Emit(EventOverwriteError, overwriteErrorPayload{
				Error:     wrapped.Error(),
				Message:   "Overwrite deletion failed, sync aborted",
				Timestamp: nowISO(),
			})
			return deleted, wrapped
		}

		deleted += len(batch)
		history.Increment(ctx, runID, types.CounterDeleted, len(batch))
		sink.Emit(EventOverwriteProgress, deleteProgressPayload{
			Message:      fmt.Sprintf("Deleted %d of %d work items", deleted, total),
			Deleted:      deleted,
			Total:        total,
			CurrentChunk: chunk + 1,
			TotalChunks:  totalChunks,
			Timestamp:    nowISO(),
		})
	}

	sink.Emit(EventOverwriteDeleted, countPayload{
		Message:   fmt.Sprintf("Deleted %d existing work items", deleted),
		Count:     deleted,
		Timestamp: nowISO(),
	})
	return deleted, nil
}
