package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cloudmodeler/ardsync/pkg/types"
)

func TestDeleteEmptyEmitsNoItemsOnly(t *testing.T) {
	client := newFakeClient()
	sink := &recordingSink{}
	d := NewChunkedDeleter(client, zap.NewNop())

	deleted, err := d.Delete(context.Background(), "Proj", "run-1", nil, sink,
		NewRecorder(newFakeRunStore(), zap.NewNop()))
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.Equal(t, []string{EventOverwriteNoItems}, sink.names())
	assert.Empty(t, client.deleteCalls)
}

func TestDeleteBatchesSequentially(t *testing.T) {
	client := newFakeClient()
	sink := &recordingSink{}
	store := newFakeRunStore()
	d := NewChunkedDeleter(client, zap.NewNop())

	deleted, err := d.Delete(context.Background(), "Proj", "run-1", intSeq(45), sink,
		NewRecorder(store, zap.NewNop()))
	require.NoError(t, err)
	assert.Equal(t, 45, deleted)

	// ceil(45/20) = 3 batches, strictly sequential, sized 20/20/5.
	require.Len(t, client.deleteCalls, 3)
	assert.Len(t, client.deleteCalls[0], 20)
	assert.Len(t, client.deleteCalls[1], 20)
	assert.Len(t, client.deleteCalls[2], 5)

	assert.Equal(t, []string{
		EventOverwriteDeleting,
		EventOverwriteProgress, EventOverwriteProgress, EventOverwriteProgress,
		EventOverwriteDeleted,
	}, sink.names())

	progress := sink.byName(EventOverwriteProgress)
	var cumulative []int
	for _, e := range progress {
		p := e.payload.(deleteProgressPayload)
		cumulative = append(cumulative, p.Deleted)
		assert.Equal(t, 45, p.Total)
		assert.Equal(t, 3, p.TotalChunks)
	}
	assert.Equal(t, []int{20, 40, 45}, cumulative)
	assert.Equal(t, 3, progress[len(progress)-1].payload.(deleteProgressPayload).CurrentChunk)

	assert.Equal(t, 45, store.counters[types.CounterDeleted])
}

func TestDeleteFailureAbortsRemainingBatches(t *testing.T) {
	client := newFakeClient()
	client.deleteErrAt = 2
	sink := &recordingSink{}
	d := NewChunkedDeleter(client, zap.NewNop())

	deleted, err := d.Delete(context.Background(), "Proj", "run-1", intSeq(45), sink,
		NewRecorder(newFakeRunStore(), zap.NewNop()))
	require.Error(t, err)
	assert.Equal(t, 20, deleted)
	assert.Len(t, client.deleteCalls, 2)

	assert.Equal(t, []string{
		EventOverwriteDeleting,
		EventOverwriteProgress,
		EventOverwriteError,
	}, sink.names())
}
