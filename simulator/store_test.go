package simulator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestStore(t *testing.T, cfg Config, policy CompactionPolicyConfig) (*Store, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	return NewStore(0, policy, testEnv(t, cfg), sink), sink
}

func TestStore_FlushesOnceAfterTenPuts(t *testing.T) {
	store, sink := newTestStore(t, smallConfig(), hbasePolicy(1_000_000))
	ctx := context.Background()

	for i := 0; i < 9; i++ {
		store.Put()
	}
	require.NoError(t, store.processPending(ctx))
	assert.Empty(t, store.Files())
	assert.Equal(t, int64(900), store.MemStoreBytes())

	store.Put()
	require.NoError(t, store.processPending(ctx))

	files := store.Files()
	require.Len(t, files, 1)
	assert.Equal(t, int64(1000), files[0].BytesSize())
	assert.Equal(t, []int64{1000}, sink.flushes)
	assert.Equal(t, int64(1), store.ReadAmplification())
	assert.Equal(t, int64(0), store.MemStoreBytes())
	assert.Equal(t, 0, store.QueueLen())
}

func TestStore_FlushWritesCompressedSize(t *testing.T) {
	cfg := smallConfig()
	cfg.CompressionRatio = 10
	store, sink := newTestStore(t, cfg, hbasePolicy(1_000_000))

	for i := 0; i < 10; i++ {
		store.Put()
	}
	require.NoError(t, store.processPending(context.Background()))

	assert.Equal(t, []int64{100}, sink.flushes)
	_, pendingWrite := store.stream.Pending()
	assert.Equal(t, int64(100), pendingWrite, "sub-block writes stay cached in the stream")
	assert.Equal(t, int64(0), store.Throttle().BytesWritten())
}

func TestStore_CompactionRoundTrip(t *testing.T) {
	store, sink := newTestStore(t, smallConfig(), hbasePolicy(1_000_000))
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		store.Put()
	}
	require.NoError(t, store.processPending(ctx))

	// The second flush made two equal files, which were handed to the small
	// background queue.
	assert.Len(t, sink.flushes, 2)
	assert.Empty(t, store.Files())
	assert.Equal(t, 1, store.PendingCompactions())
	assert.Equal(t, int64(2), store.ReadAmplification(), "read amplification is sampled at flush time")

	processed, err := store.compactor.small.runOnce(ctx)
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, []OperationType{OperationCompactionFinished}, store.queue.Types())

	require.NoError(t, store.processPending(ctx))
	files := store.Files()
	require.Len(t, files, 1)
	assert.Equal(t, int64(2000), files[0].BytesSize())
	require.Len(t, sink.compactions, 1)
	assert.Equal(t, int64(4000), sink.compactions[0].totalIO)
	assert.Equal(t, int64(1), store.ReadAmplification())
}

func TestStore_ForceMajorCompaction(t *testing.T) {
	// maxFiles 1 keeps minor compactions from ever running.
	policy := &HBaseCompactionConfig{MinFiles: 2, MaxFiles: 1, MaxBytes: 1 << 62, Ratio: 1.3, Throttle: 0}
	store, sink := newTestStore(t, smallConfig(), policy)
	ctx := context.Background()
	for i := 0; i < 30; i++ {
		store.Put()
	}
	require.NoError(t, store.processPending(ctx))
	require.Len(t, store.Files(), 3)

	store.ForceMajorCompaction()
	require.NoError(t, store.processPending(ctx))
	assert.Empty(t, store.Files())

	processed, err := store.compactor.large.runOnce(ctx)
	require.NoError(t, err)
	require.True(t, processed)
	require.NoError(t, store.processPending(ctx))

	require.Len(t, sink.compactions, 1)
	assert.True(t, sink.compactions[0].major)
	assert.Equal(t, []int64{3000}, NewStoreFileCollection(store.Files()...).Sizes())
}

func TestStore_RunProcessesPutsUntilCancelled(t *testing.T) {
	store, sink := newTestStore(t, smallConfig(), hbasePolicy(1_000_000))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Run(ctx) }()

	for i := 0; i < 40; i++ {
		store.Put()
	}
	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.flushes) == 4 && len(sink.compactions) > 0
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("store did not stop")
	}
	assert.Equal(t, "0(hbase)", store.Title())
}

func TestStore_WarnsWhenQueueBacksUp(t *testing.T) {
	cfg := smallConfig()
	cfg.QueueHighWaterMark = 2
	cfg.QueueLogIntervalMs = 5
	core, logs := observer.New(zap.WarnLevel)
	env := testEnv(t, cfg)
	env.Logger = zap.New(core)
	store := NewStore(0, hbasePolicy(1_000_000), env, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.monitorQueue(ctx) }()

	// Below the mark nothing is logged.
	store.Put()
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, logs.FilterMessage("store operation queue is backed up").Len())

	store.Put()
	store.Put()
	require.Eventually(t, func() bool {
		return logs.FilterMessage("store operation queue is backed up").Len() > 0
	}, 5*time.Second, 5*time.Millisecond)

	entry := logs.FilterMessage("store operation queue is backed up").All()[0]
	assert.Equal(t, zap.WarnLevel, entry.Level)
	assert.GreaterOrEqual(t, entry.ContextMap()["depth"].(int64), int64(2))
	assert.Equal(t, int64(0), entry.ContextMap()["store"])

	cancel()
	require.NoError(t, <-done)
}
