package simulator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// fastConfig flushes the single store every 10ms of wall time.
func fastConfig() Config {
	cfg := smallConfig()
	cfg.FlushGapMs = 1000
	cfg.XFaster = 100
	cfg.SampleIntervalMs = 50
	return cfg
}

func startSimulator(t *testing.T, s *Simulator) (stop func()) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	require.Eventually(t, s.Running, 5*time.Second, time.Millisecond)
	return func() {
		s.Stop()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("simulator did not stop")
		}
		assert.False(t, s.Running())
	}
}

func TestSimulator_RunProducesSamples(t *testing.T) {
	rec := &SampleRecorder{}
	s, err := NewSimulator(fastConfig(), WithLogger(zaptest.NewLogger(t)), WithSink(rec))
	require.NoError(t, err)

	stop := startSimulator(t, s)
	require.Eventually(t, func() bool {
		return s.Metrics()[0].CompactionCount > 0 && len(rec.Samples()) >= 3
	}, 10*time.Second, 10*time.Millisecond)
	stop()

	samples := rec.Samples()
	var last time.Duration
	for _, sample := range samples {
		assert.Equal(t, []string{"0(hbase)"}, sample.Titles)
		assert.Len(t, sample.WriteAmplification, 1)
		assert.Len(t, sample.ReadAmplification, 1)
		assert.GreaterOrEqual(t, sample.SimTime, last)
		last = sample.SimTime
	}
	assert.Greater(t, s.SimTime(), time.Duration(0))

	m := s.Metrics()[0]
	assert.Equal(t, m.FlushCount*1000, m.FlushBytes)
	assert.Greater(t, m.CompactionBytes, int64(0))
	assert.Greater(t, m.WriteAmplification, 0.0)
}

func TestSimulator_RejectsConcurrentRun(t *testing.T) {
	s, err := NewSimulator(fastConfig(), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	stop := startSimulator(t, s)
	err = s.Run(context.Background())
	var simErr SimError
	assert.ErrorAs(t, err, &simErr)
	stop()
}

func TestSimulator_RunEndsWithContext(t *testing.T) {
	s, err := NewSimulator(fastConfig(), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.NoError(t, s.Run(ctx))
	assert.False(t, s.Running())
}

func TestSimulator_RunStartsFresh(t *testing.T) {
	s, err := NewSimulator(fastConfig(), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	stop := startSimulator(t, s)
	require.Eventually(t, func() bool { return s.Metrics()[0].FlushCount > 0 }, 5*time.Second, 5*time.Millisecond)
	stop()

	// StoreCount is read when a run starts.
	require.NoError(t, s.Settings().ApplyEdits(map[string]string{"storeCount": "3"}))
	stop = startSimulator(t, s)
	require.Eventually(t, func() bool { return s.Region().Len() == 3 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, []string{"0(hbase)", "1(hbase)", "2(hbase)"}, s.Region().Titles())
	stop()
}

func TestSimulator_ColumnFamilyRange(t *testing.T) {
	cfg := fastConfig()
	cfg.StoreCount = 2
	cfg.Compactions = []CompactionSpec{{Algorithm: AlgorithmLevel}}
	s, err := NewSimulator(cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"0(level)", "1(hbase)"}, s.Region().Titles())
	assert.NoError(t, s.Put(1))
	assert.NoError(t, s.ForceMajorCompaction(0))
	assert.Equal(t, 1, s.Region().Store(1).QueueLen())

	var simErr SimError
	assert.ErrorAs(t, s.Put(2), &simErr)
	assert.ErrorAs(t, s.Put(-1), &simErr)
	assert.ErrorAs(t, s.ForceMajorCompaction(5), &simErr)
}

func TestSimulator_MetricsBeforeRun(t *testing.T) {
	cfg := fastConfig()
	cfg.StoreCount = 2
	s, err := NewSimulator(cfg)
	require.NoError(t, err)

	metrics := s.Metrics()
	require.Len(t, metrics, 2)
	for cf, m := range metrics {
		assert.Equal(t, cf, m.ColumnFamily)
		assert.Zero(t, m.WriteAmplification)
		assert.Zero(t, m.FileCount)
	}
	assert.Len(t, s.WriteAmplification(), 2)
}

func TestNewSimulator_InvalidConfig(t *testing.T) {
	cfg := fastConfig()
	cfg.StoreCount = 0
	_, err := NewSimulator(cfg)
	var simErr SimError
	assert.ErrorAs(t, err, &simErr)
}

func TestSimulator_WriteLoopCatchesUp(t *testing.T) {
	cfg := smallConfig()
	cfg.FlushGapMs = 1000
	cfg.XFaster = 1 // one put every 100ms
	core, logs := observer.New(zap.InfoLevel)
	s, err := NewSimulator(cfg, WithLogger(zap.New(core)))
	require.NoError(t, err)
	region := s.Region()

	// A loop that starts a second behind issues ten puts back to back, plus
	// the one that moves its deadline into the future, then sleeps.
	pacer := newWritePacer(time.Now().Add(-time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	require.NoError(t, s.writeLoop(ctx, region, pacer, 1))

	assert.Less(t, time.Since(start), time.Second)
	assert.InDelta(t, 11, region.Store(0).QueueLen(), 1)
	assert.True(t, pacer.deadline.After(start))

	overslept := logs.FilterMessage("write loop overslept")
	assert.Greater(t, overslept.Len(), 0)
	// The first put was due 900ms before the loop started.
	behind := overslept.All()[0].ContextMap()["behind"].(time.Duration)
	assert.Equal(t, 900*time.Millisecond, behind.Round(100*time.Millisecond))
}
