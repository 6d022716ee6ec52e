package simulator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegion_Layout(t *testing.T) {
	env := testEnv(t, smallConfig())
	policies := []CompactionPolicyConfig{
		&HBaseCompactionConfig{Name: "hbase", MinFiles: 2, MaxFiles: 12, MaxBytes: 1 << 62, Ratio: 1.3},
		&RandomCompactionConfig{MaxFiles: 4, FilesToCompact: 2},
	}
	r := NewRegion(policies, env, nil)

	require.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"0(hbase)", "1(random)"}, r.Titles())
	assert.Equal(t, []int64{0, 0}, r.ReadAmplification())

	r.Put(1)
	r.Put(1)
	assert.Zero(t, r.Store(0).QueueLen())
	assert.Equal(t, 2, r.Store(1).QueueLen())
}

func TestRegion_RunFlushesEveryStore(t *testing.T) {
	env := testEnv(t, smallConfig())
	rec := &recordingSink{}
	policies := []CompactionPolicyConfig{
		&RandomCompactionConfig{MaxFiles: 100, FilesToCompact: 2},
		&RandomCompactionConfig{MaxFiles: 100, FilesToCompact: 2},
	}
	r := NewRegion(policies, env, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	for i := 0; i < 10; i++ {
		r.Put(0)
		r.Put(1)
	}
	assert.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.flushes) == 2
	}, 5*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		amps := r.ReadAmplification()
		return amps[0] == 1 && amps[1] == 1
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
