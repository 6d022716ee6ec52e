package simulator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_FillAndFlush(t *testing.T) {
	env := testEnv(t, smallConfig())
	m := NewMemStore(env.Settings, env.Rand, env.Clock)

	for i := 0; i < 9; i++ {
		m.Put()
		assert.False(t, m.IsFull())
	}
	m.Put()
	assert.True(t, m.IsFull())
	assert.Equal(t, int64(1000), m.BytesSize())

	throttle := NewThrottle(env.Settings)
	f, err := m.Flush(context.Background(), 7, throttle.Stream())
	require.NoError(t, err)
	assert.Equal(t, uint64(7), f.ID())
	assert.Equal(t, int64(1000), f.BytesSize())
	assert.Zero(t, m.BytesSize(), "flush starts a fresh buffer")
}

func TestMemStore_PackSize(t *testing.T) {
	cfg := smallConfig()
	cfg.KeyValuesPerPut = 3
	cfg.KeyValueBytesJitter = 0.5
	env := testEnv(t, cfg)
	m := NewMemStore(env.Settings, env.Rand, env.Clock)

	m.Put()
	assert.GreaterOrEqual(t, m.BytesSize(), int64(3*49))
	assert.LessOrEqual(t, m.BytesSize(), int64(3*150))
	assert.Zero(t, m.BytesSize()%3, "every key-value of a pack has the same size")
}

func TestMemStore_PicksUpTTLChange(t *testing.T) {
	env := testEnv(t, smallConfig())
	m := NewMemStore(env.Settings, env.Rand, env.Clock)
	_, plain := m.data.(*plainKeyValueData)
	require.True(t, plain)

	require.NoError(t, env.Settings.ApplyEdits(map[string]string{"keyValueTTLMs": "60000"}))
	m.Put()
	_, err := m.Flush(context.Background(), 1, NewThrottle(env.Settings).Stream())
	require.NoError(t, err)

	_, ttl := m.data.(*ttlKeyValueData)
	assert.True(t, ttl)
}
