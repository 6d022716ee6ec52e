package simulator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(333334), cfg.KeyValuesPerPut, "three puts fill the memstore")
	assert.True(t, cfg.TTLEnabled())
	assert.Equal(t, int64(10*24*60*60*1000), cfg.KeyValueTTLMs)
	assert.Equal(t, int64(128<<30), cfg.ThrottleBlockBytes)
	assert.Equal(t, AlgorithmHBaseDefault, cfg.CompactionSpecFor(3).Algorithm)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"flush gap", func(c *Config) { c.FlushGapMs = 0 }},
		{"memstore", func(c *Config) { c.MemstoreBytes = -1 }},
		{"no stores", func(c *Config) { c.StoreCount = 0 }},
		{"too many stores", func(c *Config) { c.StoreCount = MaxStoreCount + 1 }},
		{"kv size", func(c *Config) { c.KeyValueBytes = 0 }},
		{"kv jitter", func(c *Config) { c.KeyValueBytesJitter = 1.5 }},
		{"puts", func(c *Config) { c.KeyValuesPerPut = 0 }},
		{"ttl", func(c *Config) { c.KeyValueTTLMs = -2 }},
		{"compression", func(c *Config) { c.CompressionRatio = 0 }},
		{"read rate", func(c *Config) { c.HDFSReadBytesPerSec = 0 }},
		{"write rate", func(c *Config) { c.HDFSWriteBytesPerSec = 0 }},
		{"block", func(c *Config) { c.ThrottleBlockBytes = 0 }},
		{"xFaster", func(c *Config) { c.XFaster = 0 }},
		{"sample interval", func(c *Config) { c.SampleIntervalMs = 0 }},
		{"bad compaction", func(c *Config) {
			c.Compactions = []CompactionSpec{{Algorithm: AlgorithmLevel, Random: &RandomCompactionConfig{MaxFiles: 1, FilesToCompact: 2}}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorAs(t, err, &SimError{})
		})
	}

	cfg := DefaultConfig()
	cfg.KeyValueTTLMs = DisabledTTL
	assert.NoError(t, cfg.Validate())
	assert.False(t, cfg.TTLEnabled())
}

func TestSettings_StoreRejectsInvalid(t *testing.T) {
	settings, err := NewSettings(DefaultConfig())
	require.NoError(t, err)

	bad := DefaultConfig()
	bad.XFaster = 0
	require.Error(t, settings.Store(bad))
	assert.Equal(t, int64(10000), settings.Load().XFaster)

	good := DefaultConfig()
	good.XFaster = 5
	require.NoError(t, settings.Store(good))
	assert.Equal(t, int64(5), settings.Load().XFaster)
}

func TestSettings_SnapshotsAreIndependent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Compactions = []CompactionSpec{{Algorithm: AlgorithmLevel}}
	settings, err := NewSettings(cfg)
	require.NoError(t, err)

	cfg.Compactions[0].Algorithm = AlgorithmRandom
	assert.Equal(t, AlgorithmLevel, settings.Load().Compactions[0].Algorithm)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "sim.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			"storeCount": 2,
			"xFaster": 500,
			"compactions": [
				{"algorithm": "level"},
				{"algorithm": "hbase-default", "hbase": {"minFiles": 3, "maxFiles": 7, "maxBytes": 1000000, "ratio": 1.2, "throttle": 5000}}
			]
		}`), 0o644))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.StoreCount)
		assert.Equal(t, int64(500), cfg.XFaster)
		assert.Equal(t, int64(40000), cfg.FlushGapMs, "missing fields keep defaults")
		require.Len(t, cfg.Compactions, 2)
		assert.Equal(t, AlgorithmLevel, cfg.Compactions[0].Algorithm)
		require.NotNil(t, cfg.Compactions[1].HBase)
		assert.Equal(t, 7, cfg.Compactions[1].HBase.MaxFiles)
	})

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(dir, "sim.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
storeCount: 3
keyValueTTLMs: -1
compactions:
  - algorithm: similarity
  - algorithm: random
    random:
      maxFiles: 4
      filesToCompact: 2
`), 0o644))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.StoreCount)
		assert.False(t, cfg.TTLEnabled())
		require.Len(t, cfg.Compactions, 2)
		assert.Equal(t, AlgorithmSimilarity, cfg.Compactions[0].Algorithm)
		assert.Equal(t, 4, cfg.Compactions[1].Random.MaxFiles)
		assert.Equal(t, AlgorithmHBaseDefault, cfg.CompactionSpecFor(2).Algorithm)
	})

	t.Run("unknown algorithm", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"compactions": [{"algorithm": "tiered"}]}`), 0o644))
		_, err := LoadConfig(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid compaction algorithm")
	})

	t.Run("invalid values", func(t *testing.T) {
		path := filepath.Join(dir, "invalid.yml")
		require.NoError(t, os.WriteFile(path, []byte("xFaster: 0\n"), 0o644))
		_, err := LoadConfig(path)
		require.Error(t, err)
		assert.ErrorAs(t, err, &SimError{})
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(dir, "nope.json"))
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestSettings_Update(t *testing.T) {
	settings, err := NewSettings(DefaultConfig())
	require.NoError(t, err)

	specs := []CompactionSpec{{Algorithm: AlgorithmLevel}, {Algorithm: AlgorithmRandom}}
	require.NoError(t, settings.Update(func(cfg *Config) {
		cfg.Compactions = specs
		cfg.StoreCount = 2
	}))
	assert.Equal(t, 2, settings.Load().StoreCount)
	assert.Equal(t, AlgorithmRandom, settings.Load().CompactionSpecFor(1).Algorithm)

	err = settings.Update(func(cfg *Config) { cfg.StoreCount = 0 })
	assert.Error(t, err)
	assert.Equal(t, 2, settings.Load().StoreCount, "rejected updates leave the config unchanged")
}
