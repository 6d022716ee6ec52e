package simulator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

const (
	// DisabledTTL turns off per-pack TTL tracking when used as KeyValueTTLMs.
	DisabledTTL int64 = -1

	// MaxStoreCount bounds the number of column families in one region.
	MaxStoreCount = 10

	// DefaultThrottleBlockBytes is the amount of I/O a stream caches before it
	// pays for it in simulated time (128 GiB).
	DefaultThrottleBlockBytes int64 = 128 << 30

	daysMs = int64(24 * 60 * 60 * 1000)
)

// Config holds all simulation parameters. Components never keep a Config
// between cycles; they read a fresh snapshot from Settings every time.
type Config struct {
	// Write path
	FlushGapMs          int64   `json:"flushGapMs" yaml:"flushGapMs"`                   // Simulated gap between memstore flushes of one store (ms)
	MemstoreBytes       int64   `json:"memstoreBytes" yaml:"memstoreBytes"`             // Memstore flush threshold (bytes)
	StoreCount          int     `json:"storeCount" yaml:"storeCount"`                   // Number of column families in the region
	KeyValueBytes       int64   `json:"keyValueBytes" yaml:"keyValueBytes"`             // Mean key-value size (bytes)
	KeyValueBytesJitter float64 `json:"keyValueBytesJitter" yaml:"keyValueBytesJitter"` // Relative jitter applied to the key-value size
	KeyValuesPerPut     int64   `json:"keyValuesPerPut" yaml:"keyValuesPerPut"`         // Key-values in one pack written by a single put
	KeyValueTTLMs       int64   `json:"keyValueTTLMs" yaml:"keyValueTTLMs"`             // Simulated TTL (ms), -1 disables expiry tracking
	KeyValueTTLJitter   float64 `json:"keyValueTTLJitter" yaml:"keyValueTTLJitter"`     // Relative jitter applied to the TTL
	CompressionRatio    int64   `json:"compressionRatio" yaml:"compressionRatio"`       // Size reduction applied once at flush

	// I/O model
	HDFSReadBytesPerSec  int64 `json:"hdfsReadBytesPerSec" yaml:"hdfsReadBytesPerSec"`   // Read bandwidth of one store's backend
	HDFSWriteBytesPerSec int64 `json:"hdfsWriteBytesPerSec" yaml:"hdfsWriteBytesPerSec"` // Write bandwidth of one store's backend
	ThrottleBlockBytes   int64 `json:"throttleBlockBytes" yaml:"throttleBlockBytes"`     // Bytes cached per stream before blocking

	// Time
	XFaster int64 `json:"xFaster" yaml:"xFaster"` // Acceleration factor: simulated ms per wall-clock ms

	// Simulation control
	RandomSeed         int64 `json:"randomSeed" yaml:"randomSeed"`                 // Random seed for reproducibility (0 = use time-based seed)
	SampleIntervalMs   int64 `json:"sampleIntervalMs" yaml:"sampleIntervalMs"`     // Wall-clock period of amplification samples
	QueueHighWaterMark int   `json:"queueHighWaterMark" yaml:"queueHighWaterMark"` // Operation queue depth that triggers a warning
	QueueLogIntervalMs int64 `json:"queueLogIntervalMs" yaml:"queueLogIntervalMs"` // Wall-clock period of queue depth checks

	// Compactions lists the policy of each store, by column family. Stores
	// beyond the end of the list use the hbase-default preset.
	Compactions []CompactionSpec `json:"compactions,omitempty" yaml:"compactions,omitempty"`
}

// DefaultConfig returns the reference HBase-like setup: one store, 100MB
// memstore, 100 byte key-values living ten days, 50MiB/s backend.
func DefaultConfig() Config {
	cfg := Config{
		FlushGapMs:           40000,
		MemstoreBytes:        100_000_000,
		StoreCount:           1,
		KeyValueBytes:        100,
		KeyValueBytesJitter:  0.3,
		KeyValueTTLMs:        10 * daysMs,
		KeyValueTTLJitter:    0.3,
		CompressionRatio:     10,
		HDFSReadBytesPerSec:  50 << 20,
		HDFSWriteBytesPerSec: 50 << 20,
		ThrottleBlockBytes:   DefaultThrottleBlockBytes,
		XFaster:              10000,
		RandomSeed:           0,
		SampleIntervalMs:     1000,
		QueueHighWaterMark:   1000,
		QueueLogIntervalMs:   1000,
	}
	// A put is sized so that three puts fill the memstore.
	cfg.KeyValuesPerPut = cfg.MemstoreBytes/(3*cfg.KeyValueBytes) + 1
	return cfg
}

// TTLEnabled reports whether key-values expire.
func (c *Config) TTLEnabled() bool {
	return c.KeyValueTTLMs >= 0
}

// PackBytes is the mean size of the key-value pack written by one put.
func (c *Config) PackBytes() int64 {
	return c.KeyValuesPerPut * c.KeyValueBytes
}

// CompactionSpecFor returns the compaction policy selection of a store.
func (c *Config) CompactionSpecFor(cf int) CompactionSpec {
	if cf >= 0 && cf < len(c.Compactions) {
		return c.Compactions[cf]
	}
	return CompactionSpec{Algorithm: AlgorithmHBaseDefault}
}

// Clone returns a deep copy of the config.
func (c Config) Clone() Config {
	if c.Compactions != nil {
		c.Compactions = append([]CompactionSpec(nil), c.Compactions...)
	}
	return c
}

// Validate checks if configuration values are reasonable
func (c *Config) Validate() error {
	if c.FlushGapMs <= 0 {
		return ErrInvalidConfig("flushGapMs must be > 0")
	}
	if c.MemstoreBytes <= 0 {
		return ErrInvalidConfig("memstoreBytes must be > 0")
	}
	if c.StoreCount < 1 || c.StoreCount > MaxStoreCount {
		return ErrInvalidConfig("storeCount must be between 1 and 10")
	}
	if c.KeyValueBytes <= 0 {
		return ErrInvalidConfig("keyValueBytes must be > 0")
	}
	if c.KeyValueBytesJitter < 0 || c.KeyValueBytesJitter > 1 {
		return ErrInvalidConfig("keyValueBytesJitter must be between 0 and 1")
	}
	if c.KeyValuesPerPut <= 0 {
		return ErrInvalidConfig("keyValuesPerPut must be > 0")
	}
	if c.KeyValueTTLMs < DisabledTTL {
		return ErrInvalidConfig("keyValueTTLMs must be >= 0, or -1 to disable")
	}
	if c.KeyValueTTLJitter < 0 || c.KeyValueTTLJitter > 1 {
		return ErrInvalidConfig("keyValueTTLJitter must be between 0 and 1")
	}
	if c.CompressionRatio < 1 {
		return ErrInvalidConfig("compressionRatio must be >= 1")
	}
	if c.HDFSReadBytesPerSec <= 0 {
		return ErrInvalidConfig("hdfsReadBytesPerSec must be > 0")
	}
	if c.HDFSWriteBytesPerSec <= 0 {
		return ErrInvalidConfig("hdfsWriteBytesPerSec must be > 0")
	}
	if c.ThrottleBlockBytes <= 0 {
		return ErrInvalidConfig("throttleBlockBytes must be > 0")
	}
	if c.XFaster < 1 {
		return ErrInvalidConfig("xFaster must be >= 1")
	}
	if c.SampleIntervalMs <= 0 {
		return ErrInvalidConfig("sampleIntervalMs must be > 0")
	}
	if c.QueueHighWaterMark < 1 {
		return ErrInvalidConfig("queueHighWaterMark must be >= 1")
	}
	if c.QueueLogIntervalMs <= 0 {
		return ErrInvalidConfig("queueLogIntervalMs must be > 0")
	}
	if len(c.Compactions) > MaxStoreCount {
		return ErrInvalidConfig("at most 10 compactions may be configured")
	}
	for i := range c.Compactions {
		if err := c.Compactions[i].Validate(); err != nil {
			return errors.Wrapf(err, "compactions[%d]", i)
		}
	}
	return nil
}

// Settings is the shared, runtime-mutable configuration of a simulation.
// Readers take a snapshot with Load; writers swap in a whole new Config.
type Settings struct {
	cfg atomic.Pointer[Config]
	// Serializes read-modify-write updates so concurrent edits are not lost.
	mu sync.Mutex
}

// NewSettings validates cfg and wraps it for shared use.
func NewSettings(cfg Config) (*Settings, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Settings{}
	c := cfg.Clone()
	s.cfg.Store(&c)
	return s, nil
}

// Load returns the current configuration snapshot. Callers must not modify it.
func (s *Settings) Load() *Config {
	return s.cfg.Load()
}

// Store validates cfg and makes it the current configuration.
func (s *Settings) Store(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c := cfg.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Store(&c)
	return nil
}

// ApplyEdits applies a batch of named field edits. Either every edit is
// applied or, on any error, the current configuration stays in effect.
func (s *Settings) ApplyEdits(edits map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := ApplyEdits(*s.cfg.Load(), edits)
	if err != nil {
		return err
	}
	s.cfg.Store(&next)
	return nil
}

// Update applies fn to a copy of the current configuration and, if the
// result validates, makes it current.
func (s *Settings) Update(fn func(cfg *Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cfg.Load().Clone()
	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	s.cfg.Store(&next)
	return nil
}

// LoadConfig reads a configuration file. Files ending in .yaml or .yml are
// parsed as YAML, everything else as JSON. Fields missing from the file keep
// their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config %s", path)
	}
	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, errors.Wrapf(err, "parsing config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}
