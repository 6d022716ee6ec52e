package simulator

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// smallConfig is a store small enough to reason about by hand: ten 100 byte
// puts fill the 1000 byte memstore, nothing is compressed, nothing expires.
func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.MemstoreBytes = 1000
	cfg.KeyValueBytes = 100
	cfg.KeyValueBytesJitter = 0
	cfg.KeyValuesPerPut = 1
	cfg.KeyValueTTLMs = DisabledTTL
	cfg.CompressionRatio = 1
	cfg.RandomSeed = 42
	return cfg
}

func testEnv(t *testing.T, cfg Config) Env {
	t.Helper()
	settings, err := NewSettings(cfg)
	require.NoError(t, err)
	return Env{
		Settings: settings,
		Rand:     NewRandomGenerator(cfg.RandomSeed),
		Clock:    SystemClock(),
		Logger:   zaptest.NewLogger(t),
	}
}

// filesOfSizes builds a collection of plain files with the given sizes.
func filesOfSizes(sizes ...int64) *StoreFileCollection {
	files := make([]*StoreFile, len(sizes))
	for i, size := range sizes {
		files[i] = newStoreFile(uint64(i+1), &plainKeyValueData{bytes: size})
	}
	return NewStoreFileCollection(files...)
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingOwner stands in for a Store in compactor tests.
type recordingOwner struct {
	mu       sync.Mutex
	ids      uint64
	finished []*compactionResult
	majors   int
}

func (o *recordingOwner) columnFamily() int { return 0 }

func (o *recordingOwner) nextFileID() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ids++
	return o.ids
}

func (o *recordingOwner) compactionFinished(res *compactionResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, res)
}

func (o *recordingOwner) requestMajorCompaction() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.majors++
}

func (o *recordingOwner) majorRequests() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.majors
}

// recordingSink collects store byte reports.
type recordingSink struct {
	mu          sync.Mutex
	flushes     []int64
	compactions []*compactionResult
}

func (r *recordingSink) flushOccurred(_ int, bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes = append(r.flushes, bytes)
}

func (r *recordingSink) compactionOccurred(_ int, res *compactionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compactions = append(r.compactions, res)
}
