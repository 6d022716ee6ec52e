package simulator

import (
	"math"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	maxTrackedCompactionBytes = int64(1) << 50
	maxTrackedDurationMicros  = int64(24 * time.Hour / time.Microsecond)
	maxTrackedInputFiles      = int64(100_000)
)

// storeCounters accumulates the work done by one store during a run.
// Guarded by the simulator's counters lock.
type storeCounters struct {
	flushCount           int64
	flushBytes           int64
	compactionCount      int64
	majorCompactionCount int64
	compactionBytes      int64

	compactionInputBytes *hdrhistogram.Histogram
	compactionInputFiles *hdrhistogram.Histogram
	compactionDuration   *hdrhistogram.Histogram // wall-clock µs
}

func newStoreCounters() *storeCounters {
	return &storeCounters{
		compactionInputBytes: hdrhistogram.New(1, maxTrackedCompactionBytes, 2),
		compactionInputFiles: hdrhistogram.New(1, maxTrackedInputFiles, 2),
		compactionDuration:   hdrhistogram.New(1, maxTrackedDurationMicros, 2),
	}
}

func recordClamped(h *hdrhistogram.Histogram, v, max int64) {
	if v < 1 {
		v = 1
	}
	if v > max {
		v = max
	}
	_ = h.RecordValue(v)
}

func (c *storeCounters) recordFlush(bytes int64) {
	c.flushCount++
	c.flushBytes += bytes
}

func (c *storeCounters) recordCompaction(res *compactionResult) {
	c.compactionCount++
	if res.major {
		c.majorCompactionCount++
	}
	c.compactionBytes += res.totalIO
	recordClamped(c.compactionInputBytes, res.inputBytes, maxTrackedCompactionBytes)
	recordClamped(c.compactionInputFiles, int64(res.inputFiles), maxTrackedInputFiles)
	recordClamped(c.compactionDuration, res.duration.Microseconds(), maxTrackedDurationMicros)
}

// writeAmplification is compaction bytes per flushed byte. It is NaN or +Inf
// before the first flush.
func (c *storeCounters) writeAmplification() float64 {
	return float64(c.compactionBytes) / float64(c.flushBytes)
}

// StoreMetrics is a point-in-time summary of one store
type StoreMetrics struct {
	ColumnFamily int    `json:"columnFamily"`
	Title        string `json:"title"`

	// Amplification factors
	WriteAmplification float64 `json:"writeAmplification"` // compaction bytes / flush bytes, 0 before the first flush
	ReadAmplification  int64   `json:"readAmplification"`  // files a read has to touch

	// Cumulative counters
	FlushCount           int64 `json:"flushCount"`
	FlushBytes           int64 `json:"flushBytes"`
	CompactionCount      int64 `json:"compactionCount"`
	MajorCompactionCount int64 `json:"majorCompactionCount"`
	CompactionBytes      int64 `json:"compactionBytes"` // bytes read plus written by compactions

	// Current state
	FileCount          int   `json:"fileCount"`
	FileBytes          int64 `json:"fileBytes"`
	QueueDepth         int   `json:"queueDepth"`
	PendingCompactions int   `json:"pendingCompactions"`

	// Compaction distributions
	CompactionInputBytesP50 int64   `json:"compactionInputBytesP50"`
	CompactionInputBytesMax int64   `json:"compactionInputBytesMax"`
	CompactionInputFilesAvg float64 `json:"compactionInputFilesAvg"`
	CompactionDurationP50Ms float64 `json:"compactionDurationP50Ms"` // wall clock
	CompactionDurationP99Ms float64 `json:"compactionDurationP99Ms"` // wall clock
}

// snapshot fills the counter-derived fields of StoreMetrics.
func (c *storeCounters) snapshot(m *StoreMetrics) {
	m.FlushCount = c.flushCount
	m.FlushBytes = c.flushBytes
	m.CompactionCount = c.compactionCount
	m.MajorCompactionCount = c.majorCompactionCount
	m.CompactionBytes = c.compactionBytes
	m.WriteAmplification = finiteOrZero(c.writeAmplification())
	if c.compactionCount > 0 {
		m.CompactionInputBytesP50 = c.compactionInputBytes.ValueAtQuantile(50)
		m.CompactionInputBytesMax = c.compactionInputBytes.Max()
		m.CompactionInputFilesAvg = c.compactionInputFiles.Mean()
		m.CompactionDurationP50Ms = float64(c.compactionDuration.ValueAtQuantile(50)) / 1000
		m.CompactionDurationP99Ms = float64(c.compactionDuration.ValueAtQuantile(99)) / 1000
	}
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
