package simulator

import (
	"sync"
	"time"
)

// AmplificationSample is one periodic observation of every store.
type AmplificationSample struct {
	// SimTime is the simulated time since the run started. It never
	// decreases between samples of one run.
	SimTime time.Duration
	Titles  []string
	// WriteAmplification is compaction bytes per flushed byte, by store. It
	// is NaN or +Inf before a store's first flush.
	WriteAmplification []float64
	// ReadAmplification is the file count, by store.
	ReadAmplification []int64
}

// AmplificationSink receives samples from the simulator's sampler goroutine.
type AmplificationSink interface {
	Record(sample AmplificationSample)
}

// SinkFunc adapts a function to AmplificationSink.
type SinkFunc func(sample AmplificationSample)

// Record calls f(sample).
func (f SinkFunc) Record(sample AmplificationSample) { f(sample) }

type multiSink []AmplificationSink

func (m multiSink) Record(sample AmplificationSample) {
	for _, s := range m {
		s.Record(sample)
	}
}

// MultiSink fans every sample out to all sinks, in order.
func MultiSink(sinks ...AmplificationSink) AmplificationSink {
	return multiSink(sinks)
}

type discardSink struct{}

func (discardSink) Record(AmplificationSample) {}

// SampleRecorder keeps every sample in memory.
type SampleRecorder struct {
	mu      sync.Mutex
	samples []AmplificationSample
}

// Record appends sample.
func (r *SampleRecorder) Record(sample AmplificationSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, sample)
}

// Samples returns the recorded samples in arrival order.
func (r *SampleRecorder) Samples() []AmplificationSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AmplificationSample(nil), r.samples...)
}
