package simulator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Simulator drives one region in accelerated time. It injects puts at the
// rate the configuration calls for, lets every store flush and compact on its
// own goroutines, and periodically reports each store's write and read
// amplification to a sink.
//
// A Simulator can be run repeatedly; every Run starts from empty stores.
type Simulator struct {
	env  Env
	sink AmplificationSink

	mu      sync.Mutex // guards region, cancel and running
	region  *Region
	cancel  context.CancelFunc
	running bool

	// countersMu guards counters, which are indexed by column family.
	countersMu sync.Mutex
	counters   []*storeCounters

	simTime atomic.Int64 // simulated nanoseconds since the run started
}

// Option configures a Simulator
type Option func(*Simulator)

// WithLogger sets the logger used by the simulator and every store.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Simulator) { s.env.Logger = logger }
}

// WithSink sets the destination of amplification samples.
func WithSink(sink AmplificationSink) Option {
	return func(s *Simulator) { s.sink = sink }
}

// WithClock replaces the clock used to age key-values.
func WithClock(clock Clock) Option {
	return func(s *Simulator) { s.env.Clock = clock }
}

// NewSimulator creates a simulator
func NewSimulator(cfg Config, opts ...Option) (*Simulator, error) {
	settings, err := NewSettings(cfg)
	if err != nil {
		return nil, err
	}
	s := &Simulator{
		env:  Env{Settings: settings},
		sink: discardSink{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.env = s.env.withDefaults()
	if err := s.reset(); err != nil {
		return nil, err
	}
	return s, nil
}

// Settings returns the live configuration. Edits take effect on the next
// cycle of every component; StoreCount and compactions apply from the next
// Run.
func (s *Simulator) Settings() *Settings { return s.env.Settings }

// Region returns the region of the current or most recent run.
func (s *Simulator) Region() *Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.region
}

// Running reports whether Run is in progress.
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SimTime returns the simulated time elapsed in the current run, as of the
// last sample.
func (s *Simulator) SimTime() time.Duration {
	return time.Duration(s.simTime.Load())
}

// reset sizes a fresh region from the current configuration and clears the
// per-store counters.
func (s *Simulator) reset() error {
	cfg := s.env.Settings.Load()
	policies := make([]CompactionPolicyConfig, cfg.StoreCount)
	for cf := range policies {
		policy, err := cfg.CompactionSpecFor(cf).Resolve(cfg.MemstoreBytes, s.env.Rand)
		if err != nil {
			return errors.Wrapf(err, "store %d", cf)
		}
		policies[cf] = policy
	}
	counters := make([]*storeCounters, len(policies))
	for i := range counters {
		counters[i] = newStoreCounters()
	}

	s.countersMu.Lock()
	s.counters = counters
	s.countersMu.Unlock()

	region := NewRegion(policies, s.env, s)
	s.mu.Lock()
	s.region = region
	s.mu.Unlock()
	s.simTime.Store(0)
	return nil
}

// Run starts a fresh simulation and blocks until ctx is done or Stop is
// called. Queued work is abandoned on return.
func (s *Simulator) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return SimError{Message: "simulation already running"}
	}
	s.running = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		s.running = false
		s.cancel = nil
		s.mu.Unlock()
	}()

	if err := s.reset(); err != nil {
		return err
	}
	region := s.Region()
	logger := s.env.Logger
	logger.Info("simulation started", zap.Strings("stores", region.Titles()))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return region.Run(ctx) })
	g.Go(func() error { return s.runSampler(ctx, region) })
	g.Go(func() error { return s.runWriteLoop(ctx, region) })
	err := g.Wait()

	logger.Info("simulation stopped", zap.Duration("simulatedTime", s.SimTime()), zap.Error(err))
	return err
}

// Stop ends the current run, if any.
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Put writes one key-value pack to column family cf of the current region.
func (s *Simulator) Put(cf int) error {
	region := s.Region()
	if cf < 0 || cf >= region.Len() {
		return SimError{Message: fmt.Sprintf("no store for column family %d", cf)}
	}
	region.Put(cf)
	return nil
}

// ForceMajorCompaction queues a major compaction on column family cf.
func (s *Simulator) ForceMajorCompaction(cf int) error {
	region := s.Region()
	if cf < 0 || cf >= region.Len() {
		return SimError{Message: fmt.Sprintf("no store for column family %d", cf)}
	}
	region.Store(cf).ForceMajorCompaction()
	return nil
}

func (s *Simulator) flushOccurred(cf int, bytes int64) {
	s.countersMu.Lock()
	defer s.countersMu.Unlock()
	s.counters[cf].recordFlush(bytes)
}

func (s *Simulator) compactionOccurred(cf int, res *compactionResult) {
	s.countersMu.Lock()
	defer s.countersMu.Unlock()
	s.counters[cf].recordCompaction(res)
}

// WriteAmplification returns compaction bytes per flushed byte for every
// store. Stores that have not flushed yet report NaN or +Inf.
func (s *Simulator) WriteAmplification() []float64 {
	s.countersMu.Lock()
	defer s.countersMu.Unlock()
	amps := make([]float64, len(s.counters))
	for i, c := range s.counters {
		amps[i] = c.writeAmplification()
	}
	return amps
}

// Metrics returns a summary of every store.
func (s *Simulator) Metrics() []StoreMetrics {
	region := s.Region()
	metrics := make([]StoreMetrics, region.Len())
	for cf := range metrics {
		store := region.Store(cf)
		files := store.Files()
		var fileBytes int64
		for _, f := range files {
			fileBytes += f.BytesSize()
		}
		metrics[cf] = StoreMetrics{
			ColumnFamily:       cf,
			Title:              store.Title(),
			ReadAmplification:  store.ReadAmplification(),
			FileCount:          len(files),
			FileBytes:          fileBytes,
			QueueDepth:         store.QueueLen(),
			PendingCompactions: store.PendingCompactions(),
		}
	}
	s.countersMu.Lock()
	defer s.countersMu.Unlock()
	for cf := range metrics {
		if cf < len(s.counters) {
			s.counters[cf].snapshot(&metrics[cf])
		}
	}
	return metrics
}

func (s *Simulator) sample(region *Region) AmplificationSample {
	return AmplificationSample{
		SimTime:            s.SimTime(),
		Titles:             region.Titles(),
		WriteAmplification: s.WriteAmplification(),
		ReadAmplification:  region.ReadAmplification(),
	}
}

// runSampler reports amplification every SampleIntervalMs of wall time.
// Simulated time advances by the elapsed wall time times xFaster.
func (s *Simulator) runSampler(ctx context.Context, region *Region) error {
	interval := time.Duration(s.env.Settings.Load().SampleIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			if elapsed > 0 {
				s.simTime.Add(int64(elapsed) * s.env.Settings.Load().XFaster)
			}
			s.sink.Record(s.sample(region))
		}
	}
}

// oversleepLogOneIn samples the write loop's oversleep log.
const oversleepLogOneIn = 250

// runWriteLoop issues puts to random column families, paced by writePacer.
func (s *Simulator) runWriteLoop(ctx context.Context, region *Region) error {
	return s.writeLoop(ctx, region, newWritePacer(time.Now()), oversleepLogOneIn)
}

// writeLoop puts until ctx is done. While the pacer's deadline is in the
// past it puts without sleeping, so a late loop catches up. One in logOneIn
// iterations that are later than the expected gap is logged.
func (s *Simulator) writeLoop(ctx context.Context, region *Region, pacer *writePacer, logOneIn int) error {
	for ctx.Err() == nil {
		region.Put(s.env.Rand.Intn(region.Len()))

		wait := pacer.advance(s.env.Settings.Load(), region.Len())
		late := time.Since(pacer.deadline)
		if late < 0 {
			if err := sleepCtx(ctx, -late); err != nil {
				return nil
			}
			continue
		}
		tolerance := 100 * time.Millisecond
		if wait > tolerance {
			tolerance = wait
		}
		if late > tolerance && s.env.Rand.Intn(logOneIn) == 0 {
			s.env.Logger.Info("write loop overslept",
				zap.Duration("behind", late),
				zap.Duration("gap", wait))
		}
	}
	return nil
}
