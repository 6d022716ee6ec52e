package simulator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CompactionSize routes a compaction to one of the two background queues.
type CompactionSize int

const (
	CompactionLarge CompactionSize = iota
	CompactionSmall
)

func (s CompactionSize) String() string {
	switch s {
	case CompactionLarge:
		return "large"
	case CompactionSmall:
		return "small"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// CompactionPicker is a compaction selection policy.
type CompactionPicker interface {
	// PickCompaction selects the files to compact from files, which is
	// sorted by descending size. It returns nil or an empty collection when
	// nothing should be compacted, and never modifies files.
	PickCompaction(files *StoreFileCollection) *StoreFileCollection

	// Classify maps the total size of a prospective compaction to a queue.
	Classify(totalBytes int64) CompactionSize
}

// alwaysLarge is the classification of policies without a size cutoff.
type alwaysLarge struct{}

func (alwaysLarge) Classify(int64) CompactionSize { return CompactionLarge }

// CompactionRequest is one unit of background work. It is consumed exactly
// once by a BackgroundCompactor.
type CompactionRequest struct {
	Files      *StoreFileCollection
	TotalBytes int64
	IsMajor    bool
}

// compactionResult is what a finished compaction hands back to its store.
type compactionResult struct {
	file       *StoreFile
	totalIO    int64 // bytes read plus bytes written
	inputFiles int
	inputBytes int64
	major      bool
	duration   time.Duration
}

// compactionOwner is the store side of a Compactor.
type compactionOwner interface {
	columnFamily() int
	nextFileID() uint64
	compactionFinished(res *compactionResult)
	requestMajorCompaction()
}

// majorCompactionScheduler is implemented by policies that force periodic
// major compactions.
type majorCompactionScheduler interface {
	majorCompactionSchedule() (gapMs int64, jitter float64)
}

// Compactor selects compactions for one store and executes them on a large
// and a small background worker.
type Compactor struct {
	policy CompactionPolicyConfig
	picker CompactionPicker
	owner  compactionOwner
	env    Env
	logger *zap.Logger

	large *BackgroundCompactor
	small *BackgroundCompactor
}

// NewCompactor builds the compactor of a store from its policy. Both
// background workers stream their I/O through throttle.
func NewCompactor(policy CompactionPolicyConfig, owner compactionOwner, throttle *Throttle, env Env) *Compactor {
	env = env.withDefaults()
	c := &Compactor{
		policy: policy,
		picker: policy.newPicker(env),
		owner:  owner,
		env:    env,
		logger: env.Logger.With(zap.Int("store", owner.columnFamily()), zap.String("policy", policy.Title())),
	}
	c.large = newBackgroundCompactor(CompactionLarge, c, throttle)
	c.small = newBackgroundCompactor(CompactionSmall, c, throttle)
	return c
}

// Picker returns the selection policy.
func (c *Compactor) Picker() CompactionPicker { return c.picker }

// DoCompaction runs the selection policy against files and, if it picks
// anything, moves the picked files out of files into a background request.
// It reports whether a compaction was queued.
func (c *Compactor) DoCompaction(files *StoreFileCollection) bool {
	toCompact := c.picker.PickCompaction(files)
	if toCompact == nil || toCompact.Len() == 0 {
		return false
	}
	if ce := c.logger.Check(zap.DebugLevel, "compaction selected"); ce != nil {
		ce.Write(zap.String("layout", c.layout(files, toCompact)))
	}
	c.compact(files, toCompact, false)
	return true
}

// ForceMajorCompaction moves every file into one major request. It reports
// whether a compaction was queued.
func (c *Compactor) ForceMajorCompaction(files *StoreFileCollection) bool {
	if files.Len() == 0 {
		return false
	}
	c.compact(files, files.Clone(), true)
	return true
}

func (c *Compactor) compact(files, toCompact *StoreFileCollection, major bool) {
	files.RemoveAll(toCompact)
	req := CompactionRequest{Files: toCompact, TotalBytes: toCompact.TotalBytes(), IsMajor: major}
	if c.picker.Classify(req.TotalBytes) == CompactionLarge {
		c.large.Add(req)
	} else {
		c.small.Add(req)
	}
}

// Pending returns the number of queued, not yet started, requests.
func (c *Compactor) Pending() int {
	return c.large.Len() + c.small.Len()
}

// drainPending takes every queued request off both workers.
func (c *Compactor) drainPending() []CompactionRequest {
	return append(c.large.drain(), c.small.drain()...)
}

// Run runs both background workers, plus the periodic major compaction
// trigger when the policy has one, until ctx is done.
func (c *Compactor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.large.Run(ctx) })
	g.Go(func() error { return c.small.Run(ctx) })
	if sched, ok := c.policy.(majorCompactionScheduler); ok {
		if gapMs, jitter := sched.majorCompactionSchedule(); gapMs > 0 {
			g.Go(func() error { return c.runMajorCompactionTrigger(ctx, gapMs, jitter) })
		}
	}
	return g.Wait()
}

// runMajorCompactionTrigger asks the store for a major compaction every
// jittered gap of simulated time.
func (c *Compactor) runMajorCompactionTrigger(ctx context.Context, gapMs int64, jitter float64) error {
	for {
		wait := simulatedToWall(c.env.Rand.Jittered(gapMs, jitter), c.env.Settings.Load().XFaster)
		if err := sleepCtx(ctx, wait); err != nil {
			return nil
		}
		c.owner.requestMajorCompaction()
	}
}

// layout renders file sizes in memstore units, largest first, with the
// selected files in brackets.
func (c *Compactor) layout(all, selected *StoreFileCollection) string {
	cfg := c.env.Settings.Load()
	picked := make(map[*StoreFile]bool)
	for _, f := range selected.Files() {
		picked[f] = true
	}
	var sb strings.Builder
	for i, f := range all.Files() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		units := int64(float64(f.BytesSize()*cfg.CompressionRatio)/float64(cfg.MemstoreBytes) + 0.01)
		if picked[f] {
			fmt.Fprintf(&sb, "[%d]", units)
		} else {
			fmt.Fprintf(&sb, "%d", units)
		}
	}
	return sb.String()
}

// BackgroundCompactor executes compaction requests of one size class, one at
// a time, on its own goroutine.
type BackgroundCompactor struct {
	size   CompactionSize
	owner  *Compactor
	stream *ThrottleStream
	logger *zap.Logger

	mu    sync.Mutex
	queue []CompactionRequest
	ready chan struct{}
}

func newBackgroundCompactor(size CompactionSize, owner *Compactor, throttle *Throttle) *BackgroundCompactor {
	return &BackgroundCompactor{
		size:   size,
		owner:  owner,
		stream: throttle.Stream(),
		logger: owner.logger.With(zap.Stringer("queue", size)),
		ready:  make(chan struct{}, 1),
	}
}

// Add queues a request and wakes the worker.
func (b *BackgroundCompactor) Add(req CompactionRequest) {
	b.mu.Lock()
	b.queue = append(b.queue, req)
	b.mu.Unlock()
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// Len returns the number of queued requests.
func (b *BackgroundCompactor) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *BackgroundCompactor) poll() (CompactionRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return CompactionRequest{}, false
	}
	req := b.queue[0]
	b.queue[0] = CompactionRequest{}
	b.queue = b.queue[1:]
	return req, true
}

func (b *BackgroundCompactor) drain() []CompactionRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	drained := b.queue
	b.queue = nil
	return drained
}

// Run services the queue until ctx is done.
func (b *BackgroundCompactor) Run(ctx context.Context) error {
	b.logger.Debug("background compactor started")
	defer b.logger.Debug("background compactor stopped")
	for {
		processed, err := b.runOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-b.ready:
		}
	}
}

// runOnce executes the next queued request, if any. A major request also
// absorbs every request pending on either queue of the store.
func (b *BackgroundCompactor) runOnce(ctx context.Context) (bool, error) {
	req, ok := b.poll()
	if !ok {
		return false, nil
	}
	inputs := req.Files.Files()
	total := req.TotalBytes
	if req.IsMajor {
		for _, other := range b.owner.drainPending() {
			inputs = append(inputs, other.Files.Files()...)
			total += other.TotalBytes
		}
		all := NewStoreFileCollection(inputs...)
		b.logger.Info("major compaction started",
			zap.Int64("totalBytes", total),
			zap.Int("files", len(inputs)),
			zap.String("layout", b.owner.layout(all, all)))
	}

	start := time.Now()
	res, err := b.merge(ctx, inputs)
	if err != nil {
		return true, err
	}
	res.totalIO += total
	res.inputBytes = total
	res.major = req.IsMajor
	res.duration = time.Since(start)

	if req.IsMajor {
		xFaster := b.owner.env.Settings.Load().XFaster
		simulated := time.Duration(int64(res.duration) * xFaster)
		b.logger.Info("major compaction finished",
			zap.Int64("totalBytes", total),
			zap.Int64("outputBytes", res.file.BytesSize()),
			zap.Float64("simulatedDays", simulated.Hours()/24))
	}
	b.owner.owner.compactionFinished(res)
	return true, nil
}

// merge folds inputs into one new file. Each step reads the absorbed file
// and writes the bytes that survived.
func (b *BackgroundCompactor) merge(ctx context.Context, inputs []*StoreFile) (*compactionResult, error) {
	env := b.owner.env
	out := newStoreFile(b.owner.owner.nextFileID(), newKeyValueData(env.Settings, env.Rand, env.Clock))
	var written int64
	for _, f := range inputs {
		n, err := out.mergeWith(ctx, f, b.stream)
		written += n
		if err != nil {
			return nil, err
		}
	}
	return &compactionResult{file: out, totalIO: written, inputFiles: len(inputs)}, nil
}
