package simulator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// amplificationRecorder receives the byte totals of finished store work.
type amplificationRecorder interface {
	flushOccurred(cf int, bytes int64)
	compactionOccurred(cf int, res *compactionResult)
}

type noopRecorder struct{}

func (noopRecorder) flushOccurred(int, int64)                   {}
func (noopRecorder) compactionOccurred(int, *compactionResult) {}

// Store is one column family: a memstore, its flushed files and a compactor.
// All changes to the memstore and the file list are made by the single
// worker draining the operation queue.
type Store struct {
	cf       int
	title    string
	env      Env
	logger   *zap.Logger
	recorder amplificationRecorder

	memStore  *MemStore
	files     *StoreFileCollection
	compactor *Compactor
	queue     *OperationQueue
	throttle  *Throttle
	stream    *ThrottleStream

	fileIDs atomic.Uint64
	readAmp atomic.Int64
}

// NewStore creates the store of column family cf. recorder may be nil.
func NewStore(cf int, policy CompactionPolicyConfig, env Env, recorder amplificationRecorder) *Store {
	env = env.withDefaults()
	if recorder == nil {
		recorder = noopRecorder{}
	}
	s := &Store{
		cf:       cf,
		title:    fmt.Sprintf("%d(%s)", cf, policy.Title()),
		env:      env,
		logger:   env.Logger.With(zap.Int("store", cf)),
		recorder: recorder,
		memStore: NewMemStore(env.Settings, env.Rand, env.Clock),
		files:    NewStoreFileCollection(),
		queue:    NewOperationQueue(),
		throttle: NewThrottle(env.Settings),
	}
	s.stream = s.throttle.Stream()
	s.compactor = NewCompactor(policy, s, s.throttle, env)
	return s
}

// ColumnFamily returns the store's column family id.
func (s *Store) ColumnFamily() int { return s.cf }

// Title is the chart label of the store: its column family and policy.
func (s *Store) Title() string { return s.title }

// Put queues one key-value pack write.
func (s *Store) Put() {
	s.queue.Push(Operation{Type: OperationPut})
}

// ForceMajorCompaction queues a compaction of every file.
func (s *Store) ForceMajorCompaction() {
	s.queue.Push(Operation{Type: OperationMajorCompaction})
}

// Files returns a snapshot of the store's files, largest first. Files being
// compacted are not included.
func (s *Store) Files() []*StoreFile { return s.files.Files() }

// QueueLen returns the number of pending operations.
func (s *Store) QueueLen() int { return s.queue.Len() }

// PendingCompactions returns the number of compactions waiting for a worker.
func (s *Store) PendingCompactions() int { return s.compactor.Pending() }

// ReadAmplification returns the file count as of the last flush or finished
// compaction.
func (s *Store) ReadAmplification() int64 { return s.readAmp.Load() }

// MemStoreBytes returns the bytes buffered in the memstore. Only meaningful
// while the store is not running.
func (s *Store) MemStoreBytes() int64 { return s.memStore.BytesSize() }

// Throttle returns the store's backend model.
func (s *Store) Throttle() *Throttle { return s.throttle }

func (s *Store) columnFamily() int { return s.cf }

func (s *Store) nextFileID() uint64 { return s.fileIDs.Add(1) }

func (s *Store) compactionFinished(res *compactionResult) {
	s.queue.Push(Operation{Type: OperationCompactionFinished, result: res})
}

func (s *Store) requestMajorCompaction() {
	s.ForceMajorCompaction()
}

// Run starts the operation worker, both compaction workers and the queue
// monitor, and blocks until ctx is done. Work still queued at that point is
// dropped.
func (s *Store) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.runOperations(ctx) })
	g.Go(func() error { return s.compactor.Run(ctx) })
	g.Go(func() error { return s.monitorQueue(ctx) })
	return g.Wait()
}

func (s *Store) runOperations(ctx context.Context) error {
	s.logger.Debug("store worker started", zap.String("title", s.title))
	defer s.logger.Debug("store worker stopped")
	for {
		if err := s.processPending(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.queue.Ready():
		}
	}
}

// processPending applies queued operations until the queue is empty or ctx
// is done.
func (s *Store) processPending(ctx context.Context) error {
	for ctx.Err() == nil {
		op, ok := s.queue.Pop()
		if !ok {
			return nil
		}
		if err := s.apply(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) apply(ctx context.Context, op Operation) error {
	switch op.Type {
	case OperationPut:
		s.memStore.Put()
		if s.memStore.IsFull() {
			s.queue.Push(Operation{Type: OperationFlush})
		}
	case OperationFlush:
		f, err := s.memStore.Flush(ctx, s.nextFileID(), s.stream)
		if err != nil {
			return err
		}
		s.files.Add(f)
		s.recorder.flushOccurred(s.cf, f.BytesSize())
		s.readAmp.Store(int64(s.files.Len()))
		s.queue.Push(Operation{Type: OperationCompaction})
	case OperationCompaction:
		s.compactor.DoCompaction(s.files)
	case OperationMajorCompaction:
		s.compactor.ForceMajorCompaction(s.files)
	case OperationCompactionFinished:
		s.files.Add(op.result.file)
		s.recorder.compactionOccurred(s.cf, op.result)
		s.readAmp.Store(int64(s.files.Len()))
		s.queue.Push(Operation{Type: OperationCompaction})
	default:
		return SimError{Message: fmt.Sprintf("unknown store operation %s", op)}
	}
	return nil
}

// monitorQueue warns while the operation queue is above its high-water mark,
// a sign that the configured rates cannot be sustained.
func (s *Store) monitorQueue(ctx context.Context) error {
	interval := time.Duration(s.env.Settings.Load().QueueLogIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			depth := s.queue.Len()
			if depth >= s.env.Settings.Load().QueueHighWaterMark {
				s.logger.Warn("store operation queue is backed up",
					zap.Int("depth", depth),
					zap.Int("pendingCompactions", s.compactor.Pending()))
			}
		}
	}
}
