package simulator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Throttle models the storage backend of one store: a read channel and a
// write channel, each with a fixed bandwidth. Callers of the same direction
// serialize on one lock while they sleep off their transfer time, so N
// concurrent writers each wait about N times longer and the aggregate never
// exceeds the configured rate. Reads and writes do not contend.
type Throttle struct {
	settings *Settings

	readMu  sync.Mutex
	writeMu sync.Mutex

	bytesRead    atomic.Int64
	bytesWritten atomic.Int64
}

// NewThrottle creates the backend model for one store.
func NewThrottle(settings *Settings) *Throttle {
	return &Throttle{settings: settings}
}

func transferDelay(bytes, bytesPerSec, xFaster int64) time.Duration {
	if bytes <= 0 {
		return 0
	}
	// bytes*1000/(rate*xFaster) ms, computed in float to avoid overflow on
	// multi-GiB blocks.
	seconds := float64(bytes) / (float64(bytesPerSec) * float64(xFaster))
	return time.Duration(seconds * float64(time.Second))
}

// ReadDelay is the wall-clock time needed to read bytes.
func (t *Throttle) ReadDelay(bytes int64) time.Duration {
	cfg := t.settings.Load()
	return transferDelay(bytes, cfg.HDFSReadBytesPerSec, cfg.XFaster)
}

// WriteDelay is the wall-clock time needed to write bytes.
func (t *Throttle) WriteDelay(bytes int64) time.Duration {
	cfg := t.settings.Load()
	return transferDelay(bytes, cfg.HDFSWriteBytesPerSec, cfg.XFaster)
}

func (t *Throttle) read(ctx context.Context, bytes int64) error {
	t.readMu.Lock()
	defer t.readMu.Unlock()
	if err := sleepCtx(ctx, t.ReadDelay(bytes)); err != nil {
		return err
	}
	t.bytesRead.Add(bytes)
	return nil
}

func (t *Throttle) write(ctx context.Context, bytes int64) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := sleepCtx(ctx, t.WriteDelay(bytes)); err != nil {
		return err
	}
	t.bytesWritten.Add(bytes)
	return nil
}

// BytesRead returns the bytes that have paid their read delay so far.
func (t *Throttle) BytesRead() int64 { return t.bytesRead.Load() }

// BytesWritten returns the bytes that have paid their write delay so far.
func (t *Throttle) BytesWritten() int64 { return t.bytesWritten.Load() }

// Stream returns a new caching accumulator over t. Each worker owns its own
// stream; streams are not safe for concurrent use.
func (t *Throttle) Stream() *ThrottleStream {
	return &ThrottleStream{throttle: t}
}

// ThrottleStream accumulates small transfers of one worker and only blocks
// once a whole block is pending in a direction, so sub-block calls are free.
type ThrottleStream struct {
	throttle     *Throttle
	pendingRead  int64
	pendingWrite int64
}

// Read accounts for reading bytes, blocking for each completed block.
func (s *ThrottleStream) Read(ctx context.Context, bytes int64) error {
	block := s.throttle.settings.Load().ThrottleBlockBytes
	s.pendingRead += bytes
	for s.pendingRead >= block {
		if err := s.throttle.read(ctx, block); err != nil {
			return err
		}
		s.pendingRead -= block
	}
	return nil
}

// Write accounts for writing bytes, blocking for each completed block.
func (s *ThrottleStream) Write(ctx context.Context, bytes int64) error {
	block := s.throttle.settings.Load().ThrottleBlockBytes
	s.pendingWrite += bytes
	for s.pendingWrite >= block {
		if err := s.throttle.write(ctx, block); err != nil {
			return err
		}
		s.pendingWrite -= block
	}
	return nil
}

// Pending returns the cached, not yet paid, read and write bytes.
func (s *ThrottleStream) Pending() (read, write int64) {
	return s.pendingRead, s.pendingWrite
}
