package simulator

import (
	"container/list"
	"fmt"
	"sync"
)

// OperationType identifies a unit of work in a store's operation queue
type OperationType int

const (
	OperationPut OperationType = iota
	OperationCompaction
	OperationMajorCompaction
	OperationFlush
	OperationCompactionFinished
)

func (t OperationType) String() string {
	switch t {
	case OperationPut:
		return "put"
	case OperationCompaction:
		return "compaction"
	case OperationMajorCompaction:
		return "major_compaction"
	case OperationFlush:
		return "flush"
	case OperationCompactionFinished:
		return "compaction_finished"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// urgent reports whether the operation jumps the queue.
func (t OperationType) urgent() bool {
	return t == OperationFlush || t == OperationCompactionFinished
}

// Operation is one queued unit of work. Result is set only for
// OperationCompactionFinished.
type Operation struct {
	Type   OperationType
	result *compactionResult
}

func (o Operation) String() string {
	return o.Type.String()
}

// OperationQueue is a double-ended queue of store operations. Flushes and
// finished compactions are pushed to the front so they run next; everything
// else is served in FIFO order. It is safe for concurrent use.
type OperationQueue struct {
	mu    sync.Mutex
	ops   *list.List
	ready chan struct{}
}

// NewOperationQueue creates an empty queue
func NewOperationQueue() *OperationQueue {
	return &OperationQueue{
		ops:   list.New(),
		ready: make(chan struct{}, 1),
	}
}

// Push adds op at the end its type calls for.
func (q *OperationQueue) Push(op Operation) {
	q.mu.Lock()
	if op.Type.urgent() {
		q.ops.PushFront(op)
	} else {
		q.ops.PushBack(op)
	}
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Pop removes and returns the next operation
func (q *OperationQueue) Pop() (Operation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.ops.Front()
	if front == nil {
		return Operation{}, false
	}
	return q.ops.Remove(front).(Operation), true
}

// Len returns the number of queued operations
func (q *OperationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ops.Len()
}

// Ready is signalled after a push. A worker that found the queue empty waits
// on it before polling again.
func (q *OperationQueue) Ready() <-chan struct{} {
	return q.ready
}

// Types returns the queued operation types in service order (for
// inspection/debugging)
func (q *OperationQueue) Types() []OperationType {
	q.mu.Lock()
	defer q.mu.Unlock()
	types := make([]OperationType, 0, q.ops.Len())
	for e := q.ops.Front(); e != nil; e = e.Next() {
		types = append(types, e.Value.(Operation).Type)
	}
	return types
}
