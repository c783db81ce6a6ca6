// Package devicequeue implements the per-device FIFO: a Queue guarded by
// a mutex and condition variable, shared by the device's worker pool and
// by producers enqueuing new work.
package devicequeue

import (
	"sync"

	"github.com/vectorshelf/tensorsched/internal/queue"
)

// DeviceQueue is one device's FIFO plus its synchronization primitives.
// The worker pool bound to it is managed by the package that spawns
// workers (internal/registry); DeviceQueue itself only owns the queue and
// its lock/cond/shutdown flag.
type DeviceQueue struct {
	Device string

	mu       sync.Mutex
	cond     *sync.Cond
	q        *queue.Queue
	shutdown bool
}

// New returns an empty DeviceQueue for device.
func New(device string) *DeviceQueue {
	dq := &DeviceQueue{Device: device, q: queue.New()}
	dq.cond = sync.NewCond(&dq.mu)
	return dq
}

// Enqueue implements the producer-side protocol: lock, push back, notify
// one waiter, unlock.
func (dq *DeviceQueue) Enqueue(v any) {
	dq.mu.Lock()
	defer dq.mu.Unlock()
	dq.q.PushBack(v)
	dq.cond.Signal()
}

// Lock acquires the queue's mutex. WorkerLoop holds it across selection,
// eviction, and post-run bookkeeping, releasing it only during execution.
func (dq *DeviceQueue) Lock() {
	dq.mu.Lock()
}

// Unlock releases the queue's mutex.
func (dq *DeviceQueue) Unlock() {
	dq.mu.Unlock()
}

// Wait blocks on the condition variable until signaled; the mutex must be
// held on entry and is held again on return. Spurious wakeups are
// tolerated by the caller re-checking queue state.
func (dq *DeviceQueue) Wait() {
	dq.cond.Wait()
}

// Queue returns the underlying FIFO. The caller must hold the mutex for
// every operation on it.
func (dq *DeviceQueue) Queue() *queue.Queue {
	return dq.q
}

// ShuttingDown reports whether Shutdown has been called. The caller must
// hold the mutex.
func (dq *DeviceQueue) ShuttingDown() bool {
	return dq.shutdown
}

// Shutdown sets the shutdown flag and wakes every worker so they can
// observe it and exit. It does not wait for workers to
// finish; the registry joins them separately.
func (dq *DeviceQueue) Shutdown() {
	dq.mu.Lock()
	dq.shutdown = true
	dq.mu.Unlock()
	dq.cond.Broadcast()
}
