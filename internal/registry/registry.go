// Package registry implements the process-wide device registry: an
// insertion-only map from device name to DeviceQueue, and the top-level
// Submit/Shutdown lifecycle that owns each device's worker pool.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vectorshelf/tensorsched/internal/dagrun"
	"github.com/vectorshelf/tensorsched/internal/devicequeue"
	"github.com/vectorshelf/tensorsched/internal/scheduler"
)

// Config controls worker-pool shape. ThreadsPerQueue must be at least 1.
type Config struct {
	ThreadsPerQueue int
}

// Registry holds one DeviceQueue and worker pool per distinct device
// name, created lazily on first use. Locks are always taken registry
// mutex first, then a DeviceQueue mutex, then a run's mutex; Registry
// never holds its own mutex while calling into a DeviceQueue.
type Registry struct {
	cfg    Config
	deps   scheduler.Deps
	logger *slog.Logger

	mu      sync.Mutex
	queues  map[string]*deviceEntry
	closing bool

	// spawnWorker starts the worker goroutines for dq and reports an
	// error if they could not be started. Real goroutine creation never
	// fails; the hook exists so tests can exercise the teardown path
	// without faking the Go runtime.
	spawnWorker func(dq *devicequeue.DeviceQueue) error
}

type deviceEntry struct {
	dq *devicequeue.DeviceQueue
	wg sync.WaitGroup
}

// Option customizes a Registry at construction time.
type Option func(*Registry)

// WithSpawnHook overrides the worker-spawn function, for tests that need to
// force ErrWorkerSpawnFailed.
func WithSpawnHook(fn func(dq *devicequeue.DeviceQueue) error) Option {
	return func(r *Registry) { r.spawnWorker = fn }
}

// New returns a Registry that spawns cfg.ThreadsPerQueue workers per device,
// running deps.Executor/deps.Inspector/deps.Unblock against each.
func New(cfg Config, deps scheduler.Deps, logger *slog.Logger, opts ...Option) *Registry {
	if cfg.ThreadsPerQueue < 1 {
		cfg.ThreadsPerQueue = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		queues: make(map[string]*deviceEntry),
	}
	r.spawnWorker = func(dq *devicequeue.DeviceQueue) error {
		for i := 0; i < r.cfg.ThreadsPerQueue; i++ {
			entry := r.queues[dq.Device]
			entry.wg.Add(1)
			go func() {
				defer entry.wg.Done()
				scheduler.WorkerLoop(dq, r.deps)
			}()
		}
		return nil
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ensure returns the DeviceQueue for device, creating it (and its worker
// pool) on first use. device is compared case-insensitively: "cpu" and
// "CPU" name the same queue.
func (r *Registry) Ensure(ctx context.Context, device string) (*devicequeue.DeviceQueue, error) {
	if device == "" {
		return nil, scheduler.ErrDeviceNameEmpty
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := strings.ToUpper(device)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closing {
		return nil, scheduler.ErrQueueShutdown
	}
	if entry, ok := r.queues[key]; ok {
		return entry.dq, nil
	}

	dq := devicequeue.New(key)
	entry := &deviceEntry{dq: dq}
	r.queues[key] = entry
	if err := r.spawnWorker(dq); err != nil {
		delete(r.queues, key)
		return nil, fmt.Errorf("%w: device %s: %v", scheduler.ErrWorkerSpawnFailed, key, err)
	}
	r.logger.Debug("device queue created", "device", key)
	return dq, nil
}

// Submit enqueues info on every device its DAG touches, creating each
// device's queue and worker pool as needed.
func (r *Registry) Submit(ctx context.Context, info *dagrun.Info) error {
	devices := info.DAG.Devices()
	if len(devices) == 0 {
		return fmt.Errorf("dag %s touches no devices", info.ID)
	}
	for _, device := range devices {
		dq, err := r.Ensure(ctx, device)
		if err != nil {
			return err
		}
		dq.Enqueue(info)
	}
	return nil
}

// Snapshot returns the current queue depth of every known device, for the
// housekeeping reporter and the CLI's inspect command.
func (r *Registry) Snapshot() map[string]int {
	r.mu.Lock()
	entries := make([]*deviceEntry, 0, len(r.queues))
	for _, e := range r.queues {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	depths := make(map[string]int, len(entries))
	for _, e := range entries {
		e.dq.Lock()
		depths[e.dq.Device] = e.dq.Queue().Length()
		e.dq.Unlock()
	}
	return depths
}

// Shutdown stops every device's worker pool, joining them concurrently
// rather than serially. Once Shutdown has marked the registry closing,
// Ensure and Submit return ErrQueueShutdown; a Submit that got its queue
// from Ensure before that point still enqueues its work.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closing = true
	entries := make([]*deviceEntry, 0, len(r.queues))
	for _, e := range r.queues {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	for _, e := range entries {
		e.dq.Shutdown()
	}

	g, _ := errgroup.WithContext(ctx)
	for _, e := range entries {
		e := e
		g.Go(func() error {
			e.wg.Wait()
			return nil
		})
	}
	return g.Wait()
}
