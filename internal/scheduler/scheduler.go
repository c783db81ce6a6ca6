// Package scheduler implements the worker loop each device thread runs
// against its DeviceQueue: an opportunistic-batching, dependency-respecting
// scheduling round repeated until shutdown.
package scheduler

import (
	"log/slog"
	"time"

	"github.com/vectorshelf/tensorsched/internal/dagrun"
	"github.com/vectorshelf/tensorsched/internal/devicequeue"
	"github.com/vectorshelf/tensorsched/internal/executor"
	"github.com/vectorshelf/tensorsched/internal/metrics"
	"github.com/vectorshelf/tensorsched/internal/queue"
	"github.com/vectorshelf/tensorsched/internal/tensor"
)

// DagInspector is the set of pure, mutex-guarded queries WorkerLoop uses
// to decide what is runnable and what may be batched.
type DagInspector interface {
	CurrentOpAndInfo(info *dagrun.Info, device string) (op tensor.Op, hasOp, ready, batchable, deviceComplete, dagComplete bool)
	OpBatchInfo(info *dagrun.Info, op tensor.Op) (batchSize, minBatchSize, inBatchSize int)
	BatchingMatch(infoA *dagrun.Info, opA tensor.Op, infoB *dagrun.Info, opB tensor.Op) (compatible bool, addedBatchSize int)
}

// Executor runs ops; see internal/executor for the reference backend.
type Executor interface {
	RunSingle(info *dagrun.Info, device string, op tensor.Op)
	RunBatched(device string, group []executor.BatchMember)
}

// Deps bundles everything a WorkerLoop needs beyond the DeviceQueue it is
// bound to. One Deps is shared by every worker on every device.
type Deps struct {
	Inspector  DagInspector
	Executor   Executor
	Unblock    dagrun.UnblockFunc
	Metrics    *metrics.Collectors
	Logger     *slog.Logger
	RetrySleep time.Duration
	// Sleep defaults to time.Sleep; setting it replaces the real sleep
	// on the retry-swap path.
	Sleep func(time.Duration)
}

func (d Deps) sleep(dur time.Duration) {
	if d.Sleep != nil {
		d.Sleep(dur)
		return
	}
	time.Sleep(dur)
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// member is one queue entry selected into the current round's batch.
type member struct {
	node *queue.Node
	info *dagrun.Info
	op   tensor.Op
}

// WorkerLoop runs scheduling rounds against dq until dq.Shutdown is
// observed. Call it once per worker goroutine; the registry spawns
// ThreadsPerQueue of these per device.
func WorkerLoop(dq *devicequeue.DeviceQueue, deps Deps) {
	log := deps.logger().With("device", dq.Device)
	dq.Lock()
	defer dq.Unlock()
	for {
		if dq.ShuttingDown() {
			log.Debug("worker exiting", "reason", "shutdown")
			return
		}
		if dq.Queue().Length() == 0 {
			dq.Wait()
			continue
		}
		if !runRound(dq, deps, log) {
			// No candidate was runnable this pass (e.g. a lone entry whose
			// minBatchSize can't be met by anything else currently queued):
			// wait rather than busy-spin. The queue's length alone can't
			// gate this wait, since runRound may leave entries queued
			// without having made progress on any of them.
			if dq.ShuttingDown() {
				return
			}
			dq.Wait()
		}
	}
}

// runRound executes one scheduling round and reports whether it made
// progress. dq's mutex must be held on entry and is held again on return;
// it may be released and reacquired during execution or the retry sleep.
func runRound(dq *devicequeue.DeviceQueue, deps Deps, log *slog.Logger) bool {
	head := dq.Queue().Front()

walk:
	for head != nil {
		headInfo := head.Value().(*dagrun.Info)
		op, _, ready, batchable, deviceComplete, dagComplete := deps.Inspector.CurrentOpAndInfo(headInfo, dq.Device)

		batch := []member{{node: head, info: headInfo, op: op}}

		switch {
		case dagComplete:
			evictBatch(dq, batch)
			finishMember(headInfo, deps, log, "unblock")
			updateQueueDepth(dq, deps)
			return true

		case deviceComplete:
			evictBatch(dq, batch)
			finishMember(headInfo, deps, log, "device_complete")
			updateQueueDepth(dq, deps)
			return true

		case !ready:
			evictBatch(dq, batch)
			retrySwap(dq, deps, headInfo)
			updateQueueDepth(dq, deps)
			return true

		default: // do_run
			if batchable {
				batch = extendBatch(dq, deps, head, headInfo, op, batch)
				if batch == nil {
					// minBatchSize unmet anywhere in the queue: advance and
					// restart the selection walk from the next head.
					head = dq.Queue().Next(head)
					continue walk
				}
			}
			evictBatch(dq, batch)
			runBatch(dq, deps, log, batch)
			updateQueueDepth(dq, deps)
			return true
		}
	}
	return false
}

// extendBatch scans forward from head for compatible, ready, batchable
// candidates, stopping on the first candidate that would overflow
// batchSize. It returns nil if the op needs minBatchSize and the scan
// could not reach it, signaling the caller to advance past head and
// restart.
func extendBatch(dq *devicequeue.DeviceQueue, deps Deps, head *queue.Node, headInfo *dagrun.Info, op tensor.Op, batch []member) []member {
	batchSize, minBatchSize, inBatchSize := deps.Inspector.OpBatchInfo(headInfo, op)
	if inBatchSize <= 0 || inBatchSize >= batchSize {
		return batch
	}

	total := inBatchSize
	for cur := dq.Queue().Next(head); cur != nil; cur = dq.Queue().Next(cur) {
		candInfo := cur.Value().(*dagrun.Info)
		candOp, candHasOp, candReady, candBatchable, _, _ := deps.Inspector.CurrentOpAndInfo(candInfo, dq.Device)
		if !candHasOp || !candReady || !candBatchable {
			continue
		}
		compatible, added := deps.Inspector.BatchingMatch(headInfo, op, candInfo, candOp)
		if !compatible {
			continue
		}
		if total+added > batchSize {
			break
		}
		batch = append(batch, member{node: cur, info: candInfo, op: candOp})
		total += added
	}

	if minBatchSize != 0 && total < minBatchSize {
		return nil
	}
	return batch
}

func evictBatch(dq *devicequeue.DeviceQueue, batch []member) {
	for _, m := range batch {
		dq.Queue().Evict(m.node)
	}
}

// runBatch releases dq's mutex for the actual compute, then reacquires it
// to requeue or finish each member depending on the outcome. A batched
// call either succeeds for every member or fails every member alike (the
// reference Executor's RunBatched is atomic per call), so OR-ing the
// error flag across the batch collapses to "did the batch fail".
func runBatch(dq *devicequeue.DeviceQueue, deps Deps, log *slog.Logger, batch []member) {
	start := time.Now()
	dq.Unlock()
	if len(batch) > 1 {
		group := make([]executor.BatchMember, len(batch))
		for i, m := range batch {
			group[i] = executor.BatchMember{Info: m.info, Op: m.op}
		}
		deps.Executor.RunBatched(dq.Device, group)
	} else {
		deps.Executor.RunSingle(batch[0].info, dq.Device, batch[0].op)
	}
	dq.Lock()

	if deps.Metrics != nil {
		deps.Metrics.OpLatency.WithLabelValues(dq.Device).Observe(time.Since(start).Seconds())
		if len(batch) > 1 {
			deps.Metrics.BatchSize.Observe(float64(len(batch)))
		}
	}

	runError := false
	for _, m := range batch {
		m.info.WithMutex(func(s *dagrun.State) {
			if s.Err() != nil {
				runError = true
			}
		})
	}

	if runError {
		for _, m := range batch {
			finishMember(m.info, deps, log, "run_error")
		}
		return
	}

	// Re-queue on success, in reverse order, so the original relative
	// order (head first) is preserved.
	for i := len(batch) - 1; i >= 0; i-- {
		dq.Queue().PushFront(batch[i].info)
	}
}

// retrySwap handles a head whose inputs are still being produced
// elsewhere: it yields to the next queued item instead of blocking the
// device on a cross-device dependency.
func retrySwap(dq *devicequeue.DeviceQueue, deps Deps, headInfo *dagrun.Info) {
	if dq.Queue().Length() > 0 {
		next := dq.Queue().PopFront()
		nextInfo := next.Value()
		dq.Queue().PushFront(headInfo)
		dq.Queue().PushFront(nextInfo)
		return
	}
	dq.Queue().PushFront(headInfo)
	dq.Unlock()
	deps.sleep(deps.RetrySleep)
	dq.Lock()
}

// finishMember records this device's contribution to info as complete
// and, if that brings the ref count to zero, delivers exactly one
// unblock.
func finishMember(info *dagrun.Info, deps Deps, log *slog.Logger, reason string) {
	var remaining int
	var client dagrun.Client
	var shouldUnblock bool
	var failed bool
	info.WithMutex(func(s *dagrun.State) {
		remaining = s.DecrRef()
		failed = s.Err() != nil
		if remaining == 0 && s.MarkUnblocked() {
			shouldUnblock = true
			client = info.Client
		}
	})

	if !shouldUnblock {
		return
	}

	outcome := "success"
	if failed {
		outcome = "error"
	}
	if deps.Metrics != nil {
		deps.Metrics.DagsCompleted.WithLabelValues(outcome).Inc()
	}
	log.Debug("dag completed", "dag_id", info.ID, "reason", reason, "outcome", outcome)

	if client == nil || client.Detached() {
		return
	}
	if deps.Metrics != nil {
		deps.Metrics.UnblocksTotal.Inc()
	}
	if deps.Unblock != nil {
		deps.Unblock(client, info)
	}
}

func updateQueueDepth(dq *devicequeue.DeviceQueue, deps Deps) {
	if deps.Metrics == nil {
		return
	}
	deps.Metrics.QueueDepth.WithLabelValues(dq.Device).Set(float64(dq.Queue().Length()))
}
