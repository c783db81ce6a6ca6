// Package inspector answers the scheduling queries a worker loop asks
// about a DAG run relative to one device: current op, readiness,
// batchability, and per-device/dag completion.
package inspector

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vectorshelf/tensorsched/internal/dagrun"
	"github.com/vectorshelf/tensorsched/internal/tensor"
)

// matchCacheSize bounds the number of distinct (model, shapeA, shapeB)
// compatibility verdicts kept in memory. A busy device sees the same few
// shapes over and over for a given model, so a modest cache avoids
// re-deriving dimension equality on every candidate the selection walk
// scans.
const matchCacheSize = 4096

// Inspector answers DagInspector queries. It is safe to share across every
// worker on every device; its only mutable state is an internal
// compatibility cache guarded by the cache's own lock.
type Inspector struct {
	matchCache *lru.Cache[string, bool]
}

// New returns an Inspector with its BatchingMatch memoization cache
// ready.
func New() *Inspector {
	c, err := lru.New[string, bool](matchCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// matchCacheSize never is.
		panic(err)
	}
	return &Inspector{matchCache: c}
}

// CurrentOpAndInfo reports the earliest pending op for device on info, and
// the readiness/batchability/completion facts the worker loop's selection
// walk needs. It acquires info's mutex internally.
func (insp *Inspector) CurrentOpAndInfo(info *dagrun.Info, device string) (op tensor.Op, hasOp, ready, batchable, deviceComplete, dagComplete bool) {
	device = strings.ToUpper(device)
	info.WithMutex(func(s *dagrun.State) {
		if s.Err() != nil {
			// Execution failure: every device's remaining ops are treated
			// as complete for scheduling purposes, and the DAG as a whole
			// is done.
			deviceComplete = true
			dagComplete = true
			return
		}

		dagComplete = true
		for _, o := range info.DAG.Ops {
			if _, done := s.Get(o.Output); done {
				continue
			}
			dagComplete = false
			if strings.EqualFold(o.Device, device) && !hasOp {
				op = o
				hasOp = true
			}
		}
		if !hasOp {
			deviceComplete = true
			return
		}
		ready = inputsReady(s, op)
		batchable = op.Batchable()
	})
	return
}

func inputsReady(s *dagrun.State, op tensor.Op) bool {
	for _, in := range op.Inputs {
		if _, ok := s.Get(in); !ok {
			return false
		}
	}
	return true
}

// OpBatchInfo returns op's batch parameters and the current size of its
// first input's leading dimension.
func (insp *Inspector) OpBatchInfo(info *dagrun.Info, op tensor.Op) (batchSize, minBatchSize, inBatchSize int) {
	batchSize, minBatchSize = op.BatchSize, op.MinBatchSize
	if len(op.Inputs) == 0 {
		return
	}
	info.WithMutex(func(s *dagrun.State) {
		v, ok := s.Get(op.Inputs[0])
		if !ok {
			return
		}
		inBatchSize = v.BatchDim()
	})
	return
}

// BatchingMatch reports whether opB may be folded into a batch headed by
// opA: same model, matching non-batch input dimensions, plus the 0-th
// dimension size opB would contribute.
func (insp *Inspector) BatchingMatch(infoA *dagrun.Info, opA tensor.Op, infoB *dagrun.Info, opB tensor.Op) (compatible bool, addedBatchSize int) {
	if opA.Kind != tensor.OpModel || opB.Kind != tensor.OpModel || opA.Model != opB.Model {
		return false, 0
	}
	if len(opA.Inputs) == 0 || len(opB.Inputs) == 0 || len(opA.Inputs) != len(opB.Inputs) {
		return false, 0
	}

	var shapeA, shapeB []int
	var sizeB int
	ok := true
	infoA.WithMutex(func(s *dagrun.State) {
		v, present := s.Get(opA.Inputs[0])
		if !present {
			ok = false
			return
		}
		shapeA = v.NonBatchShape()
	})
	if !ok {
		return false, 0
	}
	infoB.WithMutex(func(s *dagrun.State) {
		v, present := s.Get(opB.Inputs[0])
		if !present {
			ok = false
			return
		}
		shapeB = v.NonBatchShape()
		sizeB = v.BatchDim()
	})
	if !ok {
		return false, 0
	}

	cacheKey := fmt.Sprintf("%s|%v|%v", opA.Model, shapeA, shapeB)
	if cached, hit := insp.matchCache.Get(cacheKey); hit {
		if !cached {
			return false, 0
		}
		return true, sizeB
	}
	match := tensor.SameShape(shapeA, shapeB)
	insp.matchCache.Add(cacheKey, match)
	if !match {
		return false, 0
	}
	return true, sizeB
}
