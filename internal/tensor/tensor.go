// Package tensor defines the data model for DAG ops and values that flow
// through the scheduler. Parsing a client's request into this model, and
// actually storing tensor payloads, are the host's job; this package only
// carries the shape the scheduler needs to reason about readiness and
// batching.
package tensor

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Key identifies a symbolic value within a DAG's context: either one of the
// request's literal inputs, or the output slot of an earlier op.
type Key string

// Value is the minimal in-memory tensor the reference executor operates on:
// a shape plus a row-major flat payload. Real tensor storage lives outside
// this module.
type Value struct {
	Shape []int
	Data  []float64
}

// BatchDim returns the size of the value's leading (batching) dimension, or
// 0 if the value is a scalar / has no dimensions.
func (v Value) BatchDim() int {
	if len(v.Shape) == 0 {
		return 0
	}
	return v.Shape[0]
}

// NonBatchShape returns the shape with the leading dimension stripped,
// the portion BatchingMatch must compare across candidates.
func (v Value) NonBatchShape() []int {
	if len(v.Shape) == 0 {
		return nil
	}
	return v.Shape[1:]
}

// SameShape reports whether two dimension lists are identical.
func SameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// OpKind distinguishes the three op families a DAG may contain.
type OpKind int

const (
	// OpTensorOp is a direct tensor manipulation (e.g. elementwise add).
	OpTensorOp OpKind = iota
	// OpScript is a script invocation.
	OpScript
	// OpModel is a model invocation; only model ops can be batchable.
	OpModel
)

func (k OpKind) String() string {
	switch k {
	case OpTensorOp:
		return "tensor-op"
	case OpScript:
		return "script"
	case OpModel:
		return "model"
	default:
		return fmt.Sprintf("OpKind(%d)", int(k))
	}
}

// Op is a single pinned-to-a-device step in a DAG.
type Op struct {
	Device string
	Kind   OpKind
	// Model identifies which model Kind==OpModel invokes; BatchingMatch
	// requires two ops to share Model to be compatible.
	Model  string
	Inputs []Key
	Output Key

	// BatchSize and MinBatchSize are both 0 for ops that are not batchable
	// at all. BatchSize caps the combined 0-th dimension
	// of a batched group; MinBatchSize, when non-zero, requires the group
	// to reach at least that size before it may run.
	BatchSize    int
	MinBatchSize int
}

// Batchable reports whether op is a model op with a positive batch size.
func (o Op) Batchable() bool {
	return o.Kind == OpModel && o.BatchSize > 0
}

// DAG is the client's submitted directed acyclic graph of tensor
// operations, ops kept in submission order.
type DAG struct {
	ID     string
	Ops    []Op
	Inputs map[Key]Value
}

// Devices returns the distinct device strings touched by the DAG's ops, in
// first-occurrence order, normalized the same way DeviceRegistry.Ensure
// normalizes device names (uppercase). This keeps a run's ref count (one
// per distinct entry here) in step with the number of DeviceQueues it is
// actually enqueued into: two ops naming the same physical device with
// different casing (e.g. "cpu" and "CPU") must count as one device, not two.
func (d *DAG) Devices() []string {
	return lo.Uniq(lo.Map(d.Ops, func(op Op, _ int) string { return strings.ToUpper(op.Device) }))
}
