// Package executor defines how ops actually run, and provides a reference
// in-process backend so the scheduler is testable end-to-end without a
// real model-serving or scripting runtime.
package executor

import (
	"fmt"

	"github.com/vectorshelf/tensorsched/internal/dagrun"
	"github.com/vectorshelf/tensorsched/internal/tensor"
)

// Executor runs a single op, or a batch of compatible model ops, for a
// device. Implementations must take each Info's mutex only while mutating
// shared state; the compute itself runs unlocked.
type Executor interface {
	// RunSingle executes the current op for device on info.
	RunSingle(info *dagrun.Info, device string, op tensor.Op)
	// RunBatched executes a compatible group of model ops for device as a
	// single batched call, splitting results back to each entry.
	RunBatched(device string, group []BatchMember)
}

// BatchMember pairs a DagRunInfo with the op of its that is being batched.
type BatchMember struct {
	Info *dagrun.Info
	Op   tensor.Op
}

// ModelFunc is a pluggable stand-in for a real model-serving backend: it
// receives one slice per input slot (batch[i] holds the i-th input of
// every member, in member order, for the backend to concatenate along
// dimension 0) and returns one output per member.
type ModelFunc func(batch [][]tensor.Value) ([]tensor.Value, error)

// TensorExecutor is the reference Executor: it evaluates OpTensorOp
// (elementwise add of its inputs) and OpScript (identity of its first
// input) directly, and dispatches OpModel to a registered ModelFunc.
type TensorExecutor struct {
	models map[string]ModelFunc
}

// NewTensorExecutor returns a TensorExecutor with no models registered;
// use RegisterModel to wire one in before running OpModel ops.
func NewTensorExecutor() *TensorExecutor {
	return &TensorExecutor{models: make(map[string]ModelFunc)}
}

// RegisterModel wires fn in as the implementation of model name.
func (e *TensorExecutor) RegisterModel(name string, fn ModelFunc) {
	e.models[name] = fn
}

// RunSingle implements Executor.
func (e *TensorExecutor) RunSingle(info *dagrun.Info, device string, op tensor.Op) {
	result, err := e.evalSingle(info, op)
	info.WithMutex(func(s *dagrun.State) {
		if err != nil {
			s.SetErr(fmt.Errorf("%w: %s on %s: %v", dagrun.ErrOpFailed, op.Output, device, err))
			return
		}
		s.Set(op.Output, result)
	})
}

func (e *TensorExecutor) evalSingle(info *dagrun.Info, op tensor.Op) (tensor.Value, error) {
	inputs, err := gatherInputs(info, op)
	if err != nil {
		return tensor.Value{}, err
	}
	switch op.Kind {
	case tensor.OpTensorOp:
		return elementwiseAdd(inputs)
	case tensor.OpScript:
		if len(inputs) == 0 {
			return tensor.Value{}, fmt.Errorf("script op has no inputs")
		}
		return inputs[0], nil
	case tensor.OpModel:
		fn, ok := e.models[op.Model]
		if !ok {
			return tensor.Value{}, fmt.Errorf("no model registered for %q", op.Model)
		}
		batch := make([][]tensor.Value, len(inputs))
		for i, v := range inputs {
			batch[i] = []tensor.Value{v}
		}
		results, err := fn(batch)
		if err != nil {
			return tensor.Value{}, err
		}
		if len(results) != 1 {
			return tensor.Value{}, fmt.Errorf("model %q returned %d results for a single invocation", op.Model, len(results))
		}
		return results[0], nil
	default:
		return tensor.Value{}, fmt.Errorf("unknown op kind %v", op.Kind)
	}
}

// RunBatched implements Executor. Only OpModel ops are ever batched;
// every member is assumed to share the same model, per-slot non-batch
// shape, and device.
func (e *TensorExecutor) RunBatched(device string, group []BatchMember) {
	if len(group) == 0 {
		return
	}
	model := group[0].Op.Model
	fn, ok := e.models[model]
	if !ok {
		failAll(group, fmt.Errorf("no model registered for %q", model))
		return
	}

	numInputs := len(group[0].Op.Inputs)
	batch := make([][]tensor.Value, numInputs)
	for slot := 0; slot < numInputs; slot++ {
		batch[slot] = make([]tensor.Value, 0, len(group))
	}
	for _, m := range group {
		inputs, err := gatherInputs(m.Info, m.Op)
		if err != nil {
			failAll(group, err)
			return
		}
		for slot, v := range inputs {
			batch[slot] = append(batch[slot], v)
		}
	}

	results, err := fn(batch)
	if err != nil {
		failAll(group, err)
		return
	}
	if len(results) != len(group) {
		failAll(group, fmt.Errorf("model %q returned %d results for a batch of %d", model, len(results), len(group)))
		return
	}
	for i, m := range group {
		result := results[i]
		m.Info.WithMutex(func(s *dagrun.State) {
			s.Set(m.Op.Output, result)
		})
	}
}

func failAll(group []BatchMember, err error) {
	for _, m := range group {
		wrapped := fmt.Errorf("%w: %s: %v", dagrun.ErrOpFailed, m.Op.Output, err)
		m.Info.WithMutex(func(s *dagrun.State) {
			s.SetErr(wrapped)
		})
	}
}

func gatherInputs(info *dagrun.Info, op tensor.Op) ([]tensor.Value, error) {
	inputs := make([]tensor.Value, len(op.Inputs))
	var missing tensor.Key
	ok := true
	info.WithMutex(func(s *dagrun.State) {
		for i, key := range op.Inputs {
			v, present := s.Get(key)
			if !present {
				missing, ok = key, false
				return
			}
			inputs[i] = v
		}
	})
	if !ok {
		return nil, fmt.Errorf("input %q not ready", missing)
	}
	return inputs, nil
}

func elementwiseAdd(inputs []tensor.Value) (tensor.Value, error) {
	if len(inputs) == 0 {
		return tensor.Value{}, fmt.Errorf("tensor op has no inputs")
	}
	out := tensor.Value{Shape: inputs[0].Shape, Data: append([]float64(nil), inputs[0].Data...)}
	for _, in := range inputs[1:] {
		if !tensor.SameShape(in.Shape, out.Shape) {
			return tensor.Value{}, fmt.Errorf("shape mismatch: %v vs %v", in.Shape, out.Shape)
		}
		for i, v := range in.Data {
			out.Data[i] += v
		}
	}
	return out, nil
}
