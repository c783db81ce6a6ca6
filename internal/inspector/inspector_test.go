package inspector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorshelf/tensorsched/internal/dagrun"
	"github.com/vectorshelf/tensorsched/internal/tensor"
)

type fakeClient struct{}

func (fakeClient) Detached() bool { return false }

func TestCurrentOpAndInfo_ReadyAndNotReady(t *testing.T) {
	t.Parallel()

	dag := &tensor.DAG{
		Ops: []tensor.Op{
			{Device: "cpu", Inputs: []tensor.Key{"x"}, Output: "t"},
			{Device: "gpu:0", Inputs: []tensor.Key{"t"}, Output: "y", Kind: tensor.OpModel, Model: "m", BatchSize: 4},
		},
		Inputs: map[tensor.Key]tensor.Value{"x": {Shape: []int{1}, Data: []float64{1}}},
	}
	info := dagrun.New(dag, fakeClient{})
	insp := New()

	op, hasOp, ready, batchable, deviceComplete, dagComplete := insp.CurrentOpAndInfo(info, "CPU")
	require.True(t, hasOp)
	assert.Equal(t, tensor.Key("t"), op.Output)
	assert.True(t, ready)
	assert.False(t, batchable)
	assert.False(t, deviceComplete)
	assert.False(t, dagComplete)

	_, hasOp, ready, _, deviceComplete, _ = insp.CurrentOpAndInfo(info, "gpu:0")
	require.True(t, hasOp)
	assert.False(t, ready, "t has not been produced yet")
	assert.False(t, deviceComplete)
}

func TestCurrentOpAndInfo_DeviceAndDagComplete(t *testing.T) {
	t.Parallel()

	dag := &tensor.DAG{
		Ops: []tensor.Op{
			{Device: "cpu", Inputs: []tensor.Key{"x"}, Output: "t"},
		},
		Inputs: map[tensor.Key]tensor.Value{"x": {Shape: []int{1}, Data: []float64{1}}},
	}
	info := dagrun.New(dag, fakeClient{})
	insp := New()

	info.WithMutex(func(s *dagrun.State) {
		s.Set("t", tensor.Value{Shape: []int{1}, Data: []float64{2}})
	})

	_, hasOp, _, _, deviceComplete, dagComplete := insp.CurrentOpAndInfo(info, "cpu")
	assert.False(t, hasOp)
	assert.True(t, deviceComplete)
	assert.True(t, dagComplete)
}

func TestCurrentOpAndInfo_ErrorForcesCompletion(t *testing.T) {
	t.Parallel()

	dag := &tensor.DAG{
		Ops: []tensor.Op{{Device: "cpu", Output: "t"}, {Device: "gpu:0", Output: "y"}},
	}
	info := dagrun.New(dag, fakeClient{})
	info.WithMutex(func(s *dagrun.State) { s.SetErr(errors.New("boom")) })

	insp := New()
	_, _, _, _, deviceComplete, dagComplete := insp.CurrentOpAndInfo(info, "gpu:0")
	assert.True(t, deviceComplete)
	assert.True(t, dagComplete)
}

func TestOpBatchInfo(t *testing.T) {
	t.Parallel()

	dag := &tensor.DAG{
		Ops:    []tensor.Op{{Device: "gpu:0", Inputs: []tensor.Key{"x"}, Kind: tensor.OpModel, Model: "m", BatchSize: 8, MinBatchSize: 4}},
		Inputs: map[tensor.Key]tensor.Value{"x": {Shape: []int{3, 4}, Data: make([]float64, 12)}},
	}
	info := dagrun.New(dag, fakeClient{})
	insp := New()

	batchSize, minBatchSize, inBatchSize := insp.OpBatchInfo(info, dag.Ops[0])
	assert.Equal(t, 8, batchSize)
	assert.Equal(t, 4, minBatchSize)
	assert.Equal(t, 3, inBatchSize)
}

func TestBatchingMatch(t *testing.T) {
	t.Parallel()

	opA := tensor.Op{Kind: tensor.OpModel, Model: "m", Inputs: []tensor.Key{"x"}}
	opB := tensor.Op{Kind: tensor.OpModel, Model: "m", Inputs: []tensor.Key{"x"}}

	dagA := &tensor.DAG{Ops: []tensor.Op{opA}, Inputs: map[tensor.Key]tensor.Value{"x": {Shape: []int{2, 4}}}}
	dagB := &tensor.DAG{Ops: []tensor.Op{opB}, Inputs: map[tensor.Key]tensor.Value{"x": {Shape: []int{3, 4}}}}
	infoA := dagrun.New(dagA, fakeClient{})
	infoB := dagrun.New(dagB, fakeClient{})

	insp := New()
	compatible, added := insp.BatchingMatch(infoA, opA, infoB, opB)
	assert.True(t, compatible)
	assert.Equal(t, 3, added)

	dagC := &tensor.DAG{Ops: []tensor.Op{opB}, Inputs: map[tensor.Key]tensor.Value{"x": {Shape: []int{3, 5}}}}
	infoC := dagrun.New(dagC, fakeClient{})
	compatible, _ = insp.BatchingMatch(infoA, opA, infoC, opB)
	assert.False(t, compatible, "non-batch dims differ")

	opD := tensor.Op{Kind: tensor.OpModel, Model: "other", Inputs: []tensor.Key{"x"}}
	dagD := &tensor.DAG{Ops: []tensor.Op{opD}, Inputs: map[tensor.Key]tensor.Value{"x": {Shape: []int{2, 4}}}}
	infoD := dagrun.New(dagD, fakeClient{})
	compatible, _ = insp.BatchingMatch(infoA, opA, infoD, opD)
	assert.False(t, compatible, "different model")
}
