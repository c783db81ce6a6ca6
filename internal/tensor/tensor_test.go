package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDevices_DistinctUppercasedFirstOccurrenceOrder(t *testing.T) {
	t.Parallel()

	dag := &DAG{Ops: []Op{
		{Device: "cpu", Output: "a"},
		{Device: "gpu:0", Output: "b"},
		{Device: "CPU", Output: "c"},
		{Device: "gpu:1", Output: "d"},
	}}
	assert.Equal(t, []string{"CPU", "GPU:0", "GPU:1"}, dag.Devices())
}

func TestValue_BatchDimAndNonBatchShape(t *testing.T) {
	t.Parallel()

	v := Value{Shape: []int{3, 4, 5}}
	assert.Equal(t, 3, v.BatchDim())
	assert.Equal(t, []int{4, 5}, v.NonBatchShape())

	scalar := Value{}
	assert.Equal(t, 0, scalar.BatchDim())
	assert.Nil(t, scalar.NonBatchShape())
}

func TestOp_Batchable(t *testing.T) {
	t.Parallel()

	assert.True(t, Op{Kind: OpModel, BatchSize: 8}.Batchable())
	assert.False(t, Op{Kind: OpModel}.Batchable())
	assert.False(t, Op{Kind: OpScript, BatchSize: 8}.Batchable())
}

func TestSameShape(t *testing.T) {
	t.Parallel()

	assert.True(t, SameShape([]int{2, 3}, []int{2, 3}))
	assert.False(t, SameShape([]int{2, 3}, []int{2, 4}))
	assert.False(t, SameShape([]int{2}, []int{2, 3}))
	assert.True(t, SameShape(nil, nil))
}
