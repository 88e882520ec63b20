package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequential(batch, steps, channels int) *Tensor {
	t := New(batch, steps, channels)
	for i := range t.Data {
		t.Data[i] = float64(i)
	}
	return t
}

func TestIndexLayout(t *testing.T) {
	x := sequential(2, 3, 4)

	assert.Equal(t, 0.0, x.At(0, 0, 0))
	assert.Equal(t, 3.0, x.At(0, 0, 3))
	assert.Equal(t, 4.0, x.At(0, 1, 0))
	assert.Equal(t, 12.0, x.At(1, 0, 0))
	assert.Equal(t, []int{2, 3, 4}, x.Shape())
}

func TestFromDataRejectsWrongLength(t *testing.T) {
	_, err := FromData(2, 2, 2, make([]float64, 7))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match shape")
}

func TestSlice(t *testing.T) {
	x := sequential(2, 4, 3)

	last, err := x.Slice(2, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, last.Shape())
	assert.Equal(t, x.At(0, 2, 2), last.At(0, 0, 0))
	assert.Equal(t, x.At(1, 3, 2), last.At(1, 1, 0))

	_, err = x.Slice(3, 5, 0)
	assert.Error(t, err)
	_, err = x.Slice(0, 1, 4)
	assert.Error(t, err)
}

func TestFirstAndLastSteps(t *testing.T) {
	x := sequential(1, 5, 2)

	first, err := x.FirstSteps(2)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, 3}, first.Data)

	last, err := x.LastSteps(2)
	require.NoError(t, err)
	assert.Equal(t, []float64{6, 7, 8, 9}, last.Data)
}

func TestConcatSteps(t *testing.T) {
	a := sequential(2, 2, 1)
	b := New(2, 3, 1)

	out, err := ConcatSteps(a, b)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5, 1}, out.Shape())
	assert.Equal(t, []float64{0, 1, 0, 0, 0, 2, 3, 0, 0, 0}, out.Data)

	_, err = ConcatSteps(a, New(1, 3, 1))
	assert.Error(t, err)
}

func TestConcatBatch(t *testing.T) {
	out, err := ConcatBatch([]*Tensor{sequential(1, 2, 2), sequential(2, 2, 2)})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Batch)
	assert.Equal(t, 12, out.Len())
	assert.Equal(t, 7.0, out.At(2, 1, 1))

	_, err = ConcatBatch([]*Tensor{sequential(1, 2, 2), sequential(1, 3, 2)})
	assert.Error(t, err)
}

func TestMatrixSharesBacking(t *testing.T) {
	x := sequential(2, 3, 2)
	m := x.Matrix()

	r, c := m.Dims()
	assert.Equal(t, 6, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, x.At(1, 2, 1), m.At(5, 1))

	m.Set(0, 0, -1)
	assert.Equal(t, -1.0, x.At(0, 0, 0))

	assert.Nil(t, New(3, 0, 2).Matrix())
}

func TestEmptyAndUnitWindows(t *testing.T) {
	x := sequential(3, 4, 2)

	empty, err := x.FirstSteps(0)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 0, 2}, empty.Shape())
	assert.Empty(t, empty.Data)

	joined, err := ConcatSteps(empty, New(3, 2, 2))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 2}, joined.Shape())
	assert.Equal(t, make([]float64, 12), joined.Data)

	one, err := x.Slice(3, 4, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 1}, one.Shape())
	assert.Equal(t, []float64{7, 15, 23}, one.Data)

	single, err := sequential(1, 1, 1).Slice(0, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1}, single.Shape())

	stacked, err := ConcatBatch([]*Tensor{New(0, 4, 2), sequential(1, 4, 2), New(0, 4, 2)})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 2}, stacked.Shape())
	assert.Equal(t, 7.0, stacked.At(0, 3, 1))
}

func TestCloneIsDeep(t *testing.T) {
	x := sequential(1, 2, 2)
	y := x.Clone()
	y.Set(0, 0, 0, 42)

	assert.Equal(t, 0.0, x.At(0, 0, 0))
	assert.True(t, x.SameShape(y))
}

func TestParameterGroups(t *testing.T) {
	p := NewParameter("level_smoothing_weight", GroupSmoothing, 3)
	assert.Equal(t, 3, p.Size())
	assert.Len(t, p.Grad, 3)

	p.Grad[1] = 5
	p.ZeroGrad()
	assert.Equal(t, []float64{0, 0, 0}, p.Grad)

	for _, g := range Groups {
		parsed, err := ParseGroup(g.String())
		require.NoError(t, err)
		assert.Equal(t, g, parsed)
		assert.True(t, g.Valid())
	}
	assert.False(t, Group(7).Valid())

	_, err := ParseGroup("bias")
	assert.Error(t, err)
}
