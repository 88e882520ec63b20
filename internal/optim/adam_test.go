package optim

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	tserrors "github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/tensor"
)

func testParams() []*tensor.Parameter {
	return []*tensor.Parameter{
		tensor.NewParameter("decoder.weight", tensor.GroupNN, 2, 3),
		tensor.NewParameter("decoder.bias", tensor.GroupNN, 2),
		tensor.NewParameter("level_smoothing_weight", tensor.GroupSmoothing, 4),
		tensor.NewParameter("growth_smoothing_weight", tensor.GroupSmoothing, 4),
		tensor.NewParameter("growth_damping_factor", tensor.GroupDamping, 4),
	}
}

func TestPartitionCoversEveryParameterOnce(t *testing.T) {
	params := testParams()
	groups, err := Partition(params, map[tensor.Group]float64{
		tensor.GroupNN: 1e-3, tensor.GroupSmoothing: 0.1, tensor.GroupDamping: 0.1,
	})
	require.NoError(t, err)
	require.Len(t, groups, 3)

	count := map[string]int{}
	for _, g := range groups {
		for _, p := range g.Params {
			count[p.Name]++
			assert.Equal(t, g.Group, p.Group)
		}
	}
	assert.Len(t, count, len(params))
	for name, n := range count {
		assert.Equal(t, 1, n, name)
	}

	assert.Equal(t, tensor.GroupNN, groups[0].Group)
	assert.Len(t, groups[1].Params, 2)
	assert.Equal(t, 0.1, groups[2].LR)
}

func TestPartitionRejectsDuplicatesAndUnknownGroups(t *testing.T) {
	params := append(testParams(), tensor.NewParameter("decoder.bias", tensor.GroupNN, 1))
	_, err := Partition(params, nil)
	assert.True(t, errors.Is(err, tserrors.ErrParameterMismatch))

	_, err = Partition([]*tensor.Parameter{tensor.NewParameter("x", tensor.Group(9), 1)}, nil)
	assert.True(t, errors.Is(err, tserrors.ErrParameterMismatch))
}

func TestPartitionKeepsEmptyGroups(t *testing.T) {
	groups, err := Partition(nil, nil)
	require.NoError(t, err)
	assert.Len(t, groups, 3)
	for _, g := range groups {
		assert.Empty(t, g.Params)
	}
}

func TestAdamMinimisesQuadratic(t *testing.T) {
	p := tensor.NewParameter("w", tensor.GroupNN, 2)
	p.Value[0], p.Value[1] = 3, -2

	groups, err := Partition([]*tensor.Parameter{p}, map[tensor.Group]float64{tensor.GroupNN: 0.1})
	require.NoError(t, err)
	opt := NewAdam(groups)

	for i := 0; i < 2000; i++ {
		opt.ZeroGrad()
		// loss = w0^2 + w1^2
		p.Grad[0] = 2 * p.Value[0]
		p.Grad[1] = 2 * p.Value[1]
		opt.Step()
	}
	assert.InDelta(t, 0, p.Value[0], 5e-2)
	assert.InDelta(t, 0, p.Value[1], 5e-2)
	assert.Equal(t, 2000, opt.GetTimeStep())
}

func TestAdamFirstStepMovesByLearningRate(t *testing.T) {
	p := tensor.NewParameter("w", tensor.GroupSmoothing, 1)
	groups, err := Partition([]*tensor.Parameter{p}, map[tensor.Group]float64{tensor.GroupSmoothing: 0.05})
	require.NoError(t, err)

	opt := NewAdam(groups)
	p.Grad[0] = 123
	opt.Step()
	// bias-corrected first step is lr * sign(grad)
	assert.InDelta(t, -0.05, p.Value[0], 1e-9)
}

func TestSetLRAppliesToAllGroups(t *testing.T) {
	groups, err := Partition(testParams(), map[tensor.Group]float64{tensor.GroupNN: 1, tensor.GroupSmoothing: 2})
	require.NoError(t, err)

	opt := NewAdam(groups)
	opt.SetLR(0.5)
	assert.Equal(t, map[string]float64{"nn": 0.5, "smoothing": 0.5, "damping": 0.5}, opt.LearningRates())
}

func TestClipGradNorm(t *testing.T) {
	params := testParams()
	groups, err := Partition(params, nil)
	require.NoError(t, err)

	params[0].Grad[0] = 3
	params[2].Grad[1] = 4

	norm := ClipGradNorm(groups, 1.0)
	assert.InDelta(t, 5.0, norm, 1e-12)

	after := 0.0
	for _, p := range params {
		after += floats.Dot(p.Grad, p.Grad)
	}
	assert.InDelta(t, 1.0, math.Sqrt(after), 1e-6)

	// below the threshold nothing changes
	params[0].Grad[0], params[2].Grad[1] = 0.3, 0.4
	ClipGradNorm(groups, 1.0)
	assert.Equal(t, 0.3, params[0].Grad[0])
}
