package checkpoint

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tserrors "github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/interfaces"
	"github.com/inferloop/tsforecast/pkg/tensor"
)

type fakeModel struct {
	params []*tensor.Parameter
}

func newFakeModel() *fakeModel {
	return &fakeModel{params: []*tensor.Parameter{
		tensor.NewParameter("decoder.weight", tensor.GroupNN, 2, 3),
		tensor.NewParameter("level_smoothing_weight", tensor.GroupSmoothing, 3),
		tensor.NewParameter("growth_damping_factor", tensor.GroupDamping, 3),
	}}
}

func (m *fakeModel) Name() string                                              { return "fake" }
func (m *fakeModel) Parameters() []*tensor.Parameter                           { return m.params }
func (m *fakeModel) Forward(*interfaces.ForecastInput) (*tensor.Tensor, error) { return nil, nil }
func (m *fakeModel) Backward(*tensor.Tensor) error                             { return nil }
func (m *fakeModel) SetTraining(bool)                                          {}
func (m *fakeModel) Training() bool                                            { return false }

func TestSaveLoadRoundTripIsBitExact(t *testing.T) {
	src := newFakeModel()
	values := []float64{math.Pi, -0.0, 1e-300, math.MaxFloat64, 5e-324, math.Inf(1)}
	copy(src.params[0].Value, values)
	src.params[1].Value[2] = 0.1 + 0.2
	src.params[2].Value[0] = math.NaN()

	path := Path(filepath.Join(t.TempDir(), "setting"))
	require.NoError(t, Save(src, path))

	dst := newFakeModel()
	require.NoError(t, Load(dst, path))

	for i, p := range src.params {
		for j := range p.Value {
			assert.Equal(t, math.Float64bits(p.Value[j]), math.Float64bits(dst.params[i].Value[j]), "%s[%d]", p.Name, j)
		}
	}
}

func TestSaveOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir)
	m := newFakeModel()

	require.NoError(t, Save(m, path))
	m.params[0].Value[0] = 7
	require.NoError(t, Save(m, path))

	ckpt, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 7.0, ckpt.Weights[0].Data[0])
	assert.Equal(t, "fake", ckpt.Metadata.Model)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestLoadMissingFile(t *testing.T) {
	err := Load(newFakeModel(), filepath.Join(t.TempDir(), "nope", "checkpoint.pth"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, tserrors.ErrCheckpointNotFound))
}

func TestLoadCorruptFile(t *testing.T) {
	path := Path(t.TempDir())
	require.NoError(t, os.WriteFile(path, []byte{0xc1, 0x00}, 0644))

	err := Load(newFakeModel(), path)
	assert.True(t, errors.Is(err, tserrors.ErrCheckpointCorrupt))
}

func TestLoadRejectsMismatchedModel(t *testing.T) {
	path := Path(t.TempDir())
	require.NoError(t, Save(newFakeModel(), path))

	other := newFakeModel()
	other.params[0] = tensor.NewParameter("decoder.weight", tensor.GroupNN, 3, 3)
	err := Load(other, path)
	assert.True(t, errors.Is(err, tserrors.ErrParameterMismatch))

	fewer := &fakeModel{params: other.params[1:]}
	assert.True(t, errors.Is(Load(fewer, path), tserrors.ErrParameterMismatch))
}
