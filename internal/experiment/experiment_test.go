package experiment

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/tsforecast/internal/config"
	"github.com/inferloop/tsforecast/internal/model"
	"github.com/inferloop/tsforecast/internal/observability/metrics"
	"github.com/inferloop/tsforecast/internal/results"
	"github.com/inferloop/tsforecast/internal/storage/implementations/ledger"
	"github.com/inferloop/tsforecast/internal/testutil"
	"github.com/inferloop/tsforecast/pkg/constants"
	tserrors "github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/interfaces"
	"github.com/inferloop/tsforecast/pkg/tensor"
)

func testConfig(t *testing.T, env *testutil.TestEnvironment) *config.Config {
	t.Helper()

	cfg, err := config.Load(viper.New(), "")
	require.NoError(t, err)

	cfg.ModelID = "synthetic"
	cfg.Rows = 522
	cfg.EncIn = 3
	cfg.SeqLen = 24
	cfg.LabelLen = 0
	cfg.PredLen = 5
	cfg.BatchSize = 10
	cfg.TrainEpochs = 1
	cfg.LRAdjust = "type1"
	cfg.Checkpoints = filepath.Join(env.TempDir, "checkpoints")
	cfg.Results = filepath.Join(env.TempDir, "results")
	return cfg
}

type recordingReporter struct {
	reports []*interfaces.EpochReport
	closed  int
}

func (r *recordingReporter) ReportEpoch(_ context.Context, report *interfaces.EpochReport) error {
	r.reports = append(r.reports, report)
	return nil
}

func (r *recordingReporter) Close() error {
	r.closed++
	return nil
}

func TestDecoderInputLayout(t *testing.T) {
	y := tensor.New(2, 6, 3)
	for i := range y.Data {
		y.Data[i] = float64(i + 1)
	}

	for _, labelLen := range []int{0, 2, 4} {
		predLen := 6 - labelLen
		dec, err := DecoderInput(y, labelLen, predLen)
		require.NoError(t, err)
		assert.Equal(t, []int{2, labelLen + predLen, 3}, dec.Shape())

		for b := 0; b < 2; b++ {
			for s := 0; s < dec.Steps; s++ {
				for c := 0; c < 3; c++ {
					if s < labelLen {
						assert.Equal(t, y.At(b, s, c), dec.At(b, s, c))
					} else {
						assert.Zero(t, dec.At(b, s, c))
					}
				}
			}
		}
	}

	_, err := DecoderInput(y, 7, 1)
	assert.Error(t, err)
}

func TestHorizonMultiToSingle(t *testing.T) {
	full := tensor.New(1, 4, 3)
	for i := range full.Data {
		full.Data[i] = float64(i)
	}
	h := horizon{predLen: 2, features: constants.FeaturesMultiToSingle}

	sliced, err := h.slice(full)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 1}, sliced.Shape())
	assert.Equal(t, []float64{8, 11}, sliced.Data)

	grad := tensor.New(1, 2, 1)
	grad.Data = []float64{1, 2}
	scattered, err := h.scatter(full, grad)
	require.NoError(t, err)
	assert.Equal(t, 1.0, scattered.At(0, 2, 2))
	assert.Equal(t, 2.0, scattered.At(0, 3, 2))
	assert.Equal(t, 0.0, scattered.At(0, 3, 1))

	_, err = h.slice(tensor.New(1, 1, 3))
	assert.True(t, errors.Is(err, tserrors.ErrShapeMismatch))
}

func TestMSEGradMatchesLoss(t *testing.T) {
	pred := tensor.New(1, 2, 1)
	pred.Data = []float64{1, 3}
	truth := tensor.New(1, 2, 1)
	truth.Data = []float64{0, 1}

	g := mseGrad(pred, truth)
	assert.Equal(t, []float64{1, 2}, g.Data)
}

func TestGroupRates(t *testing.T) {
	cfg := &config.Config{LearningRate: 1e-3, MinLR: 1e-30, LRAdjust: "exponential_with_warmup"}
	rates := groupRates(cfg)
	assert.Equal(t, 1e-30, rates[tensor.GroupNN])
	assert.InDelta(t, 0.1, rates[tensor.GroupSmoothing], 1e-15)
	assert.InDelta(t, 0.1, rates[tensor.GroupDamping], 1e-15)

	cfg.LRAdjust = "type1"
	cfg.SmoothingLearningRate = 0.05
	cfg.DampingLearningRate = 0.02
	rates = groupRates(cfg)
	assert.Equal(t, 1e-3, rates[tensor.GroupNN])
	assert.Equal(t, 0.05, rates[tensor.GroupSmoothing])
	assert.Equal(t, 0.02, rates[tensor.GroupDamping])
}

func TestNewRejectsUnknownModel(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	cfg := testConfig(t, env)
	cfg.Model = "Transformer"

	_, err := New(cfg, WithLogger(env.Logger))
	assert.True(t, errors.Is(err, tserrors.ErrUnknownModel))

	cfg.Model = model.IdentityName
	cfg.Features = "X"
	_, err = New(cfg, WithLogger(env.Logger))
	assert.True(t, errors.Is(err, tserrors.ErrUnknownFeatureMode))
}

func TestNewRejectsWarmupFloorAboveBaseRate(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	cfg := testConfig(t, env)
	cfg.Model = model.IdentityName
	cfg.LRAdjust = "exponential_with_warmup"
	cfg.LearningRate = 1e-4
	cfg.MinLR = 1e-2

	exp, err := New(cfg, WithLogger(env.Logger))
	require.Error(t, err)
	assert.Nil(t, exp)
	assert.True(t, errors.Is(err, tserrors.ErrInvalidConfiguration))
}

// The identity forecaster echoes a zero-filled horizon, so its test MAE is
// the mean absolute target over the 100 test sequences.
func TestIdentityEndToEnd(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	cfg := testConfig(t, env)
	cfg.Model = model.IdentityName

	exp, err := New(cfg, WithLogger(env.Logger))
	require.NoError(t, err)

	setting := cfg.Setting(0)
	summary, err := exp.Train(env.Context, setting)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Epochs)
	testutil.AssertFileExists(t, summary.CheckpointPath)
	testutil.AssertFileExists(t, filepath.Join(cfg.Checkpoints, setting, constants.ArgsFile))

	report, err := exp.Test(env.Context, setting, constants.SplitTest, true)
	require.NoError(t, err)
	assert.Equal(t, []int{100, 5, 3}, report.Shape)
	assert.Equal(t, 100, report.Samples())

	provider, err := syntheticProvider(cfg, env.Logger)
	require.NoError(t, err)
	_, loader, err := provider.Get(constants.SplitTest)
	require.NoError(t, err)

	var sum float64
	var n int
	require.NoError(t, loader.Iterate(context.Background(), func(_ int, batch *interfaces.Batch) error {
		last, err := batch.Y.LastSteps(cfg.PredLen)
		require.NoError(t, err)
		for _, v := range last.Data {
			sum += math.Abs(v)
			n++
		}
		return nil
	}))
	require.Equal(t, 100*5*3, n)

	testutil.AssertFloatEquals(t, sum/float64(n), report.Metrics.MAE, 1e-12)
	assert.Equal(t, 1.0, report.Metrics.MAPE)

	loaded, err := results.LoadMetrics(results.Dir(cfg.Results, setting), constants.SplitTest)
	require.NoError(t, err)
	assert.Equal(t, report.Metrics, loaded)
	assert.Len(t, report.ArrayPaths, 2)
	for _, p := range report.ArrayPaths {
		testutil.AssertFileExists(t, p)
	}
}

func TestETSformerTrainsAndReports(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	cfg := testConfig(t, env)
	cfg.Rows = 400
	cfg.EncIn = 2
	cfg.PredLen = 4
	cfg.BatchSize = 8
	cfg.TrainEpochs = 2
	cfg.Plot = true
	cfg.LogEvery = 10

	telemetry, err := metrics.NewTrainingMetrics("test", env.Logger)
	require.NoError(t, err)
	sink := &recordingReporter{}

	l, err := ledger.NewSQLLedger(&ledger.LedgerConfig{
		Driver: ledger.DriverSQLite,
		DSN:    filepath.Join(env.TempDir, "ledger.db"),
	}, env.Logger)
	require.NoError(t, err)
	require.NoError(t, l.Connect(env.Context))
	defer l.Close()

	exp, err := New(cfg,
		WithLogger(env.Logger),
		WithTelemetry(telemetry),
		WithReporters(sink),
		WithLedger(l),
		WithRunID("run-1"),
	)
	require.NoError(t, err)
	assert.Equal(t, model.ETSformerName, exp.Model().Name())

	setting := cfg.Setting(0)
	summary, err := exp.Train(env.Context, setting)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Epochs)
	assert.False(t, summary.EarlyStopped)
	require.Len(t, summary.History, 2)
	for _, h := range summary.History {
		assert.False(t, math.IsNaN(h.Train))
		assert.False(t, math.IsNaN(h.Vali))
	}
	testutil.AssertFileExists(t, filepath.Join(cfg.Checkpoints, setting, constants.LossCurveFile))

	require.Len(t, sink.reports, 2)
	assert.Equal(t, "run-1", sink.reports[0].RunID)
	assert.True(t, sink.reports[0].Improved)
	assert.Contains(t, sink.reports[0].LearningRates, "smoothing")
	assert.Equal(t, 2, sink.reports[1].Epoch)

	report, err := exp.Test(env.Context, setting, constants.SplitVal, false)
	require.NoError(t, err)
	assert.Empty(t, report.ArrayPaths)
	assert.GreaterOrEqual(t, report.DirectionalAccuracy, 0.0)
	assert.LessOrEqual(t, report.DirectionalAccuracy, 1.0)

	entries, err := l.List(env.Context, setting)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, constants.SplitVal, entries[0].Split)
	assert.Equal(t, report.Metrics.MSE, entries[0].MSE)
	assert.Equal(t, model.ETSformerName, entries[0].Model)

	// sinks stay with the caller and keep serving later iterations
	next, err := New(cfg, WithLogger(env.Logger), WithReporters(sink), WithLedger(l), WithIteration(1))
	require.NoError(t, err)
	_, err = next.Train(env.Context, cfg.Setting(1))
	require.NoError(t, err)
	assert.Len(t, sink.reports, 4)
	assert.Zero(t, sink.closed)
	require.NoError(t, l.Ping(env.Context))
}

func TestTestWithoutCheckpoint(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	cfg := testConfig(t, env)
	cfg.Model = model.IdentityName

	exp, err := New(cfg, WithLogger(env.Logger))
	require.NoError(t, err)

	_, err = exp.Test(env.Context, "never-trained", constants.SplitTest, false)
	assert.True(t, errors.Is(err, tserrors.ErrCheckpointNotFound))
}

type nanModel struct {
	model.Identity
}

func (m *nanModel) Name() string { return "NaN" }

func (m *nanModel) Forward(in *interfaces.ForecastInput) (*tensor.Tensor, error) {
	out := in.DecoderInput.Clone()
	for i := range out.Data {
		out.Data[i] = math.NaN()
	}
	return out, nil
}

func TestTrainAbortsOnNonFiniteLoss(t *testing.T) {
	model.Register("NaN", func(model.Options) (interfaces.Forecaster, error) { return &nanModel{}, nil })

	env := testutil.NewTestEnvironment(t)
	cfg := testConfig(t, env)
	cfg.Model = "NaN"

	exp, err := New(cfg, WithLogger(env.Logger))
	require.NoError(t, err)

	_, err = exp.Train(env.Context, cfg.Setting(0))
	assert.True(t, errors.Is(err, tserrors.ErrNonFiniteLoss))
}

func TestTrainStopsOnCancelledContext(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	cfg := testConfig(t, env)
	cfg.Model = model.IdentityName

	exp, err := New(cfg, WithLogger(env.Logger))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(env.Context)
	cancel()

	_, err = exp.Train(ctx, cfg.Setting(0))
	assert.True(t, errors.Is(err, context.Canceled))
}
