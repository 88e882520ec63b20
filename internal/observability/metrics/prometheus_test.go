package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/tsforecast/internal/metric"
	"github.com/inferloop/tsforecast/pkg/interfaces"
)

func TestReportEpochSetsGauges(t *testing.T) {
	tm, err := NewTrainingMetrics("test", nil)
	require.NoError(t, err)

	err = tm.ReportEpoch(context.Background(), &interfaces.EpochReport{
		Setting:          "run",
		Epoch:            2,
		TrainLoss:        0.5,
		ValiLoss:         0.7,
		TestLoss:         0.9,
		LearningRates:    map[string]float64{"nn": 1e-3, "smoothing": 0.1},
		EarlyStopCounter: 1,
		Improved:         true,
	})
	require.NoError(t, err)

	assert.Equal(t, 0.7, testutil.ToFloat64(tm.loss.WithLabelValues("run", "val")))
	assert.Equal(t, 0.1, testutil.ToFloat64(tm.learningRate.WithLabelValues("run", "smoothing")))
	assert.Equal(t, 2.0, testutil.ToFloat64(tm.epoch.WithLabelValues("run")))
	assert.Equal(t, 1.0, testutil.ToFloat64(tm.earlyStopCounter.WithLabelValues("run")))
	assert.Equal(t, 1.0, testutil.ToFloat64(tm.checkpointsWritten.WithLabelValues("run")))
}

func TestObserveBatchAndEvaluation(t *testing.T) {
	tm, err := NewTrainingMetrics("", nil)
	require.NoError(t, err)

	tm.ObserveBatch("run", 3*time.Millisecond)
	tm.ObserveBatch("run", 5*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(tm.optimizerSteps.WithLabelValues("run")))

	tm.RecordEvaluation("run", "test", metric.Result{MAE: 1, MSE: 2, RMSE: 3, MAPE: 4, MSPE: 5}, 0.6)
	assert.Equal(t, 4.0, testutil.ToFloat64(tm.evaluation.WithLabelValues("run", "test", "mape")))
	assert.Equal(t, 0.6, testutil.ToFloat64(tm.evaluation.WithLabelValues("run", "test", "directional_accuracy")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	tm, err := NewTrainingMetrics("tsforecast", nil)
	require.NoError(t, err)
	tm.ObserveBatch("run", time.Millisecond)

	rec := httptest.NewRecorder()
	tm.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tsforecast_training_optimizer_steps_total")
}
