// Package earlystop tracks the validation loss across epochs, snapshots the
// best model and signals when training should end.
package earlystop

import (
	"math"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/internal/checkpoint"
	"github.com/inferloop/tsforecast/pkg/interfaces"
)

// State is the monitor's position after a Step
type State int

const (
	Waiting State = iota
	Improved
	Stopped
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Improved:
		return "improved"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SaveFunc persists a model to path
type SaveFunc func(model interfaces.Forecaster, path string) error

// Monitor counts consecutive epochs without improvement
type Monitor struct {
	patience int
	delta    float64
	save     SaveFunc
	logger   *logrus.Logger

	best    float64
	hasBest bool
	counter int
	stopped bool
	state   State
}

// New creates a monitor. A nil save defaults to checkpoint.Save.
func New(patience int, delta float64, save SaveFunc, logger *logrus.Logger) *Monitor {
	if save == nil {
		save = checkpoint.Save
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Monitor{
		patience: patience,
		delta:    delta,
		save:     save,
		logger:   logger,
		state:    Waiting,
	}
}

// Step feeds one validation score. A score counts as an improvement when no
// best exists yet or it is below best-delta; the model is then written to
// <dir>/checkpoint.pth. NaN never counts as an improvement. Once Stopped,
// further calls return Stopped without side effects.
func (m *Monitor) Step(score float64, model interfaces.Forecaster, dir string) (State, error) {
	if m.stopped {
		return Stopped, nil
	}

	if !math.IsNaN(score) && (!m.hasBest || score < m.best-m.delta) {
		path := checkpoint.Path(dir)
		if m.hasBest {
			m.logger.Infof("Validation loss decreased (%.6f --> %.6f).  Saving model ...", m.best, score)
		}
		if err := m.save(model, path); err != nil {
			return m.state, err
		}
		m.logger.WithField("path", filepath.Clean(path)).Debug("Checkpoint written")

		m.best = score
		m.hasBest = true
		m.counter = 0
		m.state = Improved
		return m.state, nil
	}

	m.counter++
	m.logger.Infof("EarlyStopping counter: %d out of %d", m.counter, m.patience)
	if m.counter >= m.patience {
		m.stopped = true
		m.state = Stopped
		return m.state, nil
	}
	m.state = Waiting
	return m.state, nil
}

// Stopped reports whether the patience window has been exhausted
func (m *Monitor) Stopped() bool {
	return m.stopped
}

// Best returns the best score seen and whether one exists
func (m *Monitor) Best() (float64, bool) {
	return m.best, m.hasBest
}

// Counter returns the number of consecutive non-improving steps
func (m *Monitor) Counter() int {
	return m.counter
}

// State returns the state after the most recent Step
func (m *Monitor) State() State {
	return m.state
}
