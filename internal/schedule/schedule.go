// Package schedule implements the epoch-level learning rate strategies
// selectable by name.
package schedule

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/pkg/errors"
)

// Mode names accepted by New
const (
	ModeType1                 = "type1"
	ModeType2                 = "type2"
	ModeExponentialWithWarmup = "exponential_with_warmup"
	ModeCosine                = "cosine"
	ModeConstant              = "constant"
)

// Strategy maps a 1-based epoch index to a learning rate. Implementations
// are pure: the same epoch always yields the same answer. ok is false when
// the strategy leaves the current rate untouched for that epoch.
type Strategy interface {
	Name() string
	Rate(epoch int) (lr float64, ok bool)
}

// Options configures a strategy
type Options struct {
	BaseLR       float64
	MinLR        float64
	WarmupEpochs int
	TrainEpochs  int
}

// Modes returns the supported mode names, sorted
func Modes() []string {
	modes := []string{ModeType1, ModeType2, ModeExponentialWithWarmup, ModeCosine, ModeConstant}
	sort.Strings(modes)
	return modes
}

// New returns the strategy registered under mode
func New(mode string, opts Options) (Strategy, error) {
	if opts.BaseLR <= 0 {
		return nil, errors.NewConfigurationError(nil, fmt.Sprintf("learning rate must be positive, got %v", opts.BaseLR))
	}

	switch strings.ToLower(mode) {
	case ModeType1:
		return &halving{base: opts.BaseLR}, nil
	case ModeType2:
		return &table{steps: map[int]float64{
			2: 5e-5, 4: 1e-5, 6: 5e-6, 8: 1e-6,
			10: 5e-7, 15: 1e-7, 20: 5e-8,
		}}, nil
	case ModeExponentialWithWarmup:
		if opts.WarmupEpochs < 0 {
			return nil, errors.NewConfigurationError(nil, "warmup epochs must not be negative")
		}
		if opts.MinLR < 0 || opts.MinLR > opts.BaseLR {
			return nil, errors.NewConfigurationError(nil,
				fmt.Sprintf("min learning rate %v must lie in [0, %v]", opts.MinLR, opts.BaseLR))
		}
		return &warmup{base: opts.BaseLR, min: opts.MinLR, epochs: opts.WarmupEpochs}, nil
	case ModeCosine:
		if opts.TrainEpochs <= 0 {
			return nil, errors.NewConfigurationError(nil, "cosine schedule needs a positive epoch count")
		}
		return &cosine{base: opts.BaseLR, min: math.Max(opts.MinLR, 0), tMax: opts.TrainEpochs}, nil
	case ModeConstant:
		return constant{}, nil
	default:
		return nil, errors.NewConfigurationError(errors.ErrUnknownSchedule,
			fmt.Sprintf("unknown lradj %q, want one of %s", mode, strings.Join(Modes(), ", ")))
	}
}

// RateSetter is anything whose learning rate can be replaced
type RateSetter interface {
	SetLR(lr float64)
}

// Adjust applies s at epoch to target and logs the change. It returns the
// rate in effect and whether it changed.
func Adjust(s Strategy, epoch int, target RateSetter, logger *logrus.Logger) (float64, bool) {
	lr, ok := s.Rate(epoch)
	if !ok {
		return 0, false
	}
	target.SetLR(lr)
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"schedule": s.Name(),
			"epoch":    epoch,
		}).Infof("Updating learning rate to %g", lr)
	}
	return lr, true
}

// halving divides the base rate by two every epoch
type halving struct {
	base float64
}

func (h *halving) Name() string { return ModeType1 }

func (h *halving) Rate(epoch int) (float64, bool) {
	if epoch < 1 {
		epoch = 1
	}
	return h.base * math.Pow(0.5, float64(epoch-1)), true
}

// table switches to fixed rates at fixed epochs
type table struct {
	steps map[int]float64
}

func (t *table) Name() string { return ModeType2 }

func (t *table) Rate(epoch int) (float64, bool) {
	lr, ok := t.steps[epoch]
	return lr, ok
}

// warmup ramps linearly from min to base over the warmup epochs, then halves
// every epoch without going below min.
type warmup struct {
	base   float64
	min    float64
	epochs int
}

func (w *warmup) Name() string { return ModeExponentialWithWarmup }

func (w *warmup) Rate(epoch int) (float64, bool) {
	if epoch < 1 {
		epoch = 1
	}
	if epoch <= w.epochs {
		return w.min + (w.base-w.min)*float64(epoch)/float64(w.epochs), true
	}
	lr := w.base * math.Pow(0.5, float64(epoch-w.epochs))
	return math.Max(lr, w.min), true
}

// cosine anneals from base to min over tMax epochs
type cosine struct {
	base float64
	min  float64
	tMax int
}

func (c *cosine) Name() string { return ModeCosine }

func (c *cosine) Rate(epoch int) (float64, bool) {
	if epoch >= c.tMax {
		return c.min, true
	}
	if epoch < 0 {
		epoch = 0
	}
	return c.min + (c.base-c.min)*(1+math.Cos(math.Pi*float64(epoch)/float64(c.tMax)))/2, true
}

type constant struct{}

func (constant) Name() string { return ModeConstant }

func (constant) Rate(int) (float64, bool) { return 0, false }
