package model

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/interfaces"
	"github.com/inferloop/tsforecast/pkg/tensor"
)

// ETSformerName is the registry name of ETSformer
const ETSformerName = "ETSformer"

// Parameter names
const (
	ParamLevelSmoothing  = "level_smoothing_weight"
	ParamGrowthSmoothing = "growth_smoothing_weight"
	ParamGrowthDamping   = "growth_damping_factor"
	ParamDecoderWeight   = "decoder.weight"
	ParamDecoderBias     = "decoder.bias"
)

// Initial raw (pre-sigmoid) values of the smoothing parameters
const (
	initLevelLogit   = 0.0
	initGrowthLogit  = -1.0
	initDampingLogit = 2.0
)

// ETSformer forecasts each channel with a damped-trend exponential smoothing
// state (level and growth, one learnable smoothing pair and damping factor
// per channel) plus a linear head over the encoder window shared by all
// channels:
//
//	l_t = a*x_t + (1-a)*(l_{t-1} + phi*r_{t-1})
//	r_t = b*(l_t - l_{t-1}) + (1-b)*phi*r_{t-1}
//	y_h = l_T + (phi + ... + phi^h)*r_T + (W x)_h + bias_h
//
// with a, b and phi the sigmoids of the raw parameters.
type ETSformer struct {
	opts     Options
	training bool

	level   *tensor.Parameter // (C)
	growth  *tensor.Parameter // (C)
	damping *tensor.Parameter // (C)
	weight  *tensor.Parameter // (P, L)
	bias    *tensor.Parameter // (P)

	cache *etsCache
}

// etsCache keeps what Backward needs from the last training Forward
type etsCache struct {
	batch   int
	inputs  *mat.Dense // (L, B*C), column b*C+c holds channel c of sequence b
	states  []smoothState
	alpha   []float64
	beta    []float64
	phi     []float64
	damping [][]float64 // per channel: sum_{k<=h} phi^k
	dDamp   [][]float64 // per channel: d/dphi of damping
}

// smoothState is the final level/growth and their sensitivities to (alpha, beta, phi)
type smoothState struct {
	level, growth float64
	dl, dr        [3]float64
}

// NewETSformer creates the model with seeded head weights
func NewETSformer(opts Options) (*ETSformer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	m := &ETSformer{
		opts:     opts,
		training: true,
		level:    tensor.NewParameter(ParamLevelSmoothing, tensor.GroupSmoothing, opts.Channels),
		growth:   tensor.NewParameter(ParamGrowthSmoothing, tensor.GroupSmoothing, opts.Channels),
		damping:  tensor.NewParameter(ParamGrowthDamping, tensor.GroupDamping, opts.Channels),
		weight:   tensor.NewParameter(ParamDecoderWeight, tensor.GroupNN, opts.PredLen, opts.SeqLen),
		bias:     tensor.NewParameter(ParamDecoderBias, tensor.GroupNN, opts.PredLen),
	}
	for c := 0; c < opts.Channels; c++ {
		m.level.Value[c] = initLevelLogit
		m.growth.Value[c] = initGrowthLogit
		m.damping.Value[c] = initDampingLogit
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	bound := 1 / math.Sqrt(float64(opts.SeqLen))
	for i := range m.weight.Value {
		m.weight.Value[i] = (rng.Float64()*2 - 1) * bound * 0.1
	}
	return m, nil
}

func (m *ETSformer) Name() string { return ETSformerName }

// Parameters returns the smoothing, damping and head parameters
func (m *ETSformer) Parameters() []*tensor.Parameter {
	return []*tensor.Parameter{m.level, m.growth, m.damping, m.weight, m.bias}
}

func (m *ETSformer) SetTraining(training bool) {
	m.training = training
	if !training {
		m.cache = nil
	}
}

func (m *ETSformer) Training() bool { return m.training }

// Forward returns a (batch, pred_len, channels) forecast
func (m *ETSformer) Forward(in *interfaces.ForecastInput) (*tensor.Tensor, error) {
	if in == nil || in.X == nil {
		return nil, errors.NewShapeError("ETSformer needs an encoder input")
	}
	x := in.X
	if x.Steps != m.opts.SeqLen || x.Channels != m.opts.Channels {
		return nil, errors.NewShapeError(fmt.Sprintf("encoder input (%d, %d, %d) does not match seq_len %d and %d channels",
			x.Batch, x.Steps, x.Channels, m.opts.SeqLen, m.opts.Channels))
	}

	B, L, C, P := x.Batch, x.Steps, x.Channels, m.opts.PredLen
	if B == 0 {
		return nil, errors.NewShapeError("ETSformer received an empty batch")
	}

	cache := &etsCache{
		batch:   B,
		inputs:  mat.NewDense(L, B*C, nil),
		states:  make([]smoothState, B*C),
		alpha:   make([]float64, C),
		beta:    make([]float64, C),
		phi:     make([]float64, C),
		damping: make([][]float64, C),
		dDamp:   make([][]float64, C),
	}
	for c := 0; c < C; c++ {
		cache.alpha[c] = sigmoid(m.level.Value[c])
		cache.beta[c] = sigmoid(m.growth.Value[c])
		cache.phi[c] = sigmoid(m.damping.Value[c])
		cache.damping[c], cache.dDamp[c] = dampingSums(cache.phi[c], P)
	}

	for b := 0; b < B; b++ {
		for j := 0; j < L; j++ {
			for c := 0; c < C; c++ {
				cache.inputs.Set(j, b*C+c, x.At(b, j, c))
			}
		}
	}

	series := make([]float64, L)
	for b := 0; b < B; b++ {
		for c := 0; c < C; c++ {
			mat.Col(series, b*C+c, cache.inputs)
			cache.states[b*C+c] = smooth(series, cache.alpha[c], cache.beta[c], cache.phi[c])
		}
	}

	W := mat.NewDense(P, L, m.weight.Value)
	var head mat.Dense
	head.Mul(W, cache.inputs)

	out := tensor.New(B, P, C)
	for b := 0; b < B; b++ {
		for c := 0; c < C; c++ {
			st := cache.states[b*C+c]
			for h := 0; h < P; h++ {
				v := st.level + cache.damping[c][h]*st.growth + head.At(h, b*C+c) + m.bias.Value[h]
				out.Set(b, h, c, v)
			}
		}
	}

	if m.training {
		m.cache = cache
	}
	return out, nil
}

// Backward accumulates gradients for the last training Forward
func (m *ETSformer) Backward(gradOut *tensor.Tensor) error {
	cache := m.cache
	if cache == nil {
		return errors.NewTrainingError(errors.CodeBackwardFailed, "backward called without a training forward pass")
	}
	C, P := m.opts.Channels, m.opts.PredLen
	if gradOut.Batch != cache.batch || gradOut.Steps != P || gradOut.Channels != C {
		return errors.NewShapeError(fmt.Sprintf("output gradient (%d, %d, %d) does not match forecast (%d, %d, %d)",
			gradOut.Batch, gradOut.Steps, gradOut.Channels, cache.batch, P, C))
	}

	// G is (P, B*C) in the same column order as the cached inputs
	G := mat.NewDense(P, cache.batch*C, nil)
	for b := 0; b < cache.batch; b++ {
		for h := 0; h < P; h++ {
			for c := 0; c < C; c++ {
				G.Set(h, b*C+c, gradOut.At(b, h, c))
			}
		}
	}

	var dW mat.Dense
	dW.Mul(G, cache.inputs.T())
	L := m.opts.SeqLen
	for h := 0; h < P; h++ {
		for j := 0; j < L; j++ {
			m.weight.Grad[h*L+j] += dW.At(h, j)
		}
		m.bias.Grad[h] += mat.Sum(G.RowView(h))
	}

	for b := 0; b < cache.batch; b++ {
		for c := 0; c < C; c++ {
			st := cache.states[b*C+c]
			var gl, gr, gphi float64
			for h := 0; h < P; h++ {
				g := G.At(h, b*C+c)
				gl += g
				gr += g * cache.damping[c][h]
				gphi += g * st.growth * cache.dDamp[c][h]
			}

			dAlpha := gl*st.dl[0] + gr*st.dr[0]
			dBeta := gl*st.dl[1] + gr*st.dr[1]
			dPhi := gl*st.dl[2] + gr*st.dr[2] + gphi

			a, be, ph := cache.alpha[c], cache.beta[c], cache.phi[c]
			m.level.Grad[c] += dAlpha * a * (1 - a)
			m.growth.Grad[c] += dBeta * be * (1 - be)
			m.damping.Grad[c] += dPhi * ph * (1 - ph)
		}
	}
	return nil
}

// smooth runs the level/growth recursion over one series and tracks the
// forward sensitivities of the final state to alpha, beta and phi.
func smooth(x []float64, alpha, beta, phi float64) smoothState {
	st := smoothState{level: x[0]}
	for t := 1; t < len(x); t++ {
		prevL, prevR := st.level, st.growth
		dlPrev, drPrev := st.dl, st.dr

		s := prevL + phi*prevR
		level := alpha*x[t] + (1-alpha)*s
		growth := beta*(level-prevL) + (1-beta)*phi*prevR

		var dl, dr [3]float64
		dl[0] = x[t] - s + (1-alpha)*(dlPrev[0]+phi*drPrev[0])
		dl[1] = (1 - alpha) * (dlPrev[1] + phi*drPrev[1])
		dl[2] = (1 - alpha) * (dlPrev[2] + prevR + phi*drPrev[2])

		dr[0] = beta*(dl[0]-dlPrev[0]) + (1-beta)*phi*drPrev[0]
		dr[1] = (level - prevL) + beta*(dl[1]-dlPrev[1]) - phi*prevR + (1-beta)*phi*drPrev[1]
		dr[2] = beta*(dl[2]-dlPrev[2]) + (1-beta)*(prevR+phi*drPrev[2])

		st = smoothState{level: level, growth: growth, dl: dl, dr: dr}
	}
	return st
}

// dampingSums returns S_h = phi + ... + phi^(h+1) and dS_h/dphi for h in [0, n)
func dampingSums(phi float64, n int) ([]float64, []float64) {
	sums := make([]float64, n)
	grads := make([]float64, n)
	pow := 1.0 // phi^(k-1)
	var s, ds float64
	for h := 0; h < n; h++ {
		k := float64(h + 1)
		ds += k * pow
		pow *= phi
		s += pow
		sums[h] = s
		grads[h] = ds
	}
	return sums, grads
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}
