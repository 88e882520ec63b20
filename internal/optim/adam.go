// Package optim holds the Adam optimizer and the helpers that split model
// parameters into learning-rate groups.
package optim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/inferloop/tsforecast/pkg/errors"
	"github.com/inferloop/tsforecast/pkg/tensor"
)

// ParamGroup is a set of parameters sharing one learning rate
type ParamGroup struct {
	Group  tensor.Group
	LR     float64
	Params []*tensor.Parameter
}

// Partition splits params by their group tag. The result always holds one
// entry per tensor.Groups element, in that order, even when a group is empty.
// Duplicate names and unknown tags are rejected.
func Partition(params []*tensor.Parameter, rates map[tensor.Group]float64) ([]*ParamGroup, error) {
	groups := make([]*ParamGroup, len(tensor.Groups))
	index := make(map[tensor.Group]*ParamGroup, len(tensor.Groups))
	for i, g := range tensor.Groups {
		groups[i] = &ParamGroup{Group: g, LR: rates[g]}
		index[g] = groups[i]
	}

	seen := make(map[string]struct{}, len(params))
	for _, p := range params {
		if _, dup := seen[p.Name]; dup {
			return nil, errors.WrapError(errors.ErrParameterMismatch, errors.ErrorTypeModel,
				errors.CodeParameterMismatch, fmt.Sprintf("duplicate parameter name %q", p.Name))
		}
		seen[p.Name] = struct{}{}

		pg, ok := index[p.Group]
		if !ok {
			return nil, errors.WrapError(errors.ErrParameterMismatch, errors.ErrorTypeModel,
				errors.CodeParameterMismatch, fmt.Sprintf("parameter %q has unknown group %s", p.Name, p.Group))
		}
		pg.Params = append(pg.Params, p)
	}
	return groups, nil
}

// Adam implements the Adam optimization algorithm over parameter groups
type Adam struct {
	groups  []*ParamGroup
	beta1   float64
	beta2   float64
	epsilon float64
	t       int
	m       map[*tensor.Parameter][]float64
	v       map[*tensor.Parameter][]float64
}

// NewAdam creates an Adam optimizer with the usual defaults
// (beta1 0.9, beta2 0.999, epsilon 1e-8)
func NewAdam(groups []*ParamGroup) *Adam {
	return &Adam{
		groups:  groups,
		beta1:   0.9,
		beta2:   0.999,
		epsilon: 1e-8,
		m:       make(map[*tensor.Parameter][]float64),
		v:       make(map[*tensor.Parameter][]float64),
	}
}

// Groups returns the parameter groups being optimized
func (opt *Adam) Groups() []*ParamGroup {
	return opt.groups
}

// ZeroGrad clears every gradient buffer
func (opt *Adam) ZeroGrad() {
	for _, g := range opt.groups {
		for _, p := range g.Params {
			p.ZeroGrad()
		}
	}
}

// Step applies one Adam update using the gradients currently stored in the parameters
func (opt *Adam) Step() {
	opt.t++
	c1 := 1 - math.Pow(opt.beta1, float64(opt.t))
	c2 := 1 - math.Pow(opt.beta2, float64(opt.t))

	for _, g := range opt.groups {
		for _, p := range g.Params {
			m, ok := opt.m[p]
			if !ok {
				m = make([]float64, p.Size())
				opt.m[p] = m
				opt.v[p] = make([]float64, p.Size())
			}
			v := opt.v[p]

			for i, grad := range p.Grad {
				m[i] = opt.beta1*m[i] + (1-opt.beta1)*grad
				v[i] = opt.beta2*v[i] + (1-opt.beta2)*grad*grad
				mHat := m[i] / c1
				vHat := v[i] / c2
				p.Value[i] -= g.LR * mHat / (math.Sqrt(vHat) + opt.epsilon)
			}
		}
	}
}

// SetLR sets the learning rate of every group
func (opt *Adam) SetLR(lr float64) {
	for _, g := range opt.groups {
		g.LR = lr
	}
}

// LearningRates returns the current rate per group name
func (opt *Adam) LearningRates() map[string]float64 {
	rates := make(map[string]float64, len(opt.groups))
	for _, g := range opt.groups {
		rates[g.Group.String()] = g.LR
	}
	return rates
}

// GetTimeStep returns the number of steps taken
func (opt *Adam) GetTimeStep() int {
	return opt.t
}

// Reset clears the moment estimates and the step counter
func (opt *Adam) Reset() {
	opt.t = 0
	opt.m = make(map[*tensor.Parameter][]float64)
	opt.v = make(map[*tensor.Parameter][]float64)
}

// ClipGradNorm rescales all gradients so their joint L2 norm is at most
// maxNorm. It returns the norm measured before clipping.
func ClipGradNorm(groups []*ParamGroup, maxNorm float64) float64 {
	sumSq := 0.0
	for _, g := range groups {
		for _, p := range g.Params {
			sumSq += floats.Dot(p.Grad, p.Grad)
		}
	}
	total := math.Sqrt(sumSq)

	coef := maxNorm / (total + 1e-6)
	if coef < 1 {
		for _, g := range groups {
			for _, p := range g.Params {
				floats.Scale(coef, p.Grad)
			}
		}
	}
	return total
}
