package tensor

import (
	"fmt"
	"strings"
)

// Group tags a trainable parameter with the optimizer group it belongs to
type Group int

const (
	// GroupNN holds ordinary network weights
	GroupNN Group = iota
	// GroupSmoothing holds exponential smoothing weights
	GroupSmoothing
	// GroupDamping holds trend damping factors
	GroupDamping
)

// Groups lists every group in optimizer order
var Groups = []Group{GroupNN, GroupSmoothing, GroupDamping}

func (g Group) String() string {
	switch g {
	case GroupNN:
		return "nn"
	case GroupSmoothing:
		return "smoothing"
	case GroupDamping:
		return "damping"
	default:
		return fmt.Sprintf("group(%d)", int(g))
	}
}

// Valid reports whether g is one of the known groups
func (g Group) Valid() bool {
	return g >= GroupNN && g <= GroupDamping
}

// ParseGroup is the inverse of Group.String
func ParseGroup(s string) (Group, error) {
	switch strings.ToLower(s) {
	case "nn":
		return GroupNN, nil
	case "smoothing":
		return GroupSmoothing, nil
	case "damping":
		return GroupDamping, nil
	default:
		return 0, fmt.Errorf("unknown parameter group %q", s)
	}
}

// Parameter is a named, group-tagged trainable array with its gradient buffer
type Parameter struct {
	Name  string
	Group Group
	Shape []int
	Value []float64
	Grad  []float64
}

// NewParameter allocates a zero-valued parameter of the given shape
func NewParameter(name string, group Group, shape ...int) *Parameter {
	size := 1
	for _, d := range shape {
		size *= d
	}
	return &Parameter{
		Name:  name,
		Group: group,
		Shape: append([]int(nil), shape...),
		Value: make([]float64, size),
		Grad:  make([]float64, size),
	}
}

// Size returns the number of scalar values
func (p *Parameter) Size() int {
	return len(p.Value)
}

// ZeroGrad clears the gradient buffer
func (p *Parameter) ZeroGrad() {
	for i := range p.Grad {
		p.Grad[i] = 0
	}
}
