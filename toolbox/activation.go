package toolbox

import (
	"fmt"
	"strings"

	"github.com/chewxy/math32"
)

// Activation selects a layer's elementwise nonlinearity.  The numeric values
// are part of the .aic file format.
type Activation uint8

const (
	None Activation = iota
	Sigmoid
	Tanh
	ReLU
)

type activationFuncs struct {
	name string

	// apply maps a linear output z to the activated output a.
	apply func(z float32) float32

	// derivative is da/dz, expressed in terms of the activated output a.
	derivative func(a float32) float32
}

var activations = [...]activationFuncs{
	None: {
		name:       "none",
		apply:      func(z float32) float32 { return z },
		derivative: func(a float32) float32 { return 1 },
	},
	Sigmoid: {
		name:       "sigmoid",
		apply:      func(z float32) float32 { return 1 / (1 + math32.Exp(-z)) },
		derivative: func(a float32) float32 { return a * (1 - a) },
	},
	Tanh: {
		name:       "tanh",
		apply:      math32.Tanh,
		derivative: func(a float32) float32 { return 1 - a*a },
	},
	ReLU: {
		name:  "relu",
		apply: func(z float32) float32 { return math32.Max(0, z) },
		derivative: func(a float32) float32 {
			if a > 0 {
				return 1
			}
			return 0
		},
	},
}

func (a Activation) Valid() bool {
	return int(a) < len(activations)
}

func (a Activation) String() string {
	if !a.Valid() {
		return fmt.Sprintf("Activation(%d)", uint8(a))
	}
	return activations[a].name
}

// ParseActivation accepts the names printed by String, plus "identity" and
// "linear" as aliases for None.
func ParseActivation(s string) (Activation, error) {
	switch name := strings.ToLower(strings.TrimSpace(s)); name {
	case "identity", "linear", "":
		return None, nil
	default:
		for i, f := range activations {
			if f.name == name {
				return Activation(i), nil
			}
		}
	}
	return None, fmt.Errorf("unknown activation %q", s)
}

func (a Activation) funcs() activationFuncs {
	if !a.Valid() {
		panic(fmt.Sprintf("unhandled activation function %d", uint8(a)))
	}
	return activations[a]
}

// Apply returns act(z), elementwise.
func (a Activation) Apply(z *Matrix) *Matrix {
	if a == None {
		return z.Clone()
	}
	apply := a.funcs().apply
	out := NewMatrix(z.Rows, z.Cols)
	for i, v := range z.V {
		out.V[i] = apply(v)
	}
	return out
}

// Derivative returns da/dz elementwise, evaluated from the activated output
// (not from z).
func (a Activation) Derivative(activated *Matrix) *Matrix {
	derivative := a.funcs().derivative
	out := NewMatrix(activated.Rows, activated.Cols)
	for i, v := range activated.V {
		out.V[i] = derivative(v)
	}
	return out
}
