package toolbox

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestActivationApply(t *testing.T) {
	z := MatrixFromRows([][]float32{{-2, 0, 3}})

	testCases := []struct {
		act  Activation
		want []float32
	}{
		{None, []float32{-2, 0, 3}},
		{Sigmoid, []float32{1 / (1 + math32.Exp(2)), 0.5, 1 / (1 + math32.Exp(-3))}},
		{Tanh, []float32{math32.Tanh(-2), 0, math32.Tanh(3)}},
		{ReLU, []float32{0, 0, 3}},
	}

	for _, tc := range testCases {
		t.Run(tc.act.String(), func(t *testing.T) {
			got := tc.act.Apply(z)
			if diff := cmp.Diff(got.V, tc.want, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
				t.Errorf("Wrong output; diff (-got +want)\n%s", diff)
			}
		})
	}
}

func TestActivationApplyDoesNotAlias(t *testing.T) {
	z := MatrixFromRows([][]float32{{1, 2}})
	a := None.Apply(z)
	a.Set(0, 0, 100)
	if z.At(0, 0) != 1 {
		t.Errorf("identity activation returned its input")
	}
}

// The derivative works from the activated output, so it must match a central
// difference of apply taken at the pre-activation value.
func TestActivationDerivativeFromOutput(t *testing.T) {
	zs := []float32{-1.5, -0.3, 0.4, 2}
	const h = 1e-2

	for _, act := range []Activation{None, Sigmoid, Tanh, ReLU} {
		t.Run(act.String(), func(t *testing.T) {
			z := MatrixFromRows([][]float32{zs})
			got := act.Derivative(act.Apply(z))

			want := make([]float32, len(zs))
			apply := activations[act].apply
			for i, v := range zs {
				want[i] = (apply(v+h) - apply(v-h)) / (2 * h)
			}
			if diff := cmp.Diff(got.V, want, cmpopts.EquateApprox(0, 1e-3)); diff != "" {
				t.Errorf("Wrong derivative; diff (-got +want)\n%s", diff)
			}
		})
	}
}

func TestParseActivation(t *testing.T) {
	for _, act := range []Activation{None, Sigmoid, Tanh, ReLU} {
		got, err := ParseActivation(act.String())
		if err != nil {
			t.Errorf("ParseActivation(%q): %v", act.String(), err)
		}
		if got != act {
			t.Errorf("ParseActivation(%q) = %v, want %v", act.String(), got, act)
		}
	}

	if got, err := ParseActivation(" Linear "); err != nil || got != None {
		t.Errorf("ParseActivation(\" Linear \") = %v, %v; want none", got, err)
	}
	if _, err := ParseActivation("softmax"); err == nil {
		t.Errorf("ParseActivation(\"softmax\") succeeded")
	}
	if Activation(9).Valid() {
		t.Errorf("Activation(9) is valid")
	}
}
