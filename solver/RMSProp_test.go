package solver

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// valueGrad is a stand-in model parameter for testing the update rule
// without building a computational graph
type valueGrad struct {
	value *tensor.Dense
	grad  *tensor.Dense
}

func (v *valueGrad) Value() G.Value         { return v.value }
func (v *valueGrad) Grad() (G.Value, error) { return v.grad, nil }

func newParam(weights, grads []float64) *valueGrad {
	return &valueGrad{
		value: tensor.New(tensor.WithShape(len(weights)),
			tensor.WithBacking(weights)),
		grad: tensor.New(tensor.WithShape(len(grads)),
			tensor.WithBacking(grads)),
	}
}

func TestNewRMSPropValidates(t *testing.T) {
	if _, err := NewRMSProp(1.0, 0.1); err == nil {
		t.Error("newRMSProp: expected error for decay = 1")
	}
	if _, err := NewRMSProp(-0.1, 0.1); err == nil {
		t.Error("newRMSProp: expected error for negative decay")
	}
	if _, err := NewRMSProp(0.99, 0.0); err == nil {
		t.Error("newRMSProp: expected error for zero epsilon")
	}
}

func TestStepFollowsRecurrence(t *testing.T) {
	decay, epsilon, lr := 0.99, 0.1, 0.5
	weights := []float64{1.0, -2.0}
	grads := []float64{0.5, -1.5}

	r, err := NewRMSProp(decay, epsilon)
	if err != nil {
		t.Fatal(err)
	}

	model := []G.ValueGrad{newParam(weights, grads)}
	if err := r.Step(model, lr); err != nil {
		t.Fatal(err)
	}

	for i, w0 := range []float64{1.0, -2.0} {
		g := grads[i]
		cache := (1 - decay) * g * g
		expected := w0 - lr*g/math.Sqrt(cache+epsilon)
		if math.Abs(weights[i]-expected) > 1e-12 {
			t.Errorf("weight %v = %v, expected %v", i, weights[i], expected)
		}
	}
}

func TestStepAccumulatesCache(t *testing.T) {
	decay, epsilon, lr := 0.9, 0.01, 1.0
	weights := []float64{0.0}
	grads := []float64{1.0}

	r, err := NewRMSProp(decay, epsilon)
	if err != nil {
		t.Fatal(err)
	}
	model := []G.ValueGrad{newParam(weights, grads)}

	if err := r.Step(model, lr); err != nil {
		t.Fatal(err)
	}
	first := weights[0]

	if err := r.Step(model, lr); err != nil {
		t.Fatal(err)
	}

	// Cache after two identical gradients: decay*c1 + (1-decay)*g²
	c1 := (1 - decay) * 1.0
	c2 := decay*c1 + (1-decay)*1.0
	expected := first - lr*1.0/math.Sqrt(c2+epsilon)
	if math.Abs(weights[0]-expected) > 1e-12 {
		t.Errorf("weight = %v, expected %v", weights[0], expected)
	}
}

func TestStepRefusesNonFiniteGradients(t *testing.T) {
	r, err := NewRMSProp(0.99, 0.1)
	if err != nil {
		t.Fatal(err)
	}

	weights := []float64{1.0, 2.0}
	model := []G.ValueGrad{newParam(weights, []float64{math.NaN(), 0.5})}

	if err := r.Step(model, 0.1); err == nil {
		t.Fatal("step: expected error for NaN gradient")
	}

	if weights[0] != 1.0 || weights[1] != 2.0 {
		t.Error("step: weights modified despite refused update")
	}
}
