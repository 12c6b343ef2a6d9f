// Package solver implements gradient-based weight update rules
package solver

import (
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// RMSProp implements the RMSProp update rule with a learning rate
// supplied on every Step call. Gorgonia's built-in solvers fix the
// learning rate at construction time, which cannot express the linear
// annealing schedule used during asynchronous training.
//
// For each weight w with gradient g, the update is
//
//	cache = decay*cache + (1 - decay)*g²
//	w     = w - lr * g / sqrt(cache + epsilon)
//
// An RMSProp solver is not safe for concurrent use; callers must
// serialize Step calls.
type RMSProp struct {
	decay   float64
	epsilon float64

	// Squared-gradient moving averages, one slice per model
	// parameter, allocated on first use
	cache [][]float64
}

// NewRMSProp returns a new RMSProp solver
func NewRMSProp(decay, epsilon float64) (*RMSProp, error) {
	if decay < 0 || decay >= 1 {
		return nil, fmt.Errorf("newRMSProp: decay must be in [0, 1), "+
			"got %v", decay)
	}
	if epsilon <= 0 {
		return nil, fmt.Errorf("newRMSProp: epsilon must be positive, "+
			"got %v", epsilon)
	}

	return &RMSProp{decay: decay, epsilon: epsilon}, nil
}

// Step applies one RMSProp update to every parameter in the model at
// the given learning rate. If any gradient is non-finite, no parameter
// is modified and an error is returned, leaving the model and the
// solver state untouched.
func (r *RMSProp) Step(model []G.ValueGrad, learningRate float64) error {
	weights := make([][]float64, len(model))
	grads := make([][]float64, len(model))

	for i, param := range model {
		w, err := rawData(param.Value())
		if err != nil {
			return fmt.Errorf("step: parameter %v: %v", i, err)
		}

		gradValue, err := param.Grad()
		if err != nil {
			return fmt.Errorf("step: parameter %v has no gradient: %v",
				i, err)
		}
		g, err := rawData(gradValue)
		if err != nil {
			return fmt.Errorf("step: parameter %v gradient: %v", i, err)
		}
		if len(g) != len(w) {
			return fmt.Errorf("step: parameter %v gradient length "+
				"\n\twant(%v)\n\thave(%v)", i, len(w), len(g))
		}

		for _, val := range g {
			if math.IsNaN(val) || math.IsInf(val, 0) {
				return fmt.Errorf("step: parameter %v has a non-finite "+
					"gradient, refusing update", i)
			}
		}

		weights[i] = w
		grads[i] = g
	}

	if r.cache == nil {
		r.cache = make([][]float64, len(model))
		for i := range weights {
			r.cache[i] = make([]float64, len(weights[i]))
		}
	} else if len(r.cache) != len(model) {
		return fmt.Errorf("step: model size changed \n\twant(%v)"+
			"\n\thave(%v)", len(r.cache), len(model))
	}

	for i := range weights {
		w, g, cache := weights[i], grads[i], r.cache[i]
		for j := range w {
			cache[j] = r.decay*cache[j] + (1-r.decay)*g[j]*g[j]
			w[j] -= learningRate * g[j] / math.Sqrt(cache[j]+r.epsilon)
		}
	}

	return nil
}

// rawData returns the float64 backing slice of a gorgonia Value
func rawData(value G.Value) ([]float64, error) {
	dense, ok := value.(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("rawData: value is %T, expected a dense "+
			"tensor", value)
	}

	data, ok := dense.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("rawData: tensor is not float64-backed")
	}
	return data, nil
}
