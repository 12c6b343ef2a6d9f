// Package network implements the shared actor-critic function
// approximator used by all asynchronous workers
package network

// Approximator is the capability contract the training loop depends
// on. A single Approximator instance is shared by every worker; all
// methods are safe for concurrent use, and each call is individually
// atomic. No ordering between calls from different workers is
// guaranteed or required.
type Approximator interface {
	// Predict returns the policy's action probabilities and the
	// state-value baseline for a batch of states. Predict has no side
	// effects on the parameters.
	Predict(states [][]float64) (probs [][]float64, values []float64,
		err error)

	// ApplyGradient computes the actor-critic loss on a rollout
	// segment and applies one optimizer step at the given learning
	// rate, returning the scalar loss. If the loss or any gradient is
	// non-finite the update is refused, the parameters are left
	// untouched, and an error is returned.
	ApplyGradient(states [][]float64, actions []int, returns []float64,
		learningRate float64) (loss float64, err error)

	// Save persists the parameters, returning the path written
	Save(dir string, step int64) (string, error)

	// Load restores parameters from a checkpoint file, or from the
	// most recent checkpoint when given a directory. Returns
	// ErrNoCheckpoint if none exists.
	Load(path string) error

	// NumActions returns the size of the action space the network
	// predicts over
	NumActions() int
}
