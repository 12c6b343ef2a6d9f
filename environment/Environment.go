// Package environment outlines the interfaces needed to implement
// concrete environments that produce raw image frames
package environment

import (
	"image"
)

// Environment implements a simulated environment that an agent
// interacts with through discrete actions. Observations are raw image
// frames; any preprocessing of frames is left to the caller.
//
// Environments are not safe for concurrent use. Each worker in an
// asynchronous training run owns exactly one Environment.
type Environment interface {
	// Reset resets the environment between episodes, returning the
	// first observation of the new episode
	Reset() (image.Image, error)

	// Step takes a single environmental step, returning the next
	// observation, the reward for the transition, and whether the
	// episode has terminated
	Step(action int) (image.Image, float64, bool, error)

	// NumActions returns the size of the discrete action space.
	// Legal actions are the integers in [0, NumActions())
	NumActions() int

	// Close performs resource cleanup once the environment is no
	// longer needed
	Close() error
}

// Renderer is an Environment that can render its current state for
// monitoring, independently of the observations returned by Step
type Renderer interface {
	Environment
	Render() image.Image
}

// Starter implements a distribution of starting configurations and
// samples starting configurations for environments
type Starter interface {
	Start() []float64
}
