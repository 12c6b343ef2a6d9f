// Package gym provides access to OpenAI Gym environments through the
// Go bindings for Gym, found at https://github.com/samuelfneumann/GoGym.
//
// Gym returns observations as flat float vectors. This package
// reinterprets those vectors as image frames of a known geometry so
// that pixel-based environments such as the Atari suite can be used
// with the frame preprocessing pipeline.
package gym

import (
	"fmt"
	"image"
	"image/color"

	"github.com/samuelfneumann/gogym"
	"gonum.org/v1/gonum/mat"

	"github.com/tatsuyaokubo/async-rl/environment"
)

// Env implements access to an OpenAI Gym environment using GoGym
type Env struct {
	gogym.Environment

	name       string
	frameW     int
	frameH     int
	numActions int
}

// New returns a new Env for the named Gym environment. The frame
// geometry (frameW, frameH) must match the environment's observation
// layout: observations of length frameW*frameH are treated as
// grayscale frames and length 3*frameW*frameH as RGB frames.
func New(name string, frameW, frameH int, seed uint64) (environment.Environment, error) {
	goGymEnv, err := gogym.Make(name)
	if err != nil {
		return nil, fmt.Errorf("new: could not create environment: %v", err)
	}
	goGymEnv.Seed(int(seed))

	space := goGymEnv.ActionSpace()
	discrete, ok := space.(*gogym.DiscreteSpace)
	if !ok {
		goGymEnv.Close()
		return nil, fmt.Errorf("new: environment %v does not have "+
			"discrete actions", name)
	}
	numActions := int(discrete.High()[0].AtVec(0)) + 1

	env := &Env{
		Environment: goGymEnv,
		name:        name,
		frameW:      frameW,
		frameH:      frameH,
		numActions:  numActions,
	}

	return env, nil
}

// Reset resets the environment to some starting state
func (e *Env) Reset() (image.Image, error) {
	obs, err := e.Environment.Reset()
	if err != nil {
		return nil, fmt.Errorf("reset: could not reset environment: %v", err)
	}

	frame, err := e.toFrame(obs)
	if err != nil {
		return nil, fmt.Errorf("reset: %v", err)
	}
	return frame, nil
}

// Step takes a single environmental step
func (e *Env) Step(action int) (image.Image, float64, bool, error) {
	if action < 0 || action >= e.numActions {
		return nil, 0, true, fmt.Errorf("step: illegal action %v, "+
			"action space is [0, %v)", action, e.numActions)
	}

	obs, reward, done, err := e.Environment.Step(
		mat.NewVecDense(1, []float64{float64(action)}))
	if err != nil {
		return nil, 0, true, fmt.Errorf("step: could not step GoGym "+
			"environment: %v", err)
	}

	frame, err := e.toFrame(obs)
	if err != nil {
		return nil, 0, true, fmt.Errorf("step: %v", err)
	}
	return frame, reward, done, nil
}

// NumActions returns the size of the discrete action space
func (e *Env) NumActions() int {
	return e.numActions
}

// Close performs resource cleanup after the environment is no longer
// needed
func (e *Env) Close() error {
	e.Environment.Close()
	return nil
}

// toFrame reinterprets a flat Gym observation vector as an image frame
func (e *Env) toFrame(obs *mat.VecDense) (image.Image, error) {
	pixels := e.frameW * e.frameH

	switch obs.Len() {
	case pixels:
		frame := image.NewGray(image.Rect(0, 0, e.frameW, e.frameH))
		for i := 0; i < pixels; i++ {
			frame.Pix[i] = uint8(obs.AtVec(i))
		}
		return frame, nil

	case 3 * pixels:
		frame := image.NewRGBA(image.Rect(0, 0, e.frameW, e.frameH))
		for i := 0; i < pixels; i++ {
			frame.SetRGBA(i%e.frameW, i/e.frameW, color.RGBA{
				R: uint8(obs.AtVec(3 * i)),
				G: uint8(obs.AtVec(3*i + 1)),
				B: uint8(obs.AtVec(3*i + 2)),
				A: 255,
			})
		}
		return frame, nil
	}

	return nil, fmt.Errorf("toFrame: observation of length %v does not "+
		"match %vx%v grayscale or RGB frames", obs.Len(), e.frameW, e.frameH)
}
