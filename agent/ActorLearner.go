package agent

import (
	"fmt"
	"image"
	"log"

	"golang.org/x/exp/rand"

	"github.com/tatsuyaokubo/async-rl/environment"
	"github.com/tatsuyaokubo/async-rl/experiment/checkpointer"
	"github.com/tatsuyaokubo/async-rl/experiment/trackers"
	"github.com/tatsuyaokubo/async-rl/frame"
	"github.com/tatsuyaokubo/async-rl/network"
	"github.com/tatsuyaokubo/async-rl/utils/floatutils"
)

// Config holds the per-worker loop parameters of an ActorLearner
type Config struct {
	FrameWidth  int // Preprocessed frame width
	FrameHeight int // Preprocessed frame height
	StackDepth  int // Frames stacked into one state

	NoOpMax        int     // Max random no-op steps on episode start
	ActionInterval int     // Steps between policy resamples (frame skip)
	Discount       float64 // Return discount γ
	UpdateCadence  int     // Max transitions per gradient update

	StepBudget   int64 // Global steps after which workers stop
	SaveInterval int64 // Global steps between checkpoints, 0 disables
}

// Validate returns an error describing the first illegal field
func (c Config) Validate() error {
	if c.FrameWidth <= 0 || c.FrameHeight <= 0 {
		return fmt.Errorf("frame size %vx%v is not positive",
			c.FrameWidth, c.FrameHeight)
	}
	if c.StackDepth <= 0 {
		return fmt.Errorf("stack depth must be positive, got %v",
			c.StackDepth)
	}
	if c.NoOpMax < 1 {
		return fmt.Errorf("max no-op steps must be at least 1, got %v",
			c.NoOpMax)
	}
	if c.ActionInterval < 1 {
		return fmt.Errorf("action interval must be at least 1, got %v",
			c.ActionInterval)
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("discount must be in [0, 1], got %v", c.Discount)
	}
	if c.UpdateCadence < 1 {
		return fmt.Errorf("update cadence must be at least 1, got %v",
			c.UpdateCadence)
	}
	if c.StepBudget <= 0 {
		return fmt.Errorf("step budget must be positive, got %v",
			c.StepBudget)
	}
	if c.SaveInterval < 0 {
		return fmt.Errorf("save interval must be non-negative, got %v",
			c.SaveInterval)
	}
	return nil
}

// ActorLearner runs one worker's interaction-and-training loop
// against its own Environment and the shared approximator. Everything
// an ActorLearner owns is private to it; the only shared state it
// touches is the Globals counters, the approximator, and the tracker,
// each of which is safe for concurrent use.
type ActorLearner struct {
	id      int
	env     environment.Environment
	net     network.Approximator
	globals *Globals
	tracker trackers.Tracker
	ckpt    checkpointer.Checkpointer
	config  Config
	rng     *rand.Rand

	stack   *frame.Stack
	segment *RolloutSegment

	// Raw observation of the previous environment step, kept for the
	// pixelwise max in preprocessing
	lastObs image.Image

	episodes int // Completed episodes, local to this worker
}

// NewActorLearner returns a worker bound to its own environment and
// the run's shared approximator, counters, and tracker. The tracker
// and checkpointer may be nil.
func NewActorLearner(id int, env environment.Environment,
	net network.Approximator, globals *Globals, tracker trackers.Tracker,
	ckpt checkpointer.Checkpointer, config Config,
	seed uint64) (*ActorLearner, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("newActorLearner: %v", err)
	}
	if env == nil || net == nil || globals == nil {
		return nil, fmt.Errorf("newActorLearner: environment, network, " +
			"and globals are required")
	}

	stack, err := frame.NewStack(config.StackDepth,
		config.FrameWidth*config.FrameHeight)
	if err != nil {
		return nil, fmt.Errorf("newActorLearner: %v", err)
	}

	return &ActorLearner{
		id:      id,
		env:     env,
		net:     net,
		globals: globals,
		tracker: tracker,
		ckpt:    ckpt,
		config:  config,
		rng:     rand.New(rand.NewSource(seed)),
		stack:   stack,
		segment: NewRolloutSegment(config.UpdateCadence),
	}, nil
}

// Run executes episodes until the global step budget is reached. The
// budget is observed through unsynchronized reads, so the worker may
// run a small number of steps past it. Environment errors abort this
// worker only; training errors are logged and skipped.
func (a *ActorLearner) Run() error {
	for a.globals.Steps() < a.config.StepBudget {
		if err := a.runEpisode(); err != nil {
			return fmt.Errorf("run: worker %v: %v", a.id, err)
		}
	}
	return nil
}

// runEpisode plays one episode, updating the shared approximator
// every UpdateCadence steps and on termination
func (a *ActorLearner) runEpisode() error {
	if err := a.resetEpisode(); err != nil {
		return err
	}

	var (
		terminal    bool
		action      int
		steps       int // Within-episode step index, drives frame skip
		totalReward float64
		losses      []float64
	)

	for !terminal {
		a.segment.Reset()

		for a.segment.Len() < a.config.UpdateCadence && !terminal {
			state := a.stack.Flat()

			if steps%a.config.ActionInterval == 0 {
				var err error
				if action, err = a.sampleAction(state); err != nil {
					return err
				}
			}

			obs, reward, term, err := a.env.Step(action)
			if err != nil {
				return fmt.Errorf("runEpisode: %v", err)
			}

			clipped := floatutils.Clip(reward, -1, 1)
			a.segment.Add(state, action, clipped)
			totalReward += clipped
			terminal = term
			steps++

			if err := a.observe(obs); err != nil {
				return err
			}

			globalStep := a.globals.AddStep()
			a.globals.AnnealLearningRate()
			if a.ckpt != nil && checkpointer.ShouldCheckpoint(globalStep,
				a.config.SaveInterval) {
				if err := a.ckpt.Checkpoint(globalStep); err != nil {
					log.Printf("worker %v: checkpoint at step %v "+
						"failed: %v", a.id, globalStep, err)
				}
			}
		}

		if loss, updated := a.update(terminal); updated {
			losses = append(losses, loss)
		}

		// Stale reads across workers are fine here; the budget is a
		// soft stop
		if !terminal && a.globals.Steps() >= a.config.StepBudget {
			return nil
		}
	}

	globalEpisode := a.globals.AddEpisode()
	if a.tracker != nil {
		a.tracker.Track(trackers.EpisodeStats{
			Worker:        a.id,
			Episode:       a.episodes,
			GlobalEpisode: globalEpisode,
			Duration:      steps,
			Reward:        totalReward,
			MeanLoss:      floatutils.Mean(losses...),
		})
	}
	a.episodes++

	return nil
}

// resetEpisode resets the environment, takes a random number of no-op
// steps to randomize the start state, and fills the frame stack from
// the first preprocessed frame
func (a *ActorLearner) resetEpisode() error {
	obs, err := a.env.Reset()
	if err != nil {
		return fmt.Errorf("resetEpisode: %v", err)
	}
	a.lastObs = nil

	noOps := 1 + a.rng.Intn(a.config.NoOpMax)
	for i := 0; i < noOps; i++ {
		next, _, terminal, err := a.env.Step(0)
		if err != nil {
			return fmt.Errorf("resetEpisode: %v", err)
		}
		if terminal {
			// The start randomization killed the episode; start over
			if next, err = a.env.Reset(); err != nil {
				return fmt.Errorf("resetEpisode: %v", err)
			}
			a.lastObs = nil
			obs = next
			continue
		}
		a.lastObs = obs
		obs = next
	}

	first := frame.Preprocess(obs, a.lastObs, a.config.FrameWidth,
		a.config.FrameHeight)
	if err := a.stack.Fill(first); err != nil {
		return fmt.Errorf("resetEpisode: %v", err)
	}
	a.lastObs = obs

	return nil
}

// observe preprocesses a new observation and shifts it into the state
// stack
func (a *ActorLearner) observe(obs image.Image) error {
	processed := frame.Preprocess(obs, a.lastObs, a.config.FrameWidth,
		a.config.FrameHeight)
	if err := a.stack.Push(processed); err != nil {
		return fmt.Errorf("observe: %v", err)
	}
	a.lastObs = obs
	return nil
}

// sampleAction draws an action from the policy's categorical
// distribution at the given state
func (a *ActorLearner) sampleAction(state []float64) (int, error) {
	probs, _, err := a.net.Predict([][]float64{state})
	if err != nil {
		return 0, fmt.Errorf("sampleAction: %v", err)
	}

	return SampleCategorical(a.rng, probs[0]), nil
}

// update computes the segment's returns and pushes one gradient step
// to the shared approximator. Reports whether an update was applied;
// a rejected update (non-finite loss, length errors) is logged and the
// segment dropped, since the shared parameters were left untouched.
func (a *ActorLearner) update(terminal bool) (float64, bool) {
	if a.segment.Len() == 0 {
		return 0, false
	}

	bootstrap := 0.0
	if !terminal {
		_, values, err := a.net.Predict([][]float64{a.stack.Flat()})
		if err != nil {
			log.Printf("worker %v: bootstrap prediction failed: %v", a.id,
				err)
			return 0, false
		}
		bootstrap = values[0]
	}

	returns := a.segment.Returns(bootstrap, a.config.Discount)
	loss, err := a.net.ApplyGradient(a.segment.States(),
		a.segment.Actions(), returns, a.globals.LearningRate())
	if err != nil {
		log.Printf("worker %v: update rejected: %v", a.id, err)
		return 0, false
	}

	return loss, true
}
