package experiment

import (
	"fmt"
	"image"

	"golang.org/x/exp/rand"

	"github.com/tatsuyaokubo/async-rl/agent"
	"github.com/tatsuyaokubo/async-rl/environment"
	"github.com/tatsuyaokubo/async-rl/frame"
	"github.com/tatsuyaokubo/async-rl/network"
)

// Evaluate plays episodes with the current policy and no training,
// returning each episode's total raw reward. The interaction mirrors
// the training loop: random no-op starts, stacked frames, and actions
// resampled only at the frame-skip interval.
func Evaluate(env environment.Environment, net network.Approximator,
	config agent.Config, episodes int, seed uint64) ([]float64, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("evaluate: %v", err)
	}
	if episodes <= 0 {
		return nil, fmt.Errorf("evaluate: episode count must be "+
			"positive, got %v", episodes)
	}

	stack, err := frame.NewStack(config.StackDepth,
		config.FrameWidth*config.FrameHeight)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %v", err)
	}
	rng := rand.New(rand.NewSource(seed))

	rewards := make([]float64, 0, episodes)
	for episode := 0; episode < episodes; episode++ {
		total, err := evaluateEpisode(env, net, config, stack, rng)
		if err != nil {
			return rewards, fmt.Errorf("evaluate: episode %v: %v",
				episode, err)
		}
		rewards = append(rewards, total)
	}

	return rewards, nil
}

func evaluateEpisode(env environment.Environment,
	net network.Approximator, config agent.Config, stack *frame.Stack,
	rng *rand.Rand) (float64, error) {
	obs, err := env.Reset()
	if err != nil {
		return 0, err
	}

	var lastObs image.Image
	noOps := 1 + rng.Intn(config.NoOpMax)
	for i := 0; i < noOps; i++ {
		next, _, terminal, err := env.Step(0)
		if err != nil {
			return 0, err
		}
		if terminal {
			if next, err = env.Reset(); err != nil {
				return 0, err
			}
			lastObs = nil
			obs = next
			continue
		}
		lastObs = obs
		obs = next
	}

	first := frame.Preprocess(obs, lastObs, config.FrameWidth,
		config.FrameHeight)
	if err := stack.Fill(first); err != nil {
		return 0, err
	}
	lastObs = obs

	var (
		total    float64
		action   int
		steps    int
		terminal bool
	)
	for !terminal {
		if steps%config.ActionInterval == 0 {
			probs, _, err := net.Predict([][]float64{stack.Flat()})
			if err != nil {
				return total, err
			}
			action = agent.SampleCategorical(rng, probs[0])
		}

		next, reward, term, err := env.Step(action)
		if err != nil {
			return total, err
		}
		total += reward
		terminal = term
		steps++

		processed := frame.Preprocess(next, lastObs, config.FrameWidth,
			config.FrameHeight)
		if err := stack.Push(processed); err != nil {
			return total, err
		}
		lastObs = next
	}

	return total, nil
}
