// Package config provides the full, JSON-serializable configuration of
// an asynchronous training run
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	G "gorgonia.org/gorgonia"

	"github.com/tatsuyaokubo/async-rl/agent"
	"github.com/tatsuyaokubo/async-rl/environment"
	"github.com/tatsuyaokubo/async-rl/environment/catcher"
	"github.com/tatsuyaokubo/async-rl/environment/gym"
)

// Catcher selects the native catcher environment; any other
// environment name is treated as an OpenAI Gym environment id
const Catcher = "Catcher"

// Weight initialization schemes
const (
	GlorotU  = "GlorotU"
	GlorotN  = "GlorotN"
	Gaussian = "Gaussian"
	Uniform  = "Uniform"
)

// Config holds every option of a training or evaluation run
type Config struct {
	// Environment
	Environment   string // Catcher or a Gym environment id
	FrameWidth    int    // Preprocessed frame width
	FrameHeight   int    // Preprocessed frame height
	StackDepth    int    // Frames stacked into one network input
	ObsWidth      int    // Gym only: raw observation frame width
	ObsHeight     int    // Gym only: raw observation frame height
	Lives         int    // Catcher only: misses before termination
	EpisodeCutoff int    // Catcher only: max episode steps, 0 unbounded

	// Network and optimizer
	HiddenSizes         []int
	InitScheme          string
	InitialLearningRate float64
	Decay               float64 // RMSProp squared-gradient decay
	Epsilon             float64 // RMSProp denominator epsilon
	EntropyWeight       float64

	// Worker loop
	NoOpMax        int
	ActionInterval int
	Discount       float64
	UpdateCadence  int
	Workers        int
	StepBudget     int64

	// Persistence and telemetry
	SaveInterval   int64
	LoadCheckpoint bool
	CheckpointDir  string
	SummaryDir     string

	// Run mode
	Train          bool
	EvalEpisodes   int
	Seed           uint64
	MonitorSeconds float64 // 0 disables the progress monitor
	RenderDir      string  // Non-empty dumps monitor frames as PNGs
}

// DefaultConfig returns the canonical training configuration
func DefaultConfig() Config {
	return Config{
		Environment:   Catcher,
		FrameWidth:    84,
		FrameHeight:   84,
		StackDepth:    4,
		ObsWidth:      160,
		ObsHeight:     210,
		Lives:         5,
		EpisodeCutoff: 2000,

		HiddenSizes:         []int{256},
		InitScheme:          GlorotU,
		InitialLearningRate: 0.0007,
		Decay:               0.99,
		Epsilon:             0.1,
		EntropyWeight:       0.01,

		NoOpMax:        30,
		ActionInterval: 4,
		Discount:       0.99,
		UpdateCadence:  5,
		Workers:        2,
		StepBudget:     5000000,

		SaveInterval:  500000,
		CheckpointDir: "checkpoints",
		SummaryDir:    "summaries",

		Train:          true,
		EvalEpisodes:   10,
		Seed:           36,
		MonitorSeconds: 10,
	}
}

// Load reads a configuration from a JSON file. Options absent from the
// file keep their default values.
func Load(path string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("load: could not read config: %v", err)
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("load: could not parse config: %v", err)
	}

	return config, nil
}

// Save writes the configuration to a JSON file
func (c Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "\t")
	if err != nil {
		return fmt.Errorf("save: could not marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("save: could not write config: %v", err)
	}
	return nil
}

// Validate returns an error describing the first illegal option
func (c Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("no environment name")
	}
	if c.Workers < 1 {
		return fmt.Errorf("worker count must be at least 1, got %v",
			c.Workers)
	}
	if len(c.HiddenSizes) == 0 {
		return fmt.Errorf("no hidden layer sizes")
	}
	for _, size := range c.HiddenSizes {
		if size <= 0 {
			return fmt.Errorf("hidden layer size must be positive, "+
				"got %v", size)
		}
	}
	if _, err := c.InitWFn(); err != nil {
		return err
	}
	if c.InitialLearningRate < 0 {
		return fmt.Errorf("initial learning rate must be non-negative, "+
			"got %v", c.InitialLearningRate)
	}
	if c.Decay < 0 || c.Decay >= 1 {
		return fmt.Errorf("decay must be in [0, 1), got %v", c.Decay)
	}
	if c.Epsilon <= 0 {
		return fmt.Errorf("epsilon must be positive, got %v", c.Epsilon)
	}
	if c.EntropyWeight < 0 {
		return fmt.Errorf("entropy weight must be non-negative, got %v",
			c.EntropyWeight)
	}
	if !c.Train && c.EvalEpisodes <= 0 {
		return fmt.Errorf("evaluation episode count must be positive, "+
			"got %v", c.EvalEpisodes)
	}

	// The worker loop options share agent.Config's constraints
	return c.WorkerConfig().Validate()
}

// WorkerConfig returns the per-worker loop parameters
func (c Config) WorkerConfig() agent.Config {
	return agent.Config{
		FrameWidth:     c.FrameWidth,
		FrameHeight:    c.FrameHeight,
		StackDepth:     c.StackDepth,
		NoOpMax:        c.NoOpMax,
		ActionInterval: c.ActionInterval,
		Discount:       c.Discount,
		UpdateCadence:  c.UpdateCadence,
		StepBudget:     c.StepBudget,
		SaveInterval:   c.SaveInterval,
	}
}

// InitWFn returns the weight initializer named by InitScheme
func (c Config) InitWFn() (G.InitWFn, error) {
	switch c.InitScheme {
	case GlorotU:
		return G.GlorotU(1.0), nil
	case GlorotN:
		return G.GlorotN(1.0), nil
	case Gaussian:
		return G.Gaussian(0.0, 0.01), nil
	case Uniform:
		return G.Uniform(-0.1, 0.1), nil
	}
	return nil, fmt.Errorf("no such init scheme %q", c.InitScheme)
}

// MonitorInterval returns MonitorSeconds as a duration
func (c Config) MonitorInterval() time.Duration {
	return time.Duration(c.MonitorSeconds * float64(time.Second))
}

// CreateEnvironment builds one instance of the configured environment.
// Each worker gets its own instance, seeded distinctly.
func (c Config) CreateEnvironment(seed uint64) (environment.Environment,
	error) {
	if c.Environment == Catcher {
		env, err := catcher.New(c.Lives, c.EpisodeCutoff, seed)
		if err != nil {
			return nil, fmt.Errorf("createEnvironment: %v", err)
		}
		return env, nil
	}

	env, err := gym.New(c.Environment, c.ObsWidth, c.ObsHeight, seed)
	if err != nil {
		return nil, fmt.Errorf("createEnvironment: %v", err)
	}
	return env, nil
}
