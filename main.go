// Command async-rl trains an actor-critic agent asynchronously on a
// pixel environment, or evaluates a previously trained one.
package main

import (
	"flag"
	"log"

	"github.com/tatsuyaokubo/async-rl/agent"
	"github.com/tatsuyaokubo/async-rl/config"
	"github.com/tatsuyaokubo/async-rl/environment"
	"github.com/tatsuyaokubo/async-rl/experiment"
	"github.com/tatsuyaokubo/async-rl/experiment/checkpointer"
	"github.com/tatsuyaokubo/async-rl/experiment/trackers"
	"github.com/tatsuyaokubo/async-rl/network"
)

func main() {
	configPath := flag.String("config", "", "JSON config file; defaults "+
		"are used when empty")
	evaluate := flag.Bool("evaluate", false, "evaluate a saved model "+
		"instead of training")
	flag.Parse()

	conf := config.DefaultConfig()
	if *configPath != "" {
		var err error
		if conf, err = config.Load(*configPath); err != nil {
			log.Fatalf("%v", err)
		}
	}
	if *evaluate {
		conf.Train = false
	}
	if err := conf.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if conf.Train {
		train(conf)
	} else {
		eval(conf)
	}
}

// train runs the asynchronous training experiment to its step budget
func train(conf config.Config) {
	envs := make([]environment.Environment, conf.Workers)
	for i := range envs {
		env, err := conf.CreateEnvironment(conf.Seed + uint64(i))
		if err != nil {
			log.Fatalf("%v", err)
		}
		defer env.Close()
		envs[i] = env
	}

	net := buildNetwork(conf, envs[0].NumActions())
	if conf.LoadCheckpoint {
		loadNetwork(net, conf.CheckpointDir)
	}

	globals, err := agent.NewGlobals(conf.InitialLearningRate,
		conf.StepBudget)
	if err != nil {
		log.Fatalf("%v", err)
	}

	tracker, err := trackers.NewSummary(conf.SummaryDir, false)
	if err != nil {
		log.Fatalf("%v", err)
	}

	var ckpt checkpointer.Checkpointer
	if conf.SaveInterval > 0 {
		if ckpt, err = checkpointer.NewInterval(net,
			conf.CheckpointDir); err != nil {
			log.Fatalf("%v", err)
		}
	}

	exp, err := experiment.NewAsync(envs, net, globals, tracker, ckpt,
		conf.WorkerConfig(), conf.Seed)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if conf.MonitorSeconds > 0 {
		exp.Monitor(conf.MonitorInterval(), conf.RenderDir)
	}

	if err := exp.Run(); err != nil {
		log.Fatalf("%v", err)
	}

	// Final checkpoint so a run is resumable even between intervals
	if _, err := net.Save(conf.CheckpointDir, globals.Steps()); err != nil {
		log.Printf("could not save the final checkpoint: %v", err)
	}
}

// eval plays episodes with a saved model and reports their returns
func eval(conf config.Config) {
	env, err := conf.CreateEnvironment(conf.Seed)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer env.Close()

	net := buildNetwork(conf, env.NumActions())
	loadNetwork(net, conf.CheckpointDir)

	rewards, err := experiment.Evaluate(env, net, conf.WorkerConfig(),
		conf.EvalEpisodes, conf.Seed)
	if err != nil {
		log.Fatalf("%v", err)
	}

	total := 0.0
	for i, reward := range rewards {
		log.Printf("evaluation episode %v: reward %v", i, reward)
		total += reward
	}
	log.Printf("mean reward over %v episodes: %v", len(rewards),
		total/float64(len(rewards)))
}

func buildNetwork(conf config.Config, numActions int) *network.ActorCritic {
	init, err := conf.InitWFn()
	if err != nil {
		log.Fatalf("%v", err)
	}

	features := conf.StackDepth * conf.FrameWidth * conf.FrameHeight
	net, err := network.NewActorCritic(features, numActions,
		conf.HiddenSizes, init, conf.Decay, conf.Epsilon,
		conf.EntropyWeight)
	if err != nil {
		log.Fatalf("%v", err)
	}
	return net
}

func loadNetwork(net *network.ActorCritic, dir string) {
	switch err := net.Load(dir); err {
	case nil:
		log.Printf("restored parameters from %v", dir)
	case network.ErrNoCheckpoint:
		log.Printf("no checkpoint in %v, starting fresh", dir)
	default:
		log.Fatalf("%v", err)
	}
}
