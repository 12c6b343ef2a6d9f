// Package experiment implements running asynchronous training
// experiments: spawning workers, monitoring their shared progress, and
// joining them when the step budget is exhausted
package experiment

import (
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fogleman/gg"

	"github.com/tatsuyaokubo/async-rl/agent"
	"github.com/tatsuyaokubo/async-rl/environment"
	"github.com/tatsuyaokubo/async-rl/experiment/checkpointer"
	"github.com/tatsuyaokubo/async-rl/experiment/trackers"
	"github.com/tatsuyaokubo/async-rl/network"
	"github.com/tatsuyaokubo/async-rl/utils/progressbar"
)

// Async runs one asynchronous training experiment: N actor-learner
// workers, each with a private environment, sharing one approximator
// and one set of global counters.
type Async struct {
	envs    []environment.Environment
	net     network.Approximator
	globals *agent.Globals
	tracker trackers.Tracker
	ckpt    checkpointer.Checkpointer
	config  agent.Config
	seed    uint64

	// Monitoring runs on its own loop alongside the workers and must
	// never block their completion. Zero interval disables it.
	monitorInterval time.Duration
	renderDir       string
	renderCount     int
}

// NewAsync returns an experiment running one worker per environment.
// The tracker and checkpointer may be nil.
func NewAsync(envs []environment.Environment, net network.Approximator,
	globals *agent.Globals, tracker trackers.Tracker,
	ckpt checkpointer.Checkpointer, config agent.Config,
	seed uint64) (*Async, error) {
	if len(envs) == 0 {
		return nil, fmt.Errorf("newAsync: no environments")
	}
	if net == nil || globals == nil {
		return nil, fmt.Errorf("newAsync: approximator and globals are " +
			"required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("newAsync: %v", err)
	}

	return &Async{
		envs:    envs,
		net:     net,
		globals: globals,
		tracker: tracker,
		ckpt:    ckpt,
		config:  config,
		seed:    seed,
	}, nil
}

// Monitor enables a progress log line every interval while the workers
// run. If dir is non-empty and the first environment can render,
// frames are also dumped there as PNG files.
func (a *Async) Monitor(interval time.Duration, dir string) {
	a.monitorInterval = interval
	a.renderDir = dir
}

// Run spawns the workers, monitors them until the global step budget
// is exhausted, joins them, and saves the tracked data. A worker
// failure is terminal for that worker only; the others run on.
func (a *Async) Run() error {
	workers := make([]*agent.ActorLearner, len(a.envs))
	for i, env := range a.envs {
		worker, err := agent.NewActorLearner(i, env, a.net, a.globals,
			a.tracker, a.ckpt, a.config, a.seed+uint64(i))
		if err != nil {
			return fmt.Errorf("run: %v", err)
		}
		workers[i] = worker
	}

	var wg sync.WaitGroup
	for _, worker := range workers {
		wg.Add(1)
		go func(w *agent.ActorLearner) {
			defer wg.Done()
			if err := w.Run(); err != nil {
				log.Printf("%v", err)
			}
		}(worker)
	}

	// Join through a channel so the monitor can select against it
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	a.monitor(done)

	if a.tracker != nil {
		if err := a.tracker.Save(); err != nil {
			return fmt.Errorf("run: %v", err)
		}
	}

	return nil
}

// monitor logs training progress on a ticker until the workers finish.
// It owns no shared state beyond reads of the global counters, so it
// can never delay a worker.
func (a *Async) monitor(done <-chan struct{}) {
	if a.monitorInterval <= 0 {
		<-done
		return
	}

	bar, err := progressbar.New(os.Stderr, 40, a.config.StepBudget)
	if err != nil {
		log.Printf("monitor: %v", err)
		<-done
		return
	}
	defer bar.Close()

	ticker := time.NewTicker(a.monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			bar.Set(a.globals.Steps(), fmt.Sprintf(
				"step %v  episodes %v  lr %.2e", a.globals.Steps(),
				a.globals.Episodes(), a.globals.LearningRate()))
			a.renderFrame()
		}
	}
}

// renderFrame dumps the first environment's current frame as a PNG
func (a *Async) renderFrame() {
	if a.renderDir == "" {
		return
	}
	renderer, ok := a.envs[0].(environment.Renderer)
	if !ok {
		return
	}

	img := renderer.Render()
	if img == nil {
		return
	}

	path := filepath.Join(a.renderDir, fmt.Sprintf("frame-%05d.png",
		a.renderCount))
	if err := savePNG(path, img); err != nil {
		log.Printf("monitor: could not render frame: %v", err)
		return
	}
	a.renderCount++
}

func savePNG(path string, img image.Image) error {
	return gg.NewContextForImage(img).SavePNG(path)
}
