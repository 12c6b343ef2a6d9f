// Package agent implements the asynchronous actor-learner workers and
// the training state they share
package agent

import (
	"fmt"
	"math"
	"sync/atomic"
)

// Globals holds the training progress shared by every worker: the
// global environment-step count, the global episode count, and the
// current learning rate.
//
// Every field is read and written with lock-free atomic operations.
// Individual loads and stores never tear, but read-modify-write
// sequences are deliberately not serialized across workers: concurrent
// learning rate decrements may overwrite each other, and the rate
// anneals toward zero faster than a single worker's schedule would.
// That relaxed consistency is part of the asynchronous training scheme
// and must not be tightened with a mutex.
type Globals struct {
	steps    int64
	episodes int64

	// Learning rate as math.Float64bits, so it can be loaded and
	// stored atomically
	learningRate uint64

	initialRate float64
	ratePerStep float64
}

// NewGlobals returns the shared training state for a run starting at
// initialRate and annealing it linearly to 0 over budget steps
func NewGlobals(initialRate float64, budget int64) (*Globals, error) {
	if initialRate < 0 {
		return nil, fmt.Errorf("newGlobals: initial learning rate must "+
			"be non-negative, got %v", initialRate)
	}
	if budget <= 0 {
		return nil, fmt.Errorf("newGlobals: step budget must be "+
			"positive, got %v", budget)
	}

	return &Globals{
		learningRate: math.Float64bits(initialRate),
		initialRate:  initialRate,
		ratePerStep:  initialRate / float64(budget),
	}, nil
}

// AddStep increments the global step count by one, returning the new
// count as observed by this worker
func (g *Globals) AddStep() int64 {
	return atomic.AddInt64(&g.steps, 1)
}

// Steps returns the global step count. Reads may be stale relative to
// other workers' increments.
func (g *Globals) Steps() int64 {
	return atomic.LoadInt64(&g.steps)
}

// AddEpisode increments the global episode count by one, returning the
// new count as observed by this worker
func (g *Globals) AddEpisode() int64 {
	return atomic.AddInt64(&g.episodes, 1)
}

// Episodes returns the global episode count
func (g *Globals) Episodes() int64 {
	return atomic.LoadInt64(&g.episodes)
}

// LearningRate returns the current learning rate
func (g *Globals) LearningRate() float64 {
	return math.Float64frombits(atomic.LoadUint64(&g.learningRate))
}

// AnnealLearningRate decrements the learning rate by one step of the
// linear schedule, flooring it at 0, and returns the new rate. The
// load-decrement-store sequence is intentionally not atomic as a
// whole: overlapping decrements from other workers may be lost.
func (g *Globals) AnnealLearningRate() float64 {
	rate := g.LearningRate() - g.ratePerStep
	if rate < 0 {
		rate = 0
	}
	atomic.StoreUint64(&g.learningRate, math.Float64bits(rate))
	return rate
}
