package trackers

import (
	"encoding/gob"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Summary tracks the episode statistics of every worker, logging each
// episode as it completes and saving the full series when training
// finishes. Safe for concurrent use.
type Summary struct {
	mu    sync.Mutex
	dir   string
	quiet bool
	stats []EpisodeStats
}

// NewSummary returns a Summary that saves its data in dir. When quiet
// is true, per-episode log lines are suppressed.
func NewSummary(dir string, quiet bool) (*Summary, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("newSummary: could not create summary "+
			"directory: %v", err)
	}

	return &Summary{dir: dir, quiet: quiet}, nil
}

// Track records one completed episode
func (s *Summary) Track(stats EpisodeStats) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats = append(s.stats, stats)
	if !s.quiet {
		log.Printf("worker %v episode %v (global %v): steps %v  "+
			"reward %v  mean loss %v", stats.Worker, stats.Episode,
			stats.GlobalEpisode, stats.Duration, stats.Reward,
			stats.MeanLoss)
	}
}

// Save writes the collected episode series to disk
func (s *Summary) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, "episodes.bin")
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save: could not create data file: %v", err)
	}
	defer file.Close()

	enc := gob.NewEncoder(file)
	if err := enc.Encode(s.stats); err != nil {
		return fmt.Errorf("save: could not encode data: %v", err)
	}

	return nil
}

// Stats returns a copy of the episodes tracked so far
func (s *Summary) Stats() []EpisodeStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]EpisodeStats(nil), s.stats...)
}

// Multi fans episode statistics out to a fixed set of Trackers
type Multi struct {
	trackers []Tracker
}

// NewMulti returns a Tracker forwarding to every argument tracker
func NewMulti(trackers ...Tracker) *Multi {
	return &Multi{trackers: trackers}
}

// Track forwards the episode to every registered tracker
func (m *Multi) Track(stats EpisodeStats) {
	for _, tracker := range m.trackers {
		tracker.Track(stats)
	}
}

// Save saves every registered tracker, returning the first error
func (m *Multi) Save() error {
	var firstErr error
	for _, tracker := range m.trackers {
		if err := tracker.Save(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
