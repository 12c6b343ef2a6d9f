// Package trackers implements Trackers, which collect per-episode
// training data from workers and save it after the experiment finishes
package trackers

import (
	"encoding/gob"
	"fmt"
	"os"
)

// EpisodeStats summarizes one completed episode of one worker
type EpisodeStats struct {
	Worker        int     // Worker that ran the episode
	Episode       int     // Worker-local episode index
	GlobalEpisode int64   // Episode index across all workers
	Duration      int     // Episode length in environment steps
	Reward        float64 // Total clipped reward
	MeanLoss      float64 // Mean training loss over the episode's updates
}

// Tracker collects episode data from concurrently running workers and
// saves the collected data after training has finished. Track must be
// safe for concurrent use.
type Tracker interface {
	Track(stats EpisodeStats)
	Save() error
}

// LoadStats loads and returns the episode data saved by a Summary
func LoadStats(filename string) ([]EpisodeStats, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("loadStats: could not open data file: %v",
			err)
	}
	defer file.Close()

	dec := gob.NewDecoder(file)
	var stats []EpisodeStats
	if err := dec.Decode(&stats); err != nil {
		return nil, fmt.Errorf("loadStats: could not decode data: %v", err)
	}

	return stats, nil
}
