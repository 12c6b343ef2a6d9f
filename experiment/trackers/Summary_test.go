package trackers

import (
	"path/filepath"
	"sync"
	"testing"
)

func TestSummarySaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	summary, err := NewSummary(dir, true)
	if err != nil {
		t.Fatal(err)
	}

	tracked := []EpisodeStats{
		{Worker: 0, Episode: 0, GlobalEpisode: 1, Duration: 120,
			Reward: 3, MeanLoss: 0.5},
		{Worker: 1, Episode: 0, GlobalEpisode: 2, Duration: 80,
			Reward: -1, MeanLoss: 0.25},
	}
	for _, stats := range tracked {
		summary.Track(stats)
	}
	if err := summary.Save(); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadStats(filepath.Join(dir, "episodes.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != len(tracked) {
		t.Fatalf("loaded %v episodes, expected %v", len(loaded),
			len(tracked))
	}
	for i := range tracked {
		if loaded[i] != tracked[i] {
			t.Errorf("episode %v loaded as %+v, expected %+v", i,
				loaded[i], tracked[i])
		}
	}
}

func TestSummaryConcurrentTrack(t *testing.T) {
	summary, err := NewSummary(t.TempDir(), true)
	if err != nil {
		t.Fatal(err)
	}

	const workers = 8
	const episodes = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for e := 0; e < episodes; e++ {
				summary.Track(EpisodeStats{Worker: worker, Episode: e})
			}
		}(w)
	}
	wg.Wait()

	if got := len(summary.Stats()); got != workers*episodes {
		t.Errorf("tracked %v episodes, expected %v", got,
			workers*episodes)
	}
}

func TestMultiForwards(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()

	first, err := NewSummary(dir1, true)
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewSummary(dir2, true)
	if err != nil {
		t.Fatal(err)
	}

	multi := NewMulti(first, second)
	multi.Track(EpisodeStats{Worker: 3, Duration: 10})

	if len(first.Stats()) != 1 || len(second.Stats()) != 1 {
		t.Error("multi tracker did not forward to every tracker")
	}
	if err := multi.Save(); err != nil {
		t.Fatal(err)
	}
}
