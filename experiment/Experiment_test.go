package experiment

import (
	"image"
	"testing"
	"time"

	"github.com/tatsuyaokubo/async-rl/agent"
	"github.com/tatsuyaokubo/async-rl/environment"
	"github.com/tatsuyaokubo/async-rl/experiment/trackers"
)

// stubEnv terminates each episode after a fixed number of steps from
// Reset
type stubEnv struct {
	terminalAfter int
	reward        float64
	steps         int
	img           image.Image
}

func newStubEnv(terminalAfter int, reward float64) *stubEnv {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 16)
	}
	return &stubEnv{terminalAfter: terminalAfter, reward: reward, img: img}
}

func (s *stubEnv) Reset() (image.Image, error) {
	s.steps = 0
	return s.img, nil
}

func (s *stubEnv) Step(action int) (image.Image, float64, bool, error) {
	s.steps++
	terminal := s.terminalAfter > 0 && s.steps >= s.terminalAfter
	return s.img, s.reward, terminal, nil
}

func (s *stubEnv) NumActions() int { return 3 }
func (s *stubEnv) Close() error    { return nil }

// stubNet returns a uniform policy and fixed values, and accepts every
// update
type stubNet struct{}

func (s *stubNet) Predict(states [][]float64) ([][]float64, []float64,
	error) {
	probs := make([][]float64, len(states))
	values := make([]float64, len(states))
	for i := range states {
		probs[i] = []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}
		values[i] = 0.5
	}
	return probs, values, nil
}

func (s *stubNet) ApplyGradient(states [][]float64, actions []int,
	returns []float64, learningRate float64) (float64, error) {
	return 0.1, nil
}

func (s *stubNet) Save(dir string, step int64) (string, error) {
	return dir, nil
}
func (s *stubNet) Load(path string) error { return nil }
func (s *stubNet) NumActions() int        { return 3 }

func testConfig(budget int64) agent.Config {
	return agent.Config{
		FrameWidth:     4,
		FrameHeight:    4,
		StackDepth:     2,
		NoOpMax:        1,
		ActionInterval: 4,
		Discount:       0.99,
		UpdateCadence:  5,
		StepBudget:     budget,
	}
}

func TestAsyncRunsWorkersToBudget(t *testing.T) {
	config := testConfig(60)
	envs := []environment.Environment{
		newStubEnv(7, 1),
		newStubEnv(9, 1),
	}

	globals, err := agent.NewGlobals(0.0007, config.StepBudget)
	if err != nil {
		t.Fatal(err)
	}
	tracker, err := trackers.NewSummary(t.TempDir(), true)
	if err != nil {
		t.Fatal(err)
	}

	exp, err := NewAsync(envs, &stubNet{}, globals, tracker, nil, config,
		13)
	if err != nil {
		t.Fatal(err)
	}
	if err := exp.Run(); err != nil {
		t.Fatal(err)
	}

	if got := globals.Steps(); got < config.StepBudget {
		t.Errorf("experiment stopped at %v global steps, before the "+
			"budget %v", got, config.StepBudget)
	}
	if len(tracker.Stats()) == 0 {
		t.Error("no episodes tracked over the whole run")
	}
	if globals.Episodes() != int64(len(tracker.Stats())) {
		t.Errorf("global episode count %v does not match %v tracked "+
			"episodes", globals.Episodes(), len(tracker.Stats()))
	}
}

func TestAsyncMonitorDoesNotBlockCompletion(t *testing.T) {
	config := testConfig(30)
	envs := []environment.Environment{newStubEnv(7, 1)}

	globals, err := agent.NewGlobals(0.0007, config.StepBudget)
	if err != nil {
		t.Fatal(err)
	}

	exp, err := NewAsync(envs, &stubNet{}, globals, nil, nil, config, 13)
	if err != nil {
		t.Fatal(err)
	}
	exp.Monitor(time.Millisecond, "")

	done := make(chan error, 1)
	go func() { done <- exp.Run() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("experiment did not finish while monitoring")
	}
}

func TestNewAsyncValidates(t *testing.T) {
	globals, err := agent.NewGlobals(0.0007, 100)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewAsync(nil, &stubNet{}, globals, nil, nil,
		testConfig(100), 13); err == nil {
		t.Error("newAsync: expected error for no environments")
	}

	envs := []environment.Environment{newStubEnv(7, 1)}
	if _, err := NewAsync(envs, nil, globals, nil, nil, testConfig(100),
		13); err == nil {
		t.Error("newAsync: expected error for nil approximator")
	}

	bad := testConfig(100)
	bad.Discount = 2
	if _, err := NewAsync(envs, &stubNet{}, globals, nil, nil, bad,
		13); err == nil {
		t.Error("newAsync: expected error for illegal config")
	}
}

func TestEvaluateReportsEpisodeRewards(t *testing.T) {
	env := newStubEnv(7, 2) // Raw rewards are not clipped in evaluation

	rewards, err := Evaluate(env, &stubNet{}, testConfig(1000), 3, 13)
	if err != nil {
		t.Fatal(err)
	}

	if len(rewards) != 3 {
		t.Fatalf("evaluated %v episodes, expected 3", len(rewards))
	}
	for i, reward := range rewards {
		// One no-op step, then six rewarded steps per episode
		if reward != 12 {
			t.Errorf("episode %v reward = %v, expected 12", i, reward)
		}
	}
}
