package network

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	G "gorgonia.org/gorgonia"
)

func newTestNet(t *testing.T) *ActorCritic {
	t.Helper()

	net, err := NewActorCritic(4, 3, []int{8}, G.GlorotU(1.0), 0.99, 0.1,
		0.01)
	if err != nil {
		t.Fatal(err)
	}
	return net
}

func testStates(n int) [][]float64 {
	states := make([][]float64, n)
	for i := range states {
		states[i] = []float64{0.1, 0.2, 0.3, float64(i) * 0.1}
	}
	return states
}

func TestPredictReturnsSimplex(t *testing.T) {
	net := newTestNet(t)

	probs, values, err := net.Predict(testStates(1))
	if err != nil {
		t.Fatal(err)
	}

	if len(probs) != 1 || len(values) != 1 {
		t.Fatalf("predict returned %v prob rows and %v values, "+
			"expected 1 and 1", len(probs), len(values))
	}
	if len(probs[0]) != 3 {
		t.Fatalf("prob row has %v entries, expected 3", len(probs[0]))
	}

	sum := 0.0
	for _, p := range probs[0] {
		if p < 0 || p > 1 {
			t.Errorf("probability %v outside [0, 1]", p)
		}
		sum += p
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("probabilities sum to %v, expected 1", sum)
	}
}

func TestPredictIsIdempotent(t *testing.T) {
	net := newTestNet(t)
	states := testStates(2)

	probs1, values1, err := net.Predict(states)
	if err != nil {
		t.Fatal(err)
	}
	probs2, values2, err := net.Predict(states)
	if err != nil {
		t.Fatal(err)
	}

	for i := range probs1 {
		if values1[i] != values2[i] {
			t.Errorf("value %v differs across identical predictions: "+
				"%v vs %v", i, values1[i], values2[i])
		}
		for j := range probs1[i] {
			if probs1[i][j] != probs2[i][j] {
				t.Errorf("probability (%v, %v) differs across identical "+
					"predictions", i, j)
			}
		}
	}
}

func TestApplyGradientChangesPredictions(t *testing.T) {
	net := newTestNet(t)
	states := testStates(3)

	_, before, err := net.Predict(states)
	if err != nil {
		t.Fatal(err)
	}

	loss, err := net.ApplyGradient(states, []int{0, 1, 2},
		[]float64{1.0, 0.5, -0.5}, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	if !finite(loss) {
		t.Fatalf("loss = %v, expected finite", loss)
	}

	_, after, err := net.Predict(states)
	if err != nil {
		t.Fatal(err)
	}

	changed := false
	for i := range before {
		if before[i] != after[i] {
			changed = true
		}
	}
	if !changed {
		t.Error("value predictions unchanged after a gradient update")
	}
}

func TestApplyGradientHandlesVariableBatchSizes(t *testing.T) {
	net := newTestNet(t)

	// Segment lengths vary when episodes terminate early
	for _, n := range []int{5, 2, 5, 1} {
		states := testStates(n)
		actions := make([]int, n)
		returns := make([]float64, n)
		for i := range returns {
			returns[i] = 0.5
		}

		if _, err := net.ApplyGradient(states, actions, returns,
			0.001); err != nil {
			t.Fatalf("batch size %v: %v", n, err)
		}
	}
}

func TestRigReusableAfterFailedUpdate(t *testing.T) {
	net := newTestNet(t)
	states := testStates(2)

	// A non-finite return surfaces as an error partway through the
	// update; the same rig must still serve later calls cleanly
	_, err := net.ApplyGradient(states, []int{0, 1},
		[]float64{math.NaN(), 1.0}, 0.01)
	if err == nil {
		t.Fatal("applyGradient: expected error for non-finite return")
	}

	loss, err := net.ApplyGradient(states, []int{0, 1},
		[]float64{1.0, 0.5}, 0.01)
	if err != nil {
		t.Fatalf("update after failed update: %v", err)
	}
	if !finite(loss) {
		t.Fatalf("loss after failed update = %v, expected finite", loss)
	}

	probs, _, err := net.Predict(states)
	if err != nil {
		t.Fatalf("predict after failed update: %v", err)
	}
	for i := range probs {
		sum := 0.0
		for _, p := range probs[i] {
			sum += p
		}
		if math.Abs(sum-1.0) > 1e-6 {
			t.Errorf("row %v probabilities sum to %v, expected 1", i, sum)
		}
	}
}

func TestApplyGradientValidates(t *testing.T) {
	net := newTestNet(t)

	if _, err := net.ApplyGradient(nil, nil, nil, 0.01); err == nil {
		t.Error("applyGradient: expected error for empty segment")
	}

	states := testStates(2)
	if _, err := net.ApplyGradient(states, []int{0}, []float64{1, 1},
		0.01); err == nil {
		t.Error("applyGradient: expected error for mismatched lengths")
	}

	if _, err := net.ApplyGradient(states, []int{0, 5}, []float64{1, 1},
		0.01); err == nil {
		t.Error("applyGradient: expected error for out-of-range action")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	net := newTestNet(t)
	states := testStates(1)

	// Perturb the weights away from their initialization
	if _, err := net.ApplyGradient(states, []int{1}, []float64{1.0},
		0.01); err != nil {
		t.Fatal(err)
	}

	probsBefore, valuesBefore, err := net.Predict(states)
	if err != nil {
		t.Fatal(err)
	}

	path, err := net.Save(dir, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("checkpoint written to %v, expected directory %v", path,
			dir)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("checkpoint file missing: %v", err)
	}

	restored := newTestNet(t)
	if err := restored.Load(path); err != nil {
		t.Fatal(err)
	}

	probsAfter, valuesAfter, err := restored.Predict(states)
	if err != nil {
		t.Fatal(err)
	}

	if math.Abs(valuesBefore[0]-valuesAfter[0]) > 1e-12 {
		t.Errorf("restored value = %v, expected %v", valuesAfter[0],
			valuesBefore[0])
	}
	for j := range probsBefore[0] {
		if math.Abs(probsBefore[0][j]-probsAfter[0][j]) > 1e-12 {
			t.Errorf("restored probability %v = %v, expected %v", j,
				probsAfter[0][j], probsBefore[0][j])
		}
	}
}

func TestLoadDirectoryPicksLatestCheckpoint(t *testing.T) {
	dir := t.TempDir()
	net := newTestNet(t)

	if _, err := net.Save(dir, 500); err != nil {
		t.Fatal(err)
	}

	// Change the weights, then write a later checkpoint
	if _, err := net.ApplyGradient(testStates(1), []int{0},
		[]float64{1.0}, 0.01); err != nil {
		t.Fatal(err)
	}
	_, latest, err := net.Predict(testStates(1))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := net.Save(dir, 1000); err != nil {
		t.Fatal(err)
	}

	restored := newTestNet(t)
	if err := restored.Load(dir); err != nil {
		t.Fatal(err)
	}

	_, values, err := restored.Predict(testStates(1))
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(values[0]-latest[0]) > 1e-12 {
		t.Errorf("loaded value = %v, expected the later checkpoint's %v",
			values[0], latest[0])
	}
}

func TestLoadMissingCheckpoint(t *testing.T) {
	net := newTestNet(t)

	if err := net.Load(t.TempDir()); err != ErrNoCheckpoint {
		t.Errorf("load of empty directory returned %v, expected "+
			"ErrNoCheckpoint", err)
	}
	if err := net.Load("/nonexistent/checkpoint.bin"); err != ErrNoCheckpoint {
		t.Errorf("load of missing path returned %v, expected "+
			"ErrNoCheckpoint", err)
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
