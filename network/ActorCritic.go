package network

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/tatsuyaokubo/async-rl/solver"
	"github.com/tatsuyaokubo/async-rl/utils/floatutils"
)

// ErrNoCheckpoint is returned by Load when no checkpoint exists at the
// given path
var ErrNoCheckpoint = errors.New("no checkpoint found")

const checkpointPrefix = "actor-critic-"

// Stabilizer added inside logarithms so that a vanishing probability
// cannot produce an infinite loss
const logStabilizer = 1e-10

// ActorCritic implements the Approximator interface with a gorgonia
// two-headed network: a softmax policy head and a state-value head on
// a shared fully connected trunk.
//
// Gorgonia graphs have a static batch dimension, but rollout segments
// vary in length (a segment ends early when the episode terminates).
// ActorCritic therefore keeps one compiled graph per batch size it has
// seen, built lazily and synchronised from the master weights before
// use. A single mutex makes each Predict and ApplyGradient call
// atomic; callers' control flow is never serialised beyond the
// individual call.
type ActorCritic struct {
	mu sync.Mutex

	features      int
	actions       int
	hiddenSizes   []int
	init          G.InitWFn
	entropyWeight float64

	// master holds the canonical weights. Every rig copies from
	// master before running and publishes back to it after a
	// successful update.
	master  *acNet
	version uint64

	rms *solver.RMSProp

	predictRigs map[int]*predictRig
	trainRigs   map[int]*trainRig
}

// predictRig is a compiled forward-only graph for one batch size
type predictRig struct {
	net     *acNet
	vm      G.VM
	version uint64
}

// trainRig is a compiled graph with the actor-critic loss and bound
// gradients for one batch size
type trainRig struct {
	net     *acNet
	vm      G.VM
	actions *G.Node // One-hot taken actions, shape (batch, actions)
	returns *G.Node // Bootstrapped returns, shape (batch)
	lossVal G.Value
	version uint64
}

// NewActorCritic returns a new ActorCritic approximator. The decay and
// epsilon parameters configure the RMSProp update rule, and
// entropyWeight scales the entropy bonus in the policy loss.
func NewActorCritic(features, actions int, hiddenSizes []int,
	init G.InitWFn, decay, epsilon, entropyWeight float64) (*ActorCritic,
	error) {
	master, err := newACNet(features, actions, 1, hiddenSizes, init)
	if err != nil {
		return nil, fmt.Errorf("newActorCritic: %v", err)
	}

	rms, err := solver.NewRMSProp(decay, epsilon)
	if err != nil {
		return nil, fmt.Errorf("newActorCritic: %v", err)
	}

	return &ActorCritic{
		features:      features,
		actions:       actions,
		hiddenSizes:   append([]int(nil), hiddenSizes...),
		init:          init,
		entropyWeight: entropyWeight,
		master:        master,
		rms:           rms,
		predictRigs:   make(map[int]*predictRig),
		trainRigs:     make(map[int]*trainRig),
	}, nil
}

// NumActions returns the size of the action space
func (a *ActorCritic) NumActions() int {
	return a.actions
}

// Features returns the length of a single state vector
func (a *ActorCritic) Features() int {
	return a.features
}

// Predict returns action probabilities and state values for a batch of
// states
func (a *ActorCritic) Predict(states [][]float64) ([][]float64,
	[]float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	flat, err := a.flatten(states)
	if err != nil {
		return nil, nil, fmt.Errorf("predict: %v", err)
	}

	rig, err := a.predictRig(len(states))
	if err != nil {
		return nil, nil, fmt.Errorf("predict: %v", err)
	}

	if err := rig.net.SetInput(flat); err != nil {
		return nil, nil, fmt.Errorf("predict: %v", err)
	}
	// Reset even on a failed run so a partial tape does not poison
	// the rig's next use
	defer rig.vm.Reset()
	if err := rig.vm.RunAll(); err != nil {
		return nil, nil, fmt.Errorf("predict: could not run forward "+
			"pass: %v", err)
	}

	probsFlat, err := rawFloats(rig.net.probsVal)
	if err != nil {
		return nil, nil, fmt.Errorf("predict: policy output: %v", err)
	}
	valuesFlat, err := rawFloats(rig.net.valueVal)
	if err != nil {
		return nil, nil, fmt.Errorf("predict: value output: %v", err)
	}

	probs := make([][]float64, len(states))
	for i := range probs {
		probs[i] = append([]float64(nil),
			probsFlat[i*a.actions:(i+1)*a.actions]...)
	}
	values := append([]float64(nil), valuesFlat...)

	return probs, values, nil
}

// ApplyGradient performs one gradient update on a rollout segment at
// the given learning rate, returning the scalar loss
func (a *ActorCritic) ApplyGradient(states [][]float64, actions []int,
	returns []float64, learningRate float64) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(states)
	if n == 0 {
		return 0, fmt.Errorf("applyGradient: empty segment")
	}
	if len(actions) != n || len(returns) != n {
		return 0, fmt.Errorf("applyGradient: segment lengths differ: "+
			"%v states, %v actions, %v returns", n, len(actions),
			len(returns))
	}

	flat, err := a.flatten(states)
	if err != nil {
		return 0, fmt.Errorf("applyGradient: %v", err)
	}

	oneHot := make([]float64, n*a.actions)
	for i, action := range actions {
		if action < 0 || action >= a.actions {
			return 0, fmt.Errorf("applyGradient: illegal action %v, "+
				"action space is [0, %v)", action, a.actions)
		}
		oneHot[i*a.actions+action] = 1.0
	}

	rig, err := a.trainRig(n)
	if err != nil {
		return 0, fmt.Errorf("applyGradient: %v", err)
	}

	if err := rig.net.SetInput(flat); err != nil {
		return 0, fmt.Errorf("applyGradient: %v", err)
	}
	err = G.Let(rig.actions, tensor.New(
		tensor.WithShape(n, a.actions),
		tensor.WithBacking(oneHot),
	))
	if err != nil {
		return 0, fmt.Errorf("applyGradient: could not set actions: %v",
			err)
	}
	err = G.Let(rig.returns, tensor.New(
		tensor.WithShape(n),
		tensor.WithBacking(append([]float64(nil), returns...)),
	))
	if err != nil {
		return 0, fmt.Errorf("applyGradient: could not set returns: %v",
			err)
	}

	defer rig.vm.Reset()
	if err := rig.vm.RunAll(); err != nil {
		return 0, fmt.Errorf("applyGradient: could not run training "+
			"pass: %v", err)
	}

	lossData, err := rawFloats(rig.lossVal)
	if err != nil {
		return 0, fmt.Errorf("applyGradient: loss: %v", err)
	}
	loss := lossData[0]
	if !floatutils.Finite(loss) {
		return loss, fmt.Errorf("applyGradient: non-finite loss %v, "+
			"refusing update", loss)
	}

	if err := a.rms.Step(rig.net.Model(), learningRate); err != nil {
		return loss, fmt.Errorf("applyGradient: %v", err)
	}

	// Publish the stepped weights as the new canonical parameters
	if err := a.master.Set(rig.net); err != nil {
		return loss, fmt.Errorf("applyGradient: could not publish "+
			"weights: %v", err)
	}
	a.version++
	rig.version = a.version

	return loss, nil
}

// predictRig returns the forward-only rig for a batch size, building
// it on first use and refreshing its weights from master if stale
func (a *ActorCritic) predictRig(batch int) (*predictRig, error) {
	rig, ok := a.predictRigs[batch]
	if !ok {
		net, err := newACNet(a.features, a.actions, batch, a.hiddenSizes,
			a.init)
		if err != nil {
			return nil, err
		}
		rig = &predictRig{net: net, vm: G.NewTapeMachine(net.g)}
		a.predictRigs[batch] = rig

		if err := net.Set(a.master); err != nil {
			return nil, err
		}
		rig.version = a.version
		return rig, nil
	}

	if rig.version != a.version {
		if err := rig.net.Set(a.master); err != nil {
			return nil, err
		}
		rig.version = a.version
	}
	return rig, nil
}

// trainRig returns the training rig for a batch size, building it on
// first use and refreshing its weights from master if stale
func (a *ActorCritic) trainRig(batch int) (*trainRig, error) {
	rig, ok := a.trainRigs[batch]
	if !ok {
		var err error
		rig, err = a.newTrainRig(batch)
		if err != nil {
			return nil, err
		}
		a.trainRigs[batch] = rig

		if err := rig.net.Set(a.master); err != nil {
			return nil, err
		}
		rig.version = a.version
		return rig, nil
	}

	if rig.version != a.version {
		if err := rig.net.Set(a.master); err != nil {
			return nil, err
		}
		rig.version = a.version
	}
	return rig, nil
}

// newTrainRig builds a net for the batch size and adds the actor-
// critic loss to its graph:
//
//	advantage   = return - value
//	policy loss = -(log π(a|s)·advantage + β·entropy)
//	value loss  = advantage²
//	total       = mean(policy loss + 0.5·value loss)
func (a *ActorCritic) newTrainRig(batch int) (*trainRig, error) {
	net, err := newACNet(a.features, a.actions, batch, a.hiddenSizes,
		a.init)
	if err != nil {
		return nil, err
	}
	g := net.g

	actionsNode := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(batch, a.actions),
		G.WithName("actions"),
		G.WithInit(G.Zeroes()),
	)
	returnsNode := G.NewVector(
		g,
		tensor.Float64,
		G.WithShape(batch),
		G.WithName("returns"),
		G.WithInit(G.Zeroes()),
	)

	// Log-probability of the taken action
	taken := G.Must(G.Sum(G.Must(G.HadamardProd(net.probs, actionsNode)),
		1))
	logProb := G.Must(G.Log(G.Must(G.Add(taken,
		G.NewConstant(logStabilizer)))))

	// Entropy of the action distribution
	logProbs := G.Must(G.Log(G.Must(G.Add(net.probs,
		G.NewConstant(logStabilizer)))))
	entropy := G.Must(G.Neg(G.Must(G.Sum(G.Must(G.HadamardProd(net.probs,
		logProbs)), 1))))

	advantage := G.Must(G.Sub(returnsNode, net.value))

	policyLoss := G.Must(G.Neg(G.Must(G.Add(
		G.Must(G.HadamardProd(logProb, advantage)),
		G.Must(G.Mul(G.NewConstant(a.entropyWeight), entropy)),
	))))
	valueLoss := G.Must(G.Square(advantage))

	total := G.Must(G.Mean(G.Must(G.Add(policyLoss,
		G.Must(G.Mul(G.NewConstant(0.5), valueLoss))))))

	rig := &trainRig{net: net, actions: actionsNode, returns: returnsNode}
	G.Read(total, &rig.lossVal)

	if _, err := G.Grad(total, net.Learnables()...); err != nil {
		return nil, fmt.Errorf("could not compute gradient: %v", err)
	}
	rig.vm = G.NewTapeMachine(g, G.BindDualValues(net.Learnables()...))

	return rig, nil
}

// flatten concatenates a batch of state vectors after validating their
// lengths
func (a *ActorCritic) flatten(states [][]float64) ([]float64, error) {
	if len(states) == 0 {
		return nil, fmt.Errorf("flatten: empty state batch")
	}

	flat := make([]float64, 0, len(states)*a.features)
	for i, state := range states {
		if len(state) != a.features {
			return nil, fmt.Errorf("flatten: state %v has length %v, "+
				"expected %v", i, len(state), a.features)
		}
		flat = append(flat, state...)
	}
	return flat, nil
}

// Save persists the canonical weights, returning the path written
func (a *ActorCritic) Save(dir string, step int64) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("save: could not create checkpoint "+
			"directory: %v", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%v%v.bin", checkpointPrefix,
		step))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("save: could not create checkpoint: %v", err)
	}
	defer file.Close()

	enc := gob.NewEncoder(file)
	if err := enc.Encode(a.features); err != nil {
		return "", fmt.Errorf("save: could not encode features: %v", err)
	}
	if err := enc.Encode(a.actions); err != nil {
		return "", fmt.Errorf("save: could not encode actions: %v", err)
	}
	if err := enc.Encode(a.hiddenSizes); err != nil {
		return "", fmt.Errorf("save: could not encode hidden sizes: %v",
			err)
	}

	for i, learnable := range a.master.Learnables() {
		value := learnable.Value().(*tensor.Dense)
		if err := enc.Encode(value); err != nil {
			return "", fmt.Errorf("save: could not encode learnable "+
				"%v: %v", i, err)
		}
	}

	return path, nil
}

// Load restores the canonical weights from a checkpoint file. When
// given a directory, the checkpoint with the highest step number is
// used. Returns ErrNoCheckpoint if no checkpoint exists.
func (a *ActorCritic) Load(path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrNoCheckpoint
	} else if err != nil {
		return fmt.Errorf("load: %v", err)
	}

	if info.IsDir() {
		path, err = latestCheckpoint(path)
		if err != nil {
			return err
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("load: could not open checkpoint: %v", err)
	}
	defer file.Close()

	dec := gob.NewDecoder(file)
	var features, actions int
	var hiddenSizes []int
	if err := dec.Decode(&features); err != nil {
		return fmt.Errorf("load: could not decode features: %v", err)
	}
	if err := dec.Decode(&actions); err != nil {
		return fmt.Errorf("load: could not decode actions: %v", err)
	}
	if err := dec.Decode(&hiddenSizes); err != nil {
		return fmt.Errorf("load: could not decode hidden sizes: %v", err)
	}

	if features != a.features || actions != a.actions ||
		len(hiddenSizes) != len(a.hiddenSizes) {
		return fmt.Errorf("load: checkpoint architecture "+
			"(%v features, %v actions) does not match network "+
			"(%v features, %v actions)", features, actions, a.features,
			a.actions)
	}

	for i, learnable := range a.master.Learnables() {
		value := new(tensor.Dense)
		if err := dec.Decode(value); err != nil {
			return fmt.Errorf("load: could not decode learnable %v: %v",
				i, err)
		}
		if err := G.Let(learnable, value); err != nil {
			return fmt.Errorf("load: could not set learnable %v: %v", i,
				err)
		}
	}

	// Invalidate every rig's weight copy
	a.version++

	return nil
}

// latestCheckpoint returns the checkpoint file with the highest step
// number in a directory
func latestCheckpoint(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("load: could not read checkpoint "+
			"directory: %v", err)
	}

	type checkpoint struct {
		step int64
		name string
	}
	var checkpoints []checkpoint
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, checkpointPrefix) ||
			!strings.HasSuffix(name, ".bin") {
			continue
		}
		stepStr := strings.TrimSuffix(strings.TrimPrefix(name,
			checkpointPrefix), ".bin")
		step, err := strconv.ParseInt(stepStr, 10, 64)
		if err != nil {
			continue
		}
		checkpoints = append(checkpoints, checkpoint{step, name})
	}

	if len(checkpoints) == 0 {
		return "", ErrNoCheckpoint
	}

	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].step < checkpoints[j].step
	})
	return filepath.Join(dir, checkpoints[len(checkpoints)-1].name), nil
}

// rawFloats extracts the float64 data of a gorgonia Value
func rawFloats(value G.Value) ([]float64, error) {
	if value == nil {
		return nil, fmt.Errorf("rawFloats: nil value")
	}

	switch data := value.Data().(type) {
	case []float64:
		return data, nil
	case float64:
		return []float64{data}, nil
	}
	return nil, fmt.Errorf("rawFloats: value is not float64-backed")
}
