package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// acNet populates a computational graph with a two-headed network: a
// shared fully connected trunk feeding a softmax policy head over the
// discrete actions, and a scalar state-value head. This is the graph-
// level building block behind the ActorCritic approximator; one acNet
// exists per required batch size.
type acNet struct {
	g         *G.ExprGraph
	input     *G.Node
	batchSize int
	features  int
	actions   int

	trunk       []Layer
	policyLayer Layer
	valueLayer  Layer

	// probs is the softmax policy output, shape (batch, actions).
	// value is the state-value output reshaped to (batch).
	probs *G.Node
	value *G.Node

	probsVal G.Value
	valueVal G.Value

	learnables G.Nodes
	model      []G.ValueGrad
}

// newACNet returns a new acNet on a fresh graph. The trunk has one
// ReLU layer per entry of hiddenSizes; the two heads are linear.
func newACNet(features, actions, batchSize int, hiddenSizes []int,
	init G.InitWFn) (*acNet, error) {
	if features <= 0 {
		return nil, fmt.Errorf("newACNet: features must be positive, "+
			"got %v", features)
	}
	if actions < 2 {
		return nil, fmt.Errorf("newACNet: need at least 2 actions, "+
			"got %v", actions)
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("newACNet: batch size must be positive, "+
			"got %v", batchSize)
	}
	if len(hiddenSizes) == 0 {
		return nil, fmt.Errorf("newACNet: need at least one hidden layer")
	}

	g := G.NewGraph()
	input := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(batchSize, features),
		G.WithName("input"),
		G.WithInit(G.Zeroes()),
	)

	net := &acNet{
		g:         g,
		input:     input,
		batchSize: batchSize,
		features:  features,
		actions:   actions,
	}

	in := features
	for i, size := range hiddenSizes {
		name := fmt.Sprintf("trunk%v", i)
		net.trunk = append(net.trunk, newFCLayer(g, in, size, ReLU(), init,
			name))
		in = size
	}
	net.policyLayer = newFCLayer(g, in, actions, Identity(), init, "policy")
	net.valueLayer = newFCLayer(g, in, 1, Identity(), init, "value")

	if err := net.fwd(); err != nil {
		return nil, fmt.Errorf("newACNet: could not compute forward "+
			"pass: %v", err)
	}

	return net, nil
}

// fwd adds the forward pass through the trunk and both heads to the
// graph
func (n *acNet) fwd() error {
	pred := n.input
	var err error
	for i, l := range n.trunk {
		if pred, err = l.fwd(pred); err != nil {
			return fmt.Errorf("fwd: trunk layer %v: %v", i, err)
		}
	}

	logits, err := n.policyLayer.fwd(pred)
	if err != nil {
		return fmt.Errorf("fwd: policy head: %v", err)
	}
	n.probs, err = G.SoftMax(logits, 1)
	if err != nil {
		return fmt.Errorf("fwd: policy softmax: %v", err)
	}

	value, err := n.valueLayer.fwd(pred)
	if err != nil {
		return fmt.Errorf("fwd: value head: %v", err)
	}
	n.value, err = G.Reshape(value, tensor.Shape{n.batchSize})
	if err != nil {
		return fmt.Errorf("fwd: value reshape: %v", err)
	}

	G.Read(n.probs, &n.probsVal)
	G.Read(n.value, &n.valueVal)

	return nil
}

// SetInput sets the value of the input node before running the forward
// pass. The input must hold batchSize concatenated feature vectors.
func (n *acNet) SetInput(input []float64) error {
	if len(input) != n.features*n.batchSize {
		return fmt.Errorf("setInput: invalid number of inputs "+
			"\n\twant(%v)\n\thave(%v)", n.features*n.batchSize, len(input))
	}

	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(n.batchSize, n.features),
	)
	return G.Let(n.input, inputTensor)
}

// Layers returns all layers of the network, trunk first, then the
// policy and value heads
func (n *acNet) Layers() []Layer {
	layers := make([]Layer, 0, len(n.trunk)+2)
	layers = append(layers, n.trunk...)
	layers = append(layers, n.policyLayer, n.valueLayer)
	return layers
}

// Learnables returns the learnable nodes of the network in a fixed
// order shared by every acNet of the same architecture
func (n *acNet) Learnables() G.Nodes {
	// Lazy instantiation
	if n.learnables == nil {
		for _, l := range n.Layers() {
			n.learnables = append(n.learnables, l.Weights())
			if bias := l.Bias(); bias != nil {
				n.learnables = append(n.learnables, bias)
			}
		}
	}
	return n.learnables
}

// Model returns the learnable nodes with their gradients
func (n *acNet) Model() []G.ValueGrad {
	// Lazy instantiation
	if n.model == nil {
		for _, node := range n.Learnables() {
			n.model = append(n.model, node)
		}
	}
	return n.model
}

// Set sets the weights of the network to be equal to the weights of
// another acNet of the same architecture
func (n *acNet) Set(source *acNet) error {
	sourceNodes := source.Learnables()
	nodes := n.Learnables()
	if len(sourceNodes) != len(nodes) {
		return fmt.Errorf("set: architectures differ \n\twant(%v "+
			"learnables)\n\thave(%v)", len(nodes), len(sourceNodes))
	}

	for i, destLearnable := range nodes {
		sourceValue := sourceNodes[i].Value().(*tensor.Dense)
		err := G.Let(destLearnable, sourceValue.Clone().(*tensor.Dense))
		if err != nil {
			return fmt.Errorf("set: could not set learnable %v: %v", i, err)
		}
	}
	return nil
}
