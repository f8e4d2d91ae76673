// Package network chains layers into a trainable feed-forward network.
package network

import (
	"math/rand"
	"time"

	"github.com/gorgonia/convnet/cost"
	"github.com/gorgonia/convnet/layers"
	"github.com/gorgonia/convnet/nd"
	"github.com/pkg/errors"
)

// Network is a chain of layers where the output shape of each layer is the input shape of the next.
// A Network is not safe for concurrent use.
type Network struct {
	builders []layers.Builder
	layers   []layers.Layer
	in       nd.Shape

	seed     int64
	gradient *nd.Tensor // error gradient of the last output
}

// New returns a new, unbuilt *Network.
func New(builders ...layers.Builder) *Network {
	return &Network{
		builders: builders,
		seed:     time.Now().UnixNano(),
	}
}

// Add appends a layer builder. It has no effect on an already built network until Build is called again.
func (n *Network) Add(b layers.Builder) *Network {
	n.builders = append(n.builders, b)
	return n
}

// SetSeed sets the seed of the parameter initialization used by Build.
func (n *Network) SetSeed(seed int64) { n.seed = seed }

// Build instantiates every layer for an input of shape in, with randomly initialized parameters.
func (n *Network) Build(in nd.Shape) error {
	if len(n.builders) == 0 {
		return errors.New("network has no layers")
	}
	if !in.IsValid() {
		return errors.Wrapf(nd.ErrShapeMismatch, "network input %v", in)
	}
	init := layers.NewUniform(rand.New(rand.NewSource(n.seed)))
	built := make([]layers.Layer, 0, len(n.builders))
	s := in
	for i, b := range n.builders {
		l, err := b.Build(s, init)
		if err != nil {
			return errors.WithMessagef(err, "layer %d (input %v)", i, s)
		}
		if l == nil {
			return errors.Wrapf(nd.ErrNilBuffer, "layer %d (input %v): builder returned no layer", i, s)
		}
		if l.InputShape() != s {
			return errors.Wrapf(nd.ErrShapeMismatch, "layer %d (%v) expects %v, previous layer produces %v", i, l, l.InputShape(), s)
		}
		built = append(built, l)
		s = l.OutputShape()
	}
	n.layers = built
	n.in = in
	n.gradient = nd.New(s)
	return nil
}

// Layers returns the built layers.
func (n *Network) Layers() []layers.Layer { return n.layers }

// InputShape is the shape the network was built for.
func (n *Network) InputShape() nd.Shape { return n.in }

// OutputShape is the shape of the last layer's output.
func (n *Network) OutputShape() nd.Shape {
	if len(n.layers) == 0 {
		return nd.Shape{}
	}
	return n.layers[len(n.layers)-1].OutputShape()
}

func (n *Network) built() error {
	if len(n.layers) == 0 {
		return errors.New("network is not built")
	}
	return nil
}

// FeedForward runs input through every layer. The returned tensor belongs to the last layer.
func (n *Network) FeedForward(input *nd.Tensor) (*nd.Tensor, error) {
	if err := n.built(); err != nil {
		return nil, err
	}
	out := input
	var err error
	for i, l := range n.layers {
		if out, err = l.FeedForward(out); err != nil {
			return nil, errors.WithMessagef(err, "forward layer %d", i)
		}
	}
	return out, nil
}

// BackPropagate runs grad, the error gradient of the last output, backwards through every layer,
// accumulating learningFactor-scaled parameter gradients. It returns the gradient with respect to the input.
func (n *Network) BackPropagate(grad *nd.Tensor, learningFactor float32) (*nd.Tensor, error) {
	if err := n.built(); err != nil {
		return nil, err
	}
	var err error
	for i := len(n.layers) - 1; i >= 0; i-- {
		if grad, err = n.layers[i].BackPropagate(grad, learningFactor); err != nil {
			return nil, errors.WithMessagef(err, "backward layer %d", i)
		}
	}
	return grad, nil
}

// UpdateParameters applies and clears the accumulated gradients of every layer.
func (n *Network) UpdateParameters() {
	for _, l := range n.layers {
		l.UpdateParameters()
	}
}

// Learn runs one sample forward, computes its mean squared error against target and backpropagates
// the error gradient. The gradients are accumulated; call UpdateParameters to apply them.
func (n *Network) Learn(input, target *nd.Tensor, learningFactor float32) (float32, error) {
	out, err := n.FeedForward(input)
	if err != nil {
		return 0, err
	}
	e, err := cost.MeanSquared(target, out)
	if err != nil {
		return 0, errors.WithMessage(err, "target")
	}
	if err = cost.MeanSquaredGradient(target, out, n.gradient); err != nil {
		return 0, err
	}
	if _, err = n.BackPropagate(n.gradient, learningFactor); err != nil {
		return 0, err
	}
	return e, nil
}
