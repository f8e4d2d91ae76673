package layers

import (
	"github.com/chewxy/math32"
	"github.com/gorgonia/convnet/nd"
	"github.com/pkg/errors"
)

// Activation applies the logistic sigmoid element-wise.
type Activation struct {
	shape     nd.Shape
	output    *nd.Tensor
	gradInput *nd.Tensor
}

// NewActivation creates a sigmoid activation layer.
func NewActivation(in nd.Shape) (*Activation, error) {
	if !in.IsValid() {
		return nil, errors.Wrapf(nd.ErrShapeMismatch, "activation over %v", in)
	}
	return &Activation{
		shape:     in,
		output:    nd.New(in),
		gradInput: nd.New(in),
	}, nil
}

func (l *Activation) InputShape() nd.Shape  { return l.shape }
func (l *Activation) OutputShape() nd.Shape { return l.shape }
func (l *Activation) String() string        { return "Sigmoid" }

func sigmoid(x float32) float32 { return 1 / (1 + math32.Exp(-x)) }

func (l *Activation) FeedForward(input *nd.Tensor) (*nd.Tensor, error) {
	if err := checkInput(l, input); err != nil {
		return nil, err
	}
	out := l.output.Data()
	for i, v := range input.Data() {
		out[i] = sigmoid(v)
	}
	return l.output, nil
}

// BackPropagate uses σ'(x) = σ(x)·(1−σ(x)) with the output of the last forward pass.
func (l *Activation) BackPropagate(grad *nd.Tensor, _ float32) (*nd.Tensor, error) {
	if err := checkGrad(l, grad); err != nil {
		return nil, err
	}
	out := l.output.Data()
	gi := l.gradInput.Data()
	for i, g := range grad.Data() {
		gi[i] = g * out[i] * (1 - out[i])
	}
	return l.gradInput, nil
}

func (l *Activation) UpdateParameters() {}
