// Package layers provides the layer types a network is composed of.
//
// Every layer owns its output and input-gradient buffers. The tensor returned by FeedForward or
// BackPropagate stays valid until the next call of the same method on the same layer, so a layer
// serves one sample at a time.
package layers

import (
	"fmt"

	"github.com/gorgonia/convnet/nd"
	"github.com/pkg/errors"
)

// Layer is a single stage of a network.
type Layer interface {
	InputShape() nd.Shape
	OutputShape() nd.Shape

	// FeedForward computes the output of the layer for input and retains whatever BackPropagate needs.
	FeedForward(input *nd.Tensor) (*nd.Tensor, error)

	// BackPropagate takes the gradient of the error with respect to the last output, adds
	// learningFactor times the parameter gradients to the layer's accumulators and returns the
	// gradient with respect to the last input.
	BackPropagate(grad *nd.Tensor, learningFactor float32) (*nd.Tensor, error)

	// UpdateParameters subtracts the accumulated gradients from the parameters and clears them.
	UpdateParameters()

	fmt.Stringer
}

// Builder creates a layer for a given input shape.
type Builder interface {
	Build(in nd.Shape, init Initializer) (Layer, error)
}

// BuilderFunc is a function that implements Builder.
type BuilderFunc func(in nd.Shape, init Initializer) (Layer, error)

func (f BuilderFunc) Build(in nd.Shape, init Initializer) (Layer, error) { return f(in, init) }

// Conv returns a builder for a convolution layer with filters kernels of kernelH×kernelW.
func Conv(filters, kernelH, kernelW, padding int) Builder {
	return BuilderFunc(func(in nd.Shape, init Initializer) (Layer, error) {
		return NewConvolution(in, filters, kernelH, kernelW, padding, init)
	})
}

// Pool returns a builder for a max-pooling layer.
func Pool(kernelH, kernelW int) Builder {
	return BuilderFunc(func(in nd.Shape, _ Initializer) (Layer, error) {
		return NewPooling(in, kernelH, kernelW)
	})
}

// Unpool returns a builder for an unpooling layer.
func Unpool(kernelH, kernelW int) Builder {
	return BuilderFunc(func(in nd.Shape, _ Initializer) (Layer, error) {
		return NewUnpooling(in, kernelH, kernelW)
	})
}

// FullyConnected returns a builder for a dense layer producing out.
func FullyConnected(out nd.Shape) Builder {
	return BuilderFunc(func(in nd.Shape, init Initializer) (Layer, error) {
		return NewDense(in, out, init)
	})
}

// Sigmoid returns a builder for a logistic activation layer.
func Sigmoid() Builder {
	return BuilderFunc(func(in nd.Shape, _ Initializer) (Layer, error) {
		return NewActivation(in)
	})
}

func checkInput(l Layer, input *nd.Tensor) error {
	if err := nd.Check(input, l.InputShape()); err != nil {
		return errors.WithMessagef(err, "%v input", l)
	}
	return nil
}

func checkGrad(l Layer, grad *nd.Tensor) error {
	if err := nd.Check(grad, l.OutputShape()); err != nil {
		return errors.WithMessagef(err, "%v gradient", l)
	}
	return nil
}
