// Package cost provides the mean squared error the network is trained against.
package cost

import (
	"github.com/gorgonia/convnet/nd"
	"github.com/pkg/errors"
)

func check(target, output *nd.Tensor) error {
	if target == nil || output == nil {
		return errors.Wrap(nd.ErrNilBuffer, "mse")
	}
	if target.Shape() != output.Shape() {
		return errors.Wrapf(nd.ErrShapeMismatch, "mse: target %v, output %v", target.Shape(), output.Shape())
	}
	return nil
}

// MeanSquared returns Σ(target−output)²/n.
func MeanSquared(target, output *nd.Tensor) (float32, error) {
	if err := check(target, output); err != nil {
		return 0, err
	}
	o := output.Data()
	var sum float32
	for i, t := range target.Data() {
		d := t - o[i]
		sum += d * d
	}
	return sum / float32(len(o)), nil
}

// MeanSquaredGradient writes the derivative of MeanSquared with respect to output, 2·(output−target)/n,
// into grad.
func MeanSquaredGradient(target, output, grad *nd.Tensor) error {
	if err := check(target, output); err != nil {
		return err
	}
	if err := nd.Check(grad, output.Shape()); err != nil {
		return errors.WithMessage(err, "mse gradient")
	}
	o, g := output.Data(), grad.Data()
	k := 2 / float32(len(o))
	for i, t := range target.Data() {
		g[i] = k * (o[i] - t)
	}
	return nil
}
