package conv

import (
	"github.com/gorgonia/convnet/nd"
	"github.com/pkg/errors"
)

// MonoConvolution convolves every channel of an input separately against the same set of
// single-channel kernels. Convolving a layer's padded input with the gradient of its output this way
// yields the gradient of the layer's filter bank:
//
//	out[f, c, ky, kx] = Σ input[c, ky+oy, kx+ox] · kernels[f, oy, ox]
type MonoConvolution struct {
	depth int
	plan  *Convolution
	plane *nd.Tensor // one input channel
	bank  *nd.Bank   // kernels as a (count, 1, kh, kw) bank
	out   *nd.Tensor // (count, rh, rw) result for one channel
}

// NewMono creates a per-channel convolution of a depth×height×width input with count kernels of
// kernelH×kernelW. The result is a (count, depth, height−kernelH+1, width−kernelW+1) bank.
func NewMono(depth, height, width, count, kernelH, kernelW int) (*MonoConvolution, error) {
	plan, err := New(1, height, width, count, kernelH, kernelW)
	if err != nil {
		return nil, err
	}
	if depth <= 0 {
		return nil, errors.Wrapf(nd.ErrShapeMismatch, "mono convolution of depth %d", depth)
	}
	return &MonoConvolution{
		depth: depth,
		plan:  plan,
		plane: nd.NewTensor(1, height, width),
		bank:  nd.NewBank(count, 1, kernelH, kernelW),
		out:   nd.New(plan.OutputShape()),
	}, nil
}

// InputShape is the shape Convolve expects its input to have.
func (m *MonoConvolution) InputShape() nd.Shape {
	s := m.plan.InputShape()
	s.Depth = m.depth
	return s
}

// KernelShape is the shape Convolve expects its kernels to have: one channel per kernel.
func (m *MonoConvolution) KernelShape() nd.Shape {
	return nd.Shape{Depth: m.plan.filters, Height: m.plan.kernelH, Width: m.plan.kernelW}
}

// ResultBank allocates a bank of the shape Convolve writes.
func (m *MonoConvolution) ResultBank() *nd.Bank {
	return nd.NewBank(m.plan.filters, m.depth, m.plan.outH, m.plan.outW)
}

// Convolve writes the per-channel convolution of input with kernels into out.
func (m *MonoConvolution) Convolve(input, kernels *nd.Tensor, out *nd.Bank) error {
	if err := nd.Check(input, m.InputShape()); err != nil {
		return errors.WithMessage(err, "mono convolution input")
	}
	if err := nd.Check(kernels, m.KernelShape()); err != nil {
		return errors.WithMessage(err, "mono convolution kernels")
	}
	if out == nil {
		return errors.Wrap(nd.ErrNilBuffer, "mono convolution result")
	}
	if out.Count != m.plan.filters || out.Depth != m.depth || out.Height != m.plan.outH || out.Width != m.plan.outW {
		return errors.Wrapf(nd.ErrShapeMismatch, "mono convolution result: got %v", out)
	}

	// a (count, kh, kw) tensor and a (count, 1, kh, kw) bank share a layout
	copy(m.bank.Data, kernels.Data())
	m.plan.unfoldFilter(m.bank)

	area := m.plan.outH * m.plan.outW
	for c := 0; c < m.depth; c++ {
		copy(m.plane.Data(), input.Plane(c))
		if err := m.plan.apply(m.plane, m.out); err != nil {
			return err
		}
		for f := 0; f < m.plan.filters; f++ {
			dst := out.Index(f, c, 0, 0)
			copy(out.Data[dst:dst+area], m.out.Plane(f))
		}
	}
	return nil
}
