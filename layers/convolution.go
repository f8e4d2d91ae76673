package layers

import (
	"fmt"

	"github.com/gorgonia/convnet/conv"
	"github.com/gorgonia/convnet/nd"
	"github.com/pkg/errors"
	"gorgonia.org/vecf32"
)

// Convolution is a 2D convolution layer with one bias per filter. The input is zero padded by
// padding on every side before it is convolved.
type Convolution struct {
	in, out          nd.Shape
	kernelH, kernelW int
	padding          int

	filter *nd.Bank
	bias   []float32

	accFilter *nd.Bank
	accBias   []float32

	forward    *conv.Convolution
	filterGrad *conv.MonoConvolution
	inputGrad  *conv.Convolution

	padded     *nd.Tensor // padded copy of the last input
	output     *nd.Tensor
	flipped    *nd.Bank
	filterTmp  *nd.Bank
	gradStage  *nd.Tensor // gradient padded on the axes that need padding, when another axis needs cropping
	gradFramed *nd.Tensor // gradient framed to (F, H+kh−1, W+kw−1)
	gradInput  *nd.Tensor
}

// NewConvolution creates a convolution layer over inputs of shape in.
func NewConvolution(in nd.Shape, filters, kernelH, kernelW, padding int, init Initializer) (*Convolution, error) {
	if !in.IsValid() || filters <= 0 || padding < 0 {
		return nil, errors.Wrapf(nd.ErrShapeMismatch, "convolution: input %v, %d filters, padding %d", in, filters, padding)
	}
	ph, pw := in.Height+2*padding, in.Width+2*padding
	forward, err := conv.New(in.Depth, ph, pw, filters, kernelH, kernelW)
	if err != nil {
		return nil, err
	}
	out := forward.OutputShape()

	// the filter gradient convolves each padded input channel with the output gradient planes
	filterGrad, err := conv.NewMono(in.Depth, ph, pw, filters, out.Height, out.Width)
	if err != nil {
		return nil, err
	}

	// the input gradient convolves the framed output gradient with the flipped bank
	fh, fw := in.Height+kernelH-1, in.Width+kernelW-1
	inputGrad, err := conv.New(filters, fh, fw, in.Depth, kernelH, kernelW)
	if err != nil {
		return nil, err
	}

	l := &Convolution{
		in:      in,
		out:     out,
		kernelH: kernelH,
		kernelW: kernelW,
		padding: padding,

		filter:    nd.NewBank(filters, in.Depth, kernelH, kernelW),
		bias:      make([]float32, filters),
		accFilter: nd.NewBank(filters, in.Depth, kernelH, kernelW),
		accBias:   make([]float32, filters),

		forward:    forward,
		filterGrad: filterGrad,
		inputGrad:  inputGrad,

		padded:     nd.NewTensor(in.Depth, ph, pw),
		output:     nd.New(out),
		flipped:    nd.NewBank(in.Depth, filters, kernelH, kernelW),
		filterTmp:  filterGrad.ResultBank(),
		gradFramed: nd.NewTensor(filters, fh, fw),
		gradInput:  nd.New(in),
	}
	if padH, padW := l.gradPadding(); padH < 0 || padW < 0 {
		l.gradStage = nd.NewTensor(filters, out.Height+2*max(padH, 0), out.Width+2*max(padW, 0))
	}
	fill(l.filter.Data, init)
	fill(l.bias, init)
	return l, nil
}

func (l *Convolution) InputShape() nd.Shape  { return l.in }
func (l *Convolution) OutputShape() nd.Shape { return l.out }

func (l *Convolution) String() string {
	return fmt.Sprintf("Conv %d×%d×%d pad %d", l.out.Depth, l.kernelH, l.kernelW, l.padding)
}

// Filters returns a copy of the filter bank.
func (l *Convolution) Filters() *nd.Bank { return l.filter.Clone() }

// Biases returns a copy of the biases.
func (l *Convolution) Biases() []float32 { return append([]float32(nil), l.bias...) }

// SetFilters replaces the filter bank with a copy of bank.
func (l *Convolution) SetFilters(bank *nd.Bank) error {
	if bank == nil {
		return nd.ErrNilBuffer
	}
	if !bank.SameShape(l.filter) || len(bank.Data) != len(l.filter.Data) {
		return errors.Wrapf(nd.ErrShapeMismatch, "expected %v, got %v", l.filter, bank)
	}
	copy(l.filter.Data, bank.Data)
	return nil
}

// SetBiases replaces the biases with a copy of bias.
func (l *Convolution) SetBiases(bias []float32) error {
	if len(bias) != len(l.bias) {
		return errors.Wrapf(nd.ErrShapeMismatch, "expected %d biases, got %d", len(l.bias), len(bias))
	}
	copy(l.bias, bias)
	return nil
}

func (l *Convolution) FeedForward(input *nd.Tensor) (*nd.Tensor, error) {
	if err := checkInput(l, input); err != nil {
		return nil, err
	}
	if err := nd.Pad(input, l.padded, l.padding, l.padding); err != nil {
		return nil, err
	}
	if err := l.forward.Convolve(l.padded, l.filter, l.output); err != nil {
		return nil, err
	}
	for f, b := range l.bias {
		plane := l.output.Plane(f)
		for i := range plane {
			plane[i] += b
		}
	}
	return l.output, nil
}

func (l *Convolution) BackPropagate(grad *nd.Tensor, learningFactor float32) (*nd.Tensor, error) {
	if err := checkGrad(l, grad); err != nil {
		return nil, err
	}

	for f := range l.accBias {
		l.accBias[f] += learningFactor * vecf32.Sum(grad.Plane(f))
	}

	if err := l.filterGrad.Convolve(l.padded, grad, l.filterTmp); err != nil {
		return nil, errors.WithMessage(err, "filter gradient")
	}
	vecf32.Scale(l.filterTmp.Data, learningFactor)
	vecf32.Add(l.accFilter.Data, l.filterTmp.Data)

	if err := l.frameGradient(grad); err != nil {
		return nil, errors.WithMessage(err, "input gradient")
	}
	if err := nd.Flip(l.filter, l.flipped); err != nil {
		return nil, err
	}
	if err := l.inputGrad.Convolve(l.gradFramed, l.flipped, l.gradInput); err != nil {
		return nil, errors.WithMessage(err, "input gradient")
	}
	return l.gradInput, nil
}

func (l *Convolution) UpdateParameters() {
	vecf32.Sub(l.filter.Data, l.accFilter.Data)
	vecf32.Sub(l.bias, l.accBias)
	l.accFilter.Zero()
	for i := range l.accBias {
		l.accBias[i] = 0
	}
}

// gradPadding is how much the output gradient is padded on each axis so that a full convolution with
// the flipped kernel yields the input gradient. A negative amount means cropping.
func (l *Convolution) gradPadding() (int, int) {
	return l.kernelH - 1 - l.padding, l.kernelW - 1 - l.padding
}

func (l *Convolution) frameGradient(grad *nd.Tensor) error {
	padH, padW := l.gradPadding()
	if l.gradStage == nil {
		return nd.Pad(grad, l.gradFramed, padH, padW)
	}
	if err := nd.Pad(grad, l.gradStage, max(padH, 0), max(padW, 0)); err != nil {
		return err
	}
	return nd.Crop(l.gradStage, l.gradFramed, max(-padH, 0), max(-padW, 0))
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
