package layers

import (
	"fmt"

	"github.com/gorgonia/convnet/nd"
	"github.com/pkg/errors"
)

// switchIndex is the offset of the winning input inside its pooling window.
type switchIndex struct {
	dy, dx int
}

// Pooling is a non-overlapping max-pooling layer. The input height and width must be multiples of the
// kernel, so every window lies inside the input.
type Pooling struct {
	in, out          nd.Shape
	kernelH, kernelW int

	switches  []switchIndex
	output    *nd.Tensor
	gradInput *nd.Tensor
}

// NewPooling creates a max-pooling layer with kernelH×kernelW windows.
func NewPooling(in nd.Shape, kernelH, kernelW int) (*Pooling, error) {
	if !in.IsValid() || kernelH <= 0 || kernelW <= 0 {
		return nil, errors.Wrapf(nd.ErrShapeMismatch, "pooling %v with %d×%d", in, kernelH, kernelW)
	}
	if kernelH > in.Height || kernelW > in.Width {
		return nil, errors.Wrapf(nd.ErrKernelTooLarge, "pooling %v with %d×%d", in, kernelH, kernelW)
	}
	if in.Height%kernelH != 0 || in.Width%kernelW != 0 {
		return nil, errors.Wrapf(nd.ErrShapeMismatch, "pooling %v with %d×%d: input is not a multiple of the kernel", in, kernelH, kernelW)
	}
	out := nd.Shape{Depth: in.Depth, Height: in.Height / kernelH, Width: in.Width / kernelW}
	return &Pooling{
		in:        in,
		out:       out,
		kernelH:   kernelH,
		kernelW:   kernelW,
		switches:  make([]switchIndex, out.Size()),
		output:    nd.New(out),
		gradInput: nd.New(in),
	}, nil
}

func (l *Pooling) InputShape() nd.Shape  { return l.in }
func (l *Pooling) OutputShape() nd.Shape { return l.out }
func (l *Pooling) String() string        { return fmt.Sprintf("MaxPool %d×%d", l.kernelH, l.kernelW) }

// Switch returns the offset inside its window of the input that won output (c, y, x) in the last
// forward pass.
func (l *Pooling) Switch(c, y, x int) (dy, dx int) {
	s := l.switches[l.output.Index(c, y, x)]
	return s.dy, s.dx
}

func (l *Pooling) FeedForward(input *nd.Tensor) (*nd.Tensor, error) {
	if err := checkInput(l, input); err != nil {
		return nil, err
	}
	for c := 0; c < l.out.Depth; c++ {
		for y := 0; y < l.out.Height; y++ {
			for x := 0; x < l.out.Width; x++ {
				y0, x0 := y*l.kernelH, x*l.kernelW
				best := input.At(c, y0, x0)
				var sw switchIndex
				for dy := 0; dy < l.kernelH; dy++ {
					for dx := 0; dx < l.kernelW; dx++ {
						// strictly greater keeps the first maximum in row-major order
						if v := input.At(c, y0+dy, x0+dx); v > best {
							best = v
							sw = switchIndex{dy, dx}
						}
					}
				}
				i := l.output.Index(c, y, x)
				l.output.Data()[i] = best
				l.switches[i] = sw
			}
		}
	}
	return l.output, nil
}

func (l *Pooling) BackPropagate(grad *nd.Tensor, _ float32) (*nd.Tensor, error) {
	if err := checkGrad(l, grad); err != nil {
		return nil, err
	}
	l.gradInput.Zero()
	for c := 0; c < l.out.Depth; c++ {
		for y := 0; y < l.out.Height; y++ {
			for x := 0; x < l.out.Width; x++ {
				i := grad.Index(c, y, x)
				sw := l.switches[i]
				l.gradInput.Set(c, y*l.kernelH+sw.dy, x*l.kernelW+sw.dx, grad.Data()[i])
			}
		}
	}
	return l.gradInput, nil
}

func (l *Pooling) UpdateParameters() {}

// Unpooling is the shape inverse of Pooling: every input value is written to the top-left corner of a
// kernelH×kernelW block of zeros.
type Unpooling struct {
	in, out          nd.Shape
	kernelH, kernelW int

	output    *nd.Tensor
	gradInput *nd.Tensor
}

// NewUnpooling creates an unpooling layer with kernelH×kernelW blocks.
func NewUnpooling(in nd.Shape, kernelH, kernelW int) (*Unpooling, error) {
	if !in.IsValid() || kernelH <= 0 || kernelW <= 0 {
		return nil, errors.Wrapf(nd.ErrShapeMismatch, "unpooling %v with %d×%d", in, kernelH, kernelW)
	}
	out := nd.Shape{Depth: in.Depth, Height: in.Height * kernelH, Width: in.Width * kernelW}
	return &Unpooling{
		in:        in,
		out:       out,
		kernelH:   kernelH,
		kernelW:   kernelW,
		output:    nd.New(out),
		gradInput: nd.New(in),
	}, nil
}

func (l *Unpooling) InputShape() nd.Shape  { return l.in }
func (l *Unpooling) OutputShape() nd.Shape { return l.out }
func (l *Unpooling) String() string        { return fmt.Sprintf("Unpool %d×%d", l.kernelH, l.kernelW) }

func (l *Unpooling) FeedForward(input *nd.Tensor) (*nd.Tensor, error) {
	if err := checkInput(l, input); err != nil {
		return nil, err
	}
	l.output.Zero()
	for c := 0; c < l.in.Depth; c++ {
		for y := 0; y < l.in.Height; y++ {
			for x := 0; x < l.in.Width; x++ {
				l.output.Set(c, y*l.kernelH, x*l.kernelW, input.At(c, y, x))
			}
		}
	}
	return l.output, nil
}

func (l *Unpooling) BackPropagate(grad *nd.Tensor, _ float32) (*nd.Tensor, error) {
	if err := checkGrad(l, grad); err != nil {
		return nil, err
	}
	for c := 0; c < l.in.Depth; c++ {
		for y := 0; y < l.in.Height; y++ {
			for x := 0; x < l.in.Width; x++ {
				l.gradInput.Set(c, y, x, grad.At(c, y*l.kernelH, x*l.kernelW))
			}
		}
	}
	return l.gradInput, nil
}

func (l *Unpooling) UpdateParameters() {}
