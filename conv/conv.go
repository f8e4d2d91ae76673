// Package conv implements 2D convolution (cross-correlation) as an im2col unfold followed by a single
// matrix multiplication.
package conv

import (
	"github.com/gorgonia/convnet/nd"
	"github.com/pkg/errors"
)

// OutputShape is the shape produced by convolving an input of shape in with filters kernels of
// kernelH×kernelW after padding every side by padding.
func OutputShape(in nd.Shape, filters, kernelH, kernelW, padding int) nd.Shape {
	return nd.Shape{
		Depth:  filters,
		Height: in.Height - kernelH + 1 + 2*padding,
		Width:  in.Width - kernelW + 1 + 2*padding,
	}
}

// Convolution convolves a fixed-shape input with a fixed-shape filter bank. The unfolded buffers are
// allocated once and reused by every call, so a Convolution must not be shared between goroutines.
type Convolution struct {
	depth, height, width      int
	filters, kernelH, kernelW int
	outH, outW                int

	input  *nd.Matrix // (outH·outW) × (depth·kh·kw)
	filter *nd.Matrix // (depth·kh·kw) × filters
	output *nd.Matrix // (outH·outW) × filters
}

// New creates a convolution of a depth×height×width input with filters kernels of depth×kernelH×kernelW.
// Any padding has to be applied to the input beforehand.
func New(depth, height, width, filters, kernelH, kernelW int) (*Convolution, error) {
	if depth <= 0 || height <= 0 || width <= 0 || filters <= 0 || kernelH <= 0 || kernelW <= 0 {
		return nil, errors.Wrapf(nd.ErrShapeMismatch, "convolution of (%d×%d×%d) with %d %d×%d kernels", depth, height, width, filters, kernelH, kernelW)
	}
	if kernelH > height || kernelW > width {
		return nil, errors.Wrapf(nd.ErrKernelTooLarge, "kernel %d×%d, input %d×%d", kernelH, kernelW, height, width)
	}
	outH := height - kernelH + 1
	outW := width - kernelW + 1
	patch := depth * kernelH * kernelW
	return &Convolution{
		depth:   depth,
		height:  height,
		width:   width,
		filters: filters,
		kernelH: kernelH,
		kernelW: kernelW,
		outH:    outH,
		outW:    outW,
		input:   nd.NewMatrix(outH*outW, patch),
		filter:  nd.NewMatrix(patch, filters),
		output:  nd.NewMatrix(outH*outW, filters),
	}, nil
}

// InputShape is the shape Convolve expects its input to have.
func (c *Convolution) InputShape() nd.Shape { return nd.Shape{Depth: c.depth, Height: c.height, Width: c.width} }

// OutputShape is the shape Convolve writes.
func (c *Convolution) OutputShape() nd.Shape { return nd.Shape{Depth: c.filters, Height: c.outH, Width: c.outW} }

// Convolve computes output[f, oy, ox] = Σ input[c, oy+ky, ox+kx] · bank[f, c, ky, kx].
func (c *Convolution) Convolve(input *nd.Tensor, bank *nd.Bank, output *nd.Tensor) error {
	if bank == nil {
		return errors.Wrap(nd.ErrNilBuffer, "filter bank")
	}
	if bank.Count != c.filters || bank.Depth != c.depth || bank.Height != c.kernelH || bank.Width != c.kernelW || len(bank.Data) != c.filters*c.depth*c.kernelH*c.kernelW {
		return errors.Wrapf(nd.ErrShapeMismatch, "expected bank of %d (%d×%d×%d) filters, got %v", c.filters, c.depth, c.kernelH, c.kernelW, bank)
	}
	c.unfoldFilter(bank)
	return c.apply(input, output)
}

// apply convolves input with the filter bank last unfolded by unfoldFilter.
func (c *Convolution) apply(input, output *nd.Tensor) error {
	if err := nd.Check(input, c.InputShape()); err != nil {
		return errors.WithMessage(err, "convolution input")
	}
	if err := nd.Check(output, c.OutputShape()); err != nil {
		return errors.WithMessage(err, "convolution output")
	}
	c.unfoldInput(input)
	if err := nd.Multiply(c.input, c.filter, c.output, nil); err != nil {
		return err
	}
	c.foldOutput(output)
	return nil
}

// unfoldInput writes every kernel-sized patch of the input as one row: row oy·outW+ox,
// column ch·kh·kw + ky·kw + kx.
func (c *Convolution) unfoldInput(input *nd.Tensor) {
	data := input.Data()
	kk := c.kernelH * c.kernelW
	for oy := 0; oy < c.outH; oy++ {
		for ox := 0; ox < c.outW; ox++ {
			row := c.input.Row(oy*c.outW + ox)
			for ch := 0; ch < c.depth; ch++ {
				for ky := 0; ky < c.kernelH; ky++ {
					src := (ch*c.height+oy+ky)*c.width + ox
					dst := ch*kk + ky*c.kernelW
					copy(row[dst:dst+c.kernelW], data[src:src+c.kernelW])
				}
			}
		}
	}
}

// unfoldFilter writes every filter as one column.
func (c *Convolution) unfoldFilter(bank *nd.Bank) {
	patch := c.depth * c.kernelH * c.kernelW
	for f := 0; f < c.filters; f++ {
		src := bank.Data[f*patch : (f+1)*patch]
		for i, v := range src {
			c.filter.Data[i*c.filters+f] = v
		}
	}
}

// foldOutput transposes the (position × filter) product back into (filter, oy, ox).
func (c *Convolution) foldOutput(output *nd.Tensor) {
	data := output.Data()
	positions := c.outH * c.outW
	for p := 0; p < positions; p++ {
		row := c.output.Row(p)
		for f, v := range row {
			data[f*positions+p] = v
		}
	}
}
