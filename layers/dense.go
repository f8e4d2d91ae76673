package layers

import (
	"fmt"

	"github.com/gorgonia/convnet/nd"
	"github.com/pkg/errors"
	"gorgonia.org/vecf32"
)

// Dense is a fully connected layer. The input is flattened to a row of n values and multiplied by an
// n×m weight matrix, where m is the size of the output shape. All outputs share one bias.
type Dense struct {
	in, out nd.Shape

	weights *nd.Matrix // n×m
	bias    float32

	accWeights *nd.Matrix
	accBias    float32

	x         *nd.Matrix // 1×n, the last input
	y         *nd.Matrix // 1×m
	output    *nd.Tensor
	xCol      *nd.Matrix // n×1 view of the last input
	gRow      *nd.Matrix // 1×m copy of the output gradient
	gCol      *nd.Matrix // m×1 copy of the output gradient
	outer     *nd.Matrix // n×m
	gradCol   *nd.Matrix // n×1
	gradInput *nd.Tensor
}

// NewDense creates a fully connected layer mapping in to out.
func NewDense(in, out nd.Shape, init Initializer) (*Dense, error) {
	if !in.IsValid() || !out.IsValid() {
		return nil, errors.Wrapf(nd.ErrShapeMismatch, "dense %v to %v", in, out)
	}
	n, m := in.Size(), out.Size()
	x := nd.NewMatrix(1, n)
	gRow := nd.NewMatrix(1, m)
	l := &Dense{
		in:         in,
		out:        out,
		weights:    nd.NewMatrix(n, m),
		accWeights: nd.NewMatrix(n, m),
		x:          x,
		y:          nd.NewMatrix(1, m),
		output:     nd.New(out),
		xCol:       &nd.Matrix{Rows: n, Cols: 1, Data: x.Data},
		gRow:       gRow,
		gCol:       &nd.Matrix{Rows: m, Cols: 1, Data: gRow.Data},
		outer:      nd.NewMatrix(n, m),
		gradCol:    nd.NewMatrix(n, 1),
		gradInput:  nd.New(in),
	}
	fill(l.weights.Data, init)
	if init != nil {
		l.bias = init.Next()
	}
	return l, nil
}

func (l *Dense) InputShape() nd.Shape  { return l.in }
func (l *Dense) OutputShape() nd.Shape { return l.out }
func (l *Dense) String() string        { return fmt.Sprintf("Dense %d→%d", l.in.Size(), l.out.Size()) }

// Weights returns a copy of the weight matrix.
func (l *Dense) Weights() *nd.Matrix {
	return &nd.Matrix{Rows: l.weights.Rows, Cols: l.weights.Cols, Data: append([]float32(nil), l.weights.Data...)}
}

// Bias returns the shared bias.
func (l *Dense) Bias() float32 { return l.bias }

// SetWeights replaces the weights with a copy of w.
func (l *Dense) SetWeights(w *nd.Matrix) error {
	if w == nil {
		return nd.ErrNilBuffer
	}
	if w.Rows != l.weights.Rows || w.Cols != l.weights.Cols || len(w.Data) != len(l.weights.Data) {
		return errors.Wrapf(nd.ErrShapeMismatch, "expected %v weights, got %v", l.weights, w)
	}
	copy(l.weights.Data, w.Data)
	return nil
}

// SetBias replaces the shared bias.
func (l *Dense) SetBias(b float32) { l.bias = b }

func (l *Dense) FeedForward(input *nd.Tensor) (*nd.Tensor, error) {
	if err := checkInput(l, input); err != nil {
		return nil, err
	}
	copy(l.x.Data, input.Data())
	if err := nd.Multiply(l.x, l.weights, l.y, nil); err != nil {
		return nil, err
	}
	out := l.output.Data()
	for j, v := range l.y.Data {
		out[j] = v + l.bias
	}
	return l.output, nil
}

func (l *Dense) BackPropagate(grad *nd.Tensor, learningFactor float32) (*nd.Tensor, error) {
	if err := checkGrad(l, grad); err != nil {
		return nil, err
	}
	copy(l.gRow.Data, grad.Data())

	scale := func(v float32) float32 { return learningFactor * v }
	if err := nd.Multiply(l.xCol, l.gRow, l.outer, scale); err != nil {
		return nil, errors.WithMessage(err, "weight gradient")
	}
	vecf32.Add(l.accWeights.Data, l.outer.Data)
	l.accBias += learningFactor * vecf32.Sum(l.gRow.Data)

	if err := nd.Multiply(l.weights, l.gCol, l.gradCol, nil); err != nil {
		return nil, errors.WithMessage(err, "input gradient")
	}
	copy(l.gradInput.Data(), l.gradCol.Data)
	return l.gradInput, nil
}

func (l *Dense) UpdateParameters() {
	vecf32.Sub(l.weights.Data, l.accWeights.Data)
	l.bias -= l.accBias
	for i := range l.accWeights.Data {
		l.accWeights.Data[i] = 0
	}
	l.accBias = 0
}
