package layers

import (
	"math/rand"
	"testing"

	"github.com/chewxy/math32"
	"github.com/gorgonia/convnet/cost"
	"github.com/gorgonia/convnet/nd"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
)

func randTensor(r *rand.Rand, s nd.Shape) *nd.Tensor {
	t := nd.New(s)
	for i := range t.Data() {
		t.Data()[i] = r.Float32() - 0.5
	}
	return t
}

// numericGradient perturbs params in place and returns the central difference gradient of eval.
func numericGradient(params []float32, eval func() float32) []float64 {
	x := make([]float64, len(params))
	for i, v := range params {
		x[i] = float64(v)
	}
	f := func(x []float64) float64 {
		for i, v := range x {
			params[i] = float32(v)
		}
		return float64(eval())
	}
	retVal := fd.Gradient(nil, f, x, &fd.Settings{Formula: fd.Central, Step: 1e-2})
	for i, v := range x {
		params[i] = float32(v)
	}
	return retVal
}

func assertGradient(t *testing.T, name string, want []float64, got []float32) {
	t.Helper()
	require.Equal(t, len(want), len(got), name)
	for i := range want {
		tol := 2e-3 + 1e-3*math32.Abs(float32(want[i]))
		if math32.Abs(float32(want[i])-got[i]) > tol {
			t.Errorf("%s[%d]: numeric %v, analytic %v", name, i, want[i], got[i])
		}
	}
}

// lossOf returns the mean squared error of l's output for input against target.
func lossOf(t *testing.T, l Layer, input, target *nd.Tensor) func() float32 {
	return func() float32 {
		out, err := l.FeedForward(input)
		require.NoError(t, err)
		e, err := cost.MeanSquared(target, out)
		require.NoError(t, err)
		return e
	}
}

// backward runs one forward and backward pass with a learning factor of 1 and returns the input gradient.
func backward(t *testing.T, l Layer, input, target *nd.Tensor) []float32 {
	out, err := l.FeedForward(input)
	require.NoError(t, err)
	grad := nd.New(out.Shape())
	require.NoError(t, cost.MeanSquaredGradient(target, out, grad))
	gradInput, err := l.BackPropagate(grad, 1)
	require.NoError(t, err)
	return append([]float32(nil), gradInput.Data()...)
}

var convLayerCases = []struct {
	in                        nd.Shape
	filters, kernelH, kernelW int
	padding                   int
}{
	{nd.Shape{Depth: 1, Height: 3, Width: 3}, 1, 3, 3, 1},
	{nd.Shape{Depth: 2, Height: 5, Width: 4}, 3, 3, 2, 0},
	{nd.Shape{Depth: 3, Height: 4, Width: 4}, 2, 2, 2, 1},
	{nd.Shape{Depth: 1, Height: 3, Width: 3}, 2, 2, 2, 3}, // gradient is cropped
	{nd.Shape{Depth: 2, Height: 4, Width: 5}, 2, 1, 3, 1}, // cropped rows, padded columns
}

func TestConvolutionExample(t *testing.T) {
	l, err := NewConvolution(nd.Shape{Depth: 1, Height: 2, Width: 2}, 1, 2, 2, 0, Constant(1))
	require.NoError(t, err)
	require.NoError(t, l.SetBiases([]float32{0}))
	in, err := nd.FromData(l.InputShape(), []float32{0, 1, 1, 2})
	require.NoError(t, err)
	out, err := l.FeedForward(in)
	require.NoError(t, err)
	assert.Equal(t, nd.Shape{Depth: 1, Height: 1, Width: 1}, out.Shape())
	assert.Equal(t, []float32{4}, out.Data())
}

func TestConvolutionShapeLaw(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for _, tc := range convLayerCases {
		l, err := NewConvolution(tc.in, tc.filters, tc.kernelH, tc.kernelW, tc.padding, NewUniform(r))
		require.NoError(t, err)
		want := nd.Shape{
			Depth:  tc.filters,
			Height: tc.in.Height - tc.kernelH + 1 + 2*tc.padding,
			Width:  tc.in.Width - tc.kernelW + 1 + 2*tc.padding,
		}
		assert.Equal(t, want, l.OutputShape(), "%+v", tc)
	}
}

func TestConvolutionGradient(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for _, tc := range convLayerCases {
		l, err := NewConvolution(tc.in, tc.filters, tc.kernelH, tc.kernelW, tc.padding, NewUniform(r))
		require.NoError(t, err)
		input := randTensor(r, tc.in)
		target := randTensor(r, l.OutputShape())

		gradInput := backward(t, l, input, target)
		gradFilter := append([]float32(nil), l.accFilter.Data...)
		gradBias := append([]float32(nil), l.accBias...)

		loss := lossOf(t, l, input, target)
		assertGradient(t, "filter", numericGradient(l.filter.Data, loss), gradFilter)
		assertGradient(t, "bias", numericGradient(l.bias, loss), gradBias)
		assertGradient(t, "input", numericGradient(input.Data(), loss), gradInput)
	}
}

func TestConvolutionMiniBatch(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	in := nd.Shape{Depth: 2, Height: 4, Width: 4}
	batched, err := NewConvolution(in, 2, 3, 3, 1, NewUniform(r))
	require.NoError(t, err)
	single, err := NewConvolution(in, 2, 3, 3, 1, nil)
	require.NoError(t, err)
	require.NoError(t, single.SetFilters(batched.Filters()))
	require.NoError(t, single.SetBiases(batched.Biases()))

	inputs := make([]*nd.Tensor, 3)
	grads := make([]*nd.Tensor, 3)
	for i := range inputs {
		inputs[i] = randTensor(r, in)
		grads[i] = randTensor(r, batched.OutputShape())
	}
	const factor = 0.1

	for i := range inputs {
		_, err := batched.FeedForward(inputs[i])
		require.NoError(t, err)
		_, err = batched.BackPropagate(grads[i], factor)
		require.NoError(t, err)
	}
	batched.UpdateParameters()

	// the parameter gradients of a convolution depend only on its input and output gradient, so one
	// update per sample lands on the same parameters
	for i := range inputs {
		_, err := single.FeedForward(inputs[i])
		require.NoError(t, err)
		_, err = single.BackPropagate(grads[i], factor)
		require.NoError(t, err)
		single.UpdateParameters()
	}

	assert.InDeltaSlice(t, batched.Filters().Data, single.Filters().Data, 1e-5)
	assert.InDeltaSlice(t, batched.Biases(), single.Biases(), 1e-5)

	// accumulators are cleared by the update
	for _, v := range batched.accFilter.Data {
		assert.Zero(t, v)
	}
	for _, v := range batched.accBias {
		assert.Zero(t, v)
	}
}

func TestConvolutionUpdate(t *testing.T) {
	l, err := NewConvolution(nd.Shape{Depth: 1, Height: 2, Width: 2}, 1, 2, 2, 0, Constant(0))
	require.NoError(t, err)
	in, err := nd.FromData(l.InputShape(), []float32{0, 1, 1, 2})
	require.NoError(t, err)
	_, err = l.FeedForward(in)
	require.NoError(t, err)
	grad, err := nd.FromData(l.OutputShape(), []float32{1})
	require.NoError(t, err)

	// two samples of the same batch accumulate
	_, err = l.BackPropagate(grad, 0.5)
	require.NoError(t, err)
	_, err = l.BackPropagate(grad, 0.5)
	require.NoError(t, err)
	l.UpdateParameters()

	assert.Equal(t, []float32{0, -1, -1, -2}, l.Filters().Data)
	assert.Equal(t, []float32{-1}, l.Biases())
}

func TestConvolutionErrors(t *testing.T) {
	assert := assert.New(t)
	_, err := NewConvolution(nd.Shape{Depth: 1, Height: 2, Width: 2}, 1, 3, 3, 0, nil)
	assert.True(errors.Is(err, nd.ErrKernelTooLarge), "%v", err)

	// padding makes the kernel fit
	_, err = NewConvolution(nd.Shape{Depth: 1, Height: 2, Width: 2}, 1, 3, 3, 1, nil)
	assert.NoError(err)

	_, err = NewConvolution(nd.Shape{Depth: 1, Height: 2, Width: 2}, 0, 1, 1, 0, nil)
	assert.True(errors.Is(err, nd.ErrShapeMismatch), "%v", err)

	l, err := NewConvolution(nd.Shape{Depth: 2, Height: 3, Width: 3}, 1, 2, 2, 0, nil)
	require.NoError(t, err)
	_, err = l.FeedForward(nd.NewTensor(1, 3, 3))
	assert.True(errors.Is(err, nd.ErrShapeMismatch), "%v", err)
	_, err = l.FeedForward(nil)
	assert.True(errors.Is(err, nd.ErrNilBuffer), "%v", err)
	_, err = l.BackPropagate(nd.NewTensor(1, 3, 3), 1)
	assert.True(errors.Is(err, nd.ErrShapeMismatch), "%v", err)
	assert.True(errors.Is(l.SetFilters(nd.NewBank(1, 1, 2, 2)), nd.ErrShapeMismatch))
	assert.True(errors.Is(l.SetBiases([]float32{1, 2}), nd.ErrShapeMismatch))
}

func TestPooling(t *testing.T) {
	assert := assert.New(t)
	l, err := NewPooling(nd.Shape{Depth: 1, Height: 4, Width: 4}, 2, 2)
	require.NoError(t, err)
	assert.Equal(nd.Shape{Depth: 1, Height: 2, Width: 2}, l.OutputShape())

	in, err := nd.FromData(l.InputShape(), []float32{
		5, 5, 1, 3,
		5, 5, 3, 2,
		-3, -1, 0, 0,
		-2, -5, 0, 7,
	})
	require.NoError(t, err)
	out, err := l.FeedForward(in)
	require.NoError(t, err)
	assert.Equal([]float32{5, 3, -1, 7}, out.Data())

	var switches [][2]int
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			dy, dx := l.Switch(0, y, x)
			switches = append(switches, [2]int{dy, dx})
		}
	}
	// ties go to the first maximum in row-major order
	assert.Equal([][2]int{{0, 0}, {0, 1}, {0, 1}, {1, 1}}, switches)

	grad, err := nd.FromData(l.OutputShape(), []float32{1, 2, 3, 4})
	require.NoError(t, err)
	gradInput, err := l.BackPropagate(grad, 1)
	require.NoError(t, err)
	assert.Equal([]float32{
		1, 0, 0, 2,
		0, 0, 0, 0,
		0, 3, 0, 0,
		0, 0, 0, 4,
	}, gradInput.Data())
}

func TestPoolingRouting(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	l, err := NewPooling(nd.Shape{Depth: 3, Height: 6, Width: 4}, 3, 2)
	require.NoError(t, err)
	in := randTensor(r, l.InputShape())
	out, err := l.FeedForward(in)
	require.NoError(t, err)
	grad := randTensor(r, l.OutputShape())
	gradInput, err := l.BackPropagate(grad, 1)
	require.NoError(t, err)

	var sumIn, sumOut float32
	for _, v := range gradInput.Data() {
		sumIn += v
	}
	for _, v := range grad.Data() {
		sumOut += v
	}
	assert.InDelta(t, sumOut, sumIn, 1e-5)

	os := l.OutputShape()
	for c := 0; c < os.Depth; c++ {
		for y := 0; y < os.Height; y++ {
			for x := 0; x < os.Width; x++ {
				dy, dx := l.Switch(c, y, x)
				assert.Equal(t, out.At(c, y, x), in.At(c, 3*y+dy, 2*x+dx))
				for wy := 0; wy < 3; wy++ {
					for wx := 0; wx < 2; wx++ {
						v := gradInput.At(c, 3*y+wy, 2*x+wx)
						if wy == dy && wx == dx {
							assert.Equal(t, grad.At(c, y, x), v)
						} else {
							assert.Zero(t, v)
						}
					}
				}
			}
		}
	}
}

func TestPoolingErrors(t *testing.T) {
	_, err := NewPooling(nd.Shape{Depth: 1, Height: 5, Width: 4}, 2, 2)
	assert.True(t, errors.Is(err, nd.ErrShapeMismatch), "%v", err)
	_, err = NewPooling(nd.Shape{Depth: 1, Height: 2, Width: 2}, 3, 3)
	assert.True(t, errors.Is(err, nd.ErrKernelTooLarge), "%v", err)
}

func TestUnpooling(t *testing.T) {
	assert := assert.New(t)
	in := nd.Shape{Depth: 2, Height: 3, Width: 2}
	u, err := NewUnpooling(in, 2, 3)
	require.NoError(t, err)
	assert.Equal(nd.Shape{Depth: 2, Height: 6, Width: 6}, u.OutputShape())

	p, err := NewPooling(u.OutputShape(), 2, 3)
	require.NoError(t, err)
	assert.Equal(in, p.OutputShape())

	x, err := nd.FromData(in, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	require.NoError(t, err)
	up, err := u.FeedForward(x)
	require.NoError(t, err)
	assert.Equal(float32(1), up.At(0, 0, 0))
	assert.Equal(float32(2), up.At(0, 0, 3))
	assert.Equal(float32(12), up.At(1, 4, 3))
	assert.Zero(up.At(0, 1, 1))

	// pooling undoes unpooling for positive values
	down, err := p.FeedForward(up)
	require.NoError(t, err)
	assert.Equal(x.Data(), down.Data())

	grad := nd.NewTensor(2, 6, 6)
	for i := range grad.Data() {
		grad.Data()[i] = float32(i)
	}
	g, err := u.BackPropagate(grad, 1)
	require.NoError(t, err)
	assert.Equal(grad.At(1, 2, 3), g.At(1, 1, 1))
	assert.Equal(grad.At(0, 4, 0), g.At(0, 2, 0))
}

func TestDenseGradient(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	l, err := NewDense(nd.Shape{Depth: 2, Height: 2, Width: 3}, nd.Shape{Depth: 1, Height: 1, Width: 4}, NewUniform(r))
	require.NoError(t, err)
	input := randTensor(r, l.InputShape())
	target := randTensor(r, l.OutputShape())

	gradInput := backward(t, l, input, target)
	gradWeights := append([]float32(nil), l.accWeights.Data...)
	gradBias := l.accBias

	loss := lossOf(t, l, input, target)
	assertGradient(t, "weights", numericGradient(l.weights.Data, loss), gradWeights)
	bias := []float32{l.bias}
	biasLoss := func() float32 {
		l.bias = bias[0]
		return loss()
	}
	assertGradient(t, "bias", numericGradient(bias, biasLoss), []float32{gradBias})
	l.bias = bias[0]
	assertGradient(t, "input", numericGradient(input.Data(), loss), gradInput)
}

func TestDense(t *testing.T) {
	assert := assert.New(t)
	l, err := NewDense(nd.Shape{Depth: 1, Height: 1, Width: 2}, nd.Shape{Depth: 1, Height: 1, Width: 3}, nil)
	require.NoError(t, err)
	require.NoError(t, l.SetWeights(&nd.Matrix{Rows: 2, Cols: 3, Data: []float32{1, 2, 3, 4, 5, 6}}))
	l.SetBias(1)

	in, err := nd.FromData(l.InputShape(), []float32{1, 2})
	require.NoError(t, err)
	out, err := l.FeedForward(in)
	require.NoError(t, err)
	assert.Equal([]float32{10, 13, 16}, out.Data())

	grad, err := nd.FromData(l.OutputShape(), []float32{1, 0, -1})
	require.NoError(t, err)
	gi, err := l.BackPropagate(grad, 0.5)
	require.NoError(t, err)
	assert.Equal([]float32{-2, -2}, gi.Data())

	l.UpdateParameters()
	// w[i][j] -= 0.5·x[i]·g[j]
	assert.Equal([]float32{0.5, 2, 3.5, 3, 5, 7}, l.Weights().Data)
	assert.Equal(float32(1), l.Bias())

	assert.True(errors.Is(l.SetWeights(nd.NewMatrix(3, 2)), nd.ErrShapeMismatch))
}

func TestActivation(t *testing.T) {
	r := rand.New(rand.NewSource(6))
	l, err := NewActivation(nd.Shape{Depth: 2, Height: 3, Width: 3})
	require.NoError(t, err)

	zero := nd.NewTensor(2, 3, 3)
	out, err := l.FeedForward(zero)
	require.NoError(t, err)
	for _, v := range out.Data() {
		assert.Equal(t, float32(0.5), v)
	}

	input := randTensor(r, l.InputShape())
	target := randTensor(r, l.OutputShape())
	gradInput := backward(t, l, input, target)
	assertGradient(t, "input", numericGradient(input.Data(), lossOf(t, l, input, target)), gradInput)
}

func TestBuilders(t *testing.T) {
	assert := assert.New(t)
	init := NewUniform(rand.New(rand.NewSource(7)))
	in := nd.Shape{Depth: 3, Height: 8, Width: 8}

	builders := []Builder{Conv(4, 3, 3, 1), Sigmoid(), Pool(2, 2), Unpool(2, 2), FullyConnected(nd.Shape{Depth: 1, Height: 1, Width: 10})}
	shapes := []nd.Shape{
		{Depth: 4, Height: 8, Width: 8},
		{Depth: 4, Height: 8, Width: 8},
		{Depth: 4, Height: 4, Width: 4},
		{Depth: 4, Height: 8, Width: 8},
		{Depth: 1, Height: 1, Width: 10},
	}
	s := in
	for i, b := range builders {
		l, err := b.Build(s, init)
		require.NoError(t, err)
		assert.Equal(s, l.InputShape())
		assert.Equal(shapes[i], l.OutputShape(), "%v", l)
		s = l.OutputShape()
	}

	_, err := Pool(3, 3).Build(in, init)
	assert.True(errors.Is(err, nd.ErrShapeMismatch), "%v", err)
	_, err = Conv(1, 9, 9, 0).Build(in, init)
	assert.True(errors.Is(err, nd.ErrKernelTooLarge), "%v", err)
}
