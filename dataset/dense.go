package dataset

import (
	"github.com/gorgonia/convnet/nd"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// DenseSource iterates over batches held in gorgonia tensors. Both tensors are laid out as
// (N, C, H, W) with the same N; sample i is the i-th slab of each.
type DenseSource struct {
	xs, ys        []float32
	input, target nd.Shape
	n, i          int
	cur           Sample
}

// NewDenseSource creates a source over xs and ys. A nil ys makes every sample its own target,
// as an autoencoder is trained.
func NewDenseSource(xs, ys *tensor.Dense) (*DenseSource, error) {
	xsData, input, n, err := slabs(xs)
	if err != nil {
		return nil, errors.WithMessage(err, "inputs")
	}
	ysData, target := xsData, input
	if ys != nil {
		var m int
		if ysData, target, m, err = slabs(ys); err != nil {
			return nil, errors.WithMessage(err, "targets")
		}
		if m != n {
			return nil, errors.Wrapf(nd.ErrShapeMismatch, "%d inputs but %d targets", n, m)
		}
	}
	return &DenseSource{
		xs:     xsData,
		ys:     ysData,
		input:  input,
		target: target,
		n:      n,
		i:      -1,
	}, nil
}

func slabs(t *tensor.Dense) ([]float32, nd.Shape, int, error) {
	if t == nil {
		return nil, nd.Shape{}, 0, nd.ErrNilBuffer
	}
	shp := t.Shape()
	if shp.Dims() != 4 {
		return nil, nd.Shape{}, 0, errors.Wrapf(nd.ErrShapeMismatch, "expected (N, C, H, W), got %v", shp)
	}
	if t.Dtype() != tensor.Float32 {
		return nil, nd.Shape{}, 0, errors.Errorf("expected float32 data, got %v", t.Dtype())
	}
	s := nd.Shape{Depth: shp[1], Height: shp[2], Width: shp[3]}
	if !s.IsValid() {
		return nil, nd.Shape{}, 0, errors.Wrapf(nd.ErrShapeMismatch, "sample shape %v", s)
	}
	// views and transposes share a backing laid out for another shape
	if t.IsMaterializable() {
		m, ok := t.Materialize().(*tensor.Dense)
		if !ok {
			return nil, nd.Shape{}, 0, errors.Errorf("cannot materialize %v", shp)
		}
		t = m
	}
	data := t.Data().([]float32)
	if len(data) < shp.TotalSize() {
		return nil, nd.Shape{}, 0, errors.Wrapf(nd.ErrShapeMismatch, "%d elements for %v", len(data), shp)
	}
	return data[:shp.TotalSize()], s, shp[0], nil
}

// InputShape is the shape of every sample input.
func (d *DenseSource) InputShape() nd.Shape { return d.input }

// TargetShape is the shape of every sample target.
func (d *DenseSource) TargetShape() nd.Shape { return d.target }

// Len is the number of samples.
func (d *DenseSource) Len() int { return d.n }

func (d *DenseSource) Next() bool {
	if d.i+1 >= d.n {
		d.i = d.n
		return false
	}
	d.i++
	d.cur = Sample{
		Input:  slab(d.xs, d.input, d.i),
		Target: slab(d.ys, d.target, d.i),
	}
	return true
}

// slab copies the i-th sample out, so samples do not alias the batch.
func slab(data []float32, s nd.Shape, i int) *nd.Tensor {
	t := nd.New(s)
	size := s.Size()
	copy(t.Data(), data[i*size:(i+1)*size])
	return t
}

func (d *DenseSource) Sample() Sample { return d.cur }

func (d *DenseSource) Err() error { return nil }

// Dense packs samples into a pair of (N, C, H, W) tensors, the inverse of NewDenseSource.
func Dense(samples []Sample) (xs, ys *tensor.Dense, err error) {
	if len(samples) == 0 {
		return nil, nil, errors.New("no samples")
	}
	input, target := samples[0].Input.Shape(), samples[0].Target.Shape()
	if err = Validate(samples, input, target); err != nil {
		return nil, nil, err
	}
	xsBacking := make([]float32, 0, len(samples)*input.Size())
	ysBacking := make([]float32, 0, len(samples)*target.Size())
	for _, s := range samples {
		xsBacking = append(xsBacking, s.Input.Data()...)
		ysBacking = append(ysBacking, s.Target.Data()...)
	}
	xs = tensor.New(tensor.WithBacking(xsBacking), tensor.WithShape(len(samples), input.Depth, input.Height, input.Width))
	ys = tensor.New(tensor.WithBacking(ysBacking), tensor.WithShape(len(samples), target.Depth, target.Height, target.Width))
	return xs, ys, nil
}
