// Package nd provides the dense float32 buffers the engine computes on, and the
// handful of primitives (matrix multiply, pad, crop, flip) every layer is built from.
package nd

import "fmt"

// Shape is the (channel, row, column) extent of a Tensor.
type Shape struct {
	Depth, Height, Width int
}

// Size is the number of elements a tensor of this shape holds.
func (s Shape) Size() int { return s.Depth * s.Height * s.Width }

// IsValid reports whether every dimension is positive.
func (s Shape) IsValid() bool { return s.Depth > 0 && s.Height > 0 && s.Width > 0 }

// Eq returns true when both shapes are the same.
func (s Shape) Eq(other Shape) bool { return s == other }

func (s Shape) String() string { return fmt.Sprintf("(%d×%d×%d)", s.Depth, s.Height, s.Width) }

// Tensor is a dense (channel, row, column) float32 buffer. The backing slice is row-major:
// element (c, y, x) lives at c*Height*Width + y*Width + x.
type Tensor struct {
	shape Shape
	data  []float32
}

// New allocates a zeroed tensor.
func New(s Shape) *Tensor {
	return &Tensor{shape: s, data: make([]float32, s.Size())}
}

// NewTensor is a convenience for New(Shape{depth, height, width}).
func NewTensor(depth, height, width int) *Tensor { return New(Shape{depth, height, width}) }

// FromData wraps an existing backing slice. The slice is not copied.
func FromData(s Shape, data []float32) (*Tensor, error) {
	if !s.IsValid() {
		return nil, mismatch("invalid shape %v", s)
	}
	if len(data) != s.Size() {
		return nil, mismatch("shape %v needs %d elements, got %d", s, s.Size(), len(data))
	}
	return &Tensor{shape: s, data: data}, nil
}

// Shape returns the shape of the tensor.
func (t *Tensor) Shape() Shape { return t.shape }

// Data returns the backing slice.
func (t *Tensor) Data() []float32 { return t.data }

// Len returns the number of elements.
func (t *Tensor) Len() int { return len(t.data) }

// Index returns the flat offset of (c, y, x).
func (t *Tensor) Index(c, y, x int) int {
	return (c*t.shape.Height+y)*t.shape.Width + x
}

func (t *Tensor) At(c, y, x int) float32 { return t.data[t.Index(c, y, x)] }

func (t *Tensor) Set(c, y, x int, v float32) { t.data[t.Index(c, y, x)] = v }

// Plane returns the backing slice of channel c.
func (t *Tensor) Plane(c int) []float32 {
	n := t.shape.Height * t.shape.Width
	return t.data[c*n : (c+1)*n]
}

// Zero sets every element to 0.
func (t *Tensor) Zero() {
	for i := range t.data {
		t.data[i] = 0
	}
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	retVal := New(t.shape)
	copy(retVal.data, t.data)
	return retVal
}

// CopyFrom copies the contents of other, which must have the same shape.
func (t *Tensor) CopyFrom(other *Tensor) error {
	if other == nil {
		return ErrNilBuffer
	}
	if t.shape != other.shape {
		return mismatch("copy %v into %v", other.shape, t.shape)
	}
	copy(t.data, other.data)
	return nil
}

// Check returns an error if t is nil or does not have the expected shape.
func Check(t *Tensor, expected Shape) error {
	if t == nil {
		return ErrNilBuffer
	}
	if t.shape != expected {
		return mismatch("expected %v, got %v", expected, t.shape)
	}
	return nil
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v %v", t.shape, t.data)
}
