package nd

import (
	"fmt"

	"github.com/pkg/errors"
)

// Matrix is a dense row-major rows×cols float32 matrix.
type Matrix struct {
	Rows, Cols int
	Data       []float32
}

// NewMatrix allocates a zeroed rows×cols matrix.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

func (m *Matrix) At(i, j int) float32 { return m.Data[i*m.Cols+j] }

func (m *Matrix) Set(i, j int, v float32) { m.Data[i*m.Cols+j] = v }

// Row returns the backing slice of row i.
func (m *Matrix) Row(i int) []float32 { return m.Data[i*m.Cols : (i+1)*m.Cols] }

func (m *Matrix) valid() bool {
	return m.Rows >= 0 && m.Cols >= 0 && len(m.Data) == m.Rows*m.Cols
}

func (m *Matrix) String() string { return fmt.Sprintf("%d×%d", m.Rows, m.Cols) }

// Multiply computes c = a·b, passing every element of the product through post before it is stored.
// A nil post is the identity.
//
// All arguments are validated before c is written. A panic raised by post is recovered and returned,
// and c is left untouched.
func Multiply(a, b, c *Matrix, post func(float32) float32) (err error) {
	if a == nil || b == nil || c == nil {
		return errors.Wrap(ErrNilBuffer, "multiply")
	}
	if !a.valid() || !b.valid() || !c.valid() {
		return mismatch("multiply: backing length does not match dimensions")
	}
	if a.Cols != b.Rows || c.Rows != a.Rows || c.Cols != b.Cols {
		return mismatch("multiply %v by %v into %v", a, b, c)
	}

	if post == nil {
		multiply(a, b, c.Data)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("multiply: post transform failed: %v", r)
		}
	}()
	scratch := make([]float32, len(c.Data))
	multiply(a, b, scratch)
	for i := range scratch {
		scratch[i] = post(scratch[i])
	}
	copy(c.Data, scratch)
	return nil
}

// multiply writes a·b into dst, which holds a.Rows×b.Cols elements.
func multiply(a, b *Matrix, dst []float32) {
	n := b.Cols
	for i := 0; i < a.Rows; i++ {
		crow := dst[i*n : (i+1)*n]
		for j := range crow {
			crow[j] = 0
		}
		arow := a.Data[i*a.Cols : (i+1)*a.Cols]
		for t, av := range arow {
			brow := b.Data[t*n : (t+1)*n]
			for j, bv := range brow {
				crow[j] += av * bv
			}
		}
	}
}
