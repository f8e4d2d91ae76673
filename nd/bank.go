package nd

import "fmt"

// Bank is a 4D filter bank: Count filters, each Depth×Height×Width, stored contiguously.
type Bank struct {
	Count, Depth, Height, Width int
	Data                        []float32
}

// NewBank allocates a zeroed filter bank.
func NewBank(count, depth, height, width int) *Bank {
	return &Bank{
		Count:  count,
		Depth:  depth,
		Height: height,
		Width:  width,
		Data:   make([]float32, count*depth*height*width),
	}
}

// Index returns the flat offset of (f, c, y, x).
func (b *Bank) Index(f, c, y, x int) int {
	return ((f*b.Depth+c)*b.Height+y)*b.Width + x
}

func (b *Bank) At(f, c, y, x int) float32 { return b.Data[b.Index(f, c, y, x)] }

func (b *Bank) Set(f, c, y, x int, v float32) { b.Data[b.Index(f, c, y, x)] = v }

// FilterShape is the shape of a single filter.
func (b *Bank) FilterShape() Shape { return Shape{b.Depth, b.Height, b.Width} }

// SameShape reports whether both banks have the same dimensions.
func (b *Bank) SameShape(other *Bank) bool {
	return b.Count == other.Count && b.Depth == other.Depth && b.Height == other.Height && b.Width == other.Width
}

func (b *Bank) Zero() {
	for i := range b.Data {
		b.Data[i] = 0
	}
}

func (b *Bank) Clone() *Bank {
	retVal := NewBank(b.Count, b.Depth, b.Height, b.Width)
	copy(retVal.Data, b.Data)
	return retVal
}

func (b *Bank) String() string {
	return fmt.Sprintf("Bank(%d×%d×%d×%d)", b.Count, b.Depth, b.Height, b.Width)
}
