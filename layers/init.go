package layers

import "math/rand"

// Initializer produces the initial values of a layer's parameters.
type Initializer interface {
	Next() float32
}

// Uniform draws initial values uniformly from [Low, High).
type Uniform struct {
	Low, High float32
	r         *rand.Rand
}

// NewUniform returns a uniform [-1, 1) initializer over r.
func NewUniform(r *rand.Rand) *Uniform {
	return &Uniform{Low: -1, High: 1, r: r}
}

func (u *Uniform) Next() float32 { return u.Low + u.r.Float32()*(u.High-u.Low) }

// Constant always produces the same value.
type Constant float32

func (c Constant) Next() float32 { return float32(c) }

func fill(data []float32, init Initializer) {
	if init == nil {
		return
	}
	for i := range data {
		data[i] = init.Next()
	}
}
