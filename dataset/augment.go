package dataset

import (
	"sync"

	"github.com/gorgonia/convnet/nd"
	"github.com/pkg/errors"
)

var (
	rowsMu   sync.Mutex
	rowsPool = make(map[int]*sync.Pool)
)

func borrowRows(h int) [][]float32 {
	rowsMu.Lock()
	p, ok := rowsPool[h]
	rowsMu.Unlock()
	if ok {
		if it, ok := p.Get().([][]float32); ok {
			return it
		}
	}
	return make([][]float32, h)
}

func returnRows(it [][]float32) {
	h := len(it)
	for i := range it {
		it[i] = nil
	}
	rowsMu.Lock()
	p, ok := rowsPool[h]
	if !ok {
		p = new(sync.Pool)
		rowsPool[h] = p
	}
	rowsMu.Unlock()
	p.Put(it)
}

// makeRows returns row views of an h×w plane.
func makeRows(plane []float32, h, w int) [][]float32 {
	it := borrowRows(h)
	for i := range it {
		it[i] = plane[i*w : (i+1)*w : (i+1)*w]
	}
	return it
}

// Rotate returns a copy of t with every channel rotated by 90° counter-clockwise. Only square planes
// can be rotated.
func Rotate(t *nd.Tensor) (*nd.Tensor, error) {
	if t == nil {
		return nil, nd.ErrNilBuffer
	}
	s := t.Shape()
	if s.Height != s.Width {
		return nil, errors.Errorf("cannot rotate %v. Only square planes can be rotated", s)
	}
	m := s.Height
	retVal := t.Clone()
	for c := 0; c < s.Depth; c++ {
		it := makeRows(retVal.Plane(c), m, m)
		for i := 0; i < m/2; i++ {
			mi1 := m - i - 1
			for j := i; j < mi1; j++ {
				mj1 := m - j - 1
				tmp := it[i][j]
				// right to top
				it[i][j] = it[j][mi1]

				// bottom to right
				it[j][mi1] = it[mi1][mj1]

				// left to bottom
				it[mi1][mj1] = it[mj1][i]

				// tmp is left
				it[mj1][i] = tmp
			}
		}
		returnRows(it)
	}
	return retVal, nil
}

// Rotations is an Augmenter that returns the sample and its three rotations. Input and target are
// rotated together. Samples with non-square inputs or targets are returned unchanged.
func Rotations(s Sample) []Sample {
	retVal := []Sample{s}
	cur := s
	for k := 1; k < 4; k++ {
		in, err := Rotate(cur.Input)
		if err != nil {
			return retVal[:1]
		}
		target, err := Rotate(cur.Target)
		if err != nil {
			return retVal[:1]
		}
		cur = Sample{Input: in, Target: target}
		retVal = append(retVal, cur)
	}
	return retVal
}

// Augment applies aug to every sample. A nil aug returns samples unchanged.
func Augment(samples []Sample, aug Augmenter) []Sample {
	if aug == nil {
		return samples
	}
	retVal := make([]Sample, 0, len(samples))
	for _, s := range samples {
		retVal = append(retVal, aug(s)...)
	}
	return retVal
}
