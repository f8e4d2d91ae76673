// Package dataset defines where training samples come from and where network outputs go.
package dataset

import (
	"github.com/gorgonia/convnet/nd"
	"github.com/pkg/errors"
)

// Sample is one training pair. Target must have the shape of the network output.
type Sample struct {
	Input  *nd.Tensor
	Target *nd.Tensor
}

// Source is a finite, non-restartable iterator of samples.
//
//	for src.Next() {
//		s := src.Sample()
//		...
//	}
//	if err := src.Err(); err != nil {
//		...
//	}
type Source interface {
	// Next advances to the next sample. It returns false when the source is exhausted or failed.
	Next() bool

	// Sample returns the current sample.
	Sample() Sample

	// Err returns the error that stopped the iteration, if any.
	Err() error
}

// Sink consumes tensors produced by a network.
type Sink interface {
	Write(t *nd.Tensor) error
}

// Augmenter takes a sample, and creates more samples from it.
type Augmenter func(s Sample) []Sample

// Collect drains src.
func Collect(src Source) ([]Sample, error) {
	var retVal []Sample
	for src.Next() {
		retVal = append(retVal, src.Sample())
	}
	if err := src.Err(); err != nil {
		return retVal, errors.WithMessage(err, "collecting samples")
	}
	return retVal, nil
}

// Validate checks that every sample matches the given input and target shapes.
func Validate(samples []Sample, input, target nd.Shape) error {
	for i, s := range samples {
		if err := nd.Check(s.Input, input); err != nil {
			return errors.WithMessagef(err, "sample %d input", i)
		}
		if err := nd.Check(s.Target, target); err != nil {
			return errors.WithMessagef(err, "sample %d target", i)
		}
	}
	return nil
}

// SliceSource iterates over a slice of samples.
type SliceSource struct {
	samples []Sample
	i       int
}

// NewSliceSource returns a source over samples.
func NewSliceSource(samples ...Sample) *SliceSource {
	return &SliceSource{samples: samples, i: -1}
}

func (s *SliceSource) Next() bool {
	if s.i+1 >= len(s.samples) {
		s.i = len(s.samples)
		return false
	}
	s.i++
	return true
}

func (s *SliceSource) Sample() Sample { return s.samples[s.i] }

func (s *SliceSource) Err() error { return nil }

// SliceSink keeps a copy of every tensor written to it.
type SliceSink struct {
	Tensors []*nd.Tensor
}

func (s *SliceSink) Write(t *nd.Tensor) error {
	if t == nil {
		return nd.ErrNilBuffer
	}
	s.Tensors = append(s.Tensors, t.Clone())
	return nil
}
