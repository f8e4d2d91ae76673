// Package imageio adapts image files to the dataset interfaces: a directory of images as a sample
// source, and a directory of PNG files as a sink.
package imageio

import (
	"image"
	"image/color"

	"github.com/gorgonia/convnet/nd"
	"github.com/pkg/errors"
)

// ToFloat maps an 8-bit channel value to [0, 1].
func ToFloat(b uint8) float32 { return float32(b) / 255 }

// ToByte maps [0, 1] to an 8-bit channel value, rounding to the nearest and clamping values outside the range.
func ToByte(v float32) uint8 {
	switch {
	case v != v: // NaN
		return 0
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}

// ToTensor converts img into a (3, h, w) RGB tensor, or a (1, h, w) luminance tensor if gray is set.
func ToTensor(img image.Image, gray bool) *nd.Tensor {
	b := img.Bounds()
	depth := 3
	if gray {
		depth = 1
	}
	t := nd.NewTensor(depth, b.Dy(), b.Dx())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			if gray {
				g := color.GrayModel.Convert(c).(color.Gray)
				t.Set(0, y, x, ToFloat(g.Y))
				continue
			}
			n := color.NRGBAModel.Convert(c).(color.NRGBA)
			t.Set(0, y, x, ToFloat(n.R))
			t.Set(1, y, x, ToFloat(n.G))
			t.Set(2, y, x, ToFloat(n.B))
		}
	}
	return t
}

// ToImage converts a (1, h, w) tensor into a grayscale image and a (3, h, w) tensor into an RGB image.
func ToImage(t *nd.Tensor) (image.Image, error) {
	if t == nil {
		return nil, nd.ErrNilBuffer
	}
	s := t.Shape()
	rect := image.Rect(0, 0, s.Width, s.Height)
	switch s.Depth {
	case 1:
		img := image.NewGray(rect)
		for y := 0; y < s.Height; y++ {
			for x := 0; x < s.Width; x++ {
				img.SetGray(x, y, color.Gray{Y: ToByte(t.At(0, y, x))})
			}
		}
		return img, nil
	case 3:
		img := image.NewNRGBA(rect)
		for y := 0; y < s.Height; y++ {
			for x := 0; x < s.Width; x++ {
				img.SetNRGBA(x, y, color.NRGBA{
					R: ToByte(t.At(0, y, x)),
					G: ToByte(t.At(1, y, x)),
					B: ToByte(t.At(2, y, x)),
					A: 255,
				})
			}
		}
		return img, nil
	}
	return nil, errors.Wrapf(nd.ErrShapeMismatch, "cannot make an image of %v: need 1 or 3 channels", s)
}
