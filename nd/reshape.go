package nd

import "github.com/pkg/errors"

// Pad copies in into the centre of out, surrounded by padH zero rows above and below and padW zero
// columns left and right of every channel. out must have shape (d, h+2·padH, w+2·padW).
func Pad(in, out *Tensor, padH, padW int) error {
	if in == nil || out == nil {
		return errors.Wrap(ErrNilBuffer, "pad")
	}
	if padH < 0 || padW < 0 {
		return mismatch("pad: negative padding (%d, %d)", padH, padW)
	}
	s := in.shape
	want := Shape{s.Depth, s.Height + 2*padH, s.Width + 2*padW}
	if out.shape != want {
		return mismatch("pad %v by (%d, %d): expected %v, got %v", s, padH, padW, want, out.shape)
	}
	if padH > 0 || padW > 0 {
		out.Zero()
	}
	for c := 0; c < s.Depth; c++ {
		for y := 0; y < s.Height; y++ {
			src := in.data[in.Index(c, y, 0) : in.Index(c, y, 0)+s.Width]
			dst := out.Index(c, y+padH, padW)
			copy(out.data[dst:dst+s.Width], src)
		}
	}
	return nil
}

// Crop is the inverse of Pad: it drops cropH rows from the top and bottom and cropW columns from the
// left and right of every channel. out must have shape (d, h−2·cropH, w−2·cropW).
func Crop(in, out *Tensor, cropH, cropW int) error {
	if in == nil || out == nil {
		return errors.Wrap(ErrNilBuffer, "crop")
	}
	if cropH < 0 || cropW < 0 {
		return mismatch("crop: negative amount (%d, %d)", cropH, cropW)
	}
	s := in.shape
	want := Shape{s.Depth, s.Height - 2*cropH, s.Width - 2*cropW}
	if !want.IsValid() || out.shape != want {
		return mismatch("crop %v by (%d, %d): expected %v, got %v", s, cropH, cropW, want, out.shape)
	}
	for c := 0; c < want.Depth; c++ {
		for y := 0; y < want.Height; y++ {
			src := in.Index(c, y+cropH, cropW)
			dst := out.Index(c, y, 0)
			copy(out.data[dst:dst+want.Width], in.data[src:src+want.Width])
		}
	}
	return nil
}

// Flip writes the transposed, 180° rotated bank: out[c, f, h−1−y, w−1−x] = in[f, c, y, x].
// out must have Count == in.Depth and Depth == in.Count.
func Flip(in, out *Bank) error {
	if in == nil || out == nil {
		return errors.Wrap(ErrNilBuffer, "flip")
	}
	if out.Count != in.Depth || out.Depth != in.Count || out.Height != in.Height || out.Width != in.Width {
		return mismatch("flip %v into %v", in, out)
	}
	h, w := in.Height, in.Width
	for f := 0; f < in.Count; f++ {
		for c := 0; c < in.Depth; c++ {
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					out.Data[out.Index(c, f, h-1-y, w-1-x)] = in.Data[in.Index(f, c, y, x)]
				}
			}
		}
	}
	return nil
}
