// Package gif renders the output of a network after every epoch into an animated GIF.
package gif

import (
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"io"
	"math"

	"github.com/golang/freetype/truetype"
	"github.com/gorgonia/convnet"
	"github.com/gorgonia/convnet/imageio"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/math/fixed"

	xdraw "golang.org/x/image/draw"
)

var regular *truetype.Font

const (
	dpi             = 72.0
	fontsize        = 12.0
	lineheight      = 1.2
	dummyLongString = `Epoch 100000, Error 0.000000`
)

func init() {
	var err error
	if regular, err = truetype.Parse(gomono.TTF); err != nil {
		panic(err)
	}
}

// Encoder is a convnet.OutputEncoder that draws the network output of every epoch, enlarged by Zoom,
// above a caption with the run name, epoch and error. Flush writes the animation to the Writer.
type Encoder struct {
	io.Writer
	font.Drawer
	Zoom  int
	Delay int // per frame, in 100ths of a second

	out  *gif.GIF
	face font.Face

	H, W        int
	padH, padW  int
	initialized bool
}

// NewEncoder creates an encoder writing to w.
func NewEncoder(w io.Writer, zoom int) *Encoder {
	if zoom < 1 {
		zoom = 1
	}
	return &Encoder{
		Writer: w,
		Zoom:   zoom,
		Delay:  20,
		H:      -1,
		W:      -1,
		padH:   4,
		padW:   4,
		Drawer: font.Drawer{
			Src: image.Black,
		},
		out: &gif.GIF{LoopCount: 0},
	}
}

// Frames is the number of frames encoded so far.
func (enc *Encoder) Frames() int { return len(enc.out.Image) }

func lineHeight() int { return int(math.Ceil(fontsize * lineheight * dpi / 72)) }

// Encode draws one frame.
func (enc *Encoder) Encode(ms convnet.MetaState) error {
	img, err := imageio.ToImage(ms.Output())
	if err != nil {
		return errors.WithMessage(err, "gif frame")
	}
	b := img.Bounds()
	zw, zh := b.Dx()*enc.Zoom, b.Dy()*enc.Zoom
	dy := lineHeight()

	if !enc.initialized {
		// lazy init of the frame layout
		enc.face = truetype.NewFace(regular, &truetype.Options{
			Size:    fontsize,
			DPI:     dpi,
			Hinting: font.HintingFull,
		})
		enc.Drawer.Face = enc.face

		textW := maxInt(font.MeasureString(enc.face, ms.Name()).Ceil(), font.MeasureString(enc.face, dummyLongString).Ceil())
		enc.W = maxInt(zw, textW) + 2*enc.padW
		enc.H = zh + 2*dy + 2*enc.padH // 2 caption lines: name, epoch and error
		enc.initialized = true
	}

	frame := image.NewPaletted(image.Rect(0, 0, enc.W, enc.H), palette.Plan9)
	draw.Draw(frame, frame.Bounds(), image.White, image.Point{}, draw.Src)

	zoomed := image.NewNRGBA(image.Rect(0, 0, zw, zh))
	xdraw.NearestNeighbor.Scale(zoomed, zoomed.Bounds(), img, b, xdraw.Src, nil)
	at := image.Rect(enc.padW, enc.padH, enc.padW+zw, enc.padH+zh)
	draw.FloydSteinberg.Draw(frame, at, zoomed, image.Point{})

	enc.Dst = frame
	y := enc.padH + zh + dy
	enc.Dot = fixed.P(enc.padW, y)
	enc.DrawString(ms.Name())
	y += dy
	enc.Dot = fixed.P(enc.padW, y)
	enc.DrawString(fmt.Sprintf("Epoch %d, Error %.6f", ms.Epoch(), ms.Error()))

	enc.out.Image = append(enc.out.Image, frame)
	enc.out.Delay = append(enc.out.Delay, enc.Delay)
	return nil
}

// Flush writes the gif into the writer
func (enc *Encoder) Flush() error {
	if len(enc.out.Image) == 0 {
		return errors.New("no frames to write")
	}
	return errors.WithStack(gif.EncodeAll(enc.Writer, enc.out))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
