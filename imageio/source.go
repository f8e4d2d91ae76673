package imageio

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"github.com/gorgonia/convnet/dataset"
	"github.com/gorgonia/convnet/nd"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// ErrDirectory is returned when a source or sink directory cannot be used.
var ErrDirectory = errors.New("bad image directory")

// DirSource reads every image of a directory, in name order, as an autoencoder sample whose input is
// also its target. Files that are not images are ignored. Images of the wrong size are skipped unless
// the source resizes them.
type DirSource struct {
	files  []string
	shape  nd.Shape
	resize bool

	i       int
	cur     dataset.Sample
	err     error
	skipped []string
}

// DirOption configures a DirSource.
type DirOption func(*DirSource)

// WithResize scales images of the wrong size instead of skipping them.
func WithResize() DirOption { return func(d *DirSource) { d.resize = true } }

// WithGray reads images as single channel luminance.
func WithGray() DirOption { return func(d *DirSource) { d.shape.Depth = 1 } }

// NewDirSource creates a source over the images in dir that are height×width.
func NewDirSource(dir string, height, width int, opts ...DirOption) (*DirSource, error) {
	if height <= 0 || width <= 0 {
		return nil, errors.Wrapf(nd.ErrShapeMismatch, "image size %d×%d", height, width)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(ErrDirectory, "%v", err)
	}
	if !info.IsDir() {
		return nil, errors.Wrapf(ErrDirectory, "%q is not a directory", dir)
	}
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(ErrDirectory, "%v", err)
	}
	retVal := &DirSource{
		shape: nd.Shape{Depth: 3, Height: height, Width: width},
		i:     -1,
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		retVal.files = append(retVal.files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(retVal.files)
	for _, o := range opts {
		o(retVal)
	}
	return retVal, nil
}

// Shape is the shape of every sample.
func (d *DirSource) Shape() nd.Shape { return d.shape }

// Skipped lists the images that were skipped for having the wrong size.
func (d *DirSource) Skipped() []string { return d.skipped }

func (d *DirSource) Next() bool {
	if d.err != nil {
		return false
	}
	for d.i+1 < len(d.files) {
		d.i++
		filename := d.files[d.i]
		img, err := decode(filename)
		switch {
		case errors.Is(err, image.ErrFormat):
			continue
		case err != nil:
			d.err = errors.WithMessagef(err, "reading %q", filename)
			return false
		}

		b := img.Bounds()
		if b.Dx() != d.shape.Width || b.Dy() != d.shape.Height {
			if !d.resize {
				d.skipped = append(d.skipped, filename)
				continue
			}
			img = scale(img, d.shape.Width, d.shape.Height)
		}
		t := ToTensor(img, d.shape.Depth == 1)
		d.cur = dataset.Sample{Input: t, Target: t}
		return true
	}
	return false
}

func (d *DirSource) Sample() dataset.Sample { return d.cur }

func (d *DirSource) Err() error { return d.err }

func decode(filename string) (image.Image, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

func scale(img image.Image, width, height int) image.Image {
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}
