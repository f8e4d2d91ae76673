package imageio

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/gorgonia/convnet/nd"
	"github.com/pkg/errors"
)

// timestamp is the layout of the file names written by PNGSink.
const timestamp = "02-01-2006 15-04-05.000"

// PNGSink writes every tensor into its own time-stamped PNG file.
type PNGSink struct {
	dir string
	seq int
	now func() time.Time
}

// NewPNGSink creates a sink writing into dir, which is created if it does not exist.
func NewPNGSink(dir string) (*PNGSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(ErrDirectory, "%v", err)
	}
	return &PNGSink{dir: dir, now: time.Now}, nil
}

// Dir is the directory the sink writes into.
func (s *PNGSink) Dir() string { return s.dir }

func (s *PNGSink) Write(t *nd.Tensor) error {
	img, err := ToImage(t)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("%s %04d.png", s.now().Format(timestamp), s.seq)
	s.seq++

	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.WithStack(err)
	}
	if err = png.Encode(f, img); err != nil {
		f.Close()
		return errors.WithStack(err)
	}
	return errors.WithStack(f.Close())
}
