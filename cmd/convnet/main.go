// Command convnet trains a small convolutional autoencoder on a directory of images and writes what
// the trained network makes of every image.
package main

import (
	"flag"
	"io/ioutil"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/gorgonia/convnet"
	"github.com/gorgonia/convnet/dataset"
	"github.com/gorgonia/convnet/encoding/gif"
	"github.com/gorgonia/convnet/imageio"
	"github.com/gorgonia/convnet/layers"
	"github.com/gorgonia/convnet/network"
	"github.com/gorgonia/convnet/nd"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

var (
	dataDir   = flag.String("data", "", "directory of training images. Random images are generated when empty")
	outDir    = flag.String("out", "", "directory to write the reconstructed images into")
	height    = flag.Int("height", 16, "image height")
	width     = flag.Int("width", 16, "image width")
	gray      = flag.Bool("gray", false, "read images as grayscale")
	resize    = flag.Bool("resize", false, "resize images of the wrong size instead of skipping them")
	rotate    = flag.Bool("rotate", false, "augment square images with their rotations")
	filters   = flag.Int("filters", 8, "filters of the encoding convolution")
	epochs    = flag.Int("epochs", 20, "maximum number of epochs")
	batch     = flag.Int("batch", 4, "mini-batch size")
	lr        = flag.Float64("lr", 0.05, "learning rate")
	threshold = flag.Float64("threshold", 0, "stop once the average error is below this")
	seed      = flag.Int64("seed", 1337, "random seed")
	gifFile   = flag.String("gif", "", "write the output of the first image after every epoch into this GIF")
	dotFile   = flag.String("dot", "", "write the network graph into this DOT file")
	statsFile = flag.String("stats", "", "write per-epoch statistics into this CSV file")
	pprofAddr = flag.String("pprof", "", "serve pprof on this address")
)

func main() {
	flag.Parse()
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof on http://%s/debug/pprof", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}
	if err := run(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run() error {
	samples, err := loadSamples()
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return errors.New("no usable samples")
	}
	shape := samples[0].Input.Shape()
	log.Printf("%d samples of %v", len(samples), shape)

	net := network.New(
		layers.Conv(*filters, 3, 3, 1),
		layers.Sigmoid(),
		layers.Pool(2, 2),
		layers.Unpool(2, 2),
		layers.Conv(shape.Depth, 3, 3, 1),
		layers.Sigmoid(),
	)
	net.SetSeed(*seed)
	if err = net.Build(shape); err != nil {
		return err
	}
	if *dotFile != "" {
		dot, err := net.ToDot()
		if err != nil {
			return err
		}
		if err = ioutil.WriteFile(*dotFile, []byte(dot), 0644); err != nil {
			return errors.WithStack(err)
		}
	}

	conf := convnet.DefaultConfig()
	conf.Name = "autoencoder"
	conf.Epochs = *epochs
	conf.BatchSize = *batch
	conf.LearningRate = float32(*lr)
	conf.ErrorThreshold = float32(*threshold)
	conf.Seed = *seed
	conf.Observer = convnet.ObserverFuncs{
		Epoch: func(epoch, total int, avgErr float32) {
			log.Printf("epoch %d/%d: average error %v", epoch+1, total, avgErr)
		},
		Done: func(total int, finalErr float32) {
			log.Printf("done after %d epochs: average error %v", total, finalErr)
		},
	}
	if *rotate {
		conf.Augmenter = dataset.Rotations
	}

	var gifOut *os.File
	if *gifFile != "" {
		if gifOut, err = os.Create(*gifFile); err != nil {
			return errors.WithStack(err)
		}
		defer gifOut.Close()
		conf.OutputEncoder = gif.NewEncoder(gifOut, 8)
		conf.Probe = samples[0].Input
	}

	trainer, err := convnet.NewTrainer(net, conf)
	if err != nil {
		return err
	}
	if _, err = trainer.Learn(samples); err != nil {
		trainer.Log(os.Stderr)
		return err
	}

	if *statsFile != "" {
		if err = trainer.Dump(*statsFile); err != nil {
			return errors.WithStack(err)
		}
	}
	if *outDir != "" {
		return writeOutputs(net, samples)
	}
	return nil
}

func loadSamples() ([]dataset.Sample, error) {
	if *dataDir == "" {
		return randomSamples()
	}
	var opts []imageio.DirOption
	if *resize {
		opts = append(opts, imageio.WithResize())
	}
	if *gray {
		opts = append(opts, imageio.WithGray())
	}
	src, err := imageio.NewDirSource(*dataDir, *height, *width, opts...)
	if err != nil {
		return nil, err
	}
	samples, err := dataset.Collect(src)
	for _, s := range src.Skipped() {
		log.Printf("skipped %s: not %d×%d", s, *width, *height)
	}
	return samples, err
}

// randomSamples generates blurry blobs, which an autoencoder can learn.
func randomSamples() ([]dataset.Sample, error) {
	const n = 32
	depth := 3
	if *gray {
		depth = 1
	}
	r := rand.New(rand.NewSource(*seed))
	h, w := *height, *width
	backing := make([]float32, n*depth*h*w)
	for i := 0; i < n; i++ {
		cy, cx := r.Float32()*float32(h), r.Float32()*float32(w)
		for c := 0; c < depth; c++ {
			level := 0.2 + 0.6*r.Float32()
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					dy, dx := float32(y)-cy, float32(x)-cx
					v := float32(0.1)
					if dy*dy+dx*dx < float32(h*w)/16 {
						v = level
					}
					backing[((i*depth+c)*h+y)*w+x] = v
				}
			}
		}
	}
	xs := tensor.New(tensor.WithBacking(backing), tensor.WithShape(n, depth, h, w))
	src, err := dataset.NewDenseSource(xs, nil)
	if err != nil {
		return nil, err
	}
	return dataset.Collect(src)
}

func writeOutputs(net *network.Network, samples []dataset.Sample) error {
	sink, err := imageio.NewPNGSink(*outDir)
	if err != nil {
		return err
	}
	var out *nd.Tensor
	for _, s := range samples {
		if out, err = net.FeedForward(s.Input); err != nil {
			return err
		}
		if err = sink.Write(out); err != nil {
			return err
		}
	}
	log.Printf("wrote %d images into %s", len(samples), sink.Dir())
	return nil
}
