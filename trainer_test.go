package convnet

import (
	"bytes"
	"io/ioutil"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gorgonia/convnet/dataset"
	"github.com/gorgonia/convnet/layers"
	"github.com/gorgonia/convnet/network"
	"github.com/gorgonia/convnet/nd"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	sync.Mutex
	progress []int
	epochs   []int
	errs     []float32
	done     int
	final    float32
	total    int
}

func (r *recorder) EpochProgress(done, total int) {
	r.Lock()
	r.progress = append(r.progress, done)
	r.Unlock()
}

func (r *recorder) EpochDone(epoch, totalEpochs int, avgErr float32) {
	r.Lock()
	r.epochs = append(r.epochs, epoch)
	r.errs = append(r.errs, avgErr)
	r.Unlock()
}

func (r *recorder) AllDone(totalEpochs int, finalErr float32) {
	r.Lock()
	r.done++
	r.total = totalEpochs
	r.final = finalErr
	r.Unlock()
}

type encoderCounter struct {
	epochs  []int
	errs    []float32
	shapes  []nd.Shape
	flushed int
}

func (e *encoderCounter) Encode(ms MetaState) error {
	e.epochs = append(e.epochs, ms.Epoch())
	e.errs = append(e.errs, ms.Error())
	e.shapes = append(e.shapes, ms.Output().Shape())
	return nil
}

func (e *encoderCounter) Flush() error {
	e.flushed++
	return nil
}

func quiet() *log.Logger { return log.New(ioutil.Discard, "", 0) }

func tinyNet(t *testing.T) *network.Network {
	n := network.New(layers.Conv(2, 3, 3, 1), layers.Sigmoid(), layers.Conv(1, 3, 3, 1), layers.Sigmoid())
	n.SetSeed(42)
	require.NoError(t, n.Build(nd.Shape{Depth: 1, Height: 4, Width: 4}))
	return n
}

func tinySamples(n int) []dataset.Sample {
	r := rand.New(rand.NewSource(1))
	samples := make([]dataset.Sample, n)
	for i := range samples {
		in := nd.NewTensor(1, 4, 4)
		for j := range in.Data() {
			in.Data()[j] = 0.2 + 0.6*r.Float32()
		}
		samples[i] = dataset.Sample{Input: in, Target: in}
	}
	return samples
}

func TestConfig(t *testing.T) {
	assert := assert.New(t)
	conf := DefaultConfig()
	assert.True(conf.IsValid())

	bad := conf
	bad.BatchSize = 0
	assert.False(bad.IsValid())
	bad = conf
	bad.LearningRate = 0
	assert.False(bad.IsValid())
	bad = conf
	bad.Epochs = 0
	assert.False(bad.IsValid())

	_, err := NewTrainer(network.New(layers.Sigmoid()), conf)
	assert.Error(err, "unbuilt network")
	_, err = NewTrainer(tinyNet(t), bad)
	assert.Error(err)
	_, err = NewTrainer(nil, conf)
	assert.Error(err)
}

func TestLearn(t *testing.T) {
	assert := assert.New(t)
	rec := new(recorder)
	enc := new(encoderCounter)

	conf := DefaultConfig()
	conf.Epochs = 20
	conf.BatchSize = 2
	conf.LearningRate = 0.5
	conf.Observer = rec
	conf.OutputEncoder = enc

	net := tinyNet(t)
	tr, err := NewTrainer(net, conf)
	require.NoError(t, err)

	samples := tinySamples(5)
	final, err := tr.Learn(samples)
	require.NoError(t, err)

	assert.Len(tr.Errors, conf.Epochs)
	assert.Equal(final, tr.Errors[len(tr.Errors)-1])
	assert.Less(tr.Errors[len(tr.Errors)-1], tr.Errors[0])
	for _, u := range tr.Updates {
		assert.Equal(3, u, "two full batches and a partial one")
	}

	rec.Lock()
	assert.Equal(1, rec.done)
	assert.Equal(conf.Epochs, rec.total)
	assert.Equal(final, rec.final)
	assert.True(len(rec.epochs) <= conf.Epochs)
	for _, p := range rec.progress {
		assert.True(p >= 1 && p <= len(samples))
	}
	rec.Unlock()

	assert.Len(enc.epochs, conf.Epochs)
	assert.Equal(0, enc.epochs[0])
	assert.Equal(tr.Errors, enc.errs)
	assert.Equal(nd.Shape{Depth: 1, Height: 4, Width: 4}, enc.shapes[0])
	assert.Equal(1, enc.flushed)

	var buf bytes.Buffer
	tr.Log(&buf)
	assert.Contains(buf.String(), "Epoch 19 of 20")
	assert.Contains(buf.String(), "Average error")
}

func TestLearnThreshold(t *testing.T) {
	rec := new(recorder)
	conf := DefaultConfig()
	conf.Epochs = 50
	conf.ErrorThreshold = 10 // any error is below this
	conf.Observer = rec

	tr, err := NewTrainer(tinyNet(t), conf)
	require.NoError(t, err)
	var logged bytes.Buffer
	tr.WithLogger(log.New(&logged, "", 0))

	_, err = tr.Learn(tinySamples(3))
	require.NoError(t, err)
	assert.Len(t, tr.Errors, 1)
	assert.Equal(t, 1, tr.Epoch())
	assert.Contains(t, logged.String(), "below the threshold")

	rec.Lock()
	defer rec.Unlock()
	assert.Equal(t, 1, rec.done)
	assert.Equal(t, 1, rec.total)
}

func TestLearnErrors(t *testing.T) {
	assert := assert.New(t)
	rec := new(recorder)
	conf := DefaultConfig()
	conf.Observer = rec
	tr, err := NewTrainer(tinyNet(t), conf)
	require.NoError(t, err)
	tr.WithLogger(quiet())

	_, err = tr.Learn(nil)
	assert.Error(err)

	samples := tinySamples(2)
	samples[1].Target = nd.NewTensor(1, 2, 2)
	_, err = tr.Learn(samples)
	assert.True(errors.Is(err, nd.ErrShapeMismatch), "%v", err)

	rec.Lock()
	assert.Zero(rec.done, "a failed run is not done")
	rec.Unlock()
}

func TestLearnAugmented(t *testing.T) {
	conf := DefaultConfig()
	conf.Epochs = 1
	conf.BatchSize = 4
	conf.Augmenter = dataset.Rotations
	tr, err := NewTrainer(tinyNet(t), conf)
	require.NoError(t, err)
	tr.WithLogger(quiet())

	_, err = tr.LearnFrom(dataset.NewSliceSource(tinySamples(3)...))
	require.NoError(t, err)
	assert.Equal(t, []int{3}, tr.Updates, "12 samples in batches of 4")
}

func TestStatisticsDump(t *testing.T) {
	dir, err := ioutil.TempDir("", "convnet")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	s := makeStatistics()
	s.update(0.5, 3, 0)
	s.update(0.25, 3, 0)
	filename := filepath.Join(dir, "stats.csv")
	require.NoError(t, s.Dump(filename))

	b, err := ioutil.ReadFile(filename)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	assert.Equal(t, []string{"epoch,error,updates,seconds", "0,0.500000,3,0.000", "1,0.250000,3,0.000"}, lines)
}
