// Package convnet trains networks built from the layers package with mini-batch stochastic gradient
// descent on the mean squared error.
package convnet

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"math/rand"
	"time"

	"github.com/chewxy/math32"
	"github.com/gorgonia/convnet/dataset"
	"github.com/gorgonia/convnet/network"
	"github.com/gorgonia/convnet/nd"
	"github.com/pkg/errors"
)

// ErrDiverged is returned when the average error of an epoch stops being a finite number.
var ErrDiverged = errors.New("training diverged")

// Trainer is the entry point of a training run. It owns the network for the duration of Learn.
type Trainer struct {
	Statistics

	net  *network.Network
	conf Config
	r    *rand.Rand

	buf    bytes.Buffer
	logger *log.Logger

	// state
	epoch  int
	err    float32
	output *nd.Tensor
}

// NewTrainer creates a trainer for a built network.
func NewTrainer(net *network.Network, conf Config) (*Trainer, error) {
	if net == nil {
		return nil, errors.New("nil network")
	}
	if !conf.IsValid() {
		return nil, errors.Errorf("invalid training config %+v", conf)
	}
	if len(net.Layers()) == 0 {
		return nil, errors.New("network is not built")
	}
	retVal := &Trainer{
		Statistics: makeStatistics(),
		net:        net,
		conf:       conf,
		r:          rand.New(rand.NewSource(conf.Seed)),
	}
	retVal.logger = log.New(&retVal.buf, "", log.Ltime)
	return retVal, nil
}

// WithLogger replaces the execution logger, which by default writes into a buffer read with Log.
func (t *Trainer) WithLogger(l *log.Logger) *Trainer {
	t.logger = l
	return t
}

func (t *Trainer) Name() string       { return t.conf.Name }
func (t *Trainer) Epoch() int         { return t.epoch }
func (t *Trainer) Error() float32     { return t.err }
func (t *Trainer) Output() *nd.Tensor { return t.output }

// Log writes the execution log into w.
func (t *Trainer) Log(w io.Writer) {
	fmt.Fprint(w, t.buf.String())
}

// LearnFrom drains src and learns from the samples.
func (t *Trainer) LearnFrom(src dataset.Source) (float32, error) {
	samples, err := dataset.Collect(src)
	if err != nil {
		return 0, err
	}
	return t.Learn(samples)
}

// Learn trains the network on samples for up to Epochs epochs, stopping early once the average error
// of an epoch drops below ErrorThreshold. It returns the average error of the last epoch.
//
// Any error aborts the run.
func (t *Trainer) Learn(samples []dataset.Sample) (float32, error) {
	if len(samples) == 0 {
		return 0, errors.New("no samples to learn from")
	}
	samples = dataset.Augment(samples, t.conf.Augmenter)
	if err := dataset.Validate(samples, t.net.InputShape(), t.net.OutputShape()); err != nil {
		return 0, err
	}
	probe := t.conf.Probe
	if probe == nil {
		probe = samples[0].Input
	}

	order := make([]int, len(samples))
	for i := range order {
		order[i] = i
	}

	n := newNotifier(t.conf.Observer)
	total := len(samples)
	epochs := t.conf.Epochs
	lr := t.conf.LearningRate

	for t.epoch = 0; t.epoch < epochs; t.epoch++ {
		start := time.Now()
		t.shuffle(order)

		t.logger.Printf("Epoch %d of %d. %d samples, batches of %d", t.epoch, epochs, total, t.conf.BatchSize)
		t.logger.SetPrefix("\t")

		var sum float32
		var updates, pending int
		for i, idx := range order {
			s := samples[idx]
			e, err := t.net.Learn(s.Input, s.Target, lr)
			if err != nil {
				n.wait()
				return 0, errors.WithMessagef(err, "epoch %d, sample %d", t.epoch, idx)
			}
			sum += e
			pending++
			if pending == t.conf.BatchSize {
				t.net.UpdateParameters()
				updates++
				pending = 0
			}

			done := i + 1
			n.tryNotify(func(o Observer) { o.EpochProgress(done, total) })
		}
		if pending > 0 {
			t.net.UpdateParameters()
			updates++
		}

		avg := sum / float32(total)
		t.err = avg
		t.update(avg, updates, time.Since(start))
		t.logger.Printf("Average error %v after %d updates in %v", avg, updates, time.Since(start))
		t.logger.SetPrefix("")

		if math32.IsNaN(avg) || math32.IsInf(avg, 0) {
			n.wait()
			return avg, errors.Wrapf(ErrDiverged, "epoch %d", t.epoch)
		}

		epoch := t.epoch
		n.tryNotify(func(o Observer) { o.EpochDone(epoch, epochs, avg) })

		if err := t.encode(probe); err != nil {
			n.wait()
			return avg, err
		}

		if t.conf.ErrorThreshold > 0 && avg < t.conf.ErrorThreshold {
			t.logger.Printf("Average error %v is below the threshold %v. Stopping", avg, t.conf.ErrorThreshold)
			t.epoch++
			break
		}
	}

	if t.conf.OutputEncoder != nil {
		if err := t.conf.OutputEncoder.Flush(); err != nil {
			n.wait()
			return t.err, errors.WithMessage(err, "flushing output encoder")
		}
	}
	n.finish(t.epoch, t.err)
	return t.err, nil
}

func (t *Trainer) encode(probe *nd.Tensor) error {
	if t.conf.OutputEncoder == nil {
		return nil
	}
	out, err := t.net.FeedForward(probe)
	if err != nil {
		return errors.WithMessage(err, "probe")
	}
	t.output = out.Clone()
	return errors.WithMessage(t.conf.OutputEncoder.Encode(t), "encoding output")
}

func (t *Trainer) shuffle(order []int) {
	for i := range order {
		j := t.r.Intn(i + 1)
		order[i], order[j] = order[j], order[i]
	}
}
