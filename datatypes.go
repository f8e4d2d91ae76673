package convnet

import "github.com/gorgonia/convnet/nd"

// MetaState is the state of a training run, as seen by an OutputEncoder.
type MetaState interface {
	Name() string
	Epoch() int
	Error() float32     // average error of the last finished epoch
	Output() *nd.Tensor // network output for the probe input
}

// OutputEncoder encodes the entire meta state as whatever.
//
// An example OutputEncoder is the GIF encoder in encoding/gif. Another example would be a logger.
type OutputEncoder interface {
	Encode(ms MetaState) error
	Flush() error
}

// Observer receives progress notifications from a training run. EpochProgress and EpochDone are
// delivered on a separate goroutine and dropped while the observer is still busy with the previous
// one; AllDone is delivered exactly once, after every update, before Learn returns.
type Observer interface {
	EpochProgress(done, total int)
	EpochDone(epoch, totalEpochs int, avgErr float32)
	AllDone(totalEpochs int, finalErr float32)
}

// ObserverFuncs adapts plain functions to an Observer. Nil funcs are skipped.
type ObserverFuncs struct {
	Progress func(done, total int)
	Epoch    func(epoch, totalEpochs int, avgErr float32)
	Done     func(totalEpochs int, finalErr float32)
}

func (o ObserverFuncs) EpochProgress(done, total int) {
	if o.Progress != nil {
		o.Progress(done, total)
	}
}

func (o ObserverFuncs) EpochDone(epoch, totalEpochs int, avgErr float32) {
	if o.Epoch != nil {
		o.Epoch(epoch, totalEpochs, avgErr)
	}
}

func (o ObserverFuncs) AllDone(totalEpochs int, finalErr float32) {
	if o.Done != nil {
		o.Done(totalEpochs, finalErr)
	}
}
