package convnet

import (
	"github.com/gorgonia/convnet/dataset"
	"github.com/gorgonia/convnet/nd"
)

// Config configures a training run.
type Config struct {
	Name           string
	Epochs         int     // maximum number of passes over the samples
	BatchSize      int     // samples per parameter update
	LearningRate   float32 // scale of every per-sample gradient
	ErrorThreshold float32 // stop once the average epoch error is below this. 0 disables it
	Seed           int64   // seeds the sample shuffling

	// extensions
	Observer      Observer
	OutputEncoder OutputEncoder
	Probe         *nd.Tensor // input whose output is handed to OutputEncoder every epoch
	Augmenter     dataset.Augmenter
}

// DefaultConfig returns a config for a short training run.
func DefaultConfig() Config {
	return Config{
		Name:         "convnet",
		Epochs:       10,
		BatchSize:    8,
		LearningRate: 0.05,
		Seed:         1337,
	}
}

func (conf Config) IsValid() bool {
	return conf.Epochs >= 1 &&
		conf.BatchSize >= 1 &&
		conf.LearningRate > 0 &&
		conf.ErrorThreshold >= 0
}
