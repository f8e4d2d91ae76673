package convnet

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

// Statistics records the course of a training run, one entry per epoch.
type Statistics struct {
	Errors    []float32       // average error of every epoch
	Updates   []int           // parameter updates applied in every epoch
	Durations []time.Duration // wall time of every epoch
}

func makeStatistics() Statistics {
	return Statistics{
		Errors:    make([]float32, 0, 64),
		Updates:   make([]int, 0, 64),
		Durations: make([]time.Duration, 0, 64),
	}
}

func (s *Statistics) update(avgErr float32, updates int, d time.Duration) {
	s.Errors = append(s.Errors, avgErr)
	s.Updates = append(s.Updates, updates)
	s.Durations = append(s.Durations, d)
}

// Dump writes the statistics into filename as CSV.
func (s *Statistics) Dump(filename string) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write([]string{"epoch", "error", "updates", "seconds"}); err != nil {
		return err
	}
	records := make([][]string, 0, len(s.Errors))
	for i, e := range s.Errors {
		records = append(records, []string{
			strconv.Itoa(i),
			strconv.FormatFloat(float64(e), 'f', 6, 32),
			strconv.Itoa(s.Updates[i]),
			strconv.FormatFloat(s.Durations[i].Seconds(), 'f', 3, 64),
		})
	}
	if err := w.WriteAll(records); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
