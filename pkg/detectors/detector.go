// Package detectors provides unsupervised anomaly detection for univariate time series.
package detectors

import "fmt"

// SeriesDetector is the common interface for univariate series detectors.
//
// Implementations are not safe for concurrent Fit/Score calls on the same
// instance; callers must synchronize externally.
type SeriesDetector interface {
	// Fit trains the detector on a single numeric sequence.
	Fit(series []float64) error

	// Score returns one anomaly score per sample of the fitted series.
	// Scores are normalized to [0, 1] where higher values indicate anomalies.
	Score() ([]float64, error)

	// AnomalyIndexes returns the indexes of the most anomalous samples,
	// ascending by score.
	AnomalyIndexes() ([]int, error)
}

// Score represents the detection result for one sample.
type Score struct {
	// Index is the position of the sample in the fitted series.
	Index int
	// Value is the original sample value.
	Value float64
	// Score is the anomaly score in [0, 1].
	Score float64
	// IsAnomaly indicates the sample is among the top-ratio anomalies.
	IsAnomaly bool
}

// Config holds the configuration shared by reconstruction-error detectors.
type Config struct {
	// RollLen is the subsequence window length. 0 disables windowing.
	RollLen int `mapstructure:"roll_len" yaml:"roll_len"`
	// Ratio is the fraction of samples reported as anomalous.
	Ratio float64 `mapstructure:"ratio" yaml:"ratio"`
	// CompressRate sets the bottleneck width as a fraction of the input width.
	CompressRate float64 `mapstructure:"compress_rate" yaml:"compress_rate"`
	// BatchSize is the training mini-batch size.
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`
	// Epochs is the number of training passes.
	Epochs int `mapstructure:"epochs" yaml:"epochs"`
	// Verbose enables training progress logs when > 0.
	Verbose int `mapstructure:"verbose" yaml:"verbose"`
	// SubScaleF weights the subsequence error in the aggregated score.
	SubScaleF float64 `mapstructure:"sub_scalef" yaml:"sub_scalef"`
	// RandomSeed for reproducibility.
	RandomSeed int64 `mapstructure:"seed" yaml:"seed"`
}

// DefaultConfig returns sensible defaults for detector configuration.
func DefaultConfig() Config {
	return Config{
		RollLen:      24,
		Ratio:        0.1,
		CompressRate: 0.8,
		BatchSize:    100,
		Epochs:       200,
		Verbose:      0,
		SubScaleF:    1,
		RandomSeed:   42,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.RollLen < 0:
		return fmt.Errorf("%w: roll_len must be >= 0, got %d", ErrInvalidConfig, c.RollLen)
	case c.Ratio < 0 || c.Ratio > 1:
		return fmt.Errorf("%w: ratio must be in [0, 1], got %g", ErrInvalidConfig, c.Ratio)
	case c.CompressRate <= 0 || c.CompressRate > 1:
		return fmt.Errorf("%w: compress_rate must be in (0, 1], got %g", ErrInvalidConfig, c.CompressRate)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch_size must be > 0, got %d", ErrInvalidConfig, c.BatchSize)
	case c.Epochs <= 0:
		return fmt.Errorf("%w: epochs must be > 0, got %d", ErrInvalidConfig, c.Epochs)
	}
	return nil
}
