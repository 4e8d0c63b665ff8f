// Package ae implements anomaly detection on univariate time series from
// autoencoder reconstruction error.
//
// The series is optionally rolled into overlapping subsequences, min-max
// scaled and reconstructed by a trainable model. Each sample is scored by its
// reconstruction error; when rolled, the score of a sample is the worst
// point-plus-subsequence error over every window that covers it.
//
// A Detector is not safe for concurrent use. Callers that share one across
// goroutines must serialize Fit, Score and AnomalyIndexes themselves.
package ae

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/hed1ad/aedetect/pkg/detectors"
	"github.com/hed1ad/aedetect/pkg/nn"
	"github.com/hed1ad/aedetect/pkg/nn/autoencoder"
	"github.com/hed1ad/aedetect/pkg/preprocessing"
)

var _ detectors.SeriesDetector = (*Detector)(nil)

// State is the lifecycle state of a Detector.
type State int

const (
	// StateUnfit means Fit has not completed successfully yet.
	StateUnfit State = iota
	// StateFitted means reconstruction errors are available.
	StateFitted
)

func (s State) String() string {
	switch s {
	case StateUnfit:
		return "unfit"
	case StateFitted:
		return "fitted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Detector scores samples of a series by autoencoder reconstruction error.
type Detector struct {
	// Configuration
	cfg     detectors.Config
	factory nn.Factory
	logger  *zap.Logger

	// Fitted state
	state     State
	series    []float64
	reconErr  *mat.Dense
	subseqErr []float64
	score     []float64
}

// Option configures a Detector.
type Option func(*Detector)

// WithConfig replaces the whole configuration.
func WithConfig(cfg detectors.Config) Option {
	return func(d *Detector) {
		d.cfg = cfg
	}
}

// WithRollLen sets the subsequence length. 0 disables windowing.
func WithRollLen(n int) Option {
	return func(d *Detector) {
		d.cfg.RollLen = n
	}
}

// WithRatio sets the fraction of samples reported as anomalous.
func WithRatio(r float64) Option {
	return func(d *Detector) {
		d.cfg.Ratio = r
	}
}

// WithCompressRate sets the autoencoder bottleneck fraction.
func WithCompressRate(r float64) Option {
	return func(d *Detector) {
		d.cfg.CompressRate = r
	}
}

// WithBatchSize sets the training batch size.
func WithBatchSize(n int) Option {
	return func(d *Detector) {
		d.cfg.BatchSize = n
	}
}

// WithEpochs sets the number of training epochs.
func WithEpochs(n int) Option {
	return func(d *Detector) {
		d.cfg.Epochs = n
	}
}

// WithVerbose enables training progress logs.
func WithVerbose(v int) Option {
	return func(d *Detector) {
		d.cfg.Verbose = v
	}
}

// WithSubScaleF sets the weight of the subsequence error.
func WithSubScaleF(f float64) Option {
	return func(d *Detector) {
		d.cfg.SubScaleF = f
	}
}

// WithSeed sets the random seed passed to the default model.
func WithSeed(seed int64) Option {
	return func(d *Detector) {
		d.cfg.RandomSeed = seed
	}
}

// WithModelFactory replaces the default autoencoder backend.
func WithModelFactory(f nn.Factory) Option {
	return func(d *Detector) {
		d.factory = f
	}
}

// WithLogger sets the logger for fit lifecycle and training progress.
func WithLogger(l *zap.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates an unfit Detector with the given options.
func New(opts ...Option) *Detector {
	d := &Detector{
		cfg:    detectors.DefaultConfig(),
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Config returns the detector configuration.
func (d *Detector) Config() detectors.Config {
	return d.cfg
}

// State returns the lifecycle state.
func (d *Detector) State() State {
	return d.state
}

// FitSamples fits on a sample-per-row layout such as the output of a
// goio.Reader. Every row must hold exactly one value; wider rows make the
// input multivariate and are rejected. It is a library entry point; the
// aedetect CLI reads a single column and calls Fit.
func (d *Detector) FitSamples(data [][]float64) error {
	series := make([]float64, len(data))
	for i, row := range data {
		if len(row) != 1 {
			return fmt.Errorf("%w: row %d has %d columns", detectors.ErrUnsupportedShape, i, len(row))
		}
		series[i] = row[0]
	}
	return d.Fit(series)
}

// Fit trains a fresh reconstruction model on series and records the
// reconstruction errors. On error the previous fitted state is kept.
func (d *Detector) Fit(series []float64) error {
	if err := d.cfg.Validate(); err != nil {
		return err
	}
	if len(series) == 0 {
		return detectors.ErrEmptySeries
	}
	for i, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: sample %d is %v", detectors.ErrInvalidValue, i, v)
		}
	}

	owned := make([]float64, len(series))
	copy(owned, series)

	var x *mat.Dense
	if d.cfg.RollLen != 0 {
		rolled, err := Roll(owned, d.cfg.RollLen)
		if err != nil {
			return err
		}
		x = rolled
	} else {
		x = mat.NewDense(len(owned), 1, append([]float64(nil), owned...))
	}

	x, err := preprocessing.NewMinMaxScaler().FitTransform(x)
	if err != nil {
		return fmt.Errorf("scale input: %w", err)
	}

	rows, cols := x.Dims()
	d.logger.Debug("fitting reconstruction model",
		zap.Int("series_len", len(owned)),
		zap.Int("roll_len", d.cfg.RollLen),
		zap.Int("rows", rows),
		zap.Int("cols", cols),
	)

	model, err := d.modelFactory()(cols)
	if err != nil {
		return fmt.Errorf("build model: %w", err)
	}
	if err := model.Fit(x, x); err != nil {
		return fmt.Errorf("fit model: %w", err)
	}
	pred, err := model.Predict(x)
	if err != nil {
		return fmt.Errorf("predict: %w", err)
	}
	if pr, pc := pred.Dims(); pr != rows || pc != cols {
		return fmt.Errorf("predict: reconstruction shape (%d, %d) does not match input (%d, %d)", pr, pc, rows, cols)
	}

	reconErr := &mat.Dense{}
	reconErr.Sub(x, pred)
	reconErr.Apply(func(_, _ int, v float64) float64 {
		if v < 0 {
			return -v
		}
		return v
	}, reconErr)

	var subseqErr []float64
	if d.cfg.RollLen != 0 {
		subseqErr = subsequenceErrors(reconErr)
	}

	d.series = owned
	d.reconErr = reconErr
	d.subseqErr = subseqErr
	d.score = nil
	d.state = StateFitted

	d.logger.Debug("reconstruction model fitted", zap.Int("series_len", len(owned)))

	return nil
}

func (d *Detector) modelFactory() nn.Factory {
	if d.factory != nil {
		return d.factory
	}
	return autoencoder.NewFactory(
		autoencoder.WithCompressRate(d.cfg.CompressRate),
		autoencoder.WithBatchSize(d.cfg.BatchSize),
		autoencoder.WithEpochs(d.cfg.Epochs),
		autoencoder.WithVerbose(d.cfg.Verbose),
		autoencoder.WithSeed(d.cfg.RandomSeed),
		autoencoder.WithLogger(d.logger),
	)
}

// Score returns the anomaly score of every sample, scaled into [0, 1].
// The scores are computed once per Fit.
func (d *Detector) Score() ([]float64, error) {
	if d.state != StateFitted {
		return nil, detectors.ErrNotFitted
	}

	if d.score == nil {
		d.score = aggregate(d.reconErr, d.subseqErr, len(d.series), d.cfg.SubScaleF)
	}

	out := make([]float64, len(d.score))
	copy(out, d.score)
	return out, nil
}

// AnomalyIndexes returns the indexes of the floor(L*ratio) highest-scoring
// samples, ascending by score; the most anomalous sample is last.
func (d *Detector) AnomalyIndexes() ([]int, error) {
	scores, err := d.Score()
	if err != nil {
		return nil, err
	}
	return rank(scores, d.cfg.Ratio), nil
}

// Scores returns one record per sample with the anomaly flag set for the
// samples returned by AnomalyIndexes.
func (d *Detector) Scores() ([]detectors.Score, error) {
	scores, err := d.Score()
	if err != nil {
		return nil, err
	}

	out := make([]detectors.Score, len(scores))
	for i, s := range scores {
		out[i] = detectors.Score{Index: i, Value: d.series[i], Score: s}
	}
	for _, idx := range rank(scores, d.cfg.Ratio) {
		out[idx].IsAnomaly = true
	}

	return out, nil
}

// ReconstructionError returns a copy of the absolute reconstruction error
// matrix, or nil before Fit.
func (d *Detector) ReconstructionError() *mat.Dense {
	if d.reconErr == nil {
		return nil
	}
	return mat.DenseCopyOf(d.reconErr)
}

// SubsequenceError returns a copy of the per-window error norms, or nil
// before Fit or when windowing is disabled.
func (d *Detector) SubsequenceError() []float64 {
	if d.subseqErr == nil {
		return nil
	}
	return append([]float64(nil), d.subseqErr...)
}
