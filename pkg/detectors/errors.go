package detectors

import "errors"

var (
	// ErrNotFitted is returned when scores are requested before Fit.
	ErrNotFitted = errors.New("detector not fitted: call Fit before Score")

	// ErrUnsupportedShape is returned for input that is not a univariate series.
	ErrUnsupportedShape = errors.New("unsupported shape: only univariate time series is supported")

	// ErrEmptySeries is returned when Fit receives no samples.
	ErrEmptySeries = errors.New("empty series")

	// ErrInvalidValue is returned when a sample is NaN or infinite.
	ErrInvalidValue = errors.New("invalid value: samples must be finite")

	// ErrEmptyRolled is returned when the window length exceeds the series length.
	ErrEmptyRolled = errors.New("rolled array is empty: roll length must not exceed the series length")

	// ErrInvalidConfig is returned for out-of-range configuration values.
	ErrInvalidConfig = errors.New("invalid configuration")
)
