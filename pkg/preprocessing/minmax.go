// Package preprocessing provides feature scaling for detector inputs and outputs.
package preprocessing

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrEmptyData is returned when fitting on a matrix with no rows or columns.
	ErrEmptyData = errors.New("empty data")
	// ErrNotFitted is returned when transforming before Fit.
	ErrNotFitted = errors.New("scaler not fitted")
	// ErrDimensionMismatch is returned when the column count differs from Fit.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// MinMaxScaler rescales every column linearly into [0, 1] using the
// column's own minimum and maximum.
//
// A constant column has no range; every value in it maps to 0.
type MinMaxScaler struct {
	Min   []float64
	Range []float64

	fitted bool
}

// NewMinMaxScaler creates an unfitted scaler.
func NewMinMaxScaler() *MinMaxScaler {
	return &MinMaxScaler{}
}

// Fit records the per-column minimum and range of X.
func (s *MinMaxScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return ErrEmptyData
	}

	s.Min = make([]float64, c)
	s.Range = make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		lo, hi := floats.Min(col), floats.Max(col)
		s.Min[j] = lo
		s.Range[j] = hi - lo
	}
	s.fitted = true

	return nil
}

// Transform scales X with the fitted statistics.
func (s *MinMaxScaler) Transform(X mat.Matrix) (*mat.Dense, error) {
	if !s.fitted {
		return nil, ErrNotFitted
	}
	r, c := X.Dims()
	if r == 0 {
		return nil, ErrEmptyData
	}
	if c != len(s.Min) {
		return nil, fmt.Errorf("%w: expected %d columns, got %d", ErrDimensionMismatch, len(s.Min), c)
	}

	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, j int, v float64) float64 {
		if s.Range[j] == 0 {
			return 0
		}
		return (v - s.Min[j]) / s.Range[j]
	}, X)

	return out, nil
}

// FitTransform fits the scaler on X and returns the scaled copy.
func (s *MinMaxScaler) FitTransform(X mat.Matrix) (*mat.Dense, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform maps scaled values back to the original range.
// Constant columns come back as their original constant.
func (s *MinMaxScaler) InverseTransform(X mat.Matrix) (*mat.Dense, error) {
	if !s.fitted {
		return nil, ErrNotFitted
	}
	r, c := X.Dims()
	if r == 0 {
		return nil, ErrEmptyData
	}
	if c != len(s.Min) {
		return nil, fmt.Errorf("%w: expected %d columns, got %d", ErrDimensionMismatch, len(s.Min), c)
	}

	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, j int, v float64) float64 {
		return v*s.Range[j] + s.Min[j]
	}, X)

	return out, nil
}

// ScaleSlice min-max scales a single column of values into [0, 1].
// An empty input returns an empty slice.
func ScaleSlice(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	lo, hi := floats.Min(values), floats.Max(values)
	span := hi - lo
	if span == 0 {
		return out
	}
	for i, v := range values {
		out[i] = (v - lo) / span
	}

	return out
}
