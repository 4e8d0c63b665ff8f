// Package nn defines the reconstruction model contract used by the detectors.
package nn

import "gonum.org/v1/gonum/mat"

// Model is a trainable reconstruction model.
//
// Fit is called with x == y for autoencoding; Predict returns a matrix of
// the same shape as its input. Fit blocks until training completes.
type Model interface {
	Fit(x, y *mat.Dense) error
	Predict(x *mat.Dense) (*mat.Dense, error)
}

// Factory builds an untrained model for rows of the given width.
type Factory func(inputDim int) (Model, error)
