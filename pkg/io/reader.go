// Package io provides input/output utilities for series ingestion.
package io

// Reader reads sample-per-row data from a source.
type Reader interface {
	// Read returns the complete dataset.
	Read() ([][]float64, error)

	// Close releases resources.
	Close() error
}

// SeriesReader reads a single univariate series from a source.
type SeriesReader interface {
	// ReadSeries returns the complete series.
	ReadSeries() ([]float64, error)

	// Close releases resources.
	Close() error
}

// Result represents the detection result for one sample.
type Result struct {
	Index     int     `json:"index" yaml:"index"`
	Value     float64 `json:"value" yaml:"value"`
	Score     float64 `json:"score" yaml:"score"`
	IsAnomaly bool    `json:"is_anomaly" yaml:"is_anomaly"`
}
