package ae

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/hed1ad/aedetect/pkg/detectors"
)

// Roll turns series into overlapping subsequences of length w.
// Row i of the result is a copy of series[i : i+w], giving L-w+1 rows.
func Roll(series []float64, w int) (*mat.Dense, error) {
	if w <= 0 {
		return nil, fmt.Errorf("%w: roll length must be > 0, got %d", detectors.ErrInvalidConfig, w)
	}
	if w > len(series) {
		return nil, fmt.Errorf("%w: roll length %d, series length %d", detectors.ErrEmptyRolled, w, len(series))
	}

	rows := len(series) - w + 1
	rolled := mat.NewDense(rows, w, nil)
	for i := 0; i < rows; i++ {
		rolled.SetRow(i, series[i:i+w])
	}

	return rolled, nil
}
