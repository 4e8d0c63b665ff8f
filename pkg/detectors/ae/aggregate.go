package ae

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/hed1ad/aedetect/pkg/preprocessing"
)

// subsequenceErrors returns the Euclidean norm of every row of errs.
func subsequenceErrors(errs *mat.Dense) []float64 {
	r, _ := errs.Dims()
	norms := make([]float64, r)
	for i := 0; i < r; i++ {
		norms[i] = floats.Norm(errs.RawRowView(i), 2)
	}
	return norms
}

// aggregateRolled maps the rolled error matrix back onto n samples.
//
// Cell (i, j) covers sample i+j with error errs[i][j] + subScale*subseq[i].
// Each sample keeps the largest value over all windows covering it; cells
// are visited row-major and only a strictly greater value replaces the
// current one.
func aggregateRolled(errs *mat.Dense, subseq []float64, n int, subScale float64) []float64 {
	scores := make([]float64, n)
	r, c := errs.Dims()
	for i := 0; i < r; i++ {
		row := errs.RawRowView(i)
		for j := 0; j < c; j++ {
			agg := row[j] + subScale*subseq[i]
			if idx := i + j; agg > scores[idx] {
				scores[idx] = agg
			}
		}
	}
	return scores
}

// aggregateUnrolled flattens a single-column error matrix.
func aggregateUnrolled(errs *mat.Dense) []float64 {
	r, _ := errs.Dims()
	scores := make([]float64, r)
	mat.Col(scores, 0, errs)
	return scores
}

// aggregate combines the reconstruction errors into one score per sample
// and min-max scales the result into [0, 1]. subseq is nil when the errors
// were computed on the unrolled series.
func aggregate(errs *mat.Dense, subseq []float64, n int, subScale float64) []float64 {
	var raw []float64
	if subseq != nil {
		raw = aggregateRolled(errs, subseq, n, subScale)
	} else {
		raw = aggregateUnrolled(errs)
	}
	return preprocessing.ScaleSlice(raw)
}
