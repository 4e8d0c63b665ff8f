package ae

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/hed1ad/aedetect/pkg/detectors"
	"github.com/hed1ad/aedetect/pkg/nn"
)

// meanModel reconstructs every row as the column means seen during Fit.
type meanModel struct {
	means []float64
}

func (m *meanModel) Fit(x, _ *mat.Dense) error {
	r, c := x.Dims()
	m.means = make([]float64, c)
	for j := 0; j < c; j++ {
		m.means[j] = mat.Sum(x.ColView(j)) / float64(r)
	}
	return nil
}

func (m *meanModel) Predict(x *mat.Dense) (*mat.Dense, error) {
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		out.SetRow(i, m.means)
	}
	return out, nil
}

type failingModel struct{ err error }

func (m failingModel) Fit(_, _ *mat.Dense) error { return m.err }

func (m failingModel) Predict(x *mat.Dense) (*mat.Dense, error) { return nil, m.err }

func meanFactory(int) (nn.Model, error) { return &meanModel{}, nil }

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		opts        []Option
		wantRollLen int
		wantRatio   float64
	}{
		{
			name:        "default configuration",
			wantRollLen: 24,
			wantRatio:   0.1,
		},
		{
			name:        "windowing disabled",
			opts:        []Option{WithRollLen(0)},
			wantRollLen: 0,
			wantRatio:   0.1,
		},
		{
			name:        "multiple options",
			opts:        []Option{WithRollLen(12), WithRatio(0.05), WithSeed(1)},
			wantRollLen: 12,
			wantRatio:   0.05,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(tt.opts...)
			assert.Equal(t, tt.wantRollLen, d.Config().RollLen)
			assert.Equal(t, tt.wantRatio, d.Config().Ratio)
			assert.Equal(t, StateUnfit, d.State())
		})
	}
}

func TestUnfitDetector(t *testing.T) {
	d := New()

	_, err := d.Score()
	assert.ErrorIs(t, err, detectors.ErrNotFitted)

	_, err = d.AnomalyIndexes()
	assert.ErrorIs(t, err, detectors.ErrNotFitted)

	_, err = d.Scores()
	assert.ErrorIs(t, err, detectors.ErrNotFitted)

	assert.Nil(t, d.ReconstructionError())
	assert.Nil(t, d.SubsequenceError())
}

func TestFitValidation(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		series  []float64
		wantErr error
	}{
		{
			name:    "empty series",
			series:  []float64{},
			wantErr: detectors.ErrEmptySeries,
		},
		{
			name:    "roll longer than series",
			opts:    []Option{WithRollLen(24)},
			series:  generateSeries(10),
			wantErr: detectors.ErrEmptyRolled,
		},
		{
			name:    "invalid ratio",
			opts:    []Option{WithRatio(2)},
			series:  generateSeries(50),
			wantErr: detectors.ErrInvalidConfig,
		},
		{
			name:    "negative roll",
			opts:    []Option{WithRollLen(-3)},
			series:  generateSeries(50),
			wantErr: detectors.ErrInvalidConfig,
		},
		{
			name:    "nan sample",
			series:  withSample(generateSeries(50), 5, math.NaN()),
			wantErr: detectors.ErrInvalidValue,
		},
		{
			name:    "positive infinity rolled",
			opts:    []Option{WithRollLen(4)},
			series:  withSample(generateSeries(50), 5, math.Inf(1)),
			wantErr: detectors.ErrInvalidValue,
		},
		{
			name:    "negative infinity unrolled",
			opts:    []Option{WithRollLen(0)},
			series:  withSample(generateSeries(50), 49, math.Inf(-1)),
			wantErr: detectors.ErrInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]Option{WithModelFactory(meanFactory)}, tt.opts...)
			d := New(opts...)

			err := d.Fit(tt.series)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, StateUnfit, d.State())
		})
	}
}

func TestFitSamples(t *testing.T) {
	t.Run("multivariate input rejected", func(t *testing.T) {
		d := New(WithModelFactory(meanFactory), WithRollLen(0))
		err := d.FitSamples([][]float64{{1, 2}, {3, 4}})

		assert.ErrorIs(t, err, detectors.ErrUnsupportedShape)
		assert.Equal(t, StateUnfit, d.State())
	})

	t.Run("single column accepted", func(t *testing.T) {
		d := New(WithModelFactory(meanFactory), WithRollLen(0))
		require.NoError(t, d.FitSamples([][]float64{{1}, {2}, {9}, {3}}))

		scores, err := d.Score()
		require.NoError(t, err)
		assert.Len(t, scores, 4)
	})
}

func TestScoreUnrolled(t *testing.T) {
	series := generateSeries(100)
	d := New(WithModelFactory(meanFactory), WithRollLen(0))
	require.NoError(t, d.Fit(series))

	scores, err := d.Score()
	require.NoError(t, err)
	assert.Len(t, scores, len(series))
	for _, s := range scores {
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}

	assert.Nil(t, d.SubsequenceError())
	r, c := d.ReconstructionError().Dims()
	assert.Equal(t, 100, r)
	assert.Equal(t, 1, c)
}

func TestScoreIdempotent(t *testing.T) {
	d := New(WithModelFactory(meanFactory), WithRollLen(8))
	require.NoError(t, d.Fit(generateSeries(60)))

	first, err := d.Score()
	require.NoError(t, err)
	second, err := d.Score()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Callers own the returned slice.
	first[0] = 42
	third, err := d.Score()
	require.NoError(t, err)
	assert.Equal(t, second, third)
}

func TestSpikeRanksLast(t *testing.T) {
	series := make([]float64, 60)
	series[30] = 10

	tests := []struct {
		name    string
		rollLen int
	}{
		{name: "unrolled", rollLen: 0},
		{name: "rolled", rollLen: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(WithModelFactory(meanFactory), WithRollLen(tt.rollLen), WithRatio(0.1))
			require.NoError(t, d.Fit(series))

			idx, err := d.AnomalyIndexes()
			require.NoError(t, err)
			require.Len(t, idx, 6)
			assert.Equal(t, 30, idx[len(idx)-1])

			scores, err := d.Score()
			require.NoError(t, err)
			assert.Equal(t, 1.0, scores[30])
		})
	}
}

func TestRolledScenario(t *testing.T) {
	series := generateSeries(48)
	d := New(WithModelFactory(meanFactory), WithRollLen(24), WithRatio(0.1))
	require.NoError(t, d.Fit(series))

	r, c := d.ReconstructionError().Dims()
	assert.Equal(t, 25, r)
	assert.Equal(t, 24, c)
	assert.Len(t, d.SubsequenceError(), 25)

	idx, err := d.AnomalyIndexes()
	require.NoError(t, err)
	assert.Len(t, idx, 4)
	for _, i := range idx {
		assert.GreaterOrEqual(t, i, 0)
		assert.LessOrEqual(t, i, 47)
	}
}

func TestAutoencoderBackend(t *testing.T) {
	t.Run("rolled series", func(t *testing.T) {
		d := New(WithRollLen(24), WithEpochs(5), WithBatchSize(10))
		require.NoError(t, d.Fit(generateSeries(48)))

		scores, err := d.Score()
		require.NoError(t, err)
		assert.Len(t, scores, 48)

		idx, err := d.AnomalyIndexes()
		require.NoError(t, err)
		assert.Len(t, idx, 4)
	})

	t.Run("constant series", func(t *testing.T) {
		d := New(WithRollLen(0), WithEpochs(2))
		require.NoError(t, d.Fit(make([]float64, 100)))

		scores, err := d.Score()
		require.NoError(t, err)
		require.Len(t, scores, 100)
		for _, s := range scores {
			assert.False(t, math.IsNaN(s))
			assert.Equal(t, 0.0, s)
		}
	})
}

func TestFitFailureKeepsState(t *testing.T) {
	errBoom := errors.New("boom")
	calls := 0
	factory := func(int) (nn.Model, error) {
		calls++
		if calls > 1 {
			return failingModel{err: errBoom}, nil
		}
		return &meanModel{}, nil
	}

	d := New(WithModelFactory(factory), WithRollLen(4))
	require.NoError(t, d.Fit(generateSeries(30)))
	before, err := d.Score()
	require.NoError(t, err)

	t.Run("model error propagates", func(t *testing.T) {
		err := d.Fit(generateSeries(40))
		assert.ErrorIs(t, err, errBoom)
	})

	t.Run("validation error", func(t *testing.T) {
		err := d.Fit([]float64{1, 2})
		assert.ErrorIs(t, err, detectors.ErrEmptyRolled)
	})

	t.Run("non-finite sample", func(t *testing.T) {
		err := d.Fit(withSample(generateSeries(30), 3, math.NaN()))
		assert.ErrorIs(t, err, detectors.ErrInvalidValue)
	})

	assert.Equal(t, StateFitted, d.State())
	after, err := d.Score()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRefitOverwrites(t *testing.T) {
	d := New(WithModelFactory(meanFactory), WithRollLen(0))

	require.NoError(t, d.Fit(generateSeries(20)))
	first, err := d.Score()
	require.NoError(t, err)
	assert.Len(t, first, 20)

	require.NoError(t, d.Fit(generateSeries(35)))
	second, err := d.Score()
	require.NoError(t, err)
	assert.Len(t, second, 35)
}

func TestInputNotRetained(t *testing.T) {
	series := generateSeries(20)
	d := New(WithModelFactory(meanFactory), WithRollLen(0))
	require.NoError(t, d.Fit(series))

	recs, err := d.Scores()
	require.NoError(t, err)
	want := recs[3].Value

	series[3] = 1e9
	recs, err = d.Scores()
	require.NoError(t, err)
	assert.Equal(t, want, recs[3].Value)
}

func TestScores(t *testing.T) {
	series := generateSeries(50)
	d := New(WithModelFactory(meanFactory), WithRollLen(5), WithRatio(0.2))
	require.NoError(t, d.Fit(series))

	recs, err := d.Scores()
	require.NoError(t, err)
	require.Len(t, recs, 50)

	idx, err := d.AnomalyIndexes()
	require.NoError(t, err)

	flagged := 0
	for i, r := range recs {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, series[i], r.Value)
		if r.IsAnomaly {
			flagged++
			assert.Contains(t, idx, i)
		}
	}
	assert.Equal(t, 10, flagged)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unfit", StateUnfit.String())
	assert.Equal(t, "fitted", StateFitted.String())
	assert.Equal(t, "State(7)", State(7).String())
}

func BenchmarkScore(b *testing.B) {
	series := generateSeries(2000)
	d := New(WithModelFactory(meanFactory), WithRollLen(24))
	d.Fit(series)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.score = nil
		d.Score()
	}
}

func generateSeries(n int) []float64 {
	rng := rand.New(rand.NewSource(42))
	series := make([]float64, n)
	for i := range series {
		series[i] = math.Sin(float64(i)/4) + 0.1*rng.NormFloat64()
	}
	return series
}

func withSample(series []float64, i int, v float64) []float64 {
	series[i] = v
	return series
}
