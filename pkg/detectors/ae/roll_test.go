package ae

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/aedetect/pkg/detectors"
)

func TestRoll(t *testing.T) {
	tests := []struct {
		name     string
		length   int
		window   int
		wantRows int
		wantErr  error
	}{
		{name: "typical window", length: 48, window: 24, wantRows: 25},
		{name: "window of one", length: 5, window: 1, wantRows: 5},
		{name: "window equals length", length: 7, window: 7, wantRows: 1},
		{name: "window too long", length: 5, window: 6, wantErr: detectors.ErrEmptyRolled},
		{name: "zero window", length: 5, window: 0, wantErr: detectors.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series := make([]float64, tt.length)
			for i := range series {
				series[i] = float64(i)
			}

			rolled, err := Roll(series, tt.window)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			r, c := rolled.Dims()
			assert.Equal(t, tt.wantRows, r)
			assert.Equal(t, tt.window, c)
			for i := 0; i < r; i++ {
				assert.Equal(t, series[i:i+tt.window], rolled.RawRowView(i))
			}
		})
	}
}

func TestRollCopies(t *testing.T) {
	series := []float64{1, 2, 3, 4}
	rolled, err := Roll(series, 2)
	require.NoError(t, err)

	rolled.Set(0, 1, 99)
	assert.Equal(t, []float64{1, 2, 3, 4}, series)
	assert.Equal(t, 2.0, rolled.At(1, 0))
}
