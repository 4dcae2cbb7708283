package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinMaxScaler_InverseClose(t *testing.T) {
	s := &MinMaxScaler{
		Min:   []float64{-0.5, -1, 0},
		Scale: []float64{0.01, 0.002, 1},
	}
	require.NoError(t, s.Validate(1))

	v, err := s.InverseClose(0.6, 1)
	require.NoError(t, err)
	assert.InDelta(t, 800.0, v, 1e-9)

	_, err = s.InverseClose(0.6, 3)
	assert.Error(t, err)
}

func TestMinMaxScaler_InverseTransform(t *testing.T) {
	s := &MinMaxScaler{Min: []float64{0, 1}, Scale: []float64{0.5, 0}}

	out, err := s.InverseTransform([]float64{1, 5})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 0}, out)

	_, err = s.InverseTransform([]float64{1})
	assert.Error(t, err)
}

func TestMinMaxScaler_Validate(t *testing.T) {
	tests := []struct {
		name   string
		scaler MinMaxScaler
		close  int
	}{
		{name: "length mismatch", scaler: MinMaxScaler{Min: []float64{0, 0}, Scale: []float64{1}}},
		{name: "empty", scaler: MinMaxScaler{}},
		{name: "close index out of range", scaler: MinMaxScaler{Min: []float64{0}, Scale: []float64{1}}, close: 1},
		{name: "zero scale at close", scaler: MinMaxScaler{Min: []float64{0, 0}, Scale: []float64{1, 0}}, close: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.scaler.Validate(tt.close))
		})
	}
}
