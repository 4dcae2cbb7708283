package forecast

import (
	"fmt"
	"math"
)

// MinMaxScaler holds the fitted parameters of a min-max transform over a
// multi-feature space: scaled = x*Scale + Min.
type MinMaxScaler struct {
	Min   []float64 `json:"min"`
	Scale []float64 `json:"scale"`
}

// Width returns the number of features the scaler was fitted on.
func (s *MinMaxScaler) Width() int {
	return len(s.Min)
}

// Validate checks that the parameters are usable for inverting closeIndex.
func (s *MinMaxScaler) Validate(closeIndex int) error {
	if len(s.Min) == 0 || len(s.Min) != len(s.Scale) {
		return fmt.Errorf("scaler min/scale length mismatch: %d vs %d", len(s.Min), len(s.Scale))
	}
	if closeIndex < 0 || closeIndex >= len(s.Min) {
		return fmt.Errorf("close index %d outside scaler width %d", closeIndex, len(s.Min))
	}
	if s.Scale[closeIndex] == 0 || math.IsNaN(s.Scale[closeIndex]) {
		return fmt.Errorf("scaler has degenerate scale at close index %d", closeIndex)
	}
	return nil
}

// InverseTransform maps a full scaled feature vector back to original units.
func (s *MinMaxScaler) InverseTransform(scaled []float64) ([]float64, error) {
	if len(scaled) != len(s.Min) {
		return nil, fmt.Errorf("vector width %d does not match scaler width %d", len(scaled), len(s.Min))
	}
	out := make([]float64, len(scaled))
	for i, v := range scaled {
		if s.Scale[i] == 0 {
			out[i] = 0
			continue
		}
		out[i] = (v - s.Min[i]) / s.Scale[i]
	}
	return out, nil
}

// InverseClose descales a single model output. The scaler was fit on the
// full feature space, so the value is placed at closeIndex of a zero vector,
// the whole vector is inverted, and the close slot is read back.
func (s *MinMaxScaler) InverseClose(raw float64, closeIndex int) (float64, error) {
	if closeIndex < 0 || closeIndex >= len(s.Min) {
		return 0, fmt.Errorf("close index %d outside scaler width %d", closeIndex, len(s.Min))
	}
	vec := make([]float64, len(s.Min))
	vec[closeIndex] = raw
	inv, err := s.InverseTransform(vec)
	if err != nil {
		return 0, err
	}
	return inv[closeIndex], nil
}
