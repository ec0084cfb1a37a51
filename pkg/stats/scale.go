package stats

import "errors"

// StandardScaler centres each column to zero mean and unit variance. Columns
// with zero variance are only centred.
type StandardScaler struct {
	Mean []float64
	Std  []float64
	fit  bool
}

func NewStandardScaler() *StandardScaler { return &StandardScaler{} }

func (s *StandardScaler) Fit(X [][]float64) error {
	if len(X) == 0 {
		return errors.New("scaler: empty X")
	}
	c := len(X[0])
	for _, row := range X {
		if len(row) != c {
			return errors.New("scaler: inconsistent number of features in X rows")
		}
	}
	s.Mean = make([]float64, c)
	s.Std = make([]float64, c)
	col := make([]float64, len(X))
	for j := 0; j < c; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		s.Mean[j] = Mean(col)
		s.Std[j] = Std(col)
		if s.Std[j] == 0 {
			s.Std[j] = 1
		}
	}
	s.fit = true
	return nil
}

// Transform returns a scaled copy of X. An unfitted scaler returns X as is.
func (s *StandardScaler) Transform(X [][]float64) [][]float64 {
	if !s.fit {
		return X
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.Mean[j]) / s.Std[j]
		}
		out[i] = scaled
	}
	return out
}

func (s *StandardScaler) FitTransform(X [][]float64) ([][]float64, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X), nil
}
