package learning

import "math"

// Score holds the diagnostic error measures of a fitted model on one partition.
type Score struct {
	MAE float64
	R2  float64
	N   int
}

// Evaluate scores model on rows X against targets y.
func Evaluate(model Regressor, X [][]float64, y []float64) (Score, error) {
	if len(X) == 0 {
		return Score{}, nil
	}
	pred := make([]float64, len(X))
	for i, row := range X {
		v, err := model.Predict(row)
		if err != nil {
			return Score{}, err
		}
		pred[i] = v
	}
	return Score{MAE: MeanAbsoluteError(y, pred), R2: R2(y, pred), N: len(y)}, nil
}

// MeanAbsoluteError returns mean(|y - pred|).
func MeanAbsoluteError(y, pred []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	var sum float64
	for i := range y {
		sum += math.Abs(y[i] - pred[i])
	}
	return sum / float64(len(y))
}

// R2 is the coefficient of determination. A constant target scores 1 when
// predicted exactly and 0 otherwise.
func R2(y, pred []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	var mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))

	var ssRes, ssTot float64
	for i := range y {
		d := y[i] - pred[i]
		ssRes += d * d
		t := y[i] - mean
		ssTot += t * t
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}
