package scorer

import "math"

// Standardize returns the values shifted to zero mean and scaled to unit
// population standard deviation. Zero variance maps to all zeros.
func Standardize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	// work on values divided by the largest magnitude so the sums can't overflow
	scale := maxAbs(values)
	if scale == 0 || math.IsInf(scale, 0) || math.IsNaN(scale) {
		return out
	}

	mean, std := meanStd(values, scale)
	if std == 0 || math.IsNaN(std) {
		return out
	}

	for i, v := range values {
		out[i] = (v/scale - mean) / std
	}
	return out
}

// meanStd returns the mean and population standard deviation of values/scale.
func meanStd(values []float64, scale float64) (mean, std float64) {
	n := float64(len(values))
	for _, v := range values {
		mean += v / scale
	}
	mean /= n

	var ss float64
	for _, v := range values {
		d := v/scale - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / n)
}

func maxAbs(values []float64) float64 {
	var m float64
	for _, v := range values {
		m = max(m, math.Abs(v))
	}
	return m
}

// identifierLike reports whether the values look like a row identifier:
// integral and all distinct.
func identifierLike(values []float64) bool {
	if len(values) < identifierMinRows {
		return false
	}

	seen := make(map[float64]struct{}, len(values))
	for _, v := range values {
		if v != math.Trunc(v) {
			return false
		}
		if _, ok := seen[v]; ok {
			return false
		}
		seen[v] = struct{}{}
	}
	return true
}
