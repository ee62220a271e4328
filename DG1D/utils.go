package DG1D

import "math"

func gamma0(alpha, beta float64) float64 {
	ab1 := alpha + beta + 1.
	a1 := alpha + 1.
	b1 := beta + 1.
	return math.Gamma(a1) * math.Gamma(b1) * math.Pow(2, ab1) / ab1 / math.Gamma(ab1)
}

func gamma1(alpha, beta float64) float64 {
	ab := alpha + beta
	a1 := alpha + 1.
	b1 := beta + 1.
	return a1 * b1 * gamma0(alpha, beta) / (ab + 3.0)
}

// toUnit maps points and weights from [-1,1] onto [0,1]
func toUnit(r, w []float64) (x, wx []float64) {
	x = make([]float64, len(r))
	for i, val := range r {
		x[i] = 0.5 * (val + 1.)
	}
	if w != nil {
		wx = make([]float64, len(w))
		for i, val := range w {
			wx[i] = 0.5 * val
		}
	}
	return
}
