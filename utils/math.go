package utils

func ConstArray(N int, val float64) (v []float64) {
	v = make([]float64, N)
	for i := range v {
		v[i] = val
	}
	return
}

// Reciprocal returns 1/v entrywise, leaving zeros at zero.
func Reciprocal(v []float64) (r []float64) {
	r = make([]float64, len(v))
	for i, val := range v {
		if val != 0 {
			r[i] = 1. / val
		}
	}
	return
}
