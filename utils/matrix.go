package utils

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SubMatrix extracts A[rows, cols].
func SubMatrix(A mat.Matrix, rows, cols Index) (R *mat.Dense) {
	var (
		nr, nc = A.Dims()
	)
	R = mat.NewDense(len(rows), len(cols), nil)
	for i, ri := range rows {
		for j, cj := range cols {
			if ri < 0 || ri >= nr || cj < 0 || cj >= nc {
				panic(fmt.Errorf("index (%d,%d) out of bounds (%d,%d)", ri, cj, nr, nc))
			}
			R.Set(i, j, A.At(ri, cj))
		}
	}
	return
}

// SetSubMatrix assigns A[rows, cols] = S.
func SetSubMatrix(A *mat.Dense, rows, cols Index, S mat.Matrix) {
	for i, ri := range rows {
		for j, cj := range cols {
			A.Set(ri, cj, S.At(i, j))
		}
	}
}

// Symmetrize replaces A with (A + A^T)/2.
func Symmetrize(A *mat.Dense) *mat.SymDense {
	var (
		n, _ = A.Dims()
		S    = mat.NewSymDense(n, nil)
	)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			S.SetSym(i, j, 0.5*(A.At(i, j)+A.At(j, i)))
		}
	}
	return S
}

// TripleProduct returns L^T A R.
func TripleProduct(L, A, R mat.Matrix) (P *mat.Dense) {
	var tmp mat.Dense
	tmp.Mul(A, R)
	P = new(mat.Dense)
	P.Mul(L.T(), &tmp)
	return
}

// ZeroOffDiagonal zeroes the off diagonal entries of the block A[ind, ind].
func ZeroOffDiagonal(A *mat.Dense, ind Index) {
	for _, i := range ind {
		for _, j := range ind {
			if i != j {
				A.Set(i, j, 0)
			}
		}
	}
}

func Identity(n int) (I *mat.Dense) {
	I = mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		I.Set(i, i, 1)
	}
	return
}
