package FDM

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gofdm/utils"
)

// SymEig solves the symmetric definite generalized eigenproblem A v = λ B v
// by Cholesky reduction, B = L L^T, C = L^-1 A L^-T. The eigenvalues are
// ascending and the eigenvectors are B orthonormal, V^T B V = I.
func SymEig(A, B mat.Matrix) (lambda []float64, V *mat.Dense, err error) {
	var (
		n, _ = B.Dims()
		ch   mat.Cholesky
		L    mat.TriDense
		Linv mat.TriDense
		es   mat.EigenSym
		W    mat.Dense
	)
	if ok := ch.Factorize(utils.Symmetrize(mat.DenseCopyOf(B))); !ok {
		err = fmt.Errorf("mass matrix of size %d is not positive definite", n)
		return
	}
	ch.LTo(&L)
	if err = Linv.InverseTri(&L); err != nil {
		return
	}
	C := utils.TripleProduct(Linv.T(), A, Linv.T())
	if ok := es.Factorize(utils.Symmetrize(C), true); !ok {
		err = fmt.Errorf("symmetric eigendecomposition of size %d failed", n)
		return
	}
	lambda = es.Values(nil)
	es.VectorsTo(&W)
	V = new(mat.Dense)
	V.Mul(Linv.T(), &W)
	return
}
