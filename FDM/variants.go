package FDM

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gofdm/DG1D"
	"github.com/notargets/gofdm/utils"
)

// BCVariant is the sparse 1D (stiffness, mass) pair in FDM coordinates for
// one combination of end conditions.
type BCVariant struct {
	Stiffness, Mass utils.DOK
}

// VariantIndex maps the end conditions (0 natural, 1 Dirichlet or weakly
// constrained) of the low and high end of an interval to a variant.
func VariantIndex(bc0, bc1 int) int { return bc0 + 2*bc1 }

// Basis1D is the FDM basis of one axis together with its boundary
// condition variants.
type Basis1D struct {
	N int
	// V maps FDM coefficients to nodal values, (N+1, N+1)
	V        *mat.Dense
	Variants [4]BCVariant
	// Dfdm is the normal derivative at the two ends in FDM coordinates,
	// (N+1, 2) with the low end negated. It is nil for continuous spaces.
	Dfdm *mat.Dense
	Eta  float64
}

// Size is the number of modes.
func (b *Basis1D) Size() int { return b.N + 1 }

// fdmTransform solves the interior eigenproblem and corrects the boundary
// columns so that the boundary modes are mass orthogonal to the interior
// modes. Degree 1 has no interior and keeps the identity.
func fdmTransform(ops *DG1D.ReferenceOperators) (V *mat.Dense, err error) {
	var (
		n  = ops.N + 1
		rd = utils.Index{0, n - 1}
	)
	V = utils.Identity(n)
	if n <= 2 {
		return
	}
	kd := utils.NewRange(1, n-2)
	var Vkk *mat.Dense
	if _, Vkk, err = SymEig(utils.SubMatrix(ops.Ahat, kd, kd), utils.SubMatrix(ops.Bhat, kd, kd)); err != nil {
		err = fmt.Errorf("degree %d interior eigenproblem: %w", ops.N, err)
		return
	}
	utils.SetSubMatrix(V, kd, kd, Vkk)
	var tmp, corr mat.Dense
	tmp.Mul(Vkk.T(), utils.SubMatrix(ops.Bhat, kd, rd))
	corr.Mul(Vkk, &tmp)
	corr.Scale(-1, &corr)
	utils.SetSubMatrix(V, kd, rd, &corr)
	return
}

// NewBasisCG builds the strongly constrained variants of a continuous GLL
// basis.
func NewBasisCG(ops *DG1D.ReferenceOperators) (b *Basis1D, err error) {
	var (
		n = ops.N + 1
		V *mat.Dense
	)
	if V, err = fdmTransform(ops); err != nil {
		return
	}
	var (
		Ak = utils.TripleProduct(V, ops.Ahat, V)
		Bk = utils.TripleProduct(V, ops.Bhat, V)
	)
	for _, r := range []int{0, n - 1} {
		for k := 1; k < n-1; k++ {
			Bk.Set(r, k, 0)
			Bk.Set(k, r, 0)
		}
	}
	b = &Basis1D{N: ops.N, V: V}
	for bc1 := 0; bc1 < 2; bc1++ {
		for bc0 := 0; bc0 < 2; bc0++ {
			k0, k1 := 1, n-1
			if bc0 == 1 {
				k0 = 0
			}
			if bc1 == 1 {
				k1 = n
			}
			var kk utils.Index
			if k1 > k0 {
				kk = utils.NewRange(k0, k1-1)
			}
			A, B := mat.DenseCopyOf(Ak), mat.DenseCopyOf(Bk)
			utils.ZeroOffDiagonal(A, kk)
			utils.ZeroOffDiagonal(B, kk)
			b.Variants[VariantIndex(bc0, bc1)] = BCVariant{
				Stiffness: utils.NewDOKFromDense(A, []int{0, n - 1}, true).SetReadOnly("Afdm"),
				Mass:      utils.NewDOKFromDense(B, nil, true).SetReadOnly("Bfdm"),
			}
		}
	}
	return
}

// NewBasisIPDG builds the interior penalty variants. A weakly constrained
// end subtracts the facet derivative coupling from its row and column and
// adds eta on its diagonal. Unless gll is set, V is composed with the
// interpolation onto the N+1 Gauss-Legendre nodes so that prolongation
// produces values of a discontinuous Gauss-Legendre basis.
func NewBasisIPDG(ops *DG1D.ReferenceOperators, eta float64, gll bool) (b *Basis1D, err error) {
	var (
		n = ops.N + 1
		V *mat.Dense
	)
	if V, err = fdmTransform(ops); err != nil {
		return
	}
	_, Dfacet := DG1D.TabulateGLL(ops.N, []float64{0, 1})
	for i := 0; i < n; i++ {
		Dfacet.Set(i, 0, -Dfacet.At(i, 0))
	}
	var (
		A  = utils.TripleProduct(V, ops.Ahat, V)
		B  = utils.TripleProduct(V, ops.Bhat, V)
		kd utils.Index
	)
	if n > 2 {
		kd = utils.NewRange(1, n-2)
	}
	utils.ZeroOffDiagonal(A, kd)
	utils.ZeroOffDiagonal(B, kd)
	for _, r := range []int{0, n - 1} {
		for _, k := range kd {
			B.Set(r, k, 0)
			B.Set(k, r, 0)
		}
	}
	Dfdm := new(mat.Dense)
	Dfdm.Mul(V.T(), Dfacet)

	b = &Basis1D{N: ops.N, Dfdm: Dfdm, Eta: eta}
	mass := utils.NewDOKFromDense(B, nil, true).SetReadOnly("Bfdm")
	for bc1 := 0; bc1 < 2; bc1++ {
		for bc0 := 0; bc0 < 2; bc0++ {
			Abc := mat.DenseCopyOf(A)
			for j, bc := range []int{bc0, bc1} {
				if bc != 1 {
					continue
				}
				idx := j * (n - 1)
				for i := 0; i < n; i++ {
					Abc.Set(i, idx, Abc.At(i, idx)-Dfdm.At(i, j))
				}
				for i := 0; i < n; i++ {
					Abc.Set(idx, i, Abc.At(idx, i)-Dfdm.At(i, j))
				}
				Abc.Set(idx, idx, Abc.At(idx, idx)+eta)
			}
			b.Variants[VariantIndex(bc0, bc1)] = BCVariant{
				Stiffness: utils.NewDOKFromDense(Abc, []int{0, n - 1}, true).SetReadOnly("Afdm"),
				Mass:      mass,
			}
		}
	}
	if !gll {
		Jipdg, _ := DG1D.TabulateGLL(ops.N, DG1D.GLNodes(ops.N))
		var Vgl mat.Dense
		Vgl.Mul(Jipdg.T(), V)
		V = &Vgl
	}
	b.V = V
	return
}
