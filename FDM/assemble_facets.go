package FDM

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gofdm/utils"
)

// facetWeights returns the penalty weight of both sides of facet f for the
// test side i and trial side j of component kc.
func (pc *PC) facetWeights(f, kc, i, j int, symbolic bool) (beta [2]float64) {
	var (
		facet = pc.facets[f]
		idir  = facet.Local[0] / 2
		s     = -0.5
	)
	if i == j {
		s = 0.5
	}
	for side := 0; side < 2; side++ {
		switch {
		case symbolic:
			beta[side] = s
		case pc.strategy == strategyHDiv:
			var (
				M      = pc.coef.Facet[f].G[side]
				Pi, Pj = pc.coef.Facet[f].P[i], pc.coef.Facet[f].P[j]
				sum    float64
			)
			vs, _ := M.Dims()
			for a := 0; a < vs; a++ {
				for b := 0; b < vs; b++ {
					sum += M.At(a, b) * Pi.At(kc, b) * Pj.At(kc, a)
				}
			}
			beta[side] = s * sum
		default:
			mu := pc.cellViscosity(facet.Cells[side], kc)
			beta[side] = s * mu[idir]
		}
	}
	return
}

// assembleFacets adds the interior penalty coupling of every interior
// facet. Along the facet normal the two cells contribute a 2n x 2n block
// acting on their end modes, the tangential axes contribute their masses.
// H(div) spaces skip the normal component, which is continuous.
func (pc *PC) assembleFacets(ins utils.Inserter, symbolic bool) (err error) {
	for f, facet := range pc.facets {
		var (
			idir  = facet.Local[0] / 2
			order = utils.MoveAxisOrder(pc.ndim, idir)
		)
		for k := 0; k < pc.ncomp; k++ {
			kc := k
			if pc.strategy == strategyHDiv {
				if k == 0 {
					continue
				}
				kc = order[k]
			}
			var (
				b      = pc.basis(kc, idir)
				n, _   = b.Dfdm.Dims()
				adense = mat.NewDense(2*n, 2*n, nil)
				dense  []int
			)
			for i := 0; i < 2; i++ {
				dense = append(dense, i*n+(n-1)*(facet.Local[i]%2))
			}
			for i := 0; i < 2; i++ {
				for j := 0; j < 2; j++ {
					var (
						beta = pc.facetWeights(f, kc, i, j, symbolic)
						ii   = dense[i]
						jj   = dense[j]
					)
					adense.Set(ii, jj, adense.At(ii, jj)+b.Eta*(beta[0]+beta[1]))
					for r := 0; r < n; r++ {
						adense.Set(i*n+r, jj, adense.At(i*n+r, jj)-beta[i]*b.Dfdm.At(r, facet.Local[i]%2))
					}
					for c := 0; c < n; c++ {
						adense.Set(ii, j*n+c, adense.At(ii, j*n+c)-beta[j]*b.Dfdm.At(c, facet.Local[j]%2))
					}
				}
			}
			ae := utils.NewDOKFromDense(adense, dense, false)
			for p := 1; p < pc.ndim; p++ {
				ae = ae.Kron(pc.basis(kc, order[p]).Variants[0].Mass)
			}
			var (
				shape = pc.V.ComponentShape(kc)
				rows  []int
			)
			for _, e := range facet.Cells {
				dofs := pc.globalRows(pc.V.ComponentDofs(e, kc))
				rows = append(rows, utils.PullAxis(dofs, shape, idir)...)
			}
			if err = scatter(ins, ae, rows, rows); err != nil {
				return fmt.Errorf("facet %d component %d: %w", f, kc, err)
			}
		}
	}
	return
}
