package FDM

import (
	"fmt"

	"github.com/notargets/gofdm/utils"
)

// assemble adds the FDM matrix into ins. With symbolic set only the
// structure matters and no kernel runs.
func (pc *PC) assemble(ins utils.Inserter, symbolic bool) (err error) {
	n := pc.V.NumDofs()
	for i := 0; i < n; i++ {
		if err = ins.AddValue(i, i, 0); err != nil {
			return
		}
	}
	if pc.opts.Type == TypeStencil {
		return pc.assembleStencil(ins, symbolic)
	}
	if pc.separateReaction {
		if err = pc.assembleReaction(ins, symbolic); err != nil {
			return
		}
	}
	if err = pc.assembleCells(ins); err != nil {
		return
	}
	if pc.strategy.interiorFacets() {
		err = pc.assembleFacets(ins, symbolic)
	}
	return
}

// scatter adds the element matrix ae at (rows[i], cols[j]) in row major
// order, so that repeated assembly is bit identical.
func scatter(ins utils.Inserter, ae utils.DOK, rows, cols []int) (err error) {
	indptr, ind, data := ae.CSR()
	for i := 0; i+1 < len(indptr); i++ {
		for k := indptr[i]; k < indptr[i+1]; k++ {
			if err = ins.AddValue(rows[i], cols[ind[k]], data[k]); err != nil {
				return
			}
		}
	}
	return
}

func (pc *PC) globalRows(dofs []int) (rows []int) {
	rows = make([]int, len(dofs))
	for i, dof := range dofs {
		rows[i] = pc.lgmap[dof]
	}
	return
}

// cellViscosity returns the cell integrated diagonal of G seen by
// component k, one entry per axis.
func (pc *PC) cellViscosity(e, k int) []float64 {
	mue := pc.coef.G.CellSum(e)
	if pc.coef.G.Rank() == 2 {
		return mue[k*pc.ndim : (k+1)*pc.ndim]
	}
	return mue
}

// cellReaction returns the cell integrated reaction per component, nil
// when the reaction is absent or assembled separately.
func (pc *PC) cellReaction(e int) (bq []float64) {
	B := pc.coef.B
	if B == nil || pc.separateReaction {
		return
	}
	bsum := B.CellSum(e)
	if B.Rank() == 1 {
		return bsum
	}
	return utils.ConstArray(pc.ncomp, bsum[0])
}

// assembleCells adds, per cell and component, the Kronecker sum
//
//	A_e = sum_d mu_d M_0 ⊗ ... ⊗ K_d ⊗ ... ⊗ M_{ndim-1} + b M_0 ⊗ ... ⊗ M_{ndim-1}
//
// with the 1D variants selected by the facet flags of each axis.
func (pc *PC) assembleCells(ins utils.Inserter) (err error) {
	for e := 0; e < pc.V.Mesh.NumCells(); e++ {
		bq := pc.cellReaction(e)
		for k := 0; k < pc.ncomp; k++ {
			var (
				mu     = pc.cellViscosity(e, k)
				ae, be utils.DOK
			)
			for d := 0; d < pc.ndim; d++ {
				v := pc.basis(k, d).Variants[pc.flags.VariantIndex(e, k, d)]
				if d == 0 {
					ae = v.Stiffness.Copy().Scale(mu[0])
					if bq != nil {
						ae.AXPY(bq[k], v.Mass)
					}
					be = v.Mass
					continue
				}
				ae = ae.Kron(v.Mass)
				ae.AXPY(mu[d], be.Kron(v.Stiffness))
				be = be.Kron(v.Mass)
			}
			rows := pc.globalRows(pc.V.ComponentDofs(e, k))
			if err = scatter(ins, ae, rows, rows); err != nil {
				return fmt.Errorf("cell %d component %d: %w", e, k, err)
			}
		}
	}
	return
}

// naturalMass is the tensor product of the natural variant masses of
// component c.
func (pc *PC) naturalMass(c int) (be utils.DOK) {
	for d := 0; d < pc.ndim; d++ {
		M := pc.basis(c, d).Variants[0].Mass
		if d == 0 {
			be = M.Copy()
			continue
		}
		be = be.Kron(M)
	}
	return
}

// assembleReaction adds a rank 2 reaction, coupling the components of a
// node. With true_diagonal=2 the node blocks come from the reaction kernel
// and are spread over the mass pattern, otherwise the cell integrated
// tensor multiplies the mass.
func (pc *PC) assembleReaction(ins utils.Inserter, symbolic bool) (err error) {
	var (
		B   = pc.coef.B
		ns  = B.Shape[0]
		be  = pc.naturalMass(0)
		nn  = pc.V.ScalarDim(0)
		exa = pc.opts.TrueDiagonal == 2 && !symbolic
	)
	indptr, ind, data := be.CSR()
	var (
		vals   []float64
		blocks []float64
	)
	if exa {
		blocks = make([]float64, nn*ns*ns)
	}
	for e := 0; e < pc.V.Mesh.NumCells(); e++ {
		rows := pc.globalRows(pc.V.CellDofs(e))
		if !exa {
			var (
				bsum = B.CellSum(e)
				Be   = utils.NewDOK(ns, ns)
			)
			for a := 0; a < ns; a++ {
				for b := 0; b < ns; b++ {
					Be.Set(a, b, bsum[a*ns+b])
				}
			}
			if err = scatter(ins, be.Kron(Be), rows, rows); err != nil {
				return
			}
			continue
		}
		if err = pc.ks.Reaction.Run(B.Data[e], blocks); err != nil {
			return
		}
		for i := 0; i < nn; i++ {
			var (
				bii = be.At(i, i)
			)
			vals = blocks[i*ns*ns : (i+1)*ns*ns]
			for k := indptr[i]; k < indptr[i+1]; k++ {
				var (
					j    = ind[k]
					coef = data[k] * 0.5 / bii
				)
				for a := 0; a < ns; a++ {
					for b := 0; b < ns; b++ {
						v := coef * vals[a*ns+b]
						if err = ins.AddValue(rows[i*ns+a], rows[j*ns+b], v); err != nil {
							return
						}
						if err = ins.AddValue(rows[j*ns+b], rows[i*ns+a], v); err != nil {
							return
						}
					}
				}
			}
		}
	}
	return
}
