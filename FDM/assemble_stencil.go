package FDM

import (
	"math"

	"github.com/notargets/gofdm/kernels"
	"github.com/notargets/gofdm/utils"
)

// assembleStencil adds the quadrature exact diagonal of every cell and the
// couplings of each mode to the end modes of its axes. Every coupling is
// added together with its transpose.
func (pc *PC) assembleStencil(ins utils.Inserter, symbolic bool) (err error) {
	var (
		shape = pc.V.ComponentShape(0)
		nn    = shape.Prod()
		width = kernels.StencilWidth(pc.ndim)
		band  = make([]float64, nn*width)
	)
	for e := 0; e < pc.V.Mesh.NumCells(); e++ {
		rows := pc.globalRows(pc.V.CellDofs(e))
		if !symbolic {
			var b []float64
			if pc.coef.B != nil {
				b = pc.coef.B.Data[e]
			}
			if err = pc.ks.Stencil.Run(pc.coef.G.Data[e], b, band); err != nil {
				return
			}
		}
		for r := 0; r < nn; r++ {
			row := rows[r]
			if err = ins.AddValue(row, row, band[r*width]); err != nil {
				return
			}
			for j := 1; j < width; j++ {
				rp := kernels.StencilNeighbor(r, j, shape)
				if rp == r {
					continue
				}
				v := band[r*width+j]
				if err = ins.AddValue(row, rows[rp], v); err != nil {
					return
				}
				if err = ins.AddValue(rows[rp], row, v); err != nil {
					return
				}
			}
		}
	}
	return
}

// trueDiagonal sums the cell diagonals of the exact operator in the FDM
// basis.
func (pc *PC) trueDiagonal() (diag []float64, err error) {
	var (
		G    = pc.coef.G
		B    = pc.coef.B
		bs   = pc.V.BlockSize
		nq   = G.NQ
		gdim = pc.ndim * nq
		g    = make([]float64, bs*gdim)
		b    = make([]float64, bs*nq)
		de   = make([]float64, len(pc.V.CellDofs(0)))
	)
	diag = make([]float64, pc.V.NumDofs())
	for e := 0; e < pc.V.Mesh.NumCells(); e++ {
		if G.Rank() == 2 {
			copy(g, G.Data[e])
		} else {
			for c := 0; c < bs; c++ {
				copy(g[c*gdim:(c+1)*gdim], G.Data[e])
			}
		}
		var bq []float64
		if B != nil {
			bq = b
			for c := 0; c < bs; c++ {
				var src []float64
				switch B.Rank() {
				case 0:
					src = B.Data[e][:nq]
				case 1:
					src = B.Data[e][c*nq : (c+1)*nq]
				default:
					cc := c*bs + c
					src = B.Data[e][cc*nq : (cc+1)*nq]
				}
				copy(b[c*nq:(c+1)*nq], src)
			}
		}
		if err = pc.ks.Diagonal.Run(g, bq, de); err != nil {
			return
		}
		for j, dof := range pc.V.CellDofs(e) {
			diag[dof] += de[j]
		}
	}
	return
}

// scaleToTrueDiagonal rescales A symmetrically so that its diagonal
// matches the exact one.
func (pc *PC) scaleToTrueDiagonal() (err error) {
	var diag []float64
	if diag, err = pc.trueDiagonal(); err != nil {
		return
	}
	var (
		Aii   = pc.A.Diagonal()
		scale = make([]float64, len(diag))
	)
	for i, d := range diag {
		scale[i] = 1
		if Aii[i] != 0 {
			scale[i] = math.Sqrt(math.Abs(d / Aii[i]))
		}
	}
	pc.A.DiagonalScale(scale, scale)
	return
}
