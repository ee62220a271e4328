package FDM

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gofdm/DG1D"
	"github.com/notargets/gofdm/mesh"
	"github.com/notargets/gofdm/utils"
)

// Coefficient is a tensor valued field evaluated at physical points. Values
// are stored row major in v, len(v) is the product of Shape. A Coefficient
// may depend on solver state, it is re-evaluated on every update.
type Coefficient interface {
	// Shape is nil or empty for a scalar
	Shape() []int
	Eval(e int, x []float64, v []float64)
}

// Constant is a spatially uniform Coefficient.
type Constant struct {
	shape []int
	value []float64
}

func NewConstant(value float64) *Constant {
	return &Constant{value: []float64{value}}
}

// NewTensorConstant builds a constant of the given shape from row major
// values.
func NewTensorConstant(shape []int, values ...float64) (c *Constant, err error) {
	if n := utils.Index(shape).Prod(); n != len(values) {
		err = fmt.Errorf("%w: shape %v needs %d values, have %d", ErrConfiguration, shape, n, len(values))
		return
	}
	c = &Constant{shape: shape, value: values}
	return
}

func (c *Constant) Shape() []int { return c.shape }

func (c *Constant) Eval(_ int, _ []float64, v []float64) { copy(v, c.value) }

// Set changes the value of the constant, the next update picks it up.
func (c *Constant) Set(values ...float64) { copy(c.value, values) }

// Func wraps a closure as a Coefficient.
type Func struct {
	S []int
	F func(e int, x []float64, v []float64)
}

func (f Func) Shape() []int { return f.S }

func (f Func) Eval(e int, x []float64, v []float64) { f.F(e, x, v) }

// CoefficientField holds quadrature point values of a tensor per cell,
// weighted by the quadrature weight and the Jacobian determinant. Values are
// component major: Data[e][k*NQ+q] is flattened component k at point q.
type CoefficientField struct {
	Shape []int
	NQ    int
	Data  [][]float64
}

func NewCoefficientField(nel, nq int, shape []int) (f *CoefficientField) {
	f = &CoefficientField{Shape: shape, NQ: nq, Data: make([][]float64, nel)}
	for e := range f.Data {
		f.Data[e] = make([]float64, nq*f.Size())
	}
	return
}

// Size is the number of tensor components.
func (f *CoefficientField) Size() int { return utils.Index(f.Shape).Prod() }

func (f *CoefficientField) Rank() int { return len(f.Shape) }

// CellSum integrates every component over cell e.
func (f *CoefficientField) CellSum(e int) (s []float64) {
	s = make([]float64, f.Size())
	for k := range s {
		for _, v := range f.Data[e][k*f.NQ : (k+1)*f.NQ] {
			s[k] += v
		}
	}
	return
}

func (f *CoefficientField) Fill(val float64) {
	for _, d := range f.Data {
		for i := range d {
			d[i] = val
		}
	}
}

// metric is the affine geometry of a cell
type metric struct {
	J *mat.Dense // (gdim, tdim)
	// Finv is the inverse of J for gdim == tdim, nil on embedded cells
	Finv *mat.Dense
	// JtJinv is inv(J^T J) on embedded cells
	JtJinv *mat.Dense
	// DetJ is signed when J is square, sqrt(det(J^T J)) otherwise
	DetJ float64
}

func newMetric(J *mat.Dense) (g metric, err error) {
	var (
		gdim, tdim = J.Dims()
	)
	g.J = J
	if gdim == tdim {
		g.DetJ = mat.Det(J)
		g.Finv = new(mat.Dense)
		err = g.Finv.Inverse(J)
		return
	}
	var JtJ mat.Dense
	JtJ.Mul(J.T(), J)
	g.DetJ = math.Sqrt(mat.Det(&JtJ))
	g.JtJinv = new(mat.Dense)
	err = g.JtJinv.Inverse(&JtJ)
	return
}

func (g metric) embedded() bool { return g.Finv == nil }

// coefficientAssembler projects the viscosity and reaction onto quadrature
// fields, G = Finv mu Finv^T and its rank 4 and Piola mapped variants.
type coefficientAssembler struct {
	m          *mesh.Mesh
	vs         int
	tdim, gdim int
	mu, helm   Coefficient
	diagonal   bool
	piola      bool
	muShape    []int
	rank4      bool
	// 1D Gauss-Legendre rule on [0,1]
	xq, wq []float64
	nq1    int
	G, B   *CoefficientField

	facets []mesh.Facet
	// Facet holds the per side facet coefficients of H(div) penalties
	Facet []facetCoefficient
}

// facetCoefficient holds, per facet side, the viscosity contracted along the
// facet normal (vs, vs) and the Piola map J^T/detJ (tdim, gdim).
type facetCoefficient struct {
	G, P [2]*mat.Dense
}

func newCoefficientAssembler(V *mesh.FunctionSpace, app AppContext, Nq int, diagonal, piola bool) (ca *coefficientAssembler, err error) {
	var (
		m = V.Mesh
	)
	ca = &coefficientAssembler{
		m:        m,
		vs:       V.ValueSize(),
		tdim:     m.TDim,
		gdim:     m.GDim,
		mu:       app.Viscosity,
		helm:     app.Reaction,
		diagonal: diagonal,
		piola:    piola,
	}
	ca.nq1 = (Nq + 2) / 2
	ca.xq, ca.wq = DG1D.GaussLegendre(ca.nq1)
	if err = ca.checkViscosity(); err != nil {
		return
	}
	if err = ca.checkReaction(); err != nil {
		return
	}
	var (
		nel   = m.NumCells()
		nq    = ca.numPoints()
		gshap []int
	)
	switch {
	case ca.rank4 && diagonal:
		gshap = []int{ca.vs, ca.tdim}
	case ca.rank4:
		gshap = []int{ca.vs, ca.tdim, ca.vs, ca.tdim}
	case diagonal:
		gshap = []int{ca.tdim}
	default:
		gshap = []int{ca.tdim, ca.tdim}
	}
	ca.G = NewCoefficientField(nel, nq, gshap)
	if ca.helm != nil {
		ca.B = NewCoefficientField(nel, nq, ca.helm.Shape())
	}
	return
}

func (ca *coefficientAssembler) checkViscosity() error {
	if ca.mu == nil {
		return nil
	}
	var (
		shape = ca.mu.Shape()
		gd    = ca.gdim
	)
	ca.muShape = shape
	embedded := ca.gdim != ca.tdim
	switch len(shape) {
	case 0:
		return nil
	case 1, 2:
		for _, s := range shape {
			if s != gd {
				return fmt.Errorf("%w: viscosity of shape %v in dimension %d", ErrConfiguration, shape, gd)
			}
		}
		if embedded {
			return fmt.Errorf("%w: tensor viscosity of shape %v on an embedded mesh", ErrUnsupportedTensorRank, shape)
		}
		return nil
	case 4:
		if shape[0] != ca.vs || shape[2] != ca.vs || shape[1] != gd || shape[3] != gd {
			return fmt.Errorf("%w: viscosity of shape %v for value size %d in dimension %d",
				ErrConfiguration, shape, ca.vs, gd)
		}
		if embedded {
			return fmt.Errorf("%w: tensor viscosity of shape %v on an embedded mesh", ErrUnsupportedTensorRank, shape)
		}
		ca.rank4 = true
		return nil
	}
	return fmt.Errorf("%w: viscosity of shape %v", ErrUnsupportedTensorRank, shape)
}

func (ca *coefficientAssembler) checkReaction() error {
	if ca.helm == nil {
		return nil
	}
	shape := ca.helm.Shape()
	if len(shape) > 2 {
		return fmt.Errorf("%w: reaction of shape %v", ErrUnsupportedTensorRank, shape)
	}
	for _, s := range shape {
		if s != ca.vs {
			return fmt.Errorf("%w: reaction of shape %v for value size %d", ErrConfiguration, shape, ca.vs)
		}
	}
	return nil
}

func (ca *coefficientAssembler) numPoints() int {
	n := 1
	for d := 0; d < ca.tdim; d++ {
		n *= ca.nq1
	}
	return n
}

// point returns the reference coordinates and weight of point q
func (ca *coefficientAssembler) point(q int) (xi []float64, w float64) {
	var (
		shape = make(utils.Index, ca.tdim)
	)
	for d := range shape {
		shape[d] = ca.nq1
	}
	mi := utils.Unravel(q, shape)
	xi = make([]float64, ca.tdim)
	w = 1
	for d, i := range mi {
		xi[d] = ca.xq[i]
		w *= ca.wq[i]
	}
	return
}

// fill sets every field to val, which is all a symbolic pass needs.
func (ca *coefficientAssembler) fill(val float64) {
	ca.G.Fill(val)
	if ca.B != nil {
		ca.B.Fill(val)
	}
}

// assemble evaluates the coefficients at every quadrature point of every
// cell.
func (ca *coefficientAssembler) assemble() (err error) {
	var (
		nq   = ca.numPoints()
		muv  = make([]float64, utils.Index(ca.muShape).Prod())
		gv   = make([]float64, ca.G.Size())
		bv   []float64
		xis  = make([][]float64, nq)
		wts  = make([]float64, nq)
		full []float64
	)
	if ca.B != nil {
		bv = make([]float64, ca.B.Size())
	}
	for q := range xis {
		xis[q], wts[q] = ca.point(q)
	}
	for e := 0; e < ca.m.NumCells(); e++ {
		cell := ca.m.Geometry(e)
		var g metric
		if g, err = newMetric(cell.J); err != nil {
			return fmt.Errorf("cell %d: %w", e, err)
		}
		for q := 0; q < nq; q++ {
			var (
				x  = cell.Map(xis[q])
				wt = wts[q] * math.Abs(g.DetJ)
			)
			if ca.mu != nil {
				ca.mu.Eval(e, x, muv)
			}
			if ca.rank4 {
				full = ca.pullback4(g, muv, full)
			} else {
				full = ca.pullback2(g, muv, full)
			}
			ca.reduce(full, gv)
			for k, v := range gv {
				ca.G.Data[e][k*nq+q] = v * wt
			}
			if ca.B != nil {
				ca.helm.Eval(e, x, bv)
				for k, v := range bv {
					ca.B.Data[e][k*nq+q] = v * wt
				}
			}
		}
	}
	if ca.facets != nil {
		err = ca.assembleFacets()
	}
	return
}

// pullback2 returns G = Finv mu Finv^T, (tdim, tdim) row major, with mu the
// identity, a scalar, a diagonal or a matrix. Embedded cells use
// mu inv(J^T J).
func (ca *coefficientAssembler) pullback2(g metric, muv, G []float64) []float64 {
	var (
		td, gd = ca.tdim, ca.gdim
		rank   = len(ca.muShape)
	)
	G = resize(G, td*td)
	if g.embedded() {
		s := 1.
		if ca.mu != nil {
			s = muv[0]
		}
		for i := 0; i < td; i++ {
			for j := 0; j < td; j++ {
				G[i*td+j] = s * g.JtJinv.At(i, j)
			}
		}
		return G
	}
	mu := func(a, b int) float64 {
		switch {
		case ca.mu == nil && a == b:
			return 1
		case ca.mu == nil:
			return 0
		case rank == 0 && a == b:
			return muv[0]
		case rank == 1 && a == b:
			return muv[a]
		case rank == 2:
			return muv[a*gd+b]
		}
		return 0
	}
	for i := 0; i < td; i++ {
		for j := 0; j < td; j++ {
			var sum float64
			for a := 0; a < gd; a++ {
				fa := g.Finv.At(i, a)
				if fa == 0 {
					continue
				}
				for b := 0; b < gd; b++ {
					sum += fa * mu(a, b) * g.Finv.At(j, b)
				}
			}
			G[i*td+j] = sum
		}
	}
	return G
}

// pullback4 returns the rank 4 tensor (vs, tdim, vs, tdim) row major,
// G[i1,i2,i3,i4] = Finv[i2,j2] Finv[i4,j4] mu[i1,j2,i3,j4], with the value
// indices i1, i3 also Piola mapped when piola is set.
func (ca *coefficientAssembler) pullback4(g metric, muv, G []float64) []float64 {
	var (
		vs, td, gd = ca.vs, ca.tdim, ca.gdim
		at         = func(i1, j2, i3, j4 int) float64 {
			return muv[((i1*gd+j2)*vs+i3)*gd+j4]
		}
		// F2 contracts the gradient indices
		F2 = make([]float64, vs*td*vs*td)
	)
	G = resize(G, vs*td*vs*td)
	for i1 := 0; i1 < vs; i1++ {
		for i2 := 0; i2 < td; i2++ {
			for i3 := 0; i3 < vs; i3++ {
				for i4 := 0; i4 < td; i4++ {
					var sum float64
					for j2 := 0; j2 < gd; j2++ {
						for j4 := 0; j4 < gd; j4++ {
							sum += g.Finv.At(i2, j2) * g.Finv.At(i4, j4) * at(i1, j2, i3, j4)
						}
					}
					F2[((i1*td+i2)*vs+i3)*td+i4] = sum
				}
			}
		}
	}
	if !ca.piola {
		copy(G, F2)
		return G
	}
	// PF = J/detJ acts on the value indices
	PF := func(j, i int) float64 { return g.J.At(j, i) / g.DetJ }
	for i1 := 0; i1 < vs; i1++ {
		for i2 := 0; i2 < td; i2++ {
			for i3 := 0; i3 < vs; i3++ {
				for i4 := 0; i4 < td; i4++ {
					var sum float64
					for j1 := 0; j1 < vs; j1++ {
						for j3 := 0; j3 < vs; j3++ {
							sum += PF(j1, i1) * PF(j3, i3) * F2[((j1*td+i2)*vs+j3)*td+i4]
						}
					}
					G[((i1*td+i2)*vs+i3)*td+i4] = sum
				}
			}
		}
	}
	return G
}

// reduce copies the stored part of a full tensor: the diagonal G[a,a] or
// G[i,j,i,j] in diagonal mode, everything otherwise.
func (ca *coefficientAssembler) reduce(full, dst []float64) {
	if !ca.diagonal {
		copy(dst, full)
		return
	}
	td := ca.tdim
	if !ca.rank4 {
		for a := 0; a < td; a++ {
			dst[a] = full[a*td+a]
		}
		return
	}
	for i := 0; i < ca.vs; i++ {
		for j := 0; j < td; j++ {
			dst[i*td+j] = full[((i*td+j)*ca.vs+i)*td+j]
		}
	}
}

// withFacets requests the per facet coefficients of H(div) penalties.
func (ca *coefficientAssembler) withFacets(facets []mesh.Facet) {
	ca.facets = facets
	ca.Facet = make([]facetCoefficient, len(facets))
}

// promoted evaluates a viscosity of any supported shape as a rank 4 tensor,
// a lower rank mu acting as delta_{i1 i3} mu_{j2 j4}
func (ca *coefficientAssembler) promoted(muv []float64) func(i1, j2, i3, j4 int) float64 {
	var (
		gd   = ca.gdim
		vs   = ca.vs
		rank = len(ca.muShape)
	)
	if ca.rank4 {
		return func(i1, j2, i3, j4 int) float64 {
			return muv[((i1*gd+j2)*vs+i3)*gd+j4]
		}
	}
	return func(i1, j2, i3, j4 int) float64 {
		if i1 != i3 {
			return 0
		}
		switch {
		case ca.mu == nil || rank == 0:
			if j2 != j4 {
				return 0
			}
			if ca.mu == nil {
				return 1
			}
			return muv[0]
		case rank == 1:
			if j2 != j4 {
				return 0
			}
			return muv[j2]
		}
		return muv[j2*gd+j4]
	}
}

// assembleFacets evaluates, on both sides of every interior facet, the
// viscosity contracted along the facet normal, vol Finv mu Finv^T, at the
// facet midpoint, and the Piola map of the side.
func (ca *coefficientAssembler) assembleFacets() error {
	var (
		vs, td, gd = ca.vs, ca.tdim, ca.gdim
		muv        = make([]float64, utils.Index(ca.muShape).Prod())
	)
	for f, facet := range ca.facets {
		for s := 0; s < 2; s++ {
			var (
				e    = facet.Cells[s]
				idir = facet.Local[s] / 2
				cell = ca.m.Geometry(e)
				xi   = utils.ConstArray(td, 0.5)
			)
			xi[idir] = float64(facet.Local[s] % 2)
			g, err := newMetric(cell.J)
			if err != nil {
				return fmt.Errorf("cell %d: %w", e, err)
			}
			if ca.mu != nil {
				ca.mu.Eval(e, cell.Map(xi), muv)
			}
			var (
				mu  = ca.promoted(muv)
				vol = math.Abs(g.DetJ)
				M   = mat.NewDense(vs, vs, nil)
				P   = mat.NewDense(td, gd, nil)
			)
			for i := 0; i < vs; i++ {
				for j := 0; j < vs; j++ {
					var sum float64
					for j2 := 0; j2 < gd; j2++ {
						for j4 := 0; j4 < gd; j4++ {
							sum += g.Finv.At(idir, j2) * g.Finv.At(idir, j4) * mu(i, j2, j, j4)
						}
					}
					M.Set(i, j, vol*sum)
				}
			}
			for i := 0; i < td; i++ {
				for j := 0; j < gd; j++ {
					P.Set(i, j, g.J.At(j, i)/g.DetJ)
				}
			}
			ca.Facet[f].G[s] = M
			ca.Facet[f].P[s] = P
		}
	}
	return nil
}

func resize(v []float64, n int) []float64 {
	if cap(v) < n {
		return make([]float64, n)
	}
	return v[:n]
}
