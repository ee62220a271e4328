package kernels

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gofdm/DG1D"
	"github.com/notargets/gofdm/mesh"
)

// Key identifies a kernel set. Every field that changes the generated
// tables or the op list is part of it.
type Key struct {
	Family        mesh.Family
	TDim          int
	Degree, Nq    int
	BlockSize     int
	Eta           float64
	InteriorFacet bool
	// Reaction adds the mass term to the diagonal and stencil kernels
	Reaction bool
	// ReactionBlocks is the size of the per node reaction blocks, 0 for none
	ReactionBlocks int
	DiagonalMode   int
	Stencil        bool
}

// Tables carries the dense matrices the kernels are built from.
type Tables struct {
	// V[c][d] maps FDM coefficients of component c to nodal values along
	// axis d
	V [][]*mat.Dense
	// J and D tabulate the nodal basis and its derivative at the
	// quadrature points along each axis, (n, nq)
	J, D []*mat.Dense
}

// Set groups the kernels of one configuration. Kernels that the
// configuration does not call for are nil.
//
//	Prolong(x, y):        y = (V0 ⊗ V1 ⊗ ...) x
//	Restrict(x, w, y):    y += (V0 ⊗ V1 ⊗ ...)^T (x ∘ w)
//	Diagonal(g, b, diag): diagonal of the cell operator in the FDM basis
//	Stencil(g, b, band):  diagonal and the 2d axis couplings to the end modes
//	Reaction(b, blocks):  per node blocks of a tensor reaction term
type Set struct {
	Key      Key
	Restrict *Program
	Prolong  *Program
	Diagonal *Program
	Stencil  *Program
	Reaction *Program
}

var cache *lru.Cache[Key, *Set]

func init() {
	var err error
	if cache, err = lru.New[Key, *Set](DG1D.CacheSize); err != nil {
		panic(err)
	}
}

// Generate returns the memoized kernel set of key, building it from tables
// on a miss.
func Generate(key Key, tables Tables) (ks *Set, err error) {
	if ks, ok := cache.Get(key); ok {
		return ks, nil
	}
	if ks, err = build(key, tables); err != nil {
		return
	}
	cache.Add(key, ks)
	return
}

type builder struct {
	key    Key
	tables Tables
	ncomp  int
	shapes [][]int
	nq     int
}

func build(key Key, tables Tables) (ks *Set, err error) {
	b := &builder{key: key, tables: tables, ncomp: 1}
	if key.Family == mesh.FamilyHDiv {
		b.ncomp = key.TDim
	}
	if len(tables.V) != b.ncomp {
		err = fmt.Errorf("have %d basis components, want %d", len(tables.V), b.ncomp)
		return
	}
	b.shapes = make([][]int, b.ncomp)
	for c, Vc := range tables.V {
		if len(Vc) != key.TDim {
			err = fmt.Errorf("component %d has %d axes, want %d", c, len(Vc), key.TDim)
			return
		}
		b.shapes[c] = make([]int, key.TDim)
		for d, V := range Vc {
			b.shapes[c][d], _ = V.Dims()
		}
	}
	ks = &Set{Key: key}
	ks.Prolong = b.prolong()
	ks.Restrict = b.restrict()
	needQuadrature := key.DiagonalMode == 1 || key.Stencil || key.ReactionBlocks > 0
	if needQuadrature {
		if key.Family != mesh.FamilyQ {
			err = fmt.Errorf("quadrature kernels need a continuous space, have %v", key.Family)
			return
		}
		if len(tables.J) != key.TDim || len(tables.D) != key.TDim {
			err = fmt.Errorf("missing quadrature tabulation")
			return
		}
		_, b.nq = tables.J[0].Dims()
		if key.DiagonalMode == 1 {
			ks.Diagonal = b.diagonal()
		}
		if key.Stencil {
			if key.BlockSize != 1 {
				err = fmt.Errorf("stencil kernels are scalar, have block size %d", key.BlockSize)
				return
			}
			ks.Stencil = b.stencil()
		}
		if key.ReactionBlocks > 0 {
			ks.Reaction = b.reaction()
		}
	}
	for _, p := range []*Program{ks.Prolong, ks.Restrict, ks.Diagonal, ks.Stencil, ks.Reaction} {
		if p == nil {
			continue
		}
		if err = p.Validate(); err != nil {
			return
		}
	}
	return
}

// cellSize is the length of a cell local vector
func (b *builder) cellSize() (n int) {
	for _, s := range b.shapes {
		n += prod(s)
	}
	if b.ncomp == 1 {
		n *= b.key.BlockSize
	}
	return
}

func (b *builder) batch() int {
	if b.ncomp == 1 {
		return b.key.BlockSize
	}
	return 1
}

func (b *builder) basisTables(p *Program, c int) (names []string) {
	for d, V := range b.tables.V[c] {
		names = append(names, p.AddTable(fmt.Sprintf("V%d_%d", c, d), V))
	}
	return
}

func (b *builder) prolong() (p *Program) {
	var (
		n = b.cellSize()
	)
	p = NewProgram("prolong", n, n)
	off := 0
	for c := range b.shapes {
		p.Add(&Kron{
			Tables: b.basisTables(p, c),
			Batch:  b.batch(),
			Src:    p.Arg(0, off),
			Dst:    p.Arg(1, off),
			Alpha:  1,
		})
		off += prod(b.shapes[c]) * b.batch()
	}
	return
}

func (b *builder) restrict() (p *Program) {
	var (
		n = b.cellSize()
	)
	p = NewProgram("restrict", n, n, n)
	t := p.Temp(n)
	w := p.Arg(1, 0)
	p.Add(&Strided{Dst: t, Src: p.Arg(0, 0), DStride: 1, SStride: 1,
		Weight: &w, WStride: 1, N: n, Alpha: 1})
	off := 0
	for c := range b.shapes {
		p.Add(&Kron{
			Tables:     b.basisTables(p, c),
			Trans:      true,
			Batch:      b.batch(),
			Src:        Ref{Buf: t.Buf, Off: off},
			Dst:        p.Arg(2, off),
			Alpha:      1,
			Accumulate: true,
		})
		off += prod(b.shapes[c]) * b.batch()
	}
	return
}

// productTable returns (X[i,q] * Y[m,q]) with X, Y the FDM tabulation of
// the basis (false) or derivative (true) along axis d. m < 0 pairs each
// row with itself.
func (b *builder) productTable(p *Program, d int, xDeriv, yDeriv bool, m int) string {
	var (
		role = func(deriv bool) string {
			if deriv {
				return "D"
			}
			return "J"
		}
		name = fmt.Sprintf("%s%s%d", role(xDeriv), role(yDeriv), d)
	)
	if m >= 0 {
		name = fmt.Sprintf("%s_m%d", name, m)
	}
	if _, ok := p.Tables[name]; ok {
		return name
	}
	X, Y := b.fdmTabulation(d, xDeriv), b.fdmTabulation(d, yDeriv)
	n, nq := X.Dims()
	P := mat.NewDense(n, nq, nil)
	for i := 0; i < n; i++ {
		for q := 0; q < nq; q++ {
			k := i
			if m >= 0 {
				k = m
			}
			P.Set(i, q, X.At(i, q)*Y.At(k, q))
		}
	}
	return p.AddTable(name, P)
}

// fdmTabulation is V^T J or V^T D along axis d
func (b *builder) fdmTabulation(d int, deriv bool) *mat.Dense {
	var (
		T = b.tables.J[d]
		R mat.Dense
	)
	if deriv {
		T = b.tables.D[d]
	}
	R.Mul(b.tables.V[0][d].T(), T)
	return &R
}

func (b *builder) nqTotal() int {
	n := 1
	for d := 0; d < b.key.TDim; d++ {
		n *= b.nq
	}
	return n
}

func (b *builder) diagonal() (p *Program) {
	var (
		ndim = b.key.TDim
		bs   = b.key.BlockSize
		nn   = prod(b.shapes[0])
		nq   = b.nqTotal()
	)
	p = NewProgram("diagonal", bs*ndim*nq, bs*nq, nn*bs)
	t := p.Temp(nn)
	for c := 0; c < bs; c++ {
		p.Add(&Zero{Dst: t, N: nn})
		for a := 0; a < ndim; a++ {
			tabs := make([]string, ndim)
			for d := range tabs {
				tabs[d] = b.productTable(p, d, d == a, d == a, -1)
			}
			p.Add(&Kron{Tables: tabs, Batch: 1, Src: p.Arg(0, (c*ndim+a)*nq),
				Dst: t, Alpha: 1, Accumulate: true})
		}
		if b.key.Reaction {
			p.Add(&Kron{Tables: b.massTables(p), Batch: 1, Src: p.Arg(1, c*nq),
				Dst: t, Alpha: 1, Accumulate: true})
		}
		p.Add(&Strided{Dst: p.Arg(2, c), Src: t, DStride: bs, SStride: 1, N: nn, Alpha: 1})
	}
	return
}

func (b *builder) massTables(p *Program) (tabs []string) {
	for d := 0; d < b.key.TDim; d++ {
		tabs = append(tabs, b.productTable(p, d, false, false, -1))
	}
	return
}

// StencilWidth is the number of entries per node of a stencil band.
func StencilWidth(tdim int) int { return 2*tdim + 1 }

// StencilNeighbor returns the node coupled to node r by band entry j, the
// node itself for j == 0. Band 1+2a pairs r with the low end mode of axis a
// and 2+2a with the high end mode.
func StencilNeighbor(r, j int, shape []int) int {
	if j == 0 {
		return r
	}
	var (
		axis = (j - 1) / 2
		mi   = make([]int, len(shape))
		rr   = r
	)
	for d := len(shape) - 1; d >= 0; d-- {
		mi[d] = rr % shape[d]
		rr /= shape[d]
	}
	mi[axis] = 0
	if (j-1)%2 == 1 {
		mi[axis] = shape[axis] - 1
	}
	var ind int
	for d := range shape {
		ind = ind*shape[d] + mi[d]
	}
	return ind
}

func (b *builder) stencil() (p *Program) {
	var (
		ndim  = b.key.TDim
		shape = b.shapes[0]
		nn    = prod(shape)
		nq    = b.nqTotal()
		width = StencilWidth(ndim)
	)
	p = NewProgram("stencil", ndim*ndim*nq, nq, nn*width)
	t := p.Temp(nn)
	for j := 0; j < width; j++ {
		var (
			axis, mode = -1, -1
		)
		if j > 0 {
			axis = (j - 1) / 2
			mode = 0
			if (j-1)%2 == 1 {
				mode = shape[axis] - 1
			}
		}
		tables := func(ga, gb int) (tabs []string) {
			for d := 0; d < ndim; d++ {
				m := -1
				if d == axis {
					m = mode
				}
				tabs = append(tabs, b.productTable(p, d, d == ga, d == gb, m))
			}
			return
		}
		p.Add(&Zero{Dst: t, N: nn})
		for ga := 0; ga < ndim; ga++ {
			for gb := 0; gb < ndim; gb++ {
				p.Add(&Kron{Tables: tables(ga, gb), Batch: 1, Src: p.Arg(0, (ga*ndim+gb)*nq),
					Dst: t, Alpha: 1, Accumulate: true})
			}
		}
		if b.key.Reaction {
			p.Add(&Kron{Tables: tables(-1, -1), Batch: 1, Src: p.Arg(1, 0),
				Dst: t, Alpha: 1, Accumulate: true})
		}
		p.Add(&Strided{Dst: p.Arg(2, j), Src: t, DStride: width, SStride: 1, N: nn, Alpha: 1})
	}
	return
}

func (b *builder) reaction() (p *Program) {
	var (
		ns = b.key.ReactionBlocks
		nn = prod(b.shapes[0])
		nq = b.nqTotal()
	)
	p = NewProgram("reaction", ns*ns*nq, nn*ns*ns)
	t := p.Temp(nn)
	for c := 0; c < ns*ns; c++ {
		p.Add(&Kron{Tables: b.massTables(p), Batch: 1, Src: p.Arg(0, c*nq), Dst: t, Alpha: 1})
		p.Add(&Strided{Dst: p.Arg(1, c), Src: t, DStride: ns * ns, SStride: 1, N: nn, Alpha: 1})
	}
	return
}
