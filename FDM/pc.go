package FDM

import (
	"fmt"
	"io"
	"log"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gofdm/DG1D"
	"github.com/notargets/gofdm/iterative"
	"github.com/notargets/gofdm/kernels"
	"github.com/notargets/gofdm/mesh"
	"github.com/notargets/gofdm/utils"
)

// State is the lifecycle position of a PC.
type State uint8

const (
	StateUninitialized State = iota
	StateReady
	StateUpdated
	StateApplying
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateReady:
		return "Ready"
	case StateUpdated:
		return "Updated"
	case StateApplying:
		return "Applying"
	case StateFailed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Preconditioner is the contract a Krylov solver drives.
type Preconditioner interface {
	Initialize(ctx Context) error
	Update() error
	Apply(x, y []float64) error
	ApplyTranspose(x, y []float64) error
	View(w io.Writer)
}

var _ Preconditioner = (*PC)(nil)

// strategy is the boundary treatment implied by the element family
type strategy uint8

const (
	strategyStrong strategy = iota
	strategyIPDG
	strategyHDiv
)

func (s strategy) String() string {
	switch s {
	case strategyStrong:
		return "strong"
	case strategyIPDG:
		return "ipdg"
	}
	return "hdiv"
}

func (s strategy) interiorFacets() bool { return s != strategyStrong }

// PC approximates the inverse of a high order operator by a sparse matrix
// assembled in the FDM basis and solved with an inner solver. Apply moves
// the residual into the FDM basis, solves and moves the correction back.
type PC struct {
	opts  Options
	state State

	ctx      Context
	V        *mesh.FunctionSpace
	strategy strategy
	ndim     int
	// ncomp is the number of scalar blocks per cell, the block size for Q
	// and DQ, the dimension for HDiv
	ncomp int
	N, Nq int
	eta   float64

	// bases[c][d] is the 1D basis of component c along axis d, a single
	// row when every component shares it
	bases   [][]*Basis1D
	flags   *BoundaryFlags
	bcDofs  []int
	lgmap   []int
	weights []float64
	facets  []mesh.Facet
	ks      *kernels.Set
	coef    *coefficientAssembler
	// separateReaction assembles a tensor reaction on its own, see
	// assembleReaction
	separateReaction bool

	A     *utils.AIJ
	inner iterative.InnerSolver

	uc, uf []float64
}

func NewPC(opts Options) *PC {
	return &PC{opts: opts}
}

func (pc *PC) State() State { return pc.state }

// Matrix is the assembled FDM matrix, nil before Initialize.
func (pc *PC) Matrix() *utils.AIJ { return pc.A }

// Space is the function space of the preconditioned operator.
func (pc *PC) Space() *mesh.FunctionSpace { return pc.V }

func (pc *PC) Initialize(ctx Context) (err error) {
	if pc.state != StateUninitialized {
		return fmt.Errorf("%w: Initialize in state %v", ErrState, pc.state)
	}
	start := time.Now()
	if err = pc.setup(ctx); err != nil {
		return
	}
	var (
		n = pc.V.NumDofs()
		p = utils.NewPreallocator(n, n)
	)
	pc.coef.fill(1)
	if err = pc.assemble(p, true); err != nil {
		return
	}
	pc.A = utils.NewAIJ(p, "fdm")
	pc.inner = iterative.NewInnerSolver(pc.opts.Inner)
	pc.uc, pc.uf = make([]float64, n), make([]float64, n)
	pc.state = StateReady
	if pc.opts.Verbose {
		log.Printf("fdm: %s strategy on %v(%d) with %d dofs, %d nonzeros preallocated in %v",
			pc.strategy, pc.V.Family, pc.N, n, pc.A.NNZ(), time.Since(start))
	}
	return pc.Update()
}

// setup validates the context and builds everything that does not depend
// on coefficient values.
func (pc *PC) setup(ctx Context) (err error) {
	if err = pc.opts.Validate(); err != nil {
		return
	}
	V := ctx.Space
	if V == nil {
		return fmt.Errorf("%w: no function space", ErrConfiguration)
	}
	pc.ctx, pc.V = ctx, V
	switch V.Family {
	case mesh.FamilyQ:
		pc.strategy = strategyStrong
	case mesh.FamilyDQ:
		pc.strategy = strategyIPDG
	case mesh.FamilyHDiv:
		pc.strategy = strategyHDiv
	default:
		return fmt.Errorf("%w: element family %v", ErrNotImplemented, V.Family)
	}
	pc.ndim = V.Mesh.TDim
	pc.ncomp = V.ValueSize()
	pc.N = V.Degree
	pc.Nq = 2*pc.N + 1
	if pc.eta = ctx.App.Eta; pc.eta == 0 {
		pc.eta = float64((pc.N + 1) * (pc.N + pc.ndim))
	}
	if err = pc.checkSupported(); err != nil {
		return
	}
	if pc.flags, err = GetBoundaryFlags(V, ctx.BCs, ctx.Form); err != nil {
		return
	}
	pc.bcDofs = boundaryDofs(V, ctx.BCs)
	pc.lgmap = V.LocalToGlobal(pc.bcDofs)
	pc.weights = utils.Reciprocal(V.Multiplicity())
	if pc.strategy.interiorFacets() {
		if pc.facets, err = V.Mesh.InteriorFacets(); err != nil {
			return fmt.Errorf("interior facets of %v space: %w", V.Family, err)
		}
	}
	if err = pc.buildBases(); err != nil {
		return
	}
	diagonal := pc.opts.Type == TypeAffine
	if pc.coef, err = newCoefficientAssembler(V, ctx.App, pc.Nq, diagonal, pc.strategy == strategyHDiv); err != nil {
		return
	}
	if pc.strategy == strategyHDiv {
		pc.coef.withFacets(pc.facets)
	}
	pc.separateReaction = pc.coef.B != nil && pc.strategy != strategyHDiv && pc.coef.B.Rank() == 2
	return pc.generateKernels()
}

func (pc *PC) checkSupported() error {
	var (
		V      = pc.V
		app    = pc.ctx.App
		rankOf = func(c Coefficient) int {
			if c == nil {
				return 0
			}
			return len(c.Shape())
		}
	)
	if pc.opts.TrueDiagonal > 0 && pc.strategy.interiorFacets() {
		return fmt.Errorf("%w: %strue_diagonal=%d needs a continuous space, have %v",
			ErrConfiguration, OptionsPrefix, pc.opts.TrueDiagonal, V.Family)
	}
	if pc.opts.Type == TypeStencil {
		switch {
		case pc.strategy != strategyStrong || V.BlockSize != 1:
			return fmt.Errorf("%w: %stype=%s on a %v space with block size %d",
				ErrNotImplemented, OptionsPrefix, TypeStencil, V.Family, V.BlockSize)
		case rankOf(app.Viscosity) == 4:
			return fmt.Errorf("%w: %stype=%s with a rank 4 viscosity", ErrNotImplemented, OptionsPrefix, TypeStencil)
		case rankOf(app.Reaction) > 0:
			return fmt.Errorf("%w: %stype=%s with a tensor reaction", ErrNotImplemented, OptionsPrefix, TypeStencil)
		}
	}
	if pc.strategy == strategyHDiv {
		switch {
		case V.Mesh.GDim != V.Mesh.TDim:
			return fmt.Errorf("%w: HDiv on an embedded mesh", ErrNotImplemented)
		case V.Degree < 2:
			return fmt.Errorf("%w: HDiv of degree %d", ErrNotImplemented, V.Degree)
		case rankOf(app.Reaction) == 2:
			return fmt.Errorf("%w: rank 2 reaction on HDiv", ErrNotImplemented)
		}
	}
	return nil
}

func (pc *PC) buildBases() (err error) {
	var (
		ops, opsLow *DG1D.ReferenceOperators
		b, bLow     *Basis1D
		row         = func(b *Basis1D) (r []*Basis1D) {
			for d := 0; d < pc.ndim; d++ {
				r = append(r, b)
			}
			return
		}
	)
	if ops, err = DG1D.SEMhat(pc.N, pc.Nq); err != nil {
		return
	}
	switch pc.strategy {
	case strategyStrong:
		if b, err = NewBasisCG(ops); err != nil {
			return
		}
		pc.bases = [][]*Basis1D{row(b)}
	case strategyIPDG:
		if b, err = NewBasisIPDG(ops, pc.eta, false); err != nil {
			return
		}
		pc.bases = [][]*Basis1D{row(b)}
	case strategyHDiv:
		if b, err = NewBasisIPDG(ops, pc.eta, true); err != nil {
			return
		}
		if opsLow, err = DG1D.SEMhat(pc.N-1, pc.Nq); err != nil {
			return
		}
		if bLow, err = NewBasisIPDG(opsLow, pc.eta, false); err != nil {
			return
		}
		pc.bases = make([][]*Basis1D, pc.ndim)
		for c := range pc.bases {
			pc.bases[c] = row(bLow)
			pc.bases[c][c] = b
		}
	}
	return
}

func (pc *PC) basis(c, d int) *Basis1D {
	if len(pc.bases) == 1 {
		c = 0
	}
	return pc.bases[c][d]
}

func (pc *PC) generateKernels() (err error) {
	var (
		key = kernels.Key{
			Family:        pc.V.Family,
			TDim:          pc.ndim,
			Degree:        pc.N,
			Nq:            pc.Nq,
			BlockSize:     pc.V.BlockSize,
			Eta:           pc.eta,
			InteriorFacet: pc.strategy.interiorFacets(),
			Reaction:      pc.coef.B != nil,
			DiagonalMode:  pc.opts.TrueDiagonal,
			Stencil:       pc.opts.Type == TypeStencil,
		}
		tables kernels.Tables
	)
	if pc.separateReaction && pc.opts.TrueDiagonal == 2 {
		key.ReactionBlocks = pc.coef.B.Shape[0]
	}
	tables.V = make([][]*mat.Dense, len(pc.bases))
	for c := range tables.V {
		for d := 0; d < pc.ndim; d++ {
			tables.V[c] = append(tables.V[c], pc.basis(c, d).V)
		}
	}
	if pc.strategy == strategyStrong {
		ops, _ := DG1D.SEMhat(pc.N, pc.Nq)
		for d := 0; d < pc.ndim; d++ {
			tables.J = append(tables.J, ops.Jhat)
			tables.D = append(tables.D, ops.Dhat)
		}
	}
	pc.ks, err = kernels.Generate(key, tables)
	return
}

// Update re-evaluates the coefficients, reassembles the matrix values into
// the fixed pattern and refactors the inner solver.
func (pc *PC) Update() (err error) {
	switch pc.state {
	case StateReady, StateUpdated, StateFailed:
	default:
		return fmt.Errorf("%w: Update in state %v", ErrState, pc.state)
	}
	defer func() {
		if err != nil {
			pc.state = StateFailed
		}
	}()
	start := time.Now()
	if err = pc.coef.assemble(); err != nil {
		return
	}
	pc.A.ZeroEntries()
	if err = pc.assemble(pc.A, false); err != nil {
		return
	}
	if pc.opts.TrueDiagonal == 1 {
		if err = pc.scaleToTrueDiagonal(); err != nil {
			return
		}
	}
	pc.A.ZeroRowsColumns(pc.bcDofs, 1)
	if !utils.IsFinite(pc.A.Values()) {
		return fmt.Errorf("%w: check the coefficients", ErrNumerical)
	}
	if err = pc.inner.SetOperator(pc.A); err != nil {
		return
	}
	pc.state = StateUpdated
	if pc.opts.Verbose {
		log.Printf("fdm: updated %d x %d matrix in %v", pc.V.NumDofs(), pc.V.NumDofs(), time.Since(start))
	}
	return
}

// Apply computes y = P^-1 x. Dirichlet entries of x pass through unchanged.
func (pc *PC) Apply(x, y []float64) (err error) {
	if pc.state != StateUpdated {
		return fmt.Errorf("%w: Apply in state %v", ErrState, pc.state)
	}
	n := pc.V.NumDofs()
	if len(x) != n || len(y) != n {
		return fmt.Errorf("%w: vectors of length %d and %d for %d dofs", ErrConfiguration, len(x), len(y), n)
	}
	pc.state = StateApplying
	defer func() { pc.state = StateUpdated }()

	for i := range pc.uc {
		pc.uc[i] = 0
	}
	var (
		ncell = pc.V.Mesh.NumCells()
		size  = len(pc.V.CellDofs(0))
		xe    = make([]float64, size)
		we    = make([]float64, size)
		ye    = make([]float64, size)
	)
	for e := 0; e < ncell; e++ {
		dofs := pc.V.CellDofs(e)
		for j, dof := range dofs {
			xe[j], we[j], ye[j] = x[dof], pc.weights[dof], 0
		}
		if err = pc.ks.Restrict.Run(xe, we, ye); err != nil {
			return
		}
		for j, dof := range dofs {
			pc.uc[dof] += ye[j]
		}
	}
	for _, dof := range pc.bcDofs {
		pc.uc[dof] = 0
	}
	if err = pc.inner.Solve(pc.uc, pc.uf); err != nil {
		return fmt.Errorf("fdm inner solve: %w", err)
	}
	for _, dof := range pc.bcDofs {
		pc.uf[dof] = 0
	}
	for e := 0; e < ncell; e++ {
		dofs := pc.V.CellDofs(e)
		for j, dof := range dofs {
			xe[j] = pc.uf[dof]
		}
		if err = pc.ks.Prolong.Run(xe, ye); err != nil {
			return
		}
		for j, dof := range dofs {
			y[dof] = ye[j]
		}
	}
	for _, dof := range pc.bcDofs {
		y[dof] = x[dof]
	}
	return
}

// ApplyTranspose is Apply, the FDM matrix is symmetric.
func (pc *PC) ApplyTranspose(x, y []float64) error { return pc.Apply(x, y) }

func (pc *PC) View(w io.Writer) {
	fmt.Fprintf(w, "FDM preconditioner: state=%v, type=%s, true_diagonal=%d\n",
		pc.state, pc.opts.Type, pc.opts.TrueDiagonal)
	if pc.V == nil {
		return
	}
	fmt.Fprintf(w, "  space: %v(%d), block size %d, %d dofs, %d Dirichlet\n",
		pc.V.Family, pc.N, pc.V.BlockSize, pc.V.NumDofs(), len(pc.bcDofs))
	fmt.Fprintf(w, "  strategy=%s, eta=%g, quadrature degree %d\n", pc.strategy, pc.eta, pc.Nq)
	if pc.A != nil {
		nr, nc := pc.A.Dims()
		fmt.Fprintf(w, "  Mat Object: %s, rows=%d, cols=%d, nnz=%d\n", pc.A.Name(), nr, nc, pc.A.NNZ())
	}
	if pc.inner != nil {
		pc.inner.View(w)
	}
}
