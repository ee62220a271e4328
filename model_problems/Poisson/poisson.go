package Poisson

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gofdm/DG1D"
	"github.com/notargets/gofdm/FDM"
	"github.com/notargets/gofdm/iterative"
	"github.com/notargets/gofdm/mesh"
	"github.com/notargets/gofdm/utils"
)

// Poisson holds the Q(N) discretization of -div(Mu grad u) + C u = f with
// homogeneous Dirichlet conditions on the whole boundary.
type Poisson struct {
	V     *mesh.FunctionSpace
	Mu, C float64
	A     *utils.AIJ
	BCs   []FDM.DirichletBC

	bcDofs []int
	ref    *reference
}

// reference holds the quadrature tabulations on [0,1]^TDim shared by all
// cells: Stiff[a*tdim+b] = T_a W T_b^T and Mass = T W T^T.
type reference struct {
	Stiff []*mat.Dense
	Mass  *mat.Dense
}

type Result struct {
	X            []float64
	Iterations   int
	ResidualNorm float64
	Runtime      time.Duration
}

func NewPoisson(m *mesh.Mesh, N int, Mu, C float64) (p *Poisson, err error) {
	if Mu <= 0 {
		err = fmt.Errorf("viscosity must be positive, have %g", Mu)
		return
	}
	if C < 0 {
		err = fmt.Errorf("reaction must be non negative, have %g", C)
		return
	}
	p = &Poisson{Mu: Mu, C: C}
	if p.V, err = mesh.NewFunctionSpace(m, mesh.FamilyQ, N, 1); err != nil {
		return
	}
	p.BCs = []FDM.DirichletBC{{Component: -1, SubDomain: FDM.OnBoundary}}
	p.bcDofs = p.V.BoundaryDofs(nil, true, -1)
	if p.ref, err = newReference(N, m.TDim); err != nil {
		return
	}
	err = p.Assemble()
	return
}

func newReference(N, tdim int) (ref *reference, err error) {
	var ops *DG1D.ReferenceOperators
	if ops, err = DG1D.SEMhat(N, 2*N+1); err != nil {
		return
	}
	tensor := func(deriv int) (T *mat.Dense) {
		T = mat.DenseCopyOf(pick(ops, deriv == 0))
		for d := 1; d < tdim; d++ {
			var K mat.Dense
			K.Kronecker(T, pick(ops, deriv == d))
			T = &K
		}
		return
	}
	var (
		w = []float64{1}
		T = make([]*mat.Dense, tdim)
	)
	for d := 0; d < tdim; d++ {
		var wn []float64
		for _, a := range w {
			for _, b := range ops.What {
				wn = append(wn, a*b)
			}
		}
		w = wn
		T[d] = tensor(d)
	}
	ref = &reference{
		Stiff: make([]*mat.Dense, tdim*tdim),
		Mass:  gram(tensor(-1), tensor(-1), w),
	}
	for a := 0; a < tdim; a++ {
		for b := 0; b < tdim; b++ {
			ref.Stiff[a*tdim+b] = gram(T[a], T[b], w)
		}
	}
	return
}

func pick(ops *DG1D.ReferenceOperators, deriv bool) *mat.Dense {
	if deriv {
		return ops.Dhat
	}
	return ops.Jhat
}

// gram returns L diag(w) R^T
func gram(L, R *mat.Dense, w []float64) (G *mat.Dense) {
	var (
		nr, nq = L.Dims()
		S      = mat.NewDense(nr, nq, nil)
	)
	S.Apply(func(i, j int, v float64) float64 { return v * w[j] }, L)
	G = new(mat.Dense)
	G.Mul(S, R.T())
	return
}

// cellMatrices returns the element stiffness and mass of cell e.
func (p *Poisson) cellMatrices(e int) (K, M *mat.Dense, err error) {
	var (
		J          = p.V.Mesh.Geometry(e).J
		_, tdim    = J.Dims()
		JtJ, Ginv  mat.Dense
		nn, _      = p.ref.Mass.Dims()
		scaledMass mat.Dense
	)
	JtJ.Mul(J.T(), J)
	vol := math.Sqrt(mat.Det(&JtJ))
	if err = Ginv.Inverse(&JtJ); err != nil {
		err = fmt.Errorf("cell %d: degenerate geometry: %w", e, err)
		return
	}
	K = mat.NewDense(nn, nn, nil)
	for a := 0; a < tdim; a++ {
		for b := 0; b < tdim; b++ {
			if g := p.Mu * vol * Ginv.At(a, b); g != 0 {
				var S mat.Dense
				S.Scale(g, p.ref.Stiff[a*tdim+b])
				K.Add(K, &S)
			}
		}
	}
	scaledMass.Scale(vol, p.ref.Mass)
	M = &scaledMass
	if p.C != 0 {
		var S mat.Dense
		S.Scale(p.C, M)
		K.Add(K, &S)
	}
	return
}

// Assemble builds A with identity rows on the Dirichlet dofs.
func (p *Poisson) Assemble() (err error) {
	var (
		n    = p.V.NumDofs()
		pre  = utils.NewPreallocator(n, n)
		ncel = p.V.Mesh.NumCells()
	)
	scatter := func(ins utils.Inserter, e int, K mat.Matrix) error {
		dofs := p.V.CellDofs(e)
		for i, r := range dofs {
			for j, c := range dofs {
				if err := ins.AddValue(r, c, K.At(i, j)); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for e := 0; e < ncel; e++ {
		if err = scatter(pre, e, p.ref.Mass); err != nil {
			return
		}
	}
	p.A = utils.NewAIJ(pre, "poisson")
	for e := 0; e < ncel; e++ {
		var K *mat.Dense
		if K, _, err = p.cellMatrices(e); err != nil {
			return
		}
		if err = scatter(p.A, e, K); err != nil {
			return
		}
	}
	p.A.ZeroRowsColumns(p.bcDofs, 1)
	return
}

// RHS returns the load vector of the interpolant of f, zero on the
// Dirichlet dofs.
func (p *Poisson) RHS(f func(x []float64) float64) (b []float64, err error) {
	b = make([]float64, p.V.NumDofs())
	for e := 0; e < p.V.Mesh.NumCells(); e++ {
		var M *mat.Dense
		if _, M, err = p.cellMatrices(e); err != nil {
			return
		}
		var (
			dofs = p.V.CellDofs(e)
			fe   = make([]float64, len(dofs))
			be   = mat.NewVecDense(len(dofs), nil)
		)
		for j, dof := range dofs {
			fe[j] = f(p.V.DofCoordinates(dof))
		}
		be.MulVec(M, mat.NewVecDense(len(dofs), fe))
		for j, dof := range dofs {
			b[dof] += be.AtVec(j)
		}
	}
	for _, dof := range p.bcDofs {
		b[dof] = 0
	}
	return
}

// Preconditioner returns an initialized FDM preconditioner for the
// operator.
func (p *Poisson) Preconditioner(opts FDM.Options) (pc *FDM.PC, err error) {
	app := FDM.AppContext{Viscosity: FDM.NewConstant(p.Mu)}
	if p.C != 0 {
		app.Reaction = FDM.NewConstant(p.C)
	}
	pc = FDM.NewPC(opts)
	err = pc.Initialize(FDM.Context{Space: p.V, BCs: p.BCs, App: app})
	return
}

// Solve runs conjugate gradients on A x = b to the relative tolerance rtol,
// preconditioned by pc when it is non-nil.
func (p *Poisson) Solve(b []float64, pc FDM.Preconditioner, rtol float64) (r Result, err error) {
	settings := iterative.Settings{Tolerance: rtol}
	if pc != nil {
		settings.PSolve = func(dst, rhs []float64) error { return pc.Apply(rhs, dst) }
	}
	res, err := iterative.Solve(iterative.MatrixOps{MatVec: p.A.MulVec}, b, &iterative.CG{}, settings)
	r = Result{
		X:            res.X,
		Iterations:   res.Stats.Iterations,
		ResidualNorm: res.Stats.ResidualNorm,
		Runtime:      res.Stats.Runtime,
	}
	switch {
	case err != nil:
		err = fmt.Errorf("poisson solve after %d iterations: %w", r.Iterations, err)
	case utils.IsNan(r.X):
		err = fmt.Errorf("poisson solve produced NaN after %d iterations", r.Iterations)
	}
	return
}

// Error returns the max norm of x minus the interpolant of u.
func (p *Poisson) Error(x []float64, u func(x []float64) float64) float64 {
	diff := make([]float64, len(x))
	for dof := range x {
		diff[dof] = x[dof] - u(p.V.DofCoordinates(dof))
	}
	return floats.Norm(diff, math.Inf(1))
}
