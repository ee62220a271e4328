package FDM

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gofdm/mesh"
	"github.com/notargets/gofdm/utils"
)

func newTestPC(t *testing.T, opts Options, ctx Context) *PC {
	pc := NewPC(opts)
	require.NoError(t, pc.Initialize(ctx))
	require.Equal(t, StateUpdated, pc.State())
	return pc
}

func testVector(n, seed int) (x []float64) {
	x = make([]float64, n)
	for i := range x {
		x[i] = math.Sin(float64(i*(seed+3))+0.3*float64(seed)) + 0.1
	}
	return
}

func varyingViscosity() Coefficient {
	return Func{F: func(_ int, x []float64, v []float64) {
		v[0] = 1 + 0.5*x[0]*x[0] + 0.25*x[len(x)-1]
	}}
}

func assertSymmetric(t *testing.T, A mat.Matrix, tol float64) {
	n, _ := A.Dims()
	for i := 0; i < n; i++ {
		for j := 0; j < i; j++ {
			require.InDeltaf(t, A.At(i, j), A.At(j, i), tol, "(%d,%d)", i, j)
		}
	}
}

func TestUpdateIsBitIdentical(t *testing.T) {
	var (
		V   = unitSquareSpace(t, mesh.FamilyQ, 3, 1, 3, 3)
		ctx = Context{
			Space: V,
			BCs:   []DirichletBC{{Component: -1, SubDomain: OnBoundary}},
			App:   AppContext{Viscosity: varyingViscosity(), Reaction: NewConstant(0.5)},
		}
		pc = newTestPC(t, DefaultOptions(), ctx)
	)
	first := append([]float64{}, pc.Matrix().Values()...)
	require.NoError(t, pc.Update())
	assert.Equal(t, first, pc.Matrix().Values())
	assertSymmetric(t, pc.Matrix(), 1e-10)
}

func TestUpdatePicksUpCoefficientChanges(t *testing.T) {
	var (
		V   = unitSquareSpace(t, mesh.FamilyQ, 2, 1, 2, 2)
		mu  = NewConstant(1)
		ctx = Context{
			Space: V,
			BCs:   []DirichletBC{NewDirichletBC(-1, 1, 2, 3, 4)},
			App:   AppContext{Viscosity: mu},
		}
		pc = newTestPC(t, DefaultOptions(), ctx)
	)
	first := pc.Matrix().Diagonal()
	mu.Set(3)
	require.NoError(t, pc.Update())
	bc := make(map[int]bool)
	for _, dof := range pc.bcDofs {
		bc[dof] = true
	}
	for i, d := range pc.Matrix().Diagonal() {
		if bc[i] {
			assert.Equal(t, 1., d)
			continue
		}
		assert.InDelta(t, 3*first[i], d, 1e-12*math.Abs(d))
	}
}

func applyIsSymmetric(t *testing.T, pc *PC) {
	var (
		n      = pc.Space().NumDofs()
		x1, x2 = testVector(n, 1), testVector(n, 2)
		y1, y2 = make([]float64, n), make([]float64, n)
	)
	require.NoError(t, pc.Apply(x1, y1))
	require.NoError(t, pc.ApplyTranspose(x2, y2))
	var (
		a = floats.Dot(y1, x2)
		b = floats.Dot(x1, y2)
	)
	assert.InDelta(t, a, b, 1e-10*math.Max(1, math.Abs(a)))
	for _, dof := range pc.bcDofs {
		assert.Equal(t, x1[dof], y1[dof])
	}
}

func TestApplyIsSymmetric(t *testing.T) {
	weak := WeakForm{ExteriorIntegrals: []ExteriorIntegral{{Type: ExteriorFacet, Everywhere: true}}}
	for _, tc := range []struct {
		name string
		opts func(o *Options)
		ctx  Context
	}{
		{name: "Q3 dirichlet", ctx: Context{
			Space: unitSquareSpace(t, mesh.FamilyQ, 3, 1, 3, 2),
			BCs:   []DirichletBC{NewDirichletBC(-1, 1, 3)},
			App:   AppContext{Viscosity: varyingViscosity()},
		}},
		{name: "Q2 3D", ctx: Context{
			Space: unitSquareSpace(t, mesh.FamilyQ, 2, 1, 2, 2, 2),
			BCs:   []DirichletBC{{Component: -1, SubDomain: OnBoundary}},
		}},
		{name: "DQ2 weak", ctx: Context{
			Space: unitSquareSpace(t, mesh.FamilyDQ, 2, 1, 3, 3),
			Form:  weak,
			App:   AppContext{Viscosity: varyingViscosity()},
		}},
		{name: "DQ1 vector", ctx: Context{
			Space: unitSquareSpace(t, mesh.FamilyDQ, 1, 2, 2, 2),
			BCs:   []DirichletBC{NewDirichletBC(0, 1)},
			App:   AppContext{Reaction: NewConstant(1)},
		}},
		{name: "Q2 vector reaction blocks", opts: func(o *Options) { o.TrueDiagonal = 2 }, ctx: Context{
			Space: unitSquareSpace(t, mesh.FamilyQ, 2, 2, 2, 2),
			BCs:   []DirichletBC{NewDirichletBC(1, 1)},
			App:   AppContext{Reaction: mustTensor(t, []int{2, 2}, 2, 0.5, 0.5, 1)},
		}},
		{name: "Q2 vector tensor reaction", ctx: Context{
			Space: unitSquareSpace(t, mesh.FamilyQ, 2, 2, 2, 2),
			BCs:   []DirichletBC{NewDirichletBC(1, 1)},
			App:   AppContext{Reaction: mustTensor(t, []int{2, 2}, 2, 0.5, 0.5, 1)},
		}},
		{name: "HDiv2", ctx: Context{
			Space: unitSquareSpace(t, mesh.FamilyHDiv, 2, 0, 2, 2),
			App:   AppContext{Reaction: NewConstant(1)},
		}},
		{name: "Q2 stencil", opts: func(o *Options) { o.Type = TypeStencil }, ctx: Context{
			Space: unitSquareSpace(t, mesh.FamilyQ, 2, 1, 3, 2),
			BCs:   []DirichletBC{{Component: -1, SubDomain: OnBoundary}},
			App:   AppContext{Viscosity: varyingViscosity(), Reaction: NewConstant(1)},
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			if tc.opts != nil {
				tc.opts(&opts)
			}
			pc := newTestPC(t, opts, tc.ctx)
			assertSymmetric(t, pc.Matrix(), 1e-10)
			applyIsSymmetric(t, pc)
		})
	}
}

func mustTensor(t *testing.T, shape []int, values ...float64) *Constant {
	c, err := NewTensorConstant(shape, values...)
	require.NoError(t, err)
	return c
}

func TestApplyInvertsMatrixInFDMBasis(t *testing.T) {
	// a discontinuous space has no shared dofs, so prolongation composed
	// with the matrix and restriction gives back the input
	var (
		ctx = Context{
			Space: unitSquareSpace(t, mesh.FamilyDQ, 2, 1, 2, 1),
			App:   AppContext{Reaction: NewConstant(1)},
		}
		pc = newTestPC(t, DefaultOptions(), ctx)
		n  = ctx.Space.NumDofs()
		u  = testVector(n, 4)
		x  = make([]float64, n)
		y  = make([]float64, n)
		Au = make([]float64, n)
	)
	pc.Matrix().MulVec(Au, u)
	// x = V^-T A u so that V^T x = A u
	for e := 0; e < ctx.Space.Mesh.NumCells(); e++ {
		var (
			dofs = ctx.Space.CellDofs(e)
			V    = cellBasis(pc)
			b    = mat.NewVecDense(len(dofs), nil)
			xe   mat.VecDense
		)
		for j, dof := range dofs {
			b.SetVec(j, Au[dof])
		}
		require.NoError(t, xe.SolveVec(V.T(), b))
		for j, dof := range dofs {
			x[dof] = xe.AtVec(j)
		}
	}
	require.NoError(t, pc.Apply(x, y))
	// y = V u
	for e := 0; e < ctx.Space.Mesh.NumCells(); e++ {
		var (
			dofs = ctx.Space.CellDofs(e)
			V    = cellBasis(pc)
			ue   = mat.NewVecDense(len(dofs), nil)
			want mat.VecDense
		)
		for j, dof := range dofs {
			ue.SetVec(j, u[dof])
		}
		want.MulVec(V, ue)
		for j, dof := range dofs {
			assert.InDelta(t, want.AtVec(j), y[dof], 1e-9)
		}
	}
}

// cellBasis is the dense tensor product of the 1D bases of a scalar space
func cellBasis(pc *PC) (V *mat.Dense) {
	V = mat.DenseCopyOf(pc.basis(0, 0).V)
	for d := 1; d < pc.ndim; d++ {
		var K mat.Dense
		K.Kronecker(V, pc.basis(0, d).V)
		V = &K
	}
	return
}

func TestTrueDiagonalScaling(t *testing.T) {
	var (
		V   = unitSquareSpace(t, mesh.FamilyQ, 3, 1, 2, 2)
		ctx = Context{
			Space: V,
			BCs:   []DirichletBC{NewDirichletBC(-1, 1, 4)},
			App:   AppContext{Viscosity: varyingViscosity(), Reaction: NewConstant(2)},
		}
		opts = DefaultOptions()
	)
	opts.TrueDiagonal = 1
	pc := newTestPC(t, opts, ctx)
	want, err := pc.trueDiagonal()
	require.NoError(t, err)
	bc := make(map[int]bool)
	for _, dof := range pc.bcDofs {
		bc[dof] = true
	}
	for i, d := range pc.Matrix().Diagonal() {
		if bc[i] {
			assert.Equal(t, 1., d)
			continue
		}
		assert.InDelta(t, want[i], d, 1e-10*math.Abs(want[i]))
	}
	assertSymmetric(t, pc.Matrix(), 1e-10)
}

func TestStencilDiagonalMatchesAffine(t *testing.T) {
	// on affine cells with constant coefficients both are exact on the
	// diagonal
	var (
		ctx = Context{
			Space: unitSquareSpace(t, mesh.FamilyQ, 4, 1, 2, 3),
			BCs:   []DirichletBC{NewDirichletBC(-1, 1)},
			App:   AppContext{Viscosity: NewConstant(2), Reaction: NewConstant(1)},
		}
		stencil = DefaultOptions()
	)
	stencil.Type = TypeStencil
	stencil.Inner.KSPType = "cg"
	stencil.Inner.PCType = "jacobi"
	var (
		affine = newTestPC(t, DefaultOptions(), ctx)
		band   = newTestPC(t, stencil, ctx)
	)
	want := affine.Matrix().Diagonal()
	for i, d := range band.Matrix().Diagonal() {
		assert.InDelta(t, want[i], d, 1e-9*math.Max(1, math.Abs(want[i])))
	}
	assert.LessOrEqual(t, band.Matrix().NNZ(), affine.Matrix().NNZ())
}

func TestStencilIsPositiveDefinite(t *testing.T) {
	// natural boundaries leave end modes free, their couplings must be
	// assembled in both triangles
	opts := DefaultOptions()
	opts.Type = TypeStencil
	pc := newTestPC(t, opts, Context{
		Space: unitSquareSpace(t, mesh.FamilyQ, 4, 1, 2, 3),
		BCs:   []DirichletBC{NewDirichletBC(-1, 1)},
		App:   AppContext{Viscosity: NewConstant(2), Reaction: NewConstant(1)},
	})
	assertSymmetric(t, pc.Matrix(), 1e-10)
	var eig mat.EigenSym
	require.True(t, eig.Factorize(utils.Symmetrize(pc.Matrix().ToDense()), false))
	assert.Greater(t, floats.Min(eig.Values(nil)), 0.)
}

func TestStencilIndefiniteUpdateFails(t *testing.T) {
	opts := DefaultOptions()
	opts.Type = TypeStencil
	var (
		react = NewConstant(1)
		pc    = newTestPC(t, opts, Context{
			Space: unitSquareSpace(t, mesh.FamilyQ, 3, 1, 2, 2),
			BCs:   []DirichletBC{NewDirichletBC(-1, 1)},
			App:   AppContext{Reaction: react},
		})
		x = testVector(pc.V.NumDofs(), 1)
	)
	react.Set(-1000)
	assert.Error(t, pc.Update())
	assert.Equal(t, StateFailed, pc.State())
	assert.ErrorIs(t, pc.Apply(x, make([]float64, len(x))), ErrState)
}

func TestVariableLayersContinuous(t *testing.T) {
	base, err := mesh.NewUnitBoxMesh(2)
	require.NoError(t, err)
	m, err := mesh.NewVariableExtrudedMesh(base, [][2]int{{0, 2}, {0, 1}}, 0.5)
	require.NoError(t, err)
	V, err := mesh.NewFunctionSpace(m, mesh.FamilyQ, 2, 1)
	require.NoError(t, err)
	pc := newTestPC(t, DefaultOptions(), Context{
		Space: V,
		BCs:   []DirichletBC{{Component: -1, SubDomain: Top}, {Component: -1, SubDomain: OnBoundary}},
	})
	applyIsSymmetric(t, pc)

	V, err = mesh.NewFunctionSpace(m, mesh.FamilyDQ, 2, 1)
	require.NoError(t, err)
	err = NewPC(DefaultOptions()).Initialize(Context{Space: V})
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestExtrudedDiscontinuous(t *testing.T) {
	base, err := mesh.NewUnitBoxMesh(2, 2)
	require.NoError(t, err)
	m, err := mesh.NewExtrudedMesh(base, 2, 0.5)
	require.NoError(t, err)
	V, err := mesh.NewFunctionSpace(m, mesh.FamilyDQ, 1, 1)
	require.NoError(t, err)
	pc := newTestPC(t, DefaultOptions(), Context{
		Space: V,
		Form: WeakForm{ExteriorIntegrals: []ExteriorIntegral{
			{Type: ExteriorFacetTop, Everywhere: true},
			{Type: ExteriorFacetBottom, Everywhere: true},
		}},
	})
	assertSymmetric(t, pc.Matrix(), 1e-10)
	applyIsSymmetric(t, pc)
}

func TestStateErrors(t *testing.T) {
	var (
		pc = NewPC(DefaultOptions())
		x  = make([]float64, 4)
	)
	assert.Equal(t, "Uninitialized", pc.State().String())
	assert.ErrorIs(t, pc.Apply(x, x), ErrState)
	assert.ErrorIs(t, pc.Update(), ErrState)

	ctx := Context{
		Space: unitSquareSpace(t, mesh.FamilyQ, 1, 1, 1, 1),
		BCs:   []DirichletBC{NewDirichletBC(-1, 1)},
	}
	require.NoError(t, pc.Initialize(ctx))
	assert.ErrorIs(t, pc.Initialize(ctx), ErrState)
	assert.ErrorIs(t, pc.Apply(x[:3], x), ErrConfiguration)

	// a negative reaction makes the matrix indefinite, the update fails
	// and apply is refused until a good update
	react := NewConstant(0)
	pc = NewPC(DefaultOptions())
	require.NoError(t, pc.Initialize(Context{Space: ctx.Space, BCs: ctx.BCs, App: AppContext{Reaction: react}}))
	react.Set(-1000)
	assert.Error(t, pc.Update())
	assert.Equal(t, StateFailed, pc.State())
	assert.ErrorIs(t, pc.Apply(x, x), ErrState)
	react.Set(1)
	require.NoError(t, pc.Update())
	assert.NoError(t, pc.Apply(x, make([]float64, 4)))
	react.Set(math.NaN())
	assert.ErrorIs(t, pc.Update(), ErrNumerical)
	assert.Equal(t, StateFailed, pc.State())
}

func TestInitializeErrors(t *testing.T) {
	var (
		scalarQ = unitSquareSpace(t, mesh.FamilyQ, 2, 1, 2, 2)
		dq      = unitSquareSpace(t, mesh.FamilyDQ, 2, 1, 2, 2)
		rank3   = Func{S: []int{2, 2, 2}, F: func(int, []float64, []float64) {}}
	)
	for _, tc := range []struct {
		name string
		opts func(o *Options)
		ctx  Context
		want error
	}{
		{"no space", nil, Context{}, ErrConfiguration},
		{"bad type", func(o *Options) { o.Type = "dense" }, Context{Space: scalarQ}, ErrConfiguration},
		{"stencil on DQ", func(o *Options) { o.Type = TypeStencil }, Context{Space: dq}, ErrNotImplemented},
		{"stencil on vector Q", func(o *Options) { o.Type = TypeStencil },
			Context{Space: unitSquareSpace(t, mesh.FamilyQ, 2, 2, 2, 2)}, ErrNotImplemented},
		{"stencil tensor reaction", func(o *Options) { o.Type = TypeStencil },
			Context{Space: scalarQ, App: AppContext{Reaction: mustTensor(t, []int{1}, 1)}}, ErrNotImplemented},
		{"true diagonal on DQ", func(o *Options) { o.TrueDiagonal = 1 }, Context{Space: dq}, ErrConfiguration},
		{"HDiv degree 1", nil, Context{Space: unitSquareSpace(t, mesh.FamilyHDiv, 1, 0, 2, 2)}, ErrNotImplemented},
		{"HDiv tensor reaction", nil, Context{Space: unitSquareSpace(t, mesh.FamilyHDiv, 2, 0, 2, 2),
			App: AppContext{Reaction: mustTensor(t, []int{2, 2}, 1, 0, 0, 1)}}, ErrNotImplemented},
		{"component of scalar", nil, Context{Space: scalarQ, BCs: []DirichletBC{NewDirichletBC(0, 1)}}, ErrConfiguration},
		{"rank 3 viscosity", nil, Context{Space: scalarQ, App: AppContext{Viscosity: rank3}}, ErrUnsupportedTensorRank},
	} {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			if tc.opts != nil {
				tc.opts(&opts)
			}
			pc := NewPC(opts)
			assert.ErrorIs(t, pc.Initialize(tc.ctx), tc.want)
			assert.Equal(t, StateUninitialized, pc.State())
		})
	}
}

func TestParseOptions(t *testing.T) {
	o, err := ParseOptions(map[string]string{
		"fdm_type":          "stencil",
		"fdm_true_diagonal": "0",
		"fdm_verbose":       "true",
		"fdm_ksp_type":      "cg",
		"fdm_pc_type":       "jacobi",
		"fdm_ksp_rtol":      "1e-6",
		"unrelated":         "x",
	})
	require.NoError(t, err)
	assert.Equal(t, TypeStencil, o.Type)
	assert.True(t, o.Verbose)
	assert.Equal(t, "cg", o.Inner.KSPType)
	assert.Equal(t, "jacobi", o.Inner.PCType)
	assert.Equal(t, 1e-6, o.Inner.RTol)

	for _, bad := range []map[string]string{
		{"fdm_type": "dense"},
		{"fdm_true_diagonal": "3"},
		{"fdm_true_diagonal": "yes"},
		{"fdm_verbose": "loud"},
		{"fdm_ksp_type": "gmres"},
	} {
		_, err = ParseOptions(bad)
		assert.ErrorIs(t, err, ErrConfiguration, "%v", bad)
	}
}

func TestView(t *testing.T) {
	var (
		opts = DefaultOptions()
		buf  bytes.Buffer
	)
	opts.Inner.KSPType, opts.Inner.PCType = "cg", "jacobi"
	pc := newTestPC(t, opts, Context{
		Space: unitSquareSpace(t, mesh.FamilyQ, 2, 1, 2, 2),
		BCs:   []DirichletBC{{Component: -1, SubDomain: OnBoundary}},
	})
	pc.View(&buf)
	out := buf.String()
	assert.Contains(t, out, "type=affine")
	assert.Contains(t, out, "strategy=strong")
	assert.Contains(t, out, "Mat Object: fdm")
	assert.Contains(t, out, "KSP Object: type=cg")
}
