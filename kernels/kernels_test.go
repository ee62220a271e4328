package kernels

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gofdm/DG1D"
	"github.com/notargets/gofdm/mesh"
)

// testBasis is a well conditioned but otherwise arbitrary change of basis
func testBasis(n, seed int) *mat.Dense {
	V := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			V.Set(i, j, math.Sin(float64(1+i+seed)*float64(2*j+1)*0.37))
		}
		V.Set(i, i, V.At(i, i)+float64(n))
	}
	return V
}

func denseKron(factors ...mat.Matrix) (K *mat.Dense) {
	K = mat.DenseCopyOf(factors[0])
	for _, F := range factors[1:] {
		var R mat.Dense
		R.Kronecker(K, F)
		K = &R
	}
	return
}

func testVector(n int) (x []float64) {
	x = make([]float64, n)
	for i := range x {
		x[i] = math.Cos(0.3*float64(i)) + 0.1*float64(i%7)
	}
	return
}

func scalarTables(tdim, N int) (tables Tables) {
	ops, _ := DG1D.SEMhat(N, 2*N+1)
	tables.V = [][]*mat.Dense{make([]*mat.Dense, tdim)}
	for d := 0; d < tdim; d++ {
		tables.V[0][d] = testBasis(N+1, d)
		tables.J = append(tables.J, ops.Jhat)
		tables.D = append(tables.D, ops.Dhat)
	}
	return
}

func TestProlongMatchesDenseKronecker(t *testing.T) {
	const N = 3
	for _, tdim := range []int{2, 3} {
		for _, bs := range []int{1, 2} {
			var (
				tables = scalarTables(tdim, N)
				key    = Key{Family: mesh.FamilyQ, TDim: tdim, Degree: N, Nq: 2*N + 1, BlockSize: bs, Eta: -1}
			)
			ks, err := build(key, tables)
			require.NoError(t, err)
			var factors []mat.Matrix
			for _, V := range tables.V[0] {
				factors = append(factors, V)
			}
			factors = append(factors, denseIdentity(bs))
			K := denseKron(factors...)
			n, _ := K.Dims()
			x := testVector(n)
			y := make([]float64, n)
			require.NoError(t, ks.Prolong.Run(x, y))
			var want mat.VecDense
			want.MulVec(K, mat.NewVecDense(n, x))
			assert.InDeltaSlice(t, want.RawVector().Data, y, 1e-10, "tdim=%d bs=%d", tdim, bs)

			// restriction is the weighted transpose, accumulated
			w := testVector(n)
			z := make([]float64, n)
			for i := range z {
				z[i] = 1
			}
			require.NoError(t, ks.Restrict.Run(x, w, z))
			xw := make([]float64, n)
			for i := range xw {
				xw[i] = x[i] * w[i]
			}
			want.MulVec(K.T(), mat.NewVecDense(n, xw))
			for i := range z {
				assert.InDelta(t, want.AtVec(i)+1, z[i], 1e-10)
			}
		}
	}
}

func denseIdentity(n int) *mat.Dense {
	I := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		I.Set(i, i, 1)
	}
	return I
}

func TestProlongHDivComponents(t *testing.T) {
	const (
		N    = 3
		tdim = 2
	)
	tables := Tables{V: [][]*mat.Dense{
		{testBasis(N+1, 0), testBasis(N, 1)},
		{testBasis(N, 2), testBasis(N+1, 3)},
	}}
	ks, err := build(Key{Family: mesh.FamilyHDiv, TDim: tdim, Degree: N, Nq: 2*N + 1, BlockSize: 1}, tables)
	require.NoError(t, err)
	n := 2 * (N + 1) * N
	x := testVector(n)
	y := make([]float64, n)
	require.NoError(t, ks.Prolong.Run(x, y))
	off := 0
	for c := 0; c < tdim; c++ {
		K := denseKron(tables.V[c][0], tables.V[c][1])
		m, _ := K.Dims()
		var want mat.VecDense
		want.MulVec(K, mat.NewVecDense(m, x[off:off+m]))
		assert.InDeltaSlice(t, want.RawVector().Data, y[off:off+m], 1e-10)
		off += m
	}
}

// fdmGram is (V^T X) diag(w) (V^T Y)^T
func fdmGram(V, X, Y *mat.Dense, w []float64) *mat.Dense {
	var VX, VY mat.Dense
	VX.Mul(V.T(), X)
	VY.Mul(V.T(), Y)
	n, nq := VX.Dims()
	G := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sum float64
			for q := 0; q < nq; q++ {
				sum += VX.At(i, q) * w[q] * VY.At(j, q)
			}
			G.Set(i, j, sum)
		}
	}
	return G
}

func tensorWeights(w []float64, tdim int) (wq []float64) {
	wq = []float64{1}
	for d := 0; d < tdim; d++ {
		var next []float64
		for _, a := range wq {
			for _, b := range w {
				next = append(next, a*b)
			}
		}
		wq = next
	}
	return
}

func TestDiagonalMatchesDenseOperator(t *testing.T) {
	const (
		N    = 3
		tdim = 2
		bs   = 2
	)
	var (
		ops, _ = DG1D.SEMhat(N, 2*N+1)
		tables = scalarTables(tdim, N)
		key    = Key{Family: mesh.FamilyQ, TDim: tdim, Degree: N, Nq: 2*N + 1, BlockSize: bs,
			Reaction: true, DiagonalMode: 1}
		wq    = tensorWeights(ops.What, tdim)
		nq    = len(wq)
		coefs = [bs][tdim]float64{{1, 2}, {0.5, 3}}
		react = [bs]float64{0.25, 4}
	)
	ks, err := build(key, tables)
	require.NoError(t, err)
	require.NotNil(t, ks.Diagonal)

	g := make([]float64, bs*tdim*nq)
	b := make([]float64, bs*nq)
	for c := 0; c < bs; c++ {
		for a := 0; a < tdim; a++ {
			for q := 0; q < nq; q++ {
				g[(c*tdim+a)*nq+q] = coefs[c][a] * wq[q]
			}
		}
		for q := 0; q < nq; q++ {
			b[c*nq+q] = react[c] * wq[q]
		}
	}
	nn := (N + 1) * (N + 1)
	diag := make([]float64, nn*bs)
	require.NoError(t, ks.Diagonal.Run(g, b, diag))

	V0, V1 := tables.V[0][0], tables.V[0][1]
	A0, B0 := fdmGram(V0, ops.Dhat, ops.Dhat, ops.What), fdmGram(V0, ops.Jhat, ops.Jhat, ops.What)
	A1, B1 := fdmGram(V1, ops.Dhat, ops.Dhat, ops.What), fdmGram(V1, ops.Jhat, ops.Jhat, ops.What)
	for c := 0; c < bs; c++ {
		var S mat.Dense
		S.Scale(coefs[c][0], denseKron(A0, B1))
		S.Add(&S, scaled(coefs[c][1], denseKron(B0, A1)))
		S.Add(&S, scaled(react[c], denseKron(B0, B1)))
		for j := 0; j < nn; j++ {
			assert.InDelta(t, S.At(j, j), diag[j*bs+c], 1e-10)
		}
	}
}

func scaled(a float64, M *mat.Dense) *mat.Dense {
	var R mat.Dense
	R.Scale(a, M)
	return &R
}

func TestStencilMatchesDenseOperator(t *testing.T) {
	const (
		N    = 3
		tdim = 2
	)
	var (
		ops, _ = DG1D.SEMhat(N, 2*N+1)
		tables = scalarTables(tdim, N)
		key    = Key{Family: mesh.FamilyQ, TDim: tdim, Degree: N, Nq: 2*N + 1, BlockSize: 1,
			Reaction: true, Stencil: true}
		wq    = tensorWeights(ops.What, tdim)
		nq    = len(wq)
		C     = [tdim][tdim]float64{{2, 0.3}, {0.3, 1}}
		react = 0.7
	)
	ks, err := build(key, tables)
	require.NoError(t, err)
	require.NotNil(t, ks.Stencil)

	g := make([]float64, tdim*tdim*nq)
	b := make([]float64, nq)
	for a := 0; a < tdim; a++ {
		for c := 0; c < tdim; c++ {
			for q := 0; q < nq; q++ {
				g[(a*tdim+c)*nq+q] = C[a][c] * wq[q]
			}
		}
	}
	for q := range b {
		b[q] = react * wq[q]
	}
	var (
		nn    = (N + 1) * (N + 1)
		width = StencilWidth(tdim)
		band  = make([]float64, nn*width)
	)
	require.NoError(t, ks.Stencil.Run(g, b, band))

	tab := func(deriv bool) *mat.Dense {
		if deriv {
			return ops.Dhat
		}
		return ops.Jhat
	}
	S := mat.NewDense(nn, nn, nil)
	for a := 0; a < tdim; a++ {
		for c := 0; c < tdim; c++ {
			var factors []mat.Matrix
			for d := 0; d < tdim; d++ {
				factors = append(factors, fdmGram(tables.V[0][d], tab(d == a), tab(d == c), ops.What))
			}
			S.Add(S, scaled(C[a][c], denseKron(factors...)))
		}
	}
	S.Add(S, scaled(react, denseKron(
		fdmGram(tables.V[0][0], ops.Jhat, ops.Jhat, ops.What),
		fdmGram(tables.V[0][1], ops.Jhat, ops.Jhat, ops.What))))

	shape := []int{N + 1, N + 1}
	for r := 0; r < nn; r++ {
		for j := 0; j < width; j++ {
			assert.InDelta(t, S.At(r, StencilNeighbor(r, j, shape)), band[r*width+j], 1e-10, "r=%d j=%d", r, j)
		}
	}
}

func TestReactionBlocks(t *testing.T) {
	const (
		N    = 2
		tdim = 2
		ns   = 2
	)
	var (
		ops, _ = DG1D.SEMhat(N, 2*N+1)
		tables = scalarTables(tdim, N)
		key    = Key{Family: mesh.FamilyQ, TDim: tdim, Degree: N, Nq: 2*N + 1, BlockSize: ns, ReactionBlocks: ns}
		wq     = tensorWeights(ops.What, tdim)
		nq     = len(wq)
		R      = [ns][ns]float64{{1, 0.5}, {0.5, 2}}
	)
	ks, err := build(key, tables)
	require.NoError(t, err)
	b := make([]float64, ns*ns*nq)
	for i := 0; i < ns; i++ {
		for j := 0; j < ns; j++ {
			for q := 0; q < nq; q++ {
				b[(i*ns+j)*nq+q] = R[i][j] * wq[q]
			}
		}
	}
	nn := (N + 1) * (N + 1)
	blocks := make([]float64, nn*ns*ns)
	require.NoError(t, ks.Reaction.Run(b, blocks))
	M := denseKron(
		fdmGram(tables.V[0][0], ops.Jhat, ops.Jhat, ops.What),
		fdmGram(tables.V[0][1], ops.Jhat, ops.Jhat, ops.What))
	for r := 0; r < nn; r++ {
		for i := 0; i < ns; i++ {
			for j := 0; j < ns; j++ {
				assert.InDelta(t, R[i][j]*M.At(r, r), blocks[r*ns*ns+i*ns+j], 1e-10)
			}
		}
	}
}

func TestGenerateIsMemoized(t *testing.T) {
	var (
		tables = scalarTables(2, 2)
		key    = Key{Family: mesh.FamilyQ, TDim: 2, Degree: 2, Nq: 5, BlockSize: 1, Eta: 12}
	)
	a, err := Generate(key, tables)
	require.NoError(t, err)
	b, err := Generate(key, Tables{})
	require.NoError(t, err)
	assert.Same(t, a, b)

	key.Eta = 13
	_, err = Generate(key, Tables{})
	assert.Error(t, err)
}

func TestQuadratureKernelsNeedContinuousSpace(t *testing.T) {
	tables := scalarTables(2, 2)
	_, err := build(Key{Family: mesh.FamilyDQ, TDim: 2, Degree: 2, Nq: 5, BlockSize: 1, DiagonalMode: 1}, tables)
	assert.Error(t, err)
	_, err = build(Key{Family: mesh.FamilyQ, TDim: 2, Degree: 2, Nq: 5, BlockSize: 2, Stencil: true}, tables)
	assert.Error(t, err)
}

func TestSource(t *testing.T) {
	tables := scalarTables(3, 2)
	ks, err := build(Key{Family: mesh.FamilyQ, TDim: 3, Degree: 2, Nq: 5, BlockSize: 1, DiagonalMode: 1}, tables)
	require.NoError(t, err)
	src := ks.Prolong.Source()
	assert.True(t, strings.Contains(src, "void prolong(real_t *restrict a0, real_t *restrict a1)"))
	assert.True(t, strings.Contains(src, "static const real_t V0_0[9]"))
	assert.Equal(t, 3, strings.Count(src, "cblas_dgemm("))
	src = ks.Restrict.Source()
	assert.True(t, strings.Contains(src, "CblasTrans"))
	assert.True(t, strings.Contains(ks.Diagonal.Source(), "static const real_t DD0"))
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	p := NewProgram("bad", 4, 4)
	p.Add(&Strided{Dst: p.Arg(1, 0), Src: p.Arg(0, 2), DStride: 1, SStride: 1, N: 3, Alpha: 1})
	assert.Error(t, p.Validate())
	p = NewProgram("bad", 4, 4)
	p.Add(&Kron{Tables: []string{"missing"}, Batch: 1, Src: p.Arg(0, 0), Dst: p.Arg(1, 0), Alpha: 1})
	assert.Error(t, p.Validate())
	assert.Error(t, p.Run(nil))
}
