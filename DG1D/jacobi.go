package DG1D

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// JacobiGL returns the N+1 Gauss-Lobatto nodes on [-1,1] for the Jacobi
// weight (alpha, beta), sorted ascending.
func JacobiGL(alpha, beta float64, N int) (X []float64) {
	X = make([]float64, N+1)
	X[0] = -1
	X[N] = 1
	if N == 1 {
		return
	}
	xint, _ := JacobiGQ(alpha+1, beta+1, N-2)
	copy(X[1:N], xint)
	return
}

// JacobiGQ returns the N+1 Gauss quadrature nodes and weights on [-1,1] for
// the Jacobi weight (alpha, beta), from the eigen decomposition of the
// symmetric tridiagonal Jacobi matrix.
func JacobiGQ(alpha, beta float64, N int) (X, W []float64) {
	var (
		fac float64
		h1  = make([]float64, N+1)
	)
	if N == 0 {
		X = []float64{-(alpha - beta) / (alpha + beta + 2.)}
		W = []float64{2.}
		return
	}
	for i := 0; i < N+1; i++ {
		h1[i] = 2*float64(i) + alpha + beta
	}

	JJ := mat.NewSymDense(N+1, nil)
	// main diagonal: -(alpha^2-beta^2)./(h1+2)./h1
	fac = -.5 * (alpha*alpha - beta*beta)
	for i := 0; i < N+1; i++ {
		val := h1[i]
		JJ.SetSym(i, i, 2*fac/(val*(val+2.)))
	}
	// Handle division by zero
	eps := 1.e-16
	if alpha+beta < 10*eps {
		JJ.SetSym(0, 0, 0.)
	}
	// 1st upper diagonal
	for i := 0; i < N; i++ {
		ip1 := float64(i + 1)
		val := h1[i]
		d1 := 2. / (val + 2.)
		d1 *= math.Sqrt(ip1 * (ip1 + alpha + beta) * (ip1 + alpha) * (ip1 + beta) / ((val + 1.) * (val + 3.)))
		JJ.SetSym(i, i+1, d1)
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(JJ, true); !ok {
		panic("eigenvalue decomposition failed")
	}
	X = eig.Values(nil)

	VVr := mat.NewDense(N+1, N+1, nil)
	eig.VectorsTo(VVr)
	g0 := gamma0(alpha, beta)
	W = make([]float64, N+1)
	for j := range W {
		v := VVr.At(0, j)
		W[j] = v * v * g0
	}
	return
}

// JacobiP evaluates the orthonormal Jacobi polynomial of order N at r.
func JacobiP(r []float64, alpha, beta float64, N int) (p []float64) {
	var (
		Nc = len(r)
	)
	p = make([]float64, Nc)
	rg := 1. / math.Sqrt(gamma0(alpha, beta))
	if N == 0 {
		for i := range p {
			p[i] = rg
		}
		return
	}
	Np1 := N + 1
	PL := mat.NewDense(Np1, Nc, nil)
	ab := alpha + beta
	rg1 := 1. / math.Sqrt(gamma1(alpha, beta))
	for i := 0; i < Nc; i++ {
		PL.Set(0, i, rg)
		PL.Set(1, i, rg1*((ab+2.0)*r[i]/2.0+(alpha-beta)/2.0))
	}
	a1 := alpha + 1.
	b1 := beta + 1.
	ab1 := ab + 1.
	aold := 2.0 * math.Sqrt(a1*b1/(ab+3.0)) / (ab + 2.0)
	for i := 0; i < N-1; i++ {
		ip1 := float64(i + 1)
		ip2 := ip1 + 1
		h1 := 2.0*ip1 + ab
		anew := 2.0 / (h1 + 2.0) * math.Sqrt(ip2*(ip1+ab1)*(ip1+a1)*(ip1+b1)/(h1+1.0)/(h1+3.0))
		bnew := -(alpha*alpha - beta*beta) / h1 / (h1 + 2.0)
		xi := PL.RawRowView(i)
		xip1 := PL.RawRowView(i + 1)
		xrow := PL.RawRowView(i + 2)
		for j := range xi {
			xrow[j] = (-aold*xi[j] + (r[j]-bnew)*xip1[j]) / anew
		}
		aold = anew
	}
	copy(p, PL.RawRowView(N))
	return
}

func GradJacobiP(r []float64, alpha, beta float64, N int) (p []float64) {
	if N == 0 {
		p = make([]float64, len(r))
		return
	}
	p = JacobiP(r, alpha+1, beta+1, N-1)
	fN := float64(N)
	fac := math.Sqrt(fN * (fN + alpha + beta + 1))
	for i, val := range p {
		p[i] = val * fac
	}
	return
}

// Vandermonde1D is the (len(r), N+1) matrix of Legendre modes at r.
func Vandermonde1D(N int, r []float64) (V *mat.Dense) {
	V = mat.NewDense(len(r), N+1, nil)
	for j := 0; j < N+1; j++ {
		V.SetCol(j, JacobiP(r, 0, 0, j))
	}
	return
}

func GradVandermonde1D(N int, r []float64) (Vr *mat.Dense) {
	Vr = mat.NewDense(len(r), N+1, nil)
	for j := 0; j < N+1; j++ {
		Vr.SetCol(j, GradJacobiP(r, 0, 0, j))
	}
	return
}
