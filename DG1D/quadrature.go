package DG1D

import "gonum.org/v1/gonum/mat"

// GaussLegendre returns the n point Gauss-Legendre rule on [0,1].
func GaussLegendre(n int) (x, w []float64) {
	if n < 1 {
		panic("GaussLegendre needs at least one point")
	}
	r, wr := JacobiGQ(0, 0, n-1)
	return toUnit(r, wr)
}

// GLLNodes returns the N+1 Gauss-Lobatto-Legendre nodes on [0,1].
func GLLNodes(N int) (x []float64) {
	if N < 1 {
		panic("GLL nodes need degree >= 1")
	}
	x, _ = toUnit(JacobiGL(0, 0, N), nil)
	return
}

// GLNodes returns the N+1 Gauss-Legendre nodes on [0,1], the nodes of the
// discontinuous Lagrange basis of degree N.
func GLNodes(N int) (x []float64) {
	x, _ = GaussLegendre(N + 1)
	return
}

// TabulateLagrange evaluates the Lagrange basis through nodes, and its first
// derivative, at points. Both results are (len(nodes), len(points)).
func TabulateLagrange(nodes, points []float64) (J, D *mat.Dense) {
	var (
		N  = len(nodes) - 1
		np = len(points)
		V  = Vandermonde1D(N, toRef(nodes))
		Vi mat.Dense
	)
	if err := Vi.Inverse(V); err != nil {
		panic(err)
	}
	rp := toRef(points)
	// phi_j(x) = sum_m P_m(x) Vinv[m,j]
	var jt, dt mat.Dense
	jt.Mul(Vandermonde1D(N, rp), &Vi)
	dt.Mul(GradVandermonde1D(N, rp), &Vi)
	J = mat.NewDense(N+1, np, nil)
	D = mat.NewDense(N+1, np, nil)
	J.Copy(jt.T())
	D.Copy(dt.T())
	// d/dx = 2 d/dr on [0,1]
	D.Scale(2, D)
	return
}

// TabulateGLL evaluates the degree N GLL Lagrange basis and its derivative
// at points on [0,1].
func TabulateGLL(N int, points []float64) (J, D *mat.Dense) {
	return TabulateLagrange(GLLNodes(N), points)
}

func toRef(x []float64) (r []float64) {
	r = make([]float64, len(x))
	for i, val := range x {
		r[i] = 2*val - 1
	}
	return
}
