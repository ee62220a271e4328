package DG1D

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"gonum.org/v1/gonum/mat"
)

// CacheSize bounds every process wide memo in the module.
const CacheSize = 10

// ReferenceOperators holds the 1D spectral element operators of a degree N
// GLL basis on [0,1] integrated with a Gauss-Legendre rule.
type ReferenceOperators struct {
	N, Nq int
	// Ahat = D diag(w) D^T, Bhat = J diag(w) J^T, both (N+1,N+1)
	Ahat, Bhat *mat.Dense
	// Jhat and Dhat are the basis and its derivative tabulated at the
	// quadrature points, (N+1, nq)
	Jhat, Dhat *mat.Dense
	Xhat, What []float64
}

type semKey struct{ N, Nq int }

var semCache *lru.Cache[semKey, *ReferenceOperators]

func init() {
	var err error
	if semCache, err = lru.New[semKey, *ReferenceOperators](CacheSize); err != nil {
		panic(err)
	}
}

// SEMhat returns the cached reference operators for degree N and
// quadrature degree Nq. The rule uses (Nq+2)/2 points.
func SEMhat(N, Nq int) (ops *ReferenceOperators, err error) {
	if N < 1 {
		err = fmt.Errorf("degree must be at least 1, have %d", N)
		return
	}
	if Nq < 0 {
		err = fmt.Errorf("quadrature degree must be non negative, have %d", Nq)
		return
	}
	key := semKey{N, Nq}
	if ops, ok := semCache.Get(key); ok {
		return ops, nil
	}
	ops = newReferenceOperators(N, Nq)
	semCache.Add(key, ops)
	return
}

func newReferenceOperators(N, Nq int) (ops *ReferenceOperators) {
	var (
		nq   = (Nq + 2) / 2
		x, w = GaussLegendre(nq)
		J, D = TabulateGLL(N, x)
	)
	ops = &ReferenceOperators{
		N: N, Nq: Nq,
		Jhat: J, Dhat: D,
		Xhat: x, What: w,
	}
	ops.Ahat = weightedGram(D, w)
	ops.Bhat = weightedGram(J, w)
	return
}

// weightedGram returns T diag(w) T^T, symmetric by construction
func weightedGram(T *mat.Dense, w []float64) (G *mat.Dense) {
	var (
		nr, nc = T.Dims()
	)
	G = mat.NewDense(nr, nr, nil)
	for i := 0; i < nr; i++ {
		ti := T.RawRowView(i)
		for j := i; j < nr; j++ {
			tj := T.RawRowView(j)
			var sum float64
			for q := 0; q < nc; q++ {
				sum += ti[q] * w[q] * tj[q]
			}
			G.Set(i, j, sum)
			G.Set(j, i, sum)
		}
	}
	return
}
