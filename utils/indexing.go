package utils

import (
	"fmt"
)

type Index []int

func NewIndex(N int) (I Index) {
	return make(Index, N)
}

func NewRange(rmin, rmax int) (r Index) {
	var (
		size = rmax - rmin + 1 // INCLUSIVE RANGE
	)
	r = make(Index, size)
	for i := range r {
		r[i] = i + rmin
	}
	return
}

func (I Index) Add(val int) (r Index) {
	r = make(Index, len(I))
	for i, ival := range I {
		r[i] = val + ival
	}
	return r
}

func (I Index) Subset(J Index) (r Index) {
	r = make(Index, len(J))
	for j, val := range J {
		r[j] = I[val]
	}
	return
}

func (I Index) Apply(f func(val int) int) (r Index) {
	r = make(Index, len(I))
	for i, val := range I {
		r[i] = f(val)
	}
	return
}

// Prod returns the product of the entries, 1 for an empty index.
func (I Index) Prod() (p int) {
	p = 1
	for _, val := range I {
		p *= val
	}
	return
}

// Unravel splits a lexicographic offset into a multi index over shape, the
// first axis indexing slowest.
func Unravel(ind int, shape Index) (mi Index) {
	mi = make(Index, len(shape))
	for d := len(shape) - 1; d >= 0; d-- {
		mi[d] = ind % shape[d]
		ind /= shape[d]
	}
	return
}

// Ravel is the inverse of Unravel.
func Ravel(mi, shape Index) (ind int) {
	for d := range shape {
		ind = ind*shape[d] + mi[d]
	}
	return
}

// PullAxis reorders the lexicographic array x of the given shape so that
// axis becomes the slowest axis, the remaining axes keeping their order.
func PullAxis(x Index, shape Index, axis int) (r Index) {
	if len(x) != shape.Prod() {
		panic(fmt.Errorf("array of length %d does not have shape %v", len(x), shape))
	}
	var (
		order = MoveAxisOrder(len(shape), axis)
		pshp  = shape.Subset(order)
		src   = make(Index, len(shape))
	)
	r = make(Index, len(x))
	for k := range r {
		mi := Unravel(k, pshp)
		for d, ax := range order {
			src[ax] = mi[d]
		}
		r[k] = x[Ravel(src, shape)]
	}
	return
}

// MoveAxisOrder lists the axes of an ndim array with axis moved first.
func MoveAxisOrder(ndim, axis int) (order Index) {
	order = Index{axis}
	for d := 0; d < ndim; d++ {
		if d != axis {
			order = append(order, d)
		}
	}
	return
}
