package utils

import (
	"fmt"
	"sort"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// DOK is a small dictionary-of-keys matrix used for element level
// Kronecker algebra.
type DOK struct {
	M        *sparse.DOK
	readOnly bool
	name     string
}

func NewDOK(nr, nc int) (R DOK) {
	R = DOK{
		sparse.NewDOK(nr, nc),
		false,
		"unnamed - hint: pass a variable name to SetReadOnly()",
	}
	return
}

// NewDOKFromDense keeps the diagonal of A when diag is set, plus the full
// rows and columns listed in dense. With no dense indices the two corner
// entries (0,n-1) and (n-1,0) are kept instead.
func NewDOKFromDense(A mat.Matrix, dense []int, diag bool) (R DOK) {
	var (
		nr, nc = A.Dims()
	)
	R = NewDOK(nr, nc)
	if diag {
		for i := 0; i < min(nr, nc); i++ {
			R.M.Set(i, i, A.At(i, i))
		}
	}
	if len(dense) == 0 {
		R.M.Set(0, nc-1, A.At(0, nc-1))
		R.M.Set(nr-1, 0, A.At(nr-1, 0))
		return
	}
	for _, j := range dense {
		for i := 0; i < nr; i++ {
			R.M.Set(j, i, A.At(j, i))
			R.M.Set(i, j, A.At(i, j))
		}
	}
	return
}

// Dims, At and T minimally satisfy the mat.Matrix interface.
func (m DOK) Dims() (r, c int)    { return m.M.Dims() }
func (m DOK) At(i, j int) float64 { return m.M.At(i, j) }
func (m DOK) T() mat.Matrix       { return mat.Transpose{Matrix: m} }
func (m DOK) NNZ() int            { return m.M.NNZ() }

func (m DOK) SetReadOnly(name ...string) DOK {
	if len(name) != 0 {
		m.name = name[0]
	}
	m.readOnly = true
	return m
}

func (m DOK) Set(i, j int, v float64) {
	m.checkWritable()
	m.M.Set(i, j, v)
}

// DoNonZero visits every stored entry, structural zeros included.
func (m DOK) DoNonZero(fn func(i, j int, v float64)) {
	m.M.DoNonZero(fn)
}

// CSR returns the stored entries in row major order: row pointers, column
// indices and values.
func (m DOK) CSR() (indptr, ind []int, data []float64) {
	var (
		nr, _ = m.Dims()
		rows  = make([][]int, nr)
	)
	m.M.DoNonZero(func(i, j int, _ float64) {
		rows[i] = append(rows[i], j)
	})
	indptr = make([]int, nr+1)
	for i, cols := range rows {
		sort.Ints(cols)
		indptr[i+1] = indptr[i] + len(cols)
		for _, j := range cols {
			ind = append(ind, j)
			data = append(data, m.M.At(i, j))
		}
	}
	return
}

func (m DOK) Copy() (R DOK) {
	var (
		nr, nc = m.Dims()
	)
	R = NewDOK(nr, nc)
	m.M.DoNonZero(func(i, j int, v float64) {
		R.M.Set(i, j, v)
	})
	return
}

// Scale multiplies every stored entry by alpha in place.
func (m DOK) Scale(alpha float64) DOK {
	m.checkWritable()
	type entry struct {
		i, j int
		v    float64
	}
	var entries []entry
	m.M.DoNonZero(func(i, j int, v float64) {
		entries = append(entries, entry{i, j, v})
	})
	for _, e := range entries {
		m.M.Set(e.i, e.j, alpha*e.v)
	}
	return m
}

// AXPY computes m += alpha*X in place, growing the structure of m.
func (m DOK) AXPY(alpha float64, X DOK) DOK {
	m.checkWritable()
	nr, nc := m.Dims()
	xr, xc := X.Dims()
	if nr != xr || nc != xc {
		panic(fmt.Errorf("dimension mismatch in AXPY: (%d,%d) and (%d,%d)", nr, nc, xr, xc))
	}
	X.M.DoNonZero(func(i, j int, v float64) {
		m.M.Set(i, j, m.M.At(i, j)+alpha*v)
	})
	return m
}

// Kron returns the Kronecker product m ⊗ B, the first factor indexing
// slowest.
func (m DOK) Kron(B DOK) (R DOK) {
	var (
		ar, ac = m.Dims()
		br, bc = B.Dims()
	)
	R = NewDOK(ar*br, ac*bc)
	m.M.DoNonZero(func(i, j int, a float64) {
		B.M.DoNonZero(func(k, l int, b float64) {
			R.M.Set(i*br+k, j*bc+l, a*b)
		})
	})
	return
}

func (m DOK) ToDense() (R *mat.Dense) {
	var (
		nr, nc = m.Dims()
	)
	R = mat.NewDense(nr, nc, nil)
	m.M.DoNonZero(func(i, j int, v float64) {
		R.Set(i, j, v)
	})
	return
}

func (m DOK) checkWritable() {
	if m.readOnly {
		err := fmt.Errorf("attempt to write to a read only matrix named: \"%v\"", m.name)
		panic(err)
	}
}

// Inserter receives additive matrix contributions. Negative indices are
// dropped, the way eliminated boundary rows are dropped by a local to global
// map.
type Inserter interface {
	AddValue(i, j int, v float64) error
}

// Preallocator records the nonzero structure of a matrix without values.
type Preallocator struct {
	nr, nc int
	M      *sparse.DOK
}

func NewPreallocator(nr, nc int) *Preallocator {
	return &Preallocator{nr: nr, nc: nc, M: sparse.NewDOK(nr, nc)}
}

func (p *Preallocator) Dims() (r, c int) { return p.nr, p.nc }

func (p *Preallocator) AddValue(i, j int, _ float64) error {
	if i < 0 || j < 0 {
		return nil
	}
	if i >= p.nr || j >= p.nc {
		return fmt.Errorf("index (%d,%d) out of range (%d,%d)", i, j, p.nr, p.nc)
	}
	p.M.Set(i, j, 1)
	return nil
}

// NNZ returns the number of nonzeros per row.
func (p *Preallocator) NNZ() (nnz []int) {
	nnz = make([]int, p.nr)
	p.M.DoNonZero(func(i, j int, _ float64) {
		nnz[i]++
	})
	return
}

// Pattern returns the CSR row pointer and sorted column indices.
func (p *Preallocator) Pattern() (indptr, ind []int) {
	rows := make([][]int, p.nr)
	p.M.DoNonZero(func(i, j int, _ float64) {
		rows[i] = append(rows[i], j)
	})
	indptr = make([]int, p.nr+1)
	for i, cols := range rows {
		sort.Ints(cols)
		indptr[i+1] = indptr[i] + len(cols)
		ind = append(ind, cols...)
	}
	return
}

// AIJ is a square or rectangular CSR matrix whose nonzero pattern is fixed
// at creation. Values are accumulated with AddValue.
type AIJ struct {
	M    *sparse.CSR
	name string
}

func NewAIJ(p *Preallocator, name string) (A *AIJ) {
	var (
		indptr, ind = p.Pattern()
		nr, nc      = p.Dims()
	)
	A = &AIJ{
		M:    sparse.NewCSR(nr, nc, indptr, ind, make([]float64, len(ind))),
		name: name,
	}
	return
}

// Dims, At and T minimally satisfy the mat.Matrix interface.
func (A *AIJ) Dims() (r, c int)    { return A.M.Dims() }
func (A *AIJ) At(i, j int) float64 { return A.M.At(i, j) }
func (A *AIJ) T() mat.Matrix       { return mat.Transpose{Matrix: A} }
func (A *AIJ) Name() string        { return A.name }
func (A *AIJ) NNZ() int            { return len(A.M.RawMatrix().Ind) }

func (A *AIJ) find(i, j int) int {
	raw := A.M.RawMatrix()
	cols := raw.Ind[raw.Indptr[i]:raw.Indptr[i+1]]
	k := sort.SearchInts(cols, j)
	if k < len(cols) && cols[k] == j {
		return raw.Indptr[i] + k
	}
	return -1
}

func (A *AIJ) AddValue(i, j int, v float64) error {
	if i < 0 || j < 0 {
		return nil
	}
	k := A.find(i, j)
	if k < 0 {
		if v == 0 {
			return nil
		}
		return fmt.Errorf("new nonzero at (%d,%d) in matrix %q caused a malloc", i, j, A.name)
	}
	A.M.RawMatrix().Data[k] += v
	return nil
}

func (A *AIJ) ZeroEntries() {
	data := A.M.RawMatrix().Data
	for k := range data {
		data[k] = 0
	}
}

// ZeroRowsColumns zeroes the listed rows and columns and puts diag on their
// diagonal.
func (A *AIJ) ZeroRowsColumns(rows []int, diag float64) {
	var (
		raw    = A.M.RawMatrix()
		nr, _  = A.Dims()
		marked = make([]bool, nr)
	)
	for _, r := range rows {
		marked[r] = true
	}
	for i := 0; i < nr; i++ {
		for k := raw.Indptr[i]; k < raw.Indptr[i+1]; k++ {
			j := raw.Ind[k]
			if marked[i] || (j < nr && marked[j]) {
				raw.Data[k] = 0
				if i == j {
					raw.Data[k] = diag
				}
			}
		}
	}
}

func (A *AIJ) Diagonal() (d []float64) {
	var (
		nr, _ = A.Dims()
	)
	d = make([]float64, nr)
	for i := range d {
		if k := A.find(i, i); k >= 0 {
			d[i] = A.M.RawMatrix().Data[k]
		}
	}
	return
}

// DiagonalScale computes diag(l) A diag(r), either may be nil.
func (A *AIJ) DiagonalScale(l, r []float64) {
	var (
		raw   = A.M.RawMatrix()
		nr, _ = A.Dims()
	)
	for i := 0; i < nr; i++ {
		for k := raw.Indptr[i]; k < raw.Indptr[i+1]; k++ {
			if l != nil {
				raw.Data[k] *= l[i]
			}
			if r != nil {
				raw.Data[k] *= r[raw.Ind[k]]
			}
		}
	}
}

// MulVec computes y = A x.
func (A *AIJ) MulVec(y, x []float64) {
	var (
		raw   = A.M.RawMatrix()
		nr, _ = A.Dims()
	)
	for i := 0; i < nr; i++ {
		var sum float64
		for k := raw.Indptr[i]; k < raw.Indptr[i+1]; k++ {
			sum += raw.Data[k] * x[raw.Ind[k]]
		}
		y[i] = sum
	}
}

// Values returns the stored values in CSR order.
func (A *AIJ) Values() []float64 { return A.M.RawMatrix().Data }

func (A *AIJ) ToDense() (R *mat.Dense) {
	var (
		raw    = A.M.RawMatrix()
		nr, nc = A.Dims()
	)
	R = mat.NewDense(nr, nc, nil)
	for i := 0; i < nr; i++ {
		for k := raw.Indptr[i]; k < raw.Indptr[i+1]; k++ {
			R.Set(i, raw.Ind[k], raw.Data[k])
		}
	}
	return
}
