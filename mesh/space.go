package mesh

import (
	"fmt"

	"github.com/notargets/gofdm/DG1D"
	"github.com/notargets/gofdm/utils"
)

// Family is the closed set of tensor product element families.
type Family uint8

const (
	// FamilyQ is the continuous Lagrange element on GLL nodes
	FamilyQ Family = iota
	// FamilyDQ is the discontinuous Lagrange element on Gauss-Legendre nodes
	FamilyDQ
	// FamilyHDiv is the H(div) conforming element whose component k is
	// continuous of degree N along axis k and discontinuous of degree N-1
	// along the other axes
	FamilyHDiv
)

func (f Family) String() string {
	switch f {
	case FamilyQ:
		return "Q"
	case FamilyDQ:
		return "DQ"
	case FamilyHDiv:
		return "HDiv"
	}
	return fmt.Sprintf("Family(%d)", uint8(f))
}

// FunctionSpace numbers the degrees of freedom of a tensor product element
// family on a structured mesh.
//
// Cell local dofs are lexicographic with axis 0 slowest. For Q and DQ the
// BlockSize components of a node are interleaved, dof = node*BlockSize+c.
// For HDiv the components are stored one after another, each with its own
// node layout.
type FunctionSpace struct {
	Mesh      *Mesh
	Family    Family
	Degree    int
	BlockSize int

	ncomp     int
	cellDofs  [][]int
	ndof      int
	dofCell   []int
	dofLocal  []int
	compShape []utils.Index
}

// NewFunctionSpace builds a scalar (dim 1) or vector valued Q or DQ space,
// or an HDiv space when family is FamilyHDiv (dim is ignored).
func NewFunctionSpace(m *Mesh, family Family, degree, dim int) (V *FunctionSpace, err error) {
	switch {
	case degree < 1:
		err = fmt.Errorf("degree must be at least 1, have %d", degree)
	case family == FamilyHDiv && m.TDim < 2:
		err = fmt.Errorf("HDiv needs a mesh of dimension 2 or 3")
	case family != FamilyHDiv && dim < 1:
		err = fmt.Errorf("value dimension must be positive, have %d", dim)
	case family > FamilyHDiv:
		err = fmt.Errorf("unknown element family %v", family)
	}
	if err != nil {
		return
	}
	V = &FunctionSpace{
		Mesh:      m,
		Family:    family,
		Degree:    degree,
		BlockSize: dim,
		ncomp:     dim,
	}
	if family == FamilyHDiv {
		V.BlockSize = 1
		V.ncomp = m.TDim
	}
	V.compShape = make([]utils.Index, V.numShapes())
	for c := range V.compShape {
		V.compShape[c] = make(utils.Index, m.TDim)
		for d := 0; d < m.TDim; d++ {
			V.compShape[c][d] = V.AxisDegree(c, d) + 1
		}
	}
	V.number()
	return
}

func (V *FunctionSpace) numShapes() int {
	if V.Family == FamilyHDiv {
		return V.ncomp
	}
	return 1
}

// ValueSize is the number of components of the element.
func (V *FunctionSpace) ValueSize() int { return V.ncomp }

func (V *FunctionSpace) NumDofs() int { return V.ndof }

// AxisDegree returns the 1D degree of component c along axis d.
func (V *FunctionSpace) AxisDegree(c, d int) int {
	if V.Family == FamilyHDiv && c != d {
		return V.Degree - 1
	}
	return V.Degree
}

// AxisContinuous reports whether component c is continuous along axis d.
func (V *FunctionSpace) AxisContinuous(c, d int) bool {
	switch V.Family {
	case FamilyQ:
		return true
	case FamilyHDiv:
		return c == d
	}
	return false
}

// AxisNodes returns the 1D reference nodes of component c along axis d.
func (V *FunctionSpace) AxisNodes(c, d int) []float64 {
	if V.AxisContinuous(c, d) {
		return DG1D.GLLNodes(V.AxisDegree(c, d))
	}
	return DG1D.GLNodes(V.AxisDegree(c, d))
}

// ComponentShape is the number of nodes per axis of component c.
func (V *FunctionSpace) ComponentShape(c int) utils.Index {
	if V.Family == FamilyHDiv {
		return V.compShape[c]
	}
	return V.compShape[0]
}

// ScalarDim is the number of nodes of one component in a cell.
func (V *FunctionSpace) ScalarDim(c int) int { return V.ComponentShape(c).Prod() }

// CellDofs returns the global dofs of cell e in local order.
func (V *FunctionSpace) CellDofs(e int) []int { return V.cellDofs[e] }

// ComponentDofs returns the cell dofs of component c in lexicographic order.
func (V *FunctionSpace) ComponentDofs(e, c int) (dofs utils.Index) {
	var (
		cd = V.cellDofs[e]
	)
	if V.Family == FamilyHDiv {
		off := 0
		for k := 0; k < c; k++ {
			off += V.ScalarDim(k)
		}
		return append(utils.Index{}, cd[off:off+V.ScalarDim(c)]...)
	}
	n := V.ScalarDim(0)
	dofs = make(utils.Index, n)
	for j := range dofs {
		dofs[j] = cd[j*V.BlockSize+c]
	}
	return
}

// Component returns the component carried by a dof.
func (V *FunctionSpace) Component(dof int) int {
	if V.Family == FamilyHDiv {
		c, _ := V.localComponent(V.dofLocal[dof])
		return c
	}
	return V.dofLocal[dof] % V.BlockSize
}

func (V *FunctionSpace) localComponent(local int) (c, node int) {
	if V.Family != FamilyHDiv {
		return local % V.BlockSize, local / V.BlockSize
	}
	for c = 0; c < V.ncomp; c++ {
		n := V.ScalarDim(c)
		if local < n {
			return c, local
		}
		local -= n
	}
	panic(fmt.Errorf("local dof out of range"))
}

type nodeKey struct {
	comp int
	g    [3]int
}

func (V *FunctionSpace) number() {
	var (
		m     = V.Mesh
		nel   = m.NumCells()
		index = make(map[nodeKey]int)
		nodes int
	)
	V.cellDofs = make([][]int, nel)
	for e := 0; e < nel; e++ {
		var (
			c    = m.Lattice(e)
			dofs []int
		)
		for s := 0; s < V.numShapes(); s++ {
			shape := V.compShape[s]
			for j := 0; j < shape.Prod(); j++ {
				mi := utils.Unravel(j, shape)
				key := nodeKey{comp: s}
				for d := 0; d < m.TDim; d++ {
					if V.AxisContinuous(s, d) {
						key.g[d] = c[d]*(shape[d]-1) + mi[d]
					} else {
						key.g[d] = c[d]*shape[d] + mi[d]
					}
				}
				node, ok := index[key]
				if !ok {
					node = nodes
					index[key] = node
					nodes++
				}
				if V.Family == FamilyHDiv {
					dofs = append(dofs, node)
					continue
				}
				for b := 0; b < V.BlockSize; b++ {
					dofs = append(dofs, node*V.BlockSize+b)
				}
			}
		}
		V.cellDofs[e] = dofs
	}
	V.ndof = nodes * V.BlockSize
	V.dofCell = make([]int, V.ndof)
	V.dofLocal = make([]int, V.ndof)
	for e := nel - 1; e >= 0; e-- {
		for j, dof := range V.cellDofs[e] {
			V.dofCell[dof] = e
			V.dofLocal[dof] = j
		}
	}
}

// Multiplicity counts the cells sharing each dof.
func (V *FunctionSpace) Multiplicity() (w []float64) {
	w = make([]float64, V.ndof)
	for _, dofs := range V.cellDofs {
		for _, dof := range dofs {
			w[dof]++
		}
	}
	return
}

// DofCoordinates returns the physical position of a dof.
func (V *FunctionSpace) DofCoordinates(dof int) []float64 {
	var (
		e       = V.dofCell[dof]
		c, node = V.localComponent(V.dofLocal[dof])
		shape   = V.ComponentShape(c)
		mi      = utils.Unravel(node, shape)
		xi      = make([]float64, V.Mesh.TDim)
	)
	for d := range xi {
		xi[d] = V.AxisNodes(c, d)[mi[d]]
	}
	return V.Mesh.Geometry(e).Map(xi)
}

// BoundaryDofs returns the sorted dofs lying on exterior facets selected by
// the labels, or on every exterior facet with a label >= -1 when
// onBoundary is set. component < 0 selects every component.
func (V *FunctionSpace) BoundaryDofs(labels []int, onBoundary bool, component int) (dofs []int) {
	var (
		m    = V.Mesh
		mark = make([]bool, V.ndof)
	)
	selected := func(label int) bool {
		if onBoundary && label >= -1 {
			return true
		}
		for _, l := range labels {
			if l == label {
				return true
			}
		}
		return false
	}
	for e := 0; e < m.NumCells(); e++ {
		for f, fd := range m.CellFacets(e) {
			if fd.Interior || !selected(fd.Label) {
				continue
			}
			d, side := f/2, f%2
			for c := 0; c < V.ncomp; c++ {
				if (component >= 0 && c != component) || !V.AxisContinuous(c, d) {
					continue
				}
				shape := V.ComponentShape(c)
				end := 0
				if side == 1 {
					end = shape[d] - 1
				}
				cdofs := V.ComponentDofs(e, c)
				for j, dof := range cdofs {
					if utils.Unravel(j, shape)[d] == end {
						mark[dof] = true
					}
				}
			}
		}
	}
	for dof, ok := range mark {
		if ok {
			dofs = append(dofs, dof)
		}
	}
	return
}

// LocalToGlobal maps every dof to itself except the eliminated ones, which
// map to -1.
func (V *FunctionSpace) LocalToGlobal(eliminated []int) (lgmap []int) {
	lgmap = make([]int, V.ndof)
	for i := range lgmap {
		lgmap[i] = i
	}
	for _, dof := range eliminated {
		lgmap[dof] = -1
	}
	return
}
