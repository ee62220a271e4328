package mesh

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Exterior facet labels of extruded meshes
const (
	LabelBottom   = -2
	LabelTop      = -4
	LabelSideWall = -8
)

var ErrNotImplemented = errors.New("not implemented")

// Facet is an interior facet between two cells. Local facet 2d is the low
// end of axis d of a cell and 2d+1 the high end.
type Facet struct {
	Cells [2]int
	Local [2]int
}

// FacetData describes one local facet of a cell.
type FacetData struct {
	Interior bool
	Label    int
}

// Mesh is a structured mesh of intervals, quadrilaterals or hexahedra,
// optionally extruded along its last axis.
type Mesh struct {
	TDim, GDim int
	// Coords holds the vertex coordinates along each topological axis
	Coords   [][]float64
	Extruded bool
	// NBase is the number of cells of the base mesh of an extruded mesh
	NBase int
	// Layers holds the [start, stop) layer range per base cell when the
	// extrusion has variable layers, nil otherwise
	Layers [][2]int

	cells     [][3]int
	cellIndex map[[3]int]int
	transform *mat.Dense
	facets    []Facet
	facetErr  error
}

// NewBoxMesh builds a tensor product mesh from the vertex coordinates along
// each axis. Exterior facets at the low and high end of axis d carry labels
// 2d+1 and 2d+2.
func NewBoxMesh(coords ...[]float64) (m *Mesh, err error) {
	if len(coords) < 1 || len(coords) > 3 {
		err = fmt.Errorf("box mesh needs 1 to 3 axes, have %d", len(coords))
		return
	}
	for d, x := range coords {
		if len(x) < 2 {
			err = fmt.Errorf("axis %d needs at least two vertices", d)
			return
		}
		for i := 1; i < len(x); i++ {
			if x[i] <= x[i-1] {
				err = fmt.Errorf("axis %d coordinates must increase", d)
				return
			}
		}
	}
	m = &Mesh{
		TDim:   len(coords),
		GDim:   len(coords),
		Coords: coords,
	}
	m.buildCells(nil)
	m.facets = m.boxFacets()
	return
}

// NewUnitBoxMesh is a uniform box mesh of [0,1]^d with n[d] cells per axis.
func NewUnitBoxMesh(n ...int) (*Mesh, error) {
	coords := make([][]float64, len(n))
	for d, nd := range n {
		coords[d] = Linspace(0, 1, nd+1)
	}
	return NewBoxMesh(coords...)
}

func Linspace(a, b float64, n int) (x []float64) {
	x = make([]float64, n)
	for i := range x {
		x[i] = a + (b-a)*float64(i)/float64(n-1)
	}
	x[n-1] = b
	return
}

// buildCells enumerates the cells in lattice order, the first axis fastest.
// keep filters out lattice cells, nil keeps every cell.
func (m *Mesh) buildCells(keep func(c [3]int) bool) {
	var (
		n = m.CellsPerAxis()
	)
	m.cells = nil
	m.cellIndex = make(map[[3]int]int)
	for c2 := 0; c2 < n[2]; c2++ {
		for c1 := 0; c1 < n[1]; c1++ {
			for c0 := 0; c0 < n[0]; c0++ {
				c := [3]int{c0, c1, c2}
				if keep != nil && !keep(c) {
					continue
				}
				m.cellIndex[c] = len(m.cells)
				m.cells = append(m.cells, c)
			}
		}
	}
}

// CellsPerAxis returns the lattice extent along each axis, 1 beyond TDim.
func (m *Mesh) CellsPerAxis() (n [3]int) {
	n = [3]int{1, 1, 1}
	for d := 0; d < m.TDim; d++ {
		n[d] = len(m.Coords[d]) - 1
	}
	return
}

func (m *Mesh) NumCells() int { return len(m.cells) }

// Lattice returns the lattice coordinates of cell e.
func (m *Mesh) Lattice(e int) [3]int { return m.cells[e] }

// CellAt returns the cell at lattice coordinates c.
func (m *Mesh) CellAt(c [3]int) (e int, ok bool) {
	e, ok = m.cellIndex[c]
	return
}

func (m *Mesh) neighbor(e, axis, side int) (nb int, ok bool) {
	c := m.cells[e]
	if side == 0 {
		c[axis]--
	} else {
		c[axis]++
	}
	return m.CellAt(c)
}

func (m *Mesh) boxFacets() (facets []Facet) {
	for e := range m.cells {
		for d := 0; d < m.TDim; d++ {
			if nb, ok := m.neighbor(e, d, 1); ok {
				facets = append(facets, Facet{Cells: [2]int{e, nb}, Local: [2]int{2*d + 1, 2 * d}})
			}
		}
	}
	return
}

// InteriorFacets lists the interior facets.
func (m *Mesh) InteriorFacets() ([]Facet, error) {
	return m.facets, m.facetErr
}

// CellFacets describes the 2*TDim local facets of cell e.
func (m *Mesh) CellFacets(e int) (fd []FacetData) {
	var (
		c = m.cells[e]
		n = m.CellsPerAxis()
	)
	fd = make([]FacetData, 2*m.TDim)
	for d := 0; d < m.TDim; d++ {
		for side := 0; side < 2; side++ {
			f := 2*d + side
			if _, ok := m.neighbor(e, d, side); ok {
				fd[f] = FacetData{Interior: true}
				continue
			}
			vertical := m.Extruded && d == m.TDim-1
			switch {
			case vertical && side == 0:
				fd[f].Label = LabelBottom
			case vertical:
				fd[f].Label = LabelTop
			case (side == 0 && c[d] == 0) || (side == 1 && c[d] == n[d]-1):
				fd[f].Label = f + 1
			default:
				fd[f].Label = LabelSideWall
			}
		}
	}
	return
}

// SetTransform maps every cell through the linear map T, (GDim, TDim), to
// place the mesh in a space of dimension GDim >= TDim.
func (m *Mesh) SetTransform(T *mat.Dense) error {
	r, c := T.Dims()
	if c != m.TDim || r < m.TDim || r > 3 {
		return fmt.Errorf("transform of shape (%d,%d) does not fit topological dimension %d", r, c, m.TDim)
	}
	m.transform = mat.DenseCopyOf(T)
	m.GDim = r
	return nil
}

// Cell is the affine map x = X0 + J xi of the reference cell [0,1]^TDim.
type Cell struct {
	X0 []float64
	J  *mat.Dense // (GDim, TDim)
}

// Map returns the physical coordinates of the reference point xi.
func (c Cell) Map(xi []float64) (x []float64) {
	var (
		gdim, tdim = c.J.Dims()
	)
	x = make([]float64, gdim)
	for i := 0; i < gdim; i++ {
		x[i] = c.X0[i]
		for j := 0; j < tdim; j++ {
			x[i] += c.J.At(i, j) * xi[j]
		}
	}
	return
}

// Geometry returns the affine map of cell e.
func (m *Mesh) Geometry(e int) (cell Cell) {
	var (
		c  = m.cells[e]
		lo = make([]float64, m.TDim)
		J  = mat.NewDense(m.TDim, m.TDim, nil)
	)
	for d := 0; d < m.TDim; d++ {
		lo[d] = m.Coords[d][c[d]]
		J.Set(d, d, m.Coords[d][c[d]+1]-lo[d])
	}
	if m.transform == nil {
		return Cell{X0: lo, J: J}
	}
	var (
		x0 = mat.NewVecDense(m.GDim, nil)
		TJ = new(mat.Dense)
	)
	x0.MulVec(m.transform, mat.NewVecDense(m.TDim, lo))
	TJ.Mul(m.transform, J)
	return Cell{X0: x0.RawVector().Data, J: TJ}
}
