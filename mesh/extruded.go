package mesh

import (
	"fmt"
)

// NewExtrudedMesh extrudes a 1D or 2D box mesh by nlayers uniform layers of
// height layerHeight. Cell e of the result sits in layer e/NBase above base
// cell e%NBase. Interior facets list the base facets of every layer first,
// followed by the facets between consecutive layers.
func NewExtrudedMesh(base *Mesh, nlayers int, layerHeight float64) (m *Mesh, err error) {
	if m, err = newExtruded(base, nlayers, layerHeight); err != nil {
		return
	}
	m.buildCells(nil)
	var (
		nelh = m.NBase
		v    = m.TDim - 1
	)
	for l := 0; l < nlayers; l++ {
		for _, f := range base.facets {
			m.facets = append(m.facets, Facet{
				Cells: [2]int{f.Cells[0] + l*nelh, f.Cells[1] + l*nelh},
				Local: f.Local,
			})
		}
	}
	for k := 0; k < nelh*(nlayers-1); k++ {
		m.facets = append(m.facets, Facet{
			Cells: [2]int{k, k + nelh},
			Local: [2]int{2*v + 1, 2 * v},
		})
	}
	return
}

// NewVariableExtrudedMesh extrudes each base cell b over the layers
// [layers[b][0], layers[b][1]). Cells are numbered base cell by base cell.
// Exposed vertical walls between columns of different height are labelled
// LabelSideWall. Interior facet topology is not available for variable
// layers.
func NewVariableExtrudedMesh(base *Mesh, layers [][2]int, layerHeight float64) (m *Mesh, err error) {
	if len(layers) != base.NumCells() {
		err = fmt.Errorf("have %d layer ranges for %d base cells", len(layers), base.NumCells())
		return
	}
	var top int
	for b, lr := range layers {
		if lr[0] < 0 || lr[1] <= lr[0] {
			err = fmt.Errorf("invalid layer range %v for base cell %d", lr, b)
			return
		}
		top = max(top, lr[1])
	}
	if m, err = newExtruded(base, top, layerHeight); err != nil {
		return
	}
	m.Layers = layers
	m.cellIndex = make(map[[3]int]int)
	v := m.TDim - 1
	for b := 0; b < base.NumCells(); b++ {
		c := base.cells[b]
		for l := layers[b][0]; l < layers[b][1]; l++ {
			c[v] = l
			m.cellIndex[c] = len(m.cells)
			m.cells = append(m.cells, c)
		}
	}
	m.facetErr = fmt.Errorf("%w: interior facets of variable layer extrusions", ErrNotImplemented)
	return
}

func newExtruded(base *Mesh, nlayers int, layerHeight float64) (m *Mesh, err error) {
	switch {
	case base.Extruded:
		err = fmt.Errorf("base mesh is already extruded")
	case base.TDim > 2:
		err = fmt.Errorf("cannot extrude a mesh of dimension %d", base.TDim)
	case base.transform != nil:
		err = fmt.Errorf("cannot extrude a transformed mesh")
	case nlayers < 1 || layerHeight <= 0:
		err = fmt.Errorf("invalid extrusion: %d layers of height %g", nlayers, layerHeight)
	}
	if err != nil {
		return
	}
	coords := append([][]float64{}, base.Coords...)
	coords = append(coords, Linspace(0, float64(nlayers)*layerHeight, nlayers+1))
	m = &Mesh{
		TDim:     base.TDim + 1,
		GDim:     base.TDim + 1,
		Coords:   coords,
		Extruded: true,
		NBase:    base.NumCells(),
	}
	return
}
