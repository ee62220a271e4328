package FDM

import (
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/notargets/gofdm/DG1D"
	"github.com/notargets/gofdm/mesh"
)

// SubDomain selects the exterior facets a boundary condition acts on.
type SubDomain uint8

const (
	// SubDomainLabels selects the facets carrying one of the listed labels
	SubDomainLabels SubDomain = iota
	// OnBoundary selects every exterior facet that is not the top, bottom
	// or an exposed side wall of an extruded mesh
	OnBoundary
	// Top and Bottom select the ends of an extruded mesh
	Top
	Bottom
)

// DirichletBC is a strong boundary condition.
type DirichletBC struct {
	// Component restricts the condition to one component of a vector
	// space, -1 applies it to the whole field
	Component int
	SubDomain SubDomain
	Labels    []int
}

func NewDirichletBC(component int, labels ...int) DirichletBC {
	return DirichletBC{Component: component, SubDomain: SubDomainLabels, Labels: labels}
}

// labels resolves the facet labels of the condition, all is set for
// OnBoundary.
func (bc DirichletBC) labels() (labels []int, all bool) {
	switch bc.SubDomain {
	case OnBoundary:
		return nil, true
	case Top:
		return []int{mesh.LabelTop}, false
	case Bottom:
		return []int{mesh.LabelBottom}, false
	}
	return bc.Labels, false
}

// Dofs lists the sorted dofs eliminated by the condition.
func (bc DirichletBC) Dofs(V *mesh.FunctionSpace) []int {
	labels, all := bc.labels()
	return V.BoundaryDofs(labels, all, bc.Component)
}

// IntegralType is the kind of an exterior facet integral of a weak form.
type IntegralType uint8

const (
	ExteriorFacet IntegralType = iota
	ExteriorFacetTop
	ExteriorFacetBottom
)

// ExteriorIntegral is one exterior facet term of the Jacobian of a weak
// form, for instance a Nitsche penalty. With Everywhere set it acts on every
// facet of its type, otherwise on the listed labels.
type ExteriorIntegral struct {
	Type       IntegralType
	Everywhere bool
	Labels     []int
}

// WeakForm describes the parts of the Jacobian that decide which exterior
// facets are weakly constrained.
type WeakForm struct {
	ExteriorIntegrals []ExteriorIntegral
}

// Facet flag values
const (
	FlagNatural   int8 = 0
	FlagDirichlet int8 = 1
	FlagInterior  int8 = 2
)

// BoundaryFlags classifies the local facets of every cell, per component
// when some condition acts on a single component.
type BoundaryFlags struct {
	// NComp is 1 when every component shares the flags
	NComp int
	// Flags[e][k][f]
	Flags [][][]int8
}

// Facets returns the flags of the local facets of cell e for component k.
func (bf *BoundaryFlags) Facets(e, k int) []int8 {
	if bf.NComp == 1 {
		k = 0
	}
	return bf.Flags[e][k]
}

// VariantIndex selects the 1D variant of axis d from the facet flags.
func (bf *BoundaryFlags) VariantIndex(e, k, d int) int {
	var (
		flags = bf.Facets(e, k)
		bc0   = 0
		bc1   = 0
	)
	if flags[2*d] == FlagDirichlet {
		bc0 = 1
	}
	if flags[2*d+1] == FlagDirichlet {
		bc1 = 1
	}
	return VariantIndex(bc0, bc1)
}

type flagKey struct {
	space *mesh.FunctionSpace
	bcs   string
	form  string
}

var flagCache *lru.Cache[flagKey, *BoundaryFlags]

func init() {
	var err error
	if flagCache, err = lru.New[flagKey, *BoundaryFlags](DG1D.CacheSize); err != nil {
		panic(err)
	}
}

// GetBoundaryFlags returns the memoized flags of a space under the given
// conditions and weak form.
func GetBoundaryFlags(V *mesh.FunctionSpace, bcs []DirichletBC, form WeakForm) (bf *BoundaryFlags, err error) {
	key := flagKey{space: V, bcs: fmt.Sprintf("%v", bcs), form: fmt.Sprintf("%v", form)}
	if bf, ok := flagCache.Get(key); ok {
		return bf, nil
	}
	if bf, err = computeBoundaryFlags(V, bcs, form); err != nil {
		return
	}
	flagCache.Add(key, bf)
	return
}

// componentLabels collects the labels and the on boundary marks of every
// component, the whole field under key -1
type componentLabels struct {
	labels map[int]map[int]bool
	all    map[int]bool
}

func (cl *componentLabels) add(comp int, labels ...int) {
	if cl.labels[comp] == nil {
		cl.labels[comp] = make(map[int]bool)
	}
	for _, l := range labels {
		cl.labels[comp][l] = true
	}
}

func (cl *componentLabels) flag(comp, label int) bool {
	if cl.all[comp] && label >= -1 {
		return true
	}
	return cl.labels[comp][label]
}

func computeBoundaryFlags(V *mesh.FunctionSpace, bcs []DirichletBC, form WeakForm) (bf *BoundaryFlags, err error) {
	var (
		m  = V.Mesh
		cl = &componentLabels{labels: make(map[int]map[int]bool), all: make(map[int]bool)}
	)
	for _, bc := range bcs {
		if bc.Component < -1 || bc.Component >= V.BlockSize || (bc.Component >= 0 && V.BlockSize == 1) {
			err = fmt.Errorf("%w: boundary condition on component %d of a space with block size %d",
				ErrConfiguration, bc.Component, V.BlockSize)
			return
		}
		labels, all := bc.labels()
		if all {
			cl.all[bc.Component] = true
		}
		cl.add(bc.Component, labels...)
	}
	for _, it := range form.ExteriorIntegrals {
		switch {
		case !it.Everywhere:
			cl.add(-1, it.Labels...)
		case it.Type == ExteriorFacetTop:
			cl.add(-1, mesh.LabelTop)
		case it.Type == ExteriorFacetBottom:
			cl.add(-1, mesh.LabelBottom)
		default:
			cl.all[-1] = true
		}
	}
	var comps []int
	for c := range cl.labels {
		if c >= 0 {
			comps = append(comps, c)
		}
	}
	for c := range cl.all {
		if c >= 0 && cl.labels[c] == nil {
			comps = append(comps, c)
		}
	}
	sort.Ints(comps)

	bf = &BoundaryFlags{NComp: 1}
	if len(comps) > 0 {
		bf.NComp = V.BlockSize
	}
	bf.Flags = make([][][]int8, m.NumCells())
	for e := range bf.Flags {
		facets := m.CellFacets(e)
		bf.Flags[e] = make([][]int8, bf.NComp)
		for k := range bf.Flags[e] {
			flags := make([]int8, len(facets))
			for f, fd := range facets {
				switch {
				case fd.Interior:
					flags[f] = FlagInterior
				case cl.flag(-1, fd.Label):
					flags[f] = FlagDirichlet
				case bf.NComp > 1 && cl.flag(k, fd.Label):
					flags[f] = FlagDirichlet
				}
			}
			bf.Flags[e][k] = flags
		}
	}
	return
}

// boundaryDofs returns the sorted union of the dofs of every condition.
func boundaryDofs(V *mesh.FunctionSpace, bcs []DirichletBC) (dofs []int) {
	seen := make(map[int]bool)
	for _, bc := range bcs {
		for _, dof := range bc.Dofs(V) {
			if !seen[dof] {
				seen[dof] = true
				dofs = append(dofs, dof)
			}
		}
	}
	sort.Ints(dofs)
	return
}
