package FDM

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gofdm/mesh"
)

func unitSquareSpace(t *testing.T, family mesh.Family, N, dim int, n ...int) *mesh.FunctionSpace {
	m, err := mesh.NewUnitBoxMesh(n...)
	require.NoError(t, err)
	V, err := mesh.NewFunctionSpace(m, family, N, dim)
	require.NoError(t, err)
	return V
}

func TestBoundaryFlagsFromLabels(t *testing.T) {
	V := unitSquareSpace(t, mesh.FamilyQ, 2, 1, 2, 2)
	bf, err := GetBoundaryFlags(V, []DirichletBC{NewDirichletBC(-1, 1)}, WeakForm{})
	require.NoError(t, err)
	assert.Equal(t, 1, bf.NComp)
	for e := 0; e < V.Mesh.NumCells(); e++ {
		var (
			c     = V.Mesh.Lattice(e)
			flags = bf.Facets(e, 0)
		)
		if c[0] == 0 {
			assert.Equal(t, FlagDirichlet, flags[0])
			assert.Equal(t, FlagInterior, flags[1])
			assert.Equal(t, VariantIndex(1, 0), bf.VariantIndex(e, 0, 0))
		} else {
			assert.Equal(t, FlagInterior, flags[0])
			assert.Equal(t, FlagNatural, flags[1])
			assert.Equal(t, VariantIndex(0, 0), bf.VariantIndex(e, 0, 0))
		}
		// labels 3 and 4 are not constrained
		for _, f := range []int{2, 3} {
			assert.NotEqual(t, FlagDirichlet, flags[f])
		}
	}
}

func TestBoundaryFlagsOnBoundaryAndWeakForm(t *testing.T) {
	V := unitSquareSpace(t, mesh.FamilyDQ, 1, 1, 3, 2)
	for _, tc := range []struct {
		name string
		bcs  []DirichletBC
		form WeakForm
	}{
		{"on boundary", []DirichletBC{{Component: -1, SubDomain: OnBoundary}}, WeakForm{}},
		{"everywhere", nil, WeakForm{ExteriorIntegrals: []ExteriorIntegral{{Type: ExteriorFacet, Everywhere: true}}}},
		{"labels", nil, WeakForm{ExteriorIntegrals: []ExteriorIntegral{{Labels: []int{1, 2, 3, 4}}}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			bf, err := GetBoundaryFlags(V, tc.bcs, tc.form)
			require.NoError(t, err)
			for e := 0; e < V.Mesh.NumCells(); e++ {
				for f, fd := range V.Mesh.CellFacets(e) {
					want := FlagDirichlet
					if fd.Interior {
						want = FlagInterior
					}
					assert.Equal(t, want, bf.Facets(e, 0)[f])
				}
			}
		})
	}
}

func TestBoundaryFlagsPerComponent(t *testing.T) {
	V := unitSquareSpace(t, mesh.FamilyQ, 2, 2, 2, 1)
	bf, err := GetBoundaryFlags(V, []DirichletBC{NewDirichletBC(1, 1), NewDirichletBC(-1, 3)}, WeakForm{})
	require.NoError(t, err)
	assert.Equal(t, 2, bf.NComp)
	e, ok := V.Mesh.CellAt([3]int{0, 0, 0})
	require.True(t, ok)
	assert.Equal(t, []int8{FlagNatural, FlagInterior, FlagDirichlet, FlagNatural}, bf.Facets(e, 0))
	assert.Equal(t, []int8{FlagDirichlet, FlagInterior, FlagDirichlet, FlagNatural}, bf.Facets(e, 1))

	dofs := boundaryDofs(V, []DirichletBC{NewDirichletBC(1, 1)})
	for _, dof := range dofs {
		assert.Equal(t, 1, V.Component(dof))
		assert.InDelta(t, 0, V.DofCoordinates(dof)[0], 1e-14)
	}
	assert.Len(t, dofs, 3)

	_, err = GetBoundaryFlags(unitSquareSpace(t, mesh.FamilyQ, 2, 1, 2, 1), []DirichletBC{NewDirichletBC(0, 1)}, WeakForm{})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestBoundaryFlagsExtruded(t *testing.T) {
	base, err := mesh.NewUnitBoxMesh(2)
	require.NoError(t, err)
	m, err := mesh.NewExtrudedMesh(base, 3, 0.5)
	require.NoError(t, err)
	V, err := mesh.NewFunctionSpace(m, mesh.FamilyQ, 2, 1)
	require.NoError(t, err)

	bf, err := GetBoundaryFlags(V, []DirichletBC{{Component: -1, SubDomain: Top}},
		WeakForm{ExteriorIntegrals: []ExteriorIntegral{{Type: ExteriorFacetBottom, Everywhere: true}}})
	require.NoError(t, err)
	for e := 0; e < m.NumCells(); e++ {
		var (
			layer = e / m.NBase
			flags = bf.Facets(e, 0)
		)
		switch layer {
		case 0:
			assert.Equal(t, FlagDirichlet, flags[2])
			assert.Equal(t, FlagInterior, flags[3])
		case 2:
			assert.Equal(t, FlagInterior, flags[2])
			assert.Equal(t, FlagDirichlet, flags[3])
		}
		// side walls stay natural
		assert.NotEqual(t, FlagDirichlet, flags[0])
		assert.NotEqual(t, FlagDirichlet, flags[1])
	}
	// the top carries 5 dofs, the bottom is weak only
	assert.Len(t, boundaryDofs(V, []DirichletBC{{Component: -1, SubDomain: Top}}), 5)
}

func TestBoundaryFlagsAreMemoized(t *testing.T) {
	var (
		V   = unitSquareSpace(t, mesh.FamilyQ, 1, 1, 2, 2)
		bcs = []DirichletBC{NewDirichletBC(-1, 1, 2)}
	)
	bf1, err := GetBoundaryFlags(V, bcs, WeakForm{})
	require.NoError(t, err)
	bf2, err := GetBoundaryFlags(V, []DirichletBC{NewDirichletBC(-1, 1, 2)}, WeakForm{})
	require.NoError(t, err)
	assert.Same(t, bf1, bf2)
	bf3, err := GetBoundaryFlags(V, []DirichletBC{NewDirichletBC(-1, 1)}, WeakForm{})
	require.NoError(t, err)
	assert.NotSame(t, bf1, bf3)
}
