package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gofdm/InputParameters"
)

func TestRunPoisson(t *testing.T) {
	ip, err := processPoissonInput("")
	require.NoError(t, err)
	ip.PolynomialOrder = 3
	var out bytes.Buffer
	r, err := RunPoisson(ip, &out)
	require.NoError(t, err)
	assert.LessOrEqual(t, r.Iterations, 15)
	assert.Contains(t, out.String(), "FDM preconditioner: state=Updated")
	assert.Contains(t, out.String(), "Max error")
}

func TestRunPoissonStencilOnGradedMesh(t *testing.T) {
	ip := &InputParameters.PoissonParameters{}
	require.NoError(t, ip.Parse([]byte(`
PolynomialOrder: 4
Coords:
  - [0, 0.3, 1]
  - [0, 0.6, 1]
FDM:
  fdm_type: stencil
`)))
	var out bytes.Buffer
	r, err := RunPoisson(ip, &out)
	require.NoError(t, err)
	assert.LessOrEqual(t, r.Iterations, 40)
	assert.Contains(t, out.String(), "type=stencil")
}

func TestRunPoissonRejectsBadOptions(t *testing.T) {
	ip, err := processPoissonInput("")
	require.NoError(t, err)
	ip.FDM = map[string]string{"fdm_type": "dense"}
	_, err = RunPoisson(ip, &bytes.Buffer{})
	assert.Error(t, err)
}
