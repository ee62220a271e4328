package FDM

import (
	"errors"

	"github.com/notargets/gofdm/mesh"
)

var (
	// ErrConfiguration reports an unsupported combination of options,
	// spaces and boundary conditions
	ErrConfiguration = errors.New("fdm: configuration error")
	// ErrUnsupportedTensorRank reports a coefficient whose shape is not
	// rank 0, 1, 2 or 4
	ErrUnsupportedTensorRank = errors.New("fdm: unsupported tensor rank")
	// ErrNotImplemented is shared with the mesh package so that topology
	// limitations surface with the same sentinel
	ErrNotImplemented = mesh.ErrNotImplemented
	// ErrState reports a call that the preconditioner state does not allow
	ErrState = errors.New("fdm: invalid preconditioner state")
	// ErrNumerical reports a NaN or infinite entry in the assembled matrix
	ErrNumerical = errors.New("fdm: non finite matrix entries")
)
