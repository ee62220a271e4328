package FDM

import (
	"fmt"
	"strconv"

	"github.com/notargets/gofdm/iterative"
	"github.com/notargets/gofdm/mesh"
)

// OptionsPrefix is prepended to every recognized option key.
const OptionsPrefix = "fdm_"

// Sparsification strategies
const (
	TypeAffine  = "affine"
	TypeStencil = "stencil"
)

// Options is the validated, immutable configuration of a PC.
type Options struct {
	// Type is TypeAffine or TypeStencil
	Type string
	// TrueDiagonal selects no correction (0), symmetric diagonal scaling
	// (1) or exact reaction blocks on the diagonal (2)
	TrueDiagonal int
	Inner        iterative.InnerOptions
	Verbose      bool
}

func DefaultOptions() Options {
	return Options{
		Type:  TypeAffine,
		Inner: iterative.DefaultInnerOptions(),
	}
}

// ParseOptions reads fdm_type, fdm_true_diagonal, fdm_verbose and the inner
// solver keys (fdm_ksp_type, fdm_pc_type, fdm_ksp_rtol, fdm_ksp_max_it)
// from an opaque key value map.
func ParseOptions(opts map[string]string) (o Options, err error) {
	o = DefaultOptions()
	if v, ok := opts[OptionsPrefix+"type"]; ok {
		o.Type = v
	}
	if v, ok := opts[OptionsPrefix+"true_diagonal"]; ok {
		if o.TrueDiagonal, err = strconv.Atoi(v); err != nil {
			err = fmt.Errorf("%w: option %strue_diagonal: %v", ErrConfiguration, OptionsPrefix, err)
			return
		}
	}
	if v, ok := opts[OptionsPrefix+"verbose"]; ok {
		if o.Verbose, err = strconv.ParseBool(v); err != nil {
			err = fmt.Errorf("%w: option %sverbose: %v", ErrConfiguration, OptionsPrefix, err)
			return
		}
	}
	if o.Inner, err = iterative.ParseInnerOptions(opts, OptionsPrefix); err != nil {
		err = fmt.Errorf("%w: %v", ErrConfiguration, err)
		return
	}
	err = o.Validate()
	return
}

func (o Options) Validate() error {
	switch o.Type {
	case TypeAffine, TypeStencil:
	default:
		return fmt.Errorf("%w: unknown %stype %q", ErrConfiguration, OptionsPrefix, o.Type)
	}
	if o.TrueDiagonal < 0 || o.TrueDiagonal > 2 {
		return fmt.Errorf("%w: %strue_diagonal must be 0, 1 or 2, have %d",
			ErrConfiguration, OptionsPrefix, o.TrueDiagonal)
	}
	return nil
}

// AppContext carries the application level coefficients of the problem.
type AppContext struct {
	// Eta is the interior penalty parameter, zero selects (N+1)(N+ndim)
	Eta float64
	// Viscosity is the diffusivity, nil for the identity
	Viscosity Coefficient
	// Reaction is the zeroth order coefficient, nil for none
	Reaction Coefficient
}

// Context is everything a PC consumes from the problem it preconditions.
type Context struct {
	Space *mesh.FunctionSpace
	BCs   []DirichletBC
	Form  WeakForm
	App   AppContext
}
