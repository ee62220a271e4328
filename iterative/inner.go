package iterative

import (
	"fmt"
	"io"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gofdm/utils"
)

// InnerOptions configures the solver wrapped around an assembled matrix.
type InnerOptions struct {
	KSPType string // preonly or cg
	PCType  string // cholesky, jacobi or none
	RTol    float64
	MaxIt   int
}

func DefaultInnerOptions() InnerOptions {
	return InnerOptions{
		KSPType: "preonly",
		PCType:  "cholesky",
		RTol:    1e-10,
		MaxIt:   10000,
	}
}

// ParseInnerOptions reads <prefix>ksp_type, <prefix>pc_type,
// <prefix>ksp_rtol and <prefix>ksp_max_it from opts.
func ParseInnerOptions(opts map[string]string, prefix string) (o InnerOptions, err error) {
	o = DefaultInnerOptions()
	if v, ok := opts[prefix+"ksp_type"]; ok {
		o.KSPType = v
	}
	if v, ok := opts[prefix+"pc_type"]; ok {
		o.PCType = v
	}
	if v, ok := opts[prefix+"ksp_rtol"]; ok {
		if o.RTol, err = strconv.ParseFloat(v, 64); err != nil {
			err = fmt.Errorf("option %sksp_rtol: %w", prefix, err)
			return
		}
	}
	if v, ok := opts[prefix+"ksp_max_it"]; ok {
		if o.MaxIt, err = strconv.Atoi(v); err != nil {
			err = fmt.Errorf("option %sksp_max_it: %w", prefix, err)
			return
		}
	}
	switch o.KSPType {
	case "preonly", "cg":
	default:
		err = fmt.Errorf("unknown %sksp_type %q", prefix, o.KSPType)
		return
	}
	switch o.PCType {
	case "cholesky", "jacobi":
	case "none":
		if o.KSPType == "preonly" {
			err = fmt.Errorf("%sksp_type preonly needs a preconditioner", prefix)
		}
	default:
		err = fmt.Errorf("unknown %spc_type %q", prefix, o.PCType)
	}
	return
}

// InnerSolver approximately inverts an assembled sparse matrix.
type InnerSolver interface {
	// SetOperator (re)factors the matrix. It must be called after every
	// change of the matrix values.
	SetOperator(A *utils.AIJ) error
	Solve(b, x []float64) error
	View(w io.Writer)
}

func NewInnerSolver(opts InnerOptions) InnerSolver {
	return &innerSolver{opts: opts}
}

type innerSolver struct {
	opts InnerOptions
	A    *utils.AIJ
	chol *mat.Cholesky
	dinv []float64
	// iterations of the last Solve
	its int
}

func (s *innerSolver) SetOperator(A *utils.AIJ) (err error) {
	s.A = A
	s.chol, s.dinv = nil, nil
	switch s.opts.PCType {
	case "cholesky":
		var (
			n, _ = A.Dims()
			S    = utils.Symmetrize(A.ToDense())
		)
		s.chol = new(mat.Cholesky)
		if ok := s.chol.Factorize(S); !ok {
			s.chol = nil
			err = fmt.Errorf("cholesky factorization of %q (%d rows) failed, matrix is not positive definite", A.Name(), n)
		}
	case "jacobi":
		s.dinv = utils.Reciprocal(A.Diagonal())
	}
	return
}

func (s *innerSolver) precondition(dst, rhs []float64) error {
	switch {
	case s.chol != nil:
		var (
			x mat.VecDense
		)
		if err := s.chol.SolveVecTo(&x, mat.NewVecDense(len(rhs), rhs)); err != nil {
			return err
		}
		copy(dst, x.RawVector().Data)
	case s.dinv != nil:
		for i, r := range rhs {
			dst[i] = s.dinv[i] * r
		}
	default:
		copy(dst, rhs)
	}
	return nil
}

func (s *innerSolver) Solve(b, x []float64) (err error) {
	if s.A == nil {
		return fmt.Errorf("inner solver has no operator")
	}
	if s.opts.KSPType == "preonly" {
		s.its = 1
		return s.precondition(x, b)
	}
	var res Result
	res, err = Solve(MatrixOps{MatVec: s.A.MulVec}, b, &CG{}, Settings{
		Tolerance:     s.opts.RTol,
		MaxIterations: s.opts.MaxIt,
		PSolve:        s.precondition,
	})
	s.its = res.Stats.Iterations
	if res.X != nil {
		copy(x, res.X)
	}
	return
}

func (s *innerSolver) View(w io.Writer) {
	fmt.Fprintf(w, "  KSP Object: type=%s, rtol=%g, max_it=%d\n", s.opts.KSPType, s.opts.RTol, s.opts.MaxIt)
	fmt.Fprintf(w, "  PC Object: type=%s\n", s.opts.PCType)
	if s.A != nil {
		nr, nc := s.A.Dims()
		fmt.Fprintf(w, "    Mat Object: %s, rows=%d, cols=%d, nnz=%d\n", s.A.Name(), nr, nc, s.A.NNZ())
	}
}
