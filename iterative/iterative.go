// Copyright ©2016 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package iterative provides the Krylov solvers used around the FDM
// preconditioner: the outer PCG of the model problems and the optional
// inner iteration on the assembled preconditioner matrix.
package iterative

import (
	"errors"
	"time"

	"gonum.org/v1/gonum/floats"
)

// MatrixOps describes the matrix of the linear system.
type MatrixOps struct {
	// MatVec computes dst = A*x. It must be non-nil.
	MatVec func(dst, x []float64)
}

type Settings struct {
	// X0 is an initial guess, nil for the zero vector.
	X0 []float64

	// Tolerance on the residual norm relative to the norm of b.
	Tolerance float64

	// MaxIterations is the iteration limit, twice the dimension when zero.
	MaxIterations int

	// PSolve stores into dst the solution of M z = rhs. When nil no
	// preconditioning is used.
	PSolve func(dst, rhs []float64) error
}

// Operation specifies the type of operation.
type Operation uint64

// Operations commanded by Method.Iterate.
const (
	NoOperation Operation = 0

	// Multiply A*x where x is stored in Context.Src and the result will be
	// stored in Context.Dst.
	MatVec Operation = 1 << (iota - 1)

	// Do the preconditioner solve M z = r, where r is stored in
	// Context.Src, and store the solution z in Context.Dst.
	PSolve

	// Check convergence using Context.ResidualNorm. If convergence is
	// detected Context.Converged is set before Iterate is called again.
	CheckResidualNorm

	// EndIteration indicates that Method has finished one iteration.
	EndIteration
)

// Method is an iterative method driven through reverse communication: it
// commands the caller to perform the operations it needs.
type Method interface {
	// Init initializes the method for solving a dim×dim linear system.
	Init(dim int)

	// Iterate retrieves data from Context, updates it, and returns the next
	// operation.
	Iterate(*Context) (Operation, error)
}

// Context mediates the communication between a Method and the caller.
type Context struct {
	// X is the current approximate solution.
	X []float64
	// Residual is the current residual b-A*x.
	Residual []float64
	// ResidualNorm is the norm of the current residual.
	ResidualNorm float64
	// Converged is set by the caller after CheckResidualNorm.
	Converged bool

	// Src and Dst are the source and destination vectors of an operation.
	Src, Dst []float64
}

type Stats struct {
	Iterations   int
	MatVec       int
	PSolve       int
	ResidualNorm float64
	StartTime    time.Time
	Runtime      time.Duration
}

type Result struct {
	X     []float64
	Stats Stats
}

var ErrIterationLimit = errors.New("iterative: iteration limit reached")

// Solve runs method on A x = b.
func Solve(a MatrixOps, b []float64, method Method, settings Settings) (Result, error) {
	stats := Stats{StartTime: time.Now()}

	dim := len(b)
	switch {
	case dim == 0:
		return Result{}, errors.New("iterative: zero dimension")
	case a.MatVec == nil:
		return Result{}, errors.New("iterative: nil matrix-vector multiplication")
	case settings.X0 != nil && len(settings.X0) != dim:
		return Result{}, errors.New("iterative: mismatched length of initial guess")
	}

	defaultSettings(&settings, dim)
	if settings.Tolerance < dlamchE || 1 <= settings.Tolerance {
		return Result{}, errors.New("iterative: invalid tolerance")
	}

	ctx := &Context{
		X:        make([]float64, dim),
		Residual: make([]float64, dim),
	}
	if settings.X0 != nil {
		copy(ctx.X, settings.X0)
		a.MatVec(ctx.Residual, ctx.X)
		stats.MatVec++
		floats.AddScaledTo(ctx.Residual, b, -1, ctx.Residual) // r = b - Ax
	} else {
		copy(ctx.Residual, b) // r = b
	}

	ctx.ResidualNorm = floats.Norm(ctx.Residual, 2)
	stats.ResidualNorm = ctx.ResidualNorm
	var err error
	if ctx.ResidualNorm > 0 {
		err = iterate(a, b, ctx, settings, method, &stats)
	}

	stats.Runtime = time.Since(stats.StartTime)
	return Result{
		X:     ctx.X,
		Stats: stats,
	}, err
}

func iterate(a MatrixOps, b []float64, ctx *Context, settings Settings, method Method, stats *Stats) error {
	bnorm := floats.Norm(b, 2)
	if bnorm == 0 {
		bnorm = 1
	}

	method.Init(len(ctx.X))

	for {
		op, err := method.Iterate(ctx)
		if err != nil {
			return err
		}

		switch op {
		case NoOperation:

		case MatVec:
			a.MatVec(ctx.Dst, ctx.Src)
			stats.MatVec++

		case PSolve:
			if settings.PSolve == nil {
				copy(ctx.Dst, ctx.Src)
				continue
			}
			if err = settings.PSolve(ctx.Dst, ctx.Src); err != nil {
				return err
			}
			stats.PSolve++

		case CheckResidualNorm:
			ctx.Converged = ctx.ResidualNorm/bnorm < settings.Tolerance

		case EndIteration:
			stats.Iterations++
			stats.ResidualNorm = ctx.ResidualNorm
			if ctx.Converged {
				return nil
			}
			if stats.Iterations == settings.MaxIterations {
				return ErrIterationLimit
			}

		default:
			panic("iterate: invalid operation")
		}
	}
}

func defaultSettings(s *Settings, dim int) {
	if s.Tolerance == 0 {
		s.Tolerance = 1e-8
	}
	if s.MaxIterations == 0 {
		s.MaxIterations = 2 * dim
	}
}

const dlamchE = 1.0 / (1 << 53)
