package kernels

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
)

// Run executes the program. args must match NArgs; arguments no op refers
// to may be nil. Scratch is allocated per call, so one program may run from
// several goroutines at once.
func (p *Program) Run(args ...[]float64) error {
	if len(args) != p.NArgs {
		return fmt.Errorf("program %s takes %d arguments, have %d", p.Name, p.NArgs, len(args))
	}
	bufs := make([][]float64, p.NArgs+len(p.Temps))
	copy(bufs, args)
	for i, n := range p.Temps {
		bufs[p.NArgs+i] = make([]float64, n)
	}
	for _, op := range p.Ops {
		switch o := op.(type) {
		case *Zero:
			dst := bufs[o.Dst.Buf][o.Dst.Off : o.Dst.Off+o.N]
			for i := range dst {
				dst[i] = 0
			}
		case *Strided:
			o.run(bufs)
		case *Kron:
			o.run(p, bufs)
		default:
			return fmt.Errorf("program %s: unknown op %T", p.Name, op)
		}
	}
	return nil
}

func (s *Strided) run(bufs [][]float64) {
	var (
		dst = bufs[s.Dst.Buf]
		src = bufs[s.Src.Buf]
		w   []float64
	)
	if s.Weight != nil {
		w = bufs[s.Weight.Buf]
	}
	for i := 0; i < s.N; i++ {
		v := s.Alpha * src[s.Src.Off+i*s.SStride]
		if w != nil {
			v *= w[s.Weight.Off+i*s.WStride]
		}
		if s.Accumulate {
			dst[s.Dst.Off+i*s.DStride] += v
		} else {
			dst[s.Dst.Off+i*s.DStride] = v
		}
	}
}

// run contracts one axis at a time. Along axis d the array is viewed as
// (pre, in_d, post) and each pre block is multiplied by the table; when
// post is 1 the whole array is one gemm against the transposed table.
func (k *Kron) run(p *Program, bufs [][]float64) {
	var (
		in, _ = k.shapes(p)
		dims  = append([]int{}, in...)
		cur   = append([]float64{}, bufs[k.Src.Buf][k.Src.Off:k.Src.Off+prod(in)*k.Batch]...)
	)
	for d, name := range k.Tables {
		var (
			T    = p.Tables[name]
			r, c = T.Dims()
			nout = r
			tA   = blas.NoTrans
			tB   = blas.Trans
			pre  = prod(dims[:d])
			post = prod(dims[d+1:]) * k.Batch
			nin  = dims[d]
			tg   = T.RawMatrix()
			next []float64
		)
		if k.Trans {
			nout = c
			tA, tB = blas.Trans, blas.NoTrans
		}
		next = make([]float64, pre*nout*post)
		if post == 1 {
			blas64.Gemm(blas.NoTrans, tB, 1,
				blas64.General{Rows: pre, Cols: nin, Stride: nin, Data: cur},
				tg, 0,
				blas64.General{Rows: pre, Cols: nout, Stride: nout, Data: next})
		} else {
			for b := 0; b < pre; b++ {
				blas64.Gemm(tA, blas.NoTrans, 1,
					tg,
					blas64.General{Rows: nin, Cols: post, Stride: post, Data: cur[b*nin*post : (b+1)*nin*post]},
					0,
					blas64.General{Rows: nout, Cols: post, Stride: post, Data: next[b*nout*post : (b+1)*nout*post]})
			}
		}
		dims[d] = nout
		cur = next
	}
	dst := bufs[k.Dst.Buf][k.Dst.Off : k.Dst.Off+len(cur)]
	for i, v := range cur {
		if k.Accumulate {
			dst[i] += k.Alpha * v
		} else {
			dst[i] = k.Alpha * v
		}
	}
}
