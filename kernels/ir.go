package kernels

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Ref addresses a buffer of a program at an offset. Buffers below
// Program.NArgs are call arguments, the rest are scratch.
type Ref struct {
	Buf, Off int
}

// Op is one step of a kernel program.
type Op interface {
	fmt.Stringer
	check(p *Program) error
}

// Zero clears N entries of Dst.
type Zero struct {
	Dst Ref
	N   int
}

// Strided computes dst[i*DStride] (+)= Alpha * src[i*SStride] (* w[i*WStride])
// for i < N.
type Strided struct {
	Dst, Src         Ref
	DStride, SStride int
	Weight           *Ref
	WStride          int
	N                int
	Alpha            float64
	Accumulate       bool
}

// Kron applies the tensor product of per axis tables to a lexicographic
// array, axis 0 slowest, followed by Batch contiguous entries that are
// carried along untouched. With Trans set the transposed tables are used.
type Kron struct {
	Tables     []string
	Trans      bool
	Batch      int
	Src, Dst   Ref
	Alpha      float64
	Accumulate bool
}

// Program is a straight line list of ops over named dense tables.
type Program struct {
	Name   string
	NArgs  int
	ArgLen []int
	Temps  []int
	Tables map[string]*mat.Dense
	// order in which tables are emitted
	tableOrder []string
	Ops        []Op
}

func NewProgram(name string, argLen ...int) *Program {
	return &Program{
		Name:   name,
		NArgs:  len(argLen),
		ArgLen: argLen,
		Tables: make(map[string]*mat.Dense),
	}
}

// Arg returns a reference to argument i at offset off.
func (p *Program) Arg(i, off int) Ref { return Ref{Buf: i, Off: off} }

// Temp allocates a scratch buffer of length n.
func (p *Program) Temp(n int) Ref {
	p.Temps = append(p.Temps, n)
	return Ref{Buf: p.NArgs + len(p.Temps) - 1}
}

// AddTable registers a dense table under name, replacing nothing.
func (p *Program) AddTable(name string, T mat.Matrix) string {
	if _, ok := p.Tables[name]; ok {
		return name
	}
	p.Tables[name] = mat.DenseCopyOf(T)
	p.tableOrder = append(p.tableOrder, name)
	return name
}

func (p *Program) Add(ops ...Op) { p.Ops = append(p.Ops, ops...) }

func (p *Program) bufLen(b int) int {
	if b < p.NArgs {
		return p.ArgLen[b]
	}
	return p.Temps[b-p.NArgs]
}

// Validate checks every op against the buffer and table sizes.
func (p *Program) Validate() error {
	for i, op := range p.Ops {
		if err := op.check(p); err != nil {
			return fmt.Errorf("program %s op %d (%v): %w", p.Name, i, op, err)
		}
	}
	return nil
}

func (p *Program) checkRange(r Ref, n int) error {
	if r.Buf < 0 || r.Buf >= p.NArgs+len(p.Temps) {
		return fmt.Errorf("buffer %d does not exist", r.Buf)
	}
	if r.Off < 0 || r.Off+n > p.bufLen(r.Buf) {
		return fmt.Errorf("range [%d,%d) exceeds buffer %d of length %d", r.Off, r.Off+n, r.Buf, p.bufLen(r.Buf))
	}
	return nil
}

// shapes returns the input and output extent along each axis.
func (k *Kron) shapes(p *Program) (in, out []int) {
	in = make([]int, len(k.Tables))
	out = make([]int, len(k.Tables))
	for d, name := range k.Tables {
		r, c := p.Tables[name].Dims()
		if k.Trans {
			r, c = c, r
		}
		in[d], out[d] = c, r
	}
	return
}

func prod(n []int) (p int) {
	p = 1
	for _, v := range n {
		p *= v
	}
	return
}

func (z *Zero) String() string { return fmt.Sprintf("zero(%v, %d)", z.Dst, z.N) }

func (z *Zero) check(p *Program) error { return p.checkRange(z.Dst, z.N) }

func (s *Strided) String() string {
	return fmt.Sprintf("strided(%v:%d <- %g*%v:%d, n=%d)", s.Dst, s.DStride, s.Alpha, s.Src, s.SStride, s.N)
}

func (s *Strided) check(p *Program) (err error) {
	if s.N == 0 {
		return
	}
	if err = p.checkRange(s.Dst, (s.N-1)*s.DStride+1); err != nil {
		return
	}
	if err = p.checkRange(s.Src, (s.N-1)*s.SStride+1); err != nil {
		return
	}
	if s.Weight != nil {
		err = p.checkRange(*s.Weight, (s.N-1)*s.WStride+1)
	}
	return
}

func (k *Kron) String() string {
	return fmt.Sprintf("kron(%v, trans=%v, batch=%d, %v -> %v)", k.Tables, k.Trans, k.Batch, k.Src, k.Dst)
}

func (k *Kron) check(p *Program) (err error) {
	if len(k.Tables) == 0 {
		return fmt.Errorf("kron without tables")
	}
	if k.Batch < 1 {
		return fmt.Errorf("batch must be positive")
	}
	for _, name := range k.Tables {
		if _, ok := p.Tables[name]; !ok {
			return fmt.Errorf("unknown table %q", name)
		}
	}
	in, out := k.shapes(p)
	if err = p.checkRange(k.Src, prod(in)*k.Batch); err != nil {
		return
	}
	return p.checkRange(k.Dst, prod(out)*k.Batch)
}
