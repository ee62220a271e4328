package kernels

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Source renders the program as a self contained C translation unit. The
// tables become static const data and every Kron axis a cblas_dgemm call,
// row major, matching Run.
func (p *Program) Source() string {
	var sb strings.Builder

	sb.WriteString(p.generateTypeDefinitions())
	sb.WriteString(p.generateStaticMatrices())
	sb.WriteString(p.generateFunction())
	return sb.String()
}

func (p *Program) generateTypeDefinitions() string {
	var sb strings.Builder

	sb.WriteString("#include <string.h>\n")
	sb.WriteString("#include <cblas.h>\n\n")
	sb.WriteString(fmt.Sprintf("#define NARGS %d\n", p.NArgs))
	for i, n := range p.ArgLen {
		sb.WriteString(fmt.Sprintf("#define ARG%d_LEN %d\n", i, n))
	}
	sb.WriteString("\n")
	sb.WriteString("typedef double real_t;\n")
	sb.WriteString("#define REAL_ZERO 0.0\n")
	sb.WriteString("#define REAL_ONE 1.0\n\n")
	return sb.String()
}

func (p *Program) generateStaticMatrices() string {
	var sb strings.Builder

	if len(p.tableOrder) == 0 {
		return ""
	}
	sb.WriteString("// Static tables\n")
	for _, name := range p.tableOrder {
		sb.WriteString(formatStaticMatrix(name, p.Tables[name]))
	}
	return sb.String()
}

// formatStaticMatrix writes a row major table with round trip precision
func formatStaticMatrix(name string, m mat.Matrix) string {
	rows, cols := m.Dims()
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("static const real_t %s[%d] = {\n", name, rows*cols))
	for i := 0; i < rows; i++ {
		sb.WriteString("    ")
		for j := 0; j < cols; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%.17e", m.At(i, j)))
		}
		if i < rows-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("};\n\n")
	return sb.String()
}

func (p *Program) bufName(r Ref) string {
	if r.Buf < p.NArgs {
		return fmt.Sprintf("a%d", r.Buf)
	}
	return fmt.Sprintf("t%d", r.Buf-p.NArgs)
}

func (p *Program) addr(r Ref) string {
	if r.Off == 0 {
		return p.bufName(r)
	}
	return fmt.Sprintf("%s + %d", p.bufName(r), r.Off)
}

func (p *Program) generateFunction() string {
	var (
		sb      strings.Builder
		args    = make([]string, p.NArgs)
		scratch int
	)
	for i := range args {
		args[i] = fmt.Sprintf("real_t *restrict a%d", i)
	}
	for _, op := range p.Ops {
		if k, ok := op.(*Kron); ok {
			in, out := k.shapes(p)
			scratch = max(scratch, kronScratch(in, out, k.Batch))
		}
	}
	sb.WriteString(fmt.Sprintf("void %s(%s)\n{\n", p.Name, strings.Join(args, ", ")))
	for i, n := range p.Temps {
		sb.WriteString(fmt.Sprintf("    real_t t%d[%d];\n", i, n))
	}
	if scratch > 0 {
		sb.WriteString(fmt.Sprintf("    real_t k0[%d], k1[%d];\n", scratch, scratch))
	}
	for _, op := range p.Ops {
		sb.WriteString(fmt.Sprintf("    // %v\n", op))
		switch o := op.(type) {
		case *Zero:
			sb.WriteString(fmt.Sprintf("    memset(%s, 0, %d * sizeof(real_t));\n", p.addr(o.Dst), o.N))
		case *Strided:
			sb.WriteString(p.emitStrided(o))
		case *Kron:
			sb.WriteString(p.emitKron(o))
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

func kronScratch(in, out []int, batch int) (n int) {
	dims := append([]int{}, in...)
	n = prod(dims) * batch
	for d := range dims {
		dims[d] = out[d]
		n = max(n, prod(dims)*batch)
	}
	return
}

func (p *Program) emitStrided(s *Strided) string {
	var (
		assign = "="
		rhs    = fmt.Sprintf("%.17e * %s[%d + i*%d]", s.Alpha, p.bufName(s.Src), s.Src.Off, s.SStride)
	)
	if s.Accumulate {
		assign = "+="
	}
	if s.Weight != nil {
		rhs += fmt.Sprintf(" * %s[%d + i*%d]", p.bufName(*s.Weight), s.Weight.Off, s.WStride)
	}
	return fmt.Sprintf("    for (int i = 0; i < %d; ++i)\n        %s[%d + i*%d] %s %s;\n",
		s.N, p.bufName(s.Dst), s.Dst.Off, s.DStride, assign, rhs)
}

func (p *Program) emitKron(k *Kron) string {
	var (
		sb      strings.Builder
		in, _   = k.shapes(p)
		dims    = append([]int{}, in...)
		src     = p.addr(k.Src)
		scratch = []string{"k0", "k1"}
	)
	sb.WriteString(fmt.Sprintf("    memcpy(k0, %s, %d * sizeof(real_t));\n", src, prod(in)*k.Batch))
	for d, name := range k.Tables {
		var (
			r, c = p.Tables[name].Dims()
			nout = r
			tA   = "CblasNoTrans"
			tB   = "CblasTrans"
			pre  = prod(dims[:d])
			post = prod(dims[d+1:]) * k.Batch
			nin  = dims[d]
			cur  = scratch[d%2]
			next = scratch[(d+1)%2]
		)
		if k.Trans {
			nout = c
			tA, tB = "CblasTrans", "CblasNoTrans"
		}
		if post == 1 {
			sb.WriteString(fmt.Sprintf("    cblas_dgemm(CblasRowMajor, CblasNoTrans, %s, %d, %d, %d, REAL_ONE, %s, %d, %s, %d, REAL_ZERO, %s, %d);\n",
				tB, pre, nout, nin, cur, nin, name, c, next, nout))
		} else {
			sb.WriteString(fmt.Sprintf("    for (int b = 0; b < %d; ++b)\n", pre))
			sb.WriteString(fmt.Sprintf("        cblas_dgemm(CblasRowMajor, %s, CblasNoTrans, %d, %d, %d, REAL_ONE, %s, %d, %s + b*%d, %d, REAL_ZERO, %s + b*%d, %d);\n",
				tA, nout, post, nin, name, c, cur, nin*post, post, next, nout*post, post))
		}
		dims[d] = nout
	}
	var (
		res    = scratch[len(k.Tables)%2]
		assign = "="
	)
	if k.Accumulate {
		assign = "+="
	}
	sb.WriteString(fmt.Sprintf("    for (int i = 0; i < %d; ++i)\n        %s[%d + i] %s %.17e * %s[i];\n",
		prod(dims)*k.Batch, p.bufName(k.Dst), k.Dst.Off, assign, k.Alpha, res))
	return sb.String()
}
