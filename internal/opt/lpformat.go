package opt

import (
	"bufio"
	"io"
	"math"
	"strconv"
)

const lpTermsPerLine = 8

// WriteLP writes the formulation in CPLEX LP format. Ranged rows are split
// into _lo and _hi rows; rows with equal bounds become a single equality.
func (f *Formulation) WriteLP(w io.Writer) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("\\ wave selection model\n")
	bw.WriteString("Maximize\n")
	bw.WriteString(" obj:")
	f.writeExpr(bw, f.Objective())
	bw.WriteString("\n")

	bw.WriteString("Subject To\n")
	for _, r := range f.rows {
		loOK := !math.IsInf(r.Lo, -1)
		hiOK := !math.IsInf(r.Hi, 1)
		switch {
		case loOK && hiOK && r.Lo == r.Hi:
			f.writeRow(bw, r.Name, r.Terms, "=", r.Lo)
		case loOK && hiOK:
			f.writeRow(bw, r.Name+"_lo", r.Terms, ">=", r.Lo)
			f.writeRow(bw, r.Name+"_hi", r.Terms, "<=", r.Hi)
		case loOK:
			f.writeRow(bw, r.Name, r.Terms, ">=", r.Lo)
		case hiOK:
			f.writeRow(bw, r.Name, r.Terms, "<=", r.Hi)
		}
	}

	if len(f.z) > 0 {
		bw.WriteString("Bounds\n")
		for _, a := range f.z {
			v := f.vars[a.Var]
			bw.WriteString(" 0 <= " + v.Name + " <= " + formatCoef(v.Upper) + "\n")
		}
		bw.WriteString("Generals\n")
		f.writeNames(bw, Integer)
	}
	bw.WriteString("Binaries\n")
	f.writeNames(bw, Binary)
	bw.WriteString("End\n")
	return bw.Flush()
}

func (f *Formulation) writeRow(bw *bufio.Writer, name string, terms []Term, sense string, rhs float64) {
	if len(f.vars) == 0 {
		return
	}
	bw.WriteString(" " + name + ":")
	f.writeExpr(bw, terms)
	bw.WriteString(" " + sense + " " + formatCoef(rhs) + "\n")
}

func (f *Formulation) writeExpr(bw *bufio.Writer, terms []Term) {
	if len(terms) == 0 {
		if len(f.vars) > 0 {
			bw.WriteString(" 0 " + f.vars[0].Name)
		}
		return
	}
	for n, t := range terms {
		if n > 0 && n%lpTermsPerLine == 0 {
			bw.WriteString("\n  ")
		}
		c := t.Coef
		switch {
		case n == 0 && c < 0:
			bw.WriteString(" -")
			c = -c
		case n == 0:
		case c < 0:
			bw.WriteString(" -")
			c = -c
		default:
			bw.WriteString(" +")
		}
		bw.WriteString(" " + formatCoef(c) + " " + f.vars[t.Var].Name)
	}
}

func (f *Formulation) writeNames(bw *bufio.Writer, kind VarKind) {
	n := 0
	for _, v := range f.vars {
		if v.Kind != kind {
			continue
		}
		if n%lpTermsPerLine == 0 {
			if n > 0 {
				bw.WriteString("\n")
			}
			bw.WriteString(" ")
		}
		bw.WriteString(" " + v.Name)
		n++
	}
	if n > 0 {
		bw.WriteString("\n")
	}
}

func formatCoef(c float64) string {
	return strconv.FormatFloat(c, 'g', -1, 64)
}
