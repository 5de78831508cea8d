package psf

import (
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"

	"github.com/LukasK13/ESBO-ETC/mathx"
)

// convolve returns the full discrete convolution of a and k, of length
// len(a)+len(k)-1
func convolve(a, k []float64) []float64 {
	n := len(a) + len(k) - 1
	p := mathx.NextPow2(n)
	fft := fourier.NewFFT(p)
	pad := func(s []float64) []complex128 {
		buf := make([]float64, p)
		copy(buf, s)
		return fft.Coefficients(nil, buf)
	}
	fa, fk := pad(a), pad(k)
	for i := range fa {
		fa[i] *= fk[i]
	}
	seq := fft.Sequence(nil, fa)
	out := make([]float64, n)
	for i := range out {
		out[i] = seq[i] / float64(p)
	}
	return out
}

// convolve2D returns the full discrete convolution of a and k
func convolve2D(a, k *mat.Dense) *mat.Dense {
	ar, ac := a.Dims()
	kr, kc := k.Dims()
	or, oc := ar+kr-1, ac+kc-1
	pr, pc := mathx.NextPow2(or), mathx.NextPow2(oc)
	fa := fft2(a, pr, pc)
	fk := fft2(k, pr, pc)
	for i := range fa {
		fa[i] *= fk[i]
	}
	transform2(fa, pr, pc, true)
	out := mat.NewDense(or, oc, nil)
	scale := 1 / float64(pr*pc)
	for i := 0; i < or; i++ {
		for j := 0; j < oc; j++ {
			out.Set(i, j, real(fa[i*pc+j])*scale)
		}
	}
	return out
}

func fft2(m *mat.Dense, pr, pc int) []complex128 {
	buf := make([]complex128, pr*pc)
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j, v := range m.RawRowView(i)[:c] {
			buf[i*pc+j] = complex(v, 0)
		}
	}
	transform2(buf, pr, pc, false)
	return buf
}

// transform2 transforms a row major pr x pc buffer in place, rows first
func transform2(buf []complex128, pr, pc int, inverse bool) {
	rows := fourier.NewCmplxFFT(pc)
	for i := 0; i < pr; i++ {
		row := buf[i*pc : (i+1)*pc]
		if inverse {
			rows.Sequence(row, row)
		} else {
			rows.Coefficients(row, row)
		}
	}
	cols := fourier.NewCmplxFFT(pr)
	col := make([]complex128, pr)
	for j := 0; j < pc; j++ {
		for i := range col {
			col[i] = buf[i*pc+j]
		}
		if inverse {
			cols.Sequence(col, col)
		} else {
			cols.Coefficients(col, col)
		}
		for i, v := range col {
			buf[i*pc+j] = v
		}
	}
}

// resample evaluates the grid m, sampled at the coordinates ys (rows) and xs
// (columns), at yq x xq with an Akima spline along each axis.  Outside of the
// sampled range the edge value is repeated when clamp is set, else zero.
func resample(m *mat.Dense, ys, xs, yq, xq []float64, clamp bool) *mat.Dense {
	r, _ := m.Dims()
	tmp := mat.NewDense(r, len(xq), nil)
	for i := 0; i < r; i++ {
		f := fit(xs, m.RawRowView(i)[:len(xs)])
		for j, x := range xq {
			tmp.Set(i, j, f(x))
		}
	}
	out := mat.NewDense(len(yq), len(xq), nil)
	col := make([]float64, r)
	for j, x := range xq {
		if !clamp && (x < xs[0] || x > xs[len(xs)-1]) {
			continue
		}
		mat.Col(col, j, tmp)
		f := fit(ys, col)
		for i, y := range yq {
			if !clamp && (y < ys[0] || y > ys[len(ys)-1]) {
				continue
			}
			out.Set(i, j, f(y))
		}
	}
	return out
}

// fit returns an Akima spline through (xs, ys), or a constant for a single
// sample
func fit(xs, ys []float64) func(float64) float64 {
	if len(xs) < 2 {
		v := ys[0]
		return func(float64) float64 { return v }
	}
	var as interp.AkimaSpline
	as.Fit(xs, ys)
	return as.Predict
}
