// Package mathx contains small numeric helpers that neither the standard
// library nor gonum provide in the shape the calculator needs.
package mathx

import (
	"errors"
	"math"
)

// ErrNoBracket is returned by Bisect when f(a) and f(b) have the same sign
var ErrNoBracket = errors.New("root is not bracketed by the interval")

// ErrNoConvergence is returned by Newton when the iteration does not settle
var ErrNoConvergence = errors.New("root finding did not converge")

// Round rounds a float to the nearest "unit" (0.1 for tenth, 0.01 for hundredth, and so on).
func Round(x, unit float64) float64 {
	return math.Floor(x/unit+0.5) * unit
}

// Bisect finds a root of f in [a, b] to an absolute tolerance of xtol.
func Bisect(f func(float64) float64, a, b, xtol float64) (float64, error) {
	fa, fb := f(a), f(b)
	if fa == 0 {
		return a, nil
	}
	if fb == 0 {
		return b, nil
	}
	if math.Signbit(fa) == math.Signbit(fb) {
		return 0, ErrNoBracket
	}
	for i := 0; i < 200 && b-a > xtol; i++ {
		m := a + (b-a)/2
		fm := f(m)
		if fm == 0 {
			return m, nil
		}
		if math.Signbit(fm) == math.Signbit(fa) {
			a, fa = m, fm
		} else {
			b = m
		}
	}
	return a + (b-a)/2, nil
}

// Newton finds a root of f starting at x0 using a central difference derivative
func Newton(f func(float64) float64, x0, tol float64) (float64, error) {
	x := x0
	for i := 0; i < 100; i++ {
		h := 1e-6 * math.Max(1, math.Abs(x))
		d := (f(x+h) - f(x-h)) / (2 * h)
		if d == 0 {
			return x, ErrNoConvergence
		}
		step := f(x) / d
		x -= step
		if math.Abs(step) < tol {
			return x, nil
		}
	}
	return x, ErrNoConvergence
}

// Arange returns the values start, start+step, ... strictly below stop
func Arange(start, stop, step float64) []float64 {
	if step <= 0 || stop <= start {
		return nil
	}
	n := int(math.Ceil((stop - start) / step))
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// NextPow2 returns the smallest power of two not smaller than n
func NextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
