// Package pixelmask models the exposure of a detector array.
//
// A Mask holds one weight per pixel, stored row major with the rows along the
// y axis of the detector.  Weights are 1 inside a photometric aperture and 0
// outside of it, until a PSF distributes the signal of a point source over
// them.  Masks are values: every transform returns a new Mask.
package pixelmask

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/LukasK13/ESBO-ETC/logging"
	"github.com/LukasK13/ESBO-ETC/units"
	"github.com/LukasK13/ESBO-ETC/util"
)

// Shape is the shape of a photometric aperture
type Shape int

const (
	// Circle selects all pixels whose centre lies within the radius
	Circle Shape = iota
	// Square selects all pixels within half the side length of the centre
	Square
)

// ShapeNames lists the accepted names of the shapes
var ShapeNames = []string{"circle", "square"}

func (s Shape) String() string {
	return ShapeNames[s]
}

// ParseShape parses "circle" or "square", case insensitive
func ParseShape(s string) (Shape, error) {
	switch strings.ToLower(s) {
	case "circle":
		return Circle, nil
	case "square":
		return Square, nil
	}
	return Circle, errors.Errorf("Unknown photometric aperture shape: '%s'.", s)
}

// Option configures a Mask
type Option func(*Mask)

// WithLogger sets the sink for warnings about the aperture
func WithLogger(l logging.Logger) Option {
	return func(m *Mask) { m.log = l }
}

// Mask is the exposure mask of a detector array
type Mask struct {
	data *mat.Dense

	// PixelSize is the edge length of a square pixel
	PixelSize units.Quantity

	// CenterInd is the (row, column) index of the centre of the array.
	// Indices of the centre of an even sized array are half integers.
	CenterInd [2]float64

	// PSFCenterInd is the (row, column) index the PSF is centred on
	PSFCenterInd [2]float64

	log logging.Logger
}

// New creates an empty mask of cols x rows pixels.  offset is the offset of
// the PSF centre from the centre of the array in pixels, (x, y).
func New(cols, rows int, pixelSize units.Quantity, offset [2]float64, opts ...Option) (*Mask, error) {
	if cols < 1 || rows < 1 {
		return nil, errors.Errorf("pixel geometry must be positive, got %d x %d", cols, rows)
	}
	if !pixelSize.Unit.Equivalent(units.Meter) {
		return nil, errors.Errorf("pixel size must be a length, got %s", pixelSize)
	}
	m := &Mask{
		data:      mat.NewDense(rows, cols, nil),
		PixelSize: pixelSize,
		CenterInd: [2]float64{float64(rows)/2 - 0.5, float64(cols)/2 - 0.5},
	}
	m.PSFCenterInd = [2]float64{m.CenterInd[0] + offset[1], m.CenterInd[1] + offset[0]}
	for _, o := range opts {
		o(m)
	}
	m.log = logging.OrNoop(m.log)
	return m, nil
}

// derive returns an empty mask with m's geometry
func (m *Mask) derive() *Mask {
	r, c := m.data.Dims()
	out := *m
	out.data = mat.NewDense(r, c, nil)
	return &out
}

// Clone returns a deep copy of m
func (m *Mask) Clone() *Mask {
	out := *m
	out.data = mat.DenseCopyOf(m.data)
	return &out
}

// Rows returns the number of rows
func (m *Mask) Rows() int {
	r, _ := m.data.Dims()
	return r
}

// Cols returns the number of columns
func (m *Mask) Cols() int {
	_, c := m.data.Dims()
	return c
}

// At returns the weight of the pixel in row r, column c
func (m *Mask) At(r, c int) float64 { return m.data.At(r, c) }

// Dense returns a copy of the weights
func (m *Mask) Dense() *mat.Dense { return mat.DenseCopyOf(m.data) }

// RawRow returns a copy of row r
func (m *Mask) RawRow(r int) []float64 {
	return append([]float64(nil), m.data.RawRowView(r)...)
}

// Sum returns the sum of all weights
func (m *Mask) Sum() float64 { return mat.Sum(m.data) }

// Count returns the number of pixels with a non-zero weight
func (m *Mask) Count() int {
	n := 0
	r, c := m.data.Dims()
	for i := 0; i < r; i++ {
		for _, v := range m.data.RawRowView(i)[:c] {
			if v != 0 {
				n++
			}
		}
	}
	return n
}

// Max returns the largest weight
func (m *Mask) Max() float64 { return mat.Max(m.data) }

// Map returns a mask with f applied to every weight
func (m *Mask) Map(f func(r, c int, v float64) float64) *Mask {
	out := m.derive()
	out.data.Apply(f, m.data)
	return out
}

// Scale returns a mask with every weight multiplied by s
func (m *Mask) Scale(s float64) *Mask {
	out := m.derive()
	out.data.Scale(s, m.data)
	return out
}

// MulElem returns the element wise product of m and o
func (m *Mask) MulElem(o *Mask) (*Mask, error) {
	if m.Rows() != o.Rows() || m.Cols() != o.Cols() {
		return nil, errors.Errorf("mask shapes differ: %dx%d and %dx%d", m.Rows(), m.Cols(), o.Rows(), o.Cols())
	}
	out := m.derive()
	out.data.MulElem(m.data, o.data)
	return out, nil
}

// BoundingBox returns the half open index range [r0, r1) x [c0, c1) holding
// every non-zero pixel.  ok is false for an empty mask.
func (m *Mask) BoundingBox() (r0, r1, c0, c1 int, ok bool) {
	rows, cols := m.data.Dims()
	r0, c0 = rows, cols
	for i := 0; i < rows; i++ {
		for j, v := range m.data.RawRowView(i)[:cols] {
			if v == 0 {
				continue
			}
			ok = true
			r0 = min(r0, i)
			r1 = max(r1, i+1)
			c0 = min(c0, j)
			c1 = max(c1, j+1)
		}
	}
	if !ok {
		return 0, 0, 0, 0, false
	}
	return r0, r1, c0, c1, true
}

// Aperture returns m with a photometric aperture of the given shape set to 1.
// radius is in pixels; for a square it is half the side length.  The aperture
// is centred on the PSF centre, or on the array centre shifted by offset
// (x, y) in pixels when offset is given.  An aperture reaching outside of the
// array is clipped with a warning.
func (m *Mask) Aperture(shape Shape, radius float64, offset *[2]float64) (*Mask, error) {
	if radius < 0 || math.IsNaN(radius) {
		return nil, errors.Errorf("aperture radius must not be negative, got %g", radius)
	}
	rows, cols := m.data.Dims()
	yc, xc := m.PSFCenterInd[0], m.PSFCenterInd[1]
	if offset != nil {
		yc, xc = float64(rows)/2-0.5+offset[1], float64(cols)/2-0.5+offset[0]
	}
	if xc+radius > float64(cols-1) || xc-radius < 0 || yc+radius > float64(rows-1) || yc-radius < 0 {
		m.log.Warn("Some parts of the photometric aperture are outside of the array.",
			logging.Float("radius", radius), logging.Float("x", xc), logging.Float("y", yc))
	}

	out := m.Clone()
	switch shape {
	case Circle:
		Rasterize(rows, cols, yc, xc, radius, func(r, c int) { out.data.Set(r, c, 1) })
	case Square:
		right := util.ClampInt(int(math.Round(xc+radius-1e-6)), 0, cols-1)
		left := util.ClampInt(int(math.Round(xc-radius+1e-6)), 0, cols-1)
		low := util.ClampInt(int(math.Round(yc+radius-1e-6)), 0, rows-1)
		up := util.ClampInt(int(math.Round(yc-radius+1e-6)), 0, rows-1)
		for r := up; r <= low; r++ {
			for c := left; c <= right; c++ {
				out.data.Set(r, c, 1)
			}
		}
	default:
		return nil, errors.Errorf("unknown aperture shape %d", shape)
	}
	return out, nil
}

// Rasterize calls visit for every pixel of a rows x cols grid whose centre
// lies within radius of (yc, xc), and for the pixel holding (yc, xc).  Each
// pixel is visited once.
func Rasterize(rows, cols int, yc, xc, radius float64, visit func(r, c int)) {
	r0 := max(0, int(math.Ceil(yc-radius)))
	r1 := min(rows-1, int(math.Floor(yc+radius)))
	c0 := max(0, int(math.Ceil(xc-radius)))
	c1 := min(cols-1, int(math.Floor(xc+radius)))
	rc, cc := int(math.Round(yc)), int(math.Round(xc))
	centre := false
	for r := r0; r <= r1; r++ {
		dy := float64(r) - yc
		for c := c0; c <= c1; c++ {
			dx := float64(c) - xc
			if dx*dx+dy*dy <= radius*radius {
				visit(r, c)
				centre = centre || (r == rc && c == cc)
			}
		}
	}
	if !centre && rc >= 0 && rc < rows && cc >= 0 && cc < cols {
		visit(rc, cc)
	}
}

// View is a rectangular section of a Mask.  It owns a copy of the weights and
// of the geometry, with the centre indices relative to its own origin.
type View struct {
	// Origin is the (row, column) index of the view's first pixel in the
	// parent mask
	Origin [2]int

	Data         *mat.Dense
	PixelSize    units.Quantity
	CenterInd    [2]float64
	PSFCenterInd [2]float64
}

// Sub returns the rows [r0, r1) and columns [c0, c1) of m as a View
func (m *Mask) Sub(r0, r1, c0, c1 int) (*View, error) {
	rows, cols := m.data.Dims()
	if r0 < 0 || c0 < 0 || r1 > rows || c1 > cols || r0 >= r1 || c0 >= c1 {
		return nil, errors.Errorf("view [%d:%d, %d:%d] is outside of the %dx%d mask", r0, r1, c0, c1, rows, cols)
	}
	return &View{
		Origin:       [2]int{r0, c0},
		Data:         mat.DenseCopyOf(m.data.Slice(r0, r1, c0, c1)),
		PixelSize:    m.PixelSize,
		CenterInd:    [2]float64{m.CenterInd[0] - float64(r0), m.CenterInd[1] - float64(c0)},
		PSFCenterInd: [2]float64{m.PSFCenterInd[0] - float64(r0), m.PSFCenterInd[1] - float64(c0)},
	}, nil
}

// Replace returns a mask that is zero outside of v and holds v's weights
// inside of it
func (m *Mask) Replace(v *View) (*Mask, error) {
	r, c := v.Data.Dims()
	if v.Origin[0]+r > m.Rows() || v.Origin[1]+c > m.Cols() {
		return nil, errors.New("view does not fit into the mask")
	}
	out := m.derive()
	out.data.Slice(v.Origin[0], v.Origin[0]+r, v.Origin[1], v.Origin[1]+c).(*mat.Dense).Copy(v.Data)
	return out, nil
}
