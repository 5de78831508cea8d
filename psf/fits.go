package psf

import (
	"math"
	"os"

	"github.com/astrogo/fitsio"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/LukasK13/ESBO-ETC/units"
)

// FITS header keys of a PSF
const (
	KeyXPixelSize = "XPIXSZ"   // grid spacing along x in um
	KeyYPixelSize = "YPIXSZ"   // grid spacing along y in um, defaults to XPIXSZ
	KeyScale      = "PSFSCALE" // angular grid spacing in arcsec
	KeyXCenter    = "XPSFCTR"  // column index of the PSF centre
	KeyYCenter    = "YPSFCTR"  // row index of the PSF centre
)

// ReadFITS reads a PSF from the primary image of a FITS file.  The grid
// spacing is taken from XPIXSZ / YPIXSZ, else from PSFSCALE projected through
// the telescope, else it equals the pixel size.  The centre defaults to the
// middle of the grid.
func ReadFITS(path string, p Params, opts ...Option) (*Gridded, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	f, err := fitsio.Open(fh)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	defer f.Close()
	if len(f.HDUs()) < 1 {
		return nil, errors.Errorf("%s does not contain a PSF", path)
	}
	img, ok := f.HDU(0).(fitsio.Image)
	if !ok {
		return nil, errors.Errorf("%s: the primary HDU is not an image", path)
	}
	hdr := img.Header()
	axes := hdr.Axes()
	if len(axes) != 2 {
		return nil, errors.Errorf("%s: expected a 2D PSF, got %d axes", path, len(axes))
	}
	cols, rows := axes[0], axes[1]
	data, err := readImage(img, rows*cols)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	grid := mat.NewDense(rows, cols, data)

	var delta [2]units.Quantity
	switch {
	case hasCard(hdr, KeyXPixelSize):
		x, _ := cardFloat(hdr, KeyXPixelSize)
		y := x
		if v, ok := cardFloat(hdr, KeyYPixelSize); ok {
			y = v
		}
		delta = [2]units.Quantity{units.Q(y, units.Micrometer), units.Q(x, units.Micrometer)}
	case hasCard(hdr, KeyScale):
		scale, _ := cardFloat(hdr, KeyScale)
		d, err := p.DAperture.To(units.Meter)
		if err != nil {
			return nil, errors.Errorf("aperture diameter must be a length, got %s", p.DAperture)
		}
		half := units.Q(scale/2, units.Arcsec).MustTo(units.Radian)
		l := units.Q(2*p.FNumber*d*math.Tan(half), units.Meter)
		delta = [2]units.Quantity{l, l}
	default:
		delta = [2]units.Quantity{p.PixelSize, p.PixelSize}
	}

	center := [2]float64{float64(rows) / 2, float64(cols) / 2}
	x, okX := cardFloat(hdr, KeyXCenter)
	y, okY := cardFloat(hdr, KeyYCenter)
	if okX && okY {
		center = [2]float64{y, x}
	}
	return NewGridded(grid, delta, center, p, opts...)
}

// readImage reads the n samples of img as float64, applying BSCALE and BZERO
func readImage(img fitsio.Image, n int) ([]float64, error) {
	hdr := img.Header()
	out := make([]float64, n)
	switch hdr.Bitpix() {
	case 8:
		raw := make([]uint8, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case 16:
		raw := make([]int16, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case 32:
		raw := make([]int32, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case 64:
		raw := make([]int64, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case -32:
		raw := make([]float32, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case -64:
		if err := img.Read(&out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, errors.Errorf("unsupported BITPIX %d", hdr.Bitpix())
	}
	scale, zero := 1., 0.
	if v, ok := cardFloat(hdr, "BSCALE"); ok {
		scale = v
	}
	if v, ok := cardFloat(hdr, "BZERO"); ok {
		zero = v
	}
	for i, v := range out {
		out[i] = v*scale + zero
	}
	return out, nil
}

func hasCard(hdr *fitsio.Header, name string) bool {
	return hdr.Get(name) != nil
}

// cardFloat returns the numeric value of the card name
func cardFloat(hdr *fitsio.Header, name string) (float64, bool) {
	c := hdr.Get(name)
	if c == nil {
		return 0, false
	}
	switch v := c.Value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	}
	return 0, false
}
