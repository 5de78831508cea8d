package units

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/unit"
)

var (
	length  = unit.Dimensions{unit.LengthDim: 1}
	timeD   = unit.Dimensions{unit.TimeDim: 1}
	freq    = unit.Dimensions{unit.TimeDim: -1}
	energy  = unit.Dimensions{unit.MassDim: 1, unit.LengthDim: 2, unit.TimeDim: -2}
	power   = unit.Dimensions{unit.MassDim: 1, unit.LengthDim: 2, unit.TimeDim: -3}
	angle   = unit.Dimensions{unit.AngleDim: 1}
	spectFD = unit.Dimensions{unit.MassDim: 1, unit.TimeDim: -2} // W / (m2 Hz)
)

// Commonly used units
var (
	Dimensionless = Unit{}
	Meter         = newAtom("m", 1, length)
	Centimeter    = newAtom("cm", 1e-2, length)
	Millimeter    = newAtom("mm", 1e-3, length)
	Micrometer    = newAtom("um", 1e-6, length)
	Nanometer     = newAtom("nm", 1e-9, length)
	Angstrom      = newAtom("Angstrom", 1e-10, length)
	Foot          = newAtom("ft", 0.3048, length)
	Second        = newAtom("s", 1, timeD)
	Hertz         = newAtom("Hz", 1, freq)
	Joule         = newAtom("J", 1, energy)
	Watt          = newAtom("W", 1, power)
	Kelvin        = newAtom("K", 1, unit.Dimensions{unit.TemperatureDim: 1})
	Radian        = newAtom("rad", 1, angle)
	Degree        = newAtom("deg", math.Pi/180, angle)
	Arcsec        = newAtom("arcsec", math.Pi/180/3600, angle)
	Steradian     = newAtom("sr", 1, unit.Dimensions{unit.AngleDim: 2})
	Photon        = newAtom("ph", 1, unit.Dimensions{photonDim: 1})
	Electron      = newAtom("electron", 1, unit.Dimensions{electronDim: 1})
	Pixel         = newAtom("pix", 1, unit.Dimensions{pixelDim: 1})
	Mag           = newAtom("mag", 1, unit.Dimensions{magDim: 1})
	Jansky        = newAtom("Jy", 1e-26, spectFD)

	// Celsius and Fahrenheit are only meaningful to the temperature package
	Celsius    = Unit{terms: []term{{"deg_C", 1}}, si: unit.New(1, unit.Dimensions{unit.TemperatureDim: 1}), affine: true}
	Fahrenheit = Unit{terms: []term{{"deg_F", 1}}, si: unit.New(5./9., unit.Dimensions{unit.TemperatureDim: 1}), affine: true}
)

// Derived units used throughout the calculator
var (
	// SpectralRadiance is W / (m2 nm sr), used for backgrounds and extended targets
	SpectralRadiance = Watt.Div(Meter.Pow(2)).Div(Nanometer).Div(Steradian)

	// SpectralFluxDensity is W / (m2 nm), used for point sources
	SpectralFluxDensity = Watt.Div(Meter.Pow(2)).Div(Nanometer)

	// FrequencyRadiance is W / (m2 Hz sr)
	FrequencyRadiance = Watt.Div(Meter.Pow(2)).Div(Hertz).Div(Steradian)

	// FrequencyFluxDensity is W / (m2 Hz)
	FrequencyFluxDensity = Watt.Div(Meter.Pow(2)).Div(Hertz)

	// QuantumEfficiency is electron / ph
	QuantumEfficiency = Electron.Div(Photon)
)

// table maps every accepted symbol to its unit
var table = map[string]Unit{
	"m":             Meter,
	"km":            newAtom("km", 1e3, length),
	"cm":            Centimeter,
	"mm":            Millimeter,
	"um":            Micrometer,
	"µm":            Micrometer,
	"μm":            Micrometer,
	"micron":        Micrometer,
	"nm":            Nanometer,
	"pm":            newAtom("pm", 1e-12, length),
	"Angstrom":      Angstrom,
	"AA":            Angstrom,
	"ft":            Foot,
	"s":             Second,
	"ms":            newAtom("ms", 1e-3, timeD),
	"us":            newAtom("us", 1e-6, timeD),
	"ns":            newAtom("ns", 1e-9, timeD),
	"min":           newAtom("min", 60, timeD),
	"h":             newAtom("h", 3600, timeD),
	"Hz":            Hertz,
	"kHz":           newAtom("kHz", 1e3, freq),
	"MHz":           newAtom("MHz", 1e6, freq),
	"GHz":           newAtom("GHz", 1e9, freq),
	"THz":           newAtom("THz", 1e12, freq),
	"J":             Joule,
	"erg":           newAtom("erg", 1e-7, energy),
	"eV":            newAtom("eV", 1.602176634e-19, energy),
	"W":             Watt,
	"mW":            newAtom("mW", 1e-3, power),
	"uW":            newAtom("uW", 1e-6, power),
	"nW":            newAtom("nW", 1e-9, power),
	"kg":            newAtom("kg", 1, unit.Dimensions{unit.MassDim: 1}),
	"g":             newAtom("g", 1e-3, unit.Dimensions{unit.MassDim: 1}),
	"K":             Kelvin,
	"deg_C":         Celsius,
	"Celsius":       Celsius,
	"deg_F":         Fahrenheit,
	"Fahrenheit":    Fahrenheit,
	"rad":           Radian,
	"deg":           Degree,
	"arcmin":        newAtom("arcmin", math.Pi/180/60, angle),
	"arcsec":        Arcsec,
	"mas":           newAtom("mas", math.Pi/180/3600e3, angle),
	"sr":            Steradian,
	"ph":            Photon,
	"photon":        Photon,
	"electron":      Electron,
	"pix":           Pixel,
	"pixel":         Pixel,
	"mag":           Mag,
	"Jy":            Jansky,
	"mJy":           newAtom("mJy", 1e-29, spectFD),
	"dimensionless": Dimensionless,
}

// Parse parses a unit expression such as "W / (m2 nm sr)", "erg s-1 cm-2 AA-1"
// or "electron / (pix s)".  Juxtaposition and * multiply, / divides the next
// factor, exponents are written as m2, m^2 or m**2.  An empty string, "-" and
// "1" are dimensionless.
func Parse(s string) (Unit, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return Dimensionless, nil
	}
	p := &parser{src: []rune(s)}
	u, err := p.expr()
	if err != nil {
		return Unit{}, errors.Wrapf(err, "parsing unit %q", s)
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return Unit{}, errors.Errorf("parsing unit %q: unexpected %q", s, string(p.src[p.pos:]))
	}
	return u, nil
}

// MustParse is like Parse but panics on error.  It is meant for package level
// variables with constant unit strings.
func MustParse(s string) Unit {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

type parser struct {
	src []rune
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *parser) peek() rune {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) expr() (Unit, error) {
	u, err := p.factor()
	if err != nil {
		return Unit{}, err
	}
	for {
		p.skipSpace()
		r := p.peek()
		switch {
		case r == 0 || r == ')':
			return u, nil
		case r == '/':
			p.pos++
			f, err := p.factor()
			if err != nil {
				return Unit{}, err
			}
			u = u.Div(f)
		case r == '*' || r == '.':
			p.pos++
			f, err := p.factor()
			if err != nil {
				return Unit{}, err
			}
			u = u.Mul(f)
		default:
			f, err := p.factor()
			if err != nil {
				return Unit{}, err
			}
			u = u.Mul(f)
		}
	}
}

func (p *parser) factor() (Unit, error) {
	p.skipSpace()
	r := p.peek()
	var u Unit
	switch {
	case r == '(':
		p.pos++
		inner, err := p.expr()
		if err != nil {
			return Unit{}, err
		}
		p.skipSpace()
		if p.peek() != ')' {
			return Unit{}, errors.New("missing closing parenthesis")
		}
		p.pos++
		u = inner
	case unicode.IsDigit(r):
		start := p.pos
		for p.pos < len(p.src) && (unicode.IsDigit(p.src[p.pos]) || strings.ContainsRune(".eE+-", p.src[p.pos])) {
			p.pos++
		}
		v, err := strconv.ParseFloat(string(p.src[start:p.pos]), 64)
		if err != nil {
			return Unit{}, err
		}
		if v != 1 {
			u = Unit{terms: nil, si: unit.New(v, unit.Dimensions{})}
		}
		return u, nil
	case isIdent(r):
		start := p.pos
		for p.pos < len(p.src) && isIdent(p.src[p.pos]) {
			p.pos++
		}
		sym := string(p.src[start:p.pos])
		atom, ok := table[sym]
		if !ok {
			return Unit{}, errors.Wrapf(ErrUnknownUnit, "%q", sym)
		}
		u = atom
	default:
		return Unit{}, errors.Errorf("unexpected %q", string(r))
	}
	n, ok, err := p.exponent()
	if err != nil {
		return Unit{}, err
	}
	if ok {
		if u.affine {
			return Unit{}, errors.New("temperature scales with an offset can not be raised to a power")
		}
		u = u.Pow(n)
	}
	return u, nil
}

// exponent parses an optional integer exponent directly following a factor
func (p *parser) exponent() (int, bool, error) {
	if p.pos < len(p.src)-1 && p.src[p.pos] == '*' && p.src[p.pos+1] == '*' {
		p.pos += 2
	} else if p.peek() == '^' {
		p.pos++
	}
	start := p.pos
	if r := p.peek(); r == '-' || r == '+' {
		p.pos++
	}
	for p.pos < len(p.src) && unicode.IsDigit(p.src[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return 0, false, nil
	}
	str := string(p.src[start:p.pos])
	if str == "-" || str == "+" {
		p.pos = start
		return 0, false, nil
	}
	if p.peek() == '.' && p.pos+1 < len(p.src) && unicode.IsDigit(p.src[p.pos+1]) {
		return 0, false, errors.New("fractional exponents are not supported")
	}
	n, err := strconv.Atoi(str)
	return n, true, err
}

func isIdent(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || r == 'µ' || r == 'μ'
}
