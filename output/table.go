package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/LukasK13/ESBO-ETC/config"
	"github.com/LukasK13/ESBO-ETC/pipeline"
	"github.com/LukasK13/ESBO-ETC/sensor"
)

// Column is one column of a result table.  Name carries the unit in
// brackets, e.g. "Exposure Time [s]".
type Column struct {
	Name   string
	Values []float64
}

// label splits the name of a column into the bare name and the unit
func (c Column) label() (string, string) {
	i := strings.LastIndex(c.Name, " [")
	if i < 0 || !strings.HasSuffix(c.Name, "]") {
		return c.Name, ""
	}
	return c.Name[:i], c.Name[i+2 : len(c.Name)-1]
}

// rows is the length of the longest column
func rows(cols []Column) int {
	n := 0
	for _, c := range cols {
		if len(c.Values) > n {
			n = len(c.Values)
		}
	}
	return n
}

// TableColumns returns the columns of the spectral table of a heterodyne
// receiver
func TableColumns(t *sensor.Table) []Column {
	return []Column{
		{"Wavelength [nm]", t.WL},
		{"Signal Temperature [K]", t.SignalTemp},
		{"Background Temperature [K]", t.BackgroundTemp},
		{"RMS Noise Temperature [K]", t.RMSTemp},
		{t.ResultName, t.Result},
	}
}

// ResultColumns returns the columns of the result of a run: the inputs first
// and the computed quantity last
func ResultColumns(r *pipeline.Result) []Column {
	texp := Column{"Exposure Time [s]", r.ExpTime}
	snr := Column{"SNR [-]", r.SNR}
	switch r.Mode {
	case config.ModeSensitivity:
		return []Column{texp, snr, {"Sensitivity [mag]", r.Sensitivity}}
	case config.ModeExpTime:
		return []Column{snr, texp}
	default:
		return []Column{texp, snr}
	}
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Print writes cols to w as an aligned table.  The header is printed in bold
// and the last column, holding the result, in green; color.NoColor disables
// both.
func Print(w io.Writer, cols []Column) {
	head := color.New(color.Bold)
	res := color.New(color.FgGreen)

	cells := make([][]string, len(cols))
	widths := make([]int, len(cols))
	for j, c := range cols {
		cells[j] = make([]string, rows(cols))
		widths[j] = len(c.Name)
		for i := range cells[j] {
			if i < len(c.Values) {
				cells[j][i] = fmt.Sprintf("%.4g", c.Values[i])
			}
			if l := len(cells[j][i]); l > widths[j] {
				widths[j] = l
			}
		}
	}

	for j, c := range cols {
		if j > 0 {
			fmt.Fprint(w, "  ")
		}
		head.Fprintf(w, "%-*s", widths[j], c.Name)
	}
	fmt.Fprintln(w)
	for i := 0; i < rows(cols); i++ {
		for j := range cols {
			if j > 0 {
				fmt.Fprint(w, "  ")
			}
			if j == len(cols)-1 {
				res.Fprintf(w, "%*s", widths[j], cells[j][i])
				continue
			}
			fmt.Fprintf(w, "%*s", widths[j], cells[j][i])
		}
		fmt.Fprintln(w)
	}
}
