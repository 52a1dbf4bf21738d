package report

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/dengue.report/internal/surveillance"
)

const (
	chartWidth  = 14 * vg.Inch
	chartHeight = 6 * vg.Inch
)

// ConfirmedByBandPlot draws one line per age band of confirmed cases by
// month.
func ConfirmedByBandPlot(title string, grid *surveillance.Grid) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Month"
	p.Y.Label.Text = "Confirmed cases"
	p.X.Min, p.X.Max = 1, 12
	p.NominalX(append([]string{""}, MonthAbbrev[:]...)...)

	bands := surveillance.Bands()
	colors := generateColors(len(bands))
	for i, b := range bands {
		pts := make(plotter.XYs, 12)
		for m := 1; m <= 12; m++ {
			pts[m-1] = plotter.XY{X: float64(m), Y: float64(grid.Cell(m, b)[surveillance.MetricConfirmed])}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("band %s: %w", b, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(b.String(), line)
	}
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// MonthlyBarPlot draws one metric per month as bars.
func MonthlyBarPlot(title string, monthly [12]surveillance.Counts, m surveillance.Metric) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = m.String()

	values := make(plotter.Values, 12)
	for i, c := range monthly {
		values[i] = float64(c[m])
	}
	bars, err := plotter.NewBarChart(values, vg.Points(24))
	if err != nil {
		return nil, err
	}
	bars.Color = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 255}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(MonthAbbrev[:]...)
	return p, nil
}

// WritePNG encodes p as a PNG of the standard report size.
func WritePNG(w io.Writer, p *plot.Plot) error {
	wt, err := p.WriterTo(chartWidth, chartHeight, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// generateColors creates a palette of n distinct hues.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL in [0,1] to 8-bit RGB.
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	switch {
	case t < 0:
		t++
	case t > 1:
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
