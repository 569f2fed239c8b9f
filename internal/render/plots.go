package render

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// GreenHistoryPlot saves a line plot of one pixel's green trace, with the
// filtered trace overlaid when available. Useful for judging filter and
// peak-detection behavior on real data.
func GreenHistoryPlot(path string, raw []uint8, filtered []float64, peakIdx int) error {
	p := plot.New()
	p.Title.Text = "Green history"
	p.X.Label.Text = "frame"
	p.Y.Label.Text = "green"

	rawPts := make(plotter.XYs, len(raw))
	for i, v := range raw {
		rawPts[i].X = float64(i)
		rawPts[i].Y = float64(v)
	}
	rawLine, err := plotter.NewLine(rawPts)
	if err != nil {
		return fmt.Errorf("raw line: %w", err)
	}
	rawLine.Width = vg.Points(1)
	rawLine.Color = color.RGBA{R: 0x2e, G: 0x8b, B: 0x57, A: 0xff}
	p.Add(rawLine)
	p.Legend.Add("raw", rawLine)

	if len(filtered) == len(raw) {
		fPts := make(plotter.XYs, len(filtered))
		for i, v := range filtered {
			fPts[i].X = float64(i)
			fPts[i].Y = v
		}
		fLine, err := plotter.NewLine(fPts)
		if err != nil {
			return fmt.Errorf("filtered line: %w", err)
		}
		fLine.Width = vg.Points(1)
		fLine.Color = color.RGBA{R: 0xff, G: 0x8c, B: 0x00, A: 0xff}
		p.Add(fLine)
		p.Legend.Add("filtered", fLine)
	}

	if peakIdx >= 0 && peakIdx < len(raw) {
		peak := plotter.XYs{{X: float64(peakIdx), Y: float64(raw[peakIdx])}}
		sc, err := plotter.NewScatter(peak)
		if err != nil {
			return fmt.Errorf("peak marker: %w", err)
		}
		p.Add(sc)
		p.Legend.Add("peak", sc)
	}

	return p.Save(10*vg.Inch, 4*vg.Inch, path)
}

// RowProfilePlot saves a line plot of one row of a 2-D field, e.g. a Nusselt
// profile across the span of the region. Non-finite pixels are left out; a
// row with no finite pixel produces no file.
func RowProfilePlot(path, label string, vals []float64, width, row int) error {
	if row < 0 || (row+1)*width > len(vals) {
		return fmt.Errorf("row %d out of range", row)
	}
	p := plot.New()
	p.Title.Text = label
	p.X.Label.Text = "x"
	p.Y.Label.Text = label

	pts := make(plotter.XYs, 0, width)
	for x := 0; x < width; x++ {
		v := vals[row*width+x]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(x), Y: v})
	}
	if len(pts) == 0 {
		return nil
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("profile line: %w", err)
	}
	line.Width = vg.Points(1)
	p.Add(line)

	return p.Save(10*vg.Inch, 4*vg.Inch, path)
}
