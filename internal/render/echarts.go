package render

import (
	"fmt"
	"math"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/nusselt.report/internal/tlc"
)

// Browsers choke on million-cell heat maps; fields larger than this are
// downsampled by striding.
const maxHeatmapCells = 40000

// HeatmapHTML renders an interactive heat map of a Nusselt field.
func HeatmapHTML(name string, nu *tlc.NuResult) (*charts.HeatMap, error) {
	vmin, vmax, ok := FiniteRange(nu.Nu)
	if !ok {
		return nil, fmt.Errorf("field is entirely NaN")
	}

	stride := 1
	for (nu.Height/stride)*(nu.Width/stride) > maxHeatmapCells {
		stride++
	}

	var data []opts.HeatMapData
	var xs, ys []string
	for x := 0; x < nu.Width; x += stride {
		xs = append(xs, fmt.Sprint(x))
	}
	for y := 0; y < nu.Height; y += stride {
		ys = append(ys, fmt.Sprint(y))
	}
	for yi, y := 0, 0; y < nu.Height; yi, y = yi+1, y+stride {
		for xi, x := 0, 0; x < nu.Width; xi, x = xi+1, x+stride {
			v := nu.Nu[y*nu.Width+x]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			data = append(data, opts.HeatMapData{Value: []interface{}{xi, yi, v}})
		}
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Nusselt field", Width: "900px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: "Nusselt field", Subtitle: fmt.Sprintf("experiment=%s mean=%.2f", name, nu.Mean)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: xs, Name: "x"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: ys, Name: "y"}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(vmin),
			Max:        float32(vmax),
			InRange: &opts.VisualMapInRange{Color: []string{
				"#000080", "#0000ff", "#00bfff", "#00ff80", "#80ff00",
				"#ffff00", "#ff8000", "#ff0000", "#800000",
			}},
		}),
	)
	hm.AddSeries("nu", data)
	return hm, nil
}

// WriteHeatmapHTML renders the heat map to an HTML file.
func WriteHeatmapHTML(path, name string, nu *tlc.NuResult) error {
	hm, err := HeatmapHTML(name, nu)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := hm.Render(f); err != nil {
		return err
	}
	return f.Close()
}
